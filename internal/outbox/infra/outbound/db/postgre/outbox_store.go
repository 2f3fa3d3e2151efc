package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/davicafu/eventlab/internal/outbox/domain"
	"github.com/google/uuid"
)

// InitPostgres crea la tabla outbox_events si no existe.
func InitPostgres(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS outbox_events (
			id           VARCHAR PRIMARY KEY,
			aggregate_id VARCHAR NOT NULL,
			event_type   VARCHAR NOT NULL,
			event_data   JSONB NOT NULL,
			metadata     JSONB,
			status       VARCHAR NOT NULL DEFAULT 'pending',
			attempts     INT NOT NULL DEFAULT 0,
			created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
			processed_at TIMESTAMPTZ NULL,
			locked_until TIMESTAMPTZ NULL,
			error        TEXT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_outbox_status ON outbox_events(status, locked_until);
		CREATE INDEX IF NOT EXISTS idx_outbox_aggregate ON outbox_events(aggregate_id);
		CREATE INDEX IF NOT EXISTS idx_outbox_created ON outbox_events(created_at);
		CREATE INDEX IF NOT EXISTS idx_outbox_processed ON outbox_events(processed_at);
	`)
	return err
}

// OutboxStorePostgres implementa domain.Store sobre Postgres.
type OutboxStorePostgres struct {
	db          *sql.DB
	maxRetries  int
	lockTimeout time.Duration
}

func NewOutboxStorePostgres(db *sql.DB, maxRetries int, lockTimeout time.Duration) *OutboxStorePostgres {
	return &OutboxStorePostgres{db: db, maxRetries: maxRetries, lockTimeout: lockTimeout}
}

func (s *OutboxStorePostgres) Add(ctx context.Context, msgs []domain.Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &domain.OutboxStoreError{Op: "add", Err: err}
	}
	defer tx.Rollback()

	if err := s.AddTx(ctx, tx, msgs); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return &domain.OutboxStoreError{Op: "add", Err: err}
	}
	return nil
}

// AddTx inserta dentro de la transacción del llamante, para emparejar la
// durabilidad del mensaje con la del cambio de negocio que lo produce.
func (s *OutboxStorePostgres) AddTx(ctx context.Context, tx *sql.Tx, msgs []domain.Message) error {
	for _, msg := range msgs {
		metadata, err := json.Marshal(msg.Metadata)
		if err != nil {
			return &domain.OutboxStoreError{Op: "add", Err: err}
		}
		createdAt := msg.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO outbox_events (id, aggregate_id, event_type, event_data, metadata, status, attempts, created_at)
			 VALUES ($1, $2, $3, $4, $5, 'pending', 0, $6)`,
			msg.ID.String(), msg.AggregateID, msg.EventType, []byte(msg.EventData), metadata, createdAt,
		); err != nil {
			return &domain.OutboxStoreError{Op: "add", Err: err}
		}
	}
	return nil
}

// GetNextBatch reclama con FOR UPDATE SKIP LOCKED: varios procesadores
// concurrentes contra la misma tabla nunca reclaman la misma fila.
func (s *OutboxStorePostgres) GetNextBatch(ctx context.Context, limit int) ([]domain.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`UPDATE outbox_events
		 SET status = 'processing', locked_until = now() + $1::interval
		 WHERE id IN (
			SELECT id FROM outbox_events
			WHERE status IN ('pending', 'failed')
			   OR (status = 'processing' AND locked_until < now())
			ORDER BY created_at
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		 )
		 RETURNING id, aggregate_id, event_type, event_data, metadata, status, attempts, created_at, processed_at, locked_until, error`,
		fmt.Sprintf("%f seconds", s.lockTimeout.Seconds()), limit,
	)
	if err != nil {
		return nil, &domain.OutboxStoreError{Op: "claim", Err: err}
	}
	defer rows.Close()

	return scanMessages(rows)
}

func (s *OutboxStorePostgres) MarkAsPublished(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}

	placeholders := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id.String()
	}

	_, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE outbox_events
		 SET status = 'published', processed_at = now(), locked_until = NULL
		 WHERE id IN (%s)`, strings.Join(placeholders, ", ")),
		args...,
	)
	if err != nil {
		return &domain.OutboxStoreError{Op: "mark", Err: err}
	}
	return nil
}

func (s *OutboxStorePostgres) MarkAsFailed(ctx context.Context, id uuid.UUID, cause string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE outbox_events
		 SET attempts = attempts + 1,
		     status = CASE WHEN attempts + 1 >= $1 THEN 'dead' ELSE 'failed' END,
		     locked_until = NULL,
		     error = $2
		 WHERE id = $3`,
		s.maxRetries, cause, id.String(),
	)
	if err != nil {
		return &domain.OutboxStoreError{Op: "mark", Err: err}
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return &domain.OutboxStoreError{Op: "mark", Err: err}
	}
	if rows == 0 {
		return &domain.OutboxStoreError{Op: "mark", Err: fmt.Errorf("outbox message not found: %s", id)}
	}
	return nil
}

func (s *OutboxStorePostgres) Cleanup(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM outbox_events WHERE status = 'published' AND processed_at < $1`, before,
	)
	if err != nil {
		return 0, &domain.OutboxStoreError{Op: "cleanup", Err: err}
	}
	return res.RowsAffected()
}

func (s *OutboxStorePostgres) GetDeadLetters(ctx context.Context, limit int) ([]domain.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, aggregate_id, event_type, event_data, metadata, status, attempts, created_at, processed_at, locked_until, error
		 FROM outbox_events WHERE status = 'dead' ORDER BY created_at DESC LIMIT $1`, limit,
	)
	if err != nil {
		return nil, &domain.OutboxStoreError{Op: "load", Err: err}
	}
	defer rows.Close()

	return scanMessages(rows)
}

func scanMessages(rows *sql.Rows) ([]domain.Message, error) {
	var msgs []domain.Message
	for rows.Next() {
		var (
			msg         domain.Message
			idStr       string
			eventData   []byte
			metadata    []byte
			status      string
			processedAt sql.NullTime
			lockedUntil sql.NullTime
			lastError   sql.NullString
		)
		if err := rows.Scan(&idStr, &msg.AggregateID, &msg.EventType, &eventData, &metadata,
			&status, &msg.Attempts, &msg.CreatedAt, &processedAt, &lockedUntil, &lastError); err != nil {
			return nil, &domain.OutboxStoreError{Op: "load", Err: err}
		}

		id, err := uuid.Parse(idStr)
		if err != nil {
			return nil, &domain.OutboxStoreError{Op: "load", Err: fmt.Errorf("invalid UUID in outbox row: %w", err)}
		}
		msg.ID = id
		msg.EventData = eventData

		parsedStatus, err := domain.ParseStatus(status)
		if err != nil {
			return nil, &domain.OutboxStoreError{Op: "load", Err: err}
		}
		msg.Status = parsedStatus

		if len(metadata) > 0 && string(metadata) != "null" {
			if err := json.Unmarshal(metadata, &msg.Metadata); err != nil {
				return nil, &domain.OutboxStoreError{Op: "load", Err: fmt.Errorf("invalid metadata in outbox row %s: %w", msg.ID, err)}
			}
		}
		if processedAt.Valid {
			t := processedAt.Time
			msg.ProcessedAt = &t
		}
		if lockedUntil.Valid {
			t := lockedUntil.Time
			msg.LockedUntil = &t
		}
		if lastError.Valid {
			msg.LastError = lastError.String
		}

		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}

// Verificación en tiempo de compilación.
var _ domain.Store = (*OutboxStorePostgres)(nil)
