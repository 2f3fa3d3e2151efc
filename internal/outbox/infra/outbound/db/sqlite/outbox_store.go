package sqlite

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

// InitSQLite crea la tabla outbox_events si no existe.
func InitSQLite(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS outbox_events (
			id           TEXT PRIMARY KEY,
			aggregate_id TEXT NOT NULL,
			event_type   TEXT NOT NULL,
			event_data   TEXT NOT NULL,
			metadata     TEXT,
			status       TEXT NOT NULL DEFAULT 'pending',
			attempts     INTEGER NOT NULL DEFAULT 0,
			created_at   TIMESTAMP NOT NULL,
			processed_at TIMESTAMP NULL,
			locked_until TIMESTAMP NULL,
			error        TEXT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_outbox_status ON outbox_events(status, locked_until);
		CREATE INDEX IF NOT EXISTS idx_outbox_aggregate ON outbox_events(aggregate_id);
		CREATE INDEX IF NOT EXISTS idx_outbox_created ON outbox_events(created_at);
		CREATE INDEX IF NOT EXISTS idx_outbox_processed ON outbox_events(processed_at);
	`)
	return err
}

// OutboxStoreSQLite implementa domain.Store sobre SQLite.
type OutboxStoreSQLite struct {
	db          *sql.DB
	maxRetries  int
	lockTimeout time.Duration
}

func NewOutboxStoreSQLite(db *sql.DB, maxRetries int, lockTimeout time.Duration) *OutboxStoreSQLite {
	return &OutboxStoreSQLite{db: db, maxRetries: maxRetries, lockTimeout: lockTimeout}
}

func (s *OutboxStoreSQLite) Add(ctx context.Context, msgs []domain.Message) error {
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
func (s *OutboxStoreSQLite) AddTx(ctx context.Context, tx *sql.Tx, msgs []domain.Message) error {
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
			 VALUES (?, ?, ?, ?, ?, 'pending', 0, ?)`,
			msg.ID.String(), msg.AggregateID, msg.EventType, string(msg.EventData), string(metadata), createdAt,
		); err != nil {
			return &domain.OutboxStoreError{Op: "add", Err: err}
		}
	}
	return nil
}

// GetNextBatch reclama en una única sentencia UPDATE ... RETURNING: SQLite
// serializa escritores, así que no hay ventana de doble reclamación.
func (s *OutboxStoreSQLite) GetNextBatch(ctx context.Context, limit int) ([]domain.Message, error) {
	now := time.Now().UTC()
	lockedUntil := now.Add(s.lockTimeout)

	rows, err := s.db.QueryContext(ctx,
		`UPDATE outbox_events
		 SET status = 'processing', locked_until = ?
		 WHERE id IN (
			SELECT id FROM outbox_events
			WHERE status IN ('pending', 'failed')
			   OR (status = 'processing' AND locked_until < ?)
			ORDER BY created_at
			LIMIT ?
		 )
		 RETURNING id, aggregate_id, event_type, event_data, metadata, status, attempts, created_at, processed_at, locked_until, error`,
		lockedUntil, now, limit,
	)
	if err != nil {
		return nil, &domain.OutboxStoreError{Op: "claim", Err: err}
	}
	defer rows.Close()

	return scanMessages(rows)
}

func (s *OutboxStoreSQLite) MarkAsPublished(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]

	args := make([]interface{}, 0, len(ids)+1)
	args = append(args, time.Now().UTC())
	for _, id := range ids {
		args = append(args, id.String())
	}

	_, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE outbox_events
		 SET status = 'published', processed_at = ?, locked_until = NULL
		 WHERE id IN (%s)`, placeholders),
		args...,
	)
	if err != nil {
		return &domain.OutboxStoreError{Op: "mark", Err: err}
	}
	return nil
}

func (s *OutboxStoreSQLite) MarkAsFailed(ctx context.Context, id uuid.UUID, cause string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE outbox_events
		 SET attempts = attempts + 1,
		     status = CASE WHEN attempts + 1 >= ? THEN 'dead' ELSE 'failed' END,
		     locked_until = NULL,
		     error = ?
		 WHERE id = ?`,
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

func (s *OutboxStoreSQLite) Cleanup(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM outbox_events WHERE status = 'published' AND processed_at < ?`, before,
	)
	if err != nil {
		return 0, &domain.OutboxStoreError{Op: "cleanup", Err: err}
	}
	return res.RowsAffected()
}

func (s *OutboxStoreSQLite) GetDeadLetters(ctx context.Context, limit int) ([]domain.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, aggregate_id, event_type, event_data, metadata, status, attempts, created_at, processed_at, locked_until, error
		 FROM outbox_events WHERE status = 'dead' ORDER BY created_at DESC LIMIT ?`, limit,
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
			eventData   string
			metadata    sql.NullString
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
		msg.EventData = []byte(eventData)

		parsedStatus, err := domain.ParseStatus(status)
		if err != nil {
			return nil, &domain.OutboxStoreError{Op: "load", Err: err}
		}
		msg.Status = parsedStatus

		if metadata.Valid && metadata.String != "" && metadata.String != "null" {
			if err := json.Unmarshal([]byte(metadata.String), &msg.Metadata); err != nil {
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
var _ domain.Store = (*OutboxStoreSQLite)(nil)
