package postgres

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"github.com/davicafu/eventlab/internal/eventstore/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// InitPostgres crea la tabla de eventos si no existe.
func InitPostgres(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS events (
			position     BIGSERIAL PRIMARY KEY,
			id           UUID NOT NULL,
			aggregate_id VARCHAR NOT NULL,
			event_type   VARCHAR NOT NULL,
			version      BIGINT NOT NULL,
			payload      JSONB NOT NULL,
			occurred_at  TIMESTAMPTZ NOT NULL,
			UNIQUE (aggregate_id, version)
		);
		CREATE INDEX IF NOT EXISTS idx_events_aggregate ON events(aggregate_id, version);
	`)
	return err
}

// EventStorePostgres implementa domain.EventStore sobre Postgres.
type EventStorePostgres struct {
	db       *sql.DB
	mu       sync.RWMutex
	handlers []domain.Handler
	log      *zap.Logger
}

func NewEventStorePostgres(db *sql.DB, log *zap.Logger) *EventStorePostgres {
	return &EventStorePostgres{db: db, log: log}
}

func (s *EventStorePostgres) Append(ctx context.Context, evt domain.Event) error {
	return s.AppendBatch(ctx, []domain.Event{evt})
}

// AppendBatch persiste el lote en una única transacción.
func (s *EventStorePostgres) AppendBatch(ctx context.Context, evts []domain.Event) error {
	if len(evts) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &domain.PersistenceError{Op: "append", Err: err}
	}
	defer tx.Rollback()

	appended := make([]domain.Event, 0, len(evts))
	for _, evt := range evts {
		a, err := appendTx(ctx, tx, evt)
		if err != nil {
			return err
		}
		appended = append(appended, a)
	}

	if err := tx.Commit(); err != nil {
		return &domain.PersistenceError{Op: "append", Err: err}
	}

	s.dispatch(ctx, appended)
	return nil
}

func appendTx(ctx context.Context, tx *sql.Tx, evt domain.Event) (domain.Event, error) {
	if err := evt.Validate(); err != nil {
		return domain.Event{}, err
	}

	var current int64
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM events WHERE aggregate_id = $1`, evt.AggregateID,
	).Scan(&current); err != nil {
		return domain.Event{}, &domain.PersistenceError{Op: "append", Err: err}
	}

	if evt.Version != current+1 {
		return domain.Event{}, &domain.VersionConflictError{
			AggregateID: evt.AggregateID,
			Expected:    current + 1,
			Actual:      evt.Version,
		}
	}

	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = time.Now().UTC()
	}

	var position int64
	err := tx.QueryRowContext(ctx,
		`INSERT INTO events (id, aggregate_id, event_type, version, payload, occurred_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING position`,
		evt.ID, evt.AggregateID, evt.EventType, evt.Version, []byte(evt.Payload), evt.OccurredAt,
	).Scan(&position)
	if err != nil {
		// 23505 = unique_violation; la constraint respalda el chequeo optimista.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.Event{}, &domain.VersionConflictError{
				AggregateID: evt.AggregateID,
				Expected:    current + 1,
				Actual:      evt.Version,
			}
		}
		return domain.Event{}, &domain.PersistenceError{Op: "append", Err: err}
	}
	evt.Position = position
	return evt, nil
}

func (s *EventStorePostgres) GetEvents(ctx context.Context, aggregateID string, fromVersion int64) ([]domain.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT position, id, aggregate_id, event_type, version, payload, occurred_at
		 FROM events WHERE aggregate_id = $1 AND version > $2 ORDER BY version`,
		aggregateID, fromVersion,
	)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "load", Err: err}
	}
	defer rows.Close()

	return scanEvents(rows)
}

func (s *EventStorePostgres) GetAllEvents(ctx context.Context, fromPosition int64) ([]domain.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT position, id, aggregate_id, event_type, version, payload, occurred_at
		 FROM events WHERE position > $1 ORDER BY position`,
		fromPosition,
	)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "load", Err: err}
	}
	defer rows.Close()

	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]domain.Event, error) {
	var events []domain.Event
	for rows.Next() {
		var (
			evt     domain.Event
			id      uuid.UUID
			payload []byte
		)
		if err := rows.Scan(&evt.Position, &id, &evt.AggregateID, &evt.EventType, &evt.Version, &payload, &evt.OccurredAt); err != nil {
			return nil, &domain.PersistenceError{Op: "load", Err: err}
		}
		evt.ID = id
		evt.Payload = payload
		events = append(events, evt)
	}
	return events, rows.Err()
}

func (s *EventStorePostgres) Subscribe(h domain.Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers = append(s.handlers, h)
}

func (s *EventStorePostgres) dispatch(ctx context.Context, evts []domain.Event) {
	s.mu.RLock()
	handlers := make([]domain.Handler, len(s.handlers))
	copy(handlers, s.handlers)
	s.mu.RUnlock()

	for _, evt := range evts {
		for _, h := range handlers {
			if err := h(ctx, evt); err != nil {
				s.log.Warn("⚠️ Subscriber devolvió error",
					zap.String("event_id", evt.ID.String()),
					zap.Error(err),
				)
			}
		}
	}
}

// Verificación en tiempo de compilación.
var _ domain.EventStore = (*EventStorePostgres)(nil)
