package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"sync"
	"time"

	"github.com/davicafu/eventlab/internal/eventstore/domain"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// InitSQLite crea la tabla de eventos si no existe.
func InitSQLite(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS events (
			position     INTEGER PRIMARY KEY AUTOINCREMENT,
			id           TEXT NOT NULL,
			aggregate_id TEXT NOT NULL,
			event_type   TEXT NOT NULL,
			version      INTEGER NOT NULL,
			payload      TEXT NOT NULL,
			occurred_at  TIMESTAMP NOT NULL,
			UNIQUE (aggregate_id, version)
		);
		CREATE INDEX IF NOT EXISTS idx_events_aggregate ON events(aggregate_id, version);
	`)
	return err
}

// EventStoreSQLite implementa domain.EventStore sobre SQLite.
type EventStoreSQLite struct {
	db       *sql.DB
	mu       sync.RWMutex
	handlers []domain.Handler
	log      *zap.Logger
}

func NewEventStoreSQLite(db *sql.DB, log *zap.Logger) *EventStoreSQLite {
	return &EventStoreSQLite{db: db, log: log}
}

func (s *EventStoreSQLite) Append(ctx context.Context, evt domain.Event) error {
	return s.AppendBatch(ctx, []domain.Event{evt})
}

// AppendBatch persiste el lote en una única transacción: o entra entero o no entra.
func (s *EventStoreSQLite) AppendBatch(ctx context.Context, evts []domain.Event) error {
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
		`SELECT COALESCE(MAX(version), 0) FROM events WHERE aggregate_id = ?`, evt.AggregateID,
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

	res, err := tx.ExecContext(ctx,
		`INSERT INTO events (id, aggregate_id, event_type, version, payload, occurred_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		evt.ID.String(), evt.AggregateID, evt.EventType, evt.Version, string(evt.Payload), evt.OccurredAt,
	)
	if err != nil {
		// El índice UNIQUE respalda el chequeo optimista frente a escritores concurrentes.
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return domain.Event{}, &domain.VersionConflictError{
				AggregateID: evt.AggregateID,
				Expected:    current + 1,
				Actual:      evt.Version,
			}
		}
		return domain.Event{}, &domain.PersistenceError{Op: "append", Err: err}
	}

	pos, err := res.LastInsertId()
	if err != nil {
		return domain.Event{}, &domain.PersistenceError{Op: "append", Err: err}
	}
	evt.Position = pos
	return evt, nil
}

func (s *EventStoreSQLite) GetEvents(ctx context.Context, aggregateID string, fromVersion int64) ([]domain.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT position, id, aggregate_id, event_type, version, payload, occurred_at
		 FROM events WHERE aggregate_id = ? AND version > ? ORDER BY version`,
		aggregateID, fromVersion,
	)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "load", Err: err}
	}
	defer rows.Close()

	return scanEvents(rows)
}

func (s *EventStoreSQLite) GetAllEvents(ctx context.Context, fromPosition int64) ([]domain.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT position, id, aggregate_id, event_type, version, payload, occurred_at
		 FROM events WHERE position > ? ORDER BY position`,
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
			idStr   string
			payload string
		)
		if err := rows.Scan(&evt.Position, &idStr, &evt.AggregateID, &evt.EventType, &evt.Version, &payload, &evt.OccurredAt); err != nil {
			return nil, &domain.PersistenceError{Op: "load", Err: err}
		}

		// El ID se guarda como TEXT, lo parseamos de nuevo.
		id, err := uuid.Parse(idStr)
		if err != nil {
			return nil, &domain.PersistenceError{Op: "load", Err: err}
		}
		evt.ID = id
		evt.Payload = []byte(payload)

		events = append(events, evt)
	}
	return events, rows.Err()
}

func (s *EventStoreSQLite) Subscribe(h domain.Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers = append(s.handlers, h)
}

func (s *EventStoreSQLite) dispatch(ctx context.Context, evts []domain.Event) {
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
var _ domain.EventStore = (*EventStoreSQLite)(nil)
