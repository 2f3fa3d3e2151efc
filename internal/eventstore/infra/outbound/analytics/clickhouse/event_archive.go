package clickhouse

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2"

	esDomain "github.com/davicafu/eventlab/internal/eventstore/domain"
)

// EventArchive copia el log de eventos a ClickHouse en orden global de append,
// para analítica y reconstrucción de proyecciones fuera del camino caliente.
type EventArchive struct {
	db *sql.DB
}

// NewEventArchive es el constructor.
func NewEventArchive(addr string, dbName string) (*EventArchive, error) {
	conn := clickhouse.OpenDB(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: dbName,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
	})

	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("could not ping clickhouse: %w", err)
	}

	return &EventArchive{db: conn}, nil
}

// ArchiveBatch inserta un lote de eventos. ClickHouse funciona mejor con
// inserciones en lotes, así que el llamante debe acumular antes de llamar.
func (a *EventArchive) ArchiveBatch(ctx context.Context, evts []esDomain.Event) error {
	if len(evts) == 0 {
		return nil
	}

	tx, err := a.db.Begin()
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, "INSERT INTO events_log (position, id, aggregate_id, event_type, version, payload, occurred_at)")
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, evt := range evts {
		if _, err := stmt.ExecContext(
			ctx,
			evt.Position,
			evt.ID.String(),
			evt.AggregateID,
			evt.EventType,
			evt.Version,
			string(evt.Payload),
			evt.OccurredAt,
		); err != nil {
			// Si un registro falla, hacemos rollback de todo el lote.
			tx.Rollback()
			return fmt.Errorf("failed to exec statement for event %s: %w", evt.ID, err)
		}
	}

	return tx.Commit()
}

// Handler devuelve un suscriptor del event store que archiva cada evento.
// El log de eventos registra los errores del handler, no los propaga.
func (a *EventArchive) Handler() esDomain.Handler {
	return func(ctx context.Context, evt esDomain.Event) error {
		return a.ArchiveBatch(ctx, []esDomain.Event{evt})
	}
}
