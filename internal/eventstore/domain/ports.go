package domain

import "context"

// Handler recibe cada evento ya durable, en orden de append.
// El error devuelto se registra en el log y no deshace el append:
// la entrega garantizada es responsabilidad del outbox, no de las suscripciones.
type Handler func(ctx context.Context, evt Event) error

// EventStore define el contrato del log de eventos append-only.
type EventStore interface {
	// Append persiste un evento. Devuelve ValidationError si faltan campos
	// obligatorios y VersionConflictError si la versión no es la siguiente
	// contigua del agregado.
	Append(ctx context.Context, evt Event) error

	// AppendBatch aplica Append a cada evento en orden. Los adapters SQL lo
	// hacen en una única transacción; el contrato solo exige el orden.
	AppendBatch(ctx context.Context, evts []Event) error

	// GetEvents devuelve los eventos del agregado con versión > fromVersion,
	// ordenados por versión. fromVersion = 0 devuelve el stream completo.
	GetEvents(ctx context.Context, aggregateID string, fromVersion int64) ([]Event, error)

	// GetAllEvents devuelve la secuencia global en orden de append con
	// posición > fromPosition. Se usa para reconstruir proyecciones.
	GetAllEvents(ctx context.Context, fromPosition int64) ([]Event, error)

	// Subscribe registra un handler que será invocado una vez por evento
	// appendeado, después de la durabilidad. Best-effort, at-most-once.
	Subscribe(h Handler)
}
