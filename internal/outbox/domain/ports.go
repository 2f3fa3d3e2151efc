package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store define el contrato de la tabla outbox.
//
// Máquina de estados: pending → processing → {published | failed};
// failed → processing (nueva reclamación); processing → dead (reintentos agotados).
type Store interface {
	// Add inserta mensajes en estado pending. Los adapters SQL ofrecen además
	// una variante AddTx para compartir la transacción del cambio de negocio.
	Add(ctx context.Context, msgs []Message) error

	// GetNextBatch reclama atómicamente hasta limit mensajes elegibles
	// (pending, failed, o processing con el lease vencido) y los pasa a
	// processing con locked_until = now + lockTimeout. El lease es exclusivo:
	// dos workers concurrentes nunca reclaman el mismo mensaje.
	GetNextBatch(ctx context.Context, limit int) ([]Message, error)

	// MarkAsPublished marca éxito terminal y sella processed_at.
	MarkAsPublished(ctx context.Context, ids []uuid.UUID) error

	// MarkAsFailed incrementa attempts y limpia el lease; al llegar a
	// maxRetries el mensaje pasa a dead y deja de ser reclamable.
	MarkAsFailed(ctx context.Context, id uuid.UUID, cause string) error

	// Cleanup borra los published procesados antes del horizonte dado.
	// Devuelve cuántas filas eliminó.
	Cleanup(ctx context.Context, before time.Time) (int64, error)

	// GetDeadLetters devuelve hasta limit mensajes dead, el más reciente
	// primero, para inspección del operador.
	GetDeadLetters(ctx context.Context, limit int) ([]Message, error)
}

// Publisher entrega mensajes al canal externo. Es componible: los decoradores
// de resiliencia, batching, idempotencia, fan-out y filtrado preservan este
// mismo contrato.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
	PublishBatch(ctx context.Context, msgs []Message) error
}
