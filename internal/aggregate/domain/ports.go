package domain

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Snapshot es una foto serializada del estado de un agregado a una versión.
// Es una optimización de caché, no fuente de verdad: siempre debe poder
// rederivarse reproduciendo el stream desde la versión 0.
type Snapshot struct {
	AggregateID   string          `json:"aggregate_id"`
	AggregateType string          `json:"aggregate_type"`
	Version       int64           `json:"version"`
	State         json.RawMessage `json:"state"`
	CreatedAt     time.Time       `json:"created_at"`
}

// SnapshotStore persiste snapshots por (tipo, id).
type SnapshotStore interface {
	// Save guarda el snapshot, reemplazando cualquier versión anterior.
	Save(ctx context.Context, snap Snapshot) error

	// Load devuelve el último snapshot para el agregado.
	// Devuelve ErrSnapshotNotFound si no hay ninguno.
	Load(ctx context.Context, aggregateType, aggregateID string) (Snapshot, error)

	// Delete elimina el snapshot del agregado, si existe.
	Delete(ctx context.Context, aggregateType, aggregateID string) error
}

// ErrSnapshotNotFound lo devuelven los stores cuando no hay snapshot guardado.
var ErrSnapshotNotFound = fmt.Errorf("snapshot not found")

// Repository define las operaciones de carga y persistencia de agregados.
type Repository interface {
	// Load reconstruye el agregado desde caché, snapshot y/o eventos.
	// Devuelve ErrAggregateNotFound si no hay rastro del id.
	Load(ctx context.Context, id string) (Root, error)

	// Save persiste los eventos sin confirmar del agregado. Si falla, los
	// eventos sin confirmar se conservan para que el llamante pueda reintentar.
	Save(ctx context.Context, root Root) error

	// Exists comprueba si el agregado tiene algún evento persistido.
	Exists(ctx context.Context, id string) (bool, error)

	// Delete es un soft-delete: añade un marcador terminal al stream
	// y expulsa el id de la caché. La historia nunca se borra.
	Delete(ctx context.Context, id string) error
}

// CacheKey forma una key consistente para la caché de agregados.
func CacheKey(aggregateType, id string) string {
	return fmt.Sprintf("aggregate:%s:%s", aggregateType, id)
}
