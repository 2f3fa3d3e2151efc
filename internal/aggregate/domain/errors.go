package domain

import (
	"errors"
	"fmt"
)

// ---------- Errores del repositorio de agregados ----------

var (
	// ErrAggregateNotFound indica que no existen ni snapshot ni eventos para el id.
	ErrAggregateNotFound = errors.New("aggregate not found")

	// ErrAggregateDeleted indica que el stream termina en un marcador de borrado.
	ErrAggregateDeleted = errors.New("aggregate deleted")
)

// SnapshotError envuelve fallos al guardar o restaurar snapshots. Un snapshot
// siempre es rederivable del log, así que el llamante puede continuar sin él.
type SnapshotError struct {
	Err error
}

func (e *SnapshotError) Error() string { return fmt.Sprintf("snapshot error: %v", e.Err) }
func (e *SnapshotError) Unwrap() error { return e.Err }
