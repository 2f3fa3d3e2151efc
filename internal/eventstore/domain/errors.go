package domain

import (
	"errors"
	"fmt"
)

// ---------- Errores del event store ----------

var (
	// ErrValidation agrupa todos los fallos de validación de Append.
	ErrValidation = errors.New("event validation failed")

	// ErrVersionConflict agrupa todos los conflictos de concurrencia optimista.
	ErrVersionConflict = errors.New("version conflict")
)

// ValidationError indica que un evento no cumple el contrato mínimo
// (aggregate id, tipo y versión positiva). Nunca debe reintentarse.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("event validation failed: %s %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// VersionConflictError indica que otro escritor avanzó el stream primero.
// El llamante debe recargar el agregado y reaplicar su operación.
type VersionConflictError struct {
	AggregateID string
	Expected    int64
	Actual      int64
}

func (e *VersionConflictError) Error() string {
	return fmt.Sprintf("version conflict on %s: expected %d, got %d", e.AggregateID, e.Expected, e.Actual)
}

func (e *VersionConflictError) Is(target error) bool { return target == ErrVersionConflict }

// PersistenceError envuelve fallos de la infraestructura subyacente.
// Se presume transitorio: es el único tipo que los decoradores de retry reintentan.
type PersistenceError struct {
	Op  string // ej. "append", "save", "load"
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence error during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
