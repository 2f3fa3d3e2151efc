package domain

import "fmt"

// OutboxStoreError envuelve fallos del storage del outbox.
type OutboxStoreError struct {
	Op  string // ej. "add", "claim", "mark"
	Err error
}

func (e *OutboxStoreError) Error() string {
	return fmt.Sprintf("outbox store error during %s: %v", e.Op, e.Err)
}

func (e *OutboxStoreError) Unwrap() error { return e.Err }

// PublishError indica que el canal de publicación rechazó el mensaje.
// El procesador lo convierte en una transición de estado (MarkAsFailed),
// nunca en un crash del bucle.
type PublishError struct {
	Err error
}

func (e *PublishError) Error() string { return fmt.Sprintf("publish error: %v", e.Err) }
func (e *PublishError) Unwrap() error { return e.Err }
