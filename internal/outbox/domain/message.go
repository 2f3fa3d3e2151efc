package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status es el ciclo de vida cerrado de un mensaje del outbox. Los stores
// solo transicionan entre estos valores; nunca aceptan strings libres.
type Status string

const (
	// StatusPending: insertado, nunca intentado.
	StatusPending Status = "pending"
	// StatusProcessing: reclamado por un worker, con lease activo (locked_until).
	StatusProcessing Status = "processing"
	// StatusPublished: éxito terminal.
	StatusPublished Status = "published"
	// StatusFailed: fallo reintentable; elegible para una nueva reclamación.
	StatusFailed Status = "failed"
	// StatusDead: agotó los reintentos; solo visible vía GetDeadLetters.
	StatusDead Status = "dead"
)

// IsValid comprueba que el valor pertenece al enum.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusPublished, StatusFailed, StatusDead:
		return true
	}
	return false
}

// ParseStatus valida un string leído de storage.
func ParseStatus(raw string) (Status, error) {
	s := Status(raw)
	if !s.IsValid() {
		return "", fmt.Errorf("unknown outbox status: %q", raw)
	}
	return s, nil
}

// Message es un mensaje de integración pendiente de entregar. Se escribe
// típicamente en la misma unidad de trabajo que el cambio de negocio que lo
// produce, y sobrevive a cualquier crash entre "decidir" y "entregar".
type Message struct {
	ID          uuid.UUID         `json:"id"`
	AggregateID string            `json:"aggregate_id"`
	EventType   string            `json:"event_type"` // ej. "order.created"
	EventData   json.RawMessage   `json:"event_data"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Status      Status            `json:"status"`
	Attempts    int               `json:"attempts"`
	CreatedAt   time.Time         `json:"created_at"`
	ProcessedAt *time.Time        `json:"processed_at,omitempty"`
	LockedUntil *time.Time        `json:"locked_until,omitempty"`
	LastError   string            `json:"error,omitempty"`
}

// NewMessage construye un mensaje pending serializando el payload a JSON.
func NewMessage(aggregateID, eventType string, payload interface{}, metadata map[string]string) (Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Message{}, err
	}
	return Message{
		ID:          uuid.New(),
		AggregateID: aggregateID,
		EventType:   eventType,
		EventData:   data,
		Metadata:    metadata,
		Status:      StatusPending,
		CreatedAt:   time.Now().UTC(),
	}, nil
}
