package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event representa un hecho inmutable dentro del stream de un agregado.
// Una vez persistido nunca cambia; el estado del agregado se deriva
// reproduciendo sus eventos en orden de versión.
type Event struct {
	ID          uuid.UUID       `json:"id"`
	AggregateID string          `json:"aggregate_id"`
	EventType   string          `json:"event_type"` // ej. "order.created"
	Version     int64           `json:"version"`    // contigua desde 1 por agregado
	Position    int64           `json:"position"`   // orden global de append, lo asigna el store
	Payload     json.RawMessage `json:"payload"`
	OccurredAt  time.Time       `json:"occurred_at"`
}

// NewEvent construye un evento listo para Append, serializando el payload a JSON.
func NewEvent(aggregateID, eventType string, version int64, payload interface{}) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{
		ID:          uuid.New(),
		AggregateID: aggregateID,
		EventType:   eventType,
		Version:     version,
		Payload:     data,
		OccurredAt:  time.Now().UTC(),
	}, nil
}

// Validate comprueba los campos obligatorios antes de persistir.
func (e Event) Validate() error {
	if e.AggregateID == "" {
		return &ValidationError{Field: "aggregate_id", Reason: "must not be empty"}
	}
	if e.EventType == "" {
		return &ValidationError{Field: "event_type", Reason: "must not be empty"}
	}
	if e.Version <= 0 {
		return &ValidationError{Field: "version", Reason: "must be a positive integer"}
	}
	return nil
}
