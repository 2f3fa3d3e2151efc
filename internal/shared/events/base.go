package events

import (
	"encoding/json"
	"time"
)

// IntegrationEvent es la base de todos los eventos de integración que salen
// hacia el canal externo.
type IntegrationEvent struct {
	ID        string            `json:"id"`
	Type      string            `json:"type"`
	Timestamp time.Time         `json:"timestamp"`
	Data      json.RawMessage   `json:"data"` // contenido específico del evento
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// EventMetadata describe el enrutado de un tipo de evento de integración.
type EventMetadata struct {
	Topic string
}
