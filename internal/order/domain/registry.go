package domain

import (
	sharedEvents "github.com/davicafu/eventlab/internal/shared/events"
)

// Las constantes de los tipos de evento se definen aquí, como valores string.
const (
	OrderCreated   = "order.created"
	OrderItemAdded = "order.item_added"
	OrderDeleted   = "order.deleted"
)

const (
	OrderAggregateType = "order"
	OrderTopic         = "order-events"
)

// ---------- Payloads de los eventos ----------

type OrderCreatedPayload struct {
	CustomerID string `json:"customer_id"`
}

type OrderItemAddedPayload struct {
	Item OrderItem `json:"item"`
}

// NewEventRegistry mapea cada tipo de evento a su enrutado de integración.
func NewEventRegistry() map[string]sharedEvents.EventMetadata {
	return map[string]sharedEvents.EventMetadata{
		OrderCreated:   {Topic: OrderTopic},
		OrderItemAdded: {Topic: OrderTopic},
		OrderDeleted:   {Topic: OrderTopic},
	}
}
