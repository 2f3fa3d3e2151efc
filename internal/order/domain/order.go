package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	aggDomain "github.com/davicafu/eventlab/internal/aggregate/domain"
	esDomain "github.com/davicafu/eventlab/internal/eventstore/domain"
)

// ---------- Errores de dominio ----------
var (
	ErrOrderDeleted  = errors.New("order is deleted")
	ErrEmptyCustomer = errors.New("customer id must not be empty")
	ErrInvalidItem   = errors.New("invalid order item")
)

// OrderItem es una línea del pedido.
type OrderItem struct {
	SKU        string `json:"sku"`
	Quantity   int    `json:"quantity"`
	PriceCents int64  `json:"price_cents"`
}

// Order es un agregado event-sourced: su estado se deriva por completo de su
// historia de eventos.
type Order struct {
	aggDomain.Base

	CustomerID string      `json:"customer_id"`
	Items      []OrderItem `json:"items"`
	TotalCents int64       `json:"total_cents"`
	CreatedAt  time.Time   `json:"created_at"`
	Deleted    bool        `json:"deleted"`
}

// NewOrder construye una instancia vacía; es la factory que usa el repositorio
// para el replay.
func NewOrder(id string) *Order {
	o := &Order{}
	o.ID = id
	return o
}

// CreateOrder registra el evento de creación sobre un agregado nuevo.
func CreateOrder(id, customerID string) (*Order, error) {
	if customerID == "" {
		return nil, ErrEmptyCustomer
	}

	o := NewOrder(id)
	if err := aggDomain.Record(o, OrderCreated, OrderCreatedPayload{CustomerID: customerID}); err != nil {
		return nil, err
	}
	return o, nil
}

// AddItem añade una línea al pedido.
func (o *Order) AddItem(item OrderItem) error {
	if o.Deleted {
		return ErrOrderDeleted
	}
	if item.SKU == "" || item.Quantity <= 0 {
		return ErrInvalidItem
	}
	return aggDomain.Record(o, OrderItemAdded, OrderItemAddedPayload{Item: item})
}

func (o *Order) AggregateType() string { return OrderAggregateType }

// Apply muta el estado a partir de un evento, en replay y al registrar.
func (o *Order) Apply(evt esDomain.Event) error {
	switch evt.EventType {
	case OrderCreated:
		var p OrderCreatedPayload
		if err := json.Unmarshal(evt.Payload, &p); err != nil {
			return err
		}
		o.CustomerID = p.CustomerID
		o.CreatedAt = evt.OccurredAt

	case OrderItemAdded:
		var p OrderItemAddedPayload
		if err := json.Unmarshal(evt.Payload, &p); err != nil {
			return err
		}
		o.Items = append(o.Items, p.Item)
		o.TotalCents += int64(p.Item.Quantity) * p.Item.PriceCents

	case OrderDeleted:
		o.Deleted = true

	default:
		return fmt.Errorf("unknown event type for order: %s", evt.EventType)
	}
	return nil
}

// Verificación estática
var _ aggDomain.Root = (*Order)(nil)
