package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateOrder(t *testing.T) {
	order, err := CreateOrder("order-1", "customer-7")
	require.NoError(t, err)

	assert.Equal(t, "customer-7", order.CustomerID)
	assert.Equal(t, "order", order.AggregateType())

	// El evento queda pendiente con la primera versión del stream.
	evts := order.UncommittedEvents()
	require.Len(t, evts, 1)
	assert.Equal(t, OrderCreated, evts[0].EventType)
	assert.Equal(t, int64(1), evts[0].Version)

	_, err = CreateOrder("order-2", "")
	assert.ErrorIs(t, err, ErrEmptyCustomer)
}

func TestOrder_AddItem(t *testing.T) {
	order, err := CreateOrder("order-1", "customer-7")
	require.NoError(t, err)

	require.NoError(t, order.AddItem(OrderItem{SKU: "sku-1", Quantity: 2, PriceCents: 1500}))
	require.NoError(t, order.AddItem(OrderItem{SKU: "sku-2", Quantity: 1, PriceCents: 500}))

	assert.Len(t, order.Items, 2)
	assert.Equal(t, int64(3500), order.TotalCents)

	// Las versiones de los eventos pendientes son contiguas.
	evts := order.UncommittedEvents()
	require.Len(t, evts, 3)
	for i, evt := range evts {
		assert.Equal(t, int64(i+1), evt.Version)
	}
}

func TestOrder_AddItem_Validaciones(t *testing.T) {
	tests := []struct {
		name string
		item OrderItem
	}{
		{name: "sin sku", item: OrderItem{Quantity: 1, PriceCents: 100}},
		{name: "cantidad cero", item: OrderItem{SKU: "sku-1", PriceCents: 100}},
		{name: "cantidad negativa", item: OrderItem{SKU: "sku-1", Quantity: -2, PriceCents: 100}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			order, err := CreateOrder("order-1", "customer-7")
			require.NoError(t, err)
			assert.ErrorIs(t, order.AddItem(tt.item), ErrInvalidItem)
		})
	}
}

func TestOrder_AddItem_SobrePedidoBorrado(t *testing.T) {
	order, err := CreateOrder("order-1", "customer-7")
	require.NoError(t, err)

	// Simulamos el marcador terminal llegando por replay.
	evts := order.UncommittedEvents()
	deleted := evts[0]
	deleted.EventType = OrderDeleted
	require.NoError(t, order.Apply(deleted))

	assert.ErrorIs(t, order.AddItem(OrderItem{SKU: "sku-1", Quantity: 1, PriceCents: 100}), ErrOrderDeleted)
}

func TestOrder_Replay(t *testing.T) {
	// ARRANGE: la historia completa de un pedido.
	original, err := CreateOrder("order-1", "customer-7")
	require.NoError(t, err)
	require.NoError(t, original.AddItem(OrderItem{SKU: "sku-1", Quantity: 2, PriceCents: 1500}))
	history := original.UncommittedEvents()

	// ACT: replay sobre una instancia vacía, como haría el repositorio.
	replayed := NewOrder("order-1")
	for _, evt := range history {
		require.NoError(t, replayed.Apply(evt))
		replayed.SetVersion(evt.Version)
	}

	// ASSERT: el estado derivado coincide con el original.
	assert.Equal(t, original.CustomerID, replayed.CustomerID)
	assert.Equal(t, original.Items, replayed.Items)
	assert.Equal(t, original.TotalCents, replayed.TotalCents)
	assert.Equal(t, int64(2), replayed.CurrentVersion())
}

func TestOrder_Apply_EventoDesconocido(t *testing.T) {
	order, err := CreateOrder("order-1", "customer-7")
	require.NoError(t, err)

	evt := order.UncommittedEvents()[0]
	evt.EventType = "order.unknown"
	assert.Error(t, order.Apply(evt))
}

func TestNewEventRegistry(t *testing.T) {
	registry := NewEventRegistry()

	for _, eventType := range []string{OrderCreated, OrderItemAdded, OrderDeleted} {
		meta, ok := registry[eventType]
		require.Truef(t, ok, "falta %s en el registro", eventType)
		assert.Equal(t, OrderTopic, meta.Topic)
	}
}
