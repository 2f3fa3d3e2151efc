package contracts

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"encoding/json"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	aggApp "github.com/davicafu/eventlab/internal/aggregate/application"
	aggDomain "github.com/davicafu/eventlab/internal/aggregate/domain"
	esMemory "github.com/davicafu/eventlab/internal/eventstore/infra/outbound/memory"
	orderApp "github.com/davicafu/eventlab/internal/order/application"
	orderDomain "github.com/davicafu/eventlab/internal/order/domain"
	orderHttp "github.com/davicafu/eventlab/internal/order/infra/inbound/http"
	outboxMemory "github.com/davicafu/eventlab/internal/outbox/infra/outbound/memory"
)

// orderHTTPResponse define el formato que esperamos en las respuestas JSON
type orderHTTPResponse struct {
	ID         string `json:"id"`
	Version    int64  `json:"version"`
	CustomerID string `json:"customer_id"`
	TotalCents int64  `json:"total_cents"`
	Items      []struct {
		SKU      string `json:"sku"`
		Quantity int    `json:"quantity"`
	} `json:"items"`
}

func setupRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := esMemory.NewEventStoreMemory(zap.NewNop())
	repo := aggApp.NewEventSourcedRepository(
		store, nil, nil,
		func(id string) aggDomain.Root { return orderDomain.NewOrder(id) },
		orderDomain.OrderAggregateType, 0, time.Minute, zap.NewNop(),
	)
	outbox := outboxMemory.NewOutboxStoreMemory(3, 30*time.Second)
	service := orderApp.NewOrderService(repo, outbox, zap.NewNop())

	router := gin.New()
	orderHttp.RegisterOrderRoutes(router, orderHttp.NewOrderHandler(service, outbox))
	return router
}

func doJSON(t *testing.T, router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestOrderHTTP_Contract(t *testing.T) {
	router := setupRouter(t)

	// Crear pedido
	rec := doJSON(t, router, http.MethodPost, "/orders/", `{"customer_id":"customer-7"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var created orderHTTPResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "customer-7", created.CustomerID)
	assert.Equal(t, int64(1), created.Version)

	// Añadir línea
	rec = doJSON(t, router, http.MethodPost, "/orders/"+created.ID+"/items",
		`{"sku":"sku-1","quantity":2,"price_cents":1500}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var updated orderHTTPResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	assert.Equal(t, int64(3000), updated.TotalCents)
	require.Len(t, updated.Items, 1)
	assert.Equal(t, "sku-1", updated.Items[0].SKU)

	// Consultar
	rec = doJSON(t, router, http.MethodGet, "/orders/"+created.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)

	// Borrar y comprobar que desaparece
	rec = doJSON(t, router, http.MethodDelete, "/orders/"+created.ID, "")
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/orders/"+created.ID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestOrderHTTP_Validaciones(t *testing.T) {
	router := setupRouter(t)

	// Cuerpo inválido
	rec := doJSON(t, router, http.MethodPost, "/orders/", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Pedido inexistente
	rec = doJSON(t, router, http.MethodGet, "/orders/fantasma", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/orders/fantasma/items",
		`{"sku":"sku-1","quantity":1,"price_cents":100}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Línea inválida sobre pedido real
	rec = doJSON(t, router, http.MethodPost, "/orders/", `{"customer_id":"customer-7"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var created orderHTTPResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = doJSON(t, router, http.MethodPost, "/orders/"+created.ID+"/items",
		`{"sku":"sku-1","quantity":0,"price_cents":100}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOrderHTTP_DeadLettersAdmin(t *testing.T) {
	gin.SetMode(gin.TestMode)

	store := esMemory.NewEventStoreMemory(zap.NewNop())
	repo := aggApp.NewEventSourcedRepository(
		store, nil, nil,
		func(id string) aggDomain.Root { return orderDomain.NewOrder(id) },
		orderDomain.OrderAggregateType, 0, time.Minute, zap.NewNop(),
	)
	// maxRetries=1: el primer fallo deja el mensaje muerto.
	outbox := outboxMemory.NewOutboxStoreMemory(1, 30*time.Second)
	service := orderApp.NewOrderService(repo, outbox, zap.NewNop())

	router := gin.New()
	orderHttp.RegisterOrderRoutes(router, orderHttp.NewOrderHandler(service, outbox))

	rec := doJSON(t, router, http.MethodPost, "/orders/", `{"customer_id":"customer-7"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	claimed, err := outbox.GetNextBatch(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	require.NoError(t, outbox.MarkAsFailed(context.Background(), claimed[0].ID, "kafka is down"))

	rec = doJSON(t, router, http.MethodGet, "/admin/outbox/dead-letters", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Count       int `json:"count"`
		DeadLetters []struct {
			EventType string `json:"event_type"`
			Error     string `json:"error"`
		} `json:"dead_letters"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Count)
	assert.Equal(t, orderDomain.OrderCreated, resp.DeadLetters[0].EventType)
	assert.Equal(t, "kafka is down", resp.DeadLetters[0].Error)
}
