package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/davicafu/eventlab/internal/outbox/domain"
)

func newMessage(t *testing.T) domain.Message {
	t.Helper()
	msg, err := domain.NewMessage(uuid.NewString(), "order.created",
		map[string]string{"customer_id": "customer-7"},
		map[string]string{"aggregate_type": "order"},
	)
	require.NoError(t, err)
	return msg
}

func TestHTTPPublisher_Publish(t *testing.T) {
	// ARRANGE: el servidor captura el cuerpo recibido.
	var got struct {
		Event struct {
			ID   string          `json:"id"`
			Type string          `json:"type"`
			Data json.RawMessage `json:"data"`
		} `json:"event"`
		Metadata map[string]string `json:"metadata"`
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	pub := NewHTTPPublisher(server.URL, 5*time.Second, zap.NewNop())
	msg := newMessage(t)

	// ACT
	err := pub.Publish(context.Background(), msg)

	// ASSERT
	require.NoError(t, err)
	assert.Equal(t, msg.ID.String(), got.Event.ID)
	assert.Equal(t, "order.created", got.Event.Type)
	assert.Equal(t, "order", got.Metadata["aggregate_type"])
	assert.JSONEq(t, string(msg.EventData), string(got.Event.Data))
}

func TestHTTPPublisher_PublishBatch(t *testing.T) {
	var path string
	var got struct {
		Events []json.RawMessage `json:"events"`
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	pub := NewHTTPPublisher(server.URL, 5*time.Second, zap.NewNop())

	err := pub.PublishBatch(context.Background(), []domain.Message{newMessage(t), newMessage(t)})

	require.NoError(t, err)
	assert.Equal(t, "/batch", path)
	assert.Len(t, got.Events, 2)
}

func TestHTTPPublisher_PublishBatch_Vacio(t *testing.T) {
	// Sin mensajes no debe haber tráfico.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("el endpoint no debería recibir peticiones")
	}))
	defer server.Close()

	pub := NewHTTPPublisher(server.URL, 5*time.Second, zap.NewNop())
	assert.NoError(t, pub.PublishBatch(context.Background(), nil))
}

func TestHTTPPublisher_RespuestaNo2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	pub := NewHTTPPublisher(server.URL, 5*time.Second, zap.NewNop())

	err := pub.Publish(context.Background(), newMessage(t))

	var pe *domain.PublishError
	assert.True(t, errors.As(err, &pe))
}

func TestHTTPPublisher_EndpointCaido(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // cerrado a propósito

	pub := NewHTTPPublisher(server.URL, time.Second, zap.NewNop())

	err := pub.Publish(context.Background(), newMessage(t))

	var pe *domain.PublishError
	assert.True(t, errors.As(err, &pe))
}
