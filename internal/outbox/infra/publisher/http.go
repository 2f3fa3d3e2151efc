package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/davicafu/eventlab/internal/outbox/domain"
	sharedEvents "github.com/davicafu/eventlab/internal/shared/events"
)

// HTTPPublisher entrega mensajes a un endpoint HTTP.
// Contrato: POST {endpoint} con {event, metadata, timestamp};
// POST {endpoint}/batch con {events, timestamp}. Cualquier respuesta no-2xx
// es un PublishError.
type HTTPPublisher struct {
	endpoint string
	client   *http.Client
	log      *zap.Logger
}

func NewHTTPPublisher(endpoint string, timeout time.Duration, log *zap.Logger) *HTTPPublisher {
	return &HTTPPublisher{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		log:      log,
	}
}

type httpSingleBody struct {
	Event     sharedEvents.IntegrationEvent `json:"event"`
	Metadata  map[string]string             `json:"metadata,omitempty"`
	Timestamp time.Time                     `json:"timestamp"`
}

type httpBatchBody struct {
	Events    []sharedEvents.IntegrationEvent `json:"events"`
	Timestamp time.Time                       `json:"timestamp"`
}

func toIntegrationEvent(msg domain.Message) sharedEvents.IntegrationEvent {
	return sharedEvents.IntegrationEvent{
		ID:        msg.ID.String(),
		Type:      msg.EventType,
		Timestamp: msg.CreatedAt,
		Data:      msg.EventData,
		Metadata:  msg.Metadata,
	}
}

func (p *HTTPPublisher) Publish(ctx context.Context, msg domain.Message) error {
	body := httpSingleBody{
		Event:     toIntegrationEvent(msg),
		Metadata:  msg.Metadata,
		Timestamp: time.Now().UTC(),
	}
	return p.post(ctx, p.endpoint, body)
}

func (p *HTTPPublisher) PublishBatch(ctx context.Context, msgs []domain.Message) error {
	if len(msgs) == 0 {
		return nil
	}

	events := make([]sharedEvents.IntegrationEvent, 0, len(msgs))
	for _, msg := range msgs {
		events = append(events, toIntegrationEvent(msg))
	}
	body := httpBatchBody{Events: events, Timestamp: time.Now().UTC()}
	return p.post(ctx, p.endpoint+"/batch", body)
}

func (p *HTTPPublisher) post(ctx context.Context, url string, body interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return &domain.PublishError{Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return &domain.PublishError{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return &domain.PublishError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		p.log.Warn("⚠️ El endpoint rechazó la publicación",
			zap.String("url", url),
			zap.Int("status", resp.StatusCode),
		)
		return &domain.PublishError{Err: fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)}
	}
	return nil
}

// Verificación estática
var _ domain.Publisher = (*HTTPPublisher)(nil)
