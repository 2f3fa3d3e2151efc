package application

import (
	"context"
	"time"

	"github.com/davicafu/eventlab/internal/outbox/domain"
)

// ResilientPublisher decora un Publisher con reintentos y backoff exponencial.
// Solo aflora un PublishError cuando agota todos los intentos.
type ResilientPublisher struct {
	next      domain.Publisher
	attempts  int
	baseDelay time.Duration
}

func NewResilientPublisher(next domain.Publisher, attempts int, baseDelay time.Duration) *ResilientPublisher {
	return &ResilientPublisher{next: next, attempts: attempts, baseDelay: baseDelay}
}

func (p *ResilientPublisher) retry(ctx context.Context, fn func() error) error {
	delay := p.baseDelay
	var err error
	for i := 0; i < p.attempts; i++ {
		err = fn()
		if err == nil {
			return nil
		}

		select {
		case <-time.After(delay):
			delay *= 2 // backoff exponencial
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return &domain.PublishError{Err: err}
}

func (p *ResilientPublisher) Publish(ctx context.Context, msg domain.Message) error {
	return p.retry(ctx, func() error { return p.next.Publish(ctx, msg) })
}

func (p *ResilientPublisher) PublishBatch(ctx context.Context, msgs []domain.Message) error {
	return p.retry(ctx, func() error { return p.next.PublishBatch(ctx, msgs) })
}

// Verificación estática
var _ domain.Publisher = (*ResilientPublisher)(nil)
