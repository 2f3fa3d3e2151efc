package application

import (
	"context"

	"github.com/davicafu/eventlab/internal/outbox/domain"
)

// Predicate decide si un mensaje debe publicarse.
type Predicate func(msg domain.Message) bool

// FilteredPublisher descarta los mensajes que no cumplen el predicado antes
// de delegar. Un mensaje filtrado cuenta como publicado con éxito.
type FilteredPublisher struct {
	next      domain.Publisher
	predicate Predicate
}

func NewFilteredPublisher(next domain.Publisher, predicate Predicate) *FilteredPublisher {
	return &FilteredPublisher{next: next, predicate: predicate}
}

func (p *FilteredPublisher) Publish(ctx context.Context, msg domain.Message) error {
	if !p.predicate(msg) {
		return nil
	}
	return p.next.Publish(ctx, msg)
}

func (p *FilteredPublisher) PublishBatch(ctx context.Context, msgs []domain.Message) error {
	kept := make([]domain.Message, 0, len(msgs))
	for _, msg := range msgs {
		if p.predicate(msg) {
			kept = append(kept, msg)
		}
	}
	if len(kept) == 0 {
		return nil
	}
	return p.next.PublishBatch(ctx, kept)
}

// Verificación estática
var _ domain.Publisher = (*FilteredPublisher)(nil)
