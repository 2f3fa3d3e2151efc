package application

import (
	"context"
	"errors"
	"sync"

	"github.com/davicafu/eventlab/internal/outbox/domain"
)

// FanOutPublisher reenvía cada publicación a N publishers concurrentemente.
// Semántica best-effort: todos los destinos se intentan siempre; el éxito
// exige que todos tengan éxito y los fallos se devuelven agregados.
type FanOutPublisher struct {
	targets []domain.Publisher
}

func NewFanOutPublisher(targets ...domain.Publisher) *FanOutPublisher {
	return &FanOutPublisher{targets: targets}
}

func (p *FanOutPublisher) fanOut(fn func(target domain.Publisher) error) error {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)

	for _, target := range p.targets {
		wg.Add(1)
		go func(t domain.Publisher) {
			defer wg.Done()
			if err := fn(t); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}(target)
	}
	wg.Wait()

	if len(errs) > 0 {
		return &domain.PublishError{Err: errors.Join(errs...)}
	}
	return nil
}

func (p *FanOutPublisher) Publish(ctx context.Context, msg domain.Message) error {
	return p.fanOut(func(t domain.Publisher) error { return t.Publish(ctx, msg) })
}

func (p *FanOutPublisher) PublishBatch(ctx context.Context, msgs []domain.Message) error {
	return p.fanOut(func(t domain.Publisher) error { return t.PublishBatch(ctx, msgs) })
}

// Verificación estática
var _ domain.Publisher = (*FanOutPublisher)(nil)
