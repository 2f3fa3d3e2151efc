package application

import (
	"context"
	"sync"
	"time"

	"github.com/davicafu/eventlab/internal/outbox/domain"
	"github.com/google/uuid"
)

// IdempotentPublisher descarta publicaciones repetidas del mismo mensaje
// dentro de una ventana TTL. Una repetición dentro de la ventana es un no-op
// silencioso; las entradas expiradas se barren periódicamente para acotar
// la memoria.
type IdempotentPublisher struct {
	next domain.Publisher
	ttl  time.Duration

	mu   sync.Mutex
	seen map[uuid.UUID]time.Time

	stopChan chan struct{}
}

func NewIdempotentPublisher(next domain.Publisher, ttl, sweepInterval time.Duration) *IdempotentPublisher {
	p := &IdempotentPublisher{
		next:     next,
		ttl:      ttl,
		seen:     make(map[uuid.UUID]time.Time),
		stopChan: make(chan struct{}),
	}

	go p.sweepLoop(sweepInterval)

	return p
}

// markIfNew registra el id y devuelve true si no estaba dentro de la ventana.
func (p *IdempotentPublisher) markIfNew(id uuid.UUID) bool {
	now := time.Now().UTC()

	p.mu.Lock()
	defer p.mu.Unlock()

	if expiry, ok := p.seen[id]; ok && now.Before(expiry) {
		return false
	}
	p.seen[id] = now.Add(p.ttl)
	return true
}

// forget saca ids de la ventana, para que un fallo no bloquee el reintento.
func (p *IdempotentPublisher) forget(ids []uuid.UUID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, id := range ids {
		delete(p.seen, id)
	}
}

func (p *IdempotentPublisher) Publish(ctx context.Context, msg domain.Message) error {
	if !p.markIfNew(msg.ID) {
		return nil // duplicado dentro del TTL: no-op silencioso
	}
	if err := p.next.Publish(ctx, msg); err != nil {
		p.forget([]uuid.UUID{msg.ID})
		return err
	}
	return nil
}

func (p *IdempotentPublisher) PublishBatch(ctx context.Context, msgs []domain.Message) error {
	fresh := make([]domain.Message, 0, len(msgs))
	freshIDs := make([]uuid.UUID, 0, len(msgs))
	for _, msg := range msgs {
		if p.markIfNew(msg.ID) {
			fresh = append(fresh, msg)
			freshIDs = append(freshIDs, msg.ID)
		}
	}
	if len(fresh) == 0 {
		return nil
	}

	if err := p.next.PublishBatch(ctx, fresh); err != nil {
		p.forget(freshIDs)
		return err
	}
	return nil
}

// Stop detiene la goroutine de barrido.
func (p *IdempotentPublisher) Stop() {
	close(p.stopChan)
}

func (p *IdempotentPublisher) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			now := time.Now().UTC()
			p.mu.Lock()
			for id, expiry := range p.seen {
				if now.After(expiry) {
					delete(p.seen, id)
				}
			}
			p.mu.Unlock()
		case <-p.stopChan:
			return
		}
	}
}

// Verificación estática
var _ domain.Publisher = (*IdempotentPublisher)(nil)
