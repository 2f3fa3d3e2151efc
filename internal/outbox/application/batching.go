package application

import (
	"context"
	"sync"
	"time"

	"github.com/davicafu/eventlab/internal/outbox/domain"
	"go.uber.org/zap"
)

// BatchingPublisher acumula publicaciones individuales y las vacía hacia
// PublishBatch cuando el buffer llega al tamaño configurado o vence el
// intervalo, lo que ocurra antes.
type BatchingPublisher struct {
	next     domain.Publisher
	size     int
	interval time.Duration
	log      *zap.Logger

	mu     sync.Mutex
	buffer []domain.Message

	stopChan chan struct{}
	wg       sync.WaitGroup
}

func NewBatchingPublisher(next domain.Publisher, size int, interval time.Duration, log *zap.Logger) *BatchingPublisher {
	p := &BatchingPublisher{
		next:     next,
		size:     size,
		interval: interval,
		log:      log,
		stopChan: make(chan struct{}),
	}

	p.wg.Add(1)
	go p.flushLoop()

	return p
}

// Publish añade el mensaje al buffer; si el buffer se llena, fuerza un flush.
func (p *BatchingPublisher) Publish(ctx context.Context, msg domain.Message) error {
	p.mu.Lock()
	p.buffer = append(p.buffer, msg)
	full := len(p.buffer) >= p.size
	p.mu.Unlock()

	if full {
		return p.Flush(ctx)
	}
	return nil
}

// PublishBatch elude el buffer: el lote ya viene formado.
func (p *BatchingPublisher) PublishBatch(ctx context.Context, msgs []domain.Message) error {
	return p.next.PublishBatch(ctx, msgs)
}

// Flush vacía el buffer actual hacia el publisher decorado.
func (p *BatchingPublisher) Flush(ctx context.Context) error {
	p.mu.Lock()
	if len(p.buffer) == 0 {
		p.mu.Unlock()
		return nil
	}
	batch := p.buffer
	p.buffer = nil
	p.mu.Unlock()

	return p.next.PublishBatch(ctx, batch)
}

// Stop detiene el flush periódico y vacía lo que quede en el buffer.
func (p *BatchingPublisher) Stop() {
	close(p.stopChan)
	p.wg.Wait()
}

func (p *BatchingPublisher) flushLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := p.Flush(context.Background()); err != nil {
				p.log.Warn("⚠️ Flush periódico falló", zap.Error(err))
			}
		case <-p.stopChan:
			if err := p.Flush(context.Background()); err != nil {
				p.log.Warn("⚠️ Flush final falló", zap.Error(err))
			}
			return
		}
	}
}

// Verificación estática
var _ domain.Publisher = (*BatchingPublisher)(nil)
