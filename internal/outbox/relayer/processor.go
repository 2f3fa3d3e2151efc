package relayer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/davicafu/eventlab/internal/outbox/domain"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Processor drena la tabla outbox hacia el publisher: reclama un lote,
// publica cada mensaje y reconcilia el resultado en el store. Los fallos de
// publicación se registran como transiciones de estado, nunca tumban el
// bucle. Pueden correr varias instancias contra el mismo store: la
// exclusividad la garantiza el lease de GetNextBatch.
type Processor struct {
	store     domain.Store
	publisher domain.Publisher

	interval  time.Duration
	batchSize int
	retention time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
	log    *zap.Logger
}

func NewProcessor(
	store domain.Store,
	publisher domain.Publisher,
	interval time.Duration,
	batchSize int,
	retention time.Duration,
	log *zap.Logger,
) *Processor {
	return &Processor{
		store:     store,
		publisher: publisher,
		interval:  interval,
		batchSize: batchSize,
		retention: retention,
		log:       log,
	}
}

// Start lanza el bucle de polling en segundo plano.
func (p *Processor) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(1)
	go p.run(ctx)
}

// Stop señala la parada y espera a que el bucle termine.
func (p *Processor) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
}

func (p *Processor) run(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	// La limpieza de published corre con mucha menos frecuencia que el drenado.
	cleanupTicker := time.NewTicker(p.interval * 60)
	defer cleanupTicker.Stop()

	p.log.Info("🚀 Outbox processor iniciado",
		zap.Duration("interval", p.interval),
		zap.Int("batch_size", p.batchSize),
	)

	for {
		select {
		case <-ctx.Done():
			p.log.Info("🛑 Outbox processor detenido.")
			return
		case <-ticker.C:
			p.ProcessBatch(ctx)
		case <-cleanupTicker.C:
			p.RunCleanup(ctx)
		}
	}
}

// ProcessBatch reclama y publica un lote. Exportado para poder invocarlo
// directamente en tests y en herramientas de drenado manual.
func (p *Processor) ProcessBatch(ctx context.Context) {
	msgs, err := p.store.GetNextBatch(ctx, p.batchSize)
	if err != nil {
		p.log.Warn("⚠️ Error al reclamar lote del outbox", zap.Error(err))
		return
	}
	if len(msgs) == 0 {
		return
	}
	p.log.Info(fmt.Sprintf("📬 %d mensajes reclamados para publicar", len(msgs)))

	var published []uuid.UUID
	for _, msg := range msgs {
		if err := p.publisher.Publish(ctx, msg); err != nil {
			// El fallo se convierte en estado durable, no en excepción.
			p.log.Warn("⚠️ No se pudo publicar mensaje",
				zap.String("message_id", msg.ID.String()),
				zap.String("event_type", msg.EventType),
				zap.Error(err),
			)
			if markErr := p.store.MarkAsFailed(ctx, msg.ID, err.Error()); markErr != nil {
				p.log.Error("No se pudo registrar el fallo",
					zap.String("message_id", msg.ID.String()),
					zap.Error(markErr),
				)
			}
			continue
		}
		published = append(published, msg.ID)
	}

	if len(published) > 0 {
		if err := p.store.MarkAsPublished(ctx, published); err != nil {
			// El lease vencerá y los mensajes se reclamarán de nuevo; el
			// decorador idempotente absorbe la re-publicación.
			p.log.Warn("⚠️ No se pudo marcar mensajes como publicados", zap.Error(err))
			return
		}
		p.log.Info("✅ Mensajes publicados y marcados", zap.Int("count", len(published)))
	}
}

// RunCleanup borra los published más antiguos que el horizonte de retención.
func (p *Processor) RunCleanup(ctx context.Context) {
	before := time.Now().UTC().Add(-p.retention)
	deleted, err := p.store.Cleanup(ctx, before)
	if err != nil {
		p.log.Warn("⚠️ Cleanup del outbox falló", zap.Error(err))
		return
	}
	if deleted > 0 {
		p.log.Info("🧹 Outbox limpiado", zap.Int64("deleted", deleted))
	}
}
