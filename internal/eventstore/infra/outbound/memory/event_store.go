package memory

import (
	"context"
	"sync"
	"time"

	"github.com/davicafu/eventlab/internal/eventstore/domain"
	"go.uber.org/zap"
)

// EventStoreMemory es un event store en memoria, correcto bajo concurrencia
// (chequeo optimista bajo mutex). Pensado para tests y desarrollo local.
type EventStoreMemory struct {
	mu       sync.RWMutex
	streams  map[string][]domain.Event // eventos por agregado, ordenados por versión
	all      []domain.Event            // orden global de append
	handlers []domain.Handler
	log      *zap.Logger
}

func NewEventStoreMemory(log *zap.Logger) *EventStoreMemory {
	return &EventStoreMemory{
		streams: make(map[string][]domain.Event),
		log:     log,
	}
}

func (s *EventStoreMemory) Append(ctx context.Context, evt domain.Event) error {
	s.mu.Lock()
	appended, err := s.appendLocked(evt)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.dispatch(ctx, []domain.Event{appended})
	return nil
}

func (s *EventStoreMemory) AppendBatch(ctx context.Context, evts []domain.Event) error {
	if len(evts) == 0 {
		return nil
	}

	// El lock se mantiene durante todo el lote: o entra entero o no entra.
	s.mu.Lock()
	undoAll := len(s.all)
	undoStreams := make(map[string]int)
	appended := make([]domain.Event, 0, len(evts))
	for _, evt := range evts {
		if _, ok := undoStreams[evt.AggregateID]; !ok {
			undoStreams[evt.AggregateID] = len(s.streams[evt.AggregateID])
		}
		a, err := s.appendLocked(evt)
		if err != nil {
			// Rollback del lote parcial.
			s.all = s.all[:undoAll]
			for id, n := range undoStreams {
				s.streams[id] = s.streams[id][:n]
			}
			s.mu.Unlock()
			return err
		}
		appended = append(appended, a)
	}
	s.mu.Unlock()

	s.dispatch(ctx, appended)
	return nil
}

// appendLocked valida, comprueba la versión contigua y persiste. Requiere s.mu.
func (s *EventStoreMemory) appendLocked(evt domain.Event) (domain.Event, error) {
	if err := evt.Validate(); err != nil {
		return domain.Event{}, err
	}

	stream := s.streams[evt.AggregateID]
	var current int64
	if len(stream) > 0 {
		current = stream[len(stream)-1].Version
	}
	if evt.Version != current+1 {
		return domain.Event{}, &domain.VersionConflictError{
			AggregateID: evt.AggregateID,
			Expected:    current + 1,
			Actual:      evt.Version,
		}
	}

	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = time.Now().UTC()
	}
	evt.Position = int64(len(s.all)) + 1

	s.streams[evt.AggregateID] = append(stream, evt)
	s.all = append(s.all, evt)
	return evt, nil
}

func (s *EventStoreMemory) GetEvents(_ context.Context, aggregateID string, fromVersion int64) ([]domain.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stream := s.streams[aggregateID]
	out := make([]domain.Event, 0, len(stream))
	for _, evt := range stream {
		if evt.Version > fromVersion {
			out = append(out, evt)
		}
	}
	return out, nil
}

func (s *EventStoreMemory) GetAllEvents(_ context.Context, fromPosition int64) ([]domain.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Event, 0, len(s.all))
	for _, evt := range s.all {
		if evt.Position > fromPosition {
			out = append(out, evt)
		}
	}
	return out, nil
}

func (s *EventStoreMemory) Subscribe(h domain.Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers = append(s.handlers, h)
}

// dispatch entrega los eventos ya durables a los suscriptores, en orden de
// append. Los errores de los handlers se registran y no se propagan.
func (s *EventStoreMemory) dispatch(ctx context.Context, evts []domain.Event) {
	s.mu.RLock()
	handlers := make([]domain.Handler, len(s.handlers))
	copy(handlers, s.handlers)
	s.mu.RUnlock()

	for _, evt := range evts {
		for _, h := range handlers {
			if err := h(ctx, evt); err != nil {
				s.log.Warn("⚠️ Subscriber devolvió error",
					zap.String("event_id", evt.ID.String()),
					zap.String("event_type", evt.EventType),
					zap.Error(err),
				)
			}
		}
	}
}

// Verificación en tiempo de compilación.
var _ domain.EventStore = (*EventStoreMemory)(nil)
