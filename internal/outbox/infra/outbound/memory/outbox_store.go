package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/davicafu/eventlab/internal/outbox/domain"
	"github.com/google/uuid"
)

// OutboxStoreMemory implementa domain.Store en memoria. La reclamación se
// hace en una única pasada bajo el mutex, así que el lease es exclusivo
// también con varios workers dentro del mismo proceso.
type OutboxStoreMemory struct {
	mu          sync.Mutex
	messages    map[uuid.UUID]*domain.Message
	order       []uuid.UUID // orden de inserción, para reclamar FIFO
	maxRetries  int
	lockTimeout time.Duration

	// inyectable en tests
	now func() time.Time
}

func NewOutboxStoreMemory(maxRetries int, lockTimeout time.Duration) *OutboxStoreMemory {
	return &OutboxStoreMemory{
		messages:    make(map[uuid.UUID]*domain.Message),
		maxRetries:  maxRetries,
		lockTimeout: lockTimeout,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (s *OutboxStoreMemory) Add(_ context.Context, msgs []domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, msg := range msgs {
		m := msg
		m.Status = domain.StatusPending
		if m.CreatedAt.IsZero() {
			m.CreatedAt = s.now()
		}
		s.messages[m.ID] = &m
		s.order = append(s.order, m.ID)
	}
	return nil
}

// GetNextBatch reclama en una sola pasada: no existe ventana entre leer el
// candidato y marcarlo como processing.
func (s *OutboxStoreMemory) GetNextBatch(_ context.Context, limit int) ([]domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	lockedUntil := now.Add(s.lockTimeout)

	var claimed []domain.Message
	for _, id := range s.order {
		if len(claimed) >= limit {
			break
		}
		m := s.messages[id]
		if !claimable(m, now) {
			continue
		}

		m.Status = domain.StatusProcessing
		until := lockedUntil
		m.LockedUntil = &until
		claimed = append(claimed, *m)
	}
	return claimed, nil
}

func claimable(m *domain.Message, now time.Time) bool {
	switch m.Status {
	case domain.StatusPending:
		return true
	case domain.StatusFailed:
		// MarkAsFailed limpia el lease, así que failed es reclamable ya.
		return m.LockedUntil == nil || m.LockedUntil.Before(now)
	case domain.StatusProcessing:
		// Lease vencido: el worker que lo reclamó murió sin resolverlo.
		return m.LockedUntil != nil && m.LockedUntil.Before(now)
	}
	return false
}

func (s *OutboxStoreMemory) MarkAsPublished(_ context.Context, ids []uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for _, id := range ids {
		m, ok := s.messages[id]
		if !ok {
			continue
		}
		m.Status = domain.StatusPublished
		processedAt := now
		m.ProcessedAt = &processedAt
		m.LockedUntil = nil
	}
	return nil
}

func (s *OutboxStoreMemory) MarkAsFailed(_ context.Context, id uuid.UUID, cause string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.messages[id]
	if !ok {
		return &domain.OutboxStoreError{Op: "mark", Err: fmt.Errorf("outbox message not found: %s", id)}
	}

	m.Attempts++
	m.LastError = cause
	m.LockedUntil = nil
	if m.Attempts >= s.maxRetries {
		m.Status = domain.StatusDead
	} else {
		m.Status = domain.StatusFailed
	}
	return nil
}

func (s *OutboxStoreMemory) Cleanup(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	remaining := s.order[:0]
	for _, id := range s.order {
		m := s.messages[id]
		if m.Status == domain.StatusPublished && m.ProcessedAt != nil && m.ProcessedAt.Before(before) {
			delete(s.messages, id)
			deleted++
			continue
		}
		remaining = append(remaining, id)
	}
	s.order = remaining
	return deleted, nil
}

func (s *OutboxStoreMemory) GetDeadLetters(_ context.Context, limit int) ([]domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var dead []domain.Message
	for _, id := range s.order {
		if m := s.messages[id]; m.Status == domain.StatusDead {
			dead = append(dead, *m)
		}
	}

	// El más reciente primero, para inspección del operador.
	sort.Slice(dead, func(i, j int) bool {
		return dead[i].CreatedAt.After(dead[j].CreatedAt)
	})
	if len(dead) > limit {
		dead = dead[:limit]
	}
	return dead, nil
}

// Verificación en tiempo de compilación.
var _ domain.Store = (*OutboxStoreMemory)(nil)
