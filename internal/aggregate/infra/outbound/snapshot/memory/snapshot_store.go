package memory

import (
	"context"
	"fmt"
	"sync"

	aggDomain "github.com/davicafu/eventlab/internal/aggregate/domain"
)

// SnapshotStoreMemory guarda snapshots en un mapa. Para tests y desarrollo.
type SnapshotStoreMemory struct {
	mu        sync.Mutex
	snapshots map[string]aggDomain.Snapshot
}

func NewSnapshotStoreMemory() *SnapshotStoreMemory {
	return &SnapshotStoreMemory{snapshots: make(map[string]aggDomain.Snapshot)}
}

func key(aggregateType, aggregateID string) string {
	return fmt.Sprintf("%s-%s", aggregateType, aggregateID)
}

func (s *SnapshotStoreMemory) Save(_ context.Context, snap aggDomain.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[key(snap.AggregateType, snap.AggregateID)] = snap
	return nil
}

func (s *SnapshotStoreMemory) Load(_ context.Context, aggregateType, aggregateID string) (aggDomain.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, ok := s.snapshots[key(aggregateType, aggregateID)]
	if !ok {
		return aggDomain.Snapshot{}, aggDomain.ErrSnapshotNotFound
	}
	return snap, nil
}

func (s *SnapshotStoreMemory) Delete(_ context.Context, aggregateType, aggregateID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snapshots, key(aggregateType, aggregateID))
	return nil
}

// Verificación en tiempo de compilación.
var _ aggDomain.SnapshotStore = (*SnapshotStoreMemory)(nil)
