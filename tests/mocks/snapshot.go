package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/davicafu/eventlab/internal/aggregate/domain"
)

// MockSnapshotStore simula el store de snapshots
type MockSnapshotStore struct {
	mock.Mock
}

var _ domain.SnapshotStore = (*MockSnapshotStore)(nil)

func (m *MockSnapshotStore) Save(ctx context.Context, snap domain.Snapshot) error {
	args := m.Called(ctx, snap)
	return args.Error(0)
}

func (m *MockSnapshotStore) Load(ctx context.Context, aggregateType, aggregateID string) (domain.Snapshot, error) {
	args := m.Called(ctx, aggregateType, aggregateID)
	return args.Get(0).(domain.Snapshot), args.Error(1)
}

func (m *MockSnapshotStore) Delete(ctx context.Context, aggregateType, aggregateID string) error {
	args := m.Called(ctx, aggregateType, aggregateID)
	return args.Error(0)
}
