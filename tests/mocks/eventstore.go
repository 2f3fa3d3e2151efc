package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/davicafu/eventlab/internal/eventstore/domain"
)

// MockEventStore simula el event store
type MockEventStore struct {
	mock.Mock
}

var _ domain.EventStore = (*MockEventStore)(nil)

func (m *MockEventStore) Append(ctx context.Context, evt domain.Event) error {
	args := m.Called(ctx, evt)
	return args.Error(0)
}

func (m *MockEventStore) AppendBatch(ctx context.Context, evts []domain.Event) error {
	args := m.Called(ctx, evts)
	return args.Error(0)
}

func (m *MockEventStore) GetEvents(ctx context.Context, aggregateID string, fromVersion int64) ([]domain.Event, error) {
	args := m.Called(ctx, aggregateID, fromVersion)
	return args.Get(0).([]domain.Event), args.Error(1)
}

func (m *MockEventStore) GetAllEvents(ctx context.Context, fromPosition int64) ([]domain.Event, error) {
	args := m.Called(ctx, fromPosition)
	return args.Get(0).([]domain.Event), args.Error(1)
}

func (m *MockEventStore) Subscribe(h domain.Handler) {
	m.Called(h)
}
