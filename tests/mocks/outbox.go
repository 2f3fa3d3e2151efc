package mocks

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/davicafu/eventlab/internal/outbox/domain"
)

// MockOutboxStore simula el store del outbox
type MockOutboxStore struct {
	mock.Mock
}

var _ domain.Store = (*MockOutboxStore)(nil)

func (m *MockOutboxStore) Add(ctx context.Context, msgs []domain.Message) error {
	args := m.Called(ctx, msgs)
	return args.Error(0)
}

func (m *MockOutboxStore) GetNextBatch(ctx context.Context, limit int) ([]domain.Message, error) {
	args := m.Called(ctx, limit)
	return args.Get(0).([]domain.Message), args.Error(1)
}

func (m *MockOutboxStore) MarkAsPublished(ctx context.Context, ids []uuid.UUID) error {
	args := m.Called(ctx, ids)
	return args.Error(0)
}

func (m *MockOutboxStore) MarkAsFailed(ctx context.Context, id uuid.UUID, cause string) error {
	args := m.Called(ctx, id, cause)
	return args.Error(0)
}

func (m *MockOutboxStore) Cleanup(ctx context.Context, before time.Time) (int64, error) {
	args := m.Called(ctx, before)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockOutboxStore) GetDeadLetters(ctx context.Context, limit int) ([]domain.Message, error) {
	args := m.Called(ctx, limit)
	return args.Get(0).([]domain.Message), args.Error(1)
}

// MockPublisher simula un publisher
type MockPublisher struct {
	mock.Mock
}

var _ domain.Publisher = (*MockPublisher)(nil)

func (m *MockPublisher) Publish(ctx context.Context, msg domain.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func (m *MockPublisher) PublishBatch(ctx context.Context, msgs []domain.Message) error {
	args := m.Called(ctx, msgs)
	return args.Error(0)
}
