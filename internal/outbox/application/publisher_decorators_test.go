package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/davicafu/eventlab/internal/outbox/domain"
	"github.com/davicafu/eventlab/tests/mocks"
)

func testMessage(t *testing.T) domain.Message {
	t.Helper()
	msg, err := domain.NewMessage(uuid.NewString(), "order.created", map[string]string{"k": "v"}, nil)
	require.NoError(t, err)
	return msg
}

// ---------------- Resilient ----------------

func TestResilientPublisher_ReintentaHastaExito(t *testing.T) {
	// ARRANGE: dos fallos y luego éxito.
	next := new(mocks.MockPublisher)
	next.On("Publish", mock.Anything, mock.Anything).Return(errors.New("broker down")).Twice()
	next.On("Publish", mock.Anything, mock.Anything).Return(nil).Once()

	pub := NewResilientPublisher(next, 3, time.Millisecond)

	// ACT
	err := pub.Publish(context.Background(), testMessage(t))

	// ASSERT
	require.NoError(t, err)
	next.AssertNumberOfCalls(t, "Publish", 3)
}

func TestResilientPublisher_AgotaIntentos(t *testing.T) {
	next := new(mocks.MockPublisher)
	next.On("Publish", mock.Anything, mock.Anything).Return(errors.New("broker down"))

	pub := NewResilientPublisher(next, 3, time.Millisecond)

	err := pub.Publish(context.Background(), testMessage(t))

	var pe *domain.PublishError
	require.True(t, errors.As(err, &pe))
	next.AssertNumberOfCalls(t, "Publish", 3)
}

// ---------------- Idempotent ----------------

func TestIdempotentPublisher_DescartaDuplicados(t *testing.T) {
	next := new(mocks.MockPublisher)
	next.On("Publish", mock.Anything, mock.Anything).Return(nil)

	pub := NewIdempotentPublisher(next, time.Minute, time.Minute)
	defer pub.Stop()

	msg := testMessage(t)

	// ACT: el mismo mensaje dos veces dentro de la ventana.
	require.NoError(t, pub.Publish(context.Background(), msg))
	require.NoError(t, pub.Publish(context.Background(), msg))

	// ASSERT: solo llega una vez al canal real.
	next.AssertNumberOfCalls(t, "Publish", 1)
}

func TestIdempotentPublisher_FalloNoBloqueaElReintento(t *testing.T) {
	next := new(mocks.MockPublisher)
	next.On("Publish", mock.Anything, mock.Anything).Return(errors.New("broker down")).Once()
	next.On("Publish", mock.Anything, mock.Anything).Return(nil).Once()

	pub := NewIdempotentPublisher(next, time.Minute, time.Minute)
	defer pub.Stop()

	msg := testMessage(t)

	// El fallo saca el id de la ventana: el reintento debe pasar.
	require.Error(t, pub.Publish(context.Background(), msg))
	require.NoError(t, pub.Publish(context.Background(), msg))

	next.AssertNumberOfCalls(t, "Publish", 2)
}

func TestIdempotentPublisher_PublishBatch_FiltraSoloVistos(t *testing.T) {
	next := new(mocks.MockPublisher)

	pub := NewIdempotentPublisher(next, time.Minute, time.Minute)
	defer pub.Stop()

	repeated := testMessage(t)
	fresh := testMessage(t)

	next.On("Publish", mock.Anything, mock.Anything).Return(nil).Once()
	require.NoError(t, pub.Publish(context.Background(), repeated))

	// Del lote solo debe pasar el mensaje no visto.
	next.On("PublishBatch", mock.Anything, mock.MatchedBy(func(msgs []domain.Message) bool {
		return len(msgs) == 1 && msgs[0].ID == fresh.ID
	})).Return(nil).Once()

	require.NoError(t, pub.PublishBatch(context.Background(), []domain.Message{repeated, fresh}))
	next.AssertExpectations(t)
}

// ---------------- Batching ----------------

func TestBatchingPublisher_FlushPorTamano(t *testing.T) {
	next := new(mocks.MockPublisher)
	next.On("PublishBatch", mock.Anything, mock.MatchedBy(func(msgs []domain.Message) bool {
		return len(msgs) == 2
	})).Return(nil).Once()

	pub := NewBatchingPublisher(next, 2, time.Hour, zap.NewNop())
	defer pub.Stop()

	require.NoError(t, pub.Publish(context.Background(), testMessage(t)))
	next.AssertNotCalled(t, "PublishBatch", mock.Anything, mock.Anything)

	// El segundo mensaje llena el buffer y dispara el flush.
	require.NoError(t, pub.Publish(context.Background(), testMessage(t)))
	next.AssertExpectations(t)
}

func TestBatchingPublisher_StopVaciaElBuffer(t *testing.T) {
	next := new(mocks.MockPublisher)
	next.On("PublishBatch", mock.Anything, mock.MatchedBy(func(msgs []domain.Message) bool {
		return len(msgs) == 1
	})).Return(nil).Once()

	pub := NewBatchingPublisher(next, 10, time.Hour, zap.NewNop())

	require.NoError(t, pub.Publish(context.Background(), testMessage(t)))

	// ACT: Stop debe entregar lo que quede sin publicar.
	pub.Stop()

	next.AssertExpectations(t)
}

// ---------------- FanOut ----------------

func TestFanOutPublisher_TodosLosDestinos(t *testing.T) {
	a := new(mocks.MockPublisher)
	b := new(mocks.MockPublisher)
	a.On("Publish", mock.Anything, mock.Anything).Return(nil).Once()
	b.On("Publish", mock.Anything, mock.Anything).Return(nil).Once()

	pub := NewFanOutPublisher(a, b)

	require.NoError(t, pub.Publish(context.Background(), testMessage(t)))
	a.AssertExpectations(t)
	b.AssertExpectations(t)
}

func TestFanOutPublisher_BestEffort(t *testing.T) {
	// ARRANGE: un destino falla; el otro debe recibir igualmente.
	bad := new(mocks.MockPublisher)
	good := new(mocks.MockPublisher)
	sentinel := errors.New("kafka is down")
	bad.On("Publish", mock.Anything, mock.Anything).Return(sentinel).Once()
	good.On("Publish", mock.Anything, mock.Anything).Return(nil).Once()

	pub := NewFanOutPublisher(bad, good)

	// ACT
	err := pub.Publish(context.Background(), testMessage(t))

	// ASSERT: el fallo agregado aflora, pero ambos destinos se intentaron.
	var pe *domain.PublishError
	require.True(t, errors.As(err, &pe))
	assert.True(t, errors.Is(err, sentinel))
	bad.AssertExpectations(t)
	good.AssertExpectations(t)
}

// ---------------- Filtered ----------------

func TestFilteredPublisher_DescartaSinError(t *testing.T) {
	next := new(mocks.MockPublisher)

	pub := NewFilteredPublisher(next, func(msg domain.Message) bool {
		return msg.EventType != "order.internal"
	})

	internal := testMessage(t)
	internal.EventType = "order.internal"

	// Un mensaje filtrado cuenta como éxito, sin delegar.
	require.NoError(t, pub.Publish(context.Background(), internal))
	next.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)

	public := testMessage(t)
	next.On("Publish", mock.Anything, mock.Anything).Return(nil).Once()
	require.NoError(t, pub.Publish(context.Background(), public))
	next.AssertExpectations(t)
}

func TestFilteredPublisher_PublishBatch_FiltraElLote(t *testing.T) {
	next := new(mocks.MockPublisher)

	pub := NewFilteredPublisher(next, func(msg domain.Message) bool {
		return msg.EventType == "order.created"
	})

	kept := testMessage(t)
	dropped := testMessage(t)
	dropped.EventType = "order.internal"

	next.On("PublishBatch", mock.Anything, mock.MatchedBy(func(msgs []domain.Message) bool {
		return len(msgs) == 1 && msgs[0].ID == kept.ID
	})).Return(nil).Once()

	require.NoError(t, pub.PublishBatch(context.Background(), []domain.Message{kept, dropped}))
	next.AssertExpectations(t)

	// Lote enteramente filtrado: no-op.
	require.NoError(t, pub.PublishBatch(context.Background(), []domain.Message{dropped}))
	next.AssertNumberOfCalls(t, "PublishBatch", 1)
}
