package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	aggDomain "github.com/davicafu/eventlab/internal/aggregate/domain"
	snapMemory "github.com/davicafu/eventlab/internal/aggregate/infra/outbound/snapshot/memory"
	esDomain "github.com/davicafu/eventlab/internal/eventstore/domain"
	esMemory "github.com/davicafu/eventlab/internal/eventstore/infra/outbound/memory"
	sharedCache "github.com/davicafu/eventlab/internal/shared/infra/platform/cache"
	"github.com/davicafu/eventlab/tests/mocks"
)

// counter es un agregado mínimo para ejercitar el repositorio.
type counter struct {
	aggDomain.Base
	Count int `json:"count"`
}

func newCounter(id string) *counter {
	c := &counter{}
	c.ID = id
	return c
}

func (c *counter) AggregateType() string { return "counter" }

func (c *counter) Apply(evt esDomain.Event) error {
	switch evt.EventType {
	case "counter.incremented":
		c.Count++
	}
	return nil
}

func (c *counter) Increment() error {
	return aggDomain.Record(c, "counter.incremented", struct{}{})
}

var _ aggDomain.Root = (*counter)(nil)

func counterFactory(id string) aggDomain.Root { return newCounter(id) }

// spyEventStore registra el fromVersion de cada GetEvents.
type spyEventStore struct {
	esDomain.EventStore
	fromVersions []int64
}

func (s *spyEventStore) GetEvents(ctx context.Context, aggregateID string, fromVersion int64) ([]esDomain.Event, error) {
	s.fromVersions = append(s.fromVersions, fromVersion)
	return s.EventStore.GetEvents(ctx, aggregateID, fromVersion)
}

func newRepo(store esDomain.EventStore, snapshots aggDomain.SnapshotStore, cache sharedCache.Cache, freq int64) *EventSourcedRepository {
	return NewEventSourcedRepository(store, snapshots, cache, counterFactory, "counter", freq, time.Minute, zap.NewNop())
}

func TestEventSourcedRepository_SaveYLoad(t *testing.T) {
	// ARRANGE
	store := esMemory.NewEventStoreMemory(zap.NewNop())
	repo := newRepo(store, nil, nil, 0)
	ctx := context.Background()

	c := newCounter("c-1")
	require.NoError(t, c.Increment())
	require.NoError(t, c.Increment())

	// ACT
	require.NoError(t, repo.Save(ctx, c))

	// ASSERT: el save confirma la versión y limpia los eventos pendientes.
	assert.Equal(t, int64(2), c.CurrentVersion())
	assert.Empty(t, c.UncommittedEvents())

	root, err := repo.Load(ctx, "c-1")
	require.NoError(t, err)
	loaded := root.(*counter)
	assert.Equal(t, 2, loaded.Count)
	assert.Equal(t, int64(2), loaded.CurrentVersion())
}

func TestEventSourcedRepository_Load_NoExiste(t *testing.T) {
	store := esMemory.NewEventStoreMemory(zap.NewNop())
	repo := newRepo(store, nil, nil, 0)

	_, err := repo.Load(context.Background(), "fantasma")
	assert.True(t, errors.Is(err, aggDomain.ErrAggregateNotFound))
}

func TestEventSourcedRepository_Save_SinEventosEsNoOp(t *testing.T) {
	store := new(mocks.MockEventStore)
	repo := newRepo(store, nil, nil, 0)

	err := repo.Save(context.Background(), newCounter("c-1"))
	require.NoError(t, err)
	store.AssertNotCalled(t, "AppendBatch", mock.Anything, mock.Anything)
}

func TestEventSourcedRepository_Save_FalloConservaPendientes(t *testing.T) {
	// ARRANGE: el event store rechaza el lote.
	store := new(mocks.MockEventStore)
	store.On("AppendBatch", mock.Anything, mock.Anything).Return(errors.New("disk full"))
	repo := newRepo(store, nil, nil, 0)

	c := newCounter("c-1")
	require.NoError(t, c.Increment())

	// ACT
	err := repo.Save(context.Background(), c)

	// ASSERT: error envuelto como fallo de persistencia y eventos intactos
	// para que el llamante pueda reintentar.
	var pe *esDomain.PersistenceError
	require.True(t, errors.As(err, &pe))
	assert.Len(t, c.UncommittedEvents(), 1)
	assert.Equal(t, int64(0), c.CurrentVersion())
}

func TestEventSourcedRepository_Snapshot_SeGuardaYAceleraElLoad(t *testing.T) {
	// ARRANGE: frecuencia 2 → snapshot al confirmar la versión 2.
	store := &spyEventStore{EventStore: esMemory.NewEventStoreMemory(zap.NewNop())}
	snapshots := snapMemory.NewSnapshotStoreMemory()
	repo := newRepo(store, snapshots, nil, 2)
	ctx := context.Background()

	c := newCounter("c-1")
	require.NoError(t, c.Increment())
	require.NoError(t, c.Increment())
	require.NoError(t, repo.Save(ctx, c))

	snap, err := snapshots.Load(ctx, "counter", "c-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), snap.Version)

	// Un tercer evento, fuera de frecuencia: no reemplaza el snapshot.
	require.NoError(t, c.Increment())
	require.NoError(t, repo.Save(ctx, c))

	snap, err = snapshots.Load(ctx, "counter", "c-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), snap.Version)

	// ACT: carga en frío.
	store.fromVersions = nil
	root, err := repo.Load(ctx, "c-1")
	require.NoError(t, err)

	// ASSERT: el replay arranca en la versión del snapshot, no en cero.
	loaded := root.(*counter)
	assert.Equal(t, 3, loaded.Count)
	assert.Equal(t, int64(3), loaded.CurrentVersion())
	require.Len(t, store.fromVersions, 1)
	assert.Equal(t, int64(2), store.fromVersions[0])
}

func TestEventSourcedRepository_Load_DesdeCache(t *testing.T) {
	// ARRANGE
	store := &spyEventStore{EventStore: esMemory.NewEventStoreMemory(zap.NewNop())}
	cache := mocks.NewDummyCache()
	repo := newRepo(store, nil, cache, 0)
	ctx := context.Background()

	c := newCounter("c-1")
	require.NoError(t, c.Increment())
	require.NoError(t, repo.Save(ctx, c))

	// El set de caché tras el save es asíncrono.
	require.Eventually(t, func() bool { return cache.Len() == 1 }, time.Second, 5*time.Millisecond)

	// ACT
	store.fromVersions = nil
	root, err := repo.Load(ctx, "c-1")
	require.NoError(t, err)

	// ASSERT: hit de caché, sin tocar el event store.
	assert.Equal(t, 1, root.(*counter).Count)
	assert.Empty(t, store.fromVersions)
}

func TestEventSourcedRepository_Exists(t *testing.T) {
	store := esMemory.NewEventStoreMemory(zap.NewNop())
	repo := newRepo(store, nil, nil, 0)
	ctx := context.Background()

	ok, err := repo.Exists(ctx, "c-1")
	require.NoError(t, err)
	assert.False(t, ok)

	c := newCounter("c-1")
	require.NoError(t, c.Increment())
	require.NoError(t, repo.Save(ctx, c))

	ok, err = repo.Exists(ctx, "c-1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEventSourcedRepository_Delete_EsSoftDelete(t *testing.T) {
	store := esMemory.NewEventStoreMemory(zap.NewNop())
	repo := newRepo(store, nil, nil, 0)
	ctx := context.Background()

	c := newCounter("c-1")
	require.NoError(t, c.Increment())
	require.NoError(t, repo.Save(ctx, c))

	// ACT
	require.NoError(t, repo.Delete(ctx, "c-1"))

	// ASSERT: la historia sigue ahí, con el marcador terminal al final.
	evts, err := store.GetEvents(ctx, "c-1", 0)
	require.NoError(t, err)
	require.Len(t, evts, 2)
	assert.Equal(t, "counter.deleted", evts[1].EventType)
	assert.Equal(t, int64(2), evts[1].Version)
}
