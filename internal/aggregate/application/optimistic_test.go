package application

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	esDomain "github.com/davicafu/eventlab/internal/eventstore/domain"
	esMemory "github.com/davicafu/eventlab/internal/eventstore/infra/outbound/memory"
)

func TestOptimisticRepository_DetectaEscritorConcurrente(t *testing.T) {
	// ARRANGE: dos repositorios compiten por el mismo agregado.
	store := esMemory.NewEventStoreMemory(zap.NewNop())
	ctx := context.Background()

	seed := newCounter("c-1")
	require.NoError(t, seed.Increment())
	require.NoError(t, newRepo(store, nil, nil, 0).Save(ctx, seed))

	repoA := NewOptimisticRepository(newRepo(store, nil, nil, 0), store)
	repoB := NewOptimisticRepository(newRepo(store, nil, nil, 0), store)

	rootA, err := repoA.Load(ctx, "c-1")
	require.NoError(t, err)
	rootB, err := repoB.Load(ctx, "c-1")
	require.NoError(t, err)

	// B gana la carrera.
	require.NoError(t, rootB.(*counter).Increment())
	require.NoError(t, repoB.Save(ctx, rootB))

	// ACT: A salva sobre una versión ya obsoleta.
	require.NoError(t, rootA.(*counter).Increment())
	err = repoA.Save(ctx, rootA)

	// ASSERT
	require.Error(t, err)
	assert.True(t, errors.Is(err, esDomain.ErrVersionConflict))

	var conflict *esDomain.VersionConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, int64(1), conflict.Expected)
	assert.Equal(t, int64(2), conflict.Actual)
}

func TestOptimisticRepository_SaveTrasLoadPropio(t *testing.T) {
	store := esMemory.NewEventStoreMemory(zap.NewNop())
	ctx := context.Background()

	repo := NewOptimisticRepository(newRepo(store, nil, nil, 0), store)

	// Aggregate nuevo: sin load previo tampoco hay conflicto que detectar.
	c := newCounter("c-1")
	require.NoError(t, c.Increment())
	require.NoError(t, repo.Save(ctx, c))

	// Load → modificar → save: el caso feliz no dispara el chequeo.
	root, err := repo.Load(ctx, "c-1")
	require.NoError(t, err)
	require.NoError(t, root.(*counter).Increment())
	require.NoError(t, repo.Save(ctx, root))

	evts, err := store.GetEvents(ctx, "c-1", 0)
	require.NoError(t, err)
	assert.Len(t, evts, 2)
}
