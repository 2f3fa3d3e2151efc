package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	aggDomain "github.com/davicafu/eventlab/internal/aggregate/domain"
	esDomain "github.com/davicafu/eventlab/internal/eventstore/domain"
)

// flakyRepo falla las primeras failUntil llamadas a Save con el error dado.
type flakyRepo struct {
	err       error
	failUntil int
	calls     int
}

func (r *flakyRepo) Load(context.Context, string) (aggDomain.Root, error) { return nil, r.err }

func (r *flakyRepo) Save(context.Context, aggDomain.Root) error {
	r.calls++
	if r.calls <= r.failUntil {
		return r.err
	}
	return nil
}

func (r *flakyRepo) Exists(context.Context, string) (bool, error) { return false, nil }
func (r *flakyRepo) Delete(context.Context, string) error         { return nil }

var _ aggDomain.Repository = (*flakyRepo)(nil)

func TestRetryRepository_ReintentaFallosTransitorios(t *testing.T) {
	// ARRANGE: dos fallos de persistencia y luego éxito.
	inner := &flakyRepo{
		err:       &esDomain.PersistenceError{Op: "save", Err: errors.New("connection reset")},
		failUntil: 2,
	}
	repo := NewRetryRepository(inner, 3, time.Millisecond)

	// ACT
	err := repo.Save(context.Background(), newCounter("c-1"))

	// ASSERT
	require.NoError(t, err)
	assert.Equal(t, 3, inner.calls)
}

func TestRetryRepository_AgotaIntentos(t *testing.T) {
	inner := &flakyRepo{
		err:       &esDomain.PersistenceError{Op: "save", Err: errors.New("connection reset")},
		failUntil: 10,
	}
	repo := NewRetryRepository(inner, 3, time.Millisecond)

	err := repo.Save(context.Background(), newCounter("c-1"))

	var pe *esDomain.PersistenceError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, 3, inner.calls)
}

func TestRetryRepository_NoReintentaConflictos(t *testing.T) {
	// El conflicto viene envuelto en PersistenceError, como lo devuelve el
	// repositorio tras un append fallido: aún así no debe reintentarse.
	inner := &flakyRepo{
		err: &esDomain.PersistenceError{Op: "save", Err: &esDomain.VersionConflictError{
			AggregateID: "c-1", Expected: 2, Actual: 3,
		}},
		failUntil: 10,
	}
	repo := NewRetryRepository(inner, 3, time.Millisecond)

	err := repo.Save(context.Background(), newCounter("c-1"))

	assert.True(t, errors.Is(err, esDomain.ErrVersionConflict))
	assert.Equal(t, 1, inner.calls)
}

func TestRetryRepository_NoReintentaNotFound(t *testing.T) {
	inner := &flakyRepo{err: aggDomain.ErrAggregateNotFound, failUntil: 10}
	repo := NewRetryRepository(inner, 3, time.Millisecond)

	_, err := repo.Load(context.Background(), "fantasma")

	assert.True(t, errors.Is(err, aggDomain.ErrAggregateNotFound))
}
