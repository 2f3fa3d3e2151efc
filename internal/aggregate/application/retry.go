package application

import (
	"context"
	"errors"
	"time"

	aggDomain "github.com/davicafu/eventlab/internal/aggregate/domain"
	esDomain "github.com/davicafu/eventlab/internal/eventstore/domain"
)

// RetryRepository decora un Repository con reintentos y backoff exponencial.
// Solo reintenta PersistenceError (presumido transitorio): los conflictos de
// versión y los not-found son señales de negocio/concurrencia que el llamante
// debe resolver recargando, nunca reintentando a ciegas.
type RetryRepository struct {
	inner     aggDomain.Repository
	attempts  int
	baseDelay time.Duration
}

func NewRetryRepository(inner aggDomain.Repository, attempts int, baseDelay time.Duration) *RetryRepository {
	return &RetryRepository{inner: inner, attempts: attempts, baseDelay: baseDelay}
}

func (r *RetryRepository) retry(ctx context.Context, fn func() error) error {
	delay := r.baseDelay
	var err error
	for i := 0; i < r.attempts; i++ {
		err = fn()
		if err == nil {
			return nil
		}
		if !isTransient(err) {
			return err
		}

		select {
		case <-time.After(delay):
			delay *= 2 // backoff exponencial
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

// isTransient decide si merece la pena reintentar. El orden importa: un
// VersionConflictError puede venir envuelto en un PersistenceError de save.
func isTransient(err error) bool {
	if errors.Is(err, esDomain.ErrVersionConflict) ||
		errors.Is(err, esDomain.ErrValidation) ||
		errors.Is(err, aggDomain.ErrAggregateNotFound) {
		return false
	}
	var pe *esDomain.PersistenceError
	return errors.As(err, &pe)
}

func (r *RetryRepository) Load(ctx context.Context, id string) (aggDomain.Root, error) {
	var root aggDomain.Root
	err := r.retry(ctx, func() error {
		var err error
		root, err = r.inner.Load(ctx, id)
		return err
	})
	return root, err
}

func (r *RetryRepository) Save(ctx context.Context, root aggDomain.Root) error {
	return r.retry(ctx, func() error {
		return r.inner.Save(ctx, root)
	})
}

func (r *RetryRepository) Exists(ctx context.Context, id string) (bool, error) {
	var ok bool
	err := r.retry(ctx, func() error {
		var err error
		ok, err = r.inner.Exists(ctx, id)
		return err
	})
	return ok, err
}

func (r *RetryRepository) Delete(ctx context.Context, id string) error {
	return r.retry(ctx, func() error {
		return r.inner.Delete(ctx, id)
	})
}

// Verificación en tiempo de compilación.
var _ aggDomain.Repository = (*RetryRepository)(nil)
