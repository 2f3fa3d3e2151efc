package application

import (
	"context"
	"sync"

	aggDomain "github.com/davicafu/eventlab/internal/aggregate/domain"
	esDomain "github.com/davicafu/eventlab/internal/eventstore/domain"
)

// OptimisticRepository decora un Repository con bloqueo optimista explícito:
// recuerda la última versión observada por ESTA instancia y, antes de salvar,
// relee el log para detectar escritores concurrentes. Protege contra lost
// updates cuando dos repositorios compiten por el mismo agregado.
type OptimisticRepository struct {
	inner aggDomain.Repository
	store esDomain.EventStore

	mu        sync.Mutex
	lastKnown map[string]int64
}

func NewOptimisticRepository(inner aggDomain.Repository, store esDomain.EventStore) *OptimisticRepository {
	return &OptimisticRepository{
		inner:     inner,
		store:     store,
		lastKnown: make(map[string]int64),
	}
}

func (r *OptimisticRepository) Load(ctx context.Context, id string) (aggDomain.Root, error) {
	root, err := r.inner.Load(ctx, id)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.lastKnown[id] = root.CurrentVersion()
	r.mu.Unlock()

	return root, nil
}

func (r *OptimisticRepository) Save(ctx context.Context, root aggDomain.Root) error {
	id := root.AggregateID()

	r.mu.Lock()
	expected, tracked := r.lastKnown[id]
	r.mu.Unlock()

	if tracked {
		// Releemos solo la cola del stream: cualquier evento posterior a la
		// versión esperada delata a un escritor concurrente.
		newer, err := r.store.GetEvents(ctx, id, expected)
		if err != nil {
			return &esDomain.PersistenceError{Op: "save", Err: err}
		}
		if len(newer) > 0 {
			actual := newer[len(newer)-1].Version
			return &esDomain.VersionConflictError{
				AggregateID: id,
				Expected:    expected,
				Actual:      actual,
			}
		}
	}

	if err := r.inner.Save(ctx, root); err != nil {
		return err
	}

	r.mu.Lock()
	r.lastKnown[id] = root.CurrentVersion()
	r.mu.Unlock()

	return nil
}

func (r *OptimisticRepository) Exists(ctx context.Context, id string) (bool, error) {
	return r.inner.Exists(ctx, id)
}

func (r *OptimisticRepository) Delete(ctx context.Context, id string) error {
	if err := r.inner.Delete(ctx, id); err != nil {
		return err
	}

	r.mu.Lock()
	delete(r.lastKnown, id)
	r.mu.Unlock()

	return nil
}

// Verificación en tiempo de compilación.
var _ aggDomain.Repository = (*OptimisticRepository)(nil)
