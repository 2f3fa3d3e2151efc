package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	aggDomain "github.com/davicafu/eventlab/internal/aggregate/domain"
	esDomain "github.com/davicafu/eventlab/internal/eventstore/domain"
	sharedCache "github.com/davicafu/eventlab/internal/shared/infra/platform/cache"
	"go.uber.org/zap"
)

// Factory construye una instancia vacía del agregado para un id dado.
type Factory func(id string) aggDomain.Root

// EventSourcedRepository reconstruye agregados desde el event store,
// acelerado por snapshots y una caché en memoria o Redis. La caché y los
// snapshots son opcionales (nil): ante cualquier duda se vuelve al log.
type EventSourcedRepository struct {
	store         esDomain.EventStore
	snapshots     aggDomain.SnapshotStore
	cache         sharedCache.Cache
	factory       Factory
	aggregateType string

	snapshotFrequency int64 // un snapshot cada N versiones; 0 desactiva
	cacheTTLSecs      int

	log *zap.Logger
}

func NewEventSourcedRepository(
	store esDomain.EventStore,
	snapshots aggDomain.SnapshotStore,
	cache sharedCache.Cache,
	factory Factory,
	aggregateType string,
	snapshotFrequency int64,
	cacheTTL time.Duration,
	log *zap.Logger,
) *EventSourcedRepository {
	return &EventSourcedRepository{
		store:             store,
		snapshots:         snapshots,
		cache:             cache,
		factory:           factory,
		aggregateType:     aggregateType,
		snapshotFrequency: snapshotFrequency,
		cacheTTLSecs:      int(cacheTTL.Seconds()),
		log:               log,
	}
}

// Load reconstruye el agregado: caché → snapshot → replay de eventos.
func (r *EventSourcedRepository) Load(ctx context.Context, id string) (aggDomain.Root, error) {
	key := aggDomain.CacheKey(r.aggregateType, id)

	if r.cache != nil {
		root := r.factory(id)
		hit, err := r.cache.Get(ctx, key, root)
		if err != nil {
			// La caché nunca es autoridad: ante error seguimos con el log.
			r.log.Warn("Cache read failed", zap.String("key", key), zap.Error(err))
		}
		if hit && err == nil {
			return root, nil
		}
	}

	root := r.factory(id)
	var fromVersion int64

	if r.snapshots != nil {
		snap, err := r.snapshots.Load(ctx, r.aggregateType, id)
		switch {
		case err == nil:
			if err := json.Unmarshal(snap.State, root); err != nil {
				return nil, &aggDomain.SnapshotError{Err: err}
			}
			root.SetVersion(snap.Version)
			fromVersion = snap.Version
		case errors.Is(err, aggDomain.ErrSnapshotNotFound):
			// Sin snapshot: replay completo.
		default:
			// El snapshot es rederivable; avisamos y reconstruimos desde cero.
			r.log.Warn("Snapshot load failed, replaying from scratch",
				zap.String("aggregate_id", id), zap.Error(err))
		}
	}

	evts, err := r.store.GetEvents(ctx, id, fromVersion)
	if err != nil {
		return nil, &esDomain.PersistenceError{Op: "load", Err: err}
	}
	if fromVersion == 0 && len(evts) == 0 {
		return nil, aggDomain.ErrAggregateNotFound
	}

	for _, evt := range evts {
		if err := root.Apply(evt); err != nil {
			return nil, fmt.Errorf("replay of %s at version %d: %w", id, evt.Version, err)
		}
		root.SetVersion(evt.Version)
	}

	sharedCache.AsyncCacheSet(ctx, r.cache, key, root, r.cacheTTLSecs, r.log)
	return root, nil
}

// Save persiste los eventos sin confirmar. Si el append falla, los eventos
// se conservan en el agregado para que el llamante pueda reintentar: el
// append es idempotente por versión, así que un reintento que ya aterrizó
// aflora como VersionConflictError.
func (r *EventSourcedRepository) Save(ctx context.Context, root aggDomain.Root) error {
	uncommitted := root.UncommittedEvents()
	if len(uncommitted) == 0 {
		return nil
	}

	if err := r.store.AppendBatch(ctx, uncommitted); err != nil {
		return &esDomain.PersistenceError{Op: "save", Err: err}
	}

	last := uncommitted[len(uncommitted)-1]
	root.SetVersion(last.Version)
	root.ClearUncommittedEvents()

	if r.snapshots != nil && r.snapshotFrequency > 0 && last.Version%r.snapshotFrequency == 0 {
		if err := r.saveSnapshot(ctx, root); err != nil {
			// Nunca fallamos un save por el snapshot: se rederiva del log.
			r.log.Warn("Snapshot save failed",
				zap.String("aggregate_id", root.AggregateID()), zap.Error(err))
		}
	}

	key := aggDomain.CacheKey(r.aggregateType, root.AggregateID())
	sharedCache.AsyncCacheSet(ctx, r.cache, key, root, r.cacheTTLSecs, r.log)
	return nil
}

func (r *EventSourcedRepository) saveSnapshot(ctx context.Context, root aggDomain.Root) error {
	state, err := json.Marshal(root)
	if err != nil {
		return &aggDomain.SnapshotError{Err: err}
	}
	snap := aggDomain.Snapshot{
		AggregateID:   root.AggregateID(),
		AggregateType: r.aggregateType,
		Version:       root.CurrentVersion(),
		State:         state,
		CreatedAt:     time.Now().UTC(),
	}
	if err := r.snapshots.Save(ctx, snap); err != nil {
		return &aggDomain.SnapshotError{Err: err}
	}
	r.log.Debug("📸 Snapshot guardado",
		zap.String("aggregate_id", root.AggregateID()),
		zap.Int64("version", root.CurrentVersion()),
	)
	return nil
}

// Exists comprueba si hay rastro del agregado (caché o eventos).
func (r *EventSourcedRepository) Exists(ctx context.Context, id string) (bool, error) {
	if r.cache != nil {
		root := r.factory(id)
		hit, err := r.cache.Get(ctx, aggDomain.CacheKey(r.aggregateType, id), root)
		if err == nil && hit {
			return true, nil
		}
	}

	evts, err := r.store.GetEvents(ctx, id, 0)
	if err != nil {
		return false, &esDomain.PersistenceError{Op: "exists", Err: err}
	}
	return len(evts) > 0, nil
}

// Delete es un soft-delete: añade el marcador terminal al stream y expulsa
// el id de la caché. La historia del agregado nunca se borra.
func (r *EventSourcedRepository) Delete(ctx context.Context, id string) error {
	root, err := r.Load(ctx, id)
	if err != nil {
		return err
	}

	marker := fmt.Sprintf("%s.deleted", r.aggregateType)
	if err := aggDomain.Record(root, marker, struct{}{}); err != nil {
		return err
	}
	if err := r.Save(ctx, root); err != nil {
		return err
	}

	sharedCache.AsyncCacheDelete(ctx, r.cache, aggDomain.CacheKey(r.aggregateType, id), r.log)
	return nil
}

// Verificación en tiempo de compilación.
var _ aggDomain.Repository = (*EventSourcedRepository)(nil)
