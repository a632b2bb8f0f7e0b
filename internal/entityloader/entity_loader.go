// Package entityloader batches latest-entity lookups so request handlers that
// resolve many related IDs issue one store query per batch window instead of
// one per ID.
package entityloader

import (
	"context"
	"fmt"
	"time"

	"github.com/rpattn/homegraph/internal/domain"
	"github.com/rpattn/homegraph/internal/repository"

	"github.com/google/uuid"
	"github.com/graph-gophers/dataloader"
)

type EntityLoader struct {
	Loader *dataloader.Loader
}

func NewEntityLoader(entities repository.EntityStore) *EntityLoader {
	batchFn := func(ctx context.Context, keys dataloader.Keys) []*dataloader.Result {
		ids := make([]uuid.UUID, len(keys))
		for i, k := range keys {
			id, err := uuid.Parse(k.String())
			if err != nil {
				return []*dataloader.Result{{Error: fmt.Errorf("invalid UUID: %w", err)}}
			}
			ids[i] = id
		}

		batch, err := entities.GetEntitiesByIDs(ctx, ids)
		if err != nil {
			results := make([]*dataloader.Result, len(keys))
			for i := range results {
				results[i] = &dataloader.Result{Error: err}
			}
			return results
		}

		entityMap := make(map[uuid.UUID]domain.Entity, len(batch))
		for _, e := range batch {
			entityMap[e.ID] = e
		}

		// Results must line up with keys; missing IDs resolve to nil, not an
		// error, matching the store's skip-missing contract.
		results := make([]*dataloader.Result, len(keys))
		for i, id := range ids {
			if e, ok := entityMap[id]; ok {
				results[i] = &dataloader.Result{Data: e}
			} else {
				results[i] = &dataloader.Result{Data: nil}
			}
		}

		return results
	}

	loader := dataloader.NewBatchedLoader(batchFn, dataloader.WithWait(5*time.Millisecond))

	return &EntityLoader{Loader: loader}
}

// Load resolves one entity through the batch window. found is false when the
// ID has no stored version.
func (l *EntityLoader) Load(ctx context.Context, id uuid.UUID) (domain.Entity, bool, error) {
	raw, err := l.Loader.Load(ctx, dataloader.StringKey(id.String()))()
	if err != nil {
		return domain.Entity{}, false, err
	}
	if raw == nil {
		return domain.Entity{}, false, nil
	}
	entity, ok := raw.(domain.Entity)
	if !ok {
		return domain.Entity{}, false, fmt.Errorf("unexpected loader result type %T", raw)
	}
	return entity, true, nil
}

// LoadMany resolves a batch of entities in one store round trip, skipping IDs
// with no stored version.
func (l *EntityLoader) LoadMany(ctx context.Context, ids []uuid.UUID) ([]domain.Entity, error) {
	entities := make([]domain.Entity, 0, len(ids))
	thunks := make([]dataloader.Thunk, len(ids))
	for i, id := range ids {
		thunks[i] = l.Loader.Load(ctx, dataloader.StringKey(id.String()))
	}
	for _, thunk := range thunks {
		raw, err := thunk()
		if err != nil {
			return nil, err
		}
		if raw == nil {
			continue
		}
		if e, ok := raw.(domain.Entity); ok {
			entities = append(entities, e)
		}
	}
	return entities, nil
}
