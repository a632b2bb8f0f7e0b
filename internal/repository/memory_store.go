package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/rpattn/homegraph/internal/domain"

	"github.com/google/uuid"
)

// MemoryStore is an in-process implementation of Store with the same
// atomicity and idempotence guarantees as the Postgres repositories. It backs
// tests and single-file deployments that do not want a database server.
type MemoryStore struct {
	mu          sync.RWMutex
	entities    map[uuid.UUID]map[string]domain.Entity // id -> version -> row
	entityFeed  []EntityChange                         // insertion order, seq ascending
	rels        map[uuid.UUID]domain.Relationship
	relFeed     []RelationshipChange
	relOrder    []uuid.UUID
	checkpoints map[string]domain.SyncCheckpoint
	conflicts   []domain.ConflictResolution
	entitySeq   int64
	relSeq      int64
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entities:    make(map[uuid.UUID]map[string]domain.Entity),
		rels:        make(map[uuid.UUID]domain.Relationship),
		checkpoints: make(map[string]domain.SyncCheckpoint),
	}
}

func (s *MemoryStore) StoreEntity(ctx context.Context, entity domain.Entity) error {
	if err := entity.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	versions, ok := s.entities[entity.ID]
	if !ok {
		versions = make(map[string]domain.Entity)
		s.entities[entity.ID] = versions
	}
	if _, exists := versions[entity.Version]; exists {
		// Same (id, version) twice is a no-op.
		return nil
	}
	versions[entity.Version] = entity
	s.entitySeq++
	s.entityFeed = append(s.entityFeed, EntityChange{Seq: s.entitySeq, Entity: entity})
	return nil
}

func (s *MemoryStore) GetEntity(ctx context.Context, id uuid.UUID) (domain.Entity, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latestLocked(id)
}

func (s *MemoryStore) latestLocked(id uuid.UUID) (domain.Entity, bool, error) {
	versions, ok := s.entities[id]
	if !ok || len(versions) == 0 {
		return domain.Entity{}, false, nil
	}

	var latest domain.Entity
	first := true
	for _, e := range versions {
		if first || domain.Latest(e, latest) {
			latest = e
			first = false
		}
	}
	return latest, true, nil
}

func (s *MemoryStore) GetEntityVersion(ctx context.Context, id uuid.UUID, version string) (domain.Entity, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	versions, ok := s.entities[id]
	if !ok {
		return domain.Entity{}, false, nil
	}
	e, ok := versions[version]
	return e, ok, nil
}

func (s *MemoryStore) ListVersions(ctx context.Context, id uuid.UUID) ([]domain.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	versions, ok := s.entities[id]
	if !ok {
		return []domain.Entity{}, nil
	}

	history := make([]domain.Entity, 0, len(versions))
	for _, e := range versions {
		history = append(history, e)
	}
	sort.Slice(history, func(i, j int) bool {
		if !history[i].LastModified.Equal(history[j].LastModified) {
			return history[i].LastModified.Before(history[j].LastModified)
		}
		return history[i].Version < history[j].Version
	})
	return history, nil
}

func (s *MemoryStore) GetEntitiesByType(ctx context.Context, entityType domain.EntityType) ([]domain.Entity, error) {
	latest, err := s.ListLatest(ctx)
	if err != nil {
		return nil, err
	}

	filtered := []domain.Entity{}
	for _, e := range latest {
		if e.EntityType == entityType {
			filtered = append(filtered, e)
		}
	}
	return filtered, nil
}

func (s *MemoryStore) GetEntitiesByIDs(ctx context.Context, ids []uuid.UUID) ([]domain.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entities := []domain.Entity{}
	for _, id := range ids {
		if e, ok, _ := s.latestLocked(id); ok {
			entities = append(entities, e)
		}
	}
	return entities, nil
}

func (s *MemoryStore) ListLatest(ctx context.Context) ([]domain.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	latest := make([]domain.Entity, 0, len(s.entities))
	for id := range s.entities {
		if e, ok, _ := s.latestLocked(id); ok {
			latest = append(latest, e)
		}
	}
	sort.Slice(latest, func(i, j int) bool {
		if !latest[i].CreatedAt.Equal(latest[j].CreatedAt) {
			return latest[i].CreatedAt.Before(latest[j].CreatedAt)
		}
		return latest[i].ID.String() < latest[j].ID.String()
	})
	return latest, nil
}

func (s *MemoryStore) HasEntity(ctx context.Context, id uuid.UUID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	versions, ok := s.entities[id]
	return ok && len(versions) > 0, nil
}

func (s *MemoryStore) EntityChangesAfter(ctx context.Context, afterSeq int64) ([]EntityChange, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	changes := []EntityChange{}
	for _, c := range s.entityFeed {
		if c.Seq > afterSeq {
			changes = append(changes, c)
		}
	}
	return changes, nil
}

func (s *MemoryStore) StoreRelationship(ctx context.Context, rel domain.Relationship) error {
	if err := rel.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, endpoint := range []uuid.UUID{rel.FromEntityID, rel.ToEntityID} {
		if versions, ok := s.entities[endpoint]; !ok || len(versions) == 0 {
			return &domain.ReferenceError{EntityID: endpoint.String()}
		}
	}

	if _, exists := s.rels[rel.ID]; exists {
		return nil
	}
	s.rels[rel.ID] = rel
	s.relOrder = append(s.relOrder, rel.ID)
	s.relSeq++
	s.relFeed = append(s.relFeed, RelationshipChange{Seq: s.relSeq, Relationship: rel})
	return nil
}

func (s *MemoryStore) GetRelationships(ctx context.Context, filter RelationshipFilter) ([]domain.Relationship, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := []domain.Relationship{}
	for _, id := range s.relOrder {
		rel := s.rels[id]
		if filter.FromEntityID != nil && rel.FromEntityID != *filter.FromEntityID {
			continue
		}
		if filter.ToEntityID != nil && rel.ToEntityID != *filter.ToEntityID {
			continue
		}
		if filter.Type != nil && rel.RelationshipType != *filter.Type {
			continue
		}
		matched = append(matched, rel)
	}
	return matched, nil
}

func (s *MemoryStore) RelationshipChangesAfter(ctx context.Context, afterSeq int64) ([]RelationshipChange, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	changes := []RelationshipChange{}
	for _, c := range s.relFeed {
		if c.Seq > afterSeq {
			changes = append(changes, c)
		}
	}
	return changes, nil
}

func (s *MemoryStore) GetCheckpoint(ctx context.Context, remoteID string) (domain.SyncCheckpoint, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cp, ok := s.checkpoints[remoteID]
	return cp, ok, nil
}

func (s *MemoryStore) SaveCheckpoint(ctx context.Context, checkpoint domain.SyncCheckpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.checkpoints[checkpoint.RemoteID] = checkpoint
	return nil
}

func (s *MemoryStore) RecordConflict(ctx context.Context, resolution domain.ConflictResolution) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.conflicts = append(s.conflicts, resolution)
	return nil
}

func (s *MemoryStore) ListConflicts(ctx context.Context, entityID *uuid.UUID, limit int) ([]domain.ConflictResolution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 200
	}

	conflicts := []domain.ConflictResolution{}
	for i := len(s.conflicts) - 1; i >= 0 && len(conflicts) < limit; i-- {
		c := s.conflicts[i]
		if entityID != nil && c.EntityID != *entityID {
			continue
		}
		conflicts = append(conflicts, c)
	}
	return conflicts, nil
}

var _ Store = (*MemoryStore)(nil)
