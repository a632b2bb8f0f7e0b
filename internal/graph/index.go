// Package graph holds the in-memory, latest-version-only view of the
// knowledge graph: the index plus the path finder and search engine that read
// it. One index instance is owned per process and handed to collaborators by
// reference; it is never package-global.
package graph

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rpattn/homegraph/internal/domain"
	"github.com/rpattn/homegraph/internal/repository"

	"github.com/google/uuid"
)

// Direction selects which end of an edge an adjacency lookup starts from.
type Direction int

const (
	Outgoing Direction = iota
	Incoming
)

type adjacencyKey struct {
	entityID uuid.UUID
	relType  domain.RelationshipType
	dir      Direction
}

// Index mirrors the store for O(1) entity lookup and O(1) adjacency lookup
// keyed by (entity_id, relationship_type, direction). Only the latest version
// of each entity ID is held; older versions stay queryable through the store.
// All mutation goes through the single mutex, so an incremental update never
// interleaves with a rebuild and readers always observe a complete snapshot.
type Index struct {
	mu        sync.RWMutex
	entities  map[uuid.UUID]domain.Entity
	rels      map[uuid.UUID]domain.Relationship
	adjacency map[adjacencyKey][]uuid.UUID // relationship IDs in insertion order
}

// NewIndex creates an empty index.
func NewIndex() *Index {
	idx := &Index{}
	idx.reset()
	return idx
}

func (ix *Index) reset() {
	ix.entities = make(map[uuid.UUID]domain.Entity)
	ix.rels = make(map[uuid.UUID]domain.Relationship)
	ix.adjacency = make(map[adjacencyKey][]uuid.UUID)
}

// Rebuild replaces the index contents with a full scan of the store. The new
// maps are built off-lock and swapped in atomically, so readers either see
// the old complete snapshot or the new one, never a partial state.
func (ix *Index) Rebuild(ctx context.Context, entities repository.EntityStore, rels repository.RelationshipStore) error {
	latest, err := entities.ListLatest(ctx)
	if err != nil {
		return fmt.Errorf("failed to scan entities for index rebuild: %w", err)
	}
	edges, err := rels.GetRelationships(ctx, repository.RelationshipFilter{})
	if err != nil {
		return fmt.Errorf("failed to scan relationships for index rebuild: %w", err)
	}

	entityMap := make(map[uuid.UUID]domain.Entity, len(latest))
	for _, e := range latest {
		entityMap[e.ID] = e
	}
	relMap := make(map[uuid.UUID]domain.Relationship, len(edges))
	adjacency := make(map[adjacencyKey][]uuid.UUID)
	for _, rel := range edges {
		relMap[rel.ID] = rel
		appendAdjacency(adjacency, rel)
	}

	ix.mu.Lock()
	ix.entities = entityMap
	ix.rels = relMap
	ix.adjacency = adjacency
	ix.mu.Unlock()

	return nil
}

func appendAdjacency(adjacency map[adjacencyKey][]uuid.UUID, rel domain.Relationship) {
	out := adjacencyKey{entityID: rel.FromEntityID, relType: rel.RelationshipType, dir: Outgoing}
	in := adjacencyKey{entityID: rel.ToEntityID, relType: rel.RelationshipType, dir: Incoming}
	adjacency[out] = append(adjacency[out], rel.ID)
	adjacency[in] = append(adjacency[in], rel.ID)
}

// ApplyEntity folds one freshly stored version into the index. The index only
// moves forward: an older version arriving late (out-of-order sync delivery)
// does not displace a newer one.
func (ix *Index) ApplyEntity(entity domain.Entity) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	current, ok := ix.entities[entity.ID]
	if ok && !domain.Latest(entity, current) {
		return
	}
	ix.entities[entity.ID] = entity
}

// ApplyRelationship folds one freshly stored edge into the index. Re-applying
// a known edge is a no-op so adjacency lists never hold duplicates.
func (ix *Index) ApplyRelationship(rel domain.Relationship) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if _, exists := ix.rels[rel.ID]; exists {
		return
	}
	ix.rels[rel.ID] = rel
	appendAdjacency(ix.adjacency, rel)
}

// Entity returns the latest version of the given ID, if indexed.
func (ix *Index) Entity(id uuid.UUID) (domain.Entity, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	e, ok := ix.entities[id]
	return e, ok
}

// EntitiesByType returns the latest versions of all entities of the type, in
// unspecified order.
func (ix *Index) EntitiesByType(entityType domain.EntityType) []domain.Entity {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	matched := []domain.Entity{}
	for _, e := range ix.entities {
		if e.EntityType == entityType {
			matched = append(matched, e)
		}
	}
	return matched
}

// Entities returns a snapshot of every indexed entity.
func (ix *Index) Entities() []domain.Entity {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	all := make([]domain.Entity, 0, len(ix.entities))
	for _, e := range ix.entities {
		all = append(all, e)
	}
	return all
}

// Adjacent returns the edges of the given type leaving (Outgoing) or entering
// (Incoming) the entity, in relationship-insertion order.
func (ix *Index) Adjacent(entityID uuid.UUID, relType domain.RelationshipType, dir Direction) []domain.Relationship {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	ids := ix.adjacency[adjacencyKey{entityID: entityID, relType: relType, dir: dir}]
	edges := make([]domain.Relationship, 0, len(ids))
	for _, id := range ids {
		edges = append(edges, ix.rels[id])
	}
	return edges
}

// Relationships returns every edge touching the entity in either direction,
// across all types, in insertion order.
func (ix *Index) Relationships(entityID uuid.UUID) []domain.Relationship {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	seen := make(map[uuid.UUID]struct{})
	edges := []domain.Relationship{}
	for _, rel := range ix.relsInOrderLocked() {
		if !rel.Touches(entityID) {
			continue
		}
		if _, dup := seen[rel.ID]; dup {
			continue
		}
		seen[rel.ID] = struct{}{}
		edges = append(edges, rel)
	}
	return edges
}

// relsInOrderLocked lists every edge sorted by (created_at, id). Callers must
// hold at least the read lock.
func (ix *Index) relsInOrderLocked() []domain.Relationship {
	edges := make([]domain.Relationship, 0, len(ix.rels))
	for _, rel := range ix.rels {
		edges = append(edges, rel)
	}
	sort.Slice(edges, func(i, j int) bool { return relBefore(edges[i], edges[j]) })
	return edges
}

// Len returns the number of indexed entities.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.entities)
}

func relBefore(a, b domain.Relationship) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID.String() < b.ID.String()
}
