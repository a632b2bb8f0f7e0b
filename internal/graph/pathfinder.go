package graph

import (
	"github.com/rpattn/homegraph/internal/domain"

	"github.com/google/uuid"
)

// PathFinder answers shortest-path queries over the index with breadth-first
// search. Edges are directed; types reporting Bidirectional (connects_to) are
// traversable both ways by convention — a doorway between two rooms works in
// either direction regardless of which way the row happens to point.
type PathFinder struct {
	index *Index
}

// NewPathFinder creates a path finder reading the given index.
func NewPathFinder(index *Index) *PathFinder {
	return &PathFinder{index: index}
}

// FindPath returns the entity IDs of the shortest path (by edge count) from
// fromID to toID, endpoints included. An empty relTypes slice allows every
// relationship type. When no path exists, or either endpoint is not indexed,
// the result is an empty slice, not an error. Neighbors are expanded in
// relationship-insertion order, so equal-length paths resolve the same way
// given the same store history.
func (p *PathFinder) FindPath(fromID, toID uuid.UUID, relTypes []domain.RelationshipType) []uuid.UUID {
	if _, ok := p.index.Entity(fromID); !ok {
		return []uuid.UUID{}
	}
	if _, ok := p.index.Entity(toID); !ok {
		return []uuid.UUID{}
	}
	if fromID == toID {
		return []uuid.UUID{fromID}
	}

	types := relTypes
	if len(types) == 0 {
		types = allRelationshipTypes
	}

	parent := map[uuid.UUID]uuid.UUID{fromID: fromID}
	queue := []uuid.UUID{fromID}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for _, next := range p.neighbors(current, types) {
			if _, visited := parent[next]; visited {
				continue
			}
			parent[next] = current
			if next == toID {
				return walkBack(parent, fromID, toID)
			}
			queue = append(queue, next)
		}
	}

	return []uuid.UUID{}
}

// neighbors lists the entities reachable one hop from the given entity, in
// relationship-insertion order per type: outgoing edges first, then incoming
// edges of bidirectional types.
func (p *PathFinder) neighbors(entityID uuid.UUID, types []domain.RelationshipType) []uuid.UUID {
	next := []uuid.UUID{}
	for _, relType := range types {
		for _, rel := range p.index.Adjacent(entityID, relType, Outgoing) {
			next = append(next, rel.ToEntityID)
		}
		if relType.Bidirectional() {
			for _, rel := range p.index.Adjacent(entityID, relType, Incoming) {
				next = append(next, rel.FromEntityID)
			}
		}
	}
	return next
}

func walkBack(parent map[uuid.UUID]uuid.UUID, fromID, toID uuid.UUID) []uuid.UUID {
	path := []uuid.UUID{toID}
	for current := toID; current != fromID; {
		current = parent[current]
		path = append(path, current)
	}
	// Reverse into from -> to order.
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

var allRelationshipTypes = []domain.RelationshipType{
	domain.RelationshipLocatedIn,
	domain.RelationshipControls,
	domain.RelationshipConnectsTo,
	domain.RelationshipPartOf,
	domain.RelationshipManages,
	domain.RelationshipDocumentedBy,
	domain.RelationshipProcedureFor,
	domain.RelationshipTriggeredBy,
	domain.RelationshipDependsOn,
}
