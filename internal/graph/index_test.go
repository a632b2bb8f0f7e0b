package graph

import (
	"context"
	"testing"
	"time"

	"github.com/rpattn/homegraph/internal/domain"
	"github.com/rpattn/homegraph/internal/repository"
)

func seedEntity(t *testing.T, store *repository.MemoryStore, entityType domain.EntityType, name string) domain.Entity {
	t.Helper()
	e := domain.NewEntity(entityType, map[string]any{"name": name}, "u1", domain.SourceManual)
	if err := store.StoreEntity(context.Background(), e); err != nil {
		t.Fatalf("seed entity %s: %v", name, err)
	}
	return e
}

func seedRelationship(t *testing.T, store *repository.MemoryStore, from, to domain.Entity, relType domain.RelationshipType) domain.Relationship {
	t.Helper()
	rel := domain.NewRelationship(from.ID, to.ID, relType, nil, "u1")
	if err := store.StoreRelationship(context.Background(), rel); err != nil {
		t.Fatalf("seed relationship: %v", err)
	}
	return rel
}

func TestRebuildIndexesLatestOnly(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()

	room := seedEntity(t, store, domain.EntityTypeRoom, "Office")
	lamp := seedEntity(t, store, domain.EntityTypeDevice, "Lamp")
	time.Sleep(2 * time.Millisecond)
	renamed := lamp.WithContent(map[string]any{"name": "Desk Lamp"}, "u1")
	if err := store.StoreEntity(ctx, renamed); err != nil {
		t.Fatalf("store update: %v", err)
	}
	seedRelationship(t, store, lamp, room, domain.RelationshipLocatedIn)

	index := NewIndex()
	if err := index.Rebuild(ctx, store, store); err != nil {
		t.Fatalf("rebuild: %v", err)
	}

	if index.Len() != 2 {
		t.Fatalf("expected 2 indexed entities, got %d", index.Len())
	}
	got, ok := index.Entity(lamp.ID)
	if !ok || got.Version != renamed.Version {
		t.Fatalf("index must hold the latest version, got %+v", got)
	}

	edges := index.Adjacent(lamp.ID, domain.RelationshipLocatedIn, Outgoing)
	if len(edges) != 1 || edges[0].ToEntityID != room.ID {
		t.Fatalf("adjacency wrong: %+v", edges)
	}
	reverse := index.Adjacent(room.ID, domain.RelationshipLocatedIn, Incoming)
	if len(reverse) != 1 || reverse[0].FromEntityID != lamp.ID {
		t.Fatalf("incoming adjacency wrong: %+v", reverse)
	}
}

func TestApplyEntityOnlyMovesForward(t *testing.T) {
	index := NewIndex()

	v1 := domain.NewEntity(domain.EntityTypeDevice, map[string]any{"name": "Lamp"}, "u1", domain.SourceManual)
	time.Sleep(2 * time.Millisecond)
	v2 := v1.WithContent(map[string]any{"name": "Desk Lamp"}, "u1")

	index.ApplyEntity(v2)
	index.ApplyEntity(v1) // late arrival of the older version

	got, ok := index.Entity(v1.ID)
	if !ok {
		t.Fatal("entity missing from index")
	}
	if got.Version != v2.Version {
		t.Fatalf("stale version displaced the latest: %q", got.Version)
	}
}

func TestApplyRelationshipIsIdempotent(t *testing.T) {
	index := NewIndex()

	a := domain.NewEntity(domain.EntityTypeRoom, map[string]any{"name": "A"}, "u1", domain.SourceManual)
	b := domain.NewEntity(domain.EntityTypeRoom, map[string]any{"name": "B"}, "u1", domain.SourceManual)
	index.ApplyEntity(a)
	index.ApplyEntity(b)

	rel := domain.NewRelationship(a.ID, b.ID, domain.RelationshipConnectsTo, nil, "u1")
	index.ApplyRelationship(rel)
	index.ApplyRelationship(rel)

	if edges := index.Adjacent(a.ID, domain.RelationshipConnectsTo, Outgoing); len(edges) != 1 {
		t.Fatalf("re-applied edge duplicated adjacency: %d entries", len(edges))
	}
	if edges := index.Relationships(a.ID); len(edges) != 1 {
		t.Fatalf("expected one touching edge, got %d", len(edges))
	}
}

func TestEntitiesByType(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	seedEntity(t, store, domain.EntityTypeRoom, "Office")
	seedEntity(t, store, domain.EntityTypeDevice, "Lamp")
	seedEntity(t, store, domain.EntityTypeDevice, "Sensor")

	index := NewIndex()
	if err := index.Rebuild(ctx, store, store); err != nil {
		t.Fatalf("rebuild: %v", err)
	}

	if devices := index.EntitiesByType(domain.EntityTypeDevice); len(devices) != 2 {
		t.Fatalf("expected 2 devices, got %d", len(devices))
	}
	if rooms := index.EntitiesByType(domain.EntityTypeRoom); len(rooms) != 1 {
		t.Fatalf("expected 1 room, got %d", len(rooms))
	}
}
