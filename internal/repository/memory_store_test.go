package repository

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/rpattn/homegraph/internal/domain"

	"github.com/google/uuid"
)

func TestStoreEntityRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	e := domain.NewEntity(domain.EntityTypeDevice, map[string]any{"name": "Lamp"}, "u1", domain.SourceManual)
	if err := store.StoreEntity(ctx, e); err != nil {
		t.Fatalf("store entity: %v", err)
	}

	got, found, err := store.GetEntity(ctx, e.ID)
	if err != nil {
		t.Fatalf("get entity: %v", err)
	}
	if !found {
		t.Fatal("stored entity not found")
	}
	if !reflect.DeepEqual(got, e) {
		t.Fatalf("round trip changed entity:\nstored %+v\ngot    %+v", e, got)
	}
}

func TestStoreEntityIdempotent(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	e := domain.NewEntity(domain.EntityTypeDevice, map[string]any{"name": "Lamp"}, "u1", domain.SourceManual)
	for i := 0; i < 3; i++ {
		if err := store.StoreEntity(ctx, e); err != nil {
			t.Fatalf("store %d: %v", i, err)
		}
	}

	history, err := store.ListVersions(ctx, e.ID)
	if err != nil {
		t.Fatalf("list versions: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("re-storing the same (id, version) must be a no-op, got %d rows", len(history))
	}

	changes, err := store.EntityChangesAfter(ctx, 0)
	if err != nil {
		t.Fatalf("changes: %v", err)
	}
	if len(changes) != 1 {
		t.Fatalf("duplicate store must not extend the change feed, got %d", len(changes))
	}
}

func TestStoreEntityRejectsInvalid(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	e := domain.NewEntity(domain.EntityTypeDevice, nil, "u1", domain.SourceManual)
	e.EntityType = "spaceship"
	if err := store.StoreEntity(ctx, e); !domain.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if has, _ := store.HasEntity(ctx, e.ID); has {
		t.Fatal("rejected write must not persist")
	}
}

func TestGetEntityReturnsLatest(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	v1 := domain.NewEntity(domain.EntityTypeDevice, map[string]any{"name": "Lamp"}, "u1", domain.SourceManual)
	time.Sleep(2 * time.Millisecond)
	v2 := v1.WithContent(map[string]any{"name": "Desk Lamp"}, "u1")

	// Apply out of order; latest must not depend on arrival order.
	if err := store.StoreEntity(ctx, v2); err != nil {
		t.Fatalf("store v2: %v", err)
	}
	if err := store.StoreEntity(ctx, v1); err != nil {
		t.Fatalf("store v1: %v", err)
	}

	got, found, err := store.GetEntity(ctx, v1.ID)
	if err != nil || !found {
		t.Fatalf("get entity: found=%v err=%v", found, err)
	}
	if got.Version != v2.Version {
		t.Fatalf("expected latest %q, got %q", v2.Version, got.Version)
	}

	history, err := store.ListVersions(ctx, v1.ID)
	if err != nil {
		t.Fatalf("list versions: %v", err)
	}
	if len(history) != 2 || history[0].Version != v1.Version || history[1].Version != v2.Version {
		t.Fatalf("history out of order: %v", versionsOf(history))
	}
}

func TestGetEntityMissingIsNotAnError(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	_, found, err := store.GetEntity(ctx, uuid.New())
	if err != nil {
		t.Fatalf("missing entity must not error: %v", err)
	}
	if found {
		t.Fatal("missing entity reported found")
	}
}

func TestEntityChangesAfterCursor(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	first := domain.NewEntity(domain.EntityTypeRoom, map[string]any{"name": "Kitchen"}, "u1", domain.SourceManual)
	second := domain.NewEntity(domain.EntityTypeRoom, map[string]any{"name": "Hall"}, "u1", domain.SourceManual)
	if err := store.StoreEntity(ctx, first); err != nil {
		t.Fatalf("store first: %v", err)
	}
	if err := store.StoreEntity(ctx, second); err != nil {
		t.Fatalf("store second: %v", err)
	}

	all, err := store.EntityChangesAfter(ctx, 0)
	if err != nil {
		t.Fatalf("changes after 0: %v", err)
	}
	if len(all) != 2 || all[0].Seq >= all[1].Seq {
		t.Fatalf("expected two ascending changes, got %+v", all)
	}
	if all[0].Entity.ID != first.ID || all[1].Entity.ID != second.ID {
		t.Fatal("feed must preserve write order")
	}

	tail, err := store.EntityChangesAfter(ctx, all[0].Seq)
	if err != nil {
		t.Fatalf("changes after %d: %v", all[0].Seq, err)
	}
	if len(tail) != 1 || tail[0].Entity.ID != second.ID {
		t.Fatalf("cursor must skip already-seen changes, got %+v", tail)
	}
}

func TestStoreRelationshipChecksEndpoints(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	from := domain.NewEntity(domain.EntityTypeDevice, map[string]any{"name": "Lamp"}, "u1", domain.SourceManual)
	if err := store.StoreEntity(ctx, from); err != nil {
		t.Fatalf("store entity: %v", err)
	}

	rel := domain.NewRelationship(from.ID, uuid.New(), domain.RelationshipLocatedIn, nil, "u1")
	if err := store.StoreRelationship(ctx, rel); !domain.IsReference(err) {
		t.Fatalf("expected reference error for unknown endpoint, got %v", err)
	}

	to := domain.NewEntity(domain.EntityTypeRoom, map[string]any{"name": "Office"}, "u1", domain.SourceManual)
	if err := store.StoreEntity(ctx, to); err != nil {
		t.Fatalf("store entity: %v", err)
	}

	rel = domain.NewRelationship(from.ID, to.ID, domain.RelationshipLocatedIn, nil, "u1")
	if err := store.StoreRelationship(ctx, rel); err != nil {
		t.Fatalf("store relationship: %v", err)
	}
	// Idempotent by ID.
	if err := store.StoreRelationship(ctx, rel); err != nil {
		t.Fatalf("re-store relationship: %v", err)
	}

	rels, err := store.GetRelationships(ctx, RelationshipFilter{FromEntityID: &from.ID})
	if err != nil {
		t.Fatalf("get relationships: %v", err)
	}
	if len(rels) != 1 || rels[0].ID != rel.ID {
		t.Fatalf("expected one relationship, got %+v", rels)
	}

	feed, err := store.RelationshipChangesAfter(ctx, 0)
	if err != nil {
		t.Fatalf("relationship changes: %v", err)
	}
	if len(feed) != 1 {
		t.Fatalf("expected one feed row, got %d", len(feed))
	}
}

func TestGetRelationshipsFilters(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	room := domain.NewEntity(domain.EntityTypeRoom, map[string]any{"name": "Office"}, "u1", domain.SourceManual)
	lamp := domain.NewEntity(domain.EntityTypeDevice, map[string]any{"name": "Lamp"}, "u1", domain.SourceManual)
	sensor := domain.NewEntity(domain.EntityTypeDevice, map[string]any{"name": "Sensor"}, "u1", domain.SourceManual)
	for _, e := range []domain.Entity{room, lamp, sensor} {
		if err := store.StoreEntity(ctx, e); err != nil {
			t.Fatalf("store entity: %v", err)
		}
	}

	located := domain.NewRelationship(lamp.ID, room.ID, domain.RelationshipLocatedIn, nil, "u1")
	controls := domain.NewRelationship(sensor.ID, lamp.ID, domain.RelationshipControls, nil, "u1")
	for _, rel := range []domain.Relationship{located, controls} {
		if err := store.StoreRelationship(ctx, rel); err != nil {
			t.Fatalf("store relationship: %v", err)
		}
	}

	locatedType := domain.RelationshipLocatedIn
	byType, err := store.GetRelationships(ctx, RelationshipFilter{Type: &locatedType})
	if err != nil {
		t.Fatalf("filter by type: %v", err)
	}
	if len(byType) != 1 || byType[0].ID != located.ID {
		t.Fatalf("type filter wrong: %+v", byType)
	}

	byTarget, err := store.GetRelationships(ctx, RelationshipFilter{ToEntityID: &lamp.ID})
	if err != nil {
		t.Fatalf("filter by target: %v", err)
	}
	if len(byTarget) != 1 || byTarget[0].ID != controls.ID {
		t.Fatalf("target filter wrong: %+v", byTarget)
	}
}

func TestCheckpointRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	if _, found, err := store.GetCheckpoint(ctx, "replica-b"); err != nil || found {
		t.Fatalf("fresh store: found=%v err=%v", found, err)
	}

	cp := domain.SyncCheckpoint{
		RemoteID:                "replica-b",
		SentEntitySeq:           4,
		SentRelationshipSeq:     2,
		ReceivedEntitySeq:       7,
		ReceivedRelationshipSeq: 1,
		UpdatedAt:               time.Now().UTC(),
	}
	if err := store.SaveCheckpoint(ctx, cp); err != nil {
		t.Fatalf("save checkpoint: %v", err)
	}

	got, found, err := store.GetCheckpoint(ctx, "replica-b")
	if err != nil || !found {
		t.Fatalf("get checkpoint: found=%v err=%v", found, err)
	}
	if got != cp {
		t.Fatalf("checkpoint changed: %+v vs %+v", got, cp)
	}
}

func TestConflictAuditLog(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	entityID := uuid.New()
	for i := 0; i < 3; i++ {
		res := domain.ConflictResolution{
			ID:         uuid.New(),
			EntityID:   entityID,
			VersionA:   "a",
			VersionB:   "b",
			Winner:     "b",
			DetectedAt: time.Now().UTC(),
		}
		if err := store.RecordConflict(ctx, res); err != nil {
			t.Fatalf("record conflict: %v", err)
		}
	}
	other := domain.ConflictResolution{ID: uuid.New(), EntityID: uuid.New(), VersionA: "x", VersionB: "y", Winner: "y", DetectedAt: time.Now().UTC()}
	if err := store.RecordConflict(ctx, other); err != nil {
		t.Fatalf("record conflict: %v", err)
	}

	all, err := store.ListConflicts(ctx, nil, 0)
	if err != nil {
		t.Fatalf("list conflicts: %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("expected 4 conflicts, got %d", len(all))
	}

	scoped, err := store.ListConflicts(ctx, &entityID, 2)
	if err != nil {
		t.Fatalf("list scoped: %v", err)
	}
	if len(scoped) != 2 {
		t.Fatalf("limit not applied, got %d", len(scoped))
	}
	for _, c := range scoped {
		if c.EntityID != entityID {
			t.Fatalf("scope filter leaked %v", c.EntityID)
		}
	}
}

func versionsOf(entities []domain.Entity) []string {
	versions := make([]string, len(entities))
	for i, e := range entities {
		versions[i] = e.Version
	}
	return versions
}
