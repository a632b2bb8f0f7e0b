package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/rpattn/homegraph/internal/domain"
	"github.com/rpattn/homegraph/internal/graph"
	"github.com/rpattn/homegraph/internal/knowledge"
	"github.com/rpattn/homegraph/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type fixture struct {
	service   *Service
	knowledge *knowledge.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := repository.NewMemoryStore()
	index := graph.NewIndex()
	kn := knowledge.NewService(store, store, index, zap.NewNop())
	return &fixture{service: NewService(kn, zap.NewNop()), knowledge: kn}
}

func (f *fixture) entity(t *testing.T, entityType domain.EntityType, name string) domain.Entity {
	t.Helper()
	e, err := f.knowledge.CreateEntity(context.Background(), entityType, map[string]any{"name": name}, "u1", domain.SourceManual)
	if err != nil {
		t.Fatalf("create %s: %v", name, err)
	}
	return e
}

func (f *fixture) relate(t *testing.T, from, to domain.Entity, relType domain.RelationshipType) {
	t.Helper()
	if _, err := f.knowledge.CreateRelationship(context.Background(), from.ID, to.ID, relType, nil, "u1"); err != nil {
		t.Fatalf("relate: %v", err)
	}
}

func TestGetDevicesInRoom(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	living := f.entity(t, domain.EntityTypeRoom, "Living Room")
	lamp := f.entity(t, domain.EntityTypeDevice, "Lamp")
	f.relate(t, lamp, living, domain.RelationshipLocatedIn)
	// A note in the same room must not count as a device.
	note := f.entity(t, domain.EntityTypeNote, "Shopping list")
	f.relate(t, note, living, domain.RelationshipLocatedIn)

	room, devices, err := f.service.GetDevicesInRoom(ctx, "living room")
	if err != nil {
		t.Fatalf("get devices: %v", err)
	}
	if room.ID != living.ID {
		t.Fatalf("resolved wrong room: %v", room.Name())
	}
	if len(devices) != 1 || devices[0].ID != lamp.ID {
		t.Fatalf("expected only the lamp, got %+v", devices)
	}

	if _, _, err := f.service.GetDevicesInRoom(ctx, "Attic"); !domain.IsNotFound(err) {
		t.Fatalf("unknown room must be not-found, got %v", err)
	}
}

func TestFindDeviceControls(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	dimmer := f.entity(t, domain.EntityTypeDevice, "Dimmer")
	lamp := f.entity(t, domain.EntityTypeDevice, "Lamp")
	f.relate(t, dimmer, lamp, domain.RelationshipControls)

	device, controls, err := f.service.FindDeviceControls(ctx, "Dimmer")
	if err != nil {
		t.Fatalf("find controls: %v", err)
	}
	if device.ID != dimmer.ID || len(controls) != 1 || controls[0].ID != lamp.ID {
		t.Fatalf("wrong controls: %+v", controls)
	}
}

func TestGetRoomConnectionsEitherDirection(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	hall := f.entity(t, domain.EntityTypeRoom, "Hall")
	kitchen := f.entity(t, domain.EntityTypeRoom, "Kitchen")
	office := f.entity(t, domain.EntityTypeRoom, "Office")
	f.relate(t, hall, kitchen, domain.RelationshipConnectsTo)
	f.relate(t, office, hall, domain.RelationshipConnectsTo)

	_, connections, err := f.service.GetRoomConnections(ctx, "Hall")
	if err != nil {
		t.Fatalf("get connections: %v", err)
	}
	if len(connections) != 2 {
		t.Fatalf("expected 2 connections, got %d", len(connections))
	}
	got := map[uuid.UUID]bool{}
	for _, c := range connections {
		got[c.Connected.ID] = true
	}
	if !got[kitchen.ID] || !got[office.ID] {
		t.Fatalf("connections must cover both edge directions: %+v", connections)
	}
}

func TestFindPathResolvesEntities(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	hall := f.entity(t, domain.EntityTypeRoom, "Hall")
	kitchen := f.entity(t, domain.EntityTypeRoom, "Kitchen")
	f.relate(t, hall, kitchen, domain.RelationshipConnectsTo)

	path, err := f.service.FindPath(ctx, hall.ID, kitchen.ID, nil)
	if err != nil {
		t.Fatalf("find path: %v", err)
	}
	if len(path) != 2 || path[0].ID != hall.ID || path[1].ID != kitchen.ID {
		t.Fatalf("unexpected path: %+v", path)
	}

	_, err = f.service.FindPath(ctx, hall.ID, kitchen.ID, []domain.RelationshipType{"teleports_to"})
	if !domain.IsValidation(err) {
		t.Fatalf("unknown relationship type must be rejected, got %v", err)
	}
}

func TestSearchEntitiesLimitAndTypeChecks(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.entity(t, domain.EntityTypeDevice, "Ceiling Light")
	f.entity(t, domain.EntityTypeDevice, "Night Light")
	f.entity(t, domain.EntityTypeDevice, "Reading Light")

	results, err := f.service.SearchEntities(ctx, "light", nil, 2)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("limit not applied, got %d", len(results))
	}

	if _, err := f.service.SearchEntities(ctx, "light", []domain.EntityType{"spaceship"}, 0); !domain.IsValidation(err) {
		t.Fatalf("unknown entity type must be rejected, got %v", err)
	}
}

func TestGetEntityDetails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	lamp := f.entity(t, domain.EntityTypeDevice, "Lamp")
	office := f.entity(t, domain.EntityTypeRoom, "Office")
	dimmer := f.entity(t, domain.EntityTypeDevice, "Dimmer")
	f.relate(t, lamp, office, domain.RelationshipLocatedIn)
	f.relate(t, dimmer, lamp, domain.RelationshipControls)

	details, err := f.service.GetEntityDetails(ctx, lamp.ID)
	if err != nil {
		t.Fatalf("details: %v", err)
	}
	if details.Entity.ID != lamp.ID {
		t.Fatalf("wrong entity: %+v", details.Entity)
	}
	if len(details.Relationships) != 2 {
		t.Fatalf("expected 2 edges, got %d", len(details.Relationships))
	}
	if len(details.Neighbors) != 2 {
		t.Fatalf("expected 2 neighbors, got %d", len(details.Neighbors))
	}
	for _, n := range details.Neighbors {
		if n.ID == lamp.ID {
			t.Fatal("entity must not be its own neighbor")
		}
	}

	if _, err := f.service.GetEntityDetails(ctx, uuid.New()); !domain.IsNotFound(err) {
		t.Fatalf("unknown entity must be not-found, got %v", err)
	}
}

func TestGetProceduresForDevice(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	boiler := f.entity(t, domain.EntityTypeDevice, "Boiler")
	reset := f.entity(t, domain.EntityTypeProcedure, "Reset procedure")
	manual := f.entity(t, domain.EntityTypeProcedure, "Bleed radiators")
	f.relate(t, reset, boiler, domain.RelationshipProcedureFor)
	f.relate(t, boiler, manual, domain.RelationshipDocumentedBy)

	_, procedures, err := f.service.GetProceduresForDevice(ctx, "Boiler")
	if err != nil {
		t.Fatalf("procedures: %v", err)
	}
	if len(procedures) != 2 {
		t.Fatalf("expected both procedures, got %+v", procedures)
	}
}

func TestGetAutomationsInRoom(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	living := f.entity(t, domain.EntityTypeRoom, "Living Room")
	lamp := f.entity(t, domain.EntityTypeDevice, "Lamp")
	f.relate(t, lamp, living, domain.RelationshipLocatedIn)

	evening := f.entity(t, domain.EntityTypeAutomation, "Evening scene")
	f.relate(t, evening, living, domain.RelationshipLocatedIn)
	motion := f.entity(t, domain.EntityTypeAutomation, "Motion lights")
	f.relate(t, motion, lamp, domain.RelationshipControls)

	_, automations, err := f.service.GetAutomationsInRoom(ctx, "Living Room")
	if err != nil {
		t.Fatalf("automations: %v", err)
	}
	if len(automations) != 2 {
		t.Fatalf("expected both automations, got %+v", automations)
	}
}

func TestRegistryExecute(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	registry := NewRegistry(f.service)

	living := f.entity(t, domain.EntityTypeRoom, "Living Room")
	lamp := f.entity(t, domain.EntityTypeDevice, "Lamp")
	f.relate(t, lamp, living, domain.RelationshipLocatedIn)

	result, err := registry.Execute(ctx, "get_devices_in_room", json.RawMessage(`{"room_name":"Living Room"}`))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	payload, ok := result.(map[string]any)
	if !ok {
		t.Fatalf("unexpected result shape: %T", result)
	}
	devices, ok := payload["devices"].([]domain.Entity)
	if !ok || len(devices) != 1 || devices[0].ID != lamp.ID {
		t.Fatalf("unexpected devices payload: %+v", payload["devices"])
	}

	if _, err := registry.Execute(ctx, "warp_drive", nil); !domain.IsValidation(err) {
		t.Fatalf("unknown tool must be a validation error, got %v", err)
	}
	if _, err := registry.Execute(ctx, "get_devices_in_room", json.RawMessage(`{broken`)); !domain.IsValidation(err) {
		t.Fatalf("malformed arguments must be a validation error, got %v", err)
	}
}

func TestRegistryCreateAndUpdateThroughTools(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	registry := NewRegistry(f.service)

	created, err := registry.Execute(ctx, "create_entity", json.RawMessage(
		`{"entity_type":"device","content":{"name":"Lamp"},"user_id":"u1"}`,
	))
	if err != nil {
		t.Fatalf("create_entity: %v", err)
	}
	entity := created.(map[string]any)["entity"].(domain.Entity)
	if entity.SourceType != domain.SourceManual {
		t.Fatalf("default source must be manual, got %q", entity.SourceType)
	}

	updated, err := registry.Execute(ctx, "update_entity", json.RawMessage(fmt.Sprintf(
		`{"entity_id":%q,"changes":{"name":"Desk Lamp"},"user_id":"u1"}`, entity.ID,
	)))
	if err != nil {
		t.Fatalf("update_entity: %v", err)
	}
	next := updated.(map[string]any)["entity"].(domain.Entity)
	if next.Name() != "Desk Lamp" || !next.HasParent(entity.Version) {
		t.Fatalf("update did not produce a child version: %+v", next)
	}

	history, err := f.knowledge.ListVersions(ctx, entity.ID)
	if err != nil {
		t.Fatalf("list versions: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 stored versions, got %d", len(history))
	}
}

func TestRegistryNamesStable(t *testing.T) {
	f := newFixture(t)
	names := NewRegistry(f.service).Names()

	if len(names) != 12 {
		t.Fatalf("expected 12 tools, got %d: %v", len(names), names)
	}
	for i := 1; i < len(names); i++ {
		if names[i-1] >= names[i] {
			t.Fatalf("names must be sorted: %v", names)
		}
	}
}
