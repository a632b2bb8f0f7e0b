// Package tools exposes the store, index, path finder, and search engine as a
// set of named operations with fixed JSON input/output shapes, dispatched by
// name. Each tool is a thin wrapper; all semantics live in the components it
// calls.
package tools

import (
	"context"
	"sort"
	"strings"

	"github.com/rpattn/homegraph/internal/domain"
	"github.com/rpattn/homegraph/internal/graph"
	"github.com/rpattn/homegraph/internal/knowledge"
	"github.com/rpattn/homegraph/internal/middleware"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Service implements the named tools over the knowledge service and graph
// readers.
type Service struct {
	knowledge *knowledge.Service
	index     *graph.Index
	paths     *graph.PathFinder
	search    *graph.SearchEngine
	logger    *zap.Logger
}

// NewService wires the tool layer.
func NewService(kn *knowledge.Service, logger *zap.Logger) *Service {
	index := kn.Index()
	return &Service{
		knowledge: kn,
		index:     index,
		paths:     graph.NewPathFinder(index),
		search:    graph.NewSearchEngine(index),
		logger:    logger,
	}
}

// findByName resolves an entity of the given type by case-insensitive name
// match against the index. Candidates are scanned in a deterministic order;
// the first exact match wins.
func (s *Service) findByName(entityType domain.EntityType, name string) (domain.Entity, error) {
	want := strings.ToLower(strings.TrimSpace(name))
	for _, e := range sortedByID(s.index.EntitiesByType(entityType)) {
		if strings.ToLower(e.Name()) == want {
			return e, nil
		}
	}
	return domain.Entity{}, &domain.NotFoundError{Kind: string(entityType), ID: name}
}

// GetDevicesInRoom lists the devices located in the named room.
func (s *Service) GetDevicesInRoom(ctx context.Context, roomName string) (domain.Entity, []domain.Entity, error) {
	room, err := s.findByName(domain.EntityTypeRoom, roomName)
	if err != nil {
		return domain.Entity{}, nil, err
	}

	devices := []domain.Entity{}
	for _, rel := range s.index.Adjacent(room.ID, domain.RelationshipLocatedIn, graph.Incoming) {
		if e, ok := s.index.Entity(rel.FromEntityID); ok && e.EntityType == domain.EntityTypeDevice {
			devices = append(devices, e)
		}
	}
	return room, devices, nil
}

// FindDeviceControls lists what the named device controls.
func (s *Service) FindDeviceControls(ctx context.Context, deviceName string) (domain.Entity, []domain.Entity, error) {
	device, err := s.findByName(domain.EntityTypeDevice, deviceName)
	if err != nil {
		return domain.Entity{}, nil, err
	}

	controlled := []domain.Entity{}
	for _, rel := range s.index.Adjacent(device.ID, domain.RelationshipControls, graph.Outgoing) {
		if e, ok := s.index.Entity(rel.ToEntityID); ok {
			controlled = append(controlled, e)
		}
	}
	return device, controlled, nil
}

// RoomConnection is one traversable connection out of a room.
type RoomConnection struct {
	Relationship domain.Relationship `json:"relationship"`
	Connected    domain.Entity       `json:"connected"`
}

// GetRoomConnections lists what the named room connects to, in either edge
// direction since connects_to is traversable both ways.
func (s *Service) GetRoomConnections(ctx context.Context, roomName string) (domain.Entity, []RoomConnection, error) {
	room, err := s.findByName(domain.EntityTypeRoom, roomName)
	if err != nil {
		return domain.Entity{}, nil, err
	}

	connections := []RoomConnection{}
	for _, rel := range s.index.Relationships(room.ID) {
		if rel.RelationshipType != domain.RelationshipConnectsTo {
			continue
		}
		otherID := rel.ToEntityID
		if otherID == room.ID {
			otherID = rel.FromEntityID
		}
		if other, ok := s.index.Entity(otherID); ok {
			connections = append(connections, RoomConnection{Relationship: rel, Connected: other})
		}
	}
	return room, connections, nil
}

// SearchEntities runs scored text search, optionally restricted by type.
func (s *Service) SearchEntities(ctx context.Context, query string, entityTypes []domain.EntityType, limit int) ([]graph.SearchResult, error) {
	for _, t := range entityTypes {
		if !t.Valid() {
			return nil, &domain.ValidationError{Field: "entity_types", Reason: "unknown entity type " + string(t)}
		}
	}
	results := s.search.Search(query, entityTypes)
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// FindPath returns the shortest path between two entities, endpoints
// included, with each hop resolved to its entity for the caller.
func (s *Service) FindPath(ctx context.Context, fromID, toID uuid.UUID, relTypes []domain.RelationshipType) ([]domain.Entity, error) {
	for _, t := range relTypes {
		if !t.Valid() {
			return nil, &domain.ValidationError{Field: "relationship_types", Reason: "unknown relationship type " + string(t)}
		}
	}

	ids := s.paths.FindPath(fromID, toID, relTypes)
	if len(ids) == 0 {
		return []domain.Entity{}, nil
	}
	return s.resolve(ctx, ids)
}

// resolve turns path IDs back into entities, through the per-request batch
// loader when one is installed, falling back to the index.
func (s *Service) resolve(ctx context.Context, ids []uuid.UUID) ([]domain.Entity, error) {
	if loader := middleware.EntityLoaderFromContext(ctx); loader != nil {
		return loader.LoadMany(ctx, ids)
	}
	entities := make([]domain.Entity, 0, len(ids))
	for _, id := range ids {
		if e, ok := s.index.Entity(id); ok {
			entities = append(entities, e)
		}
	}
	return entities, nil
}

// EntityDetails is one entity with its full edge neighborhood.
type EntityDetails struct {
	Entity        domain.Entity         `json:"entity"`
	Relationships []domain.Relationship `json:"relationships"`
	Neighbors     []domain.Entity       `json:"neighbors"`
}

// GetEntityDetails returns the latest version of an entity together with
// every edge touching it and the entities on the far ends.
func (s *Service) GetEntityDetails(ctx context.Context, id uuid.UUID) (EntityDetails, error) {
	entity, err := s.knowledge.GetEntity(ctx, id)
	if err != nil {
		return EntityDetails{}, err
	}

	rels := s.index.Relationships(id)
	neighborIDs := make([]uuid.UUID, 0, len(rels))
	seen := map[uuid.UUID]struct{}{id: {}}
	for _, rel := range rels {
		for _, end := range []uuid.UUID{rel.FromEntityID, rel.ToEntityID} {
			if _, dup := seen[end]; dup {
				continue
			}
			seen[end] = struct{}{}
			neighborIDs = append(neighborIDs, end)
		}
	}

	neighbors, err := s.resolve(ctx, neighborIDs)
	if err != nil {
		return EntityDetails{}, err
	}

	return EntityDetails{Entity: entity, Relationships: rels, Neighbors: neighbors}, nil
}

// FindSimilarEntities returns entities resembling the given one, scored.
func (s *Service) FindSimilarEntities(ctx context.Context, id uuid.UUID, threshold float64) ([]graph.SearchResult, error) {
	if _, ok := s.index.Entity(id); !ok {
		return nil, &domain.NotFoundError{Kind: "entity", ID: id.String()}
	}
	return s.search.FindSimilar(id, threshold), nil
}

// GetProceduresForDevice lists procedures attached to the named device via
// procedure_for edges, plus anything documenting it.
func (s *Service) GetProceduresForDevice(ctx context.Context, deviceName string) (domain.Entity, []domain.Entity, error) {
	device, err := s.findByName(domain.EntityTypeDevice, deviceName)
	if err != nil {
		return domain.Entity{}, nil, err
	}

	procedures := []domain.Entity{}
	seen := map[uuid.UUID]struct{}{}
	for _, rel := range s.index.Adjacent(device.ID, domain.RelationshipProcedureFor, graph.Incoming) {
		if e, ok := s.index.Entity(rel.FromEntityID); ok {
			if _, dup := seen[e.ID]; !dup {
				seen[e.ID] = struct{}{}
				procedures = append(procedures, e)
			}
		}
	}
	for _, rel := range s.index.Adjacent(device.ID, domain.RelationshipDocumentedBy, graph.Outgoing) {
		if e, ok := s.index.Entity(rel.ToEntityID); ok && e.EntityType == domain.EntityTypeProcedure {
			if _, dup := seen[e.ID]; !dup {
				seen[e.ID] = struct{}{}
				procedures = append(procedures, e)
			}
		}
	}
	return device, procedures, nil
}

// GetAutomationsInRoom lists automations placed in the named room or
// controlling a device located there.
func (s *Service) GetAutomationsInRoom(ctx context.Context, roomName string) (domain.Entity, []domain.Entity, error) {
	room, devices, err := s.GetDevicesInRoom(ctx, roomName)
	if err != nil {
		return domain.Entity{}, nil, err
	}

	automations := []domain.Entity{}
	seen := map[uuid.UUID]struct{}{}
	add := func(e domain.Entity) {
		if e.EntityType != domain.EntityTypeAutomation {
			return
		}
		if _, dup := seen[e.ID]; dup {
			return
		}
		seen[e.ID] = struct{}{}
		automations = append(automations, e)
	}

	for _, rel := range s.index.Adjacent(room.ID, domain.RelationshipLocatedIn, graph.Incoming) {
		if e, ok := s.index.Entity(rel.FromEntityID); ok {
			add(e)
		}
	}
	for _, device := range devices {
		for _, rel := range s.index.Adjacent(device.ID, domain.RelationshipControls, graph.Incoming) {
			if e, ok := s.index.Entity(rel.FromEntityID); ok {
				add(e)
			}
		}
		for _, rel := range s.index.Adjacent(device.ID, domain.RelationshipTriggeredBy, graph.Incoming) {
			if e, ok := s.index.Entity(rel.FromEntityID); ok {
				add(e)
			}
		}
	}
	return room, automations, nil
}

// CreateEntity validates and writes the first version of a new entity.
func (s *Service) CreateEntity(ctx context.Context, entityType domain.EntityType, content map[string]any, userID string, source domain.SourceType) (domain.Entity, error) {
	if source == "" {
		source = domain.SourceManual
	}
	return s.knowledge.CreateEntity(ctx, entityType, content, userID, source)
}

// CreateRelationship writes a new edge between two existing entities.
func (s *Service) CreateRelationship(ctx context.Context, from, to uuid.UUID, relType domain.RelationshipType, properties map[string]any, userID string) (domain.Relationship, error) {
	return s.knowledge.CreateRelationship(ctx, from, to, relType, properties, userID)
}

// UpdateEntity writes a new version of an entity with changes merged over its
// current content.
func (s *Service) UpdateEntity(ctx context.Context, id uuid.UUID, changes map[string]any, userID string) (domain.Entity, error) {
	return s.knowledge.UpdateEntity(ctx, id, changes, userID)
}

func sortedByID(entities []domain.Entity) []domain.Entity {
	sorted := make([]domain.Entity, len(entities))
	copy(sorted, entities)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].ID.String() < sorted[j].ID.String()
	})
	return sorted
}
