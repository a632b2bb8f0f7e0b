package tools

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/rpattn/homegraph/internal/auth"
	"github.com/rpattn/homegraph/internal/domain"

	"github.com/google/uuid"
)

// Handler executes one named tool against decoded arguments.
type Handler func(ctx context.Context, args json.RawMessage) (any, error)

// Registry dispatches tool calls by name. The set of tools is fixed at
// construction; Execute on an unknown name is a validation error, not a
// panic.
type Registry struct {
	handlers map[string]Handler
}

// NewRegistry builds the full tool set over the given service.
func NewRegistry(service *Service) *Registry {
	r := &Registry{handlers: map[string]Handler{}}

	r.handlers["get_devices_in_room"] = func(ctx context.Context, args json.RawMessage) (any, error) {
		var in struct {
			RoomName string `json:"room_name"`
		}
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		room, devices, err := service.GetDevicesInRoom(ctx, in.RoomName)
		if err != nil {
			return nil, err
		}
		return map[string]any{"room": room, "devices": devices}, nil
	}

	r.handlers["find_device_controls"] = func(ctx context.Context, args json.RawMessage) (any, error) {
		var in struct {
			DeviceName string `json:"device_name"`
		}
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		device, controls, err := service.FindDeviceControls(ctx, in.DeviceName)
		if err != nil {
			return nil, err
		}
		return map[string]any{"device": device, "controls": controls}, nil
	}

	r.handlers["get_room_connections"] = func(ctx context.Context, args json.RawMessage) (any, error) {
		var in struct {
			RoomName string `json:"room_name"`
		}
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		room, connections, err := service.GetRoomConnections(ctx, in.RoomName)
		if err != nil {
			return nil, err
		}
		return map[string]any{"room": room, "connections": connections}, nil
	}

	r.handlers["search_entities"] = func(ctx context.Context, args json.RawMessage) (any, error) {
		var in struct {
			Query       string              `json:"query"`
			EntityTypes []domain.EntityType `json:"entity_types"`
			Limit       int                 `json:"limit"`
		}
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		results, err := service.SearchEntities(ctx, in.Query, in.EntityTypes, in.Limit)
		if err != nil {
			return nil, err
		}
		return map[string]any{"results": results}, nil
	}

	r.handlers["create_entity"] = func(ctx context.Context, args json.RawMessage) (any, error) {
		var in struct {
			EntityType domain.EntityType `json:"entity_type"`
			Content    map[string]any    `json:"content"`
			UserID     string            `json:"user_id"`
			SourceType domain.SourceType `json:"source_type"`
		}
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		entity, err := service.CreateEntity(ctx, in.EntityType, in.Content, effectiveUser(ctx, in.UserID), in.SourceType)
		if err != nil {
			return nil, err
		}
		return map[string]any{"entity": entity}, nil
	}

	r.handlers["create_relationship"] = func(ctx context.Context, args json.RawMessage) (any, error) {
		var in struct {
			FromEntityID     string                  `json:"from_entity_id"`
			ToEntityID       string                  `json:"to_entity_id"`
			RelationshipType domain.RelationshipType `json:"relationship_type"`
			Properties       map[string]any          `json:"properties"`
			UserID           string                  `json:"user_id"`
		}
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		from, err := parseID("from_entity_id", in.FromEntityID)
		if err != nil {
			return nil, err
		}
		to, err := parseID("to_entity_id", in.ToEntityID)
		if err != nil {
			return nil, err
		}
		rel, err := service.CreateRelationship(ctx, from, to, in.RelationshipType, in.Properties, effectiveUser(ctx, in.UserID))
		if err != nil {
			return nil, err
		}
		return map[string]any{"relationship": rel}, nil
	}

	r.handlers["find_path"] = func(ctx context.Context, args json.RawMessage) (any, error) {
		var in struct {
			FromEntityID      string                    `json:"from_entity_id"`
			ToEntityID        string                    `json:"to_entity_id"`
			RelationshipTypes []domain.RelationshipType `json:"relationship_types"`
		}
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		from, err := parseID("from_entity_id", in.FromEntityID)
		if err != nil {
			return nil, err
		}
		to, err := parseID("to_entity_id", in.ToEntityID)
		if err != nil {
			return nil, err
		}
		path, err := service.FindPath(ctx, from, to, in.RelationshipTypes)
		if err != nil {
			return nil, err
		}
		return map[string]any{"path": path, "found": len(path) > 0}, nil
	}

	r.handlers["get_entity_details"] = func(ctx context.Context, args json.RawMessage) (any, error) {
		var in struct {
			EntityID string `json:"entity_id"`
		}
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		id, err := parseID("entity_id", in.EntityID)
		if err != nil {
			return nil, err
		}
		return service.GetEntityDetails(ctx, id)
	}

	r.handlers["find_similar_entities"] = func(ctx context.Context, args json.RawMessage) (any, error) {
		var in struct {
			EntityID  string  `json:"entity_id"`
			Threshold float64 `json:"threshold"`
		}
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		id, err := parseID("entity_id", in.EntityID)
		if err != nil {
			return nil, err
		}
		threshold := in.Threshold
		if threshold <= 0 {
			threshold = 0.5
		}
		results, err := service.FindSimilarEntities(ctx, id, threshold)
		if err != nil {
			return nil, err
		}
		return map[string]any{"results": results}, nil
	}

	r.handlers["get_procedures_for_device"] = func(ctx context.Context, args json.RawMessage) (any, error) {
		var in struct {
			DeviceName string `json:"device_name"`
		}
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		device, procedures, err := service.GetProceduresForDevice(ctx, in.DeviceName)
		if err != nil {
			return nil, err
		}
		return map[string]any{"device": device, "procedures": procedures}, nil
	}

	r.handlers["get_automations_in_room"] = func(ctx context.Context, args json.RawMessage) (any, error) {
		var in struct {
			RoomName string `json:"room_name"`
		}
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		room, automations, err := service.GetAutomationsInRoom(ctx, in.RoomName)
		if err != nil {
			return nil, err
		}
		return map[string]any{"room": room, "automations": automations}, nil
	}

	r.handlers["update_entity"] = func(ctx context.Context, args json.RawMessage) (any, error) {
		var in struct {
			EntityID string         `json:"entity_id"`
			Changes  map[string]any `json:"changes"`
			UserID   string         `json:"user_id"`
		}
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		id, err := parseID("entity_id", in.EntityID)
		if err != nil {
			return nil, err
		}
		entity, err := service.UpdateEntity(ctx, id, in.Changes, effectiveUser(ctx, in.UserID))
		if err != nil {
			return nil, err
		}
		return map[string]any{"entity": entity}, nil
	}

	return r
}

// Names lists the registered tools in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Execute runs the named tool.
func (r *Registry) Execute(ctx context.Context, name string, args json.RawMessage) (any, error) {
	handler, ok := r.handlers[name]
	if !ok {
		return nil, &domain.ValidationError{Field: "tool", Reason: "unknown tool " + name}
	}
	return handler(ctx, args)
}

// effectiveUser prefers the explicit argument, falling back to the identity
// carried on the request context.
func effectiveUser(ctx context.Context, explicit string) string {
	if explicit != "" {
		return explicit
	}
	if id, ok := auth.UserIDFromContext(ctx); ok {
		return id
	}
	return explicit
}

func decodeArgs(args json.RawMessage, into any) error {
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	if err := json.Unmarshal(args, into); err != nil {
		return &domain.ValidationError{Field: "arguments", Reason: err.Error()}
	}
	return nil
}

func parseID(field, raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, &domain.ValidationError{Field: field, Reason: "not a UUID: " + raw}
	}
	return id, nil
}
