package domain

import (
	"time"

	"github.com/google/uuid"
)

// Relationship is a typed directed edge between two entities. Endpoints
// reference stable entity IDs and are resolved to the latest version at
// traversal time. Relationships are immutable append-only facts: removing or
// changing an edge is modelled by writing a new row whose predecessor carries
// the new row's ID in SupersededBy, never by deleting the old one.
type Relationship struct {
	ID               uuid.UUID        `json:"id"`
	FromEntityID     uuid.UUID        `json:"from_entity_id"`
	ToEntityID       uuid.UUID        `json:"to_entity_id"`
	RelationshipType RelationshipType `json:"relationship_type"`
	Properties       map[string]any   `json:"properties"`
	UserID           string           `json:"user_id"`
	SupersededBy     *uuid.UUID       `json:"superseded_by,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
}

// NewRelationship creates a new edge between two entities.
func NewRelationship(from, to uuid.UUID, relType RelationshipType, properties map[string]any, userID string) Relationship {
	return Relationship{
		ID:               uuid.New(),
		FromEntityID:     from,
		ToEntityID:       to,
		RelationshipType: relType,
		Properties:       copyContent(properties),
		UserID:           userID,
		CreatedAt:        time.Now().UTC(),
	}
}

// Validate checks the invariants an edge must satisfy before persistence.
// Endpoint existence is checked by the store, not here.
func (r Relationship) Validate() error {
	if r.ID == uuid.Nil {
		return &ValidationError{Field: "id", Reason: "relationship id is required"}
	}
	if r.FromEntityID == uuid.Nil {
		return &ValidationError{Field: "from_entity_id", Reason: "from entity id is required"}
	}
	if r.ToEntityID == uuid.Nil {
		return &ValidationError{Field: "to_entity_id", Reason: "to entity id is required"}
	}
	if !r.RelationshipType.Valid() {
		return &ValidationError{Field: "relationship_type", Reason: "unknown relationship type " + string(r.RelationshipType)}
	}
	return nil
}

// Touches reports whether the edge has the given entity at either end.
func (r Relationship) Touches(entityID uuid.UUID) bool {
	return r.FromEntityID == entityID || r.ToEntityID == entityID
}
