// Package sync implements the Inbetweenies replica synchronization protocol:
// a bidirectional exchange of change sets with deterministic last-write-wins
// conflict resolution. Entities are immutable and additive, so an exchange is
// a union of version sets — re-applying any change is a no-op and replicas
// converge without vector clocks or a global lock.
package sync

import (
	"time"

	"github.com/rpattn/homegraph/internal/domain"

	"github.com/google/uuid"
)

// ProtocolVersion identifies the wire format. Peers speaking a different
// version are rejected before any change is applied.
const ProtocolVersion = "inbetweenies-v1"

// Change types carried on the wire.
const (
	ChangeTypeCreate       = "create"
	ChangeTypeUpdate       = "update"
	ChangeTypeRelationship = "relationship"
)

// Change is one entity version or relationship on the wire.
type Change struct {
	ChangeType     string              `json:"change_type"`
	EntityID       string              `json:"entity_id"`
	EntityVersion  string              `json:"entity_version,omitempty"`
	EntityType     string              `json:"entity_type,omitempty"`
	Content        map[string]any      `json:"content,omitempty"`
	ParentVersions []string            `json:"parent_versions,omitempty"`
	UserID         string              `json:"user_id,omitempty"`
	SourceType     string              `json:"source_type,omitempty"`
	Timestamp      time.Time           `json:"timestamp"`
	Relationship   *RelationshipChange `json:"relationship,omitempty"`
}

// RelationshipChange carries one edge inside a Change of type relationship.
type RelationshipChange struct {
	ID               string         `json:"id"`
	FromEntityID     string         `json:"from_entity_id"`
	ToEntityID       string         `json:"to_entity_id"`
	RelationshipType string         `json:"relationship_type"`
	Properties       map[string]any `json:"properties,omitempty"`
	UserID           string         `json:"user_id,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
}

// Key identifies a change for acknowledgement purposes.
func (c Change) Key() string {
	if c.ChangeType == ChangeTypeRelationship && c.Relationship != nil {
		return "rel:" + c.Relationship.ID
	}
	return c.EntityID + "@" + c.EntityVersion
}

// Cursor is a position in one replica's local change feeds. Sequence numbers
// are private to the replica that assigned them: a requester holds a cursor
// into the responder's feeds and echoes it back on the next exchange, so the
// responder itself stays stateless.
type Cursor struct {
	EntitySeq       int64 `json:"entity_seq"`
	RelationshipSeq int64 `json:"relationship_seq"`
}

// Request is the payload a replica sends to start an exchange: its identity,
// every local change the remote has not acknowledged, and the cursor into the
// remote's feeds up to which it has already received changes.
type Request struct {
	ProtocolVersion string   `json:"protocol_version"`
	DeviceID        string   `json:"device_id"`
	UserID          string   `json:"user_id"`
	Cursor          Cursor   `json:"cursor"`
	Changes         []Change `json:"changes"`
}

// ConflictReport is one resolved conflict as returned to the requester.
type ConflictReport struct {
	EntityID string `json:"entity_id"`
	VersionA string `json:"version_a"`
	VersionB string `json:"version_b"`
	Winner   string `json:"winner"`
}

// Response acknowledges the accepted submitted changes, returns the changes
// after the requester's cursor, reports conflicts detected while applying the
// inbound set, and carries the new cursor for the requester to persist.
type Response struct {
	ProtocolVersion string           `json:"protocol_version"`
	DeviceID        string           `json:"device_id"`
	Accepted        []string         `json:"accepted"`
	Cursor          Cursor           `json:"cursor"`
	Changes         []Change         `json:"changes"`
	Conflicts       []ConflictReport `json:"conflicts"`
}

// Summary reports the outcome of one full exchange to the caller.
type Summary struct {
	RemoteID         string                      `json:"remote_id"`
	Sent             int                         `json:"sent"`
	Received         int                         `json:"received"`
	AcceptedByRemote int                         `json:"accepted_by_remote"`
	Conflicts        []domain.ConflictResolution `json:"conflicts"`
}

// entityChange encodes one stored entity version for the wire.
func entityChange(e domain.Entity) Change {
	changeType := ChangeTypeUpdate
	if len(e.ParentVersions) == 0 {
		changeType = ChangeTypeCreate
	}
	return Change{
		ChangeType:     changeType,
		EntityID:       e.ID.String(),
		EntityVersion:  e.Version,
		EntityType:     string(e.EntityType),
		Content:        e.Content,
		ParentVersions: e.ParentVersions,
		UserID:         e.UserID,
		SourceType:     string(e.SourceType),
		Timestamp:      e.LastModified,
	}
}

// relationshipChange encodes one stored edge for the wire.
func relationshipChange(r domain.Relationship) Change {
	return Change{
		ChangeType: ChangeTypeRelationship,
		Timestamp:  r.CreatedAt,
		Relationship: &RelationshipChange{
			ID:               r.ID.String(),
			FromEntityID:     r.FromEntityID.String(),
			ToEntityID:       r.ToEntityID.String(),
			RelationshipType: string(r.RelationshipType),
			Properties:       r.Properties,
			UserID:           r.UserID,
			CreatedAt:        r.CreatedAt,
		},
	}
}

// decodeEntity turns an inbound entity change back into a domain entity.
func decodeEntity(c Change) (domain.Entity, error) {
	id, err := uuid.Parse(c.EntityID)
	if err != nil {
		return domain.Entity{}, &domain.ValidationError{Field: "entity_id", Reason: "not a UUID: " + c.EntityID}
	}
	parents := c.ParentVersions
	if parents == nil {
		parents = []string{}
	}
	return domain.Entity{
		ID:             id,
		Version:        c.EntityVersion,
		EntityType:     domain.EntityType(c.EntityType),
		Content:        c.Content,
		ParentVersions: parents,
		UserID:         c.UserID,
		SourceType:     domain.SourceType(c.SourceType),
		CreatedAt:      c.Timestamp,
		LastModified:   c.Timestamp,
	}, nil
}

// decodeRelationship turns an inbound relationship change back into a domain
// relationship.
func decodeRelationship(c RelationshipChange) (domain.Relationship, error) {
	id, err := uuid.Parse(c.ID)
	if err != nil {
		return domain.Relationship{}, &domain.ValidationError{Field: "relationship.id", Reason: "not a UUID: " + c.ID}
	}
	from, err := uuid.Parse(c.FromEntityID)
	if err != nil {
		return domain.Relationship{}, &domain.ValidationError{Field: "relationship.from_entity_id", Reason: "not a UUID: " + c.FromEntityID}
	}
	to, err := uuid.Parse(c.ToEntityID)
	if err != nil {
		return domain.Relationship{}, &domain.ValidationError{Field: "relationship.to_entity_id", Reason: "not a UUID: " + c.ToEntityID}
	}
	return domain.Relationship{
		ID:               id,
		FromEntityID:     from,
		ToEntityID:       to,
		RelationshipType: domain.RelationshipType(c.RelationshipType),
		Properties:       c.Properties,
		UserID:           c.UserID,
		CreatedAt:        c.CreatedAt,
	}, nil
}
