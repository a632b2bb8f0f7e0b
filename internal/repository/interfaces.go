package repository

import (
	"context"

	"github.com/rpattn/homegraph/internal/domain"

	"github.com/google/uuid"
)

// RelationshipFilter narrows GetRelationships. Nil fields match everything.
type RelationshipFilter struct {
	FromEntityID *uuid.UUID
	ToEntityID   *uuid.UUID
	Type         *domain.RelationshipType
}

// EntityStore defines the durable, append-only persistence of versioned
// entities. Rows are keyed by (id, version); storing the same pair twice is a
// no-op, which makes sync application idempotent. One writer at a time per
// replica process, unlimited concurrent readers.
type EntityStore interface {
	// StoreEntity validates and persists one version. Rejects unknown entity
	// types with a domain.ValidationError. Idempotent per (id, version).
	StoreEntity(ctx context.Context, entity domain.Entity) error

	// GetEntity returns the current latest version for the ID, found=false
	// (not an error) when no version exists.
	GetEntity(ctx context.Context, id uuid.UUID) (domain.Entity, bool, error)

	// GetEntityVersion returns one specific version.
	GetEntityVersion(ctx context.Context, id uuid.UUID, version string) (domain.Entity, bool, error)

	// ListVersions returns the full history for an ID in creation order.
	ListVersions(ctx context.Context, id uuid.UUID) ([]domain.Entity, error)

	// GetEntitiesByType returns the latest version of every entity of the
	// given type.
	GetEntitiesByType(ctx context.Context, entityType domain.EntityType) ([]domain.Entity, error)

	// GetEntitiesByIDs returns the latest versions for the given IDs. Missing
	// IDs are skipped.
	GetEntitiesByIDs(ctx context.Context, ids []uuid.UUID) ([]domain.Entity, error)

	// ListLatest returns the latest version of every entity ID. Used for the
	// graph index rebuild at startup.
	ListLatest(ctx context.Context) ([]domain.Entity, error)

	// HasEntity reports whether any version exists for the ID.
	HasEntity(ctx context.Context, id uuid.UUID) (bool, error)

	// EntityChangesAfter returns every version row whose local sequence
	// number is greater than afterSeq, in sequence order. The store assigns
	// sequence numbers at insert time; they index this replica's write order
	// only and never travel between replicas. This is the sync change feed.
	EntityChangesAfter(ctx context.Context, afterSeq int64) ([]EntityChange, error)
}

// EntityChange is one row of the entity change feed.
type EntityChange struct {
	Seq    int64
	Entity domain.Entity
}

// RelationshipChange is one row of the relationship change feed.
type RelationshipChange struct {
	Seq          int64
	Relationship domain.Relationship
}

// RelationshipStore defines durable persistence of relationship rows, keyed
// by ID. Relationships are immutable append-only facts.
type RelationshipStore interface {
	// StoreRelationship persists one edge. Rejects with a
	// domain.ReferenceError when either endpoint ID has no entity version in
	// the store. Idempotent per ID.
	StoreRelationship(ctx context.Context, rel domain.Relationship) error

	// GetRelationships returns all matching edges in creation order.
	GetRelationships(ctx context.Context, filter RelationshipFilter) ([]domain.Relationship, error)

	// RelationshipChangesAfter returns edges whose local sequence number is
	// greater than afterSeq, in sequence order.
	RelationshipChangesAfter(ctx context.Context, afterSeq int64) ([]RelationshipChange, error)
}

// CheckpointStore persists one sync checkpoint per known remote replica.
type CheckpointStore interface {
	GetCheckpoint(ctx context.Context, remoteID string) (domain.SyncCheckpoint, bool, error)
	SaveCheckpoint(ctx context.Context, checkpoint domain.SyncCheckpoint) error
}

// ConflictStore persists resolved conflicts for audit.
type ConflictStore interface {
	RecordConflict(ctx context.Context, resolution domain.ConflictResolution) error
	ListConflicts(ctx context.Context, entityID *uuid.UUID, limit int) ([]domain.ConflictResolution, error)
}

// Store bundles the four persistence contracts a replica needs. Any backend
// satisfying the atomicity and uniqueness guarantees above is acceptable.
type Store interface {
	EntityStore
	RelationshipStore
	CheckpointStore
	ConflictStore
}
