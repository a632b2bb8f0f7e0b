// Package knowledge is the local write and query surface of a replica: it
// validates mutations, persists them through the store, and keeps the graph
// index current.
package knowledge

import (
	"context"
	"fmt"
	"sync"

	"github.com/rpattn/homegraph/internal/domain"
	"github.com/rpattn/homegraph/internal/graph"
	"github.com/rpattn/homegraph/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Service applies local mutations to the store and folds them into the index
// incrementally. The store accepts one writer at a time per replica process;
// writeMu serializes local writes against each other (sync-applied inbound
// changes go through the store and index directly and are serialized by their
// own locks).
type Service struct {
	entities      repository.EntityStore
	relationships repository.RelationshipStore
	index         *graph.Index
	logger        *zap.Logger

	writeMu sync.Mutex
}

// NewService wires a service over the given store and index.
func NewService(entities repository.EntityStore, relationships repository.RelationshipStore, index *graph.Index, logger *zap.Logger) *Service {
	return &Service{
		entities:      entities,
		relationships: relationships,
		index:         index,
		logger:        logger,
	}
}

// Index exposes the graph index for the path finder and search engine. The
// index is shared by reference, never duplicated.
func (s *Service) Index() *graph.Index {
	return s.index
}

// CreateEntity validates and persists the first version of a new entity,
// updating the index.
func (s *Service) CreateEntity(ctx context.Context, entityType domain.EntityType, content map[string]any, userID string, source domain.SourceType) (domain.Entity, error) {
	entity := domain.NewEntity(entityType, content, userID, source)

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.entities.StoreEntity(ctx, entity); err != nil {
		return domain.Entity{}, fmt.Errorf("failed to create entity: %w", err)
	}
	s.index.ApplyEntity(entity)

	s.logger.Debug("entity created",
		zap.String("entity_id", entity.ID.String()),
		zap.String("entity_type", string(entityType)),
		zap.String("version", entity.Version),
	)
	return entity, nil
}

// UpdateEntity writes a new version of an existing entity with the given
// content changes merged over the current latest content. The prior version
// stays stored and retrievable.
func (s *Service) UpdateEntity(ctx context.Context, id uuid.UUID, changes map[string]any, userID string) (domain.Entity, error) {
	current, found, err := s.entities.GetEntity(ctx, id)
	if err != nil {
		return domain.Entity{}, fmt.Errorf("failed to load entity for update: %w", err)
	}
	if !found {
		return domain.Entity{}, &domain.NotFoundError{Kind: "entity", ID: id.String()}
	}

	next := current.WithContent(changes, userID)

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.entities.StoreEntity(ctx, next); err != nil {
		return domain.Entity{}, fmt.Errorf("failed to store entity version: %w", err)
	}
	s.index.ApplyEntity(next)

	s.logger.Debug("entity updated",
		zap.String("entity_id", id.String()),
		zap.String("version", next.Version),
		zap.Strings("parent_versions", next.ParentVersions),
	)
	return next, nil
}

// GetEntity returns the latest version of an entity by ID.
func (s *Service) GetEntity(ctx context.Context, id uuid.UUID) (domain.Entity, error) {
	entity, found, err := s.entities.GetEntity(ctx, id)
	if err != nil {
		return domain.Entity{}, fmt.Errorf("failed to get entity: %w", err)
	}
	if !found {
		return domain.Entity{}, &domain.NotFoundError{Kind: "entity", ID: id.String()}
	}
	return entity, nil
}

// GetEntityVersion returns one specific stored version of an entity.
func (s *Service) GetEntityVersion(ctx context.Context, id uuid.UUID, version string) (domain.Entity, error) {
	entity, found, err := s.entities.GetEntityVersion(ctx, id, version)
	if err != nil {
		return domain.Entity{}, fmt.Errorf("failed to get entity version: %w", err)
	}
	if !found {
		return domain.Entity{}, &domain.NotFoundError{Kind: "entity version", ID: id.String() + "@" + version}
	}
	return entity, nil
}

// ListVersions returns the full stored history of an entity in creation order.
func (s *Service) ListVersions(ctx context.Context, id uuid.UUID) ([]domain.Entity, error) {
	return s.entities.ListVersions(ctx, id)
}

// GetEntitiesByType returns the latest versions of all entities of the type.
func (s *Service) GetEntitiesByType(ctx context.Context, entityType domain.EntityType) ([]domain.Entity, error) {
	return s.entities.GetEntitiesByType(ctx, entityType)
}

// CreateRelationship validates and persists a new edge, updating the index.
// Returns a domain.ReferenceError when either endpoint is unknown.
func (s *Service) CreateRelationship(ctx context.Context, from, to uuid.UUID, relType domain.RelationshipType, properties map[string]any, userID string) (domain.Relationship, error) {
	rel := domain.NewRelationship(from, to, relType, properties, userID)

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.relationships.StoreRelationship(ctx, rel); err != nil {
		return domain.Relationship{}, err
	}
	s.index.ApplyRelationship(rel)

	s.logger.Debug("relationship created",
		zap.String("relationship_id", rel.ID.String()),
		zap.String("type", string(relType)),
		zap.String("from", from.String()),
		zap.String("to", to.String()),
	)
	return rel, nil
}

// GetRelationships returns all matching edges in creation order.
func (s *Service) GetRelationships(ctx context.Context, filter repository.RelationshipFilter) ([]domain.Relationship, error) {
	return s.relationships.GetRelationships(ctx, filter)
}
