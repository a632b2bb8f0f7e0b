package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rpattn/homegraph/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// entityRepository implements EntityStore on Postgres. Versions live in a
// single append-only table keyed by (id, version); the latest version of an
// ID is selected with DISTINCT ON ordered by (last_modified, version)
// descending, matching domain.Latest.
type entityRepository struct {
	pool *pgxpool.Pool
}

// NewEntityRepository wires an entity store backed by pgxpool.
func NewEntityRepository(pool *pgxpool.Pool) EntityStore {
	return &entityRepository{pool: pool}
}

const entityColumns = `id, version, entity_type, content, parent_versions, user_id, source_type, created_at, last_modified`

const latestEntityCTE = `
	SELECT DISTINCT ON (id) ` + entityColumns + `
	FROM entities
	ORDER BY id, last_modified DESC, version DESC`

func (r *entityRepository) StoreEntity(ctx context.Context, entity domain.Entity) error {
	if err := entity.Validate(); err != nil {
		return err
	}

	contentJSON, err := entity.ContentJSON()
	if err != nil {
		return fmt.Errorf("failed to marshal content: %w", err)
	}
	parentsJSON, err := json.Marshal(entity.ParentVersions)
	if err != nil {
		return fmt.Errorf("failed to marshal parent versions: %w", err)
	}

	// ON CONFLICT DO NOTHING keeps re-application of the same (id, version)
	// a no-op, which is what makes sync exchanges idempotent.
	_, err = r.pool.Exec(
		ctx,
		`INSERT INTO entities (id, version, entity_type, content, parent_versions, user_id, source_type, created_at, last_modified)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (id, version) DO NOTHING`,
		entity.ID,
		entity.Version,
		string(entity.EntityType),
		contentJSON,
		parentsJSON,
		entity.UserID,
		string(entity.SourceType),
		entity.CreatedAt,
		entity.LastModified,
	)
	if err != nil {
		return fmt.Errorf("failed to store entity %s@%s: %w", entity.ID, entity.Version, err)
	}

	return nil
}

func (r *entityRepository) GetEntity(ctx context.Context, id uuid.UUID) (domain.Entity, bool, error) {
	row := r.pool.QueryRow(
		ctx,
		`SELECT `+entityColumns+`
		 FROM entities
		 WHERE id = $1
		 ORDER BY last_modified DESC, version DESC
		 LIMIT 1`,
		id,
	)

	entity, err := scanEntity(row)
	if err == pgx.ErrNoRows {
		return domain.Entity{}, false, nil
	}
	if err != nil {
		return domain.Entity{}, false, fmt.Errorf("failed to get entity %s: %w", id, err)
	}
	return entity, true, nil
}

func (r *entityRepository) GetEntityVersion(ctx context.Context, id uuid.UUID, version string) (domain.Entity, bool, error) {
	row := r.pool.QueryRow(
		ctx,
		`SELECT `+entityColumns+` FROM entities WHERE id = $1 AND version = $2`,
		id, version,
	)

	entity, err := scanEntity(row)
	if err == pgx.ErrNoRows {
		return domain.Entity{}, false, nil
	}
	if err != nil {
		return domain.Entity{}, false, fmt.Errorf("failed to get entity %s@%s: %w", id, version, err)
	}
	return entity, true, nil
}

func (r *entityRepository) ListVersions(ctx context.Context, id uuid.UUID) ([]domain.Entity, error) {
	rows, err := r.pool.Query(
		ctx,
		`SELECT `+entityColumns+`
		 FROM entities
		 WHERE id = $1
		 ORDER BY last_modified ASC, version ASC`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list versions for %s: %w", id, err)
	}
	defer rows.Close()

	return collectEntities(rows)
}

func (r *entityRepository) GetEntitiesByType(ctx context.Context, entityType domain.EntityType) ([]domain.Entity, error) {
	rows, err := r.pool.Query(
		ctx,
		`WITH latest AS (`+latestEntityCTE+`)
		 SELECT `+entityColumns+` FROM latest WHERE entity_type = $1 ORDER BY created_at ASC`,
		string(entityType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list entities by type %s: %w", entityType, err)
	}
	defer rows.Close()

	return collectEntities(rows)
}

func (r *entityRepository) GetEntitiesByIDs(ctx context.Context, ids []uuid.UUID) ([]domain.Entity, error) {
	if len(ids) == 0 {
		return []domain.Entity{}, nil
	}

	rows, err := r.pool.Query(
		ctx,
		`WITH latest AS (`+latestEntityCTE+`)
		 SELECT `+entityColumns+` FROM latest WHERE id = ANY($1)`,
		ids,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get entities by IDs: %w", err)
	}
	defer rows.Close()

	return collectEntities(rows)
}

func (r *entityRepository) ListLatest(ctx context.Context) ([]domain.Entity, error) {
	rows, err := r.pool.Query(ctx, latestEntityCTE)
	if err != nil {
		return nil, fmt.Errorf("failed to list latest entities: %w", err)
	}
	defer rows.Close()

	return collectEntities(rows)
}

func (r *entityRepository) HasEntity(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(
		ctx,
		`SELECT EXISTS (SELECT 1 FROM entities WHERE id = $1)`,
		id,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check entity %s: %w", id, err)
	}
	return exists, nil
}

func (r *entityRepository) EntityChangesAfter(ctx context.Context, afterSeq int64) ([]EntityChange, error) {
	rows, err := r.pool.Query(
		ctx,
		`SELECT seq, `+entityColumns+`
		 FROM entities
		 WHERE seq > $1
		 ORDER BY seq ASC`,
		afterSeq,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list entity changes: %w", err)
	}
	defer rows.Close()

	changes := []EntityChange{}
	for rows.Next() {
		var (
			seq         int64
			entity      domain.Entity
			entityType  string
			sourceType  string
			contentJSON []byte
			parentsJSON []byte
		)
		if err := rows.Scan(
			&seq,
			&entity.ID,
			&entity.Version,
			&entityType,
			&contentJSON,
			&parentsJSON,
			&entity.UserID,
			&sourceType,
			&entity.CreatedAt,
			&entity.LastModified,
		); err != nil {
			return nil, fmt.Errorf("failed to scan entity change: %w", err)
		}
		entity.EntityType = domain.EntityType(entityType)
		entity.SourceType = domain.SourceType(sourceType)
		content, err := domain.ContentFromJSON(contentJSON)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal content: %w", err)
		}
		entity.Content = content
		if err := json.Unmarshal(parentsJSON, &entity.ParentVersions); err != nil {
			return nil, fmt.Errorf("failed to unmarshal parent versions: %w", err)
		}
		if entity.ParentVersions == nil {
			entity.ParentVersions = []string{}
		}
		changes = append(changes, EntityChange{Seq: seq, Entity: entity})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate entity changes: %w", err)
	}
	return changes, nil
}

// scanEntity reads one entity row. Works for both pgx.Row and pgx.Rows.
func scanEntity(row pgx.Row) (domain.Entity, error) {
	var (
		entity      domain.Entity
		entityType  string
		sourceType  string
		contentJSON []byte
		parentsJSON []byte
	)

	if err := row.Scan(
		&entity.ID,
		&entity.Version,
		&entityType,
		&contentJSON,
		&parentsJSON,
		&entity.UserID,
		&sourceType,
		&entity.CreatedAt,
		&entity.LastModified,
	); err != nil {
		return domain.Entity{}, err
	}

	entity.EntityType = domain.EntityType(entityType)
	entity.SourceType = domain.SourceType(sourceType)

	content, err := domain.ContentFromJSON(contentJSON)
	if err != nil {
		return domain.Entity{}, fmt.Errorf("failed to unmarshal content: %w", err)
	}
	entity.Content = content

	if err := json.Unmarshal(parentsJSON, &entity.ParentVersions); err != nil {
		return domain.Entity{}, fmt.Errorf("failed to unmarshal parent versions: %w", err)
	}
	if entity.ParentVersions == nil {
		entity.ParentVersions = []string{}
	}

	return entity, nil
}

func collectEntities(rows pgx.Rows) ([]domain.Entity, error) {
	entities := []domain.Entity{}
	for rows.Next() {
		entity, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entity: %w", err)
		}
		entities = append(entities, entity)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate entities: %w", err)
	}
	return entities, nil
}
