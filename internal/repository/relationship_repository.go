package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/rpattn/homegraph/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// relationshipRepository implements RelationshipStore on Postgres.
type relationshipRepository struct {
	pool     *pgxpool.Pool
	entities EntityStore
}

// NewRelationshipRepository wires a relationship store backed by pgxpool. The
// entity store is consulted for the endpoint existence check.
func NewRelationshipRepository(pool *pgxpool.Pool, entities EntityStore) RelationshipStore {
	return &relationshipRepository{pool: pool, entities: entities}
}

const relationshipColumns = `id, from_entity_id, to_entity_id, relationship_type, properties, user_id, superseded_by, created_at`

func (r *relationshipRepository) StoreRelationship(ctx context.Context, rel domain.Relationship) error {
	if err := rel.Validate(); err != nil {
		return err
	}

	for _, endpoint := range []uuid.UUID{rel.FromEntityID, rel.ToEntityID} {
		exists, err := r.entities.HasEntity(ctx, endpoint)
		if err != nil {
			return fmt.Errorf("failed to check relationship endpoint: %w", err)
		}
		if !exists {
			return &domain.ReferenceError{EntityID: endpoint.String()}
		}
	}

	propertiesJSON, err := json.Marshal(rel.Properties)
	if err != nil {
		return fmt.Errorf("failed to marshal properties: %w", err)
	}

	_, err = r.pool.Exec(
		ctx,
		`INSERT INTO relationships (id, from_entity_id, to_entity_id, relationship_type, properties, user_id, superseded_by, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (id) DO NOTHING`,
		rel.ID,
		rel.FromEntityID,
		rel.ToEntityID,
		string(rel.RelationshipType),
		propertiesJSON,
		rel.UserID,
		rel.SupersededBy,
		rel.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to store relationship %s: %w", rel.ID, err)
	}

	return nil
}

func (r *relationshipRepository) GetRelationships(ctx context.Context, filter RelationshipFilter) ([]domain.Relationship, error) {
	conditions := []string{}
	args := []any{}

	if filter.FromEntityID != nil {
		args = append(args, *filter.FromEntityID)
		conditions = append(conditions, "from_entity_id = $"+strconv.Itoa(len(args)))
	}
	if filter.ToEntityID != nil {
		args = append(args, *filter.ToEntityID)
		conditions = append(conditions, "to_entity_id = $"+strconv.Itoa(len(args)))
	}
	if filter.Type != nil {
		args = append(args, string(*filter.Type))
		conditions = append(conditions, "relationship_type = $"+strconv.Itoa(len(args)))
	}

	query := `SELECT ` + relationshipColumns + ` FROM relationships`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at ASC, id ASC"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get relationships: %w", err)
	}
	defer rows.Close()

	return collectRelationships(rows)
}

func (r *relationshipRepository) RelationshipChangesAfter(ctx context.Context, afterSeq int64) ([]RelationshipChange, error) {
	rows, err := r.pool.Query(
		ctx,
		`SELECT seq, `+relationshipColumns+`
		 FROM relationships
		 WHERE seq > $1
		 ORDER BY seq ASC`,
		afterSeq,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list relationship changes: %w", err)
	}
	defer rows.Close()

	changes := []RelationshipChange{}
	for rows.Next() {
		var (
			seq            int64
			rel            domain.Relationship
			relType        string
			propertiesJSON []byte
		)
		if err := rows.Scan(
			&seq,
			&rel.ID,
			&rel.FromEntityID,
			&rel.ToEntityID,
			&relType,
			&propertiesJSON,
			&rel.UserID,
			&rel.SupersededBy,
			&rel.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan relationship change: %w", err)
		}
		rel.RelationshipType = domain.RelationshipType(relType)
		if err := json.Unmarshal(propertiesJSON, &rel.Properties); err != nil {
			return nil, fmt.Errorf("failed to unmarshal properties: %w", err)
		}
		changes = append(changes, RelationshipChange{Seq: seq, Relationship: rel})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate relationship changes: %w", err)
	}
	return changes, nil
}

func scanRelationship(row pgx.Row) (domain.Relationship, error) {
	var (
		rel            domain.Relationship
		relType        string
		propertiesJSON []byte
	)

	if err := row.Scan(
		&rel.ID,
		&rel.FromEntityID,
		&rel.ToEntityID,
		&relType,
		&propertiesJSON,
		&rel.UserID,
		&rel.SupersededBy,
		&rel.CreatedAt,
	); err != nil {
		return domain.Relationship{}, err
	}

	rel.RelationshipType = domain.RelationshipType(relType)

	if err := json.Unmarshal(propertiesJSON, &rel.Properties); err != nil {
		return domain.Relationship{}, fmt.Errorf("failed to unmarshal properties: %w", err)
	}

	return rel, nil
}

func collectRelationships(rows pgx.Rows) ([]domain.Relationship, error) {
	rels := []domain.Relationship{}
	for rows.Next() {
		rel, err := scanRelationship(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan relationship: %w", err)
		}
		rels = append(rels, rel)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate relationships: %w", err)
	}
	return rels, nil
}
