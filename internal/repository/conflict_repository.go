package repository

import (
	"context"
	"fmt"

	"github.com/rpattn/homegraph/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// conflictRepository implements ConflictStore on Postgres for audit of
// resolved conflicts.
type conflictRepository struct {
	pool *pgxpool.Pool
}

// NewConflictRepository wires a conflict store backed by pgxpool.
func NewConflictRepository(pool *pgxpool.Pool) ConflictStore {
	return &conflictRepository{pool: pool}
}

func (r *conflictRepository) RecordConflict(ctx context.Context, resolution domain.ConflictResolution) error {
	_, err := r.pool.Exec(
		ctx,
		`INSERT INTO sync_conflicts (id, entity_id, version_a, version_b, winner, detected_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO NOTHING`,
		resolution.ID,
		resolution.EntityID,
		resolution.VersionA,
		resolution.VersionB,
		resolution.Winner,
		resolution.DetectedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record conflict: %w", err)
	}
	return nil
}

func (r *conflictRepository) ListConflicts(ctx context.Context, entityID *uuid.UUID, limit int) ([]domain.ConflictResolution, error) {
	if limit <= 0 {
		limit = 200
	}

	query := `SELECT id, entity_id, version_a, version_b, winner, detected_at
	          FROM sync_conflicts`
	args := []any{}
	if entityID != nil {
		query += ` WHERE entity_id = $1`
		args = append(args, *entityID)
	}
	query += fmt.Sprintf(` ORDER BY detected_at DESC LIMIT %d`, limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list conflicts: %w", err)
	}
	defer rows.Close()

	conflicts := []domain.ConflictResolution{}
	for rows.Next() {
		var c domain.ConflictResolution
		if scanErr := rows.Scan(&c.ID, &c.EntityID, &c.VersionA, &c.VersionB, &c.Winner, &c.DetectedAt); scanErr != nil {
			return nil, fmt.Errorf("failed to scan conflict: %w", scanErr)
		}
		conflicts = append(conflicts, c)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate conflicts: %w", rowsErr)
	}

	return conflicts, nil
}
