package repository

import (
	"context"
	"fmt"

	"github.com/rpattn/homegraph/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// checkpointRepository implements CheckpointStore on Postgres, one row per
// known remote replica.
type checkpointRepository struct {
	pool *pgxpool.Pool
}

// NewCheckpointRepository wires a checkpoint store backed by pgxpool.
func NewCheckpointRepository(pool *pgxpool.Pool) CheckpointStore {
	return &checkpointRepository{pool: pool}
}

func (r *checkpointRepository) GetCheckpoint(ctx context.Context, remoteID string) (domain.SyncCheckpoint, bool, error) {
	var cp domain.SyncCheckpoint
	err := r.pool.QueryRow(
		ctx,
		`SELECT remote_id, sent_entity_seq, sent_relationship_seq, received_entity_seq, received_relationship_seq, updated_at
		 FROM sync_checkpoints
		 WHERE remote_id = $1`,
		remoteID,
	).Scan(&cp.RemoteID, &cp.SentEntitySeq, &cp.SentRelationshipSeq, &cp.ReceivedEntitySeq, &cp.ReceivedRelationshipSeq, &cp.UpdatedAt)
	if err == pgx.ErrNoRows {
		return domain.SyncCheckpoint{}, false, nil
	}
	if err != nil {
		return domain.SyncCheckpoint{}, false, fmt.Errorf("failed to get checkpoint for %s: %w", remoteID, err)
	}
	return cp, true, nil
}

func (r *checkpointRepository) SaveCheckpoint(ctx context.Context, checkpoint domain.SyncCheckpoint) error {
	_, err := r.pool.Exec(
		ctx,
		`INSERT INTO sync_checkpoints (remote_id, sent_entity_seq, sent_relationship_seq, received_entity_seq, received_relationship_seq, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (remote_id) DO UPDATE
		 SET sent_entity_seq = EXCLUDED.sent_entity_seq,
		     sent_relationship_seq = EXCLUDED.sent_relationship_seq,
		     received_entity_seq = EXCLUDED.received_entity_seq,
		     received_relationship_seq = EXCLUDED.received_relationship_seq,
		     updated_at = EXCLUDED.updated_at`,
		checkpoint.RemoteID,
		checkpoint.SentEntitySeq,
		checkpoint.SentRelationshipSeq,
		checkpoint.ReceivedEntitySeq,
		checkpoint.ReceivedRelationshipSeq,
		checkpoint.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save checkpoint for %s: %w", checkpoint.RemoteID, err)
	}
	return nil
}
