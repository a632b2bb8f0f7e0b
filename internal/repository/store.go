package repository

import (
	"github.com/jackc/pgx/v5/pgxpool"
)

// postgresStore bundles the four Postgres repositories behind the Store
// interface so callers wire one value.
type postgresStore struct {
	EntityStore
	RelationshipStore
	CheckpointStore
	ConflictStore
}

// NewPostgresStore wires the full persistence layer over one pool.
func NewPostgresStore(pool *pgxpool.Pool) Store {
	entities := NewEntityRepository(pool)
	return &postgresStore{
		EntityStore:       entities,
		RelationshipStore: NewRelationshipRepository(pool, entities),
		CheckpointStore:   NewCheckpointRepository(pool),
		ConflictStore:     NewConflictRepository(pool),
	}
}
