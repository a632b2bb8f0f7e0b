package domain

import "time"

// SyncCheckpoint records, per known remote replica, the boundary of changes
// already exchanged. Sent seqs index this replica's own store: rows at or
// below them have been acknowledged by the remote and need no re-send.
// Received seqs index the remote's store and are echoed back as the cursor of
// the next request, so the remote stays stateless about what it has served
// us. A stale checkpoint only causes idempotent re-sends, so losing one is
// self-correcting on the next exchange.
type SyncCheckpoint struct {
	RemoteID                string    `json:"remote_id"`
	SentEntitySeq           int64     `json:"sent_entity_seq"`
	SentRelationshipSeq     int64     `json:"sent_relationship_seq"`
	ReceivedEntitySeq       int64     `json:"received_entity_seq"`
	ReceivedRelationshipSeq int64     `json:"received_relationship_seq"`
	UpdatedAt               time.Time `json:"updated_at"`
}
