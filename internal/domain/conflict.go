package domain

import (
	"time"

	"github.com/google/uuid"
)

// DefaultConflictWindow is the near-simultaneous window inside which two
// timestamps are treated as "the same instant" and the version token decides.
// It exists because wall clocks on independent replicas drift; the value is
// configurable, see config.SyncConfig.
const DefaultConflictWindow = time.Second

// ConflictResolution records one resolved conflict. Both versions stay stored
// and retrievable; only the latest pointer used by the graph index prefers
// the winner. Resolution is automatic but never silently destructive — every
// record is returned to the caller and persisted for audit.
type ConflictResolution struct {
	ID         uuid.UUID `json:"id"`
	EntityID   uuid.UUID `json:"entity_id"`
	VersionA   string    `json:"version_a"`
	VersionB   string    `json:"version_b"`
	Winner     string    `json:"winner"`
	DetectedAt time.Time `json:"detected_at"`
}

// ConflictResolver applies the last-write-wins rule. Every replica computes
// the same winner from the same two versions, which is what guarantees
// convergence without a central lock or vector clocks.
type ConflictResolver struct {
	// Window is the near-simultaneous window. Zero means DefaultConflictWindow.
	Window time.Duration
}

func (r ConflictResolver) window() time.Duration {
	if r.Window <= 0 {
		return DefaultConflictWindow
	}
	return r.Window
}

// InConflict reports whether two versions of the same entity ID were created
// independently, i.e. neither one's parent set contains the other. A linear
// update chain is not a conflict.
func (r ConflictResolver) InConflict(a, b Entity) bool {
	if a.ID != b.ID || a.Version == b.Version {
		return false
	}
	return !a.HasParent(b.Version) && !b.HasParent(a.Version)
}

// Wins reports whether a beats b under last-write-wins: a strictly later
// timestamp wins outright when the two differ by more than the window;
// otherwise the lexicographically greater version token wins. Version tokens
// are timestamp-prefixed, so inside the window this still tracks creation
// order and falls back to the actor only on identical clock readings.
func (r ConflictResolver) Wins(a, b Entity) bool {
	d := a.LastModified.Sub(b.LastModified)
	if d > r.window() {
		return true
	}
	if d < -r.window() {
		return false
	}
	return a.Version > b.Version
}

// Resolve picks the winner of a conflicting pair and returns it along with
// the audit record.
func (r ConflictResolver) Resolve(a, b Entity) (Entity, ConflictResolution) {
	winner := b
	if r.Wins(a, b) {
		winner = a
	}
	return winner, ConflictResolution{
		ID:         uuid.New(),
		EntityID:   a.ID,
		VersionA:   a.Version,
		VersionB:   b.Version,
		Winner:     winner.Version,
		DetectedAt: time.Now().UTC(),
	}
}

// Latest reports whether a should be preferred over b as the current version
// of an entity ID. Unlike Wins this is a total order over (last_modified,
// version), so replicas converge on the same latest pointer regardless of the
// order changes arrive in.
func Latest(a, b Entity) bool {
	if !a.LastModified.Equal(b.LastModified) {
		return a.LastModified.After(b.LastModified)
	}
	return a.Version > b.Version
}
