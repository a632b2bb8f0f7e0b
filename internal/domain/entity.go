package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Entity is one immutable version of a node in the knowledge graph. The ID is
// stable across versions; every "update" writes a new row sharing the same ID
// with the prior version's token recorded in ParentVersions. Rows are never
// rewritten or deleted, which is what keeps sync application idempotent.
type Entity struct {
	ID             uuid.UUID      `json:"id"`
	Version        string         `json:"version"`
	EntityType     EntityType     `json:"entity_type"`
	Content        map[string]any `json:"content"`
	ParentVersions []string       `json:"parent_versions"`
	UserID         string         `json:"user_id"`
	SourceType     SourceType     `json:"source_type"`
	CreatedAt      time.Time      `json:"created_at"`
	LastModified   time.Time      `json:"last_modified"`
}

// NewEntity creates the first version of a new entity.
func NewEntity(entityType EntityType, content map[string]any, userID string, source SourceType) Entity {
	now := time.Now().UTC()
	return Entity{
		ID:             uuid.New(),
		Version:        NewVersionToken(now, userID),
		EntityType:     entityType,
		Content:        copyContent(content),
		ParentVersions: []string{},
		UserID:         userID,
		SourceType:     source,
		CreatedAt:      now,
		LastModified:   now,
	}
}

// NewVersionToken builds the opaque version token for a write. The token is
// timestamp+actor so that lexicographic comparison of two tokens matches
// creation order down to identical clocks, where the actor breaks the tie.
// It carries no causal-ordering guarantee; only ParentVersions and the
// conflict resolver determine conflict outcomes.
func NewVersionToken(now time.Time, actor string) string {
	return fmt.Sprintf("%s-%s", now.UTC().Format("20060102T150405.000000000Z"), actor)
}

// NextVersion returns a new version of the entity carrying the given content,
// with the current version recorded as its sole parent. The receiver is left
// untouched.
func (e Entity) NextVersion(content map[string]any, userID string) Entity {
	now := time.Now().UTC()
	return Entity{
		ID:             e.ID,
		Version:        NewVersionToken(now, userID),
		EntityType:     e.EntityType,
		Content:        copyContent(content),
		ParentVersions: []string{e.Version},
		UserID:         userID,
		SourceType:     e.SourceType,
		CreatedAt:      e.CreatedAt,
		LastModified:   now,
	}
}

// WithContent returns a new version with the given keys merged over the
// current content. Keys absent from changes are carried forward unchanged.
func (e Entity) WithContent(changes map[string]any, userID string) Entity {
	merged := copyContent(e.Content)
	for k, v := range changes {
		merged[k] = v
	}
	return e.NextVersion(merged, userID)
}

// HasParent reports whether version is in this entity's parent set.
func (e Entity) HasParent(version string) bool {
	for _, p := range e.ParentVersions {
		if p == version {
			return true
		}
	}
	return false
}

// Name returns the content name field, or "" when absent.
func (e Entity) Name() string {
	if name, ok := e.Content["name"].(string); ok {
		return name
	}
	return ""
}

// Validate checks the invariants a version must satisfy before persistence.
func (e Entity) Validate() error {
	if e.ID == uuid.Nil {
		return &ValidationError{Field: "id", Reason: "entity id is required"}
	}
	if e.Version == "" {
		return &ValidationError{Field: "version", Reason: "version token is required"}
	}
	if !e.EntityType.Valid() {
		return &ValidationError{Field: "entity_type", Reason: fmt.Sprintf("unknown entity type %q", e.EntityType)}
	}
	if !e.SourceType.Valid() {
		return &ValidationError{Field: "source_type", Reason: fmt.Sprintf("unknown source type %q", e.SourceType)}
	}
	return nil
}

// ContentJSON marshals the content map for JSONB storage.
func (e *Entity) ContentJSON() (json.RawMessage, error) {
	if e.Content == nil {
		e.Content = make(map[string]any)
	}
	return json.Marshal(e.Content)
}

// ContentFromJSON creates a content map from JSONB data.
func ContentFromJSON(contentJSON json.RawMessage) (map[string]any, error) {
	var content map[string]any
	err := json.Unmarshal(contentJSON, &content)
	return content, err
}

// copyContent creates a shallow copy of the content map so callers cannot
// mutate a stored version through a retained reference.
func copyContent(content map[string]any) map[string]any {
	newContent := make(map[string]any, len(content))
	for k, v := range content {
		newContent[k] = v
	}
	return newContent
}
