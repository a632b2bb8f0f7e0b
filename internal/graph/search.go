package graph

import (
	"sort"
	"strings"

	"github.com/rpattn/homegraph/internal/domain"

	"github.com/google/uuid"
)

// Scoring weights. A hit on the name field outranks any number of hits on
// other content fields; other-field hits add up but never past the cap.
const (
	nameMatchWeight  = 1.0
	fieldMatchWeight = 0.5
	scoreCap         = 1.0
)

// SearchResult pairs an entity with its relevance score.
type SearchResult struct {
	Entity domain.Entity `json:"entity"`
	Score  float64       `json:"score"`
}

// SearchEngine ranks indexed entities by substring relevance against their
// content. It reads the same index the path finder does.
type SearchEngine struct {
	index *Index
}

// NewSearchEngine creates a search engine reading the given index.
func NewSearchEngine(index *Index) *SearchEngine {
	return &SearchEngine{index: index}
}

// Search scores every candidate entity against the query and returns the
// matches sorted by descending score; ties break by ascending entity ID so
// results are deterministic. An empty entityTypes slice searches all types.
func (s *SearchEngine) Search(query string, entityTypes []domain.EntityType) []SearchResult {
	query = strings.TrimSpace(query)
	if query == "" {
		return []SearchResult{}
	}

	results := []SearchResult{}
	for _, e := range s.candidates(entityTypes) {
		if score := scoreEntity(query, e); score > 0 {
			results = append(results, SearchResult{Entity: e, Score: score})
		}
	}
	sortResults(results)
	return results
}

// FindSimilar scores every candidate against the target entity's own content
// values, reusing the search scorer, and returns entities at or above the
// threshold. The target itself is excluded.
func (s *SearchEngine) FindSimilar(entityID uuid.UUID, threshold float64) []SearchResult {
	target, ok := s.index.Entity(entityID)
	if !ok {
		return []SearchResult{}
	}

	queries := contentStrings(target.Content)
	if len(queries) == 0 {
		return []SearchResult{}
	}

	results := []SearchResult{}
	for _, e := range s.index.Entities() {
		if e.ID == entityID {
			continue
		}
		best := 0.0
		for _, q := range queries {
			if score := scoreEntity(q, e); score > best {
				best = score
			}
		}
		if best >= threshold {
			results = append(results, SearchResult{Entity: e, Score: best})
		}
	}
	sortResults(results)
	return results
}

func (s *SearchEngine) candidates(entityTypes []domain.EntityType) []domain.Entity {
	if len(entityTypes) == 0 {
		return s.index.Entities()
	}
	candidates := []domain.Entity{}
	for _, t := range entityTypes {
		candidates = append(candidates, s.index.EntitiesByType(t)...)
	}
	return candidates
}

// scoreEntity computes the relevance of one entity for one query: a name
// substring match contributes nameMatchWeight, every other matching content
// field contributes fieldMatchWeight additively, capped at scoreCap. Matching
// is case-insensitive.
func scoreEntity(query string, e domain.Entity) float64 {
	needle := strings.ToLower(query)
	score := 0.0

	for field, value := range e.Content {
		if !valueContains(value, needle) {
			continue
		}
		if field == "name" {
			score += nameMatchWeight
		} else {
			score += fieldMatchWeight
		}
	}

	if score > scoreCap {
		score = scoreCap
	}
	return score
}

func valueContains(value any, needle string) bool {
	switch v := value.(type) {
	case string:
		return strings.Contains(strings.ToLower(v), needle)
	case []any:
		for _, item := range v {
			if valueContains(item, needle) {
				return true
			}
		}
	}
	return false
}

// contentStrings collects the string values of a content map, name first,
// remaining fields in sorted key order for determinism.
func contentStrings(content map[string]any) []string {
	values := []string{}
	if name, ok := content["name"].(string); ok && name != "" {
		values = append(values, name)
	}

	keys := make([]string, 0, len(content))
	for k := range content {
		if k == "name" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if v, ok := content[k].(string); ok && v != "" {
			values = append(values, v)
		}
	}
	return values
}

func sortResults(results []SearchResult) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Entity.ID.String() < results[j].Entity.ID.String()
	})
}
