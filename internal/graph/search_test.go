package graph

import (
	"testing"

	"github.com/rpattn/homegraph/internal/domain"

	"github.com/google/uuid"
)

func indexed(index *Index, entityType domain.EntityType, content map[string]any) domain.Entity {
	e := domain.NewEntity(entityType, content, "u1", domain.SourceManual)
	index.ApplyEntity(e)
	return e
}

func TestSearchNameOutranksOtherFields(t *testing.T) {
	index := NewIndex()
	byName := indexed(index, domain.EntityTypeDevice, map[string]any{
		"name": "Ceiling Light",
	})
	byDescription := indexed(index, domain.EntityTypeDevice, map[string]any{
		"name":        "Dimmer",
		"description": "controls the light over the table",
	})
	indexed(index, domain.EntityTypeDevice, map[string]any{"name": "Thermostat"})

	results := NewSearchEngine(index).Search("light", nil)

	if len(results) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(results))
	}
	if results[0].Entity.ID != byName.ID {
		t.Fatalf("name match must rank first, got %v", results[0].Entity.Name())
	}
	if results[1].Entity.ID != byDescription.ID {
		t.Fatalf("field match must rank second, got %v", results[1].Entity.Name())
	}
	if results[0].Score <= results[1].Score {
		t.Fatalf("scores must separate name and field matches: %v vs %v", results[0].Score, results[1].Score)
	}
}

func TestSearchCaseInsensitive(t *testing.T) {
	index := NewIndex()
	lamp := indexed(index, domain.EntityTypeDevice, map[string]any{"name": "Desk LAMP"})

	results := NewSearchEngine(index).Search("lamp", nil)
	if len(results) != 1 || results[0].Entity.ID != lamp.ID {
		t.Fatalf("case-insensitive match failed: %+v", results)
	}
}

func TestSearchTypeFilter(t *testing.T) {
	index := NewIndex()
	indexed(index, domain.EntityTypeDevice, map[string]any{"name": "Office Lamp"})
	officeRoom := indexed(index, domain.EntityTypeRoom, map[string]any{"name": "Office"})

	results := NewSearchEngine(index).Search("office", []domain.EntityType{domain.EntityTypeRoom})
	if len(results) != 1 || results[0].Entity.ID != officeRoom.ID {
		t.Fatalf("type filter failed: %+v", results)
	}
}

func TestSearchScoreCap(t *testing.T) {
	index := NewIndex()
	indexed(index, domain.EntityTypeDevice, map[string]any{
		"name":        "Warm Light",
		"description": "a warm light",
		"notes":       "light in the corner",
		"zone":        "light zone",
	})

	results := NewSearchEngine(index).Search("light", nil)
	if len(results) != 1 {
		t.Fatalf("expected 1 match, got %d", len(results))
	}
	if results[0].Score > 1.0 {
		t.Fatalf("score must be capped at 1.0, got %v", results[0].Score)
	}
}

func TestSearchEmptyQuery(t *testing.T) {
	index := NewIndex()
	indexed(index, domain.EntityTypeDevice, map[string]any{"name": "Lamp"})

	if results := NewSearchEngine(index).Search("   ", nil); len(results) != 0 {
		t.Fatalf("blank query must match nothing, got %d", len(results))
	}
}

func TestSearchMatchesInsideStringArrays(t *testing.T) {
	index := NewIndex()
	tagged := indexed(index, domain.EntityTypeDevice, map[string]any{
		"name": "Strip",
		"tags": []any{"ambient", "light"},
	})

	results := NewSearchEngine(index).Search("light", nil)
	if len(results) != 1 || results[0].Entity.ID != tagged.ID {
		t.Fatalf("array values must be searchable: %+v", results)
	}
}

func TestFindSimilarUsesTargetContent(t *testing.T) {
	index := NewIndex()
	target := indexed(index, domain.EntityTypeDevice, map[string]any{"name": "Floor Lamp"})
	twin := indexed(index, domain.EntityTypeDevice, map[string]any{"name": "Floor Lamp Mk II"})
	indexed(index, domain.EntityTypeDevice, map[string]any{"name": "Thermostat"})

	results := NewSearchEngine(index).FindSimilar(target.ID, 0.5)
	if len(results) != 1 || results[0].Entity.ID != twin.ID {
		t.Fatalf("expected only the twin above threshold: %+v", results)
	}
	for _, r := range results {
		if r.Entity.ID == target.ID {
			t.Fatal("target must not appear in its own similarity results")
		}
	}
}

func TestFindSimilarUnknownEntity(t *testing.T) {
	index := NewIndex()
	if results := NewSearchEngine(index).FindSimilar(uuid.New(), 0.1); len(results) != 0 {
		t.Fatalf("unknown entity must yield no results, got %d", len(results))
	}
}
