// Package export renders the knowledge graph as an Excel workbook: one sheet
// per entity type holding the latest versions, plus one sheet of
// relationships.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/rpattn/homegraph/internal/domain"
	"github.com/rpattn/homegraph/internal/repository"

	"github.com/xuri/excelize/v2"
)

const relationshipsSheet = "Relationships"

var entityHeaders = []string{"ID", "Version", "Name", "Content", "User", "Source", "Created At", "Last Modified"}

var relationshipHeaders = []string{"ID", "From", "To", "Type", "Properties", "User", "Created At"}

// Service builds inventory workbooks from the store.
type Service struct {
	entities      repository.EntityStore
	relationships repository.RelationshipStore
}

// NewService wires an export service over the store.
func NewService(entities repository.EntityStore, relationships repository.RelationshipStore) *Service {
	return &Service{entities: entities, relationships: relationships}
}

// WriteInventory streams a full workbook to w. Sheets appear in entity-type
// name order so the same store state always produces the same workbook.
func (s *Service) WriteInventory(ctx context.Context, w io.Writer) error {
	latest, err := s.entities.ListLatest(ctx)
	if err != nil {
		return fmt.Errorf("failed to list entities for export: %w", err)
	}
	rels, err := s.relationships.GetRelationships(ctx, repository.RelationshipFilter{})
	if err != nil {
		return fmt.Errorf("failed to list relationships for export: %w", err)
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	byType := map[domain.EntityType][]domain.Entity{}
	for _, e := range latest {
		byType[e.EntityType] = append(byType[e.EntityType], e)
	}
	types := make([]string, 0, len(byType))
	for t := range byType {
		types = append(types, string(t))
	}
	sort.Strings(types)

	for i, t := range types {
		sheet := sheetName(t)
		if i == 0 {
			if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
				return fmt.Errorf("failed to rename sheet: %w", err)
			}
		} else {
			if _, err := f.NewSheet(sheet); err != nil {
				return fmt.Errorf("failed to create sheet %s: %w", sheet, err)
			}
		}
		if err := writeEntitySheet(f, sheet, byType[domain.EntityType(t)]); err != nil {
			return err
		}
	}

	if len(types) == 0 {
		if err := f.SetSheetName(f.GetSheetName(0), relationshipsSheet); err != nil {
			return fmt.Errorf("failed to rename sheet: %w", err)
		}
	} else {
		if _, err := f.NewSheet(relationshipsSheet); err != nil {
			return fmt.Errorf("failed to create relationships sheet: %w", err)
		}
	}
	if err := writeRelationshipSheet(f, rels); err != nil {
		return err
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func writeEntitySheet(f *excelize.File, sheet string, entities []domain.Entity) error {
	if err := writeRow(f, sheet, 1, toAny(entityHeaders)); err != nil {
		return err
	}
	for i, e := range entities {
		content, err := json.Marshal(e.Content)
		if err != nil {
			return fmt.Errorf("failed to marshal content for %s: %w", e.ID, err)
		}
		row := []any{
			e.ID.String(),
			e.Version,
			e.Name(),
			string(content),
			e.UserID,
			string(e.SourceType),
			e.CreatedAt.UTC().Format(time.RFC3339),
			e.LastModified.UTC().Format(time.RFC3339),
		}
		if err := writeRow(f, sheet, i+2, row); err != nil {
			return err
		}
	}
	return nil
}

func writeRelationshipSheet(f *excelize.File, rels []domain.Relationship) error {
	if err := writeRow(f, relationshipsSheet, 1, toAny(relationshipHeaders)); err != nil {
		return err
	}
	for i, rel := range rels {
		properties, err := json.Marshal(rel.Properties)
		if err != nil {
			return fmt.Errorf("failed to marshal properties for %s: %w", rel.ID, err)
		}
		row := []any{
			rel.ID.String(),
			rel.FromEntityID.String(),
			rel.ToEntityID.String(),
			string(rel.RelationshipType),
			string(properties),
			rel.UserID,
			rel.CreatedAt.UTC().Format(time.RFC3339),
		}
		if err := writeRow(f, relationshipsSheet, i+2, row); err != nil {
			return err
		}
	}
	return nil
}

func writeRow(f *excelize.File, sheet string, rowNum int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, rowNum)
	if err != nil {
		return fmt.Errorf("failed to build cell reference: %w", err)
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("failed to write row %d on %s: %w", rowNum, sheet, err)
	}
	return nil
}

// sheetName maps an entity type to a sheet title. Types are short lowercase
// words, well inside Excel's 31-character sheet name limit.
func sheetName(entityType string) string {
	if entityType == "" {
		return "Untyped"
	}
	return "Type " + entityType
}

func toAny(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
