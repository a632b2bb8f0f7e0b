package export

import (
	"bytes"
	"context"
	"testing"

	"github.com/rpattn/homegraph/internal/domain"
	"github.com/rpattn/homegraph/internal/repository"

	"github.com/xuri/excelize/v2"
)

func TestWriteInventory(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()

	office := domain.NewEntity(domain.EntityTypeRoom, map[string]any{"name": "Office"}, "u1", domain.SourceManual)
	lamp := domain.NewEntity(domain.EntityTypeDevice, map[string]any{"name": "Lamp"}, "u1", domain.SourceManual)
	for _, e := range []domain.Entity{office, lamp} {
		if err := store.StoreEntity(ctx, e); err != nil {
			t.Fatalf("store entity: %v", err)
		}
	}
	rel := domain.NewRelationship(lamp.ID, office.ID, domain.RelationshipLocatedIn, nil, "u1")
	if err := store.StoreRelationship(ctx, rel); err != nil {
		t.Fatalf("store relationship: %v", err)
	}
	// A superseded version must not appear: only latest versions export.
	renamed := lamp.WithContent(map[string]any{"name": "Desk Lamp"}, "u1")
	if err := store.StoreEntity(ctx, renamed); err != nil {
		t.Fatalf("store update: %v", err)
	}

	var buf bytes.Buffer
	if err := NewService(store, store).WriteInventory(ctx, &buf); err != nil {
		t.Fatalf("write inventory: %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("reopen workbook: %v", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	want := map[string]bool{"Type device": false, "Type room": false, "Relationships": false}
	for _, sheet := range sheets {
		if _, ok := want[sheet]; ok {
			want[sheet] = true
		}
	}
	for sheet, found := range want {
		if !found {
			t.Fatalf("missing sheet %q in %v", sheet, sheets)
		}
	}

	rows, err := f.GetRows("Type device")
	if err != nil {
		t.Fatalf("read device sheet: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("device sheet must hold header plus one latest row, got %d rows", len(rows))
	}
	if rows[0][0] != "ID" || rows[0][2] != "Name" {
		t.Fatalf("unexpected header row: %v", rows[0])
	}
	if rows[1][0] != lamp.ID.String() || rows[1][2] != "Desk Lamp" {
		t.Fatalf("device row must carry the latest version: %v", rows[1])
	}

	relRows, err := f.GetRows("Relationships")
	if err != nil {
		t.Fatalf("read relationships sheet: %v", err)
	}
	if len(relRows) != 2 || relRows[1][0] != rel.ID.String() {
		t.Fatalf("unexpected relationship rows: %v", relRows)
	}
	if relRows[1][3] != string(domain.RelationshipLocatedIn) {
		t.Fatalf("relationship type missing: %v", relRows[1])
	}
}

func TestWriteInventoryEmptyStore(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()

	var buf bytes.Buffer
	if err := NewService(store, store).WriteInventory(ctx, &buf); err != nil {
		t.Fatalf("write inventory: %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("reopen workbook: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows("Relationships")
	if err != nil {
		t.Fatalf("read relationships sheet: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("empty store must still produce the header row, got %v", rows)
	}
}
