// Package ingestion imports tabular files (CSV, XLSX) as entities. Every row
// becomes one entity of the requested type; columns become content keys with
// scalar values coerced from the cell text.
package ingestion

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rpattn/homegraph/internal/domain"
	"github.com/rpattn/homegraph/internal/knowledge"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

var (
	// ErrUnsupportedFormat is returned when an uploaded file is not supported.
	ErrUnsupportedFormat = errors.New("unsupported file format")

	byteOrderMark = []byte{0xEF, 0xBB, 0xBF}
)

// Service ingests tabular data as entities through the knowledge service, so
// imported rows get versions, index updates, and sync eligibility like any
// other local write.
type Service struct {
	knowledge *knowledge.Service
	logger    *zap.Logger
}

// NewService creates a new ingestion service.
func NewService(kn *knowledge.Service, logger *zap.Logger) *Service {
	return &Service{knowledge: kn, logger: logger}
}

// Request describes the ingestion input.
type Request struct {
	EntityType domain.EntityType
	UserID     string
	FileName   string
	Data       io.Reader
}

// RowError reports one row that could not be imported.
type RowError struct {
	RowNumber int    `json:"row_number"`
	Error     string `json:"error"`
}

// Summary reports the outcome of one import.
type Summary struct {
	FileName  string     `json:"file_name"`
	Total     int        `json:"total"`
	Imported  int        `json:"imported"`
	Failed    int        `json:"failed"`
	EntityIDs []string   `json:"entity_ids"`
	Errors    []RowError `json:"errors,omitempty"`
}

// Ingest parses the file and creates one entity per data row. Rows that fail
// validation are reported and skipped; the rest import normally.
func (s *Service) Ingest(ctx context.Context, req Request) (Summary, error) {
	if !req.EntityType.Valid() {
		return Summary{}, &domain.ValidationError{Field: "entity_type", Reason: "unknown entity type " + string(req.EntityType)}
	}

	payload, err := io.ReadAll(req.Data)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to read upload: %w", err)
	}

	headers, rows, err := parseTable(req.FileName, payload)
	if err != nil {
		return Summary{}, err
	}

	summary := Summary{FileName: req.FileName, Total: len(rows), EntityIDs: []string{}}
	for i, row := range rows {
		content := rowContent(headers, row)
		entity, err := s.knowledge.CreateEntity(ctx, req.EntityType, content, req.UserID, domain.SourceImported)
		if err != nil {
			summary.Failed++
			summary.Errors = append(summary.Errors, RowError{RowNumber: i + 2, Error: err.Error()})
			continue
		}
		summary.Imported++
		summary.EntityIDs = append(summary.EntityIDs, entity.ID.String())
	}

	s.logger.Info("import complete",
		zap.String("file", req.FileName),
		zap.String("entity_type", string(req.EntityType)),
		zap.Int("imported", summary.Imported),
		zap.Int("failed", summary.Failed),
	)
	return summary, nil
}

// rowContent maps one data row onto a content map, coercing scalar cell
// values. Empty cells are omitted.
func rowContent(headers []string, row []string) map[string]any {
	content := make(map[string]any, len(headers))
	for i, header := range headers {
		if i >= len(row) {
			break
		}
		cell := strings.TrimSpace(row[i])
		if cell == "" {
			continue
		}
		content[header] = coerceValue(cell)
	}
	return content
}

func coerceValue(cell string) any {
	switch strings.ToLower(cell) {
	case "true":
		return true
	case "false":
		return false
	}
	if n, err := strconv.ParseInt(cell, 10, 64); err == nil {
		return float64(n)
	}
	if f, err := strconv.ParseFloat(cell, 64); err == nil {
		return f
	}
	return cell
}

func parseTable(fileName string, payload []byte) ([]string, [][]string, error) {
	ext := strings.ToLower(filepath.Ext(fileName))
	switch ext {
	case ".csv":
		return parseCSV(payload)
	case ".xlsx":
		return parseExcel(payload)
	default:
		return nil, nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}
}

func parseCSV(payload []byte) ([]string, [][]string, error) {
	reader := bufio.NewReader(bytes.NewReader(payload))
	if prefix, err := reader.Peek(len(byteOrderMark)); err == nil && bytes.Equal(prefix, byteOrderMark) {
		_, _ = reader.Discard(len(byteOrderMark))
	}

	csvReader := csv.NewReader(reader)
	csvReader.TrimLeadingSpace = true
	csvReader.FieldsPerRecord = -1

	records, err := csvReader.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read csv: %w", err)
	}

	return normalizeTable(records)
}

func parseExcel(payload []byte) ([]string, [][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(payload))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open xlsx: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil, errors.New("excel file has no sheets")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read rows from xlsx: %w", err)
	}

	return normalizeTable(rows)
}

// normalizeTable takes the first non-empty row as the header and every later
// non-empty row as data.
func normalizeTable(records [][]string) ([]string, [][]string, error) {
	var headerRow []string
	var dataRows [][]string
	for _, row := range records {
		if len(cleanRow(row)) == 0 {
			continue
		}
		if headerRow == nil {
			headerRow = row
			continue
		}
		dataRows = append(dataRows, row)
	}

	if headerRow == nil {
		return nil, nil, errors.New("header row could not be detected")
	}

	return sanitizeHeaders(headerRow), dataRows, nil
}

func cleanRow(row []string) []string {
	var cleaned []string
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			cleaned = append(cleaned, cell)
		}
	}
	return cleaned
}

func sanitizeHeaders(raw []string) []string {
	headers := make([]string, len(raw))
	seen := make(map[string]int)

	for idx, value := range raw {
		name := strings.TrimSpace(value)
		name = strings.ReplaceAll(name, " ", "_")
		name = strings.ReplaceAll(name, ".", "_")
		name = strings.ReplaceAll(name, "-", "_")
		name = strings.Trim(name, "_")
		name = strings.ToLower(name)
		if name == "" {
			name = fmt.Sprintf("column_%d", idx+1)
		}

		base := name
		count := seen[base]
		if count > 0 {
			name = fmt.Sprintf("%s_%d", base, count+1)
		}
		seen[base] = count + 1

		headers[idx] = name
	}

	return headers
}
