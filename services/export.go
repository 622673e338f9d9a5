package services

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"cinemind/internal/logger"

	"github.com/xuri/excelize/v2"
)

const (
	documentsSheet = "Documents"
	summarySheet   = "Summary"
	// ExportContentType is the MIME type of the spreadsheet export.
	ExportContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var documentHeaders = []string{
	"ID", "Source", "Movie ID", "Movie Title", "Year", "Author", "Rating",
	"Sentiment", "Sentiment Score", "Heading", "Created At", "Text",
}

// ExportService writes the index contents as a spreadsheet.
type ExportService struct {
	inspector *IndexInspector
	now       func() time.Time
}

func NewExportService(inspector *IndexInspector) *ExportService {
	return &ExportService{inspector: inspector, now: time.Now}
}

// ExportFileName is the suggested download name for an export taken now.
func (es *ExportService) ExportFileName() string {
	return fmt.Sprintf("cinemind_index_%s.xlsx", es.now().UTC().Format("20060102_150405"))
}

// WriteXLSX writes a Documents sheet with one row per stored document and a
// Summary sheet with per-source and per-sentiment counts. It returns the
// number of documents written.
func (es *ExportService) WriteXLSX(ctx context.Context, w io.Writer) (int, error) {
	records := es.inspector.All(ctx)
	stats := es.inspector.Stats(ctx, 0)

	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			logger.Error("closing export workbook", "error", err)
		}
	}()

	if err := f.SetSheetName("Sheet1", documentsSheet); err != nil {
		return 0, fmt.Errorf("failed to create sheet: %w", err)
	}

	for i, header := range documentHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(documentsSheet, cell, header)
	}

	for r, rec := range records {
		row := r + 2
		values := []any{
			rec.ID,
			rec.Metadata["source"],
			rec.Metadata["movie_id"],
			rec.Metadata["movie_title"],
			rec.Metadata["movie_year"],
			rec.Metadata["author"],
			rec.Metadata["rating"],
			rec.Metadata["sentiment_label"],
			rec.Metadata["sentiment_score"],
			rec.Metadata["heading"],
			rec.Metadata["created_at"],
			rec.Document,
		}
		for c, v := range values {
			if v == nil {
				continue
			}
			cell, _ := excelize.CoordinatesToCellName(c+1, row)
			f.SetCellValue(documentsSheet, cell, v)
		}
	}
	f.SetColWidth(documentsSheet, "A", "K", 18)
	f.SetColWidth(documentsSheet, "L", "L", 80)

	if _, err := f.NewSheet(summarySheet); err != nil {
		return 0, fmt.Errorf("failed to create summary sheet: %w", err)
	}
	summary := [][]any{
		{"Export Date", es.now().UTC().Format("2006-01-02 15:04:05")},
		{"Total Documents", stats.Total},
		{"", ""},
		{"Source", "Count"},
	}
	summary = append(summary, countRows(stats.BySource)...)
	summary = append(summary, []any{"", ""}, []any{"Sentiment", "Count"})
	summary = append(summary, countRows(stats.BySentiment)...)

	for i, row := range summary {
		for j, v := range row {
			cell, _ := excelize.CoordinatesToCellName(j+1, i+1)
			f.SetCellValue(summarySheet, cell, v)
		}
	}
	f.SetColWidth(summarySheet, "A", "B", 20)

	if err := f.Write(w); err != nil {
		return 0, fmt.Errorf("failed to write Excel file: %w", err)
	}
	return len(records), nil
}

func countRows(counts map[string]int) [][]any {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	rows := make([][]any, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, []any{k, counts[k]})
	}
	return rows
}
