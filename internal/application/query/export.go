package queryapp

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/mapflow/backend/internal/domain/shared"
)

// Export formats.
const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
)

// Export defaults, overridable via configuration.
const (
	DefaultExportRowLimit = 100000
	DefaultExportTimeout  = 120 * time.Second
)

// ExportResult carries the rendered file.
type ExportResult struct {
	FileName    string
	ContentType string
	Data        []byte
	RowCount    int
	Truncated   bool
}

// Exporter runs a validated query and renders the result as CSV or XLSX,
// bounded by a row limit and a timeout.
type Exporter struct {
	service  *Service
	rowLimit int
	timeout  time.Duration
	logger   *zap.Logger
}

// NewExporter wires the export pathway. Zero limit/timeout take the
// defaults.
func NewExporter(service *Service, rowLimit int, timeout time.Duration, logger *zap.Logger) *Exporter {
	if rowLimit <= 0 {
		rowLimit = DefaultExportRowLimit
	}
	if timeout <= 0 {
		timeout = DefaultExportTimeout
	}
	return &Exporter{service: service, rowLimit: rowLimit, timeout: timeout, logger: logger}
}

// Export validates and executes the query, then renders it. Result sets
// larger than the row limit are truncated and flagged.
func (e *Exporter) Export(ctx context.Context, sql, format string) (*ExportResult, error) {
	format = strings.ToLower(format)
	if format != FormatCSV && format != FormatXLSX {
		return nil, shared.ErrInvalidInput.WithMessage(
			fmt.Sprintf("unsupported export format %q", format))
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	results, err := e.service.Execute(ctx, sql)
	if err != nil {
		return nil, err
	}

	truncated := false
	rows := results.Rows
	if len(rows) > e.rowLimit {
		rows = rows[:e.rowLimit]
		truncated = true
	}

	stamp := time.Now().Format("20060102_150405")
	result := &ExportResult{RowCount: len(rows), Truncated: truncated}
	switch format {
	case FormatCSV:
		result.FileName = fmt.Sprintf("export_%s.csv", stamp)
		result.ContentType = "text/csv"
		result.Data, err = renderCSV(results.Columns, rows)
	case FormatXLSX:
		result.FileName = fmt.Sprintf("export_%s.xlsx", stamp)
		result.ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
		result.Data, err = renderXLSX(results.Columns, rows)
	}
	if err != nil {
		return nil, err
	}

	e.logger.Info("query exported",
		zap.String("format", format),
		zap.Int("rows", result.RowCount),
		zap.Bool("truncated", truncated))
	return result, nil
}

func renderCSV(columns []string, rows []map[string]any) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(columns); err != nil {
		return nil, err
	}
	record := make([]string, len(columns))
	for _, row := range rows {
		for i, col := range columns {
			record[i] = cellString(row[col])
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func renderXLSX(columns []string, rows []map[string]any) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)

	header := make([]any, len(columns))
	for i, col := range columns {
		header[i] = col
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return nil, err
	}
	for i, row := range rows {
		cells := make([]any, len(columns))
		for j, col := range columns {
			cells[j] = row[col]
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(sheet, cell, &cells); err != nil {
			return nil, err
		}
	}
	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func cellString(v any) string {
	if v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	case time.Time:
		return t.Format(time.RFC3339)
	default:
		return fmt.Sprintf("%v", t)
	}
}
