package tabular

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// parseExcel decodes an Excel workbook. Sheets are read in order; each
// sheet's first row is its header and data rows continue the 1-indexed
// source row numbering across sheets. Headers are the union of all sheet
// headers in first-seen order.
func parseExcel(data []byte) (*Table, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	defer f.Close()

	table := &Table{}
	seen := make(map[string]struct{})
	sourceRow := 0

	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("%w: sheet %q: %v", ErrMalformed, sheet, err)
		}
		if len(rows) == 0 {
			continue
		}

		headers := make([]string, len(rows[0]))
		for i, h := range rows[0] {
			headers[i] = strings.TrimSpace(h)
			if headers[i] != "" {
				table.Headers = appendHeader(table.Headers, seen, headers[i])
			}
		}

		for _, record := range rows[1:] {
			values := make(map[string]string, len(headers))
			for i, h := range headers {
				if h == "" {
					continue
				}
				if i < len(record) {
					values[h] = strings.TrimSpace(record[i])
				} else {
					values[h] = ""
				}
			}
			row := Row{Values: values}
			if row.IsEmpty() {
				continue
			}
			sourceRow++
			row.SourceRowNumber = sourceRow
			table.Rows = append(table.Rows, row)
		}
	}

	if len(table.Headers) == 0 {
		return nil, ErrMissingHeader
	}
	return table, nil
}
