package tabular

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

// parseCSV decodes a UTF-8 CSV file. The first record is the header; data
// rows are numbered from 1. Completely empty rows are skipped without
// consuming a row number.
func parseCSV(data []byte) (*Table, error) {
	reader := bufio.NewReader(bytes.NewReader(data))

	// Detect and strip UTF-8 BOM
	prefix, err := reader.Peek(3)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if len(prefix) >= 3 && prefix[0] == 0xEF && prefix[1] == 0xBB && prefix[2] == 0xBF {
		_, _ = reader.Discard(3)
	}

	if err := validateUTF8(reader); err != nil {
		return nil, err
	}

	cr := csv.NewReader(reader)
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1 // allow variable field counts

	header, err := cr.Read()
	if err == io.EOF {
		return nil, ErrMissingHeader
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	headers := make([]string, len(header))
	for i, h := range header {
		headers[i] = strings.TrimSpace(h)
	}
	if len(headers) == 0 || (len(headers) == 1 && headers[0] == "") {
		return nil, ErrMissingHeader
	}

	table := &Table{Headers: headers}
	sourceRow := 0
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: row %d: %v", ErrMalformed, sourceRow+1, err)
		}

		values := make(map[string]string, len(headers))
		for i, h := range headers {
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

	return table, nil
}

// validateUTF8 checks that the buffered content is valid UTF-8.
func validateUTF8(r *bufio.Reader) error {
	const checkSize = 4096
	content, err := r.Peek(checkSize)
	if err != nil && err != io.EOF {
		return fmt.Errorf("failed to read file for encoding validation: %w", err)
	}
	if len(content) == 0 {
		return ErrEmptyFile
	}
	// Ignore a possibly truncated rune at the end of the peek window.
	end := len(content)
	if end == checkSize {
		for end > 0 && end > checkSize-utf8.UTFMax && !utf8.RuneStart(content[end-1]) {
			end--
		}
		if end > 0 {
			end--
		}
	}
	if !utf8.Valid(content[:end]) {
		return ErrInvalidEncoding
	}
	return nil
}

// WriteCSV serializes a table back to CSV bytes, headers first. Used by the
// export pathway and by round-trip tests.
func WriteCSV(table *Table) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(table.Headers); err != nil {
		return nil, err
	}
	record := make([]string, len(table.Headers))
	for _, row := range table.Rows {
		for i, h := range table.Headers {
			record[i] = row.Values[h]
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
