package tabular

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// parseJSON decodes a JSON document in one of two shapes: a top-level array
// of objects, or an object-of-arrays (column name -> column values). Keys
// become headers; the first object's key order is preserved.
func parseJSON(data []byte) (*Table, error) {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if len(trimmed) == 0 {
		return nil, ErrEmptyFile
	}
	switch trimmed[0] {
	case '[':
		return parseJSONArray(data)
	case '{':
		return parseJSONColumns(data)
	default:
		return nil, fmt.Errorf("%w: expected JSON array or object", ErrMalformed)
	}
}

// parseJSONArray handles a top-level array of row objects.
func parseJSONArray(data []byte) (*Table, error) {
	var records []map[string]json.RawMessage
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(records) == 0 {
		return nil, ErrNoDataRows
	}

	headers, err := firstObjectKeys(data)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(headers))
	for _, h := range headers {
		seen[h] = struct{}{}
	}
	// Keys missing from the first object are appended in sorted order so
	// the header set is deterministic.
	var extra []string
	for _, rec := range records {
		for k := range rec {
			if _, ok := seen[k]; !ok {
				seen[k] = struct{}{}
				extra = append(extra, k)
			}
		}
	}
	sort.Strings(extra)
	headers = append(headers, extra...)

	table := &Table{Headers: headers}
	sourceRow := 0
	for _, rec := range records {
		values := make(map[string]string, len(headers))
		for _, h := range headers {
			if raw, ok := rec[h]; ok {
				values[h] = stringifyJSON(raw)
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

// parseJSONColumns handles the object-of-arrays shape: every key maps to a
// column slice; rows are zipped by index.
func parseJSONColumns(data []byte) (*Table, error) {
	var columns map[string][]json.RawMessage
	if err := json.Unmarshal(data, &columns); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(columns) == 0 {
		return nil, ErrNoDataRows
	}

	headers, err := firstObjectKeys(data)
	if err != nil {
		return nil, err
	}

	rowCount := 0
	for _, col := range columns {
		if len(col) > rowCount {
			rowCount = len(col)
		}
	}
	if rowCount == 0 {
		return nil, ErrNoDataRows
	}

	table := &Table{Headers: headers}
	for i := 0; i < rowCount; i++ {
		values := make(map[string]string, len(headers))
		for _, h := range headers {
			col := columns[h]
			if i < len(col) {
				values[h] = stringifyJSON(col[i])
			} else {
				values[h] = ""
			}
		}
		table.Rows = append(table.Rows, Row{SourceRowNumber: i + 1, Values: values})
	}
	return table, nil
}

// firstObjectKeys walks tokens to extract the first object's keys in
// document order, which encoding/json maps would otherwise lose.
func firstObjectKeys(data []byte) ([]string, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	depth := 0
	inObject := false
	expectKey := false
	var keys []string
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		switch t := tok.(type) {
		case json.Delim:
			switch t {
			case '{':
				depth++
				if !inObject {
					inObject = true
					expectKey = true
					continue
				}
				// Nested object value: skip it entirely.
				if err := skipValue(dec); err != nil {
					return nil, err
				}
				depth--
				expectKey = true
			case '}':
				if inObject {
					return keys, nil
				}
				depth--
			case '[':
				if inObject && !expectKey {
					// Array value inside the object: skip.
					if err := skipValue(dec); err != nil {
						return nil, err
					}
					expectKey = true
					continue
				}
				depth++
			case ']':
				depth--
				if depth == 0 {
					return keys, nil
				}
			}
		case string:
			if inObject && expectKey {
				keys = append(keys, t)
				expectKey = false
			} else if inObject {
				expectKey = true
			}
		default:
			if inObject {
				expectKey = true
			}
		}
	}
}

// skipValue consumes the remainder of an already-opened composite value.
func skipValue(dec *json.Decoder) error {
	depth := 1
	for depth > 0 {
		tok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		if d, ok := tok.(json.Delim); ok {
			switch d {
			case '{', '[':
				depth++
			case '}', ']':
				depth--
			}
		}
	}
	return nil
}

// stringifyJSON renders a raw JSON value as the string the pipeline works
// with: strings unquoted, numbers verbatim, null as empty.
func stringifyJSON(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return ""
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err == nil {
			return s
		}
	}
	if trimmed[0] == 't' || trimmed[0] == 'f' {
		var b bool
		if err := json.Unmarshal(trimmed, &b); err == nil {
			return strconv.FormatBool(b)
		}
	}
	// Numbers and composites keep their literal form.
	return string(trimmed)
}
