// Package tabular decodes tabular files (CSV, Excel, JSON, XML) into a
// uniform row representation, and provides the sampling, fingerprinting and
// schema-inference primitives the import pipeline builds on.
package tabular

import (
	"fmt"
	"strings"
)

// Kind identifies a supported tabular file format.
type Kind string

const (
	KindCSV  Kind = "csv"
	KindXLSX Kind = "xlsx"
	KindXLS  Kind = "xls"
	KindJSON Kind = "json"
	KindXML  Kind = "xml"
)

// IsValid checks if the kind is supported
func (k Kind) IsValid() bool {
	switch k {
	case KindCSV, KindXLSX, KindXLS, KindJSON, KindXML:
		return true
	}
	return false
}

// KindFromName derives the file kind from a file name extension.
func KindFromName(name string) (Kind, error) {
	idx := strings.LastIndexByte(name, '.')
	if idx < 0 {
		return "", fmt.Errorf("%w: no extension on %q", ErrUnsupportedKind, name)
	}
	kind := Kind(strings.ToLower(name[idx+1:]))
	if !kind.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedKind, name[idx+1:])
	}
	return kind, nil
}

// Row is one parsed data row. SourceRowNumber is 1-indexed over data rows
// (the header is not counted) and survives every later pipeline stage.
type Row struct {
	SourceRowNumber int
	Values          map[string]string
}

// Clone returns a deep copy of the row sharing the same source row number.
func (r Row) Clone() Row {
	values := make(map[string]string, len(r.Values))
	for k, v := range r.Values {
		values[k] = v
	}
	return Row{SourceRowNumber: r.SourceRowNumber, Values: values}
}

// IsEmpty returns true if the row has no non-empty values
func (r Row) IsEmpty() bool {
	for _, v := range r.Values {
		if v != "" {
			return false
		}
	}
	return true
}

// Table is a fully parsed file: ordered headers plus the data rows.
type Table struct {
	Headers []string
	Rows    []Row
}

// Parse decodes raw file bytes of the given kind.
func Parse(data []byte, kind Kind) (*Table, error) {
	if len(data) == 0 {
		return nil, ErrEmptyFile
	}
	switch kind {
	case KindCSV:
		return parseCSV(data)
	case KindXLSX, KindXLS:
		return parseExcel(data)
	case KindJSON:
		return parseJSON(data)
	case KindXML:
		return parseXML(data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedKind, kind)
	}
}

// appendHeader adds h to headers if not already present, returning the
// updated slice.
func appendHeader(headers []string, seen map[string]struct{}, h string) []string {
	if _, ok := seen[h]; ok {
		return headers
	}
	seen[h] = struct{}{}
	return append(headers, h)
}
