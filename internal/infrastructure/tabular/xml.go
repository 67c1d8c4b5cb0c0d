package tabular

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// parseXML decodes an XML document where the repeated child element of the
// root is the row unit and its child elements are the columns, e.g.
//
//	<records><record><id>1</id><name>a</name></record>...</records>
func parseXML(data []byte) (*Table, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))

	table := &Table{}
	seen := make(map[string]struct{})
	depth := 0
	sourceRow := 0

	var current map[string]string
	var field string
	var text strings.Builder

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			switch depth {
			case 2:
				current = make(map[string]string)
			case 3:
				field = t.Name.Local
				text.Reset()
			default:
				// Deeper nesting is flattened into the field text.
			}
		case xml.CharData:
			if depth >= 3 {
				text.Write(t)
			}
		case xml.EndElement:
			switch depth {
			case 3:
				value := strings.TrimSpace(text.String())
				current[field] = value
				table.Headers = appendHeader(table.Headers, seen, field)
			case 2:
				if current != nil {
					row := Row{Values: current}
					if !row.IsEmpty() {
						sourceRow++
						row.SourceRowNumber = sourceRow
						table.Rows = append(table.Rows, row)
					}
					current = nil
				}
			}
			depth--
		}
	}

	if len(table.Headers) == 0 {
		return nil, ErrMissingHeader
	}

	// Backfill missing fields so every row has every header.
	for i := range table.Rows {
		for _, h := range table.Headers {
			if _, ok := table.Rows[i].Values[h]; !ok {
				table.Rows[i].Values[h] = ""
			}
		}
	}
	return table, nil
}
