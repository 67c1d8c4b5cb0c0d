package tabular

import (
	"strconv"
	"strings"
	"time"

	"github.com/mapflow/backend/internal/domain/ingest"
	"github.com/shopspring/decimal"
)

// TimestampFormat pairs a Go time layout with the strftime-style name
// recorded in corrections when a value is standardized from that format.
type TimestampFormat struct {
	Layout   string
	Strftime string
}

// TimestampFormats is the ordered list of recognized date/time formats,
// tried in priority order: ISO 8601 first, then date-time, M/D/Y with
// optional 12-hour time, and D/M/Y last.
var TimestampFormats = []TimestampFormat{
	{time.RFC3339, "%Y-%m-%dT%H:%M:%S%z"},
	{"2006-01-02T15:04:05", "%Y-%m-%dT%H:%M:%S"},
	{"2006-01-02 15:04:05", "%Y-%m-%d %H:%M:%S"},
	{"2006-01-02 15:04", "%Y-%m-%d %H:%M"},
	{"2006-01-02", "%Y-%m-%d"},
	{"1/2/2006 3:04:05 PM", "%m/%d/%Y %I:%M:%S %p"},
	{"1/2/2006 3:04 PM", "%m/%d/%Y %I:%M %p"},
	{"1/2/2006 15:04", "%m/%d/%Y %H:%M"},
	{"1/2/2006", "%m/%d/%Y"},
	{"2/1/2006", "%d/%m/%Y"},
}

// ISOTimestamp is the canonical output layout for standardized timestamps.
const ISOTimestamp = "2006-01-02T15:04:05"

// ParseTimestamp tries the ordered format list and returns the parsed time
// plus the matching format. ok is false when no format matches.
func ParseTimestamp(value string) (t time.Time, format TimestampFormat, ok bool) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return time.Time{}, TimestampFormat{}, false
	}
	for _, f := range TimestampFormats {
		if parsed, err := time.Parse(f.Layout, trimmed); err == nil {
			return parsed, f, true
		}
	}
	return time.Time{}, TimestampFormat{}, false
}

// IsInteger reports whether the value parses as an integer literal.
func IsInteger(value string) bool {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return false
	}
	_, err := strconv.ParseInt(trimmed, 10, 64)
	return err == nil
}

// IsDecimal reports whether the value parses as a numeric literal
// (integers included).
func IsDecimal(value string) bool {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return false
	}
	_, err := decimal.NewFromString(trimmed)
	return err == nil
}

// InferSchema infers the narrowest column type that fits every non-empty
// sampled value, in header order. A column with any empty sampled value is
// nullable; a column with no values at all falls back to nullable VARCHAR.
func InferSchema(sample []Row, headers []string) []ingest.ColumnDef {
	defs := make([]ingest.ColumnDef, 0, len(headers))
	for _, h := range headers {
		defs = append(defs, inferColumn(sample, h))
	}
	return defs
}

func inferColumn(sample []Row, header string) ingest.ColumnDef {
	allInteger := true
	allDecimal := true
	allTimestamp := true
	sawDecimalOnly := false
	nullable := false
	nonEmpty := 0

	for _, row := range sample {
		value := strings.TrimSpace(row.Values[header])
		if value == "" {
			nullable = true
			continue
		}
		nonEmpty++
		isInt := IsInteger(value)
		if !isInt {
			allInteger = false
		}
		if IsDecimal(value) {
			if !isInt {
				sawDecimalOnly = true
			}
		} else {
			allDecimal = false
		}
		if _, _, ok := ParseTimestamp(value); !ok {
			allTimestamp = false
		}
	}

	name := ingest.SanitizeIdentifier(header)
	def := ingest.ColumnDef{Name: name, Nullable: nullable}
	switch {
	case nonEmpty == 0:
		def.Type = string(ingest.TypeVarchar)
		def.Nullable = true
	case allInteger:
		def.Type = string(ingest.TypeInteger)
	case allDecimal && sawDecimalOnly:
		def.Type = string(ingest.TypeDecimal)
	case allTimestamp:
		def.Type = string(ingest.TypeTimestamp)
	default:
		def.Type = string(ingest.TypeVarchar)
	}
	return def
}
