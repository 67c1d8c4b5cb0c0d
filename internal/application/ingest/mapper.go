package ingestapp

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/mapflow/backend/internal/domain/ingest"
	"github.com/mapflow/backend/internal/infrastructure/tabular"
)

// Rejection marks a row refused during mapping, typically a NULL landing in
// a NOT NULL column. Rejections become mapping_errors rows; they never carry
// corrections.
type Rejection struct {
	SourceRowNumber int
	Column          string
	Reason          string
	Value           string
}

// Mapper turns transformed string rows into typed records per the declared
// schema: source lookup, column-level transform, then type coercion with a
// correction recorded for every altered value.
type Mapper struct {
	cfg     *ingest.MappingConfig
	regexes map[string]*regexp.Regexp
}

// NewMapper precompiles the column-transform patterns.
func NewMapper(cfg *ingest.MappingConfig) (*Mapper, error) {
	m := &Mapper{cfg: cfg, regexes: make(map[string]*regexp.Regexp)}
	for target, ct := range cfg.Rules.ColumnTransformations {
		if err := ct.Validate(); err != nil {
			return nil, err
		}
		if ct.Type == ingest.ColumnRegexReplace {
			re, err := regexp.Compile(ct.Pattern)
			if err != nil {
				return nil, err
			}
			m.regexes[target] = re
		}
	}
	return m, nil
}

// MapRow maps one row. A non-empty rejection list means the row must be
// counted as errored and not inserted.
func (m *Mapper) MapRow(row tabular.Row) (Record, []Rejection) {
	rec := Record{
		Values:          make(map[string]any, len(m.cfg.Schema)),
		SourceRowNumber: row.SourceRowNumber,
	}
	var rejects []Rejection

	for _, col := range m.cfg.Schema {
		original := ""
		if src, ok := m.cfg.Mappings[col.Name]; ok {
			original = row.Values[src]
		}

		value := original
		transformType := ""
		if ct, ok := m.cfg.Rules.ColumnTransformations[col.Name]; ok {
			value, transformType = m.applyColumnTransform(col.Name, &ct, value, row)
		}

		typed, corr := coerceValue(value, col.NormalizedType())
		rec.Values[col.Name] = typed

		if typed == nil && col.NotNull {
			reason := fmt.Sprintf("null value for NOT NULL column %q", col.Name)
			if original != "" {
				reason = fmt.Sprintf("value %q not coercible to %s for NOT NULL column %q",
					original, col.Type, col.Name)
			}
			rejects = append(rejects, Rejection{
				SourceRowNumber: row.SourceRowNumber,
				Column:          col.Name,
				Reason:          reason,
				Value:           original,
			})
			continue
		}

		switch {
		case corr != nil:
			corr.Before = original
			if rec.Corrections == nil {
				rec.Corrections = make(map[string]ingest.Correction)
			}
			rec.Corrections[col.Name] = *corr
		case transformType != "":
			if rec.Corrections == nil {
				rec.Corrections = make(map[string]ingest.Correction)
			}
			rec.Corrections[col.Name] = ingest.Correction{
				Before:         original,
				After:          typed,
				CorrectionType: transformType,
			}
		}
	}
	return rec, rejects
}

// applyColumnTransform runs the per-column transform and reports the
// correction type when the value changed.
func (m *Mapper) applyColumnTransform(target string, ct *ingest.ColumnTransform, value string, row tabular.Row) (string, string) {
	switch ct.Type {
	case ingest.ColumnRegexReplace:
		re := m.regexes[target]
		if !re.MatchString(value) {
			return value, ""
		}
		replaced := re.ReplaceAllString(value, ct.Replacement)
		if replaced == value {
			return value, ""
		}
		return replaced, ingest.CorrectionTypeRegexReplace

	case ingest.ColumnMergeColumns:
		sep := ct.Separator
		if sep == "" {
			sep = " "
		}
		parts := make([]string, 0, len(ct.Sources))
		for _, src := range ct.Sources {
			if v := row.Values[src]; v != "" {
				parts = append(parts, v)
			}
		}
		merged := strings.Join(parts, sep)
		if merged == value {
			return value, ""
		}
		return merged, ingest.CorrectionTypeMergeColumns

	case ingest.ColumnExplodeListColumn:
		delim := ct.Delimiter
		if delim == "" {
			delim = ","
		}
		parts := strings.Split(value, delim)
		if ct.Index >= len(parts) {
			return "", ingest.CorrectionTypeExplodeList
		}
		picked := strings.TrimSpace(parts[ct.Index])
		if picked == value {
			return value, ""
		}
		return picked, ingest.CorrectionTypeExplodeList
	}
	return value, ""
}

// coerceValue converts a string to the declared target type. A nil typed
// value means NULL. The returned correction (Before left for the caller to
// fill) is present only when the stored value differs from the input string.
func coerceValue(value string, typ ingest.ColumnType) (any, *ingest.Correction) {
	switch typ {
	case ingest.TypeInteger:
		return coerceInteger(value)
	case ingest.TypeDecimal:
		return coerceDecimal(value)
	case ingest.TypeTimestamp:
		return coerceTimestamp(value)
	default:
		return coerceText(value)
	}
}

func coerceInteger(value string) (any, *ingest.Correction) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	if n, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		if trimmed == value {
			return n, nil
		}
		return n, &ingest.Correction{
			After:          n,
			CorrectionType: ingest.CorrectionTypeCoercion,
			TargetType:     string(ingest.TypeInteger),
		}
	}
	// Float literals with a zero fractional part read as integers: "30.0" -> 30.
	if f, err := strconv.ParseFloat(trimmed, 64); err == nil &&
		!math.IsInf(f, 0) && !math.IsNaN(f) && f == math.Trunc(f) {
		n := int64(f)
		return n, &ingest.Correction{
			After:          n,
			CorrectionType: ingest.CorrectionTypeCoercion,
			TargetType:     string(ingest.TypeInteger),
		}
	}
	return nil, &ingest.Correction{
		CorrectionType: ingest.CorrectionTypeCoercion,
		TargetType:     string(ingest.TypeInteger),
	}
}

func coerceDecimal(value string) (any, *ingest.Correction) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(trimmed)
	if err != nil {
		return nil, &ingest.Correction{
			CorrectionType: ingest.CorrectionTypeCoercion,
			TargetType:     string(ingest.TypeDecimal),
		}
	}
	if d.String() == value {
		return d, nil
	}
	return d, &ingest.Correction{
		After:          d.String(),
		CorrectionType: ingest.CorrectionTypeCoercion,
		TargetType:     string(ingest.TypeDecimal),
	}
}

func coerceTimestamp(value string) (any, *ingest.Correction) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	parsed, format, ok := tabular.ParseTimestamp(trimmed)
	if !ok {
		return nil, &ingest.Correction{
			CorrectionType: ingest.CorrectionTypeCoercion,
			TargetType:     string(ingest.TypeTimestamp),
		}
	}
	iso := parsed.Format(tabular.ISOTimestamp)
	if iso == value {
		return iso, nil
	}
	return iso, &ingest.Correction{
		After:          iso,
		CorrectionType: ingest.CorrectionTypeDatetime,
		SourceFormat:   format.Strftime,
	}
}

func coerceText(value string) (any, *ingest.Correction) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	if trimmed == value {
		return trimmed, nil
	}
	return trimmed, &ingest.Correction{
		After:          trimmed,
		CorrectionType: ingest.CorrectionTypeWhitespaceTrim,
	}
}
