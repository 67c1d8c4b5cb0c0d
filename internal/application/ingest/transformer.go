// Package ingestapp implements the import pipeline: row transformation,
// mapping with type coercion, deduplication, and the three-phase concurrent
// import executor, plus the LLM-backed file analyzer and the async task and
// multipart upload services.
package ingestapp

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/mapflow/backend/internal/domain/ingest"
	"github.com/mapflow/backend/internal/infrastructure/tabular"
)

// HelperPrefix marks helper columns that are invisible to uniqueness checks
// and stripped before insert.
const HelperPrefix = "_"

// IsHelperColumn reports whether a column is an internal helper.
func IsHelperColumn(name string) bool {
	return strings.HasPrefix(name, HelperPrefix)
}

// Transformer applies the configured row transformations, in order, to the
// parsed row stream. Every operator preserves SourceRowNumber; operators
// that multiply rows give all children the parent's number.
type Transformer struct {
	ops []ingest.RowTransformation
}

// NewTransformer builds a transformer after validating every operator.
func NewTransformer(ops []ingest.RowTransformation) (*Transformer, error) {
	for i := range ops {
		if err := ops[i].Validate(); err != nil {
			return nil, err
		}
	}
	return &Transformer{ops: ops}, nil
}

// Apply runs the operator sequence over the rows.
func (t *Transformer) Apply(rows []tabular.Row) ([]tabular.Row, error) {
	out := rows
	for i := range t.ops {
		var err error
		out, err = applyOp(&t.ops[i], out)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func applyOp(op *ingest.RowTransformation, rows []tabular.Row) ([]tabular.Row, error) {
	switch op.Type {
	case ingest.TransformExplodeColumns:
		return explodeColumns(op.ExplodeColumns, rows), nil
	case ingest.TransformExplodeListRows:
		return explodeListRows(op.ExplodeListRows, rows), nil
	case ingest.TransformFilterRows:
		return filterRows(op.FilterRows, rows)
	case ingest.TransformRegexReplace:
		return regexReplaceRows(op.RegexReplace, rows)
	case ingest.TransformConditional:
		return conditionalTransform(op.Conditional, rows)
	case ingest.TransformConcatColumns:
		return concatColumns(op.ConcatColumns, rows), nil
	default:
		return nil, fmt.Errorf("unknown row transformation type %q", op.Type)
	}
}

// explodeColumns emits one child row per populated source column, placing
// that column's value in the target. Source columns are dropped unless
// keep_sources is set; include_original additionally emits the untouched
// parent row.
func explodeColumns(spec *ingest.ExplodeColumnsSpec, rows []tabular.Row) []tabular.Row {
	var out []tabular.Row
	for _, row := range rows {
		if spec.IncludeOriginal {
			out = append(out, row.Clone())
		}

		seen := make(map[string]struct{})
		for _, src := range spec.Sources {
			value, ok := row.Values[src]
			if !ok {
				continue
			}
			if spec.StripWhitespace {
				value = strings.TrimSpace(value)
			}
			if value == "" && !spec.KeepEmpty {
				continue
			}
			if spec.DedupeValues {
				key := value
				if spec.CaseInsensitive {
					key = strings.ToLower(key)
				}
				if _, dup := seen[key]; dup {
					continue
				}
				seen[key] = struct{}{}
			}

			child := row.Clone()
			if !spec.KeepSources {
				for _, s := range spec.Sources {
					delete(child.Values, s)
				}
			}
			child.Values[spec.Target] = value
			out = append(out, child)
		}
	}
	return out
}

// defaultListDelimiters splits list-valued fields on comma or semicolon.
var defaultListDelimiters = []string{",", ";"}

// explodeListRows splits a list-valued field into one row per element.
func explodeListRows(spec *ingest.ExplodeListRowsSpec, rows []tabular.Row) []tabular.Row {
	delims := spec.Delimiters
	if len(delims) == 0 {
		delims = defaultListDelimiters
	}
	target := spec.Target
	if target == "" {
		target = spec.Source
	}

	var out []tabular.Row
	for _, row := range rows {
		parts := splitList(row.Values[spec.Source], delims)

		seen := make(map[string]struct{})
		emitted := 0
		for _, part := range parts {
			if spec.StripWhitespace {
				part = strings.TrimSpace(part)
			}
			if part == "" && !spec.KeepEmpty {
				continue
			}
			if spec.DedupeValues {
				key := part
				if spec.CaseInsensitive {
					key = strings.ToLower(key)
				}
				if _, dup := seen[key]; dup {
					continue
				}
				seen[key] = struct{}{}
			}
			child := row.Clone()
			if target != spec.Source {
				delete(child.Values, spec.Source)
			}
			child.Values[target] = part
			out = append(out, child)
			emitted++
		}
		if emitted == 0 && spec.KeepEmpty {
			out = append(out, row.Clone())
		}
	}
	return out
}

// splitList splits a value on any of the delimiters.
func splitList(value string, delims []string) []string {
	parts := []string{value}
	for _, d := range delims {
		var next []string
		for _, p := range parts {
			next = append(next, strings.Split(p, d)...)
		}
		parts = next
	}
	return parts
}

// filterRows keeps rows where at least one targeted column matches the
// include pattern and none matches the exclude pattern. With no columns
// configured, every non-helper column is targeted.
func filterRows(spec *ingest.FilterRowsSpec, rows []tabular.Row) ([]tabular.Row, error) {
	var include, exclude *regexp.Regexp
	var err error
	if spec.IncludeRegex != "" {
		if include, err = regexp.Compile(spec.IncludeRegex); err != nil {
			return nil, err
		}
	}
	if spec.ExcludeRegex != "" {
		if exclude, err = regexp.Compile(spec.ExcludeRegex); err != nil {
			return nil, err
		}
	}

	var out []tabular.Row
	for _, row := range rows {
		columns := spec.Columns
		if len(columns) == 0 {
			for col := range row.Values {
				if !IsHelperColumn(col) {
					columns = append(columns, col)
				}
			}
		}

		matched := include == nil
		excluded := false
		for _, col := range columns {
			value := row.Values[col]
			if include != nil && include.MatchString(value) {
				matched = true
			}
			if exclude != nil && exclude.MatchString(value) {
				excluded = true
				break
			}
		}
		if matched && !excluded {
			out = append(out, row)
		}
	}
	return out, nil
}

// regexReplaceRows substitutes the pattern in the listed columns. Named
// capture groups listed in outputs are written to new columns on match.
func regexReplaceRows(spec *ingest.RegexReplaceSpec, rows []tabular.Row) ([]tabular.Row, error) {
	re, err := regexp.Compile(spec.Pattern)
	if err != nil {
		return nil, err
	}
	groupIndex := make(map[string]int)
	for i, name := range re.SubexpNames() {
		if name != "" {
			groupIndex[name] = i
		}
	}

	out := make([]tabular.Row, 0, len(rows))
	for _, row := range rows {
		next := row.Clone()
		for _, col := range spec.Columns {
			value, ok := next.Values[col]
			if !ok {
				continue
			}
			match := re.FindStringSubmatch(value)
			if match == nil {
				if spec.SkipOnNoMatch {
					continue
				}
				// No match and no skip: the substitution is a no-op anyway.
				continue
			}
			for group, target := range spec.Outputs {
				if idx, ok := groupIndex[group]; ok && idx < len(match) {
					next.Values[target] = match[idx]
				}
			}
			next.Values[col] = re.ReplaceAllString(value, spec.Replacement)
		}
		out = append(out, next)
	}
	return out, nil
}

// conditionalTransform applies the nested action sequence only to rows
// matching the predicate; non-matching rows pass through untouched. Row
// order is not preserved across the split, but source row numbers are.
func conditionalTransform(spec *ingest.ConditionalSpec, rows []tabular.Row) ([]tabular.Row, error) {
	var include, exclude *regexp.Regexp
	var err error
	if spec.IncludeRegex != "" {
		if include, err = regexp.Compile(spec.IncludeRegex); err != nil {
			return nil, err
		}
	}
	if spec.ExcludeRegex != "" {
		if exclude, err = regexp.Compile(spec.ExcludeRegex); err != nil {
			return nil, err
		}
	}

	var matching, rest []tabular.Row
	for _, row := range rows {
		columns := spec.Columns
		if len(columns) == 0 {
			for col := range row.Values {
				if !IsHelperColumn(col) {
					columns = append(columns, col)
				}
			}
		}
		matched := include == nil
		excluded := false
		for _, col := range columns {
			value := row.Values[col]
			if include != nil && include.MatchString(value) {
				matched = true
			}
			if exclude != nil && exclude.MatchString(value) {
				excluded = true
				break
			}
		}
		if matched && !excluded {
			matching = append(matching, row)
		} else {
			rest = append(rest, row)
		}
	}

	for i := range spec.Actions {
		matching, err = applyOp(&spec.Actions[i], matching)
		if err != nil {
			return nil, err
		}
	}
	return append(matching, rest...), nil
}

// concatColumns merges the source columns into the target as one string.
func concatColumns(spec *ingest.ConcatColumnsSpec, rows []tabular.Row) []tabular.Row {
	out := make([]tabular.Row, 0, len(rows))
	for _, row := range rows {
		next := row.Clone()
		parts := make([]string, 0, len(spec.Sources))
		for _, src := range spec.Sources {
			value := next.Values[src]
			if value == "" {
				if spec.SkipNulls {
					continue
				}
				value = spec.NullReplacement
			}
			parts = append(parts, value)
		}
		next.Values[spec.Target] = strings.Join(parts, spec.Separator)
		out = append(out, next)
	}
	return out
}

// StripHelperColumns removes helper keys before mapping/insert. Rows are
// copied on write: with no transformations configured the input is the parse
// cache's shared table, which concurrent imports read from and which must
// stay untouched.
func StripHelperColumns(rows []tabular.Row) []tabular.Row {
	out := make([]tabular.Row, len(rows))
	copy(out, rows)
	for i := range out {
		hasHelper := false
		for col := range out[i].Values {
			if IsHelperColumn(col) {
				hasHelper = true
				break
			}
		}
		if !hasHelper {
			continue
		}
		next := out[i].Clone()
		for col := range next.Values {
			if IsHelperColumn(col) {
				delete(next.Values, col)
			}
		}
		out[i] = next
	}
	return out
}
