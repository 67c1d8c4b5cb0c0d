package ingest

import (
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/mapflow/backend/internal/domain/shared"
)

// TransformType tags a row transformation operator.
type TransformType string

const (
	TransformExplodeColumns  TransformType = "explode_columns"
	TransformExplodeListRows TransformType = "explode_list_rows"
	TransformFilterRows      TransformType = "filter_rows"
	TransformRegexReplace    TransformType = "regex_replace"
	TransformConditional     TransformType = "conditional_transform"
	TransformConcatColumns   TransformType = "concat_columns"
)

// ExplodeColumnsSpec emits one child row per populated source column,
// placing that column's value in the target column.
type ExplodeColumnsSpec struct {
	Sources         []string `json:"sources"`
	Target          string   `json:"target"`
	KeepSources     bool     `json:"keep_sources,omitempty"`
	IncludeOriginal bool     `json:"include_original,omitempty"`
	KeepEmpty       bool     `json:"keep_empty,omitempty"`
	DedupeValues    bool     `json:"dedupe_values,omitempty"`
	CaseInsensitive bool     `json:"case_insensitive_dedupe,omitempty"`
	StripWhitespace bool     `json:"strip_whitespace,omitempty"`
}

// ExplodeListRowsSpec splits a list-valued field into multiple rows.
type ExplodeListRowsSpec struct {
	Source          string   `json:"source"`
	Delimiters      []string `json:"delimiters,omitempty"` // defaults to "," and ";"
	Target          string   `json:"target,omitempty"`     // defaults to the source column
	KeepEmpty       bool     `json:"keep_empty,omitempty"`
	DedupeValues    bool     `json:"dedupe_values,omitempty"`
	CaseInsensitive bool     `json:"case_insensitive_dedupe,omitempty"`
	StripWhitespace bool     `json:"strip_whitespace,omitempty"`
}

// FilterRowsSpec keeps rows where at least one targeted column matches the
// include pattern and none matches the exclude pattern.
type FilterRowsSpec struct {
	IncludeRegex string   `json:"include_regex,omitempty"`
	ExcludeRegex string   `json:"exclude_regex,omitempty"`
	Columns      []string `json:"columns,omitempty"` // defaults to all non-helper columns
}

// RegexReplaceSpec performs regex substitution over the listed columns.
// Named capture groups listed in Outputs are written to new columns.
type RegexReplaceSpec struct {
	Pattern       string            `json:"pattern"`
	Columns       []string          `json:"columns"`
	Replacement   string            `json:"replacement,omitempty"`
	Outputs       map[string]string `json:"outputs,omitempty"` // capture group -> new column
	SkipOnNoMatch bool              `json:"skip_on_no_match,omitempty"`
}

// ConditionalSpec applies a nested operator sequence only to rows matching
// the predicate.
type ConditionalSpec struct {
	IncludeRegex string              `json:"include_regex,omitempty"`
	ExcludeRegex string              `json:"exclude_regex,omitempty"`
	Columns      []string            `json:"columns,omitempty"`
	Actions      []RowTransformation `json:"actions"`
}

// ConcatColumnsSpec merges multiple columns into a single string column.
type ConcatColumnsSpec struct {
	Sources         []string `json:"sources"`
	Target          string   `json:"target"`
	Separator       string   `json:"separator,omitempty"`
	SkipNulls       bool     `json:"skip_nulls,omitempty"`
	NullReplacement string   `json:"null_replacement,omitempty"`
}

// RowTransformation is a tagged union over the row-level operators. Exactly
// one variant field is set, matching Type.
type RowTransformation struct {
	Type            TransformType        `json:"type"`
	ExplodeColumns  *ExplodeColumnsSpec  `json:"-"`
	ExplodeListRows *ExplodeListRowsSpec `json:"-"`
	FilterRows      *FilterRowsSpec      `json:"-"`
	RegexReplace    *RegexReplaceSpec    `json:"-"`
	Conditional     *ConditionalSpec     `json:"-"`
	ConcatColumns   *ConcatColumnsSpec   `json:"-"`
}

// UnmarshalJSON decodes the operator envelope: a single object carrying a
// "type" tag with the variant's options inline.
func (t *RowTransformation) UnmarshalJSON(data []byte) error {
	var tag struct {
		Type TransformType `json:"type"`
	}
	if err := json.Unmarshal(data, &tag); err != nil {
		return err
	}
	t.Type = tag.Type
	switch tag.Type {
	case TransformExplodeColumns:
		t.ExplodeColumns = &ExplodeColumnsSpec{}
		return json.Unmarshal(data, t.ExplodeColumns)
	case TransformExplodeListRows:
		t.ExplodeListRows = &ExplodeListRowsSpec{}
		return json.Unmarshal(data, t.ExplodeListRows)
	case TransformFilterRows:
		t.FilterRows = &FilterRowsSpec{}
		return json.Unmarshal(data, t.FilterRows)
	case TransformRegexReplace:
		t.RegexReplace = &RegexReplaceSpec{}
		return json.Unmarshal(data, t.RegexReplace)
	case TransformConditional:
		t.Conditional = &ConditionalSpec{}
		return json.Unmarshal(data, t.Conditional)
	case TransformConcatColumns:
		t.ConcatColumns = &ConcatColumnsSpec{}
		return json.Unmarshal(data, t.ConcatColumns)
	default:
		return fmt.Errorf("unknown row transformation type %q", tag.Type)
	}
}

// MarshalJSON re-encodes the active variant with its type tag inline.
func (t RowTransformation) MarshalJSON() ([]byte, error) {
	var spec any
	switch t.Type {
	case TransformExplodeColumns:
		spec = t.ExplodeColumns
	case TransformExplodeListRows:
		spec = t.ExplodeListRows
	case TransformFilterRows:
		spec = t.FilterRows
	case TransformRegexReplace:
		spec = t.RegexReplace
	case TransformConditional:
		spec = t.Conditional
	case TransformConcatColumns:
		spec = t.ConcatColumns
	default:
		return nil, fmt.Errorf("unknown row transformation type %q", t.Type)
	}
	raw, err := json.Marshal(spec)
	if err != nil {
		return nil, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	fields["type"], _ = json.Marshal(t.Type)
	return json.Marshal(fields)
}

// Validate checks the variant's option record, including regex compilation.
func (t *RowTransformation) Validate() error {
	invalid := func(msg string) error {
		return shared.NewDomainError("INVALID_TRANSFORMATION",
			fmt.Sprintf("%s: %s", t.Type, msg))
	}
	compile := func(pattern string) error {
		if pattern == "" {
			return nil
		}
		if _, err := regexp.Compile(pattern); err != nil {
			return invalid(fmt.Sprintf("invalid pattern %q: %v", pattern, err))
		}
		return nil
	}
	switch t.Type {
	case TransformExplodeColumns:
		if t.ExplodeColumns == nil || len(t.ExplodeColumns.Sources) == 0 || t.ExplodeColumns.Target == "" {
			return invalid("requires sources and target")
		}
	case TransformExplodeListRows:
		if t.ExplodeListRows == nil || t.ExplodeListRows.Source == "" {
			return invalid("requires source")
		}
	case TransformFilterRows:
		if t.FilterRows == nil || (t.FilterRows.IncludeRegex == "" && t.FilterRows.ExcludeRegex == "") {
			return invalid("requires include_regex or exclude_regex")
		}
		if err := compile(t.FilterRows.IncludeRegex); err != nil {
			return err
		}
		if err := compile(t.FilterRows.ExcludeRegex); err != nil {
			return err
		}
	case TransformRegexReplace:
		if t.RegexReplace == nil || t.RegexReplace.Pattern == "" || len(t.RegexReplace.Columns) == 0 {
			return invalid("requires pattern and columns")
		}
		if err := compile(t.RegexReplace.Pattern); err != nil {
			return err
		}
	case TransformConditional:
		if t.Conditional == nil || len(t.Conditional.Actions) == 0 {
			return invalid("requires actions")
		}
		if err := compile(t.Conditional.IncludeRegex); err != nil {
			return err
		}
		if err := compile(t.Conditional.ExcludeRegex); err != nil {
			return err
		}
		for i := range t.Conditional.Actions {
			if err := t.Conditional.Actions[i].Validate(); err != nil {
				return err
			}
		}
	case TransformConcatColumns:
		if t.ConcatColumns == nil || len(t.ConcatColumns.Sources) == 0 || t.ConcatColumns.Target == "" {
			return invalid("requires sources and target")
		}
	default:
		return invalid("unknown operator")
	}
	return nil
}

// ColumnTransformType tags a column-level transformation applied during
// mapping. Column transforms never duplicate rows.
type ColumnTransformType string

const (
	ColumnRegexReplace      ColumnTransformType = "regex_replace"
	ColumnMergeColumns      ColumnTransformType = "merge_columns"
	ColumnExplodeListColumn ColumnTransformType = "explode_list_column"
)

// ColumnTransform describes a per-column transform keyed by target column.
type ColumnTransform struct {
	Type ColumnTransformType `json:"type"`
	// regex_replace options
	Pattern       string `json:"pattern,omitempty"`
	Replacement   string `json:"replacement,omitempty"`
	SkipOnNoMatch bool   `json:"skip_on_no_match,omitempty"`
	// merge_columns options
	Sources   []string `json:"sources,omitempty"`
	Separator string   `json:"separator,omitempty"`
	// explode_list_column options: keep the element at Index after split
	Delimiter string `json:"delimiter,omitempty"`
	Index     int    `json:"index,omitempty"`
}

// Validate checks the column transform's options.
func (c *ColumnTransform) Validate() error {
	switch c.Type {
	case ColumnRegexReplace:
		if c.Pattern == "" {
			return shared.NewDomainError("INVALID_TRANSFORMATION", "regex_replace requires pattern")
		}
		if _, err := regexp.Compile(c.Pattern); err != nil {
			return shared.NewDomainError("INVALID_TRANSFORMATION", err.Error())
		}
	case ColumnMergeColumns:
		if len(c.Sources) == 0 {
			return shared.NewDomainError("INVALID_TRANSFORMATION", "merge_columns requires sources")
		}
	case ColumnExplodeListColumn:
		if c.Index < 0 {
			return shared.NewDomainError("INVALID_TRANSFORMATION", "explode_list_column index must be >= 0")
		}
	default:
		return shared.NewDomainError("INVALID_TRANSFORMATION",
			fmt.Sprintf("unknown column transformation type %q", c.Type))
	}
	return nil
}
