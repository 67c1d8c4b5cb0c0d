package ingest

import (
	"time"

	"github.com/google/uuid"
)

// MappingError records a per-row rejection during mapping. Rejections are
// disjoint from corrections: a correction is a successful-but-altered value,
// a mapping error means the row (or a required field) was refused.
type MappingError struct {
	ID              uuid.UUID `json:"id"`
	ImportID        uuid.UUID `json:"import_id"`
	SourceRowNumber int       `json:"source_row_number"`
	Column          string    `json:"column,omitempty"`
	Reason          string    `json:"reason"`
	Value           string    `json:"value,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// NewMappingError creates a mapping error for one rejected row or field.
func NewMappingError(importID uuid.UUID, sourceRow int, column, reason, value string) *MappingError {
	return &MappingError{
		ID:              uuid.New(),
		ImportID:        importID,
		SourceRowNumber: sourceRow,
		Column:          column,
		Reason:          reason,
		Value:           value,
		CreatedAt:       time.Now(),
	}
}

// CorrectionType tags the kind of alteration applied to a value during
// mapping.
const (
	CorrectionTypeCoercion       = "type_coercion"
	CorrectionTypeDatetime       = "datetime_standardization"
	CorrectionTypeRegexReplace   = "regex_replace"
	CorrectionTypeMergeColumns   = "merge_columns"
	CorrectionTypeExplodeList    = "explode_list"
	CorrectionTypeWhitespaceTrim = "whitespace_trim"
)

// Correction records a single altered field value. Present in a row's
// metadata only when the value actually changed.
type Correction struct {
	Before         string `json:"before"`
	After          any    `json:"after"`
	CorrectionType string `json:"correction_type"`
	TargetType     string `json:"target_type,omitempty"`
	SourceFormat   string `json:"source_format,omitempty"`
}
