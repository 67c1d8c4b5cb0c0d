// Package ingest holds the domain model for the data-mapping import
// pipeline: mapping configurations, transformation operators, import
// history and the async job records built on top of them.
package ingest

import (
	"fmt"
	"strings"

	"github.com/mapflow/backend/internal/domain/shared"
)

// ColumnType names the SQL types the pipeline can map onto.
type ColumnType string

const (
	TypeInteger   ColumnType = "INTEGER"
	TypeDecimal   ColumnType = "DECIMAL"
	TypeTimestamp ColumnType = "TIMESTAMP"
	TypeVarchar   ColumnType = "VARCHAR(255)"
	TypeText      ColumnType = "TEXT"
)

// NormalizeColumnType maps a declared SQL type string onto one of the
// supported column types. Unknown types fall back to TEXT.
func NormalizeColumnType(declared string) ColumnType {
	upper := strings.ToUpper(strings.TrimSpace(declared))
	switch {
	case upper == "INTEGER" || upper == "INT" || upper == "BIGINT" || upper == "SMALLINT":
		return TypeInteger
	case strings.HasPrefix(upper, "DECIMAL") || strings.HasPrefix(upper, "NUMERIC") ||
		upper == "FLOAT" || upper == "DOUBLE PRECISION" || upper == "REAL":
		return TypeDecimal
	case strings.HasPrefix(upper, "TIMESTAMP") || upper == "DATETIME" || upper == "DATE":
		return TypeTimestamp
	case strings.HasPrefix(upper, "VARCHAR") || upper == "CHARACTER VARYING":
		return TypeVarchar
	default:
		return TypeText
	}
}

// ColumnDef describes one target column of a mapping schema. Order matters:
// the declared schema is an ordered list, not a map.
type ColumnDef struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	NotNull  bool   `json:"not_null,omitempty"`
	Nullable bool   `json:"nullable,omitempty"`
}

// NormalizedType returns the canonical column type for this definition.
func (c ColumnDef) NormalizedType() ColumnType {
	return NormalizeColumnType(c.Type)
}

// DuplicateCheck configures file- and row-level deduplication.
type DuplicateCheck struct {
	Enabled             bool     `json:"enabled"`
	CheckFileLevel      bool     `json:"check_file_level"`
	UniquenessColumns   []string `json:"uniqueness_columns,omitempty"`
	AllowFileLevelRetry bool     `json:"allow_file_level_retry,omitempty"`
	ForceImport         bool     `json:"force_import,omitempty"`
}

// TransformRules bundles the row- and column-level transformations of a
// mapping configuration.
type TransformRules struct {
	RowTransformations    []RowTransformation        `json:"row_transformations,omitempty"`
	ColumnTransformations map[string]ColumnTransform `json:"column_transformations,omitempty"`
}

// MappingConfig is the user-supplied (or analyzer-produced) description of
// how a file maps onto a target table.
type MappingConfig struct {
	TableName      string            `json:"table_name"`
	Schema         []ColumnDef       `json:"db_schema"`
	Mappings       map[string]string `json:"mappings"` // target column -> source column
	Rules          TransformRules    `json:"rules,omitempty"`
	DuplicateCheck DuplicateCheck    `json:"duplicate_check,omitempty"`
}

// Validate checks the structural integrity of the mapping configuration.
func (c *MappingConfig) Validate() error {
	if c.TableName == "" {
		return shared.NewDomainError("INVALID_MAPPING", "table_name is required")
	}
	if len(c.Schema) == 0 {
		return shared.NewDomainError("INVALID_MAPPING", "db_schema must declare at least one column")
	}
	declared := make(map[string]struct{}, len(c.Schema))
	for _, col := range c.Schema {
		if !IsValidIdentifier(SanitizeIdentifier(col.Name)) {
			return shared.NewDomainError("INVALID_MAPPING",
				fmt.Sprintf("column name %q cannot be sanitized to a valid identifier", col.Name))
		}
		declared[col.Name] = struct{}{}
	}
	for target := range c.Mappings {
		if _, ok := declared[target]; !ok {
			return shared.NewDomainError("INVALID_MAPPING",
				fmt.Sprintf("mapping references undeclared column %q", target))
		}
	}
	for _, col := range c.DuplicateCheck.UniquenessColumns {
		if _, ok := declared[col]; !ok {
			return shared.NewDomainError("INVALID_MAPPING",
				fmt.Sprintf("uniqueness column %q is not part of the declared schema", col))
		}
	}
	for i := range c.Rules.RowTransformations {
		if err := c.Rules.RowTransformations[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}

// SafeTableName returns the sanitized target table name, suffixed when it
// collides with a protected system table.
func (c *MappingConfig) SafeTableName() string {
	return SafeTableName(c.TableName)
}

// Column returns the declared definition for a target column.
func (c *MappingConfig) Column(name string) (ColumnDef, bool) {
	for _, col := range c.Schema {
		if col.Name == name {
			return col, true
		}
	}
	return ColumnDef{}, false
}

// ColumnNames returns the declared column names in schema order.
func (c *MappingConfig) ColumnNames() []string {
	names := make([]string, len(c.Schema))
	for i, col := range c.Schema {
		names[i] = col.Name
	}
	return names
}
