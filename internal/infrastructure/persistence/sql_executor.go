package persistence

import (
	"context"

	"gorm.io/gorm"

	queryapp "github.com/mapflow/backend/internal/application/query"
)

// GormSQLExecutor runs validated read-only SQL for the query pathway.
type GormSQLExecutor struct {
	db *gorm.DB
}

// NewGormSQLExecutor creates a new GormSQLExecutor
func NewGormSQLExecutor(db *gorm.DB) *GormSQLExecutor {
	return &GormSQLExecutor{db: db}
}

// Query executes the statement and materializes the result set with stable
// column order. Byte slices are rendered as strings so JSON encoding stays
// readable.
func (e *GormSQLExecutor) Query(ctx context.Context, sql string) (*queryapp.ResultSet, error) {
	rows, err := e.db.WithContext(ctx).Raw(sql).Rows()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	result := &queryapp.ResultSet{Columns: columns, Rows: []map[string]any{}}
	values := make([]any, len(columns))
	scanTargets := make([]any, len(columns))
	for i := range values {
		scanTargets[i] = &values[i]
	}
	for rows.Next() {
		if err := rows.Scan(scanTargets...); err != nil {
			return nil, err
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}
		result.Rows = append(result.Rows, row)
	}
	return result, rows.Err()
}

// Compile-time interface compliance check
var _ queryapp.SQLExecutor = (*GormSQLExecutor)(nil)
