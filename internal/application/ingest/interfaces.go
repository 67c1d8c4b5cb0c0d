package ingestapp

import (
	"context"

	"github.com/google/uuid"

	"github.com/mapflow/backend/internal/domain/ingest"
)

// Record is a fully mapped row ready for insert: typed values keyed by
// target column, the 1-indexed row number in the original file, and the
// corrections applied during coercion (nil when nothing was altered).
type Record struct {
	Values          map[string]any
	SourceRowNumber int
	Corrections     map[string]ingest.Correction
}

// TableColumn describes one column of a live table.
type TableColumn struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
}

// TableInfo summarizes a user-data table for listings and the analyzer.
type TableInfo struct {
	Name     string        `json:"name"`
	Columns  []TableColumn `json:"columns"`
	RowCount int64         `json:"row_count"`
}

// TableStore abstracts the dynamic-table side of the database: creating
// tables with the per-row metadata columns, chunked inserts, and schema
// introspection.
type TableStore interface {
	// TableExists reports whether the named table exists.
	TableExists(ctx context.Context, name string) (bool, error)
	// CreateTable creates a table with the given columns plus the four
	// metadata columns and the _import_id index and cascade FK.
	CreateTable(ctx context.Context, name string, columns []ingest.ColumnDef) error
	// ExtendTable adds missing nullable columns to an existing table.
	ExtendTable(ctx context.Context, name string, columns []ingest.ColumnDef) error
	// Columns returns the user columns of a table, metadata columns excluded.
	Columns(ctx context.Context, name string) ([]TableColumn, error)
	// ListTables returns all non-protected tables.
	ListTables(ctx context.Context) ([]TableInfo, error)
	// InsertChunk inserts one chunk inside a single transaction, stamping
	// each row with the import id.
	InsertChunk(ctx context.Context, table string, importID uuid.UUID, records []Record) error
	// ExistingKeys preloads the uniqueness-key set for the table.
	ExistingKeys(ctx context.Context, table string, columns []string) (map[string]struct{}, error)
	// CountByImport returns the number of live rows carrying the import id.
	CountByImport(ctx context.Context, table string, importID uuid.UUID) (int64, error)
}

// ObjectStorage abstracts the S3-compatible object store used for file
// payloads and multipart uploads.
type ObjectStorage interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Delete(ctx context.Context, key string) error
	CreateMultipartUpload(ctx context.Context, key, contentType string) (uploadID string, err error)
	PresignPart(ctx context.Context, key, uploadID string, partNumber int) (url string, err error)
	CompleteMultipartUpload(ctx context.Context, key, uploadID string, etags map[int]string) error
	AbortMultipartUpload(ctx context.Context, key, uploadID string) error
}
