package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	ingestapp "github.com/mapflow/backend/internal/application/ingest"
	"github.com/mapflow/backend/internal/domain/ingest"
	"github.com/mapflow/backend/internal/domain/shared"
	"github.com/mapflow/backend/internal/infrastructure/tabular"
)

// Per-row lineage columns stamped onto every dynamically created table.
const (
	ColImportID        = "_import_id"
	ColImportedAt      = "_imported_at"
	ColSourceRowNumber = "_source_row_number"
	ColCorrections     = "_corrections_applied"
)

// insertBatchSize bounds a single multi-row INSERT so wide tables stay
// under the driver's bind-parameter limit.
const insertBatchSize = 500

// GormTableStore implements the dynamic-table side of the database: tables
// created at import time from a mapping schema, each row stamped with the
// import that produced it and an FK cascade back to import_history.
type GormTableStore struct {
	db *gorm.DB
}

// NewGormTableStore creates a new GormTableStore
func NewGormTableStore(db *gorm.DB) *GormTableStore {
	return &GormTableStore{db: db}
}

// quoteIdent validates and double-quotes an identifier for DDL/DML.
func quoteIdent(name string) (string, error) {
	if !ingest.IsValidIdentifier(name) {
		return "", shared.ErrInvalidInput.WithMessage(
			fmt.Sprintf("invalid identifier %q", name))
	}
	return `"` + name + `"`, nil
}

// sqlType maps a declared column type onto the DDL type for the active
// dialect. SQLite accepts the PostgreSQL names through type affinity, so
// only INTEGER needs widening.
func (s *GormTableStore) sqlType(def ingest.ColumnDef) string {
	switch def.NormalizedType() {
	case ingest.TypeInteger:
		if s.db.Dialector.Name() == "postgres" {
			return "BIGINT"
		}
		return "INTEGER"
	case ingest.TypeDecimal:
		return "NUMERIC"
	case ingest.TypeTimestamp:
		return "TIMESTAMP"
	case ingest.TypeVarchar:
		return "VARCHAR(255)"
	default:
		return "TEXT"
	}
}

func (s *GormTableStore) uuidType() string {
	if s.db.Dialector.Name() == "postgres" {
		return "UUID"
	}
	return "TEXT"
}

// TableExists reports whether the named table exists.
func (s *GormTableStore) TableExists(ctx context.Context, name string) (bool, error) {
	if !ingest.IsValidIdentifier(name) {
		return false, shared.ErrInvalidInput.WithMessage(
			fmt.Sprintf("invalid table name %q", name))
	}
	return s.db.WithContext(ctx).Migrator().HasTable(name), nil
}

// CreateTable creates a user-data table from the mapping schema, adding the
// lineage columns, the cascade FK to import_history, and the _import_id
// index that makes undo and per-import counting cheap.
func (s *GormTableStore) CreateTable(ctx context.Context, name string, columns []ingest.ColumnDef) error {
	if ingest.IsProtectedTable(name) {
		return shared.NewDomainError("PROTECTED_TABLE",
			fmt.Sprintf("Table '%s' is a protected system table", name))
	}
	quotedTable, err := quoteIdent(name)
	if err != nil {
		return err
	}
	if len(columns) == 0 {
		return shared.ErrInvalidInput.WithMessage("table schema cannot be empty")
	}

	defs := make([]string, 0, len(columns)+4)
	for _, col := range columns {
		quoted, err := quoteIdent(col.Name)
		if err != nil {
			return err
		}
		def := fmt.Sprintf("%s %s", quoted, s.sqlType(col))
		if col.NotNull {
			def += " NOT NULL"
		}
		defs = append(defs, def)
	}
	defs = append(defs,
		fmt.Sprintf(`%q %s NOT NULL REFERENCES "import_history"("id") ON DELETE CASCADE`,
			ColImportID, s.uuidType()),
		fmt.Sprintf("%q TIMESTAMP NOT NULL", ColImportedAt),
		fmt.Sprintf("%q INTEGER", ColSourceRowNumber),
		fmt.Sprintf("%q TEXT", ColCorrections),
	)

	ddl := fmt.Sprintf("CREATE TABLE %s (%s)", quotedTable, strings.Join(defs, ", "))
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(ddl).Error; err != nil {
			return fmt.Errorf("failed to create table %s: %w", name, err)
		}
		index := fmt.Sprintf(`CREATE INDEX "idx_%s_import_id" ON %s (%q)`,
			name, quotedTable, ColImportID)
		if err := tx.Exec(index).Error; err != nil {
			return fmt.Errorf("failed to index table %s: %w", name, err)
		}
		return nil
	})
}

// ExtendTable adds the missing schema columns to an existing table. Added
// columns are always nullable: existing rows cannot satisfy NOT NULL.
func (s *GormTableStore) ExtendTable(ctx context.Context, name string, columns []ingest.ColumnDef) error {
	quotedTable, err := quoteIdent(name)
	if err != nil {
		return err
	}
	existing, err := s.Columns(ctx, name)
	if err != nil {
		return err
	}
	present := make(map[string]struct{}, len(existing))
	for _, col := range existing {
		present[strings.ToLower(col.Name)] = struct{}{}
	}

	for _, col := range columns {
		if _, ok := present[strings.ToLower(col.Name)]; ok {
			continue
		}
		quoted, err := quoteIdent(col.Name)
		if err != nil {
			return err
		}
		ddl := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s",
			quotedTable, quoted, s.sqlType(col))
		if err := s.db.WithContext(ctx).Exec(ddl).Error; err != nil {
			return fmt.Errorf("failed to extend table %s: %w", name, err)
		}
	}
	return nil
}

// Columns returns the user columns of a table, lineage columns excluded.
func (s *GormTableStore) Columns(ctx context.Context, name string) ([]ingestapp.TableColumn, error) {
	if !ingest.IsValidIdentifier(name) {
		return nil, shared.ErrInvalidInput.WithMessage(
			fmt.Sprintf("invalid table name %q", name))
	}
	columnTypes, err := s.db.WithContext(ctx).Migrator().ColumnTypes(name)
	if err != nil {
		return nil, err
	}
	columns := make([]ingestapp.TableColumn, 0, len(columnTypes))
	for _, ct := range columnTypes {
		if ingestapp.IsHelperColumn(ct.Name()) {
			continue
		}
		nullable, _ := ct.Nullable()
		columns = append(columns, ingestapp.TableColumn{
			Name:     ct.Name(),
			Type:     strings.ToUpper(ct.DatabaseTypeName()),
			Nullable: nullable,
		})
	}
	return columns, nil
}

// ListTables returns every non-protected table with its columns and row
// count.
func (s *GormTableStore) ListTables(ctx context.Context) ([]ingestapp.TableInfo, error) {
	names, err := s.db.WithContext(ctx).Migrator().GetTables()
	if err != nil {
		return nil, err
	}
	tables := make([]ingestapp.TableInfo, 0, len(names))
	for _, name := range names {
		if ingest.IsProtectedTable(name) || strings.HasPrefix(name, "sqlite_") {
			continue
		}
		columns, err := s.Columns(ctx, name)
		if err != nil {
			return nil, err
		}
		quoted, err := quoteIdent(name)
		if err != nil {
			continue
		}
		var count int64
		if err := s.db.WithContext(ctx).
			Raw("SELECT COUNT(*) FROM " + quoted).
			Scan(&count).Error; err != nil {
			return nil, err
		}
		tables = append(tables, ingestapp.TableInfo{
			Name:     name,
			Columns:  columns,
			RowCount: count,
		})
	}
	return tables, nil
}

// InsertChunk inserts one chunk inside a single transaction, stamping every
// row with the import id, its source row number and the corrections applied
// to it. A failed chunk rolls back whole.
func (s *GormTableStore) InsertChunk(ctx context.Context, table string, importID uuid.UUID, records []ingestapp.Record) error {
	if len(records) == 0 {
		return nil
	}
	if _, err := quoteIdent(table); err != nil {
		return err
	}

	now := time.Now()
	rows := make([]map[string]any, len(records))
	for i, record := range records {
		row := make(map[string]any, len(record.Values)+4)
		for col, val := range record.Values {
			row[col] = val
		}
		row[ColImportID] = importID.String()
		row[ColImportedAt] = now
		row[ColSourceRowNumber] = record.SourceRowNumber
		if len(record.Corrections) > 0 {
			raw, err := json.Marshal(record.Corrections)
			if err != nil {
				return fmt.Errorf("failed to encode corrections for row %d: %w",
					record.SourceRowNumber, err)
			}
			row[ColCorrections] = string(raw)
		} else {
			row[ColCorrections] = nil
		}
		rows[i] = row
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for start := 0; start < len(rows); start += insertBatchSize {
			end := start + insertBatchSize
			if end > len(rows) {
				end = len(rows)
			}
			if err := tx.Table(table).Create(rows[start:end]).Error; err != nil {
				return fmt.Errorf("failed to insert chunk into %s: %w", table, err)
			}
		}
		return nil
	})
}

// ExistingKeys preloads the uniqueness-key set of a table. Rows with a NULL
// in any uniqueness column have no key: NULL never equals NULL.
func (s *GormTableStore) ExistingKeys(ctx context.Context, table string, columns []string) (map[string]struct{}, error) {
	quotedTable, err := quoteIdent(table)
	if err != nil {
		return nil, err
	}
	quotedCols := make([]string, len(columns))
	for i, col := range columns {
		quoted, err := quoteIdent(col)
		if err != nil {
			return nil, err
		}
		quotedCols[i] = quoted
	}

	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(quotedCols, ", "), quotedTable)
	rows, err := s.db.WithContext(ctx).Raw(query).Rows()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	keys := make(map[string]struct{})
	values := make([]any, len(columns))
	scanTargets := make([]any, len(columns))
	for i := range values {
		scanTargets[i] = &values[i]
	}
	for rows.Next() {
		if err := rows.Scan(scanTargets...); err != nil {
			return nil, err
		}
		tuple := make(map[string]string, len(columns))
		hasNull := false
		for i, col := range columns {
			if values[i] == nil {
				hasNull = true
				break
			}
			tuple[col] = sqlValueString(values[i])
		}
		if hasNull {
			continue
		}
		keys[tabular.RowKey(tuple, columns)] = struct{}{}
	}
	return keys, rows.Err()
}

// CountByImport returns the number of live rows carrying the import id.
func (s *GormTableStore) CountByImport(ctx context.Context, table string, importID uuid.UUID) (int64, error) {
	quotedTable, err := quoteIdent(table)
	if err != nil {
		return 0, err
	}
	var count int64
	err = s.db.WithContext(ctx).
		Raw(fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %q = ?", quotedTable, ColImportID),
			importID.String()).
		Scan(&count).Error
	return count, err
}

// sqlValueString renders a scanned database value the way the mapper
// renders source values, so existing-row keys and incoming-row keys hash
// identically.
func sqlValueString(v any) string {
	switch t := v.(type) {
	case []byte:
		return string(t)
	case string:
		return t
	case time.Time:
		return t.Format("2006-01-02T15:04:05")
	case float64:
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%v", t)
	default:
		return fmt.Sprintf("%v", t)
	}
}

// Compile-time interface compliance check
var _ ingestapp.TableStore = (*GormTableStore)(nil)
