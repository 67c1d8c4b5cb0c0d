package ingestapp

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mapflow/backend/internal/domain/ingest"
)

// UndoResult reports a cascading undo: the lineage record is gone and the
// FK cascade removed exactly the rows that import produced.
type UndoResult struct {
	ImportID    uuid.UUID `json:"import_id"`
	TableName   string    `json:"table_name"`
	RowsRemoved int64     `json:"rows_removed"`
}

// HistoryService exposes import lineage: listings, detail with mapping
// errors, and cascading undo.
type HistoryService struct {
	histories     ingest.ImportHistoryRepository
	mappingErrors ingest.MappingErrorRepository
	tables        TableStore
	logger        *zap.Logger
}

// NewHistoryService wires the lineage service.
func NewHistoryService(histories ingest.ImportHistoryRepository,
	mappingErrors ingest.MappingErrorRepository, tables TableStore,
	logger *zap.Logger) *HistoryService {
	return &HistoryService{
		histories:     histories,
		mappingErrors: mappingErrors,
		tables:        tables,
		logger:        logger,
	}
}

// List returns a paginated history listing.
func (s *HistoryService) List(ctx context.Context, filter ingest.ImportHistoryFilter,
	page, pageSize int) (*ingest.ImportHistoryListResult, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 200 {
		pageSize = 50
	}
	return s.histories.FindAll(ctx, filter, page, pageSize)
}

// Get returns one import with its mapping errors (capped at limit).
func (s *HistoryService) Get(ctx context.Context, id uuid.UUID, errorLimit int) (*ingest.ImportHistory, []*ingest.MappingError, error) {
	history, err := s.histories.FindByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if errorLimit <= 0 {
		errorLimit = 100
	}
	errs, err := s.mappingErrors.FindByImport(ctx, id, errorLimit)
	if err != nil {
		return nil, nil, err
	}
	return history, errs, nil
}

// Undo deletes the lineage record; ON DELETE CASCADE removes the data rows
// it produced. Rows from other imports into the same table are untouched.
func (s *HistoryService) Undo(ctx context.Context, id uuid.UUID) (*UndoResult, error) {
	history, err := s.histories.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	removed, err := s.tables.CountByImport(ctx, history.TableName, history.ID)
	if err != nil {
		return nil, err
	}
	if err := s.histories.Delete(ctx, id); err != nil {
		return nil, err
	}
	s.logger.Info("import undone",
		zap.String("import_id", id.String()),
		zap.String("table", history.TableName),
		zap.Int64("rows_removed", removed))
	return &UndoResult{ImportID: id, TableName: history.TableName, RowsRemoved: removed}, nil
}
