package ingestapp

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/mapflow/backend/internal/domain/ingest"
	"github.com/mapflow/backend/internal/domain/shared"
	"github.com/mapflow/backend/internal/infrastructure/tabular"
)

// ErrTooLargeForSync directs oversized synchronous imports to the async
// task endpoint.
var ErrTooLargeForSync = shared.NewDomainError("TIMEOUT",
	fmt.Sprintf("file exceeds the synchronous limit of %d rows; use the async import endpoint", MaxSyncRows))

// ImportService orchestrates the import endpoints: direct uploads,
// object-store fetches, and execution of analyzer recommendations.
type ImportService struct {
	executor *Executor
	storage  ObjectStorage
	cache    *tabular.ParseCache
	logger   *zap.Logger
}

// NewImportService wires the import orchestration.
func NewImportService(executor *Executor, storage ObjectStorage,
	cache *tabular.ParseCache, logger *zap.Logger) *ImportService {
	return &ImportService{executor: executor, storage: storage, cache: cache, logger: logger}
}

// ImportFile imports an uploaded file synchronously. Files whose
// transformed row count exceeds the sync limit are rejected toward the
// async path.
func (s *ImportService) ImportFile(ctx context.Context, data []byte, fileName string,
	cfg *ingest.MappingConfig) (*ExecuteResult, error) {
	kind, err := kindFor(fileName)
	if err != nil {
		return nil, err
	}
	// The parse is cached by fingerprint, so the executor's own parse is a
	// cache hit.
	parsed, _, err := tabular.ParseCached(s.cache, data, kind)
	if err != nil {
		return nil, err
	}
	if len(parsed.Rows) > MaxSyncRows {
		return nil, ErrTooLargeForSync
	}
	return s.executor.Execute(ctx, ExecuteParams{
		Data:     data,
		Kind:     kind,
		FileName: fileName,
		Config:   cfg,
	})
}

// ImportFromStorage fetches the object and imports it synchronously.
func (s *ImportService) ImportFromStorage(ctx context.Context, storageKey, fileName string,
	cfg *ingest.MappingConfig) (*ExecuteResult, error) {
	data, err := s.storage.Get(ctx, storageKey)
	if err != nil {
		return nil, err
	}
	if fileName == "" {
		fileName = storageKey
	}
	return s.ImportFile(ctx, data, fileName, cfg)
}

// ExecuteRecommendation runs an import using an analyzer recommendation,
// translating the strategy into a mapping configuration.
func (s *ImportService) ExecuteRecommendation(ctx context.Context, data []byte, fileName string,
	rec *ingest.Recommendation, check ingest.DuplicateCheck) (*ExecuteResult, error) {
	if !rec.Strategy.IsValid() {
		return nil, shared.ErrInvalidInput.WithMessage(
			fmt.Sprintf("unknown import strategy %q", rec.Strategy))
	}
	cfg := ConfigFromRecommendation(rec, check)
	kind, err := kindFor(fileName)
	if err != nil {
		return nil, err
	}
	// Same sync limit as ImportFile: oversized files go to the async path.
	parsed, _, err := tabular.ParseCached(s.cache, data, kind)
	if err != nil {
		return nil, err
	}
	if len(parsed.Rows) > MaxSyncRows {
		return nil, ErrTooLargeForSync
	}
	return s.executor.Execute(ctx, ExecuteParams{
		Data:        data,
		Kind:        kind,
		FileName:    fileName,
		Config:      cfg,
		ExtendTable: rec.Strategy == ingest.StrategyExtendTable,
	})
}

// ConfigFromRecommendation translates an analyzer recommendation into an
// executable mapping configuration.
func ConfigFromRecommendation(rec *ingest.Recommendation, check ingest.DuplicateCheck) *ingest.MappingConfig {
	return &ingest.MappingConfig{
		TableName:      rec.TargetTable,
		Schema:         rec.Schema,
		Mappings:       rec.ColumnMapping,
		DuplicateCheck: check,
	}
}

func kindFor(fileName string) (tabular.Kind, error) {
	kind, err := tabular.KindFromName(fileName)
	if err != nil {
		return "", shared.ErrInvalidInput.WithMessage(
			fmt.Sprintf("unsupported file type for %q", fileName))
	}
	return kind, nil
}
