package persistence

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mapflow/backend/internal/domain/ingest"
	"github.com/mapflow/backend/internal/infrastructure/persistence/models"
)

// mappingErrorBatchSize bounds a single INSERT statement.
const mappingErrorBatchSize = 500

// GormMappingErrorRepository implements MappingErrorRepository using GORM
type GormMappingErrorRepository struct {
	db *gorm.DB
}

// NewGormMappingErrorRepository creates a new GormMappingErrorRepository
func NewGormMappingErrorRepository(db *gorm.DB) *GormMappingErrorRepository {
	return &GormMappingErrorRepository{db: db}
}

// SaveBatch persists a batch of mapping errors
func (r *GormMappingErrorRepository) SaveBatch(ctx context.Context, errs []*ingest.MappingError) error {
	if len(errs) == 0 {
		return nil
	}
	errorModels := make([]*models.MappingErrorModel, len(errs))
	for i, e := range errs {
		errorModels[i] = models.MappingErrorModelFromDomain(e)
	}
	return r.db.WithContext(ctx).CreateInBatches(errorModels, mappingErrorBatchSize).Error
}

// FindByImport returns the mapping errors of one import, in source row
// order, capped at limit.
func (r *GormMappingErrorRepository) FindByImport(
	ctx context.Context,
	importID uuid.UUID,
	limit int,
) ([]*ingest.MappingError, error) {
	query := r.db.WithContext(ctx).
		Where("import_id = ?", importID).
		Order("source_row_number ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var errorModels []models.MappingErrorModel
	if err := query.Find(&errorModels).Error; err != nil {
		return nil, err
	}

	errs := make([]*ingest.MappingError, len(errorModels))
	for i, model := range errorModels {
		errs[i] = model.ToDomain()
	}
	return errs, nil
}

// Compile-time interface compliance check
var _ ingest.MappingErrorRepository = (*GormMappingErrorRepository)(nil)
