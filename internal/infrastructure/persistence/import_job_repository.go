package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mapflow/backend/internal/domain/ingest"
	"github.com/mapflow/backend/internal/domain/shared"
	"github.com/mapflow/backend/internal/infrastructure/persistence/models"
)

// GormImportJobRepository implements ImportJobRepository using GORM
type GormImportJobRepository struct {
	db *gorm.DB
}

// NewGormImportJobRepository creates a new GormImportJobRepository
func NewGormImportJobRepository(db *gorm.DB) *GormImportJobRepository {
	return &GormImportJobRepository{db: db}
}

// Save creates a new job record
func (r *GormImportJobRepository) Save(ctx context.Context, job *ingest.ImportJob) error {
	model := models.ImportJobModelFromDomain(job)
	return r.db.WithContext(ctx).Create(model).Error
}

// Update persists changes to an existing job record
func (r *GormImportJobRepository) Update(ctx context.Context, job *ingest.ImportJob) error {
	model := models.ImportJobModelFromDomain(job)
	return r.db.WithContext(ctx).Save(model).Error
}

// FindByID finds a job by ID
func (r *GormImportJobRepository) FindByID(ctx context.Context, id uuid.UUID) (*ingest.ImportJob, error) {
	var model models.ImportJobModel
	if err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// ClaimNext atomically claims the oldest pending job. The conditional
// update guards against two workers claiming the same row; losing the race
// reads as an empty queue.
func (r *GormImportJobRepository) ClaimNext(ctx context.Context) (*ingest.ImportJob, error) {
	var claimed *ingest.ImportJob
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var model models.ImportJobModel
		if err := tx.
			Where("status = ?", ingest.JobStatusPending).
			Order("created_at ASC").
			First(&model).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return shared.ErrNotFound
			}
			return err
		}

		job := model.ToDomain()
		if err := job.Claim(); err != nil {
			return err
		}

		result := tx.Model(&models.ImportJobModel{}).
			Where("id = ? AND status = ?", job.ID, ingest.JobStatusPending).
			Updates(map[string]any{
				"status":     job.Status,
				"started_at": job.StartedAt,
				"updated_at": job.UpdatedAt,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return shared.ErrNotFound
		}
		claimed = job
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// IsCancelled re-reads only the cancellation flag; the worker polls it
// between chunks.
func (r *GormImportJobRepository) IsCancelled(ctx context.Context, id uuid.UUID) (bool, error) {
	var cancelled bool
	err := r.db.WithContext(ctx).
		Model(&models.ImportJobModel{}).
		Select("cancelled").
		Where("id = ?", id).
		Scan(&cancelled).Error
	if err != nil {
		return false, err
	}
	return cancelled, nil
}

// ResetStale reverts jobs stuck in processing back to pending. Runs at
// worker startup: a crashed worker leaves its claimed job in processing.
func (r *GormImportJobRepository) ResetStale(ctx context.Context) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.ImportJobModel{}).
		Where("status = ?", ingest.JobStatusProcessing).
		Updates(map[string]any{
			"status":     ingest.JobStatusPending,
			"started_at": nil,
			"message":    "requeued after worker restart",
		})
	return result.RowsAffected, result.Error
}

// Compile-time interface compliance check
var _ ingest.ImportJobRepository = (*GormImportJobRepository)(nil)
