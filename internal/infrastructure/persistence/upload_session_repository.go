package persistence

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/mapflow/backend/internal/domain/ingest"
	"github.com/mapflow/backend/internal/domain/shared"
	"github.com/mapflow/backend/internal/infrastructure/persistence/models"
)

// GormUploadSessionRepository implements UploadSessionRepository using GORM
type GormUploadSessionRepository struct {
	db *gorm.DB
}

// NewGormUploadSessionRepository creates a new GormUploadSessionRepository
func NewGormUploadSessionRepository(db *gorm.DB) *GormUploadSessionRepository {
	return &GormUploadSessionRepository{db: db}
}

// Save creates a new session record
func (r *GormUploadSessionRepository) Save(ctx context.Context, session *ingest.UploadSession) error {
	model := models.UploadSessionModelFromDomain(session)
	return r.db.WithContext(ctx).Create(model).Error
}

// Update persists changes to an existing session record
func (r *GormUploadSessionRepository) Update(ctx context.Context, session *ingest.UploadSession) error {
	model := models.UploadSessionModelFromDomain(session)
	return r.db.WithContext(ctx).Save(model).Error
}

// FindByUploadID finds a session by its object-store multipart upload ID
func (r *GormUploadSessionRepository) FindByUploadID(ctx context.Context, uploadID string) (*ingest.UploadSession, error) {
	var model models.UploadSessionModel
	if err := r.db.WithContext(ctx).
		Where("upload_id = ?", uploadID).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindAbandoned returns active sessions idle longer than maxIdle
func (r *GormUploadSessionRepository) FindAbandoned(ctx context.Context, maxIdle time.Duration) ([]*ingest.UploadSession, error) {
	cutoff := time.Now().Add(-maxIdle)
	var sessionModels []models.UploadSessionModel
	if err := r.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", ingest.UploadStatusActive, cutoff).
		Order("updated_at ASC").
		Find(&sessionModels).Error; err != nil {
		return nil, err
	}

	sessions := make([]*ingest.UploadSession, len(sessionModels))
	for i, model := range sessionModels {
		sessions[i] = model.ToDomain()
	}
	return sessions, nil
}

// Compile-time interface compliance check
var _ ingest.UploadSessionRepository = (*GormUploadSessionRepository)(nil)
