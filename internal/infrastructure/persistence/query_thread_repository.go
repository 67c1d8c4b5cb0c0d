package persistence

import (
	"context"

	"gorm.io/gorm"

	"github.com/mapflow/backend/internal/domain/ingest"
	"github.com/mapflow/backend/internal/infrastructure/persistence/models"
)

// GormQueryThreadRepository implements QueryThreadRepository using GORM
type GormQueryThreadRepository struct {
	db *gorm.DB
}

// NewGormQueryThreadRepository creates a new GormQueryThreadRepository
func NewGormQueryThreadRepository(db *gorm.DB) *GormQueryThreadRepository {
	return &GormQueryThreadRepository{db: db}
}

// AppendMessage persists one conversation turn
func (r *GormQueryThreadRepository) AppendMessage(ctx context.Context, msg *ingest.ThreadMessage) error {
	model := models.QueryMessageModelFromDomain(msg)
	return r.db.WithContext(ctx).Create(model).Error
}

// Messages returns a thread's transcript in chronological order
func (r *GormQueryThreadRepository) Messages(ctx context.Context, threadID string) ([]*ingest.ThreadMessage, error) {
	var messageModels []models.QueryMessageModel
	if err := r.db.WithContext(ctx).
		Where("thread_id = ?", threadID).
		Order("created_at ASC").
		Find(&messageModels).Error; err != nil {
		return nil, err
	}

	messages := make([]*ingest.ThreadMessage, len(messageModels))
	for i, model := range messageModels {
		messages[i] = model.ToDomain()
	}
	return messages, nil
}

// Compile-time interface compliance check
var _ ingest.QueryThreadRepository = (*GormQueryThreadRepository)(nil)
