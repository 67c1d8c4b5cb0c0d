package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/mapflow/backend/internal/domain/ingest"
)

// QueryMessageModel is the persistence model for one turn of an analyzer
// conversation thread.
type QueryMessageModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key"`
	ThreadID  string    `gorm:"type:varchar(255);not null;index"`
	Role      string    `gorm:"type:varchar(20);not null"`
	Content   string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (QueryMessageModel) TableName() string {
	return "query_messages"
}

// ToDomain converts the persistence model to a domain ThreadMessage.
func (m *QueryMessageModel) ToDomain() *ingest.ThreadMessage {
	return &ingest.ThreadMessage{
		ID:        m.ID,
		ThreadID:  m.ThreadID,
		Role:      m.Role,
		Content:   m.Content,
		CreatedAt: m.CreatedAt,
	}
}

// QueryMessageModelFromDomain creates a new persistence model from a domain
// ThreadMessage.
func QueryMessageModelFromDomain(msg *ingest.ThreadMessage) *QueryMessageModel {
	return &QueryMessageModel{
		ID:        msg.ID,
		ThreadID:  msg.ThreadID,
		Role:      msg.Role,
		Content:   msg.Content,
		CreatedAt: msg.CreatedAt,
	}
}
