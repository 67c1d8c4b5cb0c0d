package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/mapflow/backend/internal/domain/ingest"
)

// MappingErrorModel is the persistence model for per-row mapping
// rejections, keyed to the import that produced them.
type MappingErrorModel struct {
	ID              uuid.UUID `gorm:"type:uuid;primary_key"`
	ImportID        uuid.UUID `gorm:"type:uuid;not null;index"`
	SourceRowNumber int       `gorm:"not null"`
	Column          string    `gorm:"column:column_name;type:varchar(255)"`
	Reason          string    `gorm:"type:text;not null"`
	Value           string    `gorm:"type:text"`
	CreatedAt       time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (MappingErrorModel) TableName() string {
	return "mapping_errors"
}

// ToDomain converts the persistence model to a domain MappingError.
func (m *MappingErrorModel) ToDomain() *ingest.MappingError {
	return &ingest.MappingError{
		ID:              m.ID,
		ImportID:        m.ImportID,
		SourceRowNumber: m.SourceRowNumber,
		Column:          m.Column,
		Reason:          m.Reason,
		Value:           m.Value,
		CreatedAt:       m.CreatedAt,
	}
}

// MappingErrorModelFromDomain creates a new persistence model from a domain
// MappingError.
func MappingErrorModelFromDomain(e *ingest.MappingError) *MappingErrorModel {
	return &MappingErrorModel{
		ID:              e.ID,
		ImportID:        e.ImportID,
		SourceRowNumber: e.SourceRowNumber,
		Column:          e.Column,
		Reason:          e.Reason,
		Value:           e.Value,
		CreatedAt:       e.CreatedAt,
	}
}
