package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/mapflow/backend/internal/domain/ingest"
)

// ImportJobModel is the persistence model for async import jobs. A
// background worker claims pending rows; clients poll by ID.
type ImportJobModel struct {
	BaseModel
	Status    ingest.JobStatus `gorm:"type:varchar(20);not null;default:'pending';index"`
	Progress  int              `gorm:"not null;default:0"`
	Message   string           `gorm:"type:text"`
	Result    string           `gorm:"type:text"`
	Request   string           `gorm:"type:text;not null"`
	ImportID  *uuid.UUID       `gorm:"type:uuid;index"`
	Cancelled bool             `gorm:"not null;default:false"`
	StartedAt *time.Time
	EndedAt   *time.Time
}

// TableName returns the table name for GORM
func (ImportJobModel) TableName() string {
	return "import_jobs"
}

// ToDomain converts the persistence model to a domain ImportJob entity.
func (m *ImportJobModel) ToDomain() *ingest.ImportJob {
	return &ingest.ImportJob{
		BaseEntity: m.BaseModel.ToDomain(),
		Status:     m.Status,
		Progress:   m.Progress,
		Message:    m.Message,
		Result:     m.Result,
		Request:    m.Request,
		ImportID:   m.ImportID,
		Cancelled:  m.Cancelled,
		StartedAt:  m.StartedAt,
		EndedAt:    m.EndedAt,
	}
}

// FromDomain populates the persistence model from a domain ImportJob entity.
func (m *ImportJobModel) FromDomain(j *ingest.ImportJob) {
	m.FromDomainBaseEntity(j.BaseEntity)
	m.Status = j.Status
	m.Progress = j.Progress
	m.Message = j.Message
	m.Result = j.Result
	m.Request = j.Request
	m.ImportID = j.ImportID
	m.Cancelled = j.Cancelled
	m.StartedAt = j.StartedAt
	m.EndedAt = j.EndedAt
}

// ImportJobModelFromDomain creates a new persistence model from a domain
// ImportJob entity.
func ImportJobModelFromDomain(j *ingest.ImportJob) *ImportJobModel {
	m := &ImportJobModel{}
	m.FromDomain(j)
	return m
}
