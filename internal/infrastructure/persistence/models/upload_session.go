package models

import (
	"encoding/json"
	"time"

	"github.com/mapflow/backend/internal/domain/ingest"
)

// UploadSessionModel is the persistence model for multipart upload
// sessions. Recorded part ETags are stored as a JSON object keyed by part
// number.
type UploadSessionModel struct {
	BaseModel
	UploadID      string              `gorm:"type:varchar(255);not null;uniqueIndex"`
	StorageKey    string              `gorm:"type:varchar(512);not null"`
	FileName      string              `gorm:"type:varchar(255);not null"`
	DeclaredSize  int64               `gorm:"not null"`
	PartSize      int64               `gorm:"not null"`
	ExpectedParts int                 `gorm:"not null"`
	Parts         string              `gorm:"type:text;not null;default:'{}'"`
	Status        ingest.UploadStatus `gorm:"type:varchar(20);not null;default:'active';index"`
	CompletedAt   *time.Time
}

// TableName returns the table name for GORM
func (UploadSessionModel) TableName() string {
	return "upload_sessions"
}

// ToDomain converts the persistence model to a domain UploadSession entity.
func (m *UploadSessionModel) ToDomain() *ingest.UploadSession {
	parts := make(map[int]string)
	if m.Parts != "" {
		_ = json.Unmarshal([]byte(m.Parts), &parts)
	}
	return &ingest.UploadSession{
		BaseEntity:    m.BaseModel.ToDomain(),
		UploadID:      m.UploadID,
		StorageKey:    m.StorageKey,
		FileName:      m.FileName,
		DeclaredSize:  m.DeclaredSize,
		PartSize:      m.PartSize,
		ExpectedParts: m.ExpectedParts,
		Parts:         parts,
		Status:        m.Status,
		CompletedAt:   m.CompletedAt,
	}
}

// FromDomain populates the persistence model from a domain UploadSession entity.
func (m *UploadSessionModel) FromDomain(s *ingest.UploadSession) {
	m.FromDomainBaseEntity(s.BaseEntity)
	m.UploadID = s.UploadID
	m.StorageKey = s.StorageKey
	m.FileName = s.FileName
	m.DeclaredSize = s.DeclaredSize
	m.PartSize = s.PartSize
	m.ExpectedParts = s.ExpectedParts
	m.Status = s.Status
	m.CompletedAt = s.CompletedAt
	if raw, err := json.Marshal(s.Parts); err == nil {
		m.Parts = string(raw)
	} else {
		m.Parts = "{}"
	}
}

// UploadSessionModelFromDomain creates a new persistence model from a domain
// UploadSession entity.
func UploadSessionModelFromDomain(s *ingest.UploadSession) *UploadSessionModel {
	m := &UploadSessionModel{}
	m.FromDomain(s)
	return m
}
