package models

import (
	"time"

	"github.com/mapflow/backend/internal/domain/ingest"
)

// ImportHistoryModel is the persistence model for the ImportHistory domain
// entity. Its primary key is the import_id that every dynamically inserted
// data row carries in its _import_id column; the cascade FK on those tables
// points here.
type ImportHistoryModel struct {
	BaseModel
	Fingerprint     string              `gorm:"type:varchar(64);not null;index:idx_import_history_file,priority:2"`
	TargetTable     string              `gorm:"column:table_name;type:varchar(255);not null;index:idx_import_history_file,priority:1"`
	FileName        string              `gorm:"type:varchar(255);not null"`
	FileSize        int64               `gorm:"not null;default:0"`
	RowsProcessed   int                 `gorm:"not null;default:0"`
	RowsInserted    int                 `gorm:"not null;default:0"`
	RowsSkipped     int                 `gorm:"not null;default:0"`
	RowsErrored     int                 `gorm:"not null;default:0"`
	Strategy        string              `gorm:"type:varchar(20)"`
	MappingSnapshot string              `gorm:"type:text"`
	Status          ingest.ImportStatus `gorm:"type:varchar(20);not null;default:'pending';index"`
	ErrorMessage    string              `gorm:"type:text"`
	StartedAt       *time.Time
	CompletedAt     *time.Time
}

// TableName returns the table name for GORM
func (ImportHistoryModel) TableName() string {
	return "import_history"
}

// ToDomain converts the persistence model to a domain ImportHistory entity.
func (m *ImportHistoryModel) ToDomain() *ingest.ImportHistory {
	return &ingest.ImportHistory{
		BaseEntity:      m.BaseModel.ToDomain(),
		Fingerprint:     m.Fingerprint,
		TableName:       m.TargetTable,
		FileName:        m.FileName,
		FileSize:        m.FileSize,
		RowsProcessed:   m.RowsProcessed,
		RowsInserted:    m.RowsInserted,
		RowsSkipped:     m.RowsSkipped,
		RowsErrored:     m.RowsErrored,
		Strategy:        ingest.Strategy(m.Strategy),
		MappingSnapshot: m.MappingSnapshot,
		Status:          m.Status,
		ErrorMessage:    m.ErrorMessage,
		StartedAt:       m.StartedAt,
		CompletedAt:     m.CompletedAt,
	}
}

// FromDomain populates the persistence model from a domain ImportHistory entity.
func (m *ImportHistoryModel) FromDomain(h *ingest.ImportHistory) {
	m.FromDomainBaseEntity(h.BaseEntity)
	m.Fingerprint = h.Fingerprint
	m.TargetTable = h.TableName
	m.FileName = h.FileName
	m.FileSize = h.FileSize
	m.RowsProcessed = h.RowsProcessed
	m.RowsInserted = h.RowsInserted
	m.RowsSkipped = h.RowsSkipped
	m.RowsErrored = h.RowsErrored
	m.Strategy = string(h.Strategy)
	m.MappingSnapshot = h.MappingSnapshot
	m.Status = h.Status
	m.ErrorMessage = h.ErrorMessage
	m.StartedAt = h.StartedAt
	m.CompletedAt = h.CompletedAt
}

// ImportHistoryModelFromDomain creates a new persistence model from a domain
// ImportHistory entity.
func ImportHistoryModelFromDomain(h *ingest.ImportHistory) *ImportHistoryModel {
	m := &ImportHistoryModel{}
	m.FromDomain(h)
	return m
}
