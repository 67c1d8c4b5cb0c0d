package ingest

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/mapflow/backend/internal/domain/shared"
)

// ImportStatus represents the lifecycle state of an import attempt.
type ImportStatus string

const (
	ImportStatusPending    ImportStatus = "pending"
	ImportStatusProcessing ImportStatus = "processing"
	ImportStatusCompleted  ImportStatus = "completed"
	ImportStatusFailed     ImportStatus = "failed"
)

// IsValid checks if the status is valid
func (s ImportStatus) IsValid() bool {
	switch s {
	case ImportStatusPending, ImportStatusProcessing, ImportStatusCompleted, ImportStatusFailed:
		return true
	}
	return false
}

// IsTerminal returns true if this is a terminal state
func (s ImportStatus) IsTerminal() bool {
	return s == ImportStatusCompleted || s == ImportStatusFailed
}

// ImportHistory is the per-attempt lineage record. Its ID is the import_id
// embedded into every inserted data row; deleting the record cascades to
// exactly those rows.
type ImportHistory struct {
	shared.BaseEntity
	Fingerprint     string       `json:"fingerprint"`
	TableName       string       `json:"table_name"`
	FileName        string       `json:"file_name"`
	FileSize        int64        `json:"file_size"`
	RowsProcessed   int          `json:"rows_processed"`
	RowsInserted    int          `json:"rows_inserted"`
	RowsSkipped     int          `json:"rows_skipped"`
	RowsErrored     int          `json:"rows_errored"`
	Strategy        Strategy     `json:"strategy,omitempty"`
	MappingSnapshot string       `json:"mapping_snapshot,omitempty"`
	Status          ImportStatus `json:"status"`
	ErrorMessage    string       `json:"error_message,omitempty"`
	StartedAt       *time.Time   `json:"started_at,omitempty"`
	CompletedAt     *time.Time   `json:"completed_at,omitempty"`
}

// NewImportHistory creates a pending import record with a snapshot of the
// mapping configuration that drives the attempt.
func NewImportHistory(fingerprint, tableName, fileName string, fileSize int64, cfg *MappingConfig) (*ImportHistory, error) {
	if fingerprint == "" {
		return nil, shared.NewDomainError("INVALID_FINGERPRINT", "File fingerprint cannot be empty")
	}
	if tableName == "" {
		return nil, shared.NewDomainError("INVALID_TABLE_NAME", "Target table name cannot be empty")
	}
	snapshot := ""
	if cfg != nil {
		raw, err := json.Marshal(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to snapshot mapping config: %w", err)
		}
		snapshot = string(raw)
	}
	return &ImportHistory{
		BaseEntity:      shared.NewBaseEntity(),
		Fingerprint:     fingerprint,
		TableName:       tableName,
		FileName:        fileName,
		FileSize:        fileSize,
		MappingSnapshot: snapshot,
		Status:          ImportStatusPending,
	}, nil
}

// StartProcessing marks the import as started.
func (h *ImportHistory) StartProcessing() error {
	if h.Status != ImportStatusPending {
		return shared.NewDomainError("INVALID_STATE",
			fmt.Sprintf("Cannot start processing from state: %s", h.Status))
	}
	h.Status = ImportStatusProcessing
	now := time.Now()
	h.StartedAt = &now
	h.UpdatedAt = now
	return nil
}

// Complete records the final row counts and marks the import completed.
// A fully-filtered file (zero rows) still completes.
func (h *ImportHistory) Complete(processed, inserted, skipped, errored int) error {
	if h.Status != ImportStatusProcessing {
		return shared.NewDomainError("INVALID_STATE",
			fmt.Sprintf("Cannot complete from state: %s", h.Status))
	}
	h.Status = ImportStatusCompleted
	h.RowsProcessed = processed
	h.RowsInserted = inserted
	h.RowsSkipped = skipped
	h.RowsErrored = errored
	now := time.Now()
	h.CompletedAt = &now
	h.UpdatedAt = now
	return nil
}

// Fail marks the import as failed, preserving any partial counts so the
// already-inserted chunks remain attributable for cascade undo.
func (h *ImportHistory) Fail(message string, processed, inserted, skipped, errored int) error {
	if h.Status.IsTerminal() {
		return shared.NewDomainError("INVALID_STATE",
			fmt.Sprintf("Cannot fail from terminal state: %s", h.Status))
	}
	h.Status = ImportStatusFailed
	h.ErrorMessage = message
	h.RowsProcessed = processed
	h.RowsInserted = inserted
	h.RowsSkipped = skipped
	h.RowsErrored = errored
	now := time.Now()
	h.CompletedAt = &now
	h.UpdatedAt = now
	return nil
}

// Duration returns how long the import ran.
func (h *ImportHistory) Duration() time.Duration {
	if h.StartedAt == nil {
		return 0
	}
	end := time.Now()
	if h.CompletedAt != nil {
		end = *h.CompletedAt
	}
	return end.Sub(*h.StartedAt)
}

// ImportHistoryFilter narrows import history listings.
type ImportHistoryFilter struct {
	TableName   string
	Status      ImportStatus
	Fingerprint string
}

// ImportHistoryListResult is a paginated listing of import histories.
type ImportHistoryListResult struct {
	Items      []*ImportHistory
	TotalCount int64
	Page       int
	PageSize   int
}
