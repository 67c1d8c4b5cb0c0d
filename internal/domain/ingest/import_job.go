package ingest

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mapflow/backend/internal/domain/shared"
)

// JobStatus represents the lifecycle state of an async import job.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// IsTerminal returns true if this is a terminal state
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// ImportJob is the durable record of an asynchronous import. Clients poll it
// by ID; a background worker claims pending jobs and drives the executor.
type ImportJob struct {
	shared.BaseEntity
	Status    JobStatus  `json:"status"`
	Progress  int        `json:"progress"` // 0-100
	Message   string     `json:"message,omitempty"`
	Result    string     `json:"result,omitempty"` // JSON-encoded ImportResult
	Request   string     `json:"request"`          // JSON-encoded job request
	ImportID  *uuid.UUID `json:"import_id,omitempty"`
	Cancelled bool       `json:"cancelled"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

// NewImportJob creates a pending job carrying the serialized request.
func NewImportJob(request string) *ImportJob {
	return &ImportJob{
		BaseEntity: shared.NewBaseEntity(),
		Status:     JobStatusPending,
		Request:    request,
	}
}

// Claim marks the job as picked up by a worker.
func (j *ImportJob) Claim() error {
	if j.Status != JobStatusPending {
		return shared.NewDomainError("INVALID_STATE",
			fmt.Sprintf("Cannot claim job in state: %s", j.Status))
	}
	j.Status = JobStatusProcessing
	now := time.Now()
	j.StartedAt = &now
	j.UpdatedAt = now
	return nil
}

// SetProgress records phase progress (0-100) with a status message.
func (j *ImportJob) SetProgress(progress int, message string) {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	j.Progress = progress
	j.Message = message
	j.UpdatedAt = time.Now()
}

// AttachImport links the job to the import history record it produced.
func (j *ImportJob) AttachImport(importID uuid.UUID) {
	j.ImportID = &importID
	j.UpdatedAt = time.Now()
}

// Complete marks the job as finished with a serialized result.
func (j *ImportJob) Complete(result string) error {
	if j.Status != JobStatusProcessing {
		return shared.NewDomainError("INVALID_STATE",
			fmt.Sprintf("Cannot complete job in state: %s", j.Status))
	}
	j.Status = JobStatusCompleted
	j.Progress = 100
	j.Result = result
	now := time.Now()
	j.EndedAt = &now
	j.UpdatedAt = now
	return nil
}

// Fail marks the job as failed with a message.
func (j *ImportJob) Fail(message string) error {
	if j.Status.IsTerminal() {
		return shared.NewDomainError("INVALID_STATE",
			fmt.Sprintf("Cannot fail job in terminal state: %s", j.Status))
	}
	j.Status = JobStatusFailed
	j.Message = message
	now := time.Now()
	j.EndedAt = &now
	j.UpdatedAt = now
	return nil
}

// Cancel requests cancellation. The running worker observes the flag between
// chunks; rows already committed stay and remain undoable via lineage.
func (j *ImportJob) Cancel() error {
	if j.Status.IsTerminal() {
		return shared.NewDomainError("INVALID_STATE",
			fmt.Sprintf("Cannot cancel job in terminal state: %s", j.Status))
	}
	j.Cancelled = true
	j.UpdatedAt = time.Now()
	return nil
}
