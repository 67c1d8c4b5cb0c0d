package ingestapp

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mapflow/backend/internal/domain/ingest"
)

// AsyncImportRequest is the serialized payload of an import job: the file
// stays in the object store and is fetched by the worker.
type AsyncImportRequest struct {
	StorageKey string                `json:"storage_key"`
	FileName   string                `json:"file_name"`
	Config     *ingest.MappingConfig `json:"config"`
}

// TaskService manages async import jobs: submission, polling and
// cancellation. The actual execution happens in the scheduler worker.
type TaskService struct {
	jobs   ingest.ImportJobRepository
	logger *zap.Logger
}

// NewTaskService wires the task manager.
func NewTaskService(jobs ingest.ImportJobRepository, logger *zap.Logger) *TaskService {
	return &TaskService{jobs: jobs, logger: logger}
}

// Submit persists a pending job and returns it. Workers pick it up from
// the import_jobs table.
func (s *TaskService) Submit(ctx context.Context, req AsyncImportRequest) (*ingest.ImportJob, error) {
	if err := req.Config.Validate(); err != nil {
		return nil, err
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	job := ingest.NewImportJob(string(payload))
	if err := s.jobs.Save(ctx, job); err != nil {
		return nil, err
	}
	s.logger.Info("async import submitted",
		zap.String("task_id", job.ID.String()),
		zap.String("table", req.Config.TableName))
	return job, nil
}

// Get returns the job for polling.
func (s *TaskService) Get(ctx context.Context, id uuid.UUID) (*ingest.ImportJob, error) {
	return s.jobs.FindByID(ctx, id)
}

// Cancel flags a job for cancellation. A running worker observes the flag
// between chunks; a still-pending job fails immediately.
func (s *TaskService) Cancel(ctx context.Context, id uuid.UUID) (*ingest.ImportJob, error) {
	job, err := s.jobs.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := job.Cancel(); err != nil {
		return nil, err
	}
	if job.Status == ingest.JobStatusPending {
		if err := job.Fail("cancelled before execution"); err != nil {
			return nil, err
		}
	}
	if err := s.jobs.Update(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}
