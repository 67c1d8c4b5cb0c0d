package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	ingestapp "github.com/mapflow/backend/internal/application/ingest"
	"github.com/mapflow/backend/internal/domain/ingest"
	"github.com/mapflow/backend/internal/domain/shared"
	"github.com/mapflow/backend/internal/infrastructure/tabular"
)

// ---------------------------------------------------------------------------
// ImportWorkerConfig
// ---------------------------------------------------------------------------

// ImportWorkerConfig holds configuration for the background import worker.
type ImportWorkerConfig struct {
	// Enabled indicates if the worker is enabled
	Enabled bool
	// PollInterval is how often the worker checks the queue when idle
	PollInterval time.Duration
	// JobTimeout is the maximum time a single import may run
	JobTimeout time.Duration
	// SweepInterval is how often abandoned upload sessions are swept
	SweepInterval time.Duration
	// UploadMaxIdle is how long an upload session may sit untouched before
	// the sweeper aborts it
	UploadMaxIdle time.Duration
}

// DefaultImportWorkerConfig returns default configuration
func DefaultImportWorkerConfig() ImportWorkerConfig {
	return ImportWorkerConfig{
		Enabled:       true,
		PollInterval:  2 * time.Second,
		JobTimeout:    30 * time.Minute,
		SweepInterval: 1 * time.Hour,
		UploadMaxIdle: 24 * time.Hour,
	}
}

// Validate validates the configuration
func (c *ImportWorkerConfig) Validate() error {
	if c.PollInterval <= 0 {
		return ErrInvalidConfig
	}
	if c.JobTimeout <= 0 {
		return ErrInvalidConfig
	}
	if c.SweepInterval <= 0 {
		return ErrInvalidConfig
	}
	if c.UploadMaxIdle <= 0 {
		return ErrInvalidConfig
	}
	return nil
}

// ---------------------------------------------------------------------------
// Collaborator interfaces
// ---------------------------------------------------------------------------

// ImportExecutor runs one import end to end. Satisfied by the application
// layer executor.
type ImportExecutor interface {
	Execute(ctx context.Context, params ingestapp.ExecuteParams) (*ingestapp.ExecuteResult, error)
}

// UploadSweeper aborts abandoned multipart upload sessions.
type UploadSweeper interface {
	SweepAbandoned(ctx context.Context, maxIdle time.Duration) (int, error)
}

// ---------------------------------------------------------------------------
// ImportWorker
// ---------------------------------------------------------------------------

// ImportWorker drains the import_jobs queue. Jobs are claimed atomically so
// multiple worker processes can run against the same database; each claimed
// job fetches its file from object storage and drives the executor, pushing
// progress and the cancellation flag back through the job record.
type ImportWorker struct {
	config   ImportWorkerConfig
	jobs     ingest.ImportJobRepository
	storage  ingestapp.ObjectStorage
	executor ImportExecutor
	sweeper  UploadSweeper
	logger   *zap.Logger

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
}

// NewImportWorker creates a new import worker
func NewImportWorker(
	config ImportWorkerConfig,
	jobs ingest.ImportJobRepository,
	storage ingestapp.ObjectStorage,
	executor ImportExecutor,
	sweeper UploadSweeper,
	logger *zap.Logger,
) (*ImportWorker, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &ImportWorker{
		config:   config,
		jobs:     jobs,
		storage:  storage,
		executor: executor,
		sweeper:  sweeper,
		logger:   logger,
	}, nil
}

// Start requeues jobs orphaned by a previous process and begins polling.
func (w *ImportWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.isRunning {
		w.mu.Unlock()
		return nil
	}
	w.isRunning = true
	w.mu.Unlock()

	requeued, err := w.jobs.ResetStale(ctx)
	if err != nil {
		w.logger.Error("Failed to reset stale import jobs", zap.Error(err))
	} else if requeued > 0 {
		w.logger.Info("Requeued stale import jobs", zap.Int64("count", requeued))
	}

	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	w.wg.Add(1)
	go w.pollLoop(ctx)

	if w.sweeper != nil {
		w.wg.Add(1)
		go w.sweepLoop(ctx)
	}

	w.logger.Info("Import worker started",
		zap.Duration("poll_interval", w.config.PollInterval),
		zap.Duration("job_timeout", w.config.JobTimeout),
	)

	return nil
}

// Stop gracefully stops the worker
func (w *ImportWorker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.isRunning {
		w.mu.Unlock()
		return nil
	}
	w.isRunning = false
	w.mu.Unlock()

	if w.cancel != nil {
		w.cancel()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("Import worker stopped gracefully")
		return nil
	case <-ctx.Done():
		w.logger.Warn("Import worker stop timed out")
		return ctx.Err()
	}
}

// pollLoop claims and processes jobs until the context is cancelled. After a
// processed job it re-polls immediately to drain a backlog.
func (w *ImportWorker) pollLoop(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		for w.processNext(ctx) {
			if ctx.Err() != nil {
				return
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// sweepLoop periodically aborts abandoned upload sessions.
func (w *ImportWorker) sweepLoop(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			swept, err := w.sweeper.SweepAbandoned(ctx, w.config.UploadMaxIdle)
			if err != nil {
				w.logger.Error("Upload session sweep failed", zap.Error(err))
				continue
			}
			if swept > 0 {
				w.logger.Info("Aborted abandoned upload sessions", zap.Int("count", swept))
			}
		}
	}
}

// processNext claims one pending job. Returns false when the queue is empty.
func (w *ImportWorker) processNext(ctx context.Context) bool {
	job, err := w.jobs.ClaimNext(ctx)
	if err != nil {
		if !errors.Is(err, shared.ErrNotFound) && ctx.Err() == nil {
			w.logger.Error("Failed to claim import job", zap.Error(err))
		}
		return false
	}
	w.processJob(ctx, job)
	return true
}

// processJob executes a single claimed job
func (w *ImportWorker) processJob(ctx context.Context, job *ingest.ImportJob) {
	logger := w.logger.With(zap.String("task_id", job.ID.String()))
	logger.Info("Processing import job")

	jobCtx, cancel := context.WithTimeout(ctx, w.config.JobTimeout)
	defer cancel()

	result, err := w.runImport(jobCtx, job)
	if err != nil {
		w.failJob(ctx, job, err, logger)
		return
	}

	job.AttachImport(result.ImportID)
	payload, merr := json.Marshal(result)
	if merr != nil {
		w.failJob(ctx, job, merr, logger)
		return
	}
	if cerr := job.Complete(string(payload)); cerr != nil {
		logger.Error("Failed to complete import job", zap.Error(cerr))
		return
	}
	if uerr := w.jobs.Update(ctx, job); uerr != nil {
		logger.Error("Failed to persist completed import job", zap.Error(uerr))
		return
	}

	logger.Info("Import job completed",
		zap.String("import_id", result.ImportID.String()),
		zap.String("table", result.TableName),
		zap.Int("rows_inserted", result.RowsInserted),
		zap.Int("rows_skipped", result.RowsSkipped),
		zap.Int("rows_errored", result.RowsErrored),
	)
}

// runImport decodes the job request, fetches the payload and drives the
// executor with progress and cancellation wired to the job record.
func (w *ImportWorker) runImport(ctx context.Context, job *ingest.ImportJob) (*ingestapp.ExecuteResult, error) {
	var req ingestapp.AsyncImportRequest
	if err := json.Unmarshal([]byte(job.Request), &req); err != nil {
		return nil, err
	}

	kind, err := tabular.KindFromName(req.FileName)
	if err != nil {
		return nil, err
	}

	data, err := w.storage.Get(ctx, req.StorageKey)
	if err != nil {
		return nil, err
	}

	return w.executor.Execute(ctx, ingestapp.ExecuteParams{
		Data:     data,
		Kind:     kind,
		FileName: req.FileName,
		Config:   req.Config,
		Progress: func(percent int, message string) {
			job.SetProgress(percent, message)
			if uerr := w.jobs.Update(ctx, job); uerr != nil {
				w.logger.Warn("Failed to persist job progress",
					zap.String("task_id", job.ID.String()), zap.Error(uerr))
			}
		},
		Cancelled: func() bool {
			cancelled, cerr := w.jobs.IsCancelled(ctx, job.ID)
			if cerr != nil {
				return false
			}
			return cancelled
		},
	})
}

func (w *ImportWorker) failJob(ctx context.Context, job *ingest.ImportJob, cause error, logger *zap.Logger) {
	logger.Error("Import job failed", zap.Error(cause))
	if ferr := job.Fail(cause.Error()); ferr != nil {
		logger.Error("Failed to mark import job failed", zap.Error(ferr))
		return
	}
	if uerr := w.jobs.Update(ctx, job); uerr != nil {
		logger.Error("Failed to persist failed import job", zap.Error(uerr))
	}
}
