package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	ingestapp "github.com/mapflow/backend/internal/application/ingest"
	"github.com/mapflow/backend/internal/domain/ingest"
	"github.com/mapflow/backend/internal/domain/shared"
	"github.com/mapflow/backend/internal/infrastructure/storage"
	"github.com/mapflow/backend/internal/infrastructure/tabular"
)

// ---------------------------------------------------------------------------
// Test Helpers
// ---------------------------------------------------------------------------

func newTestLogger() *zap.Logger {
	logger, _ := zap.NewDevelopment()
	return logger
}

type memoryJobRepo struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*ingest.ImportJob
}

func newMemoryJobRepo() *memoryJobRepo {
	return &memoryJobRepo{jobs: make(map[uuid.UUID]*ingest.ImportJob)}
}

func (r *memoryJobRepo) Save(_ context.Context, job *ingest.ImportJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[job.ID] = job
	return nil
}

func (r *memoryJobRepo) Update(_ context.Context, job *ingest.ImportJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[job.ID]; !ok {
		return shared.ErrNotFound
	}
	r.jobs[job.ID] = job
	return nil
}

func (r *memoryJobRepo) FindByID(_ context.Context, id uuid.UUID) (*ingest.ImportJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return job, nil
}

func (r *memoryJobRepo) ClaimNext(_ context.Context) (*ingest.ImportJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var pending []*ingest.ImportJob
	for _, job := range r.jobs {
		if job.Status == ingest.JobStatusPending {
			pending = append(pending, job)
		}
	}
	if len(pending) == 0 {
		return nil, shared.ErrNotFound
	}
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})
	job := pending[0]
	if err := job.Claim(); err != nil {
		return nil, err
	}
	return job, nil
}

func (r *memoryJobRepo) IsCancelled(_ context.Context, id uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return false, shared.ErrNotFound
	}
	return job.Cancelled, nil
}

func (r *memoryJobRepo) ResetStale(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int64
	for _, job := range r.jobs {
		if job.Status == ingest.JobStatusProcessing {
			job.Status = ingest.JobStatusPending
			job.StartedAt = nil
			count++
		}
	}
	return count, nil
}

func (r *memoryJobRepo) status(id uuid.UUID) ingest.JobStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.jobs[id].Status
}

type stubExecutor struct {
	mu     sync.Mutex
	params []ingestapp.ExecuteParams
	result *ingestapp.ExecuteResult
	err    error
}

func (e *stubExecutor) Execute(_ context.Context, params ingestapp.ExecuteParams) (*ingestapp.ExecuteResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.params = append(e.params, params)
	if e.err != nil {
		return nil, e.err
	}
	return e.result, nil
}

func (e *stubExecutor) calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.params)
}

type stubSweeper struct {
	mu    sync.Mutex
	calls int
}

func (s *stubSweeper) SweepAbandoned(_ context.Context, _ time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return 1, nil
}

func (s *stubSweeper) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func testWorkerConfig() ImportWorkerConfig {
	cfg := DefaultImportWorkerConfig()
	cfg.PollInterval = 10 * time.Millisecond
	cfg.JobTimeout = 5 * time.Second
	return cfg
}

func submitJob(t *testing.T, repo *memoryJobRepo, req ingestapp.AsyncImportRequest) *ingest.ImportJob {
	t.Helper()
	payload, err := json.Marshal(req)
	require.NoError(t, err)
	job := ingest.NewImportJob(string(payload))
	require.NoError(t, repo.Save(context.Background(), job))
	return job
}

func testMappingConfig() *ingest.MappingConfig {
	return &ingest.MappingConfig{
		TableName: "clients",
		Schema:    []ingest.ColumnDef{{Name: "name", Type: "VARCHAR"}},
		Mappings:  map[string]string{"name": "name"},
	}
}

// ---------------------------------------------------------------------------
// Config Tests
// ---------------------------------------------------------------------------

func TestImportWorkerConfig_Validate(t *testing.T) {
	valid := DefaultImportWorkerConfig()
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*ImportWorkerConfig)
	}{
		{"zero poll interval", func(c *ImportWorkerConfig) { c.PollInterval = 0 }},
		{"zero job timeout", func(c *ImportWorkerConfig) { c.JobTimeout = 0 }},
		{"negative sweep interval", func(c *ImportWorkerConfig) { c.SweepInterval = -time.Second }},
		{"zero upload max idle", func(c *ImportWorkerConfig) { c.UploadMaxIdle = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultImportWorkerConfig()
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}

func TestNewImportWorker_RejectsInvalidConfig(t *testing.T) {
	cfg := DefaultImportWorkerConfig()
	cfg.PollInterval = 0
	_, err := NewImportWorker(cfg, newMemoryJobRepo(), storage.NewMemoryObjectStorage(), &stubExecutor{}, nil, newTestLogger())
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

// ---------------------------------------------------------------------------
// Worker Tests
// ---------------------------------------------------------------------------

func TestImportWorker_ProcessesPendingJob(t *testing.T) {
	repo := newMemoryJobRepo()
	store := storage.NewMemoryObjectStorage()
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "uploads/a/clients.csv", []byte("name\nJohn\n"), "text/csv"))

	importID := uuid.New()
	exec := &stubExecutor{result: &ingestapp.ExecuteResult{
		ImportID:      importID,
		TableName:     "clients",
		TableCreated:  true,
		RowsProcessed: 1,
		RowsInserted:  1,
	}}

	job := submitJob(t, repo, ingestapp.AsyncImportRequest{
		StorageKey: "uploads/a/clients.csv",
		FileName:   "clients.csv",
		Config:     testMappingConfig(),
	})

	worker, err := NewImportWorker(testWorkerConfig(), repo, store, exec, nil, newTestLogger())
	require.NoError(t, err)
	require.NoError(t, worker.Start(ctx))
	defer worker.Stop(ctx)

	require.Eventually(t, func() bool {
		return repo.status(job.ID) == ingest.JobStatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	done, err := repo.FindByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 100, done.Progress)
	require.NotNil(t, done.ImportID)
	assert.Equal(t, importID, *done.ImportID)

	var result ingestapp.ExecuteResult
	require.NoError(t, json.Unmarshal([]byte(done.Result), &result))
	assert.Equal(t, "clients", result.TableName)
	assert.Equal(t, 1, result.RowsInserted)

	// The executor received the stored bytes and the kind derived from the
	// file name.
	require.Equal(t, 1, exec.calls())
	assert.Equal(t, []byte("name\nJohn\n"), exec.params[0].Data)
	assert.Equal(t, tabular.KindCSV, exec.params[0].Kind)
	assert.NotNil(t, exec.params[0].Progress)
	assert.NotNil(t, exec.params[0].Cancelled)
}

func TestImportWorker_FailsJobWhenObjectMissing(t *testing.T) {
	repo := newMemoryJobRepo()
	ctx := context.Background()

	job := submitJob(t, repo, ingestapp.AsyncImportRequest{
		StorageKey: "uploads/a/missing.csv",
		FileName:   "missing.csv",
		Config:     testMappingConfig(),
	})

	worker, err := NewImportWorker(testWorkerConfig(), repo, storage.NewMemoryObjectStorage(), &stubExecutor{}, nil, newTestLogger())
	require.NoError(t, err)
	require.NoError(t, worker.Start(ctx))
	defer worker.Stop(ctx)

	require.Eventually(t, func() bool {
		return repo.status(job.ID) == ingest.JobStatusFailed
	}, 2*time.Second, 10*time.Millisecond)
}

func TestImportWorker_FailsJobOnUnsupportedExtension(t *testing.T) {
	repo := newMemoryJobRepo()
	ctx := context.Background()
	exec := &stubExecutor{}

	job := submitJob(t, repo, ingestapp.AsyncImportRequest{
		StorageKey: "uploads/a/clients.pdf",
		FileName:   "clients.pdf",
		Config:     testMappingConfig(),
	})

	worker, err := NewImportWorker(testWorkerConfig(), repo, storage.NewMemoryObjectStorage(), exec, nil, newTestLogger())
	require.NoError(t, err)
	require.NoError(t, worker.Start(ctx))
	defer worker.Stop(ctx)

	require.Eventually(t, func() bool {
		return repo.status(job.ID) == ingest.JobStatusFailed
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, exec.calls())
}

func TestImportWorker_FailsJobOnExecutorError(t *testing.T) {
	repo := newMemoryJobRepo()
	store := storage.NewMemoryObjectStorage()
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "uploads/a/clients.csv", []byte("name\nJohn\n"), "text/csv"))
	exec := &stubExecutor{err: errors.New("boom")}

	job := submitJob(t, repo, ingestapp.AsyncImportRequest{
		StorageKey: "uploads/a/clients.csv",
		FileName:   "clients.csv",
		Config:     testMappingConfig(),
	})

	worker, err := NewImportWorker(testWorkerConfig(), repo, store, exec, nil, newTestLogger())
	require.NoError(t, err)
	require.NoError(t, worker.Start(ctx))
	defer worker.Stop(ctx)

	require.Eventually(t, func() bool {
		return repo.status(job.ID) == ingest.JobStatusFailed
	}, 2*time.Second, 10*time.Millisecond)

	failed, err := repo.FindByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Contains(t, failed.Message, "boom")
}

func TestImportWorker_RequeuesStaleJobsOnStart(t *testing.T) {
	repo := newMemoryJobRepo()
	store := storage.NewMemoryObjectStorage()
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "uploads/a/clients.csv", []byte("name\nJohn\n"), "text/csv"))
	exec := &stubExecutor{result: &ingestapp.ExecuteResult{ImportID: uuid.New(), TableName: "clients"}}

	// Simulate a job orphaned by a crashed worker.
	job := submitJob(t, repo, ingestapp.AsyncImportRequest{
		StorageKey: "uploads/a/clients.csv",
		FileName:   "clients.csv",
		Config:     testMappingConfig(),
	})
	require.NoError(t, job.Claim())

	worker, err := NewImportWorker(testWorkerConfig(), repo, store, exec, nil, newTestLogger())
	require.NoError(t, err)
	require.NoError(t, worker.Start(ctx))
	defer worker.Stop(ctx)

	require.Eventually(t, func() bool {
		return repo.status(job.ID) == ingest.JobStatusCompleted
	}, 2*time.Second, 10*time.Millisecond)
}

func TestImportWorker_SweepsAbandonedUploads(t *testing.T) {
	cfg := testWorkerConfig()
	cfg.SweepInterval = 15 * time.Millisecond
	sweeper := &stubSweeper{}

	worker, err := NewImportWorker(cfg, newMemoryJobRepo(), storage.NewMemoryObjectStorage(), &stubExecutor{}, sweeper, newTestLogger())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, worker.Start(ctx))
	defer worker.Stop(ctx)

	require.Eventually(t, func() bool {
		return sweeper.count() >= 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestImportWorker_StartIsIdempotent(t *testing.T) {
	worker, err := NewImportWorker(testWorkerConfig(), newMemoryJobRepo(), storage.NewMemoryObjectStorage(), &stubExecutor{}, nil, newTestLogger())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, worker.Start(ctx))
	require.NoError(t, worker.Start(ctx))
	require.NoError(t, worker.Stop(ctx))
	require.NoError(t, worker.Stop(ctx))
}
