package handler

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/mapflow/backend/internal/domain/ingest"
	"github.com/mapflow/backend/internal/domain/shared"
)

// fakeJobRepo is an in-memory job store for handler tests.
type fakeJobRepo struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*ingest.ImportJob
}

func newFakeJobRepo() *fakeJobRepo {
	return &fakeJobRepo{jobs: make(map[uuid.UUID]*ingest.ImportJob)}
}

func (r *fakeJobRepo) Save(_ context.Context, job *ingest.ImportJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[job.ID] = job
	return nil
}

func (r *fakeJobRepo) Update(_ context.Context, job *ingest.ImportJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[job.ID]; !ok {
		return shared.ErrNotFound
	}
	r.jobs[job.ID] = job
	return nil
}

func (r *fakeJobRepo) FindByID(_ context.Context, id uuid.UUID) (*ingest.ImportJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return job, nil
}

func (r *fakeJobRepo) ClaimNext(context.Context) (*ingest.ImportJob, error) {
	return nil, shared.ErrNotFound
}

func (r *fakeJobRepo) IsCancelled(_ context.Context, id uuid.UUID) (bool, error) {
	job, err := r.FindByID(context.Background(), id)
	if err != nil {
		return false, err
	}
	return job.Cancelled, nil
}

func (r *fakeJobRepo) ResetStale(context.Context) (int64, error) { return 0, nil }

// fakeHistoryRepo is an in-memory lineage store for handler tests.
type fakeHistoryRepo struct {
	mu        sync.Mutex
	histories map[uuid.UUID]*ingest.ImportHistory
}

func newFakeHistoryRepo() *fakeHistoryRepo {
	return &fakeHistoryRepo{histories: make(map[uuid.UUID]*ingest.ImportHistory)}
}

func (r *fakeHistoryRepo) Save(_ context.Context, h *ingest.ImportHistory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.histories[h.ID] = h
	return nil
}

func (r *fakeHistoryRepo) Update(ctx context.Context, h *ingest.ImportHistory) error {
	return r.Save(ctx, h)
}

func (r *fakeHistoryRepo) FindByID(_ context.Context, id uuid.UUID) (*ingest.ImportHistory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.histories[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return h, nil
}

func (r *fakeHistoryRepo) FindByFingerprint(context.Context, string, string) ([]*ingest.ImportHistory, error) {
	return nil, nil
}

func (r *fakeHistoryRepo) FindAll(_ context.Context, filter ingest.ImportHistoryFilter,
	page, pageSize int) (*ingest.ImportHistoryListResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var items []*ingest.ImportHistory
	for _, h := range r.histories {
		if filter.TableName != "" && h.TableName != filter.TableName {
			continue
		}
		items = append(items, h)
	}
	return &ingest.ImportHistoryListResult{
		Items:      items,
		TotalCount: int64(len(items)),
		Page:       page,
		PageSize:   pageSize,
	}, nil
}

func (r *fakeHistoryRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.histories[id]; !ok {
		return shared.ErrNotFound
	}
	delete(r.histories, id)
	return nil
}

// fakeMappingErrors returns a fixed per-import error list.
type fakeMappingErrors struct {
	errs []*ingest.MappingError
}

func (r *fakeMappingErrors) SaveBatch(context.Context, []*ingest.MappingError) error { return nil }

func (r *fakeMappingErrors) FindByImport(_ context.Context, importID uuid.UUID, limit int) ([]*ingest.MappingError, error) {
	var out []*ingest.MappingError
	for _, e := range r.errs {
		if e.ImportID == importID && len(out) < limit {
			out = append(out, e)
		}
	}
	return out, nil
}
