package ingestapp

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mapflow/backend/internal/domain/ingest"
	"github.com/mapflow/backend/internal/domain/shared"
	"github.com/mapflow/backend/internal/infrastructure/tabular"
)

// fakeTableStore is an in-memory TableStore tracking created tables and
// inserted chunks.
type fakeTableStore struct {
	mu          sync.Mutex
	tables      map[string][]ingest.ColumnDef
	rows        map[string][]insertedRow
	chunks      map[string]int
	insertErrAt int // fail the nth InsertChunk call (1-indexed), 0 = never
	inserts     int
}

type insertedRow struct {
	importID uuid.UUID
	record   Record
}

func newFakeTableStore() *fakeTableStore {
	return &fakeTableStore{
		tables: make(map[string][]ingest.ColumnDef),
		rows:   make(map[string][]insertedRow),
		chunks: make(map[string]int),
	}
}

func (f *fakeTableStore) TableExists(_ context.Context, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.tables[name]
	return ok, nil
}

func (f *fakeTableStore) CreateTable(_ context.Context, name string, columns []ingest.ColumnDef) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tables[name] = columns
	return nil
}

func (f *fakeTableStore) ExtendTable(_ context.Context, name string, columns []ingest.ColumnDef) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	existing := f.tables[name]
	have := make(map[string]struct{}, len(existing))
	for _, c := range existing {
		have[c.Name] = struct{}{}
	}
	for _, c := range columns {
		if _, ok := have[c.Name]; !ok {
			f.tables[name] = append(f.tables[name], c)
		}
	}
	return nil
}

func (f *fakeTableStore) Columns(_ context.Context, name string) ([]TableColumn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	defs, ok := f.tables[name]
	if !ok {
		return nil, shared.ErrNotFound
	}
	cols := make([]TableColumn, len(defs))
	for i, d := range defs {
		cols[i] = TableColumn{Name: d.Name, Type: d.Type, Nullable: !d.NotNull}
	}
	return cols, nil
}

func (f *fakeTableStore) ListTables(_ context.Context) ([]TableInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, 0, len(f.tables))
	for name := range f.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	infos := make([]TableInfo, 0, len(names))
	for _, name := range names {
		cols, _ := f.columnsLocked(name)
		infos = append(infos, TableInfo{
			Name:     name,
			Columns:  cols,
			RowCount: int64(len(f.rows[name])),
		})
	}
	return infos, nil
}

func (f *fakeTableStore) columnsLocked(name string) ([]TableColumn, error) {
	defs := f.tables[name]
	cols := make([]TableColumn, len(defs))
	for i, d := range defs {
		cols[i] = TableColumn{Name: d.Name, Type: d.Type, Nullable: !d.NotNull}
	}
	return cols, nil
}

func (f *fakeTableStore) InsertChunk(_ context.Context, table string, importID uuid.UUID, records []Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inserts++
	if f.insertErrAt > 0 && f.inserts == f.insertErrAt {
		return fmt.Errorf("insert failed on chunk %d", f.inserts)
	}
	for _, rec := range records {
		f.rows[table] = append(f.rows[table], insertedRow{importID: importID, record: rec})
	}
	f.chunks[table]++
	return nil
}

func (f *fakeTableStore) ExistingKeys(_ context.Context, table string, columns []string) (map[string]struct{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	keys := make(map[string]struct{})
	for _, r := range f.rows[table] {
		values := make(map[string]string, len(columns))
		complete := true
		for _, col := range columns {
			v, ok := r.record.Values[col]
			if !ok || v == nil {
				complete = false
				break
			}
			values[col] = fmt.Sprintf("%v", v)
		}
		if complete {
			keys[tabular.RowKey(values, columns)] = struct{}{}
		}
	}
	return keys, nil
}

func (f *fakeTableStore) CountByImport(_ context.Context, table string, importID uuid.UUID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, r := range f.rows[table] {
		if r.importID == importID {
			n++
		}
	}
	return n, nil
}

// fakeHistoryRepo is an in-memory ImportHistoryRepository.
type fakeHistoryRepo struct {
	mu    sync.Mutex
	items map[uuid.UUID]*ingest.ImportHistory
}

func newFakeHistoryRepo() *fakeHistoryRepo {
	return &fakeHistoryRepo{items: make(map[uuid.UUID]*ingest.ImportHistory)}
}

func (f *fakeHistoryRepo) Save(_ context.Context, h *ingest.ImportHistory) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[h.ID] = h
	return nil
}

func (f *fakeHistoryRepo) Update(_ context.Context, h *ingest.ImportHistory) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[h.ID] = h
	return nil
}

func (f *fakeHistoryRepo) FindByID(_ context.Context, id uuid.UUID) (*ingest.ImportHistory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	h, ok := f.items[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return h, nil
}

func (f *fakeHistoryRepo) FindByFingerprint(_ context.Context, tableName, fingerprint string) ([]*ingest.ImportHistory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*ingest.ImportHistory
	for _, h := range f.items {
		if h.TableName == tableName && h.Fingerprint == fingerprint {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeHistoryRepo) FindAll(_ context.Context, filter ingest.ImportHistoryFilter, page, pageSize int) (*ingest.ImportHistoryListResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var items []*ingest.ImportHistory
	for _, h := range f.items {
		if filter.TableName != "" && h.TableName != filter.TableName {
			continue
		}
		if filter.Status != "" && h.Status != filter.Status {
			continue
		}
		items = append(items, h)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt.After(items[j].CreatedAt) })
	return &ingest.ImportHistoryListResult{
		Items:      items,
		TotalCount: int64(len(items)),
		Page:       page,
		PageSize:   pageSize,
	}, nil
}

func (f *fakeHistoryRepo) Delete(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.items[id]; !ok {
		return shared.ErrNotFound
	}
	delete(f.items, id)
	return nil
}

// fakeMappingErrorRepo collects mapping-error batches.
type fakeMappingErrorRepo struct {
	mu   sync.Mutex
	errs []*ingest.MappingError
}

func (f *fakeMappingErrorRepo) SaveBatch(_ context.Context, errs []*ingest.MappingError) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs = append(f.errs, errs...)
	return nil
}

func (f *fakeMappingErrorRepo) FindByImport(_ context.Context, importID uuid.UUID, limit int) ([]*ingest.MappingError, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*ingest.MappingError
	for _, e := range f.errs {
		if e.ImportID == importID {
			out = append(out, e)
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// fakeStorage is an in-memory ObjectStorage.
type fakeStorage struct {
	mu       sync.Mutex
	objects  map[string][]byte
	uploads  map[string]string // uploadID -> key
	aborted  []string
	presigns int
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{objects: make(map[string][]byte), uploads: make(map[string]string)}
}

func (f *fakeStorage) Get(_ context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[key]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return data, nil
}

func (f *fakeStorage) Put(_ context.Context, key string, data []byte, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = data
	return nil
}

func (f *fakeStorage) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, key)
	return nil
}

func (f *fakeStorage) CreateMultipartUpload(_ context.Context, key, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := fmt.Sprintf("upload-%d", len(f.uploads)+1)
	f.uploads[id] = key
	return id, nil
}

func (f *fakeStorage) PresignPart(_ context.Context, key, uploadID string, partNumber int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.presigns++
	return fmt.Sprintf("https://storage.test/%s?uploadId=%s&partNumber=%d", key, uploadID, partNumber), nil
}

func (f *fakeStorage) CompleteMultipartUpload(_ context.Context, key, uploadID string, etags map[int]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uploads[uploadID] != key {
		return shared.ErrNotFound
	}
	f.objects[key] = []byte(strings.Repeat("x", len(etags)))
	delete(f.uploads, uploadID)
	return nil
}

func (f *fakeStorage) AbortMultipartUpload(_ context.Context, _ string, uploadID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.aborted = append(f.aborted, uploadID)
	delete(f.uploads, uploadID)
	return nil
}

// fakeSessionRepo is an in-memory UploadSessionRepository.
type fakeSessionRepo struct {
	mu    sync.Mutex
	items map[string]*ingest.UploadSession
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{items: make(map[string]*ingest.UploadSession)}
}

func (f *fakeSessionRepo) Save(_ context.Context, s *ingest.UploadSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[s.UploadID] = s
	return nil
}

func (f *fakeSessionRepo) Update(_ context.Context, s *ingest.UploadSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[s.UploadID] = s
	return nil
}

func (f *fakeSessionRepo) FindByUploadID(_ context.Context, uploadID string) (*ingest.UploadSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.items[uploadID]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return s, nil
}

func (f *fakeSessionRepo) FindAbandoned(_ context.Context, maxIdle time.Duration) ([]*ingest.UploadSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*ingest.UploadSession
	for _, s := range f.items {
		if s.Abandoned(maxIdle) {
			out = append(out, s)
		}
	}
	return out, nil
}

// fakeJobRepo is an in-memory ImportJobRepository.
type fakeJobRepo struct {
	mu    sync.Mutex
	items map[uuid.UUID]*ingest.ImportJob
}

func newFakeJobRepo() *fakeJobRepo {
	return &fakeJobRepo{items: make(map[uuid.UUID]*ingest.ImportJob)}
}

func (f *fakeJobRepo) Save(_ context.Context, j *ingest.ImportJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[j.ID] = j
	return nil
}

func (f *fakeJobRepo) Update(_ context.Context, j *ingest.ImportJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[j.ID] = j
	return nil
}

func (f *fakeJobRepo) FindByID(_ context.Context, id uuid.UUID) (*ingest.ImportJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.items[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return j, nil
}

func (f *fakeJobRepo) ClaimNext(ctx context.Context) (*ingest.ImportJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var oldest *ingest.ImportJob
	for _, j := range f.items {
		if j.Status != ingest.JobStatusPending {
			continue
		}
		if oldest == nil || j.CreatedAt.Before(oldest.CreatedAt) {
			oldest = j
		}
	}
	if oldest == nil {
		return nil, shared.ErrNotFound
	}
	if err := oldest.Claim(); err != nil {
		return nil, err
	}
	return oldest, nil
}

func (f *fakeJobRepo) IsCancelled(_ context.Context, id uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.items[id]
	if !ok {
		return false, shared.ErrNotFound
	}
	return j.Cancelled, nil
}

func (f *fakeJobRepo) ResetStale(_ context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, j := range f.items {
		if j.Status == ingest.JobStatusProcessing {
			j.Status = ingest.JobStatusPending
			j.StartedAt = nil
			n++
		}
	}
	return n, nil
}

// fakeThreadRepo records analyzer transcripts.
type fakeThreadRepo struct {
	mu       sync.Mutex
	messages []*ingest.ThreadMessage
}

func (f *fakeThreadRepo) AppendMessage(_ context.Context, msg *ingest.ThreadMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, msg)
	return nil
}

func (f *fakeThreadRepo) Messages(_ context.Context, threadID string) ([]*ingest.ThreadMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*ingest.ThreadMessage
	for _, m := range f.messages {
		if m.ThreadID == threadID {
			out = append(out, m)
		}
	}
	return out, nil
}
