package ingestapp

import (
	"context"
	"runtime"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mapflow/backend/internal/domain/ingest"
	"github.com/mapflow/backend/internal/domain/shared"
	logctx "github.com/mapflow/backend/internal/infrastructure/logger"
	"github.com/mapflow/backend/internal/infrastructure/tabular"
)

const (
	// DefaultChunkSize is the number of rows per executor chunk.
	DefaultChunkSize = 10000
	// MaxSyncRows is the largest transformed row count a synchronous
	// request may import; anything larger must go through the async task
	// path.
	MaxSyncRows = 50000
	// MaxWorkers caps the phase-0/1 worker pool.
	MaxWorkers = 4
)

// ErrCancelled reports an import stopped by a client cancellation between
// chunks.
var ErrCancelled = shared.NewDomainError("IMPORT_CANCELLED", "Import cancelled by client")

// Executor drives the three-phase import: parallel map, parallel dedup,
// sequential chunked insert. One executor is shared by the sync handler and
// the async worker.
type Executor struct {
	tables        TableStore
	histories     ingest.ImportHistoryRepository
	mappingErrors ingest.MappingErrorRepository
	cache         *tabular.ParseCache
	logger        *zap.Logger

	chunkSize int
	workers   int
}

// ExecutorOption customizes an Executor.
type ExecutorOption func(*Executor)

// WithChunkSize overrides the default chunk size (tests use small chunks).
func WithChunkSize(n int) ExecutorOption {
	return func(e *Executor) {
		if n > 0 {
			e.chunkSize = n
		}
	}
}

// WithWorkers overrides the worker-pool size.
func WithWorkers(n int) ExecutorOption {
	return func(e *Executor) {
		if n > 0 {
			e.workers = n
		}
	}
}

// NewExecutor wires an executor over the table store and lineage
// repositories.
func NewExecutor(tables TableStore, histories ingest.ImportHistoryRepository,
	mappingErrors ingest.MappingErrorRepository, cache *tabular.ParseCache,
	logger *zap.Logger, opts ...ExecutorOption) *Executor {
	e := &Executor{
		tables:        tables,
		histories:     histories,
		mappingErrors: mappingErrors,
		cache:         cache,
		logger:        logger,
		chunkSize:     DefaultChunkSize,
		workers:       defaultWorkers(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func defaultWorkers() int {
	w := runtime.GOMAXPROCS(0)
	if w > MaxWorkers {
		w = MaxWorkers
	}
	if w < 1 {
		w = 1
	}
	return w
}

// ExecuteParams carries one import request into the executor.
type ExecuteParams struct {
	Data     []byte
	Kind     tabular.Kind
	FileName string
	Config   *ingest.MappingConfig
	// ExtendTable adds missing columns to an existing target table instead
	// of requiring an exact schema match.
	ExtendTable bool
	// Progress, when set, receives phase-weighted percentages (0-100).
	Progress func(percent int, message string)
	// Cancelled, when set, is polled between insert chunks.
	Cancelled func() bool
}

// ExecuteResult summarizes a finished import.
type ExecuteResult struct {
	ImportID      uuid.UUID `json:"import_id"`
	TableName     string    `json:"table_name"`
	TableCreated  bool      `json:"table_created"`
	RowsProcessed int       `json:"records_processed"`
	RowsInserted  int       `json:"records_inserted"`
	RowsSkipped   int       `json:"records_skipped"`
	RowsErrored   int       `json:"records_errored"`
}

// mappedChunk is the unit passed between phases; index preserves file order.
type mappedChunk struct {
	index   int
	rows    []tabular.Row
	records []Record
	rejects []Rejection
	skipped int
}

// Execute runs the full pipeline for one file. The returned result is nil
// only when the import never produced an ImportHistory record (validation
// and duplicate-file failures).
func (e *Executor) Execute(ctx context.Context, params ExecuteParams) (*ExecuteResult, error) {
	cfg := params.Config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	table := cfg.SafeTableName()
	fingerprint := tabular.Fingerprint(params.Data)

	if err := CheckFileDuplicate(ctx, e.histories, table, fingerprint, cfg.DuplicateCheck); err != nil {
		return nil, err
	}

	parsed, _, err := tabular.ParseCached(e.cache, params.Data, params.Kind)
	if err != nil {
		return nil, err
	}

	transformer, err := NewTransformer(cfg.Rules.RowTransformations)
	if err != nil {
		return nil, err
	}
	rows, err := transformer.Apply(parsed.Rows)
	if err != nil {
		return nil, err
	}
	rows = StripHelperColumns(rows)

	mapper, err := NewMapper(cfg)
	if err != nil {
		return nil, err
	}

	created, err := e.ensureTable(ctx, table, cfg, params.ExtendTable)
	if err != nil {
		return nil, err
	}

	deduper, err := e.prepareDeduper(ctx, table, cfg, created)
	if err != nil {
		return nil, err
	}

	history, err := ingest.NewImportHistory(fingerprint, table, params.FileName, int64(len(params.Data)), cfg)
	if err != nil {
		return nil, err
	}
	if err := e.histories.Save(ctx, history); err != nil {
		return nil, err
	}
	if err := history.StartProcessing(); err != nil {
		return nil, err
	}
	if err := e.histories.Update(ctx, history); err != nil {
		return nil, err
	}

	ctx, log := logctx.WithImportID(ctx, e.logger, history.ID.String())
	log.Info("import started",
		zap.String("table", table),
		zap.Int("rows", len(rows)),
		zap.Int("workers", e.workers))

	result := &ExecuteResult{
		ImportID:      history.ID,
		TableName:     table,
		TableCreated:  created,
		RowsProcessed: len(rows),
	}

	chunks := chunkRows(rows, e.chunkSize)

	// Phase 0: map chunks in parallel, order kept by index.
	e.mapPhase(chunks, mapper)
	reportProgress(params.Progress, 33, "mapping complete")

	// Phase 1: dedup in parallel against preloaded and in-flight key sets.
	e.dedupPhase(chunks, deduper)
	reportProgress(params.Progress, 66, "deduplication complete")

	// Phase 2: sequential per-chunk transactions.
	inserted, skipped, errored, execErr := e.insertPhase(ctx, table, history.ID, chunks, params)
	result.RowsInserted = inserted
	result.RowsSkipped = skipped
	result.RowsErrored = errored

	e.saveRejections(ctx, history.ID, chunks)

	if execErr != nil {
		history.Fail(execErr.Error(), len(rows), inserted, skipped, errored)
		if uerr := e.histories.Update(ctx, history); uerr != nil {
			log.Error("failed to persist failed import", zap.Error(uerr))
		}
		log.Warn("import failed", zap.Error(execErr))
		return result, execErr
	}

	if err := history.Complete(len(rows), inserted, skipped, errored); err != nil {
		return result, err
	}
	if err := e.histories.Update(ctx, history); err != nil {
		return result, err
	}
	reportProgress(params.Progress, 100, "import complete")

	log.Info("import completed",
		zap.Int("inserted", inserted),
		zap.Int("skipped", skipped),
		zap.Int("errored", errored))
	return result, nil
}

// ensureTable creates the target table on first import, or extends it when
// the strategy allows.
func (e *Executor) ensureTable(ctx context.Context, table string, cfg *ingest.MappingConfig, extend bool) (bool, error) {
	exists, err := e.tables.TableExists(ctx, table)
	if err != nil {
		return false, err
	}
	if !exists {
		if err := e.tables.CreateTable(ctx, table, cfg.Schema); err != nil {
			return false, err
		}
		return true, nil
	}
	if extend {
		if err := e.tables.ExtendTable(ctx, table, cfg.Schema); err != nil {
			return false, err
		}
	}
	return false, nil
}

// prepareDeduper builds the row deduper, preloading existing keys from the
// table unless it was just created. A forced import bypasses row-level
// dedup entirely: duplicates are inserted, not skipped.
func (e *Executor) prepareDeduper(ctx context.Context, table string, cfg *ingest.MappingConfig, created bool) (*RowDeduper, error) {
	check := cfg.DuplicateCheck
	if !check.Enabled || check.ForceImport || len(check.UniquenessColumns) == 0 {
		return NewRowDeduper(nil, nil), nil
	}
	var existing map[string]struct{}
	if !created {
		var err error
		existing, err = e.tables.ExistingKeys(ctx, table, check.UniquenessColumns)
		if err != nil {
			return nil, err
		}
	}
	return NewRowDeduper(check.UniquenessColumns, existing), nil
}

func chunkRows(rows []tabular.Row, size int) []mappedChunk {
	if len(rows) == 0 {
		return nil
	}
	chunks := make([]mappedChunk, 0, (len(rows)+size-1)/size)
	for start := 0; start < len(rows); start += size {
		end := start + size
		if end > len(rows) {
			end = len(rows)
		}
		chunks = append(chunks, mappedChunk{index: len(chunks), rows: rows[start:end]})
	}
	return chunks
}

// mapPhase maps all chunks through the worker pool. Results land at their
// chunk index, so cross-chunk order survives the parallelism. Rejected rows
// are excluded from the mapped records.
func (e *Executor) mapPhase(chunks []mappedChunk, mapper *Mapper) {
	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < e.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				chunk := &chunks[i]
				chunk.records = make([]Record, 0, len(chunk.rows))
				for _, row := range chunk.rows {
					rec, rejects := mapper.MapRow(row)
					if len(rejects) > 0 {
						chunk.rejects = append(chunk.rejects, rejects...)
						continue
					}
					chunk.records = append(chunk.records, rec)
				}
				chunk.rows = nil
			}
		}()
	}
	for i := range chunks {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
}

// dedupPhase filters each mapped chunk in parallel.
func (e *Executor) dedupPhase(chunks []mappedChunk, deduper *RowDeduper) {
	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < e.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				unique, skipped := deduper.Filter(chunks[i].records)
				chunks[i].records = unique
				chunks[i].skipped = skipped
			}
		}()
	}
	for i := range chunks {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
}

// insertPhase inserts chunks one at a time, in index order, each inside its
// own transaction. The first failure stops the import.
func (e *Executor) insertPhase(ctx context.Context, table string, importID uuid.UUID,
	chunks []mappedChunk, params ExecuteParams) (inserted, skipped, errored int, err error) {
	for i := range chunks {
		if params.Cancelled != nil && params.Cancelled() {
			return inserted, skipped, errored, ErrCancelled
		}
		chunk := &chunks[i]
		skipped += chunk.skipped
		errored += countRejectedRows(chunk.rejects)
		if len(chunk.records) > 0 {
			if ierr := e.tables.InsertChunk(ctx, table, importID, chunk.records); ierr != nil {
				return inserted, skipped, errored, ierr
			}
			inserted += len(chunk.records)
		}
		percent := 66 + (i+1)*34/len(chunks)
		reportProgress(params.Progress, percent, "inserting")
	}
	return inserted, skipped, errored, nil
}

// countRejectedRows counts distinct source rows in a rejection list; one row
// can be rejected for several columns but errors only once.
func countRejectedRows(rejects []Rejection) int {
	rows := make(map[int]struct{}, len(rejects))
	for _, r := range rejects {
		rows[r.SourceRowNumber] = struct{}{}
	}
	return len(rows)
}

// saveRejections persists phase-0 rejections as mapping_errors rows.
func (e *Executor) saveRejections(ctx context.Context, importID uuid.UUID, chunks []mappedChunk) {
	var errs []*ingest.MappingError
	for i := range chunks {
		for _, r := range chunks[i].rejects {
			errs = append(errs, ingest.NewMappingError(importID, r.SourceRowNumber, r.Column, r.Reason, r.Value))
		}
	}
	if len(errs) == 0 {
		return
	}
	if err := e.mappingErrors.SaveBatch(ctx, errs); err != nil {
		e.logger.Error("failed to persist mapping errors", zap.Error(err))
	}
}

func reportProgress(progress func(int, string), percent int, message string) {
	if progress != nil {
		progress(percent, message)
	}
}
