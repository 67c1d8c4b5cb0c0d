package ingestapp

import (
	"context"
	"fmt"
	"sync"

	"github.com/mapflow/backend/internal/domain/ingest"
	"github.com/mapflow/backend/internal/domain/shared"
	"github.com/mapflow/backend/internal/infrastructure/tabular"
)

// CheckFileDuplicate enforces file-level deduplication: a prior successful
// import of the same fingerprint into the same table blocks the new import
// unless retries are allowed or an admin forces it. A forced import is still
// rejected while the prior attempt is mid-flight.
func CheckFileDuplicate(ctx context.Context, histories ingest.ImportHistoryRepository,
	table, fingerprint string, check ingest.DuplicateCheck) error {
	if !check.Enabled || !check.CheckFileLevel {
		return nil
	}
	priors, err := histories.FindByFingerprint(ctx, table, fingerprint)
	if err != nil {
		return err
	}
	for _, prior := range priors {
		// An in-flight attempt blocks even forced imports until it reaches
		// a terminal state.
		if !prior.Status.IsTerminal() {
			return shared.ErrImportRunning.WithMessage(fmt.Sprintf(
				"an import of this file into %q is still %s", table, prior.Status))
		}
	}
	if check.ForceImport || check.AllowFileLevelRetry {
		return nil
	}
	for _, prior := range priors {
		if prior.Status == ingest.ImportStatusCompleted {
			return shared.ErrDuplicateFile.WithMessage(fmt.Sprintf(
				"this file was already imported into %q on %s",
				table, prior.CreatedAt.Format("2006-01-02 15:04:05")))
		}
	}
	return nil
}

// RowDeduper filters mapped records against the uniqueness-key set: keys
// already in the table (preloaded) plus keys seen earlier in this import.
// Safe for concurrent use by the phase-1 workers.
type RowDeduper struct {
	columns  []string
	existing map[string]struct{}

	mu   sync.Mutex
	seen map[string]struct{}
}

// NewRowDeduper builds a deduper over the uniqueness columns. existing may
// be nil when the target table is new.
func NewRowDeduper(columns []string, existing map[string]struct{}) *RowDeduper {
	if existing == nil {
		existing = make(map[string]struct{})
	}
	return &RowDeduper{
		columns:  columns,
		existing: existing,
		seen:     make(map[string]struct{}),
	}
}

// Filter returns the unique records of a chunk and the count of skipped
// duplicates. Records with a NULL in any uniqueness column are never
// considered duplicates.
func (d *RowDeduper) Filter(records []Record) ([]Record, int) {
	if len(d.columns) == 0 {
		return records, 0
	}
	unique := make([]Record, 0, len(records))
	skipped := 0
	for _, rec := range records {
		key, ok := d.key(rec)
		if !ok {
			unique = append(unique, rec)
			continue
		}
		if _, dup := d.existing[key]; dup {
			skipped++
			continue
		}
		d.mu.Lock()
		_, dup := d.seen[key]
		if !dup {
			d.seen[key] = struct{}{}
		}
		d.mu.Unlock()
		if dup {
			skipped++
			continue
		}
		unique = append(unique, rec)
	}
	return unique, skipped
}

// key builds the normalized uniqueness key for a record. ok is false when
// any uniqueness column is NULL.
func (d *RowDeduper) key(rec Record) (string, bool) {
	values := make(map[string]string, len(d.columns))
	for _, col := range d.columns {
		v, present := rec.Values[col]
		if !present || v == nil {
			return "", false
		}
		values[col] = fmt.Sprintf("%v", v)
	}
	return tabular.RowKey(values, d.columns), true
}
