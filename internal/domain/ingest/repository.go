package ingest

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ImportHistoryRepository persists import lineage records.
type ImportHistoryRepository interface {
	Save(ctx context.Context, history *ImportHistory) error
	Update(ctx context.Context, history *ImportHistory) error
	FindByID(ctx context.Context, id uuid.UUID) (*ImportHistory, error)
	// FindByFingerprint returns prior imports of the same file into the
	// same table, most recent first.
	FindByFingerprint(ctx context.Context, tableName, fingerprint string) ([]*ImportHistory, error)
	FindAll(ctx context.Context, filter ImportHistoryFilter, page, pageSize int) (*ImportHistoryListResult, error)
	// Delete removes the record; the FK cascade removes the data rows it
	// produced.
	Delete(ctx context.Context, id uuid.UUID) error
}

// ImportJobRepository persists async import jobs.
type ImportJobRepository interface {
	Save(ctx context.Context, job *ImportJob) error
	Update(ctx context.Context, job *ImportJob) error
	FindByID(ctx context.Context, id uuid.UUID) (*ImportJob, error)
	// ClaimNext atomically claims the oldest pending job, or returns
	// shared.ErrNotFound when the queue is empty.
	ClaimNext(ctx context.Context) (*ImportJob, error)
	// IsCancelled re-reads only the cancellation flag; the worker polls it
	// between chunks.
	IsCancelled(ctx context.Context, id uuid.UUID) (bool, error)
	// ResetStale reverts jobs stuck in processing back to pending. Workers
	// are stateless; this runs at startup.
	ResetStale(ctx context.Context) (int64, error)
}

// UploadSessionRepository persists multipart upload sessions.
type UploadSessionRepository interface {
	Save(ctx context.Context, session *UploadSession) error
	Update(ctx context.Context, session *UploadSession) error
	FindByUploadID(ctx context.Context, uploadID string) (*UploadSession, error)
	// FindAbandoned returns active sessions idle longer than maxIdle.
	FindAbandoned(ctx context.Context, maxIdle time.Duration) ([]*UploadSession, error)
}

// MappingErrorRepository persists per-row mapping rejections.
type MappingErrorRepository interface {
	SaveBatch(ctx context.Context, errs []*MappingError) error
	FindByImport(ctx context.Context, importID uuid.UUID, limit int) ([]*MappingError, error)
}

// ThreadMessage is one turn of a persisted analyzer conversation.
type ThreadMessage struct {
	ID        uuid.UUID `json:"id"`
	ThreadID  string    `json:"thread_id"`
	Role      string    `json:"role"` // user, assistant, tool
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// QueryThreadRepository persists analyzer transcripts keyed by thread ID so
// interactive analysis can resume.
type QueryThreadRepository interface {
	AppendMessage(ctx context.Context, msg *ThreadMessage) error
	Messages(ctx context.Context, threadID string) ([]*ThreadMessage, error)
}
