package dto

import (
	"github.com/mapflow/backend/internal/domain/ingest"
)

// MapStorageRequest imports a previously uploaded object synchronously.
type MapStorageRequest struct {
	StorageKey string               `json:"storage_key" binding:"required"`
	FileName   string               `json:"file_name"`
	Mapping    ingest.MappingConfig `json:"mapping" binding:"required"`
}

// AsyncImportResponse acknowledges a queued import job.
type AsyncImportResponse struct {
	TaskID string `json:"task_id"`
	Status string `json:"status"`
}

// TaskResponse is the polling view of an async import job.
type TaskResponse struct {
	TaskID    string `json:"task_id"`
	Status    string `json:"status"`
	Progress  int    `json:"progress"`
	Message   string `json:"message,omitempty"`
	Result    string `json:"result,omitempty"`
	ImportID  string `json:"import_id,omitempty"`
	Cancelled bool   `json:"cancelled,omitempty"`
}

// TaskResponseFromJob converts a job record to its API shape.
func TaskResponseFromJob(job *ingest.ImportJob) TaskResponse {
	resp := TaskResponse{
		TaskID:    job.ID.String(),
		Status:    string(job.Status),
		Progress:  job.Progress,
		Message:   job.Message,
		Result:    job.Result,
		Cancelled: job.Cancelled,
	}
	if job.ImportID != nil {
		resp.ImportID = job.ImportID.String()
	}
	return resp
}

// ExecuteRecommendationRequest runs an analyzer recommendation against an
// uploaded file. The file travels in the multipart part named "file"; this
// struct is the JSON part named "request".
type ExecuteRecommendationRequest struct {
	Recommendation ingest.Recommendation `json:"recommendation" binding:"required"`
	DuplicateCheck ingest.DuplicateCheck `json:"duplicate_check"`
}

// AnalyzeOptions is the JSON part of an analyze-file request.
type AnalyzeOptions struct {
	Mode           string `json:"mode"`
	ConflictPolicy string `json:"conflict_policy"`
	ThreadID       string `json:"thread_id"`
	Message        string `json:"message"`
}

// StartUploadRequest opens a multipart upload session.
type StartUploadRequest struct {
	FileName    string `json:"file_name" binding:"required,tabularfile"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size" binding:"required"`
}

// CompleteUploadRequest finalizes a multipart upload with part ETags.
type CompleteUploadRequest struct {
	UploadID string         `json:"upload_id" binding:"required"`
	Parts    map[int]string `json:"parts" binding:"required"`
}

// AbortUploadRequest cancels a multipart upload session.
type AbortUploadRequest struct {
	UploadID string `json:"upload_id" binding:"required"`
}

// QueryRequest asks a natural-language question of the imported data.
type QueryRequest struct {
	Question string `json:"question" binding:"required"`
}

// GenerateSQLRequest asks for validated SQL without executing it.
type GenerateSQLRequest struct {
	Question string `json:"question" binding:"required"`
}

// ExportQueryRequest exports a query result as a file.
type ExportQueryRequest struct {
	SQL    string `json:"sql" binding:"required"`
	Format string `json:"format"`
}

// HistoryDetailResponse is one import with its per-row mapping errors.
type HistoryDetailResponse struct {
	Import        *ingest.ImportHistory  `json:"import"`
	MappingErrors []*ingest.MappingError `json:"mapping_errors"`
}
