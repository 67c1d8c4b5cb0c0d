package ingest

import (
	"fmt"
	"time"

	"github.com/mapflow/backend/internal/domain/shared"
)

// UploadStatus represents the state of a multipart upload session.
type UploadStatus string

const (
	UploadStatusActive    UploadStatus = "active"
	UploadStatusCompleted UploadStatus = "completed"
	UploadStatusAborted   UploadStatus = "aborted"
)

// Multipart sizing constraints for object-store chunked uploads.
const (
	MinPartSize = 5 * 1024 * 1024   // 5 MB
	MaxPartSize = 100 * 1024 * 1024 // 100 MB
)

// PartCount returns the auto-sized part size and expected part count for a
// declared file size. Parts grow from the minimum so the count stays
// reasonable for large files.
func PartCount(declaredSize int64) (partSize int64, parts int) {
	partSize = MinPartSize
	for declaredSize/partSize > 1000 && partSize < MaxPartSize {
		partSize *= 2
	}
	if partSize > MaxPartSize {
		partSize = MaxPartSize
	}
	parts = int((declaredSize + partSize - 1) / partSize)
	if parts == 0 {
		parts = 1
	}
	return partSize, parts
}

// UploadSession coordinates a client-side multipart upload to the object
// store. The client uploads parts directly against presigned URLs; the
// server records part ETags and finalizes the upload.
type UploadSession struct {
	shared.BaseEntity
	UploadID      string         `json:"upload_id"` // object-store multipart upload ID
	StorageKey    string         `json:"storage_key"`
	FileName      string         `json:"file_name"`
	DeclaredSize  int64          `json:"declared_size"`
	PartSize      int64          `json:"part_size"`
	ExpectedParts int            `json:"expected_parts"`
	Parts         map[int]string `json:"parts"` // part number -> ETag
	Status        UploadStatus   `json:"status"`
	CompletedAt   *time.Time     `json:"completed_at,omitempty"`
}

// NewUploadSession creates an active session for a declared file size.
func NewUploadSession(uploadID, storageKey, fileName string, declaredSize int64) (*UploadSession, error) {
	if uploadID == "" {
		return nil, shared.NewDomainError("INVALID_UPLOAD", "upload ID cannot be empty")
	}
	if declaredSize <= 0 {
		return nil, shared.NewDomainError("INVALID_UPLOAD", "declared size must be positive")
	}
	partSize, parts := PartCount(declaredSize)
	return &UploadSession{
		BaseEntity:    shared.NewBaseEntity(),
		UploadID:      uploadID,
		StorageKey:    storageKey,
		FileName:      fileName,
		DeclaredSize:  declaredSize,
		PartSize:      partSize,
		ExpectedParts: parts,
		Parts:         make(map[int]string),
		Status:        UploadStatusActive,
	}, nil
}

// RecordPart stores the ETag for an uploaded part (1-indexed).
func (s *UploadSession) RecordPart(partNumber int, etag string) error {
	if s.Status != UploadStatusActive {
		return shared.NewDomainError("INVALID_STATE",
			fmt.Sprintf("Cannot record part on %s session", s.Status))
	}
	if partNumber < 1 || partNumber > s.ExpectedParts {
		return shared.NewDomainError("INVALID_UPLOAD",
			fmt.Sprintf("part number %d out of range [1,%d]", partNumber, s.ExpectedParts))
	}
	s.Parts[partNumber] = etag
	s.UpdatedAt = time.Now()
	return nil
}

// HasAllParts reports whether every expected part has an ETag.
func (s *UploadSession) HasAllParts() bool {
	for i := 1; i <= s.ExpectedParts; i++ {
		if _, ok := s.Parts[i]; !ok {
			return false
		}
	}
	return true
}

// Complete finalizes the session.
func (s *UploadSession) Complete() error {
	if s.Status != UploadStatusActive {
		return shared.NewDomainError("INVALID_STATE",
			fmt.Sprintf("Cannot complete %s session", s.Status))
	}
	if !s.HasAllParts() {
		return shared.NewDomainError("INVALID_UPLOAD",
			fmt.Sprintf("missing parts: have %d of %d", len(s.Parts), s.ExpectedParts))
	}
	s.Status = UploadStatusCompleted
	now := time.Now()
	s.CompletedAt = &now
	s.UpdatedAt = now
	return nil
}

// Abort terminates the session.
func (s *UploadSession) Abort() error {
	if s.Status != UploadStatusActive {
		return shared.NewDomainError("INVALID_STATE",
			fmt.Sprintf("Cannot abort %s session", s.Status))
	}
	s.Status = UploadStatusAborted
	s.UpdatedAt = time.Now()
	return nil
}

// Abandoned reports whether an active session has been idle long enough to
// be swept.
func (s *UploadSession) Abandoned(maxIdle time.Duration) bool {
	return s.Status == UploadStatusActive && time.Since(s.UpdatedAt) > maxIdle
}
