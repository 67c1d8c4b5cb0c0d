package ingestapp

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mapflow/backend/internal/domain/ingest"
	"github.com/mapflow/backend/internal/domain/shared"
)

// DefaultUploadMaxIdle is how long an active multipart session may sit
// without part uploads before the sweeper aborts it.
const DefaultUploadMaxIdle = 24 * time.Hour

// StartUploadResult is returned to the client when a multipart upload
// session opens: presigned URLs, one per expected part.
type StartUploadResult struct {
	UploadID      string         `json:"upload_id"`
	StorageKey    string         `json:"storage_key"`
	PartSize      int64          `json:"part_size"`
	ExpectedParts int            `json:"expected_parts"`
	PartURLs      map[int]string `json:"part_urls"`
}

// UploadService coordinates client-side multipart uploads: the server only
// brokers presigned URLs and records ETags, the bytes go straight to the
// object store.
type UploadService struct {
	storage     ObjectStorage
	sessions    ingest.UploadSessionRepository
	maxFileSize int64
	logger      *zap.Logger
}

// NewUploadService wires the multipart upload coordinator. maxFileSize is
// in bytes; zero disables the limit.
func NewUploadService(storage ObjectStorage, sessions ingest.UploadSessionRepository,
	maxFileSize int64, logger *zap.Logger) *UploadService {
	return &UploadService{storage: storage, sessions: sessions, maxFileSize: maxFileSize, logger: logger}
}

// Start opens a multipart upload and presigns one URL per part.
func (s *UploadService) Start(ctx context.Context, fileName, contentType string, declaredSize int64) (*StartUploadResult, error) {
	if s.maxFileSize > 0 && declaredSize > s.maxFileSize {
		return nil, shared.NewDomainError("PAYLOAD_TOO_LARGE",
			fmt.Sprintf("declared size %d exceeds the %d byte limit", declaredSize, s.maxFileSize))
	}
	storageKey := fmt.Sprintf("uploads/%s/%s", uuid.New().String(), fileName)

	uploadID, err := s.storage.CreateMultipartUpload(ctx, storageKey, contentType)
	if err != nil {
		return nil, err
	}
	session, err := ingest.NewUploadSession(uploadID, storageKey, fileName, declaredSize)
	if err != nil {
		return nil, err
	}
	if err := s.sessions.Save(ctx, session); err != nil {
		return nil, err
	}

	urls := make(map[int]string, session.ExpectedParts)
	for part := 1; part <= session.ExpectedParts; part++ {
		url, err := s.storage.PresignPart(ctx, storageKey, uploadID, part)
		if err != nil {
			return nil, err
		}
		urls[part] = url
	}

	s.logger.Info("multipart upload started",
		zap.String("upload_id", uploadID),
		zap.String("file", fileName),
		zap.Int("parts", session.ExpectedParts))
	return &StartUploadResult{
		UploadID:      uploadID,
		StorageKey:    storageKey,
		PartSize:      session.PartSize,
		ExpectedParts: session.ExpectedParts,
		PartURLs:      urls,
	}, nil
}

// Complete records the uploaded part ETags and finalizes the object.
func (s *UploadService) Complete(ctx context.Context, uploadID string, parts map[int]string) (*ingest.UploadSession, error) {
	session, err := s.sessions.FindByUploadID(ctx, uploadID)
	if err != nil {
		return nil, err
	}
	for partNumber, etag := range parts {
		if err := session.RecordPart(partNumber, etag); err != nil {
			return nil, err
		}
	}
	if err := session.Complete(); err != nil {
		return nil, err
	}
	if err := s.storage.CompleteMultipartUpload(ctx, session.StorageKey, uploadID, session.Parts); err != nil {
		return nil, err
	}
	if err := s.sessions.Update(ctx, session); err != nil {
		return nil, err
	}
	s.logger.Info("multipart upload completed",
		zap.String("upload_id", uploadID),
		zap.String("key", session.StorageKey))
	return session, nil
}

// Abort cancels the session and releases the object-store upload.
func (s *UploadService) Abort(ctx context.Context, uploadID string) error {
	session, err := s.sessions.FindByUploadID(ctx, uploadID)
	if err != nil {
		return err
	}
	if err := session.Abort(); err != nil {
		return err
	}
	if err := s.storage.AbortMultipartUpload(ctx, session.StorageKey, uploadID); err != nil {
		return err
	}
	return s.sessions.Update(ctx, session)
}

// SweepAbandoned aborts sessions idle longer than maxIdle. Run it
// periodically from the scheduler.
func (s *UploadService) SweepAbandoned(ctx context.Context, maxIdle time.Duration) (int, error) {
	if maxIdle <= 0 {
		maxIdle = DefaultUploadMaxIdle
	}
	stale, err := s.sessions.FindAbandoned(ctx, maxIdle)
	if err != nil {
		return 0, err
	}
	swept := 0
	for _, session := range stale {
		if err := session.Abort(); err != nil {
			continue
		}
		if err := s.storage.AbortMultipartUpload(ctx, session.StorageKey, session.UploadID); err != nil {
			s.logger.Warn("failed to abort abandoned upload",
				zap.String("upload_id", session.UploadID), zap.Error(err))
			continue
		}
		if err := s.sessions.Update(ctx, session); err != nil {
			return swept, err
		}
		swept++
	}
	if swept > 0 {
		s.logger.Info("swept abandoned uploads", zap.Int("count", swept))
	}
	return swept, nil
}
