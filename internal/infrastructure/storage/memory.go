package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	ingestapp "github.com/mapflow/backend/internal/application/ingest"
)

// Ensure MemoryObjectStorage implements ObjectStorage
var _ ingestapp.ObjectStorage = (*MemoryObjectStorage)(nil)

// MemoryObjectStorage keeps objects in process memory. It backs local
// development and tests when no S3-compatible backend is configured.
// Multipart parts cannot be uploaded against its presigned URLs; the flow
// exists so session bookkeeping can still be exercised.
type MemoryObjectStorage struct {
	mu      sync.RWMutex
	objects map[string][]byte
	uploads map[string]string // upload ID -> key
	nextID  int

	// BaseURL prefixes the fake presigned URLs.
	BaseURL string
}

// NewMemoryObjectStorage creates an empty in-memory store.
func NewMemoryObjectStorage() *MemoryObjectStorage {
	return &MemoryObjectStorage{
		objects: make(map[string][]byte),
		uploads: make(map[string]string),
		BaseURL: "https://storage.invalid",
	}
}

// Get returns a stored object's payload.
func (m *MemoryObjectStorage) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("object %s not found", key)
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// Put stores an object.
func (m *MemoryObjectStorage) Put(_ context.Context, key string, data []byte, _ string) error {
	if key == "" {
		return errors.New("storage key is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := make([]byte, len(data))
	copy(stored, data)
	m.objects[key] = stored
	return nil
}

// Delete removes an object. Deleting a missing key is not an error.
func (m *MemoryObjectStorage) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

// CreateMultipartUpload registers an upload and returns its ID.
func (m *MemoryObjectStorage) CreateMultipartUpload(_ context.Context, key, _ string) (string, error) {
	if key == "" {
		return "", errors.New("storage key is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	uploadID := fmt.Sprintf("upload-%d", m.nextID)
	m.uploads[uploadID] = key
	return uploadID, nil
}

// PresignPart returns a fake URL carrying the key and part number.
func (m *MemoryObjectStorage) PresignPart(_ context.Context, key, uploadID string, partNumber int) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.uploads[uploadID]; !ok {
		return "", fmt.Errorf("unknown upload %s", uploadID)
	}
	return fmt.Sprintf("%s/%s?uploadId=%s&partNumber=%d",
		strings.TrimSuffix(m.BaseURL, "/"), key, uploadID, partNumber), nil
}

// CompleteMultipartUpload finalizes the upload with an empty object, since
// parts never actually arrive in memory mode.
func (m *MemoryObjectStorage) CompleteMultipartUpload(_ context.Context, key, uploadID string, _ map[int]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.uploads[uploadID]; !ok {
		return fmt.Errorf("unknown upload %s", uploadID)
	}
	delete(m.uploads, uploadID)
	if _, ok := m.objects[key]; !ok {
		m.objects[key] = []byte{}
	}
	return nil
}

// AbortMultipartUpload abandons the upload.
func (m *MemoryObjectStorage) AbortMultipartUpload(_ context.Context, _, uploadID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.uploads, uploadID)
	return nil
}
