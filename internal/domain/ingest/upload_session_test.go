package ingest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPartCount(t *testing.T) {
	tests := []struct {
		name     string
		size     int64
		minParts int
	}{
		{"tiny file still one part", 1024, 1},
		{"exactly 5MB", MinPartSize, 1},
		{"5MB plus one byte", MinPartSize + 1, 2},
		{"100MB", 100 * 1024 * 1024, 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			partSize, parts := PartCount(tt.size)
			assert.GreaterOrEqual(t, partSize, int64(MinPartSize))
			assert.LessOrEqual(t, partSize, int64(MaxPartSize))
			assert.Equal(t, tt.minParts, parts)
		})
	}
}

func TestPartCount_LargeFileGrowsParts(t *testing.T) {
	// 10 GB at 5 MB parts would be 2048 parts; auto-sizing doubles the part
	// size to keep the count near 1000.
	partSize, parts := PartCount(10 * 1024 * 1024 * 1024)
	assert.Greater(t, partSize, int64(MinPartSize))
	assert.LessOrEqual(t, parts, 1100)
}

func TestUploadSession_Lifecycle(t *testing.T) {
	s, err := NewUploadSession("up-1", "uploads/data.csv", "data.csv", MinPartSize+1)
	require.NoError(t, err)
	require.Equal(t, 2, s.ExpectedParts)

	require.NoError(t, s.RecordPart(1, "etag-1"))
	assert.False(t, s.HasAllParts())
	assert.Error(t, s.Complete())

	require.NoError(t, s.RecordPart(2, "etag-2"))
	assert.True(t, s.HasAllParts())
	require.NoError(t, s.Complete())
	assert.Equal(t, UploadStatusCompleted, s.Status)

	// Terminal: no further mutation
	assert.Error(t, s.RecordPart(1, "etag-x"))
	assert.Error(t, s.Abort())
}

func TestUploadSession_PartOutOfRange(t *testing.T) {
	s, err := NewUploadSession("up-1", "uploads/data.csv", "data.csv", 1024)
	require.NoError(t, err)
	assert.Error(t, s.RecordPart(0, "etag"))
	assert.Error(t, s.RecordPart(2, "etag"))
}

func TestUploadSession_Abandoned(t *testing.T) {
	s, err := NewUploadSession("up-1", "uploads/data.csv", "data.csv", 1024)
	require.NoError(t, err)
	assert.False(t, s.Abandoned(time.Hour))

	s.UpdatedAt = time.Now().Add(-2 * time.Hour)
	assert.True(t, s.Abandoned(time.Hour))

	require.NoError(t, s.Abort())
	s.UpdatedAt = time.Now().Add(-2 * time.Hour)
	assert.False(t, s.Abandoned(time.Hour))
}

func TestImportJob_Lifecycle(t *testing.T) {
	j := NewImportJob(`{"storage_key":"uploads/data.csv"}`)
	assert.Equal(t, JobStatusPending, j.Status)

	require.NoError(t, j.Claim())
	assert.Equal(t, JobStatusProcessing, j.Status)
	assert.Error(t, j.Claim())

	j.SetProgress(33, "mapping complete")
	assert.Equal(t, 33, j.Progress)

	j.SetProgress(150, "clamped")
	assert.Equal(t, 100, j.Progress)

	require.NoError(t, j.Complete(`{"rows_inserted":2}`))
	assert.Equal(t, JobStatusCompleted, j.Status)
	assert.Error(t, j.Fail("too late"))
	assert.Error(t, j.Cancel())
}

func TestImportJob_Cancel(t *testing.T) {
	j := NewImportJob(`{}`)
	require.NoError(t, j.Claim())
	require.NoError(t, j.Cancel())
	assert.True(t, j.Cancelled)
	// Cancellation only raises the flag; the worker fails the job between
	// chunks.
	assert.Equal(t, JobStatusProcessing, j.Status)
	require.NoError(t, j.Fail("cancelled by admin"))
	assert.Equal(t, JobStatusFailed, j.Status)
}
