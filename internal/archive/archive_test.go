package archive

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultsToNoopStore(t *testing.T) {
	s, err := New(Config{})
	require.NoError(t, err)

	err = s.Put(context.Background(), JobKey("job_1"), bytes.NewReader([]byte("hi")), "text/plain")
	assert.NoError(t, err, "noop store discards data without error")
}

func TestNewRejectsUnsupportedBackend(t *testing.T) {
	_, err := New(Config{Type: "carrier-pigeon"})
	assert.Error(t, err)
}

func TestJobKeyLayout(t *testing.T) {
	assert.Equal(t, "jobs/job_000123/output.log", JobKey("job_000123"))
}

func TestMemoryStorePutAndSnapshot(t *testing.T) {
	s := NewMemoryStore()
	err := s.Put(context.Background(), JobKey("job_1"), bytes.NewReader([]byte("output lines")), "text/plain")
	require.NoError(t, err)

	snap := s.Snapshot()
	assert.Equal(t, []byte("output lines"), snap[JobKey("job_1")])
}

func TestMemoryStoreRejectsInvalidKey(t *testing.T) {
	s := NewMemoryStore()
	err := s.Put(context.Background(), "../../etc/passwd", bytes.NewReader(nil), "text/plain")
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestFilesystemStoreWritesUnderBasePath(t *testing.T) {
	dir := t.TempDir()
	s := NewFilesystemStore(dir)

	err := s.Put(context.Background(), JobKey("job_42"), bytes.NewReader([]byte("log data")), "text/plain")
	require.NoError(t, err)

	contents, err := os.ReadFile(filepath.Join(dir, "jobs", "job_42", "output.log"))
	require.NoError(t, err)
	assert.Equal(t, "log data", string(contents))
}

func TestFilesystemStoreRejectsInvalidKey(t *testing.T) {
	s := NewFilesystemStore(t.TempDir())
	err := s.Put(context.Background(), "../escape", bytes.NewReader(nil), "text/plain")
	assert.ErrorIs(t, err, ErrInvalidKey)
}
