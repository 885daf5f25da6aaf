// Package archive mirrors a finalized job's output buffer to durable
// storage. It is strictly best-effort (SPEC_FULL.md §4.11): the in-memory
// output buffer in internal/master remains authoritative for the master's
// lifetime, and nothing ever reads a job's output back out of an archive
// backend. Failures here are logged and otherwise invisible to the rest of
// the system.
package archive

import (
	"bytes"
	"context"
	"errors"
	"io"
)

var (
	ErrNotFound     = errors.New("archive: object not found")
	ErrNotSupported = errors.New("archive: operation not supported")
	ErrInvalidKey   = errors.New("archive: invalid key")
)

// Store is the write side of a durable object store. It is intentionally
// narrower than a general object-storage interface: the master only ever
// writes a finalized job's output once, under a key it chooses itself.
type Store interface {
	Put(ctx context.Context, key string, data io.Reader, contentType string) error
}

// Config selects and configures a Store backend. Type is one of "none",
// "memory", "filesystem", "s3" (SPEC_FULL.md §6 cluster config extension).
type Config struct {
	Type     string
	BaseDir  string // filesystem
	Bucket   string // s3
	Prefix   string // s3
	Region   string // s3
	Endpoint string // s3-compatible (e.g. MinIO)
}

// New builds a Store from cfg. An empty or "none" Type returns a no-op
// store so callers never need a nil check.
func New(cfg Config) (Store, error) {
	switch cfg.Type {
	case "", "none":
		return noopStore{}, nil
	case "memory":
		return NewMemoryStore(), nil
	case "filesystem":
		base := cfg.BaseDir
		if base == "" {
			base = "./archive"
		}
		return NewFilesystemStore(base), nil
	case "s3":
		return NewS3Store(S3Config{
			Bucket:   cfg.Bucket,
			Prefix:   cfg.Prefix,
			Region:   cfg.Region,
			Endpoint: cfg.Endpoint,
		})
	default:
		return nil, errors.New("archive: unsupported backend type: " + cfg.Type)
	}
}

type noopStore struct{}

func (noopStore) Put(ctx context.Context, key string, data io.Reader, contentType string) error {
	_, err := io.Copy(io.Discard, data)
	return err
}

// JobKey is the object key a finalized job's mirrored output is written
// under. Exported so the filesystem/s3 backends and tests agree on layout.
func JobKey(jobID string) string {
	return "jobs/" + jobID + "/output.log"
}

func validateKey(key string) error {
	if key == "" {
		return ErrInvalidKey
	}
	if bytes.Contains([]byte(key), []byte("..")) {
		return ErrInvalidKey
	}
	return nil
}
