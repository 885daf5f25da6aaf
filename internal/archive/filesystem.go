package archive

import (
	"context"
	"io"
	"os"
	"path/filepath"
)

// FilesystemStore writes archived output under a base directory, mirroring
// the key layout a caller would otherwise give an object store.
type FilesystemStore struct {
	basePath string
}

func NewFilesystemStore(basePath string) *FilesystemStore {
	return &FilesystemStore{basePath: basePath}
}

func (f *FilesystemStore) Put(ctx context.Context, key string, data io.Reader, contentType string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	fullPath := filepath.Join(f.basePath, key)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return err
	}
	file, err := os.Create(fullPath)
	if err != nil {
		return err
	}
	defer file.Close()
	_, err = io.Copy(file, data)
	return err
}
