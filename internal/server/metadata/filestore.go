package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// lockRetryDelay is how often a contended metadata lock is retried.
const lockRetryDelay = 10 * time.Millisecond

// FileStore persists the record collection as a single JSON array on disk.
// Writes go to a temp file in the same directory which is fsynced and then
// renamed over the target, so a concurrent reader sees the old or the new
// collection and never a truncated one.
type FileStore struct {
	path string
}

// NewFileStore creates a JSON metadata store at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the location of the metadata file.
func (fs *FileStore) Path() string {
	return fs.path
}

// LockPath returns the sidecar file used to serialize writers across
// processes.
func (fs *FileStore) LockPath() string {
	return fs.path + ".lock"
}

// Lock takes an exclusive flock on the sidecar lock file, waiting until it
// is free or ctx is done. Each call opens its own handle, so two stores in
// the same process exclude each other as well.
func (fs *FileStore) Lock(ctx context.Context) (func(), error) {
	dir := filepath.Dir(fs.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create metadata directory %s: %w", dir, err)
	}

	lock := flock.New(fs.LockPath())
	locked, err := lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return nil, fmt.Errorf("failed to lock metadata: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("failed to lock metadata: %s is held", fs.LockPath())
	}

	return func() {
		if err := lock.Unlock(); err != nil {
			slog.Error("failed to unlock metadata", "path", fs.LockPath(), "error", err)
		}
	}, nil
}

// LoadAll reads every record. A missing file is an empty collection.
func (fs *FileStore) LoadAll(ctx context.Context) ([]FileRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(fs.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []FileRecord{}, nil
		}
		return nil, fmt.Errorf("failed to read metadata %s: %w", fs.path, err)
	}

	if len(data) == 0 {
		return []FileRecord{}, nil
	}

	var records []FileRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to decode metadata %s: %w", fs.path, err)
	}
	if records == nil {
		records = []FileRecord{}
	}
	return records, nil
}

// SaveAll atomically replaces the metadata file with records.
func (fs *FileStore) SaveAll(ctx context.Context, records []FileRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if records == nil {
		records = []FileRecord{}
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}

	dir := filepath.Dir(fs.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create metadata directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(fs.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp metadata file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write metadata: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to sync metadata: %w", err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close metadata: %w", err)
	}

	if err := os.Rename(tmpPath, fs.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace metadata %s: %w", fs.path, err)
	}

	return nil
}
