package service

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/sync/singleflight"

	"tempshare/internal/server/config"
	"tempshare/internal/server/metadata"
	"tempshare/internal/server/storage"
)

// DefaultExpiryWindow is how long a non-permanent file is kept.
const DefaultExpiryWindow = time.Hour

// Upload is one file to be stored by Save.
type Upload struct {
	Content      io.Reader
	OriginalName string
	MimeType     string
	Permanent    bool
}

// Stats holds aggregate storage statistics.
type Stats struct {
	TotalFiles     int   `json:"total_files"`
	PermanentFiles int   `json:"permanent_files"`
	StorageUsed    int64 `json:"storage_used_bytes"`
}

// FileService owns the file lifecycle: it keeps the metadata collection and
// the content store consistent under concurrent saves, deletes and sweeps.
//
// Every metadata mutation is a load -> modify -> save cycle over the whole
// collection, run under mu. Content bytes are streamed before mu is taken,
// so lock hold time does not depend on upload size. Reads are served from
// the last committed collection without taking mu.
type FileService struct {
	meta  metadata.Store
	store storage.Store

	expiry        time.Duration
	uploadTimeout time.Duration
	maxFileSize   int64
	now           func() time.Time

	mu        sync.Mutex
	committed atomic.Pointer[[]metadata.FileRecord]
	sweeps    singleflight.Group

	// inflight holds content keys being written and not yet committed.
	inflight sync.Map

	// orphanGrace protects recently written objects from Reconcile; they
	// may belong to a save in another process that has not committed yet.
	orphanGrace time.Duration
}

// NewFileService creates a new file service.
func NewFileService(meta metadata.Store, store storage.Store, cfg *config.Config) *FileService {
	s := &FileService{
		meta:   meta,
		store:  store,
		expiry: DefaultExpiryWindow,
		now:    time.Now,
	}
	if cfg != nil {
		if cfg.ExpiryWindow > 0 {
			s.expiry = cfg.ExpiryWindow
		}
		s.uploadTimeout = cfg.UploadTimeout
		s.maxFileSize = cfg.MaxFileSize
	}
	s.orphanGrace = time.Hour
	if s.uploadTimeout > 0 {
		s.orphanGrace = s.uploadTimeout + time.Minute
	}
	return s
}

// ExpiryWindow returns the retention window for non-permanent files.
func (s *FileService) ExpiryWindow() time.Duration {
	return s.expiry
}

// UploadTimeout returns the maximum duration of one content write, or zero
// when uploads are not time limited.
func (s *FileService) UploadTimeout() time.Duration {
	return s.uploadTimeout
}

// Save streams u.Content into the content store and, once the write has
// completed, appends a record for it. If the stream fails, exceeds the size
// limit or outlives the upload timeout, Save returns an *UploadError and no
// record is created.
func (s *FileService) Save(ctx context.Context, u Upload) (*metadata.FileRecord, error) {
	if u.Content == nil {
		uploadFailuresTotal.WithLabelValues("no_file").Inc()
		return nil, &UploadError{Op: "save", Err: ErrNoFile}
	}

	id := NewID()
	storedName := storage.SanitizeFilename(u.OriginalName)
	key := storage.ObjectKey(id, storedName)
	mimeType := u.MimeType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	s.inflight.Store(key, struct{}{})
	defer s.inflight.Delete(key)

	writeCtx := ctx
	if s.uploadTimeout > 0 {
		var cancel context.CancelFunc
		writeCtx, cancel = context.WithTimeout(ctx, s.uploadTimeout)
		defer cancel()
	}

	hasher, _ := blake2b.New256(nil)
	var src io.Reader = io.TeeReader(u.Content, hasher)
	if s.maxFileSize > 0 {
		src = &sizeLimitReader{r: src, remaining: s.maxFileSize}
	}
	// A client that stops sending must not hold the write past the deadline.
	src = storage.ContextReader(writeCtx, src)

	size, err := s.store.Write(writeCtx, key, src)
	if err != nil {
		s.discard(ctx, key)
		reason, cause := classifyWriteError(writeCtx, err)
		uploadFailuresTotal.WithLabelValues(reason).Inc()
		slog.Warn("upload aborted", "id", id, "filename", storedName, "reason", reason, "error", err)
		return nil, &UploadError{Op: "write", Err: cause}
	}

	rec := metadata.FileRecord{
		ID:             id,
		StoredFilename: storedName,
		OriginalName:   u.OriginalName,
		SizeBytes:      size,
		MimeType:       mimeType,
		UploadedAt:     s.now().UnixMilli(),
		Permanent:      u.Permanent,
		ShareLink:      metadata.ShareLinkFor(id),
	}

	err = s.mutate(ctx, func(records []metadata.FileRecord) ([]metadata.FileRecord, bool, error) {
		return append(records, rec), true, nil
	})
	if err != nil {
		s.discard(ctx, key)
		uploadFailuresTotal.WithLabelValues("metadata").Inc()
		return nil, err
	}

	uploadsTotal.Inc()
	slog.Info("file stored",
		"id", id,
		"filename", storedName,
		"size", size,
		"mime_type", mimeType,
		"permanent", u.Permanent,
		"blake2b", hex.EncodeToString(hasher.Sum(nil)),
	)

	return &rec, nil
}

// Get returns the record for id from the last committed collection. On a
// miss the store is read again, since another process sharing it may have
// added the record since.
func (s *FileService) Get(ctx context.Context, id string) (*metadata.FileRecord, error) {
	records, err := s.current(ctx)
	if err != nil {
		return nil, err
	}
	i := metadata.Find(records, id)
	if i < 0 {
		records, err = s.meta.LoadAll(ctx)
		if err != nil {
			return nil, &StoreError{Op: "load", Err: err}
		}
		if i = metadata.Find(records, id); i < 0 {
			return nil, ErrNotFound
		}
	}
	rec := records[i]
	return &rec, nil
}

// List sweeps expired files and returns every remaining record in upload
// order. Concurrent callers share a single sweep.
func (s *FileService) List(ctx context.Context) ([]metadata.FileRecord, error) {
	_, err, _ := s.sweeps.Do("sweep", func() (any, error) {
		return s.SweepExpired(context.WithoutCancel(ctx))
	})
	if err != nil {
		return nil, err
	}

	records, err := s.current(ctx)
	if err != nil {
		return nil, err
	}
	return slices.Clone(records), nil
}

// FetchContent returns the record for id and a stream of its content. The
// caller must close the stream. A record whose content is missing is logged
// and reported as ErrContentMissing, which also matches ErrNotFound.
func (s *FileService) FetchContent(ctx context.Context, id string) (*metadata.FileRecord, io.ReadCloser, error) {
	rec, err := s.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	rc, err := s.store.Open(ctx, storage.ObjectKey(rec.ID, rec.StoredFilename))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			contentErrorsTotal.WithLabelValues("missing").Inc()
			slog.Warn("content inconsistency: record has no content",
				"id", rec.ID,
				"filename", rec.StoredFilename,
			)
			return nil, nil, ErrContentMissing
		}
		return nil, nil, fmt.Errorf("failed to open content for %s: %w", rec.ID, err)
	}

	return rec, rc, nil
}

// SetPermanent updates the permanent flag of a file.
func (s *FileService) SetPermanent(ctx context.Context, id string, permanent bool) (*metadata.FileRecord, error) {
	var updated metadata.FileRecord
	err := s.mutate(ctx, func(records []metadata.FileRecord) ([]metadata.FileRecord, bool, error) {
		i := metadata.Find(records, id)
		if i < 0 {
			return nil, false, ErrNotFound
		}
		records[i].Permanent = permanent
		updated = records[i]
		return records, true, nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("file permanence updated", "id", id, "permanent", permanent)
	return &updated, nil
}

// Delete removes a file's record and its content. It reports whether a
// record existed; deleting an unknown id is not an error.
func (s *FileService) Delete(ctx context.Context, id string) (bool, error) {
	var removed *metadata.FileRecord
	err := s.mutate(ctx, func(records []metadata.FileRecord) ([]metadata.FileRecord, bool, error) {
		i := metadata.Find(records, id)
		if i < 0 {
			return records, false, nil
		}
		rec := records[i]
		removed = &rec
		return slices.Delete(records, i, i+1), true, nil
	})
	if err != nil {
		return false, err
	}
	if removed == nil {
		return false, nil
	}

	s.removeContent(context.WithoutCancel(ctx), *removed)
	deletesTotal.Inc()
	slog.Info("file deleted", "id", id, "filename", removed.StoredFilename)
	return true, nil
}

// SweepExpired removes every non-permanent file older than the expiry
// window and returns how many were removed. A file exactly at the boundary
// is kept. Content that cannot be removed is logged and left behind; its
// record is dropped regardless.
func (s *FileService) SweepExpired(ctx context.Context) (int, error) {
	start := time.Now()
	defer func() { sweepDuration.Observe(time.Since(start).Seconds()) }()

	var expired []metadata.FileRecord
	err := s.mutate(ctx, func(records []metadata.FileRecord) ([]metadata.FileRecord, bool, error) {
		now := s.now()
		kept := make([]metadata.FileRecord, 0, len(records))
		for _, rec := range records {
			if rec.Permanent || rec.Age(now) <= s.expiry {
				kept = append(kept, rec)
			} else {
				expired = append(expired, rec)
			}
		}
		if len(expired) == 0 {
			return records, false, nil
		}
		return kept, true, nil
	})
	if err != nil {
		return 0, err
	}

	cleanupCtx := context.WithoutCancel(ctx)
	for _, rec := range expired {
		s.removeContent(cleanupCtx, rec)
		slog.Info("expired file removed",
			"id", rec.ID,
			"filename", rec.StoredFilename,
			"uploaded_at", rec.UploadedTime(),
		)
	}
	sweptTotal.Add(float64(len(expired)))

	return len(expired), nil
}

// Stats returns aggregate statistics over the committed collection.
func (s *FileService) Stats(ctx context.Context) (*Stats, error) {
	records, err := s.current(ctx)
	if err != nil {
		return nil, err
	}

	stats := &Stats{TotalFiles: len(records)}
	for _, rec := range records {
		if rec.Permanent {
			stats.PermanentFiles++
		}
		stats.StorageUsed += rec.SizeBytes
	}
	return stats, nil
}

// mutate runs one serialized read-modify-write cycle over the metadata
// collection. fn receives a private copy of the freshly loaded collection
// that it may modify in place; it returns the next collection and whether
// it must be saved.
func (s *FileService) mutate(ctx context.Context, fn func([]metadata.FileRecord) ([]metadata.FileRecord, bool, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	unlock, err := s.lockStore(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	records, err := s.meta.LoadAll(ctx)
	if err != nil {
		return &StoreError{Op: "load", Err: err}
	}

	next, changed, err := fn(slices.Clone(records))
	if err != nil {
		return err
	}

	if changed {
		if err := s.meta.SaveAll(ctx, next); err != nil {
			return &StoreError{Op: "save", Err: err}
		}
	}

	s.publish(next)
	return nil
}

// lockStore takes the metadata store's cross-process lock, if it has one.
// Callers hold mu.
func (s *FileService) lockStore(ctx context.Context) (func(), error) {
	locker, ok := s.meta.(metadata.Locker)
	if !ok {
		return func() {}, nil
	}
	unlock, err := locker.Lock(ctx)
	if err != nil {
		return nil, &StoreError{Op: "lock", Err: err}
	}
	return unlock, nil
}

// publish makes records the collection seen by readers. Callers hold mu.
func (s *FileService) publish(records []metadata.FileRecord) {
	s.committed.Store(&records)
	storedFiles.Set(float64(len(records)))
}

// current returns the last committed collection, loading it on first use.
// The result is shared and must not be modified.
func (s *FileService) current(ctx context.Context) ([]metadata.FileRecord, error) {
	if p := s.committed.Load(); p != nil {
		return *p, nil
	}

	records, err := s.meta.LoadAll(ctx)
	if err != nil {
		return nil, &StoreError{Op: "load", Err: err}
	}
	// A mutation that committed meanwhile wins over this load.
	s.committed.CompareAndSwap(nil, &records)
	return *s.committed.Load(), nil
}

// removeContent deletes a record's content object. A missing object is
// fine; other failures leave an orphan for Reconcile and are logged.
func (s *FileService) removeContent(ctx context.Context, rec metadata.FileRecord) {
	key := storage.ObjectKey(rec.ID, rec.StoredFilename)
	err := s.store.Remove(ctx, key)
	switch {
	case err == nil:
	case errors.Is(err, storage.ErrNotFound):
		slog.Debug("content already gone", "id", rec.ID, "key", key)
	default:
		contentErrorsTotal.WithLabelValues("remove_failed").Inc()
		slog.Error("failed to delete file content", "id", rec.ID, "key", key, "error", err)
	}
}

// discard best-effort removes content left by a failed save.
func (s *FileService) discard(ctx context.Context, key string) {
	err := s.store.Remove(context.WithoutCancel(ctx), key)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		slog.Error("failed to discard partial upload", "key", key, "error", err)
	}
}

// classifyWriteError maps a content write failure to a metric reason and
// the error reported to the caller.
func classifyWriteError(ctx context.Context, err error) (string, error) {
	switch {
	case errors.Is(err, ErrFileTooLarge):
		return "too_large", ErrFileTooLarge
	case errors.Is(ctx.Err(), context.DeadlineExceeded), errors.Is(err, os.ErrDeadlineExceeded):
		return "timeout", fmt.Errorf("%w: %w", ErrUploadTimeout, err)
	case errors.Is(ctx.Err(), context.Canceled):
		return "canceled", err
	default:
		return "stream", err
	}
}

// sizeLimitReader fails with ErrFileTooLarge once more than remaining bytes
// have been read.
type sizeLimitReader struct {
	r         io.Reader
	remaining int64
}

func (l *sizeLimitReader) Read(p []byte) (int, error) {
	n, err := l.r.Read(p)
	l.remaining -= int64(n)
	if l.remaining < 0 {
		return 0, ErrFileTooLarge
	}
	return n, err
}
