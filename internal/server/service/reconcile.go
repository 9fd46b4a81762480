package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"tempshare/internal/server/storage"
)

// ReconcileResult summarizes one reconciliation pass.
type ReconcileResult struct {
	OrphansRemoved int
	MissingContent int
	Errors         int
}

// Reconcile brings the content store back in line with the metadata
// collection: content objects no record refers to are deleted, and records
// whose content is missing are logged. Only keys shaped like content objects
// are considered. Objects belonging to uploads still in flight, here or in
// another process sharing the stores, are left alone.
func (s *FileService) Reconcile(ctx context.Context) (*ReconcileResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	unlock, err := s.lockStore(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	records, err := s.meta.LoadAll(ctx)
	if err != nil {
		return nil, &StoreError{Op: "load", Err: err}
	}
	s.publish(records)

	objects, err := s.store.Objects(ctx)
	if err != nil {
		return nil, err
	}

	present := make(map[string]bool, len(objects))
	for _, obj := range objects {
		present[obj.Key] = true
	}

	referenced := make(map[string]bool, len(records))
	result := &ReconcileResult{}
	for _, rec := range records {
		key := storage.ObjectKey(rec.ID, rec.StoredFilename)
		referenced[key] = true
		if !present[key] {
			result.MissingContent++
			contentErrorsTotal.WithLabelValues("missing").Inc()
			slog.Warn("content inconsistency: record has no content", "id", rec.ID, "key", key)
		}
	}

	// Object times come from the store, not the service clock.
	now := time.Now()
	for _, obj := range objects {
		key := obj.Key
		if referenced[key] || s.isInflight(key) {
			continue
		}
		if now.Sub(obj.ModTime) < s.orphanGrace {
			slog.Debug("keeping recent unreferenced content", "key", key, "modified", obj.ModTime)
			continue
		}
		err := s.store.Remove(ctx, key)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			result.Errors++
			slog.Error("failed to remove orphaned content", "key", key, "error", err)
			continue
		}
		result.OrphansRemoved++
		slog.Info("removed orphaned content", "key", key, "temp", storage.IsTempKey(key))
	}

	slog.Info("reconciliation complete",
		"records", len(records),
		"orphans_removed", result.OrphansRemoved,
		"missing_content", result.MissingContent,
		"errors", result.Errors,
	)
	return result, nil
}

// isInflight reports whether key, or the temp object of key, belongs to a
// save that has not committed yet.
func (s *FileService) isInflight(key string) bool {
	if _, ok := s.inflight.Load(key); ok {
		return true
	}
	if i := strings.LastIndex(key, storage.TempMarker); i > 0 {
		_, ok := s.inflight.Load(key[:i])
		return ok
	}
	return false
}
