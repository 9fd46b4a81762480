// Package metadata holds the FileRecord model and the durable collection
// of records backing the lifecycle engine.
package metadata

import (
	"context"
	"time"
)

// FileRecord describes one stored file. The JSON shape matches the
// metadata.json files written by earlier versions of the service.
type FileRecord struct {
	ID             string `json:"id"`
	StoredFilename string `json:"filename"`
	OriginalName   string `json:"originalName"`
	SizeBytes      int64  `json:"size"`
	MimeType       string `json:"mimeType"`
	UploadedAt     int64  `json:"uploadedAt"` // epoch milliseconds
	Permanent      bool   `json:"permanent"`
	ShareLink      string `json:"shareLink"`
}

// Store is a whole-collection view of every FileRecord. Every mutation is a
// LoadAll -> modify -> SaveAll cycle, so callers must serialize writers.
type Store interface {
	// LoadAll returns all records in insertion order. A store that has never
	// been written returns an empty slice.
	LoadAll(ctx context.Context) ([]FileRecord, error)
	// SaveAll atomically replaces the persisted collection.
	SaveAll(ctx context.Context, records []FileRecord) error
}

// Locker is implemented by stores that other processes may write to. The
// returned func releases the lock; the lock must be held around every
// LoadAll -> SaveAll cycle.
type Locker interface {
	Lock(ctx context.Context) (unlock func(), err error)
}

// ShareLinkFor derives the share link path for a file id.
func ShareLinkFor(id string) string {
	return "/share/" + id
}

// UploadedTime returns UploadedAt as a time.Time.
func (r FileRecord) UploadedTime() time.Time {
	return time.UnixMilli(r.UploadedAt)
}

// Age reports how long ago the record was uploaded relative to now.
func (r FileRecord) Age(now time.Time) time.Duration {
	return time.Duration(now.UnixMilli()-r.UploadedAt) * time.Millisecond
}

// Find returns the index of the record with the given id, or -1.
func Find(records []FileRecord, id string) int {
	for i := range records {
		if records[i].ID == id {
			return i
		}
	}
	return -1
}
