package database

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"tempshare/internal/server/metadata"
)

var fileColumns = []string{
	"id", "position", "stored_filename", "original_name", "size_bytes",
	"mime_type", "uploaded_at", "permanent", "share_link",
}

// metadataLockKey is the advisory lock key guarding the files table.
const metadataLockKey int64 = 0x74656d7073686172

// Repository stores the file record collection in Postgres. It implements
// metadata.Store: SaveAll replaces the whole table inside one transaction,
// so concurrent LoadAll calls see either the old or the new collection.
type Repository struct {
	db *DB
}

// NewRepository creates a new Repository.
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// Lock takes a session advisory lock on a dedicated pool connection, so
// every process sharing the database serializes its read-modify-write
// cycles. The connection is held until unlock.
func (r *Repository) Lock(ctx context.Context) (func(), error) {
	conn, err := r.db.Pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}

	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", metadataLockKey); err != nil {
		// A cancelled wait may still have been granted; the session must not
		// go back to the pool holding it.
		conn.Hijack().Close(context.Background())
		return nil, fmt.Errorf("failed to lock files: %w", err)
	}

	return func() {
		ctx := context.Background()
		if _, err := conn.Exec(ctx, "SELECT pg_advisory_unlock($1)", metadataLockKey); err != nil {
			// Closing the session is the only way left to drop the lock.
			slog.Error("failed to unlock files, closing connection", "error", err)
			conn.Hijack().Close(ctx)
			return
		}
		conn.Release()
	}, nil
}

// LoadAll returns every record in insertion order.
func (r *Repository) LoadAll(ctx context.Context) ([]metadata.FileRecord, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, stored_filename, original_name, size_bytes,
			   mime_type, uploaded_at, permanent, share_link
		FROM files ORDER BY position
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query files: %w", err)
	}
	defer rows.Close()

	records := []metadata.FileRecord{}
	for rows.Next() {
		var rec metadata.FileRecord
		if err := rows.Scan(
			&rec.ID,
			&rec.StoredFilename,
			&rec.OriginalName,
			&rec.SizeBytes,
			&rec.MimeType,
			&rec.UploadedAt,
			&rec.Permanent,
			&rec.ShareLink,
		); err != nil {
			return nil, fmt.Errorf("failed to scan file: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read files: %w", err)
	}
	return records, nil
}

// SaveAll atomically replaces the stored collection with records.
func (r *Repository) SaveAll(ctx context.Context, records []metadata.FileRecord) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "DELETE FROM files"); err != nil {
		return fmt.Errorf("failed to clear files: %w", err)
	}

	if len(records) > 0 {
		_, err := tx.CopyFrom(ctx, pgx.Identifier{"files"}, fileColumns, pgx.CopyFromSlice(len(records), func(i int) ([]any, error) {
			rec := records[i]
			return []any{
				rec.ID,
				int64(i),
				rec.StoredFilename,
				rec.OriginalName,
				rec.SizeBytes,
				rec.MimeType,
				rec.UploadedAt,
				rec.Permanent,
				rec.ShareLink,
			}, nil
		}))
		if err != nil {
			return fmt.Errorf("failed to copy files: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit files: %w", err)
	}
	return nil
}
