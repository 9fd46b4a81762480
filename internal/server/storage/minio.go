package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioStore stores uploaded files as objects in an S3-compatible bucket.
type MinioStore struct {
	client *minio.Client
	bucket string
}

// MinioOptions configures a MinioStore.
type MinioOptions struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// NewMinioStore creates a new MinIO/S3 storage backend.
func NewMinioStore(opts MinioOptions) (*MinioStore, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}
	return &MinioStore{client: client, bucket: opts.Bucket}, nil
}

// EnsureReady creates the bucket if it doesn't exist.
func (ms *MinioStore) EnsureReady(ctx context.Context) error {
	exists, err := ms.client.BucketExists(ctx, ms.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket %s: %w", ms.bucket, err)
	}
	if exists {
		return nil
	}
	if err := ms.client.MakeBucket(ctx, ms.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", ms.bucket, err)
	}
	slog.Info("created bucket", "bucket", ms.bucket)
	return nil
}

// Write streams data as a multipart upload of unknown size. S3 only
// publishes the object once the upload completes, and minio-go aborts the
// multipart upload when the context is cancelled.
func (ms *MinioStore) Write(ctx context.Context, key string, data io.Reader) (int64, error) {
	info, err := ms.client.PutObject(ctx, ms.bucket, key, ContextReader(ctx, data), -1,
		minio.PutObjectOptions{ContentType: "application/octet-stream"})
	if err != nil {
		return 0, fmt.Errorf("failed to upload object %s: %w", key, err)
	}
	return info.Size, nil
}

// Open returns a reader for a stored object.
func (ms *MinioStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := ms.client.GetObject(ctx, ms.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, ms.translate(key, err)
	}
	// GetObject is lazy; Stat surfaces a missing key before the caller
	// starts streaming.
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		return nil, ms.translate(key, err)
	}
	return obj, nil
}

// Remove deletes an object. S3 deletes are idempotent, so the object is
// checked first to report ErrNotFound.
func (ms *MinioStore) Remove(ctx context.Context, key string) error {
	if _, err := ms.client.StatObject(ctx, ms.bucket, key, minio.StatObjectOptions{}); err != nil {
		return ms.translate(key, err)
	}
	if err := ms.client.RemoveObject(ctx, ms.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to remove object %s: %w", key, err)
	}
	return nil
}

// Objects lists the bucket's objects that carry an object key. Foreign
// objects in a shared bucket are skipped.
func (ms *MinioStore) Objects(ctx context.Context) ([]Object, error) {
	// Cancelling stops the lister goroutine when we return early.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var objects []Object
	for obj := range ms.client.ListObjects(ctx, ms.bucket, minio.ListObjectsOptions{Recursive: true}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("failed to list bucket %s: %w", ms.bucket, obj.Err)
		}
		if !IsObjectKey(obj.Key) {
			continue
		}
		objects = append(objects, Object{Key: obj.Key, ModTime: obj.LastModified})
	}
	return objects, nil
}

func (ms *MinioStore) translate(key string, err error) error {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NotFound":
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return fmt.Errorf("failed to access object %s: %w", key, err)
}
