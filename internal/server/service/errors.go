package service

import (
	"errors"
	"fmt"
)

// Sentinel errors for the service layer.
var (
	ErrNotFound = errors.New("file not found")
	// ErrContentMissing means a record exists but its content object does
	// not. It matches ErrNotFound under errors.Is.
	ErrContentMissing = fmt.Errorf("%w: content object missing", ErrNotFound)

	ErrNoFile        = errors.New("no file provided")
	ErrUploadTimeout = errors.New("upload exceeded maximum duration")
	ErrFileTooLarge  = errors.New("file exceeds maximum allowed size")
)

// UploadError reports a failed save. No record is ever persisted for an
// upload that returns one.
type UploadError struct {
	Op  string
	Err error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload failed during %s: %v", e.Op, e.Err)
}

func (e *UploadError) Unwrap() error {
	return e.Err
}

// StoreError reports a failure to load or save the metadata collection.
// It fails the operation in flight only; later operations retry on their own.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("metadata %s failed: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}
