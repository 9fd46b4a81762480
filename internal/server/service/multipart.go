package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"strings"

	"tempshare/internal/server/metadata"
)

// PermanentField is the multipart form field that marks uploads permanent.
// It applies to file parts that follow it.
const PermanentField = "permanent"

// SaveMultipart streams every file part of a multipart body into storage.
// Parts are consumed in order without buffering whole files. If any part
// fails, files already stored by this call are deleted again and the error
// is returned, so a failed request leaves no records behind. A body with no
// file parts fails with ErrNoFile.
func (s *FileService) SaveMultipart(ctx context.Context, mr *multipart.Reader) ([]metadata.FileRecord, error) {
	var (
		permanent bool
		saved     []metadata.FileRecord
	)

	fail := func(err error) ([]metadata.FileRecord, error) {
		for _, rec := range saved {
			if _, delErr := s.Delete(context.WithoutCancel(ctx), rec.ID); delErr != nil {
				slog.Error("failed to roll back upload", "id", rec.ID, "error", delErr)
			}
		}
		return nil, err
	}

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			uploadFailuresTotal.WithLabelValues("stream").Inc()
			return fail(&UploadError{Op: "read multipart", Err: err})
		}

		if part.FileName() == "" {
			if part.FormName() == PermanentField {
				value, err := io.ReadAll(io.LimitReader(part, 16))
				if err != nil {
					part.Close()
					return fail(&UploadError{Op: "read field", Err: err})
				}
				permanent = strings.TrimSpace(string(value)) == "true"
			}
			part.Close()
			continue
		}

		rec, err := s.Save(ctx, Upload{
			Content:      part,
			OriginalName: part.FileName(),
			MimeType:     part.Header.Get("Content-Type"),
			Permanent:    permanent,
		})
		part.Close()
		if err != nil {
			return fail(err)
		}
		saved = append(saved, *rec)
	}

	if len(saved) == 0 {
		uploadFailuresTotal.WithLabelValues("no_file").Inc()
		return nil, &UploadError{Op: "save", Err: ErrNoFile}
	}
	return saved, nil
}
