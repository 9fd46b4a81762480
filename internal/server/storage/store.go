package storage

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"time"
	"unicode"
)

// ErrNotFound is returned when no object exists under a key.
var ErrNotFound = errors.New("object not found")

// IDLength is the length of the hex file id every object key starts with.
const IDLength = 32

// maxFilenameLen bounds the sanitized filename so that id + "-" + name stays
// well under common filesystem and object-key limits.
const maxFilenameLen = 200

// Store defines the interface for content storage backends.
// Objects are addressed by keys built with ObjectKey.
type Store interface {
	// Write streams r into the object under key and returns the number of
	// bytes stored. The object only becomes visible once fully written.
	Write(ctx context.Context, key string, r io.Reader) (int64, error)
	// Open streams an object back. Callers must close the reader.
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	// Remove deletes an object, returning ErrNotFound if it was absent.
	Remove(ctx context.Context, key string) error
	// Objects lists every object whose key has the ObjectKey shape,
	// including unfinished temporary objects. Anything else sharing the
	// directory or bucket is ignored.
	Objects(ctx context.Context) ([]Object, error)
	// EnsureReady creates the backing directory or bucket if needed.
	EnsureReady(ctx context.Context) error
}

// Object describes one stored object.
type Object struct {
	Key     string
	ModTime time.Time
}

// ObjectKey derives the content key for a file from its id and stored filename.
func ObjectKey(id, storedFilename string) string {
	return id + "-" + SanitizeFilename(storedFilename)
}

// IsObjectKey reports whether key was built by ObjectKey, or is the temp
// object of such a key: IDLength lowercase hex characters, "-", then a
// non-empty name.
func IsObjectKey(key string) bool {
	if len(key) < IDLength+2 || key[IDLength] != '-' {
		return false
	}
	for i := 0; i < IDLength; i++ {
		c := key[i]
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f') {
			return false
		}
	}
	return true
}

// SanitizeFilename strips directory components, dot segments and control
// characters, and limits length while keeping the extension.
func SanitizeFilename(name string) string {
	// Normalize Windows-style backslashes to forward slashes before
	// calling filepath.Base, which is platform-specific.
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(name)

	name = strings.Map(func(r rune) rune {
		if r == 0 || unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)
	name = strings.TrimSpace(name)

	if name == "" || name == "." || name == ".." || name == "/" {
		return "file"
	}

	if len(name) > maxFilenameLen {
		ext := filepath.Ext(name)
		if len(ext) > 16 {
			ext = ""
		}
		name = truncateUTF8(name[:len(name)-len(ext)], maxFilenameLen-len(ext)) + ext
	}

	return name
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func utf8RuneStart(b byte) bool {
	return b&0xC0 != 0x80
}

type readResult struct {
	n   int
	err error
}

// ctxReader aborts a copy once its context is done, including while a Read
// on the underlying reader is blocked. Reads run in a goroutine against a
// private buffer; a read abandoned on cancellation finishes into that buffer
// and is dropped.
type ctxReader struct {
	ctx     context.Context
	r       io.Reader
	buf     []byte
	results chan readResult
}

func (cr *ctxReader) Read(p []byte) (int, error) {
	if err := cr.ctx.Err(); err != nil {
		return 0, err
	}
	if cr.ctx.Done() == nil {
		return cr.r.Read(p)
	}

	if cap(cr.buf) < len(p) {
		cr.buf = make([]byte, len(p))
	}
	buf := cr.buf[:len(p)]
	go func() {
		n, err := cr.r.Read(buf)
		cr.results <- readResult{n: n, err: err}
	}()

	select {
	case res := <-cr.results:
		copy(p, buf[:res.n])
		return res.n, res.err
	case <-cr.ctx.Done():
		return 0, cr.ctx.Err()
	}
}

// ContextReader wraps r so that reads fail once ctx is cancelled or its
// deadline passes, even if r itself never returns.
func ContextReader(ctx context.Context, r io.Reader) io.Reader {
	if cr, ok := r.(*ctxReader); ok && cr.ctx == ctx {
		return cr
	}
	return &ctxReader{ctx: ctx, r: r, results: make(chan readResult, 1)}
}
