package cli

import (
	"archive/zip"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"tempshare/internal/server/config"
	"tempshare/internal/server/metadata"
	"tempshare/internal/server/service"
	"tempshare/internal/server/storage"
)

var idPattern = regexp.MustCompile(`ID:\s+([0-9a-f]+)`)

func newTestService(t *testing.T) *service.FileService {
	t.Helper()
	root := t.TempDir()
	store := storage.NewFileSystemStore(filepath.Join(root, "files"))
	if err := store.EnsureReady(context.Background()); err != nil {
		t.Fatalf("failed to prepare storage: %v", err)
	}
	meta := metadata.NewFileStore(filepath.Join(root, "metadata.json"))
	return service.NewFileService(meta, store, &config.Config{ExpiryWindow: time.Hour})
}

func run(t *testing.T, svc *service.FileService, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewRootCommand(context.Background(), svc, &out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func put(t *testing.T, svc *service.FileService, args ...string) string {
	t.Helper()
	out, err := run(t, svc, append([]string{"put"}, args...)...)
	if err != nil {
		t.Fatalf("put failed: %v", err)
	}
	m := idPattern.FindStringSubmatch(out)
	if m == nil {
		t.Fatalf("no id in output %q", out)
	}
	return m[1]
}

func TestPutCommand(t *testing.T) {
	t.Run("single file", func(t *testing.T) {
		svc := newTestService(t)
		src := writeFile(t, t.TempDir(), "notes.html", "hello")

		id := put(t, svc, src)

		rec, err := svc.Get(context.Background(), id)
		if err != nil {
			t.Fatal(err)
		}
		if rec.OriginalName != "notes.html" || rec.SizeBytes != 5 || rec.Permanent {
			t.Errorf("unexpected record %+v", rec)
		}
		if !strings.HasPrefix(rec.MimeType, "text/plain") {
			t.Errorf("expected detected text/plain, got %s", rec.MimeType)
		}
	})

	t.Run("directory becomes zip", func(t *testing.T) {
		svc := newTestService(t)
		dir := filepath.Join(t.TempDir(), "photos")
		if err := os.Mkdir(dir, 0o755); err != nil {
			t.Fatal(err)
		}
		writeFile(t, dir, "a.jpg", "aaa")
		writeFile(t, dir, "b.jpg", "bbb")

		id := put(t, svc, "--permanent", dir)

		rec, content, err := svc.FetchContent(context.Background(), id)
		if err != nil {
			t.Fatal(err)
		}
		defer content.Close()

		if rec.OriginalName != "photos.zip" || rec.MimeType != "application/zip" || !rec.Permanent {
			t.Errorf("unexpected record %+v", rec)
		}

		var buf bytes.Buffer
		buf.ReadFrom(content)
		zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
		if err != nil {
			t.Fatalf("stored content is not a zip: %v", err)
		}
		if len(zr.File) != 2 {
			t.Errorf("expected 2 entries, got %d", len(zr.File))
		}
	})

	t.Run("missing path", func(t *testing.T) {
		svc := newTestService(t)
		if _, err := run(t, svc, "put", "/does/not/exist"); err == nil {
			t.Error("expected error for missing path")
		}
	})
}

func TestListCommand(t *testing.T) {
	svc := newTestService(t)

	out, err := run(t, svc, "ls")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "No files stored.") {
		t.Errorf("unexpected output %q", out)
	}

	id := put(t, svc, "--permanent", writeFile(t, t.TempDir(), "keep.txt", "x"))

	out, err = run(t, svc, "ls")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"ID", id, "keep.txt", "never"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output %q", want, out)
		}
	}
}

func TestGetCommand(t *testing.T) {
	svc := newTestService(t)
	id := put(t, svc, writeFile(t, t.TempDir(), "data.bin", "payload"))

	t.Run("stdout", func(t *testing.T) {
		out, err := run(t, svc, "get", id, "-o", "-")
		if err != nil {
			t.Fatal(err)
		}
		if out != "payload" {
			t.Errorf("expected payload, got %q", out)
		}
	})

	t.Run("file", func(t *testing.T) {
		dest := filepath.Join(t.TempDir(), "copy.bin")
		if _, err := run(t, svc, "get", id, "-o", dest); err != nil {
			t.Fatal(err)
		}
		data, err := os.ReadFile(dest)
		if err != nil || string(data) != "payload" {
			t.Errorf("unexpected file content %q (%v)", data, err)
		}

		if _, err := run(t, svc, "get", id, "-o", dest); err == nil {
			t.Error("expected error when destination exists")
		}
	})

	t.Run("unknown id", func(t *testing.T) {
		if _, err := run(t, svc, "get", "nope", "-o", "-"); err == nil {
			t.Error("expected error for unknown id")
		}
	})
}

func TestRemoveAndKeepCommands(t *testing.T) {
	svc := newTestService(t)
	id := put(t, svc, writeFile(t, t.TempDir(), "a.txt", "x"))

	out, err := run(t, svc, "keep", id)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "is now permanent") {
		t.Errorf("unexpected output %q", out)
	}

	if _, err := run(t, svc, "keep", "--off", id); err != nil {
		t.Fatal(err)
	}
	rec, _ := svc.Get(context.Background(), id)
	if rec.Permanent {
		t.Error("expected file to be temporary again")
	}

	if _, err := run(t, svc, "rm", id); err != nil {
		t.Fatalf("rm failed: %v", err)
	}
	if _, err := run(t, svc, "rm", id); err == nil {
		t.Error("expected error removing a missing file")
	}
}

func TestMaintenanceCommands(t *testing.T) {
	svc := newTestService(t)
	put(t, svc, writeFile(t, t.TempDir(), "a.txt", strings.Repeat("x", 2048)))

	out, err := run(t, svc, "sweep")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "Removed 0 expired files") {
		t.Errorf("unexpected sweep output %q", out)
	}

	out, err = run(t, svc, "reconcile")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "Orphans removed: 0") {
		t.Errorf("unexpected reconcile output %q", out)
	}

	out, err = run(t, svc, "stats")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "2.0 KiB") || !strings.Contains(out, "1 (0 permanent)") {
		t.Errorf("unexpected stats output %q", out)
	}
}
