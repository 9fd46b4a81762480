package bundle

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path"
)

// ArchiveName is the filename the tree is uploaded under.
func (t *Tree) ArchiveName() string {
	if f, ok := t.SingleFile(); ok {
		return f.Name()
	}
	return t.Root.Name() + ".zip"
}

// Open returns a reader over the upload body: the file itself for a single
// file, otherwise a ZIP archive produced on the fly while it is read.
func (t *Tree) Open(ctx context.Context) (io.ReadCloser, error) {
	if f, ok := t.SingleFile(); ok {
		return os.Open(f.Path())
	}

	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(t.WriteZip(ctx, pw))
	}()
	return pr, nil
}

// WriteZip writes the tree to w as a ZIP archive.
func (t *Tree) WriteZip(ctx context.Context, w io.Writer) error {
	zw := zip.NewWriter(w)

	if err := compressNode(ctx, zw, t.Root, ""); err != nil {
		zw.Close()
		return err
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to close zip writer: %w", err)
	}
	return nil
}

func compressNode(ctx context.Context, zw *zip.Writer, node Node, basePath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	// ZIP entry names always use forward slashes.
	archivePath := path.Join(basePath, node.Name())

	switch n := node.(type) {
	case *File:
		return addFileToZip(zw, n.Path(), archivePath)
	case *Dir:
		for _, child := range n.Children() {
			if err := compressNode(ctx, zw, child, archivePath); err != nil {
				return err
			}
		}
	}
	return nil
}

func addFileToZip(zw *zip.Writer, srcPath, archivePath string) error {
	file, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("failed to open file %s: %w", srcPath, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat file: %w", err)
	}

	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return fmt.Errorf("failed to create zip header: %w", err)
	}
	header.Name = archivePath
	header.Method = zip.Deflate

	writer, err := zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("failed to create zip entry: %w", err)
	}

	if _, err := io.Copy(writer, file); err != nil {
		return fmt.Errorf("failed to write file to zip: %w", err)
	}

	return nil
}
