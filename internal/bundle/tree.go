package bundle

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

type Node interface {
	Path() string
	Name() string
}

type File struct {
	path string
	name string
	size int64
}

type Dir struct {
	path     string
	name     string
	children []Node
}

func (f *File) Path() string { return f.path }
func (f *File) Name() string { return f.name }
func (f *File) Size() int64 { return f.size }

func (d *Dir) Path() string { return d.path }
func (d *Dir) Name() string { return d.name }
func (d *Dir) Children() []Node { return d.children }

// Tree is the set of local paths making up one upload.
type Tree struct {
	Root Node
}

// Build assembles the tree for paths. Several top-level paths are grouped
// under a virtual directory named after now.
func Build(paths []ParsedPath, now time.Time) (*Tree, error) {
	var rootNodes []Node

	for _, parsed := range paths {
		if parsed.Kind == PathDir {
			dir, err := buildDir(parsed.FullPath)
			if err != nil {
				return nil, err
			}
			rootNodes = append(rootNodes, dir)
			continue
		}

		info, err := os.Stat(parsed.FullPath)
		if err != nil {
			return nil, err
		}
		rootNodes = append(rootNodes, &File{
			path: parsed.FullPath,
			name: filepath.Base(parsed.FullPath),
			size: info.Size(),
		})
	}

	if len(rootNodes) == 0 {
		return nil, fmt.Errorf("no valid paths provided")
	}

	if len(rootNodes) == 1 {
		return &Tree{Root: rootNodes[0]}, nil
	}

	name := fmt.Sprintf("upload_%s", now.Format("2006_01_02_150405"))
	return &Tree{Root: &Dir{path: name, name: name, children: rootNodes}}, nil
}

func buildDir(dirPath string) (*Dir, error) {
	dir := &Dir{
		path:     dirPath,
		name:     filepath.Base(dirPath),
		children: []Node{},
	}

	entries, err := os.ReadDir(dirPath)
	if err != nil {
		return nil, err
	}

	for _, entry := range entries {
		childPath := filepath.Join(dirPath, entry.Name())

		switch {
		case entry.IsDir():
			child, err := buildDir(childPath)
			if err != nil {
				return nil, err
			}
			dir.children = append(dir.children, child)
		case entry.Type().IsRegular():
			info, err := entry.Info()
			if err != nil {
				return nil, err
			}
			dir.children = append(dir.children, &File{path: childPath, name: entry.Name(), size: info.Size()})
		}
		// symlinks, sockets and devices are skipped
	}

	return dir, nil
}

// SingleFile returns the root when the tree is one plain file, which is
// uploaded as-is rather than archived.
func (t *Tree) SingleFile() (*File, bool) {
	f, ok := t.Root.(*File)
	return f, ok
}

// Files returns every file in the tree in depth-first order.
func (t *Tree) Files() []*File {
	var out []*File
	var walk func(Node)
	walk = func(n Node) {
		switch n := n.(type) {
		case *File:
			out = append(out, n)
		case *Dir:
			for _, child := range n.children {
				walk(child)
			}
		}
	}
	walk(t.Root)
	return out
}

// UncompressedSize is the sum of all file sizes in the tree.
func (t *Tree) UncompressedSize() int64 {
	var total int64
	for _, f := range t.Files() {
		total += f.size
	}
	return total
}
