// Package billy implements fs.Filesystem on top of go-billy, giving the
// migration an OS-backed store rooted at the work directory and an in-memory
// store for tests.
package billy

import (
	"fmt"
	"os"
	"sync"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"

	parentfs "github.com/input-output-hk/migrate-npm-registry/fs"
)

// FS implements parentfs.Filesystem using go-billy. It is safe for concurrent
// use; memfs keeps its directory tree in unguarded maps.
type FS struct {
	mu sync.RWMutex
	fs billy.Filesystem
}

var _ parentfs.Filesystem = (*FS)(nil)

// NewFS creates a new FS using the given go-billy filesystem.
func NewFS(fsys billy.Filesystem) *FS {
	return &FS{fs: fsys}
}

// NewInMemoryFS creates a new in-memory filesystem.
func NewInMemoryFS() *FS {
	return &FS{fs: memfs.New()}
}

// NewOSFS creates a filesystem rooted at path on the host.
func NewOSFS(path string) *FS {
	return &FS{fs: osfs.New(path)}
}

// Create implements Filesystem.Create.
//
//nolint:ireturn // API returns the fs.File interface by design for flexibility.
func (b *FS) Create(name string) (parentfs.File, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	f, err := b.fs.Create(name)
	if err != nil {
		return nil, fmt.Errorf("billy: create %q: %w", name, err)
	}
	return &File{file: f, fs: b}, nil
}

// Exists implements Filesystem.Exists.
func (b *FS) Exists(path string) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	_, err := b.fs.Stat(path)
	switch {
	case err == nil:
		return true, nil
	case os.IsNotExist(err):
		return false, nil
	default:
		return false, fmt.Errorf("billy: stat %q: %w", path, err)
	}
}

// MkdirAll implements Filesystem.MkdirAll.
func (b *FS) MkdirAll(path string, perm os.FileMode) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.fs.MkdirAll(path, perm); err != nil {
		return fmt.Errorf("billy: mkdirall %q: %w", path, err)
	}
	return nil
}

// Remove implements Filesystem.Remove.
func (b *FS) Remove(name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.fs.Remove(name); err != nil {
		return fmt.Errorf("billy: remove %q: %w", name, err)
	}
	return nil
}

// RemoveAll implements Filesystem.RemoveAll. A missing path is not an error.
func (b *FS) RemoveAll(path string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := util.RemoveAll(b.fs, path); err != nil {
		return fmt.Errorf("billy: removeall %q: %w", path, err)
	}
	return nil
}

// Stat implements Filesystem.Stat.
func (b *FS) Stat(name string) (os.FileInfo, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	info, err := b.fs.Stat(name)
	if err != nil {
		return nil, fmt.Errorf("billy: stat %q: %w", name, err)
	}
	return info, nil
}

// Root implements Filesystem.Root.
func (b *FS) Root() string {
	return b.fs.Root()
}

// TempDir creates a new directory with a name starting with prefix under dir
// and returns its path relative to Root.
func (b *FS) TempDir(dir, prefix string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	name, err := util.TempDir(b.fs, dir, prefix)
	if err != nil {
		return "", fmt.Errorf("billy: tempdir %q: %w", prefix, err)
	}
	return name, nil
}
