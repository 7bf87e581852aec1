// Package fs defines the filesystem abstraction the migration writes local
// archives to. Production code uses an OS-backed implementation rooted at the
// work directory; tests use an in-memory one (see package fs/billy).
package fs

import "os"

// Filesystem is the set of operations needed to stage archives on disk.
// Paths are slash-separated and relative to Root.
type Filesystem interface {
	Create(name string) (File, error)
	MkdirAll(path string, perm os.FileMode) error
	Remove(name string) error
	RemoveAll(path string) error
	Stat(name string) (os.FileInfo, error)
	Exists(path string) (bool, error)

	// Root returns the location of the filesystem on the host, used to
	// hand absolute paths to external programs.
	Root() string
}
