package fs

import "io/fs"

// File is a staged archive opened for writing.
type File interface {
	Close() error
	Stat() (fs.FileInfo, error)
	Write(p []byte) (n int, err error)
}
