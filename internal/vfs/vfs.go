// Package vfs provides a virtual file system abstraction.
//
// The VFS interface allows swapping the underlying file system
// implementation, enabling testing with in-memory file systems. It is
// deliberately narrower than a general-purpose VFS: it covers exactly
// the operations the streaming engine and the atomic writer need.
package vfs

import (
	"io"
	"io/fs"
	"time"
)

// File is an open file handle supporting sequential and positional
// reads. Chunk reads use ReadAt so concurrent readers never contend on
// a shared seek offset.
type File interface {
	io.Reader
	io.ReaderAt
	io.Seeker
	io.Closer
}

// VFS is a virtual file system abstraction.
type VFS interface {
	// Open opens a file for shared reading.
	Open(path string) (File, error)

	// ReadFile reads the entire file content.
	ReadFile(path string) ([]byte, error)

	// Stat returns file information.
	Stat(path string) (FileInfo, error)

	// WriteFile writes data to a file, creating it if necessary.
	WriteFile(path string, data []byte, perm fs.FileMode) error

	// Create creates (or truncates) a file for writing.
	Create(path string) (io.WriteCloser, error)

	// Remove removes a file.
	Remove(path string) error

	// Rename renames (moves) a file. On the same volume this is the
	// atomic replace primitive.
	Rename(oldPath, newPath string) error

	// CopyFile copies src to dst, overwriting dst.
	CopyFile(src, dst string) error

	// Abs returns the absolute path.
	Abs(path string) (string, error)

	// Dir returns the directory portion of a path.
	Dir(path string) string

	// Base returns the last element of a path.
	Base(path string) string

	// Join joins path elements.
	Join(elem ...string) string

	// Exists returns true if the path exists.
	Exists(path string) bool

	// IsDir returns true if the path is a directory.
	IsDir(path string) bool

	// FreeSpace returns the number of free bytes on the volume
	// containing path.
	FreeSpace(path string) (uint64, error)
}

// FileInfo describes a file or directory.
type FileInfo struct {
	path    string
	name    string
	size    int64
	mode    fs.FileMode
	modTime time.Time
	isDir   bool
}

// NewFileInfo creates a FileInfo from the given parameters.
func NewFileInfo(path, name string, size int64, mode fs.FileMode, modTime time.Time, isDir bool) FileInfo {
	return FileInfo{
		path:    path,
		name:    name,
		size:    size,
		mode:    mode,
		modTime: modTime,
		isDir:   isDir,
	}
}

// Path returns the full path.
func (fi FileInfo) Path() string { return fi.path }

// Name returns the base name.
func (fi FileInfo) Name() string { return fi.name }

// Size returns the file size in bytes.
func (fi FileInfo) Size() int64 { return fi.size }

// Mode returns the file mode.
func (fi FileInfo) Mode() fs.FileMode { return fi.mode }

// ModTime returns the modification time.
func (fi FileInfo) ModTime() time.Time { return fi.modTime }

// IsDir returns true if this is a directory.
func (fi FileInfo) IsDir() bool { return fi.isDir }

// IsRegular returns true if this is a regular file.
func (fi FileInfo) IsRegular() bool { return fi.mode.IsRegular() }
