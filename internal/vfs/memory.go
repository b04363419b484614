package vfs

import (
	"bytes"
	"io"
	"io/fs"
	"path"
	"strings"
	"sync"
	"time"
)

// MemFS implements VFS using an in-memory file system.
// It is primarily used for testing.
//
// MemFS is safe for concurrent use.
type MemFS struct {
	mu        sync.RWMutex
	files     map[string]*memFile
	freeSpace uint64
}

type memFile struct {
	content []byte
	mode    fs.FileMode
	modTime time.Time
}

// NewMemFS creates a new in-memory file system.
func NewMemFS() *MemFS {
	return &MemFS{
		files:     make(map[string]*memFile),
		freeSpace: 1 << 40, // effectively unlimited unless a test shrinks it
	}
}

// Ensure MemFS implements VFS.
var _ VFS = (*MemFS)(nil)

// AddFile adds a file with the given content. Convenience for tests.
func (m *MemFS) AddFile(filePath, content string) {
	_ = m.WriteFile(filePath, []byte(content), 0644)
}

// SetFreeSpace sets the value reported by FreeSpace.
func (m *MemFS) SetFreeSpace(n uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.freeSpace = n
}

// Open opens a file for shared reading.
func (m *MemFS) Open(filePath string) (File, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	filePath = m.cleanPath(filePath)
	f, ok := m.files[filePath]
	if !ok {
		return nil, &fs.PathError{Op: "open", Path: filePath, Err: fs.ErrNotExist}
	}

	// Snapshot so later writes do not affect an open handle.
	content := make([]byte, len(f.content))
	copy(content, f.content)
	return &memReader{Reader: bytes.NewReader(content)}, nil
}

type memReader struct {
	*bytes.Reader
}

func (r *memReader) Close() error { return nil }

// ReadFile reads the entire file content.
func (m *MemFS) ReadFile(filePath string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	filePath = m.cleanPath(filePath)
	f, ok := m.files[filePath]
	if !ok {
		return nil, &fs.PathError{Op: "read", Path: filePath, Err: fs.ErrNotExist}
	}

	// Return a copy to prevent modification.
	content := make([]byte, len(f.content))
	copy(content, f.content)
	return content, nil
}

// Stat returns file information.
func (m *MemFS) Stat(filePath string) (FileInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	filePath = m.cleanPath(filePath)
	if f, ok := m.files[filePath]; ok {
		return NewFileInfo(
			filePath,
			path.Base(filePath),
			int64(len(f.content)),
			f.mode,
			f.modTime,
			false,
		), nil
	}

	if m.isDirLocked(filePath) {
		return NewFileInfo(
			filePath,
			path.Base(filePath),
			0,
			fs.ModeDir|0755,
			time.Now(),
			true,
		), nil
	}

	return FileInfo{}, &fs.PathError{Op: "stat", Path: filePath, Err: fs.ErrNotExist}
}

// WriteFile writes data to a file, creating it if necessary.
func (m *MemFS) WriteFile(filePath string, data []byte, perm fs.FileMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	filePath = m.cleanPath(filePath)
	content := make([]byte, len(data))
	copy(content, data)
	m.files[filePath] = &memFile{
		content: content,
		mode:    perm,
		modTime: time.Now(),
	}
	return nil
}

// Create creates (or truncates) a file for writing.
// Content becomes visible when the returned writer is closed.
func (m *MemFS) Create(filePath string) (io.WriteCloser, error) {
	return &memWriter{fs: m, path: m.cleanPath(filePath)}, nil
}

type memWriter struct {
	fs     *MemFS
	path   string
	buf    bytes.Buffer
	closed bool
}

func (w *memWriter) Write(p []byte) (int, error) {
	if w.closed {
		return 0, fs.ErrClosed
	}
	return w.buf.Write(p)
}

func (w *memWriter) Close() error {
	if w.closed {
		return fs.ErrClosed
	}
	w.closed = true
	return w.fs.WriteFile(w.path, w.buf.Bytes(), 0644)
}

// Remove removes a file.
func (m *MemFS) Remove(filePath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	filePath = m.cleanPath(filePath)
	if _, ok := m.files[filePath]; !ok {
		return &fs.PathError{Op: "remove", Path: filePath, Err: fs.ErrNotExist}
	}
	delete(m.files, filePath)
	return nil
}

// Rename renames (moves) a file.
func (m *MemFS) Rename(oldPath, newPath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	oldPath = m.cleanPath(oldPath)
	newPath = m.cleanPath(newPath)
	f, ok := m.files[oldPath]
	if !ok {
		return &fs.PathError{Op: "rename", Path: oldPath, Err: fs.ErrNotExist}
	}
	m.files[newPath] = f
	delete(m.files, oldPath)
	return nil
}

// CopyFile copies src to dst, overwriting dst.
func (m *MemFS) CopyFile(src, dst string) error {
	data, err := m.ReadFile(src)
	if err != nil {
		return err
	}
	return m.WriteFile(dst, data, 0644)
}

// Abs returns the absolute path.
func (m *MemFS) Abs(filePath string) (string, error) {
	return m.cleanPath(filePath), nil
}

// Dir returns the directory portion of a path.
func (m *MemFS) Dir(filePath string) string {
	return path.Dir(m.cleanPath(filePath))
}

// Base returns the last element of a path.
func (m *MemFS) Base(filePath string) string {
	return path.Base(filePath)
}

// Join joins path elements.
func (m *MemFS) Join(elem ...string) string {
	return path.Join(elem...)
}

// Exists returns true if the path exists.
func (m *MemFS) Exists(filePath string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	filePath = m.cleanPath(filePath)
	if _, ok := m.files[filePath]; ok {
		return true
	}
	return m.isDirLocked(filePath)
}

// IsDir returns true if the path is a directory.
func (m *MemFS) IsDir(filePath string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.isDirLocked(m.cleanPath(filePath))
}

// FreeSpace returns the configured free space value.
func (m *MemFS) FreeSpace(string) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.freeSpace, nil
}

// isDirLocked treats any prefix of an existing file path as a directory.
// Caller must hold at least a read lock.
func (m *MemFS) isDirLocked(dirPath string) bool {
	if dirPath == "/" {
		return true
	}
	prefix := dirPath + "/"
	for filePath := range m.files {
		if strings.HasPrefix(filePath, prefix) {
			return true
		}
	}
	return false
}

// cleanPath normalizes a path to an absolute, cleaned form.
func (m *MemFS) cleanPath(filePath string) string {
	if !strings.HasPrefix(filePath, "/") {
		filePath = "/" + filePath
	}
	return path.Clean(filePath)
}
