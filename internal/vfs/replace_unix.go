//go:build !windows

package vfs

import "os"

// osReplace atomically replaces newPath with oldPath.
// POSIX rename replaces an existing destination atomically.
func osReplace(oldPath, newPath string) error {
	return os.Rename(oldPath, newPath)
}
