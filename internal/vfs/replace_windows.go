//go:build windows

package vfs

import "golang.org/x/sys/windows"

// osReplace replaces newPath with oldPath using MoveFileEx with
// MOVEFILE_REPLACE_EXISTING, the closest Windows has to an atomic
// replace on the same volume.
func osReplace(oldPath, newPath string) error {
	from, err := windows.UTF16PtrFromString(oldPath)
	if err != nil {
		return err
	}
	to, err := windows.UTF16PtrFromString(newPath)
	if err != nil {
		return err
	}
	return windows.MoveFileEx(from, to, windows.MOVEFILE_REPLACE_EXISTING|windows.MOVEFILE_WRITE_THROUGH)
}
