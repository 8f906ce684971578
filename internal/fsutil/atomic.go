//go:build !windows

package fsutil

import (
	"os"

	"github.com/google/renameio/v2"
)

// Writes data to filename atomically.
//
// Readers observe either the previous contents or the new contents, never a
// partial write.
func WriteFile(filename string, data []byte, perm os.FileMode) error {
	return renameio.WriteFile(filename, data, perm)
}

// Creates or replaces newname as a symlink to oldname atomically.
func Symlink(oldname, newname string) error {
	return renameio.Symlink(oldname, newname)
}
