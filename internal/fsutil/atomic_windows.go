package fsutil

import (
	"os"
)

// Writes data to filename through a temporary file and a rename.
func WriteFile(filename string, data []byte, perm os.FileMode) error {
	tmp := filename + ".tmp"
	if err := os.WriteFile(tmp, data, perm); err != nil {
		return err
	}
	return os.Rename(tmp, filename)
}

// Creates or replaces newname as a symlink to oldname.
func Symlink(oldname, newname string) error {
	if err := os.Remove(newname); err != nil && !os.IsNotExist(err) {
		return err
	}
	return os.Symlink(oldname, newname)
}
