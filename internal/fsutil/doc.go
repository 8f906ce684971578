// Package fsutil provides the file system primitives shared by the status
// cache and the universal merge: atomic file replacement, atomic symlink
// creation, and file copying that preserves permissions.
package fsutil
