//go:build unix

package fscache

import (
	"os"
	"syscall"
)

type fileID struct {
	device uint64
	inode  uint64
}

// dirKey identifies a physical directory by device and inode so bind mounts
// and hard-linked directories are entered once.
func dirKey(path string, info os.FileInfo) any {
	if st, ok := info.Sys().(*syscall.Stat_t); ok {
		return fileID{device: uint64(st.Dev), inode: uint64(st.Ino)}
	}
	return path
}
