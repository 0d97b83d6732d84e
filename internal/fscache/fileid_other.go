//go:build !unix

package fscache

import "os"

// dirKey falls back to the cleaned path where no inode is exposed.
func dirKey(path string, _ os.FileInfo) any {
	return path
}
