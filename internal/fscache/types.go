// Package fscache holds the in-memory index of every file and directory on
// the cached volumes, and the components that fill it and keep it current.
package fscache

import (
	"fmt"
	"path/filepath"
)

// FileType classifies a cached entry.
type FileType uint8

const (
	File FileType = iota
	Directory
)

// String returns "file" or "directory".
func (t FileType) String() string {
	if t == Directory {
		return "directory"
	}
	return "file"
}

// MarshalText encodes the type by name in JSON responses.
func (t FileType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText accepts the names produced by MarshalText.
func (t *FileType) UnmarshalText(text []byte) error {
	switch string(text) {
	case "file":
		*t = File
	case "directory":
		*t = Directory
	default:
		return fmt.Errorf("fscache: unknown file type %q", text)
	}
	return nil
}

// CachedPath is one concrete location of a filename.
type CachedPath struct {
	_        struct{} `cbor:",toarray"`
	FilePath string
	FileType FileType
}

// NewCachedPath returns a CachedPath for path.
func NewCachedPath(path string, fileType FileType) CachedPath {
	return CachedPath{FilePath: path, FileType: fileType}
}

// VolumeCache maps a base filename to every path carrying that name on one
// volume. A key is present only while its slice is non-empty.
type VolumeCache map[string][]CachedPath

// SystemCache maps a mount point to its VolumeCache.
type SystemCache map[string]VolumeCache

// TokenIndex maps a token to the filenames containing it. It is derived from
// a SystemCache and may list filenames that have since disappeared.
type TokenIndex map[string][]string

// PathCount returns the total number of cached paths in v.
func (v VolumeCache) PathCount() int {
	n := 0
	for _, paths := range v {
		n += len(paths)
	}
	return n
}

// filename returns the cache key for path.
func filename(path string) string {
	return filepath.Base(filepath.Clean(path))
}
