package fscache

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownMount is returned by mutations addressed to a mount point
	// that has no VolumeCache. Nothing is changed.
	ErrUnknownMount = errors.New("fscache: unknown mount point")

	errEncodeAborted = errors.New("fscache: encode aborted")
)

// Create records path under its filename unless the filename is already
// cached on mount. The first writer wins so a watcher event never clobbers
// the buckets produced by a concurrent full scan.
func (s *State) Create(mount, path string, fileType FileType) error {
	name := filename(path)
	var err error
	s.change("create", func() {
		vc, ok := s.system[mount]
		if !ok {
			err = fmt.Errorf("%w: %s", ErrUnknownMount, mount)
			return
		}
		if _, exists := vc[name]; exists {
			return
		}
		vc[name] = []CachedPath{NewCachedPath(path, fileType)}
	})
	return err
}

// Delete forgets path. A filename with a single cached path loses its key;
// otherwise only the entries matching path are dropped.
func (s *State) Delete(mount, path string) error {
	name := filename(path)
	var err error
	s.change("delete", func() {
		vc, ok := s.system[mount]
		if !ok {
			err = fmt.Errorf("%w: %s", ErrUnknownMount, mount)
			return
		}
		removePath(vc, name, path)
	})
	return err
}

// RenameFrom is the first half of a rename. It removes the old location with
// Delete semantics.
func (s *State) RenameFrom(mount, oldPath string) error {
	return s.Delete(mount, oldPath)
}

// RenameTo is the second half of a rename. It records the new location with
// Create semantics.
func (s *State) RenameTo(mount, newPath string, fileType FileType) error {
	return s.Create(mount, newPath, fileType)
}

// Invalidate removes path from whichever cached volume contains it. It is
// used when the application deletes an entry itself and should not wait for
// the OS notification.
func (s *State) Invalidate(path string) error {
	mount, ok := s.MountFor(path)
	if !ok {
		return fmt.Errorf("%w: no cached volume contains %s", ErrUnknownMount, path)
	}
	return s.Delete(mount, path)
}

func removePath(vc VolumeCache, name, path string) {
	paths, ok := vc[name]
	if !ok {
		return
	}
	if len(paths) <= 1 {
		delete(vc, name)
		return
	}
	kept := make([]CachedPath, 0, len(paths)-1)
	for _, p := range paths {
		if p.FilePath != path {
			kept = append(kept, p)
		}
	}
	if len(kept) == 0 {
		delete(vc, name)
		return
	}
	vc[name] = kept
}
