package fscache

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testMount = "/vol"

func newTestState(t *testing.T, vc VolumeCache) *State {
	t.Helper()
	s := NewState(nil)
	s.SetVolume(testMount, vc)
	return s
}

func TestCreateAddsNewFilename(t *testing.T) {
	s := newTestState(t, VolumeCache{})

	require.NoError(t, s.Create(testMount, "/vol/docs/notes.txt", File))

	assert.Equal(t, []CachedPath{NewCachedPath("/vol/docs/notes.txt", File)}, s.Lookup("notes.txt"))
}

func TestCreateKeepsExistingBucket(t *testing.T) {
	existing := NewCachedPath("/vol/a/notes.txt", File)
	s := newTestState(t, VolumeCache{"notes.txt": {existing}})

	require.NoError(t, s.Create(testMount, "/vol/b/notes.txt", File))

	assert.Equal(t, []CachedPath{existing}, s.Lookup("notes.txt"))
}

func TestCreateUnknownMount(t *testing.T) {
	s := newTestState(t, VolumeCache{})

	err := s.Create("/elsewhere", "/elsewhere/x", File)

	require.ErrorIs(t, err, ErrUnknownMount)
	assert.Empty(t, s.Lookup("x"))
}

func TestDeleteSinglePathDropsKey(t *testing.T) {
	s := newTestState(t, VolumeCache{"a.txt": {NewCachedPath("/vol/a.txt", File)}})

	require.NoError(t, s.Delete(testMount, "/vol/a.txt"))

	n, ok := s.VolumeLen(testMount)
	require.True(t, ok)
	assert.Zero(t, n)
}

func TestDeleteSinglePathDropsKeyEvenOnMismatch(t *testing.T) {
	s := newTestState(t, VolumeCache{"a.txt": {NewCachedPath("/vol/x/a.txt", File)}})

	require.NoError(t, s.Delete(testMount, "/vol/y/a.txt"))

	assert.Empty(t, s.Lookup("a.txt"))
}

func TestDeleteFiltersMatchingPath(t *testing.T) {
	s := newTestState(t, VolumeCache{"a.txt": {
		NewCachedPath("/vol/x/a.txt", File),
		NewCachedPath("/vol/y/a.txt", File),
	}})

	require.NoError(t, s.Delete(testMount, "/vol/x/a.txt"))

	assert.Equal(t, []CachedPath{NewCachedPath("/vol/y/a.txt", File)}, s.Lookup("a.txt"))
}

func TestDeleteAbsentFilenameIsNoop(t *testing.T) {
	s := newTestState(t, VolumeCache{"a.txt": {NewCachedPath("/vol/a.txt", File)}})

	require.NoError(t, s.Delete(testMount, "/vol/missing.txt"))

	assert.Len(t, s.Lookup("a.txt"), 1)
}

func TestDeleteUnknownMount(t *testing.T) {
	s := newTestState(t, VolumeCache{"a.txt": {NewCachedPath("/vol/a.txt", File)}})

	require.ErrorIs(t, s.Delete("/other", "/other/a.txt"), ErrUnknownMount)
	assert.Len(t, s.Lookup("a.txt"), 1)
}

func TestRenameSequence(t *testing.T) {
	s := newTestState(t, VolumeCache{"old.txt": {NewCachedPath("/vol/old.txt", File)}})

	require.NoError(t, s.RenameFrom(testMount, "/vol/old.txt"))
	require.NoError(t, s.RenameTo(testMount, "/vol/new.txt", File))

	assert.Empty(t, s.Lookup("old.txt"))
	assert.Equal(t, []CachedPath{NewCachedPath("/vol/new.txt", File)}, s.Lookup("new.txt"))
}

func TestInvalidateUsesLongestMount(t *testing.T) {
	s := NewState(nil)
	s.SetVolume("/", VolumeCache{"x.txt": {NewCachedPath("/x.txt", File)}})
	s.SetVolume("/mnt/usb", VolumeCache{"x.txt": {
		NewCachedPath("/mnt/usb/a/x.txt", File),
		NewCachedPath("/mnt/usb/b/x.txt", File),
	}})

	require.NoError(t, s.Invalidate("/mnt/usb/a/x.txt"))

	var root, usb []CachedPath
	s.Read(func(system SystemCache, _ TokenIndex) {
		root = system["/"]["x.txt"]
		usb = system["/mnt/usb"]["x.txt"]
	})
	assert.Len(t, root, 1)
	assert.Equal(t, []CachedPath{NewCachedPath("/mnt/usb/b/x.txt", File)}, usb)
}

func TestInvalidateOutsideAnyMount(t *testing.T) {
	s := newTestState(t, VolumeCache{})

	require.ErrorIs(t, s.Invalidate("/volume2/file"), ErrUnknownMount)
}

func TestFilenameKey(t *testing.T) {
	assert.Equal(t, "b.txt", filename(filepath.Join("a", "b.txt")))
	assert.Equal(t, "dir", filename("/a/dir/"))
}
