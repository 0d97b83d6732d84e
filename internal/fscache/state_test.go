package fscache

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMountsSorted(t *testing.T) {
	s := NewState(nil)
	s.SetVolume("/mnt/b", nil)
	s.SetVolume("/", nil)
	s.SetVolume("/mnt/a", nil)

	assert.Equal(t, []string{"/", "/mnt/a", "/mnt/b"}, s.Mounts())
	assert.True(t, s.HasVolume("/mnt/a"))
	assert.False(t, s.HasVolume("/mnt/c"))
}

func TestSetVolumeNilIsEmptyCache(t *testing.T) {
	s := NewState(nil)
	s.SetVolume("/", nil)

	n, ok := s.VolumeLen("/")
	assert.True(t, ok)
	assert.Zero(t, n)
	require.NoError(t, s.Create("/", "/x", File))
}

func TestVersionMovesWithCacheChanges(t *testing.T) {
	s := NewState(nil)
	v0 := s.Version()

	s.SetVolume("/", nil)
	v1 := s.Version()
	assert.Greater(t, v1, v0)

	require.NoError(t, s.Create("/", "/a.txt", File))
	v2 := s.Version()
	assert.Greater(t, v2, v1)

	s.SetTokens(TokenIndex{"a": {"a.txt"}})
	assert.Equal(t, v2, s.Version(), "token swaps leave the cache version alone")

	require.NoError(t, s.Delete("/", "/a.txt"))
	assert.Greater(t, s.Version(), v2)

	var seen uint64
	s.ReadVersioned(func(_ SystemCache, _ TokenIndex, version uint64) { seen = version })
	assert.Equal(t, s.Version(), seen)
}

func TestMountFor(t *testing.T) {
	s := NewState(nil)
	s.SetVolume("/", nil)
	s.SetVolume("/mnt/data", nil)

	tests := []struct {
		path string
		want string
	}{
		{"/etc/hosts", "/"},
		{"/mnt/data", "/mnt/data"},
		{"/mnt/data/x/y", "/mnt/data"},
		{"/mnt/database/z", "/"},
	}
	for _, tt := range tests {
		got, ok := s.MountFor(tt.path)
		assert.True(t, ok, tt.path)
		assert.Equal(t, tt.want, got, tt.path)
	}
}

func TestMountForNoMatch(t *testing.T) {
	s := NewState(nil)
	s.SetVolume("/mnt/data", nil)

	_, ok := s.MountFor("/home/user")
	assert.False(t, ok)
}

func TestPanicInReaderReleasesLock(t *testing.T) {
	s := NewState(nil)
	s.SetVolume("/", VolumeCache{"a": {NewCachedPath("/a", File)}})

	s.Read(func(SystemCache, TokenIndex) { panic("boom") })

	// A writer would deadlock here if the read lock were still held.
	require.NoError(t, s.Create("/", "/b", File))
	assert.Len(t, s.Lookup("b"), 1)
}

func TestEncodePanicReturnsError(t *testing.T) {
	s := NewState(nil)

	data, err := s.Encode(func(SystemCache) ([]byte, error) { panic("encoder exploded") })

	assert.Nil(t, data)
	assert.Error(t, err)
}

func TestEncodePassesThrough(t *testing.T) {
	s := NewState(nil)
	s.SetVolume("/", nil)
	want := errors.New("nope")

	_, err := s.Encode(func(sc SystemCache) ([]byte, error) {
		assert.Contains(t, sc, "/")
		return nil, want
	})
	assert.ErrorIs(t, err, want)
}

func TestConcurrentReadersAndWriters(t *testing.T) {
	s := NewState(nil)
	s.SetVolume("/", VolumeCache{})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				_ = s.Create("/", "/f", File)
				_ = s.Delete("/", "/f")
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				s.Lookup("f")
				s.TokenCount()
			}
		}()
	}
	wg.Wait()
}
