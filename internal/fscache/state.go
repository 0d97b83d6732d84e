package fscache

import (
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// State is the single owner of the live SystemCache and TokenIndex. Every
// component receives the same *State; tests create their own.
//
// Readers share an RWMutex read lock, so concurrent searches do not
// serialize against each other. A panic inside a critical section is
// recovered and logged, and the lock is released, so later callers continue
// with whatever the cache held at that point.
type State struct {
	mu     sync.RWMutex
	system SystemCache
	tokens TokenIndex
	logger *zap.Logger

	// version counts SystemCache changes. It only moves under the write lock.
	version atomic.Uint64
}

// NewState creates an empty state.
func NewState(logger *zap.Logger) *State {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &State{
		system: make(SystemCache),
		tokens: make(TokenIndex),
		logger: logger.Named("state"),
	}
}

func (s *State) write(op string, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.recoverPanic(op)
	fn()
}

// change runs fn under the write lock and marks the SystemCache as changed.
func (s *State) change(op string, fn func()) {
	s.write(op, func() {
		s.version.Add(1)
		fn()
	})
}

func (s *State) read(op string, fn func()) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	defer s.recoverPanic(op)
	fn()
}

func (s *State) recoverPanic(op string) {
	if r := recover(); r != nil {
		s.logger.Error("recovered panic in cache critical section",
			zap.String("op", op), zap.Any("panic", r), zap.Stack("stack"))
	}
}

// Read runs fn under the read lock. fn must not retain or modify the maps.
func (s *State) Read(fn func(system SystemCache, tokens TokenIndex)) {
	s.read("read", func() { fn(s.system, s.tokens) })
}

// ReadVersioned is Read that also passes the SystemCache version fn sees.
func (s *State) ReadVersioned(fn func(system SystemCache, tokens TokenIndex, version uint64)) {
	s.read("read", func() { fn(s.system, s.tokens, s.version.Load()) })
}

// Version returns a counter that changes whenever the SystemCache does.
func (s *State) Version() uint64 {
	return s.version.Load()
}

// SetVolume installs cache as the content of mount, replacing any previous
// content. The cache must be fully built before the call.
func (s *State) SetVolume(mount string, cache VolumeCache) {
	if cache == nil {
		cache = make(VolumeCache)
	}
	s.change("set-volume", func() { s.system[mount] = cache })
}

// ReplaceSystem swaps in a whole SystemCache, typically a loaded snapshot.
func (s *State) ReplaceSystem(system SystemCache) {
	if system == nil {
		system = make(SystemCache)
	}
	s.change("replace-system", func() { s.system = system })
}

// SetTokens swaps in a freshly built token index.
func (s *State) SetTokens(tokens TokenIndex) {
	if tokens == nil {
		tokens = make(TokenIndex)
	}
	s.write("set-tokens", func() { s.tokens = tokens })
}

// HasVolume reports whether mount is cached.
func (s *State) HasVolume(mount string) bool {
	var ok bool
	s.read("has-volume", func() { _, ok = s.system[mount] })
	return ok
}

// VolumeLen returns the number of filename keys cached for mount.
func (s *State) VolumeLen(mount string) (int, bool) {
	var n int
	var ok bool
	s.read("volume-len", func() {
		var vc VolumeCache
		vc, ok = s.system[mount]
		n = len(vc)
	})
	return n, ok
}

// TokenCount returns the number of distinct tokens indexed.
func (s *State) TokenCount() int {
	var n int
	s.read("token-count", func() { n = len(s.tokens) })
	return n
}

// Mounts returns the cached mount points in sorted order.
func (s *State) Mounts() []string {
	var mounts []string
	s.read("mounts", func() {
		mounts = make([]string, 0, len(s.system))
		for mount := range s.system {
			mounts = append(mounts, mount)
		}
	})
	sort.Strings(mounts)
	return mounts
}

// Lookup returns copies of every path cached under name, across volumes.
func (s *State) Lookup(name string) []CachedPath {
	var out []CachedPath
	s.read("lookup", func() {
		for _, vc := range s.system {
			out = append(out, vc[name]...)
		}
	})
	return out
}

// MountFor returns the longest cached mount point containing path.
func (s *State) MountFor(path string) (string, bool) {
	var best string
	var found bool
	s.read("mount-for", func() {
		for mount := range s.system {
			if containsPath(mount, path) && len(mount) >= len(best) {
				best, found = mount, true
			}
		}
	})
	return best, found
}

// Encode serializes the SystemCache with enc while holding the read lock.
// Only the in-memory encoding happens under the lock.
func (s *State) Encode(enc func(SystemCache) ([]byte, error)) ([]byte, error) {
	var data []byte
	err := errEncodeAborted
	s.read("encode", func() { data, err = enc(s.system) })
	return data, err
}

func containsPath(mount, path string) bool {
	if path == mount {
		return true
	}
	prefix := mount
	if !strings.HasSuffix(prefix, string(os.PathSeparator)) {
		prefix += string(os.PathSeparator)
	}
	return strings.HasPrefix(path, prefix)
}
