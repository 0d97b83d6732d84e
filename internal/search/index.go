package search

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"fsindex/internal/fscache"
	"fsindex/internal/metrics"
)

// BuildIndex maps every token of every filename in vc to the filenames that
// contain it. A filename repeating a token is listed once per occurrence.
func BuildIndex(vc fscache.VolumeCache) fscache.TokenIndex {
	index := make(fscache.TokenIndex, len(vc))
	for name := range vc {
		for _, token := range Tokenize(name) {
			index[token] = append(index[token], name)
		}
	}
	return index
}

// BuildRoot rebuilds the global token index from every cached volume. The
// per-volume indices are built in parallel under the read lock, merged
// after it is released, and installed with one swap so readers never see a
// partial index.
func BuildRoot(state *fscache.State, logger *zap.Logger) {
	buildRoot(state, logger)
}

// buildRoot returns the SystemCache version the new index reflects.
func buildRoot(state *fscache.State, logger *zap.Logger) uint64 {
	if logger == nil {
		logger = zap.NewNop()
	}
	start := time.Now()

	var parts []fscache.TokenIndex
	var version uint64
	state.ReadVersioned(func(system fscache.SystemCache, _ fscache.TokenIndex, v uint64) {
		version = v
		parts = make([]fscache.TokenIndex, len(system))
		var wg sync.WaitGroup
		i := 0
		for _, vc := range system {
			wg.Add(1)
			go func(slot int, vc fscache.VolumeCache) {
				defer wg.Done()
				parts[slot] = BuildIndex(vc)
			}(i, vc)
			i++
		}
		wg.Wait()
	})

	merged := make(fscache.TokenIndex)
	for _, part := range parts {
		for token, names := range part {
			merged[token] = append(merged[token], names...)
		}
	}
	state.SetTokens(merged)

	took := time.Since(start)
	metrics.SetTokenCount(len(merged))
	metrics.ObserveBuild("tokens", took)
	logger.Debug("token index rebuilt", zap.Int("tokens", len(merged)), zap.Duration("took", took))
	return version
}

// DefaultIndexInterval is how often an Indexer checks for cache changes.
const DefaultIndexInterval = 2 * time.Second

// Indexer keeps the token index in step with the live cache. Watcher
// mutations only touch the SystemCache; the indexer notices the changed
// version and rebuilds on its next tick.
type Indexer struct {
	state    *fscache.State
	interval time.Duration
	logger   *zap.Logger

	mu    sync.Mutex
	built uint64
	ever  bool
}

// NewIndexer creates an indexer over state.
func NewIndexer(state *fscache.State, interval time.Duration, logger *zap.Logger) *Indexer {
	if interval <= 0 {
		interval = DefaultIndexInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Indexer{state: state, interval: interval, logger: logger.Named("indexer")}
}

// Rebuild rebuilds the token index now. Concurrent rebuilds run one at a
// time so an older index never replaces a newer one.
func (ix *Indexer) Rebuild() {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.built = buildRoot(ix.state, ix.logger)
	ix.ever = true
}

// Stale reports whether the cache changed since the last rebuild.
func (ix *Indexer) Stale() bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return !ix.ever || ix.state.Version() != ix.built
}

// Run rebuilds the index whenever the cache has changed, checking every
// interval, until ctx is done.
func (ix *Indexer) Run(ctx context.Context) {
	ticker := time.NewTicker(ix.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ix.Stale() {
				ix.Rebuild()
			}
		}
	}
}
