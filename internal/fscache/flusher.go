package fscache

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"fsindex/internal/metrics"
	"fsindex/internal/snapshot"
)

// VolumeStore persists the SystemCache.
type VolumeStore = snapshot.Store[SystemCache]

// NewVolumeStore returns the zstd-compressed store for the volume snapshot.
func NewVolumeStore(path string) *VolumeStore {
	return snapshot.New[SystemCache](path, snapshot.CompressionZstd)
}

// Flusher periodically writes the live SystemCache to its snapshot file.
type Flusher struct {
	state    *State
	store    *VolumeStore
	delay    time.Duration
	interval time.Duration
	logger   *zap.Logger
}

// NewFlusher creates a flusher that first saves after delay and then every
// interval.
func NewFlusher(state *State, store *VolumeStore, delay, interval time.Duration, logger *zap.Logger) *Flusher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Flusher{
		state:    state,
		store:    store,
		delay:    delay,
		interval: interval,
		logger:   logger.Named("flusher"),
	}
}

// Run saves on schedule until ctx is done. There is no final flush.
func (f *Flusher) Run(ctx context.Context) {
	timer := time.NewTimer(f.delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return
	case <-timer.C:
	}

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()
	for {
		if err := f.SaveNow(); err != nil {
			f.logger.Error("saving volume snapshot failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// SaveNow writes the snapshot immediately. The cache is encoded under the
// read lock; compression and the file write happen after it is released.
func (f *Flusher) SaveNow() error {
	start := time.Now()
	encoded, err := f.state.Encode(f.store.Encode)
	if err != nil {
		metrics.RecordSnapshot("volumes", "save", "error")
		return err
	}
	n, err := f.store.WriteEncoded(encoded)
	if err != nil {
		metrics.RecordSnapshot("volumes", "save", "error")
		return err
	}
	metrics.RecordSnapshot("volumes", "save", "ok")
	metrics.SetSnapshotBytes("volumes", n)
	f.logger.Info("saved volume snapshot",
		zap.String("path", f.store.Path()),
		zap.Int("bytes", n),
		zap.Duration("took", time.Since(start)))
	return nil
}

// Restore loads the snapshot into state. It reports false when there is no
// usable snapshot, in which case the caller rebuilds from scratch.
func Restore(state *State, store *VolumeStore, logger *zap.Logger) bool {
	if logger == nil {
		logger = zap.NewNop()
	}
	system, err := store.Load()
	switch {
	case errors.Is(err, snapshot.ErrNoSnapshot):
		metrics.RecordSnapshot("volumes", "load", "miss")
		logger.Info("no volume snapshot", zap.String("path", store.Path()))
		return false
	case err != nil:
		metrics.RecordSnapshot("volumes", "load", "error")
		logger.Warn("discarding unreadable volume snapshot", zap.String("path", store.Path()), zap.Error(err))
		return false
	}

	normalize(system)
	state.ReplaceSystem(system)
	metrics.RecordSnapshot("volumes", "load", "ok")
	logger.Info("restored volume snapshot", zap.String("path", store.Path()), zap.Int("volumes", len(system)))
	return true
}

// normalize restores the non-empty-bucket invariant on decoded data.
func normalize(system SystemCache) {
	for mount, vc := range system {
		if vc == nil {
			system[mount] = make(VolumeCache)
			continue
		}
		for name, paths := range vc {
			if len(paths) == 0 {
				delete(vc, name)
			}
		}
	}
}
