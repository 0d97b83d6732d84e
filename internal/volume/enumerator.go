package volume

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"fsindex/internal/fscache"
	"fsindex/internal/metrics"
	"fsindex/internal/search"
)

// Options configure an Enumerator.
type Options struct {
	// Roots, when set, replace the OS volumes as the indexed mount points.
	Roots         []string
	Workers       int
	SkipNames     []string
	FlushDelay    time.Duration
	FlushInterval time.Duration
	// IndexInterval is how often the token index catches up with watcher
	// changes.
	IndexInterval time.Duration
	// Progress is handed to every volume build.
	Progress func(dirs int)
}

// Enumerator owns the startup sequence and caller-triggered rescans.
type Enumerator struct {
	state   *fscache.State
	store   *fscache.VolumeStore
	opts    Options
	logger  *zap.Logger
	list    func() ([]Volume, error)
	indexer *search.Indexer

	ready    atomic.Bool
	rescanMu sync.Mutex
	mounts   []string
}

// NewEnumerator creates an enumerator over state, persisting to store.
func NewEnumerator(state *fscache.State, store *fscache.VolumeStore, opts Options, logger *zap.Logger) *Enumerator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(opts.SkipNames) == 0 {
		opts.SkipNames = fscache.DefaultSkipNames
	}
	e := &Enumerator{
		state:  state,
		store:  store,
		opts:   opts,
		logger: logger.Named("volumes"),
	}
	e.indexer = search.NewIndexer(state, opts.IndexInterval, e.logger)
	e.list = List
	if len(opts.Roots) > 0 {
		e.list = func() ([]Volume, error) { return ForRoots(opts.Roots) }
	}
	return e
}

// List returns the volumes being indexed.
func (e *Enumerator) List() ([]Volume, error) {
	return e.list()
}

// Ready reports whether Start has finished populating the cache.
func (e *Enumerator) Ready() bool {
	return e.ready.Load()
}

// Start restores the snapshot, places one watcher per volume, builds any
// volume the snapshot lacks, then starts the periodic flusher and indexer.
// It returns once searches can be served; the background tasks run until
// ctx is done. A volume that cannot be scanned is logged and left out.
func (e *Enumerator) Start(ctx context.Context) error {
	volumes, err := e.list()
	if err != nil {
		return err
	}
	e.mounts = mountPoints(volumes)

	restored := fscache.Restore(e.state, e.store, e.logger)

	// Watches go in before the scan so nothing created in between is lost.
	// Events for a volume still being scanned are dropped as unknown mount;
	// the scan itself picks those entries up.
	var watchers []*fscache.Watcher
	for _, mount := range e.mounts {
		w, err := fscache.NewWatcher(e.state, mount, e.watchOptions(mount), e.logger)
		if err != nil {
			e.logger.Error("cannot watch volume", zap.String("mount", mount), zap.Error(err))
			continue
		}
		watchers = append(watchers, w)
		mount := mount
		go func() {
			if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				e.logger.Error("watcher stopped", zap.String("mount", mount), zap.Error(err))
			}
		}()
	}
	for _, w := range watchers {
		select {
		case <-w.Registered():
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	var missing []string
	for _, mount := range e.mounts {
		if !e.state.HasVolume(mount) {
			missing = append(missing, mount)
		}
	}
	built := false
	if len(missing) > 0 {
		err := e.buildAll(ctx, missing)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			e.logger.Error("some volumes could not be scanned", zap.Error(err))
		}
		for _, mount := range missing {
			built = built || e.state.HasVolume(mount)
		}
	}

	flusher := fscache.NewFlusher(e.state, e.store, e.opts.FlushDelay, e.opts.FlushInterval, e.logger)
	if !restored || built {
		if err := flusher.SaveNow(); err != nil {
			e.logger.Error("saving fresh volume snapshot failed", zap.Error(err))
		}
	}
	go flusher.Run(ctx)

	e.indexer.Rebuild()
	go e.indexer.Run(ctx)

	e.ready.Store(true)
	e.logger.Info("volumes ready",
		zap.Strings("mounts", e.state.Mounts()),
		zap.Bool("restored", restored))
	return nil
}

// BuildAll rebuilds every volume, saves the snapshot and rebuilds the token
// index. It starts no background tasks.
func (e *Enumerator) BuildAll(ctx context.Context) error {
	volumes, err := e.list()
	if err != nil {
		return err
	}
	e.mounts = mountPoints(volumes)
	if err := e.buildAll(ctx, e.mounts); err != nil {
		return err
	}
	e.indexer.Rebuild()
	return fscache.NewFlusher(e.state, e.store, 0, 0, e.logger).SaveNow()
}

// Rescan rebuilds one volume and the token index. Concurrent rescans run
// one at a time.
func (e *Enumerator) Rescan(ctx context.Context, mount string) error {
	mount = filepath.Clean(mount)
	if !e.state.HasVolume(mount) {
		return fmt.Errorf("%w: %s", fscache.ErrUnknownMount, mount)
	}
	e.rescanMu.Lock()
	defer e.rescanMu.Unlock()

	if err := e.build(ctx, mount); err != nil {
		return err
	}
	e.indexer.Rebuild()
	return nil
}

// buildAll builds the given volumes in parallel.
func (e *Enumerator) buildAll(ctx context.Context, mounts []string) error {
	errs := make([]error, len(mounts))
	var wg sync.WaitGroup
	for i, mount := range mounts {
		wg.Add(1)
		go func(i int, mount string) {
			defer wg.Done()
			errs[i] = e.build(ctx, mount)
		}(i, mount)
	}
	wg.Wait()
	return errors.Join(errs...)
}

func (e *Enumerator) build(ctx context.Context, mount string) error {
	start := time.Now()
	builder := fscache.NewBuilder(fscache.BuildOptions{
		Workers:   e.opts.Workers,
		SkipPaths: e.skipPaths(mount),
		SkipNames: e.opts.SkipNames,
		Progress:  e.opts.Progress,
	}, e.logger)

	vc, err := builder.Build(ctx, mount)
	if err != nil {
		return err
	}
	e.state.SetVolume(mount, vc)
	metrics.SetIndexedFilenames(mount, len(vc))
	metrics.ObserveBuild("scan", time.Since(start))
	return nil
}

func (e *Enumerator) watchOptions(mount string) fscache.WatchOptions {
	return fscache.WatchOptions{SkipPaths: e.skipPaths(mount), SkipNames: e.opts.SkipNames}
}

// skipPaths prunes the other indexed mount points nested under mount, and
// the virtual filesystems when mount is the filesystem root.
func (e *Enumerator) skipPaths(mount string) []string {
	var skip []string
	if mount == "/" {
		skip = append(skip, fscache.DefaultSkipPaths...)
	}
	for _, other := range e.mounts {
		if other != mount && nestedUnder(mount, other) {
			skip = append(skip, other)
		}
	}
	return skip
}

func nestedUnder(parent, child string) bool {
	prefix := parent
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	return strings.HasPrefix(child, prefix)
}

func mountPoints(volumes []Volume) []string {
	mounts := make([]string, 0, len(volumes))
	for _, v := range volumes {
		mounts = append(mounts, filepath.Clean(v.MountPoint))
	}
	return mounts
}
