package fscache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultSkipNames are directory names never descended into.
var DefaultSkipNames = []string{
	"$RECYCLE.BIN", "$Recycle.Bin", "System Volume Information",
	".Trash", ".Trashes", ".Spotlight-V100", ".fseventsd",
}

// DefaultSkipPaths are virtual filesystems that only show up under "/".
var DefaultSkipPaths = []string{"/proc", "/sys", "/dev", "/run"}

// BuildOptions configures a full volume scan.
type BuildOptions struct {
	Workers int
	// SkipPaths are absolute directories pruned from the scan, such as
	// nested mount points cached separately.
	SkipPaths []string
	// SkipNames are base names pruned wherever they appear.
	SkipNames []string
	// Progress, when set, is called once per scanned directory from the
	// worker goroutines.
	Progress func(dirs int)
}

// Builder performs full traversals of a volume.
type Builder struct {
	opts      BuildOptions
	skipPaths map[string]bool
	skipNames map[string]bool
	logger    *zap.Logger
}

// NewBuilder creates a builder.
func NewBuilder(opts BuildOptions, logger *zap.Logger) *Builder {
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Builder{
		opts:      opts,
		skipPaths: make(map[string]bool, len(opts.SkipPaths)),
		skipNames: make(map[string]bool, len(opts.SkipNames)),
		logger:    logger.Named("builder"),
	}
	for _, p := range opts.SkipPaths {
		b.skipPaths[filepath.Clean(p)] = true
	}
	for _, n := range opts.SkipNames {
		b.skipNames[n] = true
	}
	return b
}

type scanned struct {
	name string
	path CachedPath
}

// Build walks every entry reachable under mount with a pool of workers and
// returns the resulting VolumeCache. Unreadable entries are skipped. Symlinks
// are recorded as files and never followed, and each physical directory is
// entered at most once. Only an unusable root or a cancelled ctx fail the
// build.
func (b *Builder) Build(ctx context.Context, mount string) (VolumeCache, error) {
	start := time.Now()
	root := filepath.Clean(mount)
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", mount, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("scan %s: not a directory", mount)
	}

	var visited sync.Map
	visited.Store(dirKey(root, info), struct{}{})

	queue := newWalkQueue(root)
	batches := make([][]scanned, b.opts.Workers)

	var wg sync.WaitGroup
	for i := 0; i < b.opts.Workers; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			batches[slot] = b.work(ctx, queue, &visited)
		}(i)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cache := fold(batches)
	b.logger.Info("volume scan finished",
		zap.String("mount", mount),
		zap.Int("filenames", len(cache)),
		zap.Duration("took", time.Since(start)))
	return cache, nil
}

// work drains the shared directory queue into a worker-local batch.
func (b *Builder) work(ctx context.Context, queue *walkQueue, visited *sync.Map) []scanned {
	var local []scanned
	for {
		dir, ok := queue.pop()
		if !ok {
			return local
		}
		if ctx.Err() == nil {
			local = b.scanDir(dir, queue, visited, local)
			if b.opts.Progress != nil {
				b.opts.Progress(1)
			}
		}
		queue.done()
	}
}

func (b *Builder) scanDir(dir string, queue *walkQueue, visited *sync.Map, local []scanned) []scanned {
	// ReadDir returns what it managed to read alongside the error.
	entries, err := os.ReadDir(dir)
	if err != nil {
		b.logger.Debug("skipping unreadable directory", zap.String("dir", dir), zap.Error(err))
	}

	var subdirs []string
	for _, entry := range entries {
		name := entry.Name()
		path := filepath.Join(dir, name)

		if !entry.IsDir() {
			local = append(local, scanned{name: name, path: NewCachedPath(path, File)})
			continue
		}
		if b.skipNames[name] || b.skipPaths[path] {
			continue
		}
		local = append(local, scanned{name: name, path: NewCachedPath(path, Directory)})

		info, err := entry.Info()
		if err != nil {
			b.logger.Debug("skipping vanished directory", zap.String("dir", path), zap.Error(err))
			continue
		}
		if _, seen := visited.LoadOrStore(dirKey(path, info), struct{}{}); seen {
			continue
		}
		subdirs = append(subdirs, path)
	}
	queue.push(subdirs...)
	return local
}

// fold merges the worker batches into one cache on a single goroutine.
func fold(batches [][]scanned) VolumeCache {
	total := 0
	for _, batch := range batches {
		total += len(batch)
	}
	cache := make(VolumeCache, total/2)
	for _, batch := range batches {
		for _, s := range batch {
			cache[s.name] = append(cache[s.name], s.path)
		}
	}
	return cache
}

// walkQueue is an unbounded work queue that knows when the walk is over:
// nothing queued and no worker still scanning.
type walkQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	dirs   []string
	active int
}

func newWalkQueue(root string) *walkQueue {
	q := &walkQueue{dirs: []string{root}}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *walkQueue) push(dirs ...string) {
	if len(dirs) == 0 {
		return
	}
	q.mu.Lock()
	q.dirs = append(q.dirs, dirs...)
	q.mu.Unlock()
	q.cond.Broadcast()
}

func (q *walkQueue) pop() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.dirs) == 0 {
		if q.active == 0 {
			return "", false
		}
		q.cond.Wait()
	}
	last := len(q.dirs) - 1
	dir := q.dirs[last]
	q.dirs = q.dirs[:last]
	q.active++
	return dir, true
}

func (q *walkQueue) done() {
	q.mu.Lock()
	q.active--
	finished := q.active == 0 && len(q.dirs) == 0
	q.mu.Unlock()
	if finished {
		q.cond.Broadcast()
	}
}
