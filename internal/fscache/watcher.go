package fscache

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charlievieth/fastwalk"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"fsindex/internal/metrics"
)

// DefaultRenameWindow is how long a rename's old half waits for its new half.
const DefaultRenameWindow = 250 * time.Millisecond

// Watcher applies OS change notifications for one mount point to the shared
// State. fsnotify watches single directories, so every directory below the
// mount point is registered, and new ones are registered as they appear.
//
// Renames arrive as a Rename event for the old path followed by a Create for
// the new one. The old half is applied at once and opens a pending rename;
// a Create inside the rename window completes it. A half that never gets its
// partner (a move across the watched tree) stays applied on its own until
// the next full rescan.
type Watcher struct {
	state        *State
	mount        string
	fsw          *fsnotify.Watcher
	logger       *zap.Logger
	skipNames    map[string]bool
	skipPaths    map[string]bool
	renameWindow time.Duration
	now          func() time.Time

	mu      sync.Mutex
	pending *pendingRename

	registered    chan struct{}
	watchFailures atomic.Int64
}

type pendingRename struct {
	from string
	at   time.Time
}

// WatchOptions prune the directories a Watcher registers. They take the same
// values as the matching BuildOptions.
type WatchOptions struct {
	SkipPaths []string
	SkipNames []string
}

// NewWatcher creates a watcher for mount. Nothing is watched until Run.
func NewWatcher(state *State, mount string, opts WatchOptions, logger *zap.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	w := &Watcher{
		state:        state,
		mount:        filepath.Clean(mount),
		fsw:          fsw,
		logger:       logger.Named("watcher").With(zap.String("mount", mount)),
		skipNames:    make(map[string]bool, len(opts.SkipNames)),
		skipPaths:    make(map[string]bool, len(opts.SkipPaths)),
		renameWindow: DefaultRenameWindow,
		now:          time.Now,
		registered:   make(chan struct{}),
	}
	for _, n := range opts.SkipNames {
		w.skipNames[n] = true
	}
	for _, p := range opts.SkipPaths {
		w.skipPaths[filepath.Clean(p)] = true
	}
	return w, nil
}

// Run registers the mount point and applies events until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()

	w.register(w.mount, false)
	close(w.registered)
	w.logger.Info("watching volume", zap.Int64("failed_watches", w.watchFailures.Load()))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handle(event)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", zap.Error(err))
		}
	}
}

// Registered is closed once Run has placed its initial watches. Changes
// made after that are seen.
func (w *Watcher) Registered() <-chan struct{} {
	return w.registered
}

// handle translates one notification into cache mutations.
func (w *Watcher) handle(event fsnotify.Event) {
	path := filepath.Clean(event.Name)

	switch {
	case event.Has(fsnotify.Create):
		w.handleCreate(path)
	case event.Has(fsnotify.Remove):
		w.apply("delete", w.state.Delete(w.mount, path))
	case event.Has(fsnotify.Rename):
		w.apply("rename_from", w.state.RenameFrom(w.mount, path))
		w.mu.Lock()
		w.pending = &pendingRename{from: path, at: w.now()}
		w.mu.Unlock()
	}
}

func (w *Watcher) handleCreate(path string) {
	info, err := os.Lstat(path)
	if err != nil {
		// Gone again before we looked; the matching Remove follows.
		return
	}
	fileType := File
	if info.IsDir() {
		fileType = Directory
	}
	if fileType == Directory && w.skipped(path) {
		// Pruned like the builder prunes it: neither cached nor watched.
		w.takePending()
		return
	}

	if from, ok := w.takePending(); ok {
		w.logger.Debug("rename", zap.String("from", from), zap.String("to", path))
		w.apply("rename_to", w.state.RenameTo(w.mount, path, fileType))
	} else {
		w.apply("create", w.state.Create(w.mount, path, fileType))
	}

	if fileType == Directory {
		// Entries created before the watch was in place would otherwise be
		// missed.
		w.register(path, true)
	}
}

// takePending returns the open rename if it is still inside the window.
func (w *Watcher) takePending() (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	p := w.pending
	w.pending = nil
	if p == nil || w.now().Sub(p.at) > w.renameWindow {
		return "", false
	}
	return p.from, true
}

func (w *Watcher) apply(kind string, err error) {
	if err == nil {
		metrics.RecordMutation(kind)
		return
	}
	if errors.Is(err, ErrUnknownMount) {
		metrics.RecordIgnoredMutation(kind)
		w.logger.Debug("ignoring mutation for uncached mount", zap.String("kind", kind), zap.Error(err))
		return
	}
	w.logger.Error("mutation failed", zap.String("kind", kind), zap.Error(err))
}

func (w *Watcher) skipped(dir string) bool {
	return w.skipNames[filepath.Base(dir)] || w.skipPaths[dir]
}

// register adds watches for root and every directory below it. With index
// set, entries found on the way are also recorded in the cache. The walk
// callback runs on several goroutines.
func (w *Watcher) register(root string, index bool) {
	w.watch(root)
	conf := fastwalk.Config{Follow: false}
	err := fastwalk.Walk(&conf, root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || path == root {
			return nil
		}
		if !d.IsDir() {
			if index {
				w.apply("create", w.state.Create(w.mount, path, File))
			}
			return nil
		}
		if w.skipped(path) {
			return filepath.SkipDir
		}
		if index {
			w.apply("create", w.state.Create(w.mount, path, Directory))
		}
		w.watch(path)
		return nil
	})
	if err != nil {
		w.logger.Warn("registering watches failed", zap.String("root", root), zap.Error(err))
	}
}

func (w *Watcher) watch(dir string) {
	if err := w.fsw.Add(dir); err != nil {
		if w.watchFailures.Add(1) == 1 {
			w.logger.Warn("cannot watch directory, later failures are logged at debug",
				zap.String("dir", dir), zap.Error(err))
		} else {
			w.logger.Debug("cannot watch directory", zap.String("dir", dir), zap.Error(err))
		}
	}
}
