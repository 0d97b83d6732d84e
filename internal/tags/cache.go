// Package tags keeps the user's tags in a bounded LRU cache that is flushed
// to disk in the background.
package tags

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"fsindex/internal/metrics"
	"fsindex/internal/snapshot"
)

// ErrUnknownTag is returned when a path is attached to a tag that does not
// exist.
var ErrUnknownTag = errors.New("tags: unknown tag")

// TagDoc groups paths labelled with one tag and colour.
type TagDoc struct {
	UUID       string   `json:"uuid" cbor:"1,keyasint"`
	FilePaths  []string `json:"file_paths" cbor:"2,keyasint"`
	Identifier string   `json:"identifier" cbor:"3,keyasint"`
	ColorHex   string   `json:"color_hex" cbor:"4,keyasint"`
}

// NewTagDoc returns a doc with a fresh identifier.
func NewTagDoc(tag, path, color string) TagDoc {
	return TagDoc{
		UUID:       uuid.NewString(),
		FilePaths:  []string{path},
		Identifier: tag,
		ColorHex:   color,
	}
}

// entry is one persisted tag. Snapshots list entries least recent first.
type entry struct {
	_    struct{} `cbor:",toarray"`
	Tag  string
	Docs []TagDoc
}

// Store persists the tag cache.
type Store = snapshot.Store[[]entry]

// NewStore returns the lz4-compressed store for the tag snapshot.
func NewStore(path string) *Store {
	return snapshot.New[[]entry](path, snapshot.CompressionLZ4)
}

// Cache is a fixed-capacity LRU of tag -> docs. Inserting into a full cache
// evicts the least recently used tag; Get promotes.
type Cache struct {
	mu       sync.Mutex
	lru      *lru.Cache[string, []TagDoc]
	store    *Store
	ctx      context.Context
	interval time.Duration
	logger   *zap.Logger

	flushOnce sync.Once
}

// New creates an empty cache. The background flusher started by the first
// read lives until ctx is done.
func New(ctx context.Context, capacity int, store *Store, interval time.Duration, logger *zap.Logger) (*Cache, error) {
	l, err := lru.New[string, []TagDoc](capacity)
	if err != nil {
		return nil, fmt.Errorf("tag cache: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		lru:      l,
		store:    store,
		ctx:      ctx,
		interval: interval,
		logger:   logger.Named("tags"),
	}, nil
}

// Load fills the cache from its snapshot. The capacity stays as configured;
// when the snapshot holds more tags only the most recent ones are kept. A
// missing or unreadable snapshot leaves the cache empty.
func (c *Cache) Load() {
	entries, err := c.store.Load()
	switch {
	case errors.Is(err, snapshot.ErrNoSnapshot):
		metrics.RecordSnapshot("tags", "load", "miss")
		return
	case err != nil:
		metrics.RecordSnapshot("tags", "load", "error")
		c.logger.Warn("discarding unreadable tag snapshot", zap.String("path", c.store.Path()), zap.Error(err))
		return
	}

	c.mu.Lock()
	for _, e := range entries {
		c.lru.Add(e.Tag, e.Docs)
	}
	c.mu.Unlock()
	metrics.RecordSnapshot("tags", "load", "ok")
	c.logger.Info("restored tags", zap.Int("stored", len(entries)), zap.Int("kept", c.lru.Len()))
}

// Insert sets the docs of tag.
func (c *Cache) Insert(tag string, docs []TagDoc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Add(tag, docs)
}

// Get returns the docs of tag and marks it most recently used.
func (c *Cache) Get(tag string) ([]TagDoc, bool) {
	c.startFlusher()
	return c.lru.Get(tag)
}

// Tags lists the tag names, least recently used first.
func (c *Cache) Tags() []string {
	c.startFlusher()
	return c.lru.Keys()
}

// AddTag creates tag with no docs. An existing tag keeps its docs.
func (c *Cache) AddTag(tag string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.lru.Get(tag); ok {
		return
	}
	c.lru.Add(tag, []TagDoc{})
}

// AddPath labels path with tag and color.
func (c *Cache) AddPath(tag, path, color string) (TagDoc, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	docs, ok := c.lru.Get(tag)
	if !ok {
		return TagDoc{}, fmt.Errorf("%w: %s", ErrUnknownTag, tag)
	}
	doc := NewTagDoc(tag, path, color)
	updated := make([]TagDoc, 0, len(docs)+1)
	updated = append(updated, docs...)
	c.lru.Add(tag, append(updated, doc))
	return doc, nil
}

// Len returns the number of tags.
func (c *Cache) Len() int {
	return c.lru.Len()
}

// Save writes the snapshot now.
func (c *Cache) Save() error {
	c.mu.Lock()
	keys := c.lru.Keys()
	entries := make([]entry, 0, len(keys))
	for _, k := range keys {
		if docs, ok := c.lru.Peek(k); ok {
			entries = append(entries, entry{Tag: k, Docs: docs})
		}
	}
	c.mu.Unlock()

	n, err := c.store.Save(entries)
	if err != nil {
		metrics.RecordSnapshot("tags", "save", "error")
		return err
	}
	metrics.RecordSnapshot("tags", "save", "ok")
	metrics.SetSnapshotBytes("tags", n)
	return nil
}

func (c *Cache) startFlusher() {
	c.flushOnce.Do(func() {
		go c.flushLoop()
	})
}

func (c *Cache) flushLoop() {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			if err := c.Save(); err != nil {
				c.logger.Error("saving tag snapshot failed", zap.Error(err))
			}
		}
	}
}
