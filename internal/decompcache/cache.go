// Package decompcache memoizes decompilation results per class.
//
// Results are keyed by (container name, class path), so classes with the
// same path in different containers never share an entry. A key is
// computed at most once for the lifetime of the cache: successful source
// text and decompiler failures are both stored, and later requests get the
// stored value back unchanged. Lookup failures (unknown container or class)
// are returned without being stored.
//
// Concurrent requests for a key that is not cached yet share a single
// computation (golang.org/x/sync/singleflight). A caller whose context is
// cancelled stops waiting, but the computation runs to completion and
// still populates the cache.
package decompcache

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/shinji-kodama/classlens/internal/decompiler"
	"github.com/shinji-kodama/classlens/internal/logging"
	"github.com/shinji-kodama/classlens/internal/metrics"
	"github.com/shinji-kodama/classlens/internal/model"
)

// ClassSource resolves the raw bytes of a class of a registered container.
// It fails with model.ErrContainerNotFound or model.ErrClassNotFound.
// registry.Registry is the production implementation.
type ClassSource interface {
	ReadClass(containerName, path string) ([]byte, error)
}

type key struct {
	container string
	path      string
}

// generation identifies the state a computation started from. Reset
// advances epoch for every container, Forget advances container for one.
type generation struct {
	epoch     uint64
	container uint64
}

// flightKey is the singleflight key of k. The generation keeps a request
// made after Reset or Forget from joining a computation started before it.
func (k key) flightKey(g generation) string {
	return k.container + "\x00" + k.path + "\x00" +
		strconv.FormatUint(g.epoch, 10) + "." + strconv.FormatUint(g.container, 10)
}

// result is a cached outcome: text or a *model.DecompileError.
type result struct {
	text string
	err  error
}

// Stats summarizes the cache content.
type Stats struct {
	Entries  int `json:"entries" yaml:"entries"`
	Failures int `json:"failures" yaml:"failures"`
}

// Cache is the decompilation cache. It is safe for concurrent use.
type Cache struct {
	source     ClassSource
	decompiler decompiler.Decompiler
	metrics    *metrics.Metrics
	logger     *zap.Logger

	mu      sync.RWMutex
	entries map[key]result
	epoch   uint64
	// forgotten counts Forget calls per container name.
	forgotten map[string]uint64

	group singleflight.Group
}

// Option configures a Cache.
type Option func(*Cache)

// WithMetrics records hits, misses and decompiler timings.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Cache) { c.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Cache) { c.logger = logging.OrNop(l).Named("decompcache") }
}

// New creates an empty cache reading classes from source and decompiling
// them with d.
func New(source ClassSource, d decompiler.Decompiler, opts ...Option) *Cache {
	c := &Cache{
		source:     source,
		decompiler: d,
		logger:     zap.NewNop(),
		entries:    make(map[key]result),
		forgotten:  make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the decompiled source of path in containerName.
//
// Errors are model.ErrContainerNotFound / model.ErrClassNotFound for
// lookup failures (not cached) and *model.DecompileError for decompiler
// failures (cached). ctx only bounds how long this caller waits.
func (c *Cache) Get(ctx context.Context, containerName, path string) (string, error) {
	k := key{container: containerName, path: path}

	c.mu.RLock()
	r, ok := c.entries[k]
	gen := c.generationOf(k.container)
	c.mu.RUnlock()
	if ok {
		c.metrics.CacheHit()
		return r.text, r.err
	}

	ch := c.group.DoChan(k.flightKey(gen), func() (any, error) {
		return c.compute(ctx, k, gen)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		r := res.Val.(result)
		return r.text, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// generationOf returns the current generation of a container. c.mu must
// be held.
func (c *Cache) generationOf(containerName string) generation {
	return generation{epoch: c.epoch, container: c.forgotten[containerName]}
}

// compute runs on the single goroutine that owns the flight for k.
func (c *Cache) compute(ctx context.Context, k key, gen generation) (result, error) {
	// A flight for k may have finished between the map check and
	// DoChan.
	c.mu.RLock()
	r, ok := c.entries[k]
	c.mu.RUnlock()
	if ok {
		c.metrics.CacheHit()
		return r, nil
	}

	data, err := c.source.ReadClass(k.container, k.path)
	if err != nil {
		return result{}, err
	}

	c.metrics.CacheMiss()
	start := time.Now()
	text, err := c.decompiler.Decompile(context.WithoutCancel(ctx), k.path, data)
	elapsed := time.Since(start)
	c.metrics.Decompiled(elapsed, err)

	r = result{text: text, err: asDecompileError(k, err)}
	if r.err != nil {
		r.text = ""
		c.logger.Warn("decompilation failed",
			zap.String("container", k.container),
			zap.String("class", k.path),
			zap.Error(err),
		)
	} else {
		c.logger.Debug("class decompiled",
			zap.String("container", k.container),
			zap.String("class", k.path),
			zap.Duration("elapsed", elapsed),
		)
	}

	c.mu.Lock()
	if c.generationOf(k.container) == gen {
		c.entries[k] = r
	}
	size := len(c.entries)
	c.mu.Unlock()
	c.metrics.SetCacheEntries(size)

	return r, nil
}

// asDecompileError normalizes a decompiler failure to a
// *model.DecompileError identifying the class.
func asDecompileError(k key, err error) error {
	if err == nil {
		return nil
	}
	var de *model.DecompileError
	if errors.As(err, &de) {
		cp := *de
		cp.Container = k.container
		if cp.Path == "" {
			cp.Path = k.path
		}
		return &cp
	}
	return &model.DecompileError{Container: k.container, Path: k.path, Err: err}
}

// Reset drops every entry. Computations in flight finish but are not
// stored.
func (c *Cache) Reset() {
	c.mu.Lock()
	c.entries = make(map[key]result)
	c.epoch++
	c.mu.Unlock()

	c.metrics.SetCacheEntries(0)
	c.logger.Debug("cache reset")
}

// Forget drops the entries of one container. The registry calls for it
// when the container is evicted, so a later container with the same name
// does not see stale source. Computations in flight for that container
// are not stored; other containers are unaffected.
func (c *Cache) Forget(containerName string) int {
	c.mu.Lock()
	removed := 0
	for k := range c.entries {
		if k.container == containerName {
			delete(c.entries, k)
			removed++
		}
	}
	c.forgotten[containerName]++
	size := len(c.entries)
	c.mu.Unlock()

	c.metrics.SetCacheEntries(size)
	return removed
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stats returns the number of entries and how many of them are failures.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Stats{Entries: len(c.entries)}
	for _, r := range c.entries {
		if r.err != nil {
			s.Failures++
		}
	}
	return s
}
