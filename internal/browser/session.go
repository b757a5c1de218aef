// Package browser is the boundary between the core (registry, namespace
// tree, decompilation cache) and the presentation layers (CLI and HTTP).
//
// A Session owns one instance of each core component for the lifetime of
// a browsing session. It turns load and select events into core calls and
// answers the queries the presentation layers render: the namespace tree
// and the decompiled text of a class.
//
// Load and reset take the session's write lock; selections and queries
// take the read lock. A container is therefore always registered before
// the tree that shows it is built, and no query observes a half-cleared
// session.
package browser

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/shinji-kodama/classlens/internal/archive"
	"github.com/shinji-kodama/classlens/internal/decompcache"
	"github.com/shinji-kodama/classlens/internal/decompiler"
	"github.com/shinji-kodama/classlens/internal/logging"
	"github.com/shinji-kodama/classlens/internal/metrics"
	"github.com/shinji-kodama/classlens/internal/model"
	"github.com/shinji-kodama/classlens/internal/nstree"
	"github.com/shinji-kodama/classlens/internal/registry"
)

// ErrorPlaceholder is the text shown in place of source when a class
// cannot be decompiled.
const ErrorPlaceholder = "Error decompiling class"

// Options configures a Session.
type Options struct {
	// Capacity bounds the number of loaded containers. Zero selects
	// registry.DefaultCapacity.
	Capacity int

	// Decompiler turns class bytes into source. Nil selects the outline
	// backend.
	Decompiler decompiler.Decompiler

	// Metrics is optional.
	Metrics *metrics.Metrics

	// Logger is optional.
	Logger *zap.Logger
}

// Session is one browsing session. It is safe for concurrent use.
type Session struct {
	mu sync.RWMutex

	registry   *registry.Registry
	tree       *nstree.Builder
	cache      *decompcache.Cache
	decompiler decompiler.Decompiler
	metrics    *metrics.Metrics
	logger     *zap.Logger
}

// New creates an empty session.
func New(opts Options) (*Session, error) {
	capacity := opts.Capacity
	if capacity == 0 {
		capacity = registry.DefaultCapacity
	}
	logger := logging.OrNop(opts.Logger)

	reg, err := registry.New(capacity, logger)
	if err != nil {
		return nil, err
	}

	d := opts.Decompiler
	if d == nil {
		d = decompiler.NewOutline()
	}

	return &Session{
		registry: reg,
		tree:     nstree.NewBuilder(),
		cache: decompcache.New(reg, d,
			decompcache.WithMetrics(opts.Metrics),
			decompcache.WithLogger(logger),
		),
		decompiler: d,
		metrics:    opts.Metrics,
		logger:     logger.Named("browser"),
	}, nil
}

// LoadFailure records one archive that could not be loaded.
type LoadFailure struct {
	Source string `json:"source" yaml:"source"`
	Err    error  `json:"-" yaml:"-"`
	// Message is Err as text, for JSON and YAML output.
	Message string `json:"error" yaml:"error"`
}

// LoadReport is the outcome of a load event.
type LoadReport struct {
	// Loaded lists the names of the newly registered containers in
	// argument order.
	Loaded []string `json:"loaded" yaml:"loaded"`

	// Evicted lists containers dropped to stay within capacity.
	Evicted []string `json:"evicted,omitempty" yaml:"evicted,omitempty"`

	// Failures lists archives that could not be opened or registered.
	// Other archives of the same event are unaffected.
	Failures []LoadFailure `json:"failures,omitempty" yaml:"failures,omitempty"`
}

// Err joins the failures into one error, or returns nil.
func (r LoadReport) Err() error {
	errs := make([]error, 0, len(r.Failures))
	for _, f := range r.Failures {
		errs = append(errs, f.Err)
	}
	return errors.Join(errs...)
}

func (r *LoadReport) fail(source string, err error) {
	r.Failures = append(r.Failures, LoadFailure{Source: source, Err: err, Message: err.Error()})
}

// opened is the outcome of opening one archive.
type opened struct {
	source string
	handle *archive.Handle
	err    error
}

// OnContainersLoaded opens the archives at paths and registers them in
// argument order, then rebuilds the namespace tree.
//
// Archives are opened in parallel. A failure to open or register one
// archive is recorded in the report and does not affect the others or the
// containers already loaded.
func (s *Session) OnContainersLoaded(ctx context.Context, paths []string) LoadReport {
	results := make([]opened, len(paths))

	g := new(errgroup.Group)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, p := range paths {
		i, p := i, p
		g.Go(func() error {
			results[i].source = p
			if err := ctx.Err(); err != nil {
				results[i].err = err
				return nil
			}
			results[i].handle, results[i].err = archive.Open(p)
			return nil
		})
	}
	// Goroutines never return errors; failures live in results.
	_ = g.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()

	var report LoadReport
	for _, res := range results {
		if res.err != nil {
			s.metrics.LoadFailed()
			report.fail(res.source, res.err)
			continue
		}
		s.register(&report, res.source, res.handle.Container())
	}
	s.rebuild()

	s.logger.Debug("containers loaded",
		zap.Strings("loaded", report.Loaded),
		zap.Strings("evicted", report.Evicted),
		zap.Int("failures", len(report.Failures)),
	)
	return report
}

// LoadArchive registers an in-memory archive under name, as uploaded
// through the HTTP API, and rebuilds the tree.
func (s *Session) LoadArchive(name string, raw []byte) LoadReport {
	var report LoadReport

	h, err := archive.FromBytes(name, raw)
	if err != nil {
		s.metrics.LoadFailed()
		report.fail(name, err)
		return report
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.register(&report, name, h.Container())
	s.rebuild()
	return report
}

// register adds c to the registry and releases the cache entries of any
// container evicted as a result. Callers hold the write lock.
func (s *Session) register(report *LoadReport, source string, c *model.Container) {
	evicted, err := s.registry.Register(c)
	if err != nil {
		s.metrics.LoadFailed()
		report.fail(source, err)
		return
	}
	report.Loaded = append(report.Loaded, c.Name)

	for _, name := range evicted {
		s.cache.Forget(name)
		report.Evicted = append(report.Evicted, name)
	}
	s.metrics.Evicted(len(evicted))
}

// rebuild rebuilds the whole tree from the registry. Callers hold the
// write lock.
func (s *Session) rebuild() {
	s.tree.Build(s.registry.Containers())
	s.metrics.SetRegistrySize(s.registry.Len(), s.registry.ClassCount())
}

// OnClassSelected handles the selection of a class node and returns its
// source text.
func (s *Session) OnClassSelected(ctx context.Context, containerName, path string) (string, error) {
	s.logger.Debug("class selected",
		zap.String("container", containerName),
		zap.String("class", path),
	)
	return s.DecompiledText(ctx, containerName, path)
}

// DecompiledText returns the cached or freshly computed source of a class.
// See decompcache.Cache.Get for the error contract.
func (s *Session) DecompiledText(ctx context.Context, containerName, path string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cache.Get(ctx, containerName, path)
}

// Render converts a DecompiledText result into what a viewer shows:
// the source, or ErrorPlaceholder for a failed decompilation. Lookup
// failures are returned unchanged since there is no class to show.
func Render(text string, err error) (string, error) {
	if err == nil {
		return text, nil
	}
	if errors.Is(err, model.ErrDecompile) {
		return ErrorPlaceholder, nil
	}
	return "", err
}

// NamespaceTree returns the current tree root. The tree is rebuilt, not
// mutated, on every load, so the returned value must be treated as
// read-only.
func (s *Session) NamespaceTree() *nstree.Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tree.Root()
}

// FilteredTree returns a copy of the tree holding only classes whose
// archive path matches a doublestar pattern.
func (s *Session) FilteredTree(pattern string) (*nstree.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tree.Filter(pattern)
}

// FindNode resolves display segments below the root, e.g.
// ("lib-jar", "com", "acme", "A.class").
func (s *Session) FindNode(segments ...string) *nstree.Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tree.Find(segments...)
}

// Containers returns the loaded containers in registration order.
func (s *Session) Containers() []*model.Container {
	return s.registry.Containers()
}

// Container returns one loaded container.
func (s *Session) Container(name string) (*model.Container, error) {
	c, ok := s.registry.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", model.ErrContainerNotFound, name)
	}
	return c, nil
}

// IsEmpty reports whether no container is loaded.
func (s *Session) IsEmpty() bool {
	return s.registry.IsEmpty()
}

// CacheStats reports the decompilation cache content.
func (s *Session) CacheStats() decompcache.Stats {
	return s.cache.Stats()
}

// Reset unloads every container and clears the tree and the cache, so no
// state leaks into the next load.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.registry.Reset()
	s.tree.Clear()
	s.cache.Reset()
	s.metrics.SetRegistrySize(0, 0)
	s.logger.Debug("session reset")
}

// Close releases the decompiler backend.
func (s *Session) Close() error {
	return decompiler.Close(s.decompiler)
}
