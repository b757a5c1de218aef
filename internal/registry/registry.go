// Package registry owns the set of containers loaded in a browsing session.
//
// A Registry is created once per session and handed to its collaborators
// (tree builder, decompilation cache) by reference. It stores each
// registered container, indexes the container's classes by path for O(1)
// lookup, and caps the number of containers with a bounded.Collection:
// when the cap is exceeded the oldest containers are dropped.
//
// The registry performs no I/O of its own. Archives are opened by the
// archive package before registration; ReadClass only delegates to the
// container's ClassReader.
package registry

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/shinji-kodama/classlens/internal/bounded"
	"github.com/shinji-kodama/classlens/internal/logging"
	"github.com/shinji-kodama/classlens/internal/model"
)

// DefaultCapacity is the number of containers kept when no explicit
// capacity is configured.
const DefaultCapacity = 10

// entry is a registered container together with its class index.
type entry struct {
	container *model.Container
	classes   map[string]model.ClassEntry
}

// Registry is the container registry. It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	order   *bounded.Collection[string]
	entries map[string]*entry
	logger  *zap.Logger
}

// New creates an empty registry holding at most capacity containers.
// A nil logger disables logging.
func New(capacity int, logger *zap.Logger) (*Registry, error) {
	order, err := bounded.New[string](capacity)
	if err != nil {
		return nil, fmt.Errorf("failed to create registry: %w", err)
	}
	return &Registry{
		order:   order,
		entries: make(map[string]*entry),
		logger:  logging.OrNop(logger).Named("registry"),
	}, nil
}

// Register stores c and indexes its classes by path.
//
// It fails with model.ErrDuplicateContainer when a container with the same
// name is already registered; the existing container is left untouched.
// When registration pushes the registry over capacity, the oldest
// containers are removed and their names returned so callers can release
// state derived from them.
func (r *Registry) Register(c *model.Container) ([]string, error) {
	if c == nil || c.Name == "" {
		return nil, fmt.Errorf("cannot register a container without a name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[c.Name]; exists {
		return nil, fmt.Errorf("%w: %s", model.ErrDuplicateContainer, c.Name)
	}

	index := make(map[string]model.ClassEntry, len(c.Classes))
	for _, ce := range c.Classes {
		index[ce.Path] = ce
	}
	r.entries[c.Name] = &entry{container: c, classes: index}

	evicted := r.order.Add(c.Name)
	for _, name := range evicted {
		delete(r.entries, name)
		r.logger.Debug("container evicted", zap.String("container", name))
	}

	r.logger.Debug("container registered",
		zap.String("container", c.Name),
		zap.Int("classes", len(index)),
		zap.Int("size", r.order.Len()),
	)
	return evicted, nil
}

// Lookup returns the container registered under name.
func (r *Registry) Lookup(name string) (*model.Container, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[name]
	if !ok {
		return nil, false
	}
	return e.container, true
}

// Class resolves a class of a registered container. It fails with
// model.ErrContainerNotFound or model.ErrClassNotFound.
func (r *Registry) Class(containerName, path string) (model.ClassEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[containerName]
	if !ok {
		return model.ClassEntry{}, fmt.Errorf("%w: %s", model.ErrContainerNotFound, containerName)
	}
	ce, ok := e.classes[path]
	if !ok {
		return model.ClassEntry{}, fmt.Errorf("%w: %s in %s", model.ErrClassNotFound, path, containerName)
	}
	return ce, nil
}

// ReadClass resolves a class and returns its raw bytes. The bytes are read
// outside the registry lock.
func (r *Registry) ReadClass(containerName, path string) ([]byte, error) {
	r.mu.RLock()
	e, ok := r.entries[containerName]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", model.ErrContainerNotFound, containerName)
	}
	if _, ok := e.classes[path]; !ok {
		return nil, fmt.Errorf("%w: %s in %s", model.ErrClassNotFound, path, containerName)
	}
	return e.container.ReadClass(path)
}

// Containers returns the registered containers in registration order.
func (r *Registry) Containers() []*model.Container {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := r.order.Items()
	out := make([]*model.Container, 0, len(names))
	for _, name := range names {
		out = append(out, r.entries[name].container)
	}
	return out
}

// ClassCount returns the number of classes indexed across all containers.
func (r *Registry) ClassCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, e := range r.entries {
		n += len(e.classes)
	}
	return n
}

// Len returns the number of registered containers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.order.Len()
}

// Cap returns the maximum number of containers.
func (r *Registry) Cap() int {
	return r.order.Cap()
}

// IsEmpty reports whether no container is registered.
func (r *Registry) IsEmpty() bool {
	return r.Len() == 0
}

// Reset removes every container and index.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.order.Clear()
	r.entries = make(map[string]*entry)
	r.logger.Debug("registry reset")
}
