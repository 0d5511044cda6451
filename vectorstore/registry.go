package vectorstore

import (
	"sort"
	"strings"
	"sync"

	eduerrors "github.com/im-zhong/eduagent/pkg/errors"
)

// Factory constructs a Store from a Config. The returned store starts in the
// Disconnected state; callers must Connect before issuing data operations.
type Factory func(cfg Config) (Store, error)

// Registry maps backend names to factories. It is constructed once at process
// start and passed by reference to whatever needs to create stores; there is
// no package-level default instance.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty backend registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register registers a backend factory under the given name.
// Names are case-insensitive; a later registration replaces an earlier one.
func (r *Registry) Register(name string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[strings.ToLower(name)] = factory
}

// Create builds a store for cfg.Backend. An unregistered backend name fails
// with an unknown-backend error naming the requested backend; Create never
// silently returns a nil or default store.
func (r *Registry) Create(cfg Config) (Store, error) {
	r.mu.RLock()
	factory, ok := r.factories[strings.ToLower(cfg.Backend)]
	r.mu.RUnlock()

	if !ok {
		return nil, eduerrors.NewUnknownBackendError(cfg.Backend, r.Supported())
	}
	return factory(cfg)
}

// Supported returns the sorted list of registered backend names.
func (r *Registry) Supported() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsSupported reports whether a backend name is registered.
func (r *Registry) IsSupported(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[strings.ToLower(name)]
	return ok
}
