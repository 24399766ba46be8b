package registry

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a lookup names a service that was never
// registered.
var ErrNotFound = errors.New("registry: service not found")

// ErrAlreadyRegistered is returned by Register when the name is already
// taken.
var ErrAlreadyRegistered = errors.New("registry: service already registered")

// Registry is a concurrency-safe map from service name to its live
// state. The insertion set is fixed once the default deployment has
// been registered; Register only rejects duplicate names, it does not
// otherwise bound the set.
type Registry struct {
	mu       sync.RWMutex
	services map[string]*ServiceState
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{services: make(map[string]*ServiceState)}
}

// Register inserts a new ServiceState for cfg with a fresh identity and
// status Stopped. It fails if cfg.Name is already registered.
func (r *Registry) Register(cfg ServiceConfig) (uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.services[cfg.Name]; exists {
		return uuid.Nil, fmt.Errorf("%w: %s", ErrAlreadyRegistered, cfg.Name)
	}

	id := uuid.New()
	r.services[cfg.Name] = &ServiceState{
		Identity: id,
		Config:   cfg,
		Status:   StatusStopped,
	}
	return id, nil
}

// Get returns a snapshot of the named service's state.
func (r *Registry) Get(name string) (ServiceState, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	st, ok := r.services[name]
	if !ok {
		return ServiceState{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return st.Clone(), nil
}

// FindByIdentity returns the service whose identity matches id.
func (r *Registry) FindByIdentity(id uuid.UUID) (ServiceState, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, st := range r.services {
		if st.Identity == id {
			return st.Clone(), nil
		}
	}
	return ServiceState{}, fmt.Errorf("%w: identity %s", ErrNotFound, id)
}

// List returns a snapshot of every registered service, keyed by name.
func (r *Registry) List() map[string]ServiceState {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]ServiceState, len(r.services))
	for name, st := range r.services {
		out[name] = st.Clone()
	}
	return out
}

// Mutate applies fn to the named service's live state under the
// registry's write lock. fn must not retain the pointer beyond its
// call. It is the only way callers outside this package update state
// in place, so that every writer serializes through the same lock.
func (r *Registry) Mutate(name string, fn func(*ServiceState)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.services[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	fn(st)
	return nil
}
