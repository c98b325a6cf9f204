package criteria

import (
	"errors"
	"fmt"
	"sync"

	"hypcert/internal/certify"
	"hypcert/internal/logging"
)

// Registry errors.
var (
	// ErrUnknownCriterion is returned when a name is not registered.
	ErrUnknownCriterion = errors.New("unknown criterion")

	// ErrDuplicateCriterion is returned when registering a name twice.
	ErrDuplicateCriterion = errors.New("criterion already registered")

	// ErrEmptyName is returned for a criterion without a name.
	ErrEmptyName = errors.New("criterion name cannot be empty")
)

// Registry holds criteria by name in registration order. It is safe for
// concurrent use.
type Registry struct {
	mu     sync.RWMutex
	order  []certify.Criterion
	byName map[string]certify.Criterion
}

// NewRegistry returns a registry holding cs.
func NewRegistry(cs ...certify.Criterion) (*Registry, error) {
	r := &Registry{byName: make(map[string]certify.Criterion)}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// DefaultRegistry returns a registry of the built-in criteria.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(Default()...)
	if err != nil {
		panic(fmt.Sprintf("built-in criteria: %v", err))
	}
	return r
}

// Register appends c. Names must be unique.
func (r *Registry) Register(c certify.Criterion) error {
	name := c.Describe().Name
	if name == "" {
		return ErrEmptyName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateCriterion, name)
	}
	r.byName[name] = c
	r.order = append(r.order, c)
	logging.CriteriaDebug("Registered criterion: %s (tier=%s)", name, c.Describe().Tier)
	return nil
}

// Get returns the criterion called name.
func (r *Registry) Get(name string) (certify.Criterion, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byName[name]
	return c, ok
}

// Names returns the registered names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.order))
	for i, c := range r.order {
		names[i] = c.Describe().Name
	}
	return names
}

// Count returns the number of registered criteria.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// All returns the criteria in registration order.
func (r *Registry) All() []certify.Criterion {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]certify.Criterion, len(r.order))
	copy(out, r.order)
	return out
}

// ByTier returns the criteria of one tier in registration order.
func (r *Registry) ByTier(tier certify.Tier) []certify.Criterion {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []certify.Criterion
	for _, c := range r.order {
		if c.Describe().Tier == tier {
			out = append(out, c)
		}
	}
	return out
}

// Without returns the criteria in registration order minus the skipped
// names. Every skipped name must be registered.
func (r *Registry) Without(skip ...string) ([]certify.Criterion, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	drop := make(map[string]bool, len(skip))
	for _, name := range skip {
		if _, ok := r.byName[name]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownCriterion, name)
		}
		drop[name] = true
	}
	out := make([]certify.Criterion, 0, len(r.order))
	for _, c := range r.order {
		if !drop[c.Describe().Name] {
			out = append(out, c)
		}
	}
	return out, nil
}
