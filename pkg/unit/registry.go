package unit

import (
	"errors"
	"sort"
	"sync"
)

// Registry errors.
var (
	ErrUnitExists   = errors.New("unit already registered")
	ErrUnitNotFound = errors.New("unit not registered")
)

// Registry maps topology keys to live units. It is explicit shared
// state: discovery adds units, reconnect replaces them, teardown
// removes them, and operations in between never mutate it. Components
// that need the registry receive it through construction.
type Registry struct {
	mu    sync.RWMutex
	units map[string]*Unit
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{units: make(map[string]*Unit)}
}

// Add registers a unit under its topology key.
// Returns ErrUnitExists if the key is already registered.
func (r *Registry) Add(u *Unit) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := u.Identity().TopologyKey
	if _, exists := r.units[key]; exists {
		return ErrUnitExists
	}
	r.units[key] = u
	return nil
}

// Replace swaps the unit registered under u's topology key and returns
// the previous unit, or nil if the key was free. The caller owns
// closing the returned unit.
func (r *Registry) Replace(u *Unit) *Unit {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := u.Identity().TopologyKey
	prev := r.units[key]
	r.units[key] = u
	return prev
}

// Remove deregisters and returns the unit under a topology key, or nil
// if none is registered.
func (r *Registry) Remove(topologyKey string) *Unit {
	r.mu.Lock()
	defer r.mu.Unlock()

	u := r.units[topologyKey]
	delete(r.units, topologyKey)
	return u
}

// Get returns the unit registered under a topology key.
func (r *Registry) Get(topologyKey string) (*Unit, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, exists := r.units[topologyKey]
	if !exists {
		return nil, ErrUnitNotFound
	}
	return u, nil
}

// ByOrdinal returns the unit holding an ordinal.
func (r *Registry) ByOrdinal(ordinal int) (*Unit, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.units {
		if u.Identity().Ordinal == ordinal {
			return u, nil
		}
	}
	return nil, ErrUnitNotFound
}

// Units returns all registered units, ordinal-sorted.
func (r *Registry) Units() []*Unit {
	r.mu.RLock()
	defer r.mu.RUnlock()

	units := make([]*Unit, 0, len(r.units))
	for _, u := range r.units {
		units = append(units, u)
	}
	sort.Slice(units, func(i, j int) bool {
		return units[i].Identity().Ordinal < units[j].Identity().Ordinal
	})
	return units
}

// Len returns the number of registered units.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.units)
}

// Close tears down every registered unit and empties the registry.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for key, u := range r.units {
		if err := u.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(r.units, key)
	}
	return errors.Join(errs...)
}
