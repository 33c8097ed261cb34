package component

import (
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
)

/*
Component Registry

Slots reference components by name ("testComponent/test.js", "core/list").
The registry maps those names to units known at startup, either
self-registered from init() (built-ins) or discovered from the components
directory (see Discover). Nothing is loaded by path at request time.

Lookup normalisation:
  - exact name first ("core/list")
  - then the name without its extension ("testComponent/test.js" ->
    "testComponent/test", "card.comp" -> "card")

Thread Safety:
  - Register takes the write lock; Lookup / Names only read. A registry is
    built once at startup and read by every request.
*/

// Registry holds the components available to the resolver.
type Registry struct {
	mu    sync.RWMutex
	units map[string]Unit
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{units: make(map[string]Unit)}
}

var (
	globalMu    sync.Mutex
	globalUnits []Unit
)

// RegisterGlobal records a unit for every registry built with
// GetGlobalRegistry. Built-in components call it from init().
func RegisterGlobal(unit Unit) {
	if unit == nil {
		return
	}
	globalMu.Lock()
	globalUnits = append(globalUnits, unit)
	globalMu.Unlock()
}

// GetRegisteredUnits returns a copy of the self-registered units.
func GetRegisteredUnits() []Unit {
	globalMu.Lock()
	defer globalMu.Unlock()
	out := make([]Unit, len(globalUnits))
	copy(out, globalUnits)
	return out
}

// GetGlobalRegistry builds a registry from every self-registered unit. Each
// call returns a fresh snapshot.
func GetGlobalRegistry() *Registry {
	reg := NewRegistry()
	for _, u := range GetRegisteredUnits() {
		// built-ins have distinct names; a duplicate would be a programming error
		_ = reg.Register(u)
	}
	return reg
}

// Register adds a unit. Registering two units under the same name fails.
func (r *Registry) Register(unit Unit) error {
	if unit == nil {
		return fmt.Errorf("registering nil component")
	}
	name := unit.Name()
	if name == "" {
		return fmt.Errorf("registering component %T with an empty name", unit)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.units[name]; exists {
		return fmt.Errorf("component %s already registered", name)
	}
	r.units[name] = unit
	return nil
}

// Lookup returns the unit a content reference points to. The error wraps
// ErrNotFound when nothing matches.
func (r *Registry) Lookup(ref string) (Unit, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if u, ok := r.units[ref]; ok {
		return u, nil
	}
	if ext := path.Ext(ref); ext != "" {
		if u, ok := r.units[strings.TrimSuffix(ref, ext)]; ok {
			return u, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
}

// Names returns the registered names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.units))
	for name := range r.units {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of registered units.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.units)
}
