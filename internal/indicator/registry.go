package indicator

import (
	"fmt"
	"sort"
	"sync"
)

// Factory builds a fresh Indicator of one type.
type Factory func() Indicator

// Registry maps indicator type ids to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty indicator registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory, 16)}
}

// Register adds a factory under the id reported by a prototype instance.
func (r *Registry) Register(f Factory) error {
	id := f().Meta().ID
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.factories[id]; dup {
		return fmt.Errorf("indicator: %q already registered", id)
	}
	r.factories[id] = f
	return nil
}

// Create instantiates the indicator type with the given id.
func (r *Registry) Create(id string) (Indicator, error) {
	r.mu.RLock()
	f, ok := r.factories[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("indicator: unknown indicator %q", id)
	}
	return f(), nil
}

// List returns the metadata of all registered indicator types, sorted by id.
func (r *Registry) List() []Meta {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Meta, 0, len(r.factories))
	for _, f := range r.factories {
		out = append(out, f().Meta())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Builtins returns a registry preloaded with every built-in indicator.
func Builtins() *Registry {
	r := NewRegistry()
	for _, f := range []Factory{
		func() Indicator { return &SMA{} },
		func() Indicator { return &TRAMA{} },
		func() Indicator { return &Volume{} },
		func() Indicator { return &CVD{} },
		func() Indicator { return &Absorption{} },
		func() Indicator { return &OrderBlock{} },
		func() Indicator { return &SMC{} },
		func() Indicator { return &EchoForecast{} },
		func() Indicator { return &Bookmap{} },
	} {
		if err := r.Register(f); err != nil {
			panic(err)
		}
	}
	return r
}
