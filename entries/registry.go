// Package entries resolves entry references into stack setup functions.
package entries

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/advdv/bssr"
	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
)

// ErrUnknownEntry is returned when no setup function is registered under an entry name.
var ErrUnknownEntry = errors.New("unknown entry")

// Registry holds setup functions that are compiled into the binary, by name.
type Registry struct {
	mu     sync.RWMutex
	setups map[string]bssr.SetupFunc
}

// NewRegistry inits an empty registry.
func NewRegistry() *Registry {
	return &Registry{setups: map[string]bssr.SetupFunc{}}
}

// Register adds a setup function under name. It panics when name is empty, the setup function is
// nil or the name is already taken.
func (reg *Registry) Register(name string, setup bssr.SetupFunc) {
	if name == "" {
		panic("entries: cannot register an entry without a name")
	}

	if setup == nil {
		panic("entries: cannot register a nil setup function for entry " + name)
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()

	if _, exists := reg.setups[name]; exists {
		panic("entries: entry already registered: " + name)
	}

	reg.setups[name] = setup
}

// Names returns the registered entry names in sorted order.
func (reg *Registry) Names() []string {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	names := lo.Keys(reg.setups)
	slices.Sort(names)

	return names
}

// LoadEntry implements [bssr.EntryLoader].
func (reg *Registry) LoadEntry(_ context.Context, entry string) (bssr.SetupFunc, error) {
	reg.mu.RLock()
	setup, ok := reg.setups[entry]
	reg.mu.RUnlock()

	if !ok {
		return nil, errors.Wrapf(ErrUnknownEntry, "%q (registered: %s)", entry, strings.Join(reg.Names(), ", "))
	}

	return setup, nil
}

var defaultRegistry = NewRegistry()

// Default returns the process-wide registry that [Register] adds to.
func Default() *Registry { return defaultRegistry }

// Register adds a setup function to the default registry, usually from an init function.
func Register(name string, setup bssr.SetupFunc) { defaultRegistry.Register(name, setup) }

var _ bssr.EntryLoader = (*Registry)(nil)
