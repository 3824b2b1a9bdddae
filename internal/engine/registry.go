package engine

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Factory builds an engine from the argument that follows the colon in an
// engine reference such as "replay:/tmp/session.rec".
type Factory func(arg string) (Engine, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register makes a factory available under name. Registering the same name
// twice panics.
func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := registry[name]; dup {
		panic("engine: Register called twice for " + name)
	}
	registry[name] = f
}

// Open resolves ref ("name" or "name:arg") to an engine.
func Open(ref string) (Engine, error) {
	name, arg, _ := strings.Cut(ref, ":")
	registryMu.RLock()
	f, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("engine: unknown engine %q (available: %s)", name, strings.Join(Names(), ", "))
	}
	return f(arg)
}

// Names lists the registered engines in sorted order.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
