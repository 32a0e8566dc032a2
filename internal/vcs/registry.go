package vcs

import (
	"fmt"
	"sort"
	"sync"
)

// Constructor creates a VCS bound to the repository containing path.
type Constructor func(path string) (VCS, error)

var (
	registry      = make(map[Type]Constructor)
	registryMutex sync.RWMutex
)

// Register installs a backend constructor. Backends call it from init and
// panic on duplicates.
func Register(t Type, constructor Constructor) {
	registryMutex.Lock()
	defer registryMutex.Unlock()

	if constructor == nil {
		panic(fmt.Sprintf("vcs: Register constructor is nil for type %s", t))
	}
	if _, exists := registry[t]; exists {
		panic(fmt.Sprintf("vcs: Register called twice for type %s", t))
	}
	registry[t] = constructor
}

func getConstructor(t Type) Constructor {
	registryMutex.RLock()
	defer registryMutex.RUnlock()
	return registry[t]
}

// IsRegistered reports whether a backend is available for t.
func IsRegistered(t Type) bool {
	return getConstructor(t) != nil
}

// RegisteredTypes returns the registered backend types in sorted order.
func RegisteredTypes() []Type {
	registryMutex.RLock()
	defer registryMutex.RUnlock()

	types := make([]Type, 0, len(registry))
	for t := range registry {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// unregister removes t. Tests use it to clean up mock backends.
func unregister(t Type) {
	registryMutex.Lock()
	defer registryMutex.Unlock()
	delete(registry, t)
}
