package plugin

import (
	"fmt"
	"sort"
	"sync"

	"github.com/hearthd/hearthd/pkg/kernel/errs"
)

// Factory constructs a plugin instance. One instance is created per load.
type Factory func() Plugin

var (
	factoryMu sync.RWMutex
	factories = make(map[string]Factory)
)

// RegisterFactory binds a manifest class_path to a compiled-in constructor.
// Plugin packages call it from init() and are pulled in by blank imports, so
// the manifest stays the single source of identity and dependencies while
// the symbol resolution happens at link time.
func RegisterFactory(classPath string, factory Factory) {
	if classPath == "" || factory == nil {
		panic("plugin: RegisterFactory requires a class path and a factory")
	}
	factoryMu.Lock()
	defer factoryMu.Unlock()
	if _, exists := factories[classPath]; exists {
		panic(fmt.Sprintf("plugin: factory %q registered twice", classPath))
	}
	factories[classPath] = factory
}

// lookupFactory resolves a manifest's class_path.
func lookupFactory(classPath string) (Factory, error) {
	factoryMu.RLock()
	defer factoryMu.RUnlock()
	f, ok := factories[classPath]
	if !ok {
		return nil, fmt.Errorf("%w: no factory for class path %q", errs.ErrNotFound, classPath)
	}
	return f, nil
}

// FactoryPaths lists the registered class paths, sorted, for introspection.
func FactoryPaths() []string {
	factoryMu.RLock()
	defer factoryMu.RUnlock()
	paths := make([]string, 0, len(factories))
	for p := range factories {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}
