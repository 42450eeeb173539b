// Package memadapter provides an in-memory storage adapter. It is the
// default backend in development and the adapter used by most tests.
package memadapter

import (
	"context"
	"maps"
	"sync"

	"github.com/hearthd/hearthd/pkg/storage"
)

// Adapter stores records in nested maps guarded by a read/write mutex.
type Adapter struct {
	mu   sync.RWMutex
	data map[string]map[string]map[string]any // namespace -> key -> value
}

// New creates an empty in-memory adapter.
func New() *Adapter {
	return &Adapter{data: make(map[string]map[string]map[string]any)}
}

// Get returns a copy of the stored value so callers cannot mutate the record
// in place.
func (a *Adapter) Get(ctx context.Context, namespace, key string) (map[string]any, bool, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	ns, ok := a.data[namespace]
	if !ok {
		return nil, false, nil
	}
	v, ok := ns[key]
	if !ok {
		return nil, false, nil
	}
	return maps.Clone(v), true, nil
}

// Set stores a copy of value under (namespace, key).
func (a *Adapter) Set(ctx context.Context, namespace, key string, value map[string]any) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	ns, ok := a.data[namespace]
	if !ok {
		ns = make(map[string]map[string]any)
		a.data[namespace] = ns
	}
	ns[key] = maps.Clone(value)
	return nil
}

// Delete removes (namespace, key).
func (a *Adapter) Delete(ctx context.Context, namespace, key string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if ns, ok := a.data[namespace]; ok {
		delete(ns, key)
	}
	return nil
}

// ListKeys returns all keys in a namespace.
func (a *Adapter) ListKeys(ctx context.Context, namespace string) ([]string, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	ns := a.data[namespace]
	keys := make([]string, 0, len(ns))
	for k := range ns {
		keys = append(keys, k)
	}
	return keys, nil
}

// ClearNamespace drops every record in a namespace.
func (a *Adapter) ClearNamespace(ctx context.Context, namespace string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.data, namespace)
	return nil
}

// BatchSet stores all records; in-memory writes cannot partially fail.
func (a *Adapter) BatchSet(ctx context.Context, namespace string, values map[string]map[string]any) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	ns, ok := a.data[namespace]
	if !ok {
		ns = make(map[string]map[string]any)
		a.data[namespace] = ns
	}
	for k, v := range values {
		ns[k] = maps.Clone(v)
	}
	return nil
}

// Transaction runs fn against the adapter itself. The in-memory adapter has
// no rollback; the mutex already serializes individual writes.
func (a *Adapter) Transaction(ctx context.Context, fn func(tx storage.Adapter) error) error {
	return fn(a)
}

// Close is a no-op.
func (a *Adapter) Close() error { return nil }

// Ping always succeeds.
func (a *Adapter) Ping(ctx context.Context) error { return nil }
