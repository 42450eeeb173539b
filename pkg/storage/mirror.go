package storage

import (
	"context"

	"github.com/hearthd/hearthd/pkg/state"
)

// Mirror is the write-through composition of a Store and the state engine.
// The store is the source of truth; every successful write is mirrored into
// state under "namespace.key". On a storage failure the mirror key is
// deleted best-effort before the error is surfaced, so the mirror never holds
// a value that was not, at some instant, persisted.
//
// Reads go to the store. ClearNamespace intentionally leaves the mirror
// untouched: the mirror is a hint, not a shadow, and stale entries age out
// by other means.
type Mirror struct {
	store *Store
	state *state.Engine
}

// NewMirror composes a store with a state engine.
func NewMirror(store *Store, engine *state.Engine) *Mirror {
	return &Mirror{store: store, state: engine}
}

// MirrorKey returns the state-engine key for (namespace, key).
func MirrorKey(namespace, key string) string {
	return namespace + "." + key
}

// Get reads from the authoritative store.
func (m *Mirror) Get(ctx context.Context, namespace, key string) (map[string]any, bool, error) {
	return m.store.Get(ctx, namespace, key)
}

// Set writes to the store, then mirrors into state. On storage failure the
// mirror key is removed and the original error returned.
func (m *Mirror) Set(ctx context.Context, namespace, key string, value map[string]any) error {
	if err := m.store.Set(ctx, namespace, key, value); err != nil {
		m.state.Delete(ctx, MirrorKey(namespace, key))
		return err
	}
	m.state.Set(ctx, MirrorKey(namespace, key), value)
	return nil
}

// Delete removes from the store first; the mirror key is only dropped after
// the store delete succeeds.
func (m *Mirror) Delete(ctx context.Context, namespace, key string) error {
	if err := m.store.Delete(ctx, namespace, key); err != nil {
		return err
	}
	m.state.Delete(ctx, MirrorKey(namespace, key))
	return nil
}

// ListKeys reads from the authoritative store.
func (m *Mirror) ListKeys(ctx context.Context, namespace string) ([]string, error) {
	return m.store.ListKeys(ctx, namespace)
}

// ClearNamespace clears the store only. Mirror entries for the namespace are
// left in place.
func (m *Mirror) ClearNamespace(ctx context.Context, namespace string) error {
	return m.store.ClearNamespace(ctx, namespace)
}

// BatchSet writes the batch to the store, then mirrors each record.
func (m *Mirror) BatchSet(ctx context.Context, namespace string, values map[string]map[string]any) error {
	if err := m.store.BatchSet(ctx, namespace, values); err != nil {
		for key := range values {
			m.state.Delete(ctx, MirrorKey(namespace, key))
		}
		return err
	}
	for key, value := range values {
		m.state.Set(ctx, MirrorKey(namespace, key), value)
	}
	return nil
}

// Transaction delegates to the underlying store. Mirroring of transactional
// writes is the caller's concern; the transaction view is storage-only.
func (m *Mirror) Transaction(ctx context.Context, fn func(tx *Store) error) error {
	return m.store.Transaction(ctx, fn)
}

// Ping reports store liveness.
func (m *Mirror) Ping(ctx context.Context) error {
	return m.store.Ping(ctx)
}

// Close closes the underlying store.
func (m *Mirror) Close() error {
	return m.store.Close()
}
