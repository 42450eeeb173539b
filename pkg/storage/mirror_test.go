package storage_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hearthd/hearthd/pkg/state"
	"github.com/hearthd/hearthd/pkg/storage"
	"github.com/hearthd/hearthd/pkg/storage/memadapter"
)

// flakyAdapter wraps the in-memory adapter and fails Set after failAfter
// successful calls.
type flakyAdapter struct {
	*memadapter.Adapter
	calls     int
	failAfter int
}

func (f *flakyAdapter) Set(ctx context.Context, namespace, key string, value map[string]any) error {
	f.calls++
	if f.calls > f.failAfter {
		return errors.New("write failed")
	}
	return f.Adapter.Set(ctx, namespace, key, value)
}

func TestMirror_WriteThrough(t *testing.T) {
	engine := state.NewEngine()
	m := storage.NewMirror(storage.NewStore(memadapter.New()), engine)
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "ns", "k", map[string]any{"v": 1}))

	v, ok := engine.Get(ctx, "ns.k")
	assert.True(t, ok)
	assert.Equal(t, map[string]any{"v": 1}, v)
}

func TestMirror_RollbackOnStorageFailure(t *testing.T) {
	engine := state.NewEngine()
	adapter := &flakyAdapter{Adapter: memadapter.New(), failAfter: 1}
	m := storage.NewMirror(storage.NewStore(adapter), engine)
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "ns", "k1", map[string]any{"v": 1}))
	err := m.Set(ctx, "ns", "k2", map[string]any{"v": 2})
	require.Error(t, err)

	v, ok := engine.Get(ctx, "ns.k1")
	assert.True(t, ok)
	assert.Equal(t, map[string]any{"v": 1}, v)

	_, ok = engine.Get(ctx, "ns.k2")
	assert.False(t, ok)
}

func TestMirror_DeleteRemovesMirrorKey(t *testing.T) {
	engine := state.NewEngine()
	m := storage.NewMirror(storage.NewStore(memadapter.New()), engine)
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "ns", "k", map[string]any{"v": 1}))
	require.NoError(t, m.Delete(ctx, "ns", "k"))

	assert.False(t, engine.Exists(ctx, "ns.k"))

	_, ok, err := m.Get(ctx, "ns", "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMirror_ClearNamespaceLeavesMirror(t *testing.T) {
	engine := state.NewEngine()
	m := storage.NewMirror(storage.NewStore(memadapter.New()), engine)
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "ns", "k", map[string]any{"v": 1}))
	require.NoError(t, m.ClearNamespace(ctx, "ns"))

	// The store is cleared but the mirror keeps its hint.
	_, ok, err := m.Get(ctx, "ns", "k")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.True(t, engine.Exists(ctx, "ns.k"))
}

func TestMirror_BatchSetMirrorsAll(t *testing.T) {
	engine := state.NewEngine()
	m := storage.NewMirror(storage.NewStore(memadapter.New()), engine)
	ctx := context.Background()

	err := m.BatchSet(ctx, "ns", map[string]map[string]any{
		"a": {"v": 1},
		"b": {"v": 2},
	})
	require.NoError(t, err)

	assert.True(t, engine.Exists(ctx, "ns.a"))
	assert.True(t, engine.Exists(ctx, "ns.b"))
}
