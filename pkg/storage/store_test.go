package storage_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hearthd/hearthd/pkg/kernel/errs"
	"github.com/hearthd/hearthd/pkg/storage"
	"github.com/hearthd/hearthd/pkg/storage/memadapter"
)

func newStore() *storage.Store {
	return storage.NewStore(memadapter.New())
}

func TestStore_SetGetRoundTrip(t *testing.T) {
	s := newStore()
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "ns", "k", map[string]any{"v": 1}))

	got, ok, err := s.Get(ctx, "ns", "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, map[string]any{"v": 1}, got)
}

func TestStore_GetAbsentIsNotAnError(t *testing.T) {
	s := newStore()

	got, ok, err := s.Get(context.Background(), "ns", "missing")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, got)
}

func TestStore_DeleteThenGetAbsent(t *testing.T) {
	s := newStore()
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "ns", "k", map[string]any{"v": 1}))
	require.NoError(t, s.Delete(ctx, "ns", "k"))

	_, ok, err := s.Get(ctx, "ns", "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_EmptyNamespaceRejected(t *testing.T) {
	s := newStore()
	ctx := context.Background()

	err := s.Set(ctx, "", "k", map[string]any{})
	assert.ErrorIs(t, err, errs.ErrInvalidInput)

	_, _, err = s.Get(ctx, "", "k")
	assert.ErrorIs(t, err, errs.ErrInvalidInput)
}

func TestStore_EmptyKeyRejected(t *testing.T) {
	s := newStore()
	err := s.Set(context.Background(), "ns", "", map[string]any{})
	assert.ErrorIs(t, err, errs.ErrInvalidInput)
}

func TestStore_NilValueRejected(t *testing.T) {
	s := newStore()
	err := s.Set(context.Background(), "ns", "k", nil)
	assert.ErrorIs(t, err, errs.ErrInvalidInput)
}

func TestStore_BatchSet(t *testing.T) {
	s := newStore()
	ctx := context.Background()

	err := s.BatchSet(ctx, "ns", map[string]map[string]any{
		"a": {"v": 1},
		"b": {"v": 2},
	})
	require.NoError(t, err)

	keys, err := s.ListKeys(ctx, "ns")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, keys)
}

func TestStore_ClearNamespace(t *testing.T) {
	s := newStore()
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "ns", "k", map[string]any{"v": 1}))
	require.NoError(t, s.ClearNamespace(ctx, "ns"))

	keys, err := s.ListKeys(ctx, "ns")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestStore_AdapterErrorWrapped(t *testing.T) {
	s := storage.NewStore(&failingAdapter{err: errors.New("disk full")})

	err := s.Set(context.Background(), "ns", "k", map[string]any{"v": 1})
	assert.ErrorIs(t, err, errs.ErrAdapterFailure)
	assert.Contains(t, err.Error(), "disk full")
}

// failingAdapter returns a fixed error from every operation.
type failingAdapter struct {
	err error
}

func (f *failingAdapter) Get(context.Context, string, string) (map[string]any, bool, error) {
	return nil, false, f.err
}
func (f *failingAdapter) Set(context.Context, string, string, map[string]any) error { return f.err }
func (f *failingAdapter) Delete(context.Context, string, string) error              { return f.err }
func (f *failingAdapter) ListKeys(context.Context, string) ([]string, error)        { return nil, f.err }
func (f *failingAdapter) ClearNamespace(context.Context, string) error              { return f.err }
func (f *failingAdapter) BatchSet(context.Context, string, map[string]map[string]any) error {
	return f.err
}
func (f *failingAdapter) Transaction(ctx context.Context, fn func(tx storage.Adapter) error) error {
	return f.err
}
func (f *failingAdapter) Close() error                   { return nil }
func (f *failingAdapter) Ping(context.Context) error     { return f.err }
