package store

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/storefront/internal/model"
)

func sampleSnapshot(rev uint64) model.CartSnapshot {
	return model.CartSnapshot{
		Items: []model.CartLine{
			{Product: model.Product{ID: 1, Title: "Phone", Price: 100, DiscountPercentage: 10, Stock: 3, Images: []string{"1.png"}}, Quantity: 2},
			{Product: model.Product{ID: 7, Title: "Case", Price: 9.5}, Quantity: 1},
		},
		TotalCount: 3,
		TotalPrice: 189.5,
		Revision:   rev,
	}
}

func drivers(t *testing.T) map[string]Storage {
	t.Helper()
	dir := t.TempDir()
	out := map[string]Storage{}
	for _, d := range []string{"memory", "file", "sqlite"} {
		st, err := Open(d, dir, DefaultKey)
		require.NoError(t, err, d)
		if c, ok := st.(*SQL); ok {
			t.Cleanup(func() { _ = c.Close() })
		}
		out[d] = st
	}
	return out
}

func TestRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, st := range drivers(t) {
		t.Run(name, func(t *testing.T) {
			_, ok, err := st.Load(ctx)
			require.NoError(t, err)
			assert.False(t, ok, "fresh storage is empty")

			want := sampleSnapshot(1)
			require.NoError(t, st.Save(ctx, want))
			got, ok, err := st.Load(ctx)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, want.Items, got.Items)
			assert.Equal(t, want.TotalCount, got.TotalCount)
			assert.InDelta(t, want.TotalPrice, got.TotalPrice, 1e-9)
			assert.Equal(t, want.Revision, got.Revision)
		})
	}
}

func TestLastWriteWinsByRevision(t *testing.T) {
	ctx := context.Background()
	for name, st := range drivers(t) {
		t.Run(name, func(t *testing.T) {
			newer := sampleSnapshot(5)
			older := model.CartSnapshot{Revision: 4}
			require.NoError(t, st.Save(ctx, newer))
			require.NoError(t, st.Save(ctx, older))
			require.NoError(t, st.Save(ctx, model.CartSnapshot{Revision: 5}))

			got, ok, err := st.Load(ctx)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, uint64(5), got.Revision)
			assert.Len(t, got.Items, 2)

			require.NoError(t, st.Save(ctx, model.CartSnapshot{Revision: 6}))
			got, _, err = st.Load(ctx)
			require.NoError(t, err)
			assert.Empty(t, got.Items)
		})
	}
}

func TestMemoryConcurrentSaves(t *testing.T) {
	st := NewMemory(DefaultKey)
	var wg sync.WaitGroup
	for i := 1; i <= 100; i++ {
		rev := uint64(i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = st.Save(context.Background(), model.CartSnapshot{TotalCount: int(rev), Revision: rev})
		}()
	}
	wg.Wait()
	got, ok, err := st.Load(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 100, got.TotalCount)
}

func TestFileEnvelopeAndNamespace(t *testing.T) {
	dir := t.TempDir()
	f, err := NewFile(dir, "shop-a")
	require.NoError(t, err)
	require.NoError(t, f.Save(context.Background(), sampleSnapshot(2)))

	raw, err := os.ReadFile(f.Path())
	require.NoError(t, err)
	var env map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &env))
	assert.Contains(t, env, "state")
	assert.JSONEq(t, "0", string(env["version"]))

	other, err := NewFile(dir, "shop-b")
	require.NoError(t, err)
	_, ok, err := other.Load(context.Background())
	require.NoError(t, err)
	assert.False(t, ok, "namespaces are isolated")

	reopened, err := NewFile(dir, "shop-a")
	require.NoError(t, err)
	require.NoError(t, reopened.Save(context.Background(), model.CartSnapshot{Revision: 1}))
	got, _, err := reopened.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(2), got.Revision, "a new handle still respects the stored revision")
}

func TestFileCorruptSnapshot(t *testing.T) {
	dir := t.TempDir()
	f, err := NewFile(dir, DefaultKey)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(f.Path(), []byte("{not json"), 0o644))

	_, _, err = f.Load(context.Background())
	assert.Error(t, err)

	require.NoError(t, f.Save(context.Background(), sampleSnapshot(1)), "a corrupt file is overwritten")
	got, ok, err := f.Load(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, got.Items, 2)
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open("redis", t.TempDir(), "")
	assert.ErrorIs(t, err, ErrUnknownDriver)
}
