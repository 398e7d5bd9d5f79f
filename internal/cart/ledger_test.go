package cart

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/storefront/internal/model"
)

type recordingWriter struct {
	mu    sync.Mutex
	snaps []model.CartSnapshot
}

func (w *recordingWriter) Submit(s model.CartSnapshot) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.snaps = append(w.snaps, s)
}

func (w *recordingWriter) last(t *testing.T) model.CartSnapshot {
	t.Helper()
	w.mu.Lock()
	defer w.mu.Unlock()
	require.NotEmpty(t, w.snaps)
	return w.snaps[len(w.snaps)-1]
}

type staticLoader struct {
	snap model.CartSnapshot
	ok   bool
	err  error
}

func (s staticLoader) Load(context.Context) (model.CartSnapshot, bool, error) {
	return s.snap, s.ok, s.err
}

func product(id int, price, discount float64) model.Product {
	return model.Product{ID: id, Title: "p", Price: price, DiscountPercentage: discount, Stock: 5, Images: []string{"a.png"}}
}

func assertConsistent(t *testing.T, l *Ledger) {
	t.Helper()
	s := l.Snapshot()
	assert.Equal(t, TotalCount(s.Items), s.TotalCount)
	assert.InDelta(t, TotalPrice(s.Items), s.TotalPrice, 1e-9)
	assert.Equal(t, s.TotalCount, l.TotalCount())
	assert.InDelta(t, s.TotalPrice, l.TotalPrice(), 1e-9)
	seen := map[int]bool{}
	for _, line := range s.Items {
		assert.False(t, seen[line.ID], "duplicate line for %d", line.ID)
		assert.Positive(t, line.Quantity)
		seen[line.ID] = true
	}
}

func TestAddToCartNewLine(t *testing.T) {
	l := New(nil)
	l.AddToCart(product(1, 100, 10))

	items := l.Items()
	require.Len(t, items, 1)
	assert.Equal(t, 1, items[0].ID)
	assert.Equal(t, 1, items[0].Quantity)
	assert.Equal(t, 1, l.TotalCount())
	assert.InDelta(t, 90.0, l.TotalPrice(), 1e-9)
}

func TestAddToCartExistingLineIncrements(t *testing.T) {
	l := New(nil)
	p := product(1, 100, 10)
	l.AddToCart(p)
	l.AddToCart(p)

	items := l.Items()
	require.Len(t, items, 1)
	assert.Equal(t, 2, items[0].Quantity)
	assert.Equal(t, 2, l.TotalCount())
	assert.InDelta(t, 180.0, l.TotalPrice(), 1e-9)
}

func TestAddToCartKeepsInsertionOrder(t *testing.T) {
	l := New(nil)
	l.AddToCart(product(3, 1, 0))
	l.AddToCart(product(1, 1, 0))
	l.AddToCart(product(2, 1, 0))
	l.AddToCart(product(3, 1, 0))

	var ids []int
	for _, it := range l.Items() {
		ids = append(ids, it.ID)
	}
	assert.Equal(t, []int{3, 1, 2}, ids)
}

func TestRemoveFromCartIdempotent(t *testing.T) {
	l := New(nil)
	l.AddToCart(product(1, 10, 0))
	l.AddToCart(product(2, 20, 0))

	l.RemoveFromCart(1)
	once := l.Snapshot()
	l.RemoveFromCart(1)
	twice := l.Snapshot()

	assert.Equal(t, once.Items, twice.Items)
	assert.Equal(t, once.TotalCount, twice.TotalCount)
	assert.Equal(t, once.TotalPrice, twice.TotalPrice)
	assert.Equal(t, once.Revision, twice.Revision, "no-op removal does not commit")
}

func TestUpdateQuantity(t *testing.T) {
	l := New(nil)
	l.AddToCart(product(1, 10, 50))

	l.UpdateQuantity(1, 4)
	q, ok := l.Quantity(1)
	require.True(t, ok)
	assert.Equal(t, 4, q)
	assert.InDelta(t, 20.0, l.TotalPrice(), 1e-9)

	l.UpdateQuantity(99, 5)
	assert.Len(t, l.Items(), 1, "absent id is a no-op")

	l.UpdateQuantity(1, 0)
	_, ok = l.Quantity(1)
	assert.False(t, ok, "zero quantity removes the line")
	assert.Zero(t, l.TotalCount())

	l.AddToCart(product(2, 10, 0))
	l.UpdateQuantity(2, -3)
	assert.Empty(t, l.Items(), "negative quantity removes the line")
}

func TestDecrementOne(t *testing.T) {
	l := New(nil)
	p := product(1, 10, 0)
	l.AddToCart(p)
	l.AddToCart(p)

	assert.True(t, l.DecrementOne(1))
	q, _ := l.Quantity(1)
	assert.Equal(t, 1, q)
	assert.True(t, l.DecrementOne(1))
	_, ok := l.Quantity(1)
	assert.False(t, ok)
	assert.False(t, l.DecrementOne(1))
}

func TestClearCartPersistsEmptyState(t *testing.T) {
	w := &recordingWriter{}
	l := New(w)
	l.AddToCart(product(1, 10, 0))
	l.AddToCart(product(2, 5, 0))

	l.ClearCart()
	assert.Empty(t, l.Items())
	assert.Zero(t, l.TotalCount())
	assert.Zero(t, l.TotalPrice())

	last := w.last(t)
	assert.Empty(t, last.Items)
	assert.Zero(t, last.TotalCount)
	assert.Zero(t, last.TotalPrice)
}

func TestEveryMutationIsSubmittedInOrder(t *testing.T) {
	w := &recordingWriter{}
	l := New(w)
	l.AddToCart(product(1, 10, 0))
	l.AddToCart(product(1, 10, 0))
	l.UpdateQuantity(1, 7)
	l.RemoveFromCart(1)

	require.Len(t, w.snaps, 4)
	for i, s := range w.snaps {
		assert.Equal(t, uint64(i+1), s.Revision)
	}
	assert.Equal(t, 7, w.snaps[2].TotalCount)
	assert.Empty(t, w.snaps[3].Items)
}

func TestItemsAreCopies(t *testing.T) {
	l := New(nil)
	l.AddToCart(product(1, 10, 0))
	items := l.Items()
	items[0].Quantity = 100
	items[0].Images[0] = "mutated"

	again := l.Items()
	assert.Equal(t, 1, again[0].Quantity)
	assert.Equal(t, "a.png", again[0].Images[0])
}

func TestTotalsInvariantUnderRandomOperations(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	l := New(nil)
	for i := 0; i < 2000; i++ {
		id := rng.Intn(8)
		switch rng.Intn(5) {
		case 0, 1:
			l.AddToCart(product(id, float64(rng.Intn(500))+0.99, float64(rng.Intn(100))))
		case 2:
			l.RemoveFromCart(id)
		case 3:
			l.UpdateQuantity(id, rng.Intn(6)-1)
		case 4:
			if rng.Intn(20) == 0 {
				l.ClearCart()
			}
		}
		assertConsistent(t, l)
	}
}

func TestConcurrentMutationsStayConsistent(t *testing.T) {
	l := New(&recordingWriter{})
	var wg sync.WaitGroup
	for g := 0; g < 16; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				l.AddToCart(product(g%4, 10, 0))
				_ = l.TotalPrice()
			}
		}(g)
	}
	wg.Wait()
	assert.Equal(t, 1600, l.TotalCount())
	assert.InDelta(t, 16000.0, l.TotalPrice(), 1e-6)
	assertConsistent(t, l)
}

func TestOpenRehydrates(t *testing.T) {
	snap := model.CartSnapshot{
		Items: []model.CartLine{
			{Product: product(1, 100, 10), Quantity: 2},
			{Product: product(2, 50, 0), Quantity: 0},
			{Product: product(1, 100, 10), Quantity: 1},
		},
		TotalCount: 999,
		TotalPrice: 1,
		Revision:   41,
	}
	w := &recordingWriter{}
	l, err := Open(context.Background(), staticLoader{snap: snap, ok: true}, w)
	require.NoError(t, err)

	items := l.Items()
	require.Len(t, items, 1)
	assert.Equal(t, 3, items[0].Quantity)
	assert.Equal(t, 3, l.TotalCount(), "totals are recomputed, not trusted")
	assert.InDelta(t, 270.0, l.TotalPrice(), 1e-9)
	assert.Empty(t, w.snaps, "rehydration does not write back")

	l.AddToCart(product(2, 50, 0))
	assert.Equal(t, uint64(42), w.last(t).Revision)
}

func TestOpenAbsentAndError(t *testing.T) {
	l, err := Open(context.Background(), staticLoader{}, nil)
	require.NoError(t, err)
	assert.Empty(t, l.Items())

	_, err = Open(context.Background(), staticLoader{err: errors.New("disk on fire")}, nil)
	assert.Error(t, err)
}
