// Package cart implements the cart ledger: line items in insertion order with
// totals recomputed eagerly on every mutation.
package cart

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/fairyhunter13/storefront/internal/model"
	"github.com/fairyhunter13/storefront/internal/obs"
)

// Writer receives a snapshot after every mutation. Submit must not block.
type Writer interface {
	Submit(s model.CartSnapshot)
}

// Loader returns the last persisted snapshot, if any.
type Loader interface {
	Load(ctx context.Context) (model.CartSnapshot, bool, error)
}

// Ledger owns the cart lines and their derived totals.
//
// A mutation and the recompute of totalCount and totalPrice happen under one
// lock, so readers never observe totals that disagree with the lines.
type Ledger struct {
	mu         sync.RWMutex
	items      []model.CartLine
	totalCount int
	totalPrice float64
	revision   uint64
	w          Writer
}

// New returns an empty ledger. A nil writer disables persistence.
func New(w Writer) *Ledger {
	return &Ledger{w: w}
}

// Open returns a ledger rehydrated from the loader's last snapshot.
// An absent snapshot yields an empty ledger.
func Open(ctx context.Context, ld Loader, w Writer) (*Ledger, error) {
	l := New(w)
	if ld == nil {
		return l, nil
	}
	snap, ok, err := ld.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load cart snapshot: %w", err)
	}
	if ok {
		l.restore(snap)
		obs.Logger.Info("cart_rehydrated", "lines", len(l.items), "total_count", l.totalCount, "revision", l.revision)
	}
	return l, nil
}

// restore replaces the ledger contents with a persisted snapshot. Totals are
// recomputed from the lines; lines with a non-positive quantity are dropped and
// duplicate ids are merged.
func (l *Ledger) restore(s model.CartSnapshot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	items := make([]model.CartLine, 0, len(s.Items))
	for _, line := range s.Items {
		if line.Quantity <= 0 {
			continue
		}
		if i := indexOf(items, line.ID); i >= 0 {
			items[i].Quantity += line.Quantity
			continue
		}
		items = append(items, cloneLine(line))
	}
	l.items = items
	l.revision = s.Revision
	l.recompute()
}

// AddToCart increments the product's line by one, or appends a new line with
// quantity 1.
func (l *Ledger) AddToCart(p model.Product) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if i := indexOf(l.items, p.ID); i >= 0 {
		l.items[i].Quantity++
	} else {
		l.items = append(l.items, model.CartLine{Product: cloneProduct(p), Quantity: 1})
	}
	l.commit("add")
	obs.Logger.Debug("cart_line_added", "product_id", p.ID, "total_count", l.totalCount)
}

// RemoveFromCart removes the line for id. Absent ids are a no-op.
func (l *Ledger) RemoveFromCart(id int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.removeLocked(id)
}

func (l *Ledger) removeLocked(id int) {
	i := indexOf(l.items, id)
	if i < 0 {
		return
	}
	l.items = slices.Delete(l.items, i, i+1)
	l.commit("remove")
	obs.Logger.Debug("cart_line_removed", "product_id", id, "total_count", l.totalCount)
}

// UpdateQuantity sets the quantity of the line for id. A quantity of zero or
// less removes the line; absent ids are a no-op.
func (l *Ledger) UpdateQuantity(id, quantity int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if quantity <= 0 {
		l.removeLocked(id)
		return
	}
	i := indexOf(l.items, id)
	if i < 0 {
		return
	}
	l.items[i].Quantity = quantity
	l.commit("update_quantity")
}

// DecrementOne removes one unit of the line for id, dropping the line when it
// reaches zero. It reports whether a line was present.
func (l *Ledger) DecrementOne(id int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	i := indexOf(l.items, id)
	if i < 0 {
		return false
	}
	if l.items[i].Quantity <= 1 {
		l.removeLocked(id)
		return true
	}
	l.items[i].Quantity--
	l.commit("decrement")
	return true
}

// ClearCart empties the ledger.
func (l *Ledger) ClearCart() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.items = nil
	l.commit("clear")
}

// Items returns a copy of the lines in insertion order.
func (l *Ledger) Items() []model.CartLine {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return cloneLines(l.items)
}

// TotalCount returns the sum of line quantities.
func (l *Ledger) TotalCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.totalCount
}

// TotalPrice returns the sum of discounted line prices.
func (l *Ledger) TotalPrice() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.totalPrice
}

// Quantity returns the quantity of the line for id.
func (l *Ledger) Quantity(id int) (int, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if i := indexOf(l.items, id); i >= 0 {
		return l.items[i].Quantity, true
	}
	return 0, false
}

// Snapshot returns lines and totals read atomically.
func (l *Ledger) Snapshot() model.CartSnapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.snapshotLocked()
}

func (l *Ledger) snapshotLocked() model.CartSnapshot {
	return model.CartSnapshot{
		Items:      cloneLines(l.items),
		TotalCount: l.totalCount,
		TotalPrice: l.totalPrice,
		Revision:   l.revision,
	}
}

// commit recomputes totals, bumps the revision and hands the snapshot to the
// writer. Called with mu held so writes reach the writer in mutation order.
func (l *Ledger) commit(op string) {
	l.recompute()
	l.revision++
	obs.CartMutations.WithLabelValues(op).Inc()
	if l.w != nil {
		l.w.Submit(l.snapshotLocked())
	}
}

func (l *Ledger) recompute() {
	l.totalCount = TotalCount(l.items)
	l.totalPrice = TotalPrice(l.items)
}

func indexOf(items []model.CartLine, id int) int {
	return slices.IndexFunc(items, func(l model.CartLine) bool { return l.ID == id })
}

func cloneProduct(p model.Product) model.Product {
	p.Images = slices.Clone(p.Images)
	return p
}

func cloneLine(l model.CartLine) model.CartLine {
	l.Product = cloneProduct(l.Product)
	return l
}

func cloneLines(items []model.CartLine) []model.CartLine {
	out := make([]model.CartLine, len(items))
	for i, l := range items {
		out[i] = cloneLine(l)
	}
	return out
}
