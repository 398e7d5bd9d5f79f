// Package optimistic applies add-to-cart speculatively to the cart and the
// catalog cache, confirms it remotely, and compensates when confirmation fails.
package optimistic

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/fairyhunter13/storefront/internal/catalog"
	"github.com/fairyhunter13/storefront/internal/config"
	"github.com/fairyhunter13/storefront/internal/model"
	"github.com/fairyhunter13/storefront/internal/obs"
)

// Ledger is the part of the cart the coordinator mutates.
type Ledger interface {
	AddToCart(p model.Product)
	RemoveFromCart(id int)
	DecrementOne(id int) bool
}

// Cache is the catalog cache the coordinator patches. Listing entries hold
// model.ProductPage and product entries hold model.Product.
type Cache interface {
	Read(key string) (catalog.Entry, bool)
	Update(key string, fn func(catalog.Entry) (catalog.Entry, bool)) bool
	Invalidate(key string)
	CancelPending(key string)
	Keys(prefix string) []string
}

// Options configures a Coordinator.
type Options struct {
	// RollbackMode is config.RollbackLine (default) or config.RollbackUnit.
	RollbackMode string
	// ConfirmTimeout bounds each remote confirmation; zero means no bound
	// beyond the confirmer's own.
	ConfirmTimeout time.Duration
}

// Coordinator runs optimistic add-to-cart mutations.
type Coordinator struct {
	ledger  Ledger
	cache   Cache
	confirm Confirmer
	opts    Options

	// mu serializes the synchronous phases so each invocation sees and
	// patches the cache as one step.
	mu       sync.Mutex
	wg       sync.WaitGroup
	inflight atomic.Int64
}

// New returns a Coordinator.
func New(l Ledger, c Cache, confirm Confirmer, opts Options) *Coordinator {
	if opts.RollbackMode == "" {
		opts.RollbackMode = config.RollbackLine
	}
	return &Coordinator{ledger: l, cache: c, confirm: confirm, opts: opts}
}

// Mutation tracks one optimistic add until it settles.
type Mutation struct {
	ID        uuid.UUID
	ProductID int

	done       chan struct{}
	err        error
	rolledBack bool
}

// Done is closed once the mutation has settled.
func (m *Mutation) Done() <-chan struct{} { return m.done }

// Wait blocks until the mutation settles or ctx is done.
func (m *Mutation) Wait(ctx context.Context) error {
	select {
	case <-m.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err returns the confirmation error after settlement, nil on success.
func (m *Mutation) Err() error {
	select {
	case <-m.done:
		return m.err
	default:
		return nil
	}
}

// RolledBack reports whether the mutation was compensated.
func (m *Mutation) RolledBack() bool {
	select {
	case <-m.done:
		return m.rolledBack
	default:
		return false
	}
}

// Settled reports whether the mutation has settled.
func (m *Mutation) Settled() bool {
	select {
	case <-m.done:
		return true
	default:
		return false
	}
}

// snapshot holds the cache entries an invocation is about to patch, captured
// before patching. It lives until the invocation settles.
type snapshot map[string]catalog.Entry

// AddToCart adds p to the ledger, patches cached stock for p, and returns
// before the remote confirmation completes. Confirmation failures are not
// returned: they roll the change back and are reported on the Mutation.
func (c *Coordinator) AddToCart(ctx context.Context, p model.Product) *Mutation {
	m := &Mutation{ID: uuid.New(), ProductID: p.ID, done: make(chan struct{})}

	c.mu.Lock()
	c.ledger.AddToCart(p)
	snap := c.capture(p.ID)
	for _, k := range c.targets(p.ID) {
		c.cache.CancelPending(k)
	}
	patched := c.patch(p.ID)
	c.mu.Unlock()

	obs.Logger.Info("optimistic_applied", "mutation_id", m.ID.String(), "product_id", p.ID, "patched_entries", patched)

	c.inflight.Add(1)
	c.wg.Add(1)
	go c.settle(context.WithoutCancel(ctx), m, p, snap)
	return m
}

// targets lists the listing keys plus the product key for id.
func (c *Coordinator) targets(id int) []string {
	return append(c.cache.Keys(catalog.ListPrefix), catalog.ProductKey(id))
}

func (c *Coordinator) capture(id int) snapshot {
	snap := snapshot{}
	for _, k := range c.targets(id) {
		if e, ok := c.cache.Read(k); ok && holds(e, id) {
			snap[k] = e
		}
	}
	return snap
}

func (c *Coordinator) patch(id int) int {
	n := 0
	for _, k := range c.targets(id) {
		if c.cache.Update(k, func(e catalog.Entry) (catalog.Entry, bool) {
			return withStock(e, id, func(stock int) int { return max(0, stock-1) })
		}) {
			n++
		}
	}
	return n
}

// restore puts the snapshotted stock of id back into entries that still
// carry the speculative patch. Entries refetched since are left alone.
func (c *Coordinator) restore(id int, snap snapshot) {
	for k, prev := range snap {
		prevStock, ok := stockOf(prev, id)
		if !ok {
			continue
		}
		c.cache.Update(k, func(e catalog.Entry) (catalog.Entry, bool) {
			if !e.FetchedAt.Equal(prev.FetchedAt) {
				return e, false
			}
			return withStock(e, id, func(int) int { return prevStock })
		})
	}
}

func (c *Coordinator) settle(ctx context.Context, m *Mutation, p model.Product, snap snapshot) {
	defer c.wg.Done()
	defer c.inflight.Add(-1)
	defer close(m.done)

	if c.opts.ConfirmTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.ConfirmTimeout)
		defer cancel()
	}
	err := c.confirm.Confirm(ctx, p)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.restore(p.ID, snap)
		if c.opts.RollbackMode == config.RollbackUnit {
			c.ledger.DecrementOne(p.ID)
		} else {
			c.ledger.RemoveFromCart(p.ID)
		}
		m.err, m.rolledBack = err, true
		obs.OptimisticMutations.WithLabelValues("rolled_back").Inc()
		obs.Logger.Warn("optimistic_rollback", "mutation_id", m.ID.String(), "product_id", p.ID, "rollback_mode", c.opts.RollbackMode, "error", err)
	} else {
		obs.OptimisticMutations.WithLabelValues("confirmed").Inc()
		obs.Logger.Info("optimistic_confirmed", "mutation_id", m.ID.String(), "product_id", p.ID)
	}
	for _, k := range c.targets(p.ID) {
		c.cache.Invalidate(k)
	}
}

// InFlight returns the number of unsettled mutations.
func (c *Coordinator) InFlight() int { return int(c.inflight.Load()) }

// DrainUntil blocks until every mutation has settled or ctx is done.
func (c *Coordinator) DrainUntil(ctx context.Context) bool {
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}

func holds(e catalog.Entry, id int) bool {
	_, ok := stockOf(e, id)
	return ok
}

func stockOf(e catalog.Entry, id int) (int, bool) {
	switch v := e.Data.(type) {
	case model.ProductPage:
		if i := slices.IndexFunc(v.Products, func(p model.Product) bool { return p.ID == id }); i >= 0 {
			return v.Products[i].Stock, true
		}
	case model.Product:
		if v.ID == id {
			return v.Stock, true
		}
	}
	return 0, false
}

// withStock returns a copy of e with the stock of id replaced by fn(stock).
// The entry passed in is never modified.
func withStock(e catalog.Entry, id int, fn func(int) int) (catalog.Entry, bool) {
	switch v := e.Data.(type) {
	case model.ProductPage:
		i := slices.IndexFunc(v.Products, func(p model.Product) bool { return p.ID == id })
		if i < 0 {
			return e, false
		}
		v.Products = slices.Clone(v.Products)
		v.Products[i].Stock = fn(v.Products[i].Stock)
		e.Data = v
		return e, true
	case model.Product:
		if v.ID != id {
			return e, false
		}
		v.Stock = fn(v.Stock)
		e.Data = v
		return e, true
	}
	return e, false
}
