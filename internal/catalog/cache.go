package catalog

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/fairyhunter13/storefront/internal/obs"
)

// ErrFetchCancelled marks a fetch dropped by CancelPending. Fetch never
// returns it: callers fall back to the cached entry or fetch again.
var ErrFetchCancelled = errors.New("catalog: fetch cancelled")

// Entry is one cached value. Entries are treated as immutable: code that
// patches an entry builds a new Data value instead of mutating the old one.
type Entry struct {
	Data        any
	FetchedAt   time.Time
	Invalidated bool
}

// Fetcher loads the value for a key from the remote catalog.
type Fetcher func(ctx context.Context) (any, error)

type slot struct {
	entry    Entry
	accessed time.Time
}

// Cache is a keyed read-through cache with a staleness window and a hard
// eviction horizon.
//
// Each key has a generation. CancelPending bumps it and cancels the fetch in
// flight; a fetch that resolves under an old generation is dropped instead of
// written, so it cannot overwrite entries patched in the meantime.
type Cache struct {
	name         string
	staleTime    time.Duration
	gcTime       time.Duration
	fetchTimeout time.Duration
	now          func() time.Time

	mu      sync.Mutex
	entries map[string]*slot
	gens    map[string]uint64
	cancels map[string]context.CancelFunc
	group   singleflight.Group
}

// CacheOptions configures a Cache.
type CacheOptions struct {
	StaleTime    time.Duration
	GCTime       time.Duration
	FetchTimeout time.Duration
	Now          func() time.Time
}

// NewCache returns an empty cache. name labels metrics and logs.
func NewCache(name string, opts CacheOptions) *Cache {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 10 * time.Second
	}
	return &Cache{
		name:         name,
		staleTime:    opts.StaleTime,
		gcTime:       opts.GCTime,
		fetchTimeout: opts.FetchTimeout,
		now:          opts.Now,
		entries:      make(map[string]*slot),
		gens:         make(map[string]uint64),
		cancels:      make(map[string]context.CancelFunc),
	}
}

func (c *Cache) fresh(e Entry, now time.Time) bool {
	return !e.Invalidated && now.Sub(e.FetchedAt) < c.staleTime
}

// Fetch returns the cached value for key when fresh. Otherwise it fetches,
// sharing one fetch between concurrent callers of the same key.
//
// When the joined fetch is cancelled by CancelPending, callers get the entry
// cached at that point; with no entry cached the fetch is retried under the
// new generation.
func (c *Cache) Fetch(ctx context.Context, key string, fetch Fetcher) (any, error) {
	for {
		v, err := c.fetchOnce(ctx, key, fetch)
		if !errors.Is(err, ErrFetchCancelled) {
			return v, err
		}
		if e, ok := c.Read(key); ok {
			return e.Data, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		obs.Logger.Debug("catalog_fetch_retry", "cache", c.name, "key", key)
	}
}

func (c *Cache) fetchOnce(ctx context.Context, key string, fetch Fetcher) (any, error) {
	c.mu.Lock()
	now := c.now()
	s, ok := c.entries[key]
	if ok {
		s.accessed = now
		if c.fresh(s.entry, now) {
			data := s.entry.Data
			c.mu.Unlock()
			obs.CacheLookups.WithLabelValues(c.name, "hit").Inc()
			return data, nil
		}
		obs.CacheLookups.WithLabelValues(c.name, "stale").Inc()
	} else {
		obs.CacheLookups.WithLabelValues(c.name, "miss").Inc()
	}
	gen := c.gens[key]
	c.mu.Unlock()

	ch := c.group.DoChan(key+"#"+strconv.FormatUint(gen, 10), func() (any, error) {
		return c.run(key, gen, fetch)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		return r.Val, r.Err
	}
}

func (c *Cache) run(key string, gen uint64, fetch Fetcher) (any, error) {
	ctx, cancel := context.WithTimeout(context.Background(), c.fetchTimeout)
	defer cancel()

	c.mu.Lock()
	if c.gens[key] != gen {
		c.mu.Unlock()
		return nil, ErrFetchCancelled
	}
	c.cancels[key] = cancel
	c.mu.Unlock()

	data, err := fetch(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gens[key] != gen {
		obs.Logger.Debug("catalog_fetch_cancelled", "cache", c.name, "key", key)
		return nil, ErrFetchCancelled
	}
	delete(c.cancels, key)
	if err != nil {
		return nil, err
	}
	now := c.now()
	c.entries[key] = &slot{entry: Entry{Data: data, FetchedAt: now}, accessed: now}
	return data, nil
}

// Read returns the entry for key without fetching.
func (c *Cache) Read(key string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.entries[key]
	if !ok {
		return Entry{}, false
	}
	s.accessed = c.now()
	return s.entry, true
}

// Write stores e under key. A zero FetchedAt is set to now.
func (c *Cache) Write(key string, e Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	if e.FetchedAt.IsZero() {
		e.FetchedAt = now
	}
	c.entries[key] = &slot{entry: e, accessed: now}
}

// Update replaces the entry for key with fn's result, atomically. Absent keys
// are left absent. It reports whether an entry was replaced.
func (c *Cache) Update(key string, fn func(Entry) (Entry, bool)) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.entries[key]
	if !ok {
		return false
	}
	next, ok := fn(s.entry)
	if !ok {
		return false
	}
	s.entry = next
	s.accessed = c.now()
	return true
}

// Invalidate marks the entry for key stale so the next Fetch refetches it.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.entries[key]; ok {
		s.entry.Invalidated = true
	}
}

// CancelPending cancels the fetch in flight for key, if any, and makes sure
// its result is never written.
func (c *Cache) CancelPending(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gens[key]++
	if cancel, ok := c.cancels[key]; ok {
		cancel()
		delete(c.cancels, key)
	}
}

// Keys returns the cached and in-flight keys starting with prefix, sorted.
func (c *Cache) Keys(prefix string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	seen := make(map[string]struct{}, len(c.entries)+len(c.cancels))
	for k := range c.entries {
		if strings.HasPrefix(k, prefix) {
			seen[k] = struct{}{}
		}
	}
	for k := range c.cancels {
		if strings.HasPrefix(k, prefix) {
			seen[k] = struct{}{}
		}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Sweep evicts entries not accessed within the gc time and returns how many
// were removed.
func (c *Cache) Sweep(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k, s := range c.entries {
		if now.Sub(s.accessed) >= c.gcTime {
			delete(c.entries, k)
			n++
		}
	}
	if n > 0 {
		obs.Logger.Debug("catalog_cache_swept", "cache", c.name, "evicted", n, "remaining", len(c.entries))
	}
	return n
}

// Run sweeps every interval until ctx is done.
func (c *Cache) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			c.Sweep(c.now())
		}
	}
}
