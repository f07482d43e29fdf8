// Package cache provides the time-bounded snapshot cache for derived
// option-chain views.
package cache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"optionstream/internal/errors"
	"optionstream/internal/models"
)

// BuildFunc computes a fresh view for a chain key.
type BuildFunc func(ctx context.Context) (*models.OptionChainView, error)

// Config holds snapshot cache configuration.
type Config struct {
	// TTL is how long a stored view is served without recomputation.
	TTL time.Duration
	// StaleGraceMultiple bounds, as a multiple of TTL, how far past
	// expiry a stale view may still be served when rebuilding fails.
	StaleGraceMultiple float64
}

// DefaultConfig returns the default cache configuration.
func DefaultConfig() Config {
	return Config{TTL: 30 * time.Second, StaleGraceMultiple: 4}
}

// entry wraps a view with its expiry. Entries are owned exclusively by
// the cache and replaced wholesale, never mutated.
type entry struct {
	view      *models.OptionChainView
	expiresAt time.Time
}

// Stats holds cache counters.
type Stats struct {
	Entries uint64 `json:"entries"`
	Hits    uint64 `json:"hits"`
	Misses  uint64 `json:"misses"`
	Builds  uint64 `json:"builds"`
	Errors  uint64 `json:"errors"`
	Stale   uint64 `json:"stale_served"`
}

// Cache is a TTL cache of option-chain views keyed by symbol+expiry.
// Concurrent callers for the same expired key share one computation
// via single-flight; unrelated keys never contend beyond the map lock.
type Cache struct {
	cfg   Config
	group singleflight.Group

	mu      sync.RWMutex
	entries map[string]entry

	statsMu sync.Mutex
	stats   Stats

	// now is injectable for tests.
	now func() time.Time
}

// New creates a snapshot cache.
func New(cfg Config) *Cache {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultConfig().TTL
	}
	if cfg.StaleGraceMultiple < 1 {
		cfg.StaleGraceMultiple = DefaultConfig().StaleGraceMultiple
	}
	return &Cache{
		cfg:     cfg,
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

// GetOrBuild returns the cached view for key if it is fresh, otherwise
// computes a new one via build. Exactly one caller computes per key;
// concurrent callers await that computation. On build failure any stale
// entry is retained (for GetAllowStale) and the error is surfaced.
func (c *Cache) GetOrBuild(ctx context.Context, key models.ChainKey, build BuildFunc) (*models.OptionChainView, error) {
	k := key.String()

	if view, ok := c.fresh(k); ok {
		c.count(func(s *Stats) { s.Hits++ })
		return view, nil
	}
	c.count(func(s *Stats) { s.Misses++ })

	ch := c.group.DoChan(k, func() (interface{}, error) {
		// A winner may have stored a fresh view between our check and
		// the flight starting.
		if view, ok := c.fresh(k); ok {
			return view, nil
		}

		c.count(func(s *Stats) { s.Builds++ })
		view, err := build(ctx)
		if err != nil {
			c.count(func(s *Stats) { s.Errors++ })
			return nil, err
		}

		c.store(k, view)
		return view, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*models.OptionChainView), nil
	}
}

// GetAllowStale returns the cached view even when expired, as long as
// its age is within the stale grace window. The second return reports
// whether the view is past its TTL.
func (c *Cache) GetAllowStale(key models.ChainKey) (*models.OptionChainView, bool, error) {
	c.mu.RLock()
	e, ok := c.entries[key.String()]
	c.mu.RUnlock()

	if !ok {
		return nil, false, errors.ErrStaleData
	}

	now := c.now()
	if now.Before(e.expiresAt) {
		return e.view, false, nil
	}

	grace := time.Duration(float64(c.cfg.TTL) * c.cfg.StaleGraceMultiple)
	if now.Sub(e.expiresAt) <= grace {
		c.count(func(s *Stats) { s.Stale++ })
		return e.view, true, nil
	}

	return nil, true, errors.ErrStaleData
}

// Get returns the cached view only if fresh.
func (c *Cache) Get(key models.ChainKey) (*models.OptionChainView, bool) {
	return c.freshKey(key)
}

// Invalidate removes the entry for a key.
func (c *Cache) Invalidate(key models.ChainKey) {
	c.mu.Lock()
	delete(c.entries, key.String())
	c.mu.Unlock()
}

// Purge removes every entry whose stale grace has lapsed. Eviction is
// otherwise lazy; this exists for the periodic housekeeping pass.
func (c *Cache) Purge() int {
	now := c.now()
	grace := time.Duration(float64(c.cfg.TTL) * c.cfg.StaleGraceMultiple)

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for k, e := range c.entries {
		if now.Sub(e.expiresAt) > grace {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() Stats {
	c.statsMu.Lock()
	s := c.stats
	c.statsMu.Unlock()

	c.mu.RLock()
	s.Entries = uint64(len(c.entries))
	c.mu.RUnlock()
	return s
}

func (c *Cache) fresh(k string) (*models.OptionChainView, bool) {
	c.mu.RLock()
	e, ok := c.entries[k]
	c.mu.RUnlock()

	if !ok || !c.now().Before(e.expiresAt) {
		return nil, false
	}
	return e.view, true
}

func (c *Cache) freshKey(key models.ChainKey) (*models.OptionChainView, bool) {
	return c.fresh(key.String())
}

// store replaces the entry for k unless the incumbent is newer; the
// per-key view timestamp never goes backwards.
func (c *Cache) store(k string, view *models.OptionChainView) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[k]; ok && e.view.ComputedAt.After(view.ComputedAt) {
		return
	}
	c.entries[k] = entry{view: view, expiresAt: c.now().Add(c.cfg.TTL)}
}

func (c *Cache) count(fn func(*Stats)) {
	c.statsMu.Lock()
	fn(&c.stats)
	c.statsMu.Unlock()
}
