package params

import (
	"sync"
	"time"

	"arbitrage-bot-go/internal/database"
	"go.uber.org/zap"
)

// Cache is a read-through cache of the numeric tunables stored in the
// parameters table. Consumers read the snapshot directly; a reload replaces
// the whole mapping at once, so readers never observe a half-updated set.
type Cache struct {
	store    *database.Store
	logger   *zap.Logger
	interval time.Duration

	mu         sync.RWMutex
	values     map[string]float64
	lastReload time.Time
}

// NewCache creates a parameter cache that refreshes at most once per interval.
func NewCache(store *database.Store, logger *zap.Logger, interval time.Duration) *Cache {
	return &Cache{
		store:    store,
		logger:   logger,
		interval: interval,
		values:   make(map[string]float64),
	}
}

// Get returns the cached value for name, or the caller-supplied fallback when
// the name is not cached.
func (c *Cache) Get(name string, fallback float64) float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if v, ok := c.values[name]; ok {
		return v
	}
	return fallback
}

// Fetch returns the cached value for name, performing a single synchronous
// store lookup (and caching the result) when the value is not cached. The
// second return is false when the parameter is unknown.
func (c *Cache) Fetch(name string) (float64, bool) {
	c.mu.RLock()
	v, ok := c.values[name]
	c.mu.RUnlock()
	if ok {
		return v, true
	}

	param, err := c.store.GetParameter(name)
	if err != nil {
		c.logger.Error("Failed to fetch parameter", zap.String("name", name), zap.Error(err))
		return 0, false
	}
	if param == nil {
		c.logger.Warn("Parameter not found", zap.String("name", name))
		return 0, false
	}

	c.mu.Lock()
	c.values[param.Name] = param.Value
	c.mu.Unlock()
	return param.Value, true
}

// Reload replaces the entire cached mapping with a fresh snapshot from the
// store. When the fetch fails or returns no rows, the old snapshot stays
// intact and Reload returns false.
func (c *Cache) Reload() bool {
	params, err := c.store.AllParameters()
	if err != nil {
		c.logger.Error("Failed to reload parameters", zap.Error(err))
		return false
	}
	if len(params) == 0 {
		return false
	}

	next := make(map[string]float64, len(params))
	for _, p := range params {
		next[p.Name] = p.Value
	}

	c.mu.Lock()
	c.values = next
	c.lastReload = time.Now()
	c.mu.Unlock()

	c.logger.Debug("Reloaded parameters", zap.Int("count", len(next)))
	return true
}

// MaybeReload calls Reload only when the configured interval has elapsed
// since the last successful reload.
func (c *Cache) MaybeReload() {
	c.mu.RLock()
	due := time.Since(c.lastReload) >= c.interval
	c.mu.RUnlock()
	if due {
		c.Reload()
	}
}

// All returns a copy of the cached mapping.
func (c *Cache) All() map[string]float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]float64, len(c.values))
	for k, v := range c.values {
		out[k] = v
	}
	return out
}

// LastReload returns the time of the last successful reload.
func (c *Cache) LastReload() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastReload
}
