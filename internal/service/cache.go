package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"propertychat/internal/model"
)

// Cache defaults
const (
	DefaultCacheTTL         = 5 * time.Minute
	DefaultCacheLoadTimeout = 10 * time.Second
)

const inventoryKey = "inventory"

// PropertySource bulk-loads the available listings
type PropertySource interface {
	ListAvailableProperties(ctx context.Context) ([]model.PropertySnapshot, error)
}

// CacheOptions configures an InventoryCache
type CacheOptions struct {
	TTL         time.Duration
	LoadTimeout time.Duration
}

// CacheStatus describes the current snapshot
type CacheStatus struct {
	Size     int       `json:"size"`
	LoadedAt time.Time `json:"loaded_at"`
	Fresh    bool      `json:"fresh"`
}

// InventoryCache holds an in-memory snapshot of the available listings and
// reloads it from the source once the TTL has elapsed. Concurrent callers of
// an expired cache share a single reload.
type InventoryCache struct {
	source      PropertySource
	ttl         time.Duration
	loadTimeout time.Duration
	logger      *slog.Logger
	now         func() time.Time

	group singleflight.Group

	mu       sync.RWMutex
	snapshot []model.PropertySnapshot
	loadedAt time.Time
	loaded   bool
}

// NewInventoryCache creates a new inventory cache over source
func NewInventoryCache(source PropertySource, opts CacheOptions, logger *slog.Logger) *InventoryCache {
	if opts.TTL <= 0 {
		opts.TTL = DefaultCacheTTL
	}
	if opts.LoadTimeout <= 0 {
		opts.LoadTimeout = DefaultCacheLoadTimeout
	}
	return &InventoryCache{
		source:      source,
		ttl:         opts.TTL,
		loadTimeout: opts.LoadTimeout,
		logger:      logger,
		now:         time.Now,
	}
}

// Get returns the current snapshot, reloading it first when stale.
//
// When the reload fails, or ctx ends while waiting for it, the last good
// snapshot is returned. Without one, Get returns an empty list and
// ErrSourceUnavailable. The returned slice must not be modified.
func (c *InventoryCache) Get(ctx context.Context) ([]model.PropertySnapshot, error) {
	if snapshot, ok := c.fresh(); ok {
		return snapshot, nil
	}

	ch := c.group.DoChan(inventoryKey, func() (any, error) {
		return c.reload()
	})

	select {
	case res := <-ch:
		if res.Err == nil {
			return res.Val.([]model.PropertySnapshot), nil
		}
		return c.stale(res.Err)
	case <-ctx.Done():
		return c.stale(ctx.Err())
	}
}

// Invalidate marks the snapshot stale so the next Get reloads it. The old
// snapshot is kept as a fallback.
func (c *InventoryCache) Invalidate() {
	c.mu.Lock()
	c.loadedAt = time.Time{}
	c.mu.Unlock()
}

// Status reports the snapshot size and age
func (c *InventoryCache) Status() CacheStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return CacheStatus{
		Size:     len(c.snapshot),
		LoadedAt: c.loadedAt,
		Fresh:    c.isFresh(),
	}
}

func (c *InventoryCache) fresh() ([]model.PropertySnapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot, c.isFresh()
}

// isFresh must be called with mu held
func (c *InventoryCache) isFresh() bool {
	return c.loaded && !c.loadedAt.IsZero() && c.now().Sub(c.loadedAt) < c.ttl
}

func (c *InventoryCache) reload() ([]model.PropertySnapshot, error) {
	// A reload that finished while this caller queued makes this one redundant
	if snapshot, ok := c.fresh(); ok {
		return snapshot, nil
	}

	// Detached from the caller so one cancelled request does not fail the
	// others joined on this reload
	ctx, cancel := context.WithTimeout(context.Background(), c.loadTimeout)
	defer cancel()

	start := c.now()
	properties, err := c.source.ListAvailableProperties(ctx)
	if err != nil {
		return nil, err
	}
	if properties == nil {
		properties = []model.PropertySnapshot{}
	}

	c.mu.Lock()
	c.snapshot = properties
	c.loadedAt = c.now()
	c.loaded = true
	c.mu.Unlock()

	c.logger.Info("inventory reloaded",
		"properties", len(properties),
		"took", c.now().Sub(start))

	return properties, nil
}

func (c *InventoryCache) stale(cause error) ([]model.PropertySnapshot, error) {
	c.mu.RLock()
	snapshot, loaded := c.snapshot, c.loaded
	c.mu.RUnlock()

	if loaded {
		c.logger.Warn("serving stale inventory", "properties", len(snapshot), "error", cause)
		return snapshot, nil
	}

	c.logger.Error("inventory unavailable", "error", cause)
	return []model.PropertySnapshot{}, fmt.Errorf("%w: %w", ErrSourceUnavailable, cause)
}
