// Package cache implements the bridge's two-tier cache (C4): an in-process
// O(1) LRU (L1) in front of an optional Redis tier (L2), with
// singleflight-coalesced misses. The L1 doubly-linked-list eviction is
// carried over from core/service/common/worker_cache_l1.go; the L1-then-L2
// layering follows that file's HybridCache. Unlike the teacher's cache,
// this one has no knowledge of email bodies or connection ids — it is a
// generic byte-value cache that the handlers' three logical namespaces
// (folders, summaries, full emails) key into.
package cache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"bridgify/core/port/out"
)

// Config configures sizing and the soft eviction budget.
type Config struct {
	MaxItems        int
	ByteBudget      int64
	CleanupInterval time.Duration
	EvictToRatio    float64 // purge down to this fraction of ByteBudget
}

func DefaultConfig() Config {
	return Config{
		MaxItems:        10000,
		ByteBudget:      64 << 20, // 64MiB
		CleanupInterval: 30 * time.Second,
		EvictToRatio:    0.8,
	}
}

type entry struct {
	key       string
	value     []byte
	expiresAt time.Time
	size      int
}

// Cache is the two-tier cache. A nil l2 means L1-only operation.
type Cache struct {
	cfg Config
	l2  out.Cache

	mu        sync.Mutex
	data      map[string]*list.Element
	order     *list.List // front = most recently used
	totalSize int64

	group singleflight.Group

	stopCh chan struct{}
}

func New(cfg Config, l2 out.Cache) *Cache {
	c := &Cache{
		cfg:    cfg,
		l2:     l2,
		data:   make(map[string]*list.Element),
		order:  list.New(),
		stopCh: make(chan struct{}),
	}
	go c.cleanupLoop()
	return c
}

// Get checks L1, then L2 if configured. A hit in L2 is written back to L1.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool) {
	if v, ok := c.getL1(key); ok {
		return v, true
	}
	if c.l2 == nil {
		return nil, false
	}

	data, err := c.l2.Get(ctx, key)
	if err != nil || data == nil {
		return nil, false
	}

	ttl, _ := c.l2.TTL(ctx, key)
	if ttl <= 0 {
		ttl = time.Minute
	}
	c.setL1(key, data, ttl)
	return data, true
}

// GetOrLoad coalesces concurrent misses for the same key via singleflight:
// exactly one loader call runs; other callers await its result. Failures
// are not cached — only successes populate the cache.
func (c *Cache) GetOrLoad(ctx context.Context, key string, ttl time.Duration, load func() ([]byte, error)) ([]byte, error) {
	if v, ok := c.Get(ctx, key); ok {
		return v, nil
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		data, err := load()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, key, data, ttl)
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// Set writes through L1 and, if configured, L2.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	c.setL1(key, value, ttl)
	if c.l2 != nil {
		_ = c.l2.Set(ctx, key, value, ttl)
	}
}

// Delete removes a key from both tiers.
func (c *Cache) Delete(ctx context.Context, key string) {
	c.mu.Lock()
	c.removeLocked(key)
	c.mu.Unlock()

	if c.l2 != nil {
		_ = c.l2.Delete(ctx, key)
	}
}

// DeletePrefix invalidates every key under a namespace prefix, used when
// send_email drops the cached email summaries.
func (c *Cache) DeletePrefix(ctx context.Context, prefix string) {
	c.mu.Lock()
	var toRemove []string
	for key := range c.data {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			toRemove = append(toRemove, key)
		}
	}
	for _, key := range toRemove {
		c.removeLocked(key)
	}
	c.mu.Unlock()

	if c.l2 != nil {
		keys, err := c.l2.Scan(ctx, prefix+"*")
		if err == nil {
			for _, key := range keys {
				_ = c.l2.Delete(ctx, key)
			}
		}
	}
}

func (c *Cache) getL1(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.data[key]
	if !ok {
		return nil, false
	}
	e := el.Value.(*entry)
	if time.Now().After(e.expiresAt) {
		c.removeLocked(key)
		return nil, false
	}
	c.order.MoveToFront(el)
	return e.value, true
}

func (c *Cache) setL1(key string, value []byte, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.data[key]; ok {
		old := el.Value.(*entry)
		c.totalSize -= int64(old.size)
		el.Value = &entry{key: key, value: value, expiresAt: time.Now().Add(ttl), size: len(value)}
		c.totalSize += int64(len(value))
		c.order.MoveToFront(el)
		return
	}

	el := c.order.PushFront(&entry{key: key, value: value, expiresAt: time.Now().Add(ttl), size: len(value)})
	c.data[key] = el
	c.totalSize += int64(len(value))

	for len(c.data) > c.cfg.MaxItems || c.totalSize > c.cfg.ByteBudget {
		c.evictOldestLocked()
	}
}

func (c *Cache) removeLocked(key string) {
	el, ok := c.data[key]
	if !ok {
		return
	}
	e := el.Value.(*entry)
	c.totalSize -= int64(e.size)
	c.order.Remove(el)
	delete(c.data, key)
}

func (c *Cache) evictOldestLocked() {
	back := c.order.Back()
	if back == nil {
		return
	}
	e := back.Value.(*entry)
	c.order.Remove(back)
	delete(c.data, e.key)
	c.totalSize -= int64(e.size)
}

func (c *Cache) cleanupLoop() {
	ticker := time.NewTicker(c.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.cleanupExpired()
		}
	}
}

func (c *Cache) cleanupExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	var expired []string
	for key, el := range c.data {
		if now.After(el.Value.(*entry).expiresAt) {
			expired = append(expired, key)
		}
	}
	for _, key := range expired {
		c.removeLocked(key)
	}

	budget := int64(float64(c.cfg.ByteBudget) * c.cfg.EvictToRatio)
	for c.totalSize > budget && c.order.Len() > 0 {
		c.evictOldestLocked()
	}
}

// Stats reports current L1 occupancy for the health surface (C11).
type Stats struct {
	Items     int
	TotalSize int64
}

func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{Items: len(c.data), TotalSize: c.totalSize}
}

// Close stops the background cleanup loop and drops every L1 entry. The L2
// tier, if any, is left as it is.
func (c *Cache) Close() {
	close(c.stopCh)
	c.mu.Lock()
	c.data = make(map[string]*list.Element)
	c.order.Init()
	c.totalSize = 0
	c.mu.Unlock()
}
