package cache

import (
	"sync"
	"time"
)

type Options struct {
	// MaxEntries caps the store; the oldest insertions are evicted first.
	// Zero means unbounded.
	MaxEntries int
	// Now overrides the clock; nil means time.Now.
	Now func() time.Time
}

type entry struct {
	value     any
	expiresAt time.Time
}

func (e *entry) live(now time.Time) bool {
	return now.Before(e.expiresAt)
}

// Cache is an in-process key/value store with per-entry TTLs and FIFO
// eviction. Safe for concurrent use.
type Cache struct {
	mu    sync.RWMutex
	items map[string]*entry
	order []string
	opts  Options
}

func New(opts Options) *Cache {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Cache{
		items: make(map[string]*entry),
		order: make([]string, 0, 128),
		opts:  opts,
	}
}

var noExpiry = time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)

func (c *Cache) newEntry(val any, ttl time.Duration) *entry {
	if ttl <= 0 {
		return &entry{value: val, expiresAt: noExpiry}
	}
	return &entry{value: val, expiresAt: c.opts.Now().Add(ttl)}
}

func (c *Cache) putLocked(key string, e *entry) {
	if _, exists := c.items[key]; !exists {
		c.order = append(c.order, key)
	}
	c.items[key] = e
	if c.opts.MaxEntries <= 0 {
		return
	}
	for len(c.items) > c.opts.MaxEntries && len(c.order) > 0 {
		victim := c.order[0]
		c.order = c.order[1:]
		delete(c.items, victim)
	}
}

func (c *Cache) deleteLocked(key string) {
	delete(c.items, key)
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}

// Set stores val under key. A non-positive ttl stores the value without expiry.
func (c *Cache) Set(key string, val any, ttl time.Duration) {
	e := c.newEntry(val, ttl)
	c.mu.Lock()
	c.putLocked(key, e)
	c.mu.Unlock()
}

// SetIfAbsent stores val only when key holds no live entry. The check and
// the write happen under one lock.
func (c *Cache) SetIfAbsent(key string, val any, ttl time.Duration) bool {
	now := c.opts.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.items[key]; ok && e.live(now) {
		return false
	}
	c.putLocked(key, c.newEntry(val, ttl))
	return true
}

// Peek returns the live value under key.
func (c *Cache) Peek(key string) (any, bool) {
	now := c.opts.Now()
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.items[key]
	if !ok || !e.live(now) {
		return nil, false
	}
	return e.value, true
}

// Keys returns the live keys accepted by match. A nil match accepts all.
func (c *Cache) Keys(match func(string) bool) []string {
	now := c.opts.Now()
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.items))
	for k, e := range c.items {
		if !e.live(now) {
			continue
		}
		if match == nil || match(k) {
			out = append(out, k)
		}
	}
	return out
}

// Sweep drops expired entries and returns how many were removed.
func (c *Cache) Sweep() int {
	now := c.opts.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for k, e := range c.items {
		if e.live(now) {
			continue
		}
		c.deleteLocked(k)
		removed++
	}
	return removed
}

// DeleteIf removes key only when it holds a live value accepted by match.
func (c *Cache) DeleteIf(key string, match func(any) bool) bool {
	now := c.opts.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.items[key]
	if !ok || !e.live(now) || !match(e.value) {
		return false
	}
	c.deleteLocked(key)
	return true
}

func (c *Cache) Delete(key string) {
	c.mu.Lock()
	c.deleteLocked(key)
	c.mu.Unlock()
}

// Len counts stored entries, expired ones included until swept.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}
