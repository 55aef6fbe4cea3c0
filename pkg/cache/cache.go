package cache

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

// Cache is an in-memory LRU cache with per-item TTL, safe for concurrent use.
type Cache struct {
	mu       sync.Mutex
	items    map[string]*entry
	order    *list.List // MRU at front, LRU at back
	maxItems int        // 0 = unlimited
	stop     chan struct{}
	stopOnce sync.Once
}

type entry struct {
	key string
	val any
	exp time.Time // zero = no expiry
	el  *list.Element
}

// New creates a cache holding at most maxItems entries. A janitor sweeps
// expired entries every interval until Close; interval <= 0 disables it.
func New(maxItems int, interval time.Duration) *Cache {
	if maxItems < 0 {
		maxItems = 0
	}
	c := &Cache{
		items:    make(map[string]*entry),
		order:    list.New(),
		maxItems: maxItems,
		stop:     make(chan struct{}),
	}
	if interval > 0 {
		go c.janitor(interval)
	}
	return c
}

// Get returns the value and whether it exists and has not expired.
func (c *Cache) Get(key string) (any, bool) {
	if c == nil {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.items[key]
	if !ok {
		return nil, false
	}
	if !e.exp.IsZero() && time.Now().After(e.exp) {
		c.removeNoLock(key)
		return nil, false
	}
	c.order.MoveToFront(e.el)
	return e.val, true
}

// Set stores v under key. ttl <= 0 means no expiry.
func (c *Cache) Set(key string, v any, ttl time.Duration) {
	if c == nil {
		return
	}
	var exp time.Time
	if ttl > 0 {
		exp = time.Now().Add(ttl)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.items[key]; ok {
		e.val, e.exp = v, exp
		c.order.MoveToFront(e.el)
		return
	}
	e := &entry{key: key, val: v, exp: exp}
	e.el = c.order.PushFront(e)
	c.items[key] = e
	for c.maxItems > 0 && c.order.Len() > c.maxItems {
		c.evictLRUNoLock()
	}
}

func (c *Cache) Delete(key string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.removeNoLock(key)
	c.mu.Unlock()
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Close stops the janitor.
func (c *Cache) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *Cache) janitor(interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-c.stop:
			return
		case now := <-t.C:
			c.mu.Lock()
			for k, e := range c.items {
				if !e.exp.IsZero() && now.After(e.exp) {
					c.removeNoLock(k)
				}
			}
			c.mu.Unlock()
		}
	}
}

// KeyFromBytes creates a stable key from a namespace and binary content.
func KeyFromBytes(namespace string, parts ...[]byte) string {
	h := sha256.New()
	h.Write([]byte(namespace))
	for _, p := range parts {
		h.Write([]byte{0})
		h.Write(p)
	}
	return namespace + ":" + hex.EncodeToString(h.Sum(nil))
}

// caller must hold c.mu
func (c *Cache) removeNoLock(key string) {
	if e, ok := c.items[key]; ok {
		c.order.Remove(e.el)
		delete(c.items, key)
	}
}

// caller must hold c.mu
func (c *Cache) evictLRUNoLock() {
	back := c.order.Back()
	if back == nil {
		return
	}
	c.removeNoLock(back.Value.(*entry).key)
}
