// Package cache keeps rendered analytics payloads so repeated reads of the
// same snapshot skip the aggregation.
package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// Usage reports how much of a local cache is occupied.
type Usage struct {
	Entries    int `json:"entries"`
	Bytes      int `json:"bytes"`
	MaxEntries int `json:"max_entries"`
	MaxBytes   int `json:"max_bytes"`
}

// LRUCache holds payloads in process. It evicts the least recently read
// payload once either the entry limit or the byte budget is exceeded.
type LRUCache struct {
	mu         sync.Mutex
	maxEntries int
	maxBytes   int
	bytes      int
	items      map[string]*list.Element
	order      *list.List
	now        func() time.Time
}

type payload struct {
	key       string
	body      []byte
	expiresAt time.Time
}

// NewLRUCache creates a cache bounded by maxEntries payloads and, when
// maxBytes is positive, by the summed payload size.
func NewLRUCache(maxEntries, maxBytes int) *LRUCache {
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	return &LRUCache{
		maxEntries: maxEntries,
		maxBytes:   maxBytes,
		items:      make(map[string]*list.Element),
		order:      list.New(),
		now:        time.Now,
	}
}

// Get returns the payload under key, or nil when absent or expired.
func (c *LRUCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		return nil, nil
	}
	p := elem.Value.(*payload)
	if !c.now().Before(p.expiresAt) {
		c.remove(elem)
		return nil, nil
	}
	c.order.MoveToFront(elem)
	return p.body, nil
}

// Set stores body under key for ttl. A payload larger than the whole byte
// budget is not kept.
func (c *LRUCache) Set(_ context.Context, key string, body []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.remove(elem)
	}
	if c.maxBytes > 0 && len(body) > c.maxBytes {
		return nil
	}

	c.items[key] = c.order.PushFront(&payload{
		key:       key,
		body:      body,
		expiresAt: c.now().Add(ttl),
	})
	c.bytes += len(body)

	for c.order.Len() > c.maxEntries || (c.maxBytes > 0 && c.bytes > c.maxBytes) {
		c.remove(c.order.Back())
	}
	return nil
}

// Delete drops the payload under key.
func (c *LRUCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.remove(elem)
	}
	return nil
}

// Ping always succeeds.
func (c *LRUCache) Ping(context.Context) error {
	return nil
}

// Close drops every payload.
func (c *LRUCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*list.Element)
	c.order = list.New()
	c.bytes = 0
	return nil
}

// Usage reports the current occupancy.
func (c *LRUCache) Usage() Usage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Usage{
		Entries:    c.order.Len(),
		Bytes:      c.bytes,
		MaxEntries: c.maxEntries,
		MaxBytes:   c.maxBytes,
	}
}

func (c *LRUCache) remove(elem *list.Element) {
	p := c.order.Remove(elem).(*payload)
	delete(c.items, p.key)
	c.bytes -= len(p.body)
}
