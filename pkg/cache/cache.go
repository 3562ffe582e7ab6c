// Package cache is an in-process stale-while-revalidate cache. Concurrent
// misses for one key share a single load; expired-but-fresh-enough entries
// are served while one background refresh runs.
package cache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

type Options struct {
	TTL                  time.Duration
	StaleWhileRevalidate time.Duration
	// NegativeTTL caches loader failures. Zero disables it.
	NegativeTTL time.Duration
	MaxEntries  int
}

type MetricsHooks struct {
	OnHit   func(key string)
	OnMiss  func(key string)
	OnStale func(key string)
	OnStore func(key string, ok bool)
	OnError func(key string)
}

type entry[V any] struct {
	key       string
	value     V
	err       error
	expiresAt time.Time
	staleAt   time.Time
	negative  bool
	elem      *list.Element
}

type Cache[V any] struct {
	mu      sync.Mutex
	items   map[string]*entry[V]
	lru     *list.List // front is most recently used
	opts    Options
	metrics MetricsHooks
	sf      singleflight.Group
	now     func() time.Time
}

// SnapshotEntry is a point-in-time view of one entry.
type SnapshotEntry[V any] struct {
	Key       string
	Value     V
	Err       error
	ExpiresAt time.Time
	StaleAt   time.Time
	Negative  bool
}

func New[V any](opts Options, hooks MetricsHooks) *Cache[V] {
	return &Cache[V]{
		items:   make(map[string]*entry[V]),
		lru:     list.New(),
		opts:    opts,
		metrics: hooks,
		now:     time.Now,
	}
}

// Loader fetches the value for key. ok=false means no value; err explains why.
type Loader[V any] func(ctx context.Context, key string) (V, bool, error)

type loadResult[V any] struct {
	val V
	ok  bool
	err error
}

func (c *Cache[V]) Get(ctx context.Context, key string, loader Loader[V]) (V, bool, error) {
	var zero V
	now := c.now()

	c.mu.Lock()
	if e, ok := c.items[key]; ok {
		if now.Before(e.expiresAt) {
			c.lru.MoveToFront(e.elem)
			val, negative, err := e.value, e.negative, e.err
			c.mu.Unlock()
			c.hook(c.metrics.OnHit, key)
			if negative {
				return zero, false, err
			}
			return val, true, nil
		}
		if now.Before(e.staleAt) {
			c.lru.MoveToFront(e.elem)
			val := e.value
			c.mu.Unlock()
			c.hook(c.metrics.OnStale, key)
			// The refresh outlives the request that noticed the stale entry.
			refreshCtx := context.WithoutCancel(ctx)
			go func() {
				_, _, _ = c.sf.Do("refresh:"+key, func() (interface{}, error) {
					v, ok, err := loader(refreshCtx, key)
					c.store(key, v, ok, err)
					return nil, nil
				})
			}()
			return val, true, nil
		}
		c.removeLocked(e)
	}
	c.mu.Unlock()

	c.hook(c.metrics.OnMiss, key)
	result, _, _ := c.sf.Do(key, func() (interface{}, error) {
		val, ok, err := loader(ctx, key)
		c.store(key, val, ok, err)
		return loadResult[V]{val: val, ok: ok, err: err}, nil
	})
	res := result.(loadResult[V])
	if !res.ok {
		return zero, false, res.err
	}
	return res.val, true, nil
}

func (c *Cache[V]) store(key string, val V, ok bool, err error) {
	now := c.now()
	e := &entry[V]{key: key}
	if ok {
		e.value = val
		e.expiresAt = now.Add(c.opts.TTL)
		e.staleAt = e.expiresAt.Add(c.opts.StaleWhileRevalidate)
	} else {
		c.hook(c.metrics.OnError, key)
		if c.opts.NegativeTTL <= 0 {
			return
		}
		e.err = err
		e.negative = true
		e.expiresAt = now.Add(c.opts.NegativeTTL)
		e.staleAt = e.expiresAt
	}

	c.mu.Lock()
	c.putLocked(e)
	c.mu.Unlock()
	if c.metrics.OnStore != nil {
		c.metrics.OnStore(key, ok)
	}
}

func (c *Cache[V]) putLocked(e *entry[V]) {
	if prev, exists := c.items[e.key]; exists {
		c.lru.Remove(prev.elem)
	}
	e.elem = c.lru.PushFront(e)
	c.items[e.key] = e
	for c.opts.MaxEntries > 0 && len(c.items) > c.opts.MaxEntries {
		oldest := c.lru.Back()
		if oldest == nil {
			return
		}
		c.removeLocked(oldest.Value.(*entry[V]))
	}
}

func (c *Cache[V]) removeLocked(e *entry[V]) {
	c.lru.Remove(e.elem)
	delete(c.items, e.key)
}

// Set stores val with an explicit ttl, bypassing the loader.
func (c *Cache[V]) Set(key string, val V, ttl time.Duration) {
	now := c.now()
	e := &entry[V]{
		key:       key,
		value:     val,
		expiresAt: now.Add(ttl),
		staleAt:   now.Add(ttl).Add(c.opts.StaleWhileRevalidate),
	}
	c.mu.Lock()
	c.putLocked(e)
	c.mu.Unlock()
}

// Peek returns a cached value without triggering a load. Stale entries are allowed.
func (c *Cache[V]) Peek(key string) (V, bool) {
	var zero V
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.items[key]
	if !ok || e.negative || now.After(e.staleAt) {
		return zero, false
	}
	return e.value, true
}

func (c *Cache[V]) Snapshot() []SnapshotEntry[V] {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]SnapshotEntry[V], 0, len(c.items))
	for el := c.lru.Front(); el != nil; el = el.Next() {
		e := el.Value.(*entry[V])
		out = append(out, SnapshotEntry[V]{
			Key:       e.key,
			Value:     e.value,
			Err:       e.err,
			ExpiresAt: e.expiresAt,
			StaleAt:   e.staleAt,
			Negative:  e.negative,
		})
	}
	return out
}

func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	if e, ok := c.items[key]; ok {
		c.removeLocked(e)
	}
	c.mu.Unlock()
}

func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *Cache[V]) hook(fn func(string), key string) {
	if fn != nil {
		fn(key)
	}
}
