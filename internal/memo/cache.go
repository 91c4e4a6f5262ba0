// Package memo provides a generic loading cache that runs at most one loader
// per key at a time and shares the outcome with every caller waiting on that
// key. Ready entries, failures included, are kept until an optional eviction
// or retry policy removes them.
package memo

import (
	"container/list"
	"context"
	"fmt"
	"sync"
	"time"
)

// LoadFunc 在缓存未命中时计算 key 对应的值。
type LoadFunc[K comparable, V any] func(ctx context.Context, key K) (V, error)

// Metrics 收集缓存命中/加载/淘汰事件；为 nil 时使用空实现。
type Metrics interface {
	ObserveHit()
	ObserveMiss()
	ObserveLoad(duration time.Duration, err error)
	ObserveEviction()
}

// Options 控制淘汰与失败重试策略，零值表示“永不淘汰、失败永久缓存”。
type Options struct {
	// MaxEntries 限制已完成条目数量，超出后按 LRU 淘汰；0 表示不限制。
	MaxEntries int
	// RetryAfter 决定某个失败在多久之后允许重新加载；返回 false 表示永久缓存该失败。
	RetryAfter func(err error) (time.Duration, bool)
	Metrics    Metrics
	// Now 仅供测试注入时钟。
	Now func() time.Time
}

// Stats 是缓存运行期间的累计计数。
type Stats struct {
	Hits      int64
	Misses    int64
	Loads     int64
	Evictions int64
	Size      int
}

// Cache 是按 key 去重的加载缓存，所有方法可并发调用。
type Cache[K comparable, V any] struct {
	load    LoadFunc[K, V]
	opts    Options
	metrics Metrics

	mu      sync.Mutex
	entries map[K]*entry[K, V]
	lru     *list.List // 仅包含已完成条目，Front 为最近使用
	stats   Stats
}

// entry 的 value/err/expireAt 在 done 关闭前写入，关闭后只读。
type entry[K comparable, V any] struct {
	key      K
	done     chan struct{}
	value    V
	err      error
	expireAt time.Time
	elem     *list.Element
}

// New 构造绑定 loader 的缓存实例。
func New[K comparable, V any](load LoadFunc[K, V], opts Options) *Cache[K, V] {
	metrics := opts.Metrics
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Cache[K, V]{
		load:    load,
		opts:    opts,
		metrics: metrics,
		entries: make(map[K]*entry[K, V]),
		lru:     list.New(),
	}
}

// Get 返回 key 对应的值。同一 key 的并发调用只触发一次加载；调用方 ctx 取消
// 只会让该调用方停止等待，共享的加载会继续完成并写入缓存。
func (c *Cache[K, V]) Get(ctx context.Context, key K) (V, error) {
	c.mu.Lock()
	e, ok := c.entries[key]
	if ok && e.isReady() && e.expired(c.now()) {
		c.removeLocked(e)
		ok = false
	}
	if ok {
		c.stats.Hits++
		if e.elem != nil {
			c.lru.MoveToFront(e.elem)
		}
		c.mu.Unlock()
		c.metrics.ObserveHit()
		return c.wait(ctx, e)
	}

	e = &entry[K, V]{key: key, done: make(chan struct{})}
	c.entries[key] = e
	c.stats.Misses++
	c.mu.Unlock()
	c.metrics.ObserveMiss()

	go c.run(context.WithoutCancel(ctx), e)
	return c.wait(ctx, e)
}

// Stats 返回当前计数快照。
func (c *Cache[K, V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	stats := c.stats
	stats.Size = len(c.entries)
	return stats
}

func (c *Cache[K, V]) run(ctx context.Context, e *entry[K, V]) {
	started := time.Now()
	value, err := c.safeLoad(ctx, e.key)
	c.metrics.ObserveLoad(time.Since(started), err)

	c.mu.Lock()
	e.value, e.err = value, err
	if err != nil && c.opts.RetryAfter != nil {
		if delay, retry := c.opts.RetryAfter(err); retry {
			e.expireAt = c.now().Add(delay)
		}
	}
	c.stats.Loads++
	if c.entries[e.key] == e {
		e.elem = c.lru.PushFront(e)
		c.evictLocked()
	}
	c.mu.Unlock()

	close(e.done)
}

func (c *Cache[K, V]) safeLoad(ctx context.Context, key K) (value V, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("memo: loader panic: %v", r)
		}
	}()
	return c.load(ctx, key)
}

func (c *Cache[K, V]) wait(ctx context.Context, e *entry[K, V]) (V, error) {
	select {
	case <-e.done:
		return e.value, e.err
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	}
}

func (c *Cache[K, V]) evictLocked() {
	if c.opts.MaxEntries <= 0 {
		return
	}
	for c.lru.Len() > c.opts.MaxEntries {
		oldest := c.lru.Back()
		if oldest == nil {
			return
		}
		c.removeLocked(oldest.Value.(*entry[K, V]))
		c.stats.Evictions++
		c.metrics.ObserveEviction()
	}
}

func (c *Cache[K, V]) removeLocked(e *entry[K, V]) {
	if e.elem != nil {
		c.lru.Remove(e.elem)
		e.elem = nil
	}
	if c.entries[e.key] == e {
		delete(c.entries, e.key)
	}
}

func (c *Cache[K, V]) now() time.Time {
	if c.opts.Now != nil {
		return c.opts.Now()
	}
	return time.Now()
}

func (e *entry[K, V]) isReady() bool {
	select {
	case <-e.done:
		return true
	default:
		return false
	}
}

func (e *entry[K, V]) expired(now time.Time) bool {
	return !e.expireAt.IsZero() && !now.Before(e.expireAt)
}

type noopMetrics struct{}

func (noopMetrics) ObserveHit()                      {}
func (noopMetrics) ObserveMiss()                     {}
func (noopMetrics) ObserveLoad(time.Duration, error) {}
func (noopMetrics) ObserveEviction()                 {}
