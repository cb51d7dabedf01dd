package sourcemap

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/yeisme/sourcelens/pkg/metrics"
)

const (
	DefaultCacheSize = 256
	DefaultCacheTTL  = 5 * time.Minute
)

// entry 缓存条目，引用计数归零且已被淘汰时才释放 Consumer.
type entry struct {
	consumer *Consumer

	mu      sync.Mutex
	refs    int
	evicted bool
	closed  bool
}

func (e *entry) retain() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return false
	}

	e.refs++

	return true
}

func (e *entry) release() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.refs--
	if e.refs <= 0 && e.evicted && !e.closed {
		e.closed = true
		e.consumer.Close()
	}
}

func (e *entry) evict() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.evicted = true
	if e.refs <= 0 && !e.closed {
		e.closed = true
		e.consumer.Close()
	}
}

// Handle 对缓存中 Consumer 的一次引用，用完必须 Release.
type Handle struct {
	e    *entry
	once sync.Once
}

// Consumer 返回被引用的 Consumer.
func (h *Handle) Consumer() *Consumer {
	return h.e.consumer
}

// Release 归还引用，可重复调用.
func (h *Handle) Release() {
	h.once.Do(h.e.release)
}

// DecodeCache 解码结果的 TTL + LRU 缓存.
// 未命中的键通过 singleflight 只解码一次，不阻塞其它键.
type DecodeCache struct {
	lru   *expirable.LRU[string, *entry]
	group singleflight.Group
}

// NewDecodeCache 创建缓存，size<=0 或 ttl<=0 时使用默认值.
func NewDecodeCache(size int, ttl time.Duration) *DecodeCache {
	if size <= 0 {
		size = DefaultCacheSize
	}

	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}

	c := &DecodeCache{}
	c.lru = expirable.NewLRU[string, *entry](size, func(_ string, e *entry) {
		metrics.DecodeCacheRequests.WithLabelValues("evict").Inc()
		e.evict()
	}, ttl)

	return c
}

// Acquire 返回 key 对应的 Consumer 引用，未命中时调用 load 解码并写入缓存.
func (c *DecodeCache) Acquire(key string, load func() (*Consumer, error)) (*Handle, error) {
	if e, ok := c.lru.Get(key); ok && e.retain() {
		metrics.DecodeCacheRequests.WithLabelValues("hit").Inc()
		return &Handle{e: e}, nil
	}

	metrics.DecodeCacheRequests.WithLabelValues("miss").Inc()

	// 条目可能在写入后、取得引用前被淘汰，重试一次
	for range 2 {
		v, err, _ := c.group.Do(key, func() (any, error) {
			if e, ok := c.lru.Peek(key); ok {
				return e, nil
			}

			consumer, err := load()
			if err != nil {
				return nil, err
			}

			e := &entry{consumer: consumer}
			// 过期但尚未清理的旧条目经 Remove 触发淘汰回调
			c.lru.Remove(key)
			c.lru.Add(key, e)

			return e, nil
		})
		if err != nil {
			return nil, err
		}

		if e := v.(*entry); e.retain() {
			return &Handle{e: e}, nil
		}
	}

	// 仍然拿不到引用时不经缓存解码一份，Release 后立即释放
	metrics.DecodeCacheRequests.WithLabelValues("bypass").Inc()

	consumer, err := load()
	if err != nil {
		return nil, err
	}

	return &Handle{e: &entry{consumer: consumer, refs: 1, evicted: true}}, nil
}

// Purge 淘汰全部条目，正在使用的 Consumer 在归还后释放.
func (c *DecodeCache) Purge() {
	c.lru.Purge()
}

// Len 当前条目数.
func (c *DecodeCache) Len() int {
	return c.lru.Len()
}
