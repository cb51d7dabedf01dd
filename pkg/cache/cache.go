// Package cache 在 KV 存储之上提供带前缀的泛型缓存，值用 sonic 编码.
// 解析后的源码位置与 API 响应都经由它写入 KV 后端.
//
//	c := cache.NewCache(kvStore, cache.WithPrefix("sl:pos:"))
//
//	err := cache.Set(ctx, c, key, pos, time.Minute)
//	pos, err := cache.Get[Position](ctx, c, key) // 未命中返回 cache.ErrMiss
//
//	// 未命中时调用 load，同一 key 的并发调用只执行一次
//	pos, err := cache.GetOrSet(ctx, c, key, load, time.Minute)
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"golang.org/x/sync/singleflight"

	"github.com/yeisme/sourcelens/pkg/internal/storage/kv"
	"github.com/yeisme/sourcelens/pkg/metrics"
)

// ErrMiss 未命中，包括值无法解码的情况.
var ErrMiss = errors.New("cache: miss")

// Cache 所有键都加上 prefix，Clear 只影响本前缀.
type Cache struct {
	store  kv.KVStore
	prefix string
	group  singleflight.Group
}

type Option func(*Cache)

// WithPrefix 设置键前缀，例如 "sl:pos:".
func WithPrefix(prefix string) Option {
	return func(c *Cache) { c.prefix = prefix }
}

func NewCache(store kv.KVStore, opts ...Option) *Cache {
	c := &Cache{store: store}
	for _, o := range opts {
		o(c)
	}

	return c
}

// Prefix 返回键前缀.
func (c *Cache) Prefix() string {
	return c.prefix
}

func (c *Cache) observe(outcome string) {
	metrics.KVCacheRequests.WithLabelValues(c.prefix, outcome).Inc()
}

// Get 读取并解码；解码失败的旧值被删除并按未命中处理.
func Get[T any](ctx context.Context, c *Cache, key string) (T, error) {
	var v T

	data, err := c.store.Get(ctx, c.prefix+key)

	switch {
	case errors.Is(err, kv.ErrNotFound):
		c.observe("miss")
		return v, ErrMiss
	case err != nil:
		c.observe("error")
		return v, fmt.Errorf("cache get %s: %w", key, err)
	}

	if err := sonic.Unmarshal(data, &v); err != nil {
		_ = c.store.Delete(ctx, c.prefix+key)
		c.observe("miss")

		var zero T

		return zero, ErrMiss
	}

	c.observe("hit")

	return v, nil
}

// Set 编码后写入，ttl<=0 表示不过期.
func Set[T any](ctx context.Context, c *Cache, key string, value T, ttl time.Duration) error {
	data, err := sonic.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache encode %s: %w", key, err)
	}

	return c.store.Set(ctx, c.prefix+key, data, ttl)
}

func (c *Cache) Delete(ctx context.Context, key string) error {
	return c.store.Delete(ctx, c.prefix+key)
}

func (c *Cache) Exists(ctx context.Context, key string) (bool, error) {
	return c.store.Exists(ctx, c.prefix+key)
}

// GetOrSet 未命中或后端出错时调用 load 并尽力写回；load 的错误原样返回.
func GetOrSet[T any](ctx context.Context, c *Cache, key string, load func() (T, error), ttl time.Duration) (T, error) {
	if v, err := Get[T](ctx, c, key); err == nil {
		return v, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		v, err := load()
		if err != nil {
			return nil, err
		}

		_ = Set(ctx, c, key, v, ttl)

		return v, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}

	return v.(T), nil
}

// DeleteMatching 删除匹配 glob 模式（不含前缀）的键，返回删除数量.
func (c *Cache) DeleteMatching(ctx context.Context, pattern string) (int, error) {
	keys, err := c.store.Keys(ctx, c.prefix+pattern)
	if err != nil {
		return 0, err
	}

	var errs []error

	n := 0

	for _, k := range keys {
		if err := c.store.Delete(ctx, k); err != nil {
			errs = append(errs, err)
			continue
		}

		n++
	}

	return n, errors.Join(errs...)
}

// Clear 清空本前缀下的全部键.
func (c *Cache) Clear(ctx context.Context) error {
	_, err := c.DeleteMatching(ctx, "*")
	return err
}
