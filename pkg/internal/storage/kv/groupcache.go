package kv

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang/groupcache"

	"github.com/yeisme/sourcelens/pkg/configs"
)

// GroupcacheKV 基于 Groupcache 的 KV 实现.
// groupcache 不支持删除与覆盖，每次 Set 递增代数，组内键为 "key#gen"，旧代数自然淘汰.
type GroupcacheKV struct {
	cache *groupcache.Group
	peers *groupcache.HTTPPool

	mu   sync.RWMutex
	data map[string]gcEntry // 本节点写入的权威数据
	gen  uint64
	now  func() time.Time
}

type gcEntry struct {
	gen      uint64
	value    []byte
	expireAt time.Time
}

func (e gcEntry) expired(now time.Time) bool {
	return !e.expireAt.IsZero() && !now.Before(e.expireAt)
}

// groupcacheGetter 实现 groupcache.Getter 接口.
type groupcacheGetter struct {
	kv *GroupcacheKV
}

func (g *groupcacheGetter) Get(_ context.Context, versioned string, dest groupcache.Sink) error {
	key, gen, ok := splitVersionedKey(versioned)
	if !ok {
		return ErrNotFound
	}

	g.kv.mu.RLock()
	e, exists := g.kv.data[key]
	g.kv.mu.RUnlock()

	if !exists || e.gen != gen {
		return ErrNotFound
	}

	if err := dest.SetBytes(e.value); err != nil {
		return fmt.Errorf("failed to set bytes to sink: %w", err)
	}

	return nil
}

// NewGroupcacheKV 注册一个 groupcache 组，同名组在进程内只能创建一次.
// 配置了 peers 时启动 HTTP 池；远端节点没有该代数的值时 groupcache 回落到本地加载.
func NewGroupcacheKV(cfg *configs.GroupcacheKVConfig) (*GroupcacheKV, error) {
	if groupcache.GetGroup(cfg.Name) != nil {
		return nil, fmt.Errorf("groupcache group %q already registered", cfg.Name)
	}

	g := &GroupcacheKV{data: make(map[string]gcEntry), now: time.Now}
	g.cache = groupcache.NewGroup(cfg.Name, cfg.CacheBytes, &groupcacheGetter{kv: g})

	if len(cfg.Peers) > 0 {
		g.peers = groupcache.NewHTTPPoolOpts(cfg.Self, &groupcache.HTTPPoolOptions{
			BasePath: cfg.BasePath,
			Replicas: cfg.Replicas,
		})
		g.peers.Set(cfg.Peers...)
	}

	return g, nil
}

// Get 获取键的值.
func (g *GroupcacheKV) Get(ctx context.Context, key string) ([]byte, error) {
	g.mu.RLock()
	e, exists := g.data[key]
	g.mu.RUnlock()

	if !exists {
		return nil, ErrNotFound
	}

	if e.expired(g.now()) {
		_ = g.Delete(ctx, key)
		return nil, ErrNotFound
	}

	var data []byte

	if err := g.cache.Get(ctx, versionedKey(key, e.gen), groupcache.AllocatingByteSliceSink(&data)); err != nil {
		return nil, fmt.Errorf("failed to get key: %w", err)
	}

	return data, nil
}

// Set 设置键的值.
func (g *GroupcacheKV) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	v := make([]byte, len(value))
	copy(v, value)

	g.mu.Lock()
	defer g.mu.Unlock()

	g.gen++

	e := gcEntry{gen: g.gen, value: v}
	if ttl > 0 {
		e.expireAt = g.now().Add(ttl)
	}

	g.data[key] = e

	return nil
}

// Delete 删除键.
func (g *GroupcacheKV) Delete(_ context.Context, key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	delete(g.data, key)

	return nil
}

// Exists 检查键是否存在.
func (g *GroupcacheKV) Exists(ctx context.Context, key string) (bool, error) {
	if _, err := g.Get(ctx, key); err != nil {
		return false, nil
	}

	return true, nil
}

// Keys 获取所有键.
func (g *GroupcacheKV) Keys(_ context.Context, pattern string) ([]string, error) {
	now := g.now()

	g.mu.RLock()
	defer g.mu.RUnlock()

	keys := make([]string, 0, len(g.data))
	for key, e := range g.data {
		if e.expired(now) {
			continue
		}

		if matchKey(pattern, key) {
			keys = append(keys, key)
		}
	}

	return keys, nil
}

// Close groupcache 的组与 HTTP 池无法注销，这里什么也不做.
func (g *GroupcacheKV) Close() error {
	return nil
}

func versionedKey(key string, gen uint64) string {
	return key + "#" + strconv.FormatUint(gen, 10)
}

func splitVersionedKey(s string) (string, uint64, bool) {
	i := strings.LastIndexByte(s, '#')
	if i < 0 {
		return "", 0, false
	}

	gen, err := strconv.ParseUint(s[i+1:], 10, 64)
	if err != nil {
		return "", 0, false
	}

	return s[:i], gen, true
}

func init() {
	RegisterKVFactory(KVTypeGroupcache, func(_ context.Context, cfg *configs.KVConfig) (KVStore, error) {
		return store(NewGroupcacheKV(&cfg.Groupcache))
	})
}
