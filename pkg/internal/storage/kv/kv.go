// Package kv 提供用于键值存储的接口和实现，SourceMap 位置解析结果缓存在这里.
package kv

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/yeisme/sourcelens/pkg/configs"
)

// ErrNotFound 键不存在或已过期.
var ErrNotFound = errors.New("kv: key not found")

// Client 持有当前配置选中的后端.
type Client struct {
	KVStore
}

// KVStore 定义键值存储接口.
type KVStore interface {
	// Get 获取键的值，键不存在时返回 ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set 设置键的值，ttl<=0 表示不过期.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Delete 删除键.
	Delete(ctx context.Context, key string) error
	// Exists 检查键是否存在.
	Exists(ctx context.Context, key string) (bool, error)
	// Keys 按 glob 模式列出键，空模式列出全部.
	Keys(ctx context.Context, pattern string) ([]string, error)
	// Close 关闭存储连接.
	Close() error
}

// KVType 键值存储类型.
type KVType string

const (
	KVTypeMemory     KVType = "memory"
	KVTypeRedis      KVType = "redis"
	KVTypeNATS       KVType = "nats"
	KVTypeGroupcache KVType = "groupcache"
)

// Factory 从完整的 KV 配置中取出自己需要的部分创建后端.
type Factory func(ctx context.Context, cfg *configs.KVConfig) (KVStore, error)

var factories = map[KVType]Factory{}

// RegisterKVFactory 在 init 中注册后端，构建标签可以裁掉不需要的实现.
func RegisterKVFactory(t KVType, f Factory) {
	factories[t] = f
}

// GetRegisteredKVTypes 按名称排序.
func GetRegisteredKVTypes() []KVType {
	return slices.Sorted(maps.Keys(factories))
}

// store 避免把带类型的 nil 指针装进接口.
func store[T KVStore](s T, err error) (KVStore, error) {
	if err != nil {
		return nil, err
	}

	return s, nil
}

// NewKVClient 按 cfg.Type 选择后端.
func NewKVClient(ctx context.Context, cfg *configs.KVConfig) (*Client, error) {
	f, ok := factories[KVType(cfg.Type)]
	if !ok {
		return nil, fmt.Errorf("unsupported kv type %q (have %v)", cfg.Type, GetRegisteredKVTypes())
	}

	s, err := f(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open %s kv: %w", cfg.Type, err)
	}

	return &Client{KVStore: s}, nil
}

// matchKey 使用与 Redis KEYS 相同的 * 与 ? 语义，* 可跨越 "/".
func matchKey(pattern, key string) bool {
	if pattern == "" || pattern == "*" {
		return true
	}

	p, k := 0, 0
	star, mark := -1, 0

	for k < len(key) {
		switch {
		case p < len(pattern) && (pattern[p] == '?' || pattern[p] == key[k]):
			p++
			k++
		case p < len(pattern) && pattern[p] == '*':
			star, mark = p, k
			p++
		case star >= 0:
			p = star + 1
			mark++
			k = mark
		default:
			return false
		}
	}

	for p < len(pattern) && pattern[p] == '*' {
		p++
	}

	return p == len(pattern)
}
