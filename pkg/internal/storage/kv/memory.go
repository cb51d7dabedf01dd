package kv

import (
	"context"
	"sync"
	"time"

	"github.com/yeisme/sourcelens/pkg/configs"
)

type memoryEntry struct {
	value    []byte
	expireAt time.Time
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expireAt.IsZero() && !now.Before(e.expireAt)
}

// MemoryKV 进程内 KV 实现，过期键在读取时惰性删除.
type MemoryKV struct {
	mu   sync.RWMutex
	data map[string]memoryEntry
	now  func() time.Time
}

// NewMemory 创建内存 KV，now 为 nil 时使用 time.Now.
func NewMemory(now func() time.Time) *MemoryKV {
	if now == nil {
		now = time.Now
	}

	return &MemoryKV{data: make(map[string]memoryEntry), now: now}
}

// Get 获取键的值.
func (m *MemoryKV) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	e, ok := m.data[key]
	m.mu.RUnlock()

	if !ok {
		return nil, ErrNotFound
	}

	if e.expired(m.now()) {
		m.mu.Lock()
		if cur, still := m.data[key]; still && cur.expired(m.now()) {
			delete(m.data, key)
		}
		m.mu.Unlock()

		return nil, ErrNotFound
	}

	// 返回副本
	out := make([]byte, len(e.value))
	copy(out, e.value)

	return out, nil
}

// Set 设置键的值.
func (m *MemoryKV) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	data := make([]byte, len(value))
	copy(data, value)

	e := memoryEntry{value: data}
	if ttl > 0 {
		e.expireAt = m.now().Add(ttl)
	}

	m.mu.Lock()
	m.data[key] = e
	m.mu.Unlock()

	return nil
}

// Delete 删除键.
func (m *MemoryKV) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.data, key)
	m.mu.Unlock()

	return nil
}

// Exists 检查键是否存在.
func (m *MemoryKV) Exists(ctx context.Context, key string) (bool, error) {
	if _, err := m.Get(ctx, key); err != nil {
		return false, nil
	}

	return true, nil
}

// Keys 获取匹配模式且未过期的键.
func (m *MemoryKV) Keys(_ context.Context, pattern string) ([]string, error) {
	now := m.now()

	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.data))
	for k, e := range m.data {
		if e.expired(now) {
			continue
		}

		if matchKey(pattern, k) {
			keys = append(keys, k)
		}
	}

	return keys, nil
}

// Close 关闭存储（内存实现无需操作）.
func (m *MemoryKV) Close() error {
	return nil
}

func init() {
	RegisterKVFactory(KVTypeMemory, func(context.Context, *configs.KVConfig) (KVStore, error) {
		return NewMemory(nil), nil
	})
}
