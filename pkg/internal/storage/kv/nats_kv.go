package kv

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/yeisme/sourcelens/pkg/configs"
)

// NATSKV 基于 JetStream KeyValue 的实现.
// NATS 的键只允许 [-/_=.a-zA-Z0-9]，其余字节按 "=XX" 转义后存储.
type NATSKV struct {
	kv   nats.KeyValue
	conn *nats.Conn
	now  func() time.Time
}

// NewNATSKV 连接 NATS 并创建或复用 bucket.
func NewNATSKV(ctx context.Context, cfg *configs.NATSKVConfig) (*NATSKV, error) {
	opts := []nats.Option{nats.Name(configs.AppName + "-kv")}
	if cfg.User != "" {
		opts = append(opts, nats.UserInfo(cfg.User, cfg.Password))
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := nc.JetStream(nats.Context(ctx))
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	// bucket 级 TTL 兜底回收，单键过期由值头判断
	kv, err := js.KeyValue(cfg.Bucket)
	if errors.Is(err, nats.ErrBucketNotFound) {
		kv, err = js.CreateKeyValue(&nats.KeyValueConfig{
			Bucket:  cfg.Bucket,
			History: 1,
			TTL:     cfg.MaxAge,
		})
	}

	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to open KV bucket %s: %w", cfg.Bucket, err)
	}

	return &NATSKV{kv: kv, conn: nc, now: time.Now}, nil
}

// Get 获取键的值，过期键被惰性删除.
func (n *NATSKV) Get(_ context.Context, key string) ([]byte, error) {
	stored := escapeNATSKey(key)

	entry, err := n.kv.Get(stored)
	if errors.Is(err, nats.ErrKeyNotFound) {
		return nil, ErrNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get key: %w", err)
	}

	val, expired := openTTL(entry.Value(), n.now())
	if expired {
		_ = n.kv.Delete(stored)
		return nil, ErrNotFound
	}

	return val, nil
}

// Set 设置键的值.
func (n *NATSKV) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if _, err := n.kv.Put(escapeNATSKey(key), sealTTL(value, ttl, n.now())); err != nil {
		return fmt.Errorf("failed to set key: %w", err)
	}

	return nil
}

// Delete 删除键.
func (n *NATSKV) Delete(_ context.Context, key string) error {
	err := n.kv.Delete(escapeNATSKey(key))
	if err != nil && !errors.Is(err, nats.ErrKeyNotFound) {
		return fmt.Errorf("failed to delete key: %w", err)
	}

	return nil
}

// Exists 检查键是否存在.
func (n *NATSKV) Exists(ctx context.Context, key string) (bool, error) {
	_, err := n.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}

	return err == nil, err
}

// Keys 列出匹配模式的键，返回转义前的原始键.
func (n *NATSKV) Keys(ctx context.Context, pattern string) ([]string, error) {
	keys, err := n.kv.Keys(nats.Context(ctx))
	if errors.Is(err, nats.ErrNoKeysFound) {
		return []string{}, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}

	result := make([]string, 0, len(keys))

	for _, stored := range keys {
		key, ok := unescapeNATSKey(stored)
		if !ok || !matchKey(pattern, key) {
			continue
		}

		if exists, err := n.Exists(ctx, key); err != nil || !exists {
			continue
		}

		result = append(result, key)
	}

	return result, nil
}

// Close 关闭 NATS 连接.
func (n *NATSKV) Close() error {
	n.conn.Close()
	return nil
}

func natsKeySafe(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' ||
		c == '-' || c == '/' || c == '_' || c == '.'
}

const hexDigits = "0123456789ABCDEF"

// escapeNATSKey 把不合法字节（含 '=' 本身）写成 "=XX".
func escapeNATSKey(key string) string {
	var b strings.Builder

	b.Grow(len(key))

	for i := range len(key) {
		c := key[i]
		if natsKeySafe(c) {
			b.WriteByte(c)
			continue
		}

		b.WriteByte('=')
		b.WriteByte(hexDigits[c>>4])
		b.WriteByte(hexDigits[c&0x0f])
	}

	return b.String()
}

func unescapeNATSKey(stored string) (string, bool) {
	if !strings.Contains(stored, "=") {
		return stored, true
	}

	var b strings.Builder

	for i := 0; i < len(stored); i++ {
		if stored[i] != '=' {
			b.WriteByte(stored[i])
			continue
		}

		if i+2 >= len(stored) {
			return "", false
		}

		hi := strings.IndexByte(hexDigits, stored[i+1])
		lo := strings.IndexByte(hexDigits, stored[i+2])

		if hi < 0 || lo < 0 {
			return "", false
		}

		b.WriteByte(byte(hi<<4 | lo))

		i += 2
	}

	return b.String(), true
}

func init() {
	RegisterKVFactory(KVTypeNATS, func(ctx context.Context, cfg *configs.KVConfig) (KVStore, error) {
		return store(NewNATSKV(ctx, &cfg.NATS))
	})
}
