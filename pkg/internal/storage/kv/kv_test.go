package kv_test

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/yeisme/sourcelens/pkg/configs"
	"github.com/yeisme/sourcelens/pkg/internal/storage/kv"
)

func TestMemoryKVExpiry(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store := kv.NewMemory(func() time.Time { return now })
	ctx := context.Background()

	if err := store.Set(ctx, "sl:pos:a", []byte("v"), time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}

	got, err := store.Get(ctx, "sl:pos:a")
	if err != nil || string(got) != "v" {
		t.Fatalf("get before expiry = %q, %v", got, err)
	}

	now = now.Add(time.Minute)

	if _, err := store.Get(ctx, "sl:pos:a"); !errors.Is(err, kv.ErrNotFound) {
		t.Fatalf("get after expiry err = %v, want ErrNotFound", err)
	}

	if ok, _ := store.Exists(ctx, "sl:pos:a"); ok {
		t.Fatal("expired key still exists")
	}
}

func TestMemoryKVKeysPattern(t *testing.T) {
	store := kv.NewMemory(nil)
	ctx := context.Background()

	for _, k := range []string{"sl:pos:p1:a", "sl:pos:p1:b", "sl:pos:p2:a", "other"} {
		if err := store.Set(ctx, k, []byte(k), 0); err != nil {
			t.Fatalf("set %s: %v", k, err)
		}
	}

	keys, err := store.Keys(ctx, "sl:pos:p1:*")
	if err != nil {
		t.Fatalf("keys: %v", err)
	}

	sort.Strings(keys)

	if len(keys) != 2 || keys[0] != "sl:pos:p1:a" || keys[1] != "sl:pos:p1:b" {
		t.Fatalf("keys = %v", keys)
	}

	all, _ := store.Keys(ctx, "")
	if len(all) != 4 {
		t.Fatalf("all keys = %v", all)
	}
}

func TestMemoryKVReturnsCopy(t *testing.T) {
	store := kv.NewMemory(nil)
	ctx := context.Background()

	buf := []byte("abc")
	_ = store.Set(ctx, "k", buf, 0)
	buf[0] = 'x'

	got, _ := store.Get(ctx, "k")
	got[1] = 'y'

	again, _ := store.Get(ctx, "k")
	if string(again) != "abc" {
		t.Fatalf("stored value mutated: %q", again)
	}
}

func TestGroupcacheKVOverwriteAndDelete(t *testing.T) {
	cfg := &configs.GroupcacheKVConfig{
		Name:       "test-groupcache-overwrite",
		CacheBytes: 1 << 20,
	}

	store, err := kv.NewGroupcacheKV(cfg)
	if err != nil {
		t.Fatalf("create groupcache kv: %v", err)
	}

	ctx := context.Background()

	_ = store.Set(ctx, "k", []byte("one"), 0)
	if got, err := store.Get(ctx, "k"); err != nil || string(got) != "one" {
		t.Fatalf("first get = %q, %v", got, err)
	}

	_ = store.Set(ctx, "k", []byte("two"), 0)
	if got, err := store.Get(ctx, "k"); err != nil || string(got) != "two" {
		t.Fatalf("get after overwrite = %q, %v", got, err)
	}

	_ = store.Delete(ctx, "k")
	if _, err := store.Get(ctx, "k"); !errors.Is(err, kv.ErrNotFound) {
		t.Fatalf("get after delete err = %v", err)
	}

	if _, err := kv.NewGroupcacheKV(cfg); err == nil {
		t.Fatal("duplicate group name accepted")
	}
}

func TestNewKVClientMemory(t *testing.T) {
	cfg := configs.Defaults().KV

	client, err := kv.NewKVClient(context.Background(), &cfg)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	defer client.Close()

	if _, ok := client.KVStore.(*kv.MemoryKV); !ok {
		t.Fatalf("default kv store = %T, want *kv.MemoryKV", client.KVStore)
	}
}

func TestNewKVClientRejectsUnknownType(t *testing.T) {
	cfg := configs.Defaults().KV
	cfg.Type = "etcd"

	if _, err := kv.NewKVClient(context.Background(), &cfg); err == nil {
		t.Fatal("expected error for unregistered kv type")
	}

	types := kv.GetRegisteredKVTypes()
	if len(types) < 2 || !sort.SliceIsSorted(types, func(i, j int) bool { return types[i] < types[j] }) {
		t.Fatalf("registered types = %v", types)
	}
}

func TestKeysPatternSpansSlashes(t *testing.T) {
	store := kv.NewMemory(nil)
	ctx := context.Background()

	_ = store.Set(ctx, "sl:pos:web:static/js/app.js:1:0:1.0.0", []byte("x"), 0)
	_ = store.Set(ctx, "sl:pos:api:app.js:1:0:1.0.0", []byte("y"), 0)

	keys, _ := store.Keys(ctx, "sl:pos:web:*")
	if len(keys) != 1 {
		t.Fatalf("keys = %v, want the web key only", keys)
	}

	keys, _ = store.Keys(ctx, "sl:pos:???:*")
	if len(keys) != 2 {
		t.Fatalf("keys = %v, want both", keys)
	}
}

func TestNATSKeyEscaping(t *testing.T) {
	keys := []string{
		"sl:pos:web:1.0.0:app.min.js:1:10",
		"sl:rc:/api/v1/sourcemaps/web?page=2",
		"plain-key_1/a.b",
		"a=b",
	}

	for _, key := range keys {
		stored := kv.EscapeNATSKey(key)
		for i := range len(stored) {
			c := stored[i]
			if c == ':' || c == '?' || c == ' ' {
				t.Fatalf("escaped %q still contains %q", stored, c)
			}
		}

		back, ok := kv.UnescapeNATSKey(stored)
		if !ok || back != key {
			t.Fatalf("round trip %q -> %q -> %q", key, stored, back)
		}
	}

	if got := kv.EscapeNATSKey("sl:pos"); got != "sl=3Apos" {
		t.Fatalf("escape = %q", got)
	}

	if _, ok := kv.UnescapeNATSKey("broken=3"); ok {
		t.Fatal("truncated escape must be rejected")
	}
}

func TestTTLHeader(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	if raw := kv.SealTTL([]byte("v"), 0, now); string(raw) != "v" {
		t.Fatalf("ttl<=0 must not wrap, got %q", raw)
	}

	sealed := kv.SealTTL([]byte("v"), time.Minute, now)

	if v, expired := kv.OpenTTL(sealed, now.Add(59*time.Second)); expired || string(v) != "v" {
		t.Fatalf("before deadline = %q, %v", v, expired)
	}

	if _, expired := kv.OpenTTL(sealed, now.Add(time.Minute)); !expired {
		t.Fatal("value must expire at deadline")
	}

	if v, expired := kv.OpenTTL([]byte("SLT"), now); expired || string(v) != "SLT" {
		t.Fatalf("short value = %q, %v", v, expired)
	}
}
