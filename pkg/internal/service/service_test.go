package service_test

import (
	"context"
	"encoding/base64"
	"sync"
	"testing"
	"time"

	"github.com/yeisme/sourcelens/pkg/internal/service"
	"github.com/yeisme/sourcelens/pkg/internal/store"
	"github.com/yeisme/sourcelens/pkg/internal/types"
)

const testMap = `{"version":3,"file":"app.min.js","sources":["src/a.ts","src/b.ts"],"names":["handler"],"mappings":"AAAA,UAEI;KCKJA"}`

var (
	t0         = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	encodedMap = base64.StdEncoding.EncodeToString([]byte(testMap))
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	clock *fakeClock
	store *store.MemoryStore
	svc   *service.Services
}

func newFixture(t *testing.T, configure ...func(*service.Deps)) *fixture {
	t.Helper()

	clock := &fakeClock{now: t0}
	st := store.NewMemoryStore(store.WithClock(clock.Now))

	d := service.Deps{Store: st, Now: clock.Now}
	for _, fn := range configure {
		fn(&d)
	}

	return &fixture{clock: clock, store: st, svc: service.New(d)}
}

func (f *fixture) createVersion(t *testing.T, version, parent string, files ...string) {
	t.Helper()

	vf := make([]types.VersionFile, 0, len(files)/2)
	for i := 0; i+1 < len(files); i += 2 {
		vf = append(vf, types.VersionFile{Filename: files[i], Content: files[i+1]})
	}

	if _, err := f.svc.Versions.CreateVersion(context.Background(), "web", version, vf, parent); err != nil {
		t.Fatalf("create %s: %v", version, err)
	}
}

// fakeObjects 记录归档写入的对象存储.
type fakeObjects struct {
	mu      sync.Mutex
	puts    map[string]string
	types   map[string]string
	removed []string
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{puts: map[string]string{}, types: map[string]string{}}
}

func (o *fakeObjects) PutBytes(_ context.Context, key string, data []byte, contentType string, _ map[string]string) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.puts[key] = string(data)
	o.types[key] = contentType

	return "etag", nil
}

func (o *fakeObjects) DeletePrefix(_ context.Context, prefix string) (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.removed = append(o.removed, prefix)

	return 1, nil
}
