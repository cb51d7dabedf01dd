package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/yeisme/sourcelens/pkg/configs"
	"github.com/yeisme/sourcelens/pkg/internal/model"
	"github.com/yeisme/sourcelens/pkg/internal/service"
	"github.com/yeisme/sourcelens/pkg/internal/store"
	"github.com/yeisme/sourcelens/pkg/internal/types"
	"github.com/yeisme/sourcelens/pkg/queue"
)

func TestUploadOverwritesNaturalKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.SourceMaps.Upload(ctx, "web", nil); !errors.Is(err, service.ErrInvalidArgument) {
		t.Fatalf("empty upload err = %v", err)
	}

	files := []types.SourceMapFile{{Filename: "app.min.js.map", Content: "first", Version: "1.0.0"}}
	if _, err := f.svc.SourceMaps.Upload(ctx, "web", files); err != nil {
		t.Fatalf("upload: %v", err)
	}

	f.clock.Advance(time.Minute)

	files[0].Content = "second"
	if _, err := f.svc.SourceMaps.Upload(ctx, "web", files); err != nil {
		t.Fatalf("re-upload: %v", err)
	}

	rows, err := f.svc.SourceMaps.List(ctx, "web", "1.0.0")
	if err != nil {
		t.Fatalf("list: %v", err)
	}

	if len(rows) != 1 || rows[0].Content != "second" || !rows[0].UploadedAt.Equal(t0.Add(time.Minute)) {
		t.Fatalf("rows = %+v", rows)
	}
}

func TestUploadWithoutVersion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.SourceMaps.Upload(ctx, "web", []types.SourceMapFile{{Filename: "a.js.map", Content: "x"}}); err != nil {
		t.Fatalf("upload: %v", err)
	}

	row, err := f.svc.SourceMaps.Get(ctx, "web", "", "a.js.map")
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	if row.Version != model.DefaultVersion {
		t.Fatalf("version = %q", row.Version)
	}

	if _, err := f.svc.SourceMaps.Get(ctx, "web", "1.0.0", "a.js.map"); !errors.Is(err, service.ErrNotFound) {
		t.Fatalf("missing err = %v", err)
	}
}

func TestHealthThresholds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if h := f.svc.SourceMaps.Health(ctx); h.Status != types.HealthUnhealthy {
		t.Fatalf("empty status = %s", h.Status)
	}

	upload := func(n int, version string) {
		files := make([]types.SourceMapFile, 0, n)
		for i := range n {
			files = append(files, types.SourceMapFile{Filename: string(rune('a'+i)) + ".js.map", Content: "x", Version: version})
		}

		if _, err := f.svc.SourceMaps.Upload(ctx, "web", files); err != nil {
			t.Fatalf("upload: %v", err)
		}
	}

	upload(3, "1.0.0")

	if h := f.svc.SourceMaps.Health(ctx); h.Status != types.HealthDegraded || h.RecentUploads != 3 {
		t.Fatalf("health = %+v", h)
	}

	upload(7, "1.0.1")

	if h := f.svc.SourceMaps.Health(ctx); h.Status != types.HealthHealthy || h.RecentUploads != 10 {
		t.Fatalf("health = %+v", h)
	}

	f.clock.Advance(6 * time.Minute)

	if h := f.svc.SourceMaps.Health(ctx); h.Status != types.HealthUnhealthy {
		t.Fatalf("stale status = %s", h.Status)
	}
}

type brokenStore struct {
	store.Store
}

var errBroken = errors.New("connection refused")

func (brokenStore) Ping(context.Context) error { return errBroken }

func (brokenStore) FindByProjectAndVersion(context.Context, string, string) ([]*model.SourceMap, error) {
	return nil, errBroken
}

func TestHealthStoreError(t *testing.T) {
	svc := service.New(service.Deps{Store: brokenStore{store.NewMemoryStore()}})

	h := svc.SourceMaps.Health(context.Background())
	if h.Status != types.HealthUnhealthy || h.StoreError != errBroken.Error() {
		t.Fatalf("health = %+v", h)
	}
}

func TestUploadArchives(t *testing.T) {
	objects := newFakeObjects()
	f := newFixture(t, func(d *service.Deps) { d.Archive = service.NewArchiver(objects, "sm/") })

	files := []types.SourceMapFile{
		{Filename: "app.min.js.map", Content: encodedMap, Version: "1.0.0"},
		{Filename: "raw.js.map", Content: "%%%", Version: "1.0.0"},
	}
	if _, err := f.svc.SourceMaps.Upload(context.Background(), "web", files); err != nil {
		t.Fatalf("upload: %v", err)
	}

	key := "sm/projects/web/1.0.0/app.min.js.map"
	if objects.puts[key] != testMap || objects.types[key] != "application/json" {
		t.Fatalf("archived %q as %q", objects.puts[key], objects.types[key])
	}

	if raw := "sm/projects/web/1.0.0/raw.js.map"; objects.puts[raw] != "%%%" || objects.types[raw] != "text/plain" {
		t.Fatalf("raw archived %q as %q", objects.puts[raw], objects.types[raw])
	}
}

func TestUploadPublishesEvent(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ch := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 4}, watermill.NopLogger{})
	defer ch.Close()

	msgs, err := ch.Subscribe(ctx, queue.TopicSourceMapUploaded)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	cfg := configs.EventsConfig{Enabled: true, SourceMap: configs.SourceMapEventsConfig{Uploaded: true}}
	f := newFixture(t, func(d *service.Deps) { d.Events = service.NewEventPublisherWith(ch, cfg) })

	files := []types.SourceMapFile{{Filename: "app.min.js.map", Content: encodedMap, Version: "1.0.0"}}
	if _, err := f.svc.SourceMaps.Upload(ctx, "web", files); err != nil {
		t.Fatalf("upload: %v", err)
	}

	select {
	case m := <-msgs:
		m.Ack()

		env, err := queue.ParseSourceMapUploaded(m)
		if err != nil {
			t.Fatalf("parse: %v", err)
		}

		if env.Payload.ProjectID != "web" || len(env.Payload.Files) != 1 || env.Payload.Files[0].Size != int64(len(encodedMap)) {
			t.Fatalf("payload = %+v", env.Payload)
		}

		if env.Header.Producer != configs.AppName {
			t.Fatalf("producer = %q", env.Header.Producer)
		}
	case <-ctx.Done():
		t.Fatal("event not delivered")
	}
}

func TestCleanupExpiredAcrossProjects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, p := range []string{"web", "admin"} {
		if _, err := f.svc.SourceMaps.Upload(ctx, p, []types.SourceMapFile{{Filename: "a.js.map", Content: "abc", Version: "1.0.0"}}); err != nil {
			t.Fatalf("upload: %v", err)
		}
	}

	f.clock.Advance(31 * 24 * time.Hour)

	res, err := f.svc.SourceMaps.CleanupExpired(ctx)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}

	if res.Count != 2 || res.TotalSize != 6 {
		t.Fatalf("result = %+v", res)
	}
}

func TestDeleteByIDs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.SourceMaps.DeleteByIDs(ctx, nil); !errors.Is(err, service.ErrInvalidArgument) {
		t.Fatalf("empty ids err = %v", err)
	}

	rows, err := f.svc.SourceMaps.Upload(ctx, "web", []types.SourceMapFile{
		{Filename: "a.js.map", Content: "a", Version: "1.0.0"},
		{Filename: "b.js.map", Content: "b", Version: "1.0.0"},
	})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}

	n, err := f.svc.SourceMaps.DeleteByIDs(ctx, []uint{rows[0].ID, 999})
	if err != nil || n != 1 {
		t.Fatalf("deleted %d, err %v", n, err)
	}
}
