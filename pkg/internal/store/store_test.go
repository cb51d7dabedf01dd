package store_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm/logger"

	"github.com/yeisme/sourcelens/pkg/internal/model"
	"github.com/yeisme/sourcelens/pkg/internal/storage/db"
	"github.com/yeisme/sourcelens/pkg/internal/store"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *fakeClock { return &fakeClock{now: t0} }

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

type factory func(t *testing.T, clock *fakeClock) store.Store

func newMemory(_ *testing.T, clock *fakeClock) store.Store {
	return store.NewMemoryStore(store.WithClock(clock.Now))
}

func newSQLite(t *testing.T, clock *fakeClock) store.Store {
	t.Helper()

	gdb, err := db.Open(sqlite.Open(":memory:"), logger.Discard)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}

	// 内存库每个连接独立，限制为单连接
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	s := store.NewGormStore(gdb, store.WithClock(clock.Now))
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	return s
}

var factories = map[string]factory{
	"memory": newMemory,
	"sqlite": newSQLite,
}

// runContract 对每种实现执行同一组用例.
func runContract(t *testing.T, fn func(t *testing.T, s store.Store, clock *fakeClock)) {
	t.Helper()

	for name, f := range factories {
		t.Run(name, func(t *testing.T) {
			clock := newClock()
			fn(t, f(t, clock), clock)
		})
	}
}

func upsert(t *testing.T, s store.Store, project, version, filename, content string) *model.SourceMap {
	t.Helper()

	row, err := s.Upsert(context.Background(), store.UpsertInput{
		ProjectID: project,
		Version:   version,
		Filename:  filename,
		Content:   content,
	})
	if err != nil {
		t.Fatalf("upsert %s/%s/%s: %v", project, version, filename, err)
	}

	return row
}

func TestUpsertOverwritesByNaturalKey(t *testing.T) {
	runContract(t, func(t *testing.T, s store.Store, clock *fakeClock) {
		ctx := context.Background()

		first := upsert(t, s, "p1", "1.0.0", "app.js.map", "Zmlyc3Q=")
		clock.Advance(time.Hour)
		second := upsert(t, s, "p1", "1.0.0", "app.js.map", "c2Vjb25k")

		if first.ID != second.ID {
			t.Fatalf("expected same row, got ids %d and %d", first.ID, second.ID)
		}

		rows, err := s.FindByProjectAndVersion(ctx, "p1", "1.0.0")
		if err != nil {
			t.Fatalf("find: %v", err)
		}

		if len(rows) != 1 {
			t.Fatalf("expected 1 row, got %d", len(rows))
		}

		got := rows[0]
		if got.Content != "c2Vjb25k" {
			t.Errorf("content = %q, want second upload", got.Content)
		}

		if !got.UploadedAt.Equal(t0.Add(time.Hour)) {
			t.Errorf("uploadedAt = %v, want %v", got.UploadedAt, t0.Add(time.Hour))
		}

		if got.ExpiresAt == nil || !got.ExpiresAt.Equal(t0.Add(store.DefaultExpiry)) {
			t.Errorf("expiresAt = %v, want preserved %v", got.ExpiresAt, t0.Add(store.DefaultExpiry))
		}

		if got.Size != int64(len("c2Vjb25k")) {
			t.Errorf("size = %d", got.Size)
		}
	})
}

func TestUpsertDefaultsVersion(t *testing.T) {
	runContract(t, func(t *testing.T, s store.Store, _ *fakeClock) {
		row := upsert(t, s, "p1", "", "app.js.map", "e30=")
		if row.Version != model.DefaultVersion {
			t.Fatalf("version = %q, want %q", row.Version, model.DefaultVersion)
		}

		found, err := s.FindByNaturalKey(context.Background(), "p1", "", "app.js.map")
		if err != nil {
			t.Fatalf("find: %v", err)
		}

		if found == nil || found.ID != row.ID {
			t.Fatalf("expected to find row %d, got %+v", row.ID, found)
		}
	})
}

func TestFindMissingReturnsNil(t *testing.T) {
	runContract(t, func(t *testing.T, s store.Store, _ *fakeClock) {
		ctx := context.Background()

		row, err := s.FindByNaturalKey(ctx, "nope", "1.0.0", "x.map")
		if err != nil || row != nil {
			t.Fatalf("expected nil, nil; got %v, %v", row, err)
		}

		rows, err := s.FindByProjectAndVersion(ctx, "nope", "")
		if err != nil || len(rows) != 0 {
			t.Fatalf("expected empty result, got %d rows, err %v", len(rows), err)
		}
	})
}

func TestInsertConflict(t *testing.T) {
	runContract(t, func(t *testing.T, s store.Store, clock *fakeClock) {
		ctx := context.Background()
		exp := clock.Now().Add(store.DefaultExpiry)

		rows := []*model.SourceMap{
			{ProjectID: "p1", Version: "1.0.0", Filename: "a.js.map", Content: "YQ==", UploadedAt: clock.Now(), ExpiresAt: &exp},
			{ProjectID: "p1", Version: "1.0.0", Filename: "b.js.map", Content: "Yg==", UploadedAt: clock.Now(), ExpiresAt: &exp},
		}
		if err := s.Insert(ctx, rows); err != nil {
			t.Fatalf("insert: %v", err)
		}

		if rows[0].ID == 0 || rows[1].ID == 0 {
			t.Fatalf("expected ids to be assigned")
		}

		again := []*model.SourceMap{
			{ProjectID: "p1", Version: "1.0.0", Filename: "c.js.map", Content: "Yw==", UploadedAt: clock.Now()},
			{ProjectID: "p1", Version: "1.0.0", Filename: "a.js.map", Content: "changed", UploadedAt: clock.Now()},
		}

		err := s.Insert(ctx, again)
		if !errors.Is(err, store.ErrConflict) {
			t.Fatalf("expected ErrConflict, got %v", err)
		}

		n, err := s.CountVersion(ctx, "p1", "1.0.0")
		if err != nil {
			t.Fatalf("count: %v", err)
		}

		if n != 2 {
			t.Fatalf("expected conflicting batch to be rejected whole, count = %d", n)
		}

		a, _ := s.FindByNaturalKey(ctx, "p1", "1.0.0", "a.js.map")
		if a == nil || a.Content != "YQ==" {
			t.Fatalf("original row modified: %+v", a)
		}
	})
}

func TestQueryPaginationAndSort(t *testing.T) {
	runContract(t, func(t *testing.T, s store.Store, clock *fakeClock) {
		ctx := context.Background()

		for _, name := range []string{"a.js.map", "b.js.map", "c.js.map", "d.css.map", "e.js.map"} {
			upsert(t, s, "p1", "1.0.0", name, "e30=")
			clock.Advance(time.Minute)
		}

		upsert(t, s, "p2", "1.0.0", "a.js.map", "e30=")

		items, total, err := s.Query(ctx, store.Query{ProjectID: "p1", Page: 2, PageSize: 2})
		if err != nil {
			t.Fatalf("query: %v", err)
		}

		if total != 5 {
			t.Fatalf("total = %d, want 5", total)
		}

		if len(items) != 2 || items[0].Filename != "c.js.map" || items[1].Filename != "b.js.map" {
			t.Fatalf("unexpected page 2: %v", filenames(items))
		}

		items, total, err = s.Query(ctx, store.Query{ProjectID: "p1", Search: ".js.", SortBy: "filename", SortOrder: "asc", Page: -3})
		if err != nil {
			t.Fatalf("query: %v", err)
		}

		if total != 4 || len(items) != 4 || items[0].Filename != "a.js.map" || items[3].Filename != "e.js.map" {
			t.Fatalf("unexpected search result: total=%d %v", total, filenames(items))
		}
	})
}

func TestQueryExpirationStatus(t *testing.T) {
	runContract(t, func(t *testing.T, s store.Store, clock *fakeClock) {
		ctx := context.Background()

		upsert(t, s, "p1", "1.0.0", "old.js.map", "e30=")
		upsert(t, s, "p1", "1.1.0", "new.js.map", "e30=")

		if _, err := s.ExtendExpiry(ctx, "p1", "1.1.0", "none", clock.Now().Add(3*24*time.Hour)); err != nil {
			t.Fatalf("extend: %v", err)
		}

		clock.Advance(4 * 24 * time.Hour)

		expired, _, err := s.Query(ctx, store.Query{ProjectID: "p1", Status: store.StatusExpired})
		if err != nil {
			t.Fatalf("query: %v", err)
		}

		if len(expired) != 1 || expired[0].Filename != "old.js.map" {
			t.Fatalf("expired = %v", filenames(expired))
		}

		active, _, err := s.Query(ctx, store.Query{ProjectID: "p1", Status: store.StatusActive})
		if err != nil {
			t.Fatalf("query: %v", err)
		}

		if len(active) != 1 || active[0].Filename != "new.js.map" {
			t.Fatalf("active = %v", filenames(active))
		}
	})
}

func TestDistinctVersionsAndSummary(t *testing.T) {
	runContract(t, func(t *testing.T, s store.Store, clock *fakeClock) {
		ctx := context.Background()

		upsert(t, s, "p1", "1.1.0", "a.js.map", "YWFh")
		clock.Advance(time.Minute)
		upsert(t, s, "p1", "1.0.0", "a.js.map", "YQ==")
		upsert(t, s, "p1", "1.0.0", "b.js.map", "YmJiYg==")
		upsert(t, s, "p2", "9.9.9", "a.js.map", "YQ==")

		versions, err := s.DistinctVersions(ctx, "p1")
		if err != nil {
			t.Fatalf("versions: %v", err)
		}

		if len(versions) != 2 || versions[0] != "1.0.0" || versions[1] != "1.1.0" {
			t.Fatalf("versions = %v", versions)
		}

		summary, err := s.AggregateVersionSummary(ctx, "p1")
		if err != nil {
			t.Fatalf("summary: %v", err)
		}

		if len(summary) != 2 {
			t.Fatalf("summary = %+v", summary)
		}

		if summary[0].Version != "1.0.0" || summary[0].FileCount != 2 || summary[0].TotalSize != 12 {
			t.Errorf("latest group = %+v", summary[0])
		}

		if !summary[0].UploadedAt.Equal(t0.Add(time.Minute)) {
			t.Errorf("uploadedAt = %v", summary[0].UploadedAt)
		}

		if summary[1].Version != "1.1.0" || summary[1].FileCount != 1 {
			t.Errorf("older group = %+v", summary[1])
		}
	})
}

func TestDeleteExpiredReportsVersions(t *testing.T) {
	runContract(t, func(t *testing.T, s store.Store, clock *fakeClock) {
		ctx := context.Background()

		upsert(t, s, "p1", "1.0.0", "a.js.map", "YQ==")
		upsert(t, s, "p1", "1.0.0", "b.js.map", "Yg==")
		clock.Advance(20 * 24 * time.Hour)
		upsert(t, s, "p1", "2.0.0", "a.js.map", "YQ==")
		upsert(t, s, "p2", "1.0.0", "a.js.map", "YQ==")
		clock.Advance(11 * 24 * time.Hour)

		listed, err := s.ListExpired(ctx, "p1")
		if err != nil {
			t.Fatalf("list expired: %v", err)
		}

		if len(listed) != 2 {
			t.Fatalf("expected 2 expired rows, got %d", len(listed))
		}

		res, err := s.DeleteExpired(ctx, "p1")
		if err != nil {
			t.Fatalf("delete expired: %v", err)
		}

		if res.Count != 2 || len(res.Versions) != 1 || res.Versions[0] != "1.0.0" || res.TotalSize != 8 {
			t.Fatalf("unexpected result %+v", res)
		}

		left, _ := s.FindByProjectAndVersion(ctx, "p1", "")
		if len(left) != 1 || left[0].Version != "2.0.0" {
			t.Fatalf("remaining = %v", filenames(left))
		}
	})
}

func TestExtendExpirySkipsVersionAndParentLinkage(t *testing.T) {
	runContract(t, func(t *testing.T, s store.Store, clock *fakeClock) {
		ctx := context.Background()
		parent := "1.0.0"
		exp := clock.Now().Add(store.DefaultExpiry)

		upsert(t, s, "p1", "1.0.0", "a.js.map", "YQ==")
		upsert(t, s, "p1", "0.9.0", "a.js.map", "YQ==")
		upsert(t, s, "p2", "0.1.0", "a.js.map", "YQ==")

		if err := s.Insert(ctx, []*model.SourceMap{
			{ProjectID: "p1", Version: "1.0.1", Filename: "a.js.map", Content: "YQ==", ParentVersion: &parent, UploadedAt: clock.Now(), ExpiresAt: &exp},
			{ProjectID: "p1", Version: "1.0.2", Filename: "a.js.map", Content: "YQ==", ParentVersion: &parent, UploadedAt: clock.Now(), ExpiresAt: &exp},
		}); err != nil {
			t.Fatalf("insert: %v", err)
		}

		short := clock.Now().Add(7 * 24 * time.Hour)

		n, err := s.ExtendExpiry(ctx, "p1", "1.0.2", parent, short)
		if err != nil {
			t.Fatalf("extend: %v", err)
		}

		// 1.0.0 与 0.9.0 被缩短；1.0.2 为新版本，1.0.1 与其同源
		if n != 2 {
			t.Fatalf("affected = %d, want 2", n)
		}

		for _, tc := range []struct {
			version string
			want    time.Time
		}{
			{"1.0.0", short},
			{"0.9.0", short},
			{"1.0.1", exp},
			{"1.0.2", exp},
		} {
			row, _ := s.FindByNaturalKey(ctx, "p1", tc.version, "a.js.map")
			if row == nil || row.ExpiresAt == nil || !row.ExpiresAt.Equal(tc.want) {
				t.Errorf("version %s expiresAt = %v, want %v", tc.version, row.ExpiresAt, tc.want)
			}
		}

		other, _ := s.FindByNaturalKey(ctx, "p2", "0.1.0", "a.js.map")
		if other == nil || !other.ExpiresAt.Equal(exp) {
			t.Errorf("other project touched: %+v", other)
		}
	})
}

func TestDeletes(t *testing.T) {
	runContract(t, func(t *testing.T, s store.Store, _ *fakeClock) {
		ctx := context.Background()

		a := upsert(t, s, "p1", "1.0.0", "a.js.map", "YQ==")
		upsert(t, s, "p1", "1.0.0", "b.js.map", "YQ==")
		c := upsert(t, s, "p1", "2.0.0", "c.js.map", "YQ==")

		n, err := s.DeleteByIDs(ctx, []uint{c.ID, 9999})
		if err != nil || n != 1 {
			t.Fatalf("delete by ids = %d, %v", n, err)
		}

		n, err = s.DeleteByIDs(ctx, nil)
		if err != nil || n != 0 {
			t.Fatalf("delete empty ids = %d, %v", n, err)
		}

		n, err = s.DeleteByProjectAndVersion(ctx, "p1", "1.0.0")
		if err != nil || n != 2 {
			t.Fatalf("delete version = %d, %v", n, err)
		}

		if row, _ := s.FindByNaturalKey(ctx, "p1", "1.0.0", a.Filename); row != nil {
			t.Fatalf("row still present: %+v", row)
		}

		n, err = s.DeleteByProjectAndVersion(ctx, "p1", "1.0.0")
		if err != nil || n != 0 {
			t.Fatalf("second delete = %d, %v", n, err)
		}
	})
}

func TestRecentUploadsAndStats(t *testing.T) {
	runContract(t, func(t *testing.T, s store.Store, clock *fakeClock) {
		ctx := context.Background()

		upsert(t, s, "p1", "1.0.0", "a.js.map", "YQ==")
		clock.Advance(48 * time.Hour)
		since := clock.Now().Add(-24 * time.Hour)
		upsert(t, s, "p1", "1.1.0", "a.js.map", "YWE=")
		upsert(t, s, "p1", "1.0.0", "z.js.map", "YQ==")

		recent, err := s.RecentUploads(ctx, "p1", "1.0.0", since)
		if err != nil {
			t.Fatalf("recent: %v", err)
		}

		if len(recent) != 1 || recent[0].Version != "1.1.0" {
			t.Fatalf("recent = %+v", recent)
		}

		n, err := s.CountSince(ctx, since)
		if err != nil || n != 2 {
			t.Fatalf("count since = %d, %v", n, err)
		}

		clock.Advance(29 * 24 * time.Hour)

		st, err := s.ProjectStats(ctx, "p1")
		if err != nil {
			t.Fatalf("stats: %v", err)
		}

		if st.TotalFiles != 3 || st.TotalSize != 12 || len(st.Versions) != 2 {
			t.Fatalf("stats = %+v", st)
		}

		// 第一个文件已过期，其余两个在 7 天内过期
		if st.ExpiredCount != 1 || st.ExpiringSoon != 2 {
			t.Fatalf("expiry counts = %d/%d", st.ExpiredCount, st.ExpiringSoon)
		}

		history, err := s.VersionHistory(ctx, "p1", 2)
		if err != nil || len(history) != 2 {
			t.Fatalf("history = %d, %v", len(history), err)
		}

		if err := s.Ping(ctx); err != nil {
			t.Fatalf("ping: %v", err)
		}
	})
}

func TestDeleteExpiredBoundary(t *testing.T) {
	runContract(t, func(t *testing.T, s store.Store, clock *fakeClock) {
		ctx := context.Background()

		exp := clock.Now()
		later := exp.Add(time.Hour)

		if err := s.Insert(ctx, []*model.SourceMap{
			{ProjectID: "p1", Version: "1.0.0", Filename: "edge.js.map", Content: "YQ==", UploadedAt: clock.Now(), ExpiresAt: &exp},
			{ProjectID: "p2", Version: "1.0.0", Filename: "edge.js.map", Content: "YQ==", UploadedAt: clock.Now(), ExpiresAt: &exp},
			{ProjectID: "p1", Version: "1.0.0", Filename: "kept.js.map", Content: "YQ==", UploadedAt: clock.Now(), ExpiresAt: &later},
		}); err != nil {
			t.Fatalf("insert: %v", err)
		}

		res, err := s.DeleteExpired(ctx, "")
		if err != nil {
			t.Fatalf("delete expired: %v", err)
		}

		if res.Count != 0 {
			t.Fatalf("expiresAt == now must be kept, deleted %d", res.Count)
		}

		clock.Advance(time.Microsecond)

		res, err = s.DeleteExpired(ctx, "")
		if err != nil {
			t.Fatalf("delete expired: %v", err)
		}

		if res.Count != 2 {
			t.Fatalf("expiresAt one microsecond in the past must be deleted, got %d", res.Count)
		}

		left, _ := s.FindByProjectAndVersion(ctx, "p1", "1.0.0")
		if len(left) != 1 || left[0].Filename != "kept.js.map" {
			t.Fatalf("remaining = %v", filenames(left))
		}

		if rest, _ := s.FindByProjectAndVersion(ctx, "p2", ""); len(rest) != 0 {
			t.Fatalf("p2 remaining = %v", filenames(rest))
		}
	})
}

func TestQuerySearchIsLiteral(t *testing.T) {
	runContract(t, func(t *testing.T, s store.Store, _ *fakeClock) {
		ctx := context.Background()

		for _, name := range []string{"a_b.js.map", "axb.js.map", "100%.js.map", "1000.js.map", "wow!.js.map"} {
			upsert(t, s, "p1", "1.0.0", name, "e30=")
		}

		for search, want := range map[string]string{
			"a_b":  "a_b.js.map",
			"100%": "100%.js.map",
			"!":    "wow!.js.map",
		} {
			items, total, err := s.Query(ctx, store.Query{ProjectID: "p1", Search: search})
			if err != nil {
				t.Fatalf("query %q: %v", search, err)
			}

			if total != 1 || len(items) != 1 || items[0].Filename != want {
				t.Errorf("search %q = %v (total %d), want %s", search, filenames(items), total, want)
			}
		}
	})
}

func TestMemoryReturnsCopies(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()

	row, err := s.Upsert(ctx, store.UpsertInput{ProjectID: "p1", Version: "1.0.0", Filename: "a.js.map", Content: "YQ=="})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	row.Content = "mutated"
	*row.ExpiresAt = time.Time{}

	again, _ := s.FindByNaturalKey(ctx, "p1", "1.0.0", "a.js.map")
	if again.Content != "YQ==" || again.ExpiresAt.IsZero() {
		t.Fatalf("store state leaked through returned pointer: %+v", again)
	}
}

func filenames(rows []*model.SourceMap) []string {
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.Version+"/"+r.Filename)
	}

	return out
}
