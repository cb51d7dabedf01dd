package store_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm/logger"

	"github.com/yeisme/sourcelens/pkg/internal/model"
	"github.com/yeisme/sourcelens/pkg/internal/storage/db"
	"github.com/yeisme/sourcelens/pkg/internal/store"
)

func newReportStores(t *testing.T) map[string]store.ReportStore {
	t.Helper()

	gdb, err := db.Open(sqlite.Open(":memory:"), logger.Discard)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}

	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	gs := store.NewGormReportStore(gdb)
	if err := gs.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	return map[string]store.ReportStore{
		"memory": store.NewMemoryReportStore(),
		"sqlite": gs,
	}
}

func TestReportsPagedNewestFirst(t *testing.T) {
	for name, s := range newReportStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			var reports []*model.ErrorReport

			for i := range 5 {
				at := t0.Add(time.Duration(i) * time.Minute)
				reports = append(reports, &model.ErrorReport{
					ID:         model.NewULID(at),
					ProjectID:  "web",
					Message:    fmt.Sprintf("boom %d", i),
					OccurredAt: at,
					CreatedAt:  at,
				})
			}

			reports = append(reports, &model.ErrorReport{ID: model.NewULID(t0), ProjectID: "other", OccurredAt: t0})

			if err := s.SaveReports(ctx, reports); err != nil {
				t.Fatalf("save: %v", err)
			}

			page, total, err := s.ListReports(ctx, "web", 2, 2)
			if err != nil {
				t.Fatalf("list: %v", err)
			}

			if total != 5 || len(page) != 2 {
				t.Fatalf("total=%d len=%d", total, len(page))
			}

			if page[0].Message != "boom 2" || page[1].Message != "boom 1" {
				t.Fatalf("page = %q, %q", page[0].Message, page[1].Message)
			}

			last, _, err := s.ListReports(ctx, "web", 3, 2)
			if err != nil || len(last) != 1 || last[0].Message != "boom 0" {
				t.Fatalf("last page = %v, %v", last, err)
			}
		})
	}
}
