package jobs_test

import (
	"context"
	"testing"
	"time"

	"github.com/yeisme/sourcelens/pkg/configs"
	"github.com/yeisme/sourcelens/pkg/internal/jobs"
	"github.com/yeisme/sourcelens/pkg/internal/service"
	"github.com/yeisme/sourcelens/pkg/internal/store"
	"github.com/yeisme/sourcelens/pkg/internal/types"
	"github.com/yeisme/sourcelens/pkg/scheduler"
)

func TestExpirySweep(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	st := store.NewMemoryStore(store.WithClock(clock))
	svc := service.New(service.Deps{Store: st, Now: clock})
	ctx := context.Background()

	if _, err := svc.SourceMaps.Upload(ctx, "web", []types.SourceMapFile{{Filename: "a.js.map", Content: "abc", Version: "1.0.0"}}); err != nil {
		t.Fatalf("upload: %v", err)
	}

	if err := jobs.ExpirySweep(svc)(ctx); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	if n, _ := st.CountVersion(ctx, "web", "1.0.0"); n != 1 {
		t.Fatalf("fresh file removed, %d left", n)
	}

	now = now.Add(31 * 24 * time.Hour)

	if err := jobs.ExpirySweep(svc)(ctx); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	if n, _ := st.CountVersion(ctx, "web", "1.0.0"); n != 0 {
		t.Fatalf("expired file kept, %d left", n)
	}
}

func TestRegisterCronJobs(t *testing.T) {
	sched, err := scheduler.NewScheduler()
	if err != nil {
		t.Fatalf("scheduler: %v", err)
	}
	defer sched.Shutdown()

	svc := service.New(service.Deps{Store: store.NewMemoryStore()})

	if err := jobs.RegisterCronJobs(sched, svc, configs.SourceMapCleanupConfig{Enabled: true}); err != nil {
		t.Fatalf("register: %v", err)
	}

	infos := sched.GetJobInfos()
	if len(infos) != 2 || infos[0].Name != jobs.JobCachePurge || infos[1].Name != jobs.JobExpirySweep {
		t.Fatalf("jobs = %+v", infos)
	}

	if infos[1].CronExpr != configs.DefaultSourceMapCleanupCron {
		t.Fatalf("cron = %q", infos[1].CronExpr)
	}
}

func TestRegisterCronJobsDisabled(t *testing.T) {
	sched, err := scheduler.NewScheduler()
	if err != nil {
		t.Fatalf("scheduler: %v", err)
	}
	defer sched.Shutdown()

	svc := service.New(service.Deps{Store: store.NewMemoryStore()})

	if err := jobs.RegisterCronJobs(sched, svc, configs.SourceMapCleanupConfig{}); err != nil {
		t.Fatalf("register: %v", err)
	}

	if n := len(sched.GetJobInfos()); n != 0 {
		t.Fatalf("jobs = %d, want 0", n)
	}
}
