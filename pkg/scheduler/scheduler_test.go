package scheduler_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/yeisme/sourcelens/pkg/scheduler"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}

		time.Sleep(10 * time.Millisecond)
	}

	t.Fatal("condition not met before deadline")
}

func TestRunNowRecordsSuccessAndError(t *testing.T) {
	s, err := scheduler.NewScheduler()
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	defer s.Shutdown()

	var fail atomic.Bool

	job := func(context.Context) error {
		if fail.Load() {
			return errors.New("sweep failed")
		}

		return nil
	}

	// 每年一次，避免测试期间被 cron 触发
	if err := s.AddCron("sourcemap.expiry_sweep", "0 0 1 1 *", job); err != nil {
		t.Fatalf("add cron: %v", err)
	}

	s.Start()

	if err := s.RunNow("sourcemap.expiry_sweep"); err != nil {
		t.Fatalf("run now: %v", err)
	}

	waitFor(t, func() bool {
		info, _ := s.GetJobInfoByName("sourcemap.expiry_sweep")
		return info.Runs == 1 && info.Status == scheduler.StatusScheduled
	})

	fail.Store(true)

	if err := s.RunNow("sourcemap.expiry_sweep"); err != nil {
		t.Fatalf("run now: %v", err)
	}

	waitFor(t, func() bool {
		info, _ := s.GetJobInfoByName("sourcemap.expiry_sweep")
		return info.Runs == 2 && info.Failures == 1 && info.Status == scheduler.StatusError && info.Error == "sweep failed"
	})
}

func TestJobPanicIsRecorded(t *testing.T) {
	s, err := scheduler.NewScheduler()
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	defer s.Shutdown()

	if err := s.AddCron("cache.purge", "0 0 1 1 *", func(context.Context) error { panic("boom") }); err != nil {
		t.Fatalf("add cron: %v", err)
	}

	s.Start()

	if err := s.RunNow("cache.purge"); err != nil {
		t.Fatalf("run now: %v", err)
	}

	waitFor(t, func() bool {
		info, _ := s.GetJobInfoByName("cache.purge")
		return info.Status == scheduler.StatusError && info.Error == "panic: boom"
	})
}

func TestAddCronDuplicateAndUnknown(t *testing.T) {
	s, err := scheduler.NewScheduler()
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	defer s.Shutdown()

	noop := func(context.Context) error { return nil }

	if err := s.AddCron("a", "*/30 * * * *", noop); err != nil {
		t.Fatalf("add cron: %v", err)
	}

	if err := s.AddCron("a", "*/30 * * * *", noop); err == nil {
		t.Fatal("duplicate name accepted")
	}

	if err := s.AddCron("bad", "not a cron", noop); err == nil {
		t.Fatal("invalid cron accepted")
	}

	if err := s.RunNow("missing"); !errors.Is(err, scheduler.ErrJobNotFound) {
		t.Fatalf("run unknown job: %v", err)
	}

	if err := s.RemoveJobByName("a"); err != nil {
		t.Fatalf("remove: %v", err)
	}

	if got := s.GetJobInfos(); len(got) != 0 {
		t.Fatalf("jobs after remove = %v", got)
	}
}
