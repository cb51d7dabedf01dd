// Package scheduler 基于 gocron/v2 的定时任务调度，过期 SourceMap 清理与解码缓存清空都注册在这里.
// 每个任务记录最近一次执行的状态，供 /api/v1/admin/jobs 查看与手动触发.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog"

	"github.com/yeisme/sourcelens/pkg/log"
)

// ErrJobNotFound 任务名不存在.
var ErrJobNotFound = errors.New("job not found")

// JobStatus 任务状态.
type JobStatus string

const (
	StatusScheduled JobStatus = "scheduled"
	StatusRunning   JobStatus = "running"
	StatusError     JobStatus = "error" // 最近一次执行出错
)

// JobFunc 任务函数，ctx 在调度器关闭时取消.
type JobFunc func(ctx context.Context) error

// JobInfo 任务的调度与执行情况.
type JobInfo struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	CronExpr     string        `json:"cron_expr"`
	NextRun      time.Time     `json:"next_run"`
	LastRun      time.Time     `json:"last_run"`
	LastSuccess  time.Time     `json:"last_success,omitempty"`
	LastDuration time.Duration `json:"last_duration"`
	Runs         int           `json:"runs"`
	Failures     int           `json:"failures"`
	Status       JobStatus     `json:"status"`
	Error        string        `json:"error,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
}

type entry struct {
	job  gocron.Job
	info JobInfo
}

// Scheduler 定时任务调度器，同名任务只能注册一次.
type Scheduler struct {
	cron   gocron.Scheduler
	logger zerolog.Logger

	mu   sync.RWMutex
	jobs map[string]*entry

	ctx    context.Context
	cancel context.CancelFunc
}

// NewScheduler 创建调度器，cron 表达式按 UTC 解释.
func NewScheduler() (*Scheduler, error) {
	c, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		cron:   c,
		logger: log.Logger().With().Str("component", "scheduler").Logger(),
		jobs:   make(map[string]*entry),
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// AddCron 注册 cron 任务，上一次还没跑完时跳过本次触发.
func (s *Scheduler) AddCron(name, cronExpr string, fn JobFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[name]; ok {
		return fmt.Errorf("job %s already registered", name)
	}

	j, err := s.cron.NewJob(
		gocron.CronJob(cronExpr, false),
		gocron.NewTask(s.run, name, fn),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("job %s: %w", name, err)
	}

	next, _ := j.NextRun()

	s.jobs[name] = &entry{job: j, info: JobInfo{
		ID:        j.ID().String(),
		Name:      name,
		CronExpr:  cronExpr,
		NextRun:   next,
		Status:    StatusScheduled,
		CreatedAt: time.Now(),
	}}

	s.logger.Info().Str("job", name).Str("cron", cronExpr).Msg("job registered")

	return nil
}

// run 执行任务并记录结果，panic 记为失败.
func (s *Scheduler) run(name string, fn JobFunc) {
	s.update(name, func(info *JobInfo) { info.Status = StatusRunning })

	start := time.Now()

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()

		return fn(s.ctx)
	}()

	took := time.Since(start)

	s.update(name, func(info *JobInfo) {
		info.LastRun = start
		info.LastDuration = took
		info.Runs++

		if err != nil {
			info.Status = StatusError
			info.Error = err.Error()
			info.Failures++

			return
		}

		info.Status = StatusScheduled
		info.Error = ""
		info.LastSuccess = start.Add(took)
	})

	ev := s.logger.Debug()
	if err != nil {
		ev = s.logger.Error().Err(err)
	}

	ev.Str("job", name).Dur("took", took).Msg("job finished")
}

func (s *Scheduler) update(name string, fn func(*JobInfo)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.jobs[name]
	if !ok {
		return
	}

	fn(&e.info)

	if next, err := e.job.NextRun(); err == nil {
		e.info.NextRun = next
	}
}

func (s *Scheduler) lookup(name string) (*entry, error) {
	e, ok := s.jobs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}

	return e, nil
}

// RunNow 立即触发一次，不影响原有调度.
func (s *Scheduler) RunNow(name string) error {
	s.mu.RLock()
	e, err := s.lookup(name)
	s.mu.RUnlock()

	if err != nil {
		return err
	}

	return e.job.RunNow()
}

// RemoveJobByName 取消任务.
func (s *Scheduler) RemoveJobByName(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.lookup(name)
	if err != nil {
		return err
	}

	if err := s.cron.RemoveJob(e.job.ID()); err != nil {
		return err
	}

	delete(s.jobs, name)
	s.logger.Info().Str("job", name).Msg("job removed")

	return nil
}

// GetJobInfoByName 返回任务信息的副本.
func (s *Scheduler) GetJobInfoByName(name string) (JobInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, err := s.lookup(name)
	if err != nil {
		return JobInfo{}, err
	}

	return e.info, nil
}

// GetJobInfos 按名称排序.
func (s *Scheduler) GetJobInfos() []JobInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]JobInfo, 0, len(s.jobs))
	for _, e := range s.jobs {
		out = append(out, e.info)
	}

	slices.SortFunc(out, func(a, b JobInfo) int { return strings.Compare(a.Name, b.Name) })

	return out
}

func (s *Scheduler) Start() {
	s.mu.RLock()
	n := len(s.jobs)
	s.mu.RUnlock()

	s.logger.Info().Int("jobs", n).Msg("scheduler started")
	s.cron.Start()
}

// Shutdown 取消运行中任务的 ctx 并等待它们退出.
func (s *Scheduler) Shutdown() error {
	s.cancel()

	return s.cron.Shutdown()
}
