// Package jobs 负责注册与实现业务定时任务（基于 scheduler）。
package jobs

import (
	"context"
	"fmt"

	"github.com/yeisme/sourcelens/pkg/configs"
	"github.com/yeisme/sourcelens/pkg/internal/service"
	"github.com/yeisme/sourcelens/pkg/log"
	"github.com/yeisme/sourcelens/pkg/scheduler"
)

// RegisterCronJobs 配置业务定时任务：
//   - 按 cleanup.cron（默认每小时）删除所有项目中已过期的 SourceMap
//   - 按 cleanup.purge_cron（默认每 30 分钟）清空解码缓存
func RegisterCronJobs(sched *scheduler.Scheduler, svc *service.Services, cfg configs.SourceMapCleanupConfig) error {
	if sched == nil {
		return fmt.Errorf("scheduler is nil")
	}

	if svc == nil {
		return fmt.Errorf("services is nil")
	}

	if !cfg.Enabled {
		log.Logger().Info().Msg("source map cleanup jobs disabled")
		return nil
	}

	cron := cfg.Cron
	if cron == "" {
		cron = configs.DefaultSourceMapCleanupCron
	}

	if err := sched.AddCron(JobExpirySweep, cron, ExpirySweep(svc)); err != nil {
		return err
	}

	purge := cfg.PurgeCron
	if purge == "" {
		purge = configs.DefaultSourceMapCachePurgeCron
	}

	return sched.AddCron(JobCachePurge, purge, CachePurge(svc))
}

// ExpirySweep 删除所有项目中 expiresAt 早于当前时间的文件.
func ExpirySweep(svc *service.Services) scheduler.JobFunc {
	return func(ctx context.Context) error {
		l := log.Logger().With().Str("job", JobExpirySweep).Logger()

		res, err := svc.SourceMaps.CleanupExpired(ctx)
		if err != nil {
			return fmt.Errorf("cleanup expired source maps: %w", err)
		}

		if res.Count > 0 {
			l.Info().Int64("deleted", res.Count).Strs("versions", res.Versions).Int64("bytes", res.TotalSize).Msg("expired source maps removed")
		}

		return nil
	}
}

// CachePurge 清空解码缓存，正在使用的条目在释放后回收.
func CachePurge(svc *service.Services) scheduler.JobFunc {
	return func(context.Context) error {
		n := svc.Resolver.Cache().Len()
		svc.Resolver.Cache().Purge()

		log.Logger().Debug().Str("job", JobCachePurge).Int("entries", n).Msg("decode cache purged")

		return nil
	}
}
