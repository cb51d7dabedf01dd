package middleware

import (
	"context"

	"github.com/gin-gonic/gin"

	appctx "github.com/yeisme/sourcelens/pkg/context"
	"github.com/yeisme/sourcelens/pkg/internal/storage"
	"github.com/yeisme/sourcelens/pkg/scheduler"
)

type schedulerKey struct{}

// inject 把运行期资源写入 request context，下游 service 通过 ctx 获取.
func inject(with func(context.Context) context.Context) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request = c.Request.WithContext(with(c.Request.Context()))
		c.Next()
	}
}

// StorageMiddleware 注入存储管理器，健康检查与归档从中获取 DB、KV、MQ、S3 客户端.
func StorageMiddleware(manager *storage.Manager) gin.HandlerFunc {
	return inject(func(ctx context.Context) context.Context {
		return appctx.WithStorageManager(ctx, manager)
	})
}

// SchedulerMiddleware 注入定时任务调度器，nil 时接口返回 503.
func SchedulerMiddleware(sched *scheduler.Scheduler) gin.HandlerFunc {
	return inject(func(ctx context.Context) context.Context {
		return context.WithValue(ctx, schedulerKey{}, sched)
	})
}

// GetScheduler 从请求上下文获取调度器.
func GetScheduler(c *gin.Context) *scheduler.Scheduler {
	if sched, ok := c.Request.Context().Value(schedulerKey{}).(*scheduler.Scheduler); ok {
		return sched
	}

	return nil
}
