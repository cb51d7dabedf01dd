package router

import (
	"github.com/gin-gonic/gin"

	"github.com/yeisme/sourcelens/pkg/internal/handle"
)

// RegisterSchedulerRoutes 注册调度器相关路由，仅 admin 可访问.
func RegisterSchedulerRoutes(g *gin.RouterGroup) {
	jobs := g.Group("/scheduler/jobs", admin)
	{
		jobs.GET("", handle.SchedulerJobs)
		jobs.GET("/:name", handle.SchedulerJob)
		jobs.POST("/:name/run", handle.SchedulerRunJob)
		jobs.DELETE("/:name", handle.SchedulerRemoveJob)
	}
}
