package router

import (
	"github.com/gin-gonic/gin"

	"github.com/yeisme/sourcelens/pkg/internal/handle"
)

// RegisterHealthCheckRoute 注册健康检查路由.
// /health 汇总全部组件，子路径检查单个组件.
func RegisterHealthCheckRoute(g *gin.RouterGroup, h *handle.Handler) {
	health := g.Group("/health")
	{
		health.GET("", handle.Health)
		health.GET("/db", handle.HealthDB)
		health.GET("/kv", handle.HealthKV)
		health.GET("/s3", handle.HealthS3)
		health.GET("/mq", handle.HealthMQ)
		health.GET("/sourcemaps", h.SourceMapHealth)
	}
}
