package router

import (
	"github.com/gin-gonic/gin"

	"github.com/yeisme/sourcelens/pkg/internal/handle"
)

// RegisterReportRoutes 注册错误上报路由.
func RegisterReportRoutes(g *gin.RouterGroup, h *handle.Handler) {
	reports := g.Group("/reports")
	{
		reports.POST("", h.ReportErrors)
		reports.POST("/resolve", h.ResolveStack) // 只还原，不保存
		reports.GET("/:projectId", projectScope, h.ListReports)
	}
}
