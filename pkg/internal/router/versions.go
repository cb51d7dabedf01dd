package router

import (
	"github.com/gin-gonic/gin"

	"github.com/yeisme/sourcelens/pkg/internal/handle"
)

// RegisterVersionRoutes 注册版本管理路由.
func RegisterVersionRoutes(g *gin.RouterGroup, h *handle.Handler, opts Options) {
	versions := g.Group("/sourcemaps/:projectId/versions", projectScope)
	{
		versions.GET("", cached(opts), h.ListVersions)
		versions.POST("", uploader, invalidate(opts), h.CreateVersion)
		versions.GET("/history", cached(opts), h.VersionHistory)
		versions.GET("/suggest", h.SuggestVersion)
		versions.POST("/rollback", admin, invalidate(opts), h.RollbackVersion)
		versions.POST("/compare", h.CompareVersions)
		versions.DELETE("/cleanup", admin, invalidate(opts), h.CleanupVersions) // force=true 时执行
		versions.DELETE("/batch", admin, invalidate(opts), h.BatchDeleteVersions)
		versions.GET("/:version", h.VersionDetails)
	}
}
