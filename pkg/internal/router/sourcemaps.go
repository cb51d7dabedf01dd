package router

import (
	"github.com/gin-gonic/gin"

	"github.com/yeisme/sourcelens/pkg/internal/handle"
)

// RegisterSourceMapRoutes 注册 SourceMap 文件相关路由.
func RegisterSourceMapRoutes(g *gin.RouterGroup, h *handle.Handler, opts Options) {
	sm := g.Group("/sourcemaps")
	{
		sm.POST("", uploader, invalidate(opts), h.UploadSourceMaps) // 批量上传
		sm.DELETE("", admin, invalidate(opts), h.DeleteSourceMaps)  // 按 ID 批量删除

		sm.GET("/search", h.SearchSourceMaps)
		sm.DELETE("/cleanup", admin, invalidate(opts), h.CleanupSourceMaps) // 全局过期清理

		// 解码缓存
		sm.GET("/cache", h.DecodeCacheStats)
		sm.DELETE("/cache", admin, h.PurgeDecodeCache)

		project := sm.Group("/:projectId", projectScope)
		{
			project.GET("", h.ListSourceMaps)
			project.GET("/stats", h.SourceMapStats)
			project.GET("/version-names", h.ProjectVersions)
			project.GET("/:filename", h.GetSourceMap)
		}
	}
}
