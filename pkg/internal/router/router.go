// Package router 管理路由配置，把路径绑定到 handle 包的处理器.
package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	appcache "github.com/yeisme/sourcelens/pkg/cache"
	appctx "github.com/yeisme/sourcelens/pkg/context"
	"github.com/yeisme/sourcelens/pkg/internal/handle"
	"github.com/yeisme/sourcelens/pkg/log"
	"github.com/yeisme/sourcelens/pkg/middleware"
)

// Options 路由可选项.
type Options struct {
	// ResponseCache 非 nil 时缓存版本列表与历史的响应，写接口成功后按项目失效.
	ResponseCache *appcache.Cache
	// Swagger 为 true 时挂载 /swagger 文档页
	Swagger bool
	// Host 写入文档的服务地址
	Host string
}

// Register 在 /api/v1 下注册全部业务路由.
// 写接口要求 uploader 角色，删除与回滚要求 admin 角色，角色由 middleware.RoleMiddleware 注入.
//
//	/api/v1/sourcemaps              SourceMap 上传、查询、清理
//	/api/v1/sourcemaps/:p/versions  版本管理
//	/api/v1/reports                 错误上报
//	/api/v1/health                  健康检查
//	/api/v1/scheduler               定时任务管理
func Register(e *gin.Engine, h *handle.Handler, opts Options) *gin.RouterGroup {
	v1 := e.Group("/api/v1")

	RegisterSourceMapRoutes(v1, h, opts)
	RegisterVersionRoutes(v1, h, opts)
	RegisterReportRoutes(v1, h)
	RegisterHealthCheckRoute(v1, h)
	RegisterSchedulerRoutes(v1)

	return v1
}

var (
	uploader = middleware.RequireMinRole(middleware.RoleUploader)
	admin    = middleware.RequireMinRole(middleware.RoleAdmin)
)

// projectScope 把路径中的 projectId 写入请求上下文，日志据此带上项目字段.
func projectScope(c *gin.Context) {
	if id := c.Param("projectId"); id != "" {
		c.Request = c.Request.WithContext(appctx.WithProjectID(c.Request.Context(), id))
	}

	c.Next()
}

// cached 只读接口的响应缓存，未配置时不做处理.
func cached(opts Options) gin.HandlerFunc {
	if opts.ResponseCache == nil {
		return func(c *gin.Context) { c.Next() }
	}

	return middleware.CacheMiddleware(middleware.DefaultCacheConfig(opts.ResponseCache))
}

// invalidate 写接口成功后失效该项目的响应缓存，路径中没有项目时全部失效.
func invalidate(opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if opts.ResponseCache == nil || c.Writer.Status() >= http.StatusBadRequest {
			return
		}

		if err := middleware.InvalidateCache(c.Request.Context(), opts.ResponseCache, c.Param("projectId")); err != nil {
			l := log.Logger()
			l.Warn().Err(err).Str("path", c.FullPath()).Msg("invalidate response cache failed")
		}
	}
}
