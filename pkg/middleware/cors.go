package middleware

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/yeisme/sourcelens/pkg/configs"
)

// CORSMiddleware 浏览器 SDK 跨域上报错误与读取映射结果.
// server.allow_origins 为空时放行任意来源；调试模式下不缓存预检结果.
func CORSMiddleware(cfg configs.ServerConfig) gin.HandlerFunc {
	c := cors.Config{
		AllowMethods: []string{"GET", "HEAD", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders: []string{
			"Origin", "Content-Type", "Content-Length", "Authorization",
			"X-Role", ProjectHeader, RequestIDHeader, cacheBypassHeader,
		},
		ExposeHeaders: []string{RequestIDHeader, TraceIDHeader, cacheStatusHeader, "ETag", "Retry-After"},
		MaxAge:        12 * time.Hour,
	}

	if len(cfg.AllowOrigins) == 0 {
		c.AllowAllOrigins = true
	} else {
		c.AllowOrigins = cfg.AllowOrigins
	}

	if cfg.Debug {
		c.MaxAge = 0
	}

	return cors.New(c)
}
