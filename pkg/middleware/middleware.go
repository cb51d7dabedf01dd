// Package middleware 提供 Gin 中间件：日志、指标、追踪、认证、角色、限流、熔断、响应缓存与请求体限制.
package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	appctx "github.com/yeisme/sourcelens/pkg/context"
	"github.com/yeisme/sourcelens/pkg/internal/model"
)

// RequestIDHeader 请求 ID 头.
const RequestIDHeader = "X-Request-Id"

// RequestIDMiddleware 透传或生成请求 ID，写入响应头与 gin.Context.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = model.NewULID(time.Now())
		}

		c.Set("request_id", id)
		c.Header(RequestIDHeader, id)
		c.Request = c.Request.WithContext(appctx.WithRequestID(c.Request.Context(), id))
		c.Next()
	}
}

// GetRequestID 返回当前请求 ID.
func GetRequestID(c *gin.Context) string {
	return c.GetString("request_id")
}

// BodyLimitMiddleware 限制请求体大小，limit<=0 时不限制.
func BodyLimitMiddleware(limit int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limit > 0 && c.Request.Body != nil {
			if c.Request.ContentLength > limit {
				c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{"error": "request body too large"})
				return
			}

			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		}

		c.Next()
	}
}
