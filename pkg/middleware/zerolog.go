package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	appctx "github.com/yeisme/sourcelens/pkg/context"
	"github.com/yeisme/sourcelens/pkg/log"
)

// GinLoggerMiddleware 每个请求一行访问日志，级别随状态码：5xx error，4xx warn，其余 info.
// skip 中的路径只在出错时记录，健康检查与指标抓取不会刷屏.
func GinLoggerMiddleware(skip ...string) gin.HandlerFunc {
	quiet := make(map[string]struct{}, len(skip))
	for _, p := range skip {
		quiet[p] = struct{}{}
	}

	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		status := c.Writer.Status()
		if _, ok := quiet[c.Request.URL.Path]; ok && status < 400 {
			return
		}

		l := appctx.WithTraceContext(c.Request.Context(), *log.Logger())

		ev := l.WithLevel(accessLevel(status)).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Int("size", c.Writer.Size()).
			Str("client_ip", c.ClientIP())

		if q := c.Request.URL.RawQuery; q != "" {
			ev = ev.Str("query", q)
		}

		if route := c.FullPath(); route != "" {
			ev = ev.Str("route", route)
		}

		if who := GetPrincipal(c); who != "" {
			ev = ev.Str("principal", who).Stringer("role", GetRole(c))
		}

		if len(c.Errors) > 0 {
			ev = ev.Str("error", c.Errors.String())
		}

		ev.Msg("request")
	}
}

func accessLevel(status int) zerolog.Level {
	switch {
	case status >= 500:
		return zerolog.ErrorLevel
	case status >= 400:
		return zerolog.WarnLevel
	default:
		return zerolog.InfoLevel
	}
}
