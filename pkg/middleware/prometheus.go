package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yeisme/sourcelens/pkg/metrics"
)

// PrometheusMiddleware 记录请求数、耗时与并发数.
// endpoint 取路由模板（如 /api/v1/sourcemaps/:projectId），status 取 2xx/4xx 这类分组，避免标签爆炸.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		metrics.InFlightRequests.Inc()
		defer metrics.InFlightRequests.Dec()

		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}

		status := strconv.Itoa(c.Writer.Status()/100) + "xx"

		metrics.RequestCounter.WithLabelValues(c.Request.Method, endpoint, status).Inc()
		metrics.RequestDuration.WithLabelValues(c.Request.Method, endpoint).Observe(time.Since(start).Seconds())
	}
}
