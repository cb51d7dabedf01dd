package middleware

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/yeisme/sourcelens/pkg/configs"
	"github.com/yeisme/sourcelens/pkg/tracing"
)

// TraceIDHeader 响应头里的 trace id，方便把错误报告和追踪对上.
const TraceIDHeader = "X-Trace-Id"

// TracingMiddleware 为每个请求创建 server span，延续上游 traceparent；SkipPaths 不追踪.
func TracingMiddleware(cfg configs.TracingConfig) gin.HandlerFunc {
	if !cfg.Enabled {
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		if hasPathPrefix(c.Request.URL.Path, cfg.SkipPaths) {
			c.Next()
			return
		}

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}

		parent := otel.GetTextMapPropagator().Extract(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))

		ctx, span := tracing.StartSpan(parent, c.Request.Method+" "+route,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.request.method", c.Request.Method),
				attribute.String("http.route", route),
				attribute.String("url.path", c.Request.URL.Path),
				attribute.String("user_agent.original", c.Request.UserAgent()),
				attribute.String("client.address", c.ClientIP()),
			),
		)
		defer span.End()

		if project := c.Param("projectId"); project != "" {
			span.SetAttributes(attribute.String("sourcelens.project", project))
		}

		if sc := span.SpanContext(); sc.HasTraceID() {
			c.Header(TraceIDHeader, sc.TraceID().String())
		}

		c.Request = c.Request.WithContext(ctx)
		c.Next()

		status := c.Writer.Status()
		span.SetAttributes(attribute.Int("http.response.status_code", status))

		for _, e := range c.Errors {
			span.RecordError(e.Err)
		}

		if status >= 500 || len(c.Errors) > 0 {
			span.SetStatus(codes.Error, c.Errors.String())
		}
	}
}
