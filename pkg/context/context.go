// Package context 在 context.Context 中携带请求范围的值：存储管理器、项目 ID、请求 ID.
package context

import (
	"context"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/yeisme/sourcelens/pkg/internal/storage"
	dbc "github.com/yeisme/sourcelens/pkg/internal/storage/db"
	kvc "github.com/yeisme/sourcelens/pkg/internal/storage/kv"
	mqc "github.com/yeisme/sourcelens/pkg/internal/storage/mq"
	s3c "github.com/yeisme/sourcelens/pkg/internal/storage/s3"
)

type (
	managerKey   struct{}
	projectKey   struct{}
	requestIDKey struct{}
)

// WithStorageManager 写入存储管理器.
func WithStorageManager(ctx context.Context, mgr *storage.Manager) context.Context {
	return context.WithValue(ctx, managerKey{}, mgr)
}

// GetManager 返回存储管理器，未注入时为 nil.
func GetManager(ctx context.Context) *storage.Manager {
	mgr, _ := ctx.Value(managerKey{}).(*storage.Manager)
	return mgr
}

// fromManager 管理器缺失时返回零值，调用方据此把组件视为未启用.
func fromManager[T any](ctx context.Context, get func(*storage.Manager) T) T {
	if mgr := GetManager(ctx); mgr != nil {
		return get(mgr)
	}

	var zero T

	return zero
}

func GetS3Client(ctx context.Context) *s3c.Client {
	return fromManager(ctx, (*storage.Manager).GetS3Client)
}

func GetDBClient(ctx context.Context) *dbc.Client {
	return fromManager(ctx, (*storage.Manager).GetDBClient)
}

func GetMQClient(ctx context.Context) *mqc.Client {
	return fromManager(ctx, (*storage.Manager).GetMQClient)
}

func GetKVClient(ctx context.Context) *kvc.Client {
	return fromManager(ctx, (*storage.Manager).GetKVClient)
}

// WithProjectID 记录当前请求所属的项目.
func WithProjectID(ctx context.Context, projectID string) context.Context {
	return context.WithValue(ctx, projectKey{}, projectID)
}

// GetProjectID 未设置时为空串.
func GetProjectID(ctx context.Context) string {
	id, _ := ctx.Value(projectKey{}).(string)
	return id
}

// WithRequestID 记录请求 ID，日志与事件头会带上它.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// WithTraceContext 给 logger 加上项目、请求 ID 与正在记录的 span.
func WithTraceContext(ctx context.Context, logger zerolog.Logger) zerolog.Logger {
	lc := logger.With()

	if id := GetProjectID(ctx); id != "" {
		lc = lc.Str("project", id)
	}

	if id := GetRequestID(ctx); id != "" {
		lc = lc.Str("request_id", id)
	}

	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		lc = lc.Str("trace_id", sc.TraceID().String()).Str("span_id", sc.SpanID().String())
	}

	return lc.Logger()
}
