// Package tracing 初始化 OpenTelemetry 追踪，导出到 OTLP (HTTP/gRPC) 或 Zipkin.
//
//	if err := tracing.InitTracer(ctx, cfg.Tracing); err != nil {
//		return err
//	}
//	defer tracing.ShutdownTracer(ctx)
//
//	ctx, span := tracing.StartSpan(ctx, "sourcemap.MapStack")
//	defer span.End()
package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/zipkin"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/yeisme/sourcelens/pkg/configs"
)

var tracerProvider *sdktrace.TracerProvider

// InitTracer 按配置创建导出器并设置全局 TracerProvider 与 W3C 传播器，未启用时不做处理.
func InitTracer(ctx context.Context, cfg configs.TracingConfig) error {
	if !cfg.Enabled {
		return nil
	}

	exporter, err := newExporter(ctx, cfg)
	if err != nil {
		return err
	}

	attrs := []attribute.KeyValue{
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
	}
	for k, v := range cfg.ResourceLabels {
		attrs = append(attrs, attribute.String(k, v))
	}

	res, err := resource.New(ctx, resource.WithAttributes(attrs...), resource.WithHost())
	if err != nil {
		return fmt.Errorf("create tracing resource: %w", err)
	}

	var batch []sdktrace.BatchSpanProcessorOption
	if cfg.BatchTimeout > 0 {
		batch = append(batch, sdktrace.WithBatchTimeout(cfg.BatchTimeout))
	}

	if cfg.MaxBatchSize > 0 {
		batch = append(batch, sdktrace.WithMaxExportBatchSize(cfg.MaxBatchSize))
	}

	if cfg.MaxQueueSize > 0 {
		batch = append(batch, sdktrace.WithMaxQueueSize(cfg.MaxQueueSize))
	}

	// 上游已采样的请求跟随上游决定
	tracerProvider = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter, batch...),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRate))),
	)

	otel.SetTracerProvider(tracerProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{},
	))

	return nil
}

func newExporter(ctx context.Context, cfg configs.TracingConfig) (sdktrace.SpanExporter, error) {
	var (
		exp sdktrace.SpanExporter
		err error
	)

	switch cfg.ExporterType {
	case "otlp-http":
		exp, err = otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(cfg.Endpoint))
	case "otlp-grpc":
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}

		exp, err = otlptracegrpc.New(ctx, opts...)
	case "zipkin":
		exp, err = zipkin.New(cfg.Endpoint)
	default:
		return nil, fmt.Errorf("unsupported exporter type: %s", cfg.ExporterType)
	}

	if err != nil {
		return nil, fmt.Errorf("create %s exporter: %w", cfg.ExporterType, err)
	}

	return exp, nil
}

// ShutdownTracer 刷出缓冲的 span 并关闭 TracerProvider.
func ShutdownTracer(ctx context.Context) error {
	if tracerProvider == nil {
		return nil
	}

	return tracerProvider.Shutdown(ctx)
}

// StartSpan 开始一个 span，调用方负责 span.End().
func StartSpan(ctx context.Context, spanName string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return otel.Tracer(configs.AppName).Start(ctx, spanName, opts...)
}

// Fail 在 span 上记录错误并原样返回，err 为 nil 时不做处理.
func Fail(span trace.Span, err error) error {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	return err
}
