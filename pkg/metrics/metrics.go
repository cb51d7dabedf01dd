// Package metrics 定义服务的 Prometheus 指标并挂载 /metrics 端点.
//
// 指标是包级变量，业务代码直接使用；注册发生在 Init，未开启时计数照常进行但不会被导出.
//
//	metrics.ResolveTotal.WithLabelValues(metrics.ResultMapped).Inc()
//	metrics.MappingDuration.Observe(time.Since(start).Seconds())
package metrics

import (
	"errors"
	"fmt"
	"net/http"
	_ "net/http/pprof" // 注册到 http.DefaultServeMux
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yeisme/sourcelens/pkg/configs"
)

// ResolveTotal 的 result 标签取值.
const (
	ResultMapped   = "mapped"
	ResultNoMap    = "no_map"
	ResultNoMatch  = "no_match"
	ResultBadMap   = "decode_error"
	ResultCacheHit = "cache_hit"
)

// HTTP.
var (
	RequestCounter = counterVec("http_requests_total",
		"HTTP requests by route template and status class", "method", "endpoint", "status")
	RequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency by route template",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "endpoint"})
	InFlightRequests = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_requests_in_flight",
		Help: "HTTP requests currently being served",
	})
)

// SourceMap 解析与存储.
var (
	ResolveTotal = counterVec("sourcemap_resolve_total",
		"Position resolutions by result", "result")
	MappingDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "sourcemap_stack_mapping_duration_seconds",
		Help:    "Time spent mapping one stack trace",
		Buckets: []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5},
	})
	DecodeCacheRequests = counterVec("sourcemap_decode_cache_requests_total",
		"Decoded source map cache lookups by outcome", "outcome")
	UploadsTotal = counterVec("sourcemap_uploads_total",
		"Source map files stored per project", "project_id")
	ExpiredDeletedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sourcemap_expired_deleted_total",
		Help: "Expired source maps removed by cleanup",
	})
)

// KVCacheRequests 位置缓存与响应缓存，prefix 区分两者.
var KVCacheRequests = counterVec("kv_cache_requests_total",
	"KV backed cache lookups by key prefix and outcome", "prefix", "outcome")

var (
	registry = prometheus.NewRegistry()

	initOnce sync.Once
	initErr  error
)

func counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{Name: name, Help: help}, labels)
}

// Init 注册全部指标，config.Labels 作为常量标签附加；只在第一次调用时生效.
func Init(config configs.MetricsConfig) error {
	if !config.Enabled {
		return nil
	}

	initOnce.Do(func() {
		reg := prometheus.WrapRegistererWith(prometheus.Labels(config.Labels), registry)

		cs := []prometheus.Collector{
			RequestCounter, RequestDuration, InFlightRequests,
			ResolveTotal, MappingDuration, DecodeCacheRequests, UploadsTotal, ExpiredDeletedTotal,
			KVCacheRequests,
		}
		if config.RuntimeMetrics {
			cs = append(cs, collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		}

		var errs []error

		for _, c := range cs {
			if err := reg.Register(c); err != nil {
				errs = append(errs, err)
			}
		}

		if err := errors.Join(errs...); err != nil {
			initErr = fmt.Errorf("register metrics: %w", err)
		}
	})

	return initErr
}

// Mount 在 engine 上挂载指标端点，config.Pprof 时一并挂载 /debug/pprof.
func Mount(config configs.MetricsConfig, engine gin.IRoutes) {
	if !config.Enabled {
		return
	}

	path := config.Path
	if path == "" {
		path = "/metrics"
	}

	engine.GET(path, gin.WrapH(promhttp.InstrumentMetricHandler(registry,
		promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))))

	if config.Pprof {
		engine.GET("/debug/pprof/*any", gin.WrapH(http.DefaultServeMux))
	}
}

// Registry 导出指标的注册表，watermill 等组件的指标也注册在这里.
func Registry() *prometheus.Registry {
	return registry
}
