package configs

import (
	"time"

	"github.com/spf13/viper"
)

// TracingConfig OpenTelemetry 追踪配置.
type TracingConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	ServiceName    string `mapstructure:"service_name"`
	ServiceVersion string `mapstructure:"service_version"`
	// ExporterType 可选 otlp-http、otlp-grpc、zipkin
	ExporterType string  `mapstructure:"exporter_type" rule:"omitempty,oneof=otlp-http otlp-grpc zipkin"`
	Endpoint     string  `mapstructure:"endpoint"`
	Insecure     bool    `mapstructure:"insecure"` // otlp-grpc 不使用 TLS
	SampleRate   float64 `mapstructure:"sample_rate"   rule:"gte=0,lte=1"`
	// 批量导出参数，0 使用 SDK 默认值
	BatchTimeout   time.Duration     `mapstructure:"batch_timeout"`
	MaxBatchSize   int               `mapstructure:"max_batch_size"  rule:"min=0"`
	MaxQueueSize   int               `mapstructure:"max_queue_size"  rule:"min=0"`
	ResourceLabels map[string]string `mapstructure:"resource_labels"`
	// SkipPaths 不创建 span 的路径前缀
	SkipPaths []string `mapstructure:"skip_paths"`
}

func (c *TracingConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", AppName)
	v.SetDefault("tracing.service_version", AppVersion)
	v.SetDefault("tracing.exporter_type", "otlp-http")
	v.SetDefault("tracing.endpoint", "http://localhost:4318")
	v.SetDefault("tracing.insecure", true)
	v.SetDefault("tracing.sample_rate", 1.0)
	v.SetDefault("tracing.batch_timeout", 5*time.Second)
	v.SetDefault("tracing.resource_labels", map[string]string{})
	v.SetDefault("tracing.skip_paths", []string{"/metrics", "/api/v1/health", "/swagger"})
}
