package configs

import "github.com/spf13/viper"

// MetricsConfig Prometheus 指标，与 API 共用一个端口.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"    rule:"startswith=/"`
	// RuntimeMetrics 额外注册 Go 运行时与进程采集器
	RuntimeMetrics bool `mapstructure:"runtime_metrics"`
	// Labels 所有指标共享的常量标签
	Labels map[string]string `mapstructure:"labels"`
	Pprof  bool              `mapstructure:"pprof"`
}

func (c *MetricsConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("metrics.runtime_metrics", true)
	v.SetDefault("metrics.labels", map[string]string{"service": AppName, "version": AppVersion})
	v.SetDefault("metrics.pprof", false)
}
