package configs

import (
	"time"

	"github.com/spf13/viper"
)

// CircuitBreakerConfig HTTP 入口与远程拉取 SourceMap 各用一个独立的熔断器，参数相同.
type CircuitBreakerConfig struct {
	Enabled     bool `mapstructure:"enabled"`      // HTTP 入口熔断，5xx 计为失败
	RemoteFetch bool `mapstructure:"remote_fetch"` // 远程拉取熔断，源站不可用时快速失败
	// FailureRate 统计窗口内失败比例达到该值时打开
	FailureRate float64 `mapstructure:"failure_rate" rule:"gt=0,lte=1"`
	MinRequests uint32  `mapstructure:"min_requests"`
	// Interval 闭合状态下清零计数的周期，0 表示不清零
	Interval time.Duration `mapstructure:"interval" rule:"min=0"`
	// OpenTimeout 打开多久后进入半开
	OpenTimeout time.Duration `mapstructure:"open_timeout" rule:"min=0"`
	// HalfOpenRequests 半开状态放行的探测请求数
	HalfOpenRequests uint32 `mapstructure:"half_open_requests"`
}

func (c *CircuitBreakerConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("circuit_breaker.enabled", false)
	v.SetDefault("circuit_breaker.remote_fetch", true)
	v.SetDefault("circuit_breaker.failure_rate", 0.5)
	v.SetDefault("circuit_breaker.min_requests", 20)
	v.SetDefault("circuit_breaker.interval", time.Minute)
	v.SetDefault("circuit_breaker.open_timeout", 30*time.Second)
	v.SetDefault("circuit_breaker.half_open_requests", 5)
}
