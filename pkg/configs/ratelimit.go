package configs

import (
	"time"

	"github.com/spf13/viper"
)

// RateLimitConfig 令牌桶限流，默认只作用于错误上报入口.
// 单个页面的报错风暴会在这里被挡住，不会拖垮映射与存储.
type RateLimitConfig struct {
	Enabled bool    `mapstructure:"enabled"`
	RPS     float64 `mapstructure:"rps"     rule:"gte=0"`
	Burst   int     `mapstructure:"burst"   rule:"gte=0"`
	// Key 取 global、ip、project 或 header:<Name>
	Key     string        `mapstructure:"key"      rule:"oneof=global ip project|startswith=header:"`
	Paths   []string      `mapstructure:"paths"    rule:"dive,startswith=/"`
	MaxKeys int           `mapstructure:"max_keys" rule:"min=1"`
	IdleTTL time.Duration `mapstructure:"idle_ttl" rule:"gte=0"`
}

func (c *RateLimitConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("rate_limit.enabled", false)
	v.SetDefault("rate_limit.rps", 50.0)
	v.SetDefault("rate_limit.burst", 100)
	v.SetDefault("rate_limit.key", "ip")
	v.SetDefault("rate_limit.paths", []string{"/api/v1/reports"})
	v.SetDefault("rate_limit.max_keys", 10000)
	v.SetDefault("rate_limit.idle_ttl", 10*time.Minute)
}
