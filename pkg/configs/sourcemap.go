package configs

import (
	"time"

	"github.com/spf13/viper"
)

const (
	DefaultSourceMapExpiryDays     = 30                  // 新上传文件的默认保留天数
	DefaultSupersededExpiryDays    = 7                   // 被新版本取代后的保留天数
	DefaultDecodeCacheSize         = 256                 // 解码缓存条目上限
	DefaultDecodeCacheTTL          = 5 * time.Minute     // 解码缓存过期时间
	DefaultPositionCacheTTL        = time.Minute         // 位置解析结果缓存时间
	DefaultSourceMapBias           = "least_upper_bound" // 查找偏向
	DefaultParallelFrames          = 8                   // 单个堆栈并发解析的帧数
	DefaultRemoteFetchTimeout      = 5 * time.Second     // 远程拉取 SourceMap 超时
	DefaultRemoteFetchMaxBytes     = 20 << 20            // 远程拉取大小上限 20MB
	DefaultSourceMapCleanupCron    = "0 * * * *"         // 过期清理周期
	DefaultSourceMapCachePurgeCron = "*/30 * * * *"      // 解码缓存清空周期
	DefaultSourceMapStore          = "db"                // 存储后端
)

type (
	// SourceMapConfig SourceMap 存储、解析与清理配置.
	SourceMapConfig struct {
		Store                string                 `mapstructure:"store"                  rule:"oneof=db memory"`
		DefaultExpiryDays    int                    `mapstructure:"default_expiry_days"    rule:"min=1"`
		SupersededExpiryDays int                    `mapstructure:"superseded_expiry_days" rule:"min=1"`
		Bias                 string                 `mapstructure:"bias"                   rule:"oneof=least_upper_bound greatest_lower_bound"`
		ParallelFrames       int                    `mapstructure:"parallel_frames"        rule:"min=1,max=256"`
		PositionCacheTTL     time.Duration          `mapstructure:"position_cache_ttl"`
		DecodeCache          DecodeCacheConfig      `mapstructure:"decode_cache"`
		RemoteFetch          RemoteFetchConfig      `mapstructure:"remote_fetch"`
		Cleanup              SourceMapCleanupConfig `mapstructure:"cleanup"`
		Archive              SourceMapArchiveConfig `mapstructure:"archive"`
	}

	// DecodeCacheConfig 解码后 SourceMap 的内存缓存.
	DecodeCacheConfig struct {
		Size int           `mapstructure:"size" rule:"min=1"`
		TTL  time.Duration `mapstructure:"ttl"`
	}

	// RemoteFetchConfig 按 sourceMappingURL 拉取远程 SourceMap.
	RemoteFetchConfig struct {
		Enabled  bool          `mapstructure:"enabled"`
		Timeout  time.Duration `mapstructure:"timeout"`
		MaxBytes int64         `mapstructure:"max_bytes" rule:"min=0"`
	}

	// SourceMapCleanupConfig 定时任务配置.
	SourceMapCleanupConfig struct {
		Enabled   bool   `mapstructure:"enabled"`
		Cron      string `mapstructure:"cron"`
		PurgeCron string `mapstructure:"purge_cron"`
	}

	// SourceMapArchiveConfig 上传后归档到对象存储.
	SourceMapArchiveConfig struct {
		Enabled bool   `mapstructure:"enabled"`
		Prefix  string `mapstructure:"prefix"`
	}
)

// ExpiryDuration 返回默认保留时长.
func (c *SourceMapConfig) ExpiryDuration() time.Duration {
	return time.Duration(c.DefaultExpiryDays) * 24 * time.Hour
}

// SupersededDuration 返回被取代后的保留时长.
func (c *SourceMapConfig) SupersededDuration() time.Duration {
	return time.Duration(c.SupersededExpiryDays) * 24 * time.Hour
}

func (c *SourceMapConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("sourcemap.store", DefaultSourceMapStore)
	v.SetDefault("sourcemap.default_expiry_days", DefaultSourceMapExpiryDays)
	v.SetDefault("sourcemap.superseded_expiry_days", DefaultSupersededExpiryDays)
	v.SetDefault("sourcemap.bias", DefaultSourceMapBias)
	v.SetDefault("sourcemap.parallel_frames", DefaultParallelFrames)
	v.SetDefault("sourcemap.position_cache_ttl", DefaultPositionCacheTTL)

	v.SetDefault("sourcemap.decode_cache.size", DefaultDecodeCacheSize)
	v.SetDefault("sourcemap.decode_cache.ttl", DefaultDecodeCacheTTL)

	v.SetDefault("sourcemap.remote_fetch.enabled", false)
	v.SetDefault("sourcemap.remote_fetch.timeout", DefaultRemoteFetchTimeout)
	v.SetDefault("sourcemap.remote_fetch.max_bytes", DefaultRemoteFetchMaxBytes)

	v.SetDefault("sourcemap.cleanup.enabled", true)
	v.SetDefault("sourcemap.cleanup.cron", DefaultSourceMapCleanupCron)
	v.SetDefault("sourcemap.cleanup.purge_cron", DefaultSourceMapCachePurgeCron)

	v.SetDefault("sourcemap.archive.enabled", false)
	v.SetDefault("sourcemap.archive.prefix", "sourcemaps/")
}
