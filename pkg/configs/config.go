// Package configs 管理应用程序配置，包括数据库、缓存、队列、对象存储与 SourceMap 解析的配置信息.
// configs 包支持多种配置格式（YAML、JSON、TOML、dotenv）并启用热重载.
//
// Example:
//
//	import "github.com/yeisme/sourcelens/pkg/configs"
//
//	err := configs.InitConfig("./")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	config := configs.GetConfig()
//	fmt.Println(config.Server.Port)
//
// Example accessing DB config:
//
//	dsn := configs.GetConfig().DB.GetDSN()
//	fmt.Println("DSN:", dsn)
//
// Example accessing SourceMap config:
//
//	smCfg := configs.GetConfig().SourceMap
//	fmt.Println("decode cache ttl:", smCfg.DecodeCache.TTL)
package configs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/yeisme/sourcelens/pkg/rule"
)

// AppName 应用名称，用于日志、指标、追踪的服务名.
const AppName = "sourcelens"

// AppVersion 应用版本.
const AppVersion = "0.3.0"

// EnvPrefix 环境变量前缀，例如 SOURCELENS_SERVER_PORT.
const EnvPrefix = "SOURCELENS"

type (
	// AppConfig 全局应用程序配置.
	AppConfig struct {
		Server         ServerConfig         `mapstructure:"server"`          // 服务器配置，端口、调试模式等
		DB             DBConfig             `mapstructure:"db"`              // 数据库配置
		KV             KVConfig             `mapstructure:"kv"`              // 键值存储配置
		MQ             MQConfig             `mapstructure:"mq"`              // 消息队列配置
		S3             S3Config             `mapstructure:"s3"`              // 对象存储配置
		Log            LogConfig            `mapstructure:"log"`             // 日志相关配置
		Metrics        MetricsConfig        `mapstructure:"metrics"`         // 监控指标配置
		Tracing        TracingConfig        `mapstructure:"tracing"`         // 分布式追踪配置
		RateLimit      RateLimitConfig      `mapstructure:"rate_limit"`      // 限流配置
		CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"` // 熔断配置
		Events         EventsConfig         `mapstructure:"events"`          // 事件发布开关
		Auth           AuthConfig           `mapstructure:"auth"`            // 认证配置
		SourceMap      SourceMapConfig      `mapstructure:"sourcemap"`       // SourceMap 存储与解析配置
	}
)

var (
	globalConfig AppConfig
	appViper     *viper.Viper

	hooksMu     sync.Mutex
	reloadHooks []func(AppConfig)
)

// configExts 目录查找时按顺序尝试的扩展名.
var configExts = []string{"yaml", "yml", "json", "toml", "env", "dotenv"}

// InitConfig 加载配置：默认值 < 配置文件 < SOURCELENS_ 环境变量.
// path 可以是文件或目录，目录下依次查找 config.<ext> 与 configs/config.<ext>；都找不到时只用默认值与环境变量.
func InitConfig(path string) error {
	v := viper.New()
	setAllDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	file, err := locateConfig(path)
	if err != nil {
		return err
	}

	if file != "" {
		v.SetConfigFile(file)

		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config %s: %w", file, err)
		}
	}

	cfg, err := decode(v)
	if err != nil {
		return err
	}

	appViper = v
	globalConfig = cfg

	if file != "" && cfg.Server.ReloadConfig {
		watch(v)
	}

	return nil
}

// locateConfig 返回要读取的配置文件，没有时返回空串.
func locateConfig(path string) (string, error) {
	if path == "" {
		return "", nil
	}

	info, err := os.Stat(path)

	switch {
	case errors.Is(err, os.ErrNotExist):
		return "", fmt.Errorf("config path %s does not exist", path)
	case err != nil:
		return "", err
	case !info.IsDir():
		return path, nil
	}

	for _, dir := range []string{path, filepath.Join(path, "configs")} {
		for _, ext := range configExts {
			candidate := filepath.Join(dir, "config."+ext)
			if _, err := os.Stat(candidate); err == nil {
				return candidate, nil
			}
		}
	}

	return "", nil
}

func decode(v *viper.Viper) (AppConfig, error) {
	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := rule.ValidateStruct(cfg); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// watch 配置文件变化时重新解析，校验失败的新配置被丢弃.
func watch(v *viper.Viper) {
	v.OnConfigChange(func(e fsnotify.Event) {
		next, err := decode(v)
		if err != nil {
			fmt.Fprintf(os.Stderr, "config %s not reloaded: %v\n", e.Name, err)
			return
		}

		globalConfig = next

		hooksMu.Lock()
		hooks := append([]func(AppConfig){}, reloadHooks...)
		hooksMu.Unlock()

		for _, h := range hooks {
			h(next)
		}
	})
	v.WatchConfig()
}

// OnReload 注册热重载回调，仅在 server.reload_config 开启且配置文件存在时触发.
func OnReload(fn func(AppConfig)) {
	hooksMu.Lock()
	defer hooksMu.Unlock()

	reloadHooks = append(reloadHooks, fn)
}

// setAllDefaults 设置所有配置的默认值.
func setAllDefaults(v *viper.Viper) {
	for _, d := range []interface{ setDefaults(*viper.Viper) }{
		&ServerConfig{},
		&DBConfig{},
		&KVConfig{},
		&MQConfig{},
		&S3Config{},
		&LogConfig{},
		&MetricsConfig{},
		&TracingConfig{},
		&RateLimitConfig{},
		&CircuitBreakerConfig{},
		&EventsConfig{},
		&AuthConfig{},
		&SourceMapConfig{},
	} {
		d.setDefaults(v)
	}
}

// GetConfig 返回全局配置.
func GetConfig() *AppConfig {
	return &globalConfig
}

// GetViper 返回全局 Viper 实例，未初始化时为 nil.
func GetViper() *viper.Viper {
	return appViper
}

// Defaults 返回仅包含默认值的配置，主要用于测试与离线命令.
func Defaults() AppConfig {
	v := viper.New()
	setAllDefaults(v)

	var c AppConfig
	_ = v.Unmarshal(&c)

	return c
}
