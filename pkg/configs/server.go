package configs

import (
	"net"
	"strconv"
	"time"

	"github.com/spf13/viper"
)

// ServerConfig HTTP 服务配置.
type ServerConfig struct {
	Port         int    `mapstructure:"port"          rule:"min=1,max=65535"`
	Host         string `mapstructure:"host"          rule:"ip"`
	ReloadConfig bool   `mapstructure:"reload_config"`
	Debug        bool   `mapstructure:"debug"`
	Gzip         bool   `mapstructure:"gzip"`
	// MaxBodyBytes 上传 SourceMap 与错误上报的请求体上限
	MaxBodyBytes int64 `mapstructure:"max_body_bytes" rule:"min=0"`
	// AllowOrigins 为空时允许任意来源，浏览器 SDK 直接上报需要
	AllowOrigins []string `mapstructure:"allow_origins" rule:"dive,url"`

	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" rule:"min=0"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"        rule:"min=0"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"       rule:"min=0"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"        rule:"min=0"`
	// ShutdownTimeout 收到退出信号后等待进行中请求与定时任务的时长
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" rule:"min=0"`
}

// Addr 监听地址.
func (s *ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

func (s *ServerConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.reload_config", true)
	v.SetDefault("server.debug", false)
	v.SetDefault("server.gzip", true)
	v.SetDefault("server.max_body_bytes", 50<<20)
	v.SetDefault("server.allow_origins", []string{})
	v.SetDefault("server.read_header_timeout", 10*time.Second)
	v.SetDefault("server.read_timeout", time.Minute)
	v.SetDefault("server.write_timeout", time.Minute)
	v.SetDefault("server.idle_timeout", 2*time.Minute)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
}
