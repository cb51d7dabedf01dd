package configs

import (
	"github.com/spf13/viper"
)

// LogConfig 日志配置.
// Format 为 console 时输出带颜色的可读文本，json 时逐行输出 JSON，便于日志采集.
type LogConfig struct {
	Level  string `mapstructure:"level"  rule:"omitempty,oneof=trace debug info warn error fatal panic disabled"`
	Format string `mapstructure:"format" rule:"omitempty,oneof=console json"`
	Output string `mapstructure:"output" rule:"omitempty,oneof=stdout stderr"`
	// 文件输出由 lumberjack 负责轮转
	EnableFile bool   `mapstructure:"enable_file"`
	FilePath   string `mapstructure:"file_path"    rule:"required_if=EnableFile true"`
	MaxSize    int    `mapstructure:"max_size_mb"  rule:"min=0"`
	MaxBackups int    `mapstructure:"max_backups"  rule:"min=0"`
	MaxAge     int    `mapstructure:"max_age_days" rule:"min=0"`
	Compress   bool   `mapstructure:"compress"`
}

func (l *LogConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output", "stderr")
	v.SetDefault("log.enable_file", false)
	v.SetDefault("log.file_path", "logs/"+AppName+".log")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 7)
	v.SetDefault("log.max_age_days", 28)
	v.SetDefault("log.compress", true)
}
