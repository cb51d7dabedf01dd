package configs

import "github.com/spf13/viper"

// EventsConfig 控制事件发布的开关（全局与分主题）。
type EventsConfig struct {
	Enabled   bool                  `mapstructure:"enabled"` // 总开关
	SourceMap SourceMapEventsConfig `mapstructure:"sourcemap"`
	Version   VersionEventsConfig   `mapstructure:"version"`
	Report    ReportEventsConfig    `mapstructure:"report"`
}

// SourceMapEventsConfig SourceMap 文件生命周期事件开关。
type SourceMapEventsConfig struct {
	Uploaded bool `mapstructure:"uploaded"`
	Deleted  bool `mapstructure:"deleted"`
	Expired  bool `mapstructure:"expired"`
}

// VersionEventsConfig 版本操作事件开关。
type VersionEventsConfig struct {
	Created    bool `mapstructure:"created"`
	RolledBack bool `mapstructure:"rolled_back"`
}

// ReportEventsConfig 错误上报事件开关。
type ReportEventsConfig struct {
	Received bool `mapstructure:"received"`
	Mapped   bool `mapstructure:"mapped"`
}

func (c *EventsConfig) setDefaults(v *viper.Viper) {
	// 总开关：默认启用事件系统
	v.SetDefault("events.enabled", true)

	v.SetDefault("events.sourcemap.uploaded", true)
	v.SetDefault("events.sourcemap.deleted", true)
	v.SetDefault("events.sourcemap.expired", true)

	v.SetDefault("events.version.created", true)
	v.SetDefault("events.version.rolled_back", true)

	// 上报事件量可能很大，默认关闭
	v.SetDefault("events.report.received", false)
	v.SetDefault("events.report.mapped", false)
}
