package configs

import "github.com/spf13/viper"

// AuthConfig 调用方认证. 开启后角色只由凭据决定，X-Role 请求头不再生效.
type AuthConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// SkipPaths 前缀匹配，命中的请求不做认证，浏览器错误上报入口默认在内
	SkipPaths []string `mapstructure:"skip_paths"  rule:"dive,startswith=/"`
	// APITokens 条目写作 "role:token"，只写 token 时角色为 uploader
	APITokens   []string `mapstructure:"api_tokens"  rule:"dive,min=8"`
	AdminUsers  []string `mapstructure:"admin_users" rule:"dive,email"`
	DefaultRole string   `mapstructure:"default_role" rule:"oneof=viewer uploader admin"`
	// DevAllowQuery 本地调试时允许 ?user=<email> 代替代理注入的邮箱头
	DevAllowQuery bool `mapstructure:"dev_allow_query"`
}

func (c *AuthConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.skip_paths", []string{"/metrics", "/debug/pprof", "/swagger", "/api/v1/health", "/api/v1/reports"})
	v.SetDefault("auth.api_tokens", []string{})
	v.SetDefault("auth.admin_users", []string{})
	v.SetDefault("auth.default_role", "viewer")
	v.SetDefault("auth.dev_allow_query", false)
}
