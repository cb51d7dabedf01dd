package configs

import (
	"time"

	"github.com/spf13/viper"
)

// KVConfig 选择解析结果缓存与响应缓存的后端.
type KVConfig struct {
	Type       string             `mapstructure:"type"       rule:"oneof=memory redis nats groupcache"`
	Redis      RedisKVConfig      `mapstructure:"redis"`
	NATS       NATSKVConfig       `mapstructure:"nats"`
	Groupcache GroupcacheKVConfig `mapstructure:"groupcache"`
}

// RedisKVConfig 多实例部署时推荐的后端.
type RedisKVConfig struct {
	Addr      string `mapstructure:"addr"       rule:"hostname_port"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"         rule:"min=0,max=15"`
	PoolSize  int    `mapstructure:"pool_size"  rule:"min=0"` // 0 表示用 go-redis 的默认值
	ScanCount int64  `mapstructure:"scan_count" rule:"min=1"`
}

// NATSKVConfig JetStream KeyValue bucket.
type NATSKVConfig struct {
	URL      string `mapstructure:"url"      rule:"required"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Bucket   string `mapstructure:"bucket"   rule:"required,excludesall=. *>"`
	// MaxAge 仅在创建 bucket 时生效
	MaxAge time.Duration `mapstructure:"max_age" rule:"gte=0"`
}

// GroupcacheKVConfig 进程内缓存，配置 peers 后按一致性哈希分片.
type GroupcacheKVConfig struct {
	Name       string   `mapstructure:"name"        rule:"required"`
	CacheBytes int64    `mapstructure:"cache_bytes" rule:"min=1048576"`
	Peers      []string `mapstructure:"peers"       rule:"dive,url"`
	Self       string   `mapstructure:"self"        rule:"required_with=Peers,omitempty,url"`
	BasePath   string   `mapstructure:"base_path"   rule:"startswith=/,endswith=/"`
	Replicas   int      `mapstructure:"replicas"    rule:"min=1"`
}

func (c *KVConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("kv.type", "memory")

	c.Redis.setDefaults(v)
	c.NATS.setDefaults(v)
	c.Groupcache.setDefaults(v)
}

func (c *RedisKVConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("kv.redis.addr", "localhost:6379")
	v.SetDefault("kv.redis.password", "")
	v.SetDefault("kv.redis.db", 0)
	v.SetDefault("kv.redis.pool_size", 0)
	v.SetDefault("kv.redis.scan_count", 500)
}

func (c *NATSKVConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("kv.nats.url", "nats://localhost:4222")
	v.SetDefault("kv.nats.user", "")
	v.SetDefault("kv.nats.password", "")
	v.SetDefault("kv.nats.bucket", AppName+"-kv")
	v.SetDefault("kv.nats.max_age", 24*time.Hour)
}

func (c *GroupcacheKVConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("kv.groupcache.name", AppName+"-cache")
	v.SetDefault("kv.groupcache.cache_bytes", 64<<20)
	v.SetDefault("kv.groupcache.peers", []string{})
	v.SetDefault("kv.groupcache.self", "")
	v.SetDefault("kv.groupcache.base_path", "/_groupcache/")
	v.SetDefault("kv.groupcache.replicas", 50)
}
