package configs

import (
	"time"

	"github.com/spf13/viper"
)

// MQType 消息队列类型.
type MQType string

const (
	MQTypeNATS   MQType = "nats"
	MQTypeRedis  MQType = "redis"
	MQTypeMemory MQType = "memory" // 进程内 gochannel，单机部署与测试使用
)

// MQConfig 消息队列配置，SourceMap 上传、版本变更与错误上报事件发布到这里.
type MQConfig struct {
	Type   MQType         `mapstructure:"type"   rule:"oneof=nats redis memory"`
	Common MQCommonConfig `mapstructure:"common"`
	NATS   MQNATSConfig   `mapstructure:"nats"`
	Redis  MQRedisConfig  `mapstructure:"redis"`
}

// MQCommonConfig NATS 连接参数.
type MQCommonConfig struct {
	URL           string        `mapstructure:"url"            rule:"hostname_port"`
	User          string        `mapstructure:"user"`
	Password      string        `mapstructure:"password"`
	ClientID      string        `mapstructure:"client_id"`
	MaxReconnects int           `mapstructure:"max_reconnects" rule:"min=-1,max=100"` // -1 表示无限重连
	ReconnectWait time.Duration `mapstructure:"reconnect_wait"`
	PingInterval  time.Duration `mapstructure:"ping_interval"`
	BufferSize    int           `mapstructure:"buffer_size"    rule:"min=1024,max=1048576"`
}

// MQNATSConfig NATS 配置，JetStream 默认关闭，事件使用 core NATS 投递.
type MQNATSConfig struct {
	JetStreamEnabled       bool   `mapstructure:"jetstream_enabled"`
	JetStreamAutoProvision bool   `mapstructure:"jetstream_auto_provision"`
	JetStreamTrackMsgID    bool   `mapstructure:"jetstream_track_msg_id"`
	JetStreamAckAsync      bool   `mapstructure:"jetstream_ack_async"`
	JetStreamDurablePrefix string `mapstructure:"jetstream_durable_prefix"`
	// SubjectPrefix 所有主题的前缀，例如 sourcelens.sourcemap.uploaded
	SubjectPrefix string   `mapstructure:"subject_prefix"`
	JWT           string   `mapstructure:"jwt"`
	NKey          string   `mapstructure:"nkey"`
	ClusterURLs   []string `mapstructure:"cluster_urls"`
	// LoadBalance 开启后同名订阅者组成队列组，每条消息只投递给一个实例
	LoadBalance bool `mapstructure:"load_balance"`
}

// MQRedisConfig Redis Pub/Sub 配置.
type MQRedisConfig struct {
	Addr     string `mapstructure:"addr"     rule:"hostname_port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"       rule:"min=0,max=15"`
}

// GetMQType 返回当前配置的消息队列类型.
func (c *MQConfig) GetMQType() MQType {
	return c.Type
}

func (c *MQConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("mq.type", MQTypeMemory)

	v.SetDefault("mq.common.url", "localhost:4222")
	v.SetDefault("mq.common.client_id", AppName)
	v.SetDefault("mq.common.max_reconnects", 5)
	v.SetDefault("mq.common.reconnect_wait", 5*time.Second)
	v.SetDefault("mq.common.ping_interval", 20*time.Second)
	v.SetDefault("mq.common.buffer_size", 32*1024)

	v.SetDefault("mq.nats.jetstream_enabled", false)
	v.SetDefault("mq.nats.jetstream_auto_provision", true)
	v.SetDefault("mq.nats.jetstream_track_msg_id", true)
	v.SetDefault("mq.nats.jetstream_ack_async", true)
	v.SetDefault("mq.nats.jetstream_durable_prefix", AppName+"-durable")
	v.SetDefault("mq.nats.subject_prefix", AppName+".")
	v.SetDefault("mq.nats.cluster_urls", []string{})
	v.SetDefault("mq.nats.load_balance", true)

	v.SetDefault("mq.redis.addr", "localhost:6379")
	v.SetDefault("mq.redis.db", 0)
}
