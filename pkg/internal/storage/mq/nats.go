package mq

import (
	"context"
	"strings"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	nc "github.com/nats-io/nats.go"

	"github.com/yeisme/sourcelens/pkg/configs"
)

const (
	drainTimeout   = 30 * time.Second
	flusherTimeout = 10 * time.Second
)

func init() {
	RegisterFactory(configs.MQTypeNATS, natsFactory)
}

// natsFactory 创建 NATS Publisher 与 Subscriber.
// 主题统一加上 subject_prefix；load_balance 开启时同一服务的多个实例组成队列组.
func natsFactory(
	_ context.Context,
	cfg *configs.MQConfig,
	logger watermill.LoggerAdapter) (
	message.Publisher, message.Subscriber, error) {
	var (
		url       = natsURL(cfg)
		opts      = natsOptions(cfg)
		js        = jetStreamConfig(cfg)
		marshaler = &nats.JSONMarshaler{}
	)

	pub, err := nats.NewPublisher(nats.PublisherConfig{
		URL:         url,
		NatsOptions: opts,
		JetStream:   js,
		Marshaler:   marshaler,
	}, logger)
	if err != nil {
		return nil, nil, err
	}

	subCfg := nats.SubscriberConfig{
		URL:         url,
		NatsOptions: opts,
		JetStream:   js,
		Unmarshaler: marshaler,
	}
	if cfg.NATS.LoadBalance {
		subCfg.QueueGroupPrefix = configs.AppName
	}

	sub, err := nats.NewSubscriber(subCfg, logger)
	if err != nil {
		_ = pub.Close()
		return nil, nil, err
	}

	logger.Info("nats pubsub ready", watermill.LogFields{
		"url":           url,
		"jetstream":     cfg.NATS.JetStreamEnabled,
		"prefix":        cfg.NATS.SubjectPrefix,
		"load_balanced": cfg.NATS.LoadBalance,
	})

	prefix := cfg.NATS.SubjectPrefix

	return prefixedPublisher{Publisher: pub, prefix: prefix}, prefixedSubscriber{Subscriber: sub, prefix: prefix}, nil
}

func natsOptions(cfg *configs.MQConfig) []nc.Option {
	opts := []nc.Option{
		nc.Name(cfg.Common.ClientID),
		nc.MaxReconnects(cfg.Common.MaxReconnects),
		nc.ReconnectWait(cfg.Common.ReconnectWait),
		nc.PingInterval(cfg.Common.PingInterval),
		nc.ReconnectBufSize(cfg.Common.BufferSize),
		nc.DrainTimeout(drainTimeout),
		nc.FlusherTimeout(flusherTimeout),
		nc.RetryOnFailedConnect(true),
	}

	switch {
	case cfg.NATS.JWT != "":
		opts = append(opts, nc.UserJWTAndSeed(cfg.NATS.JWT, cfg.NATS.NKey))
	case cfg.NATS.NKey != "":
		opts = append(opts, nc.Nkey(cfg.NATS.NKey, nil))
	case cfg.Common.User != "":
		opts = append(opts, nc.UserInfo(cfg.Common.User, cfg.Common.Password))
	}

	return opts
}

// jetStreamConfig JetStream 按主题自动建流，流名不能含 "."，带点的主题需要预先建好流.
func jetStreamConfig(cfg *configs.MQConfig) nats.JetStreamConfig {
	if !cfg.NATS.JetStreamEnabled {
		return nats.JetStreamConfig{Disabled: true}
	}

	return nats.JetStreamConfig{
		AutoProvision: cfg.NATS.JetStreamAutoProvision,
		TrackMsgId:    cfg.NATS.JetStreamTrackMsgID,
		AckAsync:      cfg.NATS.JetStreamAckAsync,
		DurablePrefix: cfg.NATS.JetStreamDurablePrefix,
	}
}

// natsURL 集群地址优先，未带协议时补全 nats://.
func natsURL(cfg *configs.MQConfig) string {
	if len(cfg.NATS.ClusterURLs) > 0 {
		return strings.Join(cfg.NATS.ClusterURLs, ",")
	}

	if strings.Contains(cfg.Common.URL, "://") {
		return cfg.Common.URL
	}

	return "nats://" + cfg.Common.URL
}

type prefixedPublisher struct {
	message.Publisher
	prefix string
}

func (p prefixedPublisher) Publish(topic string, msgs ...*message.Message) error {
	return p.Publisher.Publish(p.prefix+topic, msgs...)
}

type prefixedSubscriber struct {
	message.Subscriber
	prefix string
}

func (s prefixedSubscriber) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	return s.Subscriber.Subscribe(ctx, s.prefix+topic)
}
