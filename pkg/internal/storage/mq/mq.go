// Package mq 把 watermill 的 Publisher/Subscriber 包装成一个客户端，后端按配置选择：
// nats、redis（Pub/Sub）或进程内 memory（gochannel）.
//
// SourceMap 上传、过期、版本变更与错误映射事件都经由它发布：
//
//	client, err := mq.New(ctx, &cfg.MQ, cfg.Metrics.Enabled)
//	if err != nil {
//		return err
//	}
//	defer client.Close()
//
//	msg, _ := queue.NewWatermillMessage(queue.TopicSourceMapUploaded, payload)
//	err = client.Publish(ctx, queue.TopicSourceMapUploaded, msg)
package mq

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"

	watermill "github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/components/metrics"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/yeisme/sourcelens/pkg/configs"
	nlog "github.com/yeisme/sourcelens/pkg/log"
	appmetrics "github.com/yeisme/sourcelens/pkg/metrics"
)

// ErrNotInitialized 客户端为 nil 或后端未创建.
var ErrNotInitialized = errors.New("mq client not initialized")

// Factory 创建一对 Publisher 与 Subscriber，二者可以是同一个对象.
type Factory func(ctx context.Context, cfg *configs.MQConfig, logger watermill.LoggerAdapter) (message.Publisher, message.Subscriber, error)

var factories = map[configs.MQType]Factory{}

// RegisterFactory 在 init 中注册后端.
func RegisterFactory(t configs.MQType, f Factory) {
	factories[t] = f
}

// RegisteredTypes 返回已注册的后端，按名称排序.
func RegisteredTypes() []configs.MQType {
	return slices.Sorted(maps.Keys(factories))
}

// Client 封装 watermill Publisher 与 Subscriber.
type Client struct {
	kind       configs.MQType
	publisher  message.Publisher
	subscriber message.Subscriber
}

func (c *Client) Type() configs.MQType {
	return c.kind
}

// Publish 发布到 topic；消息没有绑定 context 时使用 ctx.
func (c *Client) Publish(ctx context.Context, topic string, msgs ...*message.Message) error {
	if c == nil || c.publisher == nil {
		return ErrNotInitialized
	}

	for _, m := range msgs {
		if m.Context() == context.Background() {
			m.SetContext(ctx)
		}
	}

	if err := c.publisher.Publish(topic, msgs...); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}

	return nil
}

// Subscribe 订阅 topic，ctx 结束时通道关闭.
func (c *Client) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	if c == nil || c.subscriber == nil {
		return nil, ErrNotInitialized
	}

	return c.subscriber.Subscribe(ctx, topic)
}

// Close 关闭发布端与订阅端，同一对象只关闭一次.
func (c *Client) Close() error {
	if c == nil {
		return nil
	}

	var errs []error

	if c.publisher != nil {
		errs = append(errs, c.publisher.Close())
	}

	if c.subscriber != nil && any(c.subscriber) != any(c.publisher) {
		errs = append(errs, c.subscriber.Close())
	}

	return errors.Join(errs...)
}

// New 按配置创建客户端，metricsEnabled 时用 Prometheus 装饰发布与订阅.
func New(ctx context.Context, cfg *configs.MQConfig, metricsEnabled bool) (*Client, error) {
	factory, ok := factories[cfg.Type]
	if !ok {
		return nil, fmt.Errorf("unsupported mq type %q (have %v)", cfg.Type, RegisteredTypes())
	}

	pub, sub, err := factory(ctx, cfg, NewLoggerAdapter(nlog.Logger()))
	if err != nil {
		return nil, fmt.Errorf("init mq %s: %w", cfg.Type, err)
	}

	if metricsEnabled {
		mb := metrics.NewPrometheusMetricsBuilder(appmetrics.Registry(), configs.AppName, "mq")

		if pub, err = mb.DecoratePublisher(pub); err == nil {
			sub, err = mb.DecorateSubscriber(sub)
		}

		if err != nil {
			return nil, fmt.Errorf("mq metrics: %w", err)
		}
	}

	nlog.Logger().Info().Str("type", string(cfg.Type)).Bool("metrics", metricsEnabled).Msg("mq ready")

	return &Client{kind: cfg.Type, publisher: pub, subscriber: sub}, nil
}
