package mq

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"github.com/yeisme/sourcelens/pkg/configs"
)

const redisOutputBuffer = 64

var errRedisClosed = errors.New("redis pubsub closed")

func init() {
	RegisterFactory(configs.MQTypeRedis, redisFactory)
}

// redisEnvelope Pub/Sub 只传字符串，UUID 与元数据随负载一起编码.
type redisEnvelope struct {
	UUID     string            `json:"uuid"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Payload  []byte            `json:"payload"`
}

// redisPubSub 同时实现 Publisher 与 Subscriber，共用一个连接池.
// Redis Pub/Sub 不持久化，订阅前发布的事件会丢失；消息被 Nack 时只记录日志.
type redisPubSub struct {
	client *redis.Client
	logger watermill.LoggerAdapter

	mu     sync.Mutex
	closed bool
	done   chan struct{}
	wg     sync.WaitGroup
}

func redisFactory(
	ctx context.Context,
	cfg *configs.MQConfig,
	logger watermill.LoggerAdapter) (
	message.Publisher, message.Subscriber, error) {
	client := redis.NewClient(&redis.Options{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		ClientName: cfg.Common.ClientID,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("connect redis %s: %w", cfg.Redis.Addr, err)
	}

	ps := &redisPubSub{client: client, logger: logger, done: make(chan struct{})}

	return ps, ps, nil
}

func (r *redisPubSub) Publish(topic string, msgs ...*message.Message) error {
	for _, msg := range msgs {
		data, err := sonic.Marshal(redisEnvelope{UUID: msg.UUID, Metadata: msg.Metadata, Payload: msg.Payload})
		if err != nil {
			return fmt.Errorf("encode message %s: %w", msg.UUID, err)
		}

		if err := r.client.Publish(msg.Context(), topic, data).Err(); err != nil {
			return fmt.Errorf("publish %s: %w", topic, err)
		}
	}

	return nil
}

// Subscribe 逐条投递，上一条 Ack 或 Nack 之后才投递下一条.
func (r *redisPubSub) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, errRedisClosed
	}

	sub := r.client.Subscribe(ctx, topic)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", topic, err)
	}

	out := make(chan *message.Message, redisOutputBuffer)

	r.wg.Add(1)

	go func() {
		defer r.wg.Done()
		defer close(out)
		defer sub.Close()

		in := sub.Channel()

		for {
			var raw *redis.Message

			select {
			case <-r.done:
				return
			case <-ctx.Done():
				return
			case m, ok := <-in:
				if !ok {
					return
				}

				raw = m
			}

			msg := decodeRedis(raw.Payload)
			msg.SetContext(ctx)

			select {
			case out <- msg:
			case <-r.done:
				return
			case <-ctx.Done():
				return
			}

			select {
			case <-msg.Acked():
			case <-msg.Nacked():
				r.logger.Info("redis message nacked, dropped", watermill.LogFields{"topic": topic, "uuid": msg.UUID})
			case <-r.done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

// decodeRedis 非本服务发布的原始字符串按负载透传.
func decodeRedis(payload string) *message.Message {
	var env redisEnvelope
	if err := sonic.UnmarshalString(payload, &env); err != nil || env.UUID == "" {
		return message.NewMessage(watermill.NewULID(), []byte(payload))
	}

	msg := message.NewMessage(env.UUID, env.Payload)
	for k, v := range env.Metadata {
		msg.Metadata.Set(k, v)
	}

	return msg
}

func (r *redisPubSub) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}

	r.closed = true
	close(r.done)
	r.mu.Unlock()

	r.wg.Wait()

	return r.client.Close()
}
