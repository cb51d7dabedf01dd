// Package queue 定义领域事件：主题、负载与统一信封.
//
// 每条消息的负载是 JSON 信封 {"header": {...}, "payload": {...}}，header 记录主题、
// 追踪 ID、生产者、发生时间（UTC）与负载版本。同样的信息也写入 watermill 元数据，
// 消费者不解码负载就能按项目路由或过滤；消息 ID 使用 ULID，按时间有序。
//
//	_ = queue.PublishSourceMapUploaded(pub, queue.SourceMapUploadedPayload{ProjectID: "web"},
//		queue.WithProducer("sourcelens"))
//
//	for m := range msgs {
//		env, err := queue.ParseSourceMapUploaded(m)
//		...
//		m.Ack()
//	}
package queue

import (
	"errors"
	"fmt"
	"time"

	watermill "github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/bytedance/sonic"
)

// PayloadVersionV1 当前负载版本，新增字段不升级版本.
const PayloadVersionV1 = "v1"

// 元数据键.
const (
	MetaTopic      = "topic"
	MetaProject    = "project_id"
	MetaTraceID    = "trace_id"
	MetaProducer   = "producer"
	MetaOccurredAt = "occurred_at"
	MetaVersion    = "version"
)

// ErrTopicMismatch 信封中的主题与消息元数据不一致.
var ErrTopicMismatch = errors.New("queue: envelope topic does not match message metadata")

// HeaderOption 修改事件头.
type HeaderOption = func(*EventHeader)

// WithTraceID 设置 TraceID.
func WithTraceID(id string) HeaderOption { return func(h *EventHeader) { h.TraceID = id } }

// WithProducer 设置 Producer.
func WithProducer(p string) HeaderOption { return func(h *EventHeader) { h.Producer = p } }

// NewEventHeader 创建事件头，发生时间取当前 UTC 时间.
func NewEventHeader(topic string, opts ...HeaderOption) EventHeader {
	hdr := EventHeader{Topic: topic, OccurredAt: time.Now().UTC(), Version: PayloadVersionV1}
	for _, opt := range opts {
		opt(&hdr)
	}

	return hdr
}

// projectScoped 负载所属项目，写入 project_id 元数据.
type projectScoped interface {
	Project() string
}

// NewWatermillMessage 把负载封装为信封并构造 watermill 消息.
func NewWatermillMessage[T any](topic string, payload T, opts ...HeaderOption) (*message.Message, error) {
	header := NewEventHeader(topic, opts...)

	data, err := sonic.Marshal(Message[T]{Header: header, Payload: payload})
	if err != nil {
		return nil, fmt.Errorf("encode %s event: %w", topic, err)
	}

	msg := message.NewMessage(watermill.NewULID(), data)

	meta := map[string]string{
		MetaTopic:      topic,
		MetaTraceID:    header.TraceID,
		MetaProducer:   header.Producer,
		MetaOccurredAt: header.OccurredAt.Format(time.RFC3339Nano),
		MetaVersion:    header.Version,
	}
	if ps, ok := any(payload).(projectScoped); ok {
		meta[MetaProject] = ps.Project()
	}

	for k, v := range meta {
		if v != "" {
			msg.Metadata.Set(k, v)
		}
	}

	return msg, nil
}

// ParseWatermillMessage 解码信封，元数据中的主题与信封不一致时返回 ErrTopicMismatch.
func ParseWatermillMessage[T any](msg *message.Message) (Message[T], error) {
	var env Message[T]
	if err := sonic.Unmarshal(msg.Payload, &env); err != nil {
		return env, fmt.Errorf("decode event %s: %w", msg.UUID, err)
	}

	if topic := msg.Metadata.Get(MetaTopic); topic != "" && topic != env.Header.Topic {
		return env, fmt.Errorf("%w: %q vs %q", ErrTopicMismatch, topic, env.Header.Topic)
	}

	return env, nil
}
