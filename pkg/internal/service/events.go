package service

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"
	"go.opentelemetry.io/otel/trace"

	"github.com/yeisme/sourcelens/pkg/configs"
	"github.com/yeisme/sourcelens/pkg/internal/model"
	"github.com/yeisme/sourcelens/pkg/internal/storage/mq"
	"github.com/yeisme/sourcelens/pkg/internal/store"
	"github.com/yeisme/sourcelens/pkg/log"
	"github.com/yeisme/sourcelens/pkg/queue"
)

// mqPublisher 把 mq.Client 适配为 watermill Publisher.
type mqPublisher struct {
	client *mq.Client
}

func (p mqPublisher) Publish(topic string, msgs ...*message.Message) error {
	return p.client.Publish(context.Background(), topic, msgs...)
}

func (p mqPublisher) Close() error { return nil }

// EventPublisher 按事件开关发布领域事件，发布失败只记录日志.
// nil 接收者上的调用都是空操作.
type EventPublisher struct {
	pub message.Publisher
	cfg configs.EventsConfig
}

// NewEventPublisher 使用 MQ 客户端发布事件.
func NewEventPublisher(client *mq.Client, cfg configs.EventsConfig) *EventPublisher {
	return NewEventPublisherWith(mqPublisher{client: client}, cfg)
}

// NewEventPublisherWith 使用任意 watermill Publisher 发布事件.
func NewEventPublisherWith(pub message.Publisher, cfg configs.EventsConfig) *EventPublisher {
	return &EventPublisher{pub: pub, cfg: cfg}
}

func (e *EventPublisher) publish(ctx context.Context, enabled bool, fn func(message.Publisher, ...func(*queue.EventHeader)) error) {
	if e == nil || !e.cfg.Enabled || !enabled {
		return
	}

	opts := []func(*queue.EventHeader){queue.WithProducer(configs.AppName)}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		opts = append(opts, queue.WithTraceID(sc.TraceID().String()))
	}

	if err := fn(e.pub, opts...); err != nil {
		l := log.Component("events")
		l.Warn().Err(err).Msg("publish event failed")
	}
}

func fileRefs(rows []*model.SourceMap) []queue.FileRef {
	refs := make([]queue.FileRef, 0, len(rows))
	for _, r := range rows {
		refs = append(refs, queue.FileRef{ID: r.ID, Version: r.Version, Filename: r.Filename, Size: r.Size})
	}

	return refs
}

// SourceMapsUploaded sl.sourcemap.uploaded.
func (e *EventPublisher) SourceMapsUploaded(ctx context.Context, projectID string, rows []*model.SourceMap) {
	e.publish(ctx, e != nil && e.cfg.SourceMap.Uploaded, func(p message.Publisher, opts ...func(*queue.EventHeader)) error {
		return queue.PublishSourceMapUploaded(p, queue.SourceMapUploadedPayload{ProjectID: projectID, Files: fileRefs(rows)}, opts...)
	})
}

// SourceMapsDeleted sl.sourcemap.deleted.
func (e *EventPublisher) SourceMapsDeleted(ctx context.Context, payload queue.SourceMapDeletedPayload) {
	e.publish(ctx, e != nil && e.cfg.SourceMap.Deleted, func(p message.Publisher, opts ...func(*queue.EventHeader)) error {
		return queue.PublishSourceMapDeleted(p, payload, opts...)
	})
}

// SourceMapsExpired sl.sourcemap.expired，没有删除任何文件时不发布.
func (e *EventPublisher) SourceMapsExpired(ctx context.Context, projectID string, res store.ExpiredResult) {
	if res.Count == 0 {
		return
	}

	e.publish(ctx, e != nil && e.cfg.SourceMap.Expired, func(p message.Publisher, opts ...func(*queue.EventHeader)) error {
		return queue.PublishSourceMapExpired(p, queue.SourceMapExpiredPayload{
			ProjectID: projectID,
			Versions:  res.Versions,
			Count:     int(res.Count),
			TotalSize: res.TotalSize,
		}, opts...)
	})
}

// VersionCreated sl.version.created.
func (e *EventPublisher) VersionCreated(ctx context.Context, payload queue.VersionCreatedPayload) {
	e.publish(ctx, e != nil && e.cfg.Version.Created, func(p message.Publisher, opts ...func(*queue.EventHeader)) error {
		return queue.PublishVersionCreated(p, payload, opts...)
	})
}

// VersionRolledBack sl.version.rolled_back.
func (e *EventPublisher) VersionRolledBack(ctx context.Context, payload queue.VersionRolledBackPayload) {
	e.publish(ctx, e != nil && e.cfg.Version.RolledBack, func(p message.Publisher, opts ...func(*queue.EventHeader)) error {
		return queue.PublishVersionRolledBack(p, payload, opts...)
	})
}

// ReportReceived sl.report.received.
func (e *EventPublisher) ReportReceived(ctx context.Context, payload queue.ReportReceivedPayload) {
	e.publish(ctx, e != nil && e.cfg.Report.Received, func(p message.Publisher, opts ...func(*queue.EventHeader)) error {
		return queue.PublishReportReceived(p, payload, opts...)
	})
}

// ReportMapped sl.report.mapped.
func (e *EventPublisher) ReportMapped(ctx context.Context, payload queue.ReportMappedPayload) {
	e.publish(ctx, e != nil && e.cfg.Report.Mapped, func(p message.Publisher, opts ...func(*queue.EventHeader)) error {
		return queue.PublishReportMapped(p, payload, opts...)
	})
}
