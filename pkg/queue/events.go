package queue

import "github.com/ThreeDotsLabs/watermill/message"

// -------------------------- 基于业务封装 events --------------------------

// Publish 把负载封装为信封并发布到 topic.
// 可通过可选项 opts 注入 TraceID、Producer 等头部信息.
func Publish[T any](pub message.Publisher, topic string, payload T, opts ...HeaderOption) error {
	msg, err := NewWatermillMessage(topic, payload, opts...)
	if err != nil {
		return err
	}

	return pub.Publish(topic, msg)
}

// PublishSourceMapUploaded 发布 sl.sourcemap.uploaded 事件.
func PublishSourceMapUploaded(pub message.Publisher, payload SourceMapUploadedPayload, opts ...HeaderOption) error {
	return Publish(pub, TopicSourceMapUploaded, payload, opts...)
}

// PublishSourceMapDeleted 发布 sl.sourcemap.deleted 事件.
func PublishSourceMapDeleted(pub message.Publisher, payload SourceMapDeletedPayload, opts ...HeaderOption) error {
	return Publish(pub, TopicSourceMapDeleted, payload, opts...)
}

// PublishSourceMapExpired 发布 sl.sourcemap.expired 事件.
func PublishSourceMapExpired(pub message.Publisher, payload SourceMapExpiredPayload, opts ...HeaderOption) error {
	return Publish(pub, TopicSourceMapExpired, payload, opts...)
}

// PublishVersionCreated 发布 sl.version.created 事件.
func PublishVersionCreated(pub message.Publisher, payload VersionCreatedPayload, opts ...HeaderOption) error {
	return Publish(pub, TopicVersionCreated, payload, opts...)
}

// PublishVersionRolledBack 发布 sl.version.rolled_back 事件.
func PublishVersionRolledBack(pub message.Publisher, payload VersionRolledBackPayload, opts ...HeaderOption) error {
	return Publish(pub, TopicVersionRolledBack, payload, opts...)
}

// PublishReportReceived 发布 sl.report.received 事件.
func PublishReportReceived(pub message.Publisher, payload ReportReceivedPayload, opts ...HeaderOption) error {
	return Publish(pub, TopicReportReceived, payload, opts...)
}

// PublishReportMapped 发布 sl.report.mapped 事件.
func PublishReportMapped(pub message.Publisher, payload ReportMappedPayload, opts ...HeaderOption) error {
	return Publish(pub, TopicReportMapped, payload, opts...)
}

// ParseSourceMapUploaded 将 Watermill 消息解析为强类型信封.
func ParseSourceMapUploaded(msg *message.Message) (Message[SourceMapUploadedPayload], error) {
	return ParseWatermillMessage[SourceMapUploadedPayload](msg)
}
