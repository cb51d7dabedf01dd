// Package queue 定义消息主题常量与通配模式，供发布/订阅使用.
package queue

// 主题命名规范：sl.<域>.<动作>，尽量稳定且向后兼容.
// 域：sourcemap(文件)、version(版本)、report(错误上报)
// 动作：完成时态(uploaded/deleted/expired/created/rolled_back/received/mapped)

const (
	// SourceMap 文件领域.
	TopicSourceMapUploaded = "sl.sourcemap.uploaded" // 一批 SourceMap 写入存储
	TopicSourceMapDeleted  = "sl.sourcemap.deleted"  // 按 ID 或版本删除
	TopicSourceMapExpired  = "sl.sourcemap.expired"  // 过期清理删除

	// 版本领域.
	TopicVersionCreated    = "sl.version.created"     // 新版本创建完成
	TopicVersionRolledBack = "sl.version.rolled_back" // 以历史版本内容创建新版本

	// 错误上报领域.
	TopicReportReceived = "sl.report.received" // 收到一批错误上报
	TopicReportMapped   = "sl.report.mapped"   // 上报堆栈映射完成
)

// 主题分组，用于批量订阅或权限控制.
var (
	// SourceMap 相关主题集合.
	SourceMapTopics = []string{TopicSourceMapUploaded, TopicSourceMapDeleted, TopicSourceMapExpired}

	// 版本相关主题集合.
	VersionTopics = []string{TopicVersionCreated, TopicVersionRolledBack}

	// 错误上报相关主题集合.
	ReportTopics = []string{TopicReportReceived, TopicReportMapped}
)
