package queue

import "time"

// EventHeader 定义所有事件的通用头部元数据.
// 建议在发布消息时填充 TraceID、OccurredAt、Producer 等，便于追踪链路与审计.
type EventHeader struct {
	// Topic 冗余记录消息主题，便于离线处理或转储后定位来源主题.
	Topic string `json:"topic"`
	// TraceID 分布式追踪/关联 ID，可来自中间件或业务生成.
	TraceID string `json:"trace_id,omitempty"`
	// Producer 生产者服务名或节点标识.
	Producer string `json:"producer,omitempty"`
	// OccurredAt 事件发生时间（UTC，RFC3339）.
	OccurredAt time.Time `json:"occurred_at"`
	// Version 事件负载版本，便于向后兼容演进.
	Version string `json:"version,omitempty"`
}

// Message 是统一的消息封装，Header + Payload.
// T 即不同主题对应的负载结构体.
type Message[T any] struct {
	Header  EventHeader `json:"header"`
	Payload T           `json:"payload"`
}

// -------------------------- SourceMap 领域 --------------------------

// FileRef 一个 SourceMap 文件的元数据，不含内容.
type FileRef struct {
	ID       uint   `json:"id,omitempty"`
	Version  string `json:"version"`
	Filename string `json:"filename"`
	Size     int64  `json:"size,omitempty"`
}

// SourceMapUploadedPayload 一批文件写入存储.
type SourceMapUploadedPayload struct {
	ProjectID string    `json:"project_id"`
	Files     []FileRef `json:"files"`
}

// SourceMapDeletedPayload 文件被删除.
type SourceMapDeletedPayload struct {
	ProjectID string `json:"project_id,omitempty"`
	Version   string `json:"version,omitempty"`
	IDs       []uint `json:"ids,omitempty"`
	Count     int    `json:"count"`
}

// SourceMapExpiredPayload 过期清理结果.
type SourceMapExpiredPayload struct {
	ProjectID string   `json:"project_id,omitempty"` // 为空表示全局清理
	Versions  []string `json:"versions"`
	Count     int      `json:"count"`
	TotalSize int64    `json:"total_size"`
}

// -------------------------- 版本领域 --------------------------

// VersionCreatedPayload 版本创建完成.
type VersionCreatedPayload struct {
	ProjectID     string `json:"project_id"`
	Version       string `json:"version"`
	ParentVersion string `json:"parent_version,omitempty"`
	FileCount     int    `json:"file_count"`
	TotalSize     int64  `json:"total_size"`
}

// VersionRolledBackPayload 回滚生成的新版本.
type VersionRolledBackPayload struct {
	ProjectID     string `json:"project_id"`
	TargetVersion string `json:"target_version"`
	NewVersion    string `json:"new_version"`
	FileCount     int    `json:"file_count"`
}

// -------------------------- 错误上报领域 --------------------------

// ReportReceivedPayload 收到的错误上报批次.
type ReportReceivedPayload struct {
	ProjectID  string `json:"project_id"`
	ErrorCount int    `json:"error_count"`
	InlineMaps int    `json:"inline_maps,omitempty"`
}

// ReportMappedPayload 堆栈映射结果统计.
type ReportMappedPayload struct {
	ProjectID  string   `json:"project_id"`
	ReportIDs  []string `json:"report_ids,omitempty"`
	ErrorCount int      `json:"error_count"`
	Mapped     int      `json:"mapped"`
}

func (p SourceMapUploadedPayload) Project() string { return p.ProjectID }
func (p SourceMapDeletedPayload) Project() string  { return p.ProjectID }
func (p SourceMapExpiredPayload) Project() string  { return p.ProjectID }
func (p VersionCreatedPayload) Project() string    { return p.ProjectID }
func (p VersionRolledBackPayload) Project() string { return p.ProjectID }
func (p ReportReceivedPayload) Project() string    { return p.ProjectID }
func (p ReportMappedPayload) Project() string      { return p.ProjectID }
