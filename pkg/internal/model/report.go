package model

import (
	"time"
)

// ErrorReport 前端上报的一条错误，映射成功时附带原始源码位置.
type ErrorReport struct {
	ID           string    `gorm:"primaryKey;size:26"  json:"id"`
	ProjectID    string    `gorm:"size:255;not null;index" json:"projectId"`
	Message      string    `gorm:"type:text"           json:"message"`
	Type         string    `gorm:"size:64;index"       json:"type,omitempty"`
	Stack        string    `gorm:"type:text"           json:"stack,omitempty"`
	Version      string    `gorm:"size:128;index"      json:"version,omitempty"`
	URL          string    `gorm:"size:2048"           json:"url,omitempty"`
	UserAgent    string    `gorm:"size:1024"           json:"userAgent,omitempty"`
	MappedStack  *string   `gorm:"type:text"           json:"mappedStack,omitempty"`
	SourceFile   *string   `gorm:"size:1024"           json:"sourceFile,omitempty"`
	SourceLine   *int      `json:"sourceLine,omitempty"`
	SourceColumn *int      `json:"sourceColumn,omitempty"`
	OccurredAt   time.Time `gorm:"index"               json:"timestamp"`
	CreatedAt    time.Time `gorm:"index"               json:"createdAt"`
}

// TableName 表名.
func (ErrorReport) TableName() string {
	return "error_reports"
}

// Mapped 是否已成功映射到源码.
func (r *ErrorReport) Mapped() bool {
	return r.SourceFile != nil
}

// Models 返回需要迁移的全部模型.
func Models() []any {
	return []any{&SourceMap{}, &ErrorReport{}}
}
