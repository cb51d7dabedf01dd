package types

import (
	"time"

	"github.com/yeisme/sourcelens/pkg/internal/model"
)

// ErrorInfo 前端上报的一条错误.
type ErrorInfo struct {
	Message   string     `json:"message"             rule:"required"`
	Stack     string     `json:"stack,omitempty"`
	Type      string     `json:"type,omitempty"      rule:"omitempty,max=64"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
	URL       string     `json:"url,omitempty"`
	UserAgent string     `json:"userAgent,omitempty"`
	Version   string     `json:"version,omitempty"   rule:"omitempty,max=128"`
}

// ErrorReportRequest 一批错误，可随附内联 SourceMap.
type ErrorReportRequest struct {
	ProjectID  string          `json:"projectId"            rule:"required,max=255"`
	Errors     []ErrorInfo     `json:"errors"               rule:"required,min=1,dive"`
	SourceMaps []SourceMapFile `json:"sourceMaps,omitempty" rule:"omitempty,dive"`
}

// MappedError 映射后的错误，未映射时映射字段为空.
type MappedError struct {
	ErrorInfo
	ID           string  `json:"id,omitempty"`
	MappedStack  *string `json:"mappedStack,omitempty"`
	SourceFile   *string `json:"sourceFile,omitempty"`
	SourceLine   *int    `json:"sourceLine,omitempty"`
	SourceColumn *int    `json:"sourceColumn,omitempty"`
}

// ErrorReportResponse 处理结果.
type ErrorReportResponse struct {
	Success bool          `json:"success"`
	Mapped  int           `json:"mapped"`
	Errors  []MappedError `json:"errors"`
}

// ListReportsResponse 已保存的上报.
type ListReportsResponse struct {
	Reports    []*model.ErrorReport `json:"reports"`
	Pagination Pagination           `json:"pagination"`
}

// ResolveRequest 离线解析一段堆栈.
type ResolveRequest struct {
	ProjectID string `json:"projectId" rule:"required"`
	Version   string `json:"version"`
	Stack     string `json:"stack"     rule:"required"`
}

// ResolveResponse 解析结果.
type ResolveResponse struct {
	MappedStack string `json:"mappedStack"`
}
