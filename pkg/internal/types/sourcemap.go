// Package types 定义 HTTP 接口的请求与响应结构，rule 标签由 pkg/rule 校验.
package types

import (
	"time"

	"github.com/yeisme/sourcelens/pkg/internal/model"
	"github.com/yeisme/sourcelens/pkg/internal/store"
)

// SourceMapFile 一份上传的 SourceMap，content 为 base64 编码的 JSON.
type SourceMapFile struct {
	Filename string `json:"filename" rule:"required,max=255,safepath"`
	Content  string `json:"content"  rule:"required"`
	Version  string `json:"version"  rule:"omitempty,max=128"`
}

// UploadSourceMapsRequest 批量上传.
type UploadSourceMapsRequest struct {
	ProjectID  string          `json:"projectId"  rule:"required,max=255"`
	SourceMaps []SourceMapFile `json:"sourceMaps" rule:"required,min=1,dive"`
}

// UploadSourceMapsResponse 上传结果.
type UploadSourceMapsResponse struct {
	Success bool               `json:"success"`
	Count   int                `json:"count"`
	Files   []*model.SourceMap `json:"files"`
}

// ListSourceMapsResponse 项目/版本下的文件列表，不含内容.
type ListSourceMapsResponse struct {
	Files []*model.SourceMap `json:"files"`
	Total int                `json:"total"`
}

// SearchSourceMapsRequest 高级查询，对应 GET 查询参数.
type SearchSourceMapsRequest struct {
	ProjectID string `form:"projectId" json:"projectId" rule:"required"`
	Version   string `form:"version"   json:"version"`
	Filename  string `form:"filename"  json:"filename"`
	Search    string `form:"search"    json:"search"`
	Status    string `form:"status"    json:"status"    rule:"omitempty,oneof=active expired expiring_soon"`
	SortBy    string `form:"sortBy"    json:"sortBy"    rule:"omitempty,oneof=uploadedAt expiresAt filename version size"`
	SortOrder string `form:"sortOrder" json:"sortOrder" rule:"omitempty,oneof=asc desc"`
	Page      int    `form:"page"      json:"page"      rule:"omitempty,min=1"`
	PageSize  int    `form:"pageSize"  json:"pageSize"  rule:"omitempty,min=1,max=100"`
}

// Query 转换为存储查询条件.
func (r *SearchSourceMapsRequest) Query() store.Query {
	return store.Query{
		ProjectID: r.ProjectID,
		Version:   r.Version,
		Filename:  r.Filename,
		Search:    r.Search,
		Status:    r.Status,
		SortBy:    r.SortBy,
		SortOrder: r.SortOrder,
		Page:      r.Page,
		PageSize:  r.PageSize,
	}
}

// Pagination 分页信息.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"pageSize"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"totalPages"`
}

// NewPagination 根据总数计算页数.
func NewPagination(page, pageSize int, total int64) Pagination {
	p := Pagination{Page: page, PageSize: pageSize, Total: total}
	if pageSize > 0 {
		p.TotalPages = int((total + int64(pageSize) - 1) / int64(pageSize))
	}

	return p
}

// SearchSourceMapsResponse 查询结果.
type SearchSourceMapsResponse struct {
	Files      []*model.SourceMap `json:"files"`
	Pagination Pagination         `json:"pagination"`
}

// DeleteSourceMapsRequest 按 ID 批量删除.
type DeleteSourceMapsRequest struct {
	IDs []uint `json:"ids" rule:"required,min=1,dive,min=1"`
}

// DeleteResponse 删除数量.
type DeleteResponse struct {
	Deleted int64 `json:"deleted"`
}

// ProjectVersionsResponse 项目中的全部版本.
type ProjectVersionsResponse struct {
	ProjectID string   `json:"projectId"`
	Versions  []string `json:"versions"`
}

// CleanupResponse 全局过期清理结果.
type CleanupResponse struct {
	Deleted   int64    `json:"deleted"`
	Versions  []string `json:"versions"`
	TotalSize int64    `json:"totalSize"`
}

// Health 状态取值.
const (
	HealthHealthy   = "healthy"
	HealthDegraded  = "degraded"
	HealthUnhealthy = "unhealthy"
)

// SourceMapHealth 最近 5 分钟上传量反映的服务状态.
type SourceMapHealth struct {
	Status        string    `json:"status"`
	RecentUploads int64     `json:"recentUploads"`
	StoreError    string    `json:"storeError,omitempty"`
	CheckedAt     time.Time `json:"checkedAt"`
}
