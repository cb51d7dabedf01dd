// Package model 定义持久化实体：SourceMap 文件与错误上报记录.
package model

import (
	"time"
)

// DefaultVersion 上传未携带版本时使用的版本号.
const DefaultVersion = "unknown"

// SourceMap 一次上传的 SourceMap 文件，(project_id, version, filename) 唯一.
type SourceMap struct {
	ID        uint   `gorm:"primaryKey"                                            json:"id"`
	ProjectID string `gorm:"size:255;not null;uniqueIndex:idx_project_version_file;index" json:"projectId"`
	Version   string `gorm:"size:128;not null;uniqueIndex:idx_project_version_file;index" json:"version"`
	Filename  string `gorm:"size:255;not null;uniqueIndex:idx_project_version_file"       json:"filename"`
	// Content 为 base64 编码的 SourceMap JSON，MySQL 下映射为 LONGTEXT
	Content       string     `gorm:"size:16777216;not null" json:"content,omitempty"`
	ParentVersion *string    `gorm:"size:128;index"         json:"parentVersion,omitempty"`
	Size          int64      `gorm:"not null;default:0"     json:"size"`
	UploadedAt    time.Time  `gorm:"not null;index"         json:"uploadedAt"`
	ExpiresAt     *time.Time `gorm:"index"                  json:"expiresAt,omitempty"`
}

// TableName 表名.
func (SourceMap) TableName() string {
	return "source_maps"
}

// IsExpired 判断在 now 时刻是否已过期，等于 now 不算过期.
func (s *SourceMap) IsExpired(now time.Time) bool {
	return s.ExpiresAt != nil && s.ExpiresAt.Before(now)
}

// Parent 返回来源版本，未设置时为空串.
func (s *SourceMap) Parent() string {
	if s.ParentVersion == nil {
		return ""
	}

	return *s.ParentVersion
}

// Clone 深拷贝，指针字段不共享.
func (s *SourceMap) Clone() *SourceMap {
	c := *s
	if s.ParentVersion != nil {
		p := *s.ParentVersion
		c.ParentVersion = &p
	}

	if s.ExpiresAt != nil {
		e := *s.ExpiresAt
		c.ExpiresAt = &e
	}

	return &c
}

// NormalizeVersion 空版本返回 DefaultVersion.
func NormalizeVersion(v string) string {
	if v == "" {
		return DefaultVersion
	}

	return v
}
