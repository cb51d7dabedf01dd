package types

import (
	"time"

	"github.com/yeisme/sourcelens/pkg/internal/model"
	"github.com/yeisme/sourcelens/pkg/internal/store"
)

// VersionFile 创建版本时提交的文件.
type VersionFile struct {
	Filename string `json:"filename" rule:"required,max=255,safepath"`
	Content  string `json:"content"  rule:"required"`
}

// CreateVersionRequest 创建版本.
type CreateVersionRequest struct {
	ProjectID     string        `json:"projectId"               rule:"required"`
	Version       string        `json:"version"                 rule:"required,semver"`
	Files         []VersionFile `json:"files"                   rule:"required,min=1,dive"`
	ParentVersion string        `json:"parentVersion,omitempty" rule:"omitempty,max=128"`
}

// CreateVersionResponse 创建结果.
type CreateVersionResponse struct {
	Version       string     `json:"version"`
	FileCount     int        `json:"fileCount"`
	TotalSize     int64      `json:"totalSize"`
	ParentVersion string     `json:"parentVersion,omitempty"`
	ExpiresAt     *time.Time `json:"expiresAt,omitempty"`
}

// RollbackRequest 以 targetVersion 的内容创建 newVersion.
type RollbackRequest struct {
	ProjectID     string `json:"projectId"     rule:"required"`
	TargetVersion string `json:"targetVersion" rule:"required"`
	NewVersion    string `json:"newVersion"    rule:"required"`
}

// CompareVersionsRequest 对比两个版本.
type CompareVersionsRequest struct {
	ProjectID string `json:"projectId" form:"projectId" rule:"required"`
	Version1  string `json:"version1"  form:"version1"  rule:"required,semver"`
	Version2  string `json:"version2"  form:"version2"  rule:"required,semver"`
}

// ModifiedFile 两个版本中内容长度或上传时间不同的同名文件.
type ModifiedFile struct {
	Filename      string    `json:"filename"`
	SizeChange    int64     `json:"sizeChange"`
	UploadedAtOld time.Time `json:"uploadedAtOld"`
	UploadedAtNew time.Time `json:"uploadedAtNew"`
}

// VersionComparison 对比结果，文件列表按文件名排序.
type VersionComparison struct {
	Version1      string         `json:"version1"`
	Version2      string         `json:"version2"`
	CommonFiles   []string       `json:"commonFiles"`
	AddedFiles    []string       `json:"addedFiles"`
	RemovedFiles  []string       `json:"removedFiles"`
	ModifiedFiles []ModifiedFile `json:"modifiedFiles"`
}

// SuggestVersionRequest 建议下一个版本号.
type SuggestVersionRequest struct {
	ProjectID      string `json:"projectId"      form:"projectId"      rule:"required"`
	CurrentVersion string `json:"currentVersion" form:"currentVersion" rule:"required,semver"`
}

// 建议原因.
const (
	ReasonNewFiles     = "New SourceMap files detected"
	ReasonUpdatedFiles = "Existing SourceMap files updated"
	ReasonNoUpdates    = "No updates needed"
)

// VersionSuggestion 建议结果.
type VersionSuggestion struct {
	CurrentVersion   string `json:"currentVersion"`
	SuggestedVersion string `json:"suggestedVersion"`
	Reason           string `json:"reason"`
	FileCount        int    `json:"fileCount"`
	SizeChange       int64  `json:"sizeChange"`
}

// VersionCleanupResult 过期版本清理结果.
type VersionCleanupResult struct {
	CleanedVersions []string `json:"cleanedVersions"`
	TotalFiles      int64    `json:"totalFiles"`
	TotalSize       int64    `json:"totalSize"`
	Preview         bool     `json:"preview,omitempty"`
}

// BatchCleanupRequest 批量删除版本，必须显式确认.
type BatchCleanupRequest struct {
	ProjectID string   `json:"projectId" rule:"required"`
	Versions  []string `json:"versions"  rule:"required,min=1,dive,required"`
	Confirm   bool     `json:"confirm"`
}

// BatchCleanupResult 批量删除结果，每个版本独立处理.
type BatchCleanupResult struct {
	Cleaned int      `json:"cleaned"`
	Errors  []string `json:"errors"`
	Details []string `json:"details"`
}

// VersionHistoryEntry 历史中的一个版本.
type VersionHistoryEntry struct {
	Version       string    `json:"version"`
	ParentVersion string    `json:"parentVersion,omitempty"`
	UploadedAt    time.Time `json:"uploadedAt"`
	FileCount     int       `json:"fileCount"`
	TotalSize     int64     `json:"totalSize"`
}

// VersionsResponse 版本汇总列表.
type VersionsResponse struct {
	ProjectID string                 `json:"projectId"`
	Versions  []store.VersionSummary `json:"versions"`
}

// VersionHistoryResponse 版本历史.
type VersionHistoryResponse struct {
	ProjectID string                `json:"projectId"`
	History   []VersionHistoryEntry `json:"history"`
}

// VersionDetails 单个版本的文件明细.
type VersionDetails struct {
	Version       string             `json:"version"`
	ParentVersion string             `json:"parentVersion,omitempty"`
	FileCount     int                `json:"fileCount"`
	TotalSize     int64              `json:"totalSize"`
	Files         []*model.SourceMap `json:"files"`
}
