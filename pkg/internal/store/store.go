// Package store 持久化 SourceMap 文件，按 (projectId, version, filename) 自然键寻址.
//
// 缺失的键返回空结果而不是错误，其它失败原样包装返回.
// GormStore 面向 postgres/mysql/sqlite，MemoryStore 用于测试与 memory 模式.
package store

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/yeisme/sourcelens/pkg/internal/model"
)

// ErrConflict 自然键已存在（唯一索引冲突）.
var ErrConflict = errors.New("store: natural key already exists")

const (
	DefaultExpiry   = 30 * 24 * time.Hour // 新文件默认保留时长
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// 过期状态筛选.
const (
	StatusActive       = "active"
	StatusExpired      = "expired"
	StatusExpiringSoon = "expiring_soon"
)

// ExpiringSoonWindow 距离过期不足该时长视为即将过期.
const ExpiringSoonWindow = 7 * 24 * time.Hour

// Store SourceMap 存储接口.
type Store interface {
	// Upsert 按自然键写入，已存在时覆盖内容并刷新上传时间.
	Upsert(ctx context.Context, in UpsertInput) (*model.SourceMap, error)
	// Insert 批量插入新行，自然键冲突返回 ErrConflict 且不写入任何行.
	Insert(ctx context.Context, rows []*model.SourceMap) error
	FindByNaturalKey(ctx context.Context, projectID, version, filename string) (*model.SourceMap, error)
	// FindByProjectAndVersion version 为空时返回项目全部文件，按上传时间倒序.
	FindByProjectAndVersion(ctx context.Context, projectID, version string) ([]*model.SourceMap, error)
	// ListVersionFiles 按文件名升序返回某版本的文件.
	ListVersionFiles(ctx context.Context, projectID, version string) ([]*model.SourceMap, error)
	Query(ctx context.Context, q Query) ([]*model.SourceMap, int64, error)
	DistinctVersions(ctx context.Context, projectID string) ([]string, error)
	AggregateVersionSummary(ctx context.Context, projectID string) ([]VersionSummary, error)
	CountVersion(ctx context.Context, projectID, version string) (int64, error)
	// ListExpired 返回 expiresAt < now 的文件，projectID 为空表示全部项目.
	ListExpired(ctx context.Context, projectID string) ([]*model.SourceMap, error)
	DeleteExpired(ctx context.Context, projectID string) (ExpiredResult, error)
	DeleteByIDs(ctx context.Context, ids []uint) (int64, error)
	DeleteByProjectAndVersion(ctx context.Context, projectID, version string) (int64, error)
	// ExtendExpiry 把同项目中不属于 excludeVersion 且 parentVersion 不等于 excludeParentVersion 的文件
	// 过期时间改为 newExpiry.
	ExtendExpiry(ctx context.Context, projectID, excludeVersion, excludeParentVersion string, newExpiry time.Time) (int64, error)
	// RecentUploads 返回其它版本中 since 之后上传的文件.
	RecentUploads(ctx context.Context, projectID, excludeVersion string, since time.Time) ([]*model.SourceMap, error)
	VersionHistory(ctx context.Context, projectID string, limit int) ([]*model.SourceMap, error)
	ProjectStats(ctx context.Context, projectID string) (ProjectStats, error)
	CountSince(ctx context.Context, since time.Time) (int64, error)
	Ping(ctx context.Context) error
}

// UpsertInput 上传一份 SourceMap.
type UpsertInput struct {
	ProjectID     string
	Version       string
	Filename      string
	Content       string
	ParentVersion *string
}

// Query 高级查询条件，Page 从 1 开始.
type Query struct {
	ProjectID string
	Version   string
	Filename  string
	Search    string // 文件名模糊匹配
	Status    string // active | expired | expiring_soon
	SortBy    string // uploadedAt | expiresAt | filename | version | size
	SortOrder string // asc | desc
	Page      int
	PageSize  int
}

// Normalize 规整分页与排序参数.
func (q *Query) Normalize() {
	if q.Page < 1 {
		q.Page = 1
	}

	if q.PageSize < 1 {
		q.PageSize = DefaultPageSize
	}

	if q.PageSize > MaxPageSize {
		q.PageSize = MaxPageSize
	}

	if _, ok := sortColumns[q.SortBy]; !ok {
		q.SortBy = "uploadedAt"
	}

	if q.SortOrder != "asc" {
		q.SortOrder = "desc"
	}
}

// Offset 当前页偏移量.
func (q *Query) Offset() int {
	return (q.Page - 1) * q.PageSize
}

// sortColumns 可排序字段到列名.
var sortColumns = map[string]string{
	"uploadedAt": "uploaded_at",
	"expiresAt":  "expires_at",
	"filename":   "filename",
	"version":    "version",
	"size":       "size",
}

// VersionSummary 一个版本组的聚合信息.
type VersionSummary struct {
	Version    string     `json:"version"`
	UploadedAt time.Time  `json:"uploadedAt"`
	FileCount  int64      `json:"fileCount"`
	TotalSize  int64      `json:"totalSize"`
	ExpiresAt  *time.Time `json:"expiresAt,omitempty"`
}

// ExpiredResult 过期清理结果.
type ExpiredResult struct {
	Count     int64    `json:"count"`
	Versions  []string `json:"versions"`
	TotalSize int64    `json:"totalSize"`
}

// ProjectStats 项目统计.
type ProjectStats struct {
	TotalFiles   int64    `json:"totalFiles"`
	TotalSize    int64    `json:"totalSize"`
	Versions     []string `json:"versions"`
	ExpiredCount int64    `json:"expiredCount"`
	ExpiringSoon int64    `json:"expiringSoonCount"`
}

// Option 存储选项.
type Option func(*options)

type options struct {
	now    func() time.Time
	expiry time.Duration
}

// WithClock 注入时钟.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithDefaultExpiry 新文件的保留时长.
func WithDefaultExpiry(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.expiry = d
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now, expiry: DefaultExpiry}
	for _, opt := range opts {
		opt(&o)
	}

	return o
}

// stamp 统一存储时间精度：UTC 且截断到微秒.
func stamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// summarize 按版本聚合，结果按最近上传倒序；ExpiresAt 取组内最早的过期时间.
func summarize(rows []*model.SourceMap) []VersionSummary {
	idx := make(map[string]int)
	out := make([]VersionSummary, 0)

	for _, r := range rows {
		i, ok := idx[r.Version]
		if !ok {
			i = len(out)
			idx[r.Version] = i
			out = append(out, VersionSummary{Version: r.Version, UploadedAt: r.UploadedAt})
		}

		s := &out[i]
		s.FileCount++
		s.TotalSize += r.Size

		if r.UploadedAt.After(s.UploadedAt) {
			s.UploadedAt = r.UploadedAt
		}

		if r.ExpiresAt != nil && (s.ExpiresAt == nil || r.ExpiresAt.Before(*s.ExpiresAt)) {
			e := *r.ExpiresAt
			s.ExpiresAt = &e
		}
	}

	sort.SliceStable(out, func(a, b int) bool {
		if out[a].UploadedAt.Equal(out[b].UploadedAt) {
			return out[a].Version < out[b].Version
		}

		return out[a].UploadedAt.After(out[b].UploadedAt)
	})

	return out
}

// expiredResult 由待删除的行计算清理结果，版本按字典序.
func expiredResult(rows []*model.SourceMap) ExpiredResult {
	res := ExpiredResult{Versions: []string{}}
	seen := make(map[string]struct{})

	for _, r := range rows {
		res.Count++
		res.TotalSize += r.Size

		if _, ok := seen[r.Version]; !ok {
			seen[r.Version] = struct{}{}
			res.Versions = append(res.Versions, r.Version)
		}
	}

	sort.Strings(res.Versions)

	return res
}
