package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/yeisme/sourcelens/pkg/internal/model"
	"github.com/yeisme/sourcelens/pkg/internal/store"
	"github.com/yeisme/sourcelens/pkg/internal/types"
	"github.com/yeisme/sourcelens/pkg/queue"
	"github.com/yeisme/sourcelens/pkg/tracing"
)

const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 500

	supersededExpiry = 7 * 24 * time.Hour
	suggestWindow    = 24 * time.Hour
	lockStripes      = 64
)

// stripedLock 按 (project, version) 哈希分片的互斥锁.
type stripedLock struct {
	stripes [lockStripes]sync.Mutex
}

func (l *stripedLock) lock(projectID, version string) func() {
	m := &l.stripes[xxhash.Sum64String(projectID+"\x00"+version)%lockStripes]
	m.Lock()

	return m.Unlock
}

// VersionService 版本生命周期：创建、回滚、对比、建议与清理.
// 同一 (project, version) 上的创建串行执行，唯一索引是最终保障.
type VersionService struct {
	store      store.Store
	events     *EventPublisher
	archive    *Archiver
	now        func() time.Time
	expiry     time.Duration
	superseded time.Duration
	locks      stripedLock
}

func newVersionService(d Deps) *VersionService {
	s := &VersionService{
		store:      d.Store,
		events:     d.Events,
		archive:    d.Archive,
		now:        d.Now,
		expiry:     store.DefaultExpiry,
		superseded: supersededExpiry,
	}

	if d.Config.DefaultExpiryDays > 0 {
		s.expiry = d.Config.ExpiryDuration()
	}

	if d.Config.SupersededExpiryDays > 0 {
		s.superseded = d.Config.SupersededDuration()
	}

	return s
}

// BumpPatch 递增补丁号："1.2.3"→"1.2.4"，"1.2"→"1.2.1"，"5"→"5.0.1"，""→"1.0.0".
// 第三段不是数字时按 0 处理，超过三段的部分被丢弃.
func BumpPatch(v string) string {
	if v == "" {
		return "1.0.0"
	}

	parts := strings.Split(v, ".")
	if len(parts) == 1 {
		return parts[0] + ".0.1"
	}

	patch := 0
	if len(parts) > 2 {
		patch = leadingInt(parts[2])
	}

	return fmt.Sprintf("%s.%s.%d", parts[0], parts[1], patch+1)
}

// leadingInt 解析开头的十进制数字，没有数字时为 0.
func leadingInt(s string) int {
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}

	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0
	}

	return n
}

func totalSize(rows []*model.SourceMap) int64 {
	var n int64
	for _, r := range rows {
		n += r.Size
	}

	return n
}

// CreateVersion 创建版本，版本已存在时返回 ErrConflict.
// 指定 parentVersion 时，同项目中其它谱系的文件保留期缩短为 7 天.
func (s *VersionService) CreateVersion(ctx context.Context, projectID, version string, files []types.VersionFile, parentVersion string) (*types.CreateVersionResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "version.Create")
	defer span.End()

	if len(files) == 0 {
		return nil, fmt.Errorf("%w: at least one SourceMap file is required", ErrInvalidArgument)
	}

	if projectID == "" || version == "" {
		return nil, fmt.Errorf("%w: projectId and version are required", ErrInvalidArgument)
	}

	unlock := s.locks.lock(projectID, version)
	defer unlock()

	n, err := s.store.CountVersion(ctx, projectID, version)
	if err != nil {
		return nil, err
	}

	if n > 0 {
		return nil, fmt.Errorf("%w: version %s already exists", ErrConflict, version)
	}

	now := s.now().UTC()
	expires := now.Add(s.expiry)

	var parent *string
	if parentVersion != "" {
		parent = &parentVersion
	}

	rows := make([]*model.SourceMap, 0, len(files))
	for _, f := range files {
		rows = append(rows, &model.SourceMap{
			ProjectID:     projectID,
			Version:       version,
			Filename:      f.Filename,
			Content:       f.Content,
			ParentVersion: parent,
			UploadedAt:    now,
			ExpiresAt:     &expires,
		})
	}

	if err := s.store.Insert(ctx, rows); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, fmt.Errorf("%w: %w", ErrConflict, err)
		}

		return nil, tracing.Fail(span, err)
	}

	l := componentLogger(ctx, "versions")

	if parentVersion != "" {
		extended, err := s.store.ExtendExpiry(ctx, projectID, version, parentVersion, now.Add(s.superseded))
		if err != nil {
			return nil, fmt.Errorf("shorten superseded expiry: %w", err)
		}

		l.Debug().Str("project", projectID).Str("parent", parentVersion).Int64("rows", extended).Msg("superseded expiry updated")
	}

	if err := s.archive.Archive(ctx, rows); err != nil {
		l.Warn().Err(err).Str("project", projectID).Str("version", version).Msg("archive version failed")
	}

	size := totalSize(rows)

	s.events.VersionCreated(ctx, queue.VersionCreatedPayload{
		ProjectID:     projectID,
		Version:       version,
		ParentVersion: parentVersion,
		FileCount:     len(rows),
		TotalSize:     size,
	})

	l.Info().Str("project", projectID).Str("version", version).Int("files", len(rows)).Msg("version created")

	return &types.CreateVersionResponse{
		Version:       version,
		FileCount:     len(rows),
		TotalSize:     size,
		ParentVersion: parentVersion,
		ExpiresAt:     rows[0].ExpiresAt,
	}, nil
}

// RollbackToVersion 把 target 的文件复制为 newVersion，newVersion 的来源版本记为 target.
func (s *VersionService) RollbackToVersion(ctx context.Context, projectID, target, newVersion string) (*types.CreateVersionResponse, error) {
	rows, err := s.store.ListVersionFiles(ctx, projectID, target)
	if err != nil {
		return nil, err
	}

	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: target version %s", ErrNotFound, target)
	}

	files := make([]types.VersionFile, 0, len(rows))
	for _, r := range rows {
		files = append(files, types.VersionFile{Filename: r.Filename, Content: r.Content})
	}

	res, err := s.CreateVersion(ctx, projectID, newVersion, files, target)
	if err != nil {
		return nil, err
	}

	s.events.VersionRolledBack(ctx, queue.VersionRolledBackPayload{
		ProjectID:     projectID,
		TargetVersion: target,
		NewVersion:    newVersion,
		FileCount:     res.FileCount,
	})

	return res, nil
}

// CompareVersions 对比两个版本的文件集合，内容不同的同名文件同时出现在 commonFiles 与 modifiedFiles.
func (s *VersionService) CompareVersions(ctx context.Context, projectID, v1, v2 string) (*types.VersionComparison, error) {
	rows1, err := s.store.ListVersionFiles(ctx, projectID, v1)
	if err != nil {
		return nil, err
	}

	rows2, err := s.store.ListVersionFiles(ctx, projectID, v2)
	if err != nil {
		return nil, err
	}

	files2 := make(map[string]*model.SourceMap, len(rows2))
	for _, r := range rows2 {
		files2[r.Filename] = r
	}

	res := &types.VersionComparison{
		Version1:      v1,
		Version2:      v2,
		CommonFiles:   []string{},
		AddedFiles:    []string{},
		RemovedFiles:  []string{},
		ModifiedFiles: []types.ModifiedFile{},
	}

	seen := make(map[string]struct{}, len(rows1))

	for _, old := range rows1 {
		seen[old.Filename] = struct{}{}

		next, ok := files2[old.Filename]
		if !ok {
			res.RemovedFiles = append(res.RemovedFiles, old.Filename)
			continue
		}

		res.CommonFiles = append(res.CommonFiles, old.Filename)

		if old.Content != next.Content {
			res.ModifiedFiles = append(res.ModifiedFiles, types.ModifiedFile{
				Filename:      old.Filename,
				SizeChange:    int64(len(next.Content)) - int64(len(old.Content)),
				UploadedAtOld: old.UploadedAt,
				UploadedAtNew: next.UploadedAt,
			})
		}
	}

	for _, r := range rows2 {
		if _, ok := seen[r.Filename]; !ok {
			res.AddedFiles = append(res.AddedFiles, r.Filename)
		}
	}

	sort.Strings(res.CommonFiles)
	sort.Strings(res.AddedFiles)
	sort.Strings(res.RemovedFiles)
	sort.Slice(res.ModifiedFiles, func(i, j int) bool { return res.ModifiedFiles[i].Filename < res.ModifiedFiles[j].Filename })

	return res, nil
}

// SuggestNewVersion 依次检查：24 小时内其它版本有上传、当前版本有重复文件名，否则保持当前版本.
func (s *VersionService) SuggestNewVersion(ctx context.Context, projectID, current string) (*types.VersionSuggestion, error) {
	rows, err := s.store.ListVersionFiles(ctx, projectID, current)
	if err != nil {
		return nil, err
	}

	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: current version %s", ErrNotFound, current)
	}

	recent, err := s.store.RecentUploads(ctx, projectID, current, s.now().UTC().Add(-suggestWindow))
	if err != nil {
		return nil, err
	}

	if len(recent) > 0 {
		return &types.VersionSuggestion{
			CurrentVersion:   current,
			SuggestedVersion: BumpPatch(current),
			Reason:           types.ReasonNewFiles,
			FileCount:        len(recent),
			SizeChange:       totalSize(recent),
		}, nil
	}

	seen := make(map[string]struct{}, len(rows))
	dups := make(map[string]struct{})

	for _, r := range rows {
		if _, ok := seen[r.Filename]; ok {
			dups[r.Filename] = struct{}{}
		}

		seen[r.Filename] = struct{}{}
	}

	if len(dups) > 0 {
		return &types.VersionSuggestion{
			CurrentVersion:   current,
			SuggestedVersion: BumpPatch(current),
			Reason:           types.ReasonUpdatedFiles,
			FileCount:        len(dups),
		}, nil
	}

	return &types.VersionSuggestion{
		CurrentVersion:   current,
		SuggestedVersion: current,
		Reason:           types.ReasonNoUpdates,
	}, nil
}

// PreviewExpiredVersions 返回 CleanupExpiredVersions 将删除的内容，不做修改.
func (s *VersionService) PreviewExpiredVersions(ctx context.Context, projectID string) (*types.VersionCleanupResult, error) {
	rows, err := s.store.ListExpired(ctx, projectID)
	if err != nil {
		return nil, err
	}

	res := &types.VersionCleanupResult{CleanedVersions: []string{}, Preview: true}
	seen := make(map[string]struct{})

	for _, r := range rows {
		res.TotalFiles++
		res.TotalSize += r.Size

		if _, ok := seen[r.Version]; !ok {
			seen[r.Version] = struct{}{}
			res.CleanedVersions = append(res.CleanedVersions, r.Version)
		}
	}

	sort.Strings(res.CleanedVersions)

	return res, nil
}

// CleanupExpiredVersions 删除项目中已过期的文件.
func (s *VersionService) CleanupExpiredVersions(ctx context.Context, projectID string) (*types.VersionCleanupResult, error) {
	res, err := s.store.DeleteExpired(ctx, projectID)
	if err != nil {
		return nil, err
	}

	s.events.SourceMapsExpired(ctx, projectID, res)

	return &types.VersionCleanupResult{
		CleanedVersions: res.Versions,
		TotalFiles:      res.Count,
		TotalSize:       res.TotalSize,
	}, nil
}

// BatchVersionCleanup 逐个删除版本，单个失败不影响其它版本.
func (s *VersionService) BatchVersionCleanup(ctx context.Context, projectID string, versions []string) *types.BatchCleanupResult {
	res := &types.BatchCleanupResult{Errors: []string{}, Details: []string{}}
	l := componentLogger(ctx, "versions")

	for _, v := range versions {
		n, err := s.store.DeleteByProjectAndVersion(ctx, projectID, v)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("Failed to cleanup version %s: %v", v, err))
			continue
		}

		if n == 0 {
			res.Details = append(res.Details, fmt.Sprintf("Version %s not found or already cleaned", v))
			continue
		}

		res.Cleaned++
		res.Details = append(res.Details, fmt.Sprintf("Deleted version %s (%d files)", v, n))

		if _, err := s.archive.RemoveVersion(ctx, projectID, v); err != nil {
			l.Warn().Err(err).Str("project", projectID).Str("version", v).Msg("remove archived version failed")
		}

		s.events.SourceMapsDeleted(ctx, queue.SourceMapDeletedPayload{ProjectID: projectID, Version: v, Count: int(n)})
	}

	return res
}

// AllVersions 按版本聚合的摘要，最近上传的在前.
func (s *VersionService) AllVersions(ctx context.Context, projectID string) ([]store.VersionSummary, error) {
	return s.store.AggregateVersionSummary(ctx, projectID)
}

// VersionHistory 最近的 limit 个版本，按首次出现顺序（最近上传优先）.
// 只读取 limit*2 行，文件很多的版本统计可能不完整.
// 行中不含内容，大小取 Size 字段.
func (s *VersionService) VersionHistory(ctx context.Context, projectID string, limit int) ([]types.VersionHistoryEntry, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	limit = min(limit, MaxHistoryLimit)

	rows, err := s.store.VersionHistory(ctx, projectID, limit*2)
	if err != nil {
		return nil, err
	}

	out := make([]types.VersionHistoryEntry, 0)
	idx := make(map[string]int)

	for _, r := range rows {
		i, ok := idx[r.Version]
		if !ok {
			if len(out) >= limit {
				break
			}

			i = len(out)
			idx[r.Version] = i
			out = append(out, types.VersionHistoryEntry{
				Version:       r.Version,
				ParentVersion: r.Parent(),
				UploadedAt:    r.UploadedAt,
			})
		}

		out[i].FileCount++
		out[i].TotalSize += r.Size
	}

	return out, nil
}

// VersionDetails 版本的文件明细，按文件名排序.
func (s *VersionService) VersionDetails(ctx context.Context, projectID, version string) (*types.VersionDetails, error) {
	rows, err := s.store.ListVersionFiles(ctx, projectID, version)
	if err != nil {
		return nil, err
	}

	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: version %s", ErrNotFound, version)
	}

	d := &types.VersionDetails{Version: version, ParentVersion: rows[0].Parent(), FileCount: len(rows), Files: rows}
	for _, r := range rows {
		d.TotalSize += r.Size
	}

	return d, nil
}
