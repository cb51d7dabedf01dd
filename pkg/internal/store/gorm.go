package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/yeisme/sourcelens/pkg/internal/model"
)

// metaColumns 不含 content 的列，用于聚合与清理.
const metaColumns = "id, project_id, version, filename, parent_version, size, uploaded_at, expires_at"

// GormStore 基于 gorm 的 Store 实现.
type GormStore struct {
	db   *gorm.DB
	opts options
}

var _ Store = (*GormStore)(nil)

// NewGormStore 创建 gorm 存储，调用方负责迁移表结构.
func NewGormStore(db *gorm.DB, opts ...Option) *GormStore {
	return &GormStore{db: db, opts: buildOptions(opts)}
}

// Migrate 自动迁移 source_maps 表.
func (g *GormStore) Migrate(ctx context.Context) error {
	return g.db.WithContext(ctx).AutoMigrate(&model.SourceMap{})
}

func (g *GormStore) now() time.Time {
	return stamp(g.opts.now())
}

func (g *GormStore) table(ctx context.Context) *gorm.DB {
	return g.db.WithContext(ctx).Model(&model.SourceMap{})
}

// isDuplicate 识别唯一索引冲突，驱动未翻译错误时按消息判断.
func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	msg := strings.ToLower(err.Error())

	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate entry") ||
		strings.Contains(msg, "duplicate key")
}

// Upsert 实现 Store.
// 并发插入同一自然键时，落败方改走更新分支.
func (g *GormStore) Upsert(ctx context.Context, in UpsertInput) (*model.SourceMap, error) {
	version := model.NormalizeVersion(in.Version)

	var (
		out *model.SourceMap
		err error
	)

	for range 2 {
		out, err = g.upsertOnce(ctx, in, version)
		if err == nil || !isDuplicate(err) {
			break
		}
	}

	if err != nil {
		return nil, fmt.Errorf("upsert %s/%s/%s: %w", in.ProjectID, version, in.Filename, err)
	}

	return out, nil
}

func (g *GormStore) upsertOnce(ctx context.Context, in UpsertInput, version string) (*model.SourceMap, error) {
	now := g.now()

	var row model.SourceMap

	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("project_id = ? AND version = ? AND filename = ?", in.ProjectID, version, in.Filename).
			Take(&row).Error

		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			exp := now.Add(g.opts.expiry)
			row = model.SourceMap{
				ProjectID:     in.ProjectID,
				Version:       version,
				Filename:      in.Filename,
				Content:       in.Content,
				ParentVersion: in.ParentVersion,
				Size:          int64(len(in.Content)),
				UploadedAt:    now,
				ExpiresAt:     &exp,
			}

			return tx.Create(&row).Error
		case err != nil:
			return err
		}

		row.Content = in.Content
		row.Size = int64(len(in.Content))
		row.UploadedAt = now

		if row.ExpiresAt == nil {
			exp := now.Add(g.opts.expiry)
			row.ExpiresAt = &exp
		}

		return tx.Model(&row).Select("content", "size", "uploaded_at", "expires_at").Updates(&row).Error
	})
	if err != nil {
		return nil, err
	}

	return &row, nil
}

// Insert 实现 Store.
func (g *GormStore) Insert(ctx context.Context, rows []*model.SourceMap) error {
	if len(rows) == 0 {
		return nil
	}

	for _, r := range rows {
		r.Version = model.NormalizeVersion(r.Version)
		r.Size = int64(len(r.Content))
		r.UploadedAt = stamp(r.UploadedAt)

		if r.ExpiresAt != nil {
			e := stamp(*r.ExpiresAt)
			r.ExpiresAt = &e
		}
	}

	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(&rows).Error
	})
	if err != nil {
		if isDuplicate(err) {
			for _, r := range rows {
				r.ID = 0
			}

			return fmt.Errorf("insert %d rows for %s/%s: %w", len(rows), rows[0].ProjectID, rows[0].Version, ErrConflict)
		}

		return fmt.Errorf("insert source maps: %w", err)
	}

	return nil
}

// FindByNaturalKey 实现 Store.
func (g *GormStore) FindByNaturalKey(ctx context.Context, projectID, version, filename string) (*model.SourceMap, error) {
	var row model.SourceMap

	err := g.db.WithContext(ctx).
		Where("project_id = ? AND version = ? AND filename = ?", projectID, model.NormalizeVersion(version), filename).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("find source map: %w", err)
	}

	return &row, nil
}

// FindByProjectAndVersion 实现 Store.
func (g *GormStore) FindByProjectAndVersion(ctx context.Context, projectID, version string) ([]*model.SourceMap, error) {
	q := g.db.WithContext(ctx).Where("project_id = ?", projectID)
	if version != "" {
		q = q.Where("version = ?", version)
	}

	var rows []*model.SourceMap
	if err := q.Order("uploaded_at DESC, id DESC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("find by project and version: %w", err)
	}

	return rows, nil
}

// ListVersionFiles 实现 Store.
func (g *GormStore) ListVersionFiles(ctx context.Context, projectID, version string) ([]*model.SourceMap, error) {
	var rows []*model.SourceMap

	err := g.db.WithContext(ctx).
		Where("project_id = ? AND version = ?", projectID, version).
		Order("filename ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list version files: %w", err)
	}

	return rows, nil
}

// Query 实现 Store.
func (g *GormStore) Query(ctx context.Context, q Query) ([]*model.SourceMap, int64, error) {
	q.Normalize()

	tx := g.table(ctx)

	if q.ProjectID != "" {
		tx = tx.Where("project_id = ?", q.ProjectID)
	}

	if q.Version != "" {
		tx = tx.Where("version = ?", q.Version)
	}

	if q.Filename != "" {
		tx = tx.Where("filename = ?", q.Filename)
	}

	if q.Search != "" {
		tx = tx.Where("filename LIKE ? ESCAPE '!'", "%"+likeEscaper.Replace(q.Search)+"%")
	}

	now := g.now()

	switch q.Status {
	case StatusExpired:
		tx = tx.Where("expires_at IS NOT NULL AND expires_at < ?", now)
	case StatusActive:
		tx = tx.Where("(expires_at IS NULL OR expires_at >= ?)", now)
	case StatusExpiringSoon:
		tx = tx.Where("expires_at >= ? AND expires_at <= ?", now, now.Add(ExpiringSoonWindow))
	}

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count source maps: %w", err)
	}

	order := fmt.Sprintf("%s %s, id %s", sortColumns[q.SortBy], strings.ToUpper(q.SortOrder), strings.ToUpper(q.SortOrder))

	var rows []*model.SourceMap
	if err := tx.Order(order).Offset(q.Offset()).Limit(q.PageSize).Find(&rows).Error; err != nil {
		return nil, 0, fmt.Errorf("query source maps: %w", err)
	}

	return rows, total, nil
}

// DistinctVersions 实现 Store.
func (g *GormStore) DistinctVersions(ctx context.Context, projectID string) ([]string, error) {
	versions := make([]string, 0)

	err := g.table(ctx).
		Where("project_id = ?", projectID).
		Distinct().
		Order("version ASC").
		Pluck("version", &versions).Error
	if err != nil {
		return nil, fmt.Errorf("distinct versions: %w", err)
	}

	return versions, nil
}

// AggregateVersionSummary 实现 Store.
// 聚合在内存中完成，避免各方言对 MAX(时间列) 的扫描差异.
func (g *GormStore) AggregateVersionSummary(ctx context.Context, projectID string) ([]VersionSummary, error) {
	var rows []*model.SourceMap

	err := g.db.WithContext(ctx).
		Select(metaColumns).
		Where("project_id = ?", projectID).
		Order("uploaded_at DESC, id DESC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("aggregate versions: %w", err)
	}

	return summarize(rows), nil
}

// CountVersion 实现 Store.
func (g *GormStore) CountVersion(ctx context.Context, projectID, version string) (int64, error) {
	var n int64
	if err := g.table(ctx).Where("project_id = ? AND version = ?", projectID, version).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count version: %w", err)
	}

	return n, nil
}

// likeEscaper 转义 LIKE 通配符；'!' 在 postgres、mysql、sqlite 的字符串字面量里都无需再转义.
var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

func (g *GormStore) expiredScope(tx *gorm.DB, projectID string, now time.Time) *gorm.DB {
	tx = tx.Where("expires_at IS NOT NULL AND expires_at < ?", now)
	if projectID != "" {
		tx = tx.Where("project_id = ?", projectID)
	}

	return tx
}

// ListExpired 实现 Store.
func (g *GormStore) ListExpired(ctx context.Context, projectID string) ([]*model.SourceMap, error) {
	var rows []*model.SourceMap

	err := g.expiredScope(g.db.WithContext(ctx), projectID, g.now()).
		Select(metaColumns).
		Order("uploaded_at DESC, id DESC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list expired: %w", err)
	}

	return rows, nil
}

// DeleteExpired 实现 Store.
func (g *GormStore) DeleteExpired(ctx context.Context, projectID string) (ExpiredResult, error) {
	now := g.now()

	var rows []*model.SourceMap

	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := g.expiredScope(tx, projectID, now).Select(metaColumns).Find(&rows).Error; err != nil {
			return err
		}

		if len(rows) == 0 {
			return nil
		}

		// 按同一条件删除，不把全部 id 展开成绑定参数
		return g.expiredScope(tx, projectID, now).Delete(&model.SourceMap{}).Error
	})
	if err != nil {
		return ExpiredResult{}, fmt.Errorf("delete expired: %w", err)
	}

	return expiredResult(rows), nil
}

// DeleteByIDs 实现 Store.
func (g *GormStore) DeleteByIDs(ctx context.Context, ids []uint) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	res := g.db.WithContext(ctx).Where("id IN ?", ids).Delete(&model.SourceMap{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete by ids: %w", res.Error)
	}

	return res.RowsAffected, nil
}

// DeleteByProjectAndVersion 实现 Store.
func (g *GormStore) DeleteByProjectAndVersion(ctx context.Context, projectID, version string) (int64, error) {
	res := g.db.WithContext(ctx).
		Where("project_id = ? AND version = ?", projectID, version).
		Delete(&model.SourceMap{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete version %s: %w", version, res.Error)
	}

	return res.RowsAffected, nil
}

// ExtendExpiry 实现 Store.
func (g *GormStore) ExtendExpiry(ctx context.Context, projectID, excludeVersion, excludeParentVersion string, newExpiry time.Time) (int64, error) {
	res := g.table(ctx).
		Where("project_id = ? AND version <> ?", projectID, excludeVersion).
		Where("(parent_version IS NULL OR parent_version <> ?)", excludeParentVersion).
		Update("expires_at", stamp(newExpiry))
	if res.Error != nil {
		return 0, fmt.Errorf("extend expiry: %w", res.Error)
	}

	return res.RowsAffected, nil
}

// RecentUploads 实现 Store.
func (g *GormStore) RecentUploads(ctx context.Context, projectID, excludeVersion string, since time.Time) ([]*model.SourceMap, error) {
	var rows []*model.SourceMap

	err := g.db.WithContext(ctx).
		Select(metaColumns).
		Where("project_id = ? AND version <> ? AND uploaded_at >= ?", projectID, excludeVersion, stamp(since)).
		Order("uploaded_at DESC, id DESC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("recent uploads: %w", err)
	}

	return rows, nil
}

// VersionHistory 实现 Store.
func (g *GormStore) VersionHistory(ctx context.Context, projectID string, limit int) ([]*model.SourceMap, error) {
	q := g.db.WithContext(ctx).
		Select(metaColumns).
		Where("project_id = ?", projectID).
		Order("uploaded_at DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var rows []*model.SourceMap
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("version history: %w", err)
	}

	return rows, nil
}

// ProjectStats 实现 Store.
func (g *GormStore) ProjectStats(ctx context.Context, projectID string) (ProjectStats, error) {
	versions, err := g.DistinctVersions(ctx, projectID)
	if err != nil {
		return ProjectStats{}, err
	}

	st := ProjectStats{Versions: versions}

	var agg struct {
		Files int64
		Size  int64
	}

	err = g.table(ctx).
		Select("COUNT(*) AS files, COALESCE(SUM(size), 0) AS size").
		Where("project_id = ?", projectID).
		Scan(&agg).Error
	if err != nil {
		return ProjectStats{}, fmt.Errorf("project totals: %w", err)
	}

	st.TotalFiles, st.TotalSize = agg.Files, agg.Size

	now := g.now()

	if err := g.table(ctx).
		Where("project_id = ? AND expires_at IS NOT NULL AND expires_at < ?", projectID, now).
		Count(&st.ExpiredCount).Error; err != nil {
		return ProjectStats{}, fmt.Errorf("count expired: %w", err)
	}

	if err := g.table(ctx).
		Where("project_id = ? AND expires_at >= ? AND expires_at <= ?", projectID, now, now.Add(ExpiringSoonWindow)).
		Count(&st.ExpiringSoon).Error; err != nil {
		return ProjectStats{}, fmt.Errorf("count expiring soon: %w", err)
	}

	return st, nil
}

// CountSince 实现 Store.
func (g *GormStore) CountSince(ctx context.Context, since time.Time) (int64, error) {
	var n int64
	if err := g.table(ctx).Where("uploaded_at >= ?", stamp(since)).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count since: %w", err)
	}

	return n, nil
}

// Ping 实现 Store.
func (g *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}

	return sqlDB.PingContext(ctx)
}
