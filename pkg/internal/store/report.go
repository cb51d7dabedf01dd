package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"gorm.io/gorm"

	"github.com/yeisme/sourcelens/pkg/internal/model"
)

// ReportStore 错误上报持久化.
type ReportStore interface {
	SaveReports(ctx context.Context, reports []*model.ErrorReport) error
	// ListReports 按发生时间倒序分页，page 从 1 开始.
	ListReports(ctx context.Context, projectID string, page, pageSize int) ([]*model.ErrorReport, int64, error)
}

func pageBounds(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}

	if pageSize < 1 {
		pageSize = DefaultPageSize
	}

	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}

	return page, pageSize
}

// MemoryReportStore 内存实现.
type MemoryReportStore struct {
	mu      sync.RWMutex
	reports []*model.ErrorReport
}

var _ ReportStore = (*MemoryReportStore)(nil)

// NewMemoryReportStore 创建内存上报存储.
func NewMemoryReportStore() *MemoryReportStore {
	return &MemoryReportStore{}
}

// SaveReports 实现 ReportStore.
func (m *MemoryReportStore) SaveReports(_ context.Context, reports []*model.ErrorReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range reports {
		c := *r
		m.reports = append(m.reports, &c)
	}

	return nil
}

// ListReports 实现 ReportStore.
func (m *MemoryReportStore) ListReports(_ context.Context, projectID string, page, pageSize int) ([]*model.ErrorReport, int64, error) {
	page, pageSize = pageBounds(page, pageSize)

	m.mu.RLock()
	defer m.mu.RUnlock()

	var rows []*model.ErrorReport

	for _, r := range m.reports {
		if r.ProjectID == projectID {
			c := *r
			rows = append(rows, &c)
		}
	}

	sort.SliceStable(rows, func(a, b int) bool {
		if rows[a].OccurredAt.Equal(rows[b].OccurredAt) {
			return rows[a].ID > rows[b].ID
		}

		return rows[a].OccurredAt.After(rows[b].OccurredAt)
	})

	total := int64(len(rows))
	start := min((page-1)*pageSize, len(rows))
	end := min(start+pageSize, len(rows))

	return rows[start:end], total, nil
}

// GormReportStore 基于 gorm 的实现.
type GormReportStore struct {
	db *gorm.DB
}

var _ ReportStore = (*GormReportStore)(nil)

// NewGormReportStore 创建 gorm 上报存储.
func NewGormReportStore(db *gorm.DB) *GormReportStore {
	return &GormReportStore{db: db}
}

// Migrate 自动迁移 error_reports 表.
func (g *GormReportStore) Migrate(ctx context.Context) error {
	return g.db.WithContext(ctx).AutoMigrate(&model.ErrorReport{})
}

// SaveReports 实现 ReportStore.
func (g *GormReportStore) SaveReports(ctx context.Context, reports []*model.ErrorReport) error {
	if len(reports) == 0 {
		return nil
	}

	if err := g.db.WithContext(ctx).Create(&reports).Error; err != nil {
		return fmt.Errorf("save %d error reports: %w", len(reports), err)
	}

	return nil
}

// ListReports 实现 ReportStore.
func (g *GormReportStore) ListReports(ctx context.Context, projectID string, page, pageSize int) ([]*model.ErrorReport, int64, error) {
	page, pageSize = pageBounds(page, pageSize)
	tx := g.db.WithContext(ctx).Model(&model.ErrorReport{}).Where("project_id = ?", projectID)

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count error reports: %w", err)
	}

	var rows []*model.ErrorReport

	err := tx.Order("occurred_at DESC, id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&rows).Error
	if err != nil {
		return nil, 0, fmt.Errorf("list error reports: %w", err)
	}

	return rows, total, nil
}
