package service

import (
	"context"
	"fmt"
	"time"

	appctx "github.com/yeisme/sourcelens/pkg/context"
	"github.com/yeisme/sourcelens/pkg/internal/model"
	"github.com/yeisme/sourcelens/pkg/internal/store"
	"github.com/yeisme/sourcelens/pkg/internal/types"
	"github.com/yeisme/sourcelens/pkg/metrics"
	"github.com/yeisme/sourcelens/pkg/queue"
	"github.com/yeisme/sourcelens/pkg/tracing"
)

const (
	healthWindow        = 5 * time.Minute
	degradedUploadCount = 10
)

// SourceMapService SourceMap 文件的上传、查询与清理.
type SourceMapService struct {
	store   store.Store
	events  *EventPublisher
	archive *Archiver
	now     func() time.Time
}

func newSourceMapService(d Deps) *SourceMapService {
	return &SourceMapService{store: d.Store, events: d.Events, archive: d.Archive, now: d.Now}
}

// Upload 逐个按自然键写入，已存在的文件被覆盖.
func (s *SourceMapService) Upload(ctx context.Context, projectID string, files []types.SourceMapFile) ([]*model.SourceMap, error) {
	ctx, span := tracing.StartSpan(appctx.WithProjectID(ctx, projectID), "sourcemap.Upload")
	defer span.End()

	if projectID == "" {
		return nil, fmt.Errorf("%w: projectId is required", ErrInvalidArgument)
	}

	if len(files) == 0 {
		return nil, fmt.Errorf("%w: at least one source map is required", ErrInvalidArgument)
	}

	l := componentLogger(ctx, "sourcemaps")
	rows := make([]*model.SourceMap, 0, len(files))

	for _, f := range files {
		row, err := s.store.Upsert(ctx, store.UpsertInput{
			ProjectID: projectID,
			Version:   f.Version,
			Filename:  f.Filename,
			Content:   f.Content,
		})
		if err != nil {
			return rows, tracing.Fail(span, fmt.Errorf("upload %s: %w", f.Filename, err))
		}

		rows = append(rows, row)
	}

	metrics.UploadsTotal.WithLabelValues(projectID).Add(float64(len(rows)))
	l.Info().Str("project", projectID).Int("count", len(rows)).Msg("source maps uploaded")

	if err := s.archive.Archive(ctx, rows); err != nil {
		l.Warn().Err(err).Str("project", projectID).Msg("archive source maps failed")
	}

	s.events.SourceMapsUploaded(ctx, projectID, rows)

	return rows, nil
}

// List 返回项目文件，version 为空时返回全部版本.
func (s *SourceMapService) List(ctx context.Context, projectID, version string) ([]*model.SourceMap, error) {
	return s.store.FindByProjectAndVersion(ctx, projectID, version)
}

// Get 按自然键读取.
func (s *SourceMapService) Get(ctx context.Context, projectID, version, filename string) (*model.SourceMap, error) {
	row, err := s.store.FindByNaturalKey(ctx, projectID, model.NormalizeVersion(version), filename)
	if err != nil {
		return nil, err
	}

	if row == nil {
		return nil, fmt.Errorf("%w: source map %s/%s/%s", ErrNotFound, projectID, version, filename)
	}

	return row, nil
}

// Search 高级查询，返回当前页与总数.
func (s *SourceMapService) Search(ctx context.Context, req *types.SearchSourceMapsRequest) (*types.SearchSourceMapsResponse, error) {
	q := req.Query()
	q.Normalize()

	rows, total, err := s.store.Query(ctx, q)
	if err != nil {
		return nil, err
	}

	return &types.SearchSourceMapsResponse{
		Files:      rows,
		Pagination: types.NewPagination(q.Page, q.PageSize, total),
	}, nil
}

// Versions 项目中出现过的版本.
func (s *SourceMapService) Versions(ctx context.Context, projectID string) ([]string, error) {
	return s.store.DistinctVersions(ctx, projectID)
}

// CleanupExpired 删除所有项目中已过期的文件.
func (s *SourceMapService) CleanupExpired(ctx context.Context) (store.ExpiredResult, error) {
	ctx, span := tracing.StartSpan(ctx, "sourcemap.CleanupExpired")
	defer span.End()

	res, err := s.store.DeleteExpired(ctx, "")
	if err != nil {
		return res, err
	}

	metrics.ExpiredDeletedTotal.Add(float64(res.Count))
	s.events.SourceMapsExpired(ctx, "", res)

	return res, nil
}

// DeleteByIDs 批量删除.
func (s *SourceMapService) DeleteByIDs(ctx context.Context, ids []uint) (int64, error) {
	if len(ids) == 0 {
		return 0, fmt.Errorf("%w: ids is empty", ErrInvalidArgument)
	}

	n, err := s.store.DeleteByIDs(ctx, ids)
	if err != nil {
		return 0, err
	}

	s.events.SourceMapsDeleted(ctx, queue.SourceMapDeletedPayload{IDs: ids, Count: int(n)})

	return n, nil
}

// Health 按最近 5 分钟上传量判断状态：0 为 unhealthy，少于 10 为 degraded.
func (s *SourceMapService) Health(ctx context.Context) types.SourceMapHealth {
	now := s.now().UTC()
	h := types.SourceMapHealth{CheckedAt: now}

	if err := s.store.Ping(ctx); err != nil {
		h.Status = types.HealthUnhealthy
		h.StoreError = err.Error()

		return h
	}

	n, err := s.store.CountSince(ctx, now.Add(-healthWindow))
	if err != nil {
		h.Status = types.HealthUnhealthy
		h.StoreError = err.Error()

		return h
	}

	h.RecentUploads = n

	switch {
	case n == 0:
		h.Status = types.HealthUnhealthy
	case n < degradedUploadCount:
		h.Status = types.HealthDegraded
	default:
		h.Status = types.HealthHealthy
	}

	return h
}

// Stats 项目统计.
func (s *SourceMapService) Stats(ctx context.Context, projectID string) (store.ProjectStats, error) {
	return s.store.ProjectStats(ctx, projectID)
}
