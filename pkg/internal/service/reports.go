package service

import (
	"context"
	"fmt"
	"time"

	"github.com/yeisme/sourcelens/pkg/cache"
	appctx "github.com/yeisme/sourcelens/pkg/context"
	"github.com/yeisme/sourcelens/pkg/internal/model"
	"github.com/yeisme/sourcelens/pkg/internal/sourcemap"
	"github.com/yeisme/sourcelens/pkg/internal/store"
	"github.com/yeisme/sourcelens/pkg/internal/types"
	"github.com/yeisme/sourcelens/pkg/queue"
	"github.com/yeisme/sourcelens/pkg/tracing"
)

// ReportService 错误上报：还原堆栈并保存.
type ReportService struct {
	store       store.Store
	reports     store.ReportStore
	resolver    sourcemap.PositionResolver
	mapper      *sourcemap.Mapper
	positions   *cache.Cache
	positionTTL time.Duration
	parallel    int
	fetcher     *sourcemap.RemoteFetcher
	events      *EventPublisher
	now         func() time.Time
}

func newReportService(d Deps) *ReportService {
	return &ReportService{
		store:       d.Store,
		reports:     d.Reports,
		resolver:    d.Resolver,
		mapper:      d.Mapper,
		positions:   d.Positions,
		positionTTL: d.Config.PositionCacheTTL,
		parallel:    d.Config.ParallelFrames,
		fetcher:     d.Fetcher,
		events:      d.Events,
		now:         d.Now,
	}
}

func inlineArtifacts(files []types.SourceMapFile) []sourcemap.Artifact {
	out := make([]sourcemap.Artifact, 0, len(files))
	for _, f := range files {
		out = append(out, sourcemap.Artifact{Version: f.Version, Filename: f.Filename, Content: f.Content})
	}

	return out
}

// candidates 内联 SourceMap 优先，其次是存储中该版本的文件，最后尝试远程拉取.
func (s *ReportService) candidates(ctx context.Context, projectID string, e types.ErrorInfo, inline []sourcemap.Artifact) ([]sourcemap.Artifact, error) {
	if len(inline) > 0 {
		return inline, nil
	}

	rows, err := s.store.FindByProjectAndVersion(ctx, projectID, e.Version)
	if err != nil {
		return nil, fmt.Errorf("load source maps for %s/%s: %w", projectID, e.Version, err)
	}

	if len(rows) > 0 {
		return sourcemap.FromModel(rows), nil
	}

	return s.remoteCandidates(ctx, e.Stack), nil
}

// Process 还原每条错误的堆栈，结果保存失败只记录日志.
// 读取存储失败时返回错误，调用方可改为保存原始数据.
func (s *ReportService) Process(ctx context.Context, req *types.ErrorReportRequest) (*types.ErrorReportResponse, error) {
	ctx, span := tracing.StartSpan(appctx.WithProjectID(ctx, req.ProjectID), "report.Process")
	defer span.End()

	l := componentLogger(ctx, "reports")

	s.events.ReportReceived(ctx, queue.ReportReceivedPayload{
		ProjectID:  req.ProjectID,
		ErrorCount: len(req.Errors),
		InlineMaps: len(req.SourceMaps),
	})

	inline := inlineArtifacts(req.SourceMaps)
	mapper := s.mapperFor(req.ProjectID)
	res := &types.ErrorReportResponse{Success: true, Errors: make([]types.MappedError, 0, len(req.Errors))}

	for _, e := range req.Errors {
		me := types.MappedError{ErrorInfo: e}

		if e.Stack != "" {
			cands, err := s.candidates(ctx, req.ProjectID, e, inline)
			if err != nil {
				return nil, err
			}

			stack := e.Stack
			if len(cands) > 0 {
				stack = mapper.MapStack(ctx, e.Stack, e.Version, cands)
			}

			info := sourcemap.ExtractMappedInfo(stack)
			me.MappedStack = &info.MappedStack
			me.SourceFile = info.SourceFile
			me.SourceLine = info.SourceLine
			me.SourceColumn = info.SourceColumn

			if stack != e.Stack {
				res.Mapped++
			}
		}

		res.Errors = append(res.Errors, me)
	}

	rows := s.toModels(req.ProjectID, res.Errors)
	for i := range rows {
		res.Errors[i].ID = rows[i].ID
	}

	if err := s.reports.SaveReports(ctx, rows); err != nil {
		l.Error().Err(err).Str("project", req.ProjectID).Int("errors", len(rows)).Msg("save mapped errors failed")
	}

	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ID)
	}

	s.events.ReportMapped(ctx, queue.ReportMappedPayload{
		ProjectID:  req.ProjectID,
		ReportIDs:  ids,
		ErrorCount: len(rows),
		Mapped:     res.Mapped,
	})

	l.Debug().Str("project", req.ProjectID).Int("errors", len(rows)).Int("mapped", res.Mapped).Msg("report processed")

	return res, nil
}

// SaveRaw 保存未经映射的原始错误.
func (s *ReportService) SaveRaw(ctx context.Context, req *types.ErrorReportRequest) ([]types.MappedError, error) {
	out := make([]types.MappedError, 0, len(req.Errors))
	for _, e := range req.Errors {
		out = append(out, types.MappedError{ErrorInfo: e})
	}

	rows := s.toModels(req.ProjectID, out)
	for i := range rows {
		out[i].ID = rows[i].ID
	}

	if err := s.reports.SaveReports(ctx, rows); err != nil {
		return nil, err
	}

	return out, nil
}

func (s *ReportService) toModels(projectID string, errs []types.MappedError) []*model.ErrorReport {
	now := s.now().UTC()
	rows := make([]*model.ErrorReport, 0, len(errs))

	for _, e := range errs {
		at := now
		if e.Timestamp != nil && !e.Timestamp.IsZero() {
			at = e.Timestamp.UTC()
		}

		rows = append(rows, &model.ErrorReport{
			ID:           model.NewULID(now),
			ProjectID:    projectID,
			Message:      e.Message,
			Type:         e.Type,
			Stack:        e.Stack,
			Version:      e.Version,
			URL:          e.URL,
			UserAgent:    e.UserAgent,
			MappedStack:  e.MappedStack,
			SourceFile:   e.SourceFile,
			SourceLine:   e.SourceLine,
			SourceColumn: e.SourceColumn,
			OccurredAt:   at,
			CreatedAt:    now,
		})
	}

	return rows
}

// List 分页读取项目的上报.
func (s *ReportService) List(ctx context.Context, projectID string, page, pageSize int) (*types.ListReportsResponse, error) {
	if page < 1 {
		page = 1
	}

	if pageSize < 1 {
		pageSize = store.DefaultPageSize
	}

	pageSize = min(pageSize, store.MaxPageSize)

	rows, total, err := s.reports.ListReports(ctx, projectID, page, pageSize)
	if err != nil {
		return nil, err
	}

	return &types.ListReportsResponse{Reports: rows, Pagination: types.NewPagination(page, pageSize, total)}, nil
}

// Resolve 用项目中已存储的 SourceMap 还原一段堆栈.
func (s *ReportService) Resolve(ctx context.Context, req *types.ResolveRequest) (*types.ResolveResponse, error) {
	rows, err := s.store.FindByProjectAndVersion(ctx, req.ProjectID, req.Version)
	if err != nil {
		return nil, err
	}

	if len(rows) == 0 {
		return &types.ResolveResponse{MappedStack: req.Stack}, nil
	}

	mapped := s.mapperFor(req.ProjectID).MapStack(ctx, req.Stack, req.Version, sourcemap.FromModel(rows))

	return &types.ResolveResponse{MappedStack: mapped}, nil
}
