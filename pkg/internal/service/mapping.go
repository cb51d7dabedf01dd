package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/yeisme/sourcelens/pkg/cache"
	"github.com/yeisme/sourcelens/pkg/configs"
	"github.com/yeisme/sourcelens/pkg/internal/sourcemap"
	"github.com/yeisme/sourcelens/pkg/log"
	"github.com/yeisme/sourcelens/pkg/metrics"
)

// cachedResolver 先查 KV 中的位置缓存，未命中再解析并写回.
// 只缓存成功的结果，键包含项目以免跨项目串用.
type cachedResolver struct {
	inner     sourcemap.PositionResolver
	positions *cache.Cache
	projectID string
	ttl       time.Duration
}

var _ sourcemap.PositionResolver = (*cachedResolver)(nil)

func positionKey(projectID string, f sourcemap.Frame, version string) string {
	return fmt.Sprintf("%s:%s:%d:%d:%s", projectID, f.File, f.Line, f.Column, version)
}

func (r *cachedResolver) Resolve(ctx context.Context, frame sourcemap.Frame, version string, candidates []sourcemap.Artifact) *sourcemap.Position {
	key := positionKey(r.projectID, frame, version)

	pos, err := cache.Get[sourcemap.Position](ctx, r.positions, key)
	if err == nil {
		metrics.ResolveTotal.WithLabelValues(metrics.ResultCacheHit).Inc()
		return &pos
	}

	if !errors.Is(err, cache.ErrMiss) {
		l := log.Component("mapping")
		l.Debug().Err(err).Str("key", key).Msg("position cache read failed")
	}

	found := r.inner.Resolve(ctx, frame, version, candidates)
	if found == nil {
		return nil
	}

	if err := cache.Set(ctx, r.positions, key, *found, r.ttl); err != nil {
		l := log.Component("mapping")
		l.Debug().Err(err).Str("key", key).Msg("position cache write failed")
	}

	return found
}

// mapperFor 返回项目专用的 Mapper，配置了位置缓存时包一层缓存.
func (s *ReportService) mapperFor(projectID string) *sourcemap.Mapper {
	if s.positions == nil {
		return s.mapper
	}

	ttl := s.positionTTL
	if ttl <= 0 {
		ttl = configs.DefaultPositionCacheTTL
	}

	return sourcemap.NewMapper(&cachedResolver{
		inner:     s.resolver,
		positions: s.positions,
		projectID: projectID,
		ttl:       ttl,
	}, s.parallel)
}

// remoteCandidates 按堆栈第一帧的文件地址拉取 SourceMap，只处理 http(s) 地址.
func (s *ReportService) remoteCandidates(ctx context.Context, stack string) []sourcemap.Artifact {
	if s.fetcher == nil {
		return nil
	}

	frames := sourcemap.ParseStack(stack)
	if len(frames) == 0 {
		return nil
	}

	u, err := url.Parse(frames[0].File)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil
	}

	art, err := s.fetcher.Fetch(ctx, frames[0].File)
	if err != nil {
		l := componentLogger(ctx, "mapping")
		l.Debug().Err(err).Str("file", frames[0].File).Msg("remote source map unavailable")
		return nil
	}

	return []sourcemap.Artifact{*art}
}
