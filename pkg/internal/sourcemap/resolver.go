package sourcemap

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/yeisme/sourcelens/pkg/metrics"
)

// PositionResolver 把一帧解析为源码位置，找不到时返回 nil.
type PositionResolver interface {
	Resolve(ctx context.Context, frame Frame, version string, candidates []Artifact) *Position
}

// Resolver 默认的 PositionResolver，解码结果由 DecodeCache 复用.
type Resolver struct {
	cache  *DecodeCache
	bias   Bias
	logger zerolog.Logger
}

var _ PositionResolver = (*Resolver)(nil)

// ResolverOption Resolver 选项.
type ResolverOption func(*Resolver)

// WithBias 设置查找偏向.
func WithBias(b Bias) ResolverOption {
	return func(r *Resolver) { r.bias = b }
}

// WithLogger 设置日志.
func WithLogger(l zerolog.Logger) ResolverOption {
	return func(r *Resolver) { r.logger = l }
}

// NewResolver 创建 Resolver，cache 为 nil 时使用默认大小的缓存.
func NewResolver(cache *DecodeCache, opts ...ResolverOption) *Resolver {
	if cache == nil {
		cache = NewDecodeCache(0, 0)
	}

	r := &Resolver{cache: cache, bias: LeastUpperBound, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Cache 返回解码缓存.
func (r *Resolver) Cache() *DecodeCache {
	return r.cache
}

// Resolve 在 candidates 中挑选 SourceMap 并查找 frame 的原始位置.
// 任何失败都返回 nil，不会向调用方传播错误或 panic.
// 映射结果行号为 0 时沿用帧行号，列号为 0 时沿用帧列号.
func (r *Resolver) Resolve(ctx context.Context, frame Frame, version string, candidates []Artifact) (pos *Position) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error().Interface("panic", rec).Str("file", frame.File).Msg("resolve panicked")
			metrics.ResolveTotal.WithLabelValues(metrics.ResultBadMap).Inc()

			pos = nil
		}
	}()

	art := FindBestMatch(candidates, frame.File, version)
	if art == nil {
		metrics.ResolveTotal.WithLabelValues(metrics.ResultNoMap).Inc()
		return nil
	}

	if ctx.Err() != nil {
		return nil
	}

	h, err := r.cache.Acquire(art.CacheKey(), func() (*Consumer, error) {
		return Decode(art.Content)
	})
	if err != nil {
		r.logger.Debug().Err(err).Str("filename", art.Filename).Msg("decode source map failed")
		metrics.ResolveTotal.WithLabelValues(metrics.ResultBadMap).Inc()

		return nil
	}
	defer h.Release()

	found, ok := h.Consumer().OriginalPositionFor(frame.Line, frame.Column, r.bias)
	if !ok {
		metrics.ResolveTotal.WithLabelValues(metrics.ResultNoMatch).Inc()
		return nil
	}

	if found.Line == 0 {
		found.Line = frame.Line
	}

	if found.Column == 0 {
		found.Column = frame.Column
	}

	metrics.ResolveTotal.WithLabelValues(metrics.ResultMapped).Inc()

	return &found
}
