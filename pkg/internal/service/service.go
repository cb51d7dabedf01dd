// Package service 实现 SourceMap 上传与查询、版本生命周期、错误上报映射等业务逻辑.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/yeisme/sourcelens/pkg/cache"
	"github.com/yeisme/sourcelens/pkg/configs"
	appctx "github.com/yeisme/sourcelens/pkg/context"
	"github.com/yeisme/sourcelens/pkg/internal/sourcemap"
	"github.com/yeisme/sourcelens/pkg/internal/store"
	"github.com/yeisme/sourcelens/pkg/log"
	"github.com/yeisme/sourcelens/pkg/middleware"
)

// 业务错误，HTTP 层据此映射状态码.
var (
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrInvalidArgument = errors.New("invalid argument")
)

// PositionCachePrefix 位置解析结果在 KV 中的键前缀.
const PositionCachePrefix = "sl:pos:"

// Deps 服务依赖，可选项为 nil 时对应功能关闭.
type Deps struct {
	Store    store.Store
	Reports  store.ReportStore
	Resolver *sourcemap.Resolver
	Mapper   *sourcemap.Mapper
	Config   configs.SourceMapConfig

	Positions *cache.Cache             // 可选：位置解析结果缓存
	Fetcher   *sourcemap.RemoteFetcher // 可选：远程拉取
	Events    *EventPublisher          // 可选：领域事件
	Archive   *Archiver                // 可选：对象存储归档
	Now       func() time.Time
}

// Services 聚合全部业务服务.
type Services struct {
	SourceMaps *SourceMapService
	Versions   *VersionService
	Reports    *ReportService
	Resolver   *sourcemap.Resolver
}

// New 按依赖创建服务.
func New(d Deps) *Services {
	if d.Now == nil {
		d.Now = time.Now
	}

	if d.Resolver == nil {
		d.Resolver = sourcemap.NewResolver(nil)
	}

	if d.Mapper == nil {
		d.Mapper = sourcemap.NewMapper(d.Resolver, d.Config.ParallelFrames)
	}

	if d.Reports == nil {
		d.Reports = store.NewMemoryReportStore()
	}

	return &Services{
		SourceMaps: newSourceMapService(d),
		Versions:   newVersionService(d),
		Reports:    newReportService(d),
		Resolver:   d.Resolver,
	}
}

// NewDeps 按配置组装依赖，KV、MQ、S3 客户端从 ctx 中的存储管理器获取.
func NewDeps(ctx context.Context, cfg *configs.AppConfig, st store.Store, reports store.ReportStore) Deps {
	smCfg := cfg.SourceMap

	resolver := sourcemap.NewResolver(
		sourcemap.NewDecodeCache(smCfg.DecodeCache.Size, smCfg.DecodeCache.TTL),
		sourcemap.WithBias(sourcemap.ParseBias(smCfg.Bias)),
		sourcemap.WithLogger(log.Component("resolver")),
	)

	d := Deps{
		Store:    st,
		Reports:  reports,
		Resolver: resolver,
		Mapper:   sourcemap.NewMapper(resolver, smCfg.ParallelFrames),
		Config:   smCfg,
	}

	if kvc := appctx.GetKVClient(ctx); kvc != nil {
		d.Positions = cache.NewCache(kvc, cache.WithPrefix(PositionCachePrefix))
	}

	if mqc := appctx.GetMQClient(ctx); mqc != nil && cfg.Events.Enabled {
		d.Events = NewEventPublisher(mqc, cfg.Events)
	}

	if s3c := appctx.GetS3Client(ctx); s3c != nil && smCfg.Archive.Enabled {
		d.Archive = NewArchiver(s3c, smCfg.Archive.Prefix)
	}

	if smCfg.RemoteFetch.Enabled {
		var breaker *gobreaker.CircuitBreaker
		if cfg.CircuitBreaker.RemoteFetch {
			breaker = middleware.NewBreaker(configs.AppName+"-fetch", cfg.CircuitBreaker)
		}

		d.Fetcher = sourcemap.NewRemoteFetcher(smCfg.RemoteFetch.Timeout, smCfg.RemoteFetch.MaxBytes, breaker)
	}

	return d
}

func componentLogger(ctx context.Context, name string) zerolog.Logger {
	return appctx.WithTraceContext(ctx, log.Component(name))
}
