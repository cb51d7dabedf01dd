// Package app 提供应用程序的初始化、运行与优雅退出.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/yeisme/sourcelens/pkg/api"
	appcache "github.com/yeisme/sourcelens/pkg/cache"
	"github.com/yeisme/sourcelens/pkg/configs"
	appctx "github.com/yeisme/sourcelens/pkg/context"
	"github.com/yeisme/sourcelens/pkg/internal/jobs"
	"github.com/yeisme/sourcelens/pkg/internal/model"
	"github.com/yeisme/sourcelens/pkg/internal/router"
	"github.com/yeisme/sourcelens/pkg/internal/service"
	"github.com/yeisme/sourcelens/pkg/internal/storage"
	"github.com/yeisme/sourcelens/pkg/internal/store"
	"github.com/yeisme/sourcelens/pkg/log"
	"github.com/yeisme/sourcelens/pkg/metrics"
	"github.com/yeisme/sourcelens/pkg/middleware"
	"github.com/yeisme/sourcelens/pkg/scheduler"
	"github.com/yeisme/sourcelens/pkg/tracing"
)

// ResponseCachePrefix 响应缓存在 KV 中的键前缀.
const ResponseCachePrefix = "sl:rc:"

// App 持有 HTTP 引擎与运行期资源.
type App struct {
	Engine   *gin.Engine
	Services *service.Services

	config  *configs.AppConfig
	manager *storage.Manager
	sched   *scheduler.Scheduler
}

// NewApp 加载配置并初始化存储、服务、定时任务与路由.
func NewApp(configPath string) (*App, error) {
	ctx := context.Background()

	// 初始化配置
	if err := configs.InitConfig(configPath); err != nil {
		return nil, fmt.Errorf("init config: %w", err)
	}

	config := configs.GetConfig()
	log.Init()

	// 初始化追踪
	if err := tracing.InitTracer(ctx, config.Tracing); err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	// 初始化监控
	if err := metrics.Init(config.Metrics); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	manager, err := storage.Init(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	ctx = appctx.WithStorageManager(ctx, manager)

	st, reports, err := OpenStores(ctx, config, manager, config.DB.AutoMigrate)
	if err != nil {
		_ = manager.Close()
		return nil, err
	}

	svc := service.New(service.NewDeps(ctx, config, st, reports))

	sched, err := scheduler.NewScheduler()
	if err != nil {
		_ = manager.Close()
		return nil, fmt.Errorf("init scheduler: %w", err)
	}

	if err := jobs.RegisterCronJobs(sched, svc, config.SourceMap.Cleanup); err != nil {
		_ = manager.Close()
		return nil, fmt.Errorf("register jobs: %w", err)
	}

	a := &App{Services: svc, config: config, manager: manager, sched: sched}
	a.Engine = a.newEngine()

	return a, nil
}

// OpenStores 按 sourcemap.store 选择存储实现，数据库模式下 migrate 为 true 时建表.
func OpenStores(ctx context.Context, cfg *configs.AppConfig, manager *storage.Manager, migrate bool) (store.Store, store.ReportStore, error) {
	expiry := store.WithDefaultExpiry(cfg.SourceMap.ExpiryDuration())

	if cfg.SourceMap.Store == "memory" {
		return store.NewMemoryStore(expiry), store.NewMemoryReportStore(), nil
	}

	dbc := manager.GetDBClient()
	if dbc == nil {
		return nil, nil, errors.New("sourcemap.store is db but database is not initialized")
	}

	if migrate {
		if err := dbc.Migrate(ctx, model.Models()...); err != nil {
			return nil, nil, err
		}
	}

	return store.NewGormStore(dbc.GetDB(), expiry), store.NewGormReportStore(dbc.GetDB()), nil
}

func (a *App) newEngine() *gin.Engine {
	cfg := a.config

	l := log.Logger()
	gin.DefaultWriter = log.NewGinWriter(l, zerolog.InfoLevel)
	gin.DefaultErrorWriter = log.NewGinWriter(l, zerolog.ErrorLevel)

	engine := gin.New()
	engine.Use(
		gin.Recovery(),
		middleware.RequestIDMiddleware(),
		middleware.GinLoggerMiddleware(cfg.Metrics.Path, "/api/v1/health"),
		middleware.CORSMiddleware(cfg.Server),
		middleware.TracingMiddleware(cfg.Tracing),
		middleware.PrometheusMiddleware(),
		middleware.BodyLimitMiddleware(cfg.Server.MaxBodyBytes),
	)

	if cfg.Server.Gzip {
		engine.Use(gzip.Gzip(gzip.DefaultCompression))
	}

	// 认证关闭时默认 admin，可用 X-Role 降级；开启后免认证路径使用 auth.default_role
	role := middleware.RoleAdmin
	if cfg.Auth.Enabled {
		role = middleware.ParseRole(cfg.Auth.DefaultRole)
	}

	engine.Use(
		middleware.RateLimitMiddleware(cfg.RateLimit),
		middleware.CircuitBreakerMiddleware(cfg.CircuitBreaker),
		middleware.AuthMiddleware(cfg.Auth),
		middleware.RoleMiddleware(role, !cfg.Auth.Enabled),
		middleware.StorageMiddleware(a.manager),
		middleware.SchedulerMiddleware(a.sched),
	)

	opts := router.Options{Swagger: cfg.Server.Debug, Host: cfg.Server.Addr()}
	if kvc := a.manager.GetKVClient(); kvc != nil {
		opts.ResponseCache = appcache.NewCache(kvc, appcache.WithPrefix(ResponseCachePrefix))
	}

	api.RegisterGroup(engine, a.Services, opts)

	if cfg.Metrics.Enabled {
		metrics.Mount(cfg.Metrics, engine)
	}

	return engine
}

// Run 启动调度器与 HTTP 服务，收到 SIGINT/SIGTERM 后优雅退出.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sc := a.config.Server
	srv := &http.Server{
		Addr:              sc.Addr(),
		Handler:           a.Engine,
		ReadHeaderTimeout: sc.ReadHeaderTimeout,
		ReadTimeout:       sc.ReadTimeout,
		WriteTimeout:      sc.WriteTimeout,
		IdleTimeout:       sc.IdleTimeout,
	}

	a.sched.Start()

	errCh := make(chan error, 1)

	go func() {
		log.Logger().Info().Str("addr", srv.Addr).Msg("http server listening")

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}

		close(errCh)
	}()

	var runErr error

	select {
	case runErr = <-errCh:
	case <-ctx.Done():
		log.Logger().Info().Msg("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), sc.ShutdownTimeout)
	defer cancel()

	return errors.Join(runErr, srv.Shutdown(shutdownCtx), a.Close(shutdownCtx))
}

// Close 停止定时任务并释放存储与追踪资源.
func (a *App) Close(ctx context.Context) error {
	return errors.Join(a.sched.Shutdown(), tracing.ShutdownTracer(ctx), a.manager.Close())
}
