// Package db 打开 GORM 连接，驱动按构建标签注册（no_postgres、no_mysql、no_sqlite 可裁剪）.
package db

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	gormPrometheus "gorm.io/plugin/prometheus"

	"github.com/yeisme/sourcelens/pkg/configs"
	nlog "github.com/yeisme/sourcelens/pkg/log"
)

// metricsRefreshSeconds 连接池指标的采集间隔.
const metricsRefreshSeconds = 15

// DialectorFactory 由 DSN 创建 dialector.
type DialectorFactory func(dsn string) gorm.Dialector

var dialectors = map[configs.DBType]DialectorFactory{}

// RegisterDialectorFactory 注册驱动，t 为规范化驱动名.
func RegisterDialectorFactory(t configs.DBType, f DialectorFactory) {
	dialectors[t] = f
}

// GetRegisteredDBTypes 返回编译进来的驱动，按名称排序.
func GetRegisteredDBTypes() []configs.DBType {
	return slices.Sorted(maps.Keys(dialectors))
}

// Client 包装 GORM 连接.
type Client struct {
	*gorm.DB
	driver configs.DBType
}

// New 按配置建立连接并检查连通性，metricsEnabled 时挂上 GORM Prometheus 插件.
func New(ctx context.Context, cfg *configs.DBConfig, metricsEnabled bool) (*Client, error) {
	driver := cfg.Driver()

	factory, ok := dialectors[driver]
	if !ok {
		return nil, fmt.Errorf("database driver %q not compiled in (have %v)", cfg.Type, GetRegisteredDBTypes())
	}

	dsn := cfg.GetDSN()
	if dsn == "" {
		return nil, fmt.Errorf("empty dsn for database type %s", cfg.Type)
	}

	level := logger.Warn
	if cfg.LogSQL {
		level = logger.Info
	}

	gdb, err := Open(factory(dsn), logger.New(nlog.Logger(), logger.Config{
		SlowThreshold:             cfg.SlowThreshold,
		LogLevel:                  level,
		IgnoreRecordNotFoundError: true,
	}))
	if err != nil {
		return nil, err
	}

	c := &Client{DB: gdb, driver: driver}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}

	if metricsEnabled {
		err := gdb.Use(gormPrometheus.New(gormPrometheus.Config{
			DBName:          cfg.Database,
			RefreshInterval: metricsRefreshSeconds,
		}))
		if err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("register gorm metrics: %w", err)
		}
	}

	nlog.Logger().Info().
		Str("driver", string(driver)).
		Str("database", cfg.Database).
		Bool("metrics", metricsEnabled).
		Msg("database connected")

	return c, nil
}

// Open 用给定 dialector 打开连接，时间统一为 UTC，驱动错误翻译为 gorm 错误.
func Open(dialector gorm.Dialector, l logger.Interface) (*gorm.DB, error) {
	gdb, err := gorm.Open(dialector, &gorm.Config{
		Logger:         l,
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	return gdb, nil
}

// Type 返回规范化驱动名.
func (c *Client) Type() configs.DBType {
	return c.driver
}

// Ping 检查连通性.
func (c *Client) Ping(ctx context.Context) error {
	sqlDB, err := c.DB.DB()
	if err != nil {
		return err
	}

	return sqlDB.PingContext(ctx)
}

// Migrate 自动迁移给定模型.
func (c *Client) Migrate(ctx context.Context, models ...any) error {
	if err := c.WithContext(ctx).AutoMigrate(models...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	return nil
}

func (c *Client) Close() error {
	sqlDB, err := c.DB.DB()
	if err != nil {
		return err
	}

	return sqlDB.Close()
}

// GetDB 返回 GORM 实例.
func (c *Client) GetDB() *gorm.DB {
	return c.DB
}
