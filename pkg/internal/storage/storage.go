// Package storage 聚合数据库、键值缓存、消息队列与对象存储客户端.
//
// Example:
//
// 初始化
//
//	mgr, err := storage.Init(ctx, configs.GetConfig())
//	if err != nil {
//		// 处理错误
//	}
//	defer mgr.Close()
//
// 获取存储客户端
//
//	dbClient := mgr.GetDBClient()
//	kvClient := mgr.GetKVClient()
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/yeisme/sourcelens/pkg/configs"
	dbc "github.com/yeisme/sourcelens/pkg/internal/storage/db"
	kvc "github.com/yeisme/sourcelens/pkg/internal/storage/kv"
	mqc "github.com/yeisme/sourcelens/pkg/internal/storage/mq"
	s3c "github.com/yeisme/sourcelens/pkg/internal/storage/s3"
	nlog "github.com/yeisme/sourcelens/pkg/log"
)

// Manager 聚合所有存储资源，未启用的资源为 nil.
type Manager struct {
	DB *dbc.Client
	KV *kvc.Client
	MQ *mqc.Client
	S3 *s3c.Client
}

// Init 按配置初始化存储资源.
// SourceMap 使用内存存储时跳过数据库，S3 仅在启用时连接.
func Init(ctx context.Context, cfg *configs.AppConfig) (*Manager, error) {
	m := &Manager{}

	if cfg.SourceMap.Store != "memory" {
		dbi, err := dbc.New(ctx, &cfg.DB, cfg.Metrics.Enabled)
		if err != nil {
			return nil, fmt.Errorf("init db: %w", err)
		}

		m.DB = dbi
	}

	kvi, err := kvc.NewKVClient(ctx, &cfg.KV)
	if err != nil {
		_ = m.Close()
		return nil, fmt.Errorf("init kv: %w", err)
	}

	m.KV = kvi

	mqi, err := mqc.New(ctx, &cfg.MQ, cfg.Metrics.Enabled)
	if err != nil {
		_ = m.Close()
		return nil, fmt.Errorf("init mq: %w", err)
	}

	m.MQ = mqi

	if cfg.S3.Enabled {
		s3i, err := s3c.New(ctx, &cfg.S3)
		if err != nil {
			_ = m.Close()
			return nil, fmt.Errorf("init s3: %w", err)
		}

		m.S3 = s3i
	}

	nlog.Logger().Info().
		Bool("db", m.DB != nil).
		Str("kv", cfg.KV.Type).
		Str("mq", string(cfg.MQ.Type)).
		Bool("s3", m.S3 != nil).
		Msg("storage manager initialized")

	return m, nil
}

// GetS3Client 获取 S3 客户端.
func (m *Manager) GetS3Client() *s3c.Client {
	return m.S3
}

// GetDBClient 获取 DB 客户端.
func (m *Manager) GetDBClient() *dbc.Client {
	return m.DB
}

// GetKVClient 获取 KV 客户端.
func (m *Manager) GetKVClient() *kvc.Client {
	return m.KV
}

// GetMQClient 获取 MQ 客户端.
func (m *Manager) GetMQClient() *mqc.Client {
	return m.MQ
}

// Close 关闭全部已初始化的资源.
func (m *Manager) Close() error {
	var errs []error

	if m.MQ != nil {
		errs = append(errs, m.MQ.Close())
	}

	if m.KV != nil {
		errs = append(errs, m.KV.Close())
	}

	if m.S3 != nil {
		errs = append(errs, m.S3.Close())
	}

	if m.DB != nil {
		errs = append(errs, m.DB.Close())
	}

	return errors.Join(errs...)
}
