//go:build !no_postgres

package db

import (
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/yeisme/sourcelens/pkg/configs"
)

func init() {
	RegisterDialectorFactory(configs.Postgres, func(dsn string) gorm.Dialector {
		// 连接池或 pgbouncer 事务模式下预编译语句会失效
		return postgres.New(postgres.Config{DSN: dsn, PreferSimpleProtocol: true})
	})
}
