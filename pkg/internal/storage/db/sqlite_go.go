//go:build !no_sqlite && !cgo

package db

import (
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/yeisme/sourcelens/pkg/configs"
)

// 上传与错误上报并发写入，打开 WAL 并等待锁释放.
var sqlitePragmas = []string{
	"_pragma=busy_timeout(5000)",
	"_pragma=journal_mode(WAL)",
	"_pragma=foreign_keys(1)",
}

// createSQLiteDialector 创建纯 Go SQLite dialector，内存库不追加 pragma.
func createSQLiteDialector(dsn string) gorm.Dialector {
	return sqlite.Open(withPragmas(dsn, sqlitePragmas))
}

func init() {
	RegisterDialectorFactory(configs.SQLite, createSQLiteDialector)
}
