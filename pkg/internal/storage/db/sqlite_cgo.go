//go:build !no_sqlite && cgo

package db

import (
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/yeisme/sourcelens/pkg/configs"
)

// mattn/go-sqlite3 的 DSN 参数写法与纯 Go 驱动不同.
var sqlitePragmas = []string{
	"_busy_timeout=5000",
	"_journal_mode=WAL",
	"_foreign_keys=1",
}

// createSQLiteDialector 创建 CGo SQLite dialector，内存库不追加 pragma.
func createSQLiteDialector(dsn string) gorm.Dialector {
	return sqlite.Open(withPragmas(dsn, sqlitePragmas))
}

func init() {
	RegisterDialectorFactory(configs.SQLite, createSQLiteDialector)
}
