//go:build !no_mysql

package db

import (
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/yeisme/sourcelens/pkg/configs"
)

// 未指定长度的字符串列为 VARCHAR(255)，联合唯一索引不超过 InnoDB 的 3072 字节上限.
func init() {
	RegisterDialectorFactory(configs.MySQL, func(dsn string) gorm.Dialector {
		return mysql.New(mysql.Config{
			DSN:                       dsn,
			DefaultStringSize:         255,
		})
	})
}
