package configs

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DBType 配置里写的数据库类型，允许常见别名.
type DBType string

// 规范化后的驱动名.
const (
	Postgres DBType = "postgres"
	MySQL    DBType = "mysql"
	SQLite   DBType = "sqlite"
)

var dbAliases = map[DBType]DBType{
	"postgresql": Postgres,
	"postgre":    Postgres,
	"pg":         Postgres,
	"mariadb":    MySQL,
	"sqlite3":    SQLite,
}

// DBConfig 数据库配置，sourcemap.store=db 时使用.
type DBConfig struct {
	Type DBType `mapstructure:"type" rule:"oneof=postgres postgresql postgre pg mysql mariadb sqlite sqlite3"`
	// DSN 非空时直接使用，忽略下面的连接字段
	DSN             string        `mapstructure:"dsn"`
	Host            string        `mapstructure:"host"              rule:"omitempty,hostname"`
	Port            int           `mapstructure:"port"              rule:"min=0,max=65535"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"          rule:"required"`
	SSLMode         string        `mapstructure:"sslmode"           rule:"omitempty,oneof=disable allow prefer require verify-ca verify-full"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"    rule:"min=0"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"    rule:"min=0"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	SlowThreshold   time.Duration `mapstructure:"slow_threshold"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
	LogSQL          bool          `mapstructure:"log_sql"`
}

// Driver 返回规范化的驱动名.
func (c *DBConfig) Driver() DBType {
	t := DBType(strings.ToLower(string(c.Type)))
	if canonical, ok := dbAliases[t]; ok {
		return canonical
	}

	return t
}

// GetDSN 按驱动拼接连接串，未知驱动返回空串.
func (c *DBConfig) GetDSN() string {
	if c.DSN != "" {
		return c.DSN
	}

	switch c.Driver() {
	case Postgres:
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s TimeZone=UTC",
			c.Host, c.port(5432), c.User, c.Password, c.Database, c.SSLMode)
	case MySQL:
		q := url.Values{"charset": {"utf8mb4"}, "parseTime": {"true"}, "loc": {"UTC"}}
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?%s", c.User, c.Password, c.Host, c.port(3306), c.Database, q.Encode())
	case SQLite:
		if c.Database == ":memory:" {
			return "file::memory:?cache=shared"
		}

		name := c.Database
		if !strings.HasSuffix(name, ".db") {
			name += ".db"
		}

		return "file:" + name
	default:
		return ""
	}
}

func (c *DBConfig) port(def int) int {
	if c.Port == 0 {
		return def
	}

	return c.Port
}

func (c *DBConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("db.type", SQLite)
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 0)
	v.SetDefault("db.user", AppName)
	v.SetDefault("db.database", AppName)
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.max_open_conns", 0)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_max_lifetime", time.Hour)
	v.SetDefault("db.slow_threshold", 500*time.Millisecond)
	v.SetDefault("db.auto_migrate", true)
	v.SetDefault("db.log_sql", false)
}
