//go:build !no_sqlite

package db

import "strings"

// withPragmas 把 pragma 追加到 SQLite DSN 的查询串，内存库原样返回.
func withPragmas(dsn string, pragmas []string) string {
	if strings.Contains(dsn, ":memory:") {
		return dsn
	}

	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}

	return dsn + sep + strings.Join(pragmas, "&")
}
