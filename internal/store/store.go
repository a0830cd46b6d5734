// Package store 提供预约受理所需的数据访问实现：
// GormStore（SQLite，默认）与 PostgresStore（sqlx + lib/pq）。
package store

import "errors"

// ErrNotFound 表示按主键查询的记录不存在。
var ErrNotFound = errors.New("record not found")
