package db

import (
	"fmt"
	"time"
)

// Dialect names the SQL flavour behind a driver. Values match goose dialect names.
type Dialect string

const (
	SQLite   Dialect = "sqlite3"
	Postgres Dialect = "postgres"
)

// dialectMap maps database drivers to dialects
var dialectMap = map[string]Dialect{
	"sqlite":   SQLite,
	"sqlite3":  SQLite,
	"pgx":      Postgres,
	"postgres": Postgres,
}

// DialectOf returns the dialect for the given driver
func DialectOf(driver string) Dialect {
	dialect, ok := dialectMap[driver]
	if ok {
		return dialect
	}
	return Dialect(driver)
}

// Expired returns a predicate that is true when the nullable timestamp column
// has passed according to the database clock.
func (d Dialect) Expired(col string) string {
	switch d {
	case SQLite:
		return fmt.Sprintf("(%[1]s IS NOT NULL AND julianday(%[1]s) <= julianday('now'))", col)
	default:
		return fmt.Sprintf("(%[1]s IS NOT NULL AND %[1]s <= NOW())", col)
	}
}

// Live is the negation of Expired: the column is NULL or still in the future.
func (d Dialect) Live(col string) string {
	switch d {
	case SQLite:
		return fmt.Sprintf("(%[1]s IS NULL OR julianday(%[1]s) > julianday('now'))", col)
	default:
		return fmt.Sprintf("(%[1]s IS NULL OR %[1]s > NOW())", col)
	}
}

// ExpiresIn returns an expression for "now plus param seconds" on the database
// clock. A param of 0 yields NULL, meaning the row never expires.
func (d Dialect) ExpiresIn(param string) string {
	switch d {
	case SQLite:
		return "(CASE WHEN " + param + " = 0 THEN NULL ELSE strftime('%Y-%m-%d %H:%M:%f', 'now', " + param + " || ' seconds') END)"
	default:
		return "(CASE WHEN " + param + "::bigint = 0 THEN NULL ELSE NOW() + " + param + "::bigint * INTERVAL '1 second' END)"
	}
}

// Seconds converts a lifetime to the whole-second argument ExpiresIn expects.
func Seconds(d time.Duration) int64 {
	return int64(d / time.Second)
}
