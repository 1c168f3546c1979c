package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
)

// Supported store drivers
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Bind parameter ceilings per backend
const (
	SQLiteMaxParams   = 32766
	PostgresMaxParams = 65535
)

// Default SQLite page cache in KiB (negative cache_size pragma)
const DefaultCacheSizeKiB = 2000000

// Options configures how a Store is opened
type Options struct {
	// Driver is DriverSQLite (default) or DriverPostgres
	Driver string

	// DSN is a file path for SQLite or a connection string for Postgres
	DSN string

	// Migrate applies schema migrations on open (SQLite only)
	Migrate bool

	// CacheSizeKiB overrides the SQLite page cache size
	CacheSizeKiB int
}

// MaxParamsFor returns the bind parameter ceiling of a driver
func MaxParamsFor(driver string) (int, error) {
	switch driver {
	case "", DriverSQLite:
		return SQLiteMaxParams, nil
	case DriverPostgres:
		return PostgresMaxParams, nil
	default:
		return 0, fmt.Errorf("unsupported driver %q", driver)
	}
}

// dialect captures the SQL differences between backends
type dialect struct {
	name      string
	maxParams int
}

var (
	sqliteDialect   = dialect{name: DriverSQLite, maxParams: SQLiteMaxParams}
	postgresDialect = dialect{name: DriverPostgres, maxParams: PostgresMaxParams}
)

// placeholders returns n comma-separated bind markers starting at position start (1-based)
func (d dialect) placeholders(start, n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteByte(',')
		}
		if d.name == DriverPostgres {
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(start + i))
		} else {
			b.WriteByte('?')
		}
	}
	return b.String()
}

// rebind rewrites ? markers for the dialect
func (d dialect) rebind(query string) string {
	if d.name != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// yearMonth returns SQL expressions extracting the year and month of a date column
func (d dialect) yearMonth(col string) (string, string) {
	if d.name == DriverPostgres {
		return "to_char(" + col + "::timestamp, 'YYYY')", "to_char(" + col + "::timestamp, 'MM')"
	}
	return "strftime('%Y', " + col + ")", "strftime('%m', " + col + ")"
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// MonthlyNUTSCount is one row of the per month and NUTS region article summary
type MonthlyNUTSCount struct {
	Year           string
	Month          string
	NUTS           string
	ArticleCount   int64
	MinDateCrawled string
	MaxDateCrawled string
}
