package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dshills/newsfuse/pkg/types"
)

// Store is the relational article store plus the vector index used by the
// similarity search. It is backed by SQLite, or read-only by Postgres.
type Store struct {
	db      *sql.DB
	dialect dialect
}

// openDatabase opens a SQLite database with the settings of a bulk read job
func openDatabase(dbPath string, cacheSizeKiB int) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Single connection keeps pragmas and :memory: databases consistent
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if cacheSizeKiB <= 0 {
		cacheSizeKiB = DefaultCacheSizeKiB
	}
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA temp_store=MEMORY",
		fmt.Sprintf("PRAGMA cache_size=-%d", cacheSizeKiB),
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set %q: %w", p, err)
		}
	}

	return db, nil
}

// Open connects to the store described by opts
func Open(ctx context.Context, opts Options) (*Store, error) {
	if opts.DSN == "" {
		return nil, fmt.Errorf("%w: empty DSN", types.ErrStoreFailure)
	}

	switch opts.Driver {
	case "", DriverSQLite:
		db, err := openDatabase(opts.DSN, opts.CacheSizeKiB)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to open database: %w", types.ErrStoreFailure, err)
		}
		if opts.Migrate {
			if err := ApplyMigrations(ctx, db); err != nil {
				_ = db.Close()
				return nil, fmt.Errorf("%w: failed to apply migrations: %w", types.ErrStoreFailure, err)
			}
		}
		return &Store{db: db, dialect: sqliteDialect}, nil

	case DriverPostgres:
		db, err := openPostgres(ctx, opts.DSN)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", types.ErrStoreFailure, err)
		}
		return &Store{db: db, dialect: postgresDialect}, nil

	default:
		return nil, fmt.Errorf("unsupported driver %q", opts.Driver)
	}
}

// NewSQLiteStore opens and migrates a SQLite store at dbPath
func NewSQLiteStore(ctx context.Context, dbPath string) (*Store, error) {
	return Open(ctx, Options{Driver: DriverSQLite, DSN: dbPath, Migrate: true})
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Driver returns the backend name
func (s *Store) Driver() string {
	return s.dialect.name
}

// MaxParams returns the bind parameter ceiling of the backend
func (s *Store) MaxParams() int {
	return s.dialect.maxParams
}

// querier returns the DB querier
func (s *Store) querier() querier {
	return s.db
}
