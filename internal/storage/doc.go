// Package storage provides the relational article store and the vector index
// searched by the similarity oracle.
//
// # Database Schema
//
// Tables:
//   - Articles: id, url, hostname, date, date_crawled
//   - Article_Vectors: article_id to vector key (hashed_id)
//   - Article_Locations: article_id to location_id
//   - Locations: location_id, NUTS, loc_normal, latitude, longitude
//   - Vector_Index: hashed_id to little-endian float32 vector blob
//
// Migrations only create what is missing, so an existing article database can
// be opened with Migrate set.
//
// # Basic Usage
//
//	store, err := storage.Open(ctx, storage.Options{
//	    Driver:  storage.DriverSQLite,
//	    DSN:     "CommonCrawlNews.db",
//	    Migrate: true,
//	})
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	matches, err := store.Search(ctx, queryVector, 500000, true)
//	rows, err := store.JoinByVectorKeys(ctx, keys)
//
// # Parameter Limits
//
// JoinByVectorKeys issues a single IN (...) query, so the key count must not
// exceed MaxParams: 32766 for SQLite, 65535 for Postgres. Callers batch keys.
//
// # Build Tags
//
// CGO Build (sqlite_vec tag):
//
//   - Uses github.com/mattn/go-sqlite3 driver
//
//   - Approximate search runs vec_distance_cosine in SQL
//
//     CGO_ENABLED=1 go build -tags "sqlite_vec"
//
// Pure Go Build (default):
//
//   - Uses modernc.org/sqlite driver
//
//   - All searches are exact scans in Go
//
//     CGO_ENABLED=0 go build
//
// A Postgres store (Driver "postgres", via pgx) serves the article tables
// read-only. No migrations run against it.
package storage
