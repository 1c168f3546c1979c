package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/dshills/newsfuse/pkg/types"
)

const joinByVectorKeysQuery = `
	SELECT
		a.id, a.url, a.hostname, a.date, av.hashed_id, a.date_crawled,
		l.location_id, l.loc_normal, l.latitude, l.longitude, l.NUTS
	FROM Article_Vectors av
	JOIN Articles a ON av.article_id = a.id
	JOIN Article_Locations al ON a.id = al.article_id
	JOIN Locations l ON al.location_id = l.location_id
	WHERE av.hashed_id IN (%s)
`

// JoinByVectorKeys runs one membership query for keys and returns every
// article x location row linked to them. Keys the store does not carry are
// absent from the result. Rows are ordered by key position, then NUTS code,
// then location id. Distance is left zero for the caller to fill in.
func (s *Store) JoinByVectorKeys(ctx context.Context, keys []string) ([]types.JoinedRow, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	if len(keys) > s.dialect.maxParams {
		return nil, fmt.Errorf("%d keys exceed the %s parameter limit of %d", len(keys), s.dialect.name, s.dialect.maxParams)
	}

	args := make([]interface{}, len(keys))
	position := make(map[string]int, len(keys))
	for i, k := range keys {
		args[i] = k
		if _, ok := position[k]; !ok {
			position[k] = i
		}
	}

	query := fmt.Sprintf(joinByVectorKeysQuery, s.dialect.placeholders(1, len(keys)))
	rows, err := s.querier().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: join query failed: %w", types.ErrStoreFailure, err)
	}
	defer func() { _ = rows.Close() }()

	var result []types.JoinedRow
	for rows.Next() {
		row, err := scanJoinedRow(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to scan joined row: %w", types.ErrStoreFailure, err)
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrStoreFailure, err)
	}

	sort.SliceStable(result, func(i, j int) bool {
		a, b := result[i], result[j]
		if pa, pb := position[a.HashedID], position[b.HashedID]; pa != pb {
			return pa < pb
		}
		if a.Location.NUTS != b.Location.NUTS {
			return a.Location.NUTS < b.Location.NUTS
		}
		return a.Location.LocationID < b.Location.LocationID
	})
	return result, nil
}

func scanJoinedRow(rows *sql.Rows) (types.JoinedRow, error) {
	var (
		row                          types.JoinedRow
		url, hostname, date, crawled sql.NullString
		locName, nuts                sql.NullString
		locationID                   sql.NullInt64
		latitude, longitude          sql.NullFloat64
	)
	err := rows.Scan(&row.ID, &url, &hostname, &date, &row.HashedID, &crawled,
		&locationID, &locName, &latitude, &longitude, &nuts)
	if err != nil {
		return row, err
	}

	row.URL = url.String
	row.Hostname = hostname.String
	row.Date = date.String
	row.DateCrawled = crawled.String
	row.Location = types.Location{
		ArticleID:  row.ID,
		LocationID: locationID.Int64,
		NUTS:       nuts.String,
		Name:       locName.String,
	}
	if latitude.Valid {
		row.Location.Latitude = &latitude.Float64
	}
	if longitude.Valid {
		row.Location.Longitude = &longitude.Float64
	}
	return row, nil
}

// InsertArticle writes one article row
func (s *Store) InsertArticle(ctx context.Context, a types.Article) error {
	query := s.dialect.rebind(`INSERT INTO Articles (id, url, hostname, date, date_crawled) VALUES (?, ?, ?, ?, ?)`)
	if _, err := s.querier().ExecContext(ctx, query, a.ID, a.URL, a.Hostname, a.Date, a.DateCrawled); err != nil {
		return fmt.Errorf("failed to insert article %s: %w", a.ID, err)
	}
	return nil
}

// InsertLocation writes one location row. An empty NUTS code is stored as NULL.
func (s *Store) InsertLocation(ctx context.Context, loc types.Location) error {
	query := s.dialect.rebind(`INSERT INTO Locations (location_id, NUTS, loc_normal, latitude, longitude) VALUES (?, ?, ?, ?, ?)`)
	_, err := s.querier().ExecContext(ctx, query,
		loc.LocationID, nullString(loc.NUTS), nullString(loc.Name), loc.Latitude, loc.Longitude)
	if err != nil {
		return fmt.Errorf("failed to insert location %d: %w", loc.LocationID, err)
	}
	return nil
}

// LinkLocation links an article to a location
func (s *Store) LinkLocation(ctx context.Context, articleID string, locationID int64) error {
	query := s.dialect.rebind(`INSERT INTO Article_Locations (article_id, location_id) VALUES (?, ?)`)
	if _, err := s.querier().ExecContext(ctx, query, articleID, locationID); err != nil {
		return fmt.Errorf("failed to link article %s to location %d: %w", articleID, locationID, err)
	}
	return nil
}

// LinkVector links an article to a vector key
func (s *Store) LinkVector(ctx context.Context, articleID, hashedID string) error {
	query := s.dialect.rebind(`INSERT INTO Article_Vectors (article_id, hashed_id) VALUES (?, ?)`)
	if _, err := s.querier().ExecContext(ctx, query, articleID, hashedID); err != nil {
		return fmt.Errorf("failed to link article %s to vector %s: %w", articleID, hashedID, err)
	}
	return nil
}

// SummarizeByNUTSMonth counts distinct articles per publish year, month and
// NUTS code, with the crawl date range of each group.
func (s *Store) SummarizeByNUTSMonth(ctx context.Context) ([]MonthlyNUTSCount, error) {
	year, month := s.dialect.yearMonth("a.date")
	query := fmt.Sprintf(`
		SELECT
			%[1]s AS year,
			%[2]s AS month,
			COUNT(DISTINCT a.id) AS article_count,
			l.NUTS,
			MIN(a.date_crawled) AS min_date_crawled,
			MAX(a.date_crawled) AS max_date_crawled
		FROM Articles a
		JOIN Article_Locations al ON a.id = al.article_id
		JOIN Locations l ON al.location_id = l.location_id
		GROUP BY %[1]s, %[2]s, l.NUTS
		ORDER BY year, month, l.NUTS
	`, year, month)

	rows, err := s.querier().QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: summary query failed: %w", types.ErrStoreFailure, err)
	}
	defer func() { _ = rows.Close() }()

	var result []MonthlyNUTSCount
	for rows.Next() {
		var (
			c                              MonthlyNUTSCount
			y, m, nuts, minCrawl, maxCrawl sql.NullString
		)
		if err := rows.Scan(&y, &m, &c.ArticleCount, &nuts, &minCrawl, &maxCrawl); err != nil {
			return nil, fmt.Errorf("%w: %w", types.ErrStoreFailure, err)
		}
		c.Year, c.Month, c.NUTS = y.String, m.String, nuts.String
		c.MinDateCrawled, c.MaxDateCrawled = minCrawl.String, maxCrawl.String
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrStoreFailure, err)
	}
	return result, nil
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
