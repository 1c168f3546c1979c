package csvio

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/dshills/newsfuse/pkg/types"
)

// IntermediateHeader is the column layout of a per-query retrieval file
var IntermediateHeader = []string{
	"id", "url", "hostname", "date", "hashed_id", "date_crawled",
	"loc_normal", "latitude", "longitude", "NUTS", "cos_dist",
	"query_string", "query_name",
}

// requiredColumns must be present in any intermediate file that is read
var requiredColumns = []string{"id", "url", "hostname", "date", "NUTS", "cos_dist"}

// IntermediatePath returns the intermediate file of a query: <source>_<name>.csv
func IntermediatePath(sourcePath, queryName string) string {
	return sourcePath + "_" + queryName + ".csv"
}

// WriteIntermediate writes joined rows of one query
func WriteIntermediate(path string, rows []types.JoinedRow) error {
	return writeAtomic(path, IntermediateHeader, func(w *csv.Writer) error {
		for _, r := range rows {
			record := []string{
				r.ID, r.URL, r.Hostname, r.Date, r.HashedID, r.DateCrawled,
				r.Location.Name, formatOptional(r.Location.Latitude), formatOptional(r.Location.Longitude),
				r.Location.NUTS, types.FormatDistance(r.Distance),
				r.QueryString, r.QueryName,
			}
			if err := w.Write(record); err != nil {
				return fmt.Errorf("write row for article %s: %w", r.ID, err)
			}
		}
		return nil
	})
}

// ReadStats counts the rows skipped while reading
type ReadStats struct {
	Rows    int
	Skipped int
}

// ReadIntermediate reads a per-query retrieval file. Columns are located by
// header name. A missing file returns types.ErrMissingSourceFile. Rows that
// cannot be parsed are skipped and logged with their line number; queryName
// fills query_name when the file has no such column.
func ReadIntermediate(path, queryName string, logger *slog.Logger) ([]types.JoinedRow, ReadStats, error) {
	var stats ReadStats
	if logger == nil {
		logger = slog.Default()
	}

	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, stats, fmt.Errorf("%w: %s", types.ErrMissingSourceFile, path)
	}
	if err != nil {
		return nil, stats, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err == io.EOF {
		return nil, stats, fmt.Errorf("%w: %s is empty", types.ErrMalformedRecord, path)
	}
	if err != nil {
		return nil, stats, fmt.Errorf("read header of %s: %w", path, err)
	}
	cols := indexColumns(header)
	for _, c := range requiredColumns {
		if _, ok := cols[c]; !ok {
			return nil, stats, fmt.Errorf("%w: %s has no %q column", types.ErrMalformedRecord, path, c)
		}
	}

	var rows []types.JoinedRow
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}

		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			stats.Skipped++
			logger.Warn("skipping malformed row", "path", path, "line", parseErr.Line, "reason", parseErr.Err)
			continue
		}
		if err != nil {
			return nil, stats, fmt.Errorf("read %s: %w", path, err)
		}

		line, _ := r.FieldPos(0)
		row, err := parseIntermediate(record, cols, len(header))
		if err != nil {
			stats.Skipped++
			logger.Warn("skipping malformed row", "path", path, "line", line, "reason", err)
			continue
		}
		if row.QueryName == "" {
			row.QueryName = queryName
		}
		rows = append(rows, row)
	}

	stats.Rows = len(rows)
	return rows, stats, nil
}

func parseIntermediate(record []string, cols map[string]int, width int) (types.JoinedRow, error) {
	if len(record) != width {
		return types.JoinedRow{}, fmt.Errorf("%w: %d fields, want %d", types.ErrMalformedRecord, len(record), width)
	}
	get := func(name string) string {
		if i, ok := cols[name]; ok {
			return record[i]
		}
		return ""
	}

	distance, err := strconv.ParseFloat(strings.TrimSpace(get("cos_dist")), 64)
	if err != nil || math.IsNaN(distance) || math.IsInf(distance, 0) {
		return types.JoinedRow{}, fmt.Errorf("%w: bad cos_dist %q", types.ErrMalformedRecord, get("cos_dist"))
	}
	latitude, err := parseOptional(get("latitude"))
	if err != nil {
		return types.JoinedRow{}, fmt.Errorf("%w: bad latitude: %w", types.ErrMalformedRecord, err)
	}
	longitude, err := parseOptional(get("longitude"))
	if err != nil {
		return types.JoinedRow{}, fmt.Errorf("%w: bad longitude: %w", types.ErrMalformedRecord, err)
	}

	id := strings.TrimSpace(get("id"))
	return types.JoinedRow{
		Article: types.Article{
			ID:          id,
			URL:         get("url"),
			Hostname:    get("hostname"),
			Date:        get("date"),
			DateCrawled: get("date_crawled"),
		},
		HashedID: get("hashed_id"),
		Location: types.Location{
			ArticleID: id,
			NUTS:      strings.TrimSpace(get("NUTS")),
			Name:      get("loc_normal"),
			Latitude:  latitude,
			Longitude: longitude,
		},
		Distance:    distance,
		QueryString: get("query_string"),
		QueryName:   get("query_name"),
	}, nil
}

func indexColumns(header []string) map[string]int {
	cols := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if _, dup := cols[h]; !dup {
			cols[h] = i
		}
	}
	return cols
}

func parseOptional(s string) (*float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func formatOptional(f *float64) string {
	if f == nil {
		return ""
	}
	return strconv.FormatFloat(*f, 'g', -1, 64)
}
