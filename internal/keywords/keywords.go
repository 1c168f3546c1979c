// Package keywords parses the keyword check results embedded as JSON in the
// manual review sheet and joins them back onto the sheet rows.
package keywords

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/dshills/newsfuse/internal/csvio"
	"github.com/dshills/newsfuse/pkg/types"
)

// Column names of the review sheet
const (
	IDColumn   = "id"
	JSONColumn = "json"
)

// keywordSeparator joins keyword lists in output cells
const keywordSeparator = ", "

// ParsedHeader is the column layout of the parsed keyword table
var ParsedHeader = []string{
	"id", "url", "headline", "timestamp", "total_keywords",
	"found_count", "not_found_count", "found_keywords", "not_found_keywords",
}

// mergedColumns are appended to the sheet by Merge. The parsed url is renamed
// so it does not collide with the sheet's own url column.
var mergedColumns = []string{
	"keyword_url", "headline", "timestamp", "total_keywords",
	"found_count", "not_found_count", "found_keywords", "not_found_keywords",
	"has_keyword_data",
}

// Record is one parsed keyword check
type Record struct {
	ID        string   `json:"-"`
	URL       string   `json:"url"`
	Headline  string   `json:"headline"`
	Timestamp string   `json:"timestamp"`
	Total     *int     `json:"total"`
	Found     []string `json:"found"`
	NotFound  []string `json:"notFound"`
}

var errMissingField = errors.New("missing field")

func (r *Record) validate() error {
	switch {
	case r.Total == nil:
		return fmt.Errorf("%w: total", errMissingField)
	case r.Found == nil:
		return fmt.Errorf("%w: found", errMissingField)
	case r.NotFound == nil:
		return fmt.Errorf("%w: notFound", errMissingField)
	}
	return nil
}

func (r *Record) cells() []string {
	return []string{
		r.URL, r.Headline, r.Timestamp, strconv.Itoa(*r.Total),
		strconv.Itoa(len(r.Found)), strconv.Itoa(len(r.NotFound)),
		strings.Join(r.Found, keywordSeparator), strings.Join(r.NotFound, keywordSeparator),
	}
}

// Stats counts parse outcomes
type Stats struct {
	Rows    int
	Parsed  int
	Skipped int
}

// Parse decodes the JSON column of every sheet row. Rows whose JSON is
// malformed or incomplete are skipped and logged with their row index.
func Parse(sheet *csvio.Table, logger *slog.Logger) ([]Record, Stats, error) {
	if logger == nil {
		logger = slog.Default()
	}
	stats := Stats{Rows: len(sheet.Rows)}

	idCol, jsonCol := sheet.Column(IDColumn), sheet.Column(JSONColumn)
	if idCol < 0 || jsonCol < 0 {
		return nil, stats, fmt.Errorf("%w: sheet needs %q and %q columns", types.ErrMalformedRecord, IDColumn, JSONColumn)
	}

	records := make([]Record, 0, len(sheet.Rows))
	for idx, row := range sheet.Rows {
		rec, err := parseRow(row, idCol, jsonCol)
		if err != nil {
			stats.Skipped++
			logger.Warn("error parsing row", "row", idx, "reason", err)
			continue
		}
		records = append(records, rec)
	}
	stats.Parsed = len(records)
	return records, stats, nil
}

func parseRow(row []string, idCol, jsonCol int) (Record, error) {
	if idCol >= len(row) || jsonCol >= len(row) {
		return Record{}, fmt.Errorf("%w: row has %d fields", types.ErrMalformedRecord, len(row))
	}
	var rec Record
	if err := json.Unmarshal([]byte(row[jsonCol]), &rec); err != nil {
		return Record{}, fmt.Errorf("%w: %w", types.ErrMalformedRecord, err)
	}
	if err := rec.validate(); err != nil {
		return Record{}, fmt.Errorf("%w: %w", types.ErrMalformedRecord, err)
	}
	rec.ID = strings.TrimSpace(row[idCol])
	return rec, nil
}

// ParsedRows renders records in ParsedHeader order
func ParsedRows(records []Record) [][]string {
	out := make([][]string, len(records))
	for i := range records {
		out[i] = append([]string{records[i].ID}, records[i].cells()...)
	}
	return out
}

// MergeStats counts join outcomes
type MergeStats struct {
	Matched  int // sheet rows with keyword data
	LeftOnly int // sheet rows without keyword data
}

// Merge left-joins records onto the sheet by id. Every sheet row is kept; a
// row with several records is repeated once per record. has_keyword_data
// tells matched rows apart.
func Merge(sheet *csvio.Table, records []Record) ([]string, [][]string, MergeStats) {
	var stats MergeStats
	byID := make(map[string][]int, len(records))
	for i := range records {
		byID[records[i].ID] = append(byID[records[i].ID], i)
	}

	header := append(append([]string{}, sheet.Header...), mergedColumns...)
	idCol := sheet.Column(IDColumn)
	width := len(sheet.Header)

	out := make([][]string, 0, len(sheet.Rows))
	for _, row := range sheet.Rows {
		base := padRow(row, width)

		var matches []int
		if idCol >= 0 {
			matches = byID[strings.TrimSpace(base[idCol])]
		}
		if len(matches) == 0 {
			stats.LeftOnly++
			empty := make([]string, len(mergedColumns)-1)
			out = append(out, append(append(base, empty...), "False"))
			continue
		}

		stats.Matched++
		for _, i := range matches {
			merged := append([]string{}, base...)
			merged = append(merged, records[i].cells()...)
			out = append(out, append(merged, "True"))
		}
	}
	return header, out, stats
}

func padRow(row []string, width int) []string {
	out := make([]string, width)
	copy(out, row)
	return out
}

// Process parses the sheet at inPath, writes the parsed records to parsedPath
// when it is non-empty, and writes the merged sheet to outPath.
func Process(inPath, outPath, parsedPath string, logger *slog.Logger) (Stats, MergeStats, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "keywords")

	sheet, err := csvio.ReadTable(inPath)
	if err != nil {
		return Stats{}, MergeStats{}, err
	}

	records, stats, err := Parse(sheet, logger)
	if err != nil {
		return stats, MergeStats{}, err
	}

	if parsedPath != "" {
		if err := csvio.WriteTable(parsedPath, ParsedHeader, ParsedRows(records)); err != nil {
			return stats, MergeStats{}, fmt.Errorf("write parsed keywords: %w", err)
		}
	}

	header, rows, mstats := Merge(sheet, records)
	if err := csvio.WriteTable(outPath, header, rows); err != nil {
		return stats, mstats, fmt.Errorf("write merged sheet: %w", err)
	}

	logger.Info("keyword sheet processed",
		"rows", stats.Rows,
		"parsed", stats.Parsed,
		"skipped", stats.Skipped,
		"matched", mstats.Matched,
		"left_only", mstats.LeftOnly,
	)
	return stats, mstats, nil
}
