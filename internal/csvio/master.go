package csvio

import (
	"encoding/csv"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dshills/newsfuse/internal/storage"
	"github.com/dshills/newsfuse/pkg/types"
)

// MasterPath returns <outputDir>/<label>_<start>-<end>_top<k>.csv
func MasterPath(outputDir, label string, startYear, endYear, k int) string {
	return filepath.Join(outputDir, fmt.Sprintf("%s_%d-%d_top%d.csv", label, startYear, endYear, k))
}

// MasterHeader returns the master columns for the given query order
func MasterHeader(order []string) []string {
	header := []string{"id", "hostname", "date", "url", "NUTS", "cosine_rank"}
	for _, name := range order {
		header = append(header, "cos_dist_"+name, "cos_rank_"+name)
	}
	return header
}

// WriteMaster writes the fused candidate list. Queries without a score for a
// candidate leave both of their cells empty.
func WriteMaster(path string, order []string, candidates []types.MasterCandidate) error {
	return writeAtomic(path, MasterHeader(order), func(w *csv.Writer) error {
		for i := range candidates {
			c := &candidates[i]
			record := make([]string, 0, 6+2*len(order))
			record = append(record,
				c.ArticleID, c.Hostname, c.Date, c.URL,
				joinNUTS(c.NUTS), strconv.Itoa(c.Rank),
			)
			for _, name := range order {
				if s, ok := c.Score(name); ok {
					record = append(record, types.FormatDistance(s.Distance), strconv.Itoa(s.Rank))
				} else {
					record = append(record, "", "")
				}
			}
			if err := w.Write(record); err != nil {
				return fmt.Errorf("write candidate %s: %w", c.ArticleID, err)
			}
		}
		return nil
	})
}

// ThresholdHeader is the column layout of a distance threshold export
var ThresholdHeader = []string{"id", "NUTS", "url", "hostname", "date", "cos_dist", "hashed_id", "date_crawled"}

// WriteThreshold writes collapsed rows that passed a distance threshold
func WriteThreshold(path string, rows []types.QueryResultRow) error {
	return writeAtomic(path, ThresholdHeader, func(w *csv.Writer) error {
		for i := range rows {
			r := &rows[i]
			record := []string{
				r.ArticleID, r.NUTSString(), r.URL, r.Hostname, r.Date,
				types.FormatDistance(r.Distance), r.HashedID, r.DateCrawled,
			}
			if err := w.Write(record); err != nil {
				return fmt.Errorf("write row for article %s: %w", r.ArticleID, err)
			}
		}
		return nil
	})
}

// SummaryHeader is the column layout of the monthly NUTS summary
var SummaryHeader = []string{"year", "month", "NUTS", "article_count", "min_date_crawled", "max_date_crawled"}

// WriteSummary writes the per month and NUTS article counts
func WriteSummary(path string, counts []storage.MonthlyNUTSCount) error {
	return writeAtomic(path, SummaryHeader, func(w *csv.Writer) error {
		for _, c := range counts {
			record := []string{
				c.Year, c.Month, c.NUTS, strconv.FormatInt(c.ArticleCount, 10),
				c.MinDateCrawled, c.MaxDateCrawled,
			}
			if err := w.Write(record); err != nil {
				return fmt.Errorf("write summary row: %w", err)
			}
		}
		return nil
	})
}

func joinNUTS(codes []string) string {
	return strings.Join(codes, types.NUTSSeparator)
}

// CompareHeader is the threshold layout plus a flag for ids found in a list
var CompareHeader = append(append([]string{}, ThresholdHeader...), "in_list")

// WriteCompare writes collapsed rows flagged by membership in an id list
func WriteCompare(path string, rows []types.QueryResultRow, listed map[string]bool) error {
	return writeAtomic(path, CompareHeader, func(w *csv.Writer) error {
		for i := range rows {
			r := &rows[i]
			flag := "False"
			if listed[r.ArticleID] {
				flag = "True"
			}
			record := []string{
				r.ArticleID, r.NUTSString(), r.URL, r.Hostname, r.Date,
				types.FormatDistance(r.Distance), r.HashedID, r.DateCrawled, flag,
			}
			if err := w.Write(record); err != nil {
				return fmt.Errorf("write row for article %s: %w", r.ArticleID, err)
			}
		}
		return nil
	})
}
