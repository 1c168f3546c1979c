package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/dshills/newsfuse/internal/config"
	"github.com/dshills/newsfuse/internal/csvio"
	"github.com/dshills/newsfuse/internal/fusion"
	"github.com/dshills/newsfuse/pkg/types"
)

// CompareReport summarizes an id list comparison
type CompareReport struct {
	Listed     int      // distinct ids in the list
	Articles   int      // collapsed articles of the query
	Matched    int      // articles whose id is in the list
	NotInQuery []string // listed ids the query did not return, in list order
	OutputPath string
}

// Compare checks an id list against one query's collapsed articles. Every
// article is written with an in_list flag; listed ids missing from the query
// are reported.
func Compare(ctx context.Context, cfg *config.Config, query, idsPath, outPath string, opts ...Option) (*CompareReport, error) {
	o := applyOptions(opts)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	list, err := csvio.ReadTable(idsPath)
	if err != nil {
		return nil, err
	}
	col := list.Column("id")
	if col < 0 {
		return nil, fmt.Errorf("%w: %s has no id column", types.ErrMalformedRecord, idsPath)
	}

	listed := make(map[string]bool)
	var order []string
	for _, record := range list.Rows {
		if col >= len(record) {
			continue
		}
		id := strings.TrimSpace(record[col])
		if id == "" || listed[id] {
			continue
		}
		listed[id] = true
		order = append(order, id)
	}

	normalizer, err := fusion.NewNormalizer(cfg.StartYear, cfg.EndYear, o.base)
	if err != nil {
		return nil, err
	}
	rows, _, err := csvio.ReadIntermediate(csvio.IntermediatePath(cfg.SourcePath, query), query, o.logger)
	if err != nil {
		return nil, err
	}
	normalized, _, err := normalizer.Normalize(rows)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", query, err)
	}

	report := &CompareReport{Listed: len(order), Articles: len(normalized), OutputPath: outPath}
	returned := make(map[string]bool, len(normalized))
	for _, r := range normalized {
		returned[r.ArticleID] = true
		if listed[r.ArticleID] {
			report.Matched++
		}
	}
	for _, id := range order {
		if !returned[id] {
			report.NotInQuery = append(report.NotInQuery, id)
		}
	}

	if err := csvio.WriteCompare(outPath, normalized, listed); err != nil {
		return nil, fmt.Errorf("write comparison: %w", err)
	}
	o.logger.Info("id comparison written",
		"query", query,
		"path", outPath,
		"listed", report.Listed,
		"matched", report.Matched,
		"not_in_query", len(report.NotInQuery),
	)
	return report, nil
}
