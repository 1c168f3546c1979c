package pipeline

import (
	"context"
	"fmt"

	"github.com/dshills/newsfuse/internal/config"
	"github.com/dshills/newsfuse/internal/csvio"
	"github.com/dshills/newsfuse/internal/fusion"
	"github.com/dshills/newsfuse/internal/storage"
)

// DefaultThreshold is the cosine distance cut used for review exports
const DefaultThreshold = 0.225

// ThresholdReport summarizes a threshold export
type ThresholdReport struct {
	Rows       int // rows read
	Articles   int // articles after collapse and date filter
	Kept       int // articles within the threshold
	OutputPath string
}

// Threshold collapses one query's intermediate file, applies the year range
// and keeps articles with distance <= maxDistance.
func Threshold(ctx context.Context, cfg *config.Config, query, outPath string, maxDistance float64, opts ...Option) (*ThresholdReport, error) {
	o := applyOptions(opts)
	if maxDistance <= 0 {
		return nil, fmt.Errorf("%w: threshold %v", config.ErrInvalidMaxDistance, maxDistance)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
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
	kept := fusion.FilterMaxDistance(normalized, maxDistance)

	if err := csvio.WriteThreshold(outPath, kept); err != nil {
		return nil, fmt.Errorf("write threshold export: %w", err)
	}

	report := &ThresholdReport{Rows: len(rows), Articles: len(normalized), Kept: len(kept), OutputPath: outPath}
	o.logger.Info("threshold export written",
		"query", query,
		"path", outPath,
		"articles", report.Articles,
		"kept", report.Kept,
		"max_distance", maxDistance,
	)
	return report, nil
}

// Summarizer is the store query behind Summarize
type Summarizer interface {
	SummarizeByNUTSMonth(ctx context.Context) ([]storage.MonthlyNUTSCount, error)
}

// Summarize writes the per month and NUTS article counts of the store
func Summarize(ctx context.Context, store Summarizer, outPath string, opts ...Option) (int, error) {
	o := applyOptions(opts)

	counts, err := store.SummarizeByNUTSMonth(ctx)
	if err != nil {
		return 0, err
	}
	if err := csvio.WriteSummary(outPath, counts); err != nil {
		return 0, fmt.Errorf("write summary: %w", err)
	}
	o.logger.Info("summary written", "path", outPath, "rows", len(counts))
	return len(counts), nil
}
