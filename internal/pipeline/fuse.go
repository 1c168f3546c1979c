package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dshills/newsfuse/internal/config"
	"github.com/dshills/newsfuse/internal/csvio"
	"github.com/dshills/newsfuse/internal/fusion"
	"github.com/dshills/newsfuse/internal/metrics"
	"github.com/dshills/newsfuse/pkg/types"
)

// Report summarizes a fuse run
type Report struct {
	Loaded      []string // queries that contributed, in configured order
	Skipped     []string // queries without an intermediate file
	RowsSkipped int      // malformed rows left out while reading
	Candidates  int
	OutputPath  string
	Duration    time.Duration
}

// queryResult is the fused view of one query
type queryResult struct {
	ranked []types.RankedRow
	topK   []types.RankedRow
}

// Fuse builds the master candidate list from the intermediate files of every
// configured query. A query whose file is missing is skipped and contributes
// no columns. Only the intermediate files are read.
func Fuse(ctx context.Context, cfg *config.Config, opts ...Option) (*Report, error) {
	o := applyOptions(opts)
	start := time.Now()

	normalizer, err := fusion.NewNormalizer(cfg.StartYear, cfg.EndYear, o.base)
	if err != nil {
		return nil, err
	}

	report := &Report{OutputPath: csvio.MasterPath(cfg.OutputPath, cfg.RunLabel, cfg.StartYear, cfg.EndYear, cfg.K)}
	topK := make(map[string][]types.RankedRow)
	ranked := make(map[string][]types.RankedRow)
	topKRows := 0

	for _, name := range cfg.QueryNames() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		res, skipped, err := loadQuery(name, cfg, normalizer, &o)
		if errors.Is(err, types.ErrMissingSourceFile) {
			o.logger.Warn("missing source file, skipping query",
				"query", name,
				"path", csvio.IntermediatePath(cfg.SourcePath, name),
			)
			o.metrics.IncQueriesSkipped(metrics.ReasonMissingFile)
			report.Skipped = append(report.Skipped, name)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("query %s: %w", name, err)
		}

		report.RowsSkipped += skipped
		report.Loaded = append(report.Loaded, name)
		ranked[name] = res.ranked
		topK[name] = res.topK
		topKRows += len(res.topK)
	}

	began := time.Now()
	candidates, err := fusion.Aggregate(report.Loaded, topK, ranked)
	if err != nil {
		return nil, err
	}
	o.metrics.ObserveStage(metrics.StageAggregate, began)
	o.logger.Info("deduplicated top-k union",
		"removed", topKRows-len(candidates),
		"remaining", len(candidates),
	)
	if len(report.Loaded) == 0 {
		o.logger.Warn("no query results loaded, master list is empty")
	}

	began = time.Now()
	if err := csvio.WriteMaster(report.OutputPath, report.Loaded, candidates); err != nil {
		return nil, fmt.Errorf("write master list: %w", err)
	}
	o.metrics.ObserveStage(metrics.StageWrite, began)
	o.metrics.AddCandidates(len(candidates))

	report.Candidates = len(candidates)
	report.Duration = time.Since(start)
	o.logger.Info("master list written",
		"path", report.OutputPath,
		"candidates", report.Candidates,
		"loaded", len(report.Loaded),
		"skipped", len(report.Skipped),
		"duration", report.Duration,
	)
	return report, nil
}

// loadQuery reads, normalizes, ranks and truncates one query
func loadQuery(name string, cfg *config.Config, normalizer *fusion.Normalizer, o *options) (queryResult, int, error) {
	logger := o.logger.With("query", name)

	rows, readStats, err := csvio.ReadIntermediate(csvio.IntermediatePath(cfg.SourcePath, name), name, logger)
	if err != nil {
		return queryResult{}, 0, err
	}
	o.metrics.AddRowsDropped(metrics.ReasonMalformedRow, readStats.Skipped)

	began := time.Now()
	normalized, nstats, err := normalizer.Normalize(rows)
	if err != nil {
		return queryResult{}, readStats.Skipped, err
	}
	o.metrics.ObserveStage(metrics.StageNormalize, began)
	o.metrics.AddRowsDropped(metrics.ReasonEmptyID, nstats.EmptyID)
	o.metrics.AddRowsDropped(metrics.ReasonOutOfRange, nstats.OutOfRange)
	o.metrics.AddRowsDropped(metrics.ReasonNoNUTS, nstats.NoNUTS)

	filtered := fusion.FilterMaxDistance(normalized, cfg.MaxDistance)
	o.metrics.AddRowsDropped(metrics.ReasonDistance, len(normalized)-len(filtered))

	res := queryResult{ranked: fusion.Rank(filtered)}
	res.topK = fusion.TopK(res.ranked, cfg.K)

	logger.Info("query loaded",
		"rows", len(rows),
		"skipped_rows", readStats.Skipped,
		"articles", len(normalized),
		"ranked", len(res.ranked),
		"top_k", len(res.topK),
	)
	return res, readStats.Skipped, nil
}
