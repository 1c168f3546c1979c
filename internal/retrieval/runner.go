package retrieval

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/newsfuse/internal/config"
	"github.com/dshills/newsfuse/internal/csvio"
	"github.com/dshills/newsfuse/internal/embedder"
	"github.com/dshills/newsfuse/internal/metrics"
	"github.com/dshills/newsfuse/pkg/types"
)

// Oracle is the similarity search over the vector index
type Oracle interface {
	Search(ctx context.Context, vector []float32, k int, exact bool) ([]types.Match, error)
}

// RunnerConfig holds the retrieval settings of a run
type RunnerConfig struct {
	SearchK     int
	Exact       bool
	Workers     int
	QueryPrefix string // prepended to the query text before embedding
	SourcePath  string // intermediate files are <SourcePath>_<name>.csv
}

// RunnerConfigFrom extracts the retrieval settings from cfg
func RunnerConfigFrom(cfg *config.Config) RunnerConfig {
	return RunnerConfig{
		SearchK:     cfg.SearchK,
		Exact:       cfg.Exact,
		Workers:     cfg.Workers,
		QueryPrefix: cfg.Embedding.QueryPrefix,
		SourcePath:  cfg.SourcePath,
	}
}

// Runner retrieves every configured query into its intermediate file
type Runner struct {
	embedder embedder.Embedder
	oracle   Oracle
	batcher  *Batcher
	cfg      RunnerConfig
	opts     options
}

// QueryResult describes the retrieval of one query
type QueryResult struct {
	Query    string
	Path     string
	Matches  int
	Batches  int
	Rows     int
	Duration time.Duration
}

// Statistics describes a whole retrieval run
type Statistics struct {
	Queries  []QueryResult // in configured query order
	Duration time.Duration
}

// NewRunner creates a Runner
func NewRunner(emb embedder.Embedder, oracle Oracle, batcher *Batcher, cfg RunnerConfig, opts ...Option) *Runner {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	return &Runner{
		embedder: emb,
		oracle:   oracle,
		batcher:  batcher,
		cfg:      cfg,
		opts:     applyOptions(opts),
	}
}

// Run retrieves all queries, at most Workers at a time. The first failure
// cancels the remaining queries and is returned.
func (r *Runner) Run(ctx context.Context, queries []config.Query) (*Statistics, error) {
	start := time.Now()
	results := make([]QueryResult, len(queries))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Workers)
	for i, q := range queries {
		g.Go(func() error {
			res, err := r.RunQuery(gctx, q)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &Statistics{Queries: results, Duration: time.Since(start)}, nil
}

// RunQuery embeds, searches, joins and writes a single query
func (r *Runner) RunQuery(ctx context.Context, q config.Query) (QueryResult, error) {
	start := time.Now()
	logger := r.opts.logger.With("query", q.Name)
	res := QueryResult{Query: q.Name, Path: csvio.IntermediatePath(r.cfg.SourcePath, q.Name)}

	began := time.Now()
	emb, err := r.embedder.GenerateEmbedding(ctx, embedder.EmbeddingRequest{Text: r.cfg.QueryPrefix + q.Text})
	if err != nil {
		return res, fmt.Errorf("embed query %s: %w", q.Name, err)
	}
	r.opts.metrics.ObserveStage(metrics.StageEmbed, began)

	began = time.Now()
	matches, err := r.oracle.Search(ctx, emb.Vector, r.cfg.SearchK, r.cfg.Exact)
	if err != nil {
		if !errors.Is(err, types.ErrOracleFailure) {
			err = fmt.Errorf("%w: %w", types.ErrOracleFailure, err)
		}
		return res, fmt.Errorf("search query %s: %w", q.Name, err)
	}
	r.opts.metrics.ObserveStage(metrics.StageSearch, began)
	res.Matches = len(matches)
	logger.Info("semantic search done", "matches", len(matches), "exact", r.cfg.Exact)

	rows, stats, err := r.batcher.Retrieve(ctx, q.Name, matches)
	if err != nil {
		return res, err
	}
	res.Batches = stats.Batches
	res.Rows = len(rows)

	for i := range rows {
		rows[i].QueryString = q.Text
		rows[i].QueryName = q.Name
	}

	began = time.Now()
	if err := csvio.WriteIntermediate(res.Path, rows); err != nil {
		return res, fmt.Errorf("write results of query %s: %w", q.Name, err)
	}
	r.opts.metrics.ObserveStage(metrics.StageWrite, began)

	res.Duration = time.Since(start)
	logger.Info("query retrieved",
		"path", res.Path,
		"rows", res.Rows,
		"batches", res.Batches,
		"duration", res.Duration,
	)
	return res, nil
}
