package pipeline

import (
	"context"

	"github.com/dshills/newsfuse/internal/config"
	"github.com/dshills/newsfuse/internal/embedder"
	"github.com/dshills/newsfuse/internal/retrieval"
)

// Backend is a store that also answers similarity searches
type Backend interface {
	retrieval.Store
	retrieval.Oracle
}

// Retrieve runs retrieval for every configured query and writes the
// intermediate files.
func Retrieve(ctx context.Context, cfg *config.Config, backend Backend, emb embedder.Embedder, opts ...Option) (*retrieval.Statistics, error) {
	o := applyOptions(opts)
	ropts := []retrieval.Option{
		retrieval.WithLogger(o.base),
		retrieval.WithMetrics(o.metrics),
	}

	batcher, err := retrieval.NewBatcher(backend, cfg.BatchSize, ropts...)
	if err != nil {
		return nil, err
	}
	runner := retrieval.NewRunner(emb, backend, batcher, retrieval.RunnerConfigFrom(cfg), ropts...)
	return runner.Run(ctx, cfg.Queries)
}
