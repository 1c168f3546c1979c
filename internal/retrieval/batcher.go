package retrieval

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dshills/newsfuse/internal/config"
	"github.com/dshills/newsfuse/internal/metrics"
	"github.com/dshills/newsfuse/pkg/types"
)

// Store is the relational store as seen by the Batcher
type Store interface {
	JoinByVectorKeys(ctx context.Context, keys []string) ([]types.JoinedRow, error)
	MaxParams() int
}

// Batcher joins match lists against a Store in bounded batches
type Batcher struct {
	store     Store
	batchSize int
	opts      options
}

// BatchStats describes one retrieval
type BatchStats struct {
	Matches    int // matches received
	Duplicates int // repeated keys dropped before batching
	Batches    int
	Rows       int
}

// NewBatcher returns a Batcher issuing at most batchSize keys per query
func NewBatcher(store Store, batchSize int, opts ...Option) (*Batcher, error) {
	if batchSize <= 0 {
		return nil, fmt.Errorf("%w: %d", config.ErrInvalidBatchSize, batchSize)
	}
	if limit := store.MaxParams(); limit > 0 && batchSize > limit {
		return nil, fmt.Errorf("%w: %d > %d", config.ErrBatchSizeExceedsLimit, batchSize, limit)
	}
	return &Batcher{store: store, batchSize: batchSize, opts: applyOptions(opts)}, nil
}

// BatchSize returns the configured batch size
func (b *Batcher) BatchSize() int {
	return b.batchSize
}

// Retrieve joins matches against the store. Keys are de-duplicated first,
// keeping the first occurrence, then split into contiguous batches in match
// order. Keys the store does not know yield no rows. Any store error aborts
// the retrieval and no rows are returned.
func (b *Batcher) Retrieve(ctx context.Context, query string, matches []types.Match) ([]types.JoinedRow, BatchStats, error) {
	stats := BatchStats{Matches: len(matches)}
	unique := dedupeMatches(matches)
	stats.Duplicates = len(matches) - len(unique)
	if stats.Duplicates > 0 {
		b.opts.logger.Warn("oracle returned duplicate keys",
			"query", query,
			"duplicates", stats.Duplicates,
		)
	}
	if len(unique) == 0 {
		return []types.JoinedRow{}, stats, nil
	}

	total := (len(unique)-1)/b.batchSize + 1
	var out []types.JoinedRow
	for start := 0; start < len(unique); start += b.batchSize {
		end := min(start+b.batchSize, len(unique))
		batch := unique[start:end]

		began := time.Now()
		rows, err := b.joinBatch(ctx, batch)
		if err != nil {
			return nil, stats, fmt.Errorf("batch %d/%d of query %s: %w", stats.Batches+1, total, query, err)
		}
		b.opts.metrics.ObserveStage(metrics.StageJoin, began)
		b.opts.metrics.ObserveBatch(query, len(rows))

		stats.Batches++
		stats.Rows += len(rows)
		out = append(out, rows...)

		b.opts.logger.Info("batch complete",
			"query", query,
			"batch", stats.Batches,
			"batches", total,
			"rows", len(rows),
		)
	}
	return out, stats, nil
}

func (b *Batcher) joinBatch(ctx context.Context, batch []types.Match) ([]types.JoinedRow, error) {
	keys := make([]string, len(batch))
	distances := make(map[string]float64, len(batch))
	for i, m := range batch {
		keys[i] = m.Key
		distances[m.Key] = types.WidenDistance(m.Distance)
	}

	rows, err := b.store.JoinByVectorKeys(ctx, keys)
	if err != nil {
		if !errors.Is(err, types.ErrStoreFailure) {
			err = fmt.Errorf("%w: %w", types.ErrStoreFailure, err)
		}
		return nil, err
	}

	for i := range rows {
		d, ok := distances[rows[i].HashedID]
		if !ok {
			return nil, fmt.Errorf("%w: store returned key %q outside the batch", types.ErrStoreFailure, rows[i].HashedID)
		}
		rows[i].Distance = d
	}
	return rows, nil
}

func dedupeMatches(matches []types.Match) []types.Match {
	seen := make(map[string]struct{}, len(matches))
	out := make([]types.Match, 0, len(matches))
	for _, m := range matches {
		if _, ok := seen[m.Key]; ok {
			continue
		}
		seen[m.Key] = struct{}{}
		out = append(out, m)
	}
	return out
}
