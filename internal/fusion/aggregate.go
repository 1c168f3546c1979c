package fusion

import (
	"fmt"

	"github.com/dshills/newsfuse/pkg/types"
)

// Union concatenates the top-k sets in the given query order and keeps the
// first occurrence of every article id. The kept row supplies the candidate's
// url, hostname, date, NUTS set and rank.
func Union(order []string, topK map[string][]types.RankedRow) []types.MasterCandidate {
	var all []types.MasterCandidate
	for _, name := range order {
		for _, r := range topK[name] {
			all = append(all, types.MasterCandidate{
				ArticleID:     r.ArticleID,
				Hostname:      r.Hostname,
				Date:          r.Date,
				URL:           r.URL,
				NUTS:          r.NUTS,
				Rank:          r.Rank,
				DefiningQuery: name,
			})
		}
	}
	return Dedupe(all)
}

// Dedupe keeps the first candidate of every article id, preserving order
func Dedupe(candidates []types.MasterCandidate) []types.MasterCandidate {
	seen := make(map[string]struct{}, len(candidates))
	out := make([]types.MasterCandidate, 0, len(candidates))
	for _, c := range candidates {
		if _, ok := seen[c.ArticleID]; ok {
			continue
		}
		seen[c.ArticleID] = struct{}{}
		out = append(out, c)
	}
	return out
}

// Attach fills every candidate's per-query scores from the full ranked sets.
// A query whose ranked set lacks the article leaves no entry, so distance and
// rank are always present or absent together.
func Attach(candidates []types.MasterCandidate, order []string, ranked map[string][]types.RankedRow) {
	for _, name := range order {
		index := make(map[string]types.QueryScore, len(ranked[name]))
		for _, r := range ranked[name] {
			if _, ok := index[r.ArticleID]; !ok {
				index[r.ArticleID] = types.QueryScore{Distance: r.Distance, Rank: r.Rank}
			}
		}

		for i := range candidates {
			score, ok := index[candidates[i].ArticleID]
			if !ok {
				continue
			}
			if candidates[i].Scores == nil {
				candidates[i].Scores = make(map[string]types.QueryScore, len(order))
			}
			candidates[i].Scores[name] = score
		}
	}
}

// Aggregate builds the fused candidate list: Union over the top-k sets, then
// Attach from the full ranked sets. Output order is the union order. The
// query order must not repeat a name.
func Aggregate(order []string, topK, ranked map[string][]types.RankedRow) ([]types.MasterCandidate, error) {
	seen := make(map[string]struct{}, len(order))
	for _, name := range order {
		if _, ok := seen[name]; ok {
			return nil, fmt.Errorf("query %q listed twice", name)
		}
		seen[name] = struct{}{}
	}

	candidates := Union(order, topK)
	Attach(candidates, order, ranked)
	return candidates, nil
}
