package fusion

import (
	"sort"

	"github.com/dshills/newsfuse/pkg/types"
)

// Rank sorts rows by ascending distance and assigns minimum ranks: a row's
// rank is 1 + the number of rows with a strictly smaller distance. Equal
// distances compare exactly. The sort is stable, so rows with tied distances
// keep their input order.
func Rank(rows []types.QueryResultRow) []types.RankedRow {
	ranked := make([]types.RankedRow, len(rows))
	for i, r := range rows {
		ranked[i] = types.RankedRow{QueryResultRow: r}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Distance < ranked[j].Distance
	})

	rank := 1
	for i := range ranked {
		if i > 0 && ranked[i].Distance > ranked[i-1].Distance {
			rank = i + 1
		}
		ranked[i].Rank = rank
	}
	return ranked
}

// TopK returns the k lowest-distance rows. Fewer than k rows are returned
// whole; k <= 0 returns none.
func TopK(rows []types.RankedRow, k int) []types.RankedRow {
	if k <= 0 {
		return []types.RankedRow{}
	}

	sorted := make([]types.RankedRow, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Distance < sorted[j].Distance
	})

	if len(sorted) > k {
		sorted = sorted[:k]
	}
	return sorted
}

// FilterMaxDistance keeps rows with distance <= maxDistance. A maxDistance of
// zero or less disables the filter.
func FilterMaxDistance(rows []types.QueryResultRow, maxDistance float64) []types.QueryResultRow {
	if maxDistance <= 0 {
		return rows
	}
	out := make([]types.QueryResultRow, 0, len(rows))
	for _, r := range rows {
		if r.Distance <= maxDistance {
			out = append(out, r)
		}
	}
	return out
}
