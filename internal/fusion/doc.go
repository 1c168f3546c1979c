// Package fusion turns per-query retrieval rows into one fused candidate list.
//
// The stages run per query, in order:
//
//  1. Normalizer: keeps rows published within [startYear, endYear], collapses
//     the per-location duplicates of each article into one row carrying the
//     sorted set of its "DE" NUTS codes, and drops articles left without any.
//  2. Rank: assigns minimum ("competition") ranks by ascending distance, so
//     distances [0.10, 0.10, 0.30] rank [1, 1, 3].
//  3. TopK: keeps the k lowest-distance rows.
//
// Aggregate then unions the top-k sets of all queries in the caller's query
// order, keeps the first occurrence of each article, and attaches every
// query's distance and rank from its full ranked set.
//
// Nothing in this package performs I/O; every stage is a pure function of its
// input apart from logging.
package fusion
