// Package retrieval turns similarity search results into joined article rows.
//
// The Batcher splits an ordered match list into contiguous batches no larger
// than the store's parameter ceiling, issues one membership query per batch and
// attaches each key's distance to the rows it produced. The Runner drives the
// whole retrieval for a list of named queries: embed, search, batch, and write
// one intermediate CSV per query.
//
// Store and oracle failures are fatal. Nothing is written for a query whose
// retrieval failed.
package retrieval
