// Package pipeline wires the job stages together.
//
// Retrieve runs the similarity search and batched join for every configured
// query and writes the intermediate files. Fuse reads them back in configured
// query order, normalizes, ranks and truncates each, then aggregates the
// per-query top-k sets into the master candidate list. Threshold and Summarize
// are the supporting exports used for manual review.
package pipeline
