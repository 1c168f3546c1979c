// Package types provides shared type definitions for the newsfuse retrieval job.
//
// The types follow the data as it moves through the job:
//
//	Match          (key, distance) pair returned by the similarity oracle
//	JoinedRow      one article x location row joined from the relational store
//	QueryResultRow one row per article per query after date filtering and NUTS collapse
//	RankedRow      QueryResultRow plus its tie-aware rank
//	MasterCandidate one deduplicated article in the fused output with per-query scores
//
// # Article identifiers
//
// Article ids are opaque strings. They are never converted to numbers, since the
// store carries ids larger than a float64 can represent exactly. CompareIDs gives a
// numeric-aware ordering for digit-only ids without any conversion:
//
//	types.CompareIDs("9", "10")   // -1
//	types.CompareIDs("a1", "a10") // -1 (plain string order)
//
// # Distances
//
// Distances are cosine distances (1 - cosine similarity), lower is more similar.
// The oracle reports float32 values; WidenDistance converts them to the float64
// value that a CSV round trip produces, so in-memory and on-disk ties agree.
package types
