package types

import "errors"

// Job-level error taxonomy
var (
	// ErrMissingSourceFile marks an absent per-query intermediate file. The query is skipped.
	ErrMissingSourceFile = errors.New("missing source file")

	// ErrMalformedRecord marks a row that could not be parsed.
	ErrMalformedRecord = errors.New("malformed record")

	// ErrStoreFailure wraps any relational store connectivity or query failure.
	ErrStoreFailure = errors.New("relational store failure")

	// ErrOracleFailure wraps any similarity search failure.
	ErrOracleFailure = errors.New("similarity oracle failure")
)

// Validation errors for domain types
var (
	ErrEmptyArticleID = errors.New("article id cannot be empty")
	ErrEmptyNUTSSet   = errors.New("NUTS set cannot be empty")
	ErrInvalidNUTS    = errors.New("NUTS code must start with " + NUTSCountryPrefix)
	ErrInvalidRank    = errors.New("rank must be >= 1")
	ErrInvalidScores  = errors.New("per-query scores must carry both distance and rank")
)
