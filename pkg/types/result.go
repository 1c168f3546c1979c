package types

import (
	"strings"
	"time"
)

// NUTSSeparator joins the codes of a collapsed NUTS set
const NUTSSeparator = ", "

// QueryResultRow is one article within one query's filtered result set
type QueryResultRow struct {
	ArticleID   string
	URL         string
	Hostname    string
	Date        string    // publish date as read
	PublishedAt time.Time // parsed publish date
	HashedID    string
	DateCrawled string
	NUTS        []string // sorted, unique, all DE-prefixed
	Distance    float64
	QueryName   string
}

// NUTSString returns the collapsed NUTS set as written to CSV
func (r *QueryResultRow) NUTSString() string {
	return strings.Join(r.NUTS, NUTSSeparator)
}

// Validate checks the post-collapse invariants of a row
func (r *QueryResultRow) Validate() error {
	if r.ArticleID == "" {
		return ErrEmptyArticleID
	}
	if len(r.NUTS) == 0 {
		return ErrEmptyNUTSSet
	}
	for _, code := range r.NUTS {
		if !HasNUTSPrefix(code) {
			return ErrInvalidNUTS
		}
	}
	return nil
}

// RankedRow is a QueryResultRow with its tie-aware rank (1-based)
type RankedRow struct {
	QueryResultRow
	Rank int
}

// QueryScore is one query's distance and rank for a candidate
type QueryScore struct {
	Distance float64
	Rank     int
}

// MasterCandidate is one deduplicated article in the fused candidate list
type MasterCandidate struct {
	ArticleID string
	Hostname  string
	Date      string
	URL       string
	NUTS      []string

	// Rank within the query that first contributed this article
	Rank          int
	DefiningQuery string

	// Scores holds an entry only for queries whose ranked set contains the article
	Scores map[string]QueryScore
}

// Score returns the distance and rank recorded for query, if any
func (c *MasterCandidate) Score(query string) (QueryScore, bool) {
	s, ok := c.Scores[query]
	return s, ok
}

// Validate checks the candidate invariants
func (c *MasterCandidate) Validate() error {
	if c.ArticleID == "" {
		return ErrEmptyArticleID
	}
	if c.Rank < 1 {
		return ErrInvalidRank
	}
	for _, s := range c.Scores {
		if s.Rank < 1 {
			return ErrInvalidScores
		}
	}
	return nil
}
