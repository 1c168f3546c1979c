package types

import "strings"

// NUTSCountryPrefix is the country prefix retained when collapsing NUTS codes.
const NUTSCountryPrefix = "DE"

// Match is a single similarity search hit
type Match struct {
	Key      string  // vector key (hashed_id)
	Distance float32 // cosine distance
}

// Article is the immutable article metadata held by the relational store
type Article struct {
	ID          string
	URL         string
	Hostname    string
	Date        string // publish date as stored
	DateCrawled string
}

// Location is one location linked to an article
type Location struct {
	ArticleID  string
	LocationID int64
	NUTS       string // empty when the store has no code
	Name       string // normalized location name (loc_normal)
	Latitude   *float64
	Longitude  *float64
}

// JoinedRow is one article x vector key x location row from the batched join,
// with the distance of its vector key attached.
type JoinedRow struct {
	Article
	HashedID string
	Location Location
	Distance float64

	// Set when the row is written for a named query
	QueryString string
	QueryName   string
}

// HasNUTSPrefix reports whether code carries the retained country prefix
func HasNUTSPrefix(code string) bool {
	return strings.HasPrefix(code, NUTSCountryPrefix)
}
