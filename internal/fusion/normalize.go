package fusion

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/dshills/newsfuse/pkg/types"
)

// NormalizeStats counts what the Normalizer removed
type NormalizeStats struct {
	InputRows    int
	EmptyID      int // rows without an article id
	OutOfRange   int // rows published outside the year range
	NoNUTS       int // articles left without a DE code
	Inconsistent int // articles whose duplicate rows disagree on attributes
	Articles     int // surviving articles
}

// Normalizer applies the date filter and the per-article NUTS collapse
type Normalizer struct {
	startYear int
	endYear   int
	logger    *slog.Logger
}

// NewNormalizer creates a Normalizer for the inclusive year range
func NewNormalizer(startYear, endYear int, logger *slog.Logger) (*Normalizer, error) {
	if startYear > endYear {
		return nil, fmt.Errorf("invalid year range %d-%d", startYear, endYear)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Normalizer{
		startYear: startYear,
		endYear:   endYear,
		logger:    logger.With("component", "normalizer"),
	}, nil
}

// articleAcc accumulates the rows of one article
type articleAcc struct {
	first        types.JoinedRow
	rep          types.JoinedRow
	published    time.Time
	codes        map[string]struct{}
	inconsistent bool
}

// Normalize filters rows to the year range and collapses them to one row per
// article. The representative row of an article is the one with the smallest
// NUTS code; ties fall through to location id, url, hostname, date, distance,
// hashed id and crawl date, so input order never changes the pick. Output is
// ordered by article id.
// A publish date that cannot be parsed fails the whole call.
func (n *Normalizer) Normalize(rows []types.JoinedRow) ([]types.QueryResultRow, NormalizeStats, error) {
	stats := NormalizeStats{InputRows: len(rows)}
	groups := make(map[string]*articleAcc)
	var ids []string

	for pos, row := range rows {
		if row.ID == "" {
			stats.EmptyID++
			continue
		}

		published, err := ParseDate(row.Date)
		if err != nil {
			return nil, stats, fmt.Errorf("%w: row %d (article %s): %w", types.ErrMalformedRecord, pos, row.ID, err)
		}
		if !InYearRange(published, n.startYear, n.endYear) {
			stats.OutOfRange++
			continue
		}

		code := strings.TrimSpace(row.Location.NUTS)
		acc, ok := groups[row.ID]
		if !ok {
			acc = &articleAcc{first: row, rep: row, published: published, codes: make(map[string]struct{})}
			groups[row.ID] = acc
			ids = append(ids, row.ID)
		} else {
			if !sameAttributes(acc.first, row) {
				acc.inconsistent = true
			}
			if repLess(row, acc.rep) {
				acc.rep = row
				acc.published = published
			}
		}
		if types.HasNUTSPrefix(code) {
			acc.codes[code] = struct{}{}
		}
	}

	sort.Slice(ids, func(i, j int) bool { return types.CompareIDs(ids[i], ids[j]) < 0 })

	out := make([]types.QueryResultRow, 0, len(ids))
	for _, id := range ids {
		acc := groups[id]
		if acc.inconsistent {
			stats.Inconsistent++
			n.logger.Warn("duplicate rows disagree on article attributes",
				"article_id", id,
				"query", acc.rep.QueryName,
				"kept_nuts", acc.rep.Location.NUTS)
		}
		if len(acc.codes) == 0 {
			stats.NoNUTS++
			continue
		}

		codes := make([]string, 0, len(acc.codes))
		for c := range acc.codes {
			codes = append(codes, c)
		}
		sort.Strings(codes)

		rep := acc.rep
		out = append(out, types.QueryResultRow{
			ArticleID:   rep.ID,
			URL:         rep.URL,
			Hostname:    rep.Hostname,
			Date:        rep.Date,
			PublishedAt: acc.published,
			HashedID:    rep.HashedID,
			DateCrawled: rep.DateCrawled,
			NUTS:        codes,
			Distance:    rep.Distance,
			QueryName:   rep.QueryName,
		})
	}
	stats.Articles = len(out)

	n.logger.Debug("normalized rows",
		"rows", stats.InputRows,
		"articles", stats.Articles,
		"out_of_range", stats.OutOfRange,
		"no_nuts", stats.NoNUTS,
		"empty_id", stats.EmptyID)

	return out, stats, nil
}

// sameAttributes reports whether two rows of one article agree on the fields
// carried into the collapsed row
func sameAttributes(a, b types.JoinedRow) bool {
	return a.URL == b.URL &&
		a.Hostname == b.Hostname &&
		a.Date == b.Date &&
		a.Distance == b.Distance
}

// repLess orders candidate representative rows of one article
func repLess(a, b types.JoinedRow) bool {
	if ca, cb := strings.TrimSpace(a.Location.NUTS), strings.TrimSpace(b.Location.NUTS); ca != cb {
		return ca < cb
	}
	if a.Location.LocationID != b.Location.LocationID {
		return a.Location.LocationID < b.Location.LocationID
	}
	if a.URL != b.URL {
		return a.URL < b.URL
	}
	if a.Hostname != b.Hostname {
		return a.Hostname < b.Hostname
	}
	if a.Date != b.Date {
		return a.Date < b.Date
	}
	if a.Distance != b.Distance {
		return a.Distance < b.Distance
	}
	if a.HashedID != b.HashedID {
		return a.HashedID < b.HashedID
	}
	return a.DateCrawled < b.DateCrawled
}
