package fusion

import (
	"bytes"
	"log/slog"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/newsfuse/pkg/types"
)

func joined(id, date, nuts string, dist float64) types.JoinedRow {
	return types.JoinedRow{
		Article: types.Article{
			ID:       id,
			URL:      "https://example.de/" + id,
			Hostname: "example.de",
			Date:     date,
		},
		HashedID:  "h" + id,
		Location:  types.Location{ArticleID: id, NUTS: nuts},
		Distance:  dist,
		QueryName: "A",
	}
}

func newTestNormalizer(t *testing.T, start, end int) (*Normalizer, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	n, err := NewNormalizer(start, end, logger)
	require.NoError(t, err)
	return n, &buf
}

func TestNewNormalizer_InvalidRange(t *testing.T) {
	_, err := NewNormalizer(2024, 2017, nil)
	assert.Error(t, err)
}

func TestNormalize_CollapsesNUTS(t *testing.T) {
	n, _ := newTestNormalizer(t, 2017, 2023)

	rows := []types.JoinedRow{
		joined("1", "2020-03-01", "DE212", 0.1),
		joined("1", "2020-03-01", "DE111", 0.1),
		joined("1", "2020-03-01", "DE212", 0.1),
		joined("1", "2020-03-01", "AT130", 0.1),
		joined("1", "2020-03-01", "", 0.1),
	}

	out, stats, err := n.Normalize(rows)
	require.NoError(t, err)
	require.Len(t, out, 1)

	assert.Equal(t, []string{"DE111", "DE212"}, out[0].NUTS)
	assert.Equal(t, "DE111, DE212", out[0].NUTSString())
	assert.Equal(t, 2020, out[0].PublishedAt.Year())
	assert.Equal(t, "2020-03-01", out[0].Date)
	assert.Equal(t, 1, stats.Articles)
	assert.Zero(t, stats.Inconsistent)
}

func TestNormalize_DropsArticlesWithoutDECode(t *testing.T) {
	n, _ := newTestNormalizer(t, 2017, 2023)

	rows := []types.JoinedRow{
		joined("1", "2020-03-01", "FR101", 0.1),
		joined("1", "2020-03-01", "", 0.1),
		joined("2", "2020-03-01", "DE300", 0.2),
	}

	out, stats, err := n.Normalize(rows)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "2", out[0].ArticleID)
	assert.Equal(t, 1, stats.NoNUTS)
}

func TestNormalize_DateFilter(t *testing.T) {
	n, _ := newTestNormalizer(t, 2018, 2020)

	rows := []types.JoinedRow{
		joined("1", "2017-12-31T23:59:59Z", "DE1", 0.1),
		joined("2", "2018-01-01", "DE1", 0.1),
		joined("3", "2020-12-31 23:59:59", "DE1", 0.1),
		joined("4", "2021-01-01T00:00:00+01:00", "DE1", 0.1),
		joined("5", "2019-06-15T10:00:00.123456", "DE1", 0.1),
	}

	out, stats, err := n.Normalize(rows)
	require.NoError(t, err)

	ids := make([]string, len(out))
	for i, r := range out {
		ids[i] = r.ArticleID
		assert.GreaterOrEqual(t, r.PublishedAt.Year(), 2018)
		assert.LessOrEqual(t, r.PublishedAt.Year(), 2020)
	}
	assert.Equal(t, []string{"2", "3", "5"}, ids)
	assert.Equal(t, 2, stats.OutOfRange)
}

func TestNormalize_UnparseableDateIsFatal(t *testing.T) {
	n, _ := newTestNormalizer(t, 2017, 2023)

	rows := []types.JoinedRow{
		joined("1", "2020-03-01", "DE1", 0.1),
		joined("2", "last tuesday", "DE1", 0.1),
	}

	_, _, err := n.Normalize(rows)
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrMalformedRecord)
	assert.Contains(t, err.Error(), "row 1")
}

func TestNormalize_DropsEmptyID(t *testing.T) {
	n, _ := newTestNormalizer(t, 2017, 2023)

	rows := []types.JoinedRow{
		joined("", "not a date", "DE1", 0.1),
		joined("9", "2020-03-01", "DE1", 0.1),
	}

	out, stats, err := n.Normalize(rows)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, 1, stats.EmptyID)
}

func TestNormalize_OrderedByNumericID(t *testing.T) {
	n, _ := newTestNormalizer(t, 2017, 2023)

	rows := []types.JoinedRow{
		joined("100", "2020-01-01", "DE1", 0.3),
		joined("9", "2020-01-01", "DE1", 0.2),
		joined("10", "2020-01-01", "DE1", 0.1),
		joined("9007199254740993", "2020-01-01", "DE1", 0.1),
	}

	out, _, err := n.Normalize(rows)
	require.NoError(t, err)

	ids := make([]string, len(out))
	for i, r := range out {
		ids[i] = r.ArticleID
	}
	assert.Equal(t, []string{"9", "10", "100", "9007199254740993"}, ids)
}

func TestNormalize_InconsistentDuplicates(t *testing.T) {
	n, logs := newTestNormalizer(t, 2017, 2023)

	a := joined("1", "2020-01-01", "DE9", 0.1)
	b := joined("1", "2020-01-01", "DE2", 0.1)
	b.URL = "https://mirror.de/1"
	c := joined("1", "2020-01-01", "DE5", 0.1)

	// The representative is the row with the smallest code regardless of input order
	for _, rows := range [][]types.JoinedRow{{a, b, c}, {c, b, a}, {b, a, c}} {
		out, stats, err := n.Normalize(rows)
		require.NoError(t, err)
		require.Len(t, out, 1)
		assert.Equal(t, "https://mirror.de/1", out[0].URL)
		assert.Equal(t, []string{"DE2", "DE5", "DE9"}, out[0].NUTS)
		assert.Equal(t, 1, stats.Inconsistent)
	}
	assert.True(t, strings.Contains(logs.String(), "disagree"))
}

func TestNormalize_SameCodeTieIgnoresOrder(t *testing.T) {
	n, _ := newTestNormalizer(t, 2017, 2023)

	a := joined("1", "2020-01-01", "DE2", 0.1)
	a.URL = "https://zeitung.de/1"
	b := joined("1", "2020-01-01", "DE2", 0.2)
	b.URL = "https://archiv.de/1"
	c := joined("1", "2020-01-01", "DE2", 0.1)
	c.Location.LocationID = 7
	d := joined("1", "2020-01-01", "DE5", 0.05)

	rng := rand.New(rand.NewSource(1))
	rows := []types.JoinedRow{a, b, c, d}
	for i := 0; i < 50; i++ {
		rng.Shuffle(len(rows), func(i, j int) { rows[i], rows[j] = rows[j], rows[i] })
		out, _, err := n.Normalize(rows)
		require.NoError(t, err)
		require.Len(t, out, 1)
		assert.Equal(t, "https://archiv.de/1", out[0].URL)
		assert.Equal(t, 0.2, out[0].Distance)
		assert.Equal(t, []string{"DE2", "DE5"}, out[0].NUTS)
	}
}

func TestRepLess_LocationIDBeforeURL(t *testing.T) {
	a := joined("1", "2020-01-01", "DE2", 0.1)
	a.URL = "https://b.de/1"
	a.Location.LocationID = 1
	b := joined("1", "2020-01-01", "DE2", 0.1)
	b.URL = "https://a.de/1"
	b.Location.LocationID = 2

	assert.True(t, repLess(a, b))
	assert.False(t, repLess(b, a))
	assert.False(t, repLess(a, a))
}

func TestNormalize_NUTSLaw(t *testing.T) {
	n, _ := newTestNormalizer(t, 2017, 2023)

	codes := []string{"DE3", "DEA", "PL1", "DE3", "DE1", "", "de2", "DE"}
	var rows []types.JoinedRow
	for i := 0; i < 40; i++ {
		id := string(rune('a' + i%7))
		rows = append(rows, joined(id, "2019-05-05", codes[i%len(codes)], float64(i%5)/10))
	}

	out, _, err := n.Normalize(rows)
	require.NoError(t, err)
	require.NotEmpty(t, out)

	seen := map[string]bool{}
	for _, r := range out {
		require.NoError(t, r.Validate())
		assert.False(t, seen[r.ArticleID], "article ids are unique")
		seen[r.ArticleID] = true
		for i := 1; i < len(r.NUTS); i++ {
			assert.Less(t, r.NUTS[i-1], r.NUTS[i], "sorted without duplicates")
		}
	}
}
