package types

import (
	"errors"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompareIDs(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want int
	}{
		{"equal", "42", "42", 0},
		{"numeric shorter first", "9", "10", -1},
		{"numeric longer last", "100", "99", 1},
		{"same length digits", "123", "124", -1},
		{"leading zeros", "007", "7", 1},
		{"leading zeros padded last", "07", "007", -1},
		{"leading zeros before larger", "007", "8", -1},
		{"beyond float64 precision", "9007199254740993", "9007199254740992", 1},
		{"non numeric", "a10", "a9", -1},
		{"mixed", "10", "a", -1},
		{"empty", "", "1", -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CompareIDs(tt.a, tt.b))
			assert.Equal(t, -tt.want, CompareIDs(tt.b, tt.a))
		})
	}
}

func TestWidenDistance(t *testing.T) {
	for _, d := range []float32{0, 0.1, 0.2, 0.225, 0.33333334, 1.9999999} {
		got := WidenDistance(d)
		roundTrip, err := strconv.ParseFloat(FormatDistance(got), 64)
		require.NoError(t, err)
		assert.Equal(t, got, roundTrip)
		assert.Equal(t, d, float32(got))
	}
	assert.Equal(t, 0.1, WidenDistance(0.1))
}

func TestQueryResultRowValidate(t *testing.T) {
	row := QueryResultRow{ArticleID: "1", NUTS: []string{"DE1", "DE2"}}
	require.NoError(t, row.Validate())
	assert.Equal(t, "DE1, DE2", row.NUTSString())

	row.NUTS = nil
	assert.True(t, errors.Is(row.Validate(), ErrEmptyNUTSSet))

	row.NUTS = []string{"FR1"}
	assert.ErrorIs(t, row.Validate(), ErrInvalidNUTS)

	row.ArticleID = ""
	assert.ErrorIs(t, row.Validate(), ErrEmptyArticleID)
}

func TestMasterCandidate(t *testing.T) {
	c := MasterCandidate{
		ArticleID: "1",
		Rank:      1,
		Scores:    map[string]QueryScore{"A": {Distance: 0.1, Rank: 1}},
	}
	require.NoError(t, c.Validate())

	s, ok := c.Score("A")
	assert.True(t, ok)
	assert.Equal(t, 0.1, s.Distance)
	_, ok = c.Score("B")
	assert.False(t, ok)

	c.Scores["B"] = QueryScore{Distance: 0.2}
	assert.ErrorIs(t, c.Validate(), ErrInvalidScores)

	c.Rank = 0
	assert.ErrorIs(t, c.Validate(), ErrInvalidRank)
}
