package csvio

import (
	"bytes"
	"encoding/csv"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/newsfuse/internal/storage"
	"github.com/dshills/newsfuse/pkg/types"
)

func ptr(f float64) *float64 { return &f }

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestIntermediateRoundTrip(t *testing.T) {
	path := IntermediatePath(filepath.Join(t.TempDir(), "queries"), "flood")
	assert.True(t, strings.HasSuffix(path, "queries_flood.csv"))

	rows := []types.JoinedRow{
		{
			Article:     types.Article{ID: "1234567890123456789", URL: "https://a.example/1", Hostname: "a.example", Date: "2019-05-01", DateCrawled: "2019-05-02"},
			HashedID:    "h1",
			Location:    types.Location{NUTS: "DE111", Name: "stuttgart", Latitude: ptr(48.77), Longitude: ptr(9.18)},
			Distance:    0.12345678,
			QueryString: "query: Hochwasser",
			QueryName:   "flood",
		},
		{
			Article:     types.Article{ID: "42", URL: "https://b.example/2", Hostname: "b.example", Date: "2020-01-01"},
			HashedID:    "h2",
			Distance:    0.5,
			QueryString: "query: Hochwasser",
			QueryName:   "flood",
		},
	}
	require.NoError(t, WriteIntermediate(path, rows))

	got, stats, err := ReadIntermediate(path, "flood", nil)
	require.NoError(t, err)
	assert.Equal(t, ReadStats{Rows: 2}, stats)
	require.Len(t, got, 2)

	for i := range rows {
		rows[i].Location.ArticleID = rows[i].ID
	}
	assert.Equal(t, rows, got)
	assert.Equal(t, "1234567890123456789", got[0].ID, "ids stay strings")
}

func TestReadIntermediate_MissingFile(t *testing.T) {
	_, _, err := ReadIntermediate(filepath.Join(t.TempDir(), "nope.csv"), "q", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrMissingSourceFile)
}

func TestReadIntermediate_MissingColumn(t *testing.T) {
	path := filepath.Join(t.TempDir(), "q.csv")
	writeFile(t, path, "id,url,hostname,date,NUTS\n1,u,h,2020-01-01,DE1\n")

	_, _, err := ReadIntermediate(path, "q", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrMalformedRecord)
}

func TestReadIntermediate_SkipsMalformedRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "q.csv")
	writeFile(t, path, strings.Join([]string{
		"id,url,hostname,date,NUTS,cos_dist",
		"1,u1,h1,2020-01-01,DE1,0.1",
		"2,u2,h2,2020-01-01,DE2,not-a-number",
		"3,u3,h3,2020-01-01,DE3",
		"4,u4,h4,2020-01-01,DE4,NaN",
		"5,u5,h5,2020-01-01,DE5,0.2",
		"",
	}, "\n"))

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	got, stats, err := ReadIntermediate(path, "q", logger)
	require.NoError(t, err)
	assert.Equal(t, ReadStats{Rows: 2, Skipped: 3}, stats)
	require.Len(t, got, 2)
	assert.Equal(t, "1", got[0].ID)
	assert.Equal(t, "5", got[1].ID)
	assert.Equal(t, "q", got[0].QueryName, "query name filled from caller")

	out := buf.String()
	assert.Contains(t, out, "skipping malformed row")
	assert.Contains(t, out, "line=3")
	assert.Contains(t, out, "line=4")
	assert.Contains(t, out, "line=5")
}

func TestReadIntermediate_HeaderOrderAndBOM(t *testing.T) {
	path := filepath.Join(t.TempDir(), "q.csv")
	writeFile(t, path, "\ufeffcos_dist,NUTS,date,hostname,url,id\n0.25,DE9,2021-03-04,h,u,7\n")

	got, _, err := ReadIntermediate(path, "q", nil)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "7", got[0].ID)
	assert.Equal(t, "DE9", got[0].Location.NUTS)
	assert.Equal(t, 0.25, got[0].Distance)
}

func TestWriteMaster(t *testing.T) {
	path := MasterPath(t.TempDir(), "queries", 2017, 2023, 2)
	assert.True(t, strings.HasSuffix(path, "queries_2017-2023_top2.csv"))

	candidates := []types.MasterCandidate{
		{
			ArticleID: "id1", Hostname: "h1", Date: "2020-01-01", URL: "u1", NUTS: []string{"DE1", "DE2"},
			Rank: 1, DefiningQuery: "A",
			Scores: map[string]types.QueryScore{"A": {Distance: 0.05, Rank: 1}},
		},
		{
			ArticleID: "id2", Hostname: "h2", Date: "2020-01-02", URL: "u2", NUTS: []string{"DE3"},
			Rank: 2, DefiningQuery: "A",
			Scores: map[string]types.QueryScore{"A": {Distance: 0.1, Rank: 2}, "B": {Distance: 0.02, Rank: 1}},
		},
	}
	require.NoError(t, WriteMaster(path, []string{"A", "B"}, candidates))

	want := "id,hostname,date,url,NUTS,cosine_rank,cos_dist_A,cos_rank_A,cos_dist_B,cos_rank_B\n" +
		"id1,h1,2020-01-01,u1,\"DE1, DE2\",1,0.05,1,,\n" +
		"id2,h2,2020-01-02,u2,DE3,2,0.1,2,0.02,1\n"
	assert.Equal(t, want, readFile(t, path))
}

func TestWriteThreshold(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "out.csv")
	rows := []types.QueryResultRow{
		{ArticleID: "9", NUTS: []string{"DE1"}, URL: "u", Hostname: "h", Date: "2018-01-01", Distance: 0.2, HashedID: "k", DateCrawled: "2018-01-02"},
	}
	require.NoError(t, WriteThreshold(path, rows))
	assert.Equal(t,
		"id,NUTS,url,hostname,date,cos_dist,hashed_id,date_crawled\n9,DE1,u,h,2018-01-01,0.2,k,2018-01-02\n",
		readFile(t, path))
}

func TestWriteCompare(t *testing.T) {
	path := filepath.Join(t.TempDir(), "compare.csv")
	rows := []types.QueryResultRow{
		{ArticleID: "9", NUTS: []string{"DE1", "DE2"}, URL: "u", Hostname: "h", Date: "2018-01-01", Distance: 0.2, HashedID: "k"},
		{ArticleID: "10", NUTS: []string{"DE3"}, URL: "v", Hostname: "h", Date: "2018-01-01", Distance: 0.4, HashedID: "l"},
	}
	require.NoError(t, WriteCompare(path, rows, map[string]bool{"10": true}))
	assert.Equal(t,
		"id,NUTS,url,hostname,date,cos_dist,hashed_id,date_crawled,in_list\n"+
			"9,\"DE1, DE2\",u,h,2018-01-01,0.2,k,,False\n"+
			"10,DE3,v,h,2018-01-01,0.4,l,,True\n",
		readFile(t, path))
	assert.Len(t, ThresholdHeader, 8)
}

func TestWriteSummary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "summary.csv")
	counts := []storage.MonthlyNUTSCount{
		{Year: "2019", Month: "05", NUTS: "DE111", ArticleCount: 3, MinDateCrawled: "2019-05-02", MaxDateCrawled: "2019-05-09"},
	}
	require.NoError(t, WriteSummary(path, counts))
	assert.Equal(t,
		"year,month,NUTS,article_count,min_date_crawled,max_date_crawled\n2019,05,DE111,3,2019-05-02,2019-05-09\n",
		readFile(t, path))
}

func TestWriteAtomic_NoTempFilesLeft(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "t.csv")
	require.NoError(t, WriteTable(path, []string{"a"}, [][]string{{"1"}}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "t.csv", entries[0].Name())
}

func TestWriteAtomic_FailureKeepsOldFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "t.csv")
	writeFile(t, path, "old\n")

	err := writeAtomic(path, []string{"a"}, func(w *csv.Writer) error {
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, "old\n", readFile(t, path))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestReadTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "t.csv")
	writeFile(t, path, "id,json\n1,\"{\"\"a\"\":1}\"\n2\n")

	tbl, err := ReadTable(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "json"}, tbl.Header)
	assert.Equal(t, [][]string{{"1", `{"a":1}`}, {"2"}}, tbl.Rows)
	assert.Equal(t, 1, tbl.Column("json"))
	assert.Equal(t, -1, tbl.Column("missing"))

	_, err = ReadTable(filepath.Join(t.TempDir(), "none.csv"))
	assert.ErrorIs(t, err, types.ErrMissingSourceFile)
}
