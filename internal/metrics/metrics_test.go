package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics(t *testing.T) {
	m := NewMetrics()
	require.NotNil(t, m)
	assert.Len(t, m.Collectors(), 6)
}

func TestMetrics_Register(t *testing.T) {
	t.Run("successful registration", func(t *testing.T) {
		m := NewMetrics()
		reg := prometheus.NewRegistry()
		require.NoError(t, m.Register(reg))

		m.ObserveBatch("flood", 10)
		m.IncQueriesSkipped(ReasonMissingFile)
		m.AddRowsDropped(ReasonNoNUTS, 2)
		m.AddCandidates(3)
		m.ObserveStage(StageJoin, time.Now())

		families, err := reg.Gather()
		require.NoError(t, err)

		found := map[string]bool{}
		for _, f := range families {
			found[f.GetName()] = true
		}
		for _, name := range []string{
			MetricBatchesTotal, MetricJoinedRowsTotal, MetricQueriesSkippedTotal,
			MetricRowsDroppedTotal, MetricCandidatesTotal, MetricStageDuration,
		} {
			assert.True(t, found[name], "metric %s not gathered", name)
		}
	})

	t.Run("duplicate registration fails", func(t *testing.T) {
		reg := prometheus.NewRegistry()
		require.NoError(t, NewMetrics().Register(reg))
		assert.Error(t, NewMetrics().Register(reg))
	})
}

func TestMetrics_Values(t *testing.T) {
	m := NewMetrics()

	m.ObserveBatch("flood", 4)
	m.ObserveBatch("flood", 6)
	m.ObserveBatch("drought", 1)
	m.AddRowsDropped(ReasonOutOfRange, 5)
	m.AddRowsDropped(ReasonOutOfRange, 0)
	m.AddCandidates(7)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.batches.WithLabelValues("flood")))
	assert.Equal(t, 10.0, testutil.ToFloat64(m.joinedRows.WithLabelValues("flood")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.batches.WithLabelValues("drought")))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.rowsDropped.WithLabelValues(ReasonOutOfRange)))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.candidates))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveBatch("q", 1)
		m.IncQueriesSkipped(ReasonMissingFile)
		m.AddRowsDropped(ReasonNoNUTS, 1)
		m.AddCandidates(1)
		m.ObserveStage(StageWrite, time.Now())
	})
}

func TestWriteTextfile(t *testing.T) {
	m := NewMetrics()
	reg := prometheus.NewRegistry()
	require.NoError(t, m.Register(reg))
	m.AddCandidates(3)

	path := filepath.Join(t.TempDir(), "textfile", "newsfuse.prom")
	require.NoError(t, WriteTextfile(path, reg))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), MetricCandidatesTotal+" 3"))
}
