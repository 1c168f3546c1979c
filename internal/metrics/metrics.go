// Package metrics holds the Prometheus counters of a newsfuse job. A job is a
// one-shot process, so metrics are written to a node_exporter textfile at the
// end of the run rather than served.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metric names
const (
	MetricBatchesTotal        = "newsfuse_batches_total"
	MetricJoinedRowsTotal     = "newsfuse_joined_rows_total"
	MetricQueriesSkippedTotal = "newsfuse_queries_skipped_total"
	MetricRowsDroppedTotal    = "newsfuse_rows_dropped_total"
	MetricCandidatesTotal     = "newsfuse_candidates_total"
	MetricStageDuration       = "newsfuse_stage_duration_seconds"
)

// Stage labels
const (
	StageEmbed     = "embed"
	StageSearch    = "search"
	StageJoin      = "join"
	StageNormalize = "normalize"
	StageAggregate = "aggregate"
	StageWrite     = "write"
)

// Drop and skip reasons
const (
	ReasonMissingFile  = "missing_file"
	ReasonMalformedRow = "malformed_row"
	ReasonEmptyID      = "empty_id"
	ReasonOutOfRange   = "out_of_range"
	ReasonNoNUTS       = "no_nuts"
	ReasonDistance     = "distance"
)

// Metrics is safe for concurrent use. A nil *Metrics discards everything.
type Metrics struct {
	batches        *prometheus.CounterVec
	joinedRows     *prometheus.CounterVec
	queriesSkipped *prometheus.CounterVec
	rowsDropped    *prometheus.CounterVec
	candidates     prometheus.Counter
	stageDuration  *prometheus.HistogramVec
}

// NewMetrics creates the collectors. Call Register to add them to a registry.
func NewMetrics() *Metrics {
	return &Metrics{
		batches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricBatchesTotal,
				Help: "Store membership queries issued, by query",
			},
			[]string{"query"},
		),
		joinedRows: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricJoinedRowsTotal,
				Help: "Joined article rows returned by the store, by query",
			},
			[]string{"query"},
		),
		queriesSkipped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricQueriesSkippedTotal,
				Help: "Queries left out of fusion, by reason",
			},
			[]string{"reason"},
		),
		rowsDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricRowsDroppedTotal,
				Help: "Rows dropped while loading and normalizing, by reason",
			},
			[]string{"reason"},
		),
		candidates: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: MetricCandidatesTotal,
				Help: "Candidates written to the master list",
			},
		),
		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    MetricStageDuration,
				Help:    "Duration of pipeline stages in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300, 900},
			},
			[]string{"stage"},
		),
	}
}

// Register registers all collectors with reg
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Collectors returns all collectors
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.batches,
		m.joinedRows,
		m.queriesSkipped,
		m.rowsDropped,
		m.candidates,
		m.stageDuration,
	}
}

// ObserveBatch records one store batch and the rows it returned
func (m *Metrics) ObserveBatch(query string, rows int) {
	if m == nil {
		return
	}
	m.batches.WithLabelValues(query).Inc()
	m.joinedRows.WithLabelValues(query).Add(float64(rows))
}

// IncQueriesSkipped counts a query left out of fusion
func (m *Metrics) IncQueriesSkipped(reason string) {
	if m == nil {
		return
	}
	m.queriesSkipped.WithLabelValues(reason).Inc()
}

// AddRowsDropped counts n dropped rows
func (m *Metrics) AddRowsDropped(reason string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.rowsDropped.WithLabelValues(reason).Add(float64(n))
}

// AddCandidates counts written candidates
func (m *Metrics) AddCandidates(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.candidates.Add(float64(n))
}

// ObserveStage records the time elapsed since start for stage
func (m *Metrics) ObserveStage(stage string, start time.Time) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

// WriteTextfile gathers g into path in the Prometheus text format
func WriteTextfile(path string, g prometheus.Gatherer) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, g); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
