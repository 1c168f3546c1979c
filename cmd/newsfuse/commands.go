package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"

	"github.com/dshills/newsfuse/internal/config"
	"github.com/dshills/newsfuse/internal/embedder"
	"github.com/dshills/newsfuse/internal/keywords"
	"github.com/dshills/newsfuse/internal/metrics"
	"github.com/dshills/newsfuse/internal/pipeline"
	"github.com/dshills/newsfuse/internal/storage"
)

// runID tags every log line and the metrics file of this process
var runID = uuid.NewString()

func setupLogger(c *cli.Context) error {
	levelStr := strings.ToLower(c.String("log-level"))

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger.With("run_id", runID))
	return nil
}

// loadConfig reads the config file and environment, then applies the flags
// set on the command line.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, errs := config.Load(c.String("config"))
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	if err := applyFlags(c, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyFlags(c *cli.Context, cfg *config.Config) error {
	strs := map[string]*string{
		"db":                 &cfg.DatabasePath,
		"driver":             &cfg.Driver,
		"source-path":        &cfg.SourcePath,
		"output-path":        &cfg.OutputPath,
		"label":              &cfg.RunLabel,
		"metrics-path":       &cfg.MetricsPath,
		"embedding-provider": &cfg.Embedding.Provider,
		"embedding-host":     &cfg.Embedding.Host,
		"embedding-model":    &cfg.Embedding.Model,
	}
	for name, dst := range strs {
		if c.IsSet(name) {
			*dst = c.String(name)
		}
	}

	ints := map[string]*int{
		"batch-size": &cfg.BatchSize,
		"search-k":   &cfg.SearchK,
		"workers":    &cfg.Workers,
		"k":          &cfg.K,
		"start-year": &cfg.StartYear,
		"end-year":   &cfg.EndYear,
	}
	for name, dst := range ints {
		if c.IsSet(name) {
			*dst = c.Int(name)
		}
	}

	if c.IsSet("exact") {
		cfg.Exact = c.Bool("exact")
	}
	if c.IsSet("max-distance") {
		cfg.MaxDistance = c.Float64("max-distance")
	}

	if c.IsSet("query") {
		queries, err := parseQueries(c.StringSlice("query"))
		if err != nil {
			return err
		}
		cfg.Queries = queries
	}
	return nil
}

// parseQueries turns name=text flag values into queries. A value without '='
// is a bare name, which is enough for fusing.
func parseQueries(values []string) ([]config.Query, error) {
	queries := make([]config.Query, 0, len(values))
	for _, v := range values {
		name, text, _ := strings.Cut(v, "=")
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("%w: query %q", config.ErrInvalidQueryName, v)
		}
		queries = append(queries, config.Query{Name: name, Text: strings.TrimSpace(text)})
	}
	return queries, nil
}

func validate(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
}

func openStore(c *cli.Context, cfg *config.Config) (*storage.Store, error) {
	if cfg.DatabasePath == "" {
		return nil, config.ErrMissingDatabasePath
	}
	return storage.Open(c.Context, storage.Options{
		Driver:  cfg.Driver,
		DSN:     cfg.DatabasePath,
		Migrate: cfg.Driver != storage.DriverPostgres,
	})
}

func newEmbedder(cfg *config.Config, logger *slog.Logger) (embedder.Embedder, error) {
	return embedder.New(embedder.Config{
		Provider:  cfg.Embedding.Provider,
		Host:      cfg.Embedding.Host,
		Model:     cfg.Embedding.Model,
		APIKey:    cfg.Embedding.APIKey,
		Dimension: cfg.Embedding.Dimension,
		CacheSize: cfg.Embedding.CacheSize,
	}, embedder.WithLogger(logger))
}

// jobMetrics owns the registry of one run. Without a metrics path nothing is
// recorded.
type jobMetrics struct {
	metrics *metrics.Metrics
	reg     *prometheus.Registry
	dir     string
}

func newJobMetrics(cfg *config.Config) (*jobMetrics, error) {
	if cfg.MetricsPath == "" {
		return &jobMetrics{}, nil
	}
	m := metrics.NewMetrics()
	reg := prometheus.NewRegistry()
	if err := m.Register(reg); err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}
	return &jobMetrics{metrics: m, reg: reg, dir: cfg.MetricsPath}, nil
}

func (j *jobMetrics) flush(logger *slog.Logger) {
	if j.reg == nil {
		return
	}
	path := filepath.Join(j.dir, "newsfuse_"+runID+".prom")
	if err := metrics.WriteTextfile(path, j.reg); err != nil {
		logger.Error("failed to write metrics", "path", path, "error", err)
		return
	}
	logger.Info("metrics written", "path", path)
}

func logConfig(logger *slog.Logger, cfg *config.Config) {
	summary := cfg.LogSummary()
	attrs := make([]any, 0, 2*len(summary))
	for k, v := range summary {
		attrs = append(attrs, k, v)
	}
	logger.Debug("configuration", attrs...)
}

func retrieveCommand(c *cli.Context) error {
	logger := slog.Default().With("command", "retrieve")
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if err := validate(cfg.ValidateRetrieval()); err != nil {
		return err
	}
	logConfig(logger, cfg)

	jm, err := newJobMetrics(cfg)
	if err != nil {
		return err
	}
	defer jm.flush(logger)

	return retrieve(c, cfg, jm, logger)
}

func retrieve(c *cli.Context, cfg *config.Config, jm *jobMetrics, logger *slog.Logger) error {
	store, err := openStore(c, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	emb, err := newEmbedder(cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = emb.Close() }()

	stats, err := pipeline.Retrieve(c.Context, cfg, store, emb,
		pipeline.WithLogger(logger),
		pipeline.WithMetrics(jm.metrics),
	)
	if err != nil {
		return err
	}

	for _, q := range stats.Queries {
		fmt.Fprintf(c.App.Writer, "%s\t%d matches\t%d rows\t%s\n", q.Query, q.Matches, q.Rows, q.Path)
	}
	logger.Info("retrieval complete", "queries", len(stats.Queries), "duration", stats.Duration)
	return nil
}

func fuseCommand(c *cli.Context) error {
	logger := slog.Default().With("command", "fuse")
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if err := validate(cfg.Validate()); err != nil {
		return err
	}
	logConfig(logger, cfg)

	jm, err := newJobMetrics(cfg)
	if err != nil {
		return err
	}
	defer jm.flush(logger)

	return fuse(c, cfg, jm, logger)
}

func fuse(c *cli.Context, cfg *config.Config, jm *jobMetrics, logger *slog.Logger) error {
	report, err := pipeline.Fuse(c.Context, cfg,
		pipeline.WithLogger(logger),
		pipeline.WithMetrics(jm.metrics),
	)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "%d candidates from %d queries (%d skipped) written to %s\n",
		report.Candidates, len(report.Loaded), len(report.Skipped), report.OutputPath)
	return nil
}

func runCommand(c *cli.Context) error {
	logger := slog.Default().With("command", "run")
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if err := validate(cfg.ValidateRetrieval()); err != nil {
		return err
	}
	logConfig(logger, cfg)

	jm, err := newJobMetrics(cfg)
	if err != nil {
		return err
	}
	defer jm.flush(logger)

	if err := retrieve(c, cfg, jm, logger); err != nil {
		return err
	}
	return fuse(c, cfg, jm, logger)
}

func thresholdCommand(c *cli.Context) error {
	logger := slog.Default().With("command", "threshold")
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	report, err := pipeline.Threshold(c.Context, cfg, c.String("query"), c.String("out"), c.Float64("threshold"),
		pipeline.WithLogger(logger),
	)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "%d of %d articles within %v written to %s\n",
		report.Kept, report.Articles, c.Float64("threshold"), report.OutputPath)
	return nil
}

func compareCommand(c *cli.Context) error {
	logger := slog.Default().With("command", "compare")
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	report, err := pipeline.Compare(c.Context, cfg, c.String("query"), c.String("ids"), c.String("out"),
		pipeline.WithLogger(logger),
	)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "%d of %d listed ids returned by %s, written to %s\n",
		report.Matched, report.Listed, c.String("query"), report.OutputPath)
	if len(report.NotInQuery) > 0 {
		fmt.Fprintf(c.App.Writer, "not returned: %s\n", strings.Join(report.NotInQuery, ", "))
	}
	return nil
}

func summaryCommand(c *cli.Context) error {
	logger := slog.Default().With("command", "summary")
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	store, err := openStore(c, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	n, err := pipeline.Summarize(c.Context, store, c.String("out"), pipeline.WithLogger(logger))
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "%d summary rows written to %s\n", n, c.String("out"))
	return nil
}

func keywordsCommand(c *cli.Context) error {
	logger := slog.Default().With("command", "keywords")
	stats, mstats, err := keywords.Process(c.String("in"), c.String("out"), c.String("parsed"), logger)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "parsed %d of %d rows (%d skipped); matched %d, without keyword data %d\n",
		stats.Parsed, stats.Rows, stats.Skipped, mstats.Matched, mstats.LeftOnly)
	return nil
}

func versionCommand(c *cli.Context) error {
	w := c.App.Writer
	fmt.Fprintf(w, "newsfuse\n")
	fmt.Fprintf(w, "Version: %s\n", version)
	fmt.Fprintf(w, "Build Time: %s\n", buildTime)
	fmt.Fprintf(w, "Build Mode: %s\n", storage.BuildMode)
	fmt.Fprintf(w, "SQLite Driver: %s\n", storage.DriverName)
	fmt.Fprintf(w, "Vector Extension: %v\n", storage.VectorExtensionAvailable)
	return nil
}
