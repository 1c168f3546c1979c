// Package config loads job configuration from an optional YAML file and
// NEWSFUSE_* environment variables. Environment values take precedence over
// file values; CLI flags are applied on top by the caller.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/dshills/newsfuse/internal/storage"
)

// Query is one named retrieval query
type Query struct {
	Name string `koanf:"name"`
	Text string `koanf:"text"`
}

// EmbeddingConfig selects the query embedding provider
type EmbeddingConfig struct {
	Provider    string `koanf:"provider"`
	Host        string `koanf:"host"`
	Model       string `koanf:"model"`
	APIKey      string `koanf:"api_key"`
	Dimension   int    `koanf:"dimension"`
	CacheSize   int    `koanf:"cache_size"`
	QueryPrefix string `koanf:"query_prefix"`
}

// Config holds all configuration values for a run
type Config struct {
	// Relational store and vector index
	DatabasePath string `koanf:"database_path"`
	Driver       string `koanf:"driver"`

	// Retrieval
	BatchSize int  `koanf:"batch_size"`
	SearchK   int  `koanf:"search_k"`
	Exact     bool `koanf:"exact"`
	Workers   int  `koanf:"workers"`

	// Fusion
	K           int     `koanf:"k"`
	StartYear   int     `koanf:"start_year"`
	EndYear     int     `koanf:"end_year"`
	MaxDistance float64 `koanf:"max_distance"` // 0 disables the threshold

	// Ordered query list; order sets union precedence and column order
	Queries []Query `koanf:"queries"`

	// Files
	SourcePath  string `koanf:"source_path"`
	OutputPath  string `koanf:"output_path"`
	RunLabel    string `koanf:"run_label"`
	MetricsPath string `koanf:"metrics_path"`

	Embedding EmbeddingConfig `koanf:"embedding"`
}

// Configuration validation errors.
var (
	ErrInvalidBatchSize      = errors.New("batch_size must be positive")
	ErrBatchSizeExceedsLimit = errors.New("batch_size exceeds the store parameter limit")
	ErrUnsupportedDriver     = errors.New("driver must be sqlite or postgres")
	ErrInvalidYearRange      = errors.New("start_year must not be after end_year")
	ErrNoQueries             = errors.New("at least one query is required")
	ErrInvalidQueryName      = errors.New("query name must be non-empty and contain no path separator")
	ErrDuplicateQueryName    = errors.New("query names must be unique")
	ErrEmptyQueryText        = errors.New("query text is required for retrieval")
	ErrInvalidK              = errors.New("k must be positive")
	ErrInvalidSearchK        = errors.New("search_k must be positive")
	ErrInvalidWorkers        = errors.New("workers must be positive")
	ErrInvalidMaxDistance    = errors.New("max_distance must not be negative")
	ErrMissingDatabasePath   = errors.New("database_path is required")
	ErrInvalidValue          = errors.New("invalid value")
)

// Default values
const (
	DefaultDriver      = storage.DriverSQLite
	DefaultBatchSize   = 30000
	DefaultK           = 25
	DefaultSearchK     = 500000
	DefaultExact       = true
	DefaultWorkers     = 1
	DefaultStartYear   = 2017
	DefaultEndYear     = 2023
	DefaultSourcePath  = "queries"
	DefaultOutputPath  = "."
	DefaultRunLabel    = "queries"
	DefaultProvider    = "hash"
	DefaultDimension   = 1024
	DefaultQueryPrefix = "query: "
	DefaultCacheSize   = 100
)

// EnvPrefix prefixes every environment variable
const EnvPrefix = "NEWSFUSE_"

// Default returns a configuration with every default applied and no queries
func Default() *Config {
	return &Config{
		Driver:     DefaultDriver,
		BatchSize:  DefaultBatchSize,
		SearchK:    DefaultSearchK,
		Exact:      DefaultExact,
		Workers:    DefaultWorkers,
		K:          DefaultK,
		StartYear:  DefaultStartYear,
		EndYear:    DefaultEndYear,
		SourcePath: DefaultSourcePath,
		OutputPath: DefaultOutputPath,
		RunLabel:   DefaultRunLabel,
		Embedding: EmbeddingConfig{
			Provider:    DefaultProvider,
			Dimension:   DefaultDimension,
			QueryPrefix: DefaultQueryPrefix,
			CacheSize:   DefaultCacheSize,
		},
	}
}

// Load reads configuration from an optional YAML file and the environment.
// It returns the config and any parse errors; call Validate for semantic checks.
// If a config file path is provided and the file cannot be loaded, an error is returned.
func Load(configFilePath string) (*Config, []error) {
	k := koanf.New(".")

	if configFilePath != "" {
		if err := k.Load(file.Provider(configFilePath), yaml.Parser()); err != nil {
			return nil, []error{fmt.Errorf("failed to load config file %s: %w", configFilePath, err)}
		}
	}

	cfg := Default()
	l := loader{k: k}

	cfg.DatabasePath = l.getString("DATABASE_PATH", "database_path", "")
	cfg.Driver = strings.ToLower(l.getString("DRIVER", "driver", DefaultDriver))
	cfg.BatchSize = l.getInt("BATCH_SIZE", "batch_size", DefaultBatchSize)
	cfg.SearchK = l.getInt("SEARCH_K", "search_k", DefaultSearchK)
	cfg.Exact = l.getBool("EXACT", "exact", DefaultExact)
	cfg.Workers = l.getInt("WORKERS", "workers", DefaultWorkers)
	cfg.K = l.getInt("K", "k", DefaultK)
	cfg.StartYear = l.getInt("START_YEAR", "start_year", DefaultStartYear)
	cfg.EndYear = l.getInt("END_YEAR", "end_year", DefaultEndYear)
	cfg.MaxDistance = l.getFloat("MAX_DISTANCE", "max_distance", 0)
	cfg.SourcePath = l.getString("SOURCE_PATH", "source_path", DefaultSourcePath)
	cfg.OutputPath = l.getString("OUTPUT_PATH", "output_path", DefaultOutputPath)
	cfg.RunLabel = l.getString("RUN_LABEL", "run_label", DefaultRunLabel)
	cfg.MetricsPath = l.getString("METRICS_PATH", "metrics_path", "")

	cfg.Embedding.Provider = strings.ToLower(l.getString("EMBEDDING_PROVIDER", "embedding.provider", DefaultProvider))
	cfg.Embedding.Host = l.getString("EMBEDDING_HOST", "embedding.host", "")
	cfg.Embedding.Model = l.getString("EMBEDDING_MODEL", "embedding.model", "")
	cfg.Embedding.APIKey = l.getString("EMBEDDING_API_KEY", "embedding.api_key", "")
	cfg.Embedding.Dimension = l.getInt("EMBEDDING_DIMENSION", "embedding.dimension", DefaultDimension)
	cfg.Embedding.CacheSize = l.getInt("EMBEDDING_CACHE_SIZE", "embedding.cache_size", DefaultCacheSize)
	cfg.Embedding.QueryPrefix = l.getString("QUERY_PREFIX", "embedding.query_prefix", DefaultQueryPrefix)

	if k.Exists("queries") {
		if err := k.Unmarshal("queries", &cfg.Queries); err != nil {
			l.errs = append(l.errs, fmt.Errorf("queries: %w", err))
		}
	}

	return cfg, l.errs
}

// loader resolves one key from the environment, then the file, then a default.
// Parse failures are collected rather than returned one by one.
type loader struct {
	k    *koanf.Koanf
	errs []error
}

func (l *loader) env(key string) (string, bool) {
	val, ok := os.LookupEnv(EnvPrefix + key)
	return val, ok && val != ""
}

func (l *loader) getString(envKey, koanfKey, defaultVal string) string {
	if val, ok := l.env(envKey); ok {
		return val
	}
	if l.k.Exists(koanfKey) {
		return l.k.String(koanfKey)
	}
	return defaultVal
}

func (l *loader) getInt(envKey, koanfKey string, defaultVal int) int {
	if val, ok := l.env(envKey); ok {
		i, err := strconv.Atoi(val)
		if err != nil {
			l.errs = append(l.errs, fmt.Errorf("%s%s must be a valid integer: %w", EnvPrefix, envKey, ErrInvalidValue))
			return defaultVal
		}
		return i
	}
	if l.k.Exists(koanfKey) {
		return l.k.Int(koanfKey)
	}
	return defaultVal
}

func (l *loader) getFloat(envKey, koanfKey string, defaultVal float64) float64 {
	if val, ok := l.env(envKey); ok {
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			l.errs = append(l.errs, fmt.Errorf("%s%s must be a valid float: %w", EnvPrefix, envKey, ErrInvalidValue))
			return defaultVal
		}
		return f
	}
	if l.k.Exists(koanfKey) {
		return l.k.Float64(koanfKey)
	}
	return defaultVal
}

func (l *loader) getBool(envKey, koanfKey string, defaultVal bool) bool {
	if val, ok := l.env(envKey); ok {
		switch strings.ToLower(val) {
		case "true", "1", "yes", "on":
			return true
		case "false", "0", "no", "off":
			return false
		default:
			l.errs = append(l.errs, fmt.Errorf("%s%s must be a boolean: %w", EnvPrefix, envKey, ErrInvalidValue))
			return defaultVal
		}
	}
	if l.k.Exists(koanfKey) {
		return l.k.Bool(koanfKey)
	}
	return defaultVal
}

// QueryNames returns the configured query names in order
func (c *Config) QueryNames() []string {
	names := make([]string, len(c.Queries))
	for i, q := range c.Queries {
		names[i] = q.Name
	}
	return names
}

// Validate checks the settings shared by every command.
// Returns a slice of validation errors (empty if valid).
func (c *Config) Validate() []error {
	var errs []error

	limit, err := storage.MaxParamsFor(c.Driver)
	if err != nil {
		errs = append(errs, fmt.Errorf("%w: %q", ErrUnsupportedDriver, c.Driver))
	}
	if c.BatchSize <= 0 {
		errs = append(errs, ErrInvalidBatchSize)
	} else if err == nil && c.BatchSize > limit {
		errs = append(errs, fmt.Errorf("%w: %d > %d", ErrBatchSizeExceedsLimit, c.BatchSize, limit))
	}

	if c.StartYear > c.EndYear {
		errs = append(errs, fmt.Errorf("%w: %d > %d", ErrInvalidYearRange, c.StartYear, c.EndYear))
	}
	if c.K <= 0 {
		errs = append(errs, ErrInvalidK)
	}
	if c.SearchK <= 0 {
		errs = append(errs, ErrInvalidSearchK)
	}
	if c.Workers <= 0 {
		errs = append(errs, ErrInvalidWorkers)
	}
	if c.MaxDistance < 0 {
		errs = append(errs, ErrInvalidMaxDistance)
	}

	if len(c.Queries) == 0 {
		errs = append(errs, ErrNoQueries)
	}
	seen := make(map[string]bool, len(c.Queries))
	for _, q := range c.Queries {
		if q.Name == "" || strings.ContainsAny(q.Name, `/\`) {
			errs = append(errs, fmt.Errorf("%w: %q", ErrInvalidQueryName, q.Name))
			continue
		}
		if seen[q.Name] {
			errs = append(errs, fmt.Errorf("%w: %q", ErrDuplicateQueryName, q.Name))
		}
		seen[q.Name] = true
	}

	return errs
}

// ValidateRetrieval adds the checks for commands that touch the store and
// embed query text.
func (c *Config) ValidateRetrieval() []error {
	errs := c.Validate()
	if c.DatabasePath == "" {
		errs = append(errs, ErrMissingDatabasePath)
	}
	for _, q := range c.Queries {
		if strings.TrimSpace(q.Text) == "" {
			errs = append(errs, fmt.Errorf("%w: %q", ErrEmptyQueryText, q.Name))
		}
	}
	return errs
}

// LogSummary returns a summary of the configuration suitable for logging.
// All secrets are masked to prevent accidental exposure.
func (c *Config) LogSummary() map[string]string {
	return map[string]string{
		"database_path":       maskDatabaseURL(c.DatabasePath),
		"driver":              c.Driver,
		"batch_size":          strconv.Itoa(c.BatchSize),
		"search_k":            strconv.Itoa(c.SearchK),
		"exact":               strconv.FormatBool(c.Exact),
		"workers":             strconv.Itoa(c.Workers),
		"k":                   strconv.Itoa(c.K),
		"years":               fmt.Sprintf("%d-%d", c.StartYear, c.EndYear),
		"max_distance":        strconv.FormatFloat(c.MaxDistance, 'g', -1, 64),
		"queries":             strings.Join(c.QueryNames(), ","),
		"source_path":         c.SourcePath,
		"output_path":         c.OutputPath,
		"run_label":           c.RunLabel,
		"metrics_path":        c.MetricsPath,
		"embedding_provider":  c.Embedding.Provider,
		"embedding_host":      c.Embedding.Host,
		"embedding_model":     c.Embedding.Model,
		"embedding_api_key":   maskSecret(c.Embedding.APIKey),
		"embedding_dimension": strconv.Itoa(c.Embedding.Dimension),
	}
}

// maskSecret masks a secret value, showing only the first 4 characters followed by ****
// If the secret is shorter than 8 characters, it's fully masked.
func maskSecret(s string) string {
	if s == "" {
		return "<not set>"
	}
	if len(s) < 8 {
		return "****"
	}
	return s[:4] + "****"
}

// maskDatabaseURL masks the password in a postgres:// URL. File paths are returned unchanged.
func maskDatabaseURL(s string) string {
	if s == "" {
		return "<not set>"
	}

	schemeEnd := strings.Index(s, "://")
	if schemeEnd == -1 {
		return s
	}

	rest := s[schemeEnd+3:]
	atIndex := strings.Index(rest, "@")
	if atIndex == -1 {
		return s
	}
	colonIndex := strings.Index(rest[:atIndex], ":")
	if colonIndex == -1 {
		return s
	}

	return s[:schemeEnd+3] + rest[:colonIndex] + ":****" + rest[atIndex:]
}
