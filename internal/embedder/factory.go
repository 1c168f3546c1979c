package embedder

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
)

// Config holds embedder configuration
type Config struct {
	Provider  string
	Host      string // Base URL for HTTP providers
	Model     string
	APIKey    string
	Dimension int
	CacheSize int // 0 disables caching
}

// Option configures provider construction
type Option func(*options)

type options struct {
	logger     *slog.Logger
	httpClient *http.Client
	retry      RetryConfig
}

// WithLogger sets the logger used by HTTP providers
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithHTTPClient overrides the HTTP client of HTTP providers
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) {
		if client != nil {
			o.httpClient = client
		}
	}
}

// WithRetry overrides the retry policy of HTTP providers
func WithRetry(cfg RetryConfig) Option {
	return func(o *options) {
		o.retry = cfg
	}
}

func applyOptions(opts []Option) options {
	o := options{
		logger:     slog.Default(),
		httpClient: defaultHTTPClient(),
		retry:      DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	o.logger = o.logger.With("component", "embedder")
	return o
}

// New creates an embedder with explicit configuration, wrapped in an LRU
// cache when CacheSize is positive.
func New(cfg Config, opts ...Option) (Embedder, error) {
	var (
		e   Embedder
		err error
	)

	switch strings.ToLower(cfg.Provider) {
	case "", ProviderHash:
		e = NewHashProvider(cfg.Dimension)
	case ProviderJina:
		e, err = NewJinaProvider(cfg, opts...)
	case ProviderOpenAI:
		e, err = NewOpenAIProvider(cfg, opts...)
	default:
		return nil, fmt.Errorf("%w: unknown provider %s", ErrUnsupportedModel, cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	if cfg.CacheSize > 0 {
		e = WithCache(e, NewCache(cfg.CacheSize))
	}
	return e, nil
}
