package pipeline

import (
	"log/slog"

	"github.com/dshills/newsfuse/internal/metrics"
)

// Option configures a pipeline call
type Option func(*options)

type options struct {
	base    *slog.Logger // handed to the stage packages, which add their own component
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics records job metrics into m
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

func applyOptions(opts []Option) options {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	o.base = o.logger
	o.logger = o.logger.With("component", "pipeline")
	return o
}
