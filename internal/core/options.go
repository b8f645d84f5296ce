package core

import "go.uber.org/zap"

type settings struct {
	clock   Clock
	logger  *zap.Logger
	metrics MetricsRecorder
	history HistoryRecorder
	retry   RetryPolicy
}

func newSettings(opts ...Option) settings {
	cfg := settings{
		clock:   systemClock(),
		logger:  zap.NewNop(),
		metrics: NoopMetricsRecorder{},
		retry:   DefaultRetryPolicy,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// Option configures an Engine or Service.
type Option func(*settings)

// WithClock overrides the time source.
func WithClock(clock Clock) Option {
	return func(cfg *settings) {
		if clock != nil {
			cfg.clock = clock
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *zap.Logger) Option {
	return func(cfg *settings) {
		if logger != nil {
			cfg.logger = logger
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(metrics MetricsRecorder) Option {
	return func(cfg *settings) {
		if metrics != nil {
			cfg.metrics = metrics
		}
	}
}

// WithHistoryRecorder overrides the default store-backed history recorder.
func WithHistoryRecorder(recorder HistoryRecorder) Option {
	return func(cfg *settings) {
		cfg.history = recorder
	}
}

// WithRetryPolicy overrides the coordinator's conflict retry policy.
func WithRetryPolicy(policy RetryPolicy) Option {
	return func(cfg *settings) {
		cfg.retry = policy
	}
}
