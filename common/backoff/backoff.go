// common/backoff/backoff.go

// Package backoff retries connects and publishes (Execute) and paces polling
// loops (Pause). Both report to Prometheus under the service label set by
// common.InitServiceName.
package backoff

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/YaganovValera/detector-stream/common/logger"
)

var serviceLabel = "unknown"

// SetServiceLabel вызывается из common.InitServiceName до первого Execute.
func SetServiceLabel(name string) { serviceLabel = name }

var (
	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "common", Subsystem: "backoff", Name: "retries_total",
		Help: "Back-off retry attempts",
	}, []string{"service"})

	// result: success | exhausted | cancelled | permanent
	outcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "common", Subsystem: "backoff", Name: "operations_total",
		Help: "Retried operations by final result",
	}, []string{"service", "result"})

	retryDelay = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "common", Subsystem: "backoff", Name: "retry_delay_seconds",
		Help:    "Delay before each retry (seconds)",
		Buckets: prometheus.DefBuckets,
	}, []string{"service"})
)

// Config describes an exponential retry. Zero fields take defaults.
type Config struct {
	InitialInterval time.Duration `mapstructure:"initial_interval"` // default 1s
	// RandomizationFactor adds ±jitter, 0.0 ≤ f ≤ 1.0; default 0.5.
	RandomizationFactor float64       `mapstructure:"randomization_factor"`
	Multiplier          float64       `mapstructure:"multiplier"`   // default 2
	MaxInterval         time.Duration `mapstructure:"max_interval"` // default 30s

	// MaxElapsedTime bounds the whole retry. Zero does not mean "give up at
	// once": it means retry until ctx is done or MaxAttempts is reached.
	MaxElapsedTime time.Duration `mapstructure:"max_elapsed_time"`

	// MaxAttempts bounds the number of calls to fn; 0 → unbounded.
	MaxAttempts int `mapstructure:"max_attempts"`

	// PerAttemptTimeout bounds each call to fn; 0 → no per-call timeout.
	PerAttemptTimeout time.Duration `mapstructure:"per_attempt_timeout"`
}

func (c *Config) applyDefaults() {
	if c.InitialInterval <= 0 {
		c.InitialInterval = time.Second
	}
	if c.RandomizationFactor <= 0 {
		c.RandomizationFactor = 0.5
	}
	if c.Multiplier <= 0 {
		c.Multiplier = 2.0
	}
	if c.MaxInterval <= 0 {
		c.MaxInterval = 30 * time.Second
	}
}

func (c Config) validate() error {
	switch {
	case c.RandomizationFactor < 0 || c.RandomizationFactor > 1:
		return fmt.Errorf("backoff: randomization_factor must be in [0,1]")
	case c.Multiplier < 1:
		return fmt.Errorf("backoff: multiplier must be >= 1")
	case c.MaxAttempts < 0:
		return fmt.Errorf("backoff: max_attempts must be >= 0")
	}
	return nil
}

func (c Config) build(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = c.InitialInterval
	exp.RandomizationFactor = c.RandomizationFactor
	exp.Multiplier = c.Multiplier
	exp.MaxInterval = c.MaxInterval
	exp.MaxElapsedTime = c.MaxElapsedTime
	exp.Reset()

	var bo backoff.BackOff = exp
	if c.MaxAttempts > 0 {
		bo = backoff.WithMaxRetries(bo, uint64(c.MaxAttempts-1))
	}
	return backoff.WithContext(bo, ctx)
}

// RetryableFunc is one attempt of a retried operation.
type RetryableFunc func(ctx context.Context) error

// ErrMaxRetries wraps the last error of an operation that was given up.
type ErrMaxRetries struct {
	Err      error
	Attempts int
}

func (e *ErrMaxRetries) Error() string {
	return fmt.Sprintf("backoff: %d attempt(s) failed: %v", e.Attempts, e.Err)
}

func (e *ErrMaxRetries) Unwrap() error { return e.Err }

// Permanent marks err as non-retryable.
func Permanent(err error) error { return backoff.Permanent(err) }

// Execute calls fn until it succeeds, returns a Permanent error, ctx is done
// or the policy gives up. Every failure is returned as *ErrMaxRetries.
func Execute(ctx context.Context, cfg Config, log *logger.Logger, fn RetryableFunc) error {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return fmt.Errorf("backoff: invalid config: %w", err)
	}
	log = log.WithContext(ctx)

	attempts, permanent := 0, false
	attempt := func() error {
		if cfg.PerAttemptTimeout <= 0 {
			return fn(ctx)
		}
		actx, cancel := context.WithTimeout(ctx, cfg.PerAttemptTimeout)
		defer cancel()
		return fn(actx)
	}
	operation := func() error {
		attempts++
		err := attempt()
		var perm *backoff.PermanentError
		permanent = errors.As(err, &perm)
		return err
	}
	notify := func(err error, delay time.Duration) {
		retriesTotal.WithLabelValues(serviceLabel).Inc()
		retryDelay.WithLabelValues(serviceLabel).Observe(delay.Seconds())
		log.Warn("back-off retry",
			zap.Int("attempt", attempts),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
	}

	err := backoff.RetryNotify(operation, cfg.build(ctx), notify)
	if err == nil {
		outcomesTotal.WithLabelValues(serviceLabel, "success").Inc()
		return nil
	}

	result := "exhausted"
	switch {
	case permanent:
		result = "permanent"
	case ctx.Err() != nil:
		result = "cancelled"
	}
	outcomesTotal.WithLabelValues(serviceLabel, result).Inc()
	log.Error("back-off give-up",
		zap.String("result", result),
		zap.Int("attempts", attempts),
		zap.Error(err),
	)
	return &ErrMaxRetries{Err: err, Attempts: attempts}
}
