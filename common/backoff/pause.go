// common/backoff/pause.go
package backoff

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// pauseSeconds: reason = idle | error | reconnect …
var pauseSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "common", Subsystem: "backoff", Name: "pause_seconds",
	Help:    "Delays taken by polling loops (seconds)",
	Buckets: []float64{.001, .01, .05, .1, .5, 1, 5, 30},
}, []string{"service", "reason"})

// Policy describes the delay a polling loop takes before asking again.
//
// Multiplier ≤ 1 gives a constant delay of Interval; otherwise the delay
// grows from Interval up to MaxInterval and falls back on Reset.
type Policy struct {
	Interval    time.Duration `mapstructure:"interval"`
	MaxInterval time.Duration `mapstructure:"max_interval"`
	Multiplier  float64       `mapstructure:"multiplier"`
}

// Constant returns a Policy with a fixed delay.
func Constant(d time.Duration) Policy { return Policy{Interval: d} }

// Validate checks the policy.
func (p Policy) Validate() error {
	if p.Interval <= 0 {
		return fmt.Errorf("backoff: pause interval must be > 0")
	}
	if p.Multiplier > 1 && p.MaxInterval > 0 && p.MaxInterval < p.Interval {
		return fmt.Errorf("backoff: pause max_interval must be ≥ interval")
	}
	return nil
}

func (p Policy) build() backoff.BackOff {
	if p.Multiplier <= 1 {
		return backoff.NewConstantBackOff(p.Interval)
	}
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.Interval
	bo.Multiplier = p.Multiplier
	bo.RandomizationFactor = 0
	bo.MaxInterval = p.MaxInterval
	if bo.MaxInterval <= 0 {
		bo.MaxInterval = p.Interval * 30
	}
	bo.MaxElapsedTime = 0
	bo.Reset()
	return bo
}

// Pause is a cooperative, context-aware sleeper driven by a Policy.
// Not safe for concurrent use; one Pause belongs to one loop.
type Pause struct {
	bo     backoff.BackOff
	reason string
}

// NewPause creates a Pause; reason labels the pause_seconds histogram.
func NewPause(p Policy, reason string) *Pause {
	return &Pause{bo: p.build(), reason: reason}
}

// Wait suspends the caller for the next delay of the policy, or until ctx is
// done. It returns the delay that was scheduled.
func (p *Pause) Wait(ctx context.Context) (time.Duration, error) {
	d := p.bo.NextBackOff()
	if d == backoff.Stop {
		d = 0
	}
	pauseSeconds.WithLabelValues(serviceLabel, p.reason).Observe(d.Seconds())

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return d, nil
	case <-ctx.Done():
		return d, ctx.Err()
	}
}

// Reset returns the policy to its initial delay.
func (p *Pause) Reset() { p.bo.Reset() }
