// services/frame-poller/pkg/poller/poller.go

// Package poller turns a pull-based Reader into a lazy, sharded sequence of
// buffers. Empty reads and unexpected errors are retried after a pause; a
// transport-fatal error ends the sequence; the reader is closed on every exit.
package poller

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/YaganovValera/detector-stream/common/backoff"
	"github.com/YaganovValera/detector-stream/common/logger"
	"github.com/YaganovValera/detector-stream/services/frame-poller/pkg/reader"
	"github.com/YaganovValera/detector-stream/services/frame-poller/pkg/shard"
	"github.com/YaganovValera/detector-stream/services/frame-poller/pkg/tensor"
)

// ErrClosed is yielded by Buffers when the poller was already iterated or closed.
var ErrClosed = errors.New("poller: closed")

// ConnectError is the terminal error yielded when the reader cannot connect.
type ConnectError struct {
	WorkerID int
	Err      error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("poller: worker %d: connect: %v", e.WorkerID, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// Config holds the two pause policies.
type Config struct {
	// EmptyInterval is the pause after an empty read.
	EmptyInterval time.Duration `mapstructure:"empty_interval"`
	// ErrorInterval is the first pause after an unexpected read error.
	ErrorInterval time.Duration `mapstructure:"error_interval"`
	// ErrorMultiplier > 1 grows the error pause up to ErrorMaxInterval
	// while errors repeat; a record resets it.
	ErrorMultiplier  float64       `mapstructure:"error_multiplier"`
	ErrorMaxInterval time.Duration `mapstructure:"error_max_interval"`
}

func (c *Config) ApplyDefaults() {
	if c.EmptyInterval <= 0 {
		c.EmptyInterval = 100 * time.Millisecond
	}
	if c.ErrorInterval <= 0 {
		c.ErrorInterval = time.Second
	}
}

func (c Config) Validate() error {
	if err := c.emptyPolicy().Validate(); err != nil {
		return fmt.Errorf("poller: empty_interval: %w", err)
	}
	if err := c.errorPolicy().Validate(); err != nil {
		return fmt.Errorf("poller: error_interval: %w", err)
	}
	return nil
}

func (c Config) emptyPolicy() backoff.Policy { return backoff.Constant(c.EmptyInterval) }

func (c Config) errorPolicy() backoff.Policy {
	return backoff.Policy{
		Interval:    c.ErrorInterval,
		MaxInterval: c.ErrorMaxInterval,
		Multiplier:  c.ErrorMultiplier,
	}
}

// Poller owns one Reader. The reader is created on the first pull, not in New.
type Poller struct {
	cfg Config
	log *logger.Logger
	h   handle

	mu      sync.Mutex
	used    bool
	closed  bool
	busy    bool // цикл сейчас внутри Connect или Read
	running context.CancelFunc
}

// New returns an idle poller.
func New(factory reader.Factory, cfg Config, log *logger.Logger) (*Poller, error) {
	if factory == nil {
		return nil, errors.New("poller: reader factory is required")
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Poller{
		cfg: cfg,
		log: log.Named("poller"),
		h:   handle{factory: factory},
	}, nil
}

// Connected reports whether the reader is currently connected.
func (p *Poller) Connected() bool { return p.h.current() == stateConnected }

// Close stops a running sequence and releases the reader. If the loop is
// inside Connect or Read, it is cancelled and releases the reader on exit;
// otherwise (idle, pausing, or suspended in yield) the reader is released
// here. Close is idempotent and safe on a poller that never connected.
func (p *Poller) Close() error {
	p.mu.Lock()
	p.closed = true
	cancel, busy := p.running, p.busy
	p.mu.Unlock()

	if cancel != nil {
		cancel()
		if busy {
			return nil
		}
	}
	return p.h.close()
}

// enter marks the loop as calling into the reader; false once Close ran.
func (p *Poller) enter() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	p.busy = true
	return true
}

func (p *Poller) leave() {
	p.mu.Lock()
	p.busy = false
	p.mu.Unlock()
}

// begin marks the poller as iterated; the sequence is single-pass.
func (p *Poller) begin(ctx context.Context) (context.Context, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.used || p.closed {
		return nil, ErrClosed
	}
	p.used = true
	ctx, cancel := context.WithCancel(ctx)
	p.running = cancel
	return ctx, nil
}

func (p *Poller) end() {
	p.mu.Lock()
	cancel := p.running
	p.running = nil
	p.closed = true
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Buffers returns the lazy sequence of buffers owned by the shard assignment
// found in ctx (shard.Single if none). Each buffer is the record payload with
// a leading unit dimension, (H, W) -> (1, H, W).
//
// The only error ever yielded is terminal: a *ConnectError, ErrClosed or an
// invalid assignment. A transport-fatal read error or cancellation of ctx ends
// the sequence without an error.
func (p *Poller) Buffers(ctx context.Context) iter.Seq2[tensor.Array, error] {
	return func(yield func(tensor.Array, error) bool) {
		assign := shard.FromContext(ctx)
		if err := assign.Validate(); err != nil {
			yield(tensor.Array{}, err)
			return
		}
		runCtx, err := p.begin(ctx)
		if err != nil {
			yield(tensor.Array{}, err)
			return
		}
		runCtx = logger.ContextWithWorkerID(runCtx, assign.WorkerID)
		w := &worker{
			p:      p,
			assign: assign,
			label:  workerLabel(assign.WorkerID),
			log:    p.log.WithContext(runCtx).With(zap.Stringer("shard", assign)),
			empty:  backoff.NewPause(p.cfg.emptyPolicy(), "empty"),
			errs:   backoff.NewPause(p.cfg.errorPolicy(), "error"),
		}
		cause := "exhausted"
		defer func() {
			p.end()
			w.teardown(cause)
		}()
		cause = w.run(runCtx, yield)
	}
}

// worker is the state of one iteration.
type worker struct {
	p      *Poller
	assign shard.Assignment
	label  string
	log    *logger.Logger
	empty  *backoff.Pause
	errs   *backoff.Pause
}

// run drives the loop and returns why it stopped.
func (w *worker) run(ctx context.Context, yield func(tensor.Array, error) bool) string {
	if ctx.Err() != nil {
		return "cancelled"
	}
	if !w.p.enter() {
		return "cancelled"
	}
	r, err := w.p.h.open(ctx)
	w.p.leave()
	if err != nil {
		if ctx.Err() != nil {
			return "cancelled"
		}
		connectsTotal.WithLabelValues(w.label, "error").Inc()
		w.log.Error("reader connect failed", zap.Error(err))
		yield(tensor.Array{}, &ConnectError{WorkerID: w.assign.WorkerID, Err: err})
		return "connect_error"
	}
	connectsTotal.WithLabelValues(w.label, "ok").Inc()
	w.log.Info("reader connected")

	for {
		if !w.p.enter() {
			return "cancelled"
		}
		out := pull(ctx, r)
		w.p.leave()
		outcomesTotal.WithLabelValues(w.label, out.kind.String()).Inc()

		switch out.kind {
		case outcomeRecord:
			rec := out.rec
			if !w.assign.Owns(rec.Index) {
				skippedTotal.WithLabelValues(w.label).Inc()
				continue
			}
			buf, err := decode(rec)
			if err != nil {
				w.log.Error("undecodable record",
					zap.Int64("index", rec.Index),
					zap.Int64("origin_id", rec.OriginID),
					zap.Error(err),
				)
				if _, err := w.errs.Wait(ctx); err != nil {
					return "cancelled"
				}
				continue
			}
			w.log.Debug("yielding buffer",
				zap.Int64("origin_id", rec.OriginID),
				zap.Int64("index", rec.Index),
				zap.Ints("shape", buf.Shape),
			)
			yieldedTotal.WithLabelValues(w.label).Inc()
			w.errs.Reset()
			if !yield(buf, nil) {
				return "consumer_stop"
			}

		case outcomeEmpty:
			w.log.Debug("no data received, sleeping", zap.Duration("interval", w.p.cfg.EmptyInterval))
			if _, err := w.empty.Wait(ctx); err != nil {
				return "cancelled"
			}

		case outcomeFatal:
			w.log.Error("transport fatal error, stopping", zap.Error(out.err))
			return "fatal"

		case outcomeUnexpected:
			w.log.Error("unexpected read error, retrying", zap.Error(out.err))
			if _, err := w.errs.Wait(ctx); err != nil {
				return "cancelled"
			}

		case outcomeCancelled:
			return "cancelled"
		}
	}
}

func (w *worker) teardown(cause string) {
	teardownsTotal.WithLabelValues(w.label, cause).Inc()
	if err := w.p.h.close(); err != nil {
		w.log.Warn("reader close failed", zap.String("cause", cause), zap.Error(err))
		return
	}
	w.log.Info("reader released", zap.String("cause", cause))
}

// decode reshapes a 2-D payload into (1, H, W).
func decode(rec reader.Record) (tensor.Array, error) {
	p := rec.Payload
	if err := p.Validate(); err != nil {
		return tensor.Array{}, err
	}
	if p.NDim() != 2 {
		return tensor.Array{}, fmt.Errorf("%w: want a 2-D payload, got %v", tensor.ErrShape, p.Shape)
	}
	return p.Unsqueeze(), nil
}
