// services/frame-poller/internal/app/app.go
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/YaganovValera/detector-stream/common"
	"github.com/YaganovValera/detector-stream/common/httpserver"
	"github.com/YaganovValera/detector-stream/common/kafka/producer"
	"github.com/YaganovValera/detector-stream/common/logger"
	"github.com/YaganovValera/detector-stream/common/shutdown"
	"github.com/YaganovValera/detector-stream/common/telemetry"
	"github.com/YaganovValera/detector-stream/services/frame-poller/internal/config"
	"github.com/YaganovValera/detector-stream/services/frame-poller/internal/metrics"
	"github.com/YaganovValera/detector-stream/services/frame-poller/internal/sink"
	"github.com/YaganovValera/detector-stream/services/frame-poller/pkg/poller"
	"github.com/YaganovValera/detector-stream/services/frame-poller/pkg/reader"
	"github.com/YaganovValera/detector-stream/services/frame-poller/pkg/shard"
)

const shutdownTimeout = 5 * time.Second

// Option настраивает App; используется в тестах для подмены транспорта и приёмника.
type Option func(*options)

type options struct {
	factory reader.Factory
	sink    sink.Sink
	noHTTP  bool
}

func WithReaderFactory(f reader.Factory) Option { return func(o *options) { o.factory = f } }
func WithSink(s sink.Sink) Option               { return func(o *options) { o.sink = s } }
func WithoutHTTP() Option                       { return func(o *options) { o.noHTTP = true } }

type worker struct {
	assign shard.Assignment
	p      *poller.Poller
}

// App: пул пуллеров одного процесса, приёмник кадров и служебный HTTP.
type App struct {
	cfg     *config.Config
	log     *logger.Logger
	workers []worker
	sink    sink.Sink
	http    httpserver.HTTPServer
}

// New собирает App. Ридеры не создаются и не подключаются до Run.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	factory := o.factory
	if factory == nil {
		f, err := NewReaderFactory(cfg.Reader, log)
		if err != nil {
			return nil, err
		}
		factory = f
	}

	out := o.sink
	if out == nil {
		s, err := newSink(ctx, cfg.Sink, log)
		if err != nil {
			return nil, err
		}
		out = s
	}

	a := &App{cfg: cfg, log: log.Named("app"), sink: out}
	for _, as := range cfg.Assignments() {
		p, err := poller.New(factory, cfg.Poller, log)
		if err != nil {
			_ = out.Close()
			return nil, err
		}
		a.workers = append(a.workers, worker{assign: as, p: p})
	}

	if !o.noHTTP {
		srv, err := httpserver.New(cfg.HTTP, a.Ready, log)
		if err != nil {
			_ = out.Close()
			return nil, fmt.Errorf("httpserver init: %w", err)
		}
		a.http = srv
	}
	return a, nil
}

func newSink(ctx context.Context, cfg config.SinkConfig, log *logger.Logger) (sink.Sink, error) {
	switch strings.ToLower(cfg.Kind) {
	case config.SinkKafka:
		prod, err := producer.New(ctx, cfg.Producer, log)
		if err != nil {
			return nil, fmt.Errorf("kafka producer init: %w", err)
		}
		return sink.NewKafka(prod, cfg.Topic, log), nil
	case config.SinkLog:
		return sink.NewLog(log), nil
	case config.SinkNone, "":
		return sink.Nop(), nil
	default:
		return nil, fmt.Errorf("app: unknown sink kind %q", cfg.Kind)
	}
}

// Ready возвращает nil, когда ридер каждого воркера подключён.
func (a *App) Ready() error {
	for _, w := range a.workers {
		if !w.p.Connected() {
			return fmt.Errorf("worker %s: reader not connected", w.assign)
		}
	}
	return nil
}

// Run запускает воркеры и HTTP-сервер. Возвращает nil, когда все последовательности
// завершились (fatal транспорта или отмена ctx), и ошибку подключения любого воркера.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	httpCtx, stopHTTP := context.WithCancel(gctx)
	defer stopHTTP()

	if a.http != nil {
		g.Go(func() error { return a.http.Start(httpCtx) })
	}
	g.Go(func() error {
		defer stopHTTP()
		wg, wctx := errgroup.WithContext(gctx)
		for _, w := range a.workers {
			wg.Go(func() error { return a.runWorker(wctx, w) })
		}
		return wg.Wait()
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (a *App) runWorker(ctx context.Context, w worker) error {
	ctx = shard.WithAssignment(ctx, w.assign)
	ctx = logger.ContextWithWorkerID(ctx, w.assign.WorkerID)
	log := a.log.WithContext(ctx)

	metrics.ActiveWorkers.Inc()
	defer metrics.ActiveWorkers.Dec()
	log.Info("worker started", zap.Stringer("shard", w.assign))

	var published int64
	for buf, err := range w.p.Buffers(ctx) {
		if err != nil {
			metrics.WorkerExits.WithLabelValues("error").Inc()
			return fmt.Errorf("worker %s: %w", w.assign, err)
		}
		// доставка без гарантий: ошибка приёмника не останавливает воркер
		if err := a.sink.Publish(ctx, w.assign, buf); err != nil {
			log.Warn("sink publish failed", zap.Error(err))
			continue
		}
		published++
	}

	reason := "fatal"
	if ctx.Err() != nil {
		reason = "stopped"
	}
	metrics.WorkerExits.WithLabelValues(reason).Inc()
	log.Info("worker finished", zap.String("reason", reason), zap.Int64("published", published))
	return nil
}

// Close освобождает ридеры всех воркеров и приёмник.
func (a *App) Close() error {
	var errs []error
	for _, w := range a.workers {
		if err := w.p.Close(); err != nil {
			errs = append(errs, fmt.Errorf("worker %s: %w", w.assign, err))
		}
	}
	if err := a.sink.Close(); err != nil {
		errs = append(errs, fmt.Errorf("sink: %w", err))
	}
	return errors.Join(errs...)
}

// Run выполняет полный жизненный цикл сервиса: метрики, трассировка, воркеры, shutdown.
func Run(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	common.InitServiceName(cfg.ServiceName)
	metrics.Register()

	shutdownTracer, err := telemetry.InitTracer(ctx, telemetry.Config{
		Endpoint:       cfg.Telemetry.OTLPEndpoint,
		ServiceName:    cfg.ServiceName,
		ServiceVersion: cfg.ServiceVersion,
		Insecure:       cfg.Telemetry.Insecure,
		SamplerRatio:   cfg.Telemetry.SamplerRatio,
		Timeout:        cfg.Telemetry.Timeout,
	}, log)
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}
	defer func() {
		_ = shutdown.GracefulShutdown("telemetry", shutdownTimeout, func(ctx context.Context) error {
			return shutdownTracer(ctx)
		}, log)
	}()

	a, err := New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		_ = shutdown.GracefulShutdown("workers", shutdownTimeout, func(context.Context) error {
			return a.Close()
		}, log)
	}()

	log.Info("frame-poller starting",
		zap.Int("workers", len(a.workers)),
		zap.String("reader", cfg.Reader.Kind),
		zap.String("sink", cfg.Sink.Kind),
	)
	return a.Run(ctx)
}
