// services/frame-poller/pkg/reader/instrumented.go
package reader

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	promreg "github.com/YaganovValera/detector-stream/common/prometheus"
)

var tracer = otel.Tracer("frame-poller/reader")

var (
	readLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "frame_poller", Subsystem: "transport", Name: "read_seconds",
		Help:    "Reader.Read latency by transport and result",
		Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5},
	}, []string{"transport", "result"})

	payloadBytes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "frame_poller", Subsystem: "transport", Name: "payload_bytes_total",
		Help: "Payload bytes received by transport",
	}, []string{"transport"})

	connectLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "frame_poller", Subsystem: "transport", Name: "connect_seconds",
		Help:    "Reader.Connect latency by transport and result",
		Buckets: prometheus.DefBuckets,
	}, []string{"transport", "result"})
)

// RegisterMetrics регистрирует метрики транспорта; повторный вызов безопасен.
func RegisterMetrics() {
	promreg.MustRegisterMany(readLatency, payloadBytes, connectLatency)
}

type instrumented struct {
	next Reader
	kind string
}

// Instrument wraps r with tracing spans and Prometheus metrics labelled by kind.
func Instrument(r Reader, kind string) Reader {
	return &instrumented{next: r, kind: kind}
}

// Unwrap returns the wrapped reader.
func (i *instrumented) Unwrap() Reader { return i.next }

func (i *instrumented) Connect(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "reader.connect", trace.WithAttributes(attribute.String("transport", i.kind)))
	defer span.End()

	start := time.Now()
	err := i.next.Connect(ctx)
	result := "ok"
	if err != nil {
		result = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, "connect failed")
	}
	connectLatency.WithLabelValues(i.kind, result).Observe(time.Since(start).Seconds())
	return err
}

func (i *instrumented) Read(ctx context.Context) (Record, bool, error) {
	start := time.Now()
	rec, ok, err := i.next.Read(ctx)
	elapsed := time.Since(start)

	var result string
	switch {
	case err != nil && IsFatal(err):
		result = "fatal"
	case err != nil:
		result = "error"
	case !ok:
		// пустые чтения не трассируем, их слишком много
		readLatency.WithLabelValues(i.kind, "empty").Observe(elapsed.Seconds())
		return rec, ok, err
	default:
		result = "record"
		payloadBytes.WithLabelValues(i.kind).Add(float64(len(rec.Payload.Data)))
	}
	readLatency.WithLabelValues(i.kind, result).Observe(elapsed.Seconds())

	_, span := tracer.Start(ctx, "reader.read",
		trace.WithTimestamp(start),
		trace.WithAttributes(
			attribute.String("transport", i.kind),
			attribute.String("result", result),
		),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, result)
	} else {
		span.SetAttributes(
			attribute.Int64("frame.index", rec.Index),
			attribute.Int64("frame.origin_id", rec.OriginID),
		)
	}
	span.End()
	return rec, ok, err
}

func (i *instrumented) Close() error {
	_, span := tracer.Start(context.Background(), "reader.close", trace.WithAttributes(attribute.String("transport", i.kind)))
	defer span.End()
	err := i.next.Close()
	if err != nil {
		span.RecordError(err)
	}
	return err
}
