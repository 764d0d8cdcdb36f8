// services/frame-poller/internal/sink/sink.go

// Package sink delivers the buffers a worker yields.
package sink

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	commonkafka "github.com/YaganovValera/detector-stream/common/kafka"
	"github.com/YaganovValera/detector-stream/common/logger"
	"github.com/YaganovValera/detector-stream/services/frame-poller/internal/metrics"
	"github.com/YaganovValera/detector-stream/services/frame-poller/pkg/reader"
	"github.com/YaganovValera/detector-stream/services/frame-poller/pkg/record"
	"github.com/YaganovValera/detector-stream/services/frame-poller/pkg/shard"
	"github.com/YaganovValera/detector-stream/services/frame-poller/pkg/tensor"
)

var tracer = otel.Tracer("frame-poller/sink")

// Заголовки сообщений Kafka.
const (
	HeaderWorkerID   = "worker_id"
	HeaderNumWorkers = "num_workers"
	HeaderSeq        = "seq"
	HeaderShape      = "shape"
)

// Sink принимает кадры одного или нескольких воркеров.
type Sink interface {
	Publish(ctx context.Context, a shard.Assignment, buf tensor.Array) error
	Close() error
}

// -----------------------------------------------------------------------------
// Kafka
// -----------------------------------------------------------------------------

type kafkaSink struct {
	prod  commonkafka.Producer
	topic string
	log   *logger.Logger
	seq   atomic.Int64
}

// NewKafka публикует кадры в topic; ключ сообщения: worker id, значение:
// запись в формате pkg/record, где Index содержит порядковый номер кадра в процессе.
func NewKafka(prod commonkafka.Producer, topic string, log *logger.Logger) Sink {
	return &kafkaSink{prod: prod, topic: topic, log: log.Named("kafka-sink")}
}

func (s *kafkaSink) Publish(ctx context.Context, a shard.Assignment, buf tensor.Array) error {
	worker := strconv.Itoa(a.WorkerID)
	ctx, span := tracer.Start(ctx, "Sink.Publish")
	defer span.End()
	span.SetAttributes(
		attribute.String("sink.topic", s.topic),
		attribute.Int("worker.id", a.WorkerID),
	)

	seq := s.seq.Add(1)
	value := record.Marshal(reader.Record{Index: seq, Payload: buf})
	headers := []commonkafka.Header{
		{Key: HeaderWorkerID, Value: []byte(worker)},
		{Key: HeaderNumWorkers, Value: []byte(strconv.Itoa(a.NumWorkers))},
		{Key: HeaderSeq, Value: []byte(strconv.FormatInt(seq, 10))},
		{Key: HeaderShape, Value: []byte(fmt.Sprint(buf.Shape))},
	}

	start := time.Now()
	err := s.prod.Publish(ctx, s.topic, []byte(worker), value, headers...)
	metrics.PublishLatency.WithLabelValues("kafka").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.SinkErrors.WithLabelValues("kafka", worker).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("sink: publish to %s: %w", s.topic, err)
	}
	metrics.SinkPublished.WithLabelValues("kafka", worker).Inc()
	return nil
}

func (s *kafkaSink) Close() error { return s.prod.Close() }

// -----------------------------------------------------------------------------
// Log / none
// -----------------------------------------------------------------------------

type logSink struct{ log *logger.Logger }

// NewLog пишет каждый кадр в лог на уровне info.
func NewLog(log *logger.Logger) Sink { return &logSink{log: log.Named("log-sink")} }

func (s *logSink) Publish(ctx context.Context, a shard.Assignment, buf tensor.Array) error {
	s.log.WithContext(ctx).Info("frame",
		zap.Stringer("shard", a),
		zap.Ints("shape", buf.Shape),
		zap.Stringer("dtype", buf.DType),
		zap.Int("bytes", len(buf.Data)),
	)
	metrics.SinkPublished.WithLabelValues("log", strconv.Itoa(a.WorkerID)).Inc()
	return nil
}

func (s *logSink) Close() error { return nil }

type nopSink struct{}

// Nop отбрасывает кадры.
func Nop() Sink { return nopSink{} }

func (nopSink) Publish(context.Context, shard.Assignment, tensor.Array) error { return nil }
func (nopSink) Close() error                                                  { return nil }
