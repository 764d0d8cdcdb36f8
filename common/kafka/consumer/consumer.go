// common/kafka/consumer/consumer.go
//
// Подписчик без consumer group: каждый экземпляр читает все разделы топика
// сам, поэтому несколько подписчиков видят один и тот же поток (fan-out).
package consumer

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/dnwe/otelsarama"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/YaganovValera/detector-stream/common/backoff"
	commonkafka "github.com/YaganovValera/detector-stream/common/kafka"
	"github.com/YaganovValera/detector-stream/common/logger"
)

// -----------------------------------------------------------------------------
// Service label (заполняется из common.InitServiceName)
// -----------------------------------------------------------------------------

var serviceLabel = "unknown"

// SetServiceLabel задаёт единое имя сервиса для метрик.
func SetServiceLabel(name string) { serviceLabel = name }

var consumerMetrics = struct {
	ConnectAttempts *prometheus.CounterVec
	ConnectErrors   *prometheus.CounterVec
	ConsumeErrors   *prometheus.CounterVec
	Messages        *prometheus.CounterVec
}{
	ConnectAttempts: promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "common", Subsystem: "kafka_consumer", Name: "connect_attempts_total",
			Help: "Kafka consumer connect attempts",
		},
		[]string{"service"},
	),
	ConnectErrors: promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "common", Subsystem: "kafka_consumer", Name: "connect_errors_total",
			Help: "Kafka consumer connect errors",
		},
		[]string{"service"},
	),
	ConsumeErrors: promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "common", Subsystem: "kafka_consumer", Name: "consume_errors_total",
			Help: "Errors reported by partition consumers",
		},
		[]string{"service"},
	),
	Messages: promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "common", Subsystem: "kafka_consumer", Name: "messages_total",
			Help: "Messages received from all partitions",
		},
		[]string{"service", "topic"},
	),
}

var tracer = otel.Tracer("kafka-consumer")

// -----------------------------------------------------------------------------
// Configuration
// -----------------------------------------------------------------------------

// Config содержит параметры подписки на один топик.
type Config struct {
	Brokers  []string       `mapstructure:"brokers"`
	Topic    string         `mapstructure:"topic"`
	Version  string         `mapstructure:"version"`   // версия протокола Kafka, например "2.8.0"
	Offset   string         `mapstructure:"offset"`    // "newest" (дефолт) | "oldest"
	ClientID string         `mapstructure:"client_id"` // попадает в логи брокера
	Buffer   int            `mapstructure:"buffer"`    // ёмкость общего канала сообщений
	Backoff  backoff.Config `mapstructure:"backoff"`
}

// ApplyDefaults заполняет пустые поля.
func (c *Config) ApplyDefaults() {
	if c.Version == "" {
		c.Version = "2.8.0"
	}
	if c.Offset == "" {
		c.Offset = "newest"
	}
	if c.Buffer <= 0 {
		c.Buffer = 256
	}
}

// Validate проверяет обязательные поля.
func (c Config) Validate() error {
	if len(c.Brokers) == 0 {
		return fmt.Errorf("kafka consumer: brokers required")
	}
	if c.Topic == "" {
		return fmt.Errorf("kafka consumer: topic required")
	}
	if _, err := c.initialOffset(); err != nil {
		return err
	}
	return nil
}

func (c Config) initialOffset() (int64, error) {
	switch strings.ToLower(c.Offset) {
	case "", "newest":
		return sarama.OffsetNewest, nil
	case "oldest":
		return sarama.OffsetOldest, nil
	default:
		return 0, fmt.Errorf("kafka consumer: invalid offset %q", c.Offset)
	}
}

// -----------------------------------------------------------------------------
// Subscriber implementation
// -----------------------------------------------------------------------------

type fanout struct {
	consumer sarama.Consumer
	parts    []sarama.PartitionConsumer
	msgs     chan *commonkafka.Message
	errs     chan error
	done     chan struct{}
	wg       sync.WaitGroup
	once     sync.Once
	closeErr error
	log      *logger.Logger
}

// New подключается к кластеру с ретраями и подписывается на все разделы топика.
func New(ctx context.Context, cfg Config, log *logger.Logger) (commonkafka.Subscriber, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log = log.Named("kafka-consumer")

	version, err := sarama.ParseKafkaVersion(cfg.Version)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: invalid Version %q: %w", cfg.Version, err)
	}
	sc := sarama.NewConfig()
	sc.Version = version
	sc.Consumer.Return.Errors = true
	if cfg.ClientID != "" {
		sc.ClientID = cfg.ClientID
	}

	var c sarama.Consumer
	connectOp := func(ctx context.Context) error {
		consumerMetrics.ConnectAttempts.WithLabelValues(serviceLabel).Inc()
		cc, err := sarama.NewConsumer(cfg.Brokers, sc)
		if err != nil {
			consumerMetrics.ConnectErrors.WithLabelValues(serviceLabel).Inc()
			return err
		}
		c = cc
		return nil
	}

	ctxConn, span := tracer.Start(ctx, "Connect", trace.WithAttributes(
		attribute.StringSlice("brokers", cfg.Brokers),
		attribute.String("topic", cfg.Topic),
	))
	if err := backoff.Execute(ctxConn, cfg.Backoff, log, connectOp); err != nil {
		span.RecordError(err)
		span.End()
		return nil, fmt.Errorf("kafka consumer: connect failed: %w", err)
	}
	span.End()

	sub, err := Subscribe(otelsarama.WrapConsumer(c), cfg, log)
	if err != nil {
		_ = c.Close()
		return nil, err
	}
	return sub, nil
}

// Subscribe запускает чтение всех разделов cfg.Topic через готовый sarama.Consumer.
// При успехе подписчик владеет consumer и закрывает его в Close.
func Subscribe(c sarama.Consumer, cfg Config, log *logger.Logger) (commonkafka.Subscriber, error) {
	cfg.ApplyDefaults()
	offset, err := cfg.initialOffset()
	if err != nil {
		return nil, err
	}

	partitions, err := c.Partitions(cfg.Topic)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: partitions of %q: %w", cfg.Topic, err)
	}
	if len(partitions) == 0 {
		return nil, fmt.Errorf("kafka consumer: topic %q has no partitions", cfg.Topic)
	}

	f := &fanout{
		consumer: c,
		msgs:     make(chan *commonkafka.Message, cfg.Buffer),
		errs:     make(chan error, len(partitions)),
		done:     make(chan struct{}),
		log:      log,
	}
	for _, p := range partitions {
		pc, err := c.ConsumePartition(cfg.Topic, p, offset)
		if err != nil {
			f.closePartitions()
			return nil, fmt.Errorf("kafka consumer: consume %s/%d: %w", cfg.Topic, p, err)
		}
		f.parts = append(f.parts, pc)
	}

	for _, pc := range f.parts {
		f.wg.Add(1)
		go f.forward(pc)
	}
	go func() {
		f.wg.Wait()
		close(f.msgs)
	}()

	log.Info("kafka consumer subscribed",
		zap.String("topic", cfg.Topic),
		zap.Int32s("partitions", partitions),
	)
	return f, nil
}

func (f *fanout) forward(pc sarama.PartitionConsumer) {
	defer f.wg.Done()
	msgs, errs := pc.Messages(), pc.Errors()
	for msgs != nil {
		select {
		case m, ok := <-msgs:
			if !ok {
				msgs = nil
				continue
			}
			consumerMetrics.Messages.WithLabelValues(serviceLabel, m.Topic).Inc()
			select {
			case f.msgs <- toMessage(m):
			case <-f.done:
				return
			}
		case cerr, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			consumerMetrics.ConsumeErrors.WithLabelValues(serviceLabel).Inc()
			select {
			case f.errs <- cerr:
			case <-f.done:
				return
			default:
				f.log.Warn("kafka consumer: error dropped, queue full", zap.Error(cerr))
			}
		case <-f.done:
			return
		}
	}
}

func toMessage(m *sarama.ConsumerMessage) *commonkafka.Message {
	headers := make(map[string][]byte, len(m.Headers))
	for _, hdr := range m.Headers {
		if hdr != nil && hdr.Key != nil {
			headers[string(hdr.Key)] = hdr.Value
		}
	}
	return &commonkafka.Message{
		Key:       m.Key,
		Value:     m.Value,
		Topic:     m.Topic,
		Partition: m.Partition,
		Offset:    m.Offset,
		Timestamp: m.Timestamp,
		Headers:   headers,
	}
}

func (f *fanout) Messages() <-chan *commonkafka.Message { return f.msgs }
func (f *fanout) Errors() <-chan error                  { return f.errs }

// Close останавливает все разделы и consumer. Повторный вызов безопасен.
func (f *fanout) Close() error {
	f.once.Do(func() {
		start := time.Now()
		close(f.done)
		f.closePartitions()
		f.wg.Wait()
		if err := f.consumer.Close(); err != nil && f.closeErr == nil {
			f.closeErr = err
		}
		f.log.Info("kafka consumer closed", zap.Duration("took", time.Since(start)))
	})
	return f.closeErr
}

func (f *fanout) closePartitions() {
	for _, pc := range f.parts {
		if err := pc.Close(); err != nil {
			f.log.Warn("kafka consumer: partition close", zap.Error(err))
		}
	}
	f.parts = nil
}
