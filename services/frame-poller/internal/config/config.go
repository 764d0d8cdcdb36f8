// services/frame-poller/internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/YaganovValera/detector-stream/common/configloader"
	"github.com/YaganovValera/detector-stream/common/httpserver"
	"github.com/YaganovValera/detector-stream/common/kafka/producer"
	"github.com/YaganovValera/detector-stream/services/frame-poller/pkg/poller"
	readeramqp "github.com/YaganovValera/detector-stream/services/frame-poller/pkg/reader/amqp"
	readerkafka "github.com/YaganovValera/detector-stream/services/frame-poller/pkg/reader/kafka"
	"github.com/YaganovValera/detector-stream/services/frame-poller/pkg/reader/memory"
	"github.com/YaganovValera/detector-stream/services/frame-poller/pkg/reader/redisstream"
	readerws "github.com/YaganovValera/detector-stream/services/frame-poller/pkg/reader/websocket"
	"github.com/YaganovValera/detector-stream/services/frame-poller/pkg/shard"
)

// EnvPrefix задаёт префикс переменных окружения, например FRAME_POLLER_READER_KIND.
const EnvPrefix = "FRAME_POLLER"

// Виды источников кадров.
const (
	ReaderSynthetic = "synthetic"
	ReaderKafka     = "kafka"
	ReaderRedis     = "redis"
	ReaderAMQP      = "amqp"
	ReaderWebSocket = "websocket"
)

// Виды приёмников.
const (
	SinkNone  = "none"
	SinkLog   = "log"
	SinkKafka = "kafka"
)

// -----------------------------------------------------------------------------
// Структуры
// -----------------------------------------------------------------------------

// Config: все настройки сервиса.
type Config struct {
	ServiceName    string `mapstructure:"service_name"`
	ServiceVersion string `mapstructure:"service_version"`

	// Workers > 1 запускает столько пуллеров в одном процессе с назначениями (i, Workers).
	// Иначе процесс: один воркер с назначением Shard.
	Workers int              `mapstructure:"workers"`
	Shard   shard.Assignment `mapstructure:"shard"`

	Poller    poller.Config     `mapstructure:"poller"`
	Reader    ReaderConfig      `mapstructure:"reader"`
	Sink      SinkConfig        `mapstructure:"sink"`
	Telemetry TelemetryConfig   `mapstructure:"telemetry"`
	Logging   LoggingConfig     `mapstructure:"logging"`
	HTTP      httpserver.Config `mapstructure:"http"`
}

// ReaderConfig выбирает транспорт и хранит настройки каждого из них.
type ReaderConfig struct {
	Kind      string                 `mapstructure:"kind"`
	Synthetic memory.GeneratorConfig `mapstructure:"synthetic"`
	Kafka     readerkafka.Config     `mapstructure:"kafka"`
	Redis     redisstream.Config     `mapstructure:"redis"`
	AMQP      readeramqp.Config      `mapstructure:"amqp"`
	WebSocket readerws.Config        `mapstructure:"websocket"`
}

// SinkConfig: куда уходят выданные кадры.
type SinkConfig struct {
	Kind     string          `mapstructure:"kind"`
	Topic    string          `mapstructure:"topic"`
	Producer producer.Config `mapstructure:"producer"`
}

type TelemetryConfig struct {
	OTLPEndpoint string        `mapstructure:"otel_endpoint"` // пусто → трассировка выключена
	Insecure     bool          `mapstructure:"insecure"`
	SamplerRatio float64       `mapstructure:"sampler_ratio"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

type LoggingConfig struct {
	Level   string `mapstructure:"level"`
	DevMode bool   `mapstructure:"dev_mode"`
}

// -----------------------------------------------------------------------------
// Defaults
// -----------------------------------------------------------------------------

func init() {
	configloader.RegisterDefaultsMap(map[string]interface{}{
		"service_name":    "frame-poller",
		"service_version": "v0.1.0",
		"workers":         1,

		"shard.worker_id":   0,
		"shard.num_workers": 1,

		"poller.empty_interval":     "100ms",
		"poller.error_interval":     "1s",
		"poller.error_multiplier":   1.0,
		"poller.error_max_interval": "0s",

		"reader.kind":               ReaderSynthetic,
		"reader.synthetic.height":   4,
		"reader.synthetic.width":    4,
		"reader.synthetic.dtype":    "uint8",
		"reader.synthetic.interval": "50ms",

		"reader.kafka.brokers":      []string{},
		"reader.kafka.topic":        "",
		"reader.kafka.offset":       "newest",
		"reader.kafka.poll_timeout": "0s",

		"reader.redis.url":      "",
		"reader.redis.addr":     "",
		"reader.redis.stream":   "",
		"reader.redis.field":    "frame",
		"reader.redis.block":    "0s",
		"reader.redis.start_id": "$",

		"reader.amqp.url":      "",
		"reader.amqp.exchange": "",

		"reader.websocket.url":         "",
		"reader.websocket.buffer_size": 64,

		"sink.kind":                   SinkLog,
		"sink.topic":                  "frames",
		"sink.producer.brokers":       []string{},
		"sink.producer.required_acks": "all",
		"sink.producer.timeout":       "5s",
		"sink.producer.compression":   "none",

		"telemetry.otel_endpoint": "",
		"telemetry.insecure":      true,
		"telemetry.sampler_ratio": 1.0,

		"logging.level":    "info",
		"logging.dev_mode": false,

		"http.addr":             ":8080",
		"http.read_timeout":     "10s",
		"http.write_timeout":    "15s",
		"http.idle_timeout":     "60s",
		"http.shutdown_timeout": "5s",
		"http.metrics_path":     "/metrics",
		"http.healthz_path":     "/healthz",
		"http.readyz_path":      "/readyz",
	})
}

// -----------------------------------------------------------------------------
// Loader
// -----------------------------------------------------------------------------

// Load читает конфиг: defaults → YAML → ENV → флаги. path может быть пустым.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	opts := configloader.Options{Path: path, EnvPrefix: EnvPrefix}
	if flags != nil {
		opts.Flags = map[string]*pflag.Flag{
			"workers":           flags.Lookup("workers"),
			"shard.worker_id":   flags.Lookup("worker-id"),
			"shard.num_workers": flags.Lookup("num-workers"),
			"reader.kind":       flags.Lookup("reader"),
			"logging.level":     flags.Lookup("log-level"),
		}
	}
	var cfg Config
	if err := configloader.LoadWith(opts, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// -----------------------------------------------------------------------------
// Validation
// -----------------------------------------------------------------------------

func (c *Config) Validate() error {
	if c.ServiceName == "" {
		return fmt.Errorf("service_name is required")
	}
	if c.ServiceVersion == "" {
		return fmt.Errorf("service_version is required")
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must be >= 0")
	}
	if err := c.Shard.Validate(); err != nil {
		return err
	}
	if c.Workers > 1 && c.Shard.NumWorkers > 1 {
		return fmt.Errorf("workers and shard.num_workers are mutually exclusive")
	}

	c.Poller.ApplyDefaults()
	if err := c.Poller.Validate(); err != nil {
		return err
	}
	if err := c.Reader.validate(); err != nil {
		return err
	}
	if err := c.Sink.validate(); err != nil {
		return err
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error]")
	}
	if c.Telemetry.SamplerRatio < 0 || c.Telemetry.SamplerRatio > 1 {
		return fmt.Errorf("telemetry.sampler_ratio must be in [0, 1]")
	}
	if c.HTTP.Addr == "" {
		return fmt.Errorf("http.addr is required")
	}
	return nil
}

func (r *ReaderConfig) validate() error {
	switch strings.ToLower(r.Kind) {
	case ReaderSynthetic:
		r.Synthetic.ApplyDefaults()
		return r.Synthetic.Validate()
	case ReaderKafka:
		r.Kafka.ApplyDefaults()
		return r.Kafka.Validate()
	case ReaderRedis:
		r.Redis.ApplyDefaults()
		return r.Redis.Validate()
	case ReaderAMQP:
		r.AMQP.ApplyDefaults()
		return r.AMQP.Validate()
	case ReaderWebSocket:
		r.WebSocket.ApplyDefaults()
		return r.WebSocket.Validate()
	default:
		return fmt.Errorf("reader.kind must be one of [%s, %s, %s, %s, %s], got %q",
			ReaderSynthetic, ReaderKafka, ReaderRedis, ReaderAMQP, ReaderWebSocket, r.Kind)
	}
}

func (s *SinkConfig) validate() error {
	switch strings.ToLower(s.Kind) {
	case SinkNone, SinkLog:
		return nil
	case SinkKafka:
		if s.Topic == "" {
			return fmt.Errorf("sink.topic is required for kafka sink")
		}
		if len(s.Producer.Brokers) == 0 {
			return fmt.Errorf("sink.producer.brokers is required for kafka sink")
		}
		return nil
	default:
		return fmt.Errorf("sink.kind must be one of [%s, %s, %s], got %q", SinkNone, SinkLog, SinkKafka, s.Kind)
	}
}

// Assignments возвращает назначения воркеров этого процесса.
func (c *Config) Assignments() []shard.Assignment {
	if c.Workers > 1 {
		return shard.All(c.Workers)
	}
	return []shard.Assignment{c.Shard}
}

// Print выводит текущий конфиг в JSON (удобно в DevMode).
func (c *Config) Print() { configloader.PrintConfig(c) }
