// services/frame-poller/internal/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	promreg "github.com/YaganovValera/detector-stream/common/prometheus"
	"github.com/YaganovValera/detector-stream/services/frame-poller/pkg/poller"
	"github.com/YaganovValera/detector-stream/services/frame-poller/pkg/reader"
	readerws "github.com/YaganovValera/detector-stream/services/frame-poller/pkg/reader/websocket"
)

var (
	// ActiveWorkers: число запущенных пуллеров.
	ActiveWorkers = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "frame_poller",
		Subsystem: "app",
		Name:      "active_workers",
		Help:      "Number of running pollers",
	})

	// WorkerExits: завершения пуллеров по причине (fatal, error, stopped).
	WorkerExits = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "frame_poller",
		Subsystem: "app",
		Name:      "worker_exits_total",
		Help:      "Poller exits by reason",
	}, []string{"reason"})

	// SinkPublished: кадры, отправленные в приёмник.
	SinkPublished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "frame_poller",
		Subsystem: "sink",
		Name:      "published_total",
		Help:      "Buffers delivered to the sink",
	}, []string{"sink", "worker"})

	// SinkErrors: ошибки публикации.
	SinkErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "frame_poller",
		Subsystem: "sink",
		Name:      "publish_errors_total",
		Help:      "Buffers the sink failed to deliver",
	}, []string{"sink", "worker"})

	// PublishLatency: задержка публикации одного кадра.
	PublishLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "frame_poller",
		Subsystem: "sink",
		Name:      "publish_seconds",
		Help:      "Latency of a single sink publish",
		Buckets:   prometheus.DefBuckets,
	}, []string{"sink"})
)

// Register регистрирует метрики сервиса и всех его пакетов.
func Register() {
	promreg.MustRegisterMany(ActiveWorkers, WorkerExits, SinkPublished, SinkErrors, PublishLatency)
	poller.RegisterMetrics()
	reader.RegisterMetrics()
	readerws.RegisterMetrics()
}
