// services/frame-poller/pkg/poller/metrics.go
package poller

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	promreg "github.com/YaganovValera/detector-stream/common/prometheus"
)

var (
	connectsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "frame_poller", Subsystem: "reader", Name: "connects_total",
		Help: "Reader connect attempts by result",
	}, []string{"worker", "status"})

	outcomesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "frame_poller", Subsystem: "reader", Name: "reads_total",
		Help: "Classified reader results",
	}, []string{"worker", "outcome"})

	yieldedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "frame_poller", Subsystem: "shard", Name: "yielded_total",
		Help: "Buffers yielded to the consumer",
	}, []string{"worker"})

	skippedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "frame_poller", Subsystem: "shard", Name: "skipped_total",
		Help: "Records owned by other workers",
	}, []string{"worker"})

	teardownsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "frame_poller", Subsystem: "reader", Name: "teardowns_total",
		Help: "Handle teardowns by cause",
	}, []string{"worker", "cause"})
)

// RegisterMetrics регистрирует метрики poller'а; повторный вызов безопасен.
func RegisterMetrics() {
	promreg.MustRegisterMany(connectsTotal, outcomesTotal, yieldedTotal, skippedTotal, teardownsTotal)
}

func workerLabel(id int) string { return strconv.Itoa(id) }
