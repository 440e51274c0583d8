// Package monitor exposes the bridge's metrics surface to Prometheus.
package monitor

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Monitor owns a private registry so tests can build isolated instances.
type Monitor struct {
	registry *prometheus.Registry
}

// Config names the metric namespace.
type Config struct {
	Namespace string
	Subsystem string
}

func DefaultConfig() Config {
	return Config{Namespace: "tws", Subsystem: "bridge"}
}

// New registers read-through collectors over the pipeline counters and
// the queue depth probe. queueDepth may be nil when no queue is wired
// (replay against a file, some tests).
func New(cfg Config, counters *Counters, queueDepth func() int) *Monitor {
	reg := prometheus.NewRegistry()

	counterFunc := func(name, help string, load func() uint64) {
		reg.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      name,
			Help:      help,
		}, func() float64 { return float64(load()) }))
	}

	counterFunc("dropped_on_full_total", "Updates dropped because the transfer queue was full.", counters.DroppedOnFull.Load)
	counterFunc("rejected_malformed_total", "Updates rejected for malformed prices or sizes.", counters.RejectedMalformed.Load)
	counterFunc("unknown_handle_total", "Callbacks discarded for unresolved subscription handles.", counters.UnknownHandle.Load)
	counterFunc("published_total", "Snapshots published to the sink.", counters.Published.Load)
	counterFunc("publish_failures_total", "Sink publish calls that returned an error.", counters.PublishFailures.Load)

	if queueDepth != nil {
		reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "queue_depth",
			Help:      "Updates currently waiting in the transfer queue.",
		}, func() float64 { return float64(queueDepth()) }))
	}

	return &Monitor{registry: reg}
}

// Handler serves the registry in Prometheus exposition format.
func (m *Monitor) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for test gathering.
func (m *Monitor) Registry() *prometheus.Registry { return m.registry }
