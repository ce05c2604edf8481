package relay

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	reasonConnect     = "connect"
	reasonStatus      = "status"
	reasonInterrupted = "interrupted"
)

type metrics struct {
	activeSessions   prometheus.Gauge
	upstreamFailures *prometheus.CounterVec
	bytesRelayed     prometheus.Counter
}

func newMetrics(namespace string, reg prometheus.Registerer) *metrics {
	f := promauto.With(reg)

	return &metrics{
		activeSessions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: module,
			Name:      "active_sessions",
			Help:      "Client requests currently holding an upstream connection.",
		}),
		upstreamFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: module,
			Name:      "upstream_failures_total",
			Help:      "Upstream failures by reason.",
		}, []string{"reason"}),
		bytesRelayed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: module,
			Name:      "bytes_total",
			Help:      "Audio bytes relayed to clients.",
		}),
	}
}
