package player

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/zachfi/radiorelay/pkg/playback"
)

type metrics struct {
	status            *prometheus.GaugeVec
	reconnects        prometheus.Counter
	sessions          prometheus.Counter
	keepAwakeFailures prometheus.Counter
	keepAwakeRetries  prometheus.Counter
}

func newMetrics(namespace string, reg prometheus.Registerer) *metrics {
	f := promauto.With(reg)

	return &metrics{
		status: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: module,
			Name:      "status",
			Help:      "Current playback status; 1 for the active status, 0 otherwise.",
		}, []string{"status"}),
		reconnects: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: module,
			Name:      "reconnects_scheduled_total",
			Help:      "Reconnect attempts scheduled after a stream interruption.",
		}),
		sessions: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: module,
			Name:      "source_sessions_total",
			Help:      "Source connections opened.",
		}),
		keepAwakeFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: module,
			Name:      "keep_awake_failures_total",
			Help:      "Keep-awake requests or releases that failed. These never affect playback.",
		}),
		keepAwakeRetries: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: module,
			Name:      "keep_awake_retries_total",
			Help:      "Keep-awake requests scheduled again after the hold was lost.",
		}),
	}
}

func (m *metrics) setStatus(s playback.Status) {
	for _, st := range playback.Statuses() {
		v := 0.0
		if st == s {
			v = 1
		}
		m.status.WithLabelValues(st.String()).Set(v)
	}
}
