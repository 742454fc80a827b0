package telemetry

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics records heartbeat traffic and registry state.
type PrometheusMetrics struct {
	requests       *prometheus.CounterVec
	trackedClients prometheus.Gauge
	silentClients  prometheus.Gauge
}

// NewPrometheusMetrics registers the heartbeat metrics with registerer,
// falling back to the default registerer when nil.
func NewPrometheusMetrics(registerer prometheus.Registerer) *PrometheusMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registerer)

	return &PrometheusMetrics{
		requests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "heartbeat_requests_total",
				Help: "Heartbeat requests handled, by response status code",
			},
			[]string{"code"},
		),
		trackedClients: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "heartbeat_tracked_clients",
				Help: "Distinct client identifiers recorded since start",
			},
		),
		silentClients: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "heartbeat_silent_clients",
				Help: "Clients whose last heartbeat is older than the silence threshold",
			},
		),
	}
}

// ObserveRequest counts one handled request by its status code.
func (p *PrometheusMetrics) ObserveRequest(status int) {
	p.requests.WithLabelValues(strconv.Itoa(status)).Inc()
}

// SetTrackedClients records how many identifiers the registry holds.
func (p *PrometheusMetrics) SetTrackedClients(count int) {
	p.trackedClients.Set(float64(count))
}

// SetSilentClients records how many clients are past the silence threshold.
func (p *PrometheusMetrics) SetSilentClients(count int) {
	p.silentClients.Set(float64(count))
}
