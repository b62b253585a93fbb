package health

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the prometheus instruments the monitor keeps current.
type Metrics struct {
	Throughput      prometheus.Gauge
	QueueDepth      *prometheus.GaugeVec
	EligibleSenders prometheus.Gauge
	ErrorRate       prometheus.Gauge
	CopiedTotal     prometheus.Gauge
	FilteredTotal   prometheus.Gauge
	CircuitOpen     prometheus.Gauge
}

// NewMetrics registers the monitor's instruments on the given registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Throughput: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "relay_throughput_msgs_per_second",
			Help: "Messages processed per second over the last interval",
		}),
		QueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "relay_queue_depth",
			Help: "Dispatch queue depth per priority",
		}, []string{"priority"}),
		EligibleSenders: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "relay_eligible_senders",
			Help: "Senders currently able to take work",
		}),
		ErrorRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "relay_error_rate",
			Help: "EMA of the dispatch failure rate",
		}),
		CopiedTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "relay_copied_total",
			Help: "Messages successfully replicated",
		}),
		FilteredTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "relay_filtered_total",
			Help: "Messages dropped by filters",
		}),
		CircuitOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "relay_circuit_open",
			Help: "1 while the dispatch circuit breaker is open",
		}),
	}
	reg.MustRegister(
		m.Throughput, m.QueueDepth, m.EligibleSenders,
		m.ErrorRate, m.CopiedTotal, m.FilteredTotal, m.CircuitOpen,
	)
	return m
}
