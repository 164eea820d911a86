package metrics

import "github.com/prometheus/client_golang/prometheus"

// BookingMetrics exposes counters/histograms for the scheduling flows.
type BookingMetrics struct {
	operationsTotal  *prometheus.CounterVec
	conflictsTotal   prometheus.Counter
	verifyTotal      *prometheus.CounterVec
	escalationsTotal *prometheus.CounterVec
	storeLatency     *prometheus.HistogramVec
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		operationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kairos",
			Subsystem: "booking",
			Name:      "operations_total",
			Help:      "Total booking operations by outcome",
		}, []string{"operation", "status"}),
		conflictsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "kairos",
			Subsystem: "booking",
			Name:      "slot_conflicts_total",
			Help:      "Writes lost to a concurrent slot transition",
		}),
		verifyTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kairos",
			Subsystem: "identity",
			Name:      "verifications_total",
			Help:      "Identity verification attempts by action and outcome",
		}, []string{"action", "outcome"}),
		escalationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kairos",
			Subsystem: "identity",
			Name:      "escalations_total",
			Help:      "Front-desk escalations by action",
		}, []string{"action"}),
		storeLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "kairos",
			Subsystem: "booking",
			Name:      "store_latency_seconds",
			Help:      "Latency of row store operations",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.operationsTotal, m.conflictsTotal, m.verifyTotal, m.escalationsTotal, m.storeLatency)
	return m
}

func (m *BookingMetrics) ObserveOperation(operation, status string) {
	if m == nil {
		return
	}
	m.operationsTotal.WithLabelValues(operation, status).Inc()
}

func (m *BookingMetrics) ObserveConflict() {
	if m == nil {
		return
	}
	m.conflictsTotal.Inc()
}

func (m *BookingMetrics) ObserveVerification(action, outcome string) {
	if m == nil {
		return
	}
	m.verifyTotal.WithLabelValues(action, outcome).Inc()
}

func (m *BookingMetrics) ObserveEscalation(action string) {
	if m == nil {
		return
	}
	m.escalationsTotal.WithLabelValues(action).Inc()
}

func (m *BookingMetrics) ObserveStoreLatency(operation string, seconds float64) {
	if m == nil {
		return
	}
	m.storeLatency.WithLabelValues(operation).Observe(seconds)
}
