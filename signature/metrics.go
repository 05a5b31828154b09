package signature

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts pipeline outcomes. A nil *Metrics records nothing.
type Metrics struct {
	resolutions   *prometheus.CounterVec
	fetchFailures prometheus.Counter
	fetchDuration prometheus.Histogram
	insertions    *prometheus.CounterVec
	invalidations prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg when
// reg is not nil
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "autosig",
			Name:      "resolutions_total",
			Help:      "Signature resolutions by compose kind and source.",
		}, []string{"kind", "source"}),
		fetchFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "autosig",
			Name:      "fetch_failures_total",
			Help:      "Remote signature fetches that failed or timed out.",
		}),
		fetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "autosig",
			Name:      "fetch_duration_seconds",
			Help:      "Duration of remote signature fetches.",
			Buckets:   prometheus.DefBuckets,
		}),
		insertions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "autosig",
			Name:      "insertions_total",
			Help:      "Signature insertions by outcome.",
		}, []string{"outcome"}),
		invalidations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "autosig",
			Name:      "invalidations_total",
			Help:      "Cache purges triggered by the clear-storage flag.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.resolutions, m.fetchFailures, m.fetchDuration, m.insertions, m.invalidations)
	}
	return m
}

func (m *Metrics) resolved(r Result) {
	if m == nil {
		return
	}
	m.resolutions.WithLabelValues(r.Kind.String(), string(r.Source)).Inc()
}

func (m *Metrics) fetched(start time.Time, err error) {
	if m == nil {
		return
	}
	m.fetchDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		m.fetchFailures.Inc()
	}
}

func (m *Metrics) inserted(outcome string) {
	if m == nil {
		return
	}
	m.insertions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) invalidated() {
	if m == nil {
		return
	}
	m.invalidations.Inc()
}
