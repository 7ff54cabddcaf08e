package ruleset

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records store activity. A nil *Metrics is valid and records nothing.
type Metrics struct {
	replaceTotal  *prometheus.CounterVec
	identifyTotal *prometheus.CounterVec
	rules         prometheus.Gauge
	updated       prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		replaceTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ledgerpub",
			Subsystem: "ruleset",
			Name:      "replace_total",
			Help:      "Ruleset replace attempts by result.",
		}, []string{"result"}),
		identifyTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ledgerpub",
			Name:      "identify_total",
			Help:      "Publisher identity lookups by outcome.",
		}, []string{"outcome"}),
		rules: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ledgerpub",
			Subsystem: "ruleset",
			Name:      "rules",
			Help:      "Number of rules in the current ruleset.",
		}),
		updated: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ledgerpub",
			Subsystem: "ruleset",
			Name:      "updated_timestamp_seconds",
			Help:      "Write time of the current ruleset, 0 for the built-in default.",
		}),
	}
	reg.MustRegister(m.replaceTotal, m.identifyTotal, m.rules, m.updated)
	return m
}

const (
	resultOK         = "ok"
	resultInvalid    = "invalid"
	resultPersistErr = "persist_error"

	outcomeFound         = "found"
	outcomeNotFound      = "not_found"
	outcomeInvalidURL    = "invalid_url"
	outcomeUnprocessable = "unprocessable"
)

func (m *Metrics) replaced(result string) {
	if m == nil {
		return
	}
	m.replaceTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) identified(outcome string) {
	if m == nil {
		return
	}
	m.identifyTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) current(s *Snapshot) {
	if m == nil {
		return
	}
	m.rules.Set(float64(len(s.Rules)))
	if s.UpdatedAt.IsZero() {
		m.updated.Set(0)
		return
	}
	m.updated.Set(float64(s.UpdatedAt.UnixNano()) / 1e9)
}
