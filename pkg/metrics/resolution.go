package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// ResolutionMetrics tracks invoice line resolution outcomes.
type ResolutionMetrics struct {
	outcomes       *prometheus.CounterVec
	scores         prometheus.Histogram
	aliasConflicts prometheus.Counter
	aliasLookups   *prometheus.CounterVec
	batches        *prometheus.CounterVec
}

// NewResolutionMetrics registers the resolution metrics. A nil registerer
// yields a no-op recorder.
func NewResolutionMetrics(reg prometheus.Registerer) *ResolutionMetrics {
	if reg == nil {
		return &ResolutionMetrics{}
	}
	m := &ResolutionMetrics{
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "line_resolutions_total",
			Help:      "Invoice line resolutions by resulting status and provenance.",
		}, []string{"status", "provenance"}),
		scores: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "match_top_score",
			Help:      "Confidence of the best candidate per fuzzy resolution.",
			Buckets:   []float64{0.2, 0.4, 0.6, 0.7, 0.8, 0.85, 0.9, 0.95, 0.99, 1},
		}),
		aliasConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alias_conflicts_total",
			Help:      "Alias writes rejected because the key maps to another item.",
		}),
		aliasLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alias_lookups_total",
			Help:      "Alias store lookups by result.",
		}, []string{"result"}),
		batches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bulk_batches_total",
			Help:      "Bulk resolution batches by result.",
		}, []string{"result"}),
	}
	reg.MustRegister(m.outcomes, m.scores, m.aliasConflicts, m.aliasLookups, m.batches)
	return m
}

// ObserveOutcome counts one resolved line.
func (m *ResolutionMetrics) ObserveOutcome(status, provenance string) {
	if m == nil || m.outcomes == nil {
		return
	}
	m.outcomes.WithLabelValues(normalizeLabel(status), normalizeLabel(provenance)).Inc()
}

// ObserveTopScore records the best fuzzy score of a resolution.
func (m *ResolutionMetrics) ObserveTopScore(score float64) {
	if m == nil || m.scores == nil {
		return
	}
	m.scores.Observe(score)
}

// IncAliasConflict counts a rejected alias write.
func (m *ResolutionMetrics) IncAliasConflict() {
	if m == nil || m.aliasConflicts == nil {
		return
	}
	m.aliasConflicts.Inc()
}

// ObserveAliasLookup counts an alias lookup as hit or miss.
func (m *ResolutionMetrics) ObserveAliasLookup(hit bool) {
	if m == nil || m.aliasLookups == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.aliasLookups.WithLabelValues(result).Inc()
}

// ObserveBatch counts a bulk batch as succeeded or failed.
func (m *ResolutionMetrics) ObserveBatch(failed bool) {
	if m == nil || m.batches == nil {
		return
	}
	result := "success"
	if failed {
		result = "failure"
	}
	m.batches.WithLabelValues(result).Inc()
}
