package telemetry

import (
	"time"

	"github.com/af-corp/chatfilter/internal/moderation"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the moderation service.
type Metrics struct {
	DecisionsTotal       *prometheus.CounterVec
	RuleMatchesTotal     *prometheus.CounterVec
	LiteralFallbackTotal prometheus.Counter
	EvaluationDurationMs prometheus.Histogram
	StoreErrorsTotal     *prometheus.CounterVec
	CompileCacheTotal    *prometheus.CounterVec
	DispositionTotal     *prometheus.CounterVec
}

// NewMetrics creates all metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		DecisionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chatfilter_decisions_total",
			Help: "Moderation verdicts by outcome.",
		}, []string{"outcome"}),

		RuleMatchesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chatfilter_rule_matches_total",
			Help: "Rules that matched a message, by action and match mode.",
		}, []string{"action", "mode"}),

		LiteralFallbackTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "chatfilter_literal_fallback_total",
			Help: "Patterns compiled as literal substrings because they are not valid regular expressions.",
		}),

		EvaluationDurationMs: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "chatfilter_evaluation_duration_ms",
			Help:    "Time spent evaluating rules against one message, in milliseconds.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25},
		}),

		StoreErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chatfilter_store_errors_total",
			Help: "Failed configuration store reads, by what was being read.",
		}, []string{"source"}),

		CompileCacheTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chatfilter_compile_cache_total",
			Help: "Compiled pattern lookups by result.",
		}, []string{"result"}),

		DispositionTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chatfilter_disposition_total",
			Help: "Message dispositions returned to callers.",
		}, []string{"disposition"}),
	}
}

// PatternCompiled implements moderation.Observer.
func (m *Metrics) PatternCompiled(mode moderation.MatchMode, cached bool) {
	if cached {
		m.CompileCacheTotal.WithLabelValues("hit").Inc()
		return
	}
	m.CompileCacheTotal.WithLabelValues("miss").Inc()
	if mode == moderation.ModeLiteral {
		m.LiteralFallbackTotal.Inc()
	}
}

// RuleMatched implements moderation.Observer.
func (m *Metrics) RuleMatched(action moderation.Action, mode moderation.MatchMode) {
	m.RuleMatchesTotal.WithLabelValues(string(action), string(mode)).Inc()
}

// Decision implements moderation.Observer.
func (m *Metrics) Decision(outcome moderation.Outcome, elapsed time.Duration) {
	m.DecisionsTotal.WithLabelValues(string(outcome)).Inc()
	if outcome != moderation.OutcomeBypass {
		m.EvaluationDurationMs.Observe(float64(elapsed) / float64(time.Millisecond))
	}
}

// RecordStoreError records a failed store read.
func (m *Metrics) RecordStoreError(source string) {
	m.StoreErrorsTotal.WithLabelValues(source).Inc()
}

// RecordDisposition records the disposition handed back to a caller.
func (m *Metrics) RecordDisposition(disposition string) {
	m.DispositionTotal.WithLabelValues(disposition).Inc()
}
