package telemetry

import (
	"testing"
	"time"

	"github.com/af-corp/chatfilter/internal/moderation"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

var _ moderation.Observer = (*Metrics)(nil)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var metric dto.Metric
	if err := c.Write(&metric); err != nil {
		t.Fatalf("failed to read metric: %v", err)
	}
	return metric.GetCounter().GetValue()
}

func TestNewMetrics(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	if m.DecisionsTotal == nil {
		t.Error("DecisionsTotal should not be nil")
	}
	if m.RuleMatchesTotal == nil {
		t.Error("RuleMatchesTotal should not be nil")
	}
	if m.LiteralFallbackTotal == nil {
		t.Error("LiteralFallbackTotal should not be nil")
	}
	if m.EvaluationDurationMs == nil {
		t.Error("EvaluationDurationMs should not be nil")
	}
	if m.StoreErrorsTotal == nil {
		t.Error("StoreErrorsTotal should not be nil")
	}
	if m.CompileCacheTotal == nil {
		t.Error("CompileCacheTotal should not be nil")
	}
}

func TestNewMetrics_SeparateRegistries(t *testing.T) {
	// Registering twice on the same registry panics; separate ones must not.
	NewMetrics(prometheus.NewRegistry())
	NewMetrics(prometheus.NewRegistry())
}

func TestPatternCompiled(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.PatternCompiled(moderation.ModeRegex, false)
	m.PatternCompiled(moderation.ModeLiteral, false)
	m.PatternCompiled(moderation.ModeLiteral, true)

	if v := counterValue(t, m.CompileCacheTotal.WithLabelValues("miss")); v != 2 {
		t.Errorf("expected 2 misses, got %v", v)
	}
	if v := counterValue(t, m.CompileCacheTotal.WithLabelValues("hit")); v != 1 {
		t.Errorf("expected 1 hit, got %v", v)
	}
	if v := counterValue(t, m.LiteralFallbackTotal); v != 1 {
		t.Errorf("expected 1 literal fallback, got %v", v)
	}
}

func TestRuleMatchedAndDecision(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RuleMatched(moderation.ActionReplace, moderation.ModeLiteral)
	m.Decision(moderation.OutcomeClean, 2*time.Millisecond)
	m.Decision(moderation.OutcomeBypass, 0)

	if v := counterValue(t, m.RuleMatchesTotal.WithLabelValues("replace", "literal")); v != 1 {
		t.Errorf("expected 1 rule match, got %v", v)
	}
	if v := counterValue(t, m.DecisionsTotal.WithLabelValues("clean")); v != 1 {
		t.Errorf("expected 1 clean decision, got %v", v)
	}
	if v := counterValue(t, m.DecisionsTotal.WithLabelValues("bypass")); v != 1 {
		t.Errorf("expected 1 bypass decision, got %v", v)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}
	for _, fam := range families {
		if fam.GetName() != "chatfilter_evaluation_duration_ms" {
			continue
		}
		h := fam.GetMetric()[0].GetHistogram()
		if h.GetSampleCount() != 1 {
			t.Errorf("expected bypass to be excluded from duration, got %d samples", h.GetSampleCount())
		}
		if h.GetSampleSum() != 2 {
			t.Errorf("expected 2ms recorded, got %v", h.GetSampleSum())
		}
		return
	}
	t.Error("duration histogram not gathered")
}

func TestRecordStoreError(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.RecordStoreError("rules")
	m.RecordStoreError("rules")

	if v := counterValue(t, m.StoreErrorsTotal.WithLabelValues("rules")); v != 2 {
		t.Errorf("expected 2 store errors, got %v", v)
	}
}

func TestRecordDisposition(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.RecordDisposition("hold")

	if v := counterValue(t, m.DispositionTotal.WithLabelValues("hold")); v != 1 {
		t.Errorf("expected 1 hold disposition, got %v", v)
	}
}
