package sla

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/delimatsuo/headhunter-sub003/internal/metrics"
)

func f64(v float64) *float64 { return &v }

func boolPtr(v bool) *bool { return &v }

func summaryWithP95(samples int, p95 float64) metrics.Summary {
	return metrics.Summary{Samples: samples, P95Ms: p95}
}

func TestEvaluateLatencyCriteria(t *testing.T) {
	obs := Observed{Summaries: map[string]metrics.Summary{
		KeyHybridSearch:  summaryWithP95(100, 900),
		KeyRerank:        summaryWithP95(100, 1500),
		KeyPipelineTotal: summaryWithP95(20, 4000),
	}}
	targets := Targets{
		EndToEndP95Ms: f64(5000),
		HybridP95Ms:   f64(1200),
		RerankP95Ms:   f64(1200),
	}

	v := Evaluate(obs, targets)

	assert.True(t, v.Criteria["end_to_end_sla_pass"])
	assert.True(t, v.Criteria["hybrid_sla_pass"])
	assert.False(t, v.Criteria["rerank_sla_pass"])
	assert.False(t, v.Pass)
}

func TestEvaluateSkipsUnobservableCriteria(t *testing.T) {
	obs := Observed{Summaries: map[string]metrics.Summary{
		KeyHybridSearch: summaryWithP95(50, 800),
	}}
	targets := Targets{
		HybridP95Ms:        f64(1200),
		CachedReadP95Ms:    f64(250), // no cached_read samples
		CacheHitRateTarget: f64(0.9), // no cache observations
		RequireScaleOut:    boolPtr(true),
	}

	v := Evaluate(obs, targets)

	assert.Contains(t, v.Criteria, "hybrid_sla_pass")
	assert.NotContains(t, v.Criteria, "cached_read_sla_pass")
	assert.NotContains(t, v.Criteria, "cache_hit_sla_pass")
	assert.NotContains(t, v.Criteria, "scale_out_observed")
	// Unobservable criteria never fail the run.
	assert.True(t, v.Pass)
}

func TestEvaluateNilTargetsYieldNoCriteria(t *testing.T) {
	obs := Observed{Summaries: map[string]metrics.Summary{
		KeyHybridSearch: summaryWithP95(50, 800),
	}}

	v := Evaluate(obs, Targets{})
	assert.Empty(t, v.Criteria)
	assert.True(t, v.Pass)
}

func TestEvaluateErrorsFailOverall(t *testing.T) {
	obs := Observed{
		Summaries: map[string]metrics.Summary{KeyHybridSearch: summaryWithP95(50, 800)},
		Errors:    []string{"POST /v1/search/hybrid: connection reset"},
	}

	v := Evaluate(obs, Targets{HybridP95Ms: f64(1200)})
	assert.True(t, v.Criteria["hybrid_sla_pass"])
	assert.False(t, v.Pass)
}

func TestEvaluateErrorRateAggregation(t *testing.T) {
	obs := Observed{Summaries: map[string]metrics.Summary{
		// 100 samples at 10% errors, 300 samples at 0%: aggregate 2.5%.
		KeyHybridSearch: {Samples: 100, ErrorRate: 0.10},
		KeyRerank:       {Samples: 300, ErrorRate: 0},
	}}

	v := Evaluate(obs, Targets{ErrorRateCeiling: f64(0.05)})
	assert.True(t, v.Criteria["error_rate_sla_pass"])

	v = Evaluate(obs, Targets{ErrorRateCeiling: f64(0.02)})
	assert.False(t, v.Criteria["error_rate_sla_pass"])
}

func TestEvaluateCacheHitRate(t *testing.T) {
	obs := Observed{
		Summaries:    map[string]metrics.Summary{},
		CacheHitRate: f64(0.97),
	}

	v := Evaluate(obs, Targets{CacheHitRateTarget: f64(0.95)})
	assert.True(t, v.Criteria["cache_hit_sla_pass"])
	assert.True(t, v.Pass)
}

func TestEvaluateColdStartCriteria(t *testing.T) {
	obs := Observed{
		Summaries: map[string]metrics.Summary{
			KeyHybridSearch: {Samples: 100, ColdStarts: metrics.ColdStartSummary{Count: 4, P95Ms: 2800}},
			KeyRerank:       {Samples: 100, ColdStarts: metrics.ColdStartSummary{Count: 2, P95Ms: 1900}},
		},
		ColdStartRate: f64(0.03),
	}
	targets := Targets{ColdStart: &ColdStartTargets{
		MaxColdStartMs:          f64(3000),
		AcceptableColdStartRate: f64(0.05),
	}}

	v := Evaluate(obs, targets)
	// The worst per-key cold-start p95 is the one compared.
	assert.True(t, v.Criteria["cold_start_latency_sla_pass"])
	assert.True(t, v.Criteria["cold_start_rate_sla_pass"])

	targets.ColdStart.MaxColdStartMs = f64(2500)
	v = Evaluate(obs, targets)
	assert.False(t, v.Criteria["cold_start_latency_sla_pass"])
}

func TestEvaluateScaleOutCriterion(t *testing.T) {
	obs := Observed{Summaries: map[string]metrics.Summary{}, ScaleOutObserved: boolPtr(false)}

	v := Evaluate(obs, Targets{RequireScaleOut: boolPtr(true)})
	assert.False(t, v.Criteria["scale_out_observed"])
	assert.False(t, v.Pass)

	obs.ScaleOutObserved = boolPtr(true)
	v = Evaluate(obs, Targets{RequireScaleOut: boolPtr(true)})
	assert.True(t, v.Criteria["scale_out_observed"])
	assert.True(t, v.Pass)
}

func TestCriterionNamesSorted(t *testing.T) {
	v := Verdict{Criteria: map[string]bool{"b": true, "a": false, "c": true}}
	assert.Equal(t, []string{"a", "b", "c"}, v.CriterionNames())
}
