// Package sla compares aggregated run metrics against configured service
// level targets and produces the run verdict.
package sla

import (
	"sort"

	"github.com/delimatsuo/headhunter-sub003/internal/metrics"
)

// Operation keys the evaluator reads from the metric summary map. Traffic
// generators record under these names.
const (
	KeyHybridSearch  = "hybrid_search"
	KeyRerank        = "rerank"
	KeyCachedRead    = "cached_read"
	KeyPipelineTotal = "pipeline_total"
)

// ColdStartTargets bound cold-start behavior during ramp tests.
type ColdStartTargets struct {
	MaxColdStartMs          *float64 `mapstructure:"max_cold_start_ms" json:"maxColdStartMs,omitempty"`
	AcceptableColdStartRate *float64 `mapstructure:"acceptable_cold_start_rate" json:"acceptableColdStartRate,omitempty"`
}

// Targets is the externally supplied set of named thresholds. Nil fields are
// not evaluated. Latency targets compare with <=, rate floors with >=, rate
// ceilings with <=.
type Targets struct {
	EndToEndP95Ms      *float64          `mapstructure:"end_to_end_p95_ms" json:"endToEndP95Ms,omitempty"`
	HybridP95Ms        *float64          `mapstructure:"hybrid_p95_ms" json:"hybridP95Ms,omitempty"`
	RerankP95Ms        *float64          `mapstructure:"rerank_p95_ms" json:"rerankP95Ms,omitempty"`
	CachedReadP95Ms    *float64          `mapstructure:"cached_read_p95_ms" json:"cachedReadP95Ms,omitempty"`
	CacheHitRateTarget *float64          `mapstructure:"cache_hit_rate_target" json:"cacheHitRateTarget,omitempty"`
	ErrorRateCeiling   *float64          `mapstructure:"error_rate_ceiling" json:"errorRateCeiling,omitempty"`
	ColdStart          *ColdStartTargets `mapstructure:"cold_start" json:"coldStartTargets,omitempty"`
	RequireScaleOut    *bool             `mapstructure:"require_scale_out" json:"requireScaleOut,omitempty"`
}

// Observed carries everything the evaluator needs from a finished run.
type Observed struct {
	Summaries map[string]metrics.Summary
	// CacheHitRate is the fraction of cacheable reads that reported a cache
	// hit; nil when no cacheable reads were issued.
	CacheHitRate *float64
	// ColdStartRate is cold-start samples over total samples for the ramp
	// workload; nil when the ramp did not run.
	ColdStartRate *float64
	// ScaleOutObserved reports whether the scaling observer recorded at
	// least one scale-out; nil when no observer ran.
	ScaleOutObserved *bool
	// Errors is the run's transport/exception list. Any entry fails the
	// overall verdict.
	Errors []string
}

// Verdict is computed once at the end of a run and never recomputed.
type Verdict struct {
	// Criteria maps criterion name to pass/fail. Criteria whose observed
	// value could not be computed are absent, never defaulted.
	Criteria map[string]bool `json:"criteria"`
	// Pass is the logical AND of all present criteria and an empty error
	// list.
	Pass bool `json:"pass"`
}

// CriterionNames returns the evaluated criterion names, sorted.
func (v Verdict) CriterionNames() []string {
	names := make([]string, 0, len(v.Criteria))
	for name := range v.Criteria {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Evaluate compares observed metrics to targets. A criterion appears in the
// verdict only when both its target and its observed value exist.
func Evaluate(obs Observed, targets Targets) Verdict {
	criteria := make(map[string]bool)

	p95 := func(key string) (float64, bool) {
		s, ok := obs.Summaries[key]
		if !ok || s.Samples == 0 {
			return 0, false
		}
		return s.P95Ms, true
	}

	if targets.EndToEndP95Ms != nil {
		if v, ok := p95(KeyPipelineTotal); ok {
			criteria["end_to_end_sla_pass"] = v <= *targets.EndToEndP95Ms
		}
	}
	if targets.HybridP95Ms != nil {
		if v, ok := p95(KeyHybridSearch); ok {
			criteria["hybrid_sla_pass"] = v <= *targets.HybridP95Ms
		}
	}
	if targets.RerankP95Ms != nil {
		if v, ok := p95(KeyRerank); ok {
			criteria["rerank_sla_pass"] = v <= *targets.RerankP95Ms
		}
	}
	if targets.CachedReadP95Ms != nil {
		if v, ok := p95(KeyCachedRead); ok {
			criteria["cached_read_sla_pass"] = v <= *targets.CachedReadP95Ms
		}
	}
	if targets.CacheHitRateTarget != nil && obs.CacheHitRate != nil {
		criteria["cache_hit_sla_pass"] = *obs.CacheHitRate >= *targets.CacheHitRateTarget
	}
	if targets.ErrorRateCeiling != nil {
		if rate, ok := aggregateErrorRate(obs.Summaries); ok {
			criteria["error_rate_sla_pass"] = rate <= *targets.ErrorRateCeiling
		}
	}
	if targets.ColdStart != nil {
		if targets.ColdStart.MaxColdStartMs != nil {
			if v, ok := coldStartP95(obs.Summaries); ok {
				criteria["cold_start_latency_sla_pass"] = v <= *targets.ColdStart.MaxColdStartMs
			}
		}
		if targets.ColdStart.AcceptableColdStartRate != nil && obs.ColdStartRate != nil {
			criteria["cold_start_rate_sla_pass"] = *obs.ColdStartRate <= *targets.ColdStart.AcceptableColdStartRate
		}
	}
	if targets.RequireScaleOut != nil && *targets.RequireScaleOut && obs.ScaleOutObserved != nil {
		criteria["scale_out_observed"] = *obs.ScaleOutObserved
	}

	pass := len(obs.Errors) == 0
	for _, ok := range criteria {
		pass = pass && ok
	}
	return Verdict{Criteria: criteria, Pass: pass}
}

func aggregateErrorRate(summaries map[string]metrics.Summary) (float64, bool) {
	total := 0
	weighted := 0.0
	for _, s := range summaries {
		total += s.Samples
		weighted += s.ErrorRate * float64(s.Samples)
	}
	if total == 0 {
		return 0, false
	}
	return weighted / float64(total), true
}

// coldStartP95 returns the worst per-key cold-start p95, because a single
// pathological service should fail the criterion even if the fleet-wide
// average looks fine.
func coldStartP95(summaries map[string]metrics.Summary) (float64, bool) {
	worst := 0.0
	found := false
	for _, s := range summaries {
		if s.ColdStarts.Count == 0 {
			continue
		}
		found = true
		if s.ColdStarts.P95Ms > worst {
			worst = s.ColdStarts.P95Ms
		}
	}
	return worst, found
}
