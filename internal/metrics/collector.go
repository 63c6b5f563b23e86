// Package metrics accumulates latency and status observations during a
// validation run and summarizes them on demand.
//
// Exactly one Collector exists per run. Traffic generators are its only
// writers; every other component reads summaries. Appends happen in request
// completion order, which is fine because percentile computation is
// commutative over the full sample set.
package metrics

import (
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var samplesRecorded = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "headhunter_validate_samples_recorded_total",
		Help: "Number of metric samples recorded per operation key.",
	},
	[]string{"key"},
)

// Sample is one recorded request outcome.
type Sample struct {
	LatencyMs float64
	Status    int
	ColdStart bool
}

// ColdStartSummary summarizes the cold-start-only latency sublist of a key.
type ColdStartSummary struct {
	Count int     `json:"count"`
	AvgMs float64 `json:"avg_ms"`
	P95Ms float64 `json:"p95_ms"`
}

// Summary is the derived, read-only view of one key's samples. It is
// recomputed from the sample set each time it is requested.
type Summary struct {
	Samples    int              `json:"samples"`
	ErrorRate  float64          `json:"error_rate"`
	AvgMs      float64          `json:"avg_ms"`
	MinMs      float64          `json:"min_ms"`
	MaxMs      float64          `json:"max_ms"`
	P95Ms      float64          `json:"p95_ms"`
	P99Ms      float64          `json:"p99_ms"`
	ColdStarts ColdStartSummary `json:"cold_starts"`
}

// Collector owns all metric samples for a run. Record is safe for concurrent
// use; Summary may run at any time and reflects samples recorded so far.
type Collector struct {
	mu      sync.Mutex
	samples map[string][]Sample
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{samples: make(map[string][]Sample)}
}

// Record appends a sample under key.
func (c *Collector) Record(key string, latencyMs float64, status int, coldStart bool) {
	c.mu.Lock()
	c.samples[key] = append(c.samples[key], Sample{LatencyMs: latencyMs, Status: status, ColdStart: coldStart})
	c.mu.Unlock()
	samplesRecorded.WithLabelValues(key).Inc()
}

// Keys returns the operation keys with at least one sample, sorted.
func (c *Collector) Keys() []string {
	c.mu.Lock()
	keys := make([]string, 0, len(c.samples))
	for k := range c.samples {
		keys = append(keys, k)
	}
	c.mu.Unlock()
	sort.Strings(keys)
	return keys
}

// Count returns the total number of samples recorded across all keys.
func (c *Collector) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := 0
	for _, s := range c.samples {
		total += len(s)
	}
	return total
}

// Summary computes per-key statistics from the samples recorded so far.
func (c *Collector) Summary() map[string]Summary {
	c.mu.Lock()
	snapshot := make(map[string][]Sample, len(c.samples))
	for k, s := range c.samples {
		snapshot[k] = append([]Sample(nil), s...)
	}
	c.mu.Unlock()

	out := make(map[string]Summary, len(snapshot))
	for k, s := range snapshot {
		out[k] = summarize(s)
	}
	return out
}

func summarize(samples []Sample) Summary {
	latencies := make([]float64, 0, len(samples))
	cold := make([]float64, 0)
	errors := 0
	sum := 0.0
	for _, s := range samples {
		latencies = append(latencies, s.LatencyMs)
		sum += s.LatencyMs
		if s.Status >= 400 {
			errors++
		}
		if s.ColdStart {
			cold = append(cold, s.LatencyMs)
		}
	}
	sort.Float64s(latencies)

	out := Summary{Samples: len(samples)}
	if len(samples) == 0 {
		return out
	}
	out.ErrorRate = float64(errors) / float64(len(samples))
	out.AvgMs = sum / float64(len(samples))
	out.MinMs = latencies[0]
	out.MaxMs = latencies[len(latencies)-1]
	out.P95Ms = Percentile(latencies, 95)
	out.P99Ms = Percentile(latencies, 99)

	if len(cold) > 0 {
		sort.Float64s(cold)
		coldSum := 0.0
		for _, v := range cold {
			coldSum += v
		}
		out.ColdStarts = ColdStartSummary{
			Count: len(cold),
			AvgMs: coldSum / float64(len(cold)),
			P95Ms: Percentile(cold, 95),
		}
	}
	return out
}
