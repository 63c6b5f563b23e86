package loadgen

import (
	"context"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/delimatsuo/headhunter-sub003/internal/config"
	"github.com/delimatsuo/headhunter-sub003/internal/httpclient"
	"github.com/delimatsuo/headhunter-sub003/internal/metrics"
	"github.com/delimatsuo/headhunter-sub003/internal/scaling"
	"github.com/delimatsuo/headhunter-sub003/internal/sla"
)

// RampStep targets a fixed request rate for a fixed duration.
type RampStep struct {
	RPS      float64
	Duration time.Duration
}

// StepsFromConfig expands the configured target-rps sequence into steps.
func StepsFromConfig(rc config.RampConfig) []RampStep {
	steps := make([]RampStep, 0, len(rc.StepRPS))
	for _, rps := range rc.StepRPS {
		steps = append(steps, RampStep{RPS: rps, Duration: rc.StepDuration()})
	}
	return steps
}

// StepResult summarizes one executed ramp step.
type StepResult struct {
	RPS             float64 `json:"rps"`
	DurationSeconds float64 `json:"duration_seconds"`
	Requests        int     `json:"requests"`
	ColdStarts      int     `json:"cold_starts"`
}

// RampResult is the outcome of the whole ramp phase.
type RampResult struct {
	Steps         []StepResult `json:"steps"`
	Requests      int          `json:"requests"`
	ColdStarts    int          `json:"cold_starts"`
	ColdStartRate *float64     `json:"cold_start_rate,omitempty"`
	Errors        []string     `json:"errors"`
}

// RampGenerator ramps a mixed hybrid-search/rerank workload through a
// sequence of target rates to observe how latency and cold-start rate react
// to increasing load.
type RampGenerator struct {
	platform             *Platform
	collector            *metrics.Collector
	observer             *scaling.Observer
	searchShare          float64
	coldStartThresholdMs float64
	logger               *zap.Logger
}

// NewRampGenerator wires a ramp generator. observer may be nil when no
// monitoring backend is configured; cold-start classification then relies on
// the explicit response signal alone.
func NewRampGenerator(platform *Platform, collector *metrics.Collector, observer *scaling.Observer, rc config.RampConfig, logger *zap.Logger) *RampGenerator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RampGenerator{
		platform:             platform,
		collector:            collector,
		observer:             observer,
		searchShare:          rc.SearchShare,
		coldStartThresholdMs: rc.ColdStartThresholdMs,
		logger:               logger,
	}
}

// Run executes the steps sequentially. Submission stops when a step's
// duration elapses, but every issued request is awaited before the step is
// reported. Returns an error only for fatal failures (authentication).
func (g *RampGenerator) Run(ctx context.Context, steps []RampStep) (*RampResult, error) {
	result := &RampResult{Errors: []string{}}
	errs := &errorList{}
	fatal := &fatalError{}

	for _, step := range steps {
		stepResult, err := g.runStep(ctx, step, errs, fatal)
		if err != nil {
			return nil, err
		}
		result.Steps = append(result.Steps, *stepResult)
		result.Requests += stepResult.Requests
		result.ColdStarts += stepResult.ColdStarts

		// Forced poll at the phase boundary.
		if g.observer != nil {
			g.observer.Snapshot(ctx)
		}
		if err := ctx.Err(); err != nil {
			break
		}
	}

	result.Errors = errs.list()
	if result.Requests > 0 {
		rate := float64(result.ColdStarts) / float64(result.Requests)
		result.ColdStartRate = &rate
	}
	return result, nil
}

func (g *RampGenerator) runStep(ctx context.Context, step RampStep, errs *errorList, fatal *fatalError) (*StepResult, error) {
	g.logger.Info("ramp step starting",
		zap.Float64("rps", step.RPS),
		zap.Duration("duration", step.Duration),
	)

	stepStart := time.Now()
	var wg sync.WaitGroup
	var mu sync.Mutex
	requests := 0
	coldStarts := 0

	for time.Since(stepStart) < step.Duration {
		cycleStart := time.Now()
		burst := int(math.Round(step.RPS))
		if burst < 1 {
			burst = 1
		}
		searchCount := int(math.Round(g.searchShare * float64(burst)))

		pacer := NewPacer(cycleStart, step.RPS)
		for i := 0; i < burst; i++ {
			if err := pacer.Wait(ctx, i); err != nil {
				break
			}
			useSearch := i < searchCount
			wg.Add(1)
			go func() {
				defer wg.Done()
				cold := g.issue(ctx, useSearch, errs, fatal)
				mu.Lock()
				requests++
				if cold {
					coldStarts++
				}
				mu.Unlock()
			}()
		}

		if g.observer != nil {
			g.observer.MaybeSnapshot(ctx)
		}
		if err := fatal.get(); err != nil {
			break
		}
		if ctx.Err() != nil {
			break
		}

		// Sleep out the remainder of the one-second cycle.
		if rem := time.Second - time.Since(cycleStart); rem > 0 {
			timer := time.NewTimer(rem)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
			}
		}
	}

	wg.Wait()
	if err := fatal.get(); err != nil {
		return nil, err
	}

	return &StepResult{
		RPS:             step.RPS,
		DurationSeconds: time.Since(stepStart).Seconds(),
		Requests:        requests,
		ColdStarts:      coldStarts,
	}, nil
}

// issue performs one request of the mixed workload and records its sample.
// Returns whether the sample was classified as a cold start.
func (g *RampGenerator) issue(ctx context.Context, useSearch bool, errs *errorList, fatal *fatalError) bool {
	var res httpclient.Result
	var err error
	key := sla.KeyHybridSearch
	if useSearch {
		res, err = g.platform.HybridSearch(ctx, "senior backend engineer distributed systems")
	} else {
		key = sla.KeyRerank
		res, err = g.platform.Rerank(ctx, "senior backend engineer", []string{
			"candidate with 8 years of Go and Kubernetes",
			"frontend developer, 2 years of React",
			"site reliability engineer, on-call heavy",
		})
	}
	if err != nil {
		fatal.set(err)
		return false
	}
	if !res.Completed() {
		errs.add(res.Err)
		return false
	}

	cold := g.classifyColdStart(res.Response)
	g.collector.Record(key, float64(res.Response.Latency.Milliseconds()), res.Response.StatusCode, cold)
	return cold
}

// classifyColdStart prefers the explicit signal; otherwise a response slower
// than the threshold completing shortly after a scale-out is presumed to have
// hit a newly provisioned instance. The wall clock is read at completion, not
// submission, because the recency window is about when the response landed.
func (g *RampGenerator) classifyColdStart(resp *httpclient.Response) bool {
	if resp.Header("X-Cold-Start") == "true" {
		return true
	}
	if g.observer == nil || g.coldStartThresholdMs <= 0 {
		return false
	}
	latencyMs := float64(resp.Latency.Milliseconds())
	return latencyMs > g.coldStartThresholdMs && g.observer.HasRecentScaleOut(time.Now())
}
