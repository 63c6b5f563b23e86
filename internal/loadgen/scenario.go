package loadgen

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/delimatsuo/headhunter-sub003/internal/config"
	"github.com/delimatsuo/headhunter-sub003/internal/httpclient"
	"github.com/delimatsuo/headhunter-sub003/internal/metrics"
	"github.com/delimatsuo/headhunter-sub003/internal/scaling"
	"github.com/delimatsuo/headhunter-sub003/internal/sla"
)

// ScenarioResult summarizes one executed scenario.
type ScenarioResult struct {
	Name            string  `json:"name"`
	Iterations      int     `json:"iterations"`
	Samples         int     `json:"samples"`
	DurationSeconds float64 `json:"duration_seconds"`
	// Throughput is samples over wall-clock duration of the scenario.
	Throughput float64  `json:"throughput"`
	Errors     []string `json:"errors"`
}

// ScenarioGenerator executes named scenarios. Each iteration submits one
// exercise unit — a fixed sequence of calls across the platform services —
// to a bounded worker pool sized to the scenario's concurrency.
type ScenarioGenerator struct {
	platform  *Platform
	collector *metrics.Collector
	observer  *scaling.Observer
	logger    *zap.Logger
}

// NewScenarioGenerator wires a scenario generator; observer may be nil.
func NewScenarioGenerator(platform *Platform, collector *metrics.Collector, observer *scaling.Observer, logger *zap.Logger) *ScenarioGenerator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScenarioGenerator{platform: platform, collector: collector, observer: observer, logger: logger}
}

// Run executes the scenarios in order. Returns an error only for fatal
// failures (authentication).
func (g *ScenarioGenerator) Run(ctx context.Context, scenarios []config.ScenarioConfig) ([]ScenarioResult, error) {
	results := make([]ScenarioResult, 0, len(scenarios))
	for _, sc := range scenarios {
		res, err := g.runScenario(ctx, sc)
		if err != nil {
			return results, err
		}
		results = append(results, *res)
		if g.observer != nil {
			g.observer.Snapshot(ctx)
		}
		if ctx.Err() != nil {
			break
		}
	}
	return results, nil
}

func (g *ScenarioGenerator) runScenario(ctx context.Context, sc config.ScenarioConfig) (*ScenarioResult, error) {
	g.logger.Info("scenario starting",
		zap.String("scenario", sc.Name),
		zap.Int("iterations", sc.Iterations),
		zap.Int("concurrency", sc.Concurrency),
	)

	errs := &errorList{}
	fatal := &fatalError{}
	var mu sync.Mutex
	samples := 0

	start := time.Now()
	pool := NewPool(sc.Concurrency)
	for i := 0; i < sc.Iterations; i++ {
		if ctx.Err() != nil || fatal.get() != nil {
			break
		}
		pool.Submit(func() {
			n := g.exercise(ctx, errs, fatal)
			mu.Lock()
			samples += n
			mu.Unlock()
		})
		if g.observer != nil {
			g.observer.MaybeSnapshot(ctx)
		}
		if sc.Delay() > 0 {
			time.Sleep(sc.Delay())
		}
	}
	pool.Close()
	elapsed := time.Since(start)

	if err := fatal.get(); err != nil {
		return nil, err
	}

	result := &ScenarioResult{
		Name:            sc.Name,
		Iterations:      sc.Iterations,
		Samples:         samples,
		DurationSeconds: elapsed.Seconds(),
		Errors:          errs.list(),
	}
	if elapsed > 0 {
		result.Throughput = float64(samples) / elapsed.Seconds()
	}
	return result, nil
}

// exercise issues the fixed call sequence of one iteration and returns the
// number of samples recorded.
func (g *ScenarioGenerator) exercise(ctx context.Context, errs *errorList, fatal *fatalError) int {
	type call struct {
		key string
		do  func(context.Context) (httpclient.Result, error)
	}
	calls := []call{
		{"occupation_search", func(ctx context.Context) (httpclient.Result, error) {
			return g.platform.OccupationSearch(ctx, "software engineer")
		}},
		{"occupation_get", func(ctx context.Context) (httpclient.Result, error) {
			return g.platform.Occupation(ctx, "eco-2512")
		}},
		{sla.KeyHybridSearch, func(ctx context.Context) (httpclient.Result, error) {
			return g.platform.HybridSearch(ctx, "machine learning platform engineer")
		}},
		{sla.KeyRerank, func(ctx context.Context) (httpclient.Result, error) {
			return g.platform.Rerank(ctx, "machine learning platform engineer", []string{
				"ML infra lead, 6 years, feature stores and serving",
				"data analyst, dashboards and SQL",
			})
		}},
		{"evidence", func(ctx context.Context) (httpclient.Result, error) {
			return g.platform.Evidence(ctx, "cand-000042")
		}},
		{"skills_expand", func(ctx context.Context) (httpclient.Result, error) {
			return g.platform.SkillsExpand(ctx, "kubernetes")
		}},
		{"role_template", func(ctx context.Context) (httpclient.Result, error) {
			return g.platform.RoleTemplate(ctx, "staff platform engineer")
		}},
		{"market_demand", func(ctx context.Context) (httpclient.Result, error) {
			return g.platform.MarketDemand(ctx, "platform engineer", "us-west")
		}},
	}

	recorded := 0
	for _, c := range calls {
		res, err := c.do(ctx)
		if err != nil {
			fatal.set(err)
			return recorded
		}
		if !res.Completed() {
			errs.add(res.Err)
			continue
		}
		g.collector.Record(c.key, float64(res.Response.Latency.Milliseconds()), res.Response.StatusCode, false)
		recorded++
	}
	return recorded
}
