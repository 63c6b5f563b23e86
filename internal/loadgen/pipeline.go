package loadgen

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/delimatsuo/headhunter-sub003/internal/config"
	"github.com/delimatsuo/headhunter-sub003/internal/httpclient"
	"github.com/delimatsuo/headhunter-sub003/internal/metrics"
	"github.com/delimatsuo/headhunter-sub003/internal/scaling"
	"github.com/delimatsuo/headhunter-sub003/internal/sla"
)

// PipelineResult summarizes the end-to-end pipeline phase.
type PipelineResult struct {
	Iterations     int      `json:"iterations"`
	Completed      int      `json:"completed"`
	CacheableReads int      `json:"cacheable_reads"`
	CacheHits      int      `json:"cache_hits"`
	CacheHitRate   *float64 `json:"cache_hit_rate,omitempty"`
	Errors         []string `json:"errors"`
}

// PipelineGenerator executes end-to-end pipeline iterations: enrich a
// profile, wait for the asynchronous job, then embed, search, rerank, and
// fetch evidence, recording per-stage and total latency.
type PipelineGenerator struct {
	platform     *Platform
	collector    *metrics.Collector
	observer     *scaling.Observer
	pollInterval time.Duration
	pollDeadline time.Duration
	logger       *zap.Logger
}

// NewPipelineGenerator wires a pipeline generator; observer may be nil.
func NewPipelineGenerator(platform *Platform, collector *metrics.Collector, observer *scaling.Observer, pc config.PipelineConfig, logger *zap.Logger) *PipelineGenerator {
	if logger == nil {
		logger = zap.NewNop()
	}
	interval := pc.PollInterval()
	if interval <= 0 {
		interval = 2 * time.Second
	}
	deadline := pc.PollDeadline()
	if deadline <= 0 {
		deadline = 120 * time.Second
	}
	return &PipelineGenerator{
		platform:     platform,
		collector:    collector,
		observer:     observer,
		pollInterval: interval,
		pollDeadline: deadline,
		logger:       logger,
	}
}

// Run executes iterations across a bounded worker pool sized to concurrency.
// Returns an error only for fatal failures (authentication).
func (g *PipelineGenerator) Run(ctx context.Context, iterations, concurrency int) (*PipelineResult, error) {
	errs := &errorList{}
	fatal := &fatalError{}
	var mu sync.Mutex
	result := &PipelineResult{Iterations: iterations, Errors: []string{}}

	pool := NewPool(concurrency)
	for i := 0; i < iterations; i++ {
		if ctx.Err() != nil || fatal.get() != nil {
			break
		}
		idx := i
		pool.Submit(func() {
			completed, cacheable, hit := g.iteration(ctx, idx, errs, fatal)
			mu.Lock()
			if completed {
				result.Completed++
			}
			if cacheable {
				result.CacheableReads++
			}
			if hit {
				result.CacheHits++
			}
			mu.Unlock()
		})
		if g.observer != nil {
			g.observer.MaybeSnapshot(ctx)
		}
	}
	pool.Close()
	if g.observer != nil {
		g.observer.Snapshot(ctx)
	}

	if err := fatal.get(); err != nil {
		return nil, err
	}

	result.Errors = errs.list()
	if result.CacheableReads > 0 {
		rate := float64(result.CacheHits) / float64(result.CacheableReads)
		result.CacheHitRate = &rate
	}
	return result, nil
}

// iteration runs one end-to-end pass. Reports completion and cache-hit
// observations for the hybrid read.
func (g *PipelineGenerator) iteration(ctx context.Context, idx int, errs *errorList, fatal *fatalError) (completed, cacheable, cacheHit bool) {
	start := time.Now()
	candidateID := fmt.Sprintf("cand-%s", uuid.New().String()[:8])
	failedStatus := 0

	record := func(key string, res httpclient.Result, err error) (ok bool) {
		if err != nil {
			fatal.set(err)
			return false
		}
		if !res.Completed() {
			errs.add(res.Err)
			return false
		}
		g.collector.Record(key, float64(res.Response.Latency.Milliseconds()), res.Response.StatusCode, false)
		if !res.Response.OK() && failedStatus == 0 {
			failedStatus = res.Response.StatusCode
		}
		return true
	}

	// Stage 1: submit enrichment.
	res, err := g.platform.EnrichProfile(ctx, candidateID)
	if !record("enrich_submit", res, err) {
		return false, false, false
	}
	jobID := ""
	if res.Response.OK() {
		var submitted struct {
			JobID string `json:"job_id"`
		}
		if decodeErr := res.Response.Decode(&submitted); decodeErr == nil {
			jobID = submitted.JobID
		}
	}

	// Stage 2: poll for asynchronous completion.
	if jobID != "" {
		if ok := g.waitForJob(ctx, idx, jobID, errs); !ok {
			if failedStatus == 0 {
				failedStatus = 504
			}
		}
	}

	// Stage 3-6: embed, hybrid search, rerank, evidence.
	res, err = g.platform.GenerateEmbedding(ctx, "enriched profile for "+candidateID)
	record("embedding_generate", res, err)
	if fatal.get() != nil {
		return false, false, false
	}

	res, err = g.platform.HybridSearch(ctx, "senior data engineer streaming")
	if record(sla.KeyHybridSearch, res, err) {
		if cache := res.Response.Header("X-Cache"); cache != "" {
			cacheable = true
			if strings.EqualFold(cache, "HIT") {
				cacheHit = true
				g.collector.Record(sla.KeyCachedRead, float64(res.Response.Latency.Milliseconds()), res.Response.StatusCode, false)
			}
		}
	}
	if fatal.get() != nil {
		return false, cacheable, cacheHit
	}

	res, err = g.platform.Rerank(ctx, "senior data engineer streaming", []string{
		"data engineer, Kafka and Flink, 7 years",
		"BI developer, reporting pipelines",
	})
	record(sla.KeyRerank, res, err)
	if fatal.get() != nil {
		return false, cacheable, cacheHit
	}

	res, err = g.platform.Evidence(ctx, candidateID)
	record("evidence", res, err)
	if fatal.get() != nil {
		return false, cacheable, cacheHit
	}

	totalMs := float64(time.Since(start).Milliseconds())
	status := 200
	if failedStatus != 0 {
		status = failedStatus
	}
	g.collector.Record(sla.KeyPipelineTotal, totalMs, status, false)
	return failedStatus == 0, cacheable, cacheHit
}

// waitForJob polls the enrichment job on a fixed interval until it reports
// completion or the deadline passes. This is a bounded retry loop, not a push
// notification.
func (g *PipelineGenerator) waitForJob(ctx context.Context, idx int, jobID string, errs *errorList) bool {
	waitStart := time.Now()
	deadline := waitStart.Add(g.pollDeadline)

	for time.Now().Before(deadline) {
		res, err := g.platform.EnrichStatus(ctx, jobID)
		if err != nil {
			// Auth failure mid-poll: surface through the errors list; the
			// next platform call will trip the fatal path.
			errs.add(err)
			return false
		}
		if res.Completed() && res.Response.OK() {
			var status struct {
				Status string `json:"status"`
			}
			if decodeErr := res.Response.Decode(&status); decodeErr == nil {
				switch strings.ToLower(status.Status) {
				case "completed", "succeeded":
					g.collector.Record("enrich_wait", float64(time.Since(waitStart).Milliseconds()), res.Response.StatusCode, false)
					return true
				case "failed":
					errs.add(fmt.Errorf("pipeline iteration %d: enrich job %s failed", idx, jobID))
					return false
				}
			}
		} else if !res.Completed() {
			errs.add(res.Err)
			return false
		}

		timer := time.NewTimer(g.pollInterval)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return false
		}
	}

	g.logger.Warn("enrich job did not complete before deadline",
		zap.String("job_id", jobID),
		zap.Duration("deadline", g.pollDeadline),
	)
	errs.add(fmt.Errorf("pipeline iteration %d: enrich job %s not completed within %s", idx, jobID, g.pollDeadline))
	return false
}
