package loadgen

import (
	"context"
	"net/http"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/delimatsuo/headhunter-sub003/internal/config"
	"github.com/delimatsuo/headhunter-sub003/internal/metrics"
	"github.com/delimatsuo/headhunter-sub003/internal/sla"
)

func fastPipelineConfig() config.PipelineConfig {
	return config.PipelineConfig{
		PollIntervalSeconds: 0.01,
		PollDeadlineSeconds: 1,
	}
}

func TestPipelineGeneratorCompletes(t *testing.T) {
	mock := newMockPlatform(t)
	mock.override("POST /v1/search/hybrid", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Cache", "HIT")
		jsonOK(map[string]any{"results": []string{"cand-1"}})(w, r)
	})
	collector := metrics.NewCollector()
	g := NewPipelineGenerator(mock.platform(t), collector, nil, fastPipelineConfig(), nil)

	result, err := g.Run(context.Background(), 3, 2)
	require.NoError(t, err)

	assert.Equal(t, 3, result.Iterations)
	assert.Equal(t, 3, result.Completed)
	assert.Equal(t, 3, result.CacheableReads)
	assert.Equal(t, 3, result.CacheHits)
	require.NotNil(t, result.CacheHitRate)
	assert.Equal(t, 1.0, *result.CacheHitRate)
	assert.Empty(t, result.Errors)

	summaries := collector.Summary()
	for _, key := range []string{
		"enrich_submit", "enrich_wait", "embedding_generate",
		sla.KeyHybridSearch, sla.KeyRerank, "evidence",
		sla.KeyCachedRead, sla.KeyPipelineTotal,
	} {
		assert.Equal(t, 3, summaries[key].Samples, key)
	}
	assert.Equal(t, 0.0, summaries[sla.KeyPipelineTotal].ErrorRate)
}

func TestPipelineGeneratorCacheMiss(t *testing.T) {
	mock := newMockPlatform(t)
	mock.override("POST /v1/search/hybrid", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Cache", "MISS")
		jsonOK(map[string]any{"results": []string{}})(w, r)
	})
	collector := metrics.NewCollector()
	g := NewPipelineGenerator(mock.platform(t), collector, nil, fastPipelineConfig(), nil)

	result, err := g.Run(context.Background(), 2, 1)
	require.NoError(t, err)

	assert.Equal(t, 2, result.CacheableReads)
	assert.Equal(t, 0, result.CacheHits)
	require.NotNil(t, result.CacheHitRate)
	assert.Equal(t, 0.0, *result.CacheHitRate)
	assert.NotContains(t, collector.Summary(), sla.KeyCachedRead)
}

func TestPipelineGeneratorPollsUntilJobCompletes(t *testing.T) {
	mock := newMockPlatform(t)
	var polls atomic.Int64
	mock.override("GET /v1/enrich/status/{id}", func(w http.ResponseWriter, r *http.Request) {
		if polls.Add(1) < 3 {
			jsonOK(map[string]any{"status": "processing"})(w, r)
			return
		}
		jsonOK(map[string]any{"status": "completed"})(w, r)
	})
	collector := metrics.NewCollector()
	g := NewPipelineGenerator(mock.platform(t), collector, nil, fastPipelineConfig(), nil)

	result, err := g.Run(context.Background(), 1, 1)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Completed)
	assert.GreaterOrEqual(t, polls.Load(), int64(3))
	assert.Equal(t, 1, collector.Summary()["enrich_wait"].Samples)
}

func TestPipelineGeneratorJobDeadline(t *testing.T) {
	mock := newMockPlatform(t)
	mock.override("GET /v1/enrich/status/{id}", jsonOK(map[string]any{"status": "processing"}))
	collector := metrics.NewCollector()
	g := NewPipelineGenerator(mock.platform(t), collector, nil, config.PipelineConfig{
		PollIntervalSeconds: 0.01,
		PollDeadlineSeconds: 0.05,
	}, nil)

	result, err := g.Run(context.Background(), 1, 1)
	require.NoError(t, err)

	assert.Equal(t, 0, result.Completed)
	require.NotEmpty(t, result.Errors)
	assert.Contains(t, result.Errors[0], "not completed within")

	// The iteration still ran to the end and the total was recorded with the
	// timeout status.
	s := collector.Summary()[sla.KeyPipelineTotal]
	require.Equal(t, 1, s.Samples)
	assert.Equal(t, 1.0, s.ErrorRate)
}

func TestPipelineGeneratorFailedJob(t *testing.T) {
	mock := newMockPlatform(t)
	mock.override("GET /v1/enrich/status/{id}", jsonOK(map[string]any{"status": "failed"}))
	collector := metrics.NewCollector()
	g := NewPipelineGenerator(mock.platform(t), collector, nil, fastPipelineConfig(), nil)

	result, err := g.Run(context.Background(), 1, 1)
	require.NoError(t, err)

	assert.Equal(t, 0, result.Completed)
	require.NotEmpty(t, result.Errors)
	assert.Contains(t, result.Errors[0], "failed")
}

func TestPipelineGeneratorAuthFailureIsFatal(t *testing.T) {
	mock := newMockPlatform(t)
	mock.override("POST /oauth/token", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid_client", http.StatusUnauthorized)
	})
	collector := metrics.NewCollector()
	g := NewPipelineGenerator(mock.platform(t), collector, nil, fastPipelineConfig(), nil)

	_, err := g.Run(context.Background(), 2, 1)
	require.Error(t, err)
}
