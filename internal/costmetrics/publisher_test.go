package costmetrics

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sampleRows = []Row{
	{Service: "search", Tenant: "tenant-a", API: "hybrid", Day: "2026-03-02", CostUSD: 10},
	{Service: "search", Tenant: "tenant-b", API: "hybrid", Day: "2026-03-02", CostUSD: 5},
	{Service: "rerank", Tenant: "tenant-a", API: "rerank", Day: "2026-03-03", CostUSD: 7},
	{Service: "enrich", Tenant: "tenant-a", API: "profile", Day: "2026-04-01", CostUSD: 3},
}

func TestLoadRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rows.json")
	data, err := json.Marshal(sampleRows)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	rows, err := LoadRows(path)
	require.NoError(t, err)
	assert.Equal(t, sampleRows, rows)
}

func TestLoadRowsMissingFile(t *testing.T) {
	_, err := LoadRows(filepath.Join(t.TempDir(), "absent.json"))
	assert.Error(t, err)
}

func TestLoadRowsMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rows.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"not":"an array"}`), 0o644))
	_, err := LoadRows(path)
	assert.Error(t, err)
}

func TestAggregateDimensions(t *testing.T) {
	p := NewPublisherWithPusher(nil, nil)
	p.Aggregate(sampleRows)

	assert.Equal(t, 15.0, testutil.ToFloat64(p.byService.WithLabelValues("search")))
	assert.Equal(t, 7.0, testutil.ToFloat64(p.byService.WithLabelValues("rerank")))
	assert.Equal(t, 20.0, testutil.ToFloat64(p.byTenant.WithLabelValues("tenant-a")))
	assert.Equal(t, 5.0, testutil.ToFloat64(p.byTenant.WithLabelValues("tenant-b")))
	assert.Equal(t, 15.0, testutil.ToFloat64(p.byAPI.WithLabelValues("hybrid")))
	assert.Equal(t, 15.0, testutil.ToFloat64(p.daily.WithLabelValues("2026-03-02")))
	assert.Equal(t, 7.0, testutil.ToFloat64(p.daily.WithLabelValues("2026-03-03")))

	// 2026-03-02 and 2026-03-03 fall in ISO week 2026-W10.
	assert.Equal(t, 22.0, testutil.ToFloat64(p.weekly.WithLabelValues("2026-W10")))
	assert.Equal(t, 22.0, testutil.ToFloat64(p.monthly.WithLabelValues("2026-03")))
	assert.Equal(t, 3.0, testutil.ToFloat64(p.monthly.WithLabelValues("2026-04")))
}

// capturePusher records what Publish hands to the backend.
type capturePusher struct {
	pushed   int
	families int
	err      error
}

func (c *capturePusher) Push(ctx context.Context, g prometheus.Gatherer) error {
	if c.err != nil {
		return c.err
	}
	c.pushed++
	mfs, err := g.Gather()
	if err != nil {
		return err
	}
	c.families = len(mfs)
	return nil
}

func TestPublishPushesGauges(t *testing.T) {
	pusher := &capturePusher{}
	p := NewPublisherWithPusher(pusher, nil)

	require.NoError(t, p.Publish(context.Background(), sampleRows))
	assert.Equal(t, 1, pusher.pushed)
	// Six gauge families: service, tenant, api, daily, weekly, monthly.
	assert.Equal(t, 6, pusher.families)
}

func TestPublishWithoutBackend(t *testing.T) {
	p := NewPublisherWithPusher(nil, nil)
	err := p.Publish(context.Background(), sampleRows)
	assert.ErrorIs(t, err, ErrMonitoringUnavailable)
}

func TestPublishPushFailureIsMonitoringUnavailable(t *testing.T) {
	pusher := &capturePusher{err: context.DeadlineExceeded}
	p := NewPublisherWithPusher(pusher, nil)

	err := p.Publish(context.Background(), sampleRows)
	assert.ErrorIs(t, err, ErrMonitoringUnavailable)
}

func TestNewPublisherEmptyURLHasNoPusher(t *testing.T) {
	p := NewPublisher("", "job", nil)
	err := p.Publish(context.Background(), sampleRows)
	assert.ErrorIs(t, err, ErrMonitoringUnavailable)
}
