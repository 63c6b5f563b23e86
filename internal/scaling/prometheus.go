package scaling

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/api"
	promv1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
)

// DefaultInstanceCountMetric is the series the platform's autoscaler exports
// per service.
const DefaultInstanceCountMetric = "headhunter_service_instance_count"

// PrometheusQuerier reads instance-count series from a Prometheus-compatible
// monitoring backend.
type PrometheusQuerier struct {
	api    promv1.API
	metric string
	step   time.Duration
}

// NewPrometheusQuerier creates a querier against the given Prometheus base
// URL. metric may be empty to use DefaultInstanceCountMetric.
func NewPrometheusQuerier(baseURL, metric string) (*PrometheusQuerier, error) {
	client, err := api.NewClient(api.Config{Address: baseURL})
	if err != nil {
		return nil, fmt.Errorf("create prometheus client: %w", err)
	}
	if metric == "" {
		metric = DefaultInstanceCountMetric
	}
	return &PrometheusQuerier{
		api:    promv1.NewAPI(client),
		metric: metric,
		step:   15 * time.Second,
	}, nil
}

// InstanceCounts queries the trailing window of instance counts for service.
func (q *PrometheusQuerier) InstanceCounts(ctx context.Context, service string, window time.Duration) ([]Sample, error) {
	end := time.Now()
	value, warnings, err := q.api.QueryRange(ctx,
		fmt.Sprintf(`max(%s{service=%q})`, q.metric, service),
		promv1.Range{Start: end.Add(-window), End: end, Step: q.step},
	)
	if err != nil {
		return nil, fmt.Errorf("query instance counts for %s: %w", service, err)
	}
	_ = warnings

	matrix, ok := value.(model.Matrix)
	if !ok {
		return nil, fmt.Errorf("unexpected result type %T for instance counts", value)
	}

	var samples []Sample
	for _, stream := range matrix {
		for _, point := range stream.Values {
			samples = append(samples, Sample{
				Timestamp:     point.Timestamp.Unix(),
				InstanceCount: int(point.Value),
			})
		}
	}
	return samples, nil
}
