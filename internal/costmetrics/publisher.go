// Package costmetrics turns collaborator-produced cost aggregation rows into
// custom time-series points on the monitoring backend.
//
// The aggregation itself (BigQuery SQL over billing exports) happens outside
// this framework; the publisher only consumes its (service, tenant, api, day,
// cost) rows and pushes gauges under fixed metric names per dimension.
package costmetrics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	"go.uber.org/zap"
)

// ErrMonitoringUnavailable signals that no monitoring backend is configured
// or reachable. Callers degrade to a skip status; it is never fatal.
var ErrMonitoringUnavailable = errors.New("monitoring backend unavailable")

// Row is one aggregated cost record.
type Row struct {
	Service string  `json:"service"`
	Tenant  string  `json:"tenant"`
	API     string  `json:"api"`
	Day     string  `json:"day"`
	CostUSD float64 `json:"cost_usd"`
}

// LoadRows reads collaborator-produced rows from a JSON file.
func LoadRows(path string) ([]Row, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read cost rows: %w", err)
	}
	var rows []Row
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("decode cost rows: %w", err)
	}
	return rows, nil
}

// Pusher pushes a gatherer's metrics to the monitoring backend. Satisfied by
// the Pushgateway client; tests substitute a fake.
type Pusher interface {
	Push(ctx context.Context, gatherer prometheus.Gatherer) error
}

type gatewayPusher struct {
	url string
	job string
}

func (p *gatewayPusher) Push(ctx context.Context, gatherer prometheus.Gatherer) error {
	return push.New(p.url, p.job).Gatherer(gatherer).PushContext(ctx)
}

// Publisher aggregates cost rows by dimension and emits them as gauges.
type Publisher struct {
	pusher Pusher
	logger *zap.Logger

	registry  *prometheus.Registry
	byService *prometheus.GaugeVec
	byTenant  *prometheus.GaugeVec
	byAPI     *prometheus.GaugeVec
	daily     *prometheus.GaugeVec
	weekly    *prometheus.GaugeVec
	monthly   *prometheus.GaugeVec
}

// NewPublisher targets a Pushgateway URL. An empty URL produces a publisher
// whose Publish returns ErrMonitoringUnavailable.
func NewPublisher(gatewayURL, job string, logger *zap.Logger) *Publisher {
	var pusher Pusher
	if gatewayURL != "" {
		if job == "" {
			job = "headhunter-cost"
		}
		pusher = &gatewayPusher{url: gatewayURL, job: job}
	}
	return newPublisher(pusher, logger)
}

// NewPublisherWithPusher injects a custom pusher. Used by tests.
func NewPublisherWithPusher(pusher Pusher, logger *zap.Logger) *Publisher {
	return newPublisher(pusher, logger)
}

func newPublisher(pusher Pusher, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	registry := prometheus.NewRegistry()
	gauge := func(name, help string, labels ...string) *prometheus.GaugeVec {
		g := prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: name, Help: help}, labels)
		registry.MustRegister(g)
		return g
	}
	return &Publisher{
		pusher:    pusher,
		logger:    logger,
		registry:  registry,
		byService: gauge("headhunter_cost_usd_by_service", "Aggregated platform cost per service.", "service"),
		byTenant:  gauge("headhunter_cost_usd_by_tenant", "Aggregated platform cost per tenant.", "tenant"),
		byAPI:     gauge("headhunter_cost_usd_by_api", "Aggregated platform cost per API.", "api"),
		daily:     gauge("headhunter_cost_usd_daily", "Platform cost per day.", "day"),
		weekly:    gauge("headhunter_cost_usd_weekly", "Platform cost per ISO week.", "week"),
		monthly:   gauge("headhunter_cost_usd_monthly", "Platform cost per month.", "month"),
	}
}

// Registry exposes the publisher's metric registry, mainly for tests.
func (p *Publisher) Registry() *prometheus.Registry {
	return p.registry
}

// Publish aggregates rows across every dimension and pushes the resulting
// gauges. Returns ErrMonitoringUnavailable when no backend is configured.
func (p *Publisher) Publish(ctx context.Context, rows []Row) error {
	if p.pusher == nil {
		return ErrMonitoringUnavailable
	}

	p.Aggregate(rows)

	if err := p.pusher.Push(ctx, p.registry); err != nil {
		return fmt.Errorf("%w: push cost metrics: %v", ErrMonitoringUnavailable, err)
	}
	p.logger.Info("cost metrics published", zap.Int("rows", len(rows)))
	return nil
}

// Aggregate folds rows into the dimension gauges without pushing.
func (p *Publisher) Aggregate(rows []Row) {
	byService := map[string]float64{}
	byTenant := map[string]float64{}
	byAPI := map[string]float64{}
	daily := map[string]float64{}
	weekly := map[string]float64{}
	monthly := map[string]float64{}

	for _, row := range rows {
		byService[row.Service] += row.CostUSD
		byTenant[row.Tenant] += row.CostUSD
		byAPI[row.API] += row.CostUSD
		daily[row.Day] += row.CostUSD
		if day, err := time.Parse("2006-01-02", row.Day); err == nil {
			year, week := day.ISOWeek()
			weekly[fmt.Sprintf("%04d-W%02d", year, week)] += row.CostUSD
			monthly[day.Format("2006-01")] += row.CostUSD
		}
	}

	set := func(vec *prometheus.GaugeVec, values map[string]float64) {
		for label, cost := range values {
			vec.WithLabelValues(label).Set(cost)
		}
	}
	set(p.byService, byService)
	set(p.byTenant, byTenant)
	set(p.byAPI, byAPI)
	set(p.daily, daily)
	set(p.weekly, weekly)
	set(p.monthly, monthly)
}
