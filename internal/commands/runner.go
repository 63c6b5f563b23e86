package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/delimatsuo/headhunter-sub003/internal/authn"
	"github.com/delimatsuo/headhunter-sub003/internal/config"
	"github.com/delimatsuo/headhunter-sub003/internal/httpclient"
	"github.com/delimatsuo/headhunter-sub003/internal/isolation"
	"github.com/delimatsuo/headhunter-sub003/internal/loadgen"
	"github.com/delimatsuo/headhunter-sub003/internal/logging"
	"github.com/delimatsuo/headhunter-sub003/internal/metrics"
	"github.com/delimatsuo/headhunter-sub003/internal/report"
	"github.com/delimatsuo/headhunter-sub003/internal/scaling"
	"github.com/delimatsuo/headhunter-sub003/internal/sla"
)

// phases selects which traffic phases a command executes. The full run
// enables everything; single-phase commands enable exactly one.
type phases struct {
	ramp      bool
	scenarios bool
	pipeline  bool
	isolation bool
}

// runner owns the per-run wiring: one config, one logger, one token cache,
// one metrics collector, and at most one scaling observer, shared by every
// phase so cross-phase summaries stay coherent.
type runner struct {
	cfg       *config.RunConfig
	logger    *zap.Logger
	httpc     *httpclient.Client
	auth      *authn.Client
	collector *metrics.Collector
	observer  *scaling.Observer
	creds     []authn.Credential
	platform  *loadgen.Platform
}

func newRunner(configPath string) (*runner, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(logging.Config{ServiceName: "headhunter-validate"})
	if err != nil {
		return nil, fmt.Errorf("initialize logger: %w", err)
	}

	creds, err := cfg.Credentials()
	if err != nil {
		return nil, err
	}

	httpc := httpclient.New(cfg.RequestTimeout(), logger)
	auth := authn.NewClient(cfg.TokenURL, cfg.Audience, cfg.RequestTimeout(), logger)

	r := &runner{
		cfg:       cfg,
		logger:    logger,
		httpc:     httpc,
		auth:      auth,
		collector: metrics.NewCollector(),
		creds:     creds,
		// Generated traffic runs as the first configured tenant; the
		// isolation suite iterates over all of them.
		platform: loadgen.NewPlatform(cfg.Services, httpc, auth, creds[0]),
	}

	if cfg.Scaling.PrometheusURL != "" && cfg.Scaling.Service != "" {
		querier, err := scaling.NewPrometheusQuerier(cfg.Scaling.PrometheusURL, cfg.Scaling.Metric)
		if err != nil {
			// Scaling observation is best-effort: the run proceeds and the
			// scale-out criterion is simply not evaluated.
			logger.Warn("scaling observer disabled", zap.Error(err))
		} else {
			r.observer = scaling.NewObserver(querier, cfg.Scaling.Service, scaling.Options{
				EventWindow:     cfg.Scaling.EventWindow(),
				MinPollInterval: cfg.Scaling.MinPollInterval(),
			}, logger)
		}
	}

	return r, nil
}

// configEcho reduces the run configuration to its secret-free parts.
func (r *runner) configEcho() *report.ConfigEcho {
	tenants := make([]string, 0, len(r.creds))
	for _, cred := range r.creds {
		tenants = append(tenants, cred.TenantID)
	}
	return &report.ConfigEcho{
		TokenURL: r.cfg.TokenURL,
		Services: r.cfg.Services,
		Tenants:  tenants,
	}
}

// execute runs the selected phases, evaluates the verdict over everything
// observed, writes the report, and returns ErrValidationFailed when the run
// must gate CI.
func (r *runner) execute(ctx context.Context, mode string, ph phases) error {
	runID := r.cfg.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	rep := report.New(runID, mode, time.Now().UTC())
	rep.Config = r.configEcho()
	r.logger.Info("validation run starting",
		zap.String("run_id", runID),
		zap.String("mode", mode),
		zap.String("tenant", r.platform.Tenant()),
	)

	obs := sla.Observed{}

	if ph.ramp {
		gen := loadgen.NewRampGenerator(r.platform, r.collector, r.observer, r.cfg.Ramp, r.logger)
		result, err := gen.Run(ctx, loadgen.StepsFromConfig(r.cfg.Ramp))
		if err != nil {
			return err
		}
		rep.Ramp = result
		rep.AddErrors(result.Errors...)
		obs.ColdStartRate = result.ColdStartRate
	}

	if ph.scenarios {
		gen := loadgen.NewScenarioGenerator(r.platform, r.collector, r.observer, r.logger)
		results, err := gen.Run(ctx, r.cfg.Scenarios)
		if err != nil {
			return err
		}
		rep.Scenarios = results
		for _, sc := range results {
			rep.AddErrors(sc.Errors...)
		}
	}

	if ph.pipeline {
		gen := loadgen.NewPipelineGenerator(r.platform, r.collector, r.observer, r.cfg.Pipeline, r.logger)
		result, err := gen.Run(ctx, r.cfg.Pipeline.Iterations, r.cfg.Pipeline.Concurrency)
		if err != nil {
			return err
		}
		rep.Pipeline = result
		rep.AddErrors(result.Errors...)
		obs.CacheHitRate = result.CacheHitRate
	}

	if ph.isolation {
		suite := isolation.NewSuite(r.cfg.Services, r.httpc, r.auth, isolation.MaliciousPayloads, r.logger)
		result := suite.Run(ctx, r.creds)
		rep.Isolation = result
		if !result.Pass {
			rep.AddErrors(fmt.Sprintf("tenant isolation: %d check(s) failed", result.Failed))
		}
	}

	if r.observer != nil {
		// One last poll so a scale-out during the final seconds still counts.
		r.observer.Snapshot(ctx)
		rep.ScalingSamples = r.observer.Samples()
		observed := r.observer.EventCount() > 0
		obs.ScaleOutObserved = &observed
	}

	rep.Summaries = r.collector.Summary()
	obs.Summaries = rep.Summaries
	obs.Errors = rep.Errors
	rep.Finalize(sla.Evaluate(obs, r.cfg.SLA))

	if err := report.WriteJSON(r.cfg.Report.Path, rep); err != nil {
		return err
	}
	if r.cfg.Report.JUnitPath != "" {
		if err := report.WriteJUnit(r.cfg.Report.JUnitPath, rep); err != nil {
			return err
		}
	}

	r.logger.Info("validation run complete",
		zap.String("run_id", runID),
		zap.Bool("sla_pass", rep.SLAPass),
		zap.Int("samples", r.collector.Count()),
		zap.Int("errors", len(rep.Errors)),
		zap.String("report", r.cfg.Report.Path),
	)

	if rep.ExitCode() != 0 {
		return ErrValidationFailed
	}
	return nil
}
