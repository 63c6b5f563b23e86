// Package config loads and validates the typed run configuration for a
// validation run.
//
// Purpose:
//
//	A run is described by a single YAML document (service URL map, tenant
//	credentials, SLA targets, ramp/scenario/pipeline definitions). The file
//	is read with viper, checked against an embedded JSON schema, decoded into
//	a typed struct, and finally overridden from the environment. The rest of
//	the framework never inspects raw maps.
//
// Key Responsibilities:
//   - Load: YAML file -> schema check -> typed RunConfig -> env overrides
//   - Validate: required services, parseable tenant credentials
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"
	"github.com/xeipuuv/gojsonschema"

	"github.com/delimatsuo/headhunter-sub003/internal/authn"
	"github.com/delimatsuo/headhunter-sub003/internal/sla"
)

// Service names used as keys of the service URL map.
const (
	ServiceEmbedding   = "embedding"
	ServiceSearch      = "search"
	ServiceRerank      = "rerank"
	ServiceEvidence    = "evidence"
	ServiceEnrich      = "enrich"
	ServiceOccupations = "occupations"
	ServiceAdmin       = "admin"
	ServiceMessaging   = "messaging"
)

// requiredServices must all be present in the service map. Admin is optional
// because most runs never touch admin surfaces.
var requiredServices = []string{
	ServiceEmbedding,
	ServiceSearch,
	ServiceRerank,
	ServiceEvidence,
	ServiceEnrich,
	ServiceOccupations,
	ServiceMessaging,
}

// Error is a fatal configuration problem, reported before any traffic is
// generated.
type Error struct {
	Reason string
}

func (e *Error) Error() string {
	return "invalid run configuration: " + e.Reason
}

// RampConfig defines the ramp traffic phase.
type RampConfig struct {
	StepRPS              []float64 `mapstructure:"step_rps"`
	StepDurationSeconds  int       `mapstructure:"step_duration_seconds"`
	SearchShare          float64   `mapstructure:"search_share"`
	ColdStartThresholdMs float64   `mapstructure:"cold_start_threshold_ms"`
}

// ScenarioConfig defines one named benchmarking phase.
type ScenarioConfig struct {
	Name         string  `mapstructure:"name"`
	Iterations   int     `mapstructure:"iterations"`
	Concurrency  int     `mapstructure:"concurrency"`
	DelaySeconds float64 `mapstructure:"delay_seconds"`
}

// PipelineConfig defines the end-to-end pipeline-iteration phase.
type PipelineConfig struct {
	Iterations          int     `mapstructure:"iterations"`
	Concurrency         int     `mapstructure:"concurrency"`
	PollIntervalSeconds float64 `mapstructure:"poll_interval_seconds"`
	PollDeadlineSeconds float64 `mapstructure:"poll_deadline_seconds"`
}

// ScalingConfig points the scaling observer at the monitoring backend.
type ScalingConfig struct {
	PrometheusURL          string  `mapstructure:"prometheus_url"`
	Service                string  `mapstructure:"service"`
	Metric                 string  `mapstructure:"metric"`
	EventWindowSeconds     float64 `mapstructure:"event_window_seconds"`
	MinPollIntervalSeconds float64 `mapstructure:"min_poll_interval_seconds"`
}

// ReportConfig controls report output.
type ReportConfig struct {
	Path      string `mapstructure:"path"`
	JUnitPath string `mapstructure:"junit_path"`
}

// CostConfig controls the cost metrics publisher.
type CostConfig struct {
	PushgatewayURL string `mapstructure:"pushgateway_url"`
	Job            string `mapstructure:"job"`
	RowsPath       string `mapstructure:"rows_path"`
}

// RunConfig is the complete, validated configuration for one run.
type RunConfig struct {
	RunID                 string            `mapstructure:"run_id"`
	TokenURL              string            `mapstructure:"token_url"`
	Audience              string            `mapstructure:"audience"`
	Services              map[string]string `mapstructure:"services"`
	Tenants               []string          `mapstructure:"tenants"`
	RequestTimeoutSeconds float64           `mapstructure:"request_timeout_seconds"`
	Ramp                  RampConfig        `mapstructure:"ramp"`
	Scenarios             []ScenarioConfig  `mapstructure:"scenarios"`
	Pipeline              PipelineConfig    `mapstructure:"pipeline"`
	Scaling               ScalingConfig     `mapstructure:"scaling"`
	SLA                   sla.Targets       `mapstructure:"sla"`
	Report                ReportConfig      `mapstructure:"report"`
	Cost                  CostConfig        `mapstructure:"cost"`
}

// overrides are environment variables applied on top of the file, prefixed
// HH_VALIDATE_ (e.g. HH_VALIDATE_TOKEN_URL).
type overrides struct {
	TokenURL       string `envconfig:"TOKEN_URL"`
	Audience       string `envconfig:"AUDIENCE"`
	ReportPath     string `envconfig:"REPORT_PATH"`
	PrometheusURL  string `envconfig:"PROMETHEUS_URL"`
	PushgatewayURL string `envconfig:"PUSHGATEWAY_URL"`
}

// Load reads, schema-checks, decodes, and validates the run configuration at
// path. Every failure mode is an *Error and fatal at startup.
func Load(path string) (*RunConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, &Error{Reason: fmt.Sprintf("read %s: %v", path, err)}
	}

	if err := checkSchema(v.AllSettings()); err != nil {
		return nil, err
	}

	cfg := defaultRunConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, &Error{Reason: fmt.Sprintf("decode %s: %v", path, err)}
	}

	var env overrides
	if err := envconfig.Process("HH_VALIDATE", &env); err != nil {
		return nil, &Error{Reason: fmt.Sprintf("process environment overrides: %v", err)}
	}
	applyOverrides(cfg, env)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaultRunConfig() *RunConfig {
	return &RunConfig{
		RequestTimeoutSeconds: 20,
		Ramp: RampConfig{
			StepDurationSeconds:  30,
			SearchShare:          0.7,
			ColdStartThresholdMs: 1500,
		},
		Pipeline: PipelineConfig{
			Concurrency:         2,
			PollIntervalSeconds: 2,
			PollDeadlineSeconds: 120,
		},
		Scaling: ScalingConfig{
			EventWindowSeconds:     60,
			MinPollIntervalSeconds: 5,
		},
		Report: ReportConfig{Path: "validation-report.json"},
		Cost:   CostConfig{Job: "headhunter-cost"},
	}
}

func applyOverrides(cfg *RunConfig, env overrides) {
	if env.TokenURL != "" {
		cfg.TokenURL = env.TokenURL
	}
	if env.Audience != "" {
		cfg.Audience = env.Audience
	}
	if env.ReportPath != "" {
		cfg.Report.Path = env.ReportPath
	}
	if env.PrometheusURL != "" {
		cfg.Scaling.PrometheusURL = env.PrometheusURL
	}
	if env.PushgatewayURL != "" {
		cfg.Cost.PushgatewayURL = env.PushgatewayURL
	}
}

func checkSchema(settings map[string]any) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(runConfigSchema),
		gojsonschema.NewGoLoader(settings),
	)
	if err != nil {
		return &Error{Reason: fmt.Sprintf("schema validation: %v", err)}
	}
	if !result.Valid() {
		reason := "schema violations:"
		for _, desc := range result.Errors() {
			reason += " " + desc.String() + ";"
		}
		return &Error{Reason: reason}
	}
	return nil
}

// Validate checks cross-field constraints that the schema cannot express.
func (c *RunConfig) Validate() error {
	if c.TokenURL == "" {
		return &Error{Reason: "token_url is required"}
	}
	for _, name := range requiredServices {
		if c.Services[name] == "" {
			return &Error{Reason: fmt.Sprintf("services.%s is required", name)}
		}
	}
	if len(c.Tenants) == 0 {
		return &Error{Reason: "at least one tenant credential is required"}
	}
	if _, err := c.Credentials(); err != nil {
		return err
	}
	if c.Ramp.SearchShare < 0 || c.Ramp.SearchShare > 1 {
		return &Error{Reason: "ramp.search_share must be within [0, 1]"}
	}
	return nil
}

// Credentials parses the tenant credential strings.
func (c *RunConfig) Credentials() ([]authn.Credential, error) {
	creds := make([]authn.Credential, 0, len(c.Tenants))
	for _, raw := range c.Tenants {
		cred, err := authn.ParseCredential(raw)
		if err != nil {
			return nil, &Error{Reason: err.Error()}
		}
		creds = append(creds, cred)
	}
	return creds, nil
}

// RequestTimeout returns the per-request client timeout.
func (c *RunConfig) RequestTimeout() time.Duration {
	return secondsToDuration(c.RequestTimeoutSeconds)
}

// StepDuration returns the ramp step duration.
func (r RampConfig) StepDuration() time.Duration {
	return time.Duration(r.StepDurationSeconds) * time.Second
}

// Delay returns the inter-submission delay of a scenario.
func (s ScenarioConfig) Delay() time.Duration {
	return secondsToDuration(s.DelaySeconds)
}

// PollInterval returns the async-completion polling interval.
func (p PipelineConfig) PollInterval() time.Duration {
	return secondsToDuration(p.PollIntervalSeconds)
}

// PollDeadline returns the async-completion polling deadline.
func (p PipelineConfig) PollDeadline() time.Duration {
	return secondsToDuration(p.PollDeadlineSeconds)
}

// EventWindow returns the scale-out recency window.
func (s ScalingConfig) EventWindow() time.Duration {
	return secondsToDuration(s.EventWindowSeconds)
}

// MinPollInterval returns the opportunistic polling floor.
func (s ScalingConfig) MinPollInterval() time.Duration {
	return secondsToDuration(s.MinPollIntervalSeconds)
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
