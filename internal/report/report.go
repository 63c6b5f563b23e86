// Package report assembles and writes the machine-readable result of a
// validation run. The JSON document is the diagnostic record; the process
// exit code derived from it is the CI integration contract.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/delimatsuo/headhunter-sub003/internal/isolation"
	"github.com/delimatsuo/headhunter-sub003/internal/loadgen"
	"github.com/delimatsuo/headhunter-sub003/internal/metrics"
	"github.com/delimatsuo/headhunter-sub003/internal/scaling"
	"github.com/delimatsuo/headhunter-sub003/internal/sla"
)

// ConfigEcho is a redacted snapshot of the run configuration embedded in the
// report so a result can be interpreted without the original file. Client
// secrets never appear: tenants are reduced to their IDs.
type ConfigEcho struct {
	TokenURL string            `json:"token_url"`
	Services map[string]string `json:"services"`
	Tenants  []string          `json:"tenants"`
}

// RunReport is the single JSON document produced by a run.
type RunReport struct {
	RunID       string      `json:"run_id"`
	Mode        string      `json:"mode"`
	StartedAt   time.Time   `json:"started_at"`
	CompletedAt time.Time   `json:"completed_at"`
	Config      *ConfigEcho `json:"config,omitempty"`

	Summaries      map[string]metrics.Summary `json:"metric_summaries"`
	ScalingSamples []scaling.Sample           `json:"scaling_samples,omitempty"`
	Ramp           *loadgen.RampResult        `json:"ramp,omitempty"`
	Scenarios      []loadgen.ScenarioResult   `json:"scenarios,omitempty"`
	Pipeline       *loadgen.PipelineResult    `json:"pipeline,omitempty"`
	Isolation      *isolation.SuiteResult     `json:"isolation,omitempty"`

	Verdict map[string]bool `json:"sla_compliance"`
	SLAPass bool            `json:"sla_pass"`
	// Errors enumerates every transport failure and exception of the run
	// with enough context to diagnose without re-running.
	Errors []string `json:"errors"`
}

// New creates a report skeleton for a run.
func New(runID, mode string, startedAt time.Time) *RunReport {
	return &RunReport{
		RunID:     runID,
		Mode:      mode,
		StartedAt: startedAt,
		Errors:    []string{},
		Verdict:   map[string]bool{},
	}
}

// Finalize stamps the completion time and folds in the verdict.
func (r *RunReport) Finalize(verdict sla.Verdict) {
	r.CompletedAt = time.Now().UTC()
	r.Verdict = verdict.Criteria
	r.SLAPass = verdict.Pass
}

// AddErrors appends failure strings to the report's error list.
func (r *RunReport) AddErrors(errs ...string) {
	r.Errors = append(r.Errors, errs...)
}

// ExitCode is 0 only when every verdict criterion passed and no errors were
// recorded.
func (r *RunReport) ExitCode() int {
	if r.SLAPass && len(r.Errors) == 0 {
		return 0
	}
	return 1
}

// WriteJSON writes the report document to path, creating parent directories
// as needed.
func WriteJSON(path string, r *RunReport) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create report directory: %w", err)
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write report file: %w", err)
	}
	return nil
}
