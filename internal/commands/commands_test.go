package commands

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/delimatsuo/headhunter-sub003/internal/report"
)

func TestRootCommandTree(t *testing.T) {
	root := NewRootCommand("test")

	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"run", "ramp", "scenario", "pipeline", "isolation", "cost"} {
		assert.Contains(t, names, want)
	}
}

func newPlatformServer(t *testing.T) *httptest.Server {
	t.Helper()
	r := chi.NewRouter()
	ok := func(payload any) http.HandlerFunc {
		return func(w http.ResponseWriter, req *http.Request) {
			json.NewEncoder(w).Encode(payload)
		}
	}
	r.Post("/oauth/token", ok(map[string]any{"access_token": "tok", "expires_in": 3600.0}))
	r.Get("/v1/occupations/search", ok(map[string]any{"occupations": []string{}}))
	r.Get("/v1/occupations/{id}", ok(map[string]any{"id": "eco-2512"}))
	r.Post("/v1/search/hybrid", ok(map[string]any{"results": []string{}}))
	r.Post("/v1/search/rerank", ok(map[string]any{"ranked": []int{}}))
	r.Get("/v1/evidence/{id}", ok(map[string]any{"sections": []string{}}))
	r.Post("/v1/skills/expand", ok(map[string]any{"skills": []string{}}))
	r.Post("/v1/roles/template", ok(map[string]any{"template": ""}))
	r.Get("/v1/market/demand", ok(map[string]any{"demand": 0.5}))
	r.Post("/v1/embeddings/generate", ok(map[string]any{"embedding": []float64{}}))
	r.Post("/v1/enrich/profile", ok(map[string]any{"job_id": "job-1"}))
	r.Get("/v1/enrich/status/{id}", ok(map[string]any{"status": "completed"}))

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func writeRunConfig(t *testing.T, serverURL, reportPath, slaBlock string) string {
	t.Helper()
	content := fmt.Sprintf(`
token_url: %[1]s/oauth/token
services:
  embedding: %[1]s
  search: %[1]s
  rerank: %[1]s
  evidence: %[1]s
  enrich: %[1]s
  occupations: %[1]s
  messaging: %[1]s
tenants: ["tenant-a:client-a:secret"]
scenarios:
  - name: smoke
    iterations: 2
    concurrency: 1
report:
  path: %[2]s
%[3]s
`, serverURL, reportPath, slaBlock)
	path := filepath.Join(t.TempDir(), "validation.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func readReport(t *testing.T, path string) *report.RunReport {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var r report.RunReport
	require.NoError(t, json.Unmarshal(data, &r))
	return &r
}

func TestScenarioCommandWritesPassingReport(t *testing.T) {
	srv := newPlatformServer(t)
	reportPath := filepath.Join(t.TempDir(), "report.json")
	cfgPath := writeRunConfig(t, srv.URL, reportPath, `
sla:
  hybrid_p95_ms: 60000
  rerank_p95_ms: 60000
`)

	root := NewRootCommand("test")
	root.SetArgs([]string{"scenario", "--config", cfgPath})
	require.NoError(t, root.Execute())

	r := readReport(t, reportPath)
	assert.Equal(t, "scenario", r.Mode)
	assert.True(t, r.SLAPass)
	assert.True(t, r.Verdict["hybrid_sla_pass"])
	assert.Empty(t, r.Errors)
	require.Len(t, r.Scenarios, 1)
	assert.Equal(t, 16, r.Scenarios[0].Samples)
	assert.Equal(t, 0, r.ExitCode())

	// The embedded config echo names tenants without their secrets.
	require.NotNil(t, r.Config)
	assert.Equal(t, []string{"tenant-a"}, r.Config.Tenants)
	raw, err := os.ReadFile(reportPath)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "secret")
}

func TestScenarioCommandFailsVerdict(t *testing.T) {
	srv := newPlatformServer(t)
	reportPath := filepath.Join(t.TempDir(), "report.json")
	cfgPath := writeRunConfig(t, srv.URL, reportPath, `
sla:
  hybrid_p95_ms: 0.001
`)

	root := NewRootCommand("test")
	root.SetArgs([]string{"scenario", "--config", cfgPath})
	err := root.Execute()
	require.ErrorIs(t, err, ErrValidationFailed)

	// The report is still written for a failing run.
	r := readReport(t, reportPath)
	assert.False(t, r.SLAPass)
	assert.False(t, r.Verdict["hybrid_sla_pass"])
	assert.Equal(t, 1, r.ExitCode())
}

func TestCommandInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("token_url: ''\n"), 0o644))

	root := NewRootCommand("test")
	root.SetArgs([]string{"run", "--config", path})
	err := root.Execute()
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrValidationFailed)
}

func TestCostCommandSkipsWithoutBackend(t *testing.T) {
	srv := newPlatformServer(t)
	rowsPath := filepath.Join(t.TempDir(), "rows.json")
	require.NoError(t, os.WriteFile(rowsPath, []byte(`[{"service":"search","tenant":"tenant-a","api":"hybrid","day":"2026-03-02","cost_usd":1.5}]`), 0o644))
	cfgPath := writeRunConfig(t, srv.URL, filepath.Join(t.TempDir(), "r.json"), "")

	root := NewRootCommand("test")
	root.SetArgs([]string{"cost", "--config", cfgPath, "--rows", rowsPath})
	// No pushgateway configured: publish is skipped, not failed.
	assert.NoError(t, root.Execute())
}

func TestCostCommandRequiresRows(t *testing.T) {
	srv := newPlatformServer(t)
	cfgPath := writeRunConfig(t, srv.URL, filepath.Join(t.TempDir(), "r.json"), "")

	root := NewRootCommand("test")
	root.SetArgs([]string{"cost", "--config", cfgPath})
	assert.Error(t, root.Execute())
}
