package isolation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/delimatsuo/headhunter-sub003/internal/authn"
	"github.com/delimatsuo/headhunter-sub003/internal/config"
	"github.com/delimatsuo/headhunter-sub003/internal/httpclient"
)

// weaknesses opt individual isolation defenses out of the mock platform so
// tests can assert that the corresponding check catches the regression.
type weaknesses struct {
	acceptMissingHeader bool
	acceptInvalidToken  bool
	leakCrossTenant     bool
	sharedCache         bool
	acceptMalicious     bool
}

// benignQueries is what the suite's non-adversarial probes send; anything
// else is treated as hostile input by the enforcing mock.
var benignQueries = map[string]bool{
	"engineer":              true,
	"cache-isolation-probe": true,
}

func newIsolationServer(t *testing.T, weak weaknesses) *httptest.Server {
	t.Helper()
	r := chi.NewRouter()

	validTokens := map[string]bool{
		"tok-client-a": true,
		"tok-client-b": true,
	}

	r.Post("/oauth/token", func(w http.ResponseWriter, req *http.Request) {
		require.NoError(t, req.ParseForm())
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "tok-" + req.FormValue("client_id"),
			"expires_in":   3600.0,
		})
	})

	authorize := func(w http.ResponseWriter, req *http.Request) bool {
		token := strings.TrimPrefix(req.Header.Get("Authorization"), "Bearer ")
		if !validTokens[token] && !weak.acceptInvalidToken {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return false
		}
		if req.Header.Get("X-Tenant-ID") == "" && !weak.acceptMissingHeader {
			http.Error(w, "missing tenant", http.StatusBadRequest)
			return false
		}
		return true
	}

	r.Get("/v1/occupations/search", func(w http.ResponseWriter, req *http.Request) {
		if !authorize(w, req) {
			return
		}
		q := req.URL.Query().Get("q")
		if !benignQueries[q] && !weak.acceptMalicious {
			http.Error(w, "rejected input", http.StatusBadRequest)
			return
		}
		if q == "cache-isolation-probe" {
			if weak.sharedCache {
				w.Header().Set("X-Cache", "HIT")
			} else {
				w.Header().Set("X-Cache", "MISS")
			}
		}
		json.NewEncoder(w).Encode(map[string]any{"occupations": []string{"eco-2512"}})
	})

	r.Post("/v1/search/hybrid", func(w http.ResponseWriter, req *http.Request) {
		if !authorize(w, req) {
			return
		}
		var body struct {
			Query string `json:"query"`
		}
		json.NewDecoder(req.Body).Decode(&body)
		if !benignQueries[body.Query] && !weak.acceptMalicious {
			http.Error(w, "rejected input", http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"results": []string{}})
	})

	r.Get("/v1/evidence/{id}", func(w http.ResponseWriter, req *http.Request) {
		if !authorize(w, req) {
			return
		}
		id := chi.URLParam(req, "id")
		owner := req.Header.Get("X-Tenant-ID")
		if !strings.HasPrefix(id, owner+"-") && !weak.leakCrossTenant {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"candidate_id": id})
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func newSuite(t *testing.T, srv *httptest.Server) (*Suite, []authn.Credential) {
	t.Helper()
	services := map[string]string{
		config.ServiceOccupations: srv.URL,
		config.ServiceSearch:      srv.URL,
		config.ServiceEvidence:    srv.URL,
	}
	httpc := httpclient.New(5*time.Second, nil)
	auth := authn.NewClient(srv.URL+"/oauth/token", "", 5*time.Second, nil)
	// Two payloads keep the adversarial sweep fast; coverage of the full set
	// is the production default's job.
	payloads := []string{"' OR 1=1 --", "<script>alert(1)</script>"}
	suite := NewSuite(services, httpc, auth, payloads, nil)
	creds := []authn.Credential{
		{TenantID: "tenant-a", ClientID: "client-a", ClientSecret: "sa"},
		{TenantID: "tenant-b", ClientID: "client-b", ClientSecret: "sb"},
	}
	return suite, creds
}

func checkStatus(result *SuiteResult, tenant, check string) string {
	for _, c := range result.Checks {
		if c.Tenant == tenant && c.Check == check {
			return c.Status
		}
	}
	return ""
}

func TestSuiteAllChecksPassOnEnforcingPlatform(t *testing.T) {
	suite, creds := newSuite(t, newIsolationServer(t, weaknesses{}))

	result := suite.Run(context.Background(), creds)

	assert.True(t, result.Pass)
	assert.Equal(t, 0, result.Failed)
	assert.Equal(t, 0, result.Skipped)
	// 7 checks per tenant.
	assert.Len(t, result.Checks, 14)
	for _, check := range []string{
		CheckAuthenticate, CheckPositiveAccess, CheckMissingHeader,
		CheckInvalidToken, CheckCrossTenant, CheckCacheIsolation, CheckMaliciousInput,
	} {
		assert.Equal(t, StatusPass, checkStatus(result, "tenant-a", check), check)
	}
}

func TestSuiteDetectsMissingHeaderAcceptance(t *testing.T) {
	suite, creds := newSuite(t, newIsolationServer(t, weaknesses{acceptMissingHeader: true}))

	result := suite.Run(context.Background(), creds)

	assert.False(t, result.Pass)
	assert.Equal(t, StatusFail, checkStatus(result, "tenant-a", CheckMissingHeader))
	assert.Equal(t, StatusFail, checkStatus(result, "tenant-b", CheckMissingHeader))
}

func TestSuiteDetectsInvalidTokenAcceptance(t *testing.T) {
	suite, creds := newSuite(t, newIsolationServer(t, weaknesses{acceptInvalidToken: true}))

	result := suite.Run(context.Background(), creds)

	assert.False(t, result.Pass)
	assert.Equal(t, StatusFail, checkStatus(result, "tenant-a", CheckInvalidToken))
}

func TestSuiteDetectsCrossTenantLeak(t *testing.T) {
	suite, creds := newSuite(t, newIsolationServer(t, weaknesses{leakCrossTenant: true}))

	result := suite.Run(context.Background(), creds)

	assert.False(t, result.Pass)
	assert.Equal(t, StatusFail, checkStatus(result, "tenant-a", CheckCrossTenant))
	// The rest of the suite still ran despite the breach.
	assert.Equal(t, StatusPass, checkStatus(result, "tenant-a", CheckMaliciousInput))
}

func TestSuiteDetectsSharedCache(t *testing.T) {
	suite, creds := newSuite(t, newIsolationServer(t, weaknesses{sharedCache: true}))

	result := suite.Run(context.Background(), creds)

	assert.False(t, result.Pass)
	assert.Equal(t, StatusFail, checkStatus(result, "tenant-a", CheckCacheIsolation))
}

func TestSuiteDetectsAcceptedMaliciousInput(t *testing.T) {
	suite, creds := newSuite(t, newIsolationServer(t, weaknesses{acceptMalicious: true}))

	result := suite.Run(context.Background(), creds)

	assert.False(t, result.Pass)
	assert.Equal(t, StatusFail, checkStatus(result, "tenant-a", CheckMaliciousInput))
}

func TestSuiteSingleTenantSkipsPairedChecks(t *testing.T) {
	suite, creds := newSuite(t, newIsolationServer(t, weaknesses{}))

	result := suite.Run(context.Background(), creds[:1])

	assert.True(t, result.Pass)
	assert.Equal(t, 2, result.Skipped)
	assert.Equal(t, StatusSkip, checkStatus(result, "tenant-a", CheckCrossTenant))
	assert.Equal(t, StatusSkip, checkStatus(result, "tenant-a", CheckCacheIsolation))
}

func TestSuiteAuthFailureSkipsTenant(t *testing.T) {
	r := chi.NewRouter()
	r.Post("/oauth/token", func(w http.ResponseWriter, req *http.Request) {
		http.Error(w, "invalid_client", http.StatusUnauthorized)
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	suite, creds := newSuite(t, srv)
	result := suite.Run(context.Background(), creds[:1])

	assert.False(t, result.Pass)
	assert.Equal(t, StatusFail, checkStatus(result, "tenant-a", CheckAuthenticate))
	// Every remaining check for that tenant is skipped, not failed.
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 6, result.Skipped)
}
