// Package isolation probes the deployed platform for tenant-isolation
// regressions: header enforcement, token validation, cross-tenant resource
// access, cache namespacing, and adversarial input handling.
//
// Every check runs for every configured tenant; a failing check never aborts
// the suite. The aggregated results feed the run report and verdict.
package isolation

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/delimatsuo/headhunter-sub003/internal/authn"
	"github.com/delimatsuo/headhunter-sub003/internal/config"
	"github.com/delimatsuo/headhunter-sub003/internal/httpclient"
)

// Check statuses.
const (
	StatusPass = "pass"
	StatusFail = "fail"
	StatusSkip = "skip"
)

// Check names, in execution order.
const (
	CheckAuthenticate   = "authenticate"
	CheckPositiveAccess = "positive_access"
	CheckMissingHeader  = "missing_header"
	CheckInvalidToken   = "invalid_token"
	CheckCrossTenant    = "cross_tenant"
	CheckCacheIsolation = "cache_isolation"
	CheckMaliciousInput = "malicious_input"
)

// invalidToken is syntactically a JWT but signed by nobody.
const invalidToken = "eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9." +
	"eyJzdWIiOiJpbnRydWRlciIsInRlbmFudCI6Im5vbmUifQ." +
	"c3VyZWx5LW5vdC1hLXZhbGlkLXNpZ25hdHVyZQ"

// CheckResult is the outcome of one check for one tenant.
type CheckResult struct {
	Tenant string `json:"tenant"`
	Check  string `json:"check"`
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// SuiteResult aggregates every check across every tenant.
type SuiteResult struct {
	Checks  []CheckResult `json:"checks"`
	Passed  int           `json:"passed"`
	Failed  int           `json:"failed"`
	Skipped int           `json:"skipped"`
	Pass    bool          `json:"pass"`
}

// Suite runs the tenant-isolation probes.
type Suite struct {
	services map[string]string
	httpc    *httpclient.Client
	auth     *authn.Client
	payloads []string
	logger   *zap.Logger
}

// NewSuite wires a probe suite. payloads may be nil to use the default
// adversarial set.
func NewSuite(services map[string]string, httpc *httpclient.Client, auth *authn.Client, payloads []string, logger *zap.Logger) *Suite {
	if payloads == nil {
		payloads = MaliciousPayloads
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Suite{services: services, httpc: httpc, auth: auth, payloads: payloads, logger: logger}
}

// Run executes the full check sequence for every tenant. Tenants are paired
// round-robin for the cross-tenant and cache-isolation checks; those checks
// are skipped when only one tenant is configured.
func (s *Suite) Run(ctx context.Context, creds []authn.Credential) *SuiteResult {
	result := &SuiteResult{}
	add := func(r CheckResult) {
		result.Checks = append(result.Checks, r)
		switch r.Status {
		case StatusPass:
			result.Passed++
		case StatusFail:
			result.Failed++
			s.logger.Warn("isolation check failed",
				zap.String("tenant", r.Tenant),
				zap.String("check", r.Check),
				zap.String("reason", r.Reason),
			)
		case StatusSkip:
			result.Skipped++
		}
	}

	for i, cred := range creds {
		token, err := s.auth.GetToken(ctx, cred)
		if err != nil {
			add(CheckResult{Tenant: cred.TenantID, Check: CheckAuthenticate, Status: StatusFail, Reason: err.Error()})
			for _, check := range []string{CheckPositiveAccess, CheckMissingHeader, CheckInvalidToken, CheckCrossTenant, CheckCacheIsolation, CheckMaliciousInput} {
				add(CheckResult{Tenant: cred.TenantID, Check: check, Status: StatusSkip, Reason: "tenant authentication failed"})
			}
			continue
		}
		add(CheckResult{Tenant: cred.TenantID, Check: CheckAuthenticate, Status: StatusPass})

		add(s.positiveAccess(ctx, cred, token))
		add(s.missingHeader(ctx, cred, token))
		add(s.invalidTokenCheck(ctx, cred))

		if len(creds) > 1 {
			peer := creds[(i+1)%len(creds)]
			add(s.crossTenant(ctx, cred, token, peer))
			add(s.cacheIsolation(ctx, cred, token, peer))
		} else {
			add(CheckResult{Tenant: cred.TenantID, Check: CheckCrossTenant, Status: StatusSkip, Reason: "needs at least two tenants"})
			add(CheckResult{Tenant: cred.TenantID, Check: CheckCacheIsolation, Status: StatusSkip, Reason: "needs at least two tenants"})
		}

		add(s.maliciousInput(ctx, cred, token))
	}

	result.Pass = result.Failed == 0
	return result
}

func (s *Suite) probeURL(service, path string) string {
	return strings.TrimRight(s.services[service], "/") + path
}

func (s *Suite) headers(token, tenantID string) map[string]string {
	h := map[string]string{"Authorization": "Bearer " + token}
	if tenantID != "" {
		h["X-Tenant-ID"] = tenantID
	}
	return h
}

// positiveAccess: an authenticated request with the correct tenant header
// must succeed.
func (s *Suite) positiveAccess(ctx context.Context, cred authn.Credential, token string) CheckResult {
	res := s.httpc.Do(ctx, "GET", s.probeURL(config.ServiceOccupations, "/v1/occupations/search?q=engineer"), s.headers(token, cred.TenantID), nil)
	if !res.Completed() {
		return CheckResult{Tenant: cred.TenantID, Check: CheckPositiveAccess, Status: StatusFail, Reason: res.Err.Error()}
	}
	if res.Response.StatusCode >= 400 {
		return CheckResult{Tenant: cred.TenantID, Check: CheckPositiveAccess, Status: StatusFail,
			Reason: fmt.Sprintf("expected success, got status %d", res.Response.StatusCode)}
	}
	return CheckResult{Tenant: cred.TenantID, Check: CheckPositiveAccess, Status: StatusPass}
}

// missingHeader: the identical request without X-Tenant-ID must be rejected.
// A success here is a security regression.
func (s *Suite) missingHeader(ctx context.Context, cred authn.Credential, token string) CheckResult {
	res := s.httpc.Do(ctx, "GET", s.probeURL(config.ServiceOccupations, "/v1/occupations/search?q=engineer"), s.headers(token, ""), nil)
	if !res.Completed() {
		return CheckResult{Tenant: cred.TenantID, Check: CheckMissingHeader, Status: StatusFail, Reason: res.Err.Error()}
	}
	if res.Response.StatusCode < 400 {
		return CheckResult{Tenant: cred.TenantID, Check: CheckMissingHeader, Status: StatusFail,
			Reason: fmt.Sprintf("request without tenant header accepted with status %d", res.Response.StatusCode)}
	}
	return CheckResult{Tenant: cred.TenantID, Check: CheckMissingHeader, Status: StatusPass}
}

// invalidTokenCheck: a well-formed but invalid bearer token must yield
// 401 or 403.
func (s *Suite) invalidTokenCheck(ctx context.Context, cred authn.Credential) CheckResult {
	res := s.httpc.Do(ctx, "GET", s.probeURL(config.ServiceOccupations, "/v1/occupations/search?q=engineer"), s.headers(invalidToken, cred.TenantID), nil)
	if !res.Completed() {
		return CheckResult{Tenant: cred.TenantID, Check: CheckInvalidToken, Status: StatusFail, Reason: res.Err.Error()}
	}
	if res.Response.StatusCode != 401 && res.Response.StatusCode != 403 {
		return CheckResult{Tenant: cred.TenantID, Check: CheckInvalidToken, Status: StatusFail,
			Reason: fmt.Sprintf("invalid token yielded status %d, want 401 or 403", res.Response.StatusCode)}
	}
	return CheckResult{Tenant: cred.TenantID, Check: CheckInvalidToken, Status: StatusPass}
}

// crossTenant: tenant A asking for a resource scoped to tenant B must be
// rejected with 401, 403, or 404. A 2xx is a tenant-isolation breach.
func (s *Suite) crossTenant(ctx context.Context, cred authn.Credential, token string, peer authn.Credential) CheckResult {
	foreign := fmt.Sprintf("/v1/evidence/%s-cand-0001", url.PathEscape(peer.TenantID))
	res := s.httpc.Do(ctx, "GET", s.probeURL(config.ServiceEvidence, foreign), s.headers(token, cred.TenantID), nil)
	if !res.Completed() {
		return CheckResult{Tenant: cred.TenantID, Check: CheckCrossTenant, Status: StatusFail, Reason: res.Err.Error()}
	}
	switch res.Response.StatusCode {
	case 401, 403, 404:
		return CheckResult{Tenant: cred.TenantID, Check: CheckCrossTenant, Status: StatusPass}
	}
	if res.Response.OK() {
		return CheckResult{Tenant: cred.TenantID, Check: CheckCrossTenant, Status: StatusFail,
			Reason: fmt.Sprintf("tenant %s read tenant %s's resource: status %d", cred.TenantID, peer.TenantID, res.Response.StatusCode)}
	}
	return CheckResult{Tenant: cred.TenantID, Check: CheckCrossTenant, Status: StatusFail,
		Reason: fmt.Sprintf("unexpected status %d, want 401/403/404", res.Response.StatusCode)}
}

// cacheIsolation: tenant A warms a cacheable read; the same logical read by
// tenant B must not report a cache hit, proving cache keys are
// tenant-namespaced.
func (s *Suite) cacheIsolation(ctx context.Context, cred authn.Credential, token string, peer authn.Credential) CheckResult {
	probePath := "/v1/occupations/search?q=cache-isolation-probe"

	warm := s.httpc.Do(ctx, "GET", s.probeURL(config.ServiceOccupations, probePath), s.headers(token, cred.TenantID), nil)
	if !warm.Completed() {
		return CheckResult{Tenant: cred.TenantID, Check: CheckCacheIsolation, Status: StatusFail, Reason: warm.Err.Error()}
	}

	peerToken, err := s.auth.GetToken(ctx, peer)
	if err != nil {
		return CheckResult{Tenant: cred.TenantID, Check: CheckCacheIsolation, Status: StatusSkip,
			Reason: fmt.Sprintf("peer tenant %s authentication failed", peer.TenantID)}
	}
	probe := s.httpc.Do(ctx, "GET", s.probeURL(config.ServiceOccupations, probePath), s.headers(peerToken, peer.TenantID), nil)
	if !probe.Completed() {
		return CheckResult{Tenant: cred.TenantID, Check: CheckCacheIsolation, Status: StatusFail, Reason: probe.Err.Error()}
	}
	if strings.EqualFold(probe.Response.Header("X-Cache"), "HIT") {
		return CheckResult{Tenant: cred.TenantID, Check: CheckCacheIsolation, Status: StatusFail,
			Reason: fmt.Sprintf("tenant %s observed a cache hit for tenant %s's read", peer.TenantID, cred.TenantID)}
	}
	return CheckResult{Tenant: cred.TenantID, Check: CheckCacheIsolation, Status: StatusPass}
}

// maliciousInput: every adversarial payload submitted as query text must be
// rejected with a 4xx/5xx status. Acceptance of any payload fails the check.
func (s *Suite) maliciousInput(ctx context.Context, cred authn.Credential, token string) CheckResult {
	for i, payload := range s.payloads {
		probes := []httpclient.Result{
			s.httpc.Do(ctx, "GET",
				s.probeURL(config.ServiceOccupations, "/v1/occupations/search?q="+url.QueryEscape(payload)),
				s.headers(token, cred.TenantID), nil),
			s.httpc.Do(ctx, "POST",
				s.probeURL(config.ServiceSearch, "/v1/search/hybrid"),
				s.headers(token, cred.TenantID), map[string]any{"query": payload}),
		}
		for _, res := range probes {
			if !res.Completed() {
				return CheckResult{Tenant: cred.TenantID, Check: CheckMaliciousInput, Status: StatusFail,
					Reason: fmt.Sprintf("payload %d: %v", i, res.Err)}
			}
			if res.Response.StatusCode < 400 {
				return CheckResult{Tenant: cred.TenantID, Check: CheckMaliciousInput, Status: StatusFail,
					Reason: fmt.Sprintf("payload %d accepted with status %d", i, res.Response.StatusCode)}
			}
		}
	}
	return CheckResult{Tenant: cred.TenantID, Check: CheckMaliciousInput, Status: StatusPass}
}
