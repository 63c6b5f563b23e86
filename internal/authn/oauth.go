// Package authn implements OAuth2 client-credentials token acquisition for
// the tenants exercised by a validation run.
//
// Purpose:
//
//	Each tenant authenticates against the platform's token endpoint with its
//	own client credentials. Tokens are cached for the lifetime of the run and
//	refreshed when their remaining validity drops below a safety margin, so a
//	long load test never sends an expired bearer token.
//
// Key Responsibilities:
//   - GetToken: cached, expiry-aware token lookup per tenant
//   - Credential parsing from the "tenant:client_id:client_secret" form
package authn

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// RefreshMargin is the minimum remaining validity a cached token must have to
// be reused. Tokens closer to expiry than this are discarded and re-fetched.
const RefreshMargin = 60 * time.Second

// Credential identifies one tenant's OAuth client.
type Credential struct {
	TenantID     string
	ClientID     string
	ClientSecret string
}

// ParseCredential parses the "tenant:client_id:client_secret" form used in
// run configuration files.
func ParseCredential(s string) (Credential, error) {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return Credential{}, fmt.Errorf("malformed tenant credential %q: want tenant:client_id:client_secret", redactCredential(s))
	}
	return Credential{TenantID: parts[0], ClientID: parts[1], ClientSecret: parts[2]}, nil
}

func redactCredential(s string) string {
	if i := strings.Index(s, ":"); i >= 0 {
		return s[:i] + ":***"
	}
	return "***"
}

// AuthError reports a failed token acquisition. It is fatal for any operation
// that needs the tenant's identity.
type AuthError struct {
	TenantID string
	Status   int
	Reason   string
}

func (e *AuthError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("authentication failed for tenant %s: status %d: %s", e.TenantID, e.Status, e.Reason)
	}
	return fmt.Sprintf("authentication failed for tenant %s: %s", e.TenantID, e.Reason)
}

type cachedToken struct {
	accessToken string
	expiry      time.Time
}

// Client obtains and caches bearer tokens via the client-credentials grant.
//
// Concurrent cache misses for the same tenant may each issue a token request;
// the last write wins. The platform tolerates token churn, so this is cheaper
// than per-tenant request coalescing.
type Client struct {
	tokenURL string
	audience string
	httpc    *http.Client
	logger   *zap.Logger
	now      func() time.Time

	mu    sync.Mutex
	cache map[string]cachedToken
}

// NewClient creates a token client for the given token endpoint. audience may
// be empty.
func NewClient(tokenURL, audience string, timeout time.Duration, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		tokenURL: tokenURL,
		audience: audience,
		httpc:    &http.Client{Timeout: timeout},
		logger:   logger,
		now:      time.Now,
		cache:    make(map[string]cachedToken),
	}
}

// GetToken returns a bearer token for the tenant, fetching a fresh one when
// no cached token has more than RefreshMargin of validity left.
func (c *Client) GetToken(ctx context.Context, cred Credential) (string, error) {
	c.mu.Lock()
	cached, ok := c.cache[cred.TenantID]
	c.mu.Unlock()
	if ok && cached.expiry.Sub(c.now()) > RefreshMargin {
		return cached.accessToken, nil
	}

	token, expiresIn, err := c.fetch(ctx, cred)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.cache[cred.TenantID] = cachedToken{
		accessToken: token,
		expiry:      c.now().Add(time.Duration(expiresIn * float64(time.Second))),
	}
	c.mu.Unlock()

	c.logger.Debug("token acquired",
		zap.String("tenant_id", cred.TenantID),
		zap.Float64("expires_in_seconds", expiresIn),
	)
	return token, nil
}

// Invalidate drops the cached token for a tenant, forcing the next GetToken
// to hit the token endpoint.
func (c *Client) Invalidate(tenantID string) {
	c.mu.Lock()
	delete(c.cache, tenantID)
	c.mu.Unlock()
}

func (c *Client) fetch(ctx context.Context, cred Credential) (string, float64, error) {
	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {cred.ClientID},
		"client_secret": {cred.ClientSecret},
	}
	if c.audience != "" {
		form.Set("audience", c.audience)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", 0, &AuthError{TenantID: cred.TenantID, Reason: err.Error()}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", 0, &AuthError{TenantID: cred.TenantID, Reason: fmt.Sprintf("token request: %v", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", 0, &AuthError{TenantID: cred.TenantID, Status: resp.StatusCode, Reason: fmt.Sprintf("read token response: %v", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", 0, &AuthError{TenantID: cred.TenantID, Status: resp.StatusCode, Reason: "token endpoint returned non-2xx"}
	}

	var parsed struct {
		AccessToken string  `json:"access_token"`
		ExpiresIn   float64 `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", 0, &AuthError{TenantID: cred.TenantID, Status: resp.StatusCode, Reason: fmt.Sprintf("decode token response: %v", err)}
	}
	if parsed.AccessToken == "" {
		return "", 0, &AuthError{TenantID: cred.TenantID, Status: resp.StatusCode, Reason: "token response missing access_token"}
	}
	return parsed.AccessToken, parsed.ExpiresIn, nil
}
