package loadgen

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/delimatsuo/headhunter-sub003/internal/authn"
	"github.com/delimatsuo/headhunter-sub003/internal/config"
	"github.com/delimatsuo/headhunter-sub003/internal/httpclient"
)

// Platform issues authenticated requests against the deployed services on
// behalf of one tenant. Every call carries the tenant's bearer token and
// X-Tenant-ID header.
type Platform struct {
	services map[string]string
	httpc    *httpclient.Client
	auth     *authn.Client
	cred     authn.Credential
}

// NewPlatform binds a tenant credential to the service URL map.
func NewPlatform(services map[string]string, httpc *httpclient.Client, auth *authn.Client, cred authn.Credential) *Platform {
	return &Platform{services: services, httpc: httpc, auth: auth, cred: cred}
}

// Tenant returns the tenant this platform handle acts as.
func (p *Platform) Tenant() string {
	return p.cred.TenantID
}

// request resolves the service base URL, mints headers, and issues the call.
// The returned error is non-nil only for authentication failures, which are
// fatal to the calling operation.
func (p *Platform) request(ctx context.Context, method, service, path string, body any) (httpclient.Result, error) {
	base, ok := p.services[service]
	if !ok {
		return httpclient.Result{}, fmt.Errorf("no URL configured for service %q", service)
	}
	token, err := p.auth.GetToken(ctx, p.cred)
	if err != nil {
		return httpclient.Result{}, err
	}
	headers := map[string]string{
		"Authorization": "Bearer " + token,
		"X-Tenant-ID":   p.cred.TenantID,
	}
	return p.httpc.Do(ctx, method, strings.TrimRight(base, "/")+path, headers, body), nil
}

// GenerateEmbedding embeds a text snippet.
func (p *Platform) GenerateEmbedding(ctx context.Context, text string) (httpclient.Result, error) {
	return p.request(ctx, "POST", config.ServiceEmbedding, "/v1/embeddings/generate", map[string]any{
		"text": text,
	})
}

// UpsertEmbedding stores an embedding document.
func (p *Platform) UpsertEmbedding(ctx context.Context, id, text string) (httpclient.Result, error) {
	return p.request(ctx, "POST", config.ServiceEmbedding, "/v1/embeddings/upsert", map[string]any{
		"id":   id,
		"text": text,
	})
}

// QueryEmbeddings runs a nearest-neighbor query.
func (p *Platform) QueryEmbeddings(ctx context.Context, text string, limit int) (httpclient.Result, error) {
	return p.request(ctx, "POST", config.ServiceEmbedding, "/v1/embeddings/query", map[string]any{
		"text":  text,
		"limit": limit,
	})
}

// HybridSearch runs a combined lexical/vector candidate search.
func (p *Platform) HybridSearch(ctx context.Context, query string) (httpclient.Result, error) {
	return p.request(ctx, "POST", config.ServiceSearch, "/v1/search/hybrid", map[string]any{
		"query": query,
		"limit": 20,
	})
}

// Rerank reorders candidate documents against a query.
func (p *Platform) Rerank(ctx context.Context, query string, documents []string) (httpclient.Result, error) {
	return p.request(ctx, "POST", config.ServiceRerank, "/v1/search/rerank", map[string]any{
		"query":     query,
		"documents": documents,
	})
}

// Evidence fetches the evidence record backing a candidate match.
func (p *Platform) Evidence(ctx context.Context, candidateID string) (httpclient.Result, error) {
	return p.request(ctx, "GET", config.ServiceEvidence, "/v1/evidence/"+url.PathEscape(candidateID), nil)
}

// OccupationSearch looks up occupations by free-text query.
func (p *Platform) OccupationSearch(ctx context.Context, query string) (httpclient.Result, error) {
	return p.request(ctx, "GET", config.ServiceOccupations, "/v1/occupations/search?q="+url.QueryEscape(query), nil)
}

// Occupation fetches one occupation by its ECO identifier.
func (p *Platform) Occupation(ctx context.Context, ecoID string) (httpclient.Result, error) {
	return p.request(ctx, "GET", config.ServiceOccupations, "/v1/occupations/"+url.PathEscape(ecoID), nil)
}

// EnrichProfile submits a candidate profile for asynchronous enrichment.
func (p *Platform) EnrichProfile(ctx context.Context, candidateID string) (httpclient.Result, error) {
	return p.request(ctx, "POST", config.ServiceEnrich, "/v1/enrich/profile", map[string]any{
		"candidate_id": candidateID,
	})
}

// EnrichStatus polls an asynchronous enrichment job.
func (p *Platform) EnrichStatus(ctx context.Context, jobID string) (httpclient.Result, error) {
	return p.request(ctx, "GET", config.ServiceEnrich, "/v1/enrich/status/"+url.PathEscape(jobID), nil)
}

// SkillsExpand expands a skill into its adjacency set.
func (p *Platform) SkillsExpand(ctx context.Context, skill string) (httpclient.Result, error) {
	return p.request(ctx, "POST", config.ServiceMessaging, "/v1/skills/expand", map[string]any{
		"skill": skill,
	})
}

// RoleTemplate generates a role requirement template.
func (p *Platform) RoleTemplate(ctx context.Context, role string) (httpclient.Result, error) {
	return p.request(ctx, "POST", config.ServiceMessaging, "/v1/roles/template", map[string]any{
		"role": role,
	})
}

// MarketDemand fetches demand figures for a role in a region.
func (p *Platform) MarketDemand(ctx context.Context, role, region string) (httpclient.Result, error) {
	q := url.Values{"role": {role}, "region": {region}}
	return p.request(ctx, "GET", config.ServiceMessaging, "/v1/market/demand?"+q.Encode(), nil)
}
