// Package httpclient wraps net/http for validation traffic: JSON request
// bodies, per-request latency measurement, and a tagged Result that keeps
// "received an error status" distinct from "never received a response".
package httpclient

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Response is a fully-read HTTP response with its observed latency.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
	Latency    time.Duration
}

// OK reports whether the response carries a 2xx status.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Decode unmarshals the response body as JSON.
func (r *Response) Decode(v any) error {
	return json.Unmarshal(r.Body, v)
}

// Header returns the first value of the named response header.
func (r *Response) Header(key string) string {
	return r.Headers.Get(key)
}

// Result is the outcome of one request. Exactly one of Response or Err is
// set: a non-2xx status still produces a Response, while Err means the
// request never completed (connection failure, timeout).
type Result struct {
	Response *Response
	Err      error
}

// Completed reports whether a response was received at all.
func (r Result) Completed() bool {
	return r.Err == nil && r.Response != nil
}

// Client issues validation requests. Safe for concurrent use.
type Client struct {
	httpc  *http.Client
	logger *zap.Logger
}

// New creates a client with the given per-request timeout. TLS verification
// is skipped: validation runs target staging ingress with self-signed certs.
func New(timeout time.Duration, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		httpc: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				TLSClientConfig:     &tls.Config{InsecureSkipVerify: true},
				MaxIdleConnsPerHost: 64,
			},
		},
		logger: logger,
	}
}

// Do issues one request. body, when non-nil, is JSON-encoded. headers are set
// verbatim on the request; a "Host" entry overrides the request host for
// ingress routing.
func (c *Client) Do(ctx context.Context, method, rawURL string, headers map[string]string, body any) Result {
	var bodyReader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return Result{Err: fmt.Errorf("marshal request body: %w", err)}
		}
		bodyReader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, bodyReader)
	if err != nil {
		return Result{Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		if strings.EqualFold(k, "host") {
			req.Host = v
			continue
		}
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.httpc.Do(req)
	latency := time.Since(start)
	if err != nil {
		c.logger.Debug("request transport failure",
			zap.String("method", method),
			zap.String("url", rawURL),
			zap.Error(err),
		)
		return Result{Err: fmt.Errorf("%s %s: %w", method, rawURL, err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{Err: fmt.Errorf("read response body: %w", err)}
	}

	c.logger.Debug("request completed",
		zap.String("method", method),
		zap.String("url", rawURL),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", latency),
		zap.Any("headers", MaskSensitiveHeaders(headers)),
	)

	return Result{Response: &Response{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       respBody,
		Latency:    latency,
	}}
}

// MaskSensitiveHeaders replaces credential-bearing header values with "***"
// so request logs never leak tokens.
func MaskSensitiveHeaders(headers map[string]string) map[string]string {
	masked := make(map[string]string, len(headers))
	for k, v := range headers {
		if isSensitiveHeader(k) {
			masked[k] = "***"
		} else {
			masked[k] = v
		}
	}
	return masked
}

func isSensitiveHeader(key string) bool {
	lower := strings.ToLower(key)
	for _, s := range []string{"authorization", "x-api-key", "cookie", "set-cookie"} {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}
