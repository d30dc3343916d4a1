package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/graphbridge/graphbridge/internal/bridge"
)

// Upstream dispatches synthetic requests to a platform reachable over HTTP,
// for running graphbridge as a standalone gateway process.
type Upstream struct {
	base   *url.URL
	client *http.Client
	header http.Header
}

// UpstreamOption configures an Upstream.
type UpstreamOption func(*Upstream)

// WithUpstreamHeader sets a header on every forwarded request.
func WithUpstreamHeader(key, value string) UpstreamOption {
	return func(u *Upstream) { u.header.Set(key, value) }
}

// WithClient replaces the HTTP client.
func WithClient(c *http.Client) UpstreamOption {
	return func(u *Upstream) { u.client = c }
}

// NewUpstream creates a dispatcher forwarding to baseURL.
func NewUpstream(baseURL string, opts ...UpstreamOption) (*Upstream, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse upstream url: %w", err)
	}
	u := &Upstream{
		base:   base,
		client: &http.Client{Timeout: 30 * time.Second},
		header: http.Header{},
	}
	for _, opt := range opts {
		opt(u)
	}
	return u, nil
}

// Dispatch implements bridge.Dispatcher.
func (u *Upstream) Dispatch(ctx context.Context, req *bridge.Request) (*bridge.Response, error) {
	target := *u.base
	target.Path = strings.TrimSuffix(target.Path, "/") + req.Path
	target.RawQuery = req.Query.Encode()

	var body io.Reader
	if req.Body != nil {
		raw, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target.String(), body)
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	for key, values := range u.header {
		httpReq.Header[key] = append([]string(nil), values...)
	}
	for key, values := range req.Headers {
		httpReq.Header[key] = append([]string(nil), values...)
	}
	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	httpResp, err := u.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()
	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("read upstream response: %w", err)
	}
	resp := &bridge.Response{Status: httpResp.StatusCode}
	if len(raw) > 0 {
		var payload any
		if err := json.Unmarshal(raw, &payload); err != nil {
			payload = string(raw)
		}
		resp.Payload = payload
	}
	return resp, nil
}
