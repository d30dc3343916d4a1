// Package pipeline adapts the bridge's transport-agnostic dispatch contract
// to the host platform's execution pipeline. Two adapters are provided:
// Handler replays synthetic requests through an in-process http.Handler (the
// platform's own mux), Upstream forwards them to a platform reachable over
// HTTP.
package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/graphbridge/graphbridge/internal/bridge"
)

// Handler dispatches synthetic requests into an in-process http.Handler,
// re-entering the same route matching and execution the transport uses.
type Handler struct {
	next   http.Handler
	header http.Header
}

// Option configures a Handler.
type Option func(*Handler)

// WithHeader sets a header on every synthesized request, e.g. the elevated
// mode header the platform expects from trusted internal callers.
func WithHeader(key, value string) Option {
	return func(h *Handler) { h.header.Set(key, value) }
}

// NewHandler wraps the platform's handler.
func NewHandler(next http.Handler, opts ...Option) *Handler {
	h := &Handler{next: next, header: http.Header{}}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Dispatch implements bridge.Dispatcher. A panic from the pipeline is
// captured as a dispatch error, matching the "throws" arm of the contract.
func (h *Handler) Dispatch(ctx context.Context, req *bridge.Request) (resp *bridge.Response, err error) {
	httpReq, err := synthesize(ctx, req, h.header)
	if err != nil {
		return nil, err
	}
	rec := newRecorder()
	defer func() {
		if r := recover(); r != nil {
			resp, err = nil, fmt.Errorf("pipeline panic: %v", r)
		}
	}()
	h.next.ServeHTTP(rec, httpReq)
	return rec.response()
}

// synthesize builds the http.Request a pipeline expects from a bridge
// request. Each call allocates a fresh request; nothing is shared between
// concurrently resolving fields.
func synthesize(ctx context.Context, req *bridge.Request, base http.Header) (*http.Request, error) {
	u := url.URL{Path: req.Path, RawQuery: req.Query.Encode()}
	var body *bytes.Reader
	if req.Body != nil {
		raw, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("synthesize request: %w", err)
	}
	for key, values := range base {
		httpReq.Header[key] = append([]string(nil), values...)
	}
	for key, values := range req.Headers {
		httpReq.Header[key] = append([]string(nil), values...)
	}
	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	return httpReq, nil
}

// recorder captures the pipeline's response without touching a socket.
type recorder struct {
	status int
	header http.Header
	body   bytes.Buffer
}

func newRecorder() *recorder {
	return &recorder{status: http.StatusOK, header: http.Header{}}
}

func (r *recorder) Header() http.Header { return r.header }

func (r *recorder) WriteHeader(status int) { r.status = status }

func (r *recorder) Write(p []byte) (int, error) { return r.body.Write(p) }

func (r *recorder) response() (*bridge.Response, error) {
	resp := &bridge.Response{Status: r.status}
	if r.body.Len() == 0 {
		return resp, nil
	}
	var payload any
	if err := json.Unmarshal(r.body.Bytes(), &payload); err != nil {
		// Non-JSON payloads (plain text errors) pass through verbatim.
		payload = r.body.String()
	}
	resp.Payload = payload
	return resp, nil
}
