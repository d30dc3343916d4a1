// Package server exposes the served schema over HTTP: a GraphQL endpoint
// accepting single and batched operations, and an SDL endpoint describing
// the schema a tenant currently sees.
package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/graphql-go/graphql"
	"go.uber.org/zap"

	"github.com/graphbridge/graphbridge/internal/cache"
	"github.com/graphbridge/graphbridge/internal/eventbus"
	"github.com/graphbridge/graphbridge/internal/events"
	"github.com/graphbridge/graphbridge/internal/reqid"
)

// Handler serves the GraphQL endpoint backed by the schema coordinator.
type Handler struct {
	coord *cache.Coordinator
	log   *zap.Logger
	opt   Options
}

// Options tunes the HTTP surface.
type Options struct {
	// Timeout applies when the incoming request carries no deadline.
	// Zero means no default timeout.
	Timeout time.Duration

	// Pretty enables indented JSON responses.
	Pretty bool

	// MaxBodyBytes limits the request body size. Zero means unlimited.
	MaxBodyBytes int64

	// TenantHeader names the header carrying the tenant id.
	TenantHeader string

	// CORS configuration. Empty AllowedOrigins disables CORS.
	CORS CORSOptions
}

// CORSOptions holds simple CORS settings.
type CORSOptions struct {
	AllowedOrigins []string
}

// Option mutates Options.
type Option func(*Options)

func WithTimeout(d time.Duration) Option { return func(o *Options) { o.Timeout = d } }
func WithPretty() Option                 { return func(o *Options) { o.Pretty = true } }
func WithMaxBodyBytes(n int64) Option    { return func(o *Options) { o.MaxBodyBytes = n } }
func WithTenantHeader(h string) Option   { return func(o *Options) { o.TenantHeader = h } }
func WithCORS(origins ...string) Option {
	return func(o *Options) { o.CORS.AllowedOrigins = origins }
}

// New creates the GraphQL HTTP handler.
func New(coord *cache.Coordinator, log *zap.Logger, opts ...Option) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	op := Options{Timeout: 10 * time.Second, TenantHeader: "X-Tenant-Id"}
	for _, f := range opts {
		f(&op)
	}
	return &Handler{coord: coord, log: log, opt: op}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := ctx.Deadline(); !ok && h.opt.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.opt.Timeout)
		defer cancel()
	}
	ctx, _ = reqid.NewContext(ctx)

	status := http.StatusOK
	start := time.Now()
	eventbus.Publish(ctx, events.HTTPStart{Request: r})
	defer func() {
		eventbus.Publish(ctx, events.HTTPFinish{Request: r, Status: status, Duration: time.Since(start)})
	}()

	if len(h.opt.CORS.AllowedOrigins) > 0 {
		setCORSHeaders(w, r, h.opt.CORS)
	}
	if r.Method == http.MethodOptions {
		status = http.StatusNoContent
		w.WriteHeader(status)
		return
	}
	if r.Method != http.MethodPost && r.Method != http.MethodGet {
		status = http.StatusMethodNotAllowed
		writeJSON(w, status, errorResult("method not allowed"), h.opt.Pretty)
		return
	}

	single, batch, perr := parseRequest(r, h.opt.MaxBodyBytes)
	if perr != nil {
		status = http.StatusBadRequest
		if perr.Error() == errBodyTooLarge {
			status = http.StatusRequestEntityTooLarge
		}
		writeJSON(w, status, errorResult(perr.Error()), h.opt.Pretty)
		return
	}

	tenant := r.Header.Get(h.opt.TenantHeader)
	if batch != nil {
		out := make([]any, len(batch))
		for i := range batch {
			out[i] = h.executeOne(ctx, tenant, batch[i])
		}
		writeJSON(w, status, out, h.opt.Pretty)
		return
	}
	writeJSON(w, status, h.executeOne(ctx, tenant, single), h.opt.Pretty)
}

func (h *Handler) executeOne(ctx context.Context, tenant string, req Request) any {
	sch, err := h.coord.Schema(ctx, tenant)
	if err != nil {
		h.log.Error("schema build failed", zap.String("tenant", tenant), zap.Error(err))
		return errorResult("failed to build schema: " + err.Error())
	}

	opType := operationType(req.Query)
	start := time.Now()
	eventbus.Publish(ctx, events.GraphQLStart{
		Query: req.Query, OperationName: req.OperationName,
		OperationType: opType, Tenant: tenant,
	})
	result := graphql.Do(graphql.Params{
		Schema:         sch,
		RequestString:  req.Query,
		VariableValues: req.Variables,
		OperationName:  req.OperationName,
		Context:        ctx,
	})
	eventbus.Publish(ctx, events.GraphQLFinish{
		Query: req.Query, OperationName: req.OperationName,
		OperationType: opType, Tenant: tenant,
		ErrorCount: len(result.Errors), Duration: time.Since(start),
	})
	return result
}

// Request is one GraphQL operation in transport form.
type Request struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName,omitempty"`
	Variables     map[string]any `json:"variables,omitempty"`
}

const errBodyTooLarge = "body too large"

func parseRequest(r *http.Request, maxBody int64) (Request, []Request, error) {
	if r.Method == http.MethodGet {
		q := r.URL.Query().Get("query")
		if q == "" {
			return Request{}, nil, errParse("missing 'query'")
		}
		vars := map[string]any{}
		if v := r.URL.Query().Get("variables"); v != "" {
			if err := json.Unmarshal([]byte(v), &vars); err != nil {
				return Request{}, nil, errParse("invalid 'variables' JSON")
			}
		}
		return Request{
			Query:         q,
			Variables:     vars,
			OperationName: r.URL.Query().Get("operationName"),
		}, nil, nil
	}

	ct := r.Header.Get("Content-Type")
	if ct != "" && ct != "application/json" && !strings.HasPrefix(ct, "application/json;") {
		return Request{}, nil, errParse("unsupported Content-Type")
	}
	reader := io.Reader(r.Body)
	if maxBody > 0 {
		reader = io.LimitReader(r.Body, maxBody+1)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return Request{}, nil, errParse("failed to read body")
	}
	defer r.Body.Close()
	if maxBody > 0 && int64(len(body)) > maxBody {
		return Request{}, nil, errParse(errBodyTooLarge)
	}

	if len(body) > 0 && body[0] == '[' {
		var batch []Request
		if err := json.Unmarshal(body, &batch); err != nil {
			return Request{}, nil, errParse("invalid JSON")
		}
		if len(batch) == 0 {
			return Request{}, nil, errParse("empty batch")
		}
		return Request{}, batch, nil
	}
	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		return Request{}, nil, errParse("invalid JSON")
	}
	if req.Query == "" {
		return Request{}, nil, errParse("missing 'query'")
	}
	if req.Variables == nil {
		req.Variables = map[string]any{}
	}
	return req, nil, nil
}

type parseError string

func (e parseError) Error() string { return string(e) }

func errParse(msg string) error { return parseError(msg) }

// operationType sniffs the operation keyword for telemetry; the engine does
// the authoritative parse.
func operationType(query string) string {
	q := strings.TrimSpace(query)
	switch {
	case strings.HasPrefix(q, "mutation"):
		return "mutation"
	case strings.HasPrefix(q, "subscription"):
		return "subscription"
	default:
		return "query"
	}
}

type errorEnvelope struct {
	Data   any            `json:"data"`
	Errors []errorMessage `json:"errors"`
}

type errorMessage struct {
	Message string `json:"message"`
}

func errorResult(msg string) errorEnvelope {
	return errorEnvelope{Errors: []errorMessage{{Message: msg}}}
}

func writeJSON(w http.ResponseWriter, status int, v any, pretty bool) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	_ = enc.Encode(v)
}

func setCORSHeaders(w http.ResponseWriter, r *http.Request, opts CORSOptions) {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return
	}
	allowed := false
	wildcard := false
	for _, o := range opts.AllowedOrigins {
		if o == "*" {
			allowed, wildcard = true, true
		}
		if o == origin {
			allowed = true
		}
	}
	if !allowed {
		return
	}
	if wildcard {
		w.Header().Set("Access-Control-Allow-Origin", "*")
	} else {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Add("Vary", "Origin")
	}
	if r.Method == http.MethodOptions {
		if hdr := r.Header.Get("Access-Control-Request-Headers"); hdr != "" {
			w.Header().Set("Access-Control-Allow-Headers", hdr)
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
	}
}
