// Package bridge turns GraphQL field invocations into synthetic requests
// against the host platform's execution pipeline, and pipeline results back
// into GraphQL values or typed errors. Fields carry a serializable Binding
// instead of a resolver closure; the executable resolver is rebuilt from the
// binding and a live Dispatcher on every schema load.
package bridge

import (
	"context"
	"net/http"
	"net/url"
)

// Kind selects the request-shaping rule a binding uses.
type Kind string

const (
	// KindRoute replays a static platform route: arguments fill path
	// placeholders, the rest become the query string (GET) or body.
	KindRoute Kind = "route"

	KindDocumentGet    Kind = "documentGet"
	KindDocumentList   Kind = "documentList"
	KindDocumentCreate Kind = "documentCreate"
	KindDocumentUpdate Kind = "documentUpdate"
	KindDocumentDelete Kind = "documentDelete"
)

// Binding is the serializable resolver descriptor stored inside cached schema
// fragments: enough data to reconstruct the resolver, and nothing executable.
type Binding struct {
	Kind   Kind   `json:"bind"`
	Method string `json:"method"`
	// Path is the target path template with {name} placeholders.
	Path string `json:"path"`
	// Unwrap names the payload key whose value replaces the whole payload
	// before resolution (list fields unwrap to their items array).
	Unwrap string `json:"unwrap,omitempty"`
}

// Request is one synthetic pipeline request. Every resolver invocation builds
// its own Request; instances are never shared across invocations.
type Request struct {
	Method  string
	Path    string
	Query   url.Values
	Body    map[string]any
	Headers http.Header
}

// Response is the pipeline's answer to a synthetic request.
type Response struct {
	Status  int
	Payload any
}

// Dispatcher re-enters the host execution pipeline: match the synthetic
// request to a route, execute it, and report the response payload and status.
// A transport-level failure (no match, panic, broken upstream) is returned as
// an error; application-level failures come back as non-2xx statuses.
type Dispatcher interface {
	Dispatch(ctx context.Context, req *Request) (*Response, error)
}
