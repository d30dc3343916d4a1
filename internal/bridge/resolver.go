package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/graphql-go/graphql"

	"github.com/graphbridge/graphbridge/internal/eventbus"
	"github.com/graphbridge/graphbridge/internal/events"
)

// DefaultListLimit is the page size assumed for list-shaped fields when the
// queries argument carries no explicit limit filter.
const DefaultListLimit = 25

// ResolverOptions tunes resolver construction for one field.
type ResolverOptions struct {
	// Weight is the field's declared complexity weight; zero means 1.
	// Only meaningful for list-shaped fields.
	Weight int
	// MaxComplexity rejects list invocations whose estimated cost
	// (weight x requested limit) exceeds it. Zero disables the guard.
	MaxComplexity int
}

type outcome struct {
	resp *Response
	err  error
}

// NewResolver builds the executable resolver for a binding against a live
// dispatcher. The returned function synthesizes a private request, dispatches
// it on its own goroutine, and hands the engine a completion thunk, so
// sibling fields of one operation resolve concurrently and in isolation.
func NewResolver(b Binding, d Dispatcher, opts ResolverOptions) graphql.FieldResolveFn {
	weight := opts.Weight
	if weight < 1 {
		weight = 1
	}
	return func(p graphql.ResolveParams) (any, error) {
		if opts.MaxComplexity > 0 {
			if cost := weight * requestedLimit(p.Args); cost > opts.MaxComplexity {
				return nil, &Error{
					Message: fmt.Sprintf("query estimated complexity %d exceeds maximum %d", cost, opts.MaxComplexity),
					Status:  http.StatusBadRequest,
				}
			}
		}
		req, err := buildRequest(b, p.Args)
		if err != nil {
			return nil, &Error{Message: err.Error(), Status: http.StatusBadRequest}
		}

		ctx := p.Context
		ch := make(chan outcome, 1)
		go func() {
			id := rand.Int64()
			start := time.Now()
			eventbus.Publish(ctx, events.DispatchStart{ID: id, Method: req.Method, Path: req.Path})
			resp, err := d.Dispatch(ctx, req)
			fin := events.DispatchFinish{
				ID: id, Method: req.Method, Path: req.Path,
				Err: err, Duration: time.Since(start),
			}
			if resp != nil {
				fin.Status = resp.Status
			}
			eventbus.Publish(ctx, fin)
			ch <- outcome{resp: resp, err: err}
		}()

		return func() (any, error) {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case out := <-ch:
				return translate(b, out)
			}
		}, nil
	}
}

// translate maps a pipeline outcome into a GraphQL value or a typed error.
func translate(b Binding, out outcome) (any, error) {
	if out.err != nil {
		if ctxErr := contextError(out.err); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &Error{Message: out.err.Error(), Status: http.StatusInternalServerError}
	}
	resp := out.resp
	if resp.Status < http.StatusOK || resp.Status >= http.StatusBadRequest {
		return nil, &Error{Message: failureMessage(resp), Status: resp.Status}
	}
	payload := EncodeKeys(resp.Payload)
	if b.Unwrap != "" {
		if m, ok := payload.(map[string]any); ok {
			payload = m[b.Unwrap]
		}
	}
	if payload == nil {
		payload = map[string]any{}
	}
	return payload, nil
}

func contextError(err error) error {
	if err == context.Canceled || err == context.DeadlineExceeded {
		return err
	}
	return nil
}

func failureMessage(resp *Response) string {
	if m, ok := resp.Payload.(map[string]any); ok {
		if msg, ok := m["message"].(string); ok && msg != "" {
			return msg
		}
	}
	return http.StatusText(resp.Status)
}

// buildRequest synthesizes the pipeline request for one invocation. Arguments
// fill path placeholders first; the binding kind decides where the rest go.
func buildRequest(b Binding, args map[string]any) (*Request, error) {
	rest := make(map[string]any, len(args))
	for k, v := range args {
		rest[k] = v
	}
	path, err := fillPath(b.Path, rest)
	if err != nil {
		return nil, err
	}
	req := &Request{
		Method:  b.Method,
		Path:    path,
		Query:   url.Values{},
		Headers: http.Header{},
	}

	switch b.Kind {
	case KindDocumentCreate:
		id, _ := rest["id"].(string)
		delete(rest, "id")
		if id == "" {
			id = uuid.NewString()
		}
		req.Body = map[string]any{
			"documentId":  id,
			"data":        decodeData(rest, "permissions"),
			"permissions": takePermissions(rest),
		}
	case KindDocumentUpdate:
		req.Body = map[string]any{
			"data":        decodeData(rest, "permissions"),
			"permissions": takePermissions(rest),
		}
	default:
		if b.Method == http.MethodGet {
			encodeQuery(req.Query, rest)
		} else {
			req.Body = rest
		}
	}
	return req, nil
}

// fillPath substitutes {name} placeholders with arguments, consuming them.
func fillPath(template string, args map[string]any) (string, error) {
	segments := strings.Split(template, "/")
	for i, seg := range segments {
		if !strings.HasPrefix(seg, "{") || !strings.HasSuffix(seg, "}") {
			continue
		}
		name := seg[1 : len(seg)-1]
		v, ok := args[name]
		if !ok {
			return "", fmt.Errorf("missing argument for path parameter %q", name)
		}
		delete(args, name)
		segments[i] = url.PathEscape(fmt.Sprint(v))
	}
	return strings.Join(segments, "/"), nil
}

// decodeData lifts the remaining attribute arguments into the document data
// payload, restoring reserved-sigil keys.
func decodeData(args map[string]any, exclude string) map[string]any {
	data := make(map[string]any, len(args))
	for k, v := range args {
		if k == exclude {
			continue
		}
		data[RawKey(k)] = DecodeKeys(v)
	}
	return data
}

func takePermissions(args map[string]any) []any {
	perms, _ := args["permissions"].([]any)
	delete(args, "permissions")
	if perms == nil {
		perms = []any{}
	}
	return perms
}

// encodeQuery flattens arguments into a query string: list arguments repeat
// the key, structured values are JSON-encoded.
func encodeQuery(q url.Values, args map[string]any) {
	for k, v := range args {
		switch val := v.(type) {
		case []any:
			for _, item := range val {
				q.Add(k, queryValue(item))
			}
		default:
			q.Add(k, queryValue(v))
		}
	}
}

func queryValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case map[string]any, []any:
		b, _ := json.Marshal(val)
		return string(b)
	default:
		return fmt.Sprint(val)
	}
}

// requestedLimit parses the page size out of the queries filter argument.
func requestedLimit(args map[string]any) int {
	queries, _ := args["queries"].([]any)
	for _, q := range queries {
		s, ok := q.(string)
		if !ok {
			continue
		}
		s = strings.TrimSpace(s)
		if !strings.HasPrefix(s, "limit(") || !strings.HasSuffix(s, ")") {
			continue
		}
		if n, err := strconv.Atoi(s[len("limit(") : len(s)-1]); err == nil && n > 0 {
			return n
		}
	}
	return DefaultListLimit
}
