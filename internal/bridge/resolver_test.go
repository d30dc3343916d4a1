package bridge

import (
	"context"
	"net/http"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/graphql-go/graphql"
	"github.com/stretchr/testify/require"
)

type fakeDispatcher struct {
	last *Request
	resp *Response
	err  error
}

func (f *fakeDispatcher) Dispatch(_ context.Context, req *Request) (*Response, error) {
	f.last = req
	return f.resp, f.err
}

func resolve(t *testing.T, b Binding, d Dispatcher, opts ResolverOptions, args map[string]any) (any, error) {
	t.Helper()
	fn := NewResolver(b, d, opts)
	out, err := fn(graphql.ResolveParams{Context: context.Background(), Args: args})
	if err != nil {
		return nil, err
	}
	thunk, ok := out.(func() (any, error))
	require.True(t, ok, "resolver must return a completion thunk")
	return thunk()
}

func TestBuildRequestRoute(t *testing.T) {
	b := Binding{Kind: KindRoute, Method: http.MethodGet, Path: "/v1/teams/{teamId}/members"}
	req, err := buildRequest(b, map[string]any{
		"teamId":  "t1",
		"queries": []any{"limit(5)", "offset(0)"},
		"search":  "ann",
	})
	require.NoError(t, err)
	require.Equal(t, "/v1/teams/t1/members", req.Path)
	require.ElementsMatch(t, []string{"limit(5)", "offset(0)"}, req.Query["queries"])
	require.Equal(t, "ann", req.Query.Get("search"))
	require.Nil(t, req.Body)
}

func TestBuildRequestMissingPathParam(t *testing.T) {
	b := Binding{Kind: KindRoute, Method: http.MethodGet, Path: "/v1/teams/{teamId}"}
	_, err := buildRequest(b, map[string]any{})
	require.ErrorContains(t, err, "teamId")
}

func TestBuildRequestRouteBody(t *testing.T) {
	b := Binding{Kind: KindRoute, Method: http.MethodPost, Path: "/v1/teams"}
	req, err := buildRequest(b, map[string]any{"name": "engineering", "roles": []any{"owner"}})
	require.NoError(t, err)
	want := map[string]any{"name": "engineering", "roles": []any{"owner"}}
	if diff := cmp.Diff(want, req.Body); diff != "" {
		t.Fatalf("body mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildRequestDocumentCreate(t *testing.T) {
	b := Binding{Kind: KindDocumentCreate, Method: http.MethodPost, Path: "/v1/databases/db/collections/posts/documents"}
	req, err := buildRequest(b, map[string]any{
		"id":          "doc1",
		"title":       "hello",
		"_custom":     "x",
		"permissions": []any{"read(\"any\")"},
	})
	require.NoError(t, err)
	want := map[string]any{
		"documentId":  "doc1",
		"data":        map[string]any{"title": "hello", "$custom": "x"},
		"permissions": []any{"read(\"any\")"},
	}
	if diff := cmp.Diff(want, req.Body); diff != "" {
		t.Fatalf("body mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildRequestDocumentCreateGeneratesID(t *testing.T) {
	b := Binding{Kind: KindDocumentCreate, Method: http.MethodPost, Path: "/v1/databases/db/collections/posts/documents"}
	req, err := buildRequest(b, map[string]any{"title": "hello"})
	require.NoError(t, err)
	id, _ := req.Body["documentId"].(string)
	require.NotEmpty(t, id)
	require.Equal(t, []any{}, req.Body["permissions"])
}

func TestBuildRequestDocumentUpdate(t *testing.T) {
	b := Binding{Kind: KindDocumentUpdate, Method: http.MethodPatch, Path: "/v1/databases/db/collections/posts/documents/{id}"}
	req, err := buildRequest(b, map[string]any{"id": "doc1", "title": "updated"})
	require.NoError(t, err)
	require.Equal(t, "/v1/databases/db/collections/posts/documents/doc1", req.Path)
	want := map[string]any{
		"data":        map[string]any{"title": "updated"},
		"permissions": []any{},
	}
	if diff := cmp.Diff(want, req.Body); diff != "" {
		t.Fatalf("body mismatch (-want +got):\n%s", diff)
	}
}

func TestResolverSuccessEncodesKeys(t *testing.T) {
	d := &fakeDispatcher{resp: &Response{
		Status:  http.StatusOK,
		Payload: map[string]any{"$id": "doc1", "title": "hello"},
	}}
	b := Binding{Kind: KindDocumentGet, Method: http.MethodGet, Path: "/v1/databases/db/collections/posts/documents/{id}"}
	got, err := resolve(t, b, d, ResolverOptions{}, map[string]any{"id": "doc1"})
	require.NoError(t, err)
	want := map[string]any{"_id": "doc1", "title": "hello"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("payload mismatch (-want +got):\n%s", diff)
	}
}

func TestResolverUnwrap(t *testing.T) {
	d := &fakeDispatcher{resp: &Response{
		Status: http.StatusOK,
		Payload: map[string]any{
			"total":     float64(1),
			"documents": []any{map[string]any{"$id": "doc1"}},
		},
	}}
	b := Binding{Kind: KindDocumentList, Method: http.MethodGet, Path: "/v1/databases/db/collections/posts/documents", Unwrap: "documents"}
	got, err := resolve(t, b, d, ResolverOptions{}, map[string]any{})
	require.NoError(t, err)
	want := []any{map[string]any{"_id": "doc1"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("payload mismatch (-want +got):\n%s", diff)
	}
}

func TestResolverFailureStatus(t *testing.T) {
	d := &fakeDispatcher{resp: &Response{
		Status:  http.StatusNotFound,
		Payload: map[string]any{"message": "Document not found"},
	}}
	b := Binding{Kind: KindDocumentGet, Method: http.MethodGet, Path: "/v1/databases/db/collections/posts/documents/{id}"}
	_, err := resolve(t, b, d, ResolverOptions{}, map[string]any{"id": "missing"})
	var bridgeErr *Error
	require.ErrorAs(t, err, &bridgeErr)
	require.Equal(t, "Document not found", bridgeErr.Message)
	require.Equal(t, http.StatusNotFound, bridgeErr.Status)
	require.Equal(t, map[string]any{"code": http.StatusNotFound}, bridgeErr.Extensions())
}

func TestResolverFailureWithoutMessage(t *testing.T) {
	d := &fakeDispatcher{resp: &Response{Status: http.StatusInternalServerError}}
	b := Binding{Kind: KindRoute, Method: http.MethodGet, Path: "/v1/health"}
	_, err := resolve(t, b, d, ResolverOptions{}, map[string]any{})
	var bridgeErr *Error
	require.ErrorAs(t, err, &bridgeErr)
	require.Equal(t, http.StatusText(http.StatusInternalServerError), bridgeErr.Message)
}

func TestResolverNilPayload(t *testing.T) {
	d := &fakeDispatcher{resp: &Response{Status: http.StatusNoContent}}
	b := Binding{Kind: KindDocumentDelete, Method: http.MethodDelete, Path: "/v1/databases/db/collections/posts/documents/{id}"}
	got, err := resolve(t, b, d, ResolverOptions{}, map[string]any{"id": "doc1"})
	require.NoError(t, err)
	require.Equal(t, map[string]any{}, got)
}

func TestResolverComplexityGuard(t *testing.T) {
	d := &fakeDispatcher{resp: &Response{Status: http.StatusOK}}
	b := Binding{Kind: KindDocumentList, Method: http.MethodGet, Path: "/v1/databases/db/collections/posts/documents"}
	fn := NewResolver(b, d, ResolverOptions{Weight: 2, MaxComplexity: 100})

	_, err := fn(graphql.ResolveParams{
		Context: context.Background(),
		Args:    map[string]any{"queries": []any{"limit(80)"}},
	})
	var bridgeErr *Error
	require.ErrorAs(t, err, &bridgeErr)
	require.Equal(t, http.StatusBadRequest, bridgeErr.Status)
	require.Nil(t, d.last, "guarded query must never dispatch")

	out, err := fn(graphql.ResolveParams{
		Context: context.Background(),
		Args:    map[string]any{"queries": []any{"limit(10)"}},
	})
	require.NoError(t, err)
	require.NotNil(t, out)
}

func TestRequestedLimit(t *testing.T) {
	cases := []struct {
		name string
		args map[string]any
		want int
	}{
		{"no queries", map[string]any{}, DefaultListLimit},
		{"explicit limit", map[string]any{"queries": []any{"limit(50)"}}, 50},
		{"other filters", map[string]any{"queries": []any{"equal(\"a\",\"b\")"}}, DefaultListLimit},
		{"malformed limit", map[string]any{"queries": []any{"limit(x)"}}, DefaultListLimit},
		{"zero limit ignored", map[string]any{"queries": []any{"limit(0)"}}, DefaultListLimit},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := requestedLimit(c.args); got != c.want {
				t.Fatalf("requestedLimit = %d, want %d", got, c.want)
			}
		})
	}
}

func TestResolverContextCancel(t *testing.T) {
	block := make(chan struct{})
	d := dispatcherFunc(func(ctx context.Context, _ *Request) (*Response, error) {
		<-block
		return &Response{Status: http.StatusOK}, nil
	})
	defer close(block)

	ctx, cancel := context.WithCancel(context.Background())
	fn := NewResolver(Binding{Kind: KindRoute, Method: http.MethodGet, Path: "/v1/slow"}, d, ResolverOptions{})
	out, err := fn(graphql.ResolveParams{Context: ctx, Args: map[string]any{}})
	require.NoError(t, err)
	cancel()
	_, err = out.(func() (any, error))()
	require.ErrorIs(t, err, context.Canceled)
}

type dispatcherFunc func(context.Context, *Request) (*Response, error)

func (f dispatcherFunc) Dispatch(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}
