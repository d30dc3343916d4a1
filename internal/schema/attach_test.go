package schema

import (
	"context"
	"net/http"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/graphql-go/graphql"
	"github.com/stretchr/testify/require"

	"github.com/graphbridge/graphbridge/internal/bridge"
	"github.com/graphbridge/graphbridge/internal/model"
	"github.com/graphbridge/graphbridge/internal/registry"
)

type routeDispatcher map[string]*bridge.Response

func (d routeDispatcher) Dispatch(_ context.Context, req *bridge.Request) (*bridge.Response, error) {
	if resp, ok := d[req.Method+" "+req.Path]; ok {
		return resp, nil
	}
	return &bridge.Response{
		Status:  http.StatusNotFound,
		Payload: map[string]any{"message": "Route not found"},
	}, nil
}

func pingFragment(t *testing.T, reg *registry.Registry) *Fragment {
	t.Helper()
	routes := []model.Route{
		{Method: http.MethodGet, Path: "/v1/ping", MethodName: "ping", ResponseModels: []string{"pong"}},
	}
	frag, err := BuildAPI(routes, "1.0", reg, nil)
	require.NoError(t, err)
	return frag
}

func TestAttachAndExecute(t *testing.T) {
	models := []model.Model{
		{Name: "pong", Rules: []model.Rule{{Name: "result", Types: []string{"string"}}}},
	}
	reg := registry.New(models, nil)
	d := routeDispatcher{
		"GET /v1/ping": {Status: http.StatusOK, Payload: map[string]any{"result": "pong"}},
	}
	sch, err := Attach(pingFragment(t, reg), reg, d, AttachOptions{}, nil)
	require.NoError(t, err)

	result := graphql.Do(graphql.Params{
		Schema:        sch,
		RequestString: `{ Ping { result } }`,
		Context:       context.Background(),
	})
	require.Empty(t, result.Errors)
	want := map[string]any{"Ping": map[string]any{"result": "pong"}}
	if diff := cmp.Diff(want, result.Data); diff != "" {
		t.Fatalf("data mismatch (-want +got):\n%s", diff)
	}
}

func TestAttachErrorExtensions(t *testing.T) {
	models := []model.Model{
		{Name: "pong", Rules: []model.Rule{{Name: "result", Types: []string{"string"}}}},
	}
	reg := registry.New(models, nil)
	d := routeDispatcher{} // every dispatch misses
	sch, err := Attach(pingFragment(t, reg), reg, d, AttachOptions{}, nil)
	require.NoError(t, err)

	result := graphql.Do(graphql.Params{
		Schema:        sch,
		RequestString: `{ Ping { result } }`,
		Context:       context.Background(),
	})
	require.Len(t, result.Errors, 1)
	require.Equal(t, "Route not found", result.Errors[0].Message)
	require.Equal(t, map[string]any{"code": http.StatusNotFound}, result.Errors[0].Extensions)
}

func TestAttachSkipsUnknownModelFields(t *testing.T) {
	routes := []model.Route{
		{Method: http.MethodGet, Path: "/v1/ping", MethodName: "ping", ResponseModels: []string{"pong"}},
		{Method: http.MethodGet, Path: "/v1/ghost", MethodName: "ghost", ResponseModels: []string{"missing"}},
	}
	models := []model.Model{
		{Name: "pong", Rules: []model.Rule{{Name: "result", Types: []string{"string"}}}},
	}
	reg := registry.New(models, nil)
	frag, err := BuildAPI(routes, "1.0", reg, nil)
	require.NoError(t, err)

	sch, err := Attach(frag, reg, routeDispatcher{}, AttachOptions{}, nil)
	require.NoError(t, err)
	fields := sch.QueryType().Fields()
	require.Contains(t, fields, "Ping")
	require.NotContains(t, fields, "Ghost")
}

func TestAttachNoQueryFields(t *testing.T) {
	frag := NewFragment()
	_, err := Attach(frag, registry.New(nil, nil), routeDispatcher{}, AttachOptions{}, nil)
	require.ErrorContains(t, err, "no query fields")
}

func TestAttachCollectionRoundTrip(t *testing.T) {
	src := &pagedSource{pages: map[int][]model.Attribute{
		0: {attr("main", "posts", "title", model.AttributeTypeString)},
	}}
	models := []model.Model{
		{Name: "pong", Rules: []model.Rule{{Name: "result", Types: []string{"string"}}}},
	}
	reg := registry.New(models, nil)
	apiFrag := pingFragment(t, reg)
	tenFrag, err := BuildTenant(context.Background(), src, reg, nil)
	require.NoError(t, err)
	merged, err := Merge(apiFrag, tenFrag)
	require.NoError(t, err)

	d := routeDispatcher{
		"GET /v1/databases/main/collections/posts/documents/doc1": {
			Status: http.StatusOK,
			Payload: map[string]any{
				"$id": "doc1", "$collectionId": "posts", "$databaseId": "main",
				"$createdAt": "2026-01-01T00:00:00Z", "$updatedAt": "2026-01-01T00:00:00Z",
				"$permissions": []any{}, "title": "hello",
			},
		},
	}
	sch, err := Attach(merged, reg, d, AttachOptions{}, nil)
	require.NoError(t, err)

	result := graphql.Do(graphql.Params{
		Schema:        sch,
		RequestString: `{ postsGet(id: "doc1") { _id title } }`,
		Context:       context.Background(),
	})
	require.Empty(t, result.Errors)
	want := map[string]any{"postsGet": map[string]any{"_id": "doc1", "title": "hello"}}
	if diff := cmp.Diff(want, result.Data); diff != "" {
		t.Fatalf("data mismatch (-want +got):\n%s", diff)
	}
}
