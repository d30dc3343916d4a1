package pipeline

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/graphbridge/graphbridge/internal/bridge"
)

func fixtureRouter() chi.Router {
	r := chi.NewRouter()
	r.Get("/v1/ping", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"result":"pong"}`))
	})
	r.Get("/v1/teams/{teamId}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"$id":    chi.URLParam(r, "teamId"),
			"search": r.URL.Query().Get("search"),
		})
	})
	r.Post("/v1/echo", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write(body)
	})
	r.Get("/v1/boom", func(http.ResponseWriter, *http.Request) {
		panic("route exploded")
	})
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"Not found"}`))
	})
	return r
}

func TestHandlerDispatchGet(t *testing.T) {
	h := NewHandler(fixtureRouter())
	resp, err := h.Dispatch(context.Background(), &bridge.Request{
		Method: http.MethodGet,
		Path:   "/v1/teams/t1",
		Query:  url.Values{"search": []string{"ann"}},
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.Status)
	want := map[string]any{"$id": "t1", "search": "ann"}
	if diff := cmp.Diff(any(want), resp.Payload); diff != "" {
		t.Fatalf("payload mismatch (-want +got):\n%s", diff)
	}
}

func TestHandlerDispatchBody(t *testing.T) {
	h := NewHandler(fixtureRouter())
	resp, err := h.Dispatch(context.Background(), &bridge.Request{
		Method: http.MethodPost,
		Path:   "/v1/echo",
		Body:   map[string]any{"name": "engineering"},
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.Status)
	want := map[string]any{"name": "engineering"}
	if diff := cmp.Diff(any(want), resp.Payload); diff != "" {
		t.Fatalf("payload mismatch (-want +got):\n%s", diff)
	}
}

func TestHandlerDispatchNotFoundStatus(t *testing.T) {
	h := NewHandler(fixtureRouter())
	resp, err := h.Dispatch(context.Background(), &bridge.Request{
		Method: http.MethodGet,
		Path:   "/v1/unknown",
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, resp.Status)
}

func TestHandlerDispatchPanic(t *testing.T) {
	h := NewHandler(fixtureRouter())
	_, err := h.Dispatch(context.Background(), &bridge.Request{
		Method: http.MethodGet,
		Path:   "/v1/boom",
	})
	require.ErrorContains(t, err, "pipeline panic")
}

func TestHandlerBaseHeaders(t *testing.T) {
	var seen http.Header
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Clone()
		w.WriteHeader(http.StatusOK)
	})
	h := NewHandler(next, WithHeader("X-Internal-Mode", "admin"))
	_, err := h.Dispatch(context.Background(), &bridge.Request{
		Method:  http.MethodGet,
		Path:    "/v1/ping",
		Headers: http.Header{"X-Request-Id": []string{"r1"}},
	})
	require.NoError(t, err)
	require.Equal(t, "admin", seen.Get("X-Internal-Mode"))
	require.Equal(t, "r1", seen.Get("X-Request-Id"))
}

func TestHandlerNonJSONPayload(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream unavailable"))
	})
	h := NewHandler(next)
	resp, err := h.Dispatch(context.Background(), &bridge.Request{Method: http.MethodGet, Path: "/v1/x"})
	require.NoError(t, err)
	require.Equal(t, http.StatusBadGateway, resp.Status)
	require.Equal(t, "upstream unavailable", resp.Payload)
}

func TestUpstreamDispatch(t *testing.T) {
	var gotPath, gotQuery, gotAuth string
	var gotBody map[string]any
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.Query().Get("search")
		gotAuth = r.Header.Get("X-API-Key")
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&gotBody)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"result":"ok"}`))
	}))
	defer ts.Close()

	u, err := NewUpstream(ts.URL, WithUpstreamHeader("X-API-Key", "secret"))
	require.NoError(t, err)
	resp, err := u.Dispatch(context.Background(), &bridge.Request{
		Method: http.MethodPost,
		Path:   "/v1/teams",
		Query:  url.Values{"search": []string{"ann"}},
		Body:   map[string]any{"name": "engineering"},
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.Status)
	require.Equal(t, "/v1/teams", gotPath)
	require.Equal(t, "ann", gotQuery)
	require.Equal(t, "secret", gotAuth)
	require.Equal(t, map[string]any{"name": "engineering"}, gotBody)
	require.Equal(t, map[string]any{"result": "ok"}, resp.Payload)
}

func TestUpstreamConnectionError(t *testing.T) {
	u, err := NewUpstream("http://127.0.0.1:1")
	require.NoError(t, err)
	_, err = u.Dispatch(context.Background(), &bridge.Request{Method: http.MethodGet, Path: "/v1/ping"})
	require.Error(t, err)
}
