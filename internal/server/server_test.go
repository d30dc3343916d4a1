package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/graphbridge/graphbridge/internal/cache"
	"github.com/graphbridge/graphbridge/internal/model"
	"github.com/graphbridge/graphbridge/internal/pipeline"
)

// platformFixture is a miniature REST surface for the gateway to bridge.
func platformFixture() http.Handler {
	r := chi.NewRouter()
	r.Get("/v1/ping", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"result":"pong"}`))
	})
	r.Get("/v1/users/{userId}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if chi.URLParam(r, "userId") != "u1" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"message":"User not found"}`))
			return
		}
		_, _ = w.Write([]byte(`{"$id":"u1","name":"Ann"}`))
	})
	return r
}

func newTestHandler(t *testing.T, opts ...Option) *Handler {
	t.Helper()
	coord := cache.New(cache.Config{
		Store:      cache.NewMemory(),
		Dispatcher: pipeline.NewHandler(platformFixture()),
		Routes: []model.Route{
			{Method: http.MethodGet, Path: "/v1/ping", MethodName: "ping", ResponseModels: []string{"pong"}},
			{Method: http.MethodGet, Path: "/v1/users/{userId}", Namespace: "users", MethodName: "get",
				Params:         []model.Param{{Name: "userId", Validator: "uid", Required: true}},
				ResponseModels: []string{"user"}},
		},
		Models: []model.Model{
			{Name: "pong", Rules: []model.Rule{{Name: "result", Types: []string{"string"}}}},
			{Name: "user", Rules: []model.Rule{
				{Name: "$id", Types: []string{"string"}},
				{Name: "name", Types: []string{"string"}},
			}},
		},
		Version: "1.0",
	})
	return New(coord, nil, opts...)
}

func post(t *testing.T, h http.Handler, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/graphql", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestServePing(t *testing.T) {
	h := newTestHandler(t)
	w := post(t, h, `{"query":"{ Ping { result } }"}`, nil)
	require.Equal(t, http.StatusOK, w.Code)

	got := decode(t, w)
	want := map[string]any{"data": map[string]any{"Ping": map[string]any{"result": "pong"}}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("response mismatch (-want +got):\n%s", diff)
	}
}

func TestServeSiblingPartialFailure(t *testing.T) {
	h := newTestHandler(t)
	w := post(t, h, `{"query":"{ Ping { result } usersGet(userId: \"missing\") { name } }"}`, nil)
	require.Equal(t, http.StatusOK, w.Code)

	got := decode(t, w)
	data := got["data"].(map[string]any)
	require.Equal(t, map[string]any{"result": "pong"}, data["Ping"], "healthy sibling must still resolve")
	require.Nil(t, data["usersGet"])

	errs := got["errors"].([]any)
	require.Len(t, errs, 1)
	first := errs[0].(map[string]any)
	require.Equal(t, "User not found", first["message"])
	ext := first["extensions"].(map[string]any)
	require.EqualValues(t, http.StatusNotFound, ext["code"])
}

func TestServeVariables(t *testing.T) {
	h := newTestHandler(t)
	w := post(t, h, `{"query":"query Get($id: String!) { usersGet(userId: $id) { _id name } }","variables":{"id":"u1"}}`, nil)
	require.Equal(t, http.StatusOK, w.Code)
	got := decode(t, w)
	want := map[string]any{"data": map[string]any{"usersGet": map[string]any{"_id": "u1", "name": "Ann"}}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("response mismatch (-want +got):\n%s", diff)
	}
}

func TestServeBatch(t *testing.T) {
	h := newTestHandler(t)
	w := post(t, h, `[{"query":"{ Ping { result } }"},{"query":"{ Ping { result } }"}]`, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var out []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	require.Len(t, out, 2)
	for _, item := range out {
		require.Equal(t, map[string]any{"Ping": map[string]any{"result": "pong"}}, item["data"])
	}
}

func TestServeGetQuery(t *testing.T) {
	h := newTestHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/graphql?query="+
		strings.ReplaceAll("{ Ping { result } }", " ", "%20"), nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	got := decode(t, w)
	require.Contains(t, got, "data")
}

func TestServeParseErrors(t *testing.T) {
	h := newTestHandler(t)

	w := post(t, h, `{not json`, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = post(t, h, `{}`, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = post(t, h, `[]`, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestServeMethodNotAllowed(t *testing.T) {
	h := newTestHandler(t)
	req := httptest.NewRequest(http.MethodPut, "/graphql", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestServeBodyTooLarge(t *testing.T) {
	h := newTestHandler(t, WithMaxBodyBytes(64))
	big := `{"query":"{ Ping { result } }","variables":{"pad":"` + strings.Repeat("x", 256) + `"}}`
	w := post(t, h, big, nil)
	require.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestServeCORS(t *testing.T) {
	h := newTestHandler(t, WithCORS("https://app.example.com"))

	req := httptest.NewRequest(http.MethodOptions, "/graphql", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Headers", "content-type")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, http.StatusNoContent, w.Code)
	require.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))
	require.Equal(t, "content-type", w.Header().Get("Access-Control-Allow-Headers"))

	req = httptest.NewRequest(http.MethodOptions, "/graphql", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestServeUnsupportedContentType(t *testing.T) {
	h := newTestHandler(t)
	req := httptest.NewRequest(http.MethodPost, "/graphql", bytes.NewBufferString("query=x"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, http.StatusBadRequest, w.Code)
}
