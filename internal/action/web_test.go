package action

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func webRegistry() *FuncRegistry {
	r := NewFuncRegistry()
	RegisterWeb(r)
	return r
}

func invoke(t *testing.T, r Registry, module, function string, named map[string]any) (any, error) {
	t.Helper()
	inv, err := r.Resolve(context.Background(), Ref{Module: module, Function: function})
	require.NoError(t, err)
	return inv.Invoke(context.Background(), Call{Shape: ShapeNamed, Named: named})
}

func TestHTTPGet(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "secret", r.Header.Get("X-Token"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id": 7, "tags": ["a", "b"]}`))
	}))
	defer server.Close()

	out, err := invoke(t, webRegistry(), "http", "get", map[string]any{
		"url":     server.URL,
		"headers": `{"X-Token": "secret"}`,
	})
	require.NoError(t, err)

	resp := out.(map[string]any)
	assert.Equal(t, http.StatusOK, resp["status_code"])
	body := resp["body"].(map[string]any)
	assert.Equal(t, float64(7), body["id"])
	assert.Equal(t, []any{"a", "b"}, body["tags"])
}

func TestHTTPPost(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		_, _ = io.WriteString(w, "got "+payload["name"].(string))
	}))
	defer server.Close()

	out, err := invoke(t, webRegistry(), "http", "post", map[string]any{
		"url":  server.URL,
		"body": map[string]any{"name": "bob"},
	})
	require.NoError(t, err)
	assert.Equal(t, "got bob", out.(map[string]any)["body"])
}

func TestHTTPRequest_Status(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	}))
	defer server.Close()

	r := webRegistry()

	out, err := invoke(t, r, "http", "request", map[string]any{"url": server.URL, "method": "delete"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, out.(map[string]any)["status_code"])

	_, err = invoke(t, r, "http", "request", map[string]any{"url": server.URL, "fail_on_status": true})
	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusNotFound, httpErr.StatusCode)

	_, err = invoke(t, r, "http", "request", map[string]any{"url": ""})
	assert.Error(t, err)
}

func TestSleep(t *testing.T) {
	r := webRegistry()

	out, err := invoke(t, r, "time", "sleep", map[string]any{"milliseconds": 5})
	require.NoError(t, err)
	assert.Equal(t, int64(5), out)

	_, err = invoke(t, r, "time", "sleep", map[string]any{})
	assert.Error(t, err)

	inv, err := r.Resolve(context.Background(), Ref{Module: "time", Function: "sleep"})
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = inv.Invoke(ctx, Call{Shape: ShapeNamed, Named: map[string]any{"seconds": 5}})
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}
