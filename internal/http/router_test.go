package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"partymaker/internal/config"
	"partymaker/internal/store"

	"firebase.google.com/go/v4/auth"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeVerifier map[string]*auth.Token

func (f fakeVerifier) VerifyIDToken(_ context.Context, tok string) (*auth.Token, error) {
	if t, ok := f[tok]; ok {
		return t, nil
	}
	return nil, errors.New("bad token")
}

func get(t *testing.T, h http.Handler, path, bearer string) (int, string) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	b, _ := io.ReadAll(rec.Body)
	return rec.Code, string(b)
}

func TestHealthAndMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	h := NewRouter(RouterDeps{Cfg: config.Config{}, Tree: store.NewMemory(), Registry: reg})

	code, body := get(t, h, "/healthz", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `"ok":true`)

	code, _ = get(t, h, "/api/firebase/Groups", "")
	assert.Equal(t, http.StatusOK, code)

	code, body = get(t, h, "/metrics", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "partymaker_proxy_requests_total")

	code, body = get(t, h, "/nope", "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Contains(t, body, `"error":true`)
}

func TestRequireAuth(t *testing.T) {
	mem := store.NewMemory()
	require.NoError(t, mem.Seed("Users/bob@x com", map[string]any{"username": "Bob"}))
	v := fakeVerifier{"good": {UID: "u1", Claims: map[string]any{"email": "bob@x.com"}}}
	h := NewRouter(RouterDeps{Cfg: config.Config{RequireAuth: true}, Tree: mem, Verifier: v})

	code, _ := get(t, h, "/api/firebase/Groups", "")
	assert.Equal(t, http.StatusUnauthorized, code)
	code, _ = get(t, h, "/api/firebase/Groups", "bad")
	assert.Equal(t, http.StatusUnauthorized, code)
	code, _ = get(t, h, "/api/firebase/Groups", "good")
	assert.Equal(t, http.StatusOK, code)

	code, body := get(t, h, "/api/me", "good")
	require.Equal(t, http.StatusOK, code)
	assert.True(t, strings.Contains(body, `"userKey":"bob@x com"`), body)
	assert.Contains(t, body, `"username":"Bob"`)

	code, _ = get(t, h, "/healthz", "")
	assert.Equal(t, http.StatusOK, code)
}

func TestMeWithoutAuth(t *testing.T) {
	h := NewRouter(RouterDeps{Cfg: config.Config{}, Tree: store.NewMemory()})
	code, _ := get(t, h, "/api/me", "")
	assert.Equal(t, http.StatusUnauthorized, code)
}
