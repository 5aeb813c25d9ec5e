package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"partymaker/internal/store"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newProxy(t *testing.T) (*httptest.Server, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	r := chi.NewRouter()
	r.Route("/api/firebase", NewFirebaseProxy(mem).Routes)
	uploads := NewUploads(fakeSigner{})
	r.Post("/api/uploads/group-image", uploads.CreateGroupImageURL)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, mem
}

func do(t *testing.T, method, url, body string, hdr map[string]string) (*http.Response, string) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, rd)
	require.NoError(t, err)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp, string(b)
}

func TestGroupsCRUD(t *testing.T) {
	srv, _ := newProxy(t)
	base := srv.URL + "/api/firebase"

	resp, body := do(t, http.MethodGet, base+"/Groups", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{}`, body)

	resp, _ = do(t, http.MethodGet, base+"/Groups/g1", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = do(t, http.MethodPost, base+"/Groups/g1", `{"groupName":"Party","FriendKeys":{"a":true}}`, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = do(t, http.MethodPut, base+"/Groups/g1", `{}`, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = do(t, http.MethodPut, base+"/Groups/g1", `{"FriendKeys":{"a":true,"b":true}}`, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = do(t, http.MethodGet, base+"/Groups/g1", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("ETag"))
	assert.JSONEq(t, `{"groupName":"Party","FriendKeys":{"a":true,"b":true}}`, body)

	resp, _ = do(t, http.MethodDelete, base+"/Groups/g1", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = do(t, http.MethodGet, base+"/Groups/g1", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestConditionalUpdate(t *testing.T) {
	srv, _ := newProxy(t)
	base := srv.URL + "/api/firebase/Groups/g1"

	do(t, http.MethodPost, base, `{"groupName":"Party"}`, nil)
	resp, _ := do(t, http.MethodGet, base, "", nil)
	etag := resp.Header.Get("ETag")

	resp, _ = do(t, http.MethodPut, base, `{"groupName":"Renamed"}`, map[string]string{"If-Match": etag})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := do(t, http.MethodPut, base, `{"groupName":"Stale"}`, map[string]string{"If-Match": etag})
	assert.Equal(t, http.StatusPreconditionFailed, resp.StatusCode)

	var errBody map[string]any
	require.NoError(t, json.Unmarshal([]byte(body), &errBody))
	assert.Equal(t, true, errBody["error"])
	assert.NotEmpty(t, errBody["message"])
	assert.NotNil(t, errBody["timestamp"])

	_, body = do(t, http.MethodGet, base, "", nil)
	assert.JSONEq(t, `{"groupName":"Renamed"}`, body)
}

func TestMessagesAndUserKeys(t *testing.T) {
	srv, _ := newProxy(t)
	base := srv.URL + "/api/firebase"

	resp, _ := do(t, http.MethodPost, base+"/GroupsMessages/m1", `{"messageText":"hi","groupId":"g1"}`, nil)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	do(t, http.MethodPost, base+"/GroupsMessages/m2", `{"messageText":"yo","groupId":"g2"}`, nil)

	_, body := do(t, http.MethodGet, base+"/GroupsMessages?groupId=g1", "", nil)
	assert.JSONEq(t, `{"m1":{"messageText":"hi","groupId":"g1"}}`, body)

	resp, _ = do(t, http.MethodPost, base+"/Users/bob@x%20com", `{"email":"bob@x.com","username":"Bob"}`, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	_, body = do(t, http.MethodGet, base+"/Users", "", nil)
	assert.JSONEq(t, `{"bob@x com":{"email":"bob@x.com","username":"Bob"}}`, body)

	resp, _ = do(t, http.MethodGet, base+"/Users/bob@x.com", "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	_, body = do(t, http.MethodGet, base+"/UserGroups/bob@x%20com", "", nil)
	assert.JSONEq(t, `{}`, body)

	_, body = do(t, http.MethodGet, base+"/list/GroupsMessages", "", nil)
	assert.JSONEq(t, `[{"messageText":"hi","groupId":"g1"},{"messageText":"yo","groupId":"g2"}]`, body)
}

func TestGroupImageURL(t *testing.T) {
	srv, _ := newProxy(t)

	resp, body := do(t, http.MethodPost, srv.URL+"/api/uploads/group-image", `{"groupKey":"g1","contentType":"image/jpeg"}`, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"url":"https://signed/UsersImageProfile/Groups/g1","method":"PUT","objectPath":"UsersImageProfile/Groups/g1","expiresAt":0}`, body)

	resp, _ = do(t, http.MethodPost, srv.URL+"/api/uploads/group-image", `{"groupKey":"../etc"}`, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMergeChildren(t *testing.T) {
	cur := map[string]any{"a": 1, "nested": map[string]any{"x": 1, "y": 2}}
	got, err := mergeChildren(cur, map[string]any{"nested/x": nil, "b": 2})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": 1, "b": 2, "nested": map[string]any{"y": 2}}, got)
	assert.Equal(t, map[string]any{"x": 1, "y": 2}, cur["nested"])
}

type fakeSigner struct{}

func (fakeSigner) SignedURL(_ context.Context, _, path, _ string, _ time.Duration) (string, time.Time, error) {
	return "https://signed/" + path, time.Unix(0, 0), nil
}
