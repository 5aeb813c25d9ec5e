package handlers

import (
	"net/http"

	"partymaker/internal/authctx"
	"partymaker/internal/httpjson"
)

type meResp struct {
	UID     string         `json:"uid"`
	UserKey string         `json:"userKey"`
	Claims  map[string]any `json:"claims,omitempty"`
	// User is the caller's Users/{userKey} node, null when not registered yet.
	User any `json:"user"`
}

// Me describes the verified caller. Only meaningful behind WithAuth.
func (h *FirebaseProxy) Me(w http.ResponseWriter, r *http.Request) {
	caller, ok := authctx.From(r.Context())
	if !ok {
		httpjson.Error(w, http.StatusUnauthorized, "not signed in")
		return
	}
	resp := meResp{UID: caller.UID, Claims: caller.Claims}

	key := caller.UserKey
	if key == "" {
		// tokens without an email cannot map to a Users node
		httpjson.Write(w, http.StatusOK, resp)
		return
	}
	resp.UserKey = key
	v, err := h.tree.Get(r.Context(), "Users/"+key)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	resp.User = v
	httpjson.Write(w, http.StatusOK, resp)
}
