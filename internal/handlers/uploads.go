package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"partymaker/internal/httpjson"
	"partymaker/internal/models"
)

// URLSigner issues signed object URLs; *firebase.BlobStore implements it.
type URLSigner interface {
	SignedURL(ctx context.Context, method, path, contentType string, ttl time.Duration) (string, time.Time, error)
}

type Uploads struct {
	signer URLSigner
}

func NewUploads(signer URLSigner) *Uploads {
	return &Uploads{signer: signer}
}

type groupImageReq struct {
	GroupKey       string `json:"groupKey"`
	ContentType    string `json:"contentType,omitempty"`
	ExpiresSeconds int64  `json:"expiresSeconds,omitempty"` // default 900
}

type signedURLResp struct {
	URL        string `json:"url"`
	Method     string `json:"method"`
	ObjectPath string `json:"objectPath"`
	ExpiresAt  int64  `json:"expiresAt"`
}

// CreateGroupImageURL returns a signed PUT URL for the group's picture.
func (h *Uploads) CreateGroupImageURL(w http.ResponseWriter, r *http.Request) {
	var req groupImageReq
	if err := httpjson.Read(r, &req); err != nil || strings.TrimSpace(req.GroupKey) == "" {
		httpjson.Error(w, http.StatusBadRequest, "groupKey is required")
		return
	}
	if strings.ContainsAny(req.GroupKey, "/.#$[]") {
		httpjson.Error(w, http.StatusBadRequest, "invalid groupKey")
		return
	}
	if h.signer == nil {
		httpjson.Error(w, http.StatusServiceUnavailable, "uploads are not configured")
		return
	}

	path := models.GroupImagePath(req.GroupKey)
	ttl := time.Duration(req.ExpiresSeconds) * time.Second
	url, exp, err := h.signer.SignedURL(r.Context(), http.MethodPut, path, req.ContentType, ttl)
	if err != nil {
		httpjson.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	httpjson.Write(w, http.StatusOK, signedURLResp{URL: url, Method: http.MethodPut, ObjectPath: path, ExpiresAt: exp.Unix()})
}
