// Package store holds the proxy's backing JSON tree. Paths are
// slash-separated ("Groups/g1/FriendKeys").
package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrBadPath     = errors.New("invalid path")
	ErrUnsupported = errors.New("operation not supported at this path")
)

// Tree is a schema-less JSON tree in the shape of the Firebase Realtime
// Database. Absent nodes read as nil.
type Tree interface {
	Get(ctx context.Context, path string) (any, error)
	// GetWithETag also returns an opaque version tag for the node.
	GetWithETag(ctx context.Context, path string) (any, string, error)
	// Set replaces the node.
	Set(ctx context.Context, path string, v any) error
	// Update replaces the named children; a nil value deletes the child.
	Update(ctx context.Context, path string, fields map[string]any) error
	// SetIfUnchanged replaces the node only when its ETag still matches.
	SetIfUnchanged(ctx context.Context, path, etag string, v any) (bool, error)
	Delete(ctx context.Context, path string) error
}

// Split validates and splits a path into segments.
func Split(path string) ([]string, error) {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil, fmt.Errorf("%w: empty", ErrBadPath)
	}
	segs := strings.Split(path, "/")
	for _, s := range segs {
		if s == "" || strings.ContainsAny(s, ".#$[]") {
			return nil, fmt.Errorf("%w: %q", ErrBadPath, path)
		}
	}
	return segs, nil
}

// ContentETag derives a strong ETag from a node's canonical JSON.
func ContentETag(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		b = []byte("null")
	}
	sum := sha256.Sum256(b)
	return `"` + hex.EncodeToString(sum[:16]) + `"`
}

// normalize deep-copies v into plain JSON types.
func normalize(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}
