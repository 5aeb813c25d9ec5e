package store

import (
	"context"
	"fmt"
	"strings"

	"firebase.google.com/go/v4/db"
)

// Realtime is a Tree backed by the Firebase Realtime Database.
type Realtime struct {
	db *db.Client
}

func NewRealtime(client *db.Client) *Realtime {
	return &Realtime{db: client}
}

func (r *Realtime) ref(path string) (*db.Ref, error) {
	segs, err := Split(path)
	if err != nil {
		return nil, err
	}
	return r.db.NewRef(strings.Join(segs, "/")), nil
}

func (r *Realtime) Get(ctx context.Context, path string) (any, error) {
	ref, err := r.ref(path)
	if err != nil {
		return nil, err
	}
	var v any
	if err := ref.Get(ctx, &v); err != nil {
		return nil, fmt.Errorf("rtdb get %s: %w", path, err)
	}
	return v, nil
}

func (r *Realtime) GetWithETag(ctx context.Context, path string) (any, string, error) {
	ref, err := r.ref(path)
	if err != nil {
		return nil, "", err
	}
	var v any
	etag, err := ref.GetWithETag(ctx, &v)
	if err != nil {
		return nil, "", fmt.Errorf("rtdb get %s: %w", path, err)
	}
	return v, quote(etag), nil
}

func (r *Realtime) Set(ctx context.Context, path string, v any) error {
	ref, err := r.ref(path)
	if err != nil {
		return err
	}
	if err := ref.Set(ctx, v); err != nil {
		return fmt.Errorf("rtdb set %s: %w", path, err)
	}
	return nil
}

func (r *Realtime) Update(ctx context.Context, path string, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	ref, err := r.ref(path)
	if err != nil {
		return err
	}
	if err := ref.Update(ctx, fields); err != nil {
		return fmt.Errorf("rtdb update %s: %w", path, err)
	}
	return nil
}

func (r *Realtime) SetIfUnchanged(ctx context.Context, path, etag string, v any) (bool, error) {
	ref, err := r.ref(path)
	if err != nil {
		return false, err
	}
	ok, err := ref.SetIfUnchanged(ctx, unquote(etag), v)
	if err != nil {
		return false, fmt.Errorf("rtdb conditional set %s: %w", path, err)
	}
	return ok, nil
}

func (r *Realtime) Delete(ctx context.Context, path string) error {
	ref, err := r.ref(path)
	if err != nil {
		return err
	}
	if err := ref.Delete(ctx); err != nil {
		return fmt.Errorf("rtdb delete %s: %w", path, err)
	}
	return nil
}

// The database hands out bare tags; HTTP wants them quoted.
func quote(etag string) string {
	if strings.HasPrefix(etag, `"`) {
		return etag
	}
	return `"` + etag + `"`
}

func unquote(etag string) string {
	return strings.Trim(etag, `"`)
}
