package repository

import (
	"context"
	"fmt"
	"io"
	"strings"

	"partymaker/internal/codec"
	"partymaker/internal/models"
	"partymaker/internal/utils"
)

func (r *Repository) GetUsers(ctx context.Context) map[string]models.User {
	users, err := r.FetchUsers(ctx)
	if err != nil {
		r.log.Error("get users failed", "err", err)
		return map[string]models.User{}
	}
	return users
}

// FetchUsers is GetUsers returning the failure.
func (r *Repository) FetchUsers(ctx context.Context) (map[string]models.User, error) {
	data, _, err := r.get(ctx, PathUsers, r.opts.FetchTimeout)
	if err != nil {
		return nil, err
	}
	return codec.DecodeUsers(data)
}

// GetUser fetches one user by normalized key, falling back to the full
// collection when the direct lookup fails.
func (r *Repository) GetUser(ctx context.Context, key string) (models.User, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return models.User{}, fmt.Errorf("%w: user key is required", ErrBadRequest)
	}

	data, _, err := r.get(ctx, userPath(key), 0)
	if err == nil {
		u, derr := codec.DecodeUser(data, key)
		if derr == nil {
			return u, nil
		}
		err = derr
	}
	if !worthScanning(ctx, err) {
		return models.User{}, err
	}

	users, ferr := r.FetchUsers(ctx)
	if ferr != nil {
		return models.User{}, ferr
	}
	u, ok := users[key]
	if !ok {
		return models.User{}, fmt.Errorf("%w: user %s", ErrNotFound, key)
	}
	return u, nil
}

// SaveUser writes the user under its normalized email.
func (r *Repository) SaveUser(ctx context.Context, u models.User) error {
	if u.Key == "" {
		u.Key = utils.NormalizeUserKey(u.Email)
	}
	if u.Key == "" {
		return fmt.Errorf("%w: user email is required", ErrBadRequest)
	}
	body, err := codec.EncodeUser(u)
	if err != nil {
		return fmt.Errorf("%w: encode user: %w", ErrSaveFailed, err)
	}
	if err := r.post(ctx, userPath(u.Key), body); err != nil {
		return fmt.Errorf("%w: user %s: %w", ErrSaveFailed, u.Key, err)
	}
	return nil
}

func (r *Repository) UpdateUser(ctx context.Context, key string, fields map[string]any) error {
	if strings.TrimSpace(key) == "" || len(fields) == 0 {
		return fmt.Errorf("%w: user key and fields are required", ErrBadRequest)
	}
	body, err := codec.EncodeFields(fields)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBadRequest, err)
	}
	if err := r.put(ctx, userPath(key), body); err != nil {
		return fmt.Errorf("%w: user %s: %w", ErrSaveFailed, key, err)
	}
	return nil
}

// UploadGroupImage stores the picture and returns its download URL.
func (r *Repository) UploadGroupImage(ctx context.Context, groupKey string, img io.Reader, contentType string) (string, error) {
	if r.opts.Blobs == nil {
		return "", fmt.Errorf("%w: no blob store configured", ErrBadRequest)
	}
	if strings.TrimSpace(groupKey) == "" {
		return "", fmt.Errorf("%w: group id is required", ErrBadRequest)
	}
	path := models.GroupImagePath(groupKey)
	if err := r.opts.Blobs.Put(ctx, path, img, contentType); err != nil {
		return "", fmt.Errorf("%w: group image: %w", ErrSaveFailed, err)
	}
	return r.opts.Blobs.DownloadURL(ctx, path)
}
