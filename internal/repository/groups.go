package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"partymaker/internal/codec"
	"partymaker/internal/models"
	"partymaker/internal/neterr"
	"partymaker/internal/utils"

	"golang.org/x/sync/errgroup"
)

// GetGroups returns every group keyed by id. Failures are logged and
// yield an empty map.
func (r *Repository) GetGroups(ctx context.Context) map[string]models.Group {
	groups, err := r.FetchGroups(ctx)
	if err != nil {
		r.log.Error("get groups failed", "err", err)
		return map[string]models.Group{}
	}
	return groups
}

// FetchGroups is GetGroups without the fallback, for callers that keep
// their own copy.
func (r *Repository) FetchGroups(ctx context.Context) (map[string]models.Group, error) {
	data, _, err := r.get(ctx, PathGroups, r.opts.FetchTimeout)
	if err != nil {
		return nil, err
	}
	return codec.DecodeGroups(data)
}

// GetGroup fetches one group. When the direct lookup fails or answers an
// empty body the full collection is searched before giving up.
func (r *Repository) GetGroup(ctx context.Context, id string) (models.Group, error) {
	g, _, err := r.fetchGroup(ctx, id)
	return g, err
}

func (r *Repository) fetchGroup(ctx context.Context, id string) (models.Group, string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return models.Group{}, "", fmt.Errorf("%w: group id is required", ErrBadRequest)
	}

	data, meta, err := r.get(ctx, groupPath(id), r.opts.FetchTimeout)
	if err == nil {
		g, derr := codec.DecodeGroup(data, id)
		if derr == nil {
			g.EnsureSets()
			return g, meta.ETag, nil
		}
		err = derr
	}
	if !worthScanning(ctx, err) {
		return models.Group{}, "", err
	}

	r.log.Debug("group lookup failed, scanning collection", "group", id, "err", err)
	groups, ferr := r.FetchGroups(ctx)
	if ferr != nil {
		return models.Group{}, "", ferr
	}
	g, ok := groups[id]
	if !ok {
		return models.Group{}, "", fmt.Errorf("%w: group %s", ErrNotFound, id)
	}
	g.EnsureSets()
	return g, "", nil
}

// SaveGroup writes the whole group under id.
func (r *Repository) SaveGroup(ctx context.Context, id string, g models.Group) error {
	id = strings.TrimSpace(id)
	if id == "" {
		id = g.Key
	}
	if id == "" {
		return fmt.Errorf("%w: group id is required", ErrBadRequest)
	}
	g.Key = id
	g.EnsureSets()

	body, err := codec.EncodeGroup(g)
	if err != nil {
		return fmt.Errorf("%w: encode group %s: %w", ErrSaveFailed, id, err)
	}
	if err := r.post(ctx, groupPath(id), body); err != nil {
		return fmt.Errorf("%w: group %s: %w", ErrSaveFailed, id, err)
	}
	return nil
}

// UpdateGroup writes only the given fields. KeySet values replace the
// whole membership map.
func (r *Repository) UpdateGroup(ctx context.Context, id string, fields map[string]any) error {
	if strings.TrimSpace(id) == "" || len(fields) == 0 {
		return fmt.Errorf("%w: group id and fields are required", ErrBadRequest)
	}
	body, err := codec.EncodeGroupFields(fields)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBadRequest, err)
	}
	if err := r.put(ctx, groupPath(id), body); err != nil {
		return fmt.Errorf("%w: group %s: %w", ErrSaveFailed, id, err)
	}
	return nil
}

// MutateGroup fetches the group, applies fn to a copy and writes back the
// fields that changed. fn returning an error aborts without writing.
//
// With conditional writes enabled the update carries the snapshot's ETag;
// a 412 reply refetches and reapplies fn, up to three attempts in total.
func (r *Repository) MutateGroup(ctx context.Context, id string, fn func(*models.Group) error) (models.Group, error) {
	attempts := 1
	if r.opts.ConditionalWrites {
		attempts = maxConflictAttempts
	}

	for attempt := 1; ; attempt++ {
		current, etag, err := r.fetchGroup(ctx, id)
		if err != nil {
			return models.Group{}, err
		}

		next := current.Clone()
		if err := fn(&next); err != nil {
			return current, err
		}
		next.Key = current.Key

		changes := codec.GroupChanges(current, next)
		if len(changes) == 0 {
			return next, nil
		}
		body, err := codec.EncodeGroupFields(changes)
		if err != nil {
			return current, fmt.Errorf("%w: %w", ErrSaveFailed, err)
		}

		if !r.opts.ConditionalWrites || etag == "" {
			if err := r.put(ctx, groupPath(id), body); err != nil {
				return current, fmt.Errorf("%w: group %s: %w", ErrSaveFailed, id, err)
			}
			return next, nil
		}

		err = r.putIfMatch(ctx, groupPath(id), body, etag)
		if err == nil {
			return next, nil
		}
		if !neterr.IsStatus(err, 412) {
			return current, fmt.Errorf("%w: group %s: %w", ErrSaveFailed, id, err)
		}
		if attempt >= attempts {
			return current, fmt.Errorf("%w: group %s changed concurrently", ErrConflict, id)
		}
		r.log.Info("group changed underneath, reapplying", "group", id, "attempt", attempt)
	}
}

// DeleteGroup removes the group node only.
func (r *Repository) DeleteGroup(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: group id is required", ErrBadRequest)
	}
	return r.delete(ctx, groupPath(id))
}

// DeleteGroupCascade deletes the group, then its messages and image. The
// follow-up deletes are best effort: failures leave orphans and are joined
// into the returned error.
func (r *Repository) DeleteGroupCascade(ctx context.Context, id string) error {
	g, err := r.GetGroup(ctx, id)
	if err != nil {
		if IsErrBadRequest(err) {
			return err
		}
		r.log.Warn("cascade delete without group snapshot", "group", id, "err", err)
		g = models.Group{Key: id}
	}
	if err := r.DeleteGroup(ctx, id); err != nil {
		return err
	}
	return r.cleanupGroup(ctx, g)
}

// cleanupGroup removes what a deleted group leaves behind.
func (r *Repository) cleanupGroup(ctx context.Context, g models.Group) error {
	msgs, err := r.messagesFor(ctx, g)
	if err != nil {
		return fmt.Errorf("list messages of %s: %w", g.Key, err)
	}

	var (
		mu   sync.Mutex
		errs []error
	)
	record := func(err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	}

	eg, egctx := errgroup.WithContext(ctx)
	eg.SetLimit(r.opts.CascadeConcurrency)
	for _, m := range msgs {
		key := m.Key
		eg.Go(func() error {
			if err := r.delete(egctx, messagePath(key)); err != nil {
				record(fmt.Errorf("delete message %s: %w", key, err))
			}
			return nil
		})
	}
	if r.opts.Blobs != nil {
		eg.Go(func() error {
			if err := r.opts.Blobs.Delete(egctx, models.GroupImagePath(g.Key)); err != nil {
				record(fmt.Errorf("delete image: %w", err))
			}
			return nil
		})
	}
	_ = eg.Wait()

	if len(errs) > 0 {
		r.log.Warn("cascade delete left orphans", "group", g.Key, "failures", len(errs))
	}
	return errors.Join(errs...)
}

// CreateGroup saves a new group administered by adminKey.
func (r *Repository) CreateGroup(ctx context.Context, adminKey string, draft models.Group) (models.Group, error) {
	adminKey = strings.TrimSpace(adminKey)
	draft.Name = utils.TrimMax(draft.Name, 100)
	if adminKey == "" || draft.Name == "" {
		return models.Group{}, fmt.Errorf("%w: admin and group name are required", ErrBadRequest)
	}

	g := draft
	if g.Key == "" {
		g.Key = r.opts.NewKey()
	}
	g.AdminKey = adminKey
	g.CreatedAt = utils.FormatCreatedAt(r.opts.Now())
	g.FriendKeys = models.NewKeySet(adminKey)
	g.ComingKeys = models.NewKeySet(adminKey)
	g.MessageKeys = models.KeySet{}

	if err := r.SaveGroup(ctx, g.Key, g); err != nil {
		return models.Group{}, err
	}
	return g, nil
}

// GetUserGroups lists the groups the user belongs to or administers.
func (r *Repository) GetUserGroups(ctx context.Context, userKey string) []models.Group {
	return filterGroups(r.GetGroups(ctx), func(g models.Group) bool {
		return g.IsMember(userKey)
	})
}

// GetPublicGroups lists public groups the user is not part of.
func (r *Repository) GetPublicGroups(ctx context.Context, userKey string) []models.Group {
	return filterGroups(r.GetGroups(ctx), func(g models.Group) bool {
		return g.IsPublic() && !g.IsMember(userKey)
	})
}

func filterGroups(groups map[string]models.Group, keep func(models.Group) bool) []models.Group {
	out := make([]models.Group, 0, len(groups))
	for _, g := range groups {
		g.EnsureSets()
		if keep(g) {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
