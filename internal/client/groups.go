package client

import (
	"context"
	"io"
	"sort"

	"partymaker/internal/async"
	"partymaker/internal/models"
	"partymaker/internal/repository"
)

// Groups delivers all groups. Cached groups are served unless forceRefresh
// is set; after a failed fetch they are served instead of the error.
func (c *Client) Groups(ctx context.Context, forceRefresh bool, cb async.Callbacks[map[string]models.Group]) *async.Handle {
	cb.Describe = describer("load groups")
	return async.Go(ctx, c.opts.Dispatcher, func(ctx context.Context) (map[string]models.Group, error) {
		return c.loadGroups(ctx, forceRefresh)
	}, cb)
}

func (c *Client) loadGroups(ctx context.Context, forceRefresh bool) (map[string]models.Group, error) {
	var cached map[string]models.Group
	if c.opts.Cache != nil {
		var err error
		if cached, err = c.opts.Cache.Groups(ctx); err != nil {
			c.log.Warn("read cached groups failed", "err", err)
		}
	}
	if len(cached) > 0 && !forceRefresh {
		return cached, nil
	}

	var (
		groups map[string]models.Group
		err    error
	)
	if c.online() {
		groups, err = c.repo.FetchGroups(ctx)
	} else {
		err = ErrOffline
	}
	if err != nil {
		if len(cached) > 0 {
			c.log.Info("serving cached groups after fetch failure", "count", len(cached), "err", err)
			return cached, nil
		}
		return nil, err
	}
	if c.opts.Cache != nil {
		if err := c.opts.Cache.PutGroups(ctx, groups); err != nil {
			c.log.Warn("cache groups failed", "err", err)
		}
	}
	return groups, nil
}

// Group delivers one group with the same cache rules as Groups.
func (c *Client) Group(ctx context.Context, id string, forceRefresh bool, cb async.Callbacks[models.Group]) *async.Handle {
	cb.Describe = describer("load group")
	return async.Go(ctx, c.opts.Dispatcher, func(ctx context.Context) (models.Group, error) {
		var (
			cached models.Group
			hit    bool
		)
		if c.opts.Cache != nil {
			var err error
			if cached, hit, err = c.opts.Cache.Group(ctx, id); err != nil {
				c.log.Warn("read cached group failed", "group", id, "err", err)
			}
		}
		if hit && !forceRefresh {
			return cached, nil
		}

		var (
			g   models.Group
			err error
		)
		if c.online() {
			g, err = c.repo.GetGroup(ctx, id)
		} else {
			err = ErrOffline
		}
		if err != nil {
			if repository.IsErrNotFound(err) {
				c.evictGroup(ctx, id)
				return models.Group{}, err
			}
			if hit {
				return cached, nil
			}
			return models.Group{}, err
		}
		c.cacheGroup(ctx, g)
		return g, nil
	}, cb)
}

// UserGroups delivers the signed-in user's groups sorted by key.
func (c *Client) UserGroups(ctx context.Context, forceRefresh bool, cb async.Callbacks[[]models.Group]) *async.Handle {
	return c.filtered(ctx, "load your groups", forceRefresh, cb, func(g models.Group, me string) bool {
		return g.IsMember(me)
	})
}

// PublicGroups delivers public groups the signed-in user is not part of.
func (c *Client) PublicGroups(ctx context.Context, forceRefresh bool, cb async.Callbacks[[]models.Group]) *async.Handle {
	return c.filtered(ctx, "load public groups", forceRefresh, cb, func(g models.Group, me string) bool {
		return g.IsPublic() && !g.IsMember(me)
	})
}

func (c *Client) filtered(ctx context.Context, action string, forceRefresh bool, cb async.Callbacks[[]models.Group], keep func(models.Group, string) bool) *async.Handle {
	cb.Describe = describer(action)
	return async.Go(ctx, c.opts.Dispatcher, func(ctx context.Context) ([]models.Group, error) {
		me, err := c.userKey()
		if err != nil {
			return nil, err
		}
		all, err := c.loadGroups(ctx, forceRefresh)
		if err != nil {
			return nil, err
		}
		out := make([]models.Group, 0, len(all))
		for _, g := range all {
			if keep(g, me) {
				out = append(out, g)
			}
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
		return out, nil
	}, cb)
}

// CreateGroup saves a new group administered by the signed-in user.
func (c *Client) CreateGroup(ctx context.Context, draft models.Group, cb async.Callbacks[models.Group]) *async.Handle {
	return write(ctx, c, "create group", func(ctx context.Context) (models.Group, error) {
		me, err := c.userKey()
		if err != nil {
			return models.Group{}, err
		}
		g, err := c.repo.CreateGroup(ctx, me, draft)
		if err != nil {
			return models.Group{}, err
		}
		c.cacheGroup(ctx, g)
		return g, nil
	}, cb)
}

// SaveGroup overwrites the whole group.
func (c *Client) SaveGroup(ctx context.Context, g models.Group, cb async.Callbacks[models.Group]) *async.Handle {
	return write(ctx, c, "save group", func(ctx context.Context) (models.Group, error) {
		if err := c.repo.SaveGroup(ctx, g.Key, g); err != nil {
			return models.Group{}, err
		}
		c.cacheGroup(ctx, g)
		return g, nil
	}, cb)
}

func (c *Client) DeleteGroup(ctx context.Context, id string, cb async.Callbacks[struct{}]) *async.Handle {
	return write(ctx, c, "delete group", func(ctx context.Context) (struct{}, error) {
		err := c.repo.DeleteGroupCascade(ctx, id)
		if err != nil && !repository.IsErrNotFound(err) {
			// the group node may be gone even when cleanup failed
			if _, gerr := c.repo.GetGroup(ctx, id); repository.IsErrNotFound(gerr) {
				c.evictGroup(ctx, id)
			}
			return struct{}{}, err
		}
		c.evictGroup(ctx, id)
		return struct{}{}, nil
	}, cb)
}

func (c *Client) JoinGroup(ctx context.Context, id string, cb async.Callbacks[models.Group]) *async.Handle {
	return c.mutate(ctx, "join group", cb, func(ctx context.Context, me string) (models.Group, error) {
		return c.repo.JoinGroup(ctx, id, me)
	})
}

// LeaveGroup removes the signed-in user. The cached copy is evicted when the
// group was dissolved.
func (c *Client) LeaveGroup(ctx context.Context, id string, cb async.Callbacks[repository.LeaveResult]) *async.Handle {
	return write(ctx, c, "leave group", func(ctx context.Context) (repository.LeaveResult, error) {
		me, err := c.userKey()
		if err != nil {
			return repository.LeaveResult{}, err
		}
		res, err := c.repo.LeaveGroup(ctx, id, me)
		if err != nil {
			return res, err
		}
		if res.Deleted {
			c.evictGroup(ctx, id)
			if res.CascadeErr != nil {
				c.log.Warn("group dissolved with leftovers", "group", id, "err", res.CascadeErr)
			}
		} else {
			c.cacheGroup(ctx, res.Group)
		}
		return res, nil
	}, cb)
}

func (c *Client) SetComing(ctx context.Context, id string, coming bool, cb async.Callbacks[models.Group]) *async.Handle {
	return c.mutate(ctx, "update attendance", cb, func(ctx context.Context, me string) (models.Group, error) {
		return c.repo.SetComing(ctx, id, me, coming)
	})
}

func (c *Client) InviteFriends(ctx context.Context, id string, keys []string, cb async.Callbacks[models.Group]) *async.Handle {
	return c.mutate(ctx, "invite friends", cb, func(ctx context.Context, me string) (models.Group, error) {
		return c.repo.InviteFriends(ctx, id, me, keys)
	})
}

func (c *Client) RemoveFriends(ctx context.Context, id string, keys []string, cb async.Callbacks[models.Group]) *async.Handle {
	return c.mutate(ctx, "remove friends", cb, func(ctx context.Context, _ string) (models.Group, error) {
		return c.repo.RemoveFriends(ctx, id, keys)
	})
}

// UploadGroupImage stores the picture and delivers its download URL.
func (c *Client) UploadGroupImage(ctx context.Context, groupKey string, img io.Reader, contentType string, cb async.Callbacks[string]) *async.Handle {
	return write(ctx, c, "upload image", func(ctx context.Context) (string, error) {
		return c.repo.UploadGroupImage(ctx, groupKey, img, contentType)
	}, cb)
}

// mutate runs a membership change as the signed-in user and caches the
// resulting group.
func (c *Client) mutate(ctx context.Context, action string, cb async.Callbacks[models.Group], fn func(ctx context.Context, me string) (models.Group, error)) *async.Handle {
	return write(ctx, c, action, func(ctx context.Context) (models.Group, error) {
		me, err := c.userKey()
		if err != nil {
			return models.Group{}, err
		}
		g, err := fn(ctx, me)
		if err != nil {
			return models.Group{}, err
		}
		c.cacheGroup(ctx, g)
		return g, nil
	}, cb)
}
