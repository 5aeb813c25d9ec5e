package client

import (
	"context"
	"strings"

	"partymaker/internal/async"
	"partymaker/internal/models"
	"partymaker/internal/repository"
	"partymaker/internal/utils"
)

// Messages delivers the group's chat history oldest first. When the fetch
// fails the cached history is served instead, if there is one.
func (c *Client) Messages(ctx context.Context, groupID string, cb async.Callbacks[[]models.ChatMessage]) *async.Handle {
	cb.Describe = describer("load messages")
	return async.Go(ctx, c.opts.Dispatcher, func(ctx context.Context) ([]models.ChatMessage, error) {
		var (
			msgs []models.ChatMessage
			err  error
		)
		if c.online() {
			msgs, err = c.repo.FetchMessages(ctx, groupID)
		} else {
			err = ErrOffline
		}
		if err != nil {
			if cached := c.cachedMessages(ctx, groupID); len(cached) > 0 {
				c.log.Info("serving cached messages after fetch failure", "group", groupID, "count", len(cached), "err", err)
				return cached, nil
			}
			return nil, err
		}
		if c.opts.Cache != nil {
			if err := c.opts.Cache.PutMessages(ctx, groupID, msgs); err != nil {
				c.log.Warn("cache messages failed", "group", groupID, "err", err)
			}
		}
		return msgs, nil
	}, cb)
}

func (c *Client) cachedMessages(ctx context.Context, groupID string) []models.ChatMessage {
	if c.opts.Cache == nil {
		return nil
	}
	msgs, err := c.opts.Cache.Messages(ctx, groupID)
	if err != nil {
		c.log.Warn("read cached messages failed", "group", groupID, "err", err)
	}
	return msgs
}

// SendMessage posts text to the group as the signed-in user. A message
// that was stored but not indexed still counts as sent.
func (c *Client) SendMessage(ctx context.Context, groupID, text string, cb async.Callbacks[models.ChatMessage]) *async.Handle {
	return write(ctx, c, "send message", func(ctx context.Context) (models.ChatMessage, error) {
		me, err := c.userKey()
		if err != nil {
			return models.ChatMessage{}, err
		}
		rc, err := c.repo.SaveMessage(ctx, groupID, "", models.ChatMessage{
			User: me,
			Time: utils.FormatCreatedAt(c.opts.Now()),
			Text: strings.TrimSpace(text),
		})
		if err != nil {
			return models.ChatMessage{}, err
		}
		if rc.IndexErr != nil {
			c.log.Warn("message not indexed", "group", groupID, "message", rc.Message.Key, "err", rc.IndexErr)
		}
		if c.opts.Cache != nil {
			if err := c.opts.Cache.PutMessage(ctx, rc.Message); err != nil {
				c.log.Warn("cache message failed", "message", rc.Message.Key, "err", err)
			}
		}
		return rc.Message, nil
	}, cb)
}

// Users delivers every user keyed by normalized email, cache first unless
// forceRefresh is set. After a failed fetch the cached users are served.
func (c *Client) Users(ctx context.Context, forceRefresh bool, cb async.Callbacks[map[string]models.User]) *async.Handle {
	cb.Describe = describer("load users")
	return async.Go(ctx, c.opts.Dispatcher, func(ctx context.Context) (map[string]models.User, error) {
		var cached map[string]models.User
		if c.opts.Cache != nil {
			var err error
			if cached, err = c.opts.Cache.Users(ctx); err != nil {
				c.log.Warn("read cached users failed", "err", err)
			}
		}
		if len(cached) > 0 && !forceRefresh {
			return cached, nil
		}

		var (
			users map[string]models.User
			err   error
		)
		if c.online() {
			users, err = c.repo.FetchUsers(ctx)
		} else {
			err = ErrOffline
		}
		if err != nil {
			if len(cached) > 0 {
				c.log.Info("serving cached users after fetch failure", "count", len(cached), "err", err)
				return cached, nil
			}
			return nil, err
		}
		if c.opts.Cache != nil {
			if err := c.opts.Cache.PutUsers(ctx, users); err != nil {
				c.log.Warn("cache users failed", "err", err)
			}
		}
		return users, nil
	}, cb)
}

// User delivers one user with the same cache rules as Users.
func (c *Client) User(ctx context.Context, key string, forceRefresh bool, cb async.Callbacks[models.User]) *async.Handle {
	cb.Describe = describer("load user")
	return async.Go(ctx, c.opts.Dispatcher, func(ctx context.Context) (models.User, error) {
		var (
			cached models.User
			hit    bool
		)
		if c.opts.Cache != nil {
			var err error
			if cached, hit, err = c.opts.Cache.User(ctx, key); err != nil {
				c.log.Warn("read cached user failed", "user", key, "err", err)
			}
		}
		if hit && !forceRefresh {
			return cached, nil
		}

		var (
			u   models.User
			err error
		)
		if c.online() {
			u, err = c.repo.GetUser(ctx, key)
		} else {
			err = ErrOffline
		}
		if err != nil {
			if hit && !repository.IsErrNotFound(err) {
				return cached, nil
			}
			return models.User{}, err
		}
		c.cacheUser(ctx, u)
		return u, nil
	}, cb)
}

func (c *Client) SaveUser(ctx context.Context, u models.User, cb async.Callbacks[models.User]) *async.Handle {
	return write(ctx, c, "save user", func(ctx context.Context) (models.User, error) {
		if u.Key == "" {
			u.Key = utils.NormalizeUserKey(u.Email)
		}
		if err := c.repo.SaveUser(ctx, u); err != nil {
			return models.User{}, err
		}
		c.cacheUser(ctx, u)
		return u, nil
	}, cb)
}

func (c *Client) cacheUser(ctx context.Context, u models.User) {
	if c.opts.Cache == nil {
		return
	}
	if err := c.opts.Cache.PutUser(ctx, u); err != nil {
		c.log.Warn("cache user failed", "user", u.Key, "err", err)
	}
}
