// Package client is the callback API the app layer talks to. Every call
// returns immediately; the outcome arrives on the configured dispatcher.
package client

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"partymaker/internal/async"
	"partymaker/internal/logging"
	"partymaker/internal/models"
	"partymaker/internal/neterr"
	"partymaker/internal/repository"
)

var ErrOffline = neterr.WithKind(errors.New("network unavailable"), neterr.NoNetwork)

// ErrSignedOut is reported by calls that need the current user.
var ErrSignedOut = errors.New("no signed-in user")

// Session is the authentication collaborator.
type Session interface {
	CurrentUserKey() string
	SignOut(ctx context.Context) error
}

// Gate reports whether the network is believed reachable.
// *connectivity.Monitor satisfies it.
type Gate interface {
	Current() bool
}

// LocalCache is satisfied by *cache.Cache.
type LocalCache interface {
	PutGroups(ctx context.Context, groups map[string]models.Group) error
	PutGroup(ctx context.Context, g models.Group) error
	Group(ctx context.Context, key string) (models.Group, bool, error)
	Groups(ctx context.Context) (map[string]models.Group, error)
	DeleteGroup(ctx context.Context, key string) error

	PutUsers(ctx context.Context, users map[string]models.User) error
	PutUser(ctx context.Context, u models.User) error
	User(ctx context.Context, key string) (models.User, bool, error)
	Users(ctx context.Context) (map[string]models.User, error)

	PutMessages(ctx context.Context, groupKey string, msgs []models.ChatMessage) error
	PutMessage(ctx context.Context, m models.ChatMessage) error
	Messages(ctx context.Context, groupKey string) ([]models.ChatMessage, error)
}

// Facade is the subset of *repository.Repository the client drives.
type Facade interface {
	FetchGroups(ctx context.Context) (map[string]models.Group, error)
	GetGroup(ctx context.Context, id string) (models.Group, error)
	SaveGroup(ctx context.Context, id string, g models.Group) error
	CreateGroup(ctx context.Context, adminKey string, draft models.Group) (models.Group, error)
	DeleteGroupCascade(ctx context.Context, id string) error
	JoinGroup(ctx context.Context, groupID, userKey string) (models.Group, error)
	LeaveGroup(ctx context.Context, groupID, userKey string) (repository.LeaveResult, error)
	SetComing(ctx context.Context, groupID, userKey string, coming bool) (models.Group, error)
	InviteFriends(ctx context.Context, groupID, actorKey string, keys []string) (models.Group, error)
	RemoveFriends(ctx context.Context, groupID string, keys []string) (models.Group, error)
	FetchMessages(ctx context.Context, groupID string) ([]models.ChatMessage, error)
	SaveMessage(ctx context.Context, groupID, messageID string, msg models.ChatMessage) (repository.Receipt, error)
	FetchUsers(ctx context.Context) (map[string]models.User, error)
	GetUser(ctx context.Context, key string) (models.User, error)
	SaveUser(ctx context.Context, u models.User) error
	UploadGroupImage(ctx context.Context, groupKey string, img io.Reader, contentType string) (string, error)
}

type Options struct {
	Dispatcher async.Dispatcher
	// Gate, Cache and Session are optional.
	Gate    Gate
	Cache   LocalCache
	Session Session
	Logger  *slog.Logger
	Now     func() time.Time
}

type Client struct {
	repo Facade
	opts Options
	log  *slog.Logger
}

func New(repo Facade, opts Options) *Client {
	if opts.Dispatcher == nil {
		opts.Dispatcher = async.Inline{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	log := opts.Logger
	if log == nil {
		log = logging.For("client")
	}
	return &Client{repo: repo, opts: opts, log: log}
}

// Describe renders err as the text handed to OnError, prefixed with the
// action that failed.
func Describe(action string, err error) string {
	var msg string
	switch {
	case errors.Is(err, ErrSignedOut):
		msg = "Please sign in first."
	case repository.IsErrNotFound(err):
		msg = neterr.Message(neterr.NotFound)
	case repository.IsErrConflict(err):
		msg = neterr.Message(neterr.SaveFailed)
	case repository.IsErrForbidden(err), repository.IsErrBadRequest(err):
		msg = neterr.Message(neterr.ClientError)
	case repository.IsErrSaveFailed(err) && neterr.Classify(err) == neterr.Unknown:
		msg = neterr.Message(neterr.SaveFailed)
	default:
		msg = neterr.UserMessage(err)
	}
	if action == "" {
		return msg
	}
	return action + ": " + msg
}

func describer(action string) func(error) string {
	return func(err error) string { return Describe(action, err) }
}

func (c *Client) online() bool {
	return c.opts.Gate == nil || c.opts.Gate.Current()
}

func (c *Client) userKey() (string, error) {
	if c.opts.Session == nil {
		return "", ErrSignedOut
	}
	k := c.opts.Session.CurrentUserKey()
	if k == "" {
		return "", ErrSignedOut
	}
	return k, nil
}

// write runs a mutation behind the connectivity gate.
func write[T any](ctx context.Context, c *Client, action string, fn func(context.Context) (T, error), cb async.Callbacks[T]) *async.Handle {
	cb.Describe = describer(action)
	return async.Go(ctx, c.opts.Dispatcher, func(ctx context.Context) (T, error) {
		var zero T
		if !c.online() {
			return zero, ErrOffline
		}
		return fn(ctx)
	}, cb)
}

func (c *Client) cacheGroup(ctx context.Context, g models.Group) {
	if c.opts.Cache == nil {
		return
	}
	if err := c.opts.Cache.PutGroup(ctx, g); err != nil {
		c.log.Warn("cache group failed", "group", g.Key, "err", err)
	}
}

func (c *Client) evictGroup(ctx context.Context, key string) {
	if c.opts.Cache == nil {
		return
	}
	if err := c.opts.Cache.DeleteGroup(ctx, key); err != nil {
		c.log.Warn("evict group failed", "group", key, "err", err)
	}
}

// SignOut ends the session.
func (c *Client) SignOut(ctx context.Context) error {
	if c.opts.Session == nil {
		return nil
	}
	return c.opts.Session.SignOut(ctx)
}
