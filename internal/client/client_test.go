package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"partymaker/internal/async"
	"partymaker/internal/cache"
	"partymaker/internal/config"
	apihttp "partymaker/internal/http"
	"partymaker/internal/models"
	"partymaker/internal/neterr"
	"partymaker/internal/repository"
	"partymaker/internal/store"
	"partymaker/internal/transport"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	alice = "alice@x com"
	bob   = "bob@x com"
)

type session struct{ key atomic.Value }

func (s *session) CurrentUserKey() string {
	k, _ := s.key.Load().(string)
	return k
}

func (s *session) SignOut(context.Context) error {
	s.key.Store("")
	return nil
}

type gate struct{ up atomic.Bool }

func (g *gate) Current() bool { return g.up.Load() }

type fixture struct {
	client  *Client
	repo    *repository.Repository
	cache   *cache.Cache
	session *session
	gate    *gate
	// failPost and down make the proxy answer 500.
	failPost atomic.Bool
	down     atomic.Bool
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{session: &session{}, gate: &gate{}}
	f.session.key.Store(alice)
	f.gate.up.Store(true)

	router := apihttp.NewRouter(apihttp.RouterDeps{Cfg: config.Config{}, Tree: store.NewMemory()})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if f.down.Load() || (f.failPost.Load() && r.Method == http.MethodPost) {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		router.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)

	c, err := cache.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	f.repo = repository.New(transport.New(transport.StaticURL(srv.URL), transport.Options{}), repository.Options{
		Retry: neterr.Options{Sleep: func(context.Context, time.Duration) error { return nil }},
	})
	f.cache = c
	f.client = New(f.repo, Options{
		Dispatcher: async.Inline{},
		Gate:       f.gate,
		Cache:      c,
		Session:    f.session,
		Now:        func() time.Time { return time.Date(2024, 6, 1, 21, 0, 0, 0, time.UTC) },
	})
	return f
}

// result captures a single callback delivery.
type result[T any] struct {
	value     T
	err       string
	successes int
	errors    int
}

func (r *result[T]) callbacks() async.Callbacks[T] {
	return async.Callbacks[T]{
		OnSuccess: func(v T) { r.value = v; r.successes++ },
		OnError:   func(msg string) { r.err = msg; r.errors++ },
	}
}

func TestSaveGroupFailureReportsError(t *testing.T) {
	f := newFixture(t)
	f.failPost.Store(true)

	var r result[models.Group]
	f.client.SaveGroup(context.Background(), models.Group{Key: "g1", Name: "Party"}, r.callbacks()).Wait()

	assert.Equal(t, 0, r.successes)
	assert.Equal(t, 1, r.errors)
	assert.Equal(t, "save group: "+neterr.Message(neterr.ServerError), r.err)

	_, ok, err := f.cache.Group(context.Background(), "g1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCreateJoinLeaveKeepsCacheInStep(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	var created result[models.Group]
	f.client.CreateGroup(ctx, models.Group{Name: "Rooftop"}, created.callbacks()).Wait()
	require.Equal(t, 1, created.successes, created.err)
	id := created.value.Key
	assert.Equal(t, alice, created.value.AdminKey)

	f.session.key.Store(bob)
	var joined result[models.Group]
	f.client.JoinGroup(ctx, id, joined.callbacks()).Wait()
	require.Equal(t, 1, joined.successes, joined.err)

	cached, ok, err := f.cache.Group(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{alice, bob}, cached.FriendKeys.Keys())

	var left result[repository.LeaveResult]
	f.client.LeaveGroup(ctx, id, left.callbacks()).Wait()
	require.Equal(t, 1, left.successes, left.err)
	assert.False(t, left.value.Deleted)

	f.session.key.Store(alice)
	f.client.LeaveGroup(ctx, id, left.callbacks()).Wait()
	require.Equal(t, 2, left.successes, left.err)
	assert.True(t, left.value.Deleted)

	_, ok, err = f.cache.Group(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGroupsServeCacheWhenServerFails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.repo.SaveGroup(ctx, "g1", models.Group{Name: "Party", AdminKey: alice}))

	var r result[map[string]models.Group]
	f.client.Groups(ctx, true, r.callbacks()).Wait()
	require.Equal(t, 1, r.successes, r.err)
	assert.Contains(t, r.value, "g1")

	f.down.Store(true)
	f.client.Groups(ctx, true, r.callbacks()).Wait()
	assert.Equal(t, 2, r.successes)
	assert.Contains(t, r.value, "g1")

	var users result[[]models.Group]
	f.client.UserGroups(ctx, false, users.callbacks()).Wait()
	require.Equal(t, 1, users.successes, users.err)
	require.Len(t, users.value, 1)
	assert.Equal(t, "g1", users.value[0].Key)
}

func TestGroupsWithoutCacheReportError(t *testing.T) {
	f := newFixture(t)
	f.down.Store(true)

	var r result[map[string]models.Group]
	f.client.Groups(context.Background(), false, r.callbacks()).Wait()
	assert.Equal(t, 0, r.successes)
	assert.Equal(t, "load groups: "+neterr.Message(neterr.ServerError), r.err)
}

func TestOfflineFailsFast(t *testing.T) {
	f := newFixture(t)
	f.gate.up.Store(false)

	var r result[models.Group]
	f.client.JoinGroup(context.Background(), "g1", r.callbacks()).Wait()
	assert.Equal(t, "join group: "+neterr.Message(neterr.NoNetwork), r.err)

	var msgs result[[]models.ChatMessage]
	f.client.Messages(context.Background(), "g1", msgs.callbacks()).Wait()
	assert.Equal(t, "load messages: "+neterr.Message(neterr.NoNetwork), msgs.err)
}

func TestSendMessage(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.repo.SaveGroup(ctx, "g1", models.Group{Name: "Party", AdminKey: alice, FriendKeys: models.NewKeySet(alice)}))

	var sent result[models.ChatMessage]
	f.client.SendMessage(ctx, "g1", "  hello  ", sent.callbacks()).Wait()
	require.Equal(t, 1, sent.successes, sent.err)
	assert.Equal(t, alice, sent.value.User)
	assert.Equal(t, "hello", sent.value.Text)
	assert.Equal(t, "2024-06-01 21:00:00", sent.value.Time)

	var history result[[]models.ChatMessage]
	f.client.Messages(ctx, "g1", history.callbacks()).Wait()
	require.Len(t, history.value, 1)
	assert.Equal(t, sent.value.Key, history.value[0].Key)

	f.client.SendMessage(ctx, "g1", "   ", sent.callbacks()).Wait()
	assert.Equal(t, "send message: "+neterr.Message(neterr.ClientError), sent.err)
}

func TestChatAndUsersServeCacheWhenOffline(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.repo.SaveGroup(ctx, "g1", models.Group{Name: "Party", AdminKey: alice, FriendKeys: models.NewKeySet(alice)}))
	require.NoError(t, f.repo.SaveUser(ctx, models.User{Email: "bob@x.com", Username: "Bob"}))

	var sent result[models.ChatMessage]
	f.client.SendMessage(ctx, "g1", "hello", sent.callbacks()).Wait()
	require.Equal(t, 1, sent.successes, sent.err)

	var users result[map[string]models.User]
	f.client.Users(ctx, true, users.callbacks()).Wait()
	require.Equal(t, 1, users.successes, users.err)
	require.Contains(t, users.value, bob)

	f.down.Store(true)
	var msgs result[[]models.ChatMessage]
	f.client.Messages(ctx, "g1", msgs.callbacks()).Wait()
	require.Equal(t, 1, msgs.successes, msgs.err)
	require.Len(t, msgs.value, 1)
	assert.Equal(t, "hello", msgs.value[0].Text)

	f.gate.up.Store(false)
	f.client.Users(ctx, true, users.callbacks()).Wait()
	assert.Equal(t, 2, users.successes)
	assert.Equal(t, "Bob", users.value[bob].Username)

	var one result[models.User]
	f.client.User(ctx, bob, true, one.callbacks()).Wait()
	require.Equal(t, 1, one.successes, one.err)
	assert.Equal(t, "Bob", one.value.Username)

	f.client.User(ctx, "nobody@x com", false, one.callbacks()).Wait()
	assert.Equal(t, "load user: "+neterr.Message(neterr.NoNetwork), one.err)

	f.client.Messages(ctx, "g2", msgs.callbacks()).Wait()
	assert.Equal(t, "load messages: "+neterr.Message(neterr.NoNetwork), msgs.err)
}

func TestMessagesRefreshCache(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.repo.SaveGroup(ctx, "g1", models.Group{Name: "Party", AdminKey: alice, FriendKeys: models.NewKeySet(alice)}))
	_, err := f.repo.SaveMessage(ctx, "g1", "m1", models.ChatMessage{User: bob, Text: "from elsewhere"})
	require.NoError(t, err)

	var msgs result[[]models.ChatMessage]
	f.client.Messages(ctx, "g1", msgs.callbacks()).Wait()
	require.Equal(t, 1, msgs.successes, msgs.err)

	cached, err := f.cache.Messages(ctx, "g1")
	require.NoError(t, err)
	require.Len(t, cached, 1)
	assert.Equal(t, "from elsewhere", cached[0].Text)
}

func TestSignedOut(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.client.SignOut(context.Background()))

	var r result[models.Group]
	f.client.JoinGroup(context.Background(), "g1", r.callbacks()).Wait()
	assert.Equal(t, "join group: Please sign in first.", r.err)
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, neterr.Message(neterr.NotFound), Describe("", repository.ErrNotFound))
	assert.Equal(t, "leave group: "+neterr.Message(neterr.SaveFailed), Describe("leave group", repository.ErrConflict))
	assert.Equal(t, "x: "+neterr.Message(neterr.ClientError), Describe("x", repository.ErrForbidden))
}
