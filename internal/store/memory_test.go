package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryGetSetUpdate(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	v, err := m.Get(ctx, "Groups/g1")
	require.NoError(t, err)
	assert.Nil(t, v)

	require.NoError(t, m.Set(ctx, "Groups/g1", map[string]any{
		"groupName":  "Party",
		"FriendKeys": map[string]any{"a": true, "b": true},
	}))

	require.NoError(t, m.Update(ctx, "Groups/g1", map[string]any{
		"FriendKeys":  map[string]bool{"a": true},
		"adminKey":    "a",
		"ComingKeys":  nil,
		"MessageKeys": map[string]any{},
	}))

	v, err = m.Get(ctx, "Groups/g1")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"groupName":  "Party",
		"adminKey":   "a",
		"FriendKeys": map[string]any{"a": true},
	}, v)

	all, err := m.Get(ctx, "Groups")
	require.NoError(t, err)
	assert.Contains(t, all, "g1")
}

func TestMemoryDeletePrunesParents(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Set(ctx, "GroupsMessages/m1", map[string]any{"messageText": "hi"}))
	require.NoError(t, m.Delete(ctx, "GroupsMessages/m1"))

	assert.Empty(t, m.Dump())
}

func TestMemorySetIfUnchanged(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Set(ctx, "Groups/g1", map[string]any{"groupName": "A"}))

	_, etag, err := m.GetWithETag(ctx, "Groups/g1")
	require.NoError(t, err)

	ok, err := m.SetIfUnchanged(ctx, "Groups/g1", etag, map[string]any{"groupName": "B"})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = m.SetIfUnchanged(ctx, "Groups/g1", etag, map[string]any{"groupName": "C"})
	require.NoError(t, err)
	assert.False(t, ok)

	v, _ := m.Get(ctx, "Groups/g1")
	assert.Equal(t, map[string]any{"groupName": "B"}, v)
}

func TestSplit(t *testing.T) {
	segs, err := Split("/Users/bob@x com/")
	require.NoError(t, err)
	assert.Equal(t, []string{"Users", "bob@x com"}, segs)

	for _, bad := range []string{"", "/", "Users/bob@x.com", "a//b", "a/$b"} {
		_, err := Split(bad)
		assert.ErrorIs(t, err, ErrBadPath, bad)
	}
}
