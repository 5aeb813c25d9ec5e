package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeySet(t *testing.T) {
	s := NewKeySet("b", "a", "a", " ")
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, []string{"a", "b"}, s.Keys())

	assert.False(t, s.Add("a"))
	assert.True(t, s.Remove("a"))
	assert.False(t, s.Remove("a"))
	assert.False(t, s.Has("a"))
}

func TestGroupCloneIsDeep(t *testing.T) {
	g := Group{Key: "g1", AdminKey: "admin@x com"}
	g.EnsureSets()
	g.FriendKeys.Add("admin@x com")

	c := g.Clone()
	c.FriendKeys.Add("bob@x com")

	assert.Equal(t, 1, g.FriendKeys.Len())
	assert.Equal(t, 2, c.FriendKeys.Len())
	assert.True(t, g.IsMember("admin@x com"))
	assert.False(t, g.IsMember("bob@x com"))
}
