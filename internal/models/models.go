package models

import (
	"sort"
	"strings"
)

const (
	GroupTypePublic  = 0
	GroupTypePrivate = 1
)

// KeySet is a presence-only membership map (FriendKeys, ComingKeys,
// MessageKeys). Stored values are ignored; only the keys matter.
type KeySet map[string]struct{}

func NewKeySet(keys ...string) KeySet {
	s := make(KeySet, len(keys))
	for _, k := range keys {
		s.Add(k)
	}
	return s
}

func (s KeySet) Add(key string) bool {
	key = strings.TrimSpace(key)
	if key == "" {
		return false
	}
	if _, ok := s[key]; ok {
		return false
	}
	s[key] = struct{}{}
	return true
}

func (s KeySet) Remove(key string) bool {
	if _, ok := s[key]; !ok {
		return false
	}
	delete(s, key)
	return true
}

func (s KeySet) Has(key string) bool {
	_, ok := s[key]
	return ok
}

func (s KeySet) Len() int { return len(s) }

// Keys returns the members in sorted order.
func (s KeySet) Keys() []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (s KeySet) Clone() KeySet {
	out := make(KeySet, len(s))
	for k := range s {
		out[k] = struct{}{}
	}
	return out
}

func (s KeySet) Equal(o KeySet) bool {
	if len(s) != len(o) {
		return false
	}
	for k := range s {
		if !o.Has(k) {
			return false
		}
	}
	return true
}

// GroupImagePath is where a group's picture lives in the blob store.
func GroupImagePath(groupKey string) string {
	return "UsersImageProfile/Groups/" + groupKey
}

// Group is a party/event with its denormalized membership and chat index.
type Group struct {
	Key         string
	Name        string
	AdminKey    string
	CreatedAt   string // yyyy-MM-dd HH:mm:ss
	Location    string // "lat,lng" or free text
	Day         string
	Month       string
	Year        string
	Hour        string
	Price       string
	Type        int
	CanAdd      bool
	Description string

	FriendKeys  KeySet
	ComingKeys  KeySet
	MessageKeys KeySet
}

// EnsureSets replaces nil membership maps with empty ones.
func (g *Group) EnsureSets() {
	if g.FriendKeys == nil {
		g.FriendKeys = KeySet{}
	}
	if g.ComingKeys == nil {
		g.ComingKeys = KeySet{}
	}
	if g.MessageKeys == nil {
		g.MessageKeys = KeySet{}
	}
}

func (g Group) IsPublic() bool { return g.Type == GroupTypePublic }

func (g Group) IsMember(userKey string) bool {
	return g.FriendKeys.Has(userKey) || (userKey != "" && g.AdminKey == userKey)
}

// Clone deep-copies the membership sets so the copy can be mutated freely.
func (g Group) Clone() Group {
	out := g
	out.FriendKeys = g.FriendKeys.Clone()
	out.ComingKeys = g.ComingKeys.Clone()
	out.MessageKeys = g.MessageKeys.Clone()
	return out
}

type User struct {
	Key             string // normalized email
	Email           string
	Username        string
	ProfileImageURL string
	FriendKeys      KeySet
}

type ChatMessage struct {
	Key     string
	User    string // sender key or display name
	Time    string
	Text    string
	GroupID string
}
