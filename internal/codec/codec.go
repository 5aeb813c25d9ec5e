// Package codec converts between the loosely typed JSON stored in the
// realtime tree and the models package.
//
// Decoding is tolerant: numbers may arrive as strings, booleans as "true",
// membership maps under either key casing, and membership maps may be
// wrapped in "nameValuePairs" envelopes left behind by older Android
// clients. Encoding always emits the canonical shape.
package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"partymaker/internal/logging"
	"partymaker/internal/models"
	"partymaker/internal/neterr"
	"partymaker/internal/utils"
)

// Wire field names.
const (
	FieldGroupKey    = "groupKey"
	FieldGroupName   = "groupName"
	FieldAdminKey    = "adminKey"
	FieldCreatedAt   = "createdAt"
	FieldLocation    = "groupLocation"
	FieldDays        = "groupDays"
	FieldMonths      = "groupMonths"
	FieldYears       = "groupYears"
	FieldHours       = "groupHours"
	FieldPrice       = "groupPrice"
	FieldType        = "groupType"
	FieldCanAdd      = "canAdd"
	FieldDescription = "groupDescription"
	FieldFriendKeys  = "FriendKeys"
	FieldComingKeys  = "ComingKeys"
	FieldMessageKeys = "MessageKeys"

	FieldUserKey         = "userKey"
	FieldUsername        = "username"
	FieldEmail           = "email"
	FieldProfileImageURL = "profileImageUrl"
	FieldUserFriendKeys  = "friendKeys"

	FieldMessageKey  = "messageKey"
	FieldMessageUser = "messageUser"
	FieldMessageText = "messageText"
	FieldMessageTime = "messageTime"
	FieldGroupID     = "groupId"

	envelopeKey = "nameValuePairs"
)

var (
	// ErrEmpty is returned when a single-entity body is null or blank.
	ErrEmpty = errors.New("empty body")
	// ErrTooDeep is returned when membership envelopes nest beyond the limit.
	ErrTooDeep = errors.New("membership map nested too deeply")
)

func logger() *slog.Logger { return logging.For("codec") }

func parseErr(what string, err error) error {
	return neterr.Permanent(neterr.WithKind(fmt.Errorf("decode %s: %w", what, err), neterr.ParseError))
}

func emptyErr(what string) error {
	return neterr.Permanent(neterr.WithKind(fmt.Errorf("decode %s: %w", what, ErrEmpty), neterr.NotFound))
}

func isBlank(data []byte) bool {
	t := bytes.TrimSpace(data)
	return len(t) == 0 || bytes.Equal(t, []byte("null"))
}

func unmarshal(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}

// decodeObject parses data as a JSON object; a non-object is an error.
func decodeObject(data []byte) (map[string]any, error) {
	var v any
	if err := unmarshal(data, &v); err != nil {
		return nil, err
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected object, got %T", v)
	}
	return obj, nil
}

// decodeCollection parses an object keyed by id. Non-object entries are
// skipped.
func decodeCollection(what string, data []byte, fn func(id string, obj map[string]any) error) error {
	if isBlank(data) {
		return nil
	}
	root, err := decodeObject(data)
	if err != nil {
		return parseErr(what, err)
	}
	ids := make([]string, 0, len(root))
	for id := range root {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		obj, ok := root[id].(map[string]any)
		if !ok {
			logger().Warn("skipping non-object entry", "collection", what, "id", id)
			continue
		}
		if err := fn(id, obj); err != nil {
			logger().Warn("skipping malformed entry", "collection", what, "id", id, "err", err)
		}
	}
	return nil
}

func decodeSingle(what string, data []byte) (map[string]any, error) {
	if isBlank(data) {
		return nil, emptyErr(what)
	}
	obj, err := decodeObject(data)
	if err != nil {
		return nil, parseErr(what, err)
	}
	return obj, nil
}

// DecodeGroups decodes GET Groups. A null body is an empty map.
func DecodeGroups(data []byte) (map[string]models.Group, error) {
	out := map[string]models.Group{}
	err := decodeCollection("groups", data, func(id string, obj map[string]any) error {
		g, err := groupFromObject(id, obj)
		if err != nil {
			return err
		}
		out[id] = g
		return nil
	})
	return out, err
}

func DecodeGroup(data []byte, id string) (models.Group, error) {
	obj, err := decodeSingle("group", data)
	if err != nil {
		return models.Group{}, err
	}
	g, err := groupFromObject(id, obj)
	if err != nil {
		return models.Group{}, parseErr("group", err)
	}
	return g, nil
}

func DecodeUsers(data []byte) (map[string]models.User, error) {
	out := map[string]models.User{}
	err := decodeCollection("users", data, func(id string, obj map[string]any) error {
		u, err := userFromObject(id, obj)
		if err != nil {
			return err
		}
		out[id] = u
		return nil
	})
	return out, err
}

func DecodeUser(data []byte, id string) (models.User, error) {
	obj, err := decodeSingle("user", data)
	if err != nil {
		return models.User{}, err
	}
	u, err := userFromObject(id, obj)
	if err != nil {
		return models.User{}, parseErr("user", err)
	}
	return u, nil
}

func DecodeMessages(data []byte) (map[string]models.ChatMessage, error) {
	out := map[string]models.ChatMessage{}
	err := decodeCollection("messages", data, func(id string, obj map[string]any) error {
		m := messageFromObject(id, obj)
		out[id] = m
		return nil
	})
	return out, err
}

func DecodeMessage(data []byte, id string) (models.ChatMessage, error) {
	obj, err := decodeSingle("message", data)
	if err != nil {
		return models.ChatMessage{}, err
	}
	return messageFromObject(id, obj), nil
}

func groupFromObject(id string, obj map[string]any) (models.Group, error) {
	g := models.Group{
		Key:         firstString(obj, FieldGroupKey),
		Name:        firstString(obj, FieldGroupName),
		AdminKey:    firstString(obj, FieldAdminKey),
		CreatedAt:   firstString(obj, FieldCreatedAt),
		Location:    firstString(obj, FieldLocation),
		Day:         firstString(obj, FieldDays),
		Month:       firstString(obj, FieldMonths),
		Year:        firstString(obj, FieldYears),
		Hour:        firstString(obj, FieldHours),
		Price:       firstString(obj, FieldPrice),
		Type:        asInt(obj[FieldType]),
		CanAdd:      asBool(obj[FieldCanAdd]),
		Description: firstString(obj, FieldDescription),
	}
	if g.Key == "" {
		g.Key = id
	}

	var err error
	if g.FriendKeys, err = membership(obj, FieldFriendKeys, "friendKeys"); err != nil {
		return g, err
	}
	if g.ComingKeys, err = membership(obj, FieldComingKeys, "comingKeys"); err != nil {
		return g, err
	}
	if g.MessageKeys, err = membership(obj, FieldMessageKeys, "messageKeys"); err != nil {
		return g, err
	}
	return g, nil
}

func userFromObject(id string, obj map[string]any) (models.User, error) {
	u := models.User{
		Key:             firstString(obj, FieldUserKey),
		Email:           firstString(obj, FieldEmail),
		Username:        firstString(obj, FieldUsername, "userName"),
		ProfileImageURL: firstString(obj, FieldProfileImageURL),
	}
	if u.Key == "" {
		u.Key = id
	}
	if u.Email == "" {
		u.Email = utils.DenormalizeUserKey(u.Key)
	}
	var err error
	u.FriendKeys, err = membership(obj, FieldUserFriendKeys, "FriendKeys")
	return u, err
}

func messageFromObject(id string, obj map[string]any) models.ChatMessage {
	m := models.ChatMessage{
		Key:     firstString(obj, FieldMessageKey, "MessageKey"),
		User:    firstString(obj, FieldMessageUser),
		Text:    firstString(obj, FieldMessageText),
		Time:    firstString(obj, FieldMessageTime),
		GroupID: firstString(obj, FieldGroupID, "GroupId"),
	}
	if m.Key == "" {
		m.Key = id
	}
	return m
}

// membership merges every present casing of a membership map.
func membership(obj map[string]any, names ...string) (models.KeySet, error) {
	out := models.KeySet{}
	for _, n := range names {
		v, ok := obj[n]
		if !ok || v == nil {
			continue
		}
		set, err := FlattenKeys(v, DefaultMaxDepth)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", n, err)
		}
		for k := range set {
			out.Add(k)
		}
	}
	return out, nil
}

func firstString(obj map[string]any, names ...string) string {
	for _, n := range names {
		if v, ok := obj[n]; ok && v != nil {
			return asString(v)
		}
	}
	return ""
}
