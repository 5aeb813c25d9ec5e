package codec

import (
	"encoding/json"
	"fmt"

	"partymaker/internal/models"
)

type groupWire struct {
	GroupKey    string          `json:"groupKey"`
	GroupName   string          `json:"groupName"`
	AdminKey    string          `json:"adminKey"`
	CreatedAt   string          `json:"createdAt"`
	Location    string          `json:"groupLocation"`
	Days        string          `json:"groupDays"`
	Months      string          `json:"groupMonths"`
	Years       string          `json:"groupYears"`
	Hours       string          `json:"groupHours"`
	Price       string          `json:"groupPrice"`
	Type        int             `json:"groupType"`
	CanAdd      bool            `json:"canAdd"`
	Description string          `json:"groupDescription,omitempty"`
	FriendKeys  map[string]bool `json:"FriendKeys"`
	ComingKeys  map[string]bool `json:"ComingKeys"`
	MessageKeys map[string]bool `json:"MessageKeys"`
}

type userWire struct {
	UserKey         string          `json:"userKey,omitempty"`
	Email           string          `json:"email"`
	Username        string          `json:"username"`
	ProfileImageURL string          `json:"profileImageUrl,omitempty"`
	FriendKeys      map[string]bool `json:"friendKeys,omitempty"`
}

type messageWire struct {
	MessageKey  string `json:"messageKey"`
	MessageUser string `json:"messageUser"`
	MessageText string `json:"messageText"`
	MessageTime string `json:"messageTime"`
	GroupID     string `json:"groupId"`
}

// SetValue is the wire form of a membership set.
func SetValue(s models.KeySet) map[string]bool {
	out := make(map[string]bool, len(s))
	for k := range s {
		out[k] = true
	}
	return out
}

func EncodeGroup(g models.Group) ([]byte, error) {
	return json.Marshal(groupWire{
		GroupKey:    g.Key,
		GroupName:   g.Name,
		AdminKey:    g.AdminKey,
		CreatedAt:   g.CreatedAt,
		Location:    g.Location,
		Days:        g.Day,
		Months:      g.Month,
		Years:       g.Year,
		Hours:       g.Hour,
		Price:       g.Price,
		Type:        g.Type,
		CanAdd:      g.CanAdd,
		Description: g.Description,
		FriendKeys:  SetValue(g.FriendKeys),
		ComingKeys:  SetValue(g.ComingKeys),
		MessageKeys: SetValue(g.MessageKeys),
	})
}

func EncodeUser(u models.User) ([]byte, error) {
	w := userWire{
		UserKey:         u.Key,
		Email:           u.Email,
		Username:        u.Username,
		ProfileImageURL: u.ProfileImageURL,
	}
	if len(u.FriendKeys) > 0 {
		w.FriendKeys = SetValue(u.FriendKeys)
	}
	return json.Marshal(w)
}

func EncodeMessage(m models.ChatMessage) ([]byte, error) {
	return json.Marshal(messageWire{
		MessageKey:  m.Key,
		MessageUser: m.User,
		MessageText: m.Text,
		MessageTime: m.Time,
		GroupID:     m.GroupID,
	})
}

// EncodeFields encodes a partial update. KeySet values become {"k": true}.
func EncodeFields(fields map[string]any) ([]byte, error) {
	if len(fields) == 0 {
		return nil, fmt.Errorf("encode fields: %w", ErrEmpty)
	}
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		switch t := v.(type) {
		case models.KeySet:
			out[k] = SetValue(t)
		default:
			out[k] = v
		}
	}
	return json.Marshal(out)
}

// EncodeGroupFields is EncodeFields for group updates.
func EncodeGroupFields(fields map[string]any) ([]byte, error) {
	return EncodeFields(fields)
}

// GroupChanges lists the wire fields that differ between two snapshots.
// Membership sets are replaced whole.
func GroupChanges(before, after models.Group) map[string]any {
	out := map[string]any{}
	str := func(field, a, b string) {
		if a != b {
			out[field] = b
		}
	}
	str(FieldGroupName, before.Name, after.Name)
	str(FieldAdminKey, before.AdminKey, after.AdminKey)
	str(FieldCreatedAt, before.CreatedAt, after.CreatedAt)
	str(FieldLocation, before.Location, after.Location)
	str(FieldDays, before.Day, after.Day)
	str(FieldMonths, before.Month, after.Month)
	str(FieldYears, before.Year, after.Year)
	str(FieldHours, before.Hour, after.Hour)
	str(FieldPrice, before.Price, after.Price)
	str(FieldDescription, before.Description, after.Description)
	if before.Type != after.Type {
		out[FieldType] = after.Type
	}
	if before.CanAdd != after.CanAdd {
		out[FieldCanAdd] = after.CanAdd
	}
	if !before.FriendKeys.Equal(after.FriendKeys) {
		out[FieldFriendKeys] = after.FriendKeys.Clone()
	}
	if !before.ComingKeys.Equal(after.ComingKeys) {
		out[FieldComingKeys] = after.ComingKeys.Clone()
	}
	if !before.MessageKeys.Equal(after.MessageKeys) {
		out[FieldMessageKeys] = after.MessageKeys.Clone()
	}
	return out
}
