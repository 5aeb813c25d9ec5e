package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"partymaker/internal/codec"
	"partymaker/internal/models"
)

// Receipt reports a sent message. IndexErr is set when the message was
// stored but the group's MessageKeys index could not be updated.
type Receipt struct {
	Message  models.ChatMessage
	IndexErr error
}

// GetMessages returns the group's chat messages sorted by key. A message
// belongs to the group when the group's MessageKeys lists it or its groupId
// points back at the group. Failures yield an empty list.
func (r *Repository) GetMessages(ctx context.Context, groupID string) []models.ChatMessage {
	msgs, err := r.FetchMessages(ctx, groupID)
	if err != nil {
		r.log.Error("get messages failed", "group", groupID, "err", err)
		return []models.ChatMessage{}
	}
	return msgs
}

// FetchMessages is GetMessages returning the failure, including a failed
// group lookup.
func (r *Repository) FetchMessages(ctx context.Context, groupID string) ([]models.ChatMessage, error) {
	if strings.TrimSpace(groupID) == "" {
		return nil, fmt.Errorf("%w: group id is required", ErrBadRequest)
	}
	g, err := r.GetGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	return r.messagesFor(ctx, g)
}

func (r *Repository) messagesFor(ctx context.Context, g models.Group) ([]models.ChatMessage, error) {
	data, _, err := r.get(ctx, PathMessages, r.opts.FetchTimeout)
	if err != nil {
		return nil, err
	}
	all, err := codec.DecodeMessages(data)
	if err != nil {
		return nil, err
	}

	out := make([]models.ChatMessage, 0, len(g.MessageKeys))
	for id, m := range all {
		if g.MessageKeys.Has(id) || m.GroupID == g.Key {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// SaveMessage stores the message and then adds it to the group's
// MessageKeys. An empty messageID gets a generated, time-ordered key.
func (r *Repository) SaveMessage(ctx context.Context, groupID, messageID string, msg models.ChatMessage) (Receipt, error) {
	groupID = strings.TrimSpace(groupID)
	if groupID == "" {
		return Receipt{}, fmt.Errorf("%w: group id is required", ErrBadRequest)
	}
	if strings.TrimSpace(msg.Text) == "" {
		return Receipt{}, fmt.Errorf("%w: message text is required", ErrBadRequest)
	}
	if messageID == "" {
		messageID = r.opts.NewKey()
	}
	msg.Key = messageID
	msg.GroupID = groupID

	body, err := codec.EncodeMessage(msg)
	if err != nil {
		return Receipt{}, fmt.Errorf("%w: encode message: %w", ErrSaveFailed, err)
	}
	if err := r.post(ctx, messagePath(messageID), body); err != nil {
		return Receipt{}, fmt.Errorf("%w: message %s: %w", ErrSaveFailed, messageID, err)
	}

	rc := Receipt{Message: msg}
	_, err = r.MutateGroup(ctx, groupID, func(g *models.Group) error {
		g.MessageKeys.Add(messageID)
		return nil
	})
	if err != nil {
		r.log.Warn("message stored but index update failed", "group", groupID, "message", messageID, "err", err)
		rc.IndexErr = err
	}
	return rc, nil
}

// DeleteMessage removes one message and its index entry.
func (r *Repository) DeleteMessage(ctx context.Context, groupID, messageID string) error {
	if strings.TrimSpace(messageID) == "" {
		return fmt.Errorf("%w: message id is required", ErrBadRequest)
	}
	if err := r.delete(ctx, messagePath(messageID)); err != nil {
		return err
	}
	if groupID == "" {
		return nil
	}
	_, err := r.MutateGroup(ctx, groupID, func(g *models.Group) error {
		g.MessageKeys.Remove(messageID)
		return nil
	})
	return err
}
