package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"partymaker/internal/models"
)

var errDissolve = errors.New("last member leaving")

// LeaveResult describes what LeaveGroup did.
type LeaveResult struct {
	Group    models.Group
	Deleted  bool
	NewAdmin string
	// CascadeErr holds follow-up delete failures when Deleted is true.
	CascadeErr error
}

// JoinGroup adds the user to FriendKeys and ComingKeys. Joining twice is a
// no-op.
func (r *Repository) JoinGroup(ctx context.Context, groupID, userKey string) (models.Group, error) {
	userKey = strings.TrimSpace(userKey)
	if userKey == "" {
		return models.Group{}, fmt.Errorf("%w: user key is required", ErrBadRequest)
	}
	return r.MutateGroup(ctx, groupID, func(g *models.Group) error {
		g.FriendKeys.Add(userKey)
		g.ComingKeys.Add(userKey)
		return nil
	})
}

// LeaveGroup removes the user from the group. When nobody else is left,
// admin included, the group is deleted with its messages. An admin leaving hands the
// group to the remaining member with the smallest key.
func (r *Repository) LeaveGroup(ctx context.Context, groupID, userKey string) (LeaveResult, error) {
	userKey = strings.TrimSpace(userKey)
	if userKey == "" {
		return LeaveResult{}, fmt.Errorf("%w: user key is required", ErrBadRequest)
	}

	var res LeaveResult
	g, err := r.MutateGroup(ctx, groupID, func(g *models.Group) error {
		// fn reruns after a conflict
		res.NewAdmin = ""
		if !g.IsMember(userKey) {
			return nil
		}
		rest := g.FriendKeys.Clone()
		if g.AdminKey != "" {
			rest.Add(g.AdminKey)
		}
		rest.Remove(userKey)
		if rest.Len() == 0 {
			return errDissolve
		}
		g.FriendKeys.Remove(userKey)
		g.ComingKeys.Remove(userKey)
		if g.AdminKey == userKey {
			g.AdminKey = g.FriendKeys.Keys()[0]
			res.NewAdmin = g.AdminKey
		}
		return nil
	})
	res.Group = g

	if errors.Is(err, errDissolve) {
		r.log.Info("last member left, deleting group", "group", groupID)
		if derr := r.DeleteGroup(ctx, groupID); derr != nil {
			return res, derr
		}
		res.Deleted = true
		res.CascadeErr = r.cleanupGroup(ctx, g)
		return res, nil
	}
	if err != nil {
		return res, err
	}
	return res, nil
}

// SetComing records the member's RSVP.
func (r *Repository) SetComing(ctx context.Context, groupID, userKey string, coming bool) (models.Group, error) {
	return r.MutateGroup(ctx, groupID, func(g *models.Group) error {
		if !g.IsMember(userKey) {
			return fmt.Errorf("%w: %s is not a member", ErrForbidden, userKey)
		}
		if coming {
			g.ComingKeys.Add(userKey)
		} else {
			g.ComingKeys.Remove(userKey)
		}
		return nil
	})
}

// InviteFriends adds keys to FriendKeys. Only the admin may invite unless
// the group allows members to add people.
func (r *Repository) InviteFriends(ctx context.Context, groupID, actorKey string, keys []string) (models.Group, error) {
	if len(keys) == 0 {
		return models.Group{}, fmt.Errorf("%w: no users to invite", ErrBadRequest)
	}
	return r.MutateGroup(ctx, groupID, func(g *models.Group) error {
		if actorKey != g.AdminKey && !(g.CanAdd && g.IsMember(actorKey)) {
			return fmt.Errorf("%w: %s cannot invite to %s", ErrForbidden, actorKey, g.Key)
		}
		for _, k := range keys {
			g.FriendKeys.Add(k)
		}
		return nil
	})
}

// RemoveFriends drops members from the group. The admin is never removed.
func (r *Repository) RemoveFriends(ctx context.Context, groupID string, keys []string) (models.Group, error) {
	return r.MutateGroup(ctx, groupID, func(g *models.Group) error {
		for _, k := range keys {
			if k == g.AdminKey {
				continue
			}
			g.FriendKeys.Remove(k)
			g.ComingKeys.Remove(k)
		}
		return nil
	})
}
