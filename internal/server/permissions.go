package server

import (
	"context"
	"errors"

	"github.com/peykchat/peyk/internal/database"
	"github.com/peykchat/peyk/internal/types"
)

// Permission checks one authorization rule. Allow runs before the
// handler with the validated content; AllowObject additionally runs
// for every entity the param pipeline resolved. A nil error grants.
type Permission interface {
	Allow(ctx context.Context, s *Session, c *Content) error
	AllowObject(ctx context.Context, s *Session, c *Content, obj any) error
}

type andPerm struct{ perms []Permission }

// And grants only when every permission grants, evaluated in order.
func And(perms ...Permission) Permission {
	return andPerm{perms: perms}
}

func (p andPerm) Allow(ctx context.Context, s *Session, c *Content) error {
	for _, perm := range p.perms {
		if err := perm.Allow(ctx, s, c); err != nil {
			return err
		}
	}
	return nil
}

func (p andPerm) AllowObject(ctx context.Context, s *Session, c *Content, obj any) error {
	for _, perm := range p.perms {
		if err := perm.AllowObject(ctx, s, c, obj); err != nil {
			return err
		}
	}
	return nil
}

type orPerm struct{ perms []Permission }

// Or grants when any one permission grants.
func Or(perms ...Permission) Permission {
	return orPerm{perms: perms}
}

func (p orPerm) Allow(ctx context.Context, s *Session, c *Content) error {
	var last error
	for _, perm := range p.perms {
		if last = perm.Allow(ctx, s, c); last == nil {
			return nil
		}
	}
	return last
}

func (p orPerm) AllowObject(ctx context.Context, s *Session, c *Content, obj any) error {
	var last error
	for _, perm := range p.perms {
		if last = perm.AllowObject(ctx, s, c, obj); last == nil {
			return nil
		}
	}
	return last
}

type notPerm struct{ perm Permission }

// Not inverts a permission.
func Not(perm Permission) Permission {
	return notPerm{perm: perm}
}

func (p notPerm) Allow(ctx context.Context, s *Session, c *Content) error {
	if err := p.perm.Allow(ctx, s, c); err != nil {
		return nil
	}
	return errPermissionDenied(actionOf(c))
}

func (p notPerm) AllowObject(ctx context.Context, s *Session, c *Content, obj any) error {
	if err := p.perm.AllowObject(ctx, s, c, obj); err != nil {
		return nil
	}
	return errPermissionDenied(actionOf(c))
}

func actionOf(c *Content) string {
	if c == nil {
		return ""
	}
	return c.Action
}

// BasePermission grants everything; concrete permissions embed it and
// override the hook they care about.
type BasePermission struct{}

func (BasePermission) Allow(context.Context, *Session, *Content) error {
	return nil
}

func (BasePermission) AllowObject(context.Context, *Session, *Content, any) error {
	return nil
}

// IsAuthenticated is the global connect-time permission.
type IsAuthenticated struct{ BasePermission }

func (IsAuthenticated) Allow(_ context.Context, s *Session, c *Content) error {
	if s == nil || s.user.Id == 0 {
		return errPermissionDenied(actionOf(c))
	}
	return nil
}

// IsOwnerOfItem grants when the resolved object belongs to the
// session's user.
type IsOwnerOfItem struct{ BasePermission }

func (IsOwnerOfItem) AllowObject(_ context.Context, s *Session, c *Content, obj any) error {
	switch v := obj.(type) {
	case database.Message:
		if v.SenderId == s.user.Id {
			return nil
		}
	case types.Message:
		if v.SenderId == s.user.Id {
			return nil
		}
	}
	return errPermissionDenied(actionOf(c))
}

// IsNotOwnerOfItem denies when a resolved object belongs to the
// session's user. The content hook stays open: the rule only bites
// once the param pipeline resolved the object.
type IsNotOwnerOfItem struct{ BasePermission }

func (IsNotOwnerOfItem) AllowObject(_ context.Context, s *Session, c *Content, obj any) error {
	switch v := obj.(type) {
	case database.Message:
		if v.SenderId == s.user.Id {
			return errPermissionDenied(actionOf(c))
		}
	case types.Message:
		if v.SenderId == s.user.Id {
			return errPermissionDenied(actionOf(c))
		}
	}
	return nil
}

// IsCommunityAdmin grants when the session's user holds admin rank or
// above in the community the frame's chat_id resolves to.
type IsCommunityAdmin struct {
	BasePermission
	db database.Repository
}

func (p IsCommunityAdmin) AllowObject(ctx context.Context, s *Session, c *Content, _ any) error {
	chatId, ok := c.Value("chat_id")
	if !ok || chatId >= 0 {
		return errPermissionDenied(actionOf(c))
	}

	rank, err := p.db.GetMemberRank(ctx, chatId, s.user.Id)
	if err != nil {
		if errors.Is(err, database.ErrNotMember) {
			return errPermissionDenied(actionOf(c))
		}
		return err
	}
	if types.Rank(rank) < types.RankAdmin {
		return errPermissionDenied(actionOf(c))
	}
	return nil
}
