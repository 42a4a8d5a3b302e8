package server

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/peykchat/peyk/internal/cache"
	"github.com/peykchat/peyk/internal/database"
)

// ErrChatNotFound covers every way a chat reference can fail to
// resolve for a user, including chats that exist but aren't theirs.
var ErrChatNotFound = errors.New("chat not found")

// GroupResolver computes the broadcast groups a user belongs to and
// resolves client-supplied chat ids to canonical ones.
type GroupResolver struct {
	db    database.Repository
	cache *cache.AppCache
	log   zerolog.Logger

	// onPrivateChatCreated runs after a private chat is created and
	// its caches are refreshed; the server wires it to the fan-out
	// engine's group-join directive.
	onPrivateChatCreated func(chat database.PrivateChat)
}

func NewGroupResolver(db database.Repository, appCache *cache.AppCache, log zerolog.Logger) *GroupResolver {
	return &GroupResolver{db: db, cache: appCache, log: log}
}

// ChatGroups returns every chat id the user has a conversation for.
// Used once at connect to seed the session's group set.
func (r *GroupResolver) ChatGroups(ctx context.Context, userId int64) ([]int64, error) {
	return r.db.ListConversationChatIds(ctx, userId)
}

// PrivateChatGroups returns the user's private-chat ids, the presence
// fan-out target set. Read-through cached; writers refresh the entry
// on private-chat creation so presence never reads a stale set.
func (r *GroupResolver) PrivateChatGroups(ctx context.Context, userId int64) ([]int64, error) {
	if ids, ok := r.cache.PrivateChatGroups(ctx, userId); ok {
		return ids, nil
	}
	return r.refreshPrivateChatGroups(ctx, userId)
}

func (r *GroupResolver) refreshPrivateChatGroups(ctx context.Context, userId int64) ([]int64, error) {
	ids, err := r.db.ListPrivateChatIds(ctx, userId)
	if err != nil {
		return nil, fmt.Errorf("list private chats: %w", err)
	}
	if err := r.cache.SetPrivateChatGroups(ctx, userId, ids); err != nil {
		r.log.Warn().Err(err).Int64("user_id", userId).Msg("cache private chat groups")
	}
	return ids, nil
}

// ResolveChatId turns a client-supplied candidate into a canonical
// chat id. Negative candidates are community ids and pass through.
// Positive candidates are peer user ids: the existing private chat is
// found, or one is created transactionally. Zero never resolves.
func (r *GroupResolver) ResolveChatId(ctx context.Context, candidate, userId int64) (int64, error) {
	if candidate < 0 {
		return candidate, nil
	}
	if candidate == 0 || candidate == userId {
		return 0, ErrChatNotFound
	}

	if id, ok := r.cache.PrivateChatId(ctx, userId, candidate); ok {
		return id, nil
	}

	chat, err := r.db.GetPrivateChatByUsers(ctx, userId, candidate)
	if errors.Is(err, database.ErrNotFound) {
		chat, err = r.db.CreatePrivateChat(ctx, userId, candidate)
		if errors.Is(err, database.ErrNotFound) {
			// the candidate isn't a user either
			return 0, ErrChatNotFound
		}
		if err != nil {
			return 0, fmt.Errorf("create private chat: %w", err)
		}

		for _, participant := range chat.UserIds {
			if _, err := r.refreshPrivateChatGroups(ctx, participant); err != nil {
				r.log.Warn().Err(err).Int64("user_id", participant).Msg("refresh private chat groups")
			}
		}
		if r.onPrivateChatCreated != nil {
			r.onPrivateChatCreated(chat)
		}
	} else if err != nil {
		return 0, fmt.Errorf("get private chat: %w", err)
	}

	if err := r.cache.SetPrivateChatId(ctx, userId, candidate, chat.Id); err != nil {
		r.log.Warn().Err(err).Msg("cache private chat id")
	}
	return chat.Id, nil
}
