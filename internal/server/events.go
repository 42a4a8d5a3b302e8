package server

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/peykchat/peyk/internal/cache"
	"github.com/peykchat/peyk/internal/database"
	"github.com/peykchat/peyk/internal/stats"
	"github.com/peykchat/peyk/internal/transport"
	"github.com/peykchat/peyk/internal/types"
)

// Engine publishes domain events to the groups that must hear them.
// All methods are called strictly after the triggering storage write
// returned, and a failed publish is logged and dropped: real-time
// delivery is best-effort, clients reconcile over the REST history.
type Engine struct {
	transport transport.Transport
	cache     *cache.AppCache
	resolver  *GroupResolver
	log       zerolog.Logger
	stats     stats.Provider
}

func NewEngine(tr transport.Transport, appCache *cache.AppCache, resolver *GroupResolver,
	log zerolog.Logger, st stats.Provider) *Engine {
	return &Engine{transport: tr, cache: appCache, resolver: resolver, log: log, stats: st}
}

func (e *Engine) publish(group string, ev transport.Event) {
	if err := e.transport.Publish(group, ev); err != nil {
		e.stats.Incr(stats.PublishesDropped)
		e.log.Warn().Err(err).Str("group", group).Str("kind", ev.Kind).Msg("publish dropped")
		return
	}
	e.stats.Incr(stats.EventsPublished)
}

func serializeMessage(msg types.Message) map[string]any {
	payload := map[string]any{
		"id":           msg.Id,
		"chat_id":      msg.ChatId,
		"sender_id":    msg.SenderId,
		"content_type": msg.ContentType,
		"content":      map[string]any{"text": msg.Text},
		"is_edited":    msg.IsEdited,
		"sent_at":      msg.SentAt.Format(time.RFC3339Nano),
	}
	if msg.ForwardedFromId != 0 {
		payload["forwarded_from"] = msg.ForwardedFromId
	}
	if msg.IsEdited && !msg.EditedAt.IsZero() {
		payload["edited_at"] = msg.EditedAt.Format(time.RFC3339Nano)
	}
	return payload
}

// MessageCreated fans a new message out to its chat group.
func (e *Engine) MessageCreated(msg types.Message) {
	e.publish(types.NewChatRef(msg.ChatId).Group(), transport.Event{
		Kind:      transport.KindMessage,
		Title:     "receive_message",
		MessageId: msg.Id,
		Payload:   map[string]any{"message": serializeMessage(msg)},
	})
}

// MessageEdited fans an edited message out to its chat group.
func (e *Engine) MessageEdited(msg types.Message) {
	e.publish(types.NewChatRef(msg.ChatId).Group(), transport.Event{
		Kind:      transport.KindMessage,
		Title:     "message_edited",
		MessageId: msg.Id,
		Payload:   map[string]any{"message": serializeMessage(msg)},
	})
}

// MessageSeen announces a seen receipt to the chat group.
func (e *Engine) MessageSeen(chatId int64, seen types.Seen) {
	e.publish(types.NewChatRef(chatId).Group(), transport.Event{
		Kind:      transport.KindMessage,
		Title:     "message_seen",
		MessageId: seen.MessageId,
		Payload: map[string]any{
			"message_id": seen.MessageId,
			"user_id":    seen.UserId,
			"seen_at":    seen.SeenAt.Format(time.RFC3339Nano),
		},
	})
}

// MessageHardDeleted announces a visible-to-nobody delete to the whole
// chat group. Receivers still consult the per-user suppression cache,
// so a viewer who already removed the message for themselves hears
// nothing.
func (e *Engine) MessageHardDeleted(chatId, messageId int64) {
	e.publish(types.NewChatRef(chatId).Group(), transport.Event{
		Kind:      transport.KindHardDelete,
		Title:     "delete_message",
		MessageId: messageId,
		Payload:   map[string]any{"message_id": messageId, "hard": true},
	})
}

// MessageDeletedFor records a per-viewer delete and tells only the
// deleting user's own connections. The suppression marker is written
// before the publish so no event for this message can slip past it.
func (e *Engine) MessageDeletedFor(ctx context.Context, userId, messageId int64) {
	if err := e.cache.MarkMessageDeletedFor(ctx, messageId, userId); err != nil {
		e.log.Error().Err(err).Int64("message_id", messageId).Int64("user_id", userId).
			Msg("mark message deleted")
	}

	e.publish(types.UserGroup(userId), transport.Event{
		Kind:      transport.KindMessage,
		Title:     "delete_message",
		MessageId: 0, // not suppressible: this is the delete confirmation itself
		Payload:   map[string]any{"message_id": messageId, "hard": false},
	})
}

// UserOnline fans a presence transition out pairwise: one publish per
// private chat the user participates in, never to community groups.
// Sessions drop presence events about their own user.
func (e *Engine) UserOnline(ctx context.Context, user types.User) {
	chatIds, err := e.resolver.PrivateChatGroups(ctx, user.Id)
	if err != nil {
		e.log.Error().Err(err).Int64("user_id", user.Id).Msg("resolve presence groups")
		return
	}

	payload := map[string]any{
		"user": map[string]any{
			"id":        user.Id,
			"username":  user.Username,
			"last_seen": user.LastSeen.Format(time.RFC3339Nano),
			"is_online": true,
		},
	}
	for _, chatId := range chatIds {
		e.publish(types.NewChatRef(chatId).Group(), transport.Event{
			Kind:    transport.KindOnline,
			Title:   "user_online",
			UserId:  user.Id,
			Payload: payload,
		})
	}
}

// PrivateChatCreated directs each participant's live sessions to
// subscribe to the new chat group without reconnecting. The first
// message to a brand-new chat can still race ahead of this directive
// on the receiving side; the transport gives no cross-group ordering.
func (e *Engine) PrivateChatCreated(chat database.PrivateChat) {
	group := types.NewChatRef(chat.Id).Group()
	for _, userId := range chat.UserIds {
		e.publish(types.UserGroup(userId), transport.Event{
			Kind:      transport.KindGroupJoin,
			GroupName: group,
		})
	}
}

// ConversationAdded directs the user's live sessions to subscribe to
// a chat group they gained access to, e.g. after joining a community.
func (e *Engine) ConversationAdded(chatId, userId int64) {
	e.publish(types.UserGroup(userId), transport.Event{
		Kind:      transport.KindGroupJoin,
		GroupName: types.NewChatRef(chatId).Group(),
	})
}

// ConversationRemoved directs the user's live sessions to leave the
// chat group, e.g. after leaving a community.
func (e *Engine) ConversationRemoved(chatId, userId int64) {
	e.publish(types.UserGroup(userId), transport.Event{
		Kind:      transport.KindGroupLeave,
		GroupName: types.NewChatRef(chatId).Group(),
	})
}
