package server

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/peykchat/peyk/internal/database"
	"github.com/peykchat/peyk/internal/types"
)

var (
	chatIdRe    = regexp.MustCompile(`^-?\d+$`)
	messageIdRe = regexp.MustCompile(`^\d+$`)
)

// maxTextLen caps message text well under the socket read limit so a
// maximal frame still fits with its envelope.
const maxTextLen = 4096

func toUser(u database.User) types.User {
	return types.User{
		Id:        u.Id,
		Username:  u.Username,
		Email:     u.EmailAddress,
		Bio:       u.Bio,
		LastSeen:  u.LastSeen,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

func toMessage(m database.Message) types.Message {
	return types.Message{
		Id:              m.Id,
		ChatId:          m.ChatId,
		SenderId:        m.SenderId,
		ContentType:     m.ContentType,
		Text:            m.Text,
		ForwardedFromId: m.ForwardedFromId,
		IsEdited:        m.IsEdited,
		IsDeleted:       m.IsDeleted,
		SentAt:          m.SentAt,
		EditedAt:        m.EditedAt,
	}
}

// chatParam resolves the client-supplied id to a canonical chat id
// and checks the user may address it. Community ids additionally
// require an existing conversation row; private ids are resolved (and
// possibly created) by the resolver, which guarantees participation.
func (ms *MessengerServer) chatParam(name string) Param {
	return Param{
		Name:  name,
		Regex: chatIdRe,
		Validate: func(ctx context.Context, s *Session, value int64) (int64, error) {
			chatId, err := ms.resolver.ResolveChatId(ctx, value, s.user.Id)
			if err != nil {
				return 0, err
			}
			if chatId < 0 {
				ok, err := ms.db.ConversationExists(ctx, chatId, s.user.Id)
				if err != nil {
					return 0, err
				}
				if !ok {
					// non-members get the same answer as for a chat
					// that doesn't exist
					return 0, ErrChatNotFound
				}
			}
			return chatId, nil
		},
	}
}

// messageParam fetches the referenced message scoped to the chat a
// sibling param resolved, so a valid message id in the wrong chat
// reads as absent.
func (ms *MessengerServer) messageParam(chatParamName string) Param {
	return Param{
		Name:      "message_id",
		Regex:     messageIdRe,
		DependsOn: []string{chatParamName},
		Lookup: func(ctx context.Context, s *Session, c *Content, value int64) (any, error) {
			chatId, _ := c.Value(chatParamName)
			return ms.db.GetMessage(ctx, value, chatId)
		},
	}
}

func authOnly(*Content) Permission {
	return IsAuthenticated{}
}

func (ms *MessengerServer) registerActions() {
	ms.dispatcher.Register(Action{
		Name:    "send_message",
		Params:  []Param{ms.chatParam("chat_id")},
		Perms:   authOnly,
		Handler: ms.handleSendMessage,
	})
	ms.dispatcher.Register(Action{
		Name:   "update_message",
		Params: []Param{ms.chatParam("chat_id"), ms.messageParam("chat_id")},
		Perms: func(*Content) Permission {
			return And(IsAuthenticated{}, IsOwnerOfItem{})
		},
		Handler: ms.handleUpdateMessage,
	})
	ms.dispatcher.Register(Action{
		Name:   "delete_message",
		Params: []Param{ms.chatParam("chat_id"), ms.messageParam("chat_id")},
		Perms: func(c *Content) Permission {
			if !c.BodyBool("hard") {
				// any member may remove a message from their own view
				return IsAuthenticated{}
			}
			if chatId, ok := c.Value("chat_id"); ok && chatId < 0 {
				return And(IsAuthenticated{}, Or(IsOwnerOfItem{}, IsCommunityAdmin{db: ms.db}))
			}
			return And(IsAuthenticated{}, IsOwnerOfItem{})
		},
		Handler: ms.handleDeleteMessage,
	})
	ms.dispatcher.Register(Action{
		Name:   "seen_message",
		Params: []Param{ms.chatParam("chat_id"), ms.messageParam("chat_id")},
		Perms: func(*Content) Permission {
			return And(IsAuthenticated{}, IsNotOwnerOfItem{})
		},
		Handler: ms.handleSeenMessage,
	})
	ms.dispatcher.Register(Action{
		Name: "forward_message",
		Params: []Param{
			ms.chatParam("chat_id"),
			ms.chatParam("from_chat_id"),
			ms.messageParam("from_chat_id"),
		},
		Perms:   authOnly,
		Handler: ms.handleForwardMessage,
	})
	ms.dispatcher.Register(Action{
		Name:    "ping",
		Perms:   authOnly,
		Handler: ms.handlePing,
	})
}

// messageContent pulls the text body out of an inbound frame. Only
// text content is supported.
func messageContent(c *Content) (string, *ConsumerError) {
	if ct := c.BodyString("content_type"); ct != "" && ct != types.ContentText {
		return "", errValidation(c.Action, map[string][]string{
			"content_type": {"Unsupported content type"},
		})
	}

	text, _ := c.BodyMap("content")["text"].(string)
	if strings.TrimSpace(text) == "" {
		return "", errValidation(c.Action, map[string][]string{
			"content": {msgRequired},
		})
	}
	if len(text) > maxTextLen {
		return "", errValidation(c.Action, map[string][]string{
			"content": {"Message text too long"},
		})
	}
	return text, nil
}

func (ms *MessengerServer) handleSendMessage(ctx context.Context, s *Session, c *Content) (any, error) {
	text, verr := messageContent(c)
	if verr != nil {
		return nil, verr
	}
	chatId, _ := c.Value("chat_id")

	msg, err := ms.db.CreateMessage(ctx, database.CreateMessageParams{
		ChatId:      chatId,
		SenderId:    s.user.Id,
		ContentType: types.ContentText,
		Text:        text,
	})
	if err != nil {
		return nil, err
	}

	ms.engine.MessageCreated(toMessage(msg))
	return map[string]any{"message": serializeMessage(toMessage(msg))}, nil
}

func (ms *MessengerServer) handleUpdateMessage(ctx context.Context, s *Session, c *Content) (any, error) {
	text, verr := messageContent(c)
	if verr != nil {
		return nil, verr
	}
	messageId, _ := c.Value("message_id")

	msg, err := ms.db.UpdateMessageContent(ctx, database.UpdateMessageParams{
		MessageId: messageId,
		Text:      text,
	})
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, errNotFound(c.Action, "Message")
		}
		return nil, err
	}

	ms.engine.MessageEdited(toMessage(msg))
	return map[string]any{"message": serializeMessage(toMessage(msg))}, nil
}

func (ms *MessengerServer) handleDeleteMessage(ctx context.Context, s *Session, c *Content) (any, error) {
	chatId, _ := c.Value("chat_id")
	messageId, _ := c.Value("message_id")
	hard := c.BodyBool("hard")

	if hard {
		if err := ms.db.HardDeleteMessage(ctx, messageId); err != nil {
			if errors.Is(err, database.ErrNotFound) {
				return nil, errNotFound(c.Action, "Message")
			}
			return nil, err
		}
		ms.engine.MessageHardDeleted(chatId, messageId)
	} else {
		// get-or-create: deleting twice reports success both times
		if _, _, err := ms.db.CreateDeletedMessage(ctx, messageId, s.user.Id); err != nil {
			return nil, err
		}
		ms.engine.MessageDeletedFor(ctx, s.user.Id, messageId)
	}

	return map[string]any{"message_id": messageId, "hard": hard}, nil
}

func (ms *MessengerServer) handleSeenMessage(ctx context.Context, s *Session, c *Content) (any, error) {
	chatId, _ := c.Value("chat_id")
	messageId, _ := c.Value("message_id")

	seen, err := ms.db.CreateSeen(ctx, messageId, s.user.Id)
	if err != nil {
		if errors.Is(err, database.ErrAlreadySeen) {
			return nil, errAlreadySeen(c.Action)
		}
		return nil, err
	}

	typed := types.Seen{MessageId: seen.MessageId, UserId: seen.UserId, SeenAt: seen.SeenAt}
	ms.engine.MessageSeen(chatId, typed)
	return map[string]any{
		"message_id": typed.MessageId,
		"seen_at":    typed.SeenAt,
	}, nil
}

func (ms *MessengerServer) handleForwardMessage(ctx context.Context, s *Session, c *Content) (any, error) {
	chatId, _ := c.Value("chat_id")

	obj, ok := c.Object("message_id")
	src, isMsg := obj.(database.Message)
	if !ok || !isMsg {
		return nil, errNotFound(c.Action, "Message")
	}

	// forwarding a forward keeps pointing at the original author
	origin := src.SenderId
	if src.ForwardedFromId != 0 {
		origin = src.ForwardedFromId
	}

	msg, err := ms.db.CreateMessage(ctx, database.CreateMessageParams{
		ChatId:          chatId,
		SenderId:        s.user.Id,
		ContentType:     src.ContentType,
		Text:            src.Text,
		ForwardedFromId: origin,
	})
	if err != nil {
		return nil, err
	}

	ms.engine.MessageCreated(toMessage(msg))
	return map[string]any{"message": serializeMessage(toMessage(msg))}, nil
}

// handlePing refreshes presence. Clients send it periodically while
// the app is foregrounded; peers infer offline from last_seen aging
// past the threshold.
func (ms *MessengerServer) handlePing(ctx context.Context, s *Session, c *Content) (any, error) {
	user, err := ms.markOnline(ctx, s)
	if err != nil {
		return nil, err
	}
	return map[string]any{"last_seen": user.LastSeen}, nil
}
