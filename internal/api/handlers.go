package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/peykchat/peyk/internal/database"
	"github.com/peykchat/peyk/internal/server"
	"github.com/peykchat/peyk/internal/types"
)

func userResponse(u database.User) types.User {
	user := types.User{
		Id:        u.Id,
		Username:  u.Username,
		Email:     u.EmailAddress,
		Bio:       u.Bio,
		LastSeen:  u.LastSeen,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
	user.IsOnline = user.Online(time.Now())
	return user
}

func messageResponse(m database.Message) types.Message {
	return types.Message{
		Id:              m.Id,
		ChatId:          m.ChatId,
		SenderId:        m.SenderId,
		ContentType:     m.ContentType,
		Text:            m.Text,
		ForwardedFromId: m.ForwardedFromId,
		IsEdited:        m.IsEdited,
		SentAt:          m.SentAt,
		EditedAt:        m.EditedAt,
	}
}

type CreateChatRequest struct {
	UserId int64 `json:"user_id"`
}

// createChat resolves (or creates) the private chat with another
// user. The response is the canonical chat id clients address frames
// to.
func (a *PeykApp) createChat(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		a.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req CreateChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		a.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	chatId, err := a.ms.Resolver().ResolveChatId(r.Context(), req.UserId, userId)
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, server.ErrChatNotFound) {
			errResp = NewNotFoundError()
		} else {
			errResp = NewInternalServerError(err)
		}
		a.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	a.writeJson(w, http.StatusOK, map[string]any{"chat_id": chatId})
}

type CreateCommunityRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (a *PeykApp) createCommunity(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		a.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req CreateCommunityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		errResp := NewBadRequestError()
		a.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	community, err := a.db.CreateCommunity(r.Context(), database.CreateCommunityParams{
		Name:        req.Name,
		Description: req.Description,
		OwnerId:     userId,
	})
	if err != nil {
		errResp := NewInternalServerError(err)
		a.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	a.ms.Engine().ConversationAdded(community.Id, userId)

	a.writeJson(w, http.StatusCreated, types.Community{
		Id:          community.Id,
		Name:        community.Name,
		Description: community.Description,
		InviteLink:  community.InviteLink,
		OwnerId:     community.OwnerId,
		CreatedAt:   community.CreatedAt,
	})
}

type JoinCommunityRequest struct {
	InviteLink string `json:"invite_link"`
}

func (a *PeykApp) joinCommunity(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		a.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req JoinCommunityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.InviteLink == "" {
		errResp := NewBadRequestError()
		a.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	community, err := a.db.GetCommunityByInviteLink(r.Context(), req.InviteLink)
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, database.ErrNotFound) {
			errResp = NewNotFoundError()
		} else {
			errResp = NewInternalServerError(err)
		}
		a.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	member, err := a.db.JoinCommunity(r.Context(), community.Id, userId)
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, database.ErrAlreadyExist) {
			errResp = NewConflictError()
		} else {
			errResp = NewInternalServerError(err)
		}
		a.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	// live sessions start hearing the community without reconnecting
	a.ms.Engine().ConversationAdded(community.Id, userId)

	a.writeJson(w, http.StatusOK, types.Member{
		CommunityId: member.CommunityId,
		UserId:      member.UserId,
		Rank:        types.Rank(member.Rank),
		CreatedAt:   member.CreatedAt,
	})
}

type LeaveCommunityRequest struct {
	ChatId int64 `json:"chat_id"`
}

func (a *PeykApp) leaveCommunity(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		a.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req LeaveCommunityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ChatId >= 0 {
		errResp := NewBadRequestError()
		a.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := a.db.LeaveCommunity(r.Context(), req.ChatId, userId); err != nil {
		errResp := NewInternalServerError(err)
		a.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	a.ms.Engine().ConversationRemoved(req.ChatId, userId)
	w.WriteHeader(http.StatusNoContent)
}

// getMessages pages a chat's history, newest first, excluding
// messages the requester deleted for themselves. Non-members get 404.
func (a *PeykApp) getMessages(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		a.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	chatId, err := strconv.ParseInt(r.URL.Query().Get("chat_id"), 10, 64)
	if err != nil || chatId == 0 {
		errResp := NewBadRequestError()
		a.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	isMember, err := a.db.ConversationExists(r.Context(), chatId, userId)
	if err != nil {
		errResp := NewInternalServerError(err)
		a.writeJson(w, errResp.StatusCode, errResp)
		return
	}
	if !isMember {
		errResp := NewNotFoundError()
		a.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	before, _ := strconv.ParseInt(r.URL.Query().Get("before"), 10, 64)

	messages, err := a.db.ListChatMessagesForUser(r.Context(), chatId, userId, limit, before)
	if err != nil {
		errResp := NewInternalServerError(err)
		a.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	resp := make([]types.Message, 0, len(messages))
	for _, m := range messages {
		resp = append(resp, messageResponse(m))
	}
	a.writeJson(w, http.StatusOK, resp)
}

type PostMessageRequest struct {
	ChatId  int64 `json:"chat_id"`
	Content struct {
		Text string `json:"text"`
	} `json:"content"`
}

// postMessage is the HTTP write path. It funnels into the same
// fan-out engine as the socket action, so live sessions see messages
// posted over REST too.
func (a *PeykApp) postMessage(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		a.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req PostMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Content.Text == "" {
		errResp := NewBadRequestError()
		a.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	chatId, err := a.ms.Resolver().ResolveChatId(r.Context(), req.ChatId, userId)
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, server.ErrChatNotFound) {
			errResp = NewNotFoundError()
		} else {
			errResp = NewInternalServerError(err)
		}
		a.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if chatId < 0 {
		isMember, err := a.db.ConversationExists(r.Context(), chatId, userId)
		if err != nil {
			errResp := NewInternalServerError(err)
			a.writeJson(w, errResp.StatusCode, errResp)
			return
		}
		if !isMember {
			errResp := NewNotFoundError()
			a.writeJson(w, errResp.StatusCode, errResp)
			return
		}
	}

	msg, err := a.db.CreateMessage(r.Context(), database.CreateMessageParams{
		ChatId:      chatId,
		SenderId:    userId,
		ContentType: types.ContentText,
		Text:        req.Content.Text,
	})
	if err != nil {
		errResp := NewInternalServerError(err)
		a.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	a.ms.Engine().MessageCreated(messageResponse(msg))

	a.writeJson(w, http.StatusCreated, messageResponse(msg))
}

func (a *PeykApp) serveWs(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		a.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	user, err := a.db.GetAccountById(r.Context(), userId)
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, database.ErrNotFound) {
			errResp = NewNotFoundError()
		} else {
			errResp = NewInternalServerError(err)
		}
		a.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			return slices.Contains(a.allowedOrigins, origin)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.log.Warn().Err(err).Msg("upgrade connection")
		return
	}

	a.ms.HandleConnection(r.Context(), userResponse(user), conn)
}

func (a *PeykApp) healthz(w http.ResponseWriter, r *http.Request) {
	if err := a.db.Ping(r.Context()); err != nil {
		errResp := NewServiceUnavailableError()
		a.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	a.writeJson(w, http.StatusOK, map[string]string{"status": "ok"})
}
