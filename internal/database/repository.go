package database

import (
	"context"
	"errors"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrAlreadySeen  = errors.New("message already seen")
	ErrSelfChat     = errors.New("cannot create chat with self")
	ErrNotMember    = errors.New("not a member")
	ErrAlreadyExist = errors.New("already exists")
)

// Repository is the narrow storage surface the event system and the
// REST collaborators read and write through.
type Repository interface {
	Ping(ctx context.Context) error

	// accounts
	CreateAccount(ctx context.Context, params CreateAccountParams) (User, error)
	GetAccountById(ctx context.Context, userId int64) (User, error)
	GetAccountByEmail(ctx context.Context, email string) (User, error)
	UpdateLastSeen(ctx context.Context, userId int64) (User, error)

	// membership
	ListConversationChatIds(ctx context.Context, userId int64) ([]int64, error)
	ListPrivateChatIds(ctx context.Context, userId int64) ([]int64, error)
	ConversationExists(ctx context.Context, chatId, userId int64) (bool, error)

	// chats
	GetPrivateChatByUsers(ctx context.Context, userA, userB int64) (PrivateChat, error)
	CreatePrivateChat(ctx context.Context, userA, userB int64) (PrivateChat, error)
	CreateCommunity(ctx context.Context, params CreateCommunityParams) (Community, error)
	GetCommunityByInviteLink(ctx context.Context, link string) (Community, error)
	JoinCommunity(ctx context.Context, communityId, userId int64) (Member, error)
	LeaveCommunity(ctx context.Context, communityId, userId int64) error
	GetMemberRank(ctx context.Context, communityId, userId int64) (int, error)

	// messages
	CreateMessage(ctx context.Context, params CreateMessageParams) (Message, error)
	GetMessage(ctx context.Context, messageId, chatId int64) (Message, error)
	UpdateMessageContent(ctx context.Context, params UpdateMessageParams) (Message, error)
	HardDeleteMessage(ctx context.Context, messageId int64) error
	ListChatMessagesForUser(ctx context.Context, chatId, userId int64, limit int, before int64) ([]Message, error)

	// per-user soft delete
	CreateDeletedMessage(ctx context.Context, messageId, userId int64) (DeletedMessage, bool, error)
	IsMessageDeletedForUser(ctx context.Context, messageId, userId int64) (bool, error)

	// seen
	CreateSeen(ctx context.Context, messageId, userId int64) (Seen, error)
}
