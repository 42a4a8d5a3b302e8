package database

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockRepository) CreateAccount(ctx context.Context, params CreateAccountParams) (User, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(User), args.Error(1)
}

func (m *MockRepository) GetAccountById(ctx context.Context, userId int64) (User, error) {
	args := m.Called(ctx, userId)
	return args.Get(0).(User), args.Error(1)
}

func (m *MockRepository) GetAccountByEmail(ctx context.Context, email string) (User, error) {
	args := m.Called(ctx, email)
	return args.Get(0).(User), args.Error(1)
}

func (m *MockRepository) UpdateLastSeen(ctx context.Context, userId int64) (User, error) {
	args := m.Called(ctx, userId)
	return args.Get(0).(User), args.Error(1)
}

func (m *MockRepository) ListConversationChatIds(ctx context.Context, userId int64) ([]int64, error) {
	args := m.Called(ctx, userId)
	return args.Get(0).([]int64), args.Error(1)
}

func (m *MockRepository) ListPrivateChatIds(ctx context.Context, userId int64) ([]int64, error) {
	args := m.Called(ctx, userId)
	return args.Get(0).([]int64), args.Error(1)
}

func (m *MockRepository) ConversationExists(ctx context.Context, chatId, userId int64) (bool, error) {
	args := m.Called(ctx, chatId, userId)
	return args.Bool(0), args.Error(1)
}

func (m *MockRepository) GetPrivateChatByUsers(ctx context.Context, userA, userB int64) (PrivateChat, error) {
	args := m.Called(ctx, userA, userB)
	return args.Get(0).(PrivateChat), args.Error(1)
}

func (m *MockRepository) CreatePrivateChat(ctx context.Context, userA, userB int64) (PrivateChat, error) {
	args := m.Called(ctx, userA, userB)
	return args.Get(0).(PrivateChat), args.Error(1)
}

func (m *MockRepository) CreateCommunity(ctx context.Context, params CreateCommunityParams) (Community, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(Community), args.Error(1)
}

func (m *MockRepository) GetCommunityByInviteLink(ctx context.Context, link string) (Community, error) {
	args := m.Called(ctx, link)
	return args.Get(0).(Community), args.Error(1)
}

func (m *MockRepository) JoinCommunity(ctx context.Context, communityId, userId int64) (Member, error) {
	args := m.Called(ctx, communityId, userId)
	return args.Get(0).(Member), args.Error(1)
}

func (m *MockRepository) LeaveCommunity(ctx context.Context, communityId, userId int64) error {
	args := m.Called(ctx, communityId, userId)
	return args.Error(0)
}

func (m *MockRepository) GetMemberRank(ctx context.Context, communityId, userId int64) (int, error) {
	args := m.Called(ctx, communityId, userId)
	return args.Int(0), args.Error(1)
}

func (m *MockRepository) CreateMessage(ctx context.Context, params CreateMessageParams) (Message, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(Message), args.Error(1)
}

func (m *MockRepository) GetMessage(ctx context.Context, messageId, chatId int64) (Message, error) {
	args := m.Called(ctx, messageId, chatId)
	return args.Get(0).(Message), args.Error(1)
}

func (m *MockRepository) UpdateMessageContent(ctx context.Context, params UpdateMessageParams) (Message, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(Message), args.Error(1)
}

func (m *MockRepository) HardDeleteMessage(ctx context.Context, messageId int64) error {
	args := m.Called(ctx, messageId)
	return args.Error(0)
}

func (m *MockRepository) ListChatMessagesForUser(ctx context.Context, chatId, userId int64, limit int, before int64) ([]Message, error) {
	args := m.Called(ctx, chatId, userId, limit, before)
	return args.Get(0).([]Message), args.Error(1)
}

func (m *MockRepository) CreateDeletedMessage(ctx context.Context, messageId, userId int64) (DeletedMessage, bool, error) {
	args := m.Called(ctx, messageId, userId)
	return args.Get(0).(DeletedMessage), args.Bool(1), args.Error(2)
}

func (m *MockRepository) IsMessageDeletedForUser(ctx context.Context, messageId, userId int64) (bool, error) {
	args := m.Called(ctx, messageId, userId)
	return args.Bool(0), args.Error(1)
}

func (m *MockRepository) CreateSeen(ctx context.Context, messageId, userId int64) (Seen, error) {
	args := m.Called(ctx, messageId, userId)
	return args.Get(0).(Seen), args.Error(1)
}
