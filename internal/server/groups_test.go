package server

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/peykchat/peyk/internal/database"
)

func TestResolveChatId(t *testing.T) {
	ctx := context.Background()

	t.Run("community ids pass through", func(t *testing.T) {
		env := newTestEnv(t)

		id, err := env.ms.resolver.ResolveChatId(ctx, -5, 1)
		require.NoError(t, err)
		assert.Equal(t, int64(-5), id)
		env.db.AssertNotCalled(t, "GetPrivateChatByUsers", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("zero and self never resolve", func(t *testing.T) {
		env := newTestEnv(t)

		_, err := env.ms.resolver.ResolveChatId(ctx, 0, 1)
		assert.ErrorIs(t, err, ErrChatNotFound)

		_, err = env.ms.resolver.ResolveChatId(ctx, 1, 1)
		assert.ErrorIs(t, err, ErrChatNotFound)
	})

	t.Run("existing chat resolves and is cached", func(t *testing.T) {
		env := newTestEnv(t)
		env.db.On("GetPrivateChatByUsers", mock.Anything, int64(1), int64(2)).
			Return(database.PrivateChat{Id: 10, UserIds: []int64{1, 2}}, nil).Once()
		defer env.db.AssertExpectations(t)

		id, err := env.ms.resolver.ResolveChatId(ctx, 2, 1)
		require.NoError(t, err)
		assert.Equal(t, int64(10), id)

		// second resolution comes from the cache, no further db call
		id, err = env.ms.resolver.ResolveChatId(ctx, 2, 1)
		require.NoError(t, err)
		assert.Equal(t, int64(10), id)
	})

	t.Run("cache is shared between both directions", func(t *testing.T) {
		env := newTestEnv(t)
		env.db.On("GetPrivateChatByUsers", mock.Anything, int64(1), int64(2)).
			Return(database.PrivateChat{Id: 10, UserIds: []int64{1, 2}}, nil).Once()
		defer env.db.AssertExpectations(t)

		_, err := env.ms.resolver.ResolveChatId(ctx, 2, 1)
		require.NoError(t, err)

		// user 2 addressing user 1 hits the same canonical entry
		id, err := env.ms.resolver.ResolveChatId(ctx, 1, 2)
		require.NoError(t, err)
		assert.Equal(t, int64(10), id)
	})

	t.Run("missing chat is created", func(t *testing.T) {
		env := newTestEnv(t)
		env.db.On("GetPrivateChatByUsers", mock.Anything, int64(1), int64(2)).
			Return(database.PrivateChat{}, database.ErrNotFound).Once()
		env.db.On("CreatePrivateChat", mock.Anything, int64(1), int64(2)).
			Return(database.PrivateChat{Id: 11, UserIds: []int64{1, 2}}, nil).Once()
		env.db.On("ListPrivateChatIds", mock.Anything, int64(1)).Return([]int64{11}, nil).Once()
		env.db.On("ListPrivateChatIds", mock.Anything, int64(2)).Return([]int64{11}, nil).Once()
		defer env.db.AssertExpectations(t)

		var created []database.PrivateChat
		env.ms.resolver.onPrivateChatCreated = func(chat database.PrivateChat) {
			created = append(created, chat)
		}

		id, err := env.ms.resolver.ResolveChatId(ctx, 2, 1)
		require.NoError(t, err)
		assert.Equal(t, int64(11), id)
		require.Len(t, created, 1, "expected the creation hook to fire once")
		assert.Equal(t, int64(11), created[0].Id)

		// both participants' presence sets were refreshed
		ids, ok := env.cache.PrivateChatGroups(ctx, 1)
		require.True(t, ok)
		assert.Equal(t, []int64{11}, ids)
		ids, ok = env.cache.PrivateChatGroups(ctx, 2)
		require.True(t, ok)
		assert.Equal(t, []int64{11}, ids)
	})

	t.Run("candidate that is neither chat nor user", func(t *testing.T) {
		env := newTestEnv(t)
		env.db.On("GetPrivateChatByUsers", mock.Anything, int64(1), int64(99)).
			Return(database.PrivateChat{}, database.ErrNotFound).Once()
		env.db.On("CreatePrivateChat", mock.Anything, int64(1), int64(99)).
			Return(database.PrivateChat{}, database.ErrNotFound).Once()
		defer env.db.AssertExpectations(t)

		_, err := env.ms.resolver.ResolveChatId(ctx, 99, 1)
		assert.ErrorIs(t, err, ErrChatNotFound)
	})
}

func TestPrivateChatGroups(t *testing.T) {
	ctx := context.Background()

	t.Run("read-through on miss", func(t *testing.T) {
		env := newTestEnv(t)
		env.db.On("ListPrivateChatIds", mock.Anything, int64(1)).Return([]int64{3, 4}, nil).Once()
		defer env.db.AssertExpectations(t)

		ids, err := env.ms.resolver.PrivateChatGroups(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, []int64{3, 4}, ids)

		// second read served from the cache
		ids, err = env.ms.resolver.PrivateChatGroups(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, []int64{3, 4}, ids)
	})

	t.Run("db error propagates", func(t *testing.T) {
		env := newTestEnv(t)
		env.db.On("ListPrivateChatIds", mock.Anything, int64(1)).
			Return([]int64(nil), assert.AnError).Once()
		defer env.db.AssertExpectations(t)

		_, err := env.ms.resolver.PrivateChatGroups(ctx, 1)
		assert.Error(t, err)
	})
}
