package server

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/peykchat/peyk/internal/stats"
	"github.com/peykchat/peyk/internal/transport"
	"github.com/peykchat/peyk/internal/types"
)

func TestSessionJoinLeave(t *testing.T) {
	env := newTestEnv(t)
	s := env.newTestSession(t, types.User{Id: 1})

	s.Join("12")
	s.Join("12") // idempotent
	assert.True(t, s.InGroup("12"))
	assert.Equal(t, 1, env.tr.Subscribers("12"), "double join must not double subscribe")

	s.Leave("12")
	assert.False(t, s.InGroup("12"))
	assert.Equal(t, 0, env.tr.Subscribers("12"))

	s.Leave("12") // leaving again is a no-op
	assert.Equal(t, 0, env.tr.Subscribers("12"))
}

func TestSessionLeaveAllGroups(t *testing.T) {
	env := newTestEnv(t)
	s := env.newTestSession(t, types.User{Id: 1})

	s.Join("12")
	s.Join("-4")
	s.Join(types.UserGroup(1))

	s.leaveAllGroups()

	for _, group := range []string{"12", "-4", types.UserGroup(1)} {
		assert.Equal(t, 0, env.tr.Subscribers(group), "expected no subscribers left in %q", group)
		assert.False(t, s.InGroup(group))
	}
}

func TestSessionDeliverGroupDirectives(t *testing.T) {
	env := newTestEnv(t)
	s := env.newTestSession(t, types.User{Id: 1})
	s.Join(types.UserGroup(1))

	// a join directive subscribes without queueing anything
	env.tr.Publish(types.UserGroup(1), transport.Event{
		Kind:      transport.KindGroupJoin,
		GroupName: "12",
	})
	assert.True(t, s.InGroup("12"))
	noFrame(t, s)

	// events for the new group now reach the session
	env.tr.Publish("12", transport.Event{
		Kind:    transport.KindMessage,
		Title:   "receive_message",
		Payload: map[string]any{"message": map[string]any{"id": float64(100)}},
	})
	frame := popFrame(t, s)
	assert.Equal(t, "receive_message", frame["action"])

	// and a leave directive cuts them off again
	env.tr.Publish(types.UserGroup(1), transport.Event{
		Kind:      transport.KindGroupLeave,
		GroupName: "12",
	})
	assert.False(t, s.InGroup("12"))

	env.tr.Publish("12", transport.Event{Kind: transport.KindMessage, Title: "receive_message"})
	noFrame(t, s)
}

func TestSessionDeliverSuppressesDeletedMessages(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	s := env.newTestSession(t, types.User{Id: 7})
	s.Join("12")

	require.NoError(t, env.cache.MarkMessageDeletedFor(ctx, 100, 7))

	env.tr.Publish("12", transport.Event{
		Kind:      transport.KindMessage,
		Title:     "receive_message",
		MessageId: 100,
	})
	noFrame(t, s)
	assert.Equal(t, 1, env.st.Value(stats.EventsSuppressed))

	// the hard-delete announcement for it is suppressed too
	env.tr.Publish("12", transport.Event{
		Kind:      transport.KindHardDelete,
		Title:     "delete_message",
		MessageId: 100,
	})
	noFrame(t, s)
	assert.Equal(t, 2, env.st.Value(stats.EventsSuppressed))

	// other messages still flow
	env.db.On("IsMessageDeletedForUser", mock.Anything, int64(101), int64(7)).
		Return(false, nil).Once()
	env.tr.Publish("12", transport.Event{
		Kind:      transport.KindMessage,
		Title:     "receive_message",
		MessageId: 101,
	})
	frame := popFrame(t, s)
	assert.Equal(t, "receive_message", frame["action"])
	env.db.AssertExpectations(t)
}

func TestSessionSuppressionSurvivesColdCache(t *testing.T) {
	env := newTestEnv(t)
	s := env.newTestSession(t, types.User{Id: 7})
	s.Join("12")

	// the marker cache is empty, as after a cache restart; storage
	// still knows the user deleted message 100 for themselves
	env.db.On("IsMessageDeletedForUser", mock.Anything, int64(100), int64(7)).
		Return(true, nil).Once()
	defer env.db.AssertExpectations(t)

	env.tr.Publish("12", transport.Event{
		Kind:      transport.KindMessage,
		Title:     "receive_message",
		MessageId: 100,
	})
	noFrame(t, s)
	assert.Equal(t, 1, env.st.Value(stats.EventsSuppressed))

	// the storage hit re-warmed the cache, so a second delivery
	// suppresses without another storage read
	env.tr.Publish("12", transport.Event{
		Kind:      transport.KindHardDelete,
		Title:     "delete_message",
		MessageId: 100,
	})
	noFrame(t, s)
	assert.Equal(t, 2, env.st.Value(stats.EventsSuppressed))
}

func TestSessionDeliverDropsOwnPresence(t *testing.T) {
	env := newTestEnv(t)
	s := env.newTestSession(t, types.User{Id: 7})
	s.Join("10")

	env.tr.Publish("10", transport.Event{
		Kind:   transport.KindOnline,
		Title:  "user_online",
		UserId: 7,
	})
	noFrame(t, s)

	env.tr.Publish("10", transport.Event{
		Kind:   transport.KindOnline,
		Title:  "user_online",
		UserId: 8,
	})
	frame := popFrame(t, s)
	assert.Equal(t, "user_online", frame["action"])
}

func TestSessionCleanup(t *testing.T) {
	env := newTestEnv(t)
	s := env.newTestSession(t, types.User{Id: 1})
	require.True(t, env.ms.register(s))

	s.Join("12")
	s.Join(types.UserGroup(1))

	s.cleanup()

	assert.Equal(t, StateClosing, s.State())
	assert.Equal(t, 0, env.tr.Subscribers("12"))
	assert.Equal(t, 0, env.tr.Subscribers(types.UserGroup(1)))
	assert.Equal(t, 0, env.st.Value(stats.ActiveSessions))

	// cleanup is safe to run twice
	s.cleanup()
	assert.Equal(t, 0, env.st.Value(stats.ActiveSessions))
}

func TestSessionJoinAfterCleanup(t *testing.T) {
	env := newTestEnv(t)
	s := env.newTestSession(t, types.User{Id: 1})
	s.Join(types.UserGroup(1))

	s.cleanup()

	// a join directive published before the unsubscribe can still be
	// delivered after cleanup; it must not resubscribe the session
	s.Deliver(types.UserGroup(1), transport.Event{
		Kind:      transport.KindGroupJoin,
		GroupName: "10",
	})

	assert.False(t, s.InGroup("10"))
	assert.Equal(t, 0, env.tr.Subscribers("10"))
}
