package server

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/peykchat/peyk/internal/cache"
	"github.com/peykchat/peyk/internal/database"
	"github.com/peykchat/peyk/internal/stats"
	"github.com/peykchat/peyk/internal/testutil"
	"github.com/peykchat/peyk/internal/transport"
	"github.com/peykchat/peyk/internal/types"
)

type testEnv struct {
	ms    *MessengerServer
	db    *database.MockRepository
	st    *stats.MockProvider
	tr    *transport.Local
	cache *cache.AppCache
}

func newTestEnv(t *testing.T) *testEnv {
	db := &database.MockRepository{}
	tr := transport.NewLocal()
	appCache := cache.New(cache.NewMemoryStore())
	st := stats.NewMockProvider()
	ms := NewMessengerServer(db, appCache, tr, st, testutil.TestLogger(t))
	return &testEnv{ms: ms, db: db, st: st, tr: tr, cache: appCache}
}

// noDeletedMarkers answers the suppression check's storage fallback
// with "nothing deleted" so delivered events flow in tests that don't
// exercise suppression.
func (env *testEnv) noDeletedMarkers() {
	env.db.On("IsMessageDeletedForUser", mock.Anything, mock.Anything, mock.Anything).
		Return(false, nil).Maybe()
}

// newTestSession builds an Active session without a socket; frames
// queue on s.send where popFrame can read them.
func (env *testEnv) newTestSession(t *testing.T, user types.User) *Session {
	s := NewSession(user, nil, env.ms, testutil.TestLogger(t))
	s.setState(StateActive)
	return s
}

func popFrame(t *testing.T, s *Session) map[string]any {
	t.Helper()
	select {
	case raw := <-s.send:
		var frame map[string]any
		require.NoError(t, json.Unmarshal(raw, &frame), "expected queued frame to be valid JSON")
		return frame
	default:
		t.Fatal("expected a queued frame")
		return nil
	}
}

func noFrame(t *testing.T, s *Session) {
	t.Helper()
	select {
	case raw := <-s.send:
		t.Fatalf("expected no queued frame, got %s", raw)
	default:
	}
}

// now is the timestamp used for mocked rows: UTC and rounded so a
// value that round-trips through JSON still compares equal.
func now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}

func detailOf(t *testing.T, env map[string]any) map[string]any {
	t.Helper()
	detail, ok := env["detail"].(map[string]any)
	require.True(t, ok, "expected envelope detail to be an object, got %v", env["detail"])
	return detail
}

func TestNewMessengerServer(t *testing.T) {
	env := newTestEnv(t)

	assert.NotNil(t, env.ms.dispatcher, "expected dispatcher to be initialized")
	assert.NotNil(t, env.ms.engine, "expected engine to be initialized")
	assert.NotNil(t, env.ms.resolver, "expected resolver to be initialized")
	assert.NotNil(t, env.ms.resolver.onPrivateChatCreated, "expected resolver wired to engine")
	assert.NotNil(t, env.ms.sessions, "expected sessions map to be initialized")

	for _, name := range []string{
		stats.ActiveSessions, stats.FramesReceived, stats.EventsPublished,
		stats.EventsSuppressed, stats.PublishesDropped, stats.ActionErrors,
	} {
		_, ok := env.st.Values[name]
		assert.True(t, ok, "expected metric %q to be registered", name)
	}
}

func TestRegisterDeregister(t *testing.T) {
	env := newTestEnv(t)
	s := env.newTestSession(t, types.User{Id: 1})

	assert.True(t, env.ms.register(s), "expected registration to succeed")
	assert.Equal(t, 1, env.st.Value(stats.ActiveSessions), "expected gauge to track registration")

	env.ms.deregister(s)
	assert.Equal(t, 0, env.st.Value(stats.ActiveSessions), "expected gauge to track deregistration")

	// deregistering twice must not drive the gauge negative
	env.ms.deregister(s)
	assert.Equal(t, 0, env.st.Value(stats.ActiveSessions))
}

func TestMarkOnline(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	alice := env.newTestSession(t, types.User{Id: 1, Username: "alice"})
	bob := env.newTestSession(t, types.User{Id: 2})
	bob.Join("10")

	seen := now()
	env.db.On("UpdateLastSeen", mock.Anything, int64(1)).Return(database.User{
		Id: 1, Username: "alice", LastSeen: seen,
	}, nil).Twice()
	env.db.On("ListPrivateChatIds", mock.Anything, int64(1)).Return([]int64{10}, nil).Once()
	defer env.db.AssertExpectations(t)

	// the session connected with a stale last_seen: announce
	user, err := env.ms.markOnline(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, seen, user.LastSeen)

	frame := popFrame(t, bob)
	assert.Equal(t, "user_online", frame["action"])

	// already online: refresh silently
	_, err = env.ms.markOnline(ctx, alice)
	require.NoError(t, err)
	noFrame(t, bob)
}

func TestRegisterAfterShutdown(t *testing.T) {
	env := newTestEnv(t)
	env.ms.Shutdown()

	s := env.newTestSession(t, types.User{Id: 1})
	assert.False(t, env.ms.register(s), "expected registration to fail after shutdown")
}
