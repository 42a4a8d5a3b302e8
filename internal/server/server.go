package server

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/peykchat/peyk/internal/cache"
	"github.com/peykchat/peyk/internal/database"
	"github.com/peykchat/peyk/internal/stats"
	"github.com/peykchat/peyk/internal/transport"
	"github.com/peykchat/peyk/internal/types"
)

// MessengerServer owns the live side of the messenger: sessions,
// group resolution, action dispatch and event fan-out. The REST layer
// hands it upgraded connections and borrows its engine for fan-out of
// writes that arrive over HTTP.
type MessengerServer struct {
	db        database.Repository
	cache     *cache.AppCache
	transport transport.Transport
	stats     stats.Provider
	log       zerolog.Logger

	resolver   *GroupResolver
	engine     *Engine
	dispatcher *Dispatcher

	mu       sync.Mutex
	sessions map[*Session]struct{}
	shutdown bool
}

func NewMessengerServer(db database.Repository, appCache *cache.AppCache, tr transport.Transport,
	st stats.Provider, log zerolog.Logger) *MessengerServer {

	resolver := NewGroupResolver(db, appCache, log)
	engine := NewEngine(tr, appCache, resolver, log, st)
	resolver.onPrivateChatCreated = engine.PrivateChatCreated

	ms := &MessengerServer{
		db:        db,
		cache:     appCache,
		transport: tr,
		stats:     st,
		log:       log,
		resolver:  resolver,
		engine:    engine,
		sessions:  make(map[*Session]struct{}),
	}
	ms.dispatcher = NewDispatcher(log, st)
	ms.registerActions()

	for _, name := range []string{
		stats.ActiveSessions,
		stats.FramesReceived,
		stats.EventsPublished,
		stats.EventsSuppressed,
		stats.PublishesDropped,
		stats.ActionErrors,
	} {
		st.Register(name)
	}

	return ms
}

// Engine exposes the fan-out engine so HTTP write paths publish the
// same events the socket actions do.
func (ms *MessengerServer) Engine() *Engine {
	return ms.engine
}

// Resolver exposes chat-id resolution to the REST layer.
func (ms *MessengerServer) Resolver() *GroupResolver {
	return ms.resolver
}

// HandleConnection takes over an upgraded, authenticated connection:
// it subscribes the session to the user's address group and every
// conversation group, announces presence, and runs the pumps until
// the peer goes away.
func (ms *MessengerServer) HandleConnection(ctx context.Context, user types.User, conn *websocket.Conn) {
	s := NewSession(user, conn, ms, ms.log)

	if !ms.register(s) {
		conn.Close()
		return
	}

	s.setState(StateJoining)
	s.Join(types.UserGroup(user.Id))

	chatIds, err := ms.resolver.ChatGroups(ctx, user.Id)
	if err != nil {
		ms.log.Error().Err(err).Int64("user_id", user.Id).Msg("seed session groups")
		s.cleanup()
		conn.Close()
		return
	}
	for _, chatId := range chatIds {
		s.Join(types.NewChatRef(chatId).Group())
	}
	s.setState(StateActive)

	if _, err := ms.markOnline(ctx, s); err != nil {
		ms.log.Warn().Err(err).Int64("user_id", user.Id).Msg("update last seen")
	}

	go s.writePump()
	s.readPump()
}

// markOnline refreshes the session user's last_seen and announces
// presence to their private chat partners, but only on the
// offline-to-online transition. Connects and pings share this path so
// a reconnect inside the online window stays silent.
func (ms *MessengerServer) markOnline(ctx context.Context, s *Session) (types.User, error) {
	wasOnline := types.User{LastSeen: s.lastSeen()}.Online(time.Now())

	updated, err := ms.db.UpdateLastSeen(ctx, s.user.Id)
	if err != nil {
		return types.User{}, err
	}

	user := toUser(updated)
	s.recordLastSeen(user.LastSeen)

	if !wasOnline {
		ms.engine.UserOnline(ctx, user)
	}
	return user, nil
}

func (ms *MessengerServer) register(s *Session) bool {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if ms.shutdown {
		return false
	}
	ms.sessions[s] = struct{}{}
	ms.stats.Incr(stats.ActiveSessions)
	return true
}

func (ms *MessengerServer) deregister(s *Session) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if _, ok := ms.sessions[s]; !ok {
		return
	}
	delete(ms.sessions, s)
	ms.stats.Decr(stats.ActiveSessions)
}

// Shutdown stops accepting sessions and closes the live ones. Session
// cleanup runs on each read pump's exit path as the sockets close.
func (ms *MessengerServer) Shutdown() {
	ms.mu.Lock()
	ms.shutdown = true
	open := make([]*Session, 0, len(ms.sessions))
	for s := range ms.sessions {
		open = append(open, s)
	}
	ms.mu.Unlock()

	for _, s := range open {
		s.stopSession()
		s.conn.Close()
	}
	ms.log.Info().Int("sessions", len(open)).Msg("messenger server stopped")
}
