package server

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/peykchat/peyk/internal/stats"
	"github.com/peykchat/peyk/internal/transport"
	"github.com/peykchat/peyk/internal/types"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 8192
	sendQueueSize  = 256

	// budget for the suppression-cache lookup inside Deliver
	deliverTimeout = 2 * time.Second
)

// SessionState tracks a session through its lifecycle. Joining covers
// the window between upgrade and group subscription; only Active
// sessions dispatch frames and receive broadcasts.
type SessionState int32

const (
	StateConnecting SessionState = iota
	StateJoining
	StateActive
	StateClosing
)

// Session is one authenticated WebSocket connection. It subscribes to
// the user's private address group plus one group per conversation,
// and implements transport.Subscriber for all of them.
type Session struct {
	conn   *websocket.Conn
	server *MessengerServer
	log    zerolog.Logger
	user   types.User

	send chan []byte
	stop chan struct{}

	mu     sync.RWMutex
	state  SessionState
	groups map[string]struct{}

	stopOnce sync.Once
}

func NewSession(user types.User, conn *websocket.Conn, ms *MessengerServer, log zerolog.Logger) *Session {
	return &Session{
		conn:   conn,
		server: ms,
		log:    log.With().Int64("user_id", user.Id).Logger(),
		user:   user,
		send:   make(chan []byte, sendQueueSize),
		stop:   make(chan struct{}),
		groups: make(map[string]struct{}),
		state:  StateConnecting,
	}
}

func (s *Session) setState(state SessionState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *Session) State() SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// lastSeen is the freshest last_seen this session has observed for
// its user. Presence fan-out keys off it to detect the
// offline-to-online transition.
func (s *Session) lastSeen() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user.LastSeen
}

func (s *Session) recordLastSeen(t time.Time) {
	s.mu.Lock()
	s.user.LastSeen = t
	s.mu.Unlock()
}

// Join subscribes the session to a broadcast group. Idempotent.
func (s *Session) Join(group string) {
	s.mu.Lock()
	// a join directive racing disconnect must not resubscribe a dead
	// session; cleanup has already run or is about to
	if s.state == StateClosing {
		s.mu.Unlock()
		return
	}
	if _, ok := s.groups[group]; ok {
		s.mu.Unlock()
		return
	}
	s.groups[group] = struct{}{}
	s.mu.Unlock()

	s.server.transport.Subscribe(group, s)
}

// Leave unsubscribes the session from a broadcast group. Idempotent.
func (s *Session) Leave(group string) {
	s.mu.Lock()
	if _, ok := s.groups[group]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.groups, group)
	s.mu.Unlock()

	s.server.transport.Unsubscribe(group, s)
}

func (s *Session) InGroup(group string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.groups[group]
	return ok
}

// leaveAllGroups runs on every exit path so a session never outlives
// its subscriptions.
func (s *Session) leaveAllGroups() {
	s.mu.Lock()
	groups := make([]string, 0, len(s.groups))
	for g := range s.groups {
		groups = append(groups, g)
	}
	s.groups = make(map[string]struct{})
	s.mu.Unlock()

	for _, g := range groups {
		s.server.transport.Unsubscribe(g, s)
	}
}

// Deliver implements transport.Subscriber. Group directives mutate the
// subscription set; everything else is filtered and queued. It never
// blocks on the socket: a full send queue drops the event.
func (s *Session) Deliver(group string, ev transport.Event) {
	switch ev.Kind {
	case transport.KindGroupJoin:
		s.Join(ev.GroupName)
		return
	case transport.KindGroupLeave:
		s.Leave(ev.GroupName)
		return
	case transport.KindOnline:
		// a user's own presence is noise to their other devices
		if ev.UserId == s.user.Id {
			return
		}
	case transport.KindMessage, transport.KindHardDelete:
		if ev.MessageId != 0 && s.suppressed(ev.MessageId) {
			s.server.stats.Incr(stats.EventsSuppressed)
			return
		}
	}

	s.queueFrame(eventFrame(ev))
}

// suppressed reports whether the user deleted the message for
// themselves. The marker is written before the triggering publish, so
// a cache hit is authoritative; the cache holds only positive markers,
// so a miss falls through to storage (markers survive a cache restart)
// and re-warms the entry on a hit.
func (s *Session) suppressed(messageId int64) bool {
	ctx, cancel := context.WithTimeout(context.Background(), deliverTimeout)
	defer cancel()

	if s.server.cache.IsMessageDeletedFor(ctx, messageId, s.user.Id) {
		return true
	}

	deleted, err := s.server.db.IsMessageDeletedForUser(ctx, messageId, s.user.Id)
	if err != nil {
		s.log.Warn().Err(err).Int64("message_id", messageId).Msg("deleted marker lookup")
		return false
	}
	if deleted {
		if err := s.server.cache.MarkMessageDeletedFor(ctx, messageId, s.user.Id); err != nil {
			s.log.Warn().Err(err).Int64("message_id", messageId).Msg("rewarm deleted marker")
		}
	}
	return deleted
}

func (s *Session) queueFrame(frame map[string]any) bool {
	raw, err := json.Marshal(frame)
	if err != nil {
		s.log.Error().Err(err).Msg("serialize frame")
		return false
	}

	select {
	case s.send <- raw:
		return true
	case <-s.stop:
		return false
	default:
		s.log.Warn().Msg("send queue full, dropping frame")
		return false
	}
}

func (s *Session) readPump() {
	defer func() {
		s.conn.Close()
		s.cleanup()
		s.log.Debug().Msg("read exiting")
	}()

	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error { s.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				s.log.Warn().Err(err).Msg("ws read")
			}
			break
		}

		s.server.stats.Incr(stats.FramesReceived)
		resp := s.server.dispatcher.Dispatch(context.Background(), s, raw)
		s.queueFrame(resp)
	}
}

func (s *Session) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		s.conn.Close()
		s.log.Debug().Msg("write exiting")
	}()

	for {
		select {
		case raw, ok := <-s.send:
			if !ok {
				return
			}
			if !s.writeMessage(websocket.TextMessage, raw) {
				return
			}
		case <-s.stop:
			return
		case <-ticker.C:
			if !s.writeMessage(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func (s *Session) writeMessage(msgType int, data []byte) bool {
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := s.conn.WriteMessage(msgType, data); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			s.log.Warn().Err(err).Msg("ws write")
		}
		return false
	}
	return true
}

func (s *Session) stopSession() {
	s.stopOnce.Do(func() { close(s.stop) })
}

func (s *Session) cleanup() {
	s.setState(StateClosing)
	s.leaveAllGroups()
	s.server.deregister(s)
	s.stopSession()
}
