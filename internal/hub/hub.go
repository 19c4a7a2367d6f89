// Package hub tracks live sessions and the broadcast rooms they have joined,
// and fans persisted events out to them. It is purely in-memory: everything
// here is lost on restart by design, and nothing here talks to storage.
package hub

import (
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/havenito/Twitter-Like/internal/metrics"
)

const sendBuffer = 256

// Session is one live push channel. A session belongs to at most one user
// (announced after connect) and any number of rooms.
type Session struct {
	ID     string
	UserID int64 // 0 until the client announces itself; guarded by the hub lock

	send   chan []byte
	closed bool // guarded by the hub lock; send is closed exactly once
}

// Outbox is the channel the transport's write pump drains. It is closed when
// the session is unregistered.
func (s *Session) Outbox() <-chan []byte {
	return s.send
}

// Registry is the narrow interface the rest of the system sees, so the
// single-process map can later be swapped for a distributed registry without
// touching call sites.
type Registry interface {
	Register() *Session
	Unregister(s *Session)
	SetUser(s *Session, userID int64)
	Join(s *Session, room string)
	Leave(s *Session, room string)
	Members(room string) []*Session
	LookupByUser(userID int64) []*Session
	BroadcastToRoom(room string, data []byte, except *Session) int
	Send(s *Session, data []byte) bool
}

// Hub is the in-process Registry implementation: a guarded map shared by all
// concurrently running handlers. No lock is ever held across I/O; delivery is
// a non-blocking channel send.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	rooms    map[string]map[*Session]bool
	byUser   map[int64]map[*Session]bool
	logger   zerolog.Logger
}

// NewHub creates an empty hub.
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		sessions: make(map[string]*Session),
		rooms:    make(map[string]map[*Session]bool),
		byUser:   make(map[int64]map[*Session]bool),
		logger:   logger,
	}
}

// Register creates a new session and adds it to the hub.
func (h *Hub) Register() *Session {
	s := &Session{
		ID:   uuid.New().String(),
		send: make(chan []byte, sendBuffer),
	}

	h.mu.Lock()
	h.sessions[s.ID] = s
	n := len(h.sessions)
	h.mu.Unlock()

	metrics.ActiveSessions.Set(float64(n))
	h.logger.Debug().Str("session", s.ID).Msg("session registered")
	return s
}

// Unregister removes a session from the hub and from every room it joined.
// Safe to call more than once. Already-committed messages are unaffected;
// only this session's memberships go away.
func (h *Hub) Unregister(s *Session) {
	h.mu.Lock()
	if _, ok := h.sessions[s.ID]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.sessions, s.ID)
	for room, members := range h.rooms {
		if members[s] {
			delete(members, s)
			if len(members) == 0 {
				delete(h.rooms, room)
			}
		}
	}
	if s.UserID != 0 {
		if set := h.byUser[s.UserID]; set != nil {
			delete(set, s)
			if len(set) == 0 {
				delete(h.byUser, s.UserID)
			}
		}
	}
	if !s.closed {
		s.closed = true
		close(s.send)
	}
	n := len(h.sessions)
	h.mu.Unlock()

	metrics.ActiveSessions.Set(float64(n))
	h.logger.Debug().Str("session", s.ID).Msg("session unregistered")
}

// SetUser binds a session to the user it represents.
func (h *Hub) SetUser(s *Session, userID int64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if s.UserID == userID {
		return
	}
	if s.UserID != 0 {
		if set := h.byUser[s.UserID]; set != nil {
			delete(set, s)
			if len(set) == 0 {
				delete(h.byUser, s.UserID)
			}
		}
	}
	s.UserID = userID
	if userID != 0 {
		if h.byUser[userID] == nil {
			h.byUser[userID] = make(map[*Session]bool)
		}
		h.byUser[userID][s] = true
	}
}

// Join adds a session to a room. Unknown room names are accepted silently;
// existence checks happen at ingestion time, not here.
func (h *Hub) Join(s *Session, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.sessions[s.ID]; !ok {
		return
	}
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[*Session]bool)
	}
	h.rooms[room][s] = true
}

// Leave removes a session from a room. A no-op when not a member.
func (h *Hub) Leave(s *Session, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if members, ok := h.rooms[room]; ok {
		delete(members, s)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

// Members returns the sessions currently joined to a room.
func (h *Hub) Members(room string) []*Session {
	h.mu.RLock()
	defer h.mu.RUnlock()

	members := make([]*Session, 0, len(h.rooms[room]))
	for s := range h.rooms[room] {
		members = append(members, s)
	}
	return members
}

// LookupByUser returns every live session announced for a user.
func (h *Hub) LookupByUser(userID int64) []*Session {
	h.mu.RLock()
	defer h.mu.RUnlock()

	sessions := make([]*Session, 0, len(h.byUser[userID]))
	for s := range h.byUser[userID] {
		sessions = append(sessions, s)
	}
	return sessions
}

// BroadcastToRoom delivers a payload to every session in the room except the
// excluded one. Delivery is best-effort: a session with a full buffer has the
// frame dropped and logged, never blocking the caller or other sessions.
// Returns the number of sessions the payload was queued for.
func (h *Hub) BroadcastToRoom(room string, data []byte, except *Session) int {
	h.mu.RLock()
	targets := make([]*Session, 0, len(h.rooms[room]))
	for s := range h.rooms[room] {
		if s != except {
			targets = append(targets, s)
		}
	}
	h.mu.RUnlock()

	delivered := 0
	for _, s := range targets {
		if h.Send(s, data) {
			delivered++
		}
	}
	return delivered
}

// Send queues a payload for one session without blocking. Returns false when
// the frame was dropped (buffer full or session already closed).
func (h *Hub) Send(s *Session, data []byte) bool {
	// The read lock pins s.closed for the duration of the send, so the
	// channel cannot be closed underneath us. The send itself is
	// non-blocking on a buffered channel, never I/O.
	h.mu.RLock()
	defer h.mu.RUnlock()

	if s.closed {
		return false
	}

	select {
	case s.send <- data:
		return true
	default:
		metrics.DroppedFrames.Inc()
		h.logger.Warn().Str("session", s.ID).Msg("send buffer full, frame dropped")
		return false
	}
}
