package gateway

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/riftbridge/custom-match-core/internal/session"
)

// Dispatcher routes one inbound frame. Implemented by Router; injected so
// the hub stays free of handler logic.
type Dispatcher interface {
	Dispatch(s *Session, raw []byte)
}

// Hub is the local live-session table: every currently open gateway
// connection of this backend instance, keyed by random session id. It is a
// cache of live socket handles only; identity truth lives in the KV-backed
// registry.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	stopped  bool

	registry   *session.Registry
	dispatcher Dispatcher

	// Heartbeat cadence shared by every session's pumps. Set once at
	// startup, before connections are accepted.
	pingInterval time.Duration
	pongWait     time.Duration
}

func NewHub(registry *session.Registry) *Hub {
	return &Hub{
		sessions:     make(map[string]*Session),
		registry:     registry,
		pingInterval: (defaultPongWait * 9) / 10,
		pongWait:     defaultPongWait,
	}
}

// SetHeartbeat overrides the ping interval and the pong deadline. Values that
// are non-positive or inconsistent keep the current setting.
func (h *Hub) SetHeartbeat(interval, timeout time.Duration) {
	if interval <= 0 || timeout <= interval {
		return
	}
	h.pingInterval = interval
	h.pongWait = timeout
}

// SetDispatcher wires the router in after construction (the router needs the
// hub's live table, the hub needs the router for inbound frames).
func (h *Hub) SetDispatcher(d Dispatcher) {
	h.dispatcher = d
}

// Has reports whether the random session id belongs to a connection that is
// live on this instance. The registry uses this to tell zombies from real
// duplicates.
func (h *Hub) Has(randomSessionID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.sessions[randomSessionID]
	return ok
}

func (h *Hub) Get(randomSessionID string) *Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.sessions[randomSessionID]
}

func (h *Hub) Register(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		s.CloseWithCode(1001, "shutting down")
		return
	}
	h.sessions[s.RandomID()] = s
}

// Unregister removes the session locally and releases its KV records and
// lock.
func (h *Hub) Unregister(s *Session) {
	h.mu.Lock()
	if _, ok := h.sessions[s.RandomID()]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.sessions, s.RandomID())
	h.mu.Unlock()

	s.Close()
	if err := h.registry.RemoveSession(context.Background(), s.RandomID()); err != nil {
		log.Printf("[gateway] failed to remove session %s from registry: %v", s.RandomID(), err)
	}
}

func (h *Hub) Dispatch(s *Session, raw []byte) {
	if h.dispatcher != nil {
		h.dispatcher.Dispatch(s, raw)
	}
}

// AnyIdentified returns some identified session, for RPCs that do not care
// which player's game client answers.
func (h *Hub) AnyIdentified() *Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, s := range h.sessions {
		if s.Identified() {
			return s
		}
	}
	return nil
}

// EachIdentified calls fn for every identified session.
func (h *Hub) EachIdentified(fn func(s *Session)) {
	h.mu.RLock()
	sessions := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		if s.Identified() {
			sessions = append(sessions, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range sessions {
		fn(s)
	}
}

// Len returns the number of live sessions.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Stop closes every live connection. Used on orderly shutdown.
func (h *Hub) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return
	}
	h.stopped = true
	for id, s := range h.sessions {
		s.CloseWithCode(1001, "server shutting down")
		s.Close()
		delete(h.sessions, id)
	}
}
