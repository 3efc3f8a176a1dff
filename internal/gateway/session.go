package gateway

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait       = 10 * time.Second
	defaultPongWait = 120 * time.Second
	maxMessageSize  = 512 * 1024
)

// CloseDuplicateSession is sent when a second connection loses the
// duplicate-login race ("already connected elsewhere").
const CloseDuplicateSession = 4006

// Session is one live gateway connection. The random session id changes on
// every reconnect; the custom session id (set on identify) is stable per
// player.
type Session struct {
	hub        *Hub
	conn       *websocket.Conn
	send       chan []byte
	randomID   string
	remoteAddr string
	userAgent  string

	mu           sync.RWMutex
	summonerName string
	customID     string
	identified   bool
	lastActivity time.Time
	closeOnce    sync.Once
}

func NewSession(hub *Hub, conn *websocket.Conn, remoteAddr, userAgent string) *Session {
	return &Session{
		hub:          hub,
		conn:         conn,
		send:         make(chan []byte, 256),
		randomID:     uuid.NewString(),
		remoteAddr:   remoteAddr,
		userAgent:    userAgent,
		lastActivity: time.Now(),
	}
}

func (s *Session) RandomID() string   { return s.randomID }
func (s *Session) RemoteAddr() string { return s.remoteAddr }
func (s *Session) UserAgent() string  { return s.userAgent }

// SummonerName returns the registered (normalized) name, or "" before
// identify.
func (s *Session) SummonerName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.summonerName
}

func (s *Session) CustomID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.customID
}

func (s *Session) Identified() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identified
}

// Identify records the session's registered identity after the registry has
// accepted it.
func (s *Session) Identify(summonerName, customSessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summonerName = summonerName
	s.customID = customSessionID
	s.identified = true
}

// Touch refreshes the local activity instant.
func (s *Session) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActivity = time.Now()
}

func (s *Session) LastActivity() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActivity
}

// SendRaw queues bytes for the write pump. The pump is the only goroutine
// writing to the socket, which keeps frames from interleaving.
func (s *Session) SendRaw(data []byte) (err error) {
	defer func() {
		if recover() != nil {
			err = websocket.ErrCloseSent
		}
	}()
	select {
	case s.send <- data:
		return nil
	default:
		return websocket.ErrCloseSent
	}
}

// CloseWithCode sends a close frame and tears the connection down.
func (s *Session) CloseWithCode(code int, reason string) {
	s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason), time.Now().Add(writeWait))
	s.conn.Close()
}

// Close shuts the send channel exactly once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.send)
	})
}

// ReadPump reads inbound frames and hands them to the router. It exits on
// any read error and unregisters the session.
func (s *Session) ReadPump() {
	defer func() {
		s.hub.Unregister(s)
		s.conn.Close()
	}()

	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(s.hub.pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.Touch()
		s.conn.SetReadDeadline(time.Now().Add(s.hub.pongWait))
		return nil
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[gateway] read error on session %s: %v", s.randomID, err)
			}
			break
		}
		s.conn.SetReadDeadline(time.Now().Add(s.hub.pongWait))
		s.hub.Dispatch(s, data)
	}
}

// WritePump serializes all outbound writes for this connection and keeps the
// ping/pong heartbeat alive.
func (s *Session) WritePump() {
	ticker := time.NewTicker(s.hub.pingInterval)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case message, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
