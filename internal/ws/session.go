package ws

import (
	"crypto/rand"
	"encoding/hex"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// sendBuffer bounds how far a slow reader may fall behind before frames are
// dropped for it.
const sendBuffer = 64

// Session is one live connection bound to a single resolved user. A user may
// hold several concurrent sessions (multi-device); each is registered and
// cleaned up independently.
type Session struct {
	ID          string
	UserID      string
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time

	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

// NewSession binds a connection to a user identity. The identity is fixed for
// the session's lifetime; it is never re-derived from later input.
func NewSession(userID string, conn *websocket.Conn) *Session {
	return &Session{
		ID:          newSessionID(),
		UserID:      userID,
		ConnectedAt: time.Now(),
		conn:        conn,
		send:        make(chan []byte, sendBuffer),
		done:        make(chan struct{}),
	}
}

// enqueue hands a frame to the session's writer. Delivery to a closed or
// backed-up session is a drop, never an error: a session mid-disconnect must
// not fail the broadcast it was part of.
func (s *Session) enqueue(payload []byte) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.send <- payload:
		return true
	case <-s.done:
		return false
	default:
		return false
	}
}

// Close tears the session down; safe to call more than once.
func (s *Session) Close() {
	s.once.Do(func() {
		close(s.done)
		if s.conn != nil {
			s.conn.Close()
		}
	})
}

// WriteLoop drains queued frames onto the connection in order. Frames for one
// session are written by this single goroutine, so the order they were
// enqueued in is the order the client sees.
func (s *Session) WriteLoop() {
	for {
		select {
		case <-s.done:
			return
		case payload := <-s.send:
			if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				log.Printf("websocket write error: %v", err)
				s.Close()
				return
			}
		}
	}
}

func newSessionID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return ""
	}
	return hex.EncodeToString(buf)
}
