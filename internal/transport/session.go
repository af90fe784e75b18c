package transport

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/xfactor-puzzles/triviatoe/pkg/protocol"
)

const writeTimeout = 5 * time.Second

// Session is one accepted websocket connection. Writes are serialized; the
// read loop in Server owns the receive side.
type Session struct {
	id   string
	conn *websocket.Conn

	mu     sync.Mutex
	closed bool
}

func newSession(conn *websocket.Conn) *Session {
	return &Session{id: uuid.NewString(), conn: conn}
}

func (s *Session) ID() string { return s.id }

// Send writes one envelope to the client. Safe for concurrent use.
func (s *Session) Send(ctx context.Context, env *protocol.Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return context.Canceled
	}
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(wctx, s.conn, env)
}

// Close shuts the connection down with a normal closure. Idempotent; the
// read loop unblocks with an error and runs the disconnect path.
func (s *Session) Close(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	_ = s.conn.Close(websocket.StatusNormalClosure, reason)
}
