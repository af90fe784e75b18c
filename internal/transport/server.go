// Package transport accepts websocket connections and shuttles decoded
// protocol envelopes between clients and the coordinator.
package transport

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/xfactor-puzzles/triviatoe/internal/coordinator"
	"github.com/xfactor-puzzles/triviatoe/internal/obslog"
	"github.com/xfactor-puzzles/triviatoe/pkg/protocol"
)

const (
	readLimit    = 32 * 1024 // bytes per inbound message
	pingInterval = 30 * time.Second
)

// Handler consumes session lifecycle events and client envelopes. The
// coordinator implements it.
type Handler interface {
	HandleConnect(s coordinator.Sender)
	HandleMessage(ctx context.Context, s coordinator.Sender, env *protocol.Envelope)
	HandleDisconnect(ctx context.Context, connID string)
}

type Server struct {
	handler        Handler
	originPatterns []string
}

type Option func(*Server)

// WithOriginPatterns relaxes the same-origin check for the listed host
// patterns. Needed when the web client is served from another origin.
func WithOriginPatterns(patterns []string) Option {
	return func(srv *Server) { srv.originPatterns = patterns }
}

func NewServer(h Handler, opts ...Option) *Server {
	srv := &Server{handler: h}
	for _, opt := range opts {
		opt(srv)
	}
	return srv
}

// ServeHTTP upgrades the request and runs the session until the client goes
// away or the coordinator closes it.
func (srv *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:  srv.originPatterns,
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
	if err != nil {
		obslog.L().Warn("ws_accept_error", zap.Error(err))
		return
	}
	conn.SetReadLimit(readLimit)

	sess := newSession(conn)
	srv.handler.HandleConnect(sess)
	obslog.L().Info("ws_connected", zap.String("conn", sess.ID()))

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go srv.pingLoop(ctx, sess)

	srv.readLoop(ctx, sess, conn)

	sess.Close("session ended")
	// The request context is done once the handler returns; disconnect
	// cleanup gets its own deadline.
	dctx, dcancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer dcancel()
	srv.handler.HandleDisconnect(dctx, sess.ID())
	obslog.L().Info("ws_disconnected", zap.String("conn", sess.ID()))
}

func (srv *Server) readLoop(ctx context.Context, sess *Session, conn *websocket.Conn) {
	for {
		var env protocol.Envelope
		if err := wsjson.Read(ctx, conn, &env); err != nil {
			status := websocket.CloseStatus(err)
			if status == -1 && !errors.Is(err, context.Canceled) {
				obslog.L().Debug("ws_read_error", zap.String("conn", sess.ID()), zap.Error(err))
			}
			return
		}
		// Only client-originated kinds cross the boundary; everything
		// else is rejected before the coordinator sees it.
		if !protocol.ClientKind(env.Kind) {
			_ = sess.Send(ctx, protocol.MustEnvelope(protocol.KindGameError, protocol.ErrorPayload{
				Message: "unsupported message type",
			}))
			continue
		}
		srv.handler.HandleMessage(ctx, sess, &env)
	}
}

func (srv *Server) pingLoop(ctx context.Context, sess *Session) {
	t := time.NewTicker(pingInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
			err := sess.conn.Ping(pctx)
			cancel()
			if err != nil {
				sess.Close("ping failure")
				return
			}
		}
	}
}
