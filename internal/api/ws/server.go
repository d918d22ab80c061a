// Package ws serves the client-facing WebSocket endpoint and the service
// health routes.
package ws

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"interview-speech-relay/internal/observability/logging"
	"interview-speech-relay/internal/observability/metrics"
	"interview-speech-relay/internal/service/session"
)

// Server upgrades client connections and runs one ConnectionSession per
// socket until it disconnects.
type Server struct {
	deps     session.Deps
	upgrader websocket.Upgrader
	server   *http.Server

	connSeq atomic.Uint64
	log     zerolog.Logger
	m       *metrics.Metrics
}

// New builds the WebSocket server listening on addr.
func New(addr string, deps session.Deps) *Server {
	s := &Server{
		deps: deps,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 4 * 1024,
			// Browser clients connect through the gateway; origin policy is
			// enforced there.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		log: logging.WithComponent("ws-server"),
		m:   metrics.DefaultMetrics,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/v1/liveness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/v1/readiness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	r.Get("/", s.handleSocket)

	s.server = &http.Server{
		Addr:    addr,
		Handler: r,
	}
	return s
}

// Start begins serving in a goroutine.
func (s *Server) Start() {
	go func() {
		s.log.Info().Str("addr", s.server.Addr).Msg("WebSocket server listening")
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error().Err(err).Msg("WebSocket server error")
		}
	}()
}

// Shutdown stops accepting connections and waits for in-flight handlers.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// handleSocket upgrades the request and pumps messages into a connection
// session until the socket closes.
func (s *Server) handleSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		s.log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("WebSocket upgrade failed")
		return
	}

	connID := fmt.Sprintf("conn-%d", s.connSeq.Add(1))
	connLog := logging.WithConnection(connID)
	connLog.Info().Str("remote", r.RemoteAddr).Msg("Client connected")
	s.m.RecordConnectionOpen()

	deps := s.deps
	deps.Logger = connLog
	sess := session.NewConnectionSession(newLockedConn(conn), deps)

	// The session outlives the upgrade request; its context must not be
	// tied to r.Context().
	s.readLoop(context.Background(), conn, sess, connLog)

	sess.Close()
	_ = conn.Close()
	s.m.RecordConnectionClose()
	connLog.Info().Msg("Client disconnected")
}

func (s *Server) readLoop(ctx context.Context, conn *websocket.Conn, sess *session.ConnectionSession, log zerolog.Logger) {
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				log.Warn().Err(err).Msg("Unexpected socket close")
			}
			return
		}

		switch msgType {
		case websocket.BinaryMessage:
			sess.HandleBinary(ctx, data)
		case websocket.TextMessage:
			sess.HandleText(ctx, data)
		}
	}
}

// lockedConn serializes writes to a gorilla connection. Error frames from
// recognition callbacks and transcript echoes race with dispatcher writes,
// and gorilla allows at most one concurrent writer.
type lockedConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func newLockedConn(conn *websocket.Conn) *lockedConn {
	return &lockedConn{conn: conn}
}

func (l *lockedConn) WriteJSON(v any) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.conn.WriteJSON(v)
}

func (l *lockedConn) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	_ = l.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	return l.conn.Close()
}
