// Package control carries the JSON message protocol between paired devices
// over persistent WebSocket connections.
//
// The server accepts any number of peers and dispatches inbound messages to
// a single handler, in arrival order per connection. The client side holds
// exactly one connection to a remote server. Both endpoints speak the
// envelope codec from the protocol package.
package control

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hyperdesk/hyperdesk/internal/logger"
	"github.com/hyperdesk/hyperdesk/internal/metrics"
	"github.com/hyperdesk/hyperdesk/internal/protocol"
)

// HandlerFunc consumes one inbound message. It runs on the connection's read
// goroutine: messages from one peer are handled strictly in arrival order.
type HandlerFunc func(conn *Conn, msg *protocol.Message)

// Conn is one connected peer. Send is safe for concurrent use.
type Conn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
}

// Send encodes and writes one message to this peer.
func (c *Conn) Send(messageType string, payload protocol.Payload, requestID string) error {
	data, err := protocol.Encode(messageType, payload, requestID)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// RemoteAddr returns the peer's network address.
func (c *Conn) RemoteAddr() string {
	return c.ws.RemoteAddr().String()
}

// Server is the control plane listener.
type Server struct {
	host    string
	port    int
	handler HandlerFunc

	upgrader websocket.Upgrader
	httpSrv  *http.Server
	listener net.Listener

	mu    sync.Mutex
	peers map[*Conn]struct{}
	wg    sync.WaitGroup
}

// NewServer returns an unstarted server. The handler may be nil, in which
// case inbound messages are decoded and dropped.
func NewServer(host string, port int, handler HandlerFunc) *Server {
	return &Server{
		host:    host,
		port:    port,
		handler: handler,
		upgrader: websocket.Upgrader{
			// The LAN peer is not a browser; origin checks do not apply.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		peers: make(map[*Conn]struct{}),
	}
}

// Start binds the listener and begins serving. Non-blocking.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", fmt.Sprintf("%s:%d", s.host, s.port))
	if err != nil {
		return fmt.Errorf("failed to bind control port: %w", err)
	}
	s.listener = listener

	router := chi.NewRouter()
	router.Get("/", s.handleWebSocket)
	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	router.Handle("/metrics", promhttp.Handler())

	s.httpSrv = &http.Server{Handler: router}
	go func() {
		if err := s.httpSrv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("control server terminated", logger.Err(err))
		}
	}()

	logger.Info("control server listening",
		logger.Peer(listener.Addr().String()))
	return nil
}

// Port returns the bound port, useful when started with port 0.
func (s *Server) Port() int {
	if s.listener == nil {
		return s.port
	}
	return s.listener.Addr().(*net.TCPAddr).Port
}

// Stop closes the listener, disconnects every peer, and waits for in-flight
// handlers to return.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	err := s.httpSrv.Shutdown(ctx)

	s.mu.Lock()
	for peer := range s.peers {
		peer.ws.Close()
	}
	s.peers = make(map[*Conn]struct{})
	s.mu.Unlock()

	s.wg.Wait()
	return err
}

// Broadcast sends one message to every connected peer. Peers that fail
// mid-send are dropped from the active set.
func (s *Server) Broadcast(messageType string, payload protocol.Payload) {
	data, err := protocol.Encode(messageType, payload, "")
	if err != nil {
		logger.Error("broadcast encode failed",
			logger.MsgType(messageType), logger.Err(err))
		return
	}

	s.mu.Lock()
	peers := make([]*Conn, 0, len(s.peers))
	for peer := range s.peers {
		peers = append(peers, peer)
	}
	s.mu.Unlock()

	for _, peer := range peers {
		peer.writeMu.Lock()
		err := peer.ws.WriteMessage(websocket.TextMessage, data)
		peer.writeMu.Unlock()
		if err != nil {
			logger.Warn("dropping unreachable peer",
				logger.Peer(peer.RemoteAddr()), logger.Err(err))
			s.removePeer(peer)
		}
	}
}

// PeerCount returns the number of connected peers.
func (s *Server) PeerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.peers)
}

func (s *Server) removePeer(peer *Conn) {
	s.mu.Lock()
	delete(s.peers, peer)
	s.mu.Unlock()
	peer.ws.Close()
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", logger.Err(err))
		return
	}

	peer := &Conn{ws: ws}
	s.mu.Lock()
	s.peers[peer] = struct{}{}
	s.mu.Unlock()

	logger.Debug("peer connected", logger.Peer(peer.RemoteAddr()))

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.removePeer(peer)
		s.readLoop(peer)
		logger.Debug("peer disconnected", logger.Peer(peer.RemoteAddr()))
	}()
}

func (s *Server) readLoop(peer *Conn) {
	for {
		_, data, err := peer.ws.ReadMessage()
		if err != nil {
			return
		}
		msg, err := protocol.Decode(data)
		if err != nil {
			// Malformed frames are logged and dropped; the connection lives on.
			logger.Warn("dropping malformed control frame",
				logger.Peer(peer.RemoteAddr()), logger.Err(err))
			continue
		}
		metrics.ControlMessagesTotal.WithLabelValues(msg.Type).Inc()
		if s.handler != nil {
			s.handler(peer, msg)
		}
	}
}

// DialTimeout bounds the client's connection attempt.
const DialTimeout = 10 * time.Second
