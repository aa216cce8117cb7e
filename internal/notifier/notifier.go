// Package notifier implements the assignment push channel: a minimal
// WebSocket server speaking only the frame subset browsers need for
// one-way text notifications. It does the HTTP upgrade by hand rather
// than pulling a full WebSocket stack into what is a broadcast-only
// endpoint.
package notifier

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/classpulse/backend/internal/protocol"
)

const writeWait = 10 * time.Second

type client struct {
	id   string
	conn net.Conn

	mu sync.Mutex // serializes frame writes
}

func (c *client) writeFrame(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	_, err := c.conn.Write(frame)
	return err
}

// Server accepts WebSocket clients and pushes text notifications to all
// of them. Inbound traffic is limited to pings and close frames.
type Server struct {
	addr   string
	logger *zap.Logger

	mu      sync.Mutex
	ln      net.Listener
	clients map[string]*client
	wg      sync.WaitGroup
}

func NewServer(addr string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		addr:    addr,
		logger:  logger,
		clients: make(map[string]*client),
	}
}

// Listen binds the notifier port.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("notifier listen %s: %w", s.addr, err)
	}
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()
	s.logger.Info("push notifier listening", zap.String("addr", ln.Addr().String()))
	return nil
}

// Addr returns the bound listener address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Serve runs the accept loop until the listener is closed.
func (s *Server) Serve() error {
	s.mu.Lock()
	ln := s.ln
	s.mu.Unlock()
	if ln == nil {
		return errors.New("notifier: Serve before Listen")
	}
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("notifier accept: %w", err)
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(conn)
		}()
	}
}

// Close stops accepting and drops every connected client.
func (s *Server) Close() error {
	s.mu.Lock()
	ln := s.ln
	clients := make([]*client, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	var err error
	if ln != nil {
		err = ln.Close()
	}
	for _, c := range clients {
		c.conn.Close()
	}
	s.wg.Wait()
	return err
}

// ClientCount reports the number of connected clients.
func (s *Server) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Broadcast sends one text frame to every connected client. Clients
// whose write fails are dropped; nobody else is affected.
func (s *Server) Broadcast(text string) {
	frame := protocol.EncodeTextFrame([]byte(text))

	s.mu.Lock()
	clients := make([]*client, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	for _, c := range clients {
		if err := c.writeFrame(frame); err != nil {
			s.logger.Info("push client write failed, dropping",
				zap.String("client_id", c.id), zap.Error(err))
			s.drop(c)
		}
	}
}

func (s *Server) drop(c *client) {
	c.conn.Close()
	s.mu.Lock()
	delete(s.clients, c.id)
	s.mu.Unlock()
}

func (s *Server) handleConn(conn net.Conn) {
	br := bufio.NewReader(conn)
	if err := s.upgrade(conn, br); err != nil {
		s.logger.Info("websocket upgrade rejected", zap.Error(err))
		conn.Close()
		return
	}

	c := &client{id: uuid.New().String(), conn: conn}
	s.mu.Lock()
	s.clients[c.id] = c
	total := len(s.clients)
	s.mu.Unlock()
	s.logger.Info("push client connected",
		zap.String("client_id", c.id), zap.Int("clients", total))

	defer func() {
		s.drop(c)
		s.logger.Info("push client disconnected", zap.String("client_id", c.id))
	}()

	// Read loop. The channel is push-only, so the only inbound frames
	// that matter are pings and the close handshake.
	for {
		frame, err := protocol.ReadFrame(br)
		if err != nil {
			return
		}
		switch frame.Opcode {
		case protocol.OpPing:
			if err := c.writeFrame(protocol.EncodeFrame(protocol.OpPong, frame.Payload)); err != nil {
				return
			}
		case protocol.OpClose:
			c.writeFrame(protocol.EncodeFrame(protocol.OpClose, nil))
			return
		default:
			// Text and anything else from clients is ignored.
		}
	}
}

// upgrade performs the server side of the WebSocket opening handshake.
func (s *Server) upgrade(conn net.Conn, br *bufio.Reader) error {
	conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	req, err := http.ReadRequest(br)
	if err != nil {
		return fmt.Errorf("read handshake: %w", err)
	}
	conn.SetReadDeadline(time.Time{})

	if req.Method != http.MethodGet {
		return fmt.Errorf("handshake method %s, want GET", req.Method)
	}
	if !strings.EqualFold(req.Header.Get("Upgrade"), "websocket") {
		return fmt.Errorf("missing Upgrade: websocket header")
	}
	if !headerContainsToken(req.Header.Get("Connection"), "upgrade") {
		return fmt.Errorf("missing Connection: Upgrade header")
	}
	key := req.Header.Get("Sec-WebSocket-Key")
	if key == "" {
		return fmt.Errorf("missing Sec-WebSocket-Key header")
	}

	resp := "HTTP/1.1 101 Switching Protocols\r\n" +
		"Upgrade: websocket\r\n" +
		"Connection: Upgrade\r\n" +
		"Sec-WebSocket-Accept: " + protocol.AcceptKey(key) + "\r\n\r\n"
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if _, err := conn.Write([]byte(resp)); err != nil {
		return fmt.Errorf("write handshake response: %w", err)
	}
	conn.SetWriteDeadline(time.Time{})
	return nil
}

// headerContainsToken reports whether a comma-separated header value
// contains the given token, case-insensitively.
func headerContainsToken(value, token string) bool {
	for _, part := range strings.Split(value, ",") {
		if strings.EqualFold(strings.TrimSpace(part), token) {
			return true
		}
	}
	return false
}
