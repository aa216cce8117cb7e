package assignment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/classpulse/backend/internal/protocol"
)

const (
	readChunkSize = 32 * 1024
	idleTimeout   = 30 * time.Second
	replyTimeout  = 10 * time.Second
)

// UploadServer accepts framed submission uploads over raw TCP. Each
// connection carries exactly one upload: the length-prefixed JSON
// header, then the declared number of payload bytes. The server
// answers with a single JSON status line and closes.
//
// A connection that drops before the declared payload arrives leaves
// no trace: nothing is stored and no notification goes out.
type UploadServer struct {
	addr    string
	manager *Manager
	logger  *zap.Logger

	mu sync.Mutex
	ln net.Listener
	wg sync.WaitGroup
}

func NewUploadServer(addr string, manager *Manager, logger *zap.Logger) *UploadServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UploadServer{addr: addr, manager: manager, logger: logger}
}

// Listen binds the upload port.
func (s *UploadServer) Listen() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("upload server listen %s: %w", s.addr, err)
	}
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()
	s.logger.Info("upload server listening", zap.String("addr", ln.Addr().String()))
	return nil
}

// Addr returns the bound listener address, or nil before Listen.
func (s *UploadServer) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Serve runs the accept loop until the listener is closed.
func (s *UploadServer) Serve() error {
	s.mu.Lock()
	ln := s.ln
	s.mu.Unlock()
	if ln == nil {
		return errors.New("upload server: Serve before Listen")
	}
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("upload server accept: %w", err)
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(conn)
		}()
	}
}

// Close stops accepting and waits for in-flight uploads to finish.
func (s *UploadServer) Close() error {
	s.mu.Lock()
	ln := s.ln
	s.mu.Unlock()
	var err error
	if ln != nil {
		err = ln.Close()
	}
	s.wg.Wait()
	return err
}

func (s *UploadServer) handleConn(conn net.Conn) {
	defer conn.Close()

	var state protocol.TransferState
	buf := make([]byte, readChunkSize)
	for !state.Complete() {
		conn.SetReadDeadline(time.Now().Add(idleTimeout))
		n, err := conn.Read(buf)
		if n > 0 {
			if _, ferr := state.Feed(buf[:n]); ferr != nil {
				s.logger.Info("upload rejected",
					zap.String("remote", conn.RemoteAddr().String()),
					zap.Error(ferr))
				s.reply(conn, map[string]any{"status": "error", "reason": ferr.Error()})
				return
			}
		}
		if err != nil {
			// EOF or timeout mid-transfer: the upload never completed,
			// so the partial payload is discarded without a record.
			if !errors.Is(err, io.EOF) || !state.Complete() {
				s.logger.Info("upload dropped mid-transfer",
					zap.String("remote", conn.RemoteAddr().String()),
					zap.Int64("received", int64(len(state.Payload()))),
					zap.Error(err))
				return
			}
		}
	}

	hdr := state.Header()
	if t := state.TrailingBytes(); t > 0 {
		s.logger.Warn("upload carried trailing bytes",
			zap.String("assignment_id", hdr.AssignmentID),
			zap.Int64("trailing", t))
	}

	up, err := s.manager.RecordUpload(context.Background(), hdr, state.Payload())
	if err != nil {
		s.logger.Info("upload refused",
			zap.String("assignment_id", hdr.AssignmentID),
			zap.String("student", hdr.StudentName),
			zap.Error(err))
		s.reply(conn, map[string]any{"status": "error", "reason": err.Error()})
		return
	}

	s.reply(conn, map[string]any{
		"status":     "ok",
		"uploadId":   up.ID,
		"storedName": up.StoredName,
		"size":       up.Size,
	})
}

func (s *UploadServer) reply(conn net.Conn, fields map[string]any) {
	line, err := protocol.Encode("uploadResult", fields)
	if err != nil {
		return
	}
	conn.SetWriteDeadline(time.Now().Add(replyTimeout))
	conn.Write(line)
}
