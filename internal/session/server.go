package session

import (
	"bytes"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/classpulse/backend/internal/broadcast"
	"github.com/classpulse/backend/internal/chat"
	"github.com/classpulse/backend/internal/poll"
	"github.com/classpulse/backend/internal/protocol"
	"github.com/classpulse/backend/internal/quiz"
	"github.com/classpulse/backend/internal/vote"
)

var pongLine = []byte(protocol.HeartbeatPong + "\n")

// Server accepts student connections on the line protocol and routes
// their messages into the interaction engines. Every connection must
// join with a display name before anything else is accepted; heartbeat
// pings are the one exception.
type Server struct {
	addr     string
	registry *Registry
	hub      *broadcast.Hub
	polls    *poll.Engine
	votes    *vote.Engine
	quizzes  *quiz.Manager
	chat     *chat.Manager
	logger   *zap.Logger

	mu sync.Mutex
	ln net.Listener
	wg sync.WaitGroup
}

func NewServer(addr string, registry *Registry, hub *broadcast.Hub, polls *poll.Engine, votes *vote.Engine, quizzes *quiz.Manager, chatMgr *chat.Manager, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		addr:     addr,
		registry: registry,
		hub:      hub,
		polls:    polls,
		votes:    votes,
		quizzes:  quizzes,
		chat:     chatMgr,
		logger:   logger,
	}
}

// Listen binds the server's TCP port. Split from Serve so callers and
// tests can learn the bound address before accepting.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("session server listen %s: %w", s.addr, err)
	}
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()
	s.logger.Info("session server listening", zap.String("addr", ln.Addr().String()))
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
		return errors.New("session server: Serve before Listen")
	}
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("session server accept: %w", err)
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(conn)
		}()
	}
}

// Close stops accepting, closes every live session, and waits for the
// connection handlers to drain.
func (s *Server) Close() error {
	s.mu.Lock()
	ln := s.ln
	s.mu.Unlock()
	var err error
	if ln != nil {
		err = ln.Close()
	}
	for _, sess := range s.registry.Snapshot() {
		sess.Close()
	}
	s.wg.Wait()
	return err
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	var sess *Session
	defer func() {
		if sess != nil {
			sess.Close()
			s.hub.Unsubscribe(sess.ID())
			s.registry.Remove(sess.ID())
			s.logger.Info("session disconnected",
				zap.String("session_id", sess.ID()),
				zap.String("name", sess.Name()))
		}
	}()

	sc := protocol.NewLineScanner(conn)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		// Heartbeats are bare tokens, not JSON, and are answered in
		// both the joined and pre-join states.
		if string(line) == protocol.HeartbeatPing {
			if sess != nil {
				sess.Send(pongLine)
			} else {
				conn.Write(pongLine)
			}
			continue
		}

		in, err := protocol.DecodeInbound(line)
		if err != nil {
			s.reply(sess, conn, errorFields(err))
			continue
		}

		if sess == nil {
			sess = s.join(conn, in)
			continue
		}
		s.dispatch(sess, in)
	}
	if err := sc.Err(); err != nil && !errors.Is(err, net.ErrClosed) {
		s.logger.Debug("session read ended", zap.Error(err))
	}
}

// join handles the mandatory first message. It returns the new session
// on success and nil when the message was rejected, leaving the
// connection open for another attempt.
func (s *Server) join(conn net.Conn, in *protocol.Inbound) *Session {
	if in.Type != protocol.TypeJoin {
		s.reply(nil, conn, errorFields(ErrNotJoined))
		return nil
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		s.reply(nil, conn, errorFields(ErrEmptyName))
		return nil
	}

	sess := newSession(name, conn, s.logger)
	s.registry.Put(sess)
	s.hub.Subscribe(sess)
	go sess.writePump()

	sess.Send(protocol.MustEncode(protocol.TypeWelcome, map[string]any{
		"sessionId": sess.ID(),
		"name":      sess.Name(),
	}))
	s.logger.Info("session joined",
		zap.String("session_id", sess.ID()),
		zap.String("name", sess.Name()))
	return sess
}

func (s *Server) dispatch(sess *Session, in *protocol.Inbound) {
	switch in.Type {
	case protocol.TypeJoin:
		sess.Send(protocol.MustEncode(protocol.TypeError, map[string]any{
			"reason": "already joined",
		}))
	case protocol.TypeAnswer:
		s.handleAnswer(sess, in)
	case protocol.TypeVote:
		s.handleVote(sess, in)
	case protocol.TypeQuizAnswer:
		s.handleQuizAnswer(sess, in)
	case protocol.TypeChat:
		s.handleChat(sess, in)
	default:
		sess.Send(protocol.MustEncode(protocol.TypeError, map[string]any{
			"reason": fmt.Sprintf("unknown message type %q", in.Type),
		}))
	}
}

func (s *Server) handleAnswer(sess *Session, in *protocol.Inbound) {
	if in.PollID == "" || in.Choice == nil {
		sess.Send(protocol.MustEncode(protocol.TypeError, map[string]any{
			"reason": "answer requires pollId and choice",
		}))
		return
	}
	key := "poll:" + in.PollID
	if sess.HasAnswered(key) {
		sess.Send(protocol.MustEncode(protocol.TypeError, map[string]any{
			"reason": "already answered this poll",
			"pollId": in.PollID,
		}))
		return
	}
	if err := s.polls.Tally(in.PollID, *in.Choice); err != nil {
		sess.Send(protocol.MustEncode(protocol.TypeError, map[string]any{
			"reason": err.Error(),
			"pollId": in.PollID,
		}))
		return
	}
	sess.MarkAnswered(key)
	sess.Send(protocol.MustEncode(protocol.TypeAck, map[string]any{
		"scope":  "poll",
		"pollId": in.PollID,
	}))
	if p := s.polls.Current(); p != nil {
		s.hub.Publish(protocol.TypeResult, protocol.Fields(p.Snapshot()))
	}
}

func (s *Server) handleVote(sess *Session, in *protocol.Inbound) {
	if in.VoteID == "" || in.Choice == nil {
		sess.Send(protocol.MustEncode(protocol.TypeError, map[string]any{
			"reason": "vote requires voteId and choice",
		}))
		return
	}
	if err := s.votes.Cast(in.VoteID, sess.Name(), *in.Choice); err != nil {
		sess.Send(protocol.MustEncode(protocol.TypeError, map[string]any{
			"reason": err.Error(),
			"voteId": in.VoteID,
		}))
		return
	}
	sess.Send(protocol.MustEncode(protocol.TypeAck, map[string]any{
		"scope":  "vote",
		"voteId": in.VoteID,
	}))
	if v, err := s.votes.Get(in.VoteID); err == nil {
		s.hub.Publish(protocol.TypeVote, protocol.Fields(v.Snapshot()))
	}
}

func (s *Server) handleQuizAnswer(sess *Session, in *protocol.Inbound) {
	if in.Choice == nil {
		sess.Send(protocol.MustEncode(protocol.TypeError, map[string]any{
			"reason": "quizAnswer requires choice",
		}))
		return
	}
	rt := s.quizzes.ActiveRuntime()
	if rt == nil {
		sess.Send(protocol.MustEncode(protocol.TypeError, map[string]any{
			"reason": quiz.ErrNoActiveQuiz.Error(),
		}))
		return
	}
	// Correctness stays hidden until the instructor reveals; the ack
	// only confirms the submission was recorded.
	if _, err := rt.SubmitAnswer(sess.Name(), *in.Choice); err != nil {
		sess.Send(protocol.MustEncode(protocol.TypeError, map[string]any{
			"reason": err.Error(),
		}))
		return
	}
	sess.Send(protocol.MustEncode(protocol.TypeAck, map[string]any{
		"scope": "quiz",
	}))
}

func (s *Server) handleChat(sess *Session, in *protocol.Inbound) {
	// The manager broadcasts accepted messages itself; only rejections
	// come back to the sender.
	if _, err := s.chat.Post(sess.Name(), in.Message); err != nil {
		sess.Send(protocol.MustEncode(protocol.TypeError, map[string]any{
			"reason": err.Error(),
		}))
	}
}

// reply sends an error either through the session queue or, before
// join, directly on the connection.
func (s *Server) reply(sess *Session, conn net.Conn, fields map[string]any) {
	line := protocol.MustEncode(protocol.TypeError, fields)
	if sess != nil {
		sess.Send(line)
		return
	}
	conn.Write(line)
}

func errorFields(err error) map[string]any {
	return map[string]any{"reason": err.Error()}
}
