package session

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/classpulse/backend/internal/broadcast"
	"github.com/classpulse/backend/internal/chat"
	"github.com/classpulse/backend/internal/poll"
	"github.com/classpulse/backend/internal/protocol"
	"github.com/classpulse/backend/internal/questionbank"
	"github.com/classpulse/backend/internal/quiz"
	"github.com/classpulse/backend/internal/vote"
)

type testEnv struct {
	server  *Server
	polls   *poll.Engine
	votes   *vote.Engine
	quizzes *quiz.Manager
	chat    *chat.Manager
	bank    *questionbank.Memory
	reg     *Registry
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := zap.NewNop()
	hub := broadcast.NewHub(logger, nil)
	env := &testEnv{
		polls:   poll.NewEngine(logger),
		votes:   vote.NewEngine(logger),
		quizzes: quiz.NewManager(logger),
		chat:    chat.NewManager(hub, logger),
		bank:    questionbank.NewMemory(),
		reg:     NewRegistry(),
	}
	env.server = NewServer("127.0.0.1:0", env.reg, hub, env.polls, env.votes, env.quizzes, env.chat, logger)
	if err := env.server.Listen(); err != nil {
		t.Fatalf("listen: %v", err)
	}
	go env.server.Serve()
	t.Cleanup(func() { env.server.Close() })
	return env
}

type testClient struct {
	t    *testing.T
	conn net.Conn
	sc   *bufio.Scanner
}

func dial(t *testing.T, env *testEnv) *testClient {
	t.Helper()
	conn, err := net.Dial("tcp", env.server.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return &testClient{t: t, conn: conn, sc: protocol.NewLineScanner(conn)}
}

func (c *testClient) sendLine(line string) {
	c.t.Helper()
	if _, err := fmt.Fprintf(c.conn, "%s\n", line); err != nil {
		c.t.Fatalf("write %q: %v", line, err)
	}
}

func (c *testClient) send(v map[string]any) {
	c.t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		c.t.Fatalf("marshal: %v", err)
	}
	c.sendLine(string(b))
}

// readRaw returns the next line within the deadline.
func (c *testClient) readRaw() string {
	c.t.Helper()
	c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if !c.sc.Scan() {
		c.t.Fatalf("read line: %v", c.sc.Err())
	}
	return strings.TrimSpace(string(c.sc.Bytes()))
}

// readType reads lines until one of the wanted type arrives, skipping
// unrelated broadcasts, and returns its decoded fields.
func (c *testClient) readType(typ string) map[string]any {
	c.t.Helper()
	for i := 0; i < 20; i++ {
		line := c.readRaw()
		if line == protocol.HeartbeatPong {
			if typ == protocol.HeartbeatPong {
				return nil
			}
			continue
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			c.t.Fatalf("decode %q: %v", line, err)
		}
		if m["type"] == typ {
			return m
		}
	}
	c.t.Fatalf("no %q message within 20 lines", typ)
	return nil
}

func (c *testClient) join(name string) map[string]any {
	c.t.Helper()
	c.send(map[string]any{"type": protocol.TypeJoin, "name": name})
	return c.readType(protocol.TypeWelcome)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestJoinProtocol(t *testing.T) {
	env := newTestEnv(t)

	t.Run("message before join is rejected", func(t *testing.T) {
		c := dial(t, env)
		c.send(map[string]any{"type": protocol.TypeChat, "message": "hi"})
		m := c.readType(protocol.TypeError)
		if !strings.Contains(m["reason"].(string), "join") {
			t.Errorf("reason = %q, want join hint", m["reason"])
		}
		// The rejection leaves the connection usable.
		if w := c.join("ada"); w["name"] != "ada" {
			t.Errorf("welcome name = %v, want ada", w["name"])
		}
	})

	t.Run("empty name rejected", func(t *testing.T) {
		c := dial(t, env)
		c.send(map[string]any{"type": protocol.TypeJoin, "name": "   "})
		c.readType(protocol.TypeError)
	})

	t.Run("welcome carries session id", func(t *testing.T) {
		c := dial(t, env)
		w := c.join("grace")
		id, _ := w["sessionId"].(string)
		if id == "" {
			t.Fatal("welcome missing sessionId")
		}
		if _, ok := env.reg.Get(id); !ok {
			t.Errorf("session %s not in registry", id)
		}
	})

	t.Run("second join rejected", func(t *testing.T) {
		c := dial(t, env)
		c.join("alan")
		c.send(map[string]any{"type": protocol.TypeJoin, "name": "alan2"})
		m := c.readType(protocol.TypeError)
		if !strings.Contains(m["reason"].(string), "already joined") {
			t.Errorf("reason = %q", m["reason"])
		}
	})

	t.Run("malformed line gets error reply", func(t *testing.T) {
		c := dial(t, env)
		c.join("edsger")
		c.sendLine("{not json")
		c.readType(protocol.TypeError)
		c.sendLine(protocol.HeartbeatPing)
		c.readType(protocol.HeartbeatPong)
	})
}

func TestHeartbeat(t *testing.T) {
	env := newTestEnv(t)
	c := dial(t, env)

	// Heartbeats work before join.
	c.sendLine(protocol.HeartbeatPing)
	if got := c.readRaw(); got != protocol.HeartbeatPong {
		t.Fatalf("pre-join heartbeat reply = %q, want %q", got, protocol.HeartbeatPong)
	}

	c.join("ada")
	c.sendLine(protocol.HeartbeatPing)
	c.readType(protocol.HeartbeatPong)
}

func TestPollAnswerFlow(t *testing.T) {
	env := newTestEnv(t)
	p, err := env.polls.Create("2+2?", []string{"1", "4", "5", "8"}, 1, 0)
	if err != nil {
		t.Fatalf("create poll: %v", err)
	}
	if _, err := env.polls.Start(); err != nil {
		t.Fatalf("start poll: %v", err)
	}

	a := dial(t, env)
	a.join("ada")
	b := dial(t, env)
	b.join("bob")

	a.send(map[string]any{"type": protocol.TypeAnswer, "pollId": p.ID, "choice": 1})
	ack := a.readType(protocol.TypeAck)
	if ack["scope"] != "poll" {
		t.Errorf("ack scope = %v, want poll", ack["scope"])
	}

	// Both clients see the live result broadcast.
	for _, c := range []*testClient{a, b} {
		res := c.readType(protocol.TypeResult)
		counts, _ := res["counts"].([]any)
		if len(counts) != 4 || counts[1].(float64) != 1 {
			t.Errorf("result counts = %v, want one answer on index 1", res["counts"])
		}
		// The answer stays hidden until revealed.
		if res["correctIndex"].(float64) != -1 {
			t.Errorf("correctIndex = %v before reveal, want -1", res["correctIndex"])
		}
	}

	t.Run("second answer rejected", func(t *testing.T) {
		a.send(map[string]any{"type": protocol.TypeAnswer, "pollId": p.ID, "choice": 2})
		m := a.readType(protocol.TypeError)
		if !strings.Contains(m["reason"].(string), "already answered") {
			t.Errorf("reason = %q", m["reason"])
		}
		if got := p.Snapshot().Counts; got != [4]int{0, 1, 0, 0} {
			t.Errorf("counts = %v after rejected revote", got)
		}
	})

	t.Run("stale poll id rejected", func(t *testing.T) {
		b.send(map[string]any{"type": protocol.TypeAnswer, "pollId": "p999", "choice": 0})
		b.readType(protocol.TypeError)
	})

	t.Run("missing fields rejected", func(t *testing.T) {
		b.send(map[string]any{"type": protocol.TypeAnswer, "pollId": p.ID})
		b.readType(protocol.TypeError)
	})
}

func TestVoteFlow(t *testing.T) {
	env := newTestEnv(t)
	v, err := env.votes.Create("lunch?", []string{"pizza", "sushi", "salad", "tacos"}, false, "")
	if err != nil {
		t.Fatalf("create vote: %v", err)
	}
	if _, err := env.votes.Open(v.ID); err != nil {
		t.Fatalf("open vote: %v", err)
	}

	a := dial(t, env)
	a.join("ada")

	a.send(map[string]any{"type": protocol.TypeVote, "voteId": v.ID, "choice": 2})
	a.readType(protocol.TypeAck)
	status := a.readType(protocol.TypeVote)
	counts, _ := status["counts"].([]any)
	if counts[2].(float64) != 1 {
		t.Errorf("broadcast counts = %v, want index 2 at 1", status["counts"])
	}

	// Same identity voting again without revote is refused by the engine.
	a.send(map[string]any{"type": protocol.TypeVote, "voteId": v.ID, "choice": 0})
	a.readType(protocol.TypeError)
	if got := v.Snapshot().Counts; got != [4]int{0, 0, 1, 0} {
		t.Errorf("counts = %v after refused revote", got)
	}
}

func TestQuizAnswerFlow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	q := &questionbank.Question{
		Text:         "capital of france?",
		Options:      [4]string{"paris", "lyon", "nice", "lille"},
		CorrectIndex: 0,
	}
	if err := env.bank.Add(ctx, q); err != nil {
		t.Fatalf("add question: %v", err)
	}
	qz, err := env.quizzes.Create("geo", "", []string{q.ID}, 0, 0, 1)
	if err != nil {
		t.Fatalf("create quiz: %v", err)
	}

	a := dial(t, env)
	a.join("ada")

	t.Run("no active quiz", func(t *testing.T) {
		a.send(map[string]any{"type": protocol.TypeQuizAnswer, "choice": 0})
		a.readType(protocol.TypeError)
	})

	rt, err := env.quizzes.Launch(ctx, qz.ID, env.bank)
	if err != nil {
		t.Fatalf("launch: %v", err)
	}
	if _, err := rt.StartFirstQuestion(); err != nil {
		t.Fatalf("start first question: %v", err)
	}

	a.send(map[string]any{"type": protocol.TypeQuizAnswer, "choice": 0})
	ack := a.readType(protocol.TypeAck)
	// The ack must not leak whether the answer was correct.
	if _, leaked := ack["correct"]; leaked {
		t.Error("ack leaks correctness before reveal")
	}
	if got := rt.Score("ada"); got != 1 {
		t.Errorf("score = %d, want 1", got)
	}

	t.Run("resubmission rejected", func(t *testing.T) {
		a.send(map[string]any{"type": protocol.TypeQuizAnswer, "choice": 1})
		a.readType(protocol.TypeError)
		if got := rt.Score("ada"); got != 1 {
			t.Errorf("score changed to %d after rejected resubmission", got)
		}
	})
}

func TestChatFlow(t *testing.T) {
	env := newTestEnv(t)
	a := dial(t, env)
	a.join("ada")
	b := dial(t, env)
	b.join("bob")

	a.send(map[string]any{"type": protocol.TypeChat, "message": "hello class"})
	for _, c := range []*testClient{a, b} {
		m := c.readType(protocol.TypeChat)
		if m["username"] != "ada" || m["message"] != "hello class" {
			t.Errorf("chat broadcast = %v", m)
		}
	}

	t.Run("empty rejected", func(t *testing.T) {
		a.send(map[string]any{"type": protocol.TypeChat, "message": "   "})
		a.readType(protocol.TypeError)
	})

	t.Run("disabled rejected", func(t *testing.T) {
		env.chat.SetEnabled(false)
		a.send(map[string]any{"type": protocol.TypeChat, "message": "hi"})
		m := a.readType(protocol.TypeError)
		if !strings.Contains(m["reason"].(string), "disabled") {
			t.Errorf("reason = %q", m["reason"])
		}
	})
}

func TestUnknownType(t *testing.T) {
	env := newTestEnv(t)
	c := dial(t, env)
	c.join("ada")
	c.send(map[string]any{"type": "bogus"})
	m := c.readType(protocol.TypeError)
	if !strings.Contains(m["reason"].(string), "bogus") {
		t.Errorf("reason = %q, want to name the unknown type", m["reason"])
	}
}

func TestDisconnectCleansRegistry(t *testing.T) {
	env := newTestEnv(t)
	c := dial(t, env)
	c.join("ada")
	waitFor(t, func() bool { return env.reg.Len() == 1 })

	c.conn.Close()
	waitFor(t, func() bool { return env.reg.Len() == 0 })
}
