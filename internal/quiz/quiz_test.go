package quiz

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/classpulse/backend/internal/questionbank"
)

func seedBank(t *testing.T, n int) (questionbank.Bank, []string) {
	t.Helper()
	bank := questionbank.NewMemory()
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		q := &questionbank.Question{
			Text:         fmt.Sprintf("Question %d?", i+1),
			Options:      [4]string{"a", "b", "c", "d"},
			CorrectIndex: i % 4,
		}
		if err := bank.Add(context.Background(), q); err != nil {
			t.Fatalf("seed question %d: %v", i, err)
		}
		ids = append(ids, q.ID)
	}
	return bank, ids
}

func launchQuiz(t *testing.T, m *Manager, bank questionbank.Bank, ids []string, perCorrect int) *Runtime {
	t.Helper()
	q, err := m.Create("Networking basics", "", ids, 0, 0, perCorrect)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := m.MarkReady(q.ID); err != nil {
		t.Fatalf("MarkReady: %v", err)
	}
	rt, err := m.Launch(context.Background(), q.ID, bank)
	if err != nil {
		t.Fatalf("Launch: %v", err)
	}
	return rt
}

func TestLifecycle(t *testing.T) {
	bank, ids := seedBank(t, 2)
	m := NewManager(nil)

	t.Run("create requires questions", func(t *testing.T) {
		if _, err := m.Create("empty", "", nil, 0, 0, 1); !errors.Is(err, ErrNoQuestions) {
			t.Fatalf("err = %v, want ErrNoQuestions", err)
		}
	})

	q, err := m.Create("Quiz", "", ids, 0, 0, 2)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if q.Status != StatusDraft {
		t.Errorf("status = %s, want DRAFT", q.Status)
	}

	t.Run("launch conflict while running", func(t *testing.T) {
		rt, err := m.Launch(context.Background(), q.ID, bank)
		if err != nil {
			t.Fatalf("Launch: %v", err)
		}
		// Relaunching the running quiz is idempotent.
		again, err := m.Launch(context.Background(), q.ID, bank)
		if err != nil || again != rt {
			t.Fatalf("relaunch: rt=%p again=%p err=%v", rt, again, err)
		}
		// A second quiz can't launch concurrently.
		other, _ := m.Create("Other", "", ids, 0, 0, 1)
		if _, err := m.Launch(context.Background(), other.ID, bank); !errors.Is(err, ErrQuizRunning) {
			t.Fatalf("err = %v, want ErrQuizRunning", err)
		}
	})

	t.Run("running quiz is immutable", func(t *testing.T) {
		if _, err := m.Update(q.ID, "new title", "", nil, 0, 0, 0); !errors.Is(err, ErrImmutable) {
			t.Errorf("update: err = %v, want ErrImmutable", err)
		}
		if err := m.Delete(q.ID); !errors.Is(err, ErrImmutable) {
			t.Errorf("delete: err = %v, want ErrImmutable", err)
		}
	})

	t.Run("end clears the runtime", func(t *testing.T) {
		if _, err := m.End(); err != nil {
			t.Fatalf("End: %v", err)
		}
		if m.ActiveRuntime() != nil {
			t.Error("runtime should be discarded after end")
		}
		got, _ := m.Get(q.ID)
		if got.Status != StatusEnded {
			t.Errorf("status = %s, want ENDED", got.Status)
		}
		if _, err := m.End(); !errors.Is(err, ErrNoActiveQuiz) {
			t.Errorf("second end: err = %v, want ErrNoActiveQuiz", err)
		}
	})

	t.Run("ended quiz can be deleted", func(t *testing.T) {
		if err := m.Delete(q.ID); err != nil {
			t.Fatalf("Delete: %v", err)
		}
	})
}

func TestLaunchFailsOnDanglingQuestion(t *testing.T) {
	bank, ids := seedBank(t, 1)
	m := NewManager(nil)
	q, _ := m.Create("Quiz", "", append(ids, "q-missing"), 0, 0, 1)
	if _, err := m.Launch(context.Background(), q.ID, bank); !errors.Is(err, questionbank.ErrNotFound) {
		t.Fatalf("err = %v, want questionbank.ErrNotFound", err)
	}
	if m.ActiveRuntime() != nil {
		t.Error("failed launch must not leave a runtime behind")
	}
}

func TestScoringIsOrderIndependent(t *testing.T) {
	bank, ids := seedBank(t, 4) // correct answers are 0,1,2,3
	m := NewManager(nil)
	rt := launchQuiz(t, m, bank, ids, 5)

	if _, err := rt.StartFirstQuestion(); err != nil {
		t.Fatalf("StartFirstQuestion: %v", err)
	}

	// Alice: 3 correct, 1 wrong. Bob: all wrong. Carol answers in a
	// different per-question order relative to Alice.
	answers := map[string][]int{
		"alice": {0, 1, 2, 0}, // correct, correct, correct, wrong
		"bob":   {1, 0, 3, 0}, // all wrong
		"carol": {0, 1, 2, 3}, // all correct
	}
	for qi := 0; ; qi++ {
		students := []string{"alice", "bob", "carol"}
		if qi%2 == 1 { // vary submission order per question
			students = []string{"carol", "bob", "alice"}
		}
		for _, s := range students {
			if _, err := rt.SubmitAnswer(s, answers[s][qi]); err != nil {
				t.Fatalf("submit %s q%d: %v", s, qi, err)
			}
		}
		if _, ok := rt.NextQuestion(); !ok {
			break
		}
	}

	if got := rt.Score("alice"); got != 15 {
		t.Errorf("alice score = %d, want 15", got)
	}
	if got := rt.Score("bob"); got != 0 {
		t.Errorf("bob score = %d, want 0", got)
	}
	if got := rt.Score("carol"); got != 20 {
		t.Errorf("carol score = %d, want 20", got)
	}

	board := rt.Leaderboard()
	if len(board) != 3 {
		t.Fatalf("leaderboard has %d entries, want 3 (zero scores included)", len(board))
	}
	if board[0].Student != "carol" || board[1].Student != "alice" || board[2].Student != "bob" {
		t.Errorf("leaderboard order = %v", board)
	}
}

func TestFirstSubmissionWins(t *testing.T) {
	bank, ids := seedBank(t, 1) // correct answer index 0
	m := NewManager(nil)
	rt := launchQuiz(t, m, bank, ids, 3)
	rt.StartFirstQuestion()

	if _, err := rt.SubmitAnswer("dana", 1); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if _, err := rt.SubmitAnswer("dana", 0); !errors.Is(err, ErrAlreadyAnswered) {
		t.Fatalf("second submit: err = %v, want ErrAlreadyAnswered", err)
	}
	if got := rt.Score("dana"); got != 0 {
		t.Errorf("score = %d, want 0 (late correct answer must not count)", got)
	}
	if counts := rt.CurrentCounts(); counts != [4]int{0, 1, 0, 0} {
		t.Errorf("counts = %v, want [0 1 0 0]", counts)
	}
}

func TestSubmitRejections(t *testing.T) {
	bank, ids := seedBank(t, 1)
	m := NewManager(nil)
	rt := launchQuiz(t, m, bank, ids, 1)

	if _, err := rt.SubmitAnswer("eve", 0); !errors.Is(err, ErrNoActiveQuestion) {
		t.Errorf("before first question: err = %v, want ErrNoActiveQuestion", err)
	}
	rt.StartFirstQuestion()
	if _, err := rt.SubmitAnswer("eve", 7); !errors.Is(err, ErrInvalidChoice) {
		t.Errorf("bad choice: err = %v, want ErrInvalidChoice", err)
	}
	m.End()
	if _, err := rt.SubmitAnswer("eve", 0); !errors.Is(err, ErrQuizEnded) {
		t.Errorf("after end: err = %v, want ErrQuizEnded", err)
	}
}

func TestNextQuestionCompletionSignal(t *testing.T) {
	const n = 3
	bank, ids := seedBank(t, n)
	m := NewManager(nil)
	rt := launchQuiz(t, m, bank, ids, 1)
	rt.StartFirstQuestion()

	// n questions: NextQuestion succeeds n-1 times, then signals done.
	for i := 1; i < n; i++ {
		q, ok := rt.NextQuestion()
		if !ok || q == nil {
			t.Fatalf("NextQuestion %d: ok=%v", i, ok)
		}
		if _, idx, _ := rt.CurrentQuestion(); idx != i {
			t.Errorf("current index = %d, want %d", idx, i)
		}
	}
	if _, ok := rt.NextQuestion(); ok {
		t.Fatal("NextQuestion past the end must signal completion")
	}
	// Completion does not advance the cursor.
	if _, idx, _ := rt.CurrentQuestion(); idx != n-1 {
		t.Errorf("current index = %d, want %d", idx, n-1)
	}
}

func TestRevealFlagResetsPerQuestion(t *testing.T) {
	bank, ids := seedBank(t, 2)
	m := NewManager(nil)
	rt := launchQuiz(t, m, bank, ids, 1)
	rt.StartFirstQuestion()

	rt.RevealCurrentQuestion()
	if !rt.CurrentQuestionRevealed() {
		t.Fatal("reveal flag not set")
	}
	rt.NextQuestion()
	if rt.CurrentQuestionRevealed() {
		t.Fatal("reveal flag must reset on question advance")
	}
}

func TestTimeBudgets(t *testing.T) {
	bank, ids := seedBank(t, 1)
	m := NewManager(nil)

	t.Run("no budget never exceeds", func(t *testing.T) {
		rt := launchQuiz(t, m, bank, ids, 1)
		rt.StartFirstQuestion()
		if rt.IsQuestionTimeExceeded() || rt.IsQuizTimeExceeded() {
			t.Error("unbudgeted quiz must never report exceeded")
		}
		if rt.RemainingQuestionSeconds() != -1 {
			t.Errorf("remaining = %d, want -1 without a budget", rt.RemainingQuestionSeconds())
		}
		m.End()
	})

	t.Run("generous budget not exceeded", func(t *testing.T) {
		q, _ := m.Create("Timed", "", ids, 3600, 7200, 1)
		rt, err := m.Launch(context.Background(), q.ID, bank)
		if err != nil {
			t.Fatalf("Launch: %v", err)
		}
		rt.StartFirstQuestion()
		if rt.IsQuestionTimeExceeded() || rt.IsQuizTimeExceeded() {
			t.Error("fresh timed quiz must not be exceeded")
		}
		if r := rt.RemainingQuestionSeconds(); r <= 0 || r > 3600 {
			t.Errorf("remaining = %d, want (0, 3600]", r)
		}
		m.End()
	})
}
