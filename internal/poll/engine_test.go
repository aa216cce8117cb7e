package poll

import (
	"errors"
	"sync"
	"testing"
)

func TestCreateValidation(t *testing.T) {
	e := NewEngine(nil)

	t.Run("rejects wrong option count", func(t *testing.T) {
		if _, err := e.Create("q", []string{"a", "b", "c"}, 0, 0); !errors.Is(err, ErrInvalidOptions) {
			t.Fatalf("err = %v, want ErrInvalidOptions", err)
		}
	})

	t.Run("rejects empty option", func(t *testing.T) {
		if _, err := e.Create("q", []string{"a", " ", "c", "d"}, 0, 0); !errors.Is(err, ErrInvalidOptions) {
			t.Fatalf("err = %v, want ErrInvalidOptions", err)
		}
	})

	t.Run("rejects out-of-range correct index", func(t *testing.T) {
		if _, err := e.Create("q", []string{"a", "b", "c", "d"}, 4, 0); !errors.Is(err, ErrInvalidCorrectIndex) {
			t.Fatalf("err = %v, want ErrInvalidCorrectIndex", err)
		}
	})

	t.Run("duplicate options allowed for polls", func(t *testing.T) {
		if _, err := e.Create("q", []string{"a", "a", "a", "a"}, 0, 0); err != nil {
			t.Fatalf("err = %v, want nil", err)
		}
	})

	t.Run("counters start at zero", func(t *testing.T) {
		p, err := e.Create("q", []string{"a", "b", "c", "d"}, 1, 0)
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		for i, c := range p.Snapshot().Counts {
			if c != 0 {
				t.Errorf("counts[%d] = %d, want 0", i, c)
			}
		}
	})
}

func TestPollScenario(t *testing.T) {
	e := NewEngine(nil)
	p, err := e.Create("Which number is prime?", []string{"1", "4", "5", "8"}, 1, 0)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := e.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := e.Tally(p.ID, 1); err != nil {
			t.Fatalf("Tally choice 1: %v", err)
		}
	}
	if err := e.Tally(p.ID, 3); err != nil {
		t.Fatalf("Tally choice 3: %v", err)
	}

	s := p.Snapshot()
	if s.Counts != [4]int{0, 3, 0, 1} {
		t.Errorf("counts = %v, want [0 3 0 1]", s.Counts)
	}
	if s.Percentages != [4]float64{0, 75, 0, 25} {
		t.Errorf("percent = %v, want [0 75 0 25]", s.Percentages)
	}
	if len(s.Winners) != 1 || s.Winners[0] != 1 {
		t.Errorf("winners = %v, want [1]", s.Winners)
	}
}

func TestStartIsIdempotent(t *testing.T) {
	e := NewEngine(nil)
	p, _ := e.Create("q", []string{"a", "b", "c", "d"}, 0, 0)

	first, err := e.Start()
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	second, err := e.Start()
	if err != nil {
		t.Fatalf("second Start: %v", err)
	}
	if first != p || second != p {
		t.Error("Start must return the same poll both times")
	}
	if p.State() != StateActive {
		t.Errorf("state = %s, want ACTIVE", p.State())
	}
}

func TestTallyRejections(t *testing.T) {
	e := NewEngine(nil)

	if err := e.Tally("p1", 0); !errors.Is(err, ErrNoPoll) {
		t.Errorf("tally with no poll: err = %v, want ErrNoPoll", err)
	}

	p, _ := e.Create("q", []string{"a", "b", "c", "d"}, 0, 0)

	if err := e.Tally(p.ID, 0); !errors.Is(err, ErrNotActive) {
		t.Errorf("tally before start: err = %v, want ErrNotActive", err)
	}

	e.Start()
	if err := e.Tally(p.ID, 4); !errors.Is(err, ErrInvalidChoice) {
		t.Errorf("out-of-range choice: err = %v, want ErrInvalidChoice", err)
	}
	if err := e.Tally("nope", 0); !errors.Is(err, ErrNotCurrent) {
		t.Errorf("wrong poll id: err = %v, want ErrNotCurrent", err)
	}

	e.End()
	if err := e.Tally(p.ID, 0); !errors.Is(err, ErrNotActive) {
		t.Errorf("tally after end: err = %v, want ErrNotActive", err)
	}
	if p.Snapshot().Counts != [4]int{} {
		t.Error("rejected tallies must not change counters")
	}
}

func TestTallyStudentOnceEach(t *testing.T) {
	e := NewEngine(nil)
	p, _ := e.Create("q", []string{"a", "b", "c", "d"}, 0, 0)
	e.Start()

	if err := e.TallyStudent(p.ID, "ada", 1); err != nil {
		t.Fatalf("first answer: %v", err)
	}
	if err := e.TallyStudent(p.ID, "ada", 2); !errors.Is(err, ErrAlreadyAnswered) {
		t.Errorf("second answer: err = %v, want ErrAlreadyAnswered", err)
	}
	if err := e.TallyStudent(p.ID, "grace", 1); err != nil {
		t.Fatalf("other student: %v", err)
	}
	if counts := p.Snapshot().Counts; counts != [4]int{0, 2, 0, 0} {
		t.Errorf("counts = %v, want [0 2 0 0]", counts)
	}

	t.Run("concurrent same student counts once", func(t *testing.T) {
		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = e.TallyStudent(p.ID, "alan", 3)
			}()
		}
		wg.Wait()
		if counts := p.Snapshot().Counts; counts[3] != 1 {
			t.Errorf("counts[3] = %d, want 1", counts[3])
		}
	})
}

func TestNewPollReplacesCurrent(t *testing.T) {
	e := NewEngine(nil)
	old, _ := e.Create("first", []string{"a", "b", "c", "d"}, 0, 0)
	e.Start()

	cur, _ := e.Create("second", []string{"w", "x", "y", "z"}, 2, 0)
	if e.Current() != cur {
		t.Fatal("current poll not replaced")
	}

	// Tallies against the replaced poll are rejected; the old poll stays
	// retrievable by id.
	if err := e.Tally(old.ID, 0); !errors.Is(err, ErrNotCurrent) {
		t.Errorf("err = %v, want ErrNotCurrent", err)
	}
	if _, ok := e.Get(old.ID); !ok {
		t.Error("old poll should remain retrievable")
	}
}

func TestWinnersEmptyWhenNoAnswers(t *testing.T) {
	e := NewEngine(nil)
	p, _ := e.Create("q", []string{"a", "b", "c", "d"}, 0, 0)
	if w := p.Winners(); len(w) != 0 {
		t.Errorf("winners = %v, want empty", w)
	}
}

func TestConcurrentTallies(t *testing.T) {
	e := NewEngine(nil)
	p, _ := e.Create("q", []string{"a", "b", "c", "d"}, 0, 0)
	e.Start()

	const perOption = 50
	var wg sync.WaitGroup
	for choice := 0; choice < 4; choice++ {
		for i := 0; i < perOption; i++ {
			wg.Add(1)
			go func(c int) {
				defer wg.Done()
				_ = e.Tally(p.ID, c)
			}(choice)
		}
	}
	wg.Wait()

	for i, c := range p.Snapshot().Counts {
		if c != perOption {
			t.Errorf("counts[%d] = %d, want %d", i, c, perOption)
		}
	}
}
