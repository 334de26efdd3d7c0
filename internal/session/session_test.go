package session_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/quizduel/internal/domain"
	"github.com/victornm/quizduel/internal/session"
)

var (
	alice = domain.Participant{ID: "alice-conn", DisplayName: "alice"}
	bob   = domain.Participant{ID: "bob-conn", DisplayName: "bob"}
)

func TestSession_Countdown(t *testing.T) {
	h := newHarness(t, 2)
	h.start()

	for i := range 6 {
		h.advance(time.Second)
		h.waitFor(domain.MessageGameCountdown, 2*(i+1))
	}

	var counts []int
	for _, m := range h.rec.to(alice.ID, domain.MessageGameCountdown) {
		counts = append(counts, m.(domain.GameCountdown).Count)
	}
	assert.Equal(t, []int{5, 4, 3, 2, 1, 0}, counts)
	assert.Len(t, h.rec.to(bob.ID, domain.MessageGameCountdown), 6)

	h.waitFor(domain.MessageNewQuestion, 2)
	assert.Equal(t, domain.StateActive, h.state())
	assert.Equal(t, domain.NewQuestion{
		Question:       "q0",
		Options:        []string{"right", "wrong"},
		QuestionNumber: 1,
	}, h.rec.to(alice.ID, domain.MessageNewQuestion)[0])
}

func TestSession_SubmitAnswer(t *testing.T) {
	h := newHarness(t, 2)
	h.play()

	require.True(t, h.answer(alice.ID, "right"))

	assert.Equal(t, []domain.Message{
		domain.AnswerFeedback{IsCorrect: true, CorrectAnswer: "right", Score: 1},
	}, h.rec.to(alice.ID, domain.MessageAnswerFeedback))
	assert.Empty(t, h.rec.to(bob.ID, domain.MessageAnswerFeedback), "feedback goes to the sender only")

	h.lock(func() {
		assert.Equal(t, 1, h.s.CurrentIndex())
		assert.Equal(t, map[string]int{alice.ID: 1, bob.ID: 0}, h.s.Snapshot().Scores)
	})

	h.advance(time.Second)
	h.waitFor(domain.MessageNewQuestion, 4)
	for _, p := range []domain.Participant{alice, bob} {
		qs := h.rec.to(p.ID, domain.MessageNewQuestion)
		require.Len(t, qs, 2)
		assert.Equal(t, 2, qs[1].(domain.NewQuestion).QuestionNumber)
		assert.Equal(t, "q1", qs[1].(domain.NewQuestion).Question)
	}

	// A wrong answer from the other player still advances the shared question.
	require.True(t, h.answer(bob.ID, "wrong"))
	assert.Equal(t, []domain.Message{
		domain.AnswerFeedback{IsCorrect: false, CorrectAnswer: "right", Score: 0},
	}, h.rec.to(bob.ID, domain.MessageAnswerFeedback))

	// No question left: the answer is ignored and the game waits for the end timer.
	assert.False(t, h.answer(alice.ID, "right"))
	h.advance(time.Second)
	h.lock(func() {
		assert.Equal(t, 2, h.s.CurrentIndex())
		assert.Equal(t, domain.StateActive, h.s.State())
	})
	assert.Len(t, h.rec.to(alice.ID, domain.MessageNewQuestion), 2)
}

func TestSession_QuickAnswersSendEachQuestionOnce(t *testing.T) {
	h := newHarness(t, 5)
	h.play()

	require.True(t, h.answer(alice.ID, "right"))
	h.advance(500 * time.Millisecond)
	require.True(t, h.answer(bob.ID, "right"))

	h.advance(500 * time.Millisecond)
	h.advance(500 * time.Millisecond)
	h.waitFor(domain.MessageNewQuestion, 4)

	h.advance(2 * time.Second)
	h.lock(func() {
		var numbers []int
		for _, m := range h.rec.to(alice.ID, domain.MessageNewQuestion) {
			numbers = append(numbers, m.(domain.NewQuestion).QuestionNumber)
		}
		assert.Equal(t, []int{1, 3}, numbers, "the newer answer replaces the pending push")
		assert.Equal(t, 2, h.s.CurrentIndex())
	})
}

func TestSession_SubmitAnswerIgnored(t *testing.T) {
	tests := map[string]struct {
		arrange func(h *harness)
		from    string
	}{
		"before the game starts": {
			arrange: func(h *harness) { h.start() },
			from:    alice.ID,
		},
		"from a participant outside the session": {
			arrange: func(h *harness) { h.play() },
			from:    "mallory-conn",
		},
		"after the session was abandoned": {
			arrange: func(h *harness) {
				h.play()
				h.lock(func() { h.s.Abandon(context.Background(), bob.ID) })
			},
			from: alice.ID,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t, 3)
			tt.arrange(h)

			assert.False(t, h.answer(tt.from, "right"))
			assert.Empty(t, h.rec.named(domain.MessageAnswerFeedback))
			h.lock(func() {
				assert.Equal(t, 0, h.s.CurrentIndex())
			})
		})
	}
}

func TestSession_EndsOnAbsoluteTimer(t *testing.T) {
	h := newHarness(t, 10)
	h.play()

	for range 3 {
		require.True(t, h.answer(alice.ID, "right"))
		require.True(t, h.answer(bob.ID, "right"))
	}

	h.advance(30 * time.Second)
	h.waitFor(domain.MessageGameEnd, 2)

	want := domain.GameEnd{
		Scores:  map[string]int{alice.ID: 3, bob.ID: 3},
		Players: map[string]string{alice.ID: "alice", bob.ID: "bob"},
		Winner:  nil,
		IsDraw:  true,
	}
	assert.Equal(t, []domain.Message{want}, h.rec.to(alice.ID, domain.MessageGameEnd))
	assert.Equal(t, []domain.Message{want}, h.rec.to(bob.ID, domain.MessageGameEnd))
	assert.Equal(t, domain.StateEnded, h.state())
	assert.Equal(t, 0, h.reaped())

	h.advance(5 * time.Second)
	require.Eventually(t, func() bool { return h.reaped() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, domain.StateReaped, h.state())
}

func TestSession_Winner(t *testing.T) {
	h := newHarness(t, 10)
	h.play()

	require.True(t, h.answer(alice.ID, "wrong"))
	require.True(t, h.answer(bob.ID, "right"))

	h.advance(30 * time.Second)
	h.waitFor(domain.MessageGameEnd, 2)

	end := h.rec.to(alice.ID, domain.MessageGameEnd)[0].(domain.GameEnd)
	require.NotNil(t, end.Winner)
	assert.Equal(t, bob.ID, *end.Winner)
	assert.False(t, end.IsDraw)
}

func TestSession_DisplayTimerStopsAtZero(t *testing.T) {
	h := newHarness(t, 2)
	h.play()

	for i := range 29 {
		h.advance(time.Second)
		h.waitFor(domain.MessageGameTimer, 2*(i+1))
	}

	var left []int
	for _, m := range h.rec.to(alice.ID, domain.MessageGameTimer) {
		left = append(left, m.(domain.GameTimer).TimeLeft)
	}
	want := make([]int, 0, 29)
	for i := 29; i >= 1; i-- {
		want = append(want, i)
	}
	assert.Equal(t, want, left)

	h.advance(time.Second)
	h.waitFor(domain.MessageGameEnd, 2)

	for range 3 {
		h.advance(time.Second)
	}
	h.lock(func() {
		for _, m := range h.rec.named(domain.MessageGameTimer) {
			assert.GreaterOrEqual(t, m.(domain.GameTimer).TimeLeft, 0)
		}
	})
	assert.LessOrEqual(t, len(h.rec.named(domain.MessageGameTimer)), 60)
}

func TestSession_Abandon(t *testing.T) {
	tests := map[string]struct {
		arrange func(h *harness)
	}{
		"during countdown": {
			arrange: func(h *harness) {
				h.start()
				h.advance(time.Second)
				h.waitFor(domain.MessageGameCountdown, 2)
			},
		},
		"during the game": {
			arrange: func(h *harness) { h.play() },
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t, 2)
			tt.arrange(h)

			var ok bool
			h.lock(func() { ok = h.s.Abandon(context.Background(), alice.ID) })
			require.True(t, ok)

			assert.Equal(t, []domain.Message{
				domain.PlayerDisconnected{Message: "Your opponent left the game. You win!"},
			}, h.rec.to(bob.ID, domain.MessagePlayerDisconnected))
			assert.Empty(t, h.rec.to(alice.ID, domain.MessagePlayerDisconnected))
			assert.Equal(t, domain.StateReaped, h.state())
			assert.Equal(t, 1, h.reaped())

			before := h.rec.len()
			h.advance(40 * time.Second)
			time.Sleep(10 * time.Millisecond)
			assert.Equal(t, before, h.rec.len(), "no timer may fire after the session is reaped")
			assert.Empty(t, h.rec.named(domain.MessageGameEnd))
		})
	}
}

func TestSession_EndAndReapAreIdempotent(t *testing.T) {
	h := newHarness(t, 2)
	h.play()

	h.lock(func() {
		h.s.End(context.Background())
		h.s.End(context.Background())
	})
	assert.Len(t, h.rec.named(domain.MessageGameEnd), 2, "one gameEnd per player")

	var ok bool
	h.lock(func() { ok = h.s.Abandon(context.Background(), alice.ID) })
	assert.False(t, ok, "leaving during the grace period does not abandon the duel")

	h.lock(func() {
		h.s.Reap(context.Background())
		h.s.Reap(context.Background())
	})
	assert.Equal(t, 1, h.reaped())

	h.advance(10 * time.Second)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, 1, h.reaped())
	assert.Len(t, h.rec.named(domain.MessageGameEnd), 2)
}

type harness struct {
	t     *testing.T
	mu    *sync.Mutex
	clock *clockwork.FakeClock
	rec   *recorder
	s     *session.Session

	reapMu sync.Mutex
	reaps  int
}

func newHarness(t *testing.T, questions int) *harness {
	h := &harness{
		t:     t,
		mu:    new(sync.Mutex),
		clock: clockwork.NewFakeClock(),
		rec:   new(recorder),
	}

	qs := make([]domain.Question, 0, questions)
	for i := range questions {
		qs = append(qs, domain.Question{
			Prompt:  fmt.Sprintf("q%d", i),
			Options: []string{"right", "wrong"},
			Answer:  "right",
		})
	}

	h.s = session.New(session.Config{
		ID:        "session-1",
		Players:   [2]domain.Participant{alice, bob},
		Questions: qs,
		Settings:  session.DefaultSettings(),
		Clock:     h.clock,
		Locker:    h.mu,
		Notifier:  h.rec,
		OnReap: func(*session.Session) {
			h.reapMu.Lock()
			h.reaps++
			h.reapMu.Unlock()
		},
	})

	return h
}

func (h *harness) lock(fn func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	fn()
}

func (h *harness) start() {
	h.lock(func() { h.s.Start(context.Background()) })
}

// play runs the countdown and waits for the first question.
func (h *harness) play() {
	h.start()
	for i := range 6 {
		h.advance(time.Second)
		h.waitFor(domain.MessageGameCountdown, 2*(i+1))
	}
	h.waitFor(domain.MessageNewQuestion, 2)
}

func (h *harness) answer(from, value string) bool {
	var ok bool
	h.lock(func() { ok = h.s.SubmitAnswer(context.Background(), from, value) })
	return ok
}

func (h *harness) state() domain.SessionState {
	var st domain.SessionState
	h.lock(func() { st = h.s.State() })
	return st
}

func (h *harness) reaped() int {
	h.reapMu.Lock()
	defer h.reapMu.Unlock()
	return h.reaps
}

func (h *harness) advance(d time.Duration) {
	h.clock.Advance(d)
}

// waitFor blocks until n messages with the given name were sent. The check
// holds the session lock, so the turn that sent them has completed.
func (h *harness) waitFor(name string, n int) {
	h.t.Helper()
	require.Eventually(h.t, func() bool {
		h.mu.Lock()
		defer h.mu.Unlock()
		return len(h.rec.named(name)) >= n
	}, time.Second, time.Millisecond, "waiting for %d %s", n, name)
}

type sent struct {
	to string
	m  domain.Message
}

type recorder struct {
	mu   sync.Mutex
	sent []sent
}

func (r *recorder) Notify(to string, m domain.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sent{to: to, m: m})
}

func (r *recorder) named(name string) []domain.Message {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []domain.Message
	for _, s := range r.sent {
		if s.m.Name() == name {
			out = append(out, s.m)
		}
	}
	return out
}

func (r *recorder) to(id, name string) []domain.Message {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []domain.Message
	for _, s := range r.sent {
		if s.to == id && s.m.Name() == name {
			out = append(out, s.m)
		}
	}
	return out
}

func (r *recorder) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}
