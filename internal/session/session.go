package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/victornm/quizduel/internal/domain"
	"github.com/victornm/quizduel/internal/event"
	"github.com/victornm/quizduel/internal/score"
)

const tick = time.Second

const disconnectMessage = "Your opponent left the game. You win!"

// Notifier delivers a message to one participant. It must not block.
type Notifier interface {
	Notify(participantID string, m domain.Message)
}

type Publisher interface {
	Publish(ctx context.Context, e event.Event)
}

// Settings are the timings of a duel.
type Settings struct {
	// Questions is the number of questions drawn per duel.
	Questions int
	// Countdown is the first value of the pre-game countdown.
	Countdown         int
	Duration          time.Duration
	NextQuestionDelay time.Duration
	// Grace is the delay between the final scores and the removal of the session.
	Grace time.Duration
}

func DefaultSettings() Settings {
	return Settings{
		Questions:         50,
		Countdown:         5,
		Duration:          30 * time.Second,
		NextQuestionDelay: time.Second,
		Grace:             5 * time.Second,
	}
}

type Config struct {
	ID        string
	Players   [2]domain.Participant
	Questions []domain.Question
	Settings  Settings

	Clock    clockwork.Clock
	Locker   sync.Locker
	Notifier Notifier
	Events   Publisher
	Logger   *slog.Logger

	// OnReap is called once, with the lock held, when the session is torn down.
	OnReap func(s *Session)
}

// Session is the state machine of one duel. Exported methods must be called
// with Config.Locker held.
type Session struct {
	id        string
	players   [2]domain.Participant
	questions []domain.Question
	settings  Settings

	state        domain.SessionState
	current      int
	nextQuestion int
	board        *score.Board
	createdAt    time.Time
	startedAt    time.Time

	clock    clockwork.Clock
	timers   *timers
	notifier Notifier
	events   Publisher
	logger   *slog.Logger
	onReap   func(s *Session)
}

func New(c Config) *Session {
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.OnReap == nil {
		c.OnReap = func(*Session) {}
	}

	return &Session{
		id:        c.ID,
		players:   c.Players,
		questions: c.Questions,
		settings:  c.Settings,
		state:     domain.StateForming,
		board:     score.NewBoard(c.Players[0].ID, c.Players[1].ID),
		createdAt: c.Clock.Now(),
		clock:     c.Clock,
		timers:    newTimers(c.Clock, c.Locker),
		notifier:  c.Notifier,
		events:    c.Events,
		logger:    c.Logger.With("session_id", c.ID),
		onReap:    c.OnReap,
	}
}

func (s *Session) ID() string { return s.id }

func (s *Session) State() domain.SessionState { return s.state }

func (s *Session) Players() [2]domain.Participant { return s.players }

func (s *Session) Has(participantID string) bool {
	return s.players[0].ID == participantID || s.players[1].ID == participantID
}

// Opponent returns the other player of participantID.
func (s *Session) Opponent(participantID string) domain.Participant {
	if s.players[0].ID == participantID {
		return s.players[1]
	}

	return s.players[0]
}

// Start leaves Forming and runs the countdown, one tick per second from
// Settings.Countdown down to 0, then starts the game.
func (s *Session) Start(ctx context.Context) {
	if s.state != domain.StateForming {
		return
	}

	ctx = context.WithoutCancel(ctx)
	s.state = domain.StateCountdown
	count := s.settings.Countdown

	s.timers.every(tick, func() bool {
		s.broadcast(domain.GameCountdown{Count: count})
		count--
		if count < 0 {
			s.activate(ctx)
			return false
		}
		return true
	})

	s.logger.DebugContext(ctx, "session: countdown started", "count", count)
}

func (s *Session) activate(ctx context.Context) {
	s.timers.stop()
	s.state = domain.StateActive
	s.startedAt = s.clock.Now()

	s.timers.after(s.settings.Duration, func() {
		s.End(ctx)
	})

	// The display clock is independent from the end timer and stops at zero.
	left := int(s.settings.Duration / tick)
	s.timers.every(tick, func() bool {
		if s.state != domain.StateActive || left <= 0 {
			return false
		}
		left--
		s.broadcast(domain.GameTimer{TimeLeft: left})
		return left > 0
	})

	s.sendQuestion()

	s.logger.InfoContext(ctx, "session: game started", "questions", len(s.questions))
}

func (s *Session) sendQuestion() {
	if s.current >= len(s.questions) {
		return
	}

	q := s.questions[s.current]
	s.broadcast(domain.NewQuestion{
		Question:       q.Prompt,
		Options:        q.Options,
		QuestionNumber: s.current + 1,
	})
}

// SubmitAnswer scores answer against the current shared question and advances
// the question for both players. It reports false when the answer was ignored:
// the session is not active, the sender is not a player, or no question is left.
func (s *Session) SubmitAnswer(ctx context.Context, participantID, answer string) bool {
	if s.state != domain.StateActive {
		return false
	}
	if !s.Has(participantID) {
		s.logger.WarnContext(ctx, "session: answer from non member ignored", "participant_id", participantID)
		return false
	}
	if s.current >= len(s.questions) {
		return false
	}

	q := s.questions[s.current]
	res := s.board.SubmitAnswer(participantID, q, answer)
	s.current++

	// A single push is pending: a newer answer replaces it, so each question
	// number is sent at most once.
	s.timers.cancel(s.nextQuestion)
	s.nextQuestion = s.timers.after(s.settings.NextQuestionDelay, func() {
		if s.state == domain.StateActive {
			s.sendQuestion()
		}
	})

	s.notifier.Notify(participantID, domain.AnswerFeedback{
		IsCorrect:     res.Correct,
		CorrectAnswer: q.Answer,
		Score:         res.Score,
	})

	s.publish(ctx, domain.EventDuelAnswered{
		SessionID:     s.id,
		ParticipantID: participantID,
		Correct:       res.Correct,
	})

	return true
}

// End stops the game, announces the result and schedules the reap after the
// grace period. Calling it outside the Active state has no effect.
func (s *Session) End(ctx context.Context) {
	if s.state != domain.StateActive {
		return
	}

	s.timers.stop()
	s.state = domain.StateEnded

	o := s.board.Outcome(s.players[0].ID, s.players[1].ID)
	s.timers.after(s.settings.Grace, func() {
		s.Reap(ctx)
	})

	msg := domain.GameEnd{
		Scores: o.Scores,
		Players: map[string]string{
			s.players[0].ID: s.players[0].DisplayName,
			s.players[1].ID: s.players[1].DisplayName,
		},
		IsDraw: o.IsDraw,
	}
	if !o.IsDraw {
		winner := o.WinnerID
		msg.Winner = &winner
	}
	s.broadcast(msg)

	s.publish(ctx, domain.EventDuelEnded{
		Session: s.Snapshot(),
		Outcome: o,
	})

	s.logger.InfoContext(ctx, "session: game ended",
		"scores", o.Scores,
		"winner", o.WinnerID,
		"draw", o.IsDraw,
	)
}

// Abandon handles the departure of participantID before the game ended: the
// opponent wins by notice and the session is reaped at once, without final
// scores. It reports false when the session is already ended or reaped.
func (s *Session) Abandon(ctx context.Context, participantID string) bool {
	switch s.state {
	case domain.StateForming, domain.StateCountdown, domain.StateActive:
	default:
		return false
	}

	remaining := s.Opponent(participantID)
	s.notifier.Notify(remaining.ID, domain.PlayerDisconnected{Message: disconnectMessage})

	s.publish(ctx, domain.EventDuelAbandoned{
		Session:     s.Snapshot(),
		LeaverID:    participantID,
		RemainingID: remaining.ID,
	})

	s.logger.InfoContext(ctx, "session: player left",
		"participant_id", participantID,
		"state", s.state.String(),
	)

	s.Reap(ctx)
	return true
}

// Reap cancels every timer and hands the session over to OnReap. It is idempotent.
func (s *Session) Reap(ctx context.Context) {
	if s.state == domain.StateReaped {
		return
	}

	s.timers.close()
	s.state = domain.StateReaped
	s.onReap(s)

	s.logger.DebugContext(ctx, "session: reaped")
}

func (s *Session) Snapshot() domain.SessionSnapshot {
	qn := s.current + 1
	if qn > len(s.questions) {
		qn = len(s.questions)
	}

	return domain.SessionSnapshot{
		SessionID:      s.id,
		State:          s.state,
		Players:        []domain.Participant{s.players[0], s.players[1]},
		Scores:         s.board.Scores(),
		QuestionNumber: qn,
		QuestionCount:  len(s.questions),
		CreatedAt:      s.createdAt,
		StartedAt:      s.startedAt,
	}
}

// CurrentIndex is the index of the question both players are on.
func (s *Session) CurrentIndex() int {
	return s.current
}

func (s *Session) broadcast(m domain.Message) {
	for _, p := range s.players {
		s.notifier.Notify(p.ID, m)
	}
}

func (s *Session) publish(ctx context.Context, e event.Event) {
	if s.events == nil {
		return
	}

	s.events.Publish(ctx, e)
}
