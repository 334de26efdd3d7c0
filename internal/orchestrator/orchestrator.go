package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/victornm/quizduel/internal/domain"
	"github.com/victornm/quizduel/internal/errors"
	"github.com/victornm/quizduel/internal/lobby"
	"github.com/victornm/quizduel/internal/session"
)

const (
	joinedMessage = "Joined the lobby, waiting for an opponent."
	leftMessage   = "Left the lobby."
)

// Feed supplies a freshly shuffled question set per duel.
type Feed interface {
	Draw(count int) []domain.Question
}

type Config struct {
	Clock    clockwork.Clock
	Notifier session.Notifier
	Feed     Feed
	EventBus session.Publisher
	Logger   *slog.Logger

	// LobbyPeriod is the number of seconds between two pairing passes.
	LobbyPeriod int
	Session     session.Settings

	// NewID allocates session ids, defaults to UUIDv7.
	NewID func() (string, error)
}

// Orchestrator consumes participant intents and lobby clock ticks, and drives
// the queue, the registry and every session. A single mutex serializes all of
// it, including session timer callbacks.
type Orchestrator struct {
	mu sync.Mutex

	clock    clockwork.Clock
	notifier session.Notifier
	feed     Feed
	events   session.Publisher
	logger   *slog.Logger
	settings session.Settings
	newID    func() (string, error)

	queue     *lobby.Queue
	lobby     *lobby.Clock
	registry  *session.Registry
	connected map[string]struct{}
}

func New(c Config) *Orchestrator {
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.NewID == nil {
		c.NewID = newSessionID
	}
	if c.Session == (session.Settings{}) {
		c.Session = session.DefaultSettings()
	}

	return &Orchestrator{
		clock:     c.Clock,
		notifier:  c.Notifier,
		feed:      c.Feed,
		events:    c.EventBus,
		logger:    c.Logger,
		settings:  c.Session,
		newID:     c.NewID,
		queue:     lobby.NewQueue(),
		lobby:     lobby.NewClock(c.LobbyPeriod),
		registry:  session.NewRegistry(),
		connected: make(map[string]struct{}),
	}
}

// newSessionID combines a millisecond timestamp with random bits.
func newSessionID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}

	return id.String(), nil
}

// Run drives the lobby clock until ctx is cancelled, then tears every live session down.
func (o *Orchestrator) Run(ctx context.Context) error {
	t := o.clock.NewTicker(time.Second)
	defer t.Stop()

	o.logger.InfoContext(ctx, "orchestrator: lobby clock started", "period", o.lobby.Period())

	for {
		select {
		case <-ctx.Done():
			o.shutdown(context.WithoutCancel(ctx))
			return nil
		case <-t.Chan():
			o.tick(ctx)
		}
	}
}

func (o *Orchestrator) tick(ctx context.Context) {
	o.mu.Lock()
	defer o.mu.Unlock()

	remaining, expired := o.lobby.Tick()
	if expired && o.queue.Len() >= 2 {
		o.match(ctx)
	}

	o.broadcastLobby(domain.LobbyTimer{Time: remaining})
}

// match runs one pairing pass over the queue.
func (o *Orchestrator) match(ctx context.Context) {
	for _, pair := range o.queue.PairAll() {
		id, err := o.newID()
		if err != nil {
			o.logger.ErrorContext(ctx, "orchestrator: allocate session id failed", "error", err)
			o.queue.Enqueue(pair[0])
			o.queue.Enqueue(pair[1])
			continue
		}

		s := session.New(session.Config{
			ID:        id,
			Players:   pair,
			Questions: o.feed.Draw(o.settings.Questions),
			Settings:  o.settings,
			Clock:     o.clock,
			Locker:    &o.mu,
			Notifier:  o.notifier,
			Events:    o.events,
			Logger:    o.logger,
			OnReap:    o.reap,
		})
		o.registry.Add(s)

		matched := domain.PlayersMatched{
			SessionID: id,
			Players:   []string{pair[0].DisplayName, pair[1].DisplayName},
		}
		o.notifier.Notify(pair[0].ID, matched)
		o.notifier.Notify(pair[1].ID, matched)

		if o.events != nil {
			o.events.Publish(ctx, domain.EventDuelMatched{Session: s.Snapshot()})
		}

		o.logger.InfoContext(ctx, "orchestrator: players matched",
			"session_id", id,
			"players", matched.Players,
		)

		s.Start(ctx)
	}
}

// reap is called by a session, with the lock held, when it is torn down.
func (o *Orchestrator) reap(s *session.Session) {
	o.registry.Remove(s.ID())
}

// broadcastLobby sends m to every connected participant that is not in a session.
func (o *Orchestrator) broadcastLobby(m domain.Message) {
	for id := range o.connected {
		if o.registry.ByPlayer(id) != nil {
			continue
		}
		o.notifier.Notify(id, m)
	}
}

// Connect registers a new connection and sends it the current lobby time.
func (o *Orchestrator) Connect(ctx context.Context, participantID string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.connected[participantID] = struct{}{}
	o.notifier.Notify(participantID, domain.Connected{ParticipantID: participantID})
	o.notifier.Notify(participantID, domain.LobbyTimer{Time: o.lobby.Remaining()})

	o.logger.DebugContext(ctx, "orchestrator: participant connected", "participant_id", participantID)
}

// Join queues the participant for the next pairing pass. A participant already
// queued or playing is rejected with CodeAlreadyExists.
func (o *Orchestrator) Join(ctx context.Context, participantID, username string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.queue.Contains(participantID) {
		return errors.AlreadyExists("already waiting in the lobby")
	}
	if o.registry.ByPlayer(participantID) != nil {
		return errors.AlreadyExists("already playing a game")
	}

	name := strings.TrimSpace(username)
	if name == "" {
		name = defaultName(participantID)
	}

	o.connected[participantID] = struct{}{}
	o.queue.Enqueue(domain.Participant{ID: participantID, DisplayName: name})
	o.notifier.Notify(participantID, domain.JoinedLobby{Message: joinedMessage})

	o.logger.InfoContext(ctx, "orchestrator: participant joined",
		"participant_id", participantID,
		"name", name,
		"waiting", o.queue.Len(),
	)

	return nil
}

func defaultName(participantID string) string {
	short := participantID
	if len(short) > 5 {
		short = short[:5]
	}

	return fmt.Sprintf("Player_%s", short)
}

// Leave removes the participant from the queue. It is a no-op when not queued.
func (o *Orchestrator) Leave(ctx context.Context, participantID string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.queue.Remove(participantID) {
		return
	}

	o.notifier.Notify(participantID, domain.LeftLobby{Message: leftMessage})
	o.logger.InfoContext(ctx, "orchestrator: participant left the lobby", "participant_id", participantID)
}

// SubmitAnswer forwards an answer to its session. Unknown or reaped sessions are ignored.
func (o *Orchestrator) SubmitAnswer(ctx context.Context, participantID, sessionID, answer string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	s := o.registry.Get(sessionID)
	if s == nil {
		o.logger.DebugContext(ctx, "orchestrator: answer for unknown session ignored",
			"session_id", sessionID,
			"participant_id", participantID,
		)
		return
	}

	s.SubmitAnswer(ctx, participantID, answer)
}

// GetStats replies with the current stats to the participant.
func (o *Orchestrator) GetStats(_ context.Context, participantID string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.notifier.Notify(participantID, domain.StatsReply{
		WaitingCount:       o.queue.Len(),
		ActiveSessionCount: o.registry.Len(),
	})
}

// Disconnect forgets the participant. A running duel is abandoned in favour of the opponent.
func (o *Orchestrator) Disconnect(ctx context.Context, participantID string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	delete(o.connected, participantID)
	o.queue.Remove(participantID)

	if s := o.registry.ByPlayer(participantID); s != nil {
		s.Abandon(ctx, participantID)
	}

	o.logger.DebugContext(ctx, "orchestrator: participant disconnected", "participant_id", participantID)
}

func (o *Orchestrator) Stats() domain.Stats {
	o.mu.Lock()
	defer o.mu.Unlock()

	return domain.Stats{
		WaitingCount:       o.queue.Len(),
		ActiveSessionCount: o.registry.Len(),
	}
}

// Session returns a snapshot of a live session.
func (o *Orchestrator) Session(id string) (domain.SessionSnapshot, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	s := o.registry.Get(id)
	if s == nil {
		return domain.SessionSnapshot{}, errors.NotFound("session not found: %s", id)
	}

	return s.Snapshot(), nil
}

// LobbyTime is the number of seconds until the next pairing pass.
func (o *Orchestrator) LobbyTime() int {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.lobby.Remaining()
}

func (o *Orchestrator) shutdown(ctx context.Context) {
	o.mu.Lock()
	defer o.mu.Unlock()

	for _, s := range o.registry.All() {
		s.Reap(ctx)
	}

	o.logger.InfoContext(ctx, "orchestrator: stopped")
}
