package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/victornm/quizduel/internal/domain"
	"github.com/victornm/quizduel/internal/event"
)

type Redis interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

type Subscriber interface {
	Subscribe(event, subscriber string, h event.Handler)
}

type PubsubConfig struct {
	Redis    Redis
	EventBus Subscriber
	Prefix   string
	Logger   *slog.Logger
}

// Pubsub mirrors duel lifecycle events to Redis, on one channel per duel and
// one per participant.
type Pubsub struct {
	redis  Redis
	prefix string
	logger *slog.Logger
}

func NewPubsub(c PubsubConfig) *Pubsub {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}

	p := &Pubsub{
		redis:  c.Redis,
		prefix: c.Prefix,
		logger: c.Logger,
	}

	c.EventBus.Subscribe(domain.EventNameDuelMatched, "pubsub", func(ctx context.Context, e event.Event) error {
		ev := e.(domain.EventDuelMatched)
		return p.publish(ctx, ev.Name(), duelFromSnapshot(ev.Session))
	})
	c.EventBus.Subscribe(domain.EventNameDuelEnded, "pubsub", func(ctx context.Context, e event.Event) error {
		ev := e.(domain.EventDuelEnded)
		d := duelFromSnapshot(ev.Session)
		d.Scores = ev.Outcome.Scores
		d.IsDraw = ev.Outcome.IsDraw
		if !ev.Outcome.IsDraw {
			d.Winner = ev.Outcome.WinnerID
		}
		return p.publish(ctx, ev.Name(), d)
	})
	c.EventBus.Subscribe(domain.EventNameDuelAbandoned, "pubsub", func(ctx context.Context, e event.Event) error {
		ev := e.(domain.EventDuelAbandoned)
		d := duelFromSnapshot(ev.Session)
		d.Winner = ev.RemainingID
		d.Leaver = ev.LeaverID
		return p.publish(ctx, ev.Name(), d)
	})

	return p
}

// Duel is the pubsub payload of a duel event.
type Duel struct {
	SessionID string            `json:"sessionId"`
	State     string            `json:"state"`
	Players   map[string]string `json:"players"`
	Scores    map[string]int    `json:"scores"`
	Winner    string            `json:"winner,omitempty"`
	Leaver    string            `json:"leaver,omitempty"`
	IsDraw    bool              `json:"isDraw"`
}

func duelFromSnapshot(s domain.SessionSnapshot) Duel {
	d := Duel{
		SessionID: s.SessionID,
		State:     s.State.String(),
		Players:   make(map[string]string, len(s.Players)),
		Scores:    s.Scores,
	}
	for _, p := range s.Players {
		d.Players[p.ID] = p.DisplayName
	}

	return d
}

// DuelChannel is the channel carrying every event of one duel.
func (p *Pubsub) DuelChannel(sessionID string) string {
	return fmt.Sprintf("%s:duel:%s", p.prefix, sessionID)
}

// ParticipantChannel is the channel carrying the duel events of one participant.
func (p *Pubsub) ParticipantChannel(participantID string) string {
	return fmt.Sprintf("%s:participant:%s", p.prefix, participantID)
}

func (p *Pubsub) publish(ctx context.Context, name string, d Duel) error {
	b, err := json.Marshal(Notification{Event: name, Data: d})
	if err != nil {
		return fmt.Errorf("pubsub: marshal %s: %v", name, err)
	}

	channels := []string{p.DuelChannel(d.SessionID)}
	for id := range d.Players {
		channels = append(channels, p.ParticipantChannel(id))
	}

	var eg errgroup.Group
	for _, ch := range channels {
		eg.Go(func() error {
			return p.redis.Publish(ctx, ch, b).Err()
		})
	}

	if err := eg.Wait(); err != nil {
		return err
	}

	p.logger.DebugContext(ctx, "pubsub: duel event published", "event", name, "session_id", d.SessionID)
	return nil
}
