package domain

const (
	EventNameDuelMatched   = "duel.matched"
	EventNameDuelAnswered  = "duel.answered"
	EventNameDuelEnded     = "duel.ended"
	EventNameDuelAbandoned = "duel.abandoned"
)

type EventDuelMatched struct {
	Session SessionSnapshot
}

func (EventDuelMatched) Name() string { return EventNameDuelMatched }

type EventDuelAnswered struct {
	SessionID     string
	ParticipantID string
	Correct       bool
}

func (EventDuelAnswered) Name() string { return EventNameDuelAnswered }

type EventDuelEnded struct {
	Session SessionSnapshot
	Outcome Outcome
}

func (EventDuelEnded) Name() string { return EventNameDuelEnded }

// EventDuelAbandoned is published when a player leaves a running duel.
type EventDuelAbandoned struct {
	Session     SessionSnapshot
	LeaverID    string
	RemainingID string
}

func (EventDuelAbandoned) Name() string { return EventNameDuelAbandoned }
