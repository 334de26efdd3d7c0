package domain

import "time"

// Participant is an anonymous player identified by its transport connection.
type Participant struct {
	ID          string
	DisplayName string
}

// Question is an immutable record from the question bank.
// Answer holds the value of the correct option.
type Question struct {
	Prompt  string   `json:"prompt"`
	Options []string `json:"options"`
	Answer  string   `json:"answer"`
}

type SessionState int

const (
	StateForming SessionState = iota
	StateCountdown
	StateActive
	StateEnded
	StateReaped
)

var stateNames = map[SessionState]string{
	StateForming:   "forming",
	StateCountdown: "countdown",
	StateActive:    "active",
	StateEnded:     "ended",
	StateReaped:    "reaped",
}

func (s SessionState) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}

	return "unknown"
}

// SessionSnapshot is a read-only copy of a duel's state.
type SessionSnapshot struct {
	SessionID      string
	State          SessionState
	Players        []Participant
	Scores         map[string]int
	QuestionNumber int
	QuestionCount  int
	CreatedAt      time.Time
	StartedAt      time.Time
}

// Stats is a point in time view of the matchmaking engine.
type Stats struct {
	WaitingCount       int
	ActiveSessionCount int
}

// Outcome of a duel that reached the Ended state.
type Outcome struct {
	Scores   map[string]int
	WinnerID string
	IsDraw   bool
}
