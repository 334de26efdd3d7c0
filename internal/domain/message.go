package domain

// Names of the messages pushed to participants.
const (
	MessageConnected          = "connected"
	MessageLobbyTimer         = "lobbyTimer"
	MessageJoinedLobby        = "joinedLobby"
	MessageLeftLobby          = "leftLobby"
	MessagePlayersMatched     = "playersMatched"
	MessageGameCountdown      = "gameCountdown"
	MessageNewQuestion        = "newQuestion"
	MessageGameTimer          = "gameTimer"
	MessageAnswerFeedback     = "answerFeedback"
	MessageGameEnd            = "gameEnd"
	MessagePlayerDisconnected = "playerDisconnected"
	MessageStats              = "stats"
	MessageError              = "error"
)

// Message is an outbound payload addressed to a participant.
type Message interface {
	Name() string
}

type Connected struct {
	ParticipantID string `json:"participantId"`
}

func (Connected) Name() string { return MessageConnected }

type LobbyTimer struct {
	Time int `json:"time"`
}

func (LobbyTimer) Name() string { return MessageLobbyTimer }

type JoinedLobby struct {
	Message string `json:"message"`
}

func (JoinedLobby) Name() string { return MessageJoinedLobby }

type LeftLobby struct {
	Message string `json:"message"`
}

func (LeftLobby) Name() string { return MessageLeftLobby }

type PlayersMatched struct {
	SessionID string   `json:"sessionId"`
	Players   []string `json:"players"`
}

func (PlayersMatched) Name() string { return MessagePlayersMatched }

type GameCountdown struct {
	Count int `json:"count"`
}

func (GameCountdown) Name() string { return MessageGameCountdown }

type NewQuestion struct {
	Question       string   `json:"question"`
	Options        []string `json:"options"`
	QuestionNumber int      `json:"questionNumber"`
}

func (NewQuestion) Name() string { return MessageNewQuestion }

type GameTimer struct {
	TimeLeft int `json:"timeLeft"`
}

func (GameTimer) Name() string { return MessageGameTimer }

type AnswerFeedback struct {
	IsCorrect     bool   `json:"isCorrect"`
	CorrectAnswer string `json:"correctAnswer"`
	Score         int    `json:"score"`
}

func (AnswerFeedback) Name() string { return MessageAnswerFeedback }

// GameEnd carries the final result. Winner is nil on a draw.
type GameEnd struct {
	Scores  map[string]int    `json:"scores"`
	Players map[string]string `json:"players"`
	Winner  *string           `json:"winner"`
	IsDraw  bool              `json:"isDraw"`
}

func (GameEnd) Name() string { return MessageGameEnd }

type PlayerDisconnected struct {
	Message string `json:"message"`
}

func (PlayerDisconnected) Name() string { return MessagePlayerDisconnected }

type StatsReply struct {
	WaitingCount       int `json:"waitingCount"`
	ActiveSessionCount int `json:"activeSessionCount"`
}

func (StatsReply) Name() string { return MessageStats }

type ErrorReply struct {
	Code    uint32 `json:"code"`
	Message string `json:"message"`
}

func (ErrorReply) Name() string { return MessageError }
