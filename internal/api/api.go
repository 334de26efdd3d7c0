package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/victornm/quizduel/internal/domain"
	"github.com/victornm/quizduel/internal/errors"
)

// Engine is the matchmaking engine behind the transport.
type Engine interface {
	Connect(ctx context.Context, participantID string)
	Join(ctx context.Context, participantID, username string) error
	Leave(ctx context.Context, participantID string)
	SubmitAnswer(ctx context.Context, participantID, sessionID, answer string)
	GetStats(ctx context.Context, participantID string)
	Disconnect(ctx context.Context, participantID string)
	Stats() domain.Stats
	Session(id string) (domain.SessionSnapshot, error)
}

type Config struct {
	Engine Engine
	Hub    *Hub
	Logger *slog.Logger
	// Now is used for the health timestamp.
	Now func() time.Time
}

type API struct {
	engine Engine
	hub    *Hub
	logger *slog.Logger
	now    func() time.Time
}

func New(c Config) *API {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Now == nil {
		c.Now = time.Now
	}

	return &API{
		engine: c.Engine,
		hub:    c.Hub,
		logger: c.Logger,
		now:    c.Now,
	}
}

// Register mounts the HTTP and websocket routes.
func (a *API) Register(r gin.IRouter) {
	r.GET("/", a.Status)
	r.GET("/health", a.Health)
	r.GET("/sessions/:id", a.GetSession)
	r.GET("/ws", a.ServeWS)
}

type (
	StatusResponse struct {
		Status         string `json:"status"`
		WaitingPlayers int    `json:"waitingPlayers"`
		ActiveGames    int    `json:"activeGames"`
	}

	HealthResponse struct {
		Status    string `json:"status"`
		Timestamp string `json:"timestamp"`
	}

	SessionPlayer struct {
		ID          string `json:"id"`
		DisplayName string `json:"displayName"`
		Score       int    `json:"score"`
	}

	SessionResponse struct {
		SessionID      string          `json:"sessionId"`
		State          string          `json:"state"`
		Players        []SessionPlayer `json:"players"`
		QuestionNumber int             `json:"questionNumber"`
		QuestionCount  int             `json:"questionCount"`
		CreatedAt      time.Time       `json:"createdAt"`
		StartedAt      *time.Time      `json:"startedAt,omitempty"`
	}
)

func (a *API) Status(c *gin.Context) {
	st := a.engine.Stats()
	c.JSON(http.StatusOK, StatusResponse{
		Status:         "Quiz Duel server running",
		WaitingPlayers: st.WaitingCount,
		ActiveGames:    st.ActiveSessionCount,
	})
}

func (a *API) Health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:    "ok",
		Timestamp: a.now().UTC().Format(time.RFC3339),
	})
}

func (a *API) GetSession(c *gin.Context) {
	s, err := a.engine.Session(c.Param("id"))
	if err != nil {
		e := errors.Convert(err)
		c.JSON(e.HTTPStatusCode(), e)
		return
	}

	resp := SessionResponse{
		SessionID:      s.SessionID,
		State:          s.State.String(),
		Players:        make([]SessionPlayer, 0, len(s.Players)),
		QuestionNumber: s.QuestionNumber,
		QuestionCount:  s.QuestionCount,
		CreatedAt:      s.CreatedAt,
	}
	if !s.StartedAt.IsZero() {
		resp.StartedAt = &s.StartedAt
	}
	for _, p := range s.Players {
		resp.Players = append(resp.Players, SessionPlayer{
			ID:          p.ID,
			DisplayName: p.DisplayName,
			Score:       s.Scores[p.ID],
		})
	}

	c.JSON(http.StatusOK, resp)
}

// ServeWS upgrades the request and assigns the connection its participant id.
func (a *API) ServeWS(c *gin.Context) {
	conn, err := a.hub.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already replied to the caller.
		a.logger.WarnContext(c, "api: websocket upgrade failed", "error", err)
		return
	}

	cl := &client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, a.hub.config.SendBuffer),
		hub:  a.hub,
		api:  a,
	}
	a.hub.add(cl)

	ctx := context.WithoutCancel(c.Request.Context())
	a.engine.Connect(ctx, cl.id)

	go cl.writePump()
	go cl.readPump(ctx)
}
