package api

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"

	"github.com/victornm/quizduel/internal/domain"
	"github.com/victornm/quizduel/internal/errors"
)

// Intents accepted from participants.
const (
	IntentJoinMatch    = "joinMatch"
	IntentLeaveQueue   = "leaveQueue"
	IntentSubmitAnswer = "submitAnswer"
	IntentGetStats     = "getStats"
)

type (
	intent struct {
		Event string          `json:"event"`
		Data  json.RawMessage `json:"data"`
	}

	joinMatch struct {
		Username string `json:"username"`
	}

	submitAnswer struct {
		SessionID string          `json:"sessionId"`
		Answer    json.RawMessage `json:"answer"`
	}
)

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	hub  *Hub
	api  *API
}

func (c *client) writePump() {
	cfg := c.hub.config
	ticker := time.NewTicker(cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case b, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				c.hub.logger.DebugContext(context.Background(), "api: write failed", "participant_id", c.id, "error", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump dispatches inbound intents until the connection drops, then
// reports the disconnect to the engine.
func (c *client) readPump(ctx context.Context) {
	cfg := c.hub.config
	defer func() {
		if c.hub.remove(c) {
			c.api.engine.Disconnect(ctx, c.id)
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(cfg.MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))
	})

	for {
		_, b, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.hub.logger.WarnContext(ctx, "api: unexpected websocket close", "participant_id", c.id, "error", err)
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))

		if err := c.handle(ctx, b); err != nil {
			e := errors.Convert(err)
			c.hub.Notify(c.id, domain.ErrorReply{Code: uint32(e.Code), Message: e.Message})
		}
	}
}

func (c *client) handle(ctx context.Context, b []byte) error {
	var in intent
	if err := json.Unmarshal(b, &in); err != nil {
		return errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("malformed frame"),
			errors.WithCause(err),
		)
	}

	e := c.api.engine
	switch in.Event {
	case IntentJoinMatch:
		var req joinMatch
		decodeOptional(in.Data, &req)
		return e.Join(ctx, c.id, req.Username)

	case IntentLeaveQueue:
		e.Leave(ctx, c.id)

	case IntentSubmitAnswer:
		var req submitAnswer
		decodeOptional(in.Data, &req)
		e.SubmitAnswer(ctx, c.id, req.SessionID, answerValue(req.Answer))

	case IntentGetStats:
		e.GetStats(ctx, c.id)

	default:
		return errors.InvalidArgument("unknown event: %q", in.Event)
	}

	return nil
}

// decodeOptional leaves v zero valued when data is missing or malformed.
func decodeOptional(data json.RawMessage, v any) {
	if len(data) == 0 {
		return
	}
	_ = json.Unmarshal(data, v)
}

// answerValue returns the submitted option. Anything but a JSON string is an
// empty answer, which never matches.
func answerValue(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}

	return s
}
