package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/aura-webinar/virtual-live/internal/access"
	"github.com/aura-webinar/virtual-live/internal/models"
	"github.com/aura-webinar/virtual-live/internal/questions"
	"github.com/aura-webinar/virtual-live/internal/reconcile"
	"github.com/aura-webinar/virtual-live/internal/schedule"
	"github.com/aura-webinar/virtual-live/internal/timeline"
	"github.com/aura-webinar/virtual-live/internal/viewer"
	"github.com/aura-webinar/virtual-live/pkg/response"
)

// Client events beyond the Player callbacks.
const (
	EventChatMessage = "chat_message"
	EventResponse    = "response"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // allow all origins in dev; restrict in production
	},
}

// WSMessage is the WebSocket message envelope.
type WSMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// WebinarLoader loads a webinar with its authorized links and question cues.
type WebinarLoader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Webinar, error)
}

// chatMessage is the data of a chat_message event.
type chatMessage struct {
	Name    string `json:"name"`
	Comment string `json:"comment"`
}

// responseMessage is the data of a response event.
type responseMessage struct {
	QuestionID string `json:"question_id"`
	Response   string `json:"response"`
	Name       string `json:"name"`
}

// Client is one viewer's WebSocket connection, bridged to its session view.
type Client struct {
	ID        string
	WebinarID uuid.UUID
	SubjectID string
	JoinedAt  time.Time
	hub       *Hub
	view      *viewer.View
	conn      *websocket.Conn
	send      chan WSMessage
	logger    *zap.Logger
}

// Push implements viewer.Sink. Messages are dropped while the send buffer is full.
func (c *Client) Push(event string, data any) {
	msg, err := encodeMessage(event, data)
	if err != nil {
		c.logger.Warn("encode ws message failed", zap.String("event", event), zap.Error(err))
		return
	}
	select {
	case c.send <- msg:
	default:
		c.logger.Debug("send buffer full, message dropped", zap.String("event", event))
	}
}

func encodeMessage(event string, data any) (WSMessage, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return WSMessage{}, err
	}
	return WSMessage{Event: event, Data: raw}, nil
}

// ServeWs admits the viewer, upgrades the connection and runs the session view
// until the socket closes.
func ServeWs(hub *Hub, loader WebinarLoader, deps viewer.Deps, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return func(c *gin.Context) {
		webinarIDStr := c.Query("webinar_id")
		token := c.Query("t")
		if webinarIDStr == "" || token == "" {
			response.BadRequest(c, "webinar_id and t required")
			return
		}
		webinarID, err := uuid.Parse(webinarIDStr)
		if err != nil {
			response.BadRequest(c, "invalid webinar_id")
			return
		}
		w, err := loader.GetByID(c.Request.Context(), webinarID)
		if err != nil {
			response.NotFound(c, "webinar not found")
			return
		}
		view, err := viewer.Open(deps, w, token, clock())
		switch {
		case errors.Is(err, access.ErrAccessDenied):
			response.Forbidden(c, "access denied")
			return
		case errors.Is(err, schedule.ErrScheduleUnresolvable):
			response.UnprocessableEntity(c, "webinar schedule cannot be resolved")
			return
		case err != nil:
			response.Internal(c, "failed to open session")
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		client := &Client{
			ID:        uuid.New().String(),
			WebinarID: webinarID,
			SubjectID: view.SubjectID(),
			JoinedAt:  clock(),
			hub:       hub,
			view:      view,
			conn:      conn,
			send:      make(chan WSMessage, 256),
			logger:    logger.With(zap.String("webinar_id", webinarID.String()), zap.String("subject_id", view.SubjectID())),
		}
		client.serve()
	}
}

// serve runs the view and both pumps. The send channel is closed only after
// the view stopped pushing.
func (c *Client) serve() {
	c.hub.Register(c)
	ctx, cancel := context.WithCancel(context.Background())
	go c.writePump()
	go func() {
		if err := c.view.Run(ctx, c); err != nil {
			c.logger.Warn("session view ended with error", zap.Error(err))
		}
	}()

	c.readPump(ctx)

	cancel()
	<-c.view.Done()
	c.hub.Unregister(c)
	close(c.send)
}

func (c *Client) readPump(ctx context.Context) {
	defer func() { _ = c.conn.Close() }()

	c.conn.SetReadLimit(65536)
	_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
		return nil
	})

	for {
		var msg WSMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("websocket read failed", zap.Error(err))
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
		c.dispatch(ctx, msg)
	}
}

// dispatch routes one client message to the view. Rejected submissions are
// answered with an error event; the connection stays open.
func (c *Client) dispatch(ctx context.Context, msg WSMessage) {
	switch msg.Event {
	case string(viewer.PlayerLoaded), string(viewer.PlayerError), string(viewer.PlayerTimeUpdate),
		string(viewer.PlayerPlay), string(viewer.PlayerPause), string(viewer.PlayerEnded):
		var ev viewer.PlayerEvent
		if len(msg.Data) > 0 {
			if err := json.Unmarshal(msg.Data, &ev); err != nil {
				c.Push(viewer.EventError, viewer.ErrorPayload{Code: "bad_message", Message: "invalid " + msg.Event + " data"})
				return
			}
		}
		ev.Kind = viewer.PlayerEventKind(msg.Event)
		c.view.HandlePlayer(ev)
	case EventChatMessage:
		var m chatMessage
		if err := json.Unmarshal(msg.Data, &m); err != nil {
			c.Push(viewer.EventError, viewer.ErrorPayload{Code: "bad_message", Message: "invalid chat_message data"})
			return
		}
		if _, err := c.view.SubmitChat(ctx, m.Name, m.Comment); err != nil {
			c.Push(viewer.EventError, errorPayload(err))
		}
	case EventResponse:
		var m responseMessage
		if err := json.Unmarshal(msg.Data, &m); err != nil {
			c.Push(viewer.EventError, viewer.ErrorPayload{Code: "bad_message", Message: "invalid response data"})
			return
		}
		s := questions.Submission{QuestionID: m.QuestionID, Body: m.Response, SubjectName: m.Name}
		if _, err := c.view.SubmitResponse(ctx, s); err != nil {
			c.Push(viewer.EventError, errorPayload(err))
		}
	default:
		// ignore
	}
}

// errorPayload maps a submission error to the code clients switch on.
func errorPayload(err error) viewer.ErrorPayload {
	code := "internal"
	switch {
	case errors.Is(err, timeline.ErrValidation):
		code = "invalid"
	case errors.Is(err, questions.ErrUnknownQuestion):
		code = "unknown_question"
	case errors.Is(err, questions.ErrInvalidOption):
		code = "invalid_option"
	case errors.Is(err, questions.ErrClosed):
		code = "responses_closed"
	case errors.Is(err, viewer.ErrClosed), errors.Is(err, context.Canceled):
		code = "closed"
	case errors.Is(err, reconcile.ErrNotLoaded):
		code = "not_ready"
	case errors.Is(err, reconcile.ErrStoreWrite):
		code = "store_unavailable"
	}
	return viewer.ErrorPayload{Code: code, Message: err.Error()}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(PingInterval * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
