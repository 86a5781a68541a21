package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/aura-webinar/virtual-live/internal/models"
	"github.com/aura-webinar/virtual-live/internal/questions"
	"github.com/aura-webinar/virtual-live/internal/reconcile"
	"github.com/aura-webinar/virtual-live/internal/schedule"
	"github.com/aura-webinar/virtual-live/internal/timeline"
	"github.com/aura-webinar/virtual-live/internal/viewer"
)

var t0 = time.Date(2026, 10, 17, 12, 30, 0, 0, time.UTC)

type memComments struct {
	mu   sync.Mutex
	rows []models.ChatEntry
}

func (s *memComments) List(context.Context, uuid.UUID) ([]models.ChatEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.ChatEntry(nil), s.rows...), nil
}

func (s *memComments) AddComment(ctx context.Context, id uuid.UUID, e models.ChatEntry) error {
	return s.AddComments(ctx, id, []models.ChatEntry{e})
}

func (s *memComments) AddComments(_ context.Context, _ uuid.UUID, entries []models.ChatEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, entries...)
	return nil
}

func (s *memComments) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

type mapLoader map[uuid.UUID]*models.Webinar

func (m mapLoader) GetByID(_ context.Context, id uuid.UUID) (*models.Webinar, error) {
	w, ok := m[id]
	if !ok {
		return nil, errors.New("no rows")
	}
	return w, nil
}

func liveWebinar() *models.Webinar {
	return &models.Webinar{
		ID:              uuid.New(),
		Title:           "Quarterly review",
		Schedule:        schedule.Fixed(time.Now().Add(-time.Minute)),
		VideoDuration:   10 * time.Minute,
		AuthorizedLinks: []models.AuthorizedLink{{Token: "tok", SubjectID: "u1"}},
		Questions: []models.QuestionCue{
			{ID: "q1", Prompt: "Ready?", Type: models.QuestionTypeText, At: 0, Window: time.Hour},
		},
	}
}

func newWSServer(t *testing.T, w *models.Webinar, store *memComments) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	deps := viewer.Deps{Comments: store, Tick: 10 * time.Millisecond}
	r := gin.New()
	r.GET("/ws", ServeWs(NewHub(nil, nil, nil), mapLoader{w.ID: w}, deps, nil))
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func readUntil(t *testing.T, conn *websocket.Conn, pred func(WSMessage) bool) WSMessage {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		var msg WSMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read: %v", err)
		}
		if pred(msg) {
			return msg
		}
	}
}

func isEvent(name string) func(WSMessage) bool {
	return func(m WSMessage) bool { return m.Event == name }
}

func TestServeWs_LiveSession(t *testing.T) {
	store := &memComments{}
	w := liveWebinar()
	srv := newWSServer(t, w, store)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + fmt.Sprintf("/ws?webinar_id=%s&t=tok", w.ID)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	state := readUntil(t, conn, isEvent(viewer.EventState))
	var sp struct {
		Phase string `json:"phase"`
	}
	if err := json.Unmarshal(state.Data, &sp); err != nil || sp.Phase != "live" {
		t.Fatalf("state = %s (%v), want live", state.Data, err)
	}

	send := func(event string, data any) {
		raw, _ := json.Marshal(data)
		if err := conn.WriteJSON(WSMessage{Event: event, Data: raw}); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	send(EventChatMessage, map[string]string{"name": "Ann", "comment": "hi"})
	readUntil(t, conn, func(m WSMessage) bool {
		if m.Event != viewer.EventChat {
			return false
		}
		var p viewer.ChatPayload
		_ = json.Unmarshal(m.Data, &p)
		return len(p.Messages) == 1 && p.Messages[0].Comment == "hi" && p.Messages[0].Name == "Ann"
	})
	if n := store.len(); n != 0 {
		t.Fatalf("store has %d rows while live, want 0", n)
	}

	send(EventChatMessage, map[string]string{"name": "Ann", "comment": "   "})
	errMsg := readUntil(t, conn, isEvent(viewer.EventError))
	var ep viewer.ErrorPayload
	_ = json.Unmarshal(errMsg.Data, &ep)
	if ep.Code != "invalid" {
		t.Fatalf("error code = %q, want invalid", ep.Code)
	}

	send(EventResponse, map[string]string{"question_id": "nope", "response": "yes"})
	errMsg = readUntil(t, conn, isEvent(viewer.EventError))
	_ = json.Unmarshal(errMsg.Data, &ep)
	if ep.Code != "unknown_question" {
		t.Fatalf("error code = %q, want unknown_question", ep.Code)
	}

	_ = conn.Close()
	deadline := time.Now().Add(3 * time.Second)
	for store.len() != 1 {
		if time.Now().After(deadline) {
			t.Fatalf("buffered chat not flushed at teardown, store has %d rows", store.len())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestServeWs_RejectsBeforeUpgrade(t *testing.T) {
	w := liveWebinar()
	srv := newWSServer(t, w, &memComments{})

	tests := []struct {
		name  string
		query string
		want  int
	}{
		{"missing params", "", http.StatusBadRequest},
		{"bad id", "?webinar_id=x&t=tok", http.StatusBadRequest},
		{"unknown webinar", fmt.Sprintf("?webinar_id=%s&t=tok", uuid.New()), http.StatusNotFound},
		{"unknown token", fmt.Sprintf("?webinar_id=%s&t=nope", w.ID), http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Get(srv.URL + "/ws" + tt.query)
			if err != nil {
				t.Fatal(err)
			}
			resp.Body.Close()
			if resp.StatusCode != tt.want {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}

func TestErrorPayloadCodes(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&timeline.ValidationError{Field: "comment", Reason: "is required"}, "invalid"},
		{questions.ErrUnknownQuestion, "unknown_question"},
		{questions.ErrInvalidOption, "invalid_option"},
		{questions.ErrClosed, "responses_closed"},
		{viewer.ErrClosed, "closed"},
		{reconcile.ErrNotLoaded, "not_ready"},
		{fmt.Errorf("%w: timeout", reconcile.ErrStoreWrite), "store_unavailable"},
		{errors.New("boom"), "internal"},
	}
	for _, tt := range tests {
		if got := errorPayload(tt.err).Code; got != tt.want {
			t.Errorf("errorPayload(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
