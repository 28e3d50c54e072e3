package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/agenda/internal/calendar"
	"github.com/joescharf/agenda/internal/coordinator"
	"github.com/joescharf/agenda/internal/dialogue"
	"github.com/joescharf/agenda/internal/models"
	"github.com/joescharf/agenda/internal/slots"
	"github.com/joescharf/agenda/internal/store"
	"github.com/joescharf/agenda/internal/watchdog"
)

var brt = time.FixedZone("BRT", -3*60*60)

// Friday 16 October 2026, noon.
var testNow = time.Date(2026, 10, 16, 12, 0, 0, 0, brt)

type recordingSender struct {
	mu    sync.Mutex
	texts map[string][]string
}

func (r *recordingSender) SendText(_ context.Context, to, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.texts == nil {
		r.texts = make(map[string][]string)
	}
	r.texts[to] = append(r.texts[to], text)
	return nil
}

func (r *recordingSender) to(user string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.texts[user]...)
}

func setupTestServer(t *testing.T) (*Server, store.Store, *recordingSender) {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")

	s, err := store.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })

	clock := func() time.Time { return testNow }
	cal := calendar.NewLocal(s, calendar.WithClock(clock))
	finder, err := slots.NewFinder(slots.DefaultPolicy(brt), cal)
	require.NoError(t, err)
	engine := dialogue.New(cal, finder, dialogue.DefaultConfig(brt)).WithClock(clock)

	sender := &recordingSender{}
	coord := coordinator.New(s, engine, sender, coordinator.DefaultConfig(),
		coordinator.WithClock(clock),
		coordinator.WithScheduler(watchdog.NewManual()))
	t.Cleanup(coord.Stop)

	srv := NewServer(s, coord, finder)
	srv.now = clock
	return srv, s, sender
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestReceiveMessage_Native(t *testing.T) {
	srv, s, sender := setupTestServer(t)
	router := srv.Router()

	w := do(t, router, "POST", "/api/v1/messages", `{"userId":"5511999990000","isEcho":false,"text":"Olá"}`)
	assert.Equal(t, http.StatusAccepted, w.Code)

	var resp MessageAccepted
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "5511999990000", resp.UserID)

	srv.Wait()
	texts := sender.to("5511999990000")
	require.Len(t, texts, 1)
	assert.Contains(t, texts[0], "1 - Agendar consulta")

	sess, err := s.GetSession(context.Background(), "5511999990000")
	require.NoError(t, err)
	assert.Equal(t, models.StageAwaitingMenuChoice, sess.Stage)
}

func TestReceiveMessage_WebhookShape(t *testing.T) {
	srv, s, sender := setupTestServer(t)
	router := srv.Router()

	w := do(t, router, "POST", "/api/v1/messages", `{"phone":"5521988887777","fromMe":false,"text":{"message":"oi"}}`)
	assert.Equal(t, http.StatusAccepted, w.Code)
	srv.Wait()
	assert.Len(t, sender.to("5521988887777"), 1)

	// An operator echo with the pause token.
	w = do(t, router, "POST", "/api/v1/messages", `{"phone":"5521988887777","fromMe":true,"text":{"message":"#pausar"}}`)
	assert.Equal(t, http.StatusAccepted, w.Code)
	srv.Wait()

	sess, err := s.GetSession(context.Background(), "5521988887777")
	require.NoError(t, err)
	assert.True(t, sess.Paused)
	assert.Len(t, sender.to("5521988887777"), 1)
}

func TestReceiveMessage_BadRequests(t *testing.T) {
	srv, _, _ := setupTestServer(t)
	router := srv.Router()

	for _, body := range []string{
		`not json`,
		`{"text":"oi"}`,
		`{"userId":"u1","text":42}`,
	} {
		w := do(t, router, "POST", "/api/v1/messages", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
	}
}

func TestParseInbound(t *testing.T) {
	msg, err := parseInbound([]byte(`{"userId":"u1","isEcho":true,"text":"#retomar"}`))
	require.NoError(t, err)
	assert.Equal(t, models.InboundMessage{UserID: "u1", IsEcho: true, Text: "#retomar"}, msg)

	msg, err = parseInbound([]byte(`{"phone":"u2","text":{"message":"  Revisão  "}}`))
	require.NoError(t, err)
	assert.Equal(t, "  Revisão  ", msg.Text, "text is passed through verbatim")

	msg, err = parseInbound([]byte(`{"userId":"u3"}`))
	require.NoError(t, err)
	assert.Empty(t, msg.Text)
}

func TestSessions_API(t *testing.T) {
	srv, s, _ := setupTestServer(t)
	router := srv.Router()
	ctx := context.Background()

	w := do(t, router, "GET", "/api/v1/sessions", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	sess := models.NewSession("u1", testNow)
	sess.Stage = models.StageGetDate
	sess.Generation = 3
	require.NoError(t, s.SaveSession(ctx, sess))

	w = do(t, router, "GET", "/api/v1/sessions", "")
	var list []*models.Session
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "u1", list[0].UserID)

	w = do(t, router, "GET", "/api/v1/sessions/u1", "")
	assert.Equal(t, http.StatusOK, w.Code)
	var got models.Session
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, models.StageGetDate, got.Stage)
	assert.Equal(t, int64(3), got.Generation)

	w = do(t, router, "GET", "/api/v1/sessions/nobody", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, router, "POST", "/api/v1/sessions/u1/pause", "")
	assert.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.True(t, got.Paused)

	w = do(t, router, "POST", "/api/v1/sessions/u1/resume", "")
	assert.Equal(t, http.StatusOK, w.Code)
	stored, err := s.GetSession(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, stored.Paused)

	w = do(t, router, "DELETE", "/api/v1/sessions/u1", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	_, err = s.GetSession(ctx, "u1")
	assert.ErrorIs(t, err, store.ErrNotFound)

	w = do(t, router, "DELETE", "/api/v1/sessions/u1", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAvailability_API(t *testing.T) {
	srv, s, _ := setupTestServer(t)
	router := srv.Router()

	// Busy 19/10 10:00-11:00 removes 10:30 but keeps 09:00.
	require.NoError(t, s.CreateEvent(context.Background(), &models.CalendarEvent{
		ID:      "busy",
		Summary: "Audiência",
		StartAt: time.Date(2026, 10, 19, 10, 0, 0, 0, brt),
		EndAt:   time.Date(2026, 10, 19, 11, 0, 0, 0, brt),
	}))

	w := do(t, router, "GET", "/api/v1/availability", "")
	assert.Equal(t, http.StatusOK, w.Code)

	var days []DayResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &days))
	require.GreaterOrEqual(t, len(days), 2)
	assert.Equal(t, "2026-10-16", days[0].Date)
	assert.Equal(t, []string{"15:00", "16:30"}, days[0].Times)
	assert.Equal(t, "2026-10-19", days[1].Date)
	assert.Equal(t, "Monday", days[1].Weekday)
	assert.Equal(t, []string{"09:00", "15:00", "16:30"}, days[1].Times)
}

func TestEvents_API(t *testing.T) {
	srv, s, _ := setupTestServer(t)
	router := srv.Router()

	require.NoError(t, s.CreateEvent(context.Background(), &models.CalendarEvent{
		ID:      "e1",
		UserID:  "u1",
		Summary: "Consulta",
		StartAt: time.Date(2026, 10, 20, 9, 0, 0, 0, brt),
		EndAt:   time.Date(2026, 10, 20, 10, 0, 0, 0, brt),
	}))

	w := do(t, router, "GET", "/api/v1/events?days=7", "")
	assert.Equal(t, http.StatusOK, w.Code)
	var events []*models.CalendarEvent
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &events))
	require.Len(t, events, 1)
	assert.Equal(t, "e1", events[0].ID)

	w = do(t, router, "GET", "/api/v1/events?days=1", "")
	assert.JSONEq(t, `[]`, w.Body.String())

	w = do(t, router, "GET", "/api/v1/events?days=abc", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealth_API(t *testing.T) {
	srv, _, _ := setupTestServer(t)
	w := do(t, srv.Router(), "GET", "/api/v1/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestCORS_Preflight(t *testing.T) {
	srv, _, _ := setupTestServer(t)
	w := do(t, srv.Router(), "OPTIONS", "/api/v1/sessions", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
