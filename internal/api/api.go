package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/joescharf/agenda/internal/models"
	"github.com/joescharf/agenda/internal/slots"
	"github.com/joescharf/agenda/internal/store"
)

// Processor runs inbound events and operator actions against sessions.
type Processor interface {
	HandleMessage(ctx context.Context, msg models.InboundMessage) error
	SetPaused(ctx context.Context, userID string, paused bool) (*models.Session, error)
	Reset(ctx context.Context, userID string) error
}

// Availability resolves free appointment slots.
type Availability interface {
	Available(ctx context.Context, now time.Time) ([]slots.Day, error)
}

// Server provides the REST API handlers.
type Server struct {
	store    store.Store
	proc     Processor
	avail    Availability
	now      func() time.Time
	inflight sync.WaitGroup
}

// NewServer creates a new API server.
func NewServer(s store.Store, proc Processor, avail Availability) *Server {
	return &Server{
		store: s,
		proc:  proc,
		avail: avail,
		now:   time.Now,
	}
}

// Router returns an http.Handler for the API routes.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/messages", s.receiveMessage)

	mux.HandleFunc("GET /api/v1/sessions", s.listSessions)
	mux.HandleFunc("GET /api/v1/sessions/{id}", s.getSession)
	mux.HandleFunc("DELETE /api/v1/sessions/{id}", s.deleteSession)
	mux.HandleFunc("POST /api/v1/sessions/{id}/pause", s.pauseSession)
	mux.HandleFunc("POST /api/v1/sessions/{id}/resume", s.resumeSession)

	mux.HandleFunc("GET /api/v1/availability", s.availability)
	mux.HandleFunc("GET /api/v1/events", s.listEvents)

	mux.HandleFunc("GET /api/v1/health", s.health)

	return corsMiddleware(mux)
}

// Wait blocks until every accepted message has been processed.
func (s *Server) Wait() {
	s.inflight.Wait()
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// --- Messages ---

// inboundPayload accepts both the native event shape and the chat
// provider's webhook shape, where text is an object with a message field.
type inboundPayload struct {
	UserID string          `json:"userId"`
	IsEcho bool            `json:"isEcho"`
	Phone  string          `json:"phone"`
	FromMe bool            `json:"fromMe"`
	Text   json.RawMessage `json:"text"`
}

func parseInbound(body []byte) (models.InboundMessage, error) {
	var p inboundPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return models.InboundMessage{}, fmt.Errorf("invalid JSON")
	}

	msg := models.InboundMessage{UserID: p.UserID, IsEcho: p.IsEcho || p.FromMe}
	if msg.UserID == "" {
		msg.UserID = p.Phone
	}
	if msg.UserID == "" {
		return msg, fmt.Errorf("userId is required")
	}

	raw := bytes.TrimSpace(p.Text)
	switch {
	case len(raw) == 0 || bytes.Equal(raw, []byte("null")):
	case raw[0] == '"':
		if err := json.Unmarshal(raw, &msg.Text); err != nil {
			return msg, fmt.Errorf("invalid text")
		}
	case raw[0] == '{':
		var t struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(raw, &t); err != nil {
			return msg, fmt.Errorf("invalid text")
		}
		msg.Text = t.Message
	default:
		return msg, fmt.Errorf("invalid text")
	}
	return msg, nil
}

// MessageAccepted is the JSON response for an accepted inbound message.
type MessageAccepted struct {
	UserID string `json:"user_id"`
	Status string `json:"status"`
}

func (s *Server) receiveMessage(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(http.MaxBytesReader(w, r.Body, 1<<20)); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	msg, err := parseInbound(buf.Bytes())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Processing outlives the request.
	ctx := context.WithoutCancel(r.Context())
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		if err := s.proc.HandleMessage(ctx, msg); err != nil {
			slog.Error("message processing failed", "user", msg.UserID, "error", err)
		}
	}()

	writeJSON(w, http.StatusAccepted, MessageAccepted{UserID: msg.UserID, Status: "accepted"})
}

// --- Sessions ---

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.store.ListSessions(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if sessions == nil {
		sessions = []*models.Session{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.store.GetSession(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.store.GetSession(r.Context(), id); errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	if err := s.proc.Reset(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) pauseSession(w http.ResponseWriter, r *http.Request) {
	s.setPaused(w, r, true)
}

func (s *Server) resumeSession(w http.ResponseWriter, r *http.Request) {
	s.setPaused(w, r, false)
}

func (s *Server) setPaused(w http.ResponseWriter, r *http.Request, paused bool) {
	sess, err := s.proc.SetPaused(r.Context(), r.PathValue("id"), paused)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// --- Availability ---

// DayResponse is one day of free slots.
type DayResponse struct {
	Date    string   `json:"date"`
	Weekday string   `json:"weekday"`
	Times   []string `json:"times"`
}

func (s *Server) availability(w http.ResponseWriter, r *http.Request) {
	days, err := s.avail.Available(r.Context(), s.now())
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	resp := make([]DayResponse, 0, len(days))
	for _, d := range days {
		resp = append(resp, DayResponse{
			Date:    d.Key(),
			Weekday: d.Date.Weekday().String(),
			Times:   d.Times(),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) listEvents(w http.ResponseWriter, r *http.Request) {
	days := 14
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "days must be a positive integer")
			return
		}
		days = n
	}

	now := s.now()
	events, err := s.store.ListEventsBetween(r.Context(), now, now.AddDate(0, 0, days))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if events == nil {
		events = []*models.CalendarEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if _, err := s.store.ListSessions(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
