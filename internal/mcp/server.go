package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/joescharf/agenda/internal/models"
	"github.com/joescharf/agenda/internal/slots"
	"github.com/joescharf/agenda/internal/store"
)

// SessionControl pauses and resumes sessions inside the per-user section.
type SessionControl interface {
	SetPaused(ctx context.Context, userID string, paused bool) (*models.Session, error)
}

// Availability resolves free appointment slots.
type Availability interface {
	Available(ctx context.Context, now time.Time) ([]slots.Day, error)
}

// Server exposes agenda sessions and the calendar as MCP tools for
// operators.
type Server struct {
	store   store.Store
	control SessionControl
	avail   Availability
	now     func() time.Time
}

// NewServer creates the MCP server wrapper.
func NewServer(s store.Store, control SessionControl, avail Availability) *Server {
	return &Server{
		store:   s,
		control: control,
		avail:   avail,
		now:     time.Now,
	}
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("agenda", "1.0.0", server.WithToolCapabilities(true))

	srv.AddTool(s.listSessionsTool())
	srv.AddTool(s.getSessionTool())
	srv.AddTool(s.pauseSessionTool())
	srv.AddTool(s.resumeSessionTool())
	srv.AddTool(s.availabilityTool())
	srv.AddTool(s.listEventsTool())

	return srv
}

// ServeStdio starts the stdio transport, blocking until ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	srv := s.MCPServer()
	stdioServer := server.NewStdioServer(srv)
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

// ---------------------------------------------------------------------------
// Tool definitions and handlers
// ---------------------------------------------------------------------------

type sessionOut struct {
	UserID            string   `json:"user_id"`
	Stage             string   `json:"stage"`
	PreviousStage     string   `json:"previous_stage,omitempty"`
	Flow              string   `json:"flow,omitempty"`
	Subject           string   `json:"subject,omitempty"`
	PendingOptions    []string `json:"pending_options,omitempty"`
	Generation        int64    `json:"generation"`
	Paused            bool     `json:"paused"`
	LastInteractionAt string   `json:"last_interaction_at"`
}

func toSessionOut(sess *models.Session) sessionOut {
	return sessionOut{
		UserID:            sess.UserID,
		Stage:             string(sess.Stage),
		PreviousStage:     string(sess.PreviousStage),
		Flow:              string(sess.Fields.Flow),
		Subject:           sess.Fields.Subject,
		PendingOptions:    sess.PendingOptions,
		Generation:        sess.Generation,
		Paused:            sess.Paused,
		LastInteractionAt: sess.LastInteractionAt.UTC().Format(time.RFC3339),
	}
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// agenda_list_sessions
func (s *Server) listSessionsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("agenda_list_sessions",
		mcp.WithDescription("List live conversation sessions, most recent first. Returns user id, stage, flow, generation, and paused flag."),
		mcp.WithString("stage", mcp.Description("Only sessions in this stage")),
	)
	return tool, s.handleListSessions
}

func (s *Server) handleListSessions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stage := request.GetString("stage", "")
	if stage != "" && !models.Stage(stage).Valid() {
		return mcp.NewToolResultError(fmt.Sprintf("unknown stage: %s", stage)), nil
	}

	sessions, err := s.store.ListSessions(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list sessions: %v", err)), nil
	}

	out := make([]sessionOut, 0, len(sessions))
	for _, sess := range sessions {
		if stage != "" && string(sess.Stage) != stage {
			continue
		}
		out = append(out, toSessionOut(sess))
	}
	return jsonResult(out)
}

// agenda_get_session
func (s *Server) getSessionTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("agenda_get_session",
		mcp.WithDescription("Get the full state of one user's conversation, including collected fields and the last prompt."),
		mcp.WithString("user_id", mcp.Required(), mcp.Description("Chat user id (phone number)")),
	)
	return tool, s.handleGetSession
}

func (s *Server) handleGetSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID, err := request.RequireString("user_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: user_id"), nil
	}

	sess, err := s.store.GetSession(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("no session for %s", userID)), nil
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to get session: %v", err)), nil
	}
	return jsonResult(sess)
}

// agenda_pause_session
func (s *Server) pauseSessionTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("agenda_pause_session",
		mcp.WithDescription("Hand a conversation over to a human: the bot ignores the user's messages until resumed."),
		mcp.WithString("user_id", mcp.Required(), mcp.Description("Chat user id (phone number)")),
	)
	return tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return s.handleSetPaused(ctx, request, true)
	}
}

// agenda_resume_session
func (s *Server) resumeSessionTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("agenda_resume_session",
		mcp.WithDescription("Give a paused conversation back to the bot."),
		mcp.WithString("user_id", mcp.Required(), mcp.Description("Chat user id (phone number)")),
	)
	return tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return s.handleSetPaused(ctx, request, false)
	}
}

func (s *Server) handleSetPaused(ctx context.Context, request mcp.CallToolRequest, paused bool) (*mcp.CallToolResult, error) {
	userID, err := request.RequireString("user_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: user_id"), nil
	}

	sess, err := s.control.SetPaused(ctx, userID, paused)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to update session: %v", err)), nil
	}

	verb := "resumed"
	if paused {
		verb = "paused"
	}
	return mcp.NewToolResultText(fmt.Sprintf("Session %s %s (stage %s)", sess.UserID, verb, sess.Stage)), nil
}

// agenda_availability
func (s *Server) availabilityTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("agenda_availability",
		mcp.WithDescription("List free appointment slots grouped by day, as offered to users."),
		mcp.WithNumber("days", mcp.Description("Maximum number of days to return (default: all in the horizon)")),
	)
	return tool, s.handleAvailability
}

func (s *Server) handleAvailability(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	days, err := s.avail.Available(ctx, s.now())
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to read calendar: %v", err)), nil
	}
	if n := request.GetInt("days", 0); n > 0 {
		days = slots.FirstDays(days, n)
	}

	type dayOut struct {
		Date  string   `json:"date"`
		Times []string `json:"times"`
	}
	out := make([]dayOut, len(days))
	for i, d := range days {
		out[i] = dayOut{Date: d.Key(), Times: d.Times()}
	}
	return jsonResult(out)
}

// agenda_list_events
func (s *Server) listEventsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("agenda_list_events",
		mcp.WithDescription("List booked calendar events from now on."),
		mcp.WithNumber("days", mcp.Description("How many days ahead to look (default 14)")),
		mcp.WithString("user_id", mcp.Description("Only events booked by this user")),
	)
	return tool, s.handleListEvents
}

func (s *Server) handleListEvents(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	days := request.GetInt("days", 14)
	if days <= 0 {
		return mcp.NewToolResultError("days must be positive"), nil
	}
	userID := request.GetString("user_id", "")

	now := s.now()
	events, err := s.store.ListEventsBetween(ctx, now, now.AddDate(0, 0, days))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list events: %v", err)), nil
	}

	type eventOut struct {
		ID       string `json:"id"`
		UserID   string `json:"user_id,omitempty"`
		Summary  string `json:"summary"`
		Start    string `json:"start"`
		End      string `json:"end"`
		VideoURL string `json:"video_url,omitempty"`
	}
	out := make([]eventOut, 0, len(events))
	for _, e := range events {
		if userID != "" && e.UserID != userID {
			continue
		}
		out = append(out, eventOut{
			ID:       e.ID,
			UserID:   e.UserID,
			Summary:  e.Summary,
			Start:    e.StartAt.Format(time.RFC3339),
			End:      e.EndAt.Format(time.RFC3339),
			VideoURL: e.VideoURL,
		})
	}
	return jsonResult(out)
}
