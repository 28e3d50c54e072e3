package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/agenda/internal/models"
	"github.com/joescharf/agenda/internal/slots"
	"github.com/joescharf/agenda/internal/store"
)

var brt = time.FixedZone("BRT", -3*60*60)

var testNow = time.Date(2026, 10, 16, 12, 0, 0, 0, brt)

// ---------------------------------------------------------------------------
// Mock implementations
// ---------------------------------------------------------------------------

type mockControl struct {
	store *store.MemoryStore
	calls []bool
	err   error
}

func (m *mockControl) SetPaused(ctx context.Context, userID string, paused bool) (*models.Session, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.calls = append(m.calls, paused)
	sess, err := m.store.LoadSession(ctx, userID)
	if err != nil {
		return nil, err
	}
	sess.Paused = paused
	return sess, m.store.SaveSession(ctx, sess)
}

type mockAvailability struct {
	busy []models.Interval
	err  error
}

func (m *mockAvailability) Available(_ context.Context, now time.Time) ([]slots.Day, error) {
	if m.err != nil {
		return nil, m.err
	}
	return slots.Resolve(slots.DefaultPolicy(brt), now, m.busy)
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func newTestServer(t *testing.T) (*Server, *store.MemoryStore, *mockControl, *mockAvailability) {
	t.Helper()
	ms := store.NewMemoryStore()
	ctl := &mockControl{store: ms}
	avail := &mockAvailability{}
	srv := NewServer(ms, ctl, avail)
	srv.now = func() time.Time { return testNow }
	return srv, ms, ctl, avail
}

func callToolReq(name string, args map[string]any) mcpgo.CallToolRequest {
	return mcpgo.CallToolRequest{
		Params: mcpgo.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

// resultText extracts the concatenated text from a CallToolResult.
func resultText(t *testing.T, result *mcpgo.CallToolResult) string {
	t.Helper()
	var b strings.Builder
	for _, c := range result.Content {
		tc, ok := c.(mcpgo.TextContent)
		if ok {
			b.WriteString(tc.Text)
		}
	}
	return b.String()
}

// resultJSON parses the text result as JSON into the provided target.
func resultJSON(t *testing.T, result *mcpgo.CallToolResult, target any) {
	t.Helper()
	text := resultText(t, result)
	err := json.Unmarshal([]byte(text), target)
	require.NoError(t, err, "failed to parse result JSON: %s", text)
}

func seedSession(t *testing.T, ms *store.MemoryStore, userID string, stage models.Stage) *models.Session {
	t.Helper()
	sess := models.NewSession(userID, testNow)
	sess.Stage = stage
	sess.Generation = 2
	sess.Fields.Flow = models.FlowBooking
	sess.Fields.Subject = "Revisão de contrato"
	require.NoError(t, ms.SaveSession(context.Background(), sess))
	return sess
}

// ---------------------------------------------------------------------------
// Sessions
// ---------------------------------------------------------------------------

func TestListSessions(t *testing.T) {
	srv, ms, _, _ := newTestServer(t)
	seedSession(t, ms, "u1", models.StageGetDate)
	seedSession(t, ms, "u2", models.StageConfirmBooking)

	result, err := srv.handleListSessions(context.Background(), callToolReq("agenda_list_sessions", nil))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	var out []sessionOut
	resultJSON(t, result, &out)
	assert.Len(t, out, 2)

	result, err = srv.handleListSessions(context.Background(), callToolReq("agenda_list_sessions", map[string]any{
		"stage": "confirm_booking",
	}))
	require.NoError(t, err)
	resultJSON(t, result, &out)
	require.Len(t, out, 1)
	assert.Equal(t, "u2", out[0].UserID)
	assert.Equal(t, "booking", out[0].Flow)
	assert.Equal(t, "Revisão de contrato", out[0].Subject)
}

func TestListSessions_UnknownStage(t *testing.T) {
	srv, _, _, _ := newTestServer(t)
	result, err := srv.handleListSessions(context.Background(), callToolReq("agenda_list_sessions", map[string]any{
		"stage": "bogus",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "unknown stage")
}

func TestGetSession(t *testing.T) {
	srv, ms, _, _ := newTestServer(t)
	seedSession(t, ms, "u1", models.StageGetTime)

	result, err := srv.handleGetSession(context.Background(), callToolReq("agenda_get_session", map[string]any{
		"user_id": "u1",
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	var sess models.Session
	resultJSON(t, result, &sess)
	assert.Equal(t, models.StageGetTime, sess.Stage)
	assert.Equal(t, int64(2), sess.Generation)
}

func TestGetSession_Errors(t *testing.T) {
	srv, _, _, _ := newTestServer(t)

	result, err := srv.handleGetSession(context.Background(), callToolReq("agenda_get_session", nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "user_id")

	result, err = srv.handleGetSession(context.Background(), callToolReq("agenda_get_session", map[string]any{
		"user_id": "nobody",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "no session")
}

func TestPauseResume(t *testing.T) {
	srv, ms, ctl, _ := newTestServer(t)
	seedSession(t, ms, "u1", models.StageGetDate)
	ctx := context.Background()

	_, handler := srv.pauseSessionTool()
	result, err := handler(ctx, callToolReq("agenda_pause_session", map[string]any{"user_id": "u1"}))
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Contains(t, resultText(t, result), "paused")

	_, handler = srv.resumeSessionTool()
	result, err = handler(ctx, callToolReq("agenda_resume_session", map[string]any{"user_id": "u1"}))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, result), "resumed")

	assert.Equal(t, []bool{true, false}, ctl.calls)

	ctl.err = errors.New("locked")
	result, err = handler(ctx, callToolReq("agenda_resume_session", map[string]any{"user_id": "u1"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

// ---------------------------------------------------------------------------
// Calendar
// ---------------------------------------------------------------------------

func TestAvailability(t *testing.T) {
	srv, _, _, avail := newTestServer(t)
	avail.busy = []models.Interval{{
		Start: time.Date(2026, 10, 19, 10, 0, 0, 0, brt),
		End:   time.Date(2026, 10, 19, 11, 0, 0, 0, brt),
	}}

	result, err := srv.handleAvailability(context.Background(), callToolReq("agenda_availability", map[string]any{
		"days": float64(2),
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	var days []struct {
		Date  string   `json:"date"`
		Times []string `json:"times"`
	}
	resultJSON(t, result, &days)
	require.Len(t, days, 2)
	assert.Equal(t, "2026-10-16", days[0].Date)
	assert.Equal(t, []string{"15:00", "16:30"}, days[0].Times)
	assert.Equal(t, []string{"09:00", "15:00", "16:30"}, days[1].Times)
}

func TestAvailability_CalendarError(t *testing.T) {
	srv, _, _, avail := newTestServer(t)
	avail.err = errors.New("timeout")

	result, err := srv.handleAvailability(context.Background(), callToolReq("agenda_availability", nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestListEvents(t *testing.T) {
	srv, ms, _, _ := newTestServer(t)
	ctx := context.Background()
	for _, e := range []*models.CalendarEvent{
		{ID: "a", UserID: "u1", Summary: "Consulta", StartAt: testNow.Add(24 * time.Hour), EndAt: testNow.Add(25 * time.Hour)},
		{ID: "b", UserID: "u2", Summary: "Triagem", StartAt: testNow.Add(48 * time.Hour), EndAt: testNow.Add(49 * time.Hour)},
		{ID: "c", UserID: "u1", Summary: "Longe", StartAt: testNow.AddDate(0, 0, 30), EndAt: testNow.AddDate(0, 0, 30).Add(time.Hour)},
	} {
		require.NoError(t, ms.CreateEvent(ctx, e))
	}

	result, err := srv.handleListEvents(ctx, callToolReq("agenda_list_events", nil))
	require.NoError(t, err)
	var out []map[string]any
	resultJSON(t, result, &out)
	assert.Len(t, out, 2)

	result, err = srv.handleListEvents(ctx, callToolReq("agenda_list_events", map[string]any{
		"days":    float64(60),
		"user_id": "u1",
	}))
	require.NoError(t, err)
	resultJSON(t, result, &out)
	require.Len(t, out, 2)
	assert.Equal(t, "a", out[0]["id"])
	assert.Equal(t, "c", out[1]["id"])

	result, err = srv.handleListEvents(ctx, callToolReq("agenda_list_events", map[string]any{"days": float64(-1)}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

// ---------------------------------------------------------------------------
// Integration
// ---------------------------------------------------------------------------

func TestMCPIntegration_ListTools(t *testing.T) {
	srv, _, _, _ := newTestServer(t)

	mcpSrv := srv.MCPServer()
	require.NotNil(t, mcpSrv)

	ctx := context.Background()
	reqJSON := []byte(`{"jsonrpc":"2.0","id":1,"method":"tools/list","params":{}}`)
	respMsg := mcpSrv.HandleMessage(ctx, reqJSON)
	require.NotNil(t, respMsg)

	respBytes, err := json.Marshal(respMsg)
	require.NoError(t, err)

	var rpcResp struct {
		Result struct {
			Tools []struct {
				Name string `json:"name"`
			} `json:"tools"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(respBytes, &rpcResp))

	toolNames := make(map[string]bool)
	for _, tool := range rpcResp.Result.Tools {
		toolNames[tool.Name] = true
	}
	for _, name := range []string{
		"agenda_list_sessions",
		"agenda_get_session",
		"agenda_pause_session",
		"agenda_resume_session",
		"agenda_availability",
		"agenda_list_events",
	} {
		assert.True(t, toolNames[name], "expected tool %q to be registered", name)
	}
}

var _ store.Store = (*store.MemoryStore)(nil)
