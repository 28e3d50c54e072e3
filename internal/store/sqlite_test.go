package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/agenda/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)

	err = s.Migrate(context.Background())
	require.NoError(t, err)

	t.Cleanup(func() { s.Close() })
	return s
}

func TestNewSQLiteStore_CreatesDirectory(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "subdir", "test.db")

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(filepath.Join(dir, "subdir"))
	assert.NoError(t, err, "should create parent directory")
}

func TestMigrate_Idempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Running migrate again should be a no-op
	err := s.Migrate(ctx)
	assert.NoError(t, err)
}

// --- Sessions ---

func TestLoadSession_MissingIsFresh(t *testing.T) {
	s := newTestStore(t)

	sess, err := s.LoadSession(context.Background(), "5511999990000")
	require.NoError(t, err)
	assert.Equal(t, "5511999990000", sess.UserID)
	assert.Equal(t, models.StageInitial, sess.Stage)
	assert.Zero(t, sess.Generation)
	assert.False(t, sess.Paused)

	_, err = s.GetSession(context.Background(), "5511999990000")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSessionCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	start := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

	sess := models.NewSession("5511999990000", time.Now().UTC())
	sess.Stage = models.StageGetTime
	sess.PreviousStage = models.StageGetDate
	sess.Generation = 3
	sess.PendingOptions = []string{"09:00", "10:30"}
	sess.LastPrompt = "Escolha um horário"
	sess.Fields = models.Fields{
		Flow:            models.FlowBooking,
		AppointmentKind: "Remoto",
		Date:            "2026-10-19",
		Subject:         "Revisão de contrato",
		SlotStart:       start,
	}
	require.NoError(t, s.SaveSession(ctx, sess))

	got, err := s.LoadSession(ctx, sess.UserID)
	require.NoError(t, err)
	assert.Equal(t, models.StageGetTime, got.Stage)
	assert.Equal(t, models.StageGetDate, got.PreviousStage)
	assert.Equal(t, int64(3), got.Generation)
	assert.Equal(t, []string{"09:00", "10:30"}, got.PendingOptions)
	assert.Equal(t, "Escolha um horário", got.LastPrompt)
	assert.Equal(t, "Revisão de contrato", got.Fields.Subject)
	assert.Equal(t, models.FlowBooking, got.Fields.Flow)
	assert.True(t, start.Equal(got.Fields.SlotStart))

	// Upsert
	got.Paused = true
	got.Generation = 4
	require.NoError(t, s.SaveSession(ctx, got))

	got2, err := s.LoadSession(ctx, sess.UserID)
	require.NoError(t, err)
	assert.True(t, got2.Paused)
	assert.Equal(t, int64(4), got2.Generation)

	sessions, err := s.ListSessions(ctx)
	require.NoError(t, err)
	assert.Len(t, sessions, 1)

	// Delete
	require.NoError(t, s.DeleteSession(ctx, sess.UserID))
	got3, err := s.LoadSession(ctx, sess.UserID)
	require.NoError(t, err)
	assert.Equal(t, models.StageInitial, got3.Stage)

	// Deleting a missing session is not an error
	assert.NoError(t, s.DeleteSession(ctx, sess.UserID))
}

func TestLoadSession_CorruptRecordIsFresh(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (user_id, stage, fields, pending_options, last_interaction_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		"broken", "get_date", "{not json", "[]", now, now, now)
	require.NoError(t, err)

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (user_id, stage, last_interaction_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		"unknown-stage", "done", now, now, now)
	require.NoError(t, err)

	sess, err := s.LoadSession(ctx, "broken")
	require.NoError(t, err)
	assert.Equal(t, models.StageInitial, sess.Stage)

	sess, err = s.LoadSession(ctx, "unknown-stage")
	require.NoError(t, err)
	assert.Equal(t, models.StageInitial, sess.Stage)

	sessions, err := s.ListSessions(ctx)
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

// --- Calendar events ---

func TestEventCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	start := time.Date(2026, 10, 19, 13, 0, 0, 0, time.UTC)

	e := &models.CalendarEvent{
		UserID:   "5511999990000",
		Summary:  "Consulta: Revisão de contrato",
		Location: "Escritório",
		StartAt:  start,
		EndAt:    start.Add(time.Hour),
	}
	require.NoError(t, s.CreateEvent(ctx, e))
	assert.NotEmpty(t, e.ID)

	got, err := s.GetEvent(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, e.Summary, got.Summary)
	assert.True(t, start.Equal(got.StartAt))

	require.NoError(t, s.DeleteEvent(ctx, e.ID))
	_, err = s.GetEvent(ctx, e.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	err = s.DeleteEvent(ctx, e.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListEventsBetween_HalfOpen(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	day := time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)

	for _, h := range []int{9, 11, 14} {
		require.NoError(t, s.CreateEvent(ctx, &models.CalendarEvent{
			StartAt: day.Add(time.Duration(h) * time.Hour),
			EndAt:   day.Add(time.Duration(h+1) * time.Hour),
		}))
	}

	// [10:00, 14:00) touches 11:00 only; 09-10 ends at the boundary, 14-15 starts at it.
	events, err := s.ListEventsBetween(ctx, day.Add(10*time.Hour), day.Add(14*time.Hour))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, 11, events[0].StartAt.Hour())

	events, err = s.ListEventsBetween(ctx, day, day.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Len(t, events, 3)
	assert.True(t, events[0].StartAt.Before(events[1].StartAt))
}

func TestNextEventForUser(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)

	past := &models.CalendarEvent{UserID: "u1", StartAt: now.Add(-24 * time.Hour), EndAt: now.Add(-23 * time.Hour)}
	later := &models.CalendarEvent{UserID: "u1", StartAt: now.Add(72 * time.Hour), EndAt: now.Add(73 * time.Hour)}
	sooner := &models.CalendarEvent{UserID: "u1", StartAt: now.Add(24 * time.Hour), EndAt: now.Add(25 * time.Hour)}
	other := &models.CalendarEvent{UserID: "u2", StartAt: now.Add(2 * time.Hour), EndAt: now.Add(3 * time.Hour)}
	for _, e := range []*models.CalendarEvent{past, later, sooner, other} {
		require.NoError(t, s.CreateEvent(ctx, e))
	}

	got, err := s.NextEventForUser(ctx, "u1", now, now.Add(30*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, sooner.ID, got.ID)

	_, err = s.NextEventForUser(ctx, "u1", now, now.Add(time.Hour))
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.NextEventForUser(ctx, "nobody", now, now.Add(30*24*time.Hour))
	assert.ErrorIs(t, err, ErrNotFound)
}
