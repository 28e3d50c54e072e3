package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/agenda/internal/models"
)

func TestMemoryStore_SessionsAreCopied(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	sess := models.NewSession("u1", time.Now())
	sess.PendingOptions = []string{"Presencial", "Remoto"}
	require.NoError(t, m.SaveSession(ctx, sess))

	// Mutating the caller's copy must not leak into the store.
	sess.PendingOptions[0] = "changed"
	sess.Stage = models.StageGetDate

	got, err := m.LoadSession(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, models.StageInitial, got.Stage)
	assert.Equal(t, "Presencial", got.PendingOptions[0])

	got, err = m.GetSession(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.UserID)

	require.NoError(t, m.DeleteSession(ctx, "u1"))
	_, err = m.GetSession(ctx, "u1")
	assert.ErrorIs(t, err, ErrNotFound)

	sessions, err := m.ListSessions(ctx)
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestMemoryStore_Events(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	day := time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)

	a := &models.CalendarEvent{UserID: "u1", StartAt: day.Add(9 * time.Hour), EndAt: day.Add(10 * time.Hour)}
	b := &models.CalendarEvent{UserID: "u1", StartAt: day.Add(15 * time.Hour), EndAt: day.Add(16 * time.Hour)}
	require.NoError(t, m.CreateEvent(ctx, b))
	require.NoError(t, m.CreateEvent(ctx, a))

	events, err := m.ListEventsBetween(ctx, day.Add(10*time.Hour), day.Add(16*time.Hour))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, b.ID, events[0].ID)

	next, err := m.NextEventForUser(ctx, "u1", day, day.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, a.ID, next.ID)

	require.NoError(t, m.DeleteEvent(ctx, a.ID))
	assert.ErrorIs(t, m.DeleteEvent(ctx, a.ID), ErrNotFound)
}
