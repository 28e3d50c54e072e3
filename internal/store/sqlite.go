package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/joescharf/agenda/internal/models"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements Store using modernc.org/sqlite (pure Go, no CGO).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Ensure parent directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite only supports one concurrent writer. A single connection
	// serializes all DB access and avoids "database is locked" errors when
	// many conversations are saved at once.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// boolToInt converts a bool to 0 or 1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// newULID generates a new ULID string.
func newULID() string {
	entropy := rand.New(rand.NewSource(time.Now().UnixNano()))
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulid.Monotonic(entropy, 0)).String()
}

// Migrate runs all embedded SQL migration files in order.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		filename TEXT PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()

		var count int
		err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations WHERE filename = ?", name).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if count > 0 {
			continue
		}

		data, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_migrations (filename) VALUES (?)", name); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Sessions ---

const sessionColumns = `user_id, stage, previous_stage, fields, pending_options, last_prompt, generation, paused, last_interaction_at, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

// errUnreadable marks a sessions row that was read but cannot be decoded.
var errUnreadable = errors.New("unreadable session")

func scanSession(row rowScanner) (*models.Session, error) {
	sess := &models.Session{}
	var stage, previous, fields, options string
	if err := row.Scan(&sess.UserID, &stage, &previous, &fields, &options, &sess.LastPrompt,
		&sess.Generation, &sess.Paused, &sess.LastInteractionAt, &sess.CreatedAt); err != nil {
		return nil, err
	}

	sess.Stage = models.Stage(stage)
	sess.PreviousStage = models.Stage(previous)
	if !sess.Stage.Valid() {
		return sess, fmt.Errorf("%w: unknown stage %q", errUnreadable, stage)
	}
	if sess.PreviousStage != "" && !sess.PreviousStage.Valid() {
		return sess, fmt.Errorf("%w: unknown previous stage %q", errUnreadable, previous)
	}
	if err := json.Unmarshal([]byte(fields), &sess.Fields); err != nil {
		return sess, fmt.Errorf("%w: decode fields: %v", errUnreadable, err)
	}
	if err := json.Unmarshal([]byte(options), &sess.PendingOptions); err != nil {
		return sess, fmt.Errorf("%w: decode pending options: %v", errUnreadable, err)
	}
	return sess, nil
}

func (s *SQLiteStore) LoadSession(ctx context.Context, userID string) (*models.Session, error) {
	sess, err := s.GetSession(ctx, userID)
	switch {
	case errors.Is(err, ErrNotFound):
		return models.NewSession(userID, time.Now().UTC()), nil
	case errors.Is(err, errUnreadable):
		slog.Warn("discarding unreadable session", "user", userID, "error", err)
		return models.NewSession(userID, time.Now().UTC()), nil
	case err != nil:
		return nil, err
	}
	return sess, nil
}

func (s *SQLiteStore) GetSession(ctx context.Context, userID string) (*models.Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE user_id = ?`, userID)
	sess, err := scanSession(row)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, ErrNotFound
	case errors.Is(err, errUnreadable):
		return nil, err
	case err != nil:
		return nil, fmt.Errorf("get session: %w", err)
	}
	return sess, nil
}

func (s *SQLiteStore) SaveSession(ctx context.Context, sess *models.Session) error {
	fields, err := json.Marshal(sess.Fields)
	if err != nil {
		return fmt.Errorf("encode fields: %w", err)
	}
	options := sess.PendingOptions
	if options == nil {
		options = []string{}
	}
	optionsJSON, err := json.Marshal(options)
	if err != nil {
		return fmt.Errorf("encode pending options: %w", err)
	}
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (`+sessionColumns+`, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			stage=excluded.stage, previous_stage=excluded.previous_stage, fields=excluded.fields,
			pending_options=excluded.pending_options, last_prompt=excluded.last_prompt,
			generation=excluded.generation, paused=excluded.paused,
			last_interaction_at=excluded.last_interaction_at, updated_at=excluded.updated_at`,
		sess.UserID, string(sess.Stage), string(sess.PreviousStage), string(fields), string(optionsJSON),
		sess.LastPrompt, sess.Generation, boolToInt(sess.Paused),
		sess.LastInteractionAt.UTC(), sess.CreatedAt.UTC(), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) DeleteSession(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE user_id = ?", userID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListSessions(ctx context.Context) ([]*models.Session, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+sessionColumns+` FROM sessions ORDER BY last_interaction_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var sessions []*models.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if errors.Is(err, errUnreadable) {
			slog.Warn("skipping unreadable session", "user", sess.UserID, "error", err)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// --- Calendar events ---

const eventColumns = `id, user_id, summary, description, location, video_url, start_unix, end_unix, created_at`

func scanEvent(row rowScanner) (*models.CalendarEvent, error) {
	e := &models.CalendarEvent{}
	var start, end int64
	if err := row.Scan(&e.ID, &e.UserID, &e.Summary, &e.Description, &e.Location, &e.VideoURL, &start, &end, &e.CreatedAt); err != nil {
		return nil, err
	}
	e.StartAt = time.Unix(start, 0).UTC()
	e.EndAt = time.Unix(end, 0).UTC()
	return e, nil
}

func (s *SQLiteStore) CreateEvent(ctx context.Context, e *models.CalendarEvent) error {
	if e.ID == "" {
		e.ID = newULID()
	}
	e.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO calendar_events (`+eventColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.UserID, e.Summary, e.Description, e.Location, e.VideoURL,
		e.StartAt.Unix(), e.EndAt.Unix(), e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create event: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetEvent(ctx context.Context, id string) (*models.CalendarEvent, error) {
	e, err := scanEvent(s.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM calendar_events WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("event %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get event: %w", err)
	}
	return e, nil
}

func (s *SQLiteStore) DeleteEvent(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM calendar_events WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("event %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) ListEventsBetween(ctx context.Context, start, end time.Time) ([]*models.CalendarEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM calendar_events
		WHERE start_unix < ? AND end_unix > ? ORDER BY start_unix, id`,
		end.Unix(), start.Unix())
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []*models.CalendarEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func (s *SQLiteStore) NextEventForUser(ctx context.Context, userID string, from, to time.Time) (*models.CalendarEvent, error) {
	e, err := scanEvent(s.db.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM calendar_events
		WHERE user_id = ? AND start_unix >= ? AND start_unix < ? ORDER BY start_unix LIMIT 1`,
		userID, from.Unix(), to.Unix()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("event for %s: %w", userID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("next event for user: %w", err)
	}
	return e, nil
}
