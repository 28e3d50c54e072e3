// Package coordinator processes inbound chat events against the session
// store, the dialogue engine and the outbound messaging gateway.
//
// Every event for a user runs inside that user's exclusive section:
// load, mutate, then save or delete. The reply is sent after the section is
// released and the inactivity watchdog is armed only once the send succeeds.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/joescharf/agenda/internal/dialogue"
	"github.com/joescharf/agenda/internal/keylock"
	"github.com/joescharf/agenda/internal/messaging"
	"github.com/joescharf/agenda/internal/models"
	"github.com/joescharf/agenda/internal/store"
	"github.com/joescharf/agenda/internal/watchdog"
)

// ErrMissingUser is returned for events without a user identifier.
var ErrMissingUser = errors.New("message has no user id")

// Config holds the operator control tokens and watchdog timeouts.
type Config struct {
	PauseToken  string
	ResumeToken string
	Timeouts    watchdog.Config
}

// DefaultConfig returns the standard tokens and timeouts.
func DefaultConfig() Config {
	return Config{
		PauseToken:  "#pausar",
		ResumeToken: "#retomar",
		Timeouts:    watchdog.DefaultConfig(),
	}
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithClock overrides the clock used for interaction timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// WithScheduler overrides the scheduler behind the watchdog.
func WithScheduler(s watchdog.Scheduler) Option {
	return func(c *Coordinator) { c.sched = s }
}

// Coordinator serializes events per user and drives the watchdog.
type Coordinator struct {
	locks    *keylock.Set
	sessions store.SessionStore
	engine   *dialogue.Engine
	sender   messaging.Gateway
	watchdog *watchdog.Watchdog
	cfg      Config
	now      func() time.Time
	sched    watchdog.Scheduler

	// generation is the last generation handed out to any session. Values
	// never repeat, so a timer of a deleted session cannot match the next
	// session of the same user.
	generation atomic.Int64
}

// New creates a coordinator. Its watchdog starts empty; call RearmAll to
// resume timers for sessions persisted by a previous run.
func New(sessions store.SessionStore, engine *dialogue.Engine, sender messaging.Gateway, cfg Config, opts ...Option) *Coordinator {
	def := DefaultConfig()
	if cfg.PauseToken == "" {
		cfg.PauseToken = def.PauseToken
	}
	if cfg.ResumeToken == "" {
		cfg.ResumeToken = def.ResumeToken
	}

	c := &Coordinator{
		locks:    keylock.New(),
		sessions: sessions,
		engine:   engine,
		sender:   sender,
		cfg:      cfg,
		now:      time.Now,
		sched:    watchdog.SystemScheduler{},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.generation.Store(c.now().UnixNano())
	c.watchdog = watchdog.New(cfg.Timeouts, c.onTimer, watchdog.WithScheduler(c.sched))
	return c
}

// HandleMessage processes one inbound event.
func (c *Coordinator) HandleMessage(ctx context.Context, msg models.InboundMessage) error {
	if msg.UserID == "" {
		return ErrMissingUser
	}

	unlock := c.locks.Lock(msg.UserID)
	sess, err := c.sessions.LoadSession(ctx, msg.UserID)
	if err != nil {
		unlock()
		return fmt.Errorf("load session %s: %w", msg.UserID, err)
	}

	if msg.IsEcho {
		err := c.applyControl(ctx, sess, msg.Text)
		unlock()
		return err
	}
	if sess.Paused {
		unlock()
		slog.Debug("dropping message for paused session", "user", msg.UserID)
		return nil
	}

	c.bump(sess)
	sess.LastInteractionAt = c.now()
	reply := c.engine.Handle(ctx, sess, msg.Text)
	if err := c.persist(ctx, sess, reply.Terminal); err != nil {
		unlock()
		return err
	}
	unlock()

	return c.deliver(ctx, sess, reply)
}

// applyControl handles a message the operator sent from the bot's account.
// Only the control tokens have an effect; other echoes are ignored.
func (c *Coordinator) applyControl(ctx context.Context, sess *models.Session, text string) error {
	token := strings.TrimSpace(text)
	switch {
	case strings.EqualFold(token, c.cfg.PauseToken):
		return c.setPaused(ctx, sess, true)
	case strings.EqualFold(token, c.cfg.ResumeToken):
		return c.setPaused(ctx, sess, false)
	}
	return nil
}

// setPaused must be called inside the user's section. The generation is
// bumped so timers armed before the toggle become stale.
func (c *Coordinator) setPaused(ctx context.Context, sess *models.Session, paused bool) error {
	sess.Paused = paused
	c.bump(sess)
	slog.Info("session pause toggled", "user", sess.UserID, "paused", paused)

	if !paused && sess.Stage == models.StageInitial {
		return c.persist(ctx, sess, true)
	}
	return c.persist(ctx, sess, false)
}

// bump moves sess to a generation no session of any user has held before.
func (c *Coordinator) bump(sess *models.Session) {
	for {
		cur := c.generation.Load()
		next := max(cur, sess.Generation) + 1
		if c.generation.CompareAndSwap(cur, next) {
			sess.Generation = next
			return
		}
	}
}

// observe keeps the counter ahead of a generation written by an earlier run.
func (c *Coordinator) observe(generation int64) {
	for {
		cur := c.generation.Load()
		if cur >= generation || c.generation.CompareAndSwap(cur, generation) {
			return
		}
	}
}

func (c *Coordinator) persist(ctx context.Context, sess *models.Session, terminal bool) error {
	if terminal {
		if err := c.sessions.DeleteSession(ctx, sess.UserID); err != nil {
			return fmt.Errorf("delete session %s: %w", sess.UserID, err)
		}
		return nil
	}
	if err := c.sessions.SaveSession(ctx, sess); err != nil {
		return fmt.Errorf("save session %s: %w", sess.UserID, err)
	}
	return nil
}

// deliver sends the reply and arms the next timer for a live session. A
// failed send is not rolled back and leaves the session without a timer.
func (c *Coordinator) deliver(ctx context.Context, sess *models.Session, reply dialogue.Reply) error {
	if reply.Text != "" {
		if err := c.sender.SendText(ctx, sess.UserID, reply.Text); err != nil {
			return fmt.Errorf("send to %s: %w", sess.UserID, err)
		}
	}
	if reply.Terminal || sess.Paused {
		return nil
	}

	kind := watchdog.Idle
	if sess.Stage == models.StageAwaitingTimeoutResponse {
		kind = watchdog.Final
	}
	c.watchdog.Arm(sess.UserID, sess.Generation, kind)
	return nil
}

// onTimer runs a fired watchdog timer inside the user's section.
func (c *Coordinator) onTimer(userID string, generation int64, kind watchdog.Kind) {
	ctx := context.Background()

	unlock := c.locks.Lock(userID)
	sess, err := c.sessions.LoadSession(ctx, userID)
	if err != nil {
		unlock()
		slog.Error("watchdog: load session", "user", userID, "error", err)
		return
	}
	if sess.Generation != generation || sess.Paused || sess.Stage == models.StageInitial {
		unlock()
		return
	}

	var reply dialogue.Reply
	switch kind {
	case watchdog.Idle:
		if sess.Stage == models.StageAwaitingTimeoutResponse {
			unlock()
			return
		}
		reply = c.engine.Interrupt(sess)
		sess.LastInteractionAt = c.now()
	case watchdog.Final:
		if sess.Stage != models.StageAwaitingTimeoutResponse {
			unlock()
			return
		}
		reply = c.engine.Expire(sess)
	}

	if err := c.persist(ctx, sess, reply.Terminal); err != nil {
		unlock()
		slog.Error("watchdog: persist session", "user", userID, "error", err)
		return
	}
	unlock()

	slog.Info("watchdog fired", "user", userID, "kind", kind.String(), "generation", generation)
	if err := c.deliver(ctx, sess, reply); err != nil {
		slog.Warn("watchdog: delivery failed", "user", userID, "error", err)
	}
}

// RearmAll arms a timer for every live, unpaused session in the store at its
// current generation. It returns the number of timers armed.
func (c *Coordinator) RearmAll(ctx context.Context) (int, error) {
	sessions, err := c.sessions.ListSessions(ctx)
	if err != nil {
		return 0, fmt.Errorf("list sessions: %w", err)
	}

	n := 0
	for _, sess := range sessions {
		c.observe(sess.Generation)
		if sess.Paused || sess.Stage == models.StageInitial {
			continue
		}
		kind := watchdog.Idle
		if sess.Stage == models.StageAwaitingTimeoutResponse {
			kind = watchdog.Final
		}
		if c.watchdog.Arm(sess.UserID, sess.Generation, kind) {
			n++
		}
	}
	return n, nil
}

// SetPaused pauses or resumes a session on behalf of an operator.
func (c *Coordinator) SetPaused(ctx context.Context, userID string, paused bool) (*models.Session, error) {
	if userID == "" {
		return nil, ErrMissingUser
	}
	unlock := c.locks.Lock(userID)
	defer unlock()

	sess, err := c.sessions.LoadSession(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", userID, err)
	}
	if err := c.setPaused(ctx, sess, paused); err != nil {
		return nil, err
	}
	return sess, nil
}

// Reset deletes a user's session so the next message starts over.
func (c *Coordinator) Reset(ctx context.Context, userID string) error {
	unlock := c.locks.Lock(userID)
	defer unlock()
	if err := c.sessions.DeleteSession(ctx, userID); err != nil {
		return fmt.Errorf("delete session %s: %w", userID, err)
	}
	return nil
}

// PendingTimers returns the number of watchdog timers not yet fired.
func (c *Coordinator) PendingTimers() int {
	return c.watchdog.Pending()
}

// Stop releases every outstanding timer.
func (c *Coordinator) Stop() {
	c.watchdog.Stop()
}
