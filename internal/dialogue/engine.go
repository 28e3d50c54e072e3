// Package dialogue implements the booking conversation as a finite-state
// machine over models.Session.
//
// The engine never performs I/O itself: availability and bookings go through
// the Availability and Calendar interfaces, and every outgoing text is
// returned to the caller in a Reply.
package dialogue

import (
	"context"
	"time"

	"github.com/joescharf/agenda/internal/models"
	"github.com/joescharf/agenda/internal/slots"
)

// Calendar is the subset of the calendar gateway used for bookings.
type Calendar interface {
	CreateEvent(ctx context.Context, req models.EventRequest) (models.EventRef, error)
	DeleteEvent(ctx context.Context, ref models.EventRef) error
	FindEventMatching(ctx context.Context, userID string, within time.Duration) (*models.EventRef, error)
}

// Availability resolves free appointment slots.
type Availability interface {
	Available(ctx context.Context, now time.Time) ([]slots.Day, error)
	IsFree(ctx context.Context, start, end time.Time) (bool, error)
}

// Config holds the presentation and booking parameters of the script.
type Config struct {
	MaxDays        int           // days offered in the booking flow
	MaxSlots       int           // slots offered in the flat list
	SlotDuration   time.Duration // length of a booked appointment
	LookupWindow   time.Duration // how far ahead to search for a user's event
	Location       *time.Location
	OfficeAddress  string // event location for in-person appointments
	RecheckBooking bool   // confirm the slot is still free before creating the event
}

// DefaultConfig returns the standard script parameters.
func DefaultConfig(loc *time.Location) Config {
	return Config{
		MaxDays:        5,
		MaxSlots:       6,
		SlotDuration:   time.Hour,
		LookupWindow:   60 * 24 * time.Hour,
		Location:       loc,
		RecheckBooking: true,
	}
}

// Reply is the outcome of one transition. Terminal means the session must be
// deleted rather than saved.
type Reply struct {
	Text     string
	Terminal bool
}

// Engine runs the conversation script.
type Engine struct {
	calendar Calendar
	avail    Availability
	cfg      Config
	now      func() time.Time
}

// New creates an engine.
func New(cal Calendar, avail Availability, cfg Config) *Engine {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.SlotDuration <= 0 {
		cfg.SlotDuration = time.Hour
	}
	return &Engine{calendar: cal, avail: avail, cfg: cfg, now: time.Now}
}

// WithClock replaces the engine's clock. Intended for tests.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

func (e *Engine) local(t time.Time) time.Time {
	return t.In(e.cfg.Location)
}

// Handle applies one user message to sess. On invalid input the stage does
// not advance and the reply is a corrective prompt.
func (e *Engine) Handle(ctx context.Context, sess *models.Session, text string) Reply {
	switch sess.Stage {
	case models.StageInitial:
		if i, _, ok := Choose(mainMenuOptions, text); ok {
			return e.onMenuChoice(ctx, sess, i)
		}
		return e.showMainMenu(sess, msgWelcome)
	case models.StageAwaitingMenuChoice:
		return e.withChoice(sess, text, func(i int, _ string) Reply { return e.onMenuChoice(ctx, sess, i) })
	case models.StageAwaitingTimeoutResponse:
		return e.onTimeoutResponse(sess, text)

	case models.StageGetAppointmentType:
		return e.withChoice(sess, text, func(_ int, opt string) Reply { return e.onAppointmentType(ctx, sess, opt) })
	case models.StageGetDate:
		return e.withChoice(sess, text, func(_ int, opt string) Reply { return e.onDate(ctx, sess, opt) })
	case models.StageGetTime:
		return e.withChoice(sess, text, func(_ int, opt string) Reply { return e.onTime(sess, opt) })
	case models.StageGetSubject, models.StageAwaitingSubject:
		return e.onSubject(sess, text)
	case models.StageConfirmBooking, models.StageAwaitingConfirmation:
		return e.onConfirmation(ctx, sess, text)
	case models.StageAwaitingMoreHelp:
		return e.withChoice(sess, text, func(_ int, opt string) Reply { return e.onMoreHelp(sess, opt) })

	case models.StageAwaitingMainChoice:
		return e.withChoice(sess, text, func(_ int, opt string) Reply { return e.onManageChoice(ctx, sess, opt) })
	case models.StageQualifyCaseArea:
		return e.onCaseArea(sess, text)
	case models.StageQualifyLocation:
		return e.onLocation(sess, text)
	case models.StageQualifyHasLawyer:
		return e.onHasLawyer(ctx, sess, text)
	case models.StageAwaitingSlotChoice:
		return e.withChoice(sess, text, func(_ int, opt string) Reply { return e.onSlot(sess, opt) })
	}

	// Unknown stage: start over.
	return e.showMainMenu(sess, msgWelcome)
}

// withChoice resolves a numeric reply against the session's pending options
// and re-prompts on failure.
func (e *Engine) withChoice(sess *models.Session, text string, next func(int, string) Reply) Reply {
	i, opt, ok := Choose(sess.PendingOptions, text)
	if !ok {
		return e.reprompt(sess, msgInvalidOption)
	}
	return next(i, opt)
}

// reprompt repeats the current prompt after a corrective note.
func (e *Engine) reprompt(sess *models.Session, note string) Reply {
	return Reply{Text: join(note, sess.LastPrompt)}
}

// present moves sess to stage and publishes a new prompt. values are the
// options a numeric reply resolves to; labels are what the user sees. A nil
// labels slice shows the values themselves.
func (e *Engine) present(sess *models.Session, stage models.Stage, header string, values, labels []string) string {
	if labels == nil {
		labels = values
	}
	prompt := header
	if len(values) > 0 {
		prompt = menu(header, labels)
	}
	sess.Stage = stage
	sess.PendingOptions = values
	sess.LastPrompt = prompt
	return prompt
}

func (e *Engine) showMainMenu(sess *models.Session, header string) Reply {
	sess.Fields = models.Fields{}
	return Reply{Text: e.present(sess, models.StageAwaitingMenuChoice, header, mainMenuOptions, nil)}
}

func (e *Engine) onMenuChoice(ctx context.Context, sess *models.Session, index int) Reply {
	switch mainMenuOptions[index] {
	case optionBook:
		sess.Fields = models.Fields{Flow: models.FlowBooking}
		return Reply{Text: e.present(sess, models.StageGetAppointmentType, msgAskKind, kindOptions, nil)}
	case optionTriage:
		sess.Fields = models.Fields{Flow: models.FlowTriage}
		return Reply{Text: e.present(sess, models.StageQualifyCaseArea, msgAskCaseArea, nil, nil)}
	case optionManage:
		return e.startManage(ctx, sess)
	default:
		return goodbye()
	}
}

func (e *Engine) onMoreHelp(sess *models.Session, opt string) Reply {
	if opt == optionBackToMenu {
		return e.showMainMenu(sess, msgMenuAgain)
	}
	return goodbye()
}

func goodbye() Reply {
	return Reply{Text: msgGoodbye, Terminal: true}
}

// Interrupt is applied when the session has been idle for the inactivity
// timeout. The interrupted stage is kept so the user can resume; pending
// options and the last prompt are left untouched for the same reason.
func (e *Engine) Interrupt(sess *models.Session) Reply {
	if sess.Stage != models.StageAwaitingTimeoutResponse {
		sess.PreviousStage = sess.Stage
		sess.Stage = models.StageAwaitingTimeoutResponse
	}
	return Reply{Text: msgStillThere}
}

// Expire is applied when an interrupted session got no answer in time.
func (e *Engine) Expire(_ *models.Session) Reply {
	return Reply{Text: msgExpired, Terminal: true}
}

func (e *Engine) onTimeoutResponse(sess *models.Session, text string) Reply {
	yes, ok := yesNo(text)
	if !ok {
		return Reply{Text: msgInvalidYesNo}
	}
	if !yes {
		return goodbye()
	}

	previous := sess.PreviousStage
	sess.PreviousStage = ""
	if previous == "" || previous == models.StageInitial || sess.LastPrompt == "" {
		return e.showMainMenu(sess, msgMenuAgain)
	}
	sess.Stage = previous
	return Reply{Text: join(msgResume, sess.LastPrompt)}
}
