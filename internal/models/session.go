package models

import (
	"slices"
	"time"
)

// Stage is the current node of the booking dialogue.
type Stage string

const (
	StageInitial            Stage = "initial"
	StageAwaitingMenuChoice Stage = "awaiting_menu_choice"

	// Booking flow.
	StageGetAppointmentType Stage = "get_appointment_type"
	StageGetDate            Stage = "get_date"
	StageGetTime            Stage = "get_time"
	StageGetSubject         Stage = "get_subject"
	StageConfirmBooking     Stage = "confirm_booking"
	StageAwaitingMoreHelp   Stage = "awaiting_more_help"

	// Management flow: triage, reschedule and cancel.
	StageAwaitingMainChoice   Stage = "awaiting_main_choice"
	StageQualifyCaseArea      Stage = "qualify_case_area"
	StageQualifyLocation      Stage = "qualify_location"
	StageQualifyHasLawyer     Stage = "qualify_has_lawyer"
	StageAwaitingSlotChoice   Stage = "awaiting_slot_choice"
	StageAwaitingSubject      Stage = "awaiting_subject"
	StageAwaitingConfirmation Stage = "awaiting_confirmation"

	// Entered only by the inactivity watchdog.
	StageAwaitingTimeoutResponse Stage = "awaiting_timeout_response"
)

var allStages = []Stage{
	StageInitial, StageAwaitingMenuChoice,
	StageGetAppointmentType, StageGetDate, StageGetTime, StageGetSubject, StageConfirmBooking, StageAwaitingMoreHelp,
	StageAwaitingMainChoice, StageQualifyCaseArea, StageQualifyLocation, StageQualifyHasLawyer,
	StageAwaitingSlotChoice, StageAwaitingSubject, StageAwaitingConfirmation,
	StageAwaitingTimeoutResponse,
}

// Valid reports whether s is a known stage.
func (s Stage) Valid() bool {
	return slices.Contains(allStages, s)
}

// Flow identifies which branch of the dialogue a session is in.
type Flow string

const (
	FlowNone       Flow = ""
	FlowBooking    Flow = "booking"
	FlowTriage     Flow = "triage"
	FlowReschedule Flow = "reschedule"
	FlowCancel     Flow = "cancel"
)

// Fields holds the values collected so far in the dialogue.
// User-supplied text (CaseArea, Location, Subject) is stored verbatim.
type Fields struct {
	Flow            Flow      `json:"flow,omitempty"`
	CaseArea        string    `json:"case_area,omitempty"`
	Location        string    `json:"location,omitempty"`
	HasLawyer       string    `json:"has_lawyer,omitempty"`
	AppointmentKind string    `json:"appointment_kind,omitempty"`
	Date            string    `json:"date,omitempty"` // YYYY-MM-DD
	Time            string    `json:"time,omitempty"` // HH:MM
	Subject         string    `json:"subject,omitempty"`
	SlotStart       time.Time `json:"slot_start,omitzero"`
	SlotEnd         time.Time `json:"slot_end,omitzero"`
	EventID         string    `json:"event_id,omitempty"`
	EventStart      time.Time `json:"event_start,omitzero"`
	EventSummary    string    `json:"event_summary,omitempty"`
}

// Session is the per-user conversation state.
type Session struct {
	UserID            string    `json:"user_id"`
	Stage             Stage     `json:"stage"`
	PreviousStage     Stage     `json:"previous_stage,omitempty"` // stage interrupted by the watchdog
	Fields            Fields    `json:"fields"`
	PendingOptions    []string  `json:"pending_options"`
	LastPrompt        string    `json:"last_prompt,omitempty"`
	Generation        int64     `json:"generation"`
	Paused            bool      `json:"paused"`
	LastInteractionAt time.Time `json:"last_interaction_at"`
	CreatedAt         time.Time `json:"created_at"`
}

// NewSession returns the fresh state for a user with no live session.
func NewSession(userID string, now time.Time) *Session {
	return &Session{
		UserID:            userID,
		Stage:             StageInitial,
		LastInteractionAt: now,
		CreatedAt:         now,
	}
}

// Clone returns a deep copy of the session.
func (s *Session) Clone() *Session {
	c := *s
	c.PendingOptions = slices.Clone(s.PendingOptions)
	return &c
}
