package dialogue

import (
	"context"
	"fmt"
	"time"

	"github.com/joescharf/agenda/internal/models"
	"github.com/joescharf/agenda/internal/slots"
)

func (e *Engine) onAppointmentType(ctx context.Context, sess *models.Session, kind string) Reply {
	sess.Fields.AppointmentKind = kind
	return e.offerDays(ctx, sess, "")
}

// available fetches free slots. A non-nil Reply is the terminal outcome to
// return when there is nothing to offer.
func (e *Engine) available(ctx context.Context) ([]slots.Day, *Reply) {
	days, err := e.avail.Available(ctx, e.now())
	if err != nil {
		return nil, &Reply{Text: msgCalendarDown, Terminal: true}
	}
	if len(days) == 0 {
		return nil, &Reply{Text: msgNoSlots, Terminal: true}
	}
	return days, nil
}

// offerDays publishes the grouped-by-day presentation.
func (e *Engine) offerDays(ctx context.Context, sess *models.Session, note string) Reply {
	days, stop := e.available(ctx)
	if stop != nil {
		return *stop
	}
	days = slots.FirstDays(days, e.cfg.MaxDays)

	values := make([]string, len(days))
	labels := make([]string, len(days))
	for i, d := range days {
		values[i] = d.Key()
		labels[i] = dayLabel(d.Date)
	}
	return Reply{Text: join(note, e.present(sess, models.StageGetDate, msgAskDate, values, labels))}
}

// offerSlots publishes the flat presentation used by the management flows.
func (e *Engine) offerSlots(ctx context.Context, sess *models.Session, note string) Reply {
	days, stop := e.available(ctx)
	if stop != nil {
		return *stop
	}
	flat := slots.FirstSlots(days, e.cfg.MaxSlots)

	values := make([]string, len(flat))
	labels := make([]string, len(flat))
	for i, s := range flat {
		values[i] = s.Start.Format(time.RFC3339)
		labels[i] = slotLabel(e.local(s.Start))
	}
	return Reply{Text: join(note, e.present(sess, models.StageAwaitingSlotChoice, msgAskSlot, values, labels))}
}

func (e *Engine) onDate(ctx context.Context, sess *models.Session, key string) Reply {
	days, stop := e.available(ctx)
	if stop != nil {
		return *stop
	}
	day, ok := slots.FindDay(days, key)
	if !ok {
		return e.offerDays(ctx, sess, msgDayGone)
	}

	sess.Fields.Date = key
	header := fmt.Sprintf(msgAskTime, dayLabel(day.Date))
	return Reply{Text: e.present(sess, models.StageGetTime, header, day.Times(), nil)}
}

func (e *Engine) onTime(sess *models.Session, label string) Reply {
	day, err := time.ParseInLocation(slots.DateKey, sess.Fields.Date, e.cfg.Location)
	if err != nil {
		return e.showMainMenu(sess, msgWelcome)
	}
	clock, err := time.Parse(slots.TimeLabel, label)
	if err != nil {
		return e.reprompt(sess, msgInvalidOption)
	}

	start := time.Date(day.Year(), day.Month(), day.Day(), clock.Hour(), clock.Minute(), 0, 0, e.cfg.Location)
	sess.Fields.Time = label
	sess.Fields.SlotStart = start
	sess.Fields.SlotEnd = start.Add(e.cfg.SlotDuration)
	return Reply{Text: e.present(sess, models.StageGetSubject, msgAskSubject, nil, nil)}
}

func (e *Engine) onSlot(sess *models.Session, value string) Reply {
	start, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return e.reprompt(sess, msgInvalidOption)
	}
	start = e.local(start)
	sess.Fields.SlotStart = start
	sess.Fields.SlotEnd = start.Add(e.cfg.SlotDuration)
	sess.Fields.Date = start.Format(slots.DateKey)
	sess.Fields.Time = start.Format(slots.TimeLabel)

	if sess.Fields.Flow == models.FlowReschedule {
		return e.askConfirmation(sess, models.StageAwaitingConfirmation)
	}
	return Reply{Text: e.present(sess, models.StageAwaitingSubject, msgAskSubject, nil, nil)}
}

func (e *Engine) onSubject(sess *models.Session, text string) Reply {
	if blank(text) {
		return e.reprompt(sess, msgEmptyText)
	}
	sess.Fields.Subject = text

	next := models.StageConfirmBooking
	if sess.Stage == models.StageAwaitingSubject {
		next = models.StageAwaitingConfirmation
	}
	return e.askConfirmation(sess, next)
}

// askConfirmation summarizes the pending change and asks for sim/não.
func (e *Engine) askConfirmation(sess *models.Session, stage models.Stage) Reply {
	f := sess.Fields
	var summary string
	switch f.Flow {
	case models.FlowCancel:
		summary = fmt.Sprintf("Você deseja cancelar a consulta de %s?", when(e.local(f.EventStart)))
	case models.FlowReschedule:
		summary = fmt.Sprintf("Remarcar sua consulta de %s para %s.", when(e.local(f.EventStart)), when(e.local(f.SlotStart)))
	case models.FlowTriage:
		summary = fmt.Sprintf("Primeiro atendimento em %s.\nÁrea: %s\nCidade: %s\nAssunto: %s",
			when(e.local(f.SlotStart)), f.CaseArea, f.Location, f.Subject)
	default:
		summary = fmt.Sprintf("Consulta %s em %s.\nAssunto: %s", f.AppointmentKind, when(e.local(f.SlotStart)), f.Subject)
	}
	prompt := join(summary, msgConfirmSuffix)

	sess.Stage = stage
	sess.PendingOptions = yesNoOptions
	sess.LastPrompt = prompt
	return Reply{Text: prompt}
}

func (e *Engine) onConfirmation(ctx context.Context, sess *models.Session, text string) Reply {
	yes, ok := yesNo(text)
	if !ok {
		return e.reprompt(sess, msgInvalidYesNo)
	}
	if !yes {
		return Reply{Text: e.present(sess, models.StageAwaitingMoreHelp, msgMoreHelp, moreHelpOptions, nil)}
	}

	if sess.Fields.Flow == models.FlowCancel {
		return e.cancel(ctx, sess)
	}
	return e.book(ctx, sess)
}

// book creates the event for the selected slot. A reschedule also removes the
// previous event once the new one exists.
func (e *Engine) book(ctx context.Context, sess *models.Session) Reply {
	f := sess.Fields

	if e.cfg.RecheckBooking {
		free, err := e.avail.IsFree(ctx, f.SlotStart, f.SlotEnd)
		if err != nil {
			return Reply{Text: msgCalendarDown, Terminal: true}
		}
		if !free {
			if f.Flow == models.FlowBooking {
				return e.offerDays(ctx, sess, msgSlotGone)
			}
			return e.offerSlots(ctx, sess, msgSlotGone)
		}
	}

	req := e.eventRequest(sess)
	ref, err := e.calendar.CreateEvent(ctx, req)
	if err != nil {
		return Reply{Text: msgBookingFailed, Terminal: true}
	}

	header := msgBookedHeader
	var note string
	if f.Flow == models.FlowReschedule {
		header = msgRescheduledHdr
		old := models.EventRef{ID: f.EventID, Start: f.EventStart}
		if err := e.calendar.DeleteEvent(ctx, old); err != nil {
			note = msgOldNotRemoved
		}
	}

	subject := f.Subject
	if subject == "" {
		subject = req.Summary
	}
	start := e.local(ref.Start)
	details := fmt.Sprintf("Assunto: %s\nData: %s\nHorário: %s", subject, formatDate(start), formatTime(start))
	if ref.VideoURL != "" {
		details += "\nLink da videochamada: " + ref.VideoURL
	} else if req.Location != "" {
		details += "\nLocal: " + req.Location
	}
	return Reply{Text: join(header, details, note), Terminal: true}
}

func (e *Engine) eventRequest(sess *models.Session) models.EventRequest {
	f := sess.Fields
	req := models.EventRequest{
		UserID: sess.UserID,
		Start:  f.SlotStart,
		End:    f.SlotEnd,
	}

	switch f.Flow {
	case models.FlowTriage:
		req.Summary = "Primeiro atendimento - " + f.Subject
		req.Description = fmt.Sprintf("Contato: %s\nÁrea: %s\nCidade: %s\nJá possui advogado: %s\nAssunto: %s",
			sess.UserID, f.CaseArea, f.Location, f.HasLawyer, f.Subject)
		req.Location = e.cfg.OfficeAddress
	case models.FlowReschedule:
		req.Summary = f.EventSummary
		if req.Summary == "" {
			req.Summary = "Consulta"
		}
		req.Description = fmt.Sprintf("Contato: %s\nRemarcada de %s", sess.UserID, when(e.local(f.EventStart)))
	default:
		req.Summary = fmt.Sprintf("Consulta (%s) - %s", f.AppointmentKind, f.Subject)
		req.Description = fmt.Sprintf("Contato: %s\nAssunto: %s", sess.UserID, f.Subject)
		if f.AppointmentKind == optionRemote {
			req.WantsVideoLink = true
		} else {
			req.Location = e.cfg.OfficeAddress
		}
	}
	return req
}
