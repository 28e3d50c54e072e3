package dialogue

import (
	"context"
	"fmt"

	"github.com/joescharf/agenda/internal/models"
)

// startManage looks up the user's next appointment for reschedule or cancel.
func (e *Engine) startManage(ctx context.Context, sess *models.Session) Reply {
	ref, err := e.calendar.FindEventMatching(ctx, sess.UserID, e.cfg.LookupWindow)
	if err != nil {
		return Reply{Text: msgCalendarDown, Terminal: true}
	}
	if ref == nil {
		return e.showMainMenu(sess, join(msgNoEvent, msgMenuAgain))
	}

	sess.Fields = models.Fields{
		EventID:      ref.ID,
		EventStart:   ref.Start,
		EventSummary: ref.Summary,
	}
	header := fmt.Sprintf(msgFoundEvent, when(e.local(ref.Start)))
	return Reply{Text: e.present(sess, models.StageAwaitingMainChoice, header, manageOptions, nil)}
}

func (e *Engine) onManageChoice(ctx context.Context, sess *models.Session, opt string) Reply {
	switch opt {
	case optionReschedule:
		sess.Fields.Flow = models.FlowReschedule
		return e.offerSlots(ctx, sess, "")
	case optionCancel:
		sess.Fields.Flow = models.FlowCancel
		return e.askConfirmation(sess, models.StageAwaitingConfirmation)
	default:
		return e.showMainMenu(sess, msgMenuAgain)
	}
}

func (e *Engine) onCaseArea(sess *models.Session, text string) Reply {
	if blank(text) {
		return e.reprompt(sess, msgEmptyText)
	}
	sess.Fields.CaseArea = text
	return Reply{Text: e.present(sess, models.StageQualifyLocation, msgAskLocation, nil, nil)}
}

func (e *Engine) onLocation(sess *models.Session, text string) Reply {
	if blank(text) {
		return e.reprompt(sess, msgEmptyText)
	}
	sess.Fields.Location = text
	return Reply{Text: e.present(sess, models.StageQualifyHasLawyer, msgAskHasLawyer, yesNoOptions, nil)}
}

func (e *Engine) onHasLawyer(ctx context.Context, sess *models.Session, text string) Reply {
	yes, ok := yesNo(text)
	if !ok {
		return e.reprompt(sess, msgInvalidOption)
	}
	sess.Fields.HasLawyer = optionNo
	if yes {
		sess.Fields.HasLawyer = optionYes
	}
	return e.offerSlots(ctx, sess, "")
}

func (e *Engine) cancel(ctx context.Context, sess *models.Session) Reply {
	f := sess.Fields
	if err := e.calendar.DeleteEvent(ctx, models.EventRef{ID: f.EventID, Start: f.EventStart}); err != nil {
		return Reply{Text: msgCancelFailed, Terminal: true}
	}
	return Reply{Text: fmt.Sprintf(msgCancelled, when(e.local(f.EventStart))), Terminal: true}
}
