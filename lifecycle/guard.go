// Package lifecycle holds the event and registration state machines and the
// capacity and duplicate guard that gates registration changes.
//
// Everything here is pure: functions take the current documents and the
// current time and return a typed error. The counter mutation itself is an
// atomic conditional update in the repository layer.
package lifecycle

import (
	"time"

	"github.com/phillip/volunteer-events-go/apperrors"
	"github.com/phillip/volunteer-events-go/models"
)

// CancellationWindow is the minimum time that must remain before an event
// starts for a volunteer to cancel.
const CancellationWindow = 24 * time.Hour

// CanRegister checks whether a volunteer may take a place in the event.
// hasActive reports whether the volunteer already holds a non-cancelled
// registration for it.
func CanRegister(event *models.Event, hasActive bool, now time.Time) error {
	if hasActive {
		return apperrors.New(apperrors.CodeAlreadyRegistered, "already registered for this event")
	}
	if event.Status != models.EventStatusApproved || event.DeletedAt != nil {
		return apperrors.New(apperrors.CodeEventNotApproved, "event is not open for registration")
	}
	if event.HasStarted(now) {
		return apperrors.New(apperrors.CodeEventInPast, "event has already started")
	}
	if event.IsFull() {
		return apperrors.New(apperrors.CodeEventFull, "event is full")
	}
	return nil
}

// CanCancel checks whether a registration may be cancelled by its volunteer.
func CanCancel(reg *models.Registration, event *models.Event, now time.Time) error {
	switch reg.Status {
	case models.RegistrationCancelled:
		return apperrors.New(apperrors.CodeAlreadyCancelled, "registration is already cancelled")
	case models.RegistrationCompleted:
		return apperrors.New(apperrors.CodeAlreadyCompleted, "registration is already completed")
	case models.RegistrationPending, models.RegistrationConfirmed:
	default:
		return apperrors.Newf(apperrors.CodeInvalidTransition, "cannot cancel a %s registration", reg.Status)
	}
	if event.StartDate.Sub(now) < CancellationWindow {
		return apperrors.New(apperrors.CodeTooLateToCancel, "registrations cannot be cancelled within 24 hours of the event start")
	}
	return nil
}

// CanFinish checks that an event is over, which completion and no-show
// marking require.
func CanFinish(event *models.Event, now time.Time) error {
	if !event.HasEnded(now) {
		return apperrors.New(apperrors.CodeEventNotEnded, "event has not ended yet")
	}
	return nil
}
