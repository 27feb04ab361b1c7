package lifecycle

import (
	"github.com/phillip/volunteer-events-go/apperrors"
	"github.com/phillip/volunteer-events-go/models"
)

// RegistrationAction names a request against a registration.
type RegistrationAction string

const (
	ActionConfirm  RegistrationAction = "confirm"
	ActionReject   RegistrationAction = "reject"
	ActionCancel   RegistrationAction = "cancel"
	ActionComplete RegistrationAction = "complete"
	ActionNoShow   RegistrationAction = "no_show"
	ActionFeedback RegistrationAction = "feedback"
)

// RegistrationEdge is one legal registration status change.
type RegistrationEdge struct {
	From   models.RegistrationStatus
	Action RegistrationAction
	To     models.RegistrationStatus

	ReasonRequired     bool
	RequiresEventEnded bool

	// Slot accounting against Event.CurrentParticipants.
	ReservesSlot bool
	ReleasesSlot bool

	// Notify is sent to the volunteer when set.
	Notify models.NotificationType
}

var registrationEdges = []RegistrationEdge{
	{From: models.RegistrationPending, Action: ActionConfirm, To: models.RegistrationConfirmed, ReservesSlot: true, Notify: models.NotificationRegistrationConfirmed},
	{From: models.RegistrationPending, Action: ActionReject, To: models.RegistrationCancelled, ReasonRequired: true, Notify: models.NotificationRegistrationRejected},
	{From: models.RegistrationPending, Action: ActionCancel, To: models.RegistrationCancelled},
	{From: models.RegistrationConfirmed, Action: ActionCancel, To: models.RegistrationCancelled, ReleasesSlot: true},
	{From: models.RegistrationConfirmed, Action: ActionComplete, To: models.RegistrationCompleted, RequiresEventEnded: true, Notify: models.NotificationEventCompleted},
	{From: models.RegistrationConfirmed, Action: ActionNoShow, To: models.RegistrationNoShow, RequiresEventEnded: true},
	{From: models.RegistrationCompleted, Action: ActionFeedback, To: models.RegistrationCompleted},
}

type registrationEdgeKey struct {
	from   models.RegistrationStatus
	action RegistrationAction
}

var registrationTransitions = func() map[registrationEdgeKey]RegistrationEdge {
	m := make(map[registrationEdgeKey]RegistrationEdge, len(registrationEdges))
	for _, e := range registrationEdges {
		m[registrationEdgeKey{e.From, e.Action}] = e
	}
	return m
}()

// LookupRegistrationTransition returns the edge taken by action from the
// given status, or an InvalidTransition error.
func LookupRegistrationTransition(from models.RegistrationStatus, action RegistrationAction) (RegistrationEdge, error) {
	edge, ok := registrationTransitions[registrationEdgeKey{from, action}]
	if !ok {
		return RegistrationEdge{}, apperrors.Newf(apperrors.CodeInvalidTransition,
			"cannot %s a %s registration", action, from)
	}
	return edge, nil
}

// SourceStatuses lists every status the action can be taken from. Used as
// the compare-and-set condition of a bulk update.
func SourceStatuses(action RegistrationAction) []models.RegistrationStatus {
	var out []models.RegistrationStatus
	for _, e := range registrationEdges {
		if e.Action == action {
			out = append(out, e.From)
		}
	}
	return out
}

// InitialRegistrationStatus is the status a new registration enters with.
// Auto-confirmed registrations take a slot immediately.
func InitialRegistrationStatus(autoConfirm bool) models.RegistrationStatus {
	if autoConfirm {
		return models.RegistrationConfirmed
	}
	return models.RegistrationPending
}

// ValidateRating checks a feedback rating.
func ValidateRating(rating int) error {
	if rating < 1 || rating > 5 {
		return apperrors.New(apperrors.CodeInvalidRating, "rating must be between 1 and 5")
	}
	return nil
}
