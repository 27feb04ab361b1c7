// Package policy provides authorization decisions for event and
// registration actions.
package policy

import (
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/phillip/volunteer-events-go/apperrors"
	"github.com/phillip/volunteer-events-go/models"
)

// Action represents a policy decision for an actor action.
type Action int

const (
	// ActionViewEvent allows reading an event.
	ActionViewEvent Action = iota + 1
	// ActionCreateEvent allows authoring a new event.
	ActionCreateEvent
	// ActionUpdateEvent allows editing organizer-owned event fields.
	ActionUpdateEvent
	// ActionDeleteEvent allows the guarded event delete.
	ActionDeleteEvent
	// ActionTransitionEvent allows operational status changes (ongoing, completed, cancelled).
	ActionTransitionEvent
	// ActionApproveEvent allows approving or rejecting a pending event.
	ActionApproveEvent
	// ActionListEventRegistrations allows reading every registration of an event.
	ActionListEventRegistrations
	// ActionRegister allows a volunteer to register for an event.
	ActionRegister
	// ActionCancelRegistration allows a volunteer to cancel their registration.
	ActionCancelRegistration
	// ActionSubmitFeedback allows a volunteer to rate a completed registration.
	ActionSubmitFeedback
	// ActionViewRegistration allows reading a single registration.
	ActionViewRegistration
	// ActionReviewRegistration allows confirming or rejecting a pending registration.
	ActionReviewRegistration
	// ActionCompleteRegistration allows completion and no-show marking.
	ActionCompleteRegistration
)

// Resource is what an action is taken against. Event is the event in scope
// (for registration actions, the registration's event).
type Resource struct {
	Event        *models.Event
	Registration *models.Registration
}

// Can reports whether the actor can perform the action on the resource.
func Can(actor models.Actor, action Action, res Resource) bool {
	if actor.ID.IsZero() || !actor.Role.Valid() {
		return false
	}
	if actor.Role == models.RoleAdmin {
		return true
	}

	switch action {
	case ActionViewEvent:
		if res.Event == nil {
			return false
		}
		if actor.Role == models.RoleManager && res.Event.IsOrganizer(actor.ID) {
			return true
		}
		return res.Event.Status == models.EventStatusApproved

	case ActionCreateEvent:
		return actor.Role == models.RoleManager

	case ActionUpdateEvent, ActionDeleteEvent, ActionTransitionEvent,
		ActionListEventRegistrations, ActionReviewRegistration, ActionCompleteRegistration:
		return actor.Role == models.RoleManager && organizes(actor, res.Event)

	case ActionApproveEvent:
		return false

	case ActionRegister:
		return actor.Role == models.RoleVolunteer

	case ActionCancelRegistration, ActionSubmitFeedback:
		return owns(actor, res.Registration)

	case ActionViewRegistration:
		return owns(actor, res.Registration) ||
			(actor.Role == models.RoleManager && organizes(actor, res.Event))
	}
	return false
}

// Authorize is Can with a Forbidden error on denial.
func Authorize(actor models.Actor, action Action, res Resource) error {
	if Can(actor, action, res) {
		return nil
	}
	return apperrors.Forbidden("not allowed to " + action.String())
}

// CanManageAccount applies the self-protection rule of user management: an
// actor can never deactivate, delete or re-role their own account.
func CanManageAccount(actor models.Actor, target primitive.ObjectID) bool {
	return actor.Role == models.RoleAdmin && actor.ID != target
}

func organizes(actor models.Actor, event *models.Event) bool {
	return event != nil && event.IsOrganizer(actor.ID)
}

func owns(actor models.Actor, reg *models.Registration) bool {
	return reg != nil && reg.Volunteer == actor.ID
}

func (a Action) String() string {
	switch a {
	case ActionViewEvent:
		return "view this event"
	case ActionCreateEvent:
		return "create events"
	case ActionUpdateEvent:
		return "update this event"
	case ActionDeleteEvent:
		return "delete this event"
	case ActionTransitionEvent:
		return "change this event's status"
	case ActionApproveEvent:
		return "approve events"
	case ActionListEventRegistrations:
		return "list this event's registrations"
	case ActionRegister:
		return "register for events"
	case ActionCancelRegistration:
		return "cancel this registration"
	case ActionSubmitFeedback:
		return "submit feedback for this registration"
	case ActionViewRegistration:
		return "view this registration"
	case ActionReviewRegistration:
		return "review this registration"
	case ActionCompleteRegistration:
		return "complete this registration"
	}
	return "perform this action"
}
