package lifecycle

import (
	"strings"

	"github.com/phillip/volunteer-events-go/apperrors"
	"github.com/phillip/volunteer-events-go/models"
)

// EventEdge is one legal event status change.
type EventEdge struct {
	From models.EventStatus
	To   models.EventStatus

	// AdminOnly edges are closed to organizers.
	AdminOnly      bool
	ReasonRequired bool

	// Notify is sent to the organizer when set.
	Notify models.NotificationType
	// NotifyVolunteers fans Notify out to every active registration instead.
	NotifyVolunteers bool
}

var eventEdges = []EventEdge{
	{From: models.EventStatusPending, To: models.EventStatusApproved, AdminOnly: true, Notify: models.NotificationEventApproved},
	{From: models.EventStatusPending, To: models.EventStatusRejected, AdminOnly: true, ReasonRequired: true, Notify: models.NotificationEventRejected},
	{From: models.EventStatusApproved, To: models.EventStatusOngoing},
	{From: models.EventStatusApproved, To: models.EventStatusCompleted},
	{From: models.EventStatusOngoing, To: models.EventStatusCompleted},
	{From: models.EventStatusApproved, To: models.EventStatusCancelled, Notify: models.NotificationEventCancelled, NotifyVolunteers: true},
	{From: models.EventStatusPending, To: models.EventStatusCancelled, Notify: models.NotificationEventCancelled, NotifyVolunteers: true},
}

type eventEdgeKey struct {
	from, to models.EventStatus
}

var eventTransitions = func() map[eventEdgeKey]EventEdge {
	m := make(map[eventEdgeKey]EventEdge, len(eventEdges))
	for _, e := range eventEdges {
		m[eventEdgeKey{e.From, e.To}] = e
	}
	return m
}()

// LookupEventTransition returns the edge from -> to, or an InvalidTransition
// error when the table has no such edge.
func LookupEventTransition(from, to models.EventStatus) (EventEdge, error) {
	edge, ok := eventTransitions[eventEdgeKey{from, to}]
	if !ok {
		targets := EventTargets(from)
		if len(targets) == 0 {
			return EventEdge{}, apperrors.Newf(apperrors.CodeInvalidTransition,
				"event cannot move from %s to %s, %s is final", from, to, from)
		}
		names := make([]string, len(targets))
		for i, t := range targets {
			names[i] = string(t)
		}
		return EventEdge{}, apperrors.Newf(apperrors.CodeInvalidTransition,
			"event cannot move from %s to %s, allowed: %s", from, to, strings.Join(names, ", "))
	}
	return edge, nil
}

// EventTargets lists the statuses reachable from the given one.
func EventTargets(from models.EventStatus) []models.EventStatus {
	var out []models.EventStatus
	for _, e := range eventEdges {
		if e.From == from {
			out = append(out, e.To)
		}
	}
	return out
}

// IsApprovalTarget reports whether reaching status is an approval decision.
func IsApprovalTarget(status models.EventStatus) bool {
	return status == models.EventStatusApproved || status == models.EventStatusRejected
}

// InitialEventStatus is the status a new event enters with. Admin-authored
// events skip review.
func InitialEventStatus(role models.Role) models.EventStatus {
	if role == models.RoleAdmin {
		return models.EventStatusApproved
	}
	return models.EventStatusPending
}

// CanDelete checks that an event is still in a non-terminal status and has
// no pending or confirmed registrations.
func CanDelete(event *models.Event, activeRegistrations int64) error {
	if event.Status.IsTerminal() {
		return apperrors.Newf(apperrors.CodeInvalidTransition, "a %s event cannot be deleted", event.Status)
	}
	if activeRegistrations > 0 {
		return apperrors.Newf(apperrors.CodeActiveRegistrations,
			"event has %d active registrations", activeRegistrations)
	}
	return nil
}
