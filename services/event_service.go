package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap/zapcore"

	"github.com/phillip/volunteer-events-go/apperrors"
	"github.com/phillip/volunteer-events-go/lifecycle"
	"github.com/phillip/volunteer-events-go/logger"
	"github.com/phillip/volunteer-events-go/metrics"
	"github.com/phillip/volunteer-events-go/models"
	"github.com/phillip/volunteer-events-go/policy"
	"github.com/phillip/volunteer-events-go/repository"
)

const eventScope = "EventService"

type CoordinatesInput struct {
	Lat float64 `json:"lat" validate:"gte=-90,lte=90"`
	Lng float64 `json:"lng" validate:"gte=-180,lte=180"`
}

type LocationInput struct {
	Address     string            `json:"address" validate:"required,max=500"`
	Coordinates *CoordinatesInput `json:"coordinates" validate:"omitempty"`
}

func (l LocationInput) model() models.Location {
	loc := models.Location{Address: strings.TrimSpace(l.Address)}
	if l.Coordinates != nil {
		loc.Coordinates = &models.Coordinates{Lat: l.Coordinates.Lat, Lng: l.Coordinates.Lng}
	}
	return loc
}

type ContactInput struct {
	Name  string `json:"name" validate:"max=100"`
	Phone string `json:"phone" validate:"max=30"`
	Email string `json:"email" validate:"omitempty,email"`
}

func (c *ContactInput) model() *models.ContactInfo {
	if c == nil {
		return nil
	}
	return &models.ContactInfo{Name: c.Name, Phone: c.Phone, Email: c.Email}
}

// EventInput is the body of an event creation.
type EventInput struct {
	Title           string          `json:"title" validate:"required,max=200"`
	Description     string          `json:"description" validate:"required,max=5000"`
	Category        models.Category `json:"category" validate:"required,oneof=tree_planting cleanup charity education other"`
	Location        LocationInput   `json:"location" validate:"required"`
	StartDate       time.Time       `json:"start_date" validate:"required"`
	EndDate         time.Time       `json:"end_date" validate:"required,gtfield=StartDate"`
	MaxParticipants int             `json:"max_participants" validate:"required,min=1,max=10000"`
	Requirements    string          `json:"requirements" validate:"max=1000"`
	Benefits        string          `json:"benefits" validate:"max=1000"`
	ContactInfo     *ContactInput   `json:"contact_info" validate:"omitempty"`
}

// EventPatch is the body of an event update. Absent fields are kept.
type EventPatch struct {
	Title           *string          `json:"title" validate:"omitempty,min=1,max=200"`
	Description     *string          `json:"description" validate:"omitempty,min=1,max=5000"`
	Category        *models.Category `json:"category" validate:"omitempty,oneof=tree_planting cleanup charity education other"`
	Location        *LocationInput   `json:"location" validate:"omitempty"`
	StartDate       *time.Time       `json:"start_date"`
	EndDate         *time.Time       `json:"end_date"`
	MaxParticipants *int             `json:"max_participants" validate:"omitempty,min=1,max=10000"`
	Requirements    *string          `json:"requirements" validate:"omitempty,max=1000"`
	Benefits        *string          `json:"benefits" validate:"omitempty,max=1000"`
	ContactInfo     *ContactInput    `json:"contact_info" validate:"omitempty"`
}

func (p EventPatch) update() repository.EventUpdate {
	u := repository.EventUpdate{
		Title:           p.Title,
		Description:     p.Description,
		Category:        p.Category,
		StartDate:       p.StartDate,
		EndDate:         p.EndDate,
		MaxParticipants: p.MaxParticipants,
		Requirements:    p.Requirements,
		Benefits:        p.Benefits,
		ContactInfo:     p.ContactInfo.model(),
	}
	if p.Location != nil {
		u.Location = ptr(p.Location.model())
	}
	return u
}

// Decision is an approve-or-reject verdict.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
	DecisionConfirm Decision = "confirm"
)

type EventService struct {
	base
}

func NewEventService(store repository.Store, notifier Notifier, opts ...Option) *EventService {
	return &EventService{base: newBase(store, notifier, opts...)}
}

// ---------------- CREATE ----------------
func (s *EventService) Create(ctx context.Context, actor models.Actor, in EventInput) (*models.Event, error) {
	if err := s.validator.ValidateStruct(in); err != nil {
		return nil, err
	}
	now := s.now()
	if !in.StartDate.After(now) {
		return nil, apperrors.Validation("invalid input", map[string]string{"start_date": "must be in the future"})
	}
	if err := policy.Authorize(actor, policy.ActionCreateEvent, policy.Resource{}); err != nil {
		return nil, err
	}

	event := &models.Event{
		ID:              primitive.NewObjectID(),
		Title:           strings.TrimSpace(in.Title),
		Description:     strings.TrimSpace(in.Description),
		Category:        in.Category,
		Location:        in.Location.model(),
		StartDate:       in.StartDate,
		EndDate:         in.EndDate,
		MaxParticipants: in.MaxParticipants,
		Status:          lifecycle.InitialEventStatus(actor.Role),
		Organizer:       actor.ID,
		Images:          []string{},
		Requirements:    in.Requirements,
		Benefits:        in.Benefits,
		ContactInfo:     in.ContactInfo.model(),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.events.Create(ctx, event); err != nil {
		return nil, apperrors.Internal("create event", err)
	}
	logger.Log(zapcore.InfoLevel, fmt.Sprintf("event %s created as %s", event.ID.Hex(), event.Status), eventScope, "create")
	return event, nil
}

// ---------------- READ ----------------
func (s *EventService) Get(ctx context.Context, actor models.Actor, id primitive.ObjectID) (*models.Event, error) {
	event, err := s.loadEvent(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := policy.Authorize(actor, policy.ActionViewEvent, policy.Resource{Event: event}); err != nil {
		return nil, err
	}
	return event, nil
}

// List returns events visible to the actor. Only admins see events that are
// not approved; organizers reach their own through ListMine.
func (s *EventService) List(ctx context.Context, actor models.Actor, filter repository.EventFilter) (Paged[models.Event], error) {
	if !actor.IsAdmin() {
		filter.Statuses = []models.EventStatus{models.EventStatusApproved}
	}
	events, total, err := s.events.List(ctx, filter)
	if err != nil {
		return Paged[models.Event]{}, apperrors.Internal("list events", err)
	}
	return newPaged(events, total, filter.Page), nil
}

// ListMine returns the events the actor organizes, in every status.
func (s *EventService) ListMine(ctx context.Context, actor models.Actor, filter repository.EventFilter) (Paged[models.Event], error) {
	filter.Organizer = &actor.ID
	events, total, err := s.events.List(ctx, filter)
	if err != nil {
		return Paged[models.Event]{}, apperrors.Internal("list my events", err)
	}
	return newPaged(events, total, filter.Page), nil
}

// ---------------- UPDATE ----------------
func (s *EventService) Update(ctx context.Context, actor models.Actor, id primitive.ObjectID, patch EventPatch) (*models.Event, error) {
	if err := s.validator.ValidateStruct(patch); err != nil {
		return nil, err
	}
	update := patch.update()
	if update.IsEmpty() {
		return nil, apperrors.Validation("no fields to update", nil)
	}

	event, err := s.loadEvent(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := policy.Authorize(actor, policy.ActionUpdateEvent, policy.Resource{Event: event}); err != nil {
		return nil, err
	}
	if event.Status.IsTerminal() {
		return nil, apperrors.Newf(apperrors.CodeInvalidTransition, "a %s event cannot be edited", event.Status)
	}

	now := s.now()
	start, end := event.StartDate, event.EndDate
	if update.StartDate != nil {
		if !update.StartDate.After(now) {
			return nil, apperrors.Validation("invalid input", map[string]string{"start_date": "must be in the future"})
		}
		start = *update.StartDate
	}
	if update.EndDate != nil {
		end = *update.EndDate
	}
	if !end.After(start) {
		return nil, apperrors.Validation("invalid input", map[string]string{"end_date": "must be after start_date"})
	}
	if update.MaxParticipants != nil && *update.MaxParticipants < event.CurrentParticipants {
		return nil, capacityBelow(event.CurrentParticipants)
	}

	updated, err := s.events.Update(ctx, id, update, now)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return nil, apperrors.NotFound("event")
	case errors.Is(err, repository.ErrConflict):
		// a registration landed between the read and the write
		fresh, ferr := s.loadEvent(ctx, id)
		if ferr != nil {
			return nil, ferr
		}
		return nil, capacityBelow(fresh.CurrentParticipants)
	case err != nil:
		return nil, apperrors.Internal("update event", err)
	}

	if update.StartDate != nil || update.EndDate != nil || update.Location != nil {
		s.notifyVolunteers(ctx, "update", updated, models.NotificationEventUpdated,
			"Event updated",
			fmt.Sprintf("The schedule or location of %q has changed", updated.Title))
	}
	return updated, nil
}

func capacityBelow(current int) error {
	return apperrors.Newf(apperrors.CodeCapacityBelowRegistered,
		"max participants cannot be lower than the %d registered participants", current)
}

// AttachImages appends already-uploaded image URLs to the event.
func (s *EventService) AttachImages(ctx context.Context, actor models.Actor, id primitive.ObjectID, urls []string) (*models.Event, error) {
	in := struct {
		URLs []string `json:"images" validate:"required,min=1,max=10,dive,url"`
	}{URLs: urls}
	if err := s.validator.ValidateStruct(in); err != nil {
		return nil, err
	}
	event, err := s.loadEvent(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := policy.Authorize(actor, policy.ActionUpdateEvent, policy.Resource{Event: event}); err != nil {
		return nil, err
	}

	updated, err := s.events.AddImages(ctx, id, urls, s.now())
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NotFound("event")
	}
	if err != nil {
		return nil, apperrors.Internal("attach images", err)
	}
	return updated, nil
}

// ---------------- STATUS ----------------

// TransitionStatus moves an event along the approval state machine.
func (s *EventService) TransitionStatus(ctx context.Context, actor models.Actor, id primitive.ObjectID, target models.EventStatus, reason string) (*models.Event, error) {
	reason = strings.TrimSpace(reason)
	if !target.Valid() {
		return nil, apperrors.Validation("invalid input", map[string]string{"status": "unknown status"})
	}
	if len(reason) > 500 {
		return nil, apperrors.Validation("invalid input", map[string]string{"reason": "must be at most 500"})
	}

	event, err := s.loadEvent(ctx, id)
	if err != nil {
		return nil, err
	}
	action := policy.ActionTransitionEvent
	if lifecycle.IsApprovalTarget(target) {
		action = policy.ActionApproveEvent
	}
	if err := policy.Authorize(actor, action, policy.Resource{Event: event}); err != nil {
		return nil, err
	}

	edge, err := lifecycle.LookupEventTransition(event.Status, target)
	if err != nil {
		return nil, err
	}
	if edge.AdminOnly && !actor.IsAdmin() {
		return nil, apperrors.Forbidden("only an admin can " + string(target) + " events")
	}
	if edge.ReasonRequired && reason == "" {
		return nil, apperrors.New(apperrors.CodeReasonRequired, "a reason is required")
	}

	var change repository.StatusChange
	switch target {
	case models.EventStatusRejected:
		change.RejectionReason = reason
	case models.EventStatusCancelled:
		change.CancellationReason = reason
	}

	updated, err := s.events.TransitionStatus(ctx, id, event.Status, target, change, s.now())
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return nil, apperrors.NotFound("event")
	case errors.Is(err, repository.ErrConflict):
		return nil, apperrors.Newf(apperrors.CodeInvalidTransition,
			"event is no longer %s", event.Status)
	case err != nil:
		return nil, apperrors.Internal("transition event", err)
	}
	metrics.EventTransitions.WithLabelValues(string(target)).Inc()
	logger.Log(zapcore.InfoLevel, fmt.Sprintf("event %s %s -> %s", id.Hex(), event.Status, target), eventScope, "transition")

	if edge.Notify != "" {
		title, message := eventNoticeText(edge.Notify, updated, reason)
		if edge.NotifyVolunteers {
			s.notifyVolunteers(ctx, "transition", updated, edge.Notify, title, message)
		} else {
			s.notify(ctx, eventScope, "transition", Notice{
				Recipient:    updated.Organizer,
				Type:         edge.Notify,
				Title:        title,
				Message:      message,
				RelatedEvent: &updated.ID,
				Subject:      updated.ID.Hex(),
			})
		}
	}
	return updated, nil
}

// ApproveOrReject is the admin decision on a pending event.
func (s *EventService) ApproveOrReject(ctx context.Context, actor models.Actor, id primitive.ObjectID, decision Decision, reason string) (*models.Event, error) {
	switch decision {
	case DecisionApprove:
		return s.TransitionStatus(ctx, actor, id, models.EventStatusApproved, reason)
	case DecisionReject:
		return s.TransitionStatus(ctx, actor, id, models.EventStatusRejected, reason)
	}
	return nil, apperrors.Validation("invalid input", map[string]string{"decision": "must be one of [approve reject]"})
}

// ---------------- DELETE ----------------

// Delete soft-deletes an event that has no pending or confirmed
// registrations.
func (s *EventService) Delete(ctx context.Context, actor models.Actor, id primitive.ObjectID) error {
	event, err := s.loadEvent(ctx, id)
	if err != nil {
		return err
	}
	if err := policy.Authorize(actor, policy.ActionDeleteEvent, policy.Resource{Event: event}); err != nil {
		return err
	}
	active, err := s.registrations.CountByEvent(ctx, id, models.ActiveRegistrationStatuses)
	if err != nil {
		return apperrors.Internal("count registrations", err)
	}
	if err := lifecycle.CanDelete(event, active); err != nil {
		return err
	}

	err = s.events.SoftDelete(ctx, id, event.CurrentParticipants, s.now())
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return apperrors.NotFound("event")
	case errors.Is(err, repository.ErrConflict):
		return s.deleteConflict(ctx, id)
	case err != nil:
		return apperrors.Internal("delete event", err)
	}

	// pending registrations do not move the counter, so recount after the
	// delete is visible to Register
	active, err = s.registrations.CountByEvent(ctx, id, models.ActiveRegistrationStatuses)
	if err != nil || active > 0 {
		if rerr := s.events.Restore(ctx, id); rerr != nil {
			logger.Log(zapcore.ErrorLevel, "restore after delete race failed: "+rerr.Error(), eventScope, "delete")
		}
		if err != nil {
			return apperrors.Internal("count registrations", err)
		}
		return lifecycle.CanDelete(event, active)
	}

	logger.Log(zapcore.InfoLevel, fmt.Sprintf("event %s deleted by %s", id.Hex(), actor.ID.Hex()), eventScope, "delete")
	if actor.ID != event.Organizer {
		s.notify(ctx, eventScope, "delete", Notice{
			Recipient: event.Organizer,
			Type:      models.NotificationEventDeleted,
			Title:     "Event deleted",
			Message:   fmt.Sprintf("Your event %q was deleted by an administrator", event.Title),
			Subject:   event.ID.Hex(),
		})
	}
	return nil
}

// deleteConflict explains a soft delete that lost a race.
func (s *EventService) deleteConflict(ctx context.Context, id primitive.ObjectID) error {
	fresh, err := s.loadEvent(ctx, id)
	if err != nil {
		return err
	}
	active, err := s.registrations.CountByEvent(ctx, id, models.ActiveRegistrationStatuses)
	if err != nil {
		return apperrors.Internal("count registrations", err)
	}
	if err := lifecycle.CanDelete(fresh, active); err != nil {
		return err
	}
	return apperrors.New(apperrors.CodeInvalidTransition, "event changed while deleting, retry")
}

func (s *EventService) notifyVolunteers(ctx context.Context, scope string, event *models.Event, typ models.NotificationType, title, message string) {
	volunteers, err := s.activeVolunteers(ctx, event.ID)
	if err != nil {
		metrics.NotifyFailures.Inc()
		logger.Log(zapcore.ErrorLevel, "list volunteers to notify: "+err.Error(), eventScope, scope)
		return
	}
	notices := make([]Notice, 0, len(volunteers))
	subject := event.ID.Hex()
	if typ == models.NotificationEventUpdated {
		subject = ""
	}
	for _, v := range volunteers {
		notices = append(notices, Notice{
			Recipient:    v,
			Type:         typ,
			Title:        title,
			Message:      message,
			RelatedEvent: &event.ID,
			Subject:      subject,
		})
	}
	s.notify(ctx, eventScope, scope, notices...)
}

func eventNoticeText(typ models.NotificationType, event *models.Event, reason string) (string, string) {
	switch typ {
	case models.NotificationEventApproved:
		return "Event approved", fmt.Sprintf("Your event %q has been approved", event.Title)
	case models.NotificationEventRejected:
		return "Event rejected", fmt.Sprintf("Your event %q was rejected: %s", event.Title, reason)
	case models.NotificationEventCancelled:
		msg := fmt.Sprintf("The event %q has been cancelled", event.Title)
		if reason != "" {
			msg += ": " + reason
		}
		return "Event cancelled", msg
	}
	return "Event update", event.Title
}
