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

const (
	registrationScope = "RegistrationService"

	// MaxBatchSize bounds the ids accepted by one batch completion.
	MaxBatchSize = 500
)

// AttendanceInput is the optional attendance record stamped on completion.
type AttendanceInput struct {
	CheckIn  *time.Time `json:"check_in"`
	CheckOut *time.Time `json:"check_out"`
	Hours    float64    `json:"hours" validate:"gte=0,lte=24"`
}

// MaxAttendanceHours bounds recorded hours, given or derived.
const MaxAttendanceHours = 24

func (a *AttendanceInput) model() (*models.Attendance, error) {
	if a == nil {
		return nil, nil
	}
	out := &models.Attendance{CheckIn: a.CheckIn, CheckOut: a.CheckOut, Hours: a.Hours}
	if a.CheckIn != nil && a.CheckOut != nil {
		if !a.CheckOut.After(*a.CheckIn) {
			return nil, apperrors.Validation("invalid input", map[string]string{"attendance.check_out": "must be after check_in"})
		}
		if out.Hours == 0 {
			out.Hours = a.CheckOut.Sub(*a.CheckIn).Hours()
		}
		if out.Hours > MaxAttendanceHours {
			return nil, apperrors.Validation("invalid input",
				map[string]string{"attendance.hours": fmt.Sprintf("must be at most %d", MaxAttendanceHours)})
		}
	}
	return out, nil
}

// BatchResult reports how many registrations a batch completion moved.
type BatchResult struct {
	ModifiedCount int `json:"modified_count"`
}

type RegistrationService struct {
	base
}

func NewRegistrationService(store repository.Store, notifier Notifier, opts ...Option) *RegistrationService {
	return &RegistrationService{base: newBase(store, notifier, opts...)}
}

// textInput holds the free-text fields registration requests carry.
type textInput struct {
	Notes   string `json:"notes" validate:"max=500"`
	Reason  string `json:"reason" validate:"max=500"`
	Comment string `json:"comment" validate:"max=1000"`
}

// ---------------- REGISTER ----------------

// Register places the volunteer in the event. In auto-confirm mode the
// registration is confirmed and takes a slot at once; otherwise it waits as
// pending for the organizer.
func (s *RegistrationService) Register(ctx context.Context, actor models.Actor, eventID primitive.ObjectID, notes string) (*models.Registration, error) {
	notes = strings.TrimSpace(notes)
	if err := s.validator.ValidateStruct(textInput{Notes: notes}); err != nil {
		return nil, err
	}

	event, err := s.loadEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if err := policy.Authorize(actor, policy.ActionRegister, policy.Resource{Event: event}); err != nil {
		return nil, err
	}

	hasActive := false
	switch _, err := s.registrations.FindActive(ctx, eventID, actor.ID); {
	case err == nil:
		hasActive = true
	case !errors.Is(err, repository.ErrNotFound):
		return nil, apperrors.Internal("find registration", err)
	}

	now := s.now()
	if err := lifecycle.CanRegister(event, hasActive, now); err != nil {
		metrics.Registrations.WithLabelValues(string(apperrors.GetCode(err))).Inc()
		return nil, err
	}

	reg := &models.Registration{
		ID:           primitive.NewObjectID(),
		Event:        eventID,
		Volunteer:    actor.ID,
		Status:       lifecycle.InitialRegistrationStatus(s.autoConfirm),
		RegisteredAt: now,
		Notes:        notes,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if reg.HoldsSlot() {
		if err := s.reserveSlot(ctx, eventID, now); err != nil {
			metrics.Registrations.WithLabelValues(string(apperrors.GetCode(err))).Inc()
			return nil, err
		}
		reg.ConfirmedAt = &now
	}

	if err := s.registrations.Create(ctx, reg); err != nil {
		if reg.HoldsSlot() {
			s.releaseSlot(ctx, eventID, "register")
		}
		if errors.Is(err, repository.ErrDuplicate) {
			metrics.Registrations.WithLabelValues(string(apperrors.CodeAlreadyRegistered)).Inc()
			return nil, apperrors.New(apperrors.CodeAlreadyRegistered, "already registered for this event")
		}
		return nil, apperrors.Internal("create registration", err)
	}

	if !reg.HoldsSlot() {
		// a pending registration holds no slot, so nothing stopped the event
		// from being deleted or closed meanwhile
		if err := s.recheckPending(ctx, reg, now); err != nil {
			return nil, err
		}
	}

	metrics.Registrations.WithLabelValues(string(reg.Status)).Inc()
	logger.Log(zapcore.InfoLevel, fmt.Sprintf("volunteer %s registered for %s as %s", actor.ID.Hex(), eventID.Hex(), reg.Status), registrationScope, "register")

	if reg.Status == models.RegistrationConfirmed {
		s.notify(ctx, registrationScope, "register", confirmedNotice(reg, event))
	}
	return reg, nil
}

func (s *RegistrationService) recheckPending(ctx context.Context, reg *models.Registration, now time.Time) error {
	fresh, err := s.events.Get(ctx, reg.Event)
	if err == nil && fresh.Status == models.EventStatusApproved {
		return nil
	}
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return apperrors.Internal("get event", err)
	}
	reason := "event closed before registration was recorded"
	if _, terr := s.registrations.Transition(ctx, reg.ID, []models.RegistrationStatus{models.RegistrationPending},
		models.RegistrationCancelled, repository.RegistrationChange{CancelledAt: &now, CancelReason: &reason}, now); terr != nil {
		logger.Log(zapcore.ErrorLevel, "withdraw pending registration: "+terr.Error(), registrationScope, "register")
	}
	metrics.Registrations.WithLabelValues(string(apperrors.CodeEventNotApproved)).Inc()
	return apperrors.New(apperrors.CodeEventNotApproved, "event is not open for registration")
}

// reserveSlot takes one place in the event. When the conditional increment
// misses, the event is read again to report why.
func (s *RegistrationService) reserveSlot(ctx context.Context, eventID primitive.ObjectID, now time.Time) error {
	err := s.events.ReserveSlot(ctx, eventID, now)
	if err == nil {
		return nil
	}
	if !errors.Is(err, repository.ErrNoCapacity) {
		return apperrors.Internal("reserve slot", err)
	}
	fresh, ferr := s.events.Get(ctx, eventID)
	if errors.Is(ferr, repository.ErrNotFound) {
		return apperrors.New(apperrors.CodeEventNotApproved, "event is not open for registration")
	}
	if ferr != nil {
		return apperrors.Internal("get event", ferr)
	}
	if gerr := lifecycle.CanRegister(fresh, false, now); gerr != nil {
		return gerr
	}
	return apperrors.New(apperrors.CodeEventFull, "event is full")
}

func (s *RegistrationService) releaseSlot(ctx context.Context, eventID primitive.ObjectID, scope string) {
	if err := s.events.ReleaseSlot(ctx, eventID, s.now()); err != nil {
		logger.Log(zapcore.ErrorLevel, fmt.Sprintf("release slot of %s: %v", eventID.Hex(), err), registrationScope, scope)
	}
}

// ---------------- CANCEL ----------------

// Cancel withdraws the volunteer's own registration, up to 24 hours before
// the event starts.
func (s *RegistrationService) Cancel(ctx context.Context, actor models.Actor, id primitive.ObjectID, reason string) (*models.Registration, error) {
	reason = strings.TrimSpace(reason)
	if err := s.validator.ValidateStruct(textInput{Reason: reason}); err != nil {
		return nil, err
	}

	reg, err := s.loadRegistration(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := policy.Authorize(actor, policy.ActionCancelRegistration, policy.Resource{Registration: reg}); err != nil {
		return nil, err
	}

	var event *models.Event
	if reg.IsActive() {
		if event, err = s.loadEvent(ctx, reg.Event); err != nil {
			return nil, err
		}
	}
	now := s.now()
	if err := lifecycle.CanCancel(reg, event, now); err != nil {
		return nil, err
	}
	edge, err := lifecycle.LookupRegistrationTransition(reg.Status, lifecycle.ActionCancel)
	if err != nil {
		return nil, err
	}

	change := repository.RegistrationChange{CancelledAt: &now}
	if reason != "" {
		change.CancelReason = &reason
	}
	updated, err := s.registrations.Transition(ctx, id, []models.RegistrationStatus{edge.From}, edge.To, change, now)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return nil, apperrors.NotFound("registration")
	case errors.Is(err, repository.ErrConflict):
		return nil, s.cancelConflict(ctx, id, event, now)
	case err != nil:
		return nil, apperrors.Internal("cancel registration", err)
	}

	if edge.ReleasesSlot {
		s.releaseSlot(ctx, reg.Event, "cancel")
	}
	metrics.RegistrationTransitions.WithLabelValues(string(lifecycle.ActionCancel)).Inc()
	logger.Log(zapcore.InfoLevel, fmt.Sprintf("registration %s cancelled from %s", id.Hex(), edge.From), registrationScope, "cancel")
	return updated, nil
}

// cancelConflict reports the state a concurrent request left the
// registration in.
func (s *RegistrationService) cancelConflict(ctx context.Context, id primitive.ObjectID, event *models.Event, now time.Time) error {
	fresh, err := s.loadRegistration(ctx, id)
	if err != nil {
		return err
	}
	if err := lifecycle.CanCancel(fresh, event, now); err != nil {
		return err
	}
	return apperrors.New(apperrors.CodeInvalidTransition, "registration changed while cancelling, retry")
}

// ---------------- REVIEW ----------------

// Review is the organizer's confirm-or-reject decision on a pending
// registration. Confirming takes a slot.
func (s *RegistrationService) Review(ctx context.Context, actor models.Actor, id primitive.ObjectID, decision Decision, reason, notes string) (*models.Registration, error) {
	reason, notes = strings.TrimSpace(reason), strings.TrimSpace(notes)
	var action lifecycle.RegistrationAction
	switch decision {
	case DecisionConfirm:
		action = lifecycle.ActionConfirm
	case DecisionReject:
		action = lifecycle.ActionReject
	default:
		return nil, apperrors.Validation("invalid input", map[string]string{"decision": "must be one of [confirm reject]"})
	}
	if err := s.validator.ValidateStruct(textInput{Reason: reason, Notes: notes}); err != nil {
		return nil, err
	}
	if action == lifecycle.ActionReject && reason == "" {
		return nil, apperrors.New(apperrors.CodeReasonRequired, "a reason is required to reject a registration")
	}

	reg, err := s.loadRegistration(ctx, id)
	if err != nil {
		return nil, err
	}
	event, err := s.loadEvent(ctx, reg.Event)
	if err != nil {
		return nil, err
	}
	if err := policy.Authorize(actor, policy.ActionReviewRegistration, policy.Resource{Event: event, Registration: reg}); err != nil {
		return nil, err
	}
	edge, err := lifecycle.LookupRegistrationTransition(reg.Status, action)
	if err != nil {
		return nil, err
	}

	now := s.now()
	var change repository.RegistrationChange
	if notes != "" {
		change.Notes = &notes
	}
	if edge.ReservesSlot {
		if err := lifecycle.CanRegister(event, false, now); err != nil {
			return nil, err
		}
		if err := s.reserveSlot(ctx, event.ID, now); err != nil {
			return nil, err
		}
		change.ConfirmedAt = &now
	} else {
		change.CancelledAt = &now
		change.CancelReason = &reason
	}

	updated, err := s.registrations.Transition(ctx, id, []models.RegistrationStatus{edge.From}, edge.To, change, now)
	if err != nil && edge.ReservesSlot {
		s.releaseSlot(ctx, event.ID, "review")
	}
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return nil, apperrors.NotFound("registration")
	case errors.Is(err, repository.ErrConflict):
		return nil, apperrors.Newf(apperrors.CodeInvalidTransition, "registration is no longer %s", edge.From)
	case err != nil:
		return nil, apperrors.Internal("review registration", err)
	}

	metrics.RegistrationTransitions.WithLabelValues(string(action)).Inc()
	logger.Log(zapcore.InfoLevel, fmt.Sprintf("registration %s %s by %s", id.Hex(), edge.To, actor.ID.Hex()), registrationScope, "review")

	switch edge.Notify {
	case models.NotificationRegistrationConfirmed:
		s.notify(ctx, registrationScope, "review", confirmedNotice(updated, event))
	case models.NotificationRegistrationRejected:
		s.notify(ctx, registrationScope, "review", Notice{
			Recipient:    updated.Volunteer,
			Type:         models.NotificationRegistrationRejected,
			Title:        "Registration rejected",
			Message:      fmt.Sprintf("Your registration for %q was rejected: %s", event.Title, reason),
			RelatedEvent: &event.ID,
			Subject:      updated.ID.Hex(),
		})
	}
	return updated, nil
}

// ---------------- COMPLETE ----------------

// Complete records a confirmed volunteer's participation once the event
// has ended.
func (s *RegistrationService) Complete(ctx context.Context, actor models.Actor, id primitive.ObjectID, attendance *AttendanceInput) (*models.Registration, error) {
	if attendance != nil {
		if err := s.validator.ValidateStruct(attendance); err != nil {
			return nil, err
		}
	}
	record, err := attendance.model()
	if err != nil {
		return nil, err
	}
	return s.finish(ctx, actor, id, lifecycle.ActionComplete, repository.RegistrationChange{Attendance: record})
}

// MarkNoShow records that a confirmed volunteer did not attend.
func (s *RegistrationService) MarkNoShow(ctx context.Context, actor models.Actor, id primitive.ObjectID) (*models.Registration, error) {
	return s.finish(ctx, actor, id, lifecycle.ActionNoShow, repository.RegistrationChange{})
}

func (s *RegistrationService) finish(ctx context.Context, actor models.Actor, id primitive.ObjectID, action lifecycle.RegistrationAction, change repository.RegistrationChange) (*models.Registration, error) {
	reg, err := s.loadRegistration(ctx, id)
	if err != nil {
		return nil, err
	}
	event, err := s.loadEvent(ctx, reg.Event)
	if err != nil {
		return nil, err
	}
	if err := policy.Authorize(actor, policy.ActionCompleteRegistration, policy.Resource{Event: event, Registration: reg}); err != nil {
		return nil, err
	}
	edge, err := lifecycle.LookupRegistrationTransition(reg.Status, action)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if edge.RequiresEventEnded {
		if err := lifecycle.CanFinish(event, now); err != nil {
			return nil, err
		}
	}
	if edge.To == models.RegistrationCompleted {
		change.CompletedAt = &now
	}

	updated, err := s.registrations.Transition(ctx, id, []models.RegistrationStatus{edge.From}, edge.To, change, now)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return nil, apperrors.NotFound("registration")
	case errors.Is(err, repository.ErrConflict):
		return nil, apperrors.Newf(apperrors.CodeInvalidTransition, "registration is no longer %s", edge.From)
	case err != nil:
		return nil, apperrors.Internal("finish registration", err)
	}

	metrics.RegistrationTransitions.WithLabelValues(string(action)).Inc()
	logger.Log(zapcore.InfoLevel, fmt.Sprintf("registration %s marked %s", id.Hex(), edge.To), registrationScope, string(action))
	if edge.Notify == models.NotificationEventCompleted {
		s.notify(ctx, registrationScope, string(action), completedNotice(updated, event))
	}
	return updated, nil
}

// CompleteBatch completes the confirmed registrations among ids that belong
// to the event. Other ids are skipped without error.
func (s *RegistrationService) CompleteBatch(ctx context.Context, actor models.Actor, eventID primitive.ObjectID, ids []primitive.ObjectID, attendance *AttendanceInput) (BatchResult, error) {
	if len(ids) == 0 {
		return BatchResult{}, apperrors.Validation("invalid input", map[string]string{"registration_ids": "is required"})
	}
	if len(ids) > MaxBatchSize {
		return BatchResult{}, apperrors.Validation("invalid input",
			map[string]string{"registration_ids": fmt.Sprintf("must be at most %d", MaxBatchSize)})
	}
	if attendance != nil {
		if err := s.validator.ValidateStruct(attendance); err != nil {
			return BatchResult{}, err
		}
	}
	record, err := attendance.model()
	if err != nil {
		return BatchResult{}, err
	}

	event, err := s.loadEvent(ctx, eventID)
	if err != nil {
		return BatchResult{}, err
	}
	if err := policy.Authorize(actor, policy.ActionCompleteRegistration, policy.Resource{Event: event}); err != nil {
		return BatchResult{}, err
	}
	now := s.now()
	if err := lifecycle.CanFinish(event, now); err != nil {
		return BatchResult{}, err
	}

	modified, err := s.registrations.CompleteMany(ctx, eventID, uniqueIDs(ids), lifecycle.SourceStatuses(lifecycle.ActionComplete),
		repository.RegistrationChange{CompletedAt: &now, Attendance: record}, now)
	if err != nil {
		return BatchResult{}, apperrors.Internal("complete registrations", err)
	}

	metrics.RegistrationTransitions.WithLabelValues(string(lifecycle.ActionComplete)).Add(float64(len(modified)))
	logger.Log(zapcore.InfoLevel, fmt.Sprintf("batch completed %d of %d registrations for %s", len(modified), len(ids), eventID.Hex()), registrationScope, "complete_batch")

	notices := make([]Notice, 0, len(modified))
	for i := range modified {
		notices = append(notices, completedNotice(&modified[i], event))
	}
	s.notify(ctx, registrationScope, "complete_batch", notices...)
	return BatchResult{ModifiedCount: len(modified)}, nil
}

func uniqueIDs(ids []primitive.ObjectID) []primitive.ObjectID {
	seen := make(map[primitive.ObjectID]struct{}, len(ids))
	out := make([]primitive.ObjectID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// ---------------- FEEDBACK ----------------

// SubmitFeedback rates a completed registration. A later submission
// replaces the earlier one.
func (s *RegistrationService) SubmitFeedback(ctx context.Context, actor models.Actor, id primitive.ObjectID, rating int, comment string) (*models.Registration, error) {
	comment = strings.TrimSpace(comment)
	if err := lifecycle.ValidateRating(rating); err != nil {
		return nil, err
	}
	if err := s.validator.ValidateStruct(textInput{Comment: comment}); err != nil {
		return nil, err
	}

	reg, err := s.loadRegistration(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := policy.Authorize(actor, policy.ActionSubmitFeedback, policy.Resource{Registration: reg}); err != nil {
		return nil, err
	}
	edge, err := lifecycle.LookupRegistrationTransition(reg.Status, lifecycle.ActionFeedback)
	if err != nil {
		return nil, err
	}

	now := s.now()
	change := repository.RegistrationChange{Feedback: &models.Feedback{Rating: rating, Comment: comment, SubmittedAt: now}}
	updated, err := s.registrations.Transition(ctx, id, []models.RegistrationStatus{edge.From}, edge.To, change, now)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return nil, apperrors.NotFound("registration")
	case errors.Is(err, repository.ErrConflict):
		return nil, apperrors.Newf(apperrors.CodeInvalidTransition, "registration is no longer %s", edge.From)
	case err != nil:
		return nil, apperrors.Internal("submit feedback", err)
	}
	metrics.RegistrationTransitions.WithLabelValues(string(lifecycle.ActionFeedback)).Inc()
	return updated, nil
}

// ---------------- READ ----------------
func (s *RegistrationService) Get(ctx context.Context, actor models.Actor, id primitive.ObjectID) (*models.Registration, error) {
	reg, err := s.loadRegistration(ctx, id)
	if err != nil {
		return nil, err
	}
	res := policy.Resource{Registration: reg}
	if reg.Volunteer != actor.ID {
		event, err := s.events.Get(ctx, reg.Event)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.Internal("get event", err)
		}
		res.Event = event
	}
	if err := policy.Authorize(actor, policy.ActionViewRegistration, res); err != nil {
		return nil, err
	}
	return reg, nil
}

// ListMine returns the actor's own registrations, newest first.
func (s *RegistrationService) ListMine(ctx context.Context, actor models.Actor, filter repository.RegistrationFilter) (Paged[models.Registration], error) {
	regs, total, err := s.registrations.ListByVolunteer(ctx, actor.ID, filter)
	if err != nil {
		return Paged[models.Registration]{}, apperrors.Internal("list registrations", err)
	}
	return newPaged(regs, total, filter.Page), nil
}

// ListForEvent returns every registration of an event to its organizer.
func (s *RegistrationService) ListForEvent(ctx context.Context, actor models.Actor, eventID primitive.ObjectID, filter repository.RegistrationFilter) (Paged[models.Registration], error) {
	event, err := s.loadEvent(ctx, eventID)
	if err != nil {
		return Paged[models.Registration]{}, err
	}
	if err := policy.Authorize(actor, policy.ActionListEventRegistrations, policy.Resource{Event: event}); err != nil {
		return Paged[models.Registration]{}, err
	}
	regs, total, err := s.registrations.ListByEvent(ctx, eventID, filter)
	if err != nil {
		return Paged[models.Registration]{}, apperrors.Internal("list registrations", err)
	}
	return newPaged(regs, total, filter.Page), nil
}

func confirmedNotice(reg *models.Registration, event *models.Event) Notice {
	return Notice{
		Recipient:    reg.Volunteer,
		Type:         models.NotificationRegistrationConfirmed,
		Title:        "Registration confirmed",
		Message:      fmt.Sprintf("You are registered for %q on %s", event.Title, event.StartDate.Format("Jan 2, 2006 15:04")),
		RelatedEvent: &event.ID,
		Subject:      reg.ID.Hex(),
	}
}

func completedNotice(reg *models.Registration, event *models.Event) Notice {
	return Notice{
		Recipient:    reg.Volunteer,
		Type:         models.NotificationEventCompleted,
		Title:        "Thank you for volunteering",
		Message:      fmt.Sprintf("Your participation in %q has been recorded", event.Title),
		RelatedEvent: &event.ID,
		Subject:      reg.ID.Hex(),
	}
}
