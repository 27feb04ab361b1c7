package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/phillip/volunteer-events-go/apperrors"
	"github.com/phillip/volunteer-events-go/models"
	"github.com/phillip/volunteer-events-go/repository"
)

func validInput() EventInput {
	start := baseTime.Add(72 * time.Hour)
	return EventInput{
		Title:           "Tree planting day",
		Description:     "Planting 200 seedlings along the ridge",
		Category:        models.CategoryTreePlanting,
		Location:        LocationInput{Address: "Ngong Hills", Coordinates: &CoordinatesInput{Lat: -1.39, Lng: 36.63}},
		StartDate:       start,
		EndDate:         start.Add(5 * time.Hour),
		MaxParticipants: 20,
	}
}

func TestCreateEvent(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name       string
		actor      models.Actor
		mutate     func(in *EventInput)
		wantStatus models.EventStatus
		wantCode   apperrors.Code
		wantField  string
	}{
		{name: "Testcase #1: manager event waits for approval", actor: newActor(models.RoleManager), wantStatus: models.EventStatusPending},
		{name: "Testcase #2: admin event is approved", actor: newActor(models.RoleAdmin), wantStatus: models.EventStatusApproved},
		{name: "Testcase #3: volunteers cannot create", actor: newActor(models.RoleVolunteer), wantCode: apperrors.CodeForbidden},
		{
			name:  "Testcase #4: end before start",
			actor: newActor(models.RoleManager),
			mutate: func(in *EventInput) {
				in.EndDate = in.StartDate.Add(-time.Hour)
			},
			wantCode:  apperrors.CodeValidationFailed,
			wantField: "end_date",
		},
		{
			name:  "Testcase #5: start in the past",
			actor: newActor(models.RoleManager),
			mutate: func(in *EventInput) {
				in.StartDate = baseTime.Add(-time.Hour)
			},
			wantCode:  apperrors.CodeValidationFailed,
			wantField: "start_date",
		},
		{
			name:      "Testcase #6: missing title",
			actor:     newActor(models.RoleManager),
			mutate:    func(in *EventInput) { in.Title = "" },
			wantCode:  apperrors.CodeValidationFailed,
			wantField: "title",
		},
		{
			name:      "Testcase #7: unknown category",
			actor:     newActor(models.RoleManager),
			mutate:    func(in *EventInput) { in.Category = "party" },
			wantCode:  apperrors.CodeValidationFailed,
			wantField: "category",
		},
		{
			name:      "Testcase #8: zero capacity",
			actor:     newActor(models.RoleManager),
			mutate:    func(in *EventInput) { in.MaxParticipants = 0 },
			wantCode:  apperrors.CodeValidationFailed,
			wantField: "max_participants",
		},
		{
			name:      "Testcase #9: latitude out of range",
			actor:     newActor(models.RoleManager),
			mutate:    func(in *EventInput) { in.Location.Coordinates.Lat = 91 },
			wantCode:  apperrors.CodeValidationFailed,
			wantField: "location.coordinates.lat",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			in := validInput()
			if tt.mutate != nil {
				tt.mutate(&in)
			}

			event, err := f.events.Create(ctx, tt.actor, in)
			if tt.wantCode != "" {
				requireCode(t, err, tt.wantCode)
				if tt.wantField != "" {
					var appErr *apperrors.Error
					require.ErrorAs(t, err, &appErr)
					assert.Contains(t, appErr.Fields, tt.wantField)
				}
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, event.Status)
			assert.Equal(t, tt.actor.ID, event.Organizer)
			assert.Equal(t, 0, event.CurrentParticipants)
		})
	}
}

func TestApprovalAndCancellationScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	manager, admin := newActor(models.RoleManager), newActor(models.RoleAdmin)
	volunteer := newActor(models.RoleVolunteer)

	event, err := f.events.Create(ctx, manager, validInput())
	require.NoError(t, err)
	require.Equal(t, models.EventStatusPending, event.Status)

	_, err = f.events.Get(ctx, volunteer, event.ID)
	requireCode(t, err, apperrors.CodeForbidden)
	_, err = f.regs.Register(ctx, volunteer, event.ID, "")
	requireCode(t, err, apperrors.CodeEventNotApproved)

	_, err = f.events.ApproveOrReject(ctx, manager, event.ID, DecisionApprove, "")
	requireCode(t, err, apperrors.CodeForbidden)

	approved, err := f.events.ApproveOrReject(ctx, admin, event.ID, DecisionApprove, "")
	require.NoError(t, err)
	assert.Equal(t, models.EventStatusApproved, approved.Status)
	approvals := f.notifier.ofType(models.NotificationEventApproved)
	require.Len(t, approvals, 1)
	assert.Equal(t, manager.ID, approvals[0].Recipient)

	reg, err := f.regs.Register(ctx, volunteer, event.ID, "")
	require.NoError(t, err)

	cancelled, err := f.events.TransitionStatus(ctx, admin, event.ID, models.EventStatusCancelled, "flooding")
	require.NoError(t, err)
	assert.Equal(t, models.EventStatusCancelled, cancelled.Status)
	assert.Equal(t, "flooding", cancelled.CancellationReason)

	notices := f.notifier.ofType(models.NotificationEventCancelled)
	require.Len(t, notices, 1)
	assert.Equal(t, volunteer.ID, notices[0].Recipient)
	assert.Contains(t, notices[0].Message, "flooding")

	// cancelling the event leaves registrations alone
	got, err := f.store.Registrations.Get(ctx, reg.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RegistrationConfirmed, got.Status)
	assert.Equal(t, 1, f.participants(t, event.ID))
}

func TestTransitionStatus(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		actor    func(organizer models.Actor) models.Actor
		from     models.EventStatus
		to       models.EventStatus
		reason   string
		wantCode apperrors.Code
	}{
		{name: "Testcase #1: organizer starts event", actor: asOrganizer, from: models.EventStatusApproved, to: models.EventStatusOngoing},
		{name: "Testcase #2: organizer completes ongoing event", actor: asOrganizer, from: models.EventStatusOngoing, to: models.EventStatusCompleted},
		{name: "Testcase #3: completed event cannot reopen", actor: asAdmin, from: models.EventStatusCompleted, to: models.EventStatusApproved, wantCode: apperrors.CodeInvalidTransition},
		{name: "Testcase #4: reject needs reason", actor: asAdmin, from: models.EventStatusPending, to: models.EventStatusRejected, wantCode: apperrors.CodeReasonRequired},
		{name: "Testcase #5: admin rejects with reason", actor: asAdmin, from: models.EventStatusPending, to: models.EventStatusRejected, reason: "duplicate"},
		{name: "Testcase #6: other manager", actor: asOtherManager, from: models.EventStatusApproved, to: models.EventStatusOngoing, wantCode: apperrors.CodeForbidden},
		{name: "Testcase #7: unknown target", actor: asAdmin, from: models.EventStatusApproved, to: "archived", wantCode: apperrors.CodeValidationFailed},
		{name: "Testcase #8: organizer cancels pending event", actor: asOrganizer, from: models.EventStatusPending, to: models.EventStatusCancelled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			organizer := newActor(models.RoleManager)
			event := f.seedEvent(t, organizer, 5, 72*time.Hour)
			if tt.from != models.EventStatusApproved {
				_, err := f.store.Events.TransitionStatus(ctx, event.ID, models.EventStatusApproved, tt.from, repository.StatusChange{}, baseTime)
				require.NoError(t, err)
			}

			updated, err := f.events.TransitionStatus(ctx, tt.actor(organizer), event.ID, tt.to, tt.reason)
			if tt.wantCode != "" {
				requireCode(t, err, tt.wantCode)
				stored, gerr := f.store.Events.Get(ctx, event.ID)
				require.NoError(t, gerr)
				assert.Equal(t, tt.from, stored.Status)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.to, updated.Status)
		})
	}
}

func asOrganizer(organizer models.Actor) models.Actor { return organizer }
func asAdmin(models.Actor) models.Actor                { return newActor(models.RoleAdmin) }
func asOtherManager(models.Actor) models.Actor         { return newActor(models.RoleManager) }

func TestUpdateEvent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	manager := newActor(models.RoleManager)
	event := f.seedEvent(t, manager, 3, 72*time.Hour)
	volunteer := newActor(models.RoleVolunteer)
	for _, v := range []models.Actor{volunteer, newActor(models.RoleVolunteer)} {
		_, err := f.regs.Register(ctx, v, event.ID, "")
		require.NoError(t, err)
	}

	_, err := f.events.Update(ctx, manager, event.ID, EventPatch{MaxParticipants: ptr(1)})
	requireCode(t, err, apperrors.CodeCapacityBelowRegistered)

	_, err = f.events.Update(ctx, manager, event.ID, EventPatch{})
	requireCode(t, err, apperrors.CodeValidationFailed)

	_, err = f.events.Update(ctx, newActor(models.RoleManager), event.ID, EventPatch{Title: ptr("Mine now")})
	requireCode(t, err, apperrors.CodeForbidden)

	lateEnd := event.StartDate.Add(-time.Hour)
	_, err = f.events.Update(ctx, manager, event.ID, EventPatch{EndDate: &lateEnd})
	requireCode(t, err, apperrors.CodeValidationFailed)

	updated, err := f.events.Update(ctx, manager, event.ID, EventPatch{Title: ptr("Bigger cleanup"), MaxParticipants: ptr(2)})
	require.NoError(t, err)
	assert.Equal(t, "Bigger cleanup", updated.Title)
	assert.Equal(t, 2, updated.MaxParticipants)
	assert.Equal(t, 2, updated.CurrentParticipants)
	assert.Equal(t, models.EventStatusApproved, updated.Status)
	assert.Empty(t, f.notifier.ofType(models.NotificationEventUpdated))

	newStart := event.StartDate.Add(24 * time.Hour)
	newEnd := newStart.Add(2 * time.Hour)
	_, err = f.events.Update(ctx, manager, event.ID, EventPatch{StartDate: &newStart, EndDate: &newEnd})
	require.NoError(t, err)
	assert.Len(t, f.notifier.ofType(models.NotificationEventUpdated), 2)
}

func TestDeleteEvent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	manager, admin := newActor(models.RoleManager), newActor(models.RoleAdmin)
	event := f.seedEvent(t, manager, 3, 72*time.Hour)
	volunteer := newActor(models.RoleVolunteer)
	reg, err := f.regs.Register(ctx, volunteer, event.ID, "")
	require.NoError(t, err)

	err = f.events.Delete(ctx, volunteer, event.ID)
	requireCode(t, err, apperrors.CodeForbidden)

	err = f.events.Delete(ctx, admin, event.ID)
	requireCode(t, err, apperrors.CodeActiveRegistrations)

	_, err = f.regs.Cancel(ctx, volunteer, reg.ID, "")
	require.NoError(t, err)

	require.NoError(t, f.events.Delete(ctx, admin, event.ID))
	_, err = f.events.Get(ctx, admin, event.ID)
	requireCode(t, err, apperrors.CodeNotFound)
	_, err = f.regs.Register(ctx, volunteer, event.ID, "")
	requireCode(t, err, apperrors.CodeNotFound)

	deleted := f.notifier.ofType(models.NotificationEventDeleted)
	require.Len(t, deleted, 1)
	assert.Equal(t, manager.ID, deleted[0].Recipient)

	own := f.seedEvent(t, manager, 3, 72*time.Hour)
	require.NoError(t, f.events.Delete(ctx, manager, own.ID))
	assert.Len(t, f.notifier.ofType(models.NotificationEventDeleted), 1)

	done := f.seedEvent(t, manager, 3, 72*time.Hour)
	_, err = f.store.Events.TransitionStatus(ctx, done.ID, models.EventStatusApproved, models.EventStatusCompleted, repository.StatusChange{}, baseTime)
	require.NoError(t, err)
	requireCode(t, f.events.Delete(ctx, admin, done.ID), apperrors.CodeInvalidTransition)
}

func TestDeleteEventWithHistory(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	manager := newActor(models.RoleManager)
	event := f.seedEvent(t, manager, 3, 72*time.Hour)
	volunteer := newActor(models.RoleVolunteer)
	reg, err := f.regs.Register(ctx, volunteer, event.ID, "")
	require.NoError(t, err)

	f.advance(80 * time.Hour)
	_, err = f.regs.Complete(ctx, manager, reg.ID, nil)
	require.NoError(t, err)

	// completed registrations keep the counter but do not block deletion
	require.NoError(t, f.events.Delete(ctx, manager, event.ID))
}

func TestListEventsVisibility(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	manager, admin := newActor(models.RoleManager), newActor(models.RoleAdmin)
	f.seedEvent(t, manager, 3, 72*time.Hour)
	_, err := f.events.Create(ctx, manager, validInput())
	require.NoError(t, err)

	page := repository.EventFilter{Page: repository.Page{Page: 1, Limit: 10}}

	public, err := f.events.List(ctx, newActor(models.RoleVolunteer), page)
	require.NoError(t, err)
	assert.Equal(t, int64(1), public.Total)

	all, err := f.events.List(ctx, admin, page)
	require.NoError(t, err)
	assert.Equal(t, int64(2), all.Total)

	mine, err := f.events.ListMine(ctx, manager, page)
	require.NoError(t, err)
	assert.Equal(t, int64(2), mine.Total)

	none, err := f.events.ListMine(ctx, newActor(models.RoleManager), page)
	require.NoError(t, err)
	assert.Empty(t, none.Items)
	assert.Equal(t, 10, none.Limit)
}

func TestAttachImages(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	manager := newActor(models.RoleManager)
	event := f.seedEvent(t, manager, 3, 72*time.Hour)

	_, err := f.events.AttachImages(ctx, manager, event.ID, []string{"not a url"})
	requireCode(t, err, apperrors.CodeValidationFailed)

	_, err = f.events.AttachImages(ctx, newActor(models.RoleVolunteer), event.ID, []string{"https://res.cloudinary.com/demo/a.jpg"})
	requireCode(t, err, apperrors.CodeForbidden)

	updated, err := f.events.AttachImages(ctx, manager, event.ID, []string{"https://res.cloudinary.com/demo/a.jpg"})
	require.NoError(t, err)
	assert.Equal(t, []string{"https://res.cloudinary.com/demo/a.jpg"}, updated.Images)

	_, err = f.events.AttachImages(ctx, manager, primitive.NewObjectID(), []string{"https://res.cloudinary.com/demo/a.jpg"})
	requireCode(t, err, apperrors.CodeNotFound)
}
