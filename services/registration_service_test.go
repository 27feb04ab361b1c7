package services

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/phillip/volunteer-events-go/apperrors"
	"github.com/phillip/volunteer-events-go/metrics"
	"github.com/phillip/volunteer-events-go/models"
)

func TestRegisterAutoConfirm(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	manager, volunteer := newActor(models.RoleManager), newActor(models.RoleVolunteer)
	event := f.seedEvent(t, manager, 5, 72*time.Hour)

	reg, err := f.regs.Register(ctx, volunteer, event.ID, "  bringing gloves ")
	require.NoError(t, err)
	assert.Equal(t, models.RegistrationConfirmed, reg.Status)
	assert.Equal(t, "bringing gloves", reg.Notes)
	require.NotNil(t, reg.ConfirmedAt)
	assert.Equal(t, baseTime, *reg.ConfirmedAt)
	assert.Equal(t, 1, f.participants(t, event.ID))

	notices := f.notifier.ofType(models.NotificationRegistrationConfirmed)
	require.Len(t, notices, 1)
	assert.Equal(t, volunteer.ID, notices[0].Recipient)
	assert.Equal(t, reg.ID.Hex(), notices[0].Subject)
}

func TestRegisterGuards(t *testing.T) {
	ctx := context.Background()
	manager := newActor(models.RoleManager)

	tests := []struct {
		name   string
		setup  func(t *testing.T, f *fixture) (models.Actor, primitive.ObjectID)
		wantCd apperrors.Code
	}{
		{
			name: "Testcase #1: event not approved",
			setup: func(t *testing.T, f *fixture) (models.Actor, primitive.ObjectID) {
				e := f.seedEvent(t, manager, 5, 72*time.Hour)
				_, err := f.store.Events.TransitionStatus(ctx, e.ID, models.EventStatusApproved, models.EventStatusOngoing, repositoryNoChange, baseTime)
				require.NoError(t, err)
				return newActor(models.RoleVolunteer), e.ID
			},
			wantCd: apperrors.CodeEventNotApproved,
		},
		{
			name: "Testcase #2: event already started",
			setup: func(t *testing.T, f *fixture) (models.Actor, primitive.ObjectID) {
				return newActor(models.RoleVolunteer), f.seedEvent(t, manager, 5, -time.Hour).ID
			},
			wantCd: apperrors.CodeEventInPast,
		},
		{
			name: "Testcase #3: event full",
			setup: func(t *testing.T, f *fixture) (models.Actor, primitive.ObjectID) {
				e := f.seedEvent(t, manager, 1, 72*time.Hour)
				_, err := f.regs.Register(ctx, newActor(models.RoleVolunteer), e.ID, "")
				require.NoError(t, err)
				return newActor(models.RoleVolunteer), e.ID
			},
			wantCd: apperrors.CodeEventFull,
		},
		{
			name: "Testcase #4: already registered",
			setup: func(t *testing.T, f *fixture) (models.Actor, primitive.ObjectID) {
				e := f.seedEvent(t, manager, 5, 72*time.Hour)
				v := newActor(models.RoleVolunteer)
				_, err := f.regs.Register(ctx, v, e.ID, "")
				require.NoError(t, err)
				return v, e.ID
			},
			wantCd: apperrors.CodeAlreadyRegistered,
		},
		{
			name: "Testcase #5: managers cannot register",
			setup: func(t *testing.T, f *fixture) (models.Actor, primitive.ObjectID) {
				return newActor(models.RoleManager), f.seedEvent(t, manager, 5, 72*time.Hour).ID
			},
			wantCd: apperrors.CodeForbidden,
		},
		{
			name: "Testcase #6: unknown event",
			setup: func(t *testing.T, f *fixture) (models.Actor, primitive.ObjectID) {
				return newActor(models.RoleVolunteer), primitive.NewObjectID()
			},
			wantCd: apperrors.CodeNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			actor, eventID := tt.setup(t, f)
			before, _ := f.store.Events.Get(ctx, eventID)

			_, err := f.regs.Register(ctx, actor, eventID, "")
			requireCode(t, err, tt.wantCd)

			if before != nil {
				assert.Equal(t, before.CurrentParticipants, f.participants(t, eventID))
			}
		})
	}
}

func TestRegisterConcurrentCapacity(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	event := f.seedEvent(t, newActor(models.RoleManager), 3, 72*time.Hour)

	const volunteers = 25
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		ok   int
		full int
	)
	for i := 0; i < volunteers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.regs.Register(ctx, newActor(models.RoleVolunteer), event.ID, "")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case apperrors.IsCode(err, apperrors.CodeEventFull):
				full++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, ok)
	assert.Equal(t, volunteers-3, full)
	assert.Equal(t, 3, f.participants(t, event.ID))
}

func TestRegisterSameVolunteerConcurrent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	event := f.seedEvent(t, newActor(models.RoleManager), 10, 72*time.Hour)
	volunteer := newActor(models.RoleVolunteer)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = f.regs.Register(ctx, volunteer, event.ID, "")
		}()
	}
	wg.Wait()

	active, err := f.store.Registrations.CountByEvent(ctx, event.ID, models.ActiveRegistrationStatuses)
	require.NoError(t, err)
	assert.Equal(t, int64(1), active)
	assert.Equal(t, 1, f.participants(t, event.ID))
}

func TestSingleSlotHandOff(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	event := f.seedEvent(t, newActor(models.RoleManager), 1, 72*time.Hour)
	first, second := newActor(models.RoleVolunteer), newActor(models.RoleVolunteer)

	reg, err := f.regs.Register(ctx, first, event.ID, "")
	require.NoError(t, err)

	_, err = f.regs.Register(ctx, second, event.ID, "")
	requireCode(t, err, apperrors.CodeEventFull)

	cancelled, err := f.regs.Cancel(ctx, first, reg.ID, "change of plans")
	require.NoError(t, err)
	assert.Equal(t, models.RegistrationCancelled, cancelled.Status)
	assert.Equal(t, "change of plans", cancelled.CancelReason)
	assert.Equal(t, 0, f.participants(t, event.ID))

	_, err = f.regs.Register(ctx, second, event.ID, "")
	require.NoError(t, err)
	assert.Equal(t, 1, f.participants(t, event.ID))

	// the freed slot now belongs to the second volunteer
	_, err = f.regs.Register(ctx, first, event.ID, "")
	requireCode(t, err, apperrors.CodeEventFull)
}

func TestCancelIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	event := f.seedEvent(t, newActor(models.RoleManager), 2, 72*time.Hour)
	volunteer := newActor(models.RoleVolunteer)

	reg, err := f.regs.Register(ctx, volunteer, event.ID, "")
	require.NoError(t, err)
	_, err = f.regs.Cancel(ctx, volunteer, reg.ID, "")
	require.NoError(t, err)

	_, err = f.regs.Cancel(ctx, volunteer, reg.ID, "")
	requireCode(t, err, apperrors.CodeAlreadyCancelled)
	assert.Equal(t, 0, f.participants(t, event.ID))
}

func TestCancelWindow(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		startIn time.Duration
		wantErr apperrors.Code
	}{
		{name: "Testcase #1: one minute past the window", startIn: 24*time.Hour + time.Minute},
		{name: "Testcase #2: exactly 24 hours", startIn: 24 * time.Hour},
		{name: "Testcase #3: one minute inside the window", startIn: 24*time.Hour - time.Minute, wantErr: apperrors.CodeTooLateToCancel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			event := f.seedEvent(t, newActor(models.RoleManager), 2, tt.startIn)
			volunteer := newActor(models.RoleVolunteer)
			reg, err := f.regs.Register(ctx, volunteer, event.ID, "")
			require.NoError(t, err)

			_, err = f.regs.Cancel(ctx, volunteer, reg.ID, "")
			if tt.wantErr != "" {
				requireCode(t, err, tt.wantErr)
				assert.Equal(t, 1, f.participants(t, event.ID))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, 0, f.participants(t, event.ID))
		})
	}
}

func TestCancelOnlyByOwner(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	manager := newActor(models.RoleManager)
	event := f.seedEvent(t, manager, 2, 72*time.Hour)
	volunteer := newActor(models.RoleVolunteer)
	reg, err := f.regs.Register(ctx, volunteer, event.ID, "")
	require.NoError(t, err)

	_, err = f.regs.Cancel(ctx, newActor(models.RoleVolunteer), reg.ID, "")
	requireCode(t, err, apperrors.CodeForbidden)
	_, err = f.regs.Cancel(ctx, manager, reg.ID, "")
	requireCode(t, err, apperrors.CodeForbidden)
	assert.Equal(t, 1, f.participants(t, event.ID))
}

func TestManagerReview(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, WithAutoConfirm(false))
	manager := newActor(models.RoleManager)
	event := f.seedEvent(t, manager, 1, 72*time.Hour)
	first, second := newActor(models.RoleVolunteer), newActor(models.RoleVolunteer)

	reg1, err := f.regs.Register(ctx, first, event.ID, "")
	require.NoError(t, err)
	assert.Equal(t, models.RegistrationPending, reg1.Status)
	reg2, err := f.regs.Register(ctx, second, event.ID, "")
	require.NoError(t, err)
	assert.Equal(t, 0, f.participants(t, event.ID))
	assert.Empty(t, f.notifier.ofType(models.NotificationRegistrationConfirmed))

	_, err = f.regs.Review(ctx, newActor(models.RoleManager), reg1.ID, DecisionConfirm, "", "")
	requireCode(t, err, apperrors.CodeForbidden)

	confirmed, err := f.regs.Review(ctx, manager, reg1.ID, DecisionConfirm, "", "see you there")
	require.NoError(t, err)
	assert.Equal(t, models.RegistrationConfirmed, confirmed.Status)
	assert.Equal(t, "see you there", confirmed.Notes)
	assert.Equal(t, 1, f.participants(t, event.ID))
	require.Len(t, f.notifier.ofType(models.NotificationRegistrationConfirmed), 1)

	_, err = f.regs.Review(ctx, manager, reg1.ID, DecisionConfirm, "", "")
	requireCode(t, err, apperrors.CodeInvalidTransition)

	_, err = f.regs.Review(ctx, manager, reg2.ID, DecisionConfirm, "", "")
	requireCode(t, err, apperrors.CodeEventFull)

	_, err = f.regs.Review(ctx, manager, reg2.ID, DecisionReject, "", "")
	requireCode(t, err, apperrors.CodeReasonRequired)

	rejected, err := f.regs.Review(ctx, manager, reg2.ID, DecisionReject, "event is full", "")
	require.NoError(t, err)
	assert.Equal(t, models.RegistrationCancelled, rejected.Status)
	assert.Equal(t, "event is full", rejected.CancelReason)
	assert.Equal(t, 1, f.participants(t, event.ID))

	notices := f.notifier.ofType(models.NotificationRegistrationRejected)
	require.Len(t, notices, 1)
	assert.Equal(t, second.ID, notices[0].Recipient)
	assert.Contains(t, notices[0].Message, "event is full")
}

func TestPendingCancelKeepsCounter(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, WithAutoConfirm(false))
	event := f.seedEvent(t, newActor(models.RoleManager), 1, 72*time.Hour)
	volunteer := newActor(models.RoleVolunteer)

	reg, err := f.regs.Register(ctx, volunteer, event.ID, "")
	require.NoError(t, err)
	_, err = f.regs.Cancel(ctx, volunteer, reg.ID, "")
	require.NoError(t, err)
	assert.Equal(t, 0, f.participants(t, event.ID))
}

func TestCompleteBatch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	manager := newActor(models.RoleManager)
	event := f.seedEvent(t, manager, 5, 72*time.Hour)
	other := f.seedEvent(t, manager, 5, 72*time.Hour)

	var ids []primitive.ObjectID
	var volunteers []models.Actor
	for i := 0; i < 3; i++ {
		v := newActor(models.RoleVolunteer)
		reg, err := f.regs.Register(ctx, v, event.ID, "")
		require.NoError(t, err)
		ids = append(ids, reg.ID)
		volunteers = append(volunteers, v)
	}
	_, err := f.regs.Cancel(ctx, volunteers[2], ids[2], "")
	require.NoError(t, err)
	foreign, err := f.regs.Register(ctx, newActor(models.RoleVolunteer), other.ID, "")
	require.NoError(t, err)

	_, err = f.regs.CompleteBatch(ctx, manager, event.ID, ids, nil)
	requireCode(t, err, apperrors.CodeEventNotEnded)

	f.advance(80 * time.Hour)

	_, err = f.regs.CompleteBatch(ctx, newActor(models.RoleManager), event.ID, ids, nil)
	requireCode(t, err, apperrors.CodeForbidden)

	res, err := f.regs.CompleteBatch(ctx, manager, event.ID, append(ids, ids[0], foreign.ID), &AttendanceInput{Hours: 4})
	require.NoError(t, err)
	assert.Equal(t, 2, res.ModifiedCount)

	completed := f.notifier.ofType(models.NotificationEventCompleted)
	require.Len(t, completed, 2)
	assert.ElementsMatch(t, []primitive.ObjectID{volunteers[0].ID, volunteers[1].ID},
		[]primitive.ObjectID{completed[0].Recipient, completed[1].Recipient})

	got, err := f.store.Registrations.Get(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, models.RegistrationCompleted, got.Status)
	require.NotNil(t, got.Attendance)
	assert.Equal(t, 4.0, got.Attendance.Hours)

	untouched, err := f.store.Registrations.Get(ctx, foreign.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RegistrationConfirmed, untouched.Status)

	// completion keeps the slot counted
	assert.Equal(t, 2, f.participants(t, event.ID))

	again, err := f.regs.CompleteBatch(ctx, manager, event.ID, ids, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, again.ModifiedCount)
}

func TestCompleteBatchValidation(t *testing.T) {
	f := newFixture(t)
	manager := newActor(models.RoleManager)

	_, err := f.regs.CompleteBatch(context.Background(), manager, primitive.NewObjectID(), nil, nil)
	requireCode(t, err, apperrors.CodeValidationFailed)

	_, err = f.regs.CompleteBatch(context.Background(), manager, primitive.NewObjectID(),
		[]primitive.ObjectID{primitive.NewObjectID()}, &AttendanceInput{Hours: 30})
	requireCode(t, err, apperrors.CodeValidationFailed)
}

func TestCompleteNoShowAndFeedback(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	manager := newActor(models.RoleManager)
	event := f.seedEvent(t, manager, 5, 72*time.Hour)
	attended, absent := newActor(models.RoleVolunteer), newActor(models.RoleVolunteer)

	reg, err := f.regs.Register(ctx, attended, event.ID, "")
	require.NoError(t, err)
	missed, err := f.regs.Register(ctx, absent, event.ID, "")
	require.NoError(t, err)

	_, err = f.regs.Complete(ctx, manager, reg.ID, nil)
	requireCode(t, err, apperrors.CodeEventNotEnded)
	_, err = f.regs.SubmitFeedback(ctx, attended, reg.ID, 5, "")
	requireCode(t, err, apperrors.CodeInvalidTransition)

	f.advance(80 * time.Hour)
	checkIn := event.StartDate
	checkOut := event.StartDate.Add(3 * time.Hour)

	_, err = f.regs.Complete(ctx, manager, reg.ID, &AttendanceInput{CheckIn: &checkOut, CheckOut: &checkIn})
	requireCode(t, err, apperrors.CodeValidationFailed)

	done, err := f.regs.Complete(ctx, manager, reg.ID, &AttendanceInput{CheckIn: &checkIn, CheckOut: &checkOut})
	require.NoError(t, err)
	assert.Equal(t, models.RegistrationCompleted, done.Status)
	require.NotNil(t, done.CompletedAt)
	assert.Equal(t, 3.0, done.Attendance.Hours)
	require.Len(t, f.notifier.ofType(models.NotificationEventCompleted), 1)

	noShow, err := f.regs.MarkNoShow(ctx, manager, missed.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RegistrationNoShow, noShow.Status)
	_, err = f.regs.Cancel(ctx, absent, missed.ID, "")
	requireCode(t, err, apperrors.CodeInvalidTransition)
	_, err = f.regs.SubmitFeedback(ctx, absent, missed.ID, 4, "")
	requireCode(t, err, apperrors.CodeInvalidTransition)

	_, err = f.regs.SubmitFeedback(ctx, attended, reg.ID, 6, "")
	requireCode(t, err, apperrors.CodeInvalidRating)
	_, err = f.regs.SubmitFeedback(ctx, absent, reg.ID, 4, "")
	requireCode(t, err, apperrors.CodeForbidden)

	rated, err := f.regs.SubmitFeedback(ctx, attended, reg.ID, 4, "well organised")
	require.NoError(t, err)
	assert.Equal(t, 4, rated.Feedback.Rating)

	rerated, err := f.regs.SubmitFeedback(ctx, attended, reg.ID, 5, "")
	require.NoError(t, err)
	assert.Equal(t, 5, rerated.Feedback.Rating)
	assert.Equal(t, models.RegistrationCompleted, rerated.Status)

	_, err = f.regs.Cancel(ctx, attended, reg.ID, "")
	requireCode(t, err, apperrors.CodeAlreadyCompleted)
	assert.Equal(t, 2, f.participants(t, event.ID))
}

func TestRegisterAtStartInstant(t *testing.T) {
	f := newFixture(t)
	manager := newActor(models.RoleManager)
	event := f.seedEvent(t, manager, 5, 0)

	reg, err := f.regs.Register(context.Background(), newActor(models.RoleVolunteer), event.ID, "")
	require.NoError(t, err)
	assert.Equal(t, models.RegistrationConfirmed, reg.Status)
	assert.Equal(t, 1, f.participants(t, event.ID))

	f.advance(time.Second)
	_, err = f.regs.Register(context.Background(), newActor(models.RoleVolunteer), event.ID, "")
	requireCode(t, err, apperrors.CodeEventInPast)
}

func TestTextAndAttendanceLimits(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	manager := newActor(models.RoleManager)
	event := f.seedEvent(t, manager, 5, 72*time.Hour)
	volunteer := newActor(models.RoleVolunteer)

	_, err := f.regs.Register(ctx, volunteer, event.ID, strings.Repeat("é", 501))
	requireField(t, err, "notes")
	reg, err := f.regs.Register(ctx, volunteer, event.ID, strings.Repeat("é", 500))
	require.NoError(t, err, "limits count characters, not bytes")

	f.advance(80 * time.Hour)
	checkIn := event.StartDate
	longShift := checkIn.Add(30 * time.Hour)

	testCases := []struct {
		name      string
		call      func() error
		wantField string
	}{
		{
			name: "Testcase #1: derived hours above the daily bound",
			call: func() error {
				_, err := f.regs.Complete(ctx, manager, reg.ID, &AttendanceInput{CheckIn: &checkIn, CheckOut: &longShift})
				return err
			},
			wantField: "attendance.hours",
		},
		{
			name: "Testcase #2: batch with derived hours above the bound",
			call: func() error {
				_, err := f.regs.CompleteBatch(ctx, manager, event.ID, []primitive.ObjectID{reg.ID},
					&AttendanceInput{CheckIn: &checkIn, CheckOut: &longShift})
				return err
			},
			wantField: "attendance.hours",
		},
		{
			name: "Testcase #3: review notes too long",
			call: func() error {
				_, err := f.regs.Review(ctx, manager, reg.ID, DecisionReject, "full", strings.Repeat("n", 501))
				return err
			},
			wantField: "notes",
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			requireField(t, tc.call(), tc.wantField)
		})
	}

	done, err := f.regs.Complete(ctx, manager, reg.ID, nil)
	require.NoError(t, err)
	_, err = f.regs.SubmitFeedback(ctx, volunteer, done.ID, 5, strings.Repeat("c", 1001))
	requireField(t, err, "comment")
	_, err = f.regs.SubmitFeedback(ctx, volunteer, done.ID, 5, strings.Repeat("c", 1000))
	require.NoError(t, err)
}

func requireField(t *testing.T, err error, field string) {
	t.Helper()
	requireCode(t, err, apperrors.CodeValidationFailed)
	var e *apperrors.Error
	require.ErrorAs(t, err, &e)
	assert.Contains(t, e.Fields, field)
}

func TestNotifierFailureDoesNotFailOperation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.notifier.err = errNotifierDown
	event := f.seedEvent(t, newActor(models.RoleManager), 2, 72*time.Hour)

	before := testutil.ToFloat64(metrics.NotifyFailures)
	reg, err := f.regs.Register(ctx, newActor(models.RoleVolunteer), event.ID, "")
	require.NoError(t, err)
	assert.Equal(t, models.RegistrationConfirmed, reg.Status)
	assert.Equal(t, 1, f.participants(t, event.ID))
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.NotifyFailures))
}

func TestRegistrationReads(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	manager := newActor(models.RoleManager)
	event := f.seedEvent(t, manager, 5, 72*time.Hour)
	volunteer := newActor(models.RoleVolunteer)
	reg, err := f.regs.Register(ctx, volunteer, event.ID, "")
	require.NoError(t, err)

	got, err := f.regs.Get(ctx, volunteer, reg.ID)
	require.NoError(t, err)
	assert.Equal(t, reg.ID, got.ID)
	_, err = f.regs.Get(ctx, manager, reg.ID)
	require.NoError(t, err)
	_, err = f.regs.Get(ctx, newActor(models.RoleVolunteer), reg.ID)
	requireCode(t, err, apperrors.CodeForbidden)
	_, err = f.regs.Get(ctx, volunteer, primitive.NewObjectID())
	requireCode(t, err, apperrors.CodeNotFound)

	mine, err := f.regs.ListMine(ctx, volunteer, registrationFilter())
	require.NoError(t, err)
	assert.Equal(t, int64(1), mine.Total)

	list, err := f.regs.ListForEvent(ctx, manager, event.ID, registrationFilter())
	require.NoError(t, err)
	assert.Len(t, list.Items, 1)
	_, err = f.regs.ListForEvent(ctx, newActor(models.RoleManager), event.ID, registrationFilter())
	requireCode(t, err, apperrors.CodeForbidden)
	_, err = f.regs.ListForEvent(ctx, newActor(models.RoleAdmin), event.ID, registrationFilter())
	require.NoError(t, err)
}
