package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/phillip/volunteer-events-go/apperrors"
	"github.com/phillip/volunteer-events-go/models"
)

func TestCan(t *testing.T) {
	admin := models.Actor{ID: primitive.NewObjectID(), Role: models.RoleAdmin}
	organizer := models.Actor{ID: primitive.NewObjectID(), Role: models.RoleManager}
	otherManager := models.Actor{ID: primitive.NewObjectID(), Role: models.RoleManager}
	volunteer := models.Actor{ID: primitive.NewObjectID(), Role: models.RoleVolunteer}
	otherVolunteer := models.Actor{ID: primitive.NewObjectID(), Role: models.RoleVolunteer}

	pending := &models.Event{ID: primitive.NewObjectID(), Organizer: organizer.ID, Status: models.EventStatusPending}
	approved := &models.Event{ID: primitive.NewObjectID(), Organizer: organizer.ID, Status: models.EventStatusApproved}
	reg := &models.Registration{ID: primitive.NewObjectID(), Event: approved.ID, Volunteer: volunteer.ID}

	tests := []struct {
		name   string
		actor  models.Actor
		action Action
		res    Resource
		want   bool
	}{
		{name: "Testcase #1: admin approves", actor: admin, action: ActionApproveEvent, res: Resource{Event: pending}, want: true},
		{name: "Testcase #2: organizer cannot self-approve", actor: organizer, action: ActionApproveEvent, res: Resource{Event: pending}},
		{name: "Testcase #3: manager creates", actor: organizer, action: ActionCreateEvent, want: true},
		{name: "Testcase #4: volunteer cannot create", actor: volunteer, action: ActionCreateEvent},
		{name: "Testcase #5: organizer updates own event", actor: organizer, action: ActionUpdateEvent, res: Resource{Event: approved}, want: true},
		{name: "Testcase #6: other manager cannot update", actor: otherManager, action: ActionUpdateEvent, res: Resource{Event: approved}},
		{name: "Testcase #7: organizer transitions own event", actor: organizer, action: ActionTransitionEvent, res: Resource{Event: approved}, want: true},
		{name: "Testcase #8: volunteer views approved", actor: volunteer, action: ActionViewEvent, res: Resource{Event: approved}, want: true},
		{name: "Testcase #9: volunteer cannot view pending", actor: volunteer, action: ActionViewEvent, res: Resource{Event: pending}},
		{name: "Testcase #10: organizer views own pending", actor: organizer, action: ActionViewEvent, res: Resource{Event: pending}, want: true},
		{name: "Testcase #11: other manager cannot view pending", actor: otherManager, action: ActionViewEvent, res: Resource{Event: pending}},
		{name: "Testcase #12: volunteer registers", actor: volunteer, action: ActionRegister, res: Resource{Event: approved}, want: true},
		{name: "Testcase #13: manager cannot register", actor: organizer, action: ActionRegister, res: Resource{Event: approved}},
		{name: "Testcase #14: owner cancels", actor: volunteer, action: ActionCancelRegistration, res: Resource{Event: approved, Registration: reg}, want: true},
		{name: "Testcase #15: other volunteer cannot cancel", actor: otherVolunteer, action: ActionCancelRegistration, res: Resource{Event: approved, Registration: reg}},
		{name: "Testcase #16: organizer cannot cancel for volunteer", actor: organizer, action: ActionCancelRegistration, res: Resource{Event: approved, Registration: reg}},
		{name: "Testcase #17: organizer reviews", actor: organizer, action: ActionReviewRegistration, res: Resource{Event: approved, Registration: reg}, want: true},
		{name: "Testcase #18: other manager cannot review", actor: otherManager, action: ActionReviewRegistration, res: Resource{Event: approved, Registration: reg}},
		{name: "Testcase #19: volunteer cannot complete", actor: volunteer, action: ActionCompleteRegistration, res: Resource{Event: approved, Registration: reg}},
		{name: "Testcase #20: admin completes", actor: admin, action: ActionCompleteRegistration, res: Resource{Event: approved, Registration: reg}, want: true},
		{name: "Testcase #21: owner views registration of pending event", actor: volunteer, action: ActionViewRegistration, res: Resource{Event: pending, Registration: reg}, want: true},
		{name: "Testcase #22: organizer views registration", actor: organizer, action: ActionViewRegistration, res: Resource{Event: approved, Registration: reg}, want: true},
		{name: "Testcase #23: owner submits feedback", actor: volunteer, action: ActionSubmitFeedback, res: Resource{Registration: reg}, want: true},
		{name: "Testcase #24: unknown role denied", actor: models.Actor{ID: primitive.NewObjectID(), Role: "guest"}, action: ActionViewEvent, res: Resource{Event: approved}},
		{name: "Testcase #25: anonymous denied", actor: models.Actor{Role: models.RoleAdmin}, action: ActionViewEvent, res: Resource{Event: approved}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Can(tt.actor, tt.action, tt.res))
		})
	}
}

func TestAuthorize(t *testing.T) {
	volunteer := models.Actor{ID: primitive.NewObjectID(), Role: models.RoleVolunteer}

	err := Authorize(volunteer, ActionApproveEvent, Resource{})
	assert.True(t, apperrors.IsKind(err, apperrors.KindForbidden))
	assert.Contains(t, err.Error(), "approve events")

	assert.NoError(t, Authorize(volunteer, ActionRegister, Resource{}))
}

func TestCanManageAccount(t *testing.T) {
	admin := models.Actor{ID: primitive.NewObjectID(), Role: models.RoleAdmin}
	manager := models.Actor{ID: primitive.NewObjectID(), Role: models.RoleManager}

	assert.True(t, CanManageAccount(admin, primitive.NewObjectID()))
	assert.False(t, CanManageAccount(admin, admin.ID))
	assert.False(t, CanManageAccount(manager, primitive.NewObjectID()))
}
