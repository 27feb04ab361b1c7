package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type RegistrationStatus string

const (
	RegistrationPending   RegistrationStatus = "pending"
	RegistrationConfirmed RegistrationStatus = "confirmed"
	RegistrationCancelled RegistrationStatus = "cancelled"
	RegistrationCompleted RegistrationStatus = "completed"
	RegistrationNoShow    RegistrationStatus = "no_show"
)

func (s RegistrationStatus) Valid() bool {
	switch s {
	case RegistrationPending, RegistrationConfirmed, RegistrationCancelled,
		RegistrationCompleted, RegistrationNoShow:
		return true
	}
	return false
}

func (s RegistrationStatus) IsTerminal() bool {
	return s == RegistrationCancelled || s == RegistrationCompleted || s == RegistrationNoShow
}

// ActiveRegistrationStatuses count toward duplicate checks and event deletion guards.
var ActiveRegistrationStatuses = []RegistrationStatus{RegistrationPending, RegistrationConfirmed}

// UniqueRegistrationStatuses are covered by the (event, volunteer) unique index.
var UniqueRegistrationStatuses = []RegistrationStatus{
	RegistrationPending, RegistrationConfirmed, RegistrationCompleted, RegistrationNoShow,
}

type Attendance struct {
	CheckIn  *time.Time `bson:"check_in,omitempty" json:"check_in,omitempty"`
	CheckOut *time.Time `bson:"check_out,omitempty" json:"check_out,omitempty"`
	Hours    float64    `bson:"hours" json:"hours"`
}

type Feedback struct {
	Rating      int       `bson:"rating" json:"rating"` // 1–5
	Comment     string    `bson:"comment,omitempty" json:"comment,omitempty"`
	SubmittedAt time.Time `bson:"submitted_at" json:"submitted_at"`
}

type Registration struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Event        primitive.ObjectID `bson:"event_id" json:"event_id"`
	Volunteer    primitive.ObjectID `bson:"volunteer_id" json:"volunteer_id"`
	Status       RegistrationStatus `bson:"status" json:"status"`
	RegisteredAt time.Time          `bson:"registered_at" json:"registered_at"`
	ConfirmedAt  *time.Time         `bson:"confirmed_at,omitempty" json:"confirmed_at,omitempty"`
	CancelledAt  *time.Time         `bson:"cancelled_at,omitempty" json:"cancelled_at,omitempty"`
	CompletedAt  *time.Time         `bson:"completed_at,omitempty" json:"completed_at,omitempty"`
	CancelReason string             `bson:"cancel_reason,omitempty" json:"cancel_reason,omitempty"`
	Notes        string             `bson:"notes,omitempty" json:"notes,omitempty"`
	Attendance   *Attendance        `bson:"attendance,omitempty" json:"attendance,omitempty"`
	Feedback     *Feedback          `bson:"feedback,omitempty" json:"feedback,omitempty"`
	CreatedAt    time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt    time.Time          `bson:"updated_at" json:"updated_at"`
}

// IsActive reports whether the registration still claims a place in the event.
func (r *Registration) IsActive() bool {
	return r.Status == RegistrationPending || r.Status == RegistrationConfirmed
}

// HoldsSlot reports whether the registration is counted in
// Event.CurrentParticipants. Pending registrations take their slot on confirm.
func (r *Registration) HoldsSlot() bool {
	return r.Status == RegistrationConfirmed || r.Status == RegistrationCompleted || r.Status == RegistrationNoShow
}
