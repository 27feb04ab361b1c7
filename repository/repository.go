// Package repository defines the storage contracts used by the services.
//
// Every status write is conditional on the expected current status, and the
// participant counter is only ever moved by ReserveSlot and ReleaseSlot.
package repository

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/phillip/volunteer-events-go/models"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when the (event, volunteer) uniqueness
	// constraint rejects an insert.
	ErrDuplicate = errors.New("duplicate registration")
	// ErrConflict is returned when a conditional update matched nothing.
	ErrConflict   = errors.New("conditional update matched nothing")
	ErrNoCapacity = errors.New("no capacity left")
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
	MaxPage      = 1_000_000

	// ClaimLease is how long a claimed outbox message stays invisible
	// before another dispatcher may claim it again.
	ClaimLease = 5 * time.Minute
)

// Page is a 1-based page window.
type Page struct {
	Page  int
	Limit int
}

// Normalize clamps the window to sane bounds.
func (p Page) Normalize() Page {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Page > MaxPage {
		p.Page = MaxPage
	}
	if p.Limit < 1 {
		p.Limit = DefaultLimit
	}
	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}
	return p
}

func (p Page) Skip() int64 {
	n := p.Normalize()
	return int64(n.Page-1) * int64(n.Limit)
}

type EventFilter struct {
	Statuses  []models.EventStatus
	Category  models.Category
	Organizer *primitive.ObjectID
	Search    string
	StartFrom *time.Time
	StartTo   *time.Time
	Page
}

// EventUpdate carries the organizer-owned fields. Nil fields are left alone.
type EventUpdate struct {
	Title           *string
	Description     *string
	Category        *models.Category
	Location        *models.Location
	StartDate       *time.Time
	EndDate         *time.Time
	MaxParticipants *int
	Requirements    *string
	Benefits        *string
	ContactInfo     *models.ContactInfo
}

// IsEmpty reports whether the update would change nothing.
func (u EventUpdate) IsEmpty() bool {
	return u.Title == nil && u.Description == nil && u.Category == nil && u.Location == nil &&
		u.StartDate == nil && u.EndDate == nil && u.MaxParticipants == nil &&
		u.Requirements == nil && u.Benefits == nil && u.ContactInfo == nil
}

// StatusChange carries the reason stamped alongside an event transition.
type StatusChange struct {
	RejectionReason    string
	CancellationReason string
}

type EventRepository interface {
	Create(ctx context.Context, event *models.Event) error
	// Get never returns soft-deleted events.
	Get(ctx context.Context, id primitive.ObjectID) (*models.Event, error)
	List(ctx context.Context, filter EventFilter) ([]models.Event, int64, error)
	// Update returns ErrConflict when MaxParticipants would drop below the
	// current participant count.
	Update(ctx context.Context, id primitive.ObjectID, update EventUpdate, now time.Time) (*models.Event, error)
	// TransitionStatus moves the event from -> to, or returns ErrConflict when
	// the stored status is no longer from.
	TransitionStatus(ctx context.Context, id primitive.ObjectID, from, to models.EventStatus, change StatusChange, now time.Time) (*models.Event, error)
	// ReserveSlot increments the participant counter only while the event is
	// approved, not started, not deleted and below capacity. ErrNoCapacity
	// otherwise.
	ReserveSlot(ctx context.Context, id primitive.ObjectID, now time.Time) error
	// ReleaseSlot decrements the participant counter, never below zero.
	ReleaseSlot(ctx context.Context, id primitive.ObjectID, now time.Time) error
	// SoftDelete marks the event deleted while its participant counter still
	// equals participants and its status is not terminal. ErrConflict
	// otherwise.
	SoftDelete(ctx context.Context, id primitive.ObjectID, participants int, now time.Time) error
	// Restore clears a soft delete.
	Restore(ctx context.Context, id primitive.ObjectID) error
	AddImages(ctx context.Context, id primitive.ObjectID, urls []string, now time.Time) (*models.Event, error)
}

type RegistrationFilter struct {
	Statuses []models.RegistrationStatus
	Page
}

// RegistrationChange carries the fields stamped by a registration transition.
type RegistrationChange struct {
	ConfirmedAt  *time.Time
	CancelledAt  *time.Time
	CompletedAt  *time.Time
	CancelReason *string
	Notes        *string
	Attendance   *models.Attendance
	Feedback     *models.Feedback
}

type RegistrationRepository interface {
	// Create returns ErrDuplicate when a non-cancelled registration already
	// exists for the pair.
	Create(ctx context.Context, reg *models.Registration) error
	Get(ctx context.Context, id primitive.ObjectID) (*models.Registration, error)
	// FindActive returns the non-cancelled registration of the pair, or
	// ErrNotFound.
	FindActive(ctx context.Context, eventID, volunteerID primitive.ObjectID) (*models.Registration, error)
	ListByVolunteer(ctx context.Context, volunteerID primitive.ObjectID, filter RegistrationFilter) ([]models.Registration, int64, error)
	ListByEvent(ctx context.Context, eventID primitive.ObjectID, filter RegistrationFilter) ([]models.Registration, int64, error)
	CountByEvent(ctx context.Context, eventID primitive.ObjectID, statuses []models.RegistrationStatus) (int64, error)
	// Transition moves the registration to `to` when its stored status is one
	// of from, or returns ErrConflict.
	Transition(ctx context.Context, id primitive.ObjectID, from []models.RegistrationStatus, to models.RegistrationStatus, change RegistrationChange, now time.Time) (*models.Registration, error)
	// CompleteMany completes the registrations among ids that belong to
	// eventID and are in one of the from statuses, and returns the ones it
	// modified.
	CompleteMany(ctx context.Context, eventID primitive.ObjectID, ids []primitive.ObjectID, from []models.RegistrationStatus, change RegistrationChange, now time.Time) ([]models.Registration, error)
}

type NotificationRepository interface {
	// Create returns ErrDuplicate when a notification with the same ID exists.
	Create(ctx context.Context, n *models.Notification) error
	List(ctx context.Context, recipient primitive.ObjectID, unreadOnly bool, page Page) ([]models.Notification, int64, error)
	CountUnread(ctx context.Context, recipient primitive.ObjectID) (int64, error)
	MarkRead(ctx context.Context, recipient, id primitive.ObjectID, now time.Time) (*models.Notification, error)
	MarkAllRead(ctx context.Context, recipient primitive.ObjectID, now time.Time) (int64, error)
	Delete(ctx context.Context, recipient, id primitive.ObjectID) error
	DeleteAll(ctx context.Context, recipient primitive.ObjectID) (int64, error)
}

type OutboxRepository interface {
	// Enqueue stores pending messages. Messages whose DedupeKey is already
	// stored are skipped.
	Enqueue(ctx context.Context, msgs ...models.OutboxMessage) error
	// ClaimDue atomically moves up to limit due pending messages, and
	// processing messages whose lease expired, to processing and returns them.
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]models.OutboxMessage, error)
	MarkDelivered(ctx context.Context, id primitive.ObjectID, now time.Time) error
	// MarkFailed records a failed attempt and reschedules the message, or
	// moves it to dead when dead is set.
	MarkFailed(ctx context.Context, id primitive.ObjectID, reason string, retryAt time.Time, dead bool, now time.Time) error
}

// Recipient is the contact view of a user account.
type Recipient struct {
	ID    primitive.ObjectID
	Name  string
	Email string
}

// UserDirectory resolves notification recipients. Accounts are owned by the
// identity service; this is a read-only view.
type UserDirectory interface {
	Lookup(ctx context.Context, id primitive.ObjectID) (*Recipient, error)
}

// Store bundles the repositories of one backend.
type Store struct {
	Events        EventRepository
	Registrations RegistrationRepository
	Notifications NotificationRepository
	Outbox        OutboxRepository
	Users         UserDirectory
}
