package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type EventStatus string

const (
	EventStatusDraft     EventStatus = "draft"
	EventStatusPending   EventStatus = "pending"
	EventStatusApproved  EventStatus = "approved"
	EventStatusRejected  EventStatus = "rejected"
	EventStatusOngoing   EventStatus = "ongoing"
	EventStatusCompleted EventStatus = "completed"
	EventStatusCancelled EventStatus = "cancelled"
)

func (s EventStatus) Valid() bool {
	switch s {
	case EventStatusDraft, EventStatusPending, EventStatusApproved, EventStatusRejected,
		EventStatusOngoing, EventStatusCompleted, EventStatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether no further lifecycle edge leaves s.
func (s EventStatus) IsTerminal() bool {
	return s == EventStatusRejected || s == EventStatusCompleted || s == EventStatusCancelled
}

type Category string

const (
	CategoryTreePlanting Category = "tree_planting"
	CategoryCleanup      Category = "cleanup"
	CategoryCharity      Category = "charity"
	CategoryEducation    Category = "education"
	CategoryOther        Category = "other"
)

func (c Category) Valid() bool {
	switch c {
	case CategoryTreePlanting, CategoryCleanup, CategoryCharity, CategoryEducation, CategoryOther:
		return true
	}
	return false
}

// Coordinates struct for latitude and longitude
type Coordinates struct {
	Lat float64 `bson:"lat" json:"lat"`
	Lng float64 `bson:"lng" json:"lng"`
}

type Location struct {
	Address     string       `bson:"address" json:"address"`
	Coordinates *Coordinates `bson:"coordinates,omitempty" json:"coordinates,omitempty"`
}

type ContactInfo struct {
	Name  string `bson:"name,omitempty" json:"name,omitempty"`
	Phone string `bson:"phone,omitempty" json:"phone,omitempty"`
	Email string `bson:"email,omitempty" json:"email,omitempty"`
}

// EventStats is maintained by the social feed, never by the registration flow.
type EventStats struct {
	TotalPosts          int        `bson:"total_posts" json:"total_posts"`
	TotalLikes          int        `bson:"total_likes" json:"total_likes"`
	TotalComments       int        `bson:"total_comments" json:"total_comments"`
	RecentActivityCount int        `bson:"recent_activity_count" json:"recent_activity_count"`
	LastActivityAt      *time.Time `bson:"last_activity_at,omitempty" json:"last_activity_at,omitempty"`
}

type Event struct {
	ID                  primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Title               string             `bson:"title" json:"title"`
	Description         string             `bson:"description" json:"description"`
	Category            Category           `bson:"category" json:"category"`
	Location            Location           `bson:"location" json:"location"`
	StartDate           time.Time          `bson:"start_date" json:"start_date"`
	EndDate             time.Time          `bson:"end_date" json:"end_date"`
	MaxParticipants     int                `bson:"max_participants" json:"max_participants"`
	CurrentParticipants int                `bson:"current_participants" json:"current_participants"` // written only by slot reserve/release
	Status              EventStatus        `bson:"status" json:"status"`
	Organizer           primitive.ObjectID `bson:"organizer" json:"organizer"`
	Images              []string           `bson:"images" json:"images"`
	Requirements        string             `bson:"requirements,omitempty" json:"requirements,omitempty"`
	Benefits            string             `bson:"benefits,omitempty" json:"benefits,omitempty"`
	ContactInfo         *ContactInfo       `bson:"contact_info,omitempty" json:"contact_info,omitempty"`
	RejectionReason     string             `bson:"rejection_reason,omitempty" json:"rejection_reason,omitempty"`
	CancellationReason  string             `bson:"cancellation_reason,omitempty" json:"cancellation_reason,omitempty"`
	Stats               EventStats         `bson:"stats" json:"stats"`
	DeletedAt           *time.Time         `bson:"deleted_at,omitempty" json:"-"`
	CreatedAt           time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt           time.Time          `bson:"updated_at" json:"updated_at"`
}

func (e *Event) IsFull() bool {
	return e.CurrentParticipants >= e.MaxParticipants
}

func (e *Event) HasStarted(now time.Time) bool {
	return e.StartDate.Before(now)
}

func (e *Event) HasEnded(now time.Time) bool {
	return e.EndDate.Before(now)
}

func (e *Event) IsOrganizer(userID primitive.ObjectID) bool {
	return e.Organizer == userID
}
