package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type NotificationType string

const (
	NotificationRegistrationConfirmed NotificationType = "registration_confirmed"
	NotificationRegistrationRejected  NotificationType = "registration_rejected"
	NotificationEventReminder         NotificationType = "event_reminder"
	NotificationEventUpdated          NotificationType = "event_updated"
	NotificationEventCancelled        NotificationType = "event_cancelled"
	NotificationEventCompleted        NotificationType = "event_completed"
	NotificationEventApproved         NotificationType = "event_approved"
	NotificationEventRejected         NotificationType = "event_rejected"
	NotificationEventDeleted          NotificationType = "event_deleted"
	NotificationNewPost               NotificationType = "new_post"
	NotificationNewComment            NotificationType = "new_comment"
	NotificationPostLiked             NotificationType = "post_liked"
	NotificationAccountStatusChanged  NotificationType = "account_status_changed"
	NotificationRoleChanged           NotificationType = "role_changed"
)

func (t NotificationType) Valid() bool {
	switch t {
	case NotificationRegistrationConfirmed, NotificationRegistrationRejected, NotificationEventReminder,
		NotificationEventUpdated, NotificationEventCancelled, NotificationEventCompleted,
		NotificationEventApproved, NotificationEventRejected, NotificationEventDeleted,
		NotificationNewPost, NotificationNewComment, NotificationPostLiked,
		NotificationAccountStatusChanged, NotificationRoleChanged:
		return true
	}
	return false
}

type Notification struct {
	ID           primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	Recipient    primitive.ObjectID  `bson:"recipient" json:"recipient"`
	Type         NotificationType    `bson:"type" json:"type"`
	Title        string              `bson:"title" json:"title"`
	Message      string              `bson:"message" json:"message"`
	RelatedEvent *primitive.ObjectID `bson:"related_event,omitempty" json:"related_event,omitempty"`
	RelatedPost  *primitive.ObjectID `bson:"related_post,omitempty" json:"related_post,omitempty"`
	RelatedUser  *primitive.ObjectID `bson:"related_user,omitempty" json:"related_user,omitempty"`
	IsRead       bool                `bson:"is_read" json:"is_read"`
	ReadAt       *time.Time          `bson:"read_at,omitempty" json:"read_at,omitempty"`
	CreatedAt    time.Time           `bson:"created_at" json:"created_at"`
}
