package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type OutboxStatus string

const (
	OutboxPending    OutboxStatus = "pending"
	OutboxProcessing OutboxStatus = "processing"
	OutboxDelivered  OutboxStatus = "delivered"
	OutboxDead       OutboxStatus = "dead"
)

// OutboxMessage is a notification emitted by a lifecycle transition and
// delivered later by the dispatcher.
type OutboxMessage struct {
	ID           primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	DedupeKey    string              `bson:"dedupe_key" json:"dedupe_key"`
	Recipient    primitive.ObjectID  `bson:"recipient" json:"recipient"`
	Type         NotificationType    `bson:"type" json:"type"`
	Title        string              `bson:"title" json:"title"`
	Message      string              `bson:"message" json:"message"`
	RelatedEvent *primitive.ObjectID `bson:"related_event,omitempty" json:"related_event,omitempty"`
	Status       OutboxStatus        `bson:"status" json:"status"`
	Attempts     int                 `bson:"attempts" json:"attempts"`
	LastError    string              `bson:"last_error,omitempty" json:"last_error,omitempty"`
	AvailableAt  time.Time           `bson:"available_at" json:"available_at"`
	CreatedAt    time.Time           `bson:"created_at" json:"created_at"`
	UpdatedAt    time.Time           `bson:"updated_at" json:"updated_at"`
}
