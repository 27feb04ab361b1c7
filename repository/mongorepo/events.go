// Package mongorepo implements the repository contracts on MongoDB.
package mongorepo

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/phillip/volunteer-events-go/models"
	"github.com/phillip/volunteer-events-go/repository"
)

const (
	EventsCollection        = "events"
	RegistrationsCollection = "registrations"
	NotificationsCollection = "notifications"
	OutboxCollection        = "outbox"
	UsersCollection         = "users"
)

// NewStore returns the repositories backed by db.
func NewStore(db *mongo.Database) repository.Store {
	return repository.Store{
		Events:        &EventRepo{col: db.Collection(EventsCollection)},
		Registrations: &RegistrationRepo{col: db.Collection(RegistrationsCollection)},
		Notifications: &NotificationRepo{col: db.Collection(NotificationsCollection)},
		Outbox:        &OutboxRepo{col: db.Collection(OutboxCollection)},
		Users:         &UserDirectory{col: db.Collection(UsersCollection)},
	}
}

type EventRepo struct {
	col *mongo.Collection
}

func live(id primitive.ObjectID) bson.M {
	return bson.M{"_id": id, "deleted_at": nil}
}

func (r *EventRepo) Create(ctx context.Context, event *models.Event) error {
	if event.ID.IsZero() {
		event.ID = primitive.NewObjectID()
	}
	if event.Images == nil {
		event.Images = []string{}
	}
	if _, err := r.col.InsertOne(ctx, event); err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

func (r *EventRepo) Get(ctx context.Context, id primitive.ObjectID) (*models.Event, error) {
	var event models.Event
	if err := r.col.FindOne(ctx, live(id)).Decode(&event); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("find event: %w", err)
	}
	return &event, nil
}

func (r *EventRepo) List(ctx context.Context, f repository.EventFilter) ([]models.Event, int64, error) {
	filter := bson.M{"deleted_at": nil}
	if len(f.Statuses) > 0 {
		filter["status"] = bson.M{"$in": f.Statuses}
	}
	if f.Category != "" {
		filter["category"] = f.Category
	}
	if f.Organizer != nil {
		filter["organizer"] = *f.Organizer
	}
	if f.Search != "" {
		pattern := primitive.Regex{Pattern: regexp.QuoteMeta(f.Search), Options: "i"}
		filter["$or"] = bson.A{
			bson.M{"title": pattern},
			bson.M{"description": pattern},
		}
	}
	if f.StartFrom != nil || f.StartTo != nil {
		rng := bson.M{}
		if f.StartFrom != nil {
			rng["$gte"] = *f.StartFrom
		}
		if f.StartTo != nil {
			rng["$lte"] = *f.StartTo
		}
		filter["start_date"] = rng
	}

	total, err := r.col.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("count events: %w", err)
	}

	page := f.Page.Normalize()
	opts := options.Find().
		SetSort(bson.D{{Key: "start_date", Value: 1}, {Key: "created_at", Value: -1}}).
		SetSkip(page.Skip()).
		SetLimit(int64(page.Limit))

	cursor, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("find events: %w", err)
	}
	events := []models.Event{}
	if err := cursor.All(ctx, &events); err != nil {
		return nil, 0, fmt.Errorf("decode events: %w", err)
	}
	return events, total, nil
}

func (r *EventRepo) Update(ctx context.Context, id primitive.ObjectID, u repository.EventUpdate, now time.Time) (*models.Event, error) {
	set := bson.M{"updated_at": now}
	if u.Title != nil {
		set["title"] = *u.Title
	}
	if u.Description != nil {
		set["description"] = *u.Description
	}
	if u.Category != nil {
		set["category"] = *u.Category
	}
	if u.Location != nil {
		set["location"] = *u.Location
	}
	if u.StartDate != nil {
		set["start_date"] = *u.StartDate
	}
	if u.EndDate != nil {
		set["end_date"] = *u.EndDate
	}
	if u.MaxParticipants != nil {
		set["max_participants"] = *u.MaxParticipants
	}
	if u.Requirements != nil {
		set["requirements"] = *u.Requirements
	}
	if u.Benefits != nil {
		set["benefits"] = *u.Benefits
	}
	if u.ContactInfo != nil {
		set["contact_info"] = *u.ContactInfo
	}

	filter := live(id)
	if u.MaxParticipants != nil {
		filter["current_participants"] = bson.M{"$lte": *u.MaxParticipants}
	}
	return r.findOneAndUpdate(ctx, id, filter, bson.M{"$set": set}, repository.ErrConflict)
}

func (r *EventRepo) TransitionStatus(ctx context.Context, id primitive.ObjectID, from, to models.EventStatus, change repository.StatusChange, now time.Time) (*models.Event, error) {
	set := bson.M{"status": to, "updated_at": now}
	if change.RejectionReason != "" {
		set["rejection_reason"] = change.RejectionReason
	}
	if change.CancellationReason != "" {
		set["cancellation_reason"] = change.CancellationReason
	}

	filter := live(id)
	filter["status"] = from
	return r.findOneAndUpdate(ctx, id, filter, bson.M{"$set": set}, repository.ErrConflict)
}

func (r *EventRepo) ReserveSlot(ctx context.Context, id primitive.ObjectID, now time.Time) error {
	filter := live(id)
	filter["status"] = models.EventStatusApproved
	filter["start_date"] = bson.M{"$gte": now}
	filter["$expr"] = bson.M{"$lt": bson.A{"$current_participants", "$max_participants"}}

	res, err := r.col.UpdateOne(ctx, filter, bson.M{
		"$inc": bson.M{"current_participants": 1},
		"$set": bson.M{"updated_at": now},
	})
	if err != nil {
		return fmt.Errorf("reserve slot: %w", err)
	}
	if res.MatchedCount == 0 {
		return repository.ErrNoCapacity
	}
	return nil
}

func (r *EventRepo) ReleaseSlot(ctx context.Context, id primitive.ObjectID, now time.Time) error {
	res, err := r.col.UpdateOne(ctx,
		bson.M{"_id": id, "current_participants": bson.M{"$gt": 0}},
		bson.M{
			"$inc": bson.M{"current_participants": -1},
			"$set": bson.M{"updated_at": now},
		})
	if err != nil {
		return fmt.Errorf("release slot: %w", err)
	}
	if res.MatchedCount == 0 {
		return repository.ErrConflict
	}
	return nil
}

func (r *EventRepo) SoftDelete(ctx context.Context, id primitive.ObjectID, participants int, now time.Time) error {
	filter := live(id)
	filter["current_participants"] = participants
	filter["status"] = bson.M{"$nin": bson.A{
		models.EventStatusRejected, models.EventStatusCompleted, models.EventStatusCancelled,
	}}

	res, err := r.col.UpdateOne(ctx, filter, bson.M{"$set": bson.M{"deleted_at": now, "updated_at": now}})
	if err != nil {
		return fmt.Errorf("soft delete event: %w", err)
	}
	if res.MatchedCount == 0 {
		return r.missingOr(ctx, id, repository.ErrConflict)
	}
	return nil
}

func (r *EventRepo) Restore(ctx context.Context, id primitive.ObjectID) error {
	res, err := r.col.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$unset": bson.M{"deleted_at": ""}})
	if err != nil {
		return fmt.Errorf("restore event: %w", err)
	}
	if res.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *EventRepo) AddImages(ctx context.Context, id primitive.ObjectID, urls []string, now time.Time) (*models.Event, error) {
	update := bson.M{
		"$push": bson.M{"images": bson.M{"$each": urls}},
		"$set":  bson.M{"updated_at": now},
	}
	return r.findOneAndUpdate(ctx, id, live(id), update, repository.ErrNotFound)
}

func (r *EventRepo) findOneAndUpdate(ctx context.Context, id primitive.ObjectID, filter, update bson.M, onMiss error) (*models.Event, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var event models.Event
	err := r.col.FindOneAndUpdate(ctx, filter, update, opts).Decode(&event)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, r.missingOr(ctx, id, onMiss)
	}
	if err != nil {
		return nil, fmt.Errorf("update event: %w", err)
	}
	return &event, nil
}

// missingOr tells a missing event apart from a failed condition.
func (r *EventRepo) missingOr(ctx context.Context, id primitive.ObjectID, conflict error) error {
	n, err := r.col.CountDocuments(ctx, live(id))
	if err != nil {
		return fmt.Errorf("count event: %w", err)
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return conflict
}
