package mongorepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/phillip/volunteer-events-go/models"
	"github.com/phillip/volunteer-events-go/repository"
)

type NotificationRepo struct {
	col *mongo.Collection
}

func (r *NotificationRepo) Create(ctx context.Context, n *models.Notification) error {
	if n.ID.IsZero() {
		n.ID = primitive.NewObjectID()
	}
	if _, err := r.col.InsertOne(ctx, n); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return repository.ErrDuplicate
		}
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (r *NotificationRepo) List(ctx context.Context, recipient primitive.ObjectID, unreadOnly bool, page repository.Page) ([]models.Notification, int64, error) {
	filter := bson.M{"recipient": recipient}
	if unreadOnly {
		filter["is_read"] = false
	}
	total, err := r.col.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("count notifications: %w", err)
	}

	page = page.Normalize()
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetSkip(page.Skip()).
		SetLimit(int64(page.Limit))

	cursor, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("find notifications: %w", err)
	}
	out := []models.Notification{}
	if err := cursor.All(ctx, &out); err != nil {
		return nil, 0, fmt.Errorf("decode notifications: %w", err)
	}
	return out, total, nil
}

func (r *NotificationRepo) CountUnread(ctx context.Context, recipient primitive.ObjectID) (int64, error) {
	n, err := r.col.CountDocuments(ctx, bson.M{"recipient": recipient, "is_read": false})
	if err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return n, nil
}

func (r *NotificationRepo) MarkRead(ctx context.Context, recipient, id primitive.ObjectID, now time.Time) (*models.Notification, error) {
	filter := bson.M{"_id": id, "recipient": recipient}

	// read_at keeps the first read time
	if _, err := r.col.UpdateOne(ctx,
		bson.M{"_id": id, "recipient": recipient, "is_read": false},
		bson.M{"$set": bson.M{"is_read": true, "read_at": now}}); err != nil {
		return nil, fmt.Errorf("mark read: %w", err)
	}

	var n models.Notification
	if err := r.col.FindOne(ctx, filter).Decode(&n); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("find notification: %w", err)
	}
	return &n, nil
}

func (r *NotificationRepo) MarkAllRead(ctx context.Context, recipient primitive.ObjectID, now time.Time) (int64, error) {
	res, err := r.col.UpdateMany(ctx,
		bson.M{"recipient": recipient, "is_read": false},
		bson.M{"$set": bson.M{"is_read": true, "read_at": now}})
	if err != nil {
		return 0, fmt.Errorf("mark all read: %w", err)
	}
	return res.ModifiedCount, nil
}

func (r *NotificationRepo) Delete(ctx context.Context, recipient, id primitive.ObjectID) error {
	res, err := r.col.DeleteOne(ctx, bson.M{"_id": id, "recipient": recipient})
	if err != nil {
		return fmt.Errorf("delete notification: %w", err)
	}
	if res.DeletedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *NotificationRepo) DeleteAll(ctx context.Context, recipient primitive.ObjectID) (int64, error) {
	res, err := r.col.DeleteMany(ctx, bson.M{"recipient": recipient})
	if err != nil {
		return 0, fmt.Errorf("clear notifications: %w", err)
	}
	return res.DeletedCount, nil
}

type OutboxRepo struct {
	col *mongo.Collection
}

func (r *OutboxRepo) Enqueue(ctx context.Context, msgs ...models.OutboxMessage) error {
	if len(msgs) == 0 {
		return nil
	}
	docs := make([]interface{}, 0, len(msgs))
	for i := range msgs {
		if msgs[i].ID.IsZero() {
			msgs[i].ID = primitive.NewObjectID()
		}
		docs = append(docs, msgs[i])
	}

	_, err := r.col.InsertMany(ctx, docs, options.InsertMany().SetOrdered(false))
	if err == nil {
		return nil
	}
	// duplicate dedupe keys are skipped
	var bwe mongo.BulkWriteException
	if errors.As(err, &bwe) && bwe.WriteConcernError == nil {
		for _, we := range bwe.WriteErrors {
			if we.Code != 11000 {
				return fmt.Errorf("enqueue outbox: %w", err)
			}
		}
		return nil
	}
	return fmt.Errorf("enqueue outbox: %w", err)
}

func (r *OutboxRepo) ClaimDue(ctx context.Context, now time.Time, limit int) ([]models.OutboxMessage, error) {
	filter := bson.M{"$or": bson.A{
		bson.M{"status": models.OutboxPending, "available_at": bson.M{"$lte": now}},
		bson.M{"status": models.OutboxProcessing, "updated_at": bson.M{"$lte": now.Add(-repository.ClaimLease)}},
	}}
	update := bson.M{"$set": bson.M{"status": models.OutboxProcessing, "updated_at": now}}
	opts := options.FindOneAndUpdate().
		SetSort(bson.D{{Key: "available_at", Value: 1}}).
		SetReturnDocument(options.After)

	var out []models.OutboxMessage
	for limit <= 0 || len(out) < limit {
		var msg models.OutboxMessage
		err := r.col.FindOneAndUpdate(ctx, filter, update, opts).Decode(&msg)
		if errors.Is(err, mongo.ErrNoDocuments) {
			break
		}
		if err != nil {
			return out, fmt.Errorf("claim outbox: %w", err)
		}
		out = append(out, msg)
	}
	return out, nil
}

func (r *OutboxRepo) MarkDelivered(ctx context.Context, id primitive.ObjectID, now time.Time) error {
	res, err := r.col.UpdateOne(ctx, bson.M{"_id": id},
		bson.M{"$set": bson.M{"status": models.OutboxDelivered, "updated_at": now}})
	if err != nil {
		return fmt.Errorf("mark delivered: %w", err)
	}
	if res.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *OutboxRepo) MarkFailed(ctx context.Context, id primitive.ObjectID, reason string, retryAt time.Time, dead bool, now time.Time) error {
	set := bson.M{"last_error": reason, "updated_at": now, "status": models.OutboxPending, "available_at": retryAt}
	if dead {
		set = bson.M{"last_error": reason, "updated_at": now, "status": models.OutboxDead}
	}
	res, err := r.col.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$set": set,
		"$inc": bson.M{"attempts": 1},
	})
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	if res.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

type UserDirectory struct {
	col *mongo.Collection
}

type userDoc struct {
	ID    primitive.ObjectID `bson:"_id"`
	Name  string             `bson:"name"`
	Email string             `bson:"email"`
}

func (u *UserDirectory) Lookup(ctx context.Context, id primitive.ObjectID) (*repository.Recipient, error) {
	var doc userDoc
	opts := options.FindOne().SetProjection(bson.M{"name": 1, "email": 1})
	if err := u.col.FindOne(ctx, bson.M{"_id": id}, opts).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return &repository.Recipient{ID: doc.ID, Name: doc.Name, Email: doc.Email}, nil
}
