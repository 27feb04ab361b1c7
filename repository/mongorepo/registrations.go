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

type RegistrationRepo struct {
	col *mongo.Collection
}

func (r *RegistrationRepo) Create(ctx context.Context, reg *models.Registration) error {
	if reg.ID.IsZero() {
		reg.ID = primitive.NewObjectID()
	}
	if _, err := r.col.InsertOne(ctx, reg); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return repository.ErrDuplicate
		}
		return fmt.Errorf("insert registration: %w", err)
	}
	return nil
}

func (r *RegistrationRepo) Get(ctx context.Context, id primitive.ObjectID) (*models.Registration, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *RegistrationRepo) FindActive(ctx context.Context, eventID, volunteerID primitive.ObjectID) (*models.Registration, error) {
	return r.findOne(ctx, bson.M{
		"event_id":     eventID,
		"volunteer_id": volunteerID,
		"status":       bson.M{"$in": models.UniqueRegistrationStatuses},
	})
}

func (r *RegistrationRepo) findOne(ctx context.Context, filter bson.M) (*models.Registration, error) {
	var reg models.Registration
	if err := r.col.FindOne(ctx, filter).Decode(&reg); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("find registration: %w", err)
	}
	return &reg, nil
}

func (r *RegistrationRepo) ListByVolunteer(ctx context.Context, volunteerID primitive.ObjectID, f repository.RegistrationFilter) ([]models.Registration, int64, error) {
	return r.list(ctx, bson.M{"volunteer_id": volunteerID}, f)
}

func (r *RegistrationRepo) ListByEvent(ctx context.Context, eventID primitive.ObjectID, f repository.RegistrationFilter) ([]models.Registration, int64, error) {
	return r.list(ctx, bson.M{"event_id": eventID}, f)
}

func (r *RegistrationRepo) list(ctx context.Context, filter bson.M, f repository.RegistrationFilter) ([]models.Registration, int64, error) {
	if len(f.Statuses) > 0 {
		filter["status"] = bson.M{"$in": f.Statuses}
	}
	total, err := r.col.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("count registrations: %w", err)
	}

	page := f.Page.Normalize()
	opts := options.Find().
		SetSort(bson.D{{Key: "registered_at", Value: -1}}).
		SetSkip(page.Skip()).
		SetLimit(int64(page.Limit))

	cursor, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("find registrations: %w", err)
	}
	regs := []models.Registration{}
	if err := cursor.All(ctx, &regs); err != nil {
		return nil, 0, fmt.Errorf("decode registrations: %w", err)
	}
	return regs, total, nil
}

func (r *RegistrationRepo) CountByEvent(ctx context.Context, eventID primitive.ObjectID, statuses []models.RegistrationStatus) (int64, error) {
	n, err := r.col.CountDocuments(ctx, bson.M{"event_id": eventID, "status": bson.M{"$in": statuses}})
	if err != nil {
		return 0, fmt.Errorf("count registrations: %w", err)
	}
	return n, nil
}

func (r *RegistrationRepo) Transition(ctx context.Context, id primitive.ObjectID, from []models.RegistrationStatus, to models.RegistrationStatus, change repository.RegistrationChange, now time.Time) (*models.Registration, error) {
	set := changeSet(change, now)
	set["status"] = to

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var reg models.Registration
	err := r.col.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "status": bson.M{"$in": from}},
		bson.M{"$set": set}, opts).Decode(&reg)
	if errors.Is(err, mongo.ErrNoDocuments) {
		n, cerr := r.col.CountDocuments(ctx, bson.M{"_id": id})
		if cerr != nil {
			return nil, fmt.Errorf("count registration: %w", cerr)
		}
		if n == 0 {
			return nil, repository.ErrNotFound
		}
		return nil, repository.ErrConflict
	}
	if err != nil {
		return nil, fmt.Errorf("update registration: %w", err)
	}
	return &reg, nil
}

func (r *RegistrationRepo) CompleteMany(ctx context.Context, eventID primitive.ObjectID, ids []primitive.ObjectID, from []models.RegistrationStatus, change repository.RegistrationChange, now time.Time) ([]models.Registration, error) {
	if len(ids) == 0 || len(from) == 0 {
		return nil, nil
	}
	set := changeSet(change, now)
	set["status"] = models.RegistrationCompleted

	cursor, err := r.col.Find(ctx, bson.M{
		"_id":      bson.M{"$in": ids},
		"event_id": eventID,
		"status":   bson.M{"$in": from},
	}, options.Find().SetProjection(bson.M{"_id": 1}))
	if err != nil {
		return nil, fmt.Errorf("find batch candidates: %w", err)
	}
	var candidates []struct {
		ID primitive.ObjectID `bson:"_id"`
	}
	if err := cursor.All(ctx, &candidates); err != nil {
		return nil, fmt.Errorf("decode batch candidates: %w", err)
	}

	// each write re-checks the status, so a registration moved by a
	// concurrent request is skipped rather than overwritten
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	out := make([]models.Registration, 0, len(candidates))
	for _, c := range candidates {
		var reg models.Registration
		err := r.col.FindOneAndUpdate(ctx, bson.M{
			"_id":      c.ID,
			"event_id": eventID,
			"status":   bson.M{"$in": from},
		}, bson.M{"$set": set}, opts).Decode(&reg)
		if errors.Is(err, mongo.ErrNoDocuments) {
			continue
		}
		if err != nil {
			return out, fmt.Errorf("complete registration %s: %w", c.ID.Hex(), err)
		}
		out = append(out, reg)
	}
	return out, nil
}

func changeSet(c repository.RegistrationChange, now time.Time) bson.M {
	set := bson.M{"updated_at": now}
	if c.ConfirmedAt != nil {
		set["confirmed_at"] = *c.ConfirmedAt
	}
	if c.CancelledAt != nil {
		set["cancelled_at"] = *c.CancelledAt
	}
	if c.CompletedAt != nil {
		set["completed_at"] = *c.CompletedAt
	}
	if c.CancelReason != nil {
		set["cancel_reason"] = *c.CancelReason
	}
	if c.Notes != nil {
		set["notes"] = *c.Notes
	}
	if c.Attendance != nil {
		set["attendance"] = *c.Attendance
	}
	if c.Feedback != nil {
		set["feedback"] = *c.Feedback
	}
	return set
}
