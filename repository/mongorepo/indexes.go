package mongorepo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/phillip/volunteer-events-go/models"
)

// Indexes lists the index models per collection.
func Indexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		EventsCollection: {
			{Keys: bson.D{{Key: "category", Value: 1}, {Key: "status", Value: 1}}},
			{Keys: bson.D{{Key: "start_date", Value: 1}}},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "start_date", Value: 1}}},
			{Keys: bson.D{{Key: "organizer", Value: 1}}},
			{Keys: bson.D{{Key: "stats.recent_activity_count", Value: -1}}},
			{Keys: bson.D{{Key: "created_at", Value: -1}}},
		},
		RegistrationsCollection: {
			// Requires MongoDB 6.0+ for $in inside a partial filter.
			{
				Keys: bson.D{{Key: "event_id", Value: 1}, {Key: "volunteer_id", Value: 1}},
				Options: options.Index().
					SetName("uniq_active_registration").
					SetUnique(true).
					SetPartialFilterExpression(bson.M{
						"status": bson.M{"$in": models.UniqueRegistrationStatuses},
					}),
			},
			{Keys: bson.D{{Key: "volunteer_id", Value: 1}, {Key: "status", Value: 1}}},
			{Keys: bson.D{{Key: "event_id", Value: 1}, {Key: "status", Value: 1}}},
			{Keys: bson.D{{Key: "registered_at", Value: -1}}},
		},
		NotificationsCollection: {
			{Keys: bson.D{{Key: "recipient", Value: 1}, {Key: "is_read", Value: 1}, {Key: "created_at", Value: -1}}},
		},
		OutboxCollection: {
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "available_at", Value: 1}}},
			{
				Keys: bson.D{{Key: "dedupe_key", Value: 1}},
				Options: options.Index().
					SetName("uniq_dedupe_key").
					SetUnique(true).
					SetPartialFilterExpression(bson.M{"dedupe_key": bson.M{"$gt": ""}}),
			},
		},
	}
}

// EnsureIndexes creates every index; existing ones are left untouched.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	for name, idx := range Indexes() {
		if _, err := db.Collection(name).Indexes().CreateMany(ctx, idx); err != nil {
			return fmt.Errorf("create indexes on %s: %w", name, err)
		}
	}
	return nil
}
