package mongorepo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/phillip/volunteer-events-go/models"
)

func TestRegistrationUniqueIndex(t *testing.T) {
	idx := Indexes()[RegistrationsCollection]
	require.NotEmpty(t, idx)

	unique := idx[0]
	assert.Equal(t, bson.D{{Key: "event_id", Value: 1}, {Key: "volunteer_id", Value: 1}}, unique.Keys)
	require.NotNil(t, unique.Options)
	require.NotNil(t, unique.Options.Unique)
	assert.True(t, *unique.Options.Unique)

	partial, ok := unique.Options.PartialFilterExpression.(bson.M)
	require.True(t, ok)
	statuses := partial["status"].(bson.M)["$in"].([]models.RegistrationStatus)
	assert.NotContains(t, statuses, models.RegistrationCancelled)
	assert.Contains(t, statuses, models.RegistrationConfirmed)
}

func TestIndexesCoverEveryCollection(t *testing.T) {
	idx := Indexes()
	for _, name := range []string{EventsCollection, RegistrationsCollection, NotificationsCollection, OutboxCollection} {
		assert.NotEmpty(t, idx[name], name)
	}
	assert.NotContains(t, idx, UsersCollection)
}

func TestLiveFilterExcludesDeleted(t *testing.T) {
	f := live(models.Event{}.ID)
	v, ok := f["deleted_at"]
	assert.True(t, ok)
	assert.Nil(t, v)
}
