package mongostore

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/roach88/storekit/internal/backend"
	"github.com/roach88/storekit/internal/errs"
	"github.com/roach88/storekit/internal/operator"
	"github.com/roach88/storekit/internal/pipeline"
	"github.com/roach88/storekit/internal/testutil"
)

var users = backend.Model{Name: "User", Table: "users", Key: "id"}

func TestToDocument_KeyAndOrder(t *testing.T) {
	doc := toDocument(users, backend.Record{"name": "Ann", "id": "k1", "age": 30})
	assert.Equal(t, bson.D{
		{Key: "age", Value: 30},
		{Key: "_id", Value: "k1"},
		{Key: "name", Value: "Ann"},
	}, doc)
}

func TestFromDocument_Normalizes(t *testing.T) {
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	rec := fromDocument(users, bson.M{
		"_id":     "k1",
		"age":     int32(30),
		"created": bson.NewDateTimeFromTime(at),
		"profile": bson.D{{Key: "city", Value: "Oslo"}, {Key: "zip", Value: int32(150)}},
		"tags":    bson.A{"a", bson.M{"n": int32(1)}},
	})

	assert.Equal(t, backend.Record{
		"id":      "k1",
		"age":     int64(30),
		"created": at,
		"profile": map[string]any{"city": "Oslo", "zip": int64(150)},
		"tags":    []any{"a", map[string]any{"n": int64(1)}},
	}, rec)
}

func TestWithKey(t *testing.T) {
	in := backend.Record{"name": "Ann"}
	rec := withKey(users, in, backend.UUIDKeys{})
	assert.NotEmpty(t, rec["id"])
	assert.NotContains(t, in, "id")

	kept := withKey(users, backend.Record{"id": "given"}, testutil.NewSequenceKeys("k"))
	assert.Equal(t, "k-0001", withKey(users, in, testutil.NewSequenceKeys("k"))["id"])
	assert.Equal(t, "given", kept["id"])
}

func TestMapError(t *testing.T) {
	assert.NoError(t, mapError(nil))
	assert.ErrorIs(t, mapError(mongo.ErrNoDocuments), backend.ErrNoRecord)

	dup := mongo.WriteException{WriteErrors: []mongo.WriteError{{Code: 11000, Message: "E11000 duplicate key"}}}
	assert.True(t, errs.IsConflict(mapError(dup)))

	v := errs.Validation("bad")
	assert.Same(t, v, mapError(v))

	other := errors.New("socket closed")
	err := mapError(other)
	require.True(t, errs.IsBackend(err))
	assert.ErrorIs(t, err, other)
}

func TestEmptyGroup(t *testing.T) {
	plan := pipeline.Plan{Group: &pipeline.Group{Functions: []pipeline.Aggregate{
		{Func: operator.Count, Alias: "n"},
		{Func: operator.Sum, Field: "age", Alias: "total"},
		{Func: operator.Avg, Field: "age", Alias: "avg"},
	}}}
	assert.Equal(t, backend.Record{"n": int64(0), "total": int64(0), "avg": nil}, emptyGroup(plan))

	plan.Project = &pipeline.Project{Fields: []string{"n"}}
	assert.Equal(t, backend.Record{"n": int64(0)}, emptyGroup(plan))
}
