package mongostore

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/storekit/internal/backend"
	"github.com/roach88/storekit/internal/errs"
	"github.com/roach88/storekit/internal/operator"
	"github.com/roach88/storekit/internal/pipeline"
	"github.com/roach88/storekit/internal/queryir"
)

// createTestStore connects to STOREKIT_MONGO_URI and uses a throwaway
// database. Tests skip when the variable is unset.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	uri := os.Getenv("STOREKIT_MONGO_URI")
	if uri == "" {
		t.Skip("STOREKIT_MONGO_URI not set")
	}
	ctx := context.Background()
	s, err := Open(ctx, uri, "storekit_test_"+uuid.NewString()[:8])
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = s.Database().Drop(ctx)
		_ = s.Close()
	})
	return s
}

func seed(t *testing.T, s *Store) {
	t.Helper()
	_, err := s.CreateMany(context.Background(), users, []backend.Record{
		{"id": "a", "name": "Ann", "age": 28, "profile": map[string]any{"city": "Oslo"}},
		{"id": "b", "name": "Bob", "age": 30, "profile": map[string]any{"city": "Bergen"}},
		{"id": "c", "name": "Cid", "age": 30, "profile": map[string]any{"city": "Oslo"}},
	})
	require.NoError(t, err)
}

func TestStore_CreateAndFind(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	seed(t, s)

	recs, err := s.FindMany(ctx, users, backend.Query{
		Filter: queryir.Nested("profile", queryir.Eq("city", "Oslo")),
		Order:  []queryir.Sort{queryir.Desc("age")},
	})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "c", recs[0]["id"])
	assert.Equal(t, int64(30), recs[0]["age"])
	assert.Equal(t, map[string]any{"city": "Oslo"}, recs[0]["profile"])

	_, err = s.Create(ctx, users, backend.Record{"id": "a", "name": "dup"})
	assert.True(t, errs.IsConflict(err))
}

func TestStore_UpdateChainsDeltas(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	seed(t, s)

	rec, err := s.Update(ctx, users, queryir.Eq("id", "a"), queryir.Update{}.Inc("age", 5))
	require.NoError(t, err)
	assert.Equal(t, int64(33), rec["age"])

	rec, err = s.Update(ctx, users, queryir.Eq("id", "a"), queryir.Update{}.Mul("age", 2))
	require.NoError(t, err)
	assert.Equal(t, int64(66), rec["age"])

	_, err = s.Update(ctx, users, queryir.Eq("id", "zzz"), queryir.Update{}.Inc("age", 1))
	assert.ErrorIs(t, err, backend.ErrNoRecord)
}

func TestStore_DeleteAndClear(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	seed(t, s)

	snap, err := s.Delete(ctx, users, queryir.Eq("name", "Bob"))
	require.NoError(t, err)
	assert.Equal(t, "b", snap["id"])

	n, err := s.Clear(ctx, users)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestStore_GroupBy(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	plan, err := pipeline.Build([]pipeline.Stage{
		pipeline.Group{Functions: []pipeline.Aggregate{{Func: operator.Count, Alias: "n"}}},
	}, nil)
	require.NoError(t, err)

	recs, err := s.GroupBy(ctx, users, plan)
	require.NoError(t, err)
	assert.Equal(t, []backend.Record{{"n": int64(0)}}, recs)

	seed(t, s)
	plan, err = pipeline.Build([]pipeline.Stage{
		pipeline.Group{By: []string{"age"}, Functions: []pipeline.Aggregate{{Func: operator.Count, Field: "id", Alias: "count"}}},
		pipeline.Order{Sorts: []queryir.Sort{queryir.Desc("age")}},
	}, nil)
	require.NoError(t, err)

	recs, err = s.GroupBy(ctx, users, plan)
	require.NoError(t, err)
	assert.Equal(t, []backend.Record{
		{"age": int64(30), "count": int64(2)},
		{"age": int64(28), "count": int64(1)},
	}, recs)
}

func TestStore_Distinct(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	seed(t, s)

	vals, err := s.Distinct(ctx, users, "age", nil)
	require.NoError(t, err)
	assert.Equal(t, []any{int64(28), int64(30)}, vals)
}
