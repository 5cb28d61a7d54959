package querymongo

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/roach88/storekit/internal/backend"
	"github.com/roach88/storekit/internal/errs"
	"github.com/roach88/storekit/internal/expr"
	"github.com/roach88/storekit/internal/operator"
	"github.com/roach88/storekit/internal/pipeline"
	"github.com/roach88/storekit/internal/queryir"
	"github.com/roach88/storekit/internal/translate"
)

var users = backend.Model{Name: "User", Table: "users", Key: "id"}

func TestFilter(t *testing.T) {
	c := NewCompiler()

	tests := []struct {
		name   string
		filter queryir.Filter
		want   bson.D
	}{
		{"nil matches all", nil, bson.D{}},
		{"key maps to _id", queryir.Eq("id", "a"), bson.D{{Key: "_id", Value: "a"}}},
		{"null leaf", queryir.Eq("email", nil), bson.D{{Key: "email", Value: nil}}},
		{"and", queryir.And(queryir.Eq("id", "a"), queryir.Where("age", operator.OpGTE, 18)), bson.D{{Key: "$and", Value: bson.A{
			bson.D{{Key: "_id", Value: "a"}},
			bson.D{{Key: "age", Value: bson.D{{Key: "$gte", Value: 18}}}},
		}}}},
		{"empty or", queryir.Or(), bson.D{{Key: "_id", Value: bson.D{{Key: "$exists", Value: false}}}}},
		{"in", queryir.In("role", "a", "b"), bson.D{{Key: "role", Value: bson.D{{Key: "$in", Value: bson.A{"a", "b"}}}}}},
		{"between", queryir.Between("age", 1, 9), bson.D{{Key: "age", Value: bson.D{{Key: "$gte", Value: 1}, {Key: "$lte", Value: 9}}}}},
		{"not between", queryir.Where("age", operator.OpNotBetween, []any{1, 9}), bson.D{{Key: "$or", Value: bson.A{
			bson.D{{Key: "age", Value: bson.D{{Key: "$lt", Value: 1}}}},
			bson.D{{Key: "age", Value: bson.D{{Key: "$gt", Value: 9}}}},
		}}}},
		{"like quotes metacharacters", queryir.Where("name", operator.OpLike, "a.b"), bson.D{{Key: "name", Value: bson.Regex{Pattern: `a\.b`}}}},
		{"ilike", queryir.Where("name", operator.OpILike, "ann"), bson.D{{Key: "name", Value: bson.Regex{Pattern: "ann", Options: "i"}}}},
		{"not endswith", queryir.Where("name", operator.OpNotEndsWith, "n"), bson.D{{Key: "name", Value: bson.D{{Key: "$not", Value: bson.Regex{Pattern: "n$"}}}}}},
		{"match", queryir.Where("name", operator.OpMatch, "^A.+"), bson.D{{Key: "name", Value: bson.Regex{Pattern: "^A.+"}}}},
		{"size", queryir.Where("tags", operator.OpSize, 2), bson.D{{Key: "tags", Value: bson.D{{Key: "$size", Value: 2}}}}},
		{"any", queryir.Where("tags", operator.OpAny, "go"), bson.D{{Key: "tags", Value: bson.D{{Key: "$elemMatch", Value: bson.D{{Key: "$eq", Value: "go"}}}}}}},
		{"nested", queryir.Nested("profile", queryir.Eq("city", "Oslo")), bson.D{{Key: "profile.city", Value: "Oslo"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.Filter(users, tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFilter_Unsupported(t *testing.T) {
	_, err := NewCompiler().Filter(users, queryir.Where("a", operator.OpAnd, 1))
	require.Error(t, err)
	assert.True(t, errs.IsValidation(err))
}

func TestFind(t *testing.T) {
	f, err := NewCompiler().Find(users, backend.Query{
		Filter: queryir.Eq("status", "x"),
		Select: []string{"name", "id"},
		Order:  []queryir.Sort{queryir.Desc("age")},
		Skip:   2,
		Take:   5,
	})
	require.NoError(t, err)
	assert.Equal(t, bson.D{{Key: "age", Value: -1}, {Key: "_id", Value: 1}}, f.Sort)
	assert.Equal(t, bson.D{{Key: "_id", Value: 1}, {Key: "name", Value: 1}}, f.Projection)
	assert.Equal(t, int64(2), f.Skip)
	assert.Equal(t, int64(5), f.Limit)
}

func TestUpdate_ChainsDeltas(t *testing.T) {
	plan, err := translate.Update(queryir.Set(map[string]any{"name": "Ann"}).Inc("age", 5).Mul("age", 2))
	require.NoError(t, err)

	got, err := NewCompiler().Update(users, plan)
	require.NoError(t, err)

	lit := func(v any) bson.D { return bson.D{{Key: "$literal", Value: v}} }
	want := mongo.Pipeline{{{Key: "$set", Value: bson.D{
		{Key: "name", Value: lit("Ann")},
		{Key: "age", Value: bson.D{{Key: "$multiply", Value: bson.A{
			bson.D{{Key: "$add", Value: bson.A{"$age", lit(5)}}},
			lit(2),
		}}}},
	}}}}
	assert.Equal(t, want, got)

	_, err = NewCompiler().Update(users, translate.UpdatePlan{})
	assert.EqualError(t, err, "Update options are required")
}

func TestPipeline_Group(t *testing.T) {
	plan, err := pipeline.Build([]pipeline.Stage{
		pipeline.Where{Filter: queryir.Where("age", operator.OpGT, 20)},
		pipeline.Group{By: []string{"profile.city"}, Functions: []pipeline.Aggregate{
			{Func: operator.Count, Alias: "n"},
			{Func: operator.Avg, Field: "age", Alias: "avg"},
		}},
		pipeline.Order{Sorts: []queryir.Sort{queryir.Desc("n")}},
		pipeline.Limit{N: 3},
	}, nil)
	require.NoError(t, err)

	got, err := NewCompiler().Pipeline(users, plan)
	require.NoError(t, err)

	want := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: "age", Value: bson.D{{Key: "$gt", Value: 20}}}}}},
		{{Key: "$sort", Value: bson.D{{Key: "_id", Value: 1}}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: bson.D{{Key: "g0", Value: "$profile.city"}}},
			{Key: "n", Value: bson.D{{Key: "$sum", Value: 1}}},
			{Key: "avg", Value: bson.D{{Key: "$avg", Value: "$age"}}},
		}}},
		{{Key: "$project", Value: bson.D{
			{Key: "_id", Value: 0},
			{Key: "profile.city", Value: "$_id.g0"},
			{Key: "n", Value: 1},
			{Key: "avg", Value: 1},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "n", Value: -1}}}},
		{{Key: "$limit", Value: int64(3)}},
	}
	assert.Equal(t, want, got)
}

func TestPipeline_ProjectDropsKeyLast(t *testing.T) {
	plan, err := pipeline.Build([]pipeline.Stage{
		pipeline.Project{Computed: []pipeline.Computed{{
			Alias:      "label",
			Type:       operator.KindConditional,
			Expression: expr.NewCase().When(expr.Field("age"), operator.CmpLT, 18).Then("minor").Else("adult"),
		}}},
	}, nil)
	require.NoError(t, err)

	got, err := NewCompiler().Pipeline(users, plan)
	require.NoError(t, err)
	require.Len(t, got, 3)

	lit := func(v any) bson.D { return bson.D{{Key: "$literal", Value: v}} }
	assert.Equal(t, bson.D{{Key: "$project", Value: bson.D{{Key: "label", Value: bson.D{{Key: "$switch", Value: bson.D{
		{Key: "branches", Value: bson.A{bson.D{
			{Key: "case", Value: bson.D{{Key: "$lt", Value: bson.A{"$age", lit(18)}}}},
			{Key: "then", Value: lit("minor")},
		}}},
		{Key: "default", Value: lit("adult")},
	}}}}}}}, got[0])
	assert.Equal(t, bson.D{{Key: "$sort", Value: bson.D{{Key: "_id", Value: 1}}}}, got[1])
	assert.Equal(t, bson.D{{Key: "$project", Value: bson.D{{Key: "_id", Value: 0}}}}, got[2])
}

func TestExpressions_Date(t *testing.T) {
	now := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)
	c := NewCompiler(WithClock(func() time.Time { return now }))
	exprs := c.exprs(users)

	diff, err := exprs.Compile(expr.NewDate(expr.DateConfig{Func: operator.DateDiff, Field: "created_at", Unit: operator.UnitDay}))
	require.NoError(t, err)
	assert.Equal(t, bson.D{{Key: "$dateDiff", Value: bson.D{
		{Key: "startDate", Value: "$created_at"},
		{Key: "endDate", Value: now},
		{Key: "unit", Value: "day"},
	}}}, diff)

	dow, err := exprs.Compile(expr.NewDate(expr.DateConfig{Func: operator.DateExtract, Part: operator.PartDayOfWeek, Field: "created_at"}))
	require.NoError(t, err)
	assert.Equal(t, bson.D{{Key: "$subtract", Value: bson.A{bson.D{{Key: "$dayOfWeek", Value: "$created_at"}}, 1}}}, dow)

	assert.Equal(t, "%Y-%m-%d %H:%M 100%%", dateFormat("YYYY-MM-DD HH:mm 100%"))
}

func TestAggregateAndDistinct(t *testing.T) {
	c := NewCompiler()

	agg, err := c.Aggregate(users, nil, []backend.Reducer{{Func: operator.Count, Field: "email", Alias: "n"}})
	require.NoError(t, err)
	require.Len(t, agg, 4)
	assert.Equal(t, bson.D{{Key: "$group", Value: bson.D{
		{Key: "_id", Value: nil},
		{Key: "n", Value: bson.D{{Key: "$sum", Value: bson.D{{Key: "$cond", Value: bson.A{
			bson.D{{Key: "$eq", Value: bson.A{bson.D{{Key: "$ifNull", Value: bson.A{"$email", nil}}}, nil}}},
			0, 1,
		}}}}}},
	}}}, agg[2])

	_, err = c.Aggregate(users, nil, []backend.Reducer{{Func: "MEDIAN", Field: "age", Alias: "m"}})
	assert.EqualError(t, err, "Unsupported function: MEDIAN")

	d, err := c.Distinct(users, "role", nil)
	require.NoError(t, err)
	assert.Equal(t, bson.D{{Key: "$group", Value: bson.D{{Key: "_id", Value: "$role"}}}}, d[1])
}
