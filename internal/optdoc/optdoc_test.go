package optdoc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/storekit/internal/errs"
	"github.com/roach88/storekit/internal/expr"
	"github.com/roach88/storekit/internal/operator"
	"github.com/roach88/storekit/internal/pipeline"
	"github.com/roach88/storekit/internal/queryir"
)

func TestReadFile_Find(t *testing.T) {
	d, err := ReadFile("testdata/find.yaml")
	require.NoError(t, err)

	assert.Equal(t, &Document{
		Entity:    "users",
		Operation: OpFindMany,
		Where: queryir.And(
			queryir.Where("age", operator.OpGTE, 18),
			queryir.Eq("status", "active"),
			queryir.Or(
				queryir.IsNull("email"),
				queryir.Nested("profile", queryir.Where("city", operator.OpILike, "osl")),
			),
		),
		Order:  []queryir.Sort{queryir.Desc("age"), queryir.Asc("name")},
		Select: []string{"id", "name"},
		Skip:   5,
		Limit:  10,
	}, d)
	assert.NoError(t, d.Validate())
	assert.Equal(t, "users", d.Model().Table)
}

func TestReadFile_Computed(t *testing.T) {
	d, err := ReadFile("testdata/computed.yaml")
	require.NoError(t, err)
	require.Len(t, d.Pipeline, 1)

	age := expr.Field("age")
	assert.Equal(t, pipeline.Project{
		Fields: []string{"id"},
		Computed: []pipeline.Computed{
			{Alias: "label", Type: operator.KindConditional, Expression: expr.NewCase().
				When(age, operator.CmpGTE, 18).Then("adult").
				When(age, operator.CmpGTE, 13).
				Else("child")},
			{Alias: "next", Type: operator.KindMath, Expression: expr.NewMath(expr.NewMath(age, operator.Add, 1), operator.Multiply, 2)},
			{Alias: "shout", Type: operator.KindString, Expression: expr.NewString(operator.FnUpper, expr.Field("name"))},
			{Alias: "days", Type: operator.KindDate, Expression: expr.NewDate(expr.DateConfig{Func: operator.DateDiff, Field: "created_at", Unit: operator.UnitDay})},
		},
	}, d.Pipeline[0])

	plan, err := d.Plan()
	require.NoError(t, err)
	assert.True(t, plan.UsesClock())
}

func TestReadFile_Group(t *testing.T) {
	d, err := ReadFile("testdata/group.yaml")
	require.NoError(t, err)
	require.NoError(t, d.Validate())

	plan, err := d.Plan()
	require.NoError(t, err)
	assert.Equal(t, queryir.Where("age", operator.OpGTE, 18), plan.Where)
	require.NotNil(t, plan.Group)
	assert.Equal(t, []string{"status"}, plan.Group.By)
	assert.Equal(t, []queryir.Sort{queryir.Desc("n")}, plan.Order)
	assert.Equal(t, 3, plan.Limit)
}

func TestReadFile_Update(t *testing.T) {
	d, err := ReadFile("testdata/update.yaml")
	require.NoError(t, err)
	require.NoError(t, d.Validate())

	assert.Equal(t, OpUpdateMany, d.Operation)
	assert.Equal(t, queryir.Eq("status", "pending"), d.Where)
	assert.Equal(t, queryir.Set(map[string]any{"status": "active"}).Inc("age", 5).Mul("age", 2), d.Update)
}

func TestReadFile_Missing(t *testing.T) {
	_, err := ReadFile("testdata/absent.yaml")
	assert.ErrorContains(t, err, "failed to read document")
}

func TestParse_JSON(t *testing.T) {
	d, err := Parse([]byte(`{"entity": "users", "operation": "count", "where": {"field": "age", "op": "BETWEEN", "value": [18, 30]}}`))
	require.NoError(t, err)
	assert.Equal(t, OpCount, d.Operation)
	assert.Equal(t, queryir.Where("age", operator.OpBetween, []any{18, 30}), d.Where)
}

func TestParse_Rejects(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"not a mapping", "- a\n- b\n", "top level must be a mapping"},
		{"bad yaml", "entity: [users\n", "invalid document"},
		{"unknown key", "entity: users\nwher: {field: a, eq: 1}\n", "invalid document"},
		{"unknown operation", "operation: upsert\n", "invalid document"},
		{"unknown operator", "where: {field: age, op: EQUALS, value: 1}\n", "invalid document"},
		{"negative skip", "skip: -1\n", "invalid document"},
		{"bad aggregate", "operation: aggregate\npipeline:\n  - group: {functions: [{func: MEDIAN, field: age}]}\n", "invalid document"},
		{"condition without operator", "where: {field: age}\n", `where: condition on "age" needs eq or op`},
		{"nested without where", "where: {or: [{nested: profile}]}\n", `where.or[0]: nested "profile" requires where`},
		{"two-key stage", "operation: aggregate\npipeline:\n  - {skip: 1, limit: 2}\n", "invalid document"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			require.Error(t, err)
			assert.True(t, errs.IsValidation(err), "got %v", err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"update without changes", "operation: updateMany\n", errs.MsgUpdateRequired},
		{"aggregate without pipeline", "operation: aggregate\n", "aggregate requires pipeline"},
		{"order before group", "operation: aggregate\npipeline:\n  - order: [{field: age}]\n  - group: {by: [age]}\n", "cannot follow"},
		{"sum without field", "operation: sum\n", "sum requires field"},
		{"between with one bound", "where: {field: age, op: BETWEEN, value: [1]}\n", "BETWEEN"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := Parse([]byte(tt.doc))
			require.NoError(t, err)
			err = d.Validate()
			require.Error(t, err)
			assert.True(t, errs.IsValidation(err), "got %v", err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
