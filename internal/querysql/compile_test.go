package querysql

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/storekit/internal/backend"
	"github.com/roach88/storekit/internal/errs"
	"github.com/roach88/storekit/internal/expr"
	"github.com/roach88/storekit/internal/operator"
	"github.com/roach88/storekit/internal/pipeline"
	"github.com/roach88/storekit/internal/queryir"
	"github.com/roach88/storekit/internal/translate"
)

var users = backend.Model{Name: "User", Table: "users", Key: "id"}

var dialects = []Dialect{SQLite{}, Postgres{}, MySQL{}}

func render(st Statement) []byte {
	var sb strings.Builder
	sb.WriteString(st.SQL)
	sb.WriteString("\n")
	for i, a := range st.Args {
		fmt.Fprintf(&sb, "$%d = %#v\n", i+1, a)
	}
	if len(st.JSON) > 0 {
		fmt.Fprintf(&sb, "json: %s\n", strings.Join(st.JSON, ", "))
	}
	return []byte(sb.String())
}

func golden(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func TestCompile_Golden(t *testing.T) {
	filter := queryir.And(
		queryir.Eq("status", "active"),
		queryir.Where("age", operator.OpGTE, 18),
		queryir.Where("name", operator.OpILike, "an"),
		queryir.Where("profile.city", operator.OpIn, []any{"Oslo", "Bergen"}),
	)

	update, err := translate.Update(queryir.Set(map[string]any{"name": "Ann"}).Inc("age", 5).Mul("age", 2))
	require.NoError(t, err)

	plan, err := pipeline.Build([]pipeline.Stage{
		pipeline.Where{Filter: queryir.Where("age", operator.OpGT, 20)},
		pipeline.Group{
			By: []string{"age", "profile.city"},
			Functions: []pipeline.Aggregate{
				{Func: operator.Count, Field: "id", Alias: "count"},
				{Func: operator.Sum, Field: "score", Alias: "total"},
				{Func: operator.Array, Field: "name", Alias: "names"},
			},
		},
		pipeline.Order{Sorts: []queryir.Sort{queryir.Desc("count")}},
		pipeline.Limit{N: 10},
	}, nil)
	require.NoError(t, err)

	for _, d := range dialects {
		c := NewCompiler(d)

		t.Run(d.Name()+"/select", func(t *testing.T) {
			st, err := c.Select(users, backend.Query{
				Filter: filter,
				Order:  []queryir.Sort{queryir.Desc("age")},
				Skip:   10,
				Take:   5,
			})
			require.NoError(t, err)
			golden(t).Assert(t, d.Name()+"_select_filter", render(st))
		})

		t.Run(d.Name()+"/update", func(t *testing.T) {
			st, err := c.UpdateByKeys(users, update, []any{"k1", "k2"})
			require.NoError(t, err)
			golden(t).Assert(t, d.Name()+"_update_chain", render(st))
		})

		t.Run(d.Name()+"/pipeline", func(t *testing.T) {
			st, err := c.Pipeline(users, plan)
			require.NoError(t, err)
			golden(t).Assert(t, d.Name()+"_group_pipeline", render(st))
		})
	}
}

func TestCompile_ValuesNeverInterpolated(t *testing.T) {
	evil := "x'; DROP TABLE users; --"
	for _, d := range dialects {
		t.Run(d.Name(), func(t *testing.T) {
			c := NewCompiler(d)
			st, err := c.Select(users, backend.Query{Filter: queryir.Or(
				queryir.Eq("name", evil),
				queryir.Where("name", operator.OpStartsWith, evil),
				queryir.Where("bio", operator.OpMatch, evil),
			)})
			require.NoError(t, err)
			assert.NotContains(t, st.SQL, "DROP")
			assert.Contains(t, st.SQL, "ORDER BY")
		})
	}
}

func TestFilters_SQLite(t *testing.T) {
	c := NewCompiler(SQLite{})

	tests := []struct {
		name     string
		filter   queryir.Filter
		wantSQL  string
		wantArgs []any
	}{
		{"null leaf", queryir.Eq("deleted_at", nil), "`deleted_at` IS NULL", nil},
		{"ne keeps nulls", queryir.Where("role", operator.OpNE, "admin"), "(`role` <> ? OR `role` IS NULL)", []any{"admin"}},
		{"nin", queryir.Where("role", operator.OpNotIn, []string{"a"}), "(`role` NOT IN (?) OR `role` IS NULL)", []any{"a"}},
		{"empty in", queryir.Where("role", operator.OpIn, []any{}), `1 = 0`, nil},
		{"between", queryir.Between("age", 18, 30), "`age` BETWEEN ? AND ?", []any{18, 30}},
		{"not between", queryir.Where("age", operator.OpNotBetween, []any{18, 30}), "(`age` < ? OR `age` > ?)", []any{18, 30}},
		{"like is case sensitive", queryir.Where("name", operator.OpLike, "a*b"), "`name` GLOB ?", []any{"*a[*]b*"}},
		{"substring", queryir.Where("name", operator.OpSubstring, "nn"), "`name` GLOB ?", []any{"*nn*"}},
		{"ilike escapes", queryir.Where("name", operator.OpILike, "50%_off"), "LOWER(`name`) LIKE LOWER(?) ESCAPE '\\'", []any{`%50\%\_off%`}},
		{"startswith", queryir.Where("name", operator.OpStartsWith, "An"), "`name` GLOB ?", []any{"An*"}},
		{"not endswith", queryir.Where("name", operator.OpNotEndsWith, "n"), "(`name` IS NULL OR NOT (`name` GLOB ?))", []any{"*n"}},
		{"match", queryir.Where("name", operator.OpMatch, "^A.+"), "`name` REGEXP ?", []any{"^A.+"}},
		{"any", queryir.Where("tags", operator.OpAny, "go"), "EXISTS (SELECT 1 FROM json_each(`tags`) WHERE json_each.value IN (?))", []any{"go"}},
		{"array contains", queryir.Where("tags", operator.OpArrayContains, []any{"go", "sql"}), "EXISTS (SELECT 1 FROM json_each(`tags`) WHERE json_each.value IN (?, ?))", []any{"go", "sql"}},
		{"size", queryir.Where("tags", operator.OpSize, 2), "json_array_length(`tags`) = ?", []any{2}},
		{"not null", queryir.Where("email", operator.OpNotNull, nil), "`email` IS NOT NULL", nil},
		{"nested scope", queryir.Nested("profile", queryir.Nested("address", queryir.Eq("city", "Oslo"))), "json_extract(`profile`, ?) = ?", []any{"$.address.city", "Oslo"}},
		{"or of one", queryir.Or(queryir.Eq("a", 1)), "`a` = ?", []any{1}},
		{"empty and", queryir.And(), `1 = 1`, nil},
		{"empty or", queryir.Or(), `1 = 0`, nil},
		{"bool", queryir.Eq("is_deleted", false), "`is_deleted` = ?", []any{false}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := c.Where(tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.wantSQL, f.SQL)
			assert.Equal(t, tt.wantArgs, f.Args)
		})
	}
}

func TestCompile_UnsupportedOperator(t *testing.T) {
	c := NewCompiler(SQLite{})
	_, err := c.Select(users, backend.Query{Filter: queryir.Where("a", operator.FindOperator("XOR"), 1)})
	require.Error(t, err)
	assert.True(t, errs.IsValidation(err))
	assert.Contains(t, err.Error(), "Unsupported operator: XOR")
}

func TestCompile_SelectProjection(t *testing.T) {
	c := NewCompiler(SQLite{})
	st, err := c.Select(users, backend.Query{Select: []string{"id", "profile.city"}, Relations: []string{"profile.city", "posts"}})
	require.NoError(t, err)
	assert.Equal(t, "SELECT `id`, json_extract(`profile`, ?) AS `profile.city`, `posts` FROM `users` ORDER BY `id` ASC", st.SQL)
	assert.Equal(t, []any{"$.city"}, st.Args)
}

func TestCompile_KeysAndMutations(t *testing.T) {
	c := NewCompiler(Postgres{})

	st, err := c.SelectKeys(users, queryir.Eq("status", "x"), 1)
	require.NoError(t, err)
	assert.Equal(t, `SELECT "id" FROM "users" WHERE "status" = $1 ORDER BY "id" ASC LIMIT 1`, st.SQL)

	st = c.SelectByKeys(users, []any{"a", "b"})
	assert.Equal(t, `SELECT * FROM "users" WHERE "id" IN ($1, $2) ORDER BY "id" ASC`, st.SQL)

	st, err = c.Insert(users, backend.Record{"name": "Ann", "id": "a", "tags": []any{"x"}})
	require.NoError(t, err)
	assert.Equal(t, `INSERT INTO "users" ("id", "name", "tags") VALUES ($1, $2, $3)`, st.SQL)
	assert.Equal(t, []any{"a", "Ann", `["x"]`}, st.Args, "slices are stored as JSON text")

	st = c.DeleteByKeys(users, []any{"a"})
	assert.Equal(t, `DELETE FROM "users" WHERE "id" IN ($1)`, st.SQL)

	assert.Equal(t, `DELETE FROM "users"`, c.Clear(users).SQL)

	_, err = c.UpdateByKeys(users, translate.UpdatePlan{}, []any{"a"})
	assert.EqualError(t, err, "Update options are required")

	plan, err := translate.Update(queryir.Set(map[string]any{"profile.city": "Oslo"}))
	require.NoError(t, err)
	_, err = c.UpdateByKeys(users, plan, []any{"a"})
	assert.True(t, errs.IsValidation(err))
}

func TestCompile_Aggregate(t *testing.T) {
	c := NewCompiler(SQLite{})
	st, err := c.Aggregate(users, queryir.Where("age", operator.OpGT, 1), []backend.Reducer{
		{Func: operator.Count, Alias: "count"},
		{Func: operator.Sum, Field: "age", Alias: "sum"},
		{Func: operator.Avg, Field: "age", Alias: "avg"},
		{Func: operator.Last, Field: "name", Alias: "last"},
	})
	require.NoError(t, err)
	assert.Equal(t, "SELECT COUNT(*) AS `count`, COALESCE(SUM(`age`), 0) AS `sum`, AVG(`age`) AS `avg`, json_extract(json_group_array(`name` ORDER BY `id`), '$[#-1]') AS `last` FROM `users` WHERE `age` > ?", st.SQL)
	assert.Equal(t, []any{1}, st.Args)
}

func TestCompile_Distinct(t *testing.T) {
	c := NewCompiler(MySQL{})
	st, err := c.Distinct(users, "role", nil)
	require.NoError(t, err)
	assert.Equal(t, "SELECT DISTINCT `role` AS `role` FROM `users` WHERE `role` IS NOT NULL ORDER BY 1", st.SQL)
}

func TestPipeline_ComputedFields(t *testing.T) {
	now := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)
	c := NewCompiler(SQLite{}, WithClock(func() time.Time { return now }))

	label := expr.NewCase().
		When(expr.Field("age"), operator.CmpLT, 18).Then("minor").
		Else("adult")
	plan, err := pipeline.Build([]pipeline.Stage{
		pipeline.Project{
			Fields: []string{"id"},
			Computed: []pipeline.Computed{
				{Alias: "label", Expression: label, Type: operator.KindConditional},
				{Alias: "shout", Expression: expr.NewString(operator.FnUpper, expr.Field("name")), Type: operator.KindString},
				{Alias: "days", Expression: expr.NewDate(expr.DateConfig{Func: operator.DateDiff, Field: "created_at", Unit: operator.UnitDay}), Type: operator.KindDate},
			},
		},
		pipeline.Order{Sorts: []queryir.Sort{queryir.Asc("label")}},
	}, nil)
	require.NoError(t, err)

	st, err := c.Pipeline(users, plan)
	require.NoError(t, err)
	assert.Equal(t, "SELECT `id`, CASE WHEN (`age` < ?) THEN ? ELSE ? END AS `label`, UPPER(`name`) AS `shout`, CAST((julianday(?) - julianday(`created_at`)) * 86400 / 86400 AS INTEGER) AS `days` FROM `users` ORDER BY `label` ASC, `id` ASC", st.SQL)
	assert.Equal(t, []any{18, "minor", "adult", "2024-01-31 00:00:00.000"}, st.Args)
}

func TestPipeline_GroupThenProject(t *testing.T) {
	c := NewCompiler(SQLite{})
	plan, err := pipeline.Build([]pipeline.Stage{
		pipeline.Group{Functions: []pipeline.Aggregate{
			{Func: operator.Sum, Field: "score", Alias: "total"},
			{Func: operator.Count, Alias: "n"},
		}},
		pipeline.Project{Computed: []pipeline.Computed{
			{Alias: "mean", Expression: expr.NewMath(expr.Field("total"), operator.Divide, expr.Field("n")), Type: operator.KindMath},
		}},
	}, nil)
	require.NoError(t, err)

	st, err := c.Pipeline(users, plan)
	require.NoError(t, err)
	assert.Equal(t, "SELECT (`total` / `n`) AS `mean` FROM (SELECT COALESCE(SUM(`score`), 0) AS `total`, COUNT(*) AS `n` FROM `users`) AS g", st.SQL)
	assert.Empty(t, st.Args)
}

func TestPipeline_Cache(t *testing.T) {
	cache, err := NewCache(8)
	require.NoError(t, err)
	c := NewCompiler(SQLite{}, WithCache(cache))

	plan, err := pipeline.Build([]pipeline.Stage{pipeline.Where{Filter: queryir.Eq("a", 1)}, pipeline.Limit{N: 3}}, nil)
	require.NoError(t, err)

	first, err := c.Pipeline(users, plan)
	require.NoError(t, err)
	assert.Equal(t, 1, cache.Len())

	second, err := c.Pipeline(users, plan)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, cache.Len())

	diff := expr.NewDate(expr.DateConfig{Func: operator.DateDiff, Field: "d", Unit: operator.UnitDay})
	clocked, err := pipeline.Build([]pipeline.Stage{pipeline.Project{Computed: []pipeline.Computed{{Alias: "x", Expression: diff, Type: operator.KindDate}}}}, nil)
	require.NoError(t, err)
	_, err = c.Pipeline(users, clocked)
	require.NoError(t, err)
	assert.Equal(t, 1, cache.Len(), "clock dependent plans are not cached")

	disabled, err := NewCache(0)
	require.NoError(t, err)
	assert.Nil(t, disabled)
}

func TestDateFormatting(t *testing.T) {
	col := Raw(`"d"`)
	assert.Equal(t, []any{"%Y-%m-%d %H:%M:%S"}, SQLite{}.DateFormat(col, "YYYY-MM-DD HH:mm:ss").Args)
	assert.Equal(t, []any{`YYYY"/"MM`}, Postgres{}.DateFormat(col, "YYYY/MM").Args)
	assert.Equal(t, []any{"%d.%m %i%%"}, MySQL{}.DateFormat(col, "DD.MM mm%").Args)
}

func TestLookup(t *testing.T) {
	d, err := Lookup("postgresql")
	require.NoError(t, err)
	assert.Equal(t, "postgres", d.Name())

	_, err = Lookup("oracle")
	assert.Error(t, err)
}

func TestRebindDollar(t *testing.T) {
	assert.Equal(t, `a = $1 AND b LIKE $2 ESCAPE '\' AND c = '?' AND d = $3`, rebindDollar(`a = ? AND b LIKE ? ESCAPE '\' AND c = '?' AND d = ?`))
}
