package querymongo

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/roach88/storekit/internal/backend"
	"github.com/roach88/storekit/internal/errs"
	"github.com/roach88/storekit/internal/operator"
	"github.com/roach88/storekit/internal/queryir"
	"github.com/roach88/storekit/internal/translate"
)

// Compiler compiles portable queries for one model key convention at a
// time; every method takes the model.
type Compiler struct {
	now func() time.Time
}

// Option configures a Compiler.
type Option func(*Compiler)

// WithClock sets the source of "now" for date DIFF expressions.
func WithClock(now func() time.Time) Option {
	return func(c *Compiler) { c.now = now }
}

// NewCompiler creates a Compiler.
func NewCompiler(opts ...Option) *Compiler {
	c := &Compiler{now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Compiler) exprs(m backend.Model) *translate.Compiler[any] {
	return translate.NewCompiler(primitives(m.KeyColumn()), translate.WithClock(c.now))
}

// Filter compiles a filter to a query document. A nil filter matches
// everything.
func (c *Compiler) Filter(m backend.Model, f queryir.Filter) (bson.D, error) {
	d, err := translate.NewTranslator(filters(m.KeyColumn())).Where(f)
	if err != nil {
		return nil, fmt.Errorf("compile filter: %w", err)
	}
	return d, nil
}

// Sort renders sorts followed by the _id tiebreaker.
func (c *Compiler) Sort(m backend.Model, sorts []queryir.Sort) (bson.D, error) {
	out := make(bson.D, 0, len(sorts)+1)
	keyed := false
	for _, s := range sorts {
		dir, err := direction(s)
		if err != nil {
			return nil, err
		}
		f := fieldPath(m.KeyColumn(), queryir.Path(s.Field))
		out = append(out, bson.E{Key: f, Value: dir})
		if f == KeyField {
			keyed = true
		}
	}
	if !keyed {
		out = append(out, bson.E{Key: KeyField, Value: 1})
	}
	return out, nil
}

func direction(s queryir.Sort) (int, error) {
	switch s.Direction {
	case operator.Asc, "":
		return 1, nil
	case operator.Desc:
		return -1, nil
	}
	return 0, errs.Validation("sort direction for %q must be asc or desc", s.Field)
}

// Projection lists the fields to return; the key is always returned.
// Nil means every field.
func (c *Compiler) Projection(m backend.Model, fields []string) bson.D {
	if len(fields) == 0 {
		return nil
	}
	out := bson.D{{Key: KeyField, Value: 1}}
	seen := map[string]bool{KeyField: true}
	for _, f := range fields {
		p := fieldPath(m.KeyColumn(), queryir.Path(f))
		if !seen[p] {
			seen[p] = true
			out = append(out, bson.E{Key: p, Value: 1})
		}
	}
	return out
}

// Find is a compiled find query.
type Find struct {
	Filter     bson.D
	Sort       bson.D
	Projection bson.D
	Skip       int64
	Limit      int64
}

// Find compiles a find query.
func (c *Compiler) Find(m backend.Model, q backend.Query) (Find, error) {
	filter, err := c.Filter(m, q.Filter)
	if err != nil {
		return Find{}, err
	}
	sort, err := c.Sort(m, q.Order)
	if err != nil {
		return Find{}, err
	}
	var fields []string
	if len(q.Select) > 0 {
		fields = append(append(fields, q.Select...), q.Relations...)
	}
	return Find{
		Filter:     filter,
		Sort:       sort,
		Projection: c.Projection(m, fields),
		Skip:       int64(q.Skip),
		Limit:      int64(q.Take),
	}, nil
}

// Update compiles an update plan to an update pipeline. Assignments and
// the deltas on one field chain into a single $set expression, so
// several deltas on one field apply in order.
func (c *Compiler) Update(m backend.Model, plan translate.UpdatePlan) (mongo.Pipeline, error) {
	if plan.IsEmpty() {
		return nil, errs.Validation(errs.MsgUpdateRequired)
	}
	exprs := c.exprs(m)
	set := bson.D{}
	for _, cu := range plan.Columns() {
		v, err := exprs.Column(cu)
		if err != nil {
			return nil, err
		}
		set = append(set, bson.E{Key: fieldPath(m.KeyColumn(), queryir.Path(cu.Field)), Value: v})
	}
	return mongo.Pipeline{{{Key: "$set", Value: set}}}, nil
}

// accumulator renders one reducer as a $group accumulator.
func accumulator(fn operator.AggregateFunction, field any, hasField bool) (bson.D, error) {
	switch fn {
	case operator.Count:
		if !hasField {
			return op("$sum", 1), nil
		}
		isNull := op("$eq", op("$ifNull", field, nil), nil)
		return op("$sum", op("$cond", isNull, 0, 1)), nil
	case operator.Sum:
		return op("$sum", field), nil
	case operator.Avg:
		return op("$avg", field), nil
	case operator.Min:
		return op("$min", field), nil
	case operator.Max:
		return op("$max", field), nil
	case operator.First:
		return op("$first", field), nil
	case operator.Last:
		return op("$last", field), nil
	case operator.Array:
		return op("$push", field), nil
	}
	return nil, errs.UnsupportedFunction(fmt.Sprint(fn))
}

// Aggregate compiles reducers over all matching documents into a pipeline
// producing at most one document. No document means no rows matched.
func (c *Compiler) Aggregate(m backend.Model, filter queryir.Filter, reducers []backend.Reducer) (mongo.Pipeline, error) {
	if len(reducers) == 0 {
		return nil, errs.Validation("aggregate requires at least one function")
	}
	group := bson.D{{Key: KeyField, Value: nil}}
	for _, r := range reducers {
		var field any
		if r.Field != "" {
			field = "$" + fieldPath(m.KeyColumn(), queryir.Path(r.Field))
		}
		acc, err := accumulator(r.Func, field, r.Field != "")
		if err != nil {
			return nil, err
		}
		group = append(group, bson.E{Key: r.Alias, Value: acc})
	}
	match, err := c.Filter(m, filter)
	if err != nil {
		return nil, err
	}
	return mongo.Pipeline{
		{{Key: "$match", Value: match}},
		{{Key: "$sort", Value: bson.D{{Key: KeyField, Value: 1}}}},
		{{Key: "$group", Value: group}},
		{{Key: "$project", Value: bson.D{{Key: KeyField, Value: 0}}}},
	}, nil
}

// Distinct compiles the sorted distinct non-null values of one field. Each
// output document holds the value in _id.
func (c *Compiler) Distinct(m backend.Model, field string, filter queryir.Filter) (mongo.Pipeline, error) {
	if field == "" {
		return nil, errs.Validation("distinct requires a field")
	}
	match, err := c.Filter(m, queryir.Conjoin(filter, queryir.Where(field, operator.OpNotNull, nil)))
	if err != nil {
		return nil, err
	}
	path := "$" + fieldPath(m.KeyColumn(), queryir.Path(field))
	return mongo.Pipeline{
		{{Key: "$match", Value: match}},
		{{Key: "$group", Value: bson.D{{Key: KeyField, Value: path}}}},
		{{Key: "$sort", Value: bson.D{{Key: KeyField, Value: 1}}}},
	}, nil
}
