package querymongo

import (
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/roach88/storekit/internal/backend"
	"github.com/roach88/storekit/internal/pipeline"
	"github.com/roach88/storekit/internal/queryir"
)

// Pipeline compiles a validated plan to an aggregation pipeline.
//
// $group keys go into _id as g0, g1, ... and are then projected back to
// their dotted paths, so grouped output nests like {profile: {city}}.
// Grouped output without $order is sorted by the group keys; ungrouped
// output always ends its sort with _id.
func (c *Compiler) Pipeline(m backend.Model, plan pipeline.Plan) (mongo.Pipeline, error) {
	var out mongo.Pipeline
	if plan.Where != nil {
		match, err := c.Filter(m, plan.Where)
		if err != nil {
			return nil, err
		}
		out = append(out, bson.D{{Key: "$match", Value: match}})
	}

	if g := plan.Group; g != nil {
		stages, err := c.group(m, g)
		if err != nil {
			return nil, err
		}
		out = append(out, stages...)
	}

	dropKey := false
	if p := plan.Project; p != nil {
		proj, keepKey, err := c.project(m, p, plan.Grouped())
		if err != nil {
			return nil, err
		}
		out = append(out, bson.D{{Key: "$project", Value: proj}})
		dropKey = !plan.Grouped() && !keepKey
	}

	sort, err := c.pipelineSort(m, plan)
	if err != nil {
		return nil, err
	}
	if len(sort) > 0 {
		out = append(out, bson.D{{Key: "$sort", Value: sort}})
	}
	if plan.Skip > 0 {
		out = append(out, bson.D{{Key: "$skip", Value: int64(plan.Skip)}})
	}
	if plan.Limit > 0 {
		out = append(out, bson.D{{Key: "$limit", Value: int64(plan.Limit)}})
	}
	if dropKey {
		out = append(out, bson.D{{Key: "$project", Value: bson.D{{Key: KeyField, Value: 0}}}})
	}
	return out, nil
}

func groupKey(i int) string {
	return fmt.Sprintf("g%d", i)
}

func (c *Compiler) group(m backend.Model, g *pipeline.Group) (mongo.Pipeline, error) {
	key := m.KeyColumn()

	var id any
	if len(g.By) > 0 {
		keys := make(bson.D, len(g.By))
		for i, by := range g.By {
			keys[i] = bson.E{Key: groupKey(i), Value: "$" + fieldPath(key, queryir.Path(by))}
		}
		id = keys
	}

	acc := bson.D{{Key: KeyField, Value: id}}
	reshape := bson.D{{Key: KeyField, Value: 0}}
	for i, by := range g.By {
		reshape = append(reshape, bson.E{Key: by, Value: "$" + KeyField + "." + groupKey(i)})
	}
	for _, fn := range g.Functions {
		var field any
		if fn.Field != "" {
			field = "$" + fieldPath(key, queryir.Path(fn.Field))
		}
		a, err := accumulator(fn.Func, field, fn.Field != "")
		if err != nil {
			return nil, err
		}
		acc = append(acc, bson.E{Key: fn.Alias, Value: a})
		reshape = append(reshape, bson.E{Key: fn.Alias, Value: 1})
	}

	// FIRST, LAST and ARRAY see documents in key order.
	return mongo.Pipeline{
		{{Key: "$sort", Value: bson.D{{Key: KeyField, Value: 1}}}},
		{{Key: "$group", Value: acc}},
		{{Key: "$project", Value: reshape}},
	}, nil
}

// project renders a $project document. Ungrouped projections keep _id
// for the tiebreak sort; keepKey reports whether the caller asked for it.
func (c *Compiler) project(m backend.Model, p *pipeline.Project, grouped bool) (bson.D, bool, error) {
	key := m.KeyColumn()
	out := bson.D{}
	keepKey := false
	for _, f := range p.Fields {
		path := f
		if !grouped {
			path = fieldPath(key, queryir.Path(f))
		}
		if path == KeyField {
			keepKey = true
		}
		out = append(out, bson.E{Key: path, Value: 1})
	}

	exprs := c.exprs(m)
	for _, cf := range p.Computed {
		e, err := exprs.Compile(cf.Expression)
		if err != nil {
			return nil, false, fmt.Errorf("compile computed field %q: %w", cf.Alias, err)
		}
		out = append(out, bson.E{Key: cf.Alias, Value: e})
	}
	return out, keepKey, nil
}

func (c *Compiler) pipelineSort(m backend.Model, plan pipeline.Plan) (bson.D, error) {
	if !plan.Grouped() {
		return c.Sort(m, plan.Order)
	}

	sorts := plan.Order
	if len(sorts) == 0 {
		for _, by := range plan.Group.By {
			sorts = append(sorts, queryir.Asc(by))
		}
	}
	out := make(bson.D, 0, len(sorts))
	for _, s := range sorts {
		dir, err := direction(s)
		if err != nil {
			return nil, err
		}
		out = append(out, bson.E{Key: s.Field, Value: dir})
	}
	return out, nil
}
