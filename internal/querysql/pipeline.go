package querysql

import (
	"fmt"
	"strings"

	"github.com/roach88/storekit/internal/backend"
	"github.com/roach88/storekit/internal/operator"
	"github.com/roach88/storekit/internal/pipeline"
	"github.com/roach88/storekit/internal/queryir"
)

// Pipeline compiles a validated pipeline plan.
//
// Without $group the plan is a single SELECT. With $group the reduction
// runs in a derived table "g" whose columns are named by group key path
// and aggregate alias; projection, ordering and pagination apply on top.
// Grouped output without $order is ordered by the group keys.
func (c *Compiler) Pipeline(m backend.Model, plan pipeline.Plan) (Statement, error) {
	cacheable := c.cache != nil && !plan.UsesClock()
	if cacheable {
		if st, ok := c.cache.Get(c.d.Name(), m, plan); ok {
			return st, nil
		}
	}

	var st Statement
	var err error
	if plan.Grouped() {
		st, err = c.groupedPipeline(m, plan)
	} else {
		st, err = c.flatPipeline(m, plan)
	}
	if err != nil {
		return Statement{}, err
	}

	if cacheable {
		c.cache.Put(c.d.Name(), m, plan, st)
	}
	return st, nil
}

func (c *Compiler) flatPipeline(m backend.Model, plan pipeline.Plan) (Statement, error) {
	cols := Raw("*")
	aliases := make(map[string]bool)
	if p := plan.Project; p != nil {
		parts := make([]Frag, 0, len(p.Fields)+len(p.Computed))
		if len(p.Fields) > 0 {
			parts = append(parts, c.projection(append([]string(nil), p.Fields...)))
		}
		for _, f := range p.Fields {
			if strings.Contains(f, ".") {
				aliases[f] = true
			}
		}
		for _, cf := range p.Computed {
			e, err := c.exprs.Compile(cf.Expression)
			if err != nil {
				return Statement{}, fmt.Errorf("compile computed field %q: %w", cf.Alias, err)
			}
			parts = append(parts, Wrap("%s AS %s", e, c.ident(cf.Alias)))
			aliases[cf.Alias] = true
		}
		cols = Join(", ", parts)
	}

	where, err := c.whereClause(plan.Where)
	if err != nil {
		return Statement{}, err
	}
	order, err := c.orderBy(m, plan.Order, func(field string) Frag {
		if aliases[field] {
			return c.ident(field)
		}
		return c.column(field)
	})
	if err != nil {
		return Statement{}, err
	}
	f := Wrap("SELECT %s FROM %s%s%s", cols, c.table(m), where, order)
	f.SQL += c.page(plan.Limit, plan.Skip)
	return c.finish(f), nil
}

func (c *Compiler) groupedPipeline(m backend.Model, plan pipeline.Plan) (Statement, error) {
	g := plan.Group
	inner := make([]Frag, 0, len(g.By)+len(g.Functions))
	for _, by := range g.By {
		inner = append(inner, Wrap("%s AS %s", c.column(by), c.ident(by)))
	}
	var jsonCols []string
	for _, fn := range g.Functions {
		var col Frag
		if fn.Field != "" {
			col = c.column(fn.Field)
		}
		agg, err := aggregate(c.d, fn.Func, col, c.key(m), fn.Field != "")
		if err != nil {
			return Statement{}, err
		}
		inner = append(inner, Wrap("%s AS %s", agg, c.ident(fn.Alias)))
		if fn.Func == operator.Array {
			jsonCols = append(jsonCols, fn.Alias)
		}
	}

	where, err := c.whereClause(plan.Where)
	if err != nil {
		return Statement{}, err
	}
	sub := Wrap("SELECT %s FROM %s%s", Join(", ", inner), c.table(m), where)
	if len(g.By) > 0 {
		ordinals := make([]string, len(g.By))
		for i := range g.By {
			ordinals[i] = fmt.Sprintf("%d", i+1)
		}
		sub.SQL += " GROUP BY " + strings.Join(ordinals, ", ")
	}

	cols := Raw("*")
	if p := plan.Project; p != nil {
		parts := make([]Frag, 0, len(p.Fields)+len(p.Computed))
		for _, f := range p.Fields {
			parts = append(parts, c.ident(f))
		}
		for _, cf := range p.Computed {
			e, err := c.flat.Compile(cf.Expression)
			if err != nil {
				return Statement{}, fmt.Errorf("compile computed field %q: %w", cf.Alias, err)
			}
			parts = append(parts, Wrap("%s AS %s", e, c.ident(cf.Alias)))
		}
		cols = Join(", ", parts)
		jsonCols = keepProjected(jsonCols, p.Fields)
	}

	sorts := plan.Order
	if len(sorts) == 0 {
		for _, by := range g.By {
			sorts = append(sorts, queryir.Asc(by))
		}
	}
	order := Frag{}
	if len(sorts) > 0 {
		parts := make([]Frag, len(sorts))
		for i, s := range sorts {
			dir := "ASC"
			if s.Direction == operator.Desc {
				dir = "DESC"
			}
			parts[i] = Wrap("%s "+dir, c.ident(s.Field))
		}
		order = Wrap(" ORDER BY %s", Join(", ", parts))
	}

	f := Wrap("SELECT %s FROM (%s) AS g%s", cols, sub, order)
	f.SQL += c.page(plan.Limit, plan.Skip)
	return c.finish(f, jsonCols...), nil
}

func keepProjected(cols, fields []string) []string {
	keep := make(map[string]bool, len(fields))
	for _, f := range fields {
		keep[f] = true
	}
	var out []string
	for _, c := range cols {
		if keep[c] {
			out = append(out, c)
		}
	}
	return out
}
