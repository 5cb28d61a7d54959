package pipeline

import (
	"strings"

	"github.com/roach88/storekit/internal/errs"
	"github.com/roach88/storekit/internal/expr"
	"github.com/roach88/storekit/internal/operator"
	"github.com/roach88/storekit/internal/queryir"
)

// Build validates stages and folds them into a Plan.
//
// known lists the fields the entity declares. When non-empty, grouping on
// a field outside it is rejected; when empty the check is left to the
// backend.
func Build(stages []Stage, known []string) (Plan, error) {
	if len(stages) == 0 {
		return Plan{}, errs.Validation("pipeline is empty")
	}

	var plan Plan
	last := -1
	seen := make(map[string]bool)
	for i, s := range stages {
		if s == nil {
			return Plan{}, errs.Validation("pipeline stage %d is nil", i)
		}
		s = deref(s)
		if s.rank() < last {
			return Plan{}, errs.Validation("pipeline stage %s cannot follow %s", s.Name(), nameOfRank(last))
		}
		if _, ok := s.(Where); !ok && seen[s.Name()] {
			return Plan{}, errs.Validation("pipeline stage %s may appear only once", s.Name())
		}
		seen[s.Name()] = true
		last = s.rank()

		if err := plan.apply(s, known); err != nil {
			return Plan{}, err
		}
	}

	if err := plan.checkOutput(); err != nil {
		return Plan{}, err
	}
	return plan, nil
}

func deref(s Stage) Stage {
	switch x := s.(type) {
	case *Where:
		return *x
	case *Group:
		return *x
	case *Project:
		return *x
	case *Order:
		return *x
	case *Skip:
		return *x
	case *Limit:
		return *x
	}
	return s
}

func nameOfRank(r int) string {
	return [...]string{"$where", "$group", "$project", "$order", "$skip", "$limit"}[r]
}

func (p *Plan) apply(s Stage, known []string) error {
	switch st := s.(type) {
	case Where:
		if err := queryir.Validate(st.Filter); err != nil {
			return err
		}
		p.Where = queryir.Conjoin(p.Where, st.Filter)

	case Group:
		g, err := validateGroup(st, known)
		if err != nil {
			return err
		}
		p.Group = &g

	case Project:
		if err := validateProject(st); err != nil {
			return err
		}
		p.Project = &st

	case Order:
		if len(st.Sorts) == 0 {
			return errs.Validation("$order requires at least one field")
		}
		for _, o := range st.Sorts {
			if o.Field == "" {
				return errs.Validation("$order field name is empty")
			}
			if !o.Direction.Valid() {
				return errs.Validation("$order direction for %q must be asc or desc", o.Field)
			}
		}
		p.Order = append([]queryir.Sort(nil), st.Sorts...)

	case Skip:
		if st.N < 0 {
			return errs.Validation("$skip must be non-negative, got %d", st.N)
		}
		p.Skip = st.N

	case Limit:
		if st.N <= 0 {
			return errs.Validation("$limit must be positive, got %d", st.N)
		}
		p.Limit = st.N

	default:
		return errs.Validation("unknown pipeline stage %T", s)
	}
	return nil
}

func validateGroup(g Group, known []string) (Group, error) {
	if len(g.Functions) == 0 && len(g.By) == 0 {
		return g, errs.Validation("$group requires grouping fields or functions")
	}
	out := Group{By: g.By, Functions: make([]Aggregate, 0, len(g.Functions))}

	aliases := make(map[string]bool)
	for _, by := range g.By {
		if by == "" {
			return g, errs.Validation("$group field name is empty")
		}
		if len(known) > 0 && !declared(known, by) {
			return g, errs.Validation("$group field %q does not exist", by)
		}
		aliases[by] = true
	}
	for _, fn := range g.Functions {
		if !fn.Func.Valid() {
			return g, errs.UnsupportedFunction(fn.Func)
		}
		if fn.Field == "" && fn.Func != operator.Count {
			return g, errs.Validation("%s requires a field", fn.Func)
		}
		if fn.Field != "" && len(known) > 0 && !declared(known, fn.Field) {
			return g, errs.Validation("%s field %q does not exist", fn.Func, fn.Field)
		}
		if fn.Alias == "" {
			fn.Alias = strings.ToLower(string(fn.Func))
		}
		if aliases[fn.Alias] {
			return g, errs.Validation("$group output %q is defined twice", fn.Alias)
		}
		aliases[fn.Alias] = true
		out.Functions = append(out.Functions, fn)
	}
	return out, nil
}

func validateProject(p Project) error {
	if len(p.Fields) == 0 && len(p.Computed) == 0 {
		return errs.Validation("$project requires fields or computed fields")
	}
	names := make(map[string]bool)
	for _, f := range p.Fields {
		if f == "" {
			return errs.Validation("$project field name is empty")
		}
		names[f] = true
	}
	for _, c := range p.Computed {
		if c.Alias == "" {
			return errs.Validation("computed field alias is empty")
		}
		if names[c.Alias] {
			return errs.Validation("$project output %q is defined twice", c.Alias)
		}
		names[c.Alias] = true
		if !c.Type.Valid() {
			return errs.Validation("computed field %q has invalid type %q", c.Alias, c.Type)
		}
		if c.Expression == nil {
			return errs.Validation("computed field %q has no expression", c.Alias)
		}
		if c.Expression.Kind() != c.Type {
			return errs.Validation("computed field %q declares type %s but expression is %s", c.Alias, c.Type, c.Expression.Kind())
		}
		if err := expr.Validate(c.Expression); err != nil {
			return err
		}
	}
	return nil
}

// checkOutput verifies that stages after $group only reference columns
// the group produces.
func (p *Plan) checkOutput() error {
	if p.Group == nil {
		return nil
	}
	out := make(map[string]bool)
	for _, by := range p.Group.By {
		out[by] = true
	}
	for _, fn := range p.Group.Functions {
		out[fn.Alias] = true
	}
	if p.Project != nil {
		for _, f := range p.Project.Fields {
			if !out[f] {
				return errs.Validation("$project field %q is not produced by $group", f)
			}
		}
		projected := make(map[string]bool)
		for _, f := range p.Project.Fields {
			projected[f] = true
		}
		for _, c := range p.Project.Computed {
			projected[c.Alias] = true
		}
		out = projected
	}
	for _, o := range p.Order {
		if !out[o.Field] {
			return errs.Validation("$order field %q is not in the pipeline output", o.Field)
		}
	}
	return nil
}

func declared(known []string, field string) bool {
	root := queryir.Path(field)[0]
	for _, k := range known {
		if k == field || k == root {
			return true
		}
	}
	return false
}
