package queryir

import (
	"strings"

	"github.com/roach88/storekit/internal/errs"
	"github.com/roach88/storekit/internal/expr"
	"github.com/roach88/storekit/internal/operator"
)

// Validate checks a filter tree structurally.
//
// Every problem found is reported, joined into a single VALIDATION error.
// Unknown operators, and AND/OR used as a Cond operator, are reported as
// UnsupportedOperator so callers see the same message the translator
// would raise.
//
// A nil filter is valid and matches everything.
//
// Validate is a pure function with no side effects.
func Validate(f Filter) error {
	v := &validator{}
	v.validateFilter(f, "")
	return v.err()
}

// ValidateUpdate checks an update payload: fields must be named, delta
// operators known and delta amounts numeric.
func ValidateUpdate(u Update) error {
	v := &validator{}
	for field := range u.Set {
		if field == "" {
			v.add(errs.Validation("update field name is empty"))
		}
	}
	for _, d := range u.Deltas {
		if !d.Op.Valid() {
			v.add(errs.UnsupportedOperator(d.Op))
			continue
		}
		if d.Field == "" {
			v.add(errs.Validation("%s field name is empty", d.Op))
		}
		if !expr.IsNumber(d.Amount) {
			v.add(errs.Validation("%s %s requires a numeric amount", d.Op, d.Field))
		}
	}
	return v.err()
}

// validator accumulates problems during traversal.
type validator struct {
	problems []*errs.Error
}

func (v *validator) add(e *errs.Error) {
	v.problems = append(v.problems, e)
}

func (v *validator) err() error {
	switch len(v.problems) {
	case 0:
		return nil
	case 1:
		return v.problems[0]
	}
	msgs := make([]string, len(v.problems))
	for i, p := range v.problems {
		msgs[i] = p.Message
	}
	return errs.Validation("%s", strings.Join(msgs, "; "))
}

func (v *validator) validateFilter(f Filter, at string) {
	switch n := f.(type) {
	case nil:
		return
	case Leaf:
		v.requireField(n.Field, at)
	case *Leaf:
		v.validateFilter(*n, at)
	case Cond:
		v.validateCond(n, at)
	case *Cond:
		v.validateCond(*n, at)
	case Combinator:
		v.validateCombinator(n, at)
	case *Combinator:
		v.validateCombinator(*n, at)
	case Scope:
		v.requireField(n.Field, at)
		if n.Filter == nil {
			v.add(errs.Validation("nested filter on %q is empty", qualify(at, n.Field)))
			return
		}
		v.validateFilter(n.Filter, qualify(at, n.Field))
	case *Scope:
		v.validateFilter(*n, at)
	default:
		v.add(errs.Validation("unknown filter node %T", f))
	}
}

func (v *validator) validateCombinator(c Combinator, at string) {
	if c.Kind != operator.OpAnd && c.Kind != operator.OpOr {
		v.add(errs.UnsupportedOperator(c.Kind))
		return
	}
	for _, child := range c.Children {
		if child == nil {
			v.add(errs.Validation("%s contains a nil filter", c.Kind))
			continue
		}
		v.validateFilter(child, at)
	}
}

func (v *validator) validateCond(c Cond, at string) {
	v.requireField(c.Field, at)
	if !c.Op.Valid() || c.Op.Logical() {
		v.add(errs.UnsupportedOperator(c.Op))
		return
	}
	name := qualify(at, c.Field)

	switch c.Op {
	case operator.OpIn, operator.OpNotIn, operator.OpArrayContains:
		if _, ok := List(c.Operand); !ok {
			v.add(errs.Validation("%s on %q requires a list", c.Op, name))
		}
	case operator.OpBetween, operator.OpNotBetween:
		if l, ok := List(c.Operand); !ok || len(l) != 2 {
			v.add(errs.Validation("%s on %q requires [low, high]", c.Op, name))
		}
	case operator.OpSize:
		if n, ok := expr.ToFloat(c.Operand); !ok || n != float64(int64(n)) || n < 0 {
			v.add(errs.Validation("SIZE on %q requires a non-negative integer", name))
		}
	case operator.OpLike, operator.OpILike, operator.OpStartsWith, operator.OpNotStartsWith,
		operator.OpEndsWith, operator.OpNotEndsWith, operator.OpSubstring, operator.OpMatch:
		if _, ok := c.Operand.(string); !ok {
			v.add(errs.Validation("%s on %q requires a string", c.Op, name))
		}
	case operator.OpIsNull, operator.OpNotNull:
		// operand ignored
	default:
		if _, ok := List(c.Operand); ok {
			v.add(errs.Validation("%s on %q requires a single value", c.Op, name))
		}
	}
}

func (v *validator) requireField(field, at string) {
	if field == "" {
		if at == "" {
			v.add(errs.Validation("filter field name is empty"))
		} else {
			v.add(errs.Validation("filter field name is empty under %q", at))
		}
		return
	}
	for _, seg := range Path(field) {
		if seg == "" {
			v.add(errs.Validation("field path %q has an empty segment", field))
			return
		}
	}
}

func qualify(at, field string) string {
	if at == "" {
		return field
	}
	return at + "." + field
}
