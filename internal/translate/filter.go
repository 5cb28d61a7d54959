package translate

import (
	"github.com/roach88/storekit/internal/errs"
	"github.com/roach88/storekit/internal/operator"
	"github.com/roach88/storekit/internal/queryir"
)

// Filters is the emission table for where clauses.
type Filters[F any] struct {
	True  func() F
	False func() F

	// Equal emits path = v; a nil v must emit an IS NULL test.
	Equal func(path []string, v any) F

	// Ops maps every field operator to its primitive. Operands reach the
	// primitive already shape-checked by queryir.Validate.
	Ops map[operator.FindOperator]func(path []string, operand any) (F, error)

	And func(children []F) F
	Or  func(children []F) F
}

// Translator turns portable filter trees into backend filters.
type Translator[F any] struct {
	f Filters[F]
}

// NewTranslator creates a Translator over the given table.
func NewTranslator[F any](f Filters[F]) *Translator[F] {
	return &Translator[F]{f: f}
}

// Where validates and translates a filter. A nil filter matches
// everything. No clause is ever dropped: every node either emits a
// fragment or fails.
func (t *Translator[F]) Where(f queryir.Filter) (F, error) {
	var zero F
	if err := queryir.Validate(f); err != nil {
		return zero, err
	}
	if f == nil {
		return t.f.True(), nil
	}
	return t.translate(f, nil)
}

func (t *Translator[F]) translate(f queryir.Filter, prefix []string) (F, error) {
	var zero F
	switch n := f.(type) {
	case queryir.Leaf:
		return t.f.Equal(queryir.JoinPath(prefix, n.Field), n.Value), nil
	case *queryir.Leaf:
		return t.translate(*n, prefix)

	case queryir.Cond:
		return t.operator(n, prefix)
	case *queryir.Cond:
		return t.operator(*n, prefix)

	case queryir.Combinator:
		return t.combine(n, prefix)
	case *queryir.Combinator:
		return t.combine(*n, prefix)

	case queryir.Scope:
		return t.translate(n.Filter, queryir.JoinPath(prefix, n.Field))
	case *queryir.Scope:
		return t.translate(n.Filter, queryir.JoinPath(prefix, n.Field))
	}
	return zero, errs.Validation("unknown filter node %T", f)
}

func (t *Translator[F]) operator(c queryir.Cond, prefix []string) (F, error) {
	var zero F
	emit, ok := t.f.Ops[c.Op]
	if !ok || c.Op.Logical() {
		return zero, errs.UnsupportedOperator(c.Op)
	}
	return emit(queryir.JoinPath(prefix, c.Field), c.Operand)
}

func (t *Translator[F]) combine(c queryir.Combinator, prefix []string) (F, error) {
	var zero F
	if len(c.Children) == 0 {
		if c.Kind == operator.OpOr {
			return t.f.False(), nil
		}
		return t.f.True(), nil
	}
	parts := make([]F, 0, len(c.Children))
	for _, child := range c.Children {
		p, err := t.translate(child, prefix)
		if err != nil {
			return zero, err
		}
		parts = append(parts, p)
	}
	switch c.Kind {
	case operator.OpAnd:
		return t.f.And(parts), nil
	case operator.OpOr:
		return t.f.Or(parts), nil
	}
	return zero, errs.UnsupportedOperator(c.Kind)
}
