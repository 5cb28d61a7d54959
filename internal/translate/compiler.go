// Package translate holds the backend-independent halves of query
// compilation: the expression compiler and the filter/update translator.
//
// Both are written once, generic over a backend fragment type F. A backend
// supplies a table of emission closures (Primitives for expressions,
// Filters for where clauses) and gets full traversal, validation and
// dispatch for free. The SQL dialects use F = querysql.Frag; MongoDB uses
// F = any (an aggregation expression or a bson.D).
//
// Everything here is synchronous and pure apart from the injected clock.
package translate

import (
	"time"

	"github.com/roach88/storekit/internal/errs"
	"github.com/roach88/storekit/internal/expr"
	"github.com/roach88/storekit/internal/operator"
	"github.com/roach88/storekit/internal/queryir"
)

// Primitives is the emission table for expressions.
type Primitives[F any] struct {
	// Literal emits a constant. It receives nil, strings, bools, numbers
	// and time.Time values.
	Literal func(v any) F

	// Column dereferences a field path.
	Column func(path []string) F

	Math map[operator.MathOperator]func(l, r F) F

	// String receives compiled arguments. SUBSTRING always receives at
	// least (value, start); a third argument is the length.
	String map[operator.StringFunction]func(args []F) (F, error)

	Date map[operator.DateFunction]func(DateArgs[F]) (F, error)

	Compare map[operator.CompareOperator]func(l, r F) F

	// Case emits an ordered case chain; the first true branch wins.
	Case func(branches []Branch[F], otherwise F) F
}

// DateArgs is the input to a date primitive.
type DateArgs[F any] struct {
	Field F
	Part  operator.DatePart
	Value any
	Unit  operator.DateUnit
	Now   time.Time
}

// Branch is one compiled when/then arm.
type Branch[F any] struct {
	When F
	Then F
}

// Compiler compiles expression trees with one Primitives table.
type Compiler[F any] struct {
	prims Primitives[F]
	now   func() time.Time
}

// Option configures a Compiler.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock sets the source of "now" for DIFF.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// NewCompiler creates a Compiler over the given primitive table.
func NewCompiler[F any](prims Primitives[F], opts ...Option) *Compiler[F] {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &Compiler[F]{prims: prims, now: o.now}
}

// Compile validates e and compiles it to a backend fragment.
func (c *Compiler[F]) Compile(e expr.Expression) (F, error) {
	var zero F
	if err := expr.Validate(e); err != nil {
		return zero, err
	}
	return c.compile(e)
}

// Resolve compiles one operand: literals pass through Literal, field
// references through Column and nested expressions recurse.
func (c *Compiler[F]) Resolve(o expr.Operand) (F, error) {
	switch v := o.(type) {
	case expr.FieldRef:
		return c.prims.Column(queryir.Path(v.Field)), nil
	case *expr.FieldRef:
		return c.prims.Column(queryir.Path(v.Field)), nil
	case expr.Expression:
		return c.compile(v)
	}
	if !expr.IsLiteral(o) {
		var zero F
		return zero, errs.Validation("unsupported operand type %T", o)
	}
	return c.prims.Literal(o), nil
}

func (c *Compiler[F]) compile(e expr.Expression) (F, error) {
	var zero F
	switch x := e.(type) {
	case expr.Math:
		return c.compileMath(x)
	case *expr.Math:
		return c.compileMath(*x)
	case expr.String:
		return c.compileString(x)
	case *expr.String:
		return c.compileString(*x)
	case expr.Date:
		return c.compileDate(x)
	case *expr.Date:
		return c.compileDate(*x)
	case expr.Conditional:
		return c.compileConditional(x)
	case *expr.Conditional:
		return c.compileConditional(*x)
	}
	return zero, errs.Validation("unknown expression type %T", e)
}

func (c *Compiler[F]) compileMath(m expr.Math) (F, error) {
	var zero F
	emit, ok := c.prims.Math[m.Op]
	if !ok {
		return zero, errs.UnsupportedOperator(m.Op)
	}
	l, err := c.Resolve(m.Left)
	if err != nil {
		return zero, err
	}
	r, err := c.Resolve(m.Right)
	if err != nil {
		return zero, err
	}
	return emit(l, r), nil
}

func (c *Compiler[F]) compileString(s expr.String) (F, error) {
	var zero F
	emit, ok := c.prims.String[s.Func]
	if !ok {
		return zero, errs.UnsupportedFunction(s.Func)
	}
	args := make([]F, 0, len(s.Args)+1)
	for _, a := range s.Args {
		f, err := c.Resolve(a)
		if err != nil {
			return zero, err
		}
		args = append(args, f)
	}
	if s.Func == operator.FnSubstring && len(args) == 1 {
		args = append(args, c.prims.Literal(0))
	}
	return emit(args)
}

func (c *Compiler[F]) compileDate(d expr.Date) (F, error) {
	var zero F
	emit, ok := c.prims.Date[d.Func]
	if !ok {
		return zero, errs.UnsupportedFunction(d.Func)
	}
	if d.Func == operator.DateExtract && d.Part == "" {
		return zero, errs.Validation("EXTRACT requires a date part")
	}
	return emit(DateArgs[F]{
		Field: c.prims.Column(queryir.Path(d.Field.Field)),
		Part:  d.Part,
		Value: d.Value,
		Unit:  d.Unit,
		Now:   c.now().UTC(),
	})
}

func (c *Compiler[F]) compileConditional(x expr.Conditional) (F, error) {
	var zero F
	branches := make([]Branch[F], 0, len(x.Cases))
	for _, cs := range x.Cases {
		when, err := c.Predicate(cs.When)
		if err != nil {
			return zero, err
		}
		var then F
		if cs.HasThen {
			then, err = c.Resolve(cs.Then)
			if err != nil {
				return zero, err
			}
		} else {
			then = c.prims.Literal(nil)
		}
		branches = append(branches, Branch[F]{When: when, Then: then})
	}
	otherwise, err := c.Resolve(x.Else)
	if err != nil {
		return zero, err
	}
	if len(branches) == 0 {
		return otherwise, nil
	}
	return c.prims.Case(branches, otherwise), nil
}

// Predicate compiles a conditional comparison.
func (c *Compiler[F]) Predicate(p expr.Predicate) (F, error) {
	var zero F
	emit, ok := c.prims.Compare[p.Op]
	if !ok {
		return zero, errs.UnsupportedOperator(p.Op)
	}
	l, err := c.Resolve(p.Left)
	if err != nil {
		return zero, err
	}
	r, err := c.Resolve(p.Right)
	if err != nil {
		return zero, err
	}
	return emit(l, r), nil
}
