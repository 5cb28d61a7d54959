package querysql

import (
	"fmt"

	"github.com/roach88/storekit/internal/errs"
	"github.com/roach88/storekit/internal/expr"
	"github.com/roach88/storekit/internal/operator"
	"github.com/roach88/storekit/internal/queryir"
	"github.com/roach88/storekit/internal/translate"
)

// columnFunc resolves a field path to SQL.
type columnFunc func(path []string) Frag

// tableColumns resolves paths against a base table: the first segment is
// the column, the rest a path inside its JSON value.
func tableColumns(d Dialect) columnFunc {
	return func(path []string) Frag {
		if len(path) == 1 {
			return Raw(d.Quote(path[0]))
		}
		return d.JSONPath(path[0], path[1:])
	}
}

// outputColumns resolves paths against a derived table whose columns are
// named by the full dotted path.
func outputColumns(d Dialect) columnFunc {
	return func(path []string) Frag {
		return Raw(d.Quote(joinDots(path)))
	}
}

func joinDots(path []string) string {
	out := path[0]
	for _, p := range path[1:] {
		out += "." + p
	}
	return out
}

func binary(op string) func(l, r Frag) Frag {
	return func(l, r Frag) Frag {
		return Wrap("(%s "+op+" %s)", l, r)
	}
}

func primitives(d Dialect, col columnFunc) translate.Primitives[Frag] {
	literal := func(v any) Frag {
		if v == nil {
			return Raw("NULL")
		}
		return Param(d.Value(v))
	}
	unary := func(name string) func([]Frag) (Frag, error) {
		return func(args []Frag) (Frag, error) {
			if len(args) != 1 {
				return Frag{}, errs.Validation("%s takes exactly one argument", name)
			}
			return Wrap(name+"(%s)", args[0]), nil
		}
	}

	return translate.Primitives[Frag]{
		Literal: literal,
		Column:  col,
		Math: map[operator.MathOperator]func(l, r Frag) Frag{
			operator.Add:      binary("+"),
			operator.Subtract: binary("-"),
			operator.Multiply: binary("*"),
			operator.Divide:   binary("/"),
			operator.Modulo:   binary("%%"),
		},
		String: map[operator.StringFunction]func([]Frag) (Frag, error){
			operator.FnConcat: func(args []Frag) (Frag, error) {
				return d.Concat(args), nil
			},
			operator.FnUpper: unary("UPPER"),
			operator.FnLower: unary("LOWER"),
			operator.FnLength: func(args []Frag) (Frag, error) {
				if len(args) != 1 {
					return Frag{}, errs.Validation("LENGTH takes exactly one argument")
				}
				return d.Length(args[0]), nil
			},
			operator.FnSubstring: func(args []Frag) (Frag, error) {
				if len(args) == 3 {
					return Wrap("SUBSTR(%s, %s + 1, %s)", args[0], args[1], args[2]), nil
				}
				return Wrap("SUBSTR(%s, %s + 1)", args[0], args[1]), nil
			},
		},
		Date: map[operator.DateFunction]func(translate.DateArgs[Frag]) (Frag, error){
			operator.DateExtract: func(a translate.DateArgs[Frag]) (Frag, error) {
				return d.Extract(a.Part, a.Field), nil
			},
			operator.DateAdd: func(a translate.DateArgs[Frag]) (Frag, error) {
				n, _ := expr.ToFloat(a.Value)
				return d.DateAdd(a.Field, n, a.Unit), nil
			},
			operator.DateSubtract: func(a translate.DateArgs[Frag]) (Frag, error) {
				n, _ := expr.ToFloat(a.Value)
				return d.DateAdd(a.Field, -n, a.Unit), nil
			},
			operator.DateDiff: func(a translate.DateArgs[Frag]) (Frag, error) {
				return d.DateDiff(a.Field, a.Now, a.Unit), nil
			},
			operator.DateFormat: func(a translate.DateArgs[Frag]) (Frag, error) {
				return d.DateFormat(a.Field, a.Value.(string)), nil
			},
		},
		Compare: map[operator.CompareOperator]func(l, r Frag) Frag{
			operator.CmpEQ:  binary("="),
			operator.CmpNE:  binary("<>"),
			operator.CmpGT:  binary(">"),
			operator.CmpGTE: binary(">="),
			operator.CmpLT:  binary("<"),
			operator.CmpLTE: binary("<="),
		},
		Case: func(branches []translate.Branch[Frag], otherwise Frag) Frag {
			parts := make([]Frag, 0, len(branches)+2)
			parts = append(parts, Raw("CASE"))
			for _, b := range branches {
				parts = append(parts, Wrap("WHEN %s THEN %s", b.When, b.Then))
			}
			parts = append(parts, Wrap("ELSE %s END", otherwise))
			return Join(" ", parts)
		},
	}
}

func filters(d Dialect, col columnFunc) translate.Filters[Frag] {
	value := func(v any) Frag { return Param(d.Value(v)) }
	compare := func(op string) func([]string, any) (Frag, error) {
		return func(path []string, operand any) (Frag, error) {
			return Wrap("%s "+op+" %s", col(path), value(operand)), nil
		}
	}
	like := func(mode LikeMode, fold, negate bool) func([]string, any) (Frag, error) {
		return func(path []string, operand any) (Frag, error) {
			c := col(path)
			f := d.Like(c, mode, operand.(string), fold)
			if negate {
				return Wrap("(%s IS NULL OR NOT (%s))", c, f), nil
			}
			return f, nil
		}
	}
	list := func(operand any) []any {
		l, _ := queryir.List(operand)
		out := make([]any, len(l))
		for i, v := range l {
			out[i] = d.Value(v)
		}
		return out
	}

	return translate.Filters[Frag]{
		True:  func() Frag { return Raw("1 = 1") },
		False: func() Frag { return Raw("1 = 0") },
		Equal: func(path []string, v any) Frag {
			if v == nil {
				return Wrap("%s IS NULL", col(path))
			}
			return Wrap("%s = %s", col(path), value(v))
		},
		Ops: map[operator.FindOperator]func([]string, any) (Frag, error){
			operator.OpLT:  compare("<"),
			operator.OpGT:  compare(">"),
			operator.OpLTE: compare("<="),
			operator.OpGTE: compare(">="),
			operator.OpNE: func(path []string, operand any) (Frag, error) {
				c := col(path)
				if operand == nil {
					return Wrap("%s IS NOT NULL", c), nil
				}
				return Wrap("(%s <> %s OR %s IS NULL)", c, value(operand), c), nil
			},
			operator.OpIn: func(path []string, operand any) (Frag, error) {
				vals := list(operand)
				if len(vals) == 0 {
					return Raw("1 = 0"), nil
				}
				return Wrap("%s IN (%s)", col(path), Params(vals)), nil
			},
			operator.OpNotIn: func(path []string, operand any) (Frag, error) {
				vals := list(operand)
				if len(vals) == 0 {
					return Raw("1 = 1"), nil
				}
				c := col(path)
				return Wrap("(%s NOT IN (%s) OR %s IS NULL)", c, Params(vals), c), nil
			},
			operator.OpAny: func(path []string, operand any) (Frag, error) {
				return d.ArrayHasAny(col(path), []any{d.Value(operand)}), nil
			},
			operator.OpArrayContains: func(path []string, operand any) (Frag, error) {
				vals := list(operand)
				if len(vals) == 0 {
					return Raw("1 = 0"), nil
				}
				return d.ArrayHasAny(col(path), vals), nil
			},
			operator.OpSize: func(path []string, operand any) (Frag, error) {
				return Wrap("%s = %s", d.ArrayLength(col(path)), Param(operand)), nil
			},
			operator.OpBetween: func(path []string, operand any) (Frag, error) {
				b := list(operand)
				return Wrap("%s BETWEEN %s AND %s", col(path), Param(b[0]), Param(b[1])), nil
			},
			operator.OpNotBetween: func(path []string, operand any) (Frag, error) {
				b := list(operand)
				c := col(path)
				return Wrap("(%s < %s OR %s > %s)", c, Param(b[0]), c, Param(b[1])), nil
			},
			operator.OpIsNull: func(path []string, _ any) (Frag, error) {
				return Wrap("%s IS NULL", col(path)), nil
			},
			operator.OpNotNull: func(path []string, _ any) (Frag, error) {
				return Wrap("%s IS NOT NULL", col(path)), nil
			},
			operator.OpLike:          like(Contains, false, false),
			operator.OpSubstring:     like(Contains, false, false),
			operator.OpILike:         like(Contains, true, false),
			operator.OpStartsWith:    like(Prefix, false, false),
			operator.OpNotStartsWith: like(Prefix, false, true),
			operator.OpEndsWith:      like(Suffix, false, false),
			operator.OpNotEndsWith:   like(Suffix, false, true),
			operator.OpMatch: func(path []string, operand any) (Frag, error) {
				return d.Regexp(col(path), operand.(string)), nil
			},
		},
		And: func(children []Frag) Frag {
			if len(children) == 1 {
				return children[0]
			}
			return Wrap("(%s)", Join(" AND ", children))
		},
		Or: func(children []Frag) Frag {
			if len(children) == 1 {
				return children[0]
			}
			return Wrap("(%s)", Join(" OR ", children))
		},
	}
}

// aggregate renders one reducer over col, ordered by key where the
// reducer is order sensitive.
func aggregate(d Dialect, fn operator.AggregateFunction, c, key Frag, hasField bool) (Frag, error) {
	switch fn {
	case operator.Count:
		if !hasField {
			return Raw("COUNT(*)"), nil
		}
		return Wrap("COUNT(%s)", c), nil
	case operator.Sum:
		return Wrap("COALESCE(SUM(%s), 0)", c), nil
	case operator.Avg:
		return Wrap("AVG(%s)", c), nil
	case operator.Min:
		return Wrap("MIN(%s)", c), nil
	case operator.Max:
		return Wrap("MAX(%s)", c), nil
	case operator.First:
		return d.GroupFirst(c, key), nil
	case operator.Last:
		return d.GroupLast(c, key), nil
	case operator.Array:
		return d.GroupArray(c, key), nil
	}
	return Frag{}, errs.UnsupportedFunction(fmt.Sprint(fn))
}
