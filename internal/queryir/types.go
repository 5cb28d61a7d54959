package queryir

import (
	"reflect"
	"strings"

	"github.com/roach88/storekit/internal/operator"
)

// Filter is a node in the portable filter tree.
//
// This is a sealed interface - only types in this package implement it.
// The marker method enables exhaustive type switches in translators.
type Filter interface {
	filterNode()
}

// Leaf is a field-equals-value test.
//
// A nil Value compiles to IS NULL on every backend.
type Leaf struct {
	Field string
	Value any
}

// Cond applies a FindOperator to a field.
//
// Operand shapes:
//   - IN, NIN, ARRAY_CONTAINS: a list
//   - BETWEEN, NOT_BETWEEN: a two-element list [low, high], inclusive
//   - SIZE: an integer
//   - ISNULL, NOT_NULL: ignored
//   - LIKE, ILIKE, STARTSWITH, ..., MATCH: a string
//   - everything else: a single value
//
// AND and OR are not valid here; use Combinator.
type Cond struct {
	Field   string
	Op      operator.FindOperator
	Operand any
}

// Combinator joins sub-filters with AND or OR.
type Combinator struct {
	Kind     operator.FindOperator // OpAnd or OpOr
	Children []Filter
}

// Scope roots a sub-filter at a relation or sub-document field.
type Scope struct {
	Field  string
	Filter Filter
}

func (Leaf) filterNode()       {}
func (Cond) filterNode()       {}
func (Combinator) filterNode() {}
func (Scope) filterNode()      {}

// Eq builds an equality leaf.
func Eq(field string, value any) Leaf {
	return Leaf{Field: field, Value: value}
}

// Where builds an operator condition.
func Where(field string, op operator.FindOperator, operand any) Cond {
	return Cond{Field: field, Op: op, Operand: operand}
}

// Between builds an inclusive range condition.
func Between(field string, low, high any) Cond {
	return Cond{Field: field, Op: operator.OpBetween, Operand: []any{low, high}}
}

// In builds a set membership condition.
func In(field string, values ...any) Cond {
	return Cond{Field: field, Op: operator.OpIn, Operand: values}
}

// IsNull builds a null test.
func IsNull(field string) Cond {
	return Cond{Field: field, Op: operator.OpIsNull}
}

// And conjoins filters. Nil children are dropped.
func And(children ...Filter) Combinator {
	return Combinator{Kind: operator.OpAnd, Children: compact(children)}
}

// Or disjoins filters. Nil children are dropped.
func Or(children ...Filter) Combinator {
	return Combinator{Kind: operator.OpOr, Children: compact(children)}
}

// Nested roots f at field.
func Nested(field string, f Filter) Scope {
	return Scope{Field: field, Filter: f}
}

// Conjoin combines two optional filters, returning the other one when
// either is nil.
func Conjoin(a, b Filter) Filter {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}
	return And(a, b)
}

func compact(fs []Filter) []Filter {
	out := make([]Filter, 0, len(fs))
	for _, f := range fs {
		if f != nil {
			out = append(out, f)
		}
	}
	return out
}

// Path splits a dotted field name into its segments.
func Path(field string) []string {
	return strings.Split(field, ".")
}

// JoinPath prefixes field with a scope path.
func JoinPath(prefix []string, field string) []string {
	out := make([]string, 0, len(prefix)+1)
	out = append(out, prefix...)
	return append(out, Path(field)...)
}

// Columns returns the distinct top-level columns f refers to, in order of
// appearance. A Scope contributes only its root column.
func Columns(f Filter) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(field string) {
		col := Path(field)[0]
		if col != "" && !seen[col] {
			seen[col] = true
			out = append(out, col)
		}
	}
	var walk func(Filter)
	walk = func(f Filter) {
		switch n := f.(type) {
		case Leaf:
			add(n.Field)
		case *Leaf:
			walk(*n)
		case Cond:
			add(n.Field)
		case *Cond:
			walk(*n)
		case Combinator:
			for _, c := range n.Children {
				walk(c)
			}
		case *Combinator:
			walk(*n)
		case Scope:
			add(n.Field)
		case *Scope:
			walk(*n)
		}
	}
	walk(f)
	return out
}

// List converts a slice or array of any element type to []any.
func List(v any) ([]any, bool) {
	if l, ok := v.([]any); ok {
		return l, true
	}
	rv := reflect.ValueOf(v)
	if !rv.IsValid() || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// Sort orders results by one field.
type Sort struct {
	Field     string
	Direction operator.Direction
}

// Asc sorts by field ascending.
func Asc(field string) Sort { return Sort{Field: field, Direction: operator.Asc} }

// Desc sorts by field descending.
func Desc(field string) Sort { return Sort{Field: field, Direction: operator.Desc} }

// Delta is one arithmetic update instruction.
type Delta struct {
	Op     operator.UpdateOperator
	Field  string
	Amount any
}

// Update is a portable update payload.
type Update struct {
	Set    map[string]any
	Deltas []Delta
}

// Assign returns a copy of u that also sets field to value.
func (u Update) Assign(field string, value any) Update {
	set := make(map[string]any, len(u.Set)+1)
	for k, v := range u.Set {
		set[k] = v
	}
	set[field] = value
	return Update{Set: set, Deltas: u.Deltas}
}

// Inc returns a copy of u that also increments field by n.
func (u Update) Inc(field string, n any) Update { return u.delta(operator.Inc, field, n) }

// Dec returns a copy of u that also decrements field by n.
func (u Update) Dec(field string, n any) Update { return u.delta(operator.Dec, field, n) }

// Mul returns a copy of u that also multiplies field by n.
func (u Update) Mul(field string, n any) Update { return u.delta(operator.Mul, field, n) }

func (u Update) delta(op operator.UpdateOperator, field string, n any) Update {
	deltas := make([]Delta, len(u.Deltas), len(u.Deltas)+1)
	copy(deltas, u.Deltas)
	return Update{Set: u.Set, Deltas: append(deltas, Delta{Op: op, Field: field, Amount: n})}
}

// IsEmpty reports whether u changes nothing.
func (u Update) IsEmpty() bool {
	return len(u.Set) == 0 && len(u.Deltas) == 0
}

// Set builds an Update of plain assignments.
func Set(fields map[string]any) Update {
	return Update{Set: fields}
}
