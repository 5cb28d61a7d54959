package expr

import "github.com/roach88/storekit/internal/operator"

// Field returns a reference to a column or dotted path. Names are not
// checked against any schema; a bad name surfaces as a backend error.
func Field(name string) FieldRef {
	return FieldRef{Field: name}
}

// NewMath builds a Math node without evaluating it.
func NewMath(left Operand, op operator.MathOperator, right Operand) Math {
	return Math{Left: left, Op: op, Right: right}
}

// NewString builds a String node without evaluating it.
func NewString(fn operator.StringFunction, args ...Operand) String {
	return String{Func: fn, Args: args}
}

// DateConfig is the argument to NewDate.
type DateConfig struct {
	Func  operator.DateFunction
	Part  operator.DatePart
	Field string
	Value any
	Unit  operator.DateUnit
}

// NewDate builds a Date node without evaluating it.
func NewDate(cfg DateConfig) Date {
	return Date{
		Func:  cfg.Func,
		Part:  cfg.Part,
		Field: Field(cfg.Field),
		Value: cfg.Value,
		Unit:  cfg.Unit,
	}
}

// CaseBuilder assembles a Conditional. It is an immutable value: every
// method returns a new builder and leaves the receiver untouched, so a
// partially built chain can be branched safely.
type CaseBuilder struct {
	cases []Case
	cur   int
}

// NewCase starts a case/when/then/else chain.
func NewCase() CaseBuilder {
	return CaseBuilder{cur: -1}
}

// When appends a case with no result yet and moves the cursor to it.
func (b CaseBuilder) When(left Operand, op operator.CompareOperator, right Operand) CaseBuilder {
	cases := make([]Case, len(b.cases), len(b.cases)+1)
	copy(cases, b.cases)
	cases = append(cases, Case{When: Predicate{Left: left, Op: op, Right: right}})
	return CaseBuilder{cases: cases, cur: len(cases) - 1}
}

// Then sets the result of the case under the cursor. Called before any
// When it does nothing.
func (b CaseBuilder) Then(value Operand) CaseBuilder {
	if b.cur < 0 {
		return b
	}
	cases := append([]Case(nil), b.cases...)
	cases[b.cur].Then = value
	cases[b.cur].HasThen = true
	return CaseBuilder{cases: cases, cur: b.cur}
}

// Else seals the chain into a Conditional.
func (b CaseBuilder) Else(value Operand) Conditional {
	return Conditional{Cases: append([]Case(nil), b.cases...), Else: value}
}
