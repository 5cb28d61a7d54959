// Package expr defines the computed-value expression tree used by computed
// pipeline fields and conditional values.
//
// An Expression is one of four node kinds:
//   - Math: {left, op, right}, operands may nest further Math nodes
//   - String: {function, args}
//   - Date: {function, part, field, value, unit}, single level
//   - Conditional: ordered cases with an exhaustive else
//
// Trees are plain values. They are built per call, never mutated after
// construction and consumed once by a compiler in package translate.
package expr

import (
	"time"

	"github.com/roach88/storekit/internal/operator"
)

// Expression is the sealed interface for expression nodes.
type Expression interface {
	Kind() operator.ExpressionType
	isExpression()
}

// Operand is a value accepted wherever an expression needs an input:
// nil, a string, a number, a bool, a time.Time, a FieldRef or a nested
// Expression.
type Operand = any

// FieldRef names a column or dotted document path. It is never evaluated,
// only dereferenced by the compiler.
type FieldRef struct {
	Field string
}

// Math applies an arithmetic operator to two operands.
type Math struct {
	Left  Operand
	Op    operator.MathOperator
	Right Operand
}

// String applies a string function to its arguments.
//
// SUBSTRING takes (value, start?, length?) with a zero-based start
// defaulting to 0 and a length defaulting to the rest of the string.
type String struct {
	Func operator.StringFunction
	Args []Operand
}

// Date applies a date function to a single field.
type Date struct {
	Func  operator.DateFunction
	Part  operator.DatePart // EXTRACT only
	Field FieldRef
	Value any               // ADD/SUBTRACT amount, FORMAT pattern
	Unit  operator.DateUnit // ADD, SUBTRACT, DIFF
}

// Predicate is the comparison inside a conditional case.
type Predicate struct {
	Left  Operand
	Op    operator.CompareOperator
	Right Operand
}

// Case is one when/then arm. A case whose Then was never set selects NULL.
type Case struct {
	When    Predicate
	Then    Operand
	HasThen bool
}

// Conditional selects the Then of the first case whose When holds, or Else.
type Conditional struct {
	Cases []Case
	Else  Operand
}

func (Math) Kind() operator.ExpressionType        { return operator.KindMath }
func (String) Kind() operator.ExpressionType      { return operator.KindString }
func (Date) Kind() operator.ExpressionType        { return operator.KindDate }
func (Conditional) Kind() operator.ExpressionType { return operator.KindConditional }

func (Math) isExpression()        {}
func (String) isExpression()      {}
func (Date) isExpression()        {}
func (Conditional) isExpression() {}

// IsLiteral reports whether v is a literal operand.
func IsLiteral(v any) bool {
	switch v.(type) {
	case nil, string, bool, time.Time:
		return true
	}
	return IsNumber(v)
}

// IsNumber reports whether v holds a Go numeric value.
func IsNumber(v any) bool {
	_, ok := ToFloat(v)
	return ok
}

// ToFloat converts any Go numeric value to float64.
func ToFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
