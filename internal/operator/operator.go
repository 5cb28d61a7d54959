// Package operator defines the closed operator algebra shared by the filter
// IR, the update IR, the expression model and the aggregation pipeline.
//
// Every set is a string-backed enumeration. The string values are the ones
// accepted in option documents, so ParseX helpers double as decoders.
package operator

import "fmt"

// FindOperator is a filtering operator applied to a field.
type FindOperator string

const (
	// Comparison
	OpLT  FindOperator = "LT"
	OpGT  FindOperator = "GT"
	OpLTE FindOperator = "LTE"
	OpGTE FindOperator = "GTE"
	OpNE  FindOperator = "NE"

	// Set
	OpIn    FindOperator = "IN"
	OpNotIn FindOperator = "NIN"
	OpAny   FindOperator = "ANY"

	// Range
	OpBetween    FindOperator = "BETWEEN"
	OpNotBetween FindOperator = "NOT_BETWEEN"

	// Null
	OpIsNull  FindOperator = "ISNULL"
	OpNotNull FindOperator = "NOT_NULL"

	// Pattern
	OpLike          FindOperator = "LIKE"
	OpILike         FindOperator = "ILIKE"
	OpStartsWith    FindOperator = "STARTSWITH"
	OpNotStartsWith FindOperator = "NOT_STARTSWITH"
	OpEndsWith      FindOperator = "ENDSWITH"
	OpNotEndsWith   FindOperator = "NOT_ENDSWITH"
	OpSubstring     FindOperator = "SUBSTRING"
	OpMatch         FindOperator = "MATCH"

	// Array
	OpArrayContains FindOperator = "ARRAY_CONTAINS"
	OpSize          FindOperator = "SIZE"

	// Logical
	OpAnd FindOperator = "AND"
	OpOr  FindOperator = "OR"
)

var findOperators = []FindOperator{
	OpLT, OpGT, OpLTE, OpGTE, OpNE,
	OpIn, OpNotIn, OpAny,
	OpBetween, OpNotBetween,
	OpIsNull, OpNotNull,
	OpLike, OpILike, OpStartsWith, OpNotStartsWith, OpEndsWith, OpNotEndsWith, OpSubstring, OpMatch,
	OpArrayContains, OpSize,
	OpAnd, OpOr,
}

// FindOperators returns every filtering operator in declaration order.
func FindOperators() []FindOperator {
	return append([]FindOperator(nil), findOperators...)
}

// Valid reports whether op is a member of the algebra.
func (op FindOperator) Valid() bool {
	return contains(findOperators, op)
}

// Logical reports whether op combines sub-filters rather than testing a field.
func (op FindOperator) Logical() bool {
	return op == OpAnd || op == OpOr
}

// ParseFindOperator decodes a filtering operator name.
func ParseFindOperator(s string) (FindOperator, error) {
	return parse(findOperators, s, "find operator")
}

// UpdateOperator is an arithmetic update applied to a numeric field.
type UpdateOperator string

const (
	Inc UpdateOperator = "INC"
	Dec UpdateOperator = "DEC"
	Mul UpdateOperator = "MUL"
)

var updateOperators = []UpdateOperator{Inc, Dec, Mul}

func (op UpdateOperator) Valid() bool { return contains(updateOperators, op) }

// ParseUpdateOperator decodes an update operator name.
func ParseUpdateOperator(s string) (UpdateOperator, error) {
	return parse(updateOperators, s, "update operator")
}

// AggregateFunction is a reducer computed over a group of rows.
type AggregateFunction string

const (
	Sum   AggregateFunction = "SUM"
	Avg   AggregateFunction = "AVG"
	Count AggregateFunction = "COUNT"
	Min   AggregateFunction = "MIN"
	Max   AggregateFunction = "MAX"
	First AggregateFunction = "FIRST"
	Last  AggregateFunction = "LAST"
	Array AggregateFunction = "ARRAY"
)

var aggregateFunctions = []AggregateFunction{Sum, Avg, Count, Min, Max, First, Last, Array}

func (fn AggregateFunction) Valid() bool { return contains(aggregateFunctions, fn) }

// ParseAggregateFunction decodes an aggregate function name.
func ParseAggregateFunction(s string) (AggregateFunction, error) {
	return parse(aggregateFunctions, s, "aggregate function")
}

// ExpressionType tags the kind of an expression node.
type ExpressionType string

const (
	KindMath        ExpressionType = "math"
	KindString      ExpressionType = "string"
	KindDate        ExpressionType = "date"
	KindConditional ExpressionType = "conditional"
)

var expressionTypes = []ExpressionType{KindMath, KindString, KindDate, KindConditional}

func (t ExpressionType) Valid() bool { return contains(expressionTypes, t) }

// ParseExpressionType decodes an expression type tag.
func ParseExpressionType(s string) (ExpressionType, error) {
	return parse(expressionTypes, s, "expression type")
}

// Direction is a sort direction.
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

var directions = []Direction{Asc, Desc}

func (d Direction) Valid() bool { return contains(directions, d) }

// ParseDirection decodes a sort direction.
func ParseDirection(s string) (Direction, error) {
	return parse(directions, s, "sort direction")
}

func contains[T comparable](set []T, v T) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

func parse[T ~string](set []T, s string, what string) (T, error) {
	v := T(s)
	if !contains(set, v) {
		return v, fmt.Errorf("unknown %s %q", what, s)
	}
	return v, nil
}
