package translate

import (
	"sort"

	"github.com/roach88/storekit/internal/errs"
	"github.com/roach88/storekit/internal/operator"
	"github.com/roach88/storekit/internal/queryir"
)

// UpdatePlan is a validated, ordered update.
type UpdatePlan struct {
	// Set holds plain assignments sorted by field.
	Set []Assignment

	// Deltas holds arithmetic instructions in caller order.
	Deltas []queryir.Delta
}

// Assignment is one plain field assignment.
type Assignment struct {
	Field string
	Value any
}

// ColumnUpdate is everything an update does to one field: an optional
// assignment followed by deltas in order.
type ColumnUpdate struct {
	Field  string
	HasSet bool
	Value  any
	Deltas []queryir.Delta
}

// Update splits and validates an update payload.
func Update(u queryir.Update) (UpdatePlan, error) {
	if err := queryir.ValidateUpdate(u); err != nil {
		return UpdatePlan{}, err
	}
	plan := UpdatePlan{Deltas: append([]queryir.Delta(nil), u.Deltas...)}
	for field, v := range u.Set {
		plan.Set = append(plan.Set, Assignment{Field: field, Value: v})
	}
	sort.Slice(plan.Set, func(i, j int) bool { return plan.Set[i].Field < plan.Set[j].Field })
	return plan, nil
}

// IsEmpty reports whether the plan changes nothing.
func (p UpdatePlan) IsEmpty() bool {
	return len(p.Set) == 0 && len(p.Deltas) == 0
}

// Columns groups the plan per field. Assigned fields come first in field
// order, then fields only touched by deltas in first-appearance order.
func (p UpdatePlan) Columns() []ColumnUpdate {
	index := make(map[string]int)
	var cols []ColumnUpdate
	for _, a := range p.Set {
		index[a.Field] = len(cols)
		cols = append(cols, ColumnUpdate{Field: a.Field, HasSet: true, Value: a.Value})
	}
	for _, d := range p.Deltas {
		i, ok := index[d.Field]
		if !ok {
			i = len(cols)
			index[d.Field] = i
			cols = append(cols, ColumnUpdate{Field: d.Field})
		}
		cols[i].Deltas = append(cols[i].Deltas, d)
	}
	return cols
}

var deltaMath = map[operator.UpdateOperator]operator.MathOperator{
	operator.Inc: operator.Add,
	operator.Dec: operator.Subtract,
	operator.Mul: operator.Multiply,
}

// Column compiles the new value of one field: the assigned value or the
// current column, with each delta applied in order. Assigned values are
// always literals; the backend has already normalized them.
func (c *Compiler[F]) Column(cu ColumnUpdate) (F, error) {
	var zero F
	var cur F
	if cu.HasSet {
		cur = c.prims.Literal(cu.Value)
	} else {
		cur = c.prims.Column(queryir.Path(cu.Field))
	}
	for _, d := range cu.Deltas {
		op, ok := deltaMath[d.Op]
		if !ok {
			return zero, errs.UnsupportedOperator(d.Op)
		}
		emit, ok := c.prims.Math[op]
		if !ok {
			return zero, errs.UnsupportedOperator(op)
		}
		cur = emit(cur, c.prims.Literal(d.Amount))
	}
	return cur, nil
}
