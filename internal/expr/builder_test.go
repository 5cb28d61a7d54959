package expr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/storekit/internal/errs"
	"github.com/roach88/storekit/internal/operator"
)

func TestBuilders_ConstructWithoutEvaluating(t *testing.T) {
	m := NewMath(Field("price"), operator.Multiply, NewMath(Field("qty"), operator.Add, 1))
	assert.Equal(t, operator.KindMath, m.Kind())
	inner, ok := m.Right.(Math)
	require.True(t, ok)
	assert.Equal(t, FieldRef{Field: "qty"}, inner.Left)

	s := NewString(operator.FnConcat, Field("first"), " ", Field("last"))
	assert.Equal(t, operator.KindString, s.Kind())
	assert.Len(t, s.Args, 3)

	d := NewDate(DateConfig{Func: operator.DateExtract, Part: operator.PartYear, Field: "created_at"})
	assert.Equal(t, operator.KindDate, d.Kind())
	assert.Equal(t, "created_at", d.Field.Field)
}

func TestCase_FirstMatchOrder(t *testing.T) {
	c := NewCase().
		When(Field("age"), operator.CmpLT, 18).Then("minor").
		When(Field("age"), operator.CmpLT, 65).Then("adult").
		Else("senior")

	require.Len(t, c.Cases, 2)
	assert.Equal(t, "minor", c.Cases[0].Then)
	assert.Equal(t, "adult", c.Cases[1].Then)
	assert.Equal(t, "senior", c.Else)
	assert.Equal(t, operator.KindConditional, c.Kind())
}

func TestCase_OrphanThenIsNoOp(t *testing.T) {
	c := NewCase().Then("ignored").When(Field("x"), operator.CmpEQ, 1).Then("one").Else("other")

	require.Len(t, c.Cases, 1)
	assert.Equal(t, "one", c.Cases[0].Then)
}

func TestCase_WhenWithoutThen(t *testing.T) {
	c := NewCase().When(Field("x"), operator.CmpEQ, 1).Else("other")

	require.Len(t, c.Cases, 1)
	assert.False(t, c.Cases[0].HasThen)
	assert.Nil(t, c.Cases[0].Then)
}

func TestCase_ThenTargetsCursor(t *testing.T) {
	c := NewCase().
		When(Field("x"), operator.CmpEQ, 1).
		When(Field("x"), operator.CmpEQ, 2).Then("two").
		Else(nil)

	assert.False(t, c.Cases[0].HasThen)
	assert.Equal(t, "two", c.Cases[1].Then)
}

func TestCaseBuilder_Immutable(t *testing.T) {
	base := NewCase().When(Field("x"), operator.CmpGT, 0)
	a := base.Then("positive").Else("other")
	b := base.Then("plus").Else("other")

	assert.Equal(t, "positive", a.Cases[0].Then)
	assert.Equal(t, "plus", b.Cases[0].Then)

	sealed := base.Else("x")
	assert.False(t, sealed.Cases[0].HasThen, "branches never leak into the base builder")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		expr    Expression
		wantErr string
	}{
		{"math ok", NewMath(Field("a"), operator.Add, 2), ""},
		{"math bad op", NewMath(Field("a"), operator.MathOperator("^"), 2), "Unsupported operator: ^"},
		{"string bad fn", NewString(operator.StringFunction("TRIM"), Field("a")), "Unsupported function: TRIM"},
		{"string no args", NewString(operator.FnUpper), "UPPER requires at least one argument"},
		{"extract without part", NewDate(DateConfig{Func: operator.DateExtract, Field: "d"}), "EXTRACT requires a date part"},
		{"add without unit", NewDate(DateConfig{Func: operator.DateAdd, Field: "d", Value: 1}), "date ADD requires a valid unit"},
		{"add non numeric", NewDate(DateConfig{Func: operator.DateAdd, Field: "d", Value: "1", Unit: operator.UnitDay}), "date ADD requires a numeric value"},
		{"format without pattern", NewDate(DateConfig{Func: operator.DateFormat, Field: "d"}), "date FORMAT requires a pattern"},
		{"case bad compare", NewCase().When(Field("a"), operator.CompareOperator("LIKE"), "x").Then(1).Else(0), "Unsupported operator: LIKE"},
		{"bad operand", NewMath(Field("a"), operator.Add, []int{1}), "unsupported operand type []int"},
		{"nested ok", NewString(operator.FnUpper, NewString(operator.FnConcat, Field("a"), Field("b"))), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.expr)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errs.IsValidation(err))
			assert.Equal(t, tt.wantErr, err.Error())
		})
	}
}
