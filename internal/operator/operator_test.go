package operator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindOperators_AllValidAndParseable(t *testing.T) {
	ops := FindOperators()
	require.Len(t, ops, 24)

	for _, op := range ops {
		t.Run(string(op), func(t *testing.T) {
			assert.True(t, op.Valid())
			parsed, err := ParseFindOperator(string(op))
			require.NoError(t, err)
			assert.Equal(t, op, parsed)
		})
	}
}

func TestFindOperator_Logical(t *testing.T) {
	assert.True(t, OpAnd.Logical())
	assert.True(t, OpOr.Logical())
	assert.False(t, OpLT.Logical())
	assert.False(t, OpBetween.Logical())
}

func TestParse_Unknown(t *testing.T) {
	_, err := ParseFindOperator("REGEX")
	assert.EqualError(t, err, `unknown find operator "REGEX"`)

	_, err = ParseUpdateOperator("DIV")
	assert.Error(t, err)

	_, err = ParseAggregateFunction("MEDIAN")
	assert.Error(t, err)

	_, err = ParseExpressionType("invalid")
	assert.Error(t, err)

	_, err = ParseMathOperator("^")
	assert.Error(t, err)

	_, err = ParseDateUnit("DECADE")
	assert.Error(t, err)
}

func TestParse_CaseSensitive(t *testing.T) {
	_, err := ParseFindOperator("lt")
	assert.Error(t, err, "operator names are upper case")

	d, err := ParseDirection("desc")
	require.NoError(t, err)
	assert.Equal(t, Desc, d)

	_, err = ParseDirection("DESC")
	assert.Error(t, err)
}

func TestCompareOperators_ExcludePatterns(t *testing.T) {
	assert.True(t, CmpLTE.Valid())
	assert.False(t, CompareOperator("LIKE").Valid())
	assert.False(t, CompareOperator("IN").Valid())
}
