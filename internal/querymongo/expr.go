package querymongo

import (
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/roach88/storekit/internal/errs"
	"github.com/roach88/storekit/internal/operator"
	"github.com/roach88/storekit/internal/translate"
)

func op(name string, args ...any) bson.D {
	if len(args) == 1 {
		return bson.D{{Key: name, Value: args[0]}}
	}
	return bson.D{{Key: name, Value: bson.A(args)}}
}

func binary(name string) func(l, r any) any {
	return func(l, r any) any { return op(name, l, r) }
}

var mongoParts = map[operator.DatePart]string{
	operator.PartYear:   "$year",
	operator.PartMonth:  "$month",
	operator.PartDay:    "$dayOfMonth",
	operator.PartHour:   "$hour",
	operator.PartMinute: "$minute",
	operator.PartSecond: "$second",
}

var mongoFormat = map[string]string{"YYYY": "%Y", "MM": "%m", "DD": "%d", "HH": "%H", "mm": "%M", "ss": "%S"}

// dateFormat converts a portable pattern (YYYY MM DD HH mm ss) to the
// $dateToString format language.
func dateFormat(pattern string) string {
	order := []string{"YYYY", "MM", "DD", "HH", "mm", "ss"}
	var sb strings.Builder
outer:
	for i := 0; i < len(pattern); {
		for _, tok := range order {
			if strings.HasPrefix(pattern[i:], tok) {
				sb.WriteString(mongoFormat[tok])
				i += len(tok)
				continue outer
			}
		}
		if pattern[i] == '%' {
			sb.WriteString("%%")
		} else {
			sb.WriteByte(pattern[i])
		}
		i++
	}
	return sb.String()
}

func unitName(u operator.DateUnit) string {
	return strings.ToLower(string(u))
}

// primitives builds the aggregation-expression table. Column references
// are "$path"; literals are wrapped in $literal so strings starting with
// "$" stay strings.
func primitives(key string) translate.Primitives[any] {
	unary := func(name string) func([]any) (any, error) {
		return func(args []any) (any, error) {
			if len(args) != 1 {
				return nil, errs.Validation("%s takes exactly one argument", name)
			}
			return op(name, args[0]), nil
		}
	}

	return translate.Primitives[any]{
		Literal: func(v any) any {
			return bson.D{{Key: "$literal", Value: v}}
		},
		Column: func(path []string) any {
			return "$" + fieldPath(key, path)
		},
		Math: map[operator.MathOperator]func(l, r any) any{
			operator.Add:      binary("$add"),
			operator.Subtract: binary("$subtract"),
			operator.Multiply: binary("$multiply"),
			operator.Divide:   binary("$divide"),
			operator.Modulo:   binary("$mod"),
		},
		String: map[operator.StringFunction]func([]any) (any, error){
			operator.FnConcat: func(args []any) (any, error) {
				return bson.D{{Key: "$concat", Value: bson.A(args)}}, nil
			},
			operator.FnUpper:  unary("$toUpper"),
			operator.FnLower:  unary("$toLower"),
			operator.FnLength: unary("$strLenCP"),
			operator.FnSubstring: func(args []any) (any, error) {
				s, start := args[0], args[1]
				length := any(op("$strLenCP", s))
				if len(args) == 3 {
					length = args[2]
				}
				return op("$substrCP", s, start, length), nil
			},
		},
		Date: map[operator.DateFunction]func(translate.DateArgs[any]) (any, error){
			operator.DateExtract: func(a translate.DateArgs[any]) (any, error) {
				if a.Part == operator.PartDayOfWeek {
					// $dayOfWeek is 1 for Sunday
					return op("$subtract", op("$dayOfWeek", a.Field), 1), nil
				}
				return op(mongoParts[a.Part], a.Field), nil
			},
			operator.DateAdd: func(a translate.DateArgs[any]) (any, error) {
				return bson.D{{Key: "$dateAdd", Value: bson.D{
					{Key: "startDate", Value: a.Field},
					{Key: "unit", Value: unitName(a.Unit)},
					{Key: "amount", Value: a.Value},
				}}}, nil
			},
			operator.DateSubtract: func(a translate.DateArgs[any]) (any, error) {
				return bson.D{{Key: "$dateSubtract", Value: bson.D{
					{Key: "startDate", Value: a.Field},
					{Key: "unit", Value: unitName(a.Unit)},
					{Key: "amount", Value: a.Value},
				}}}, nil
			},
			operator.DateDiff: func(a translate.DateArgs[any]) (any, error) {
				return bson.D{{Key: "$dateDiff", Value: bson.D{
					{Key: "startDate", Value: a.Field},
					{Key: "endDate", Value: a.Now},
					{Key: "unit", Value: unitName(a.Unit)},
				}}}, nil
			},
			operator.DateFormat: func(a translate.DateArgs[any]) (any, error) {
				return bson.D{{Key: "$dateToString", Value: bson.D{
					{Key: "date", Value: a.Field},
					{Key: "format", Value: dateFormat(a.Value.(string))},
				}}}, nil
			},
		},
		Compare: map[operator.CompareOperator]func(l, r any) any{
			operator.CmpEQ:  binary("$eq"),
			operator.CmpNE:  binary("$ne"),
			operator.CmpGT:  binary("$gt"),
			operator.CmpGTE: binary("$gte"),
			operator.CmpLT:  binary("$lt"),
			operator.CmpLTE: binary("$lte"),
		},
		Case: func(branches []translate.Branch[any], otherwise any) any {
			bs := make(bson.A, len(branches))
			for i, b := range branches {
				bs[i] = bson.D{{Key: "case", Value: b.When}, {Key: "then", Value: b.Then}}
			}
			return bson.D{{Key: "$switch", Value: bson.D{
				{Key: "branches", Value: bs},
				{Key: "default", Value: otherwise},
			}}}
		},
	}
}
