// Package querymongo compiles portable queries to MongoDB filters,
// aggregation expressions, update pipelines and aggregation pipelines.
package querymongo

import (
	"regexp"
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/roach88/storekit/internal/operator"
	"github.com/roach88/storekit/internal/queryir"
	"github.com/roach88/storekit/internal/translate"
)

// KeyField is the document key in MongoDB.
const KeyField = "_id"

// fieldPath renders a path as a dotted document path. The model's key
// column maps to _id.
func fieldPath(key string, path []string) string {
	if path[0] == key {
		if len(path) == 1 {
			return KeyField
		}
		return KeyField + "." + strings.Join(path[1:], ".")
	}
	return strings.Join(path, ".")
}

func cond(field string, op string, v any) bson.D {
	return bson.D{{Key: field, Value: bson.D{{Key: op, Value: v}}}}
}

func pattern(mode string, value string, options string) bson.Regex {
	p := regexp.QuoteMeta(value)
	switch mode {
	case "prefix":
		p = "^" + p
	case "suffix":
		p = p + "$"
	}
	return bson.Regex{Pattern: p, Options: options}
}

func filters(key string) translate.Filters[bson.D] {
	field := func(path []string) string { return fieldPath(key, path) }
	compare := func(op string) func([]string, any) (bson.D, error) {
		return func(path []string, operand any) (bson.D, error) {
			return cond(field(path), op, operand), nil
		}
	}
	list := func(operand any) bson.A {
		l, _ := queryir.List(operand)
		return bson.A(l)
	}
	match := func(mode, options string, negate bool) func([]string, any) (bson.D, error) {
		return func(path []string, operand any) (bson.D, error) {
			re := pattern(mode, operand.(string), options)
			if negate {
				return cond(field(path), "$not", re), nil
			}
			return bson.D{{Key: field(path), Value: re}}, nil
		}
	}

	return translate.Filters[bson.D]{
		True: func() bson.D { return bson.D{} },
		// every document has an _id
		False: func() bson.D { return cond(KeyField, "$exists", false) },
		Equal: func(path []string, v any) bson.D {
			return bson.D{{Key: field(path), Value: v}}
		},
		Ops: map[operator.FindOperator]func([]string, any) (bson.D, error){
			operator.OpLT:  compare("$lt"),
			operator.OpGT:  compare("$gt"),
			operator.OpLTE: compare("$lte"),
			operator.OpGTE: compare("$gte"),
			operator.OpNE:  compare("$ne"),
			operator.OpIn: func(path []string, operand any) (bson.D, error) {
				return cond(field(path), "$in", list(operand)), nil
			},
			operator.OpNotIn: func(path []string, operand any) (bson.D, error) {
				return cond(field(path), "$nin", list(operand)), nil
			},
			operator.OpAny: func(path []string, operand any) (bson.D, error) {
				return cond(field(path), "$elemMatch", bson.D{{Key: "$eq", Value: operand}}), nil
			},
			operator.OpArrayContains: func(path []string, operand any) (bson.D, error) {
				return cond(field(path), "$elemMatch", bson.D{{Key: "$in", Value: list(operand)}}), nil
			},
			operator.OpSize: compare("$size"),
			operator.OpBetween: func(path []string, operand any) (bson.D, error) {
				b := list(operand)
				return bson.D{{Key: field(path), Value: bson.D{{Key: "$gte", Value: b[0]}, {Key: "$lte", Value: b[1]}}}}, nil
			},
			operator.OpNotBetween: func(path []string, operand any) (bson.D, error) {
				b := list(operand)
				f := field(path)
				return bson.D{{Key: "$or", Value: bson.A{cond(f, "$lt", b[0]), cond(f, "$gt", b[1])}}}, nil
			},
			operator.OpIsNull: func(path []string, _ any) (bson.D, error) {
				return bson.D{{Key: field(path), Value: nil}}, nil
			},
			operator.OpNotNull: func(path []string, _ any) (bson.D, error) {
				return cond(field(path), "$ne", nil), nil
			},
			operator.OpLike:          match("contains", "", false),
			operator.OpSubstring:     match("contains", "", false),
			operator.OpILike:         match("contains", "i", false),
			operator.OpStartsWith:    match("prefix", "", false),
			operator.OpNotStartsWith: match("prefix", "", true),
			operator.OpEndsWith:      match("suffix", "", false),
			operator.OpNotEndsWith:   match("suffix", "", true),
			operator.OpMatch: func(path []string, operand any) (bson.D, error) {
				return bson.D{{Key: field(path), Value: bson.Regex{Pattern: operand.(string)}}}, nil
			},
		},
		And: func(children []bson.D) bson.D {
			if len(children) == 1 {
				return children[0]
			}
			return bson.D{{Key: "$and", Value: toArray(children)}}
		},
		Or: func(children []bson.D) bson.D {
			if len(children) == 1 {
				return children[0]
			}
			return bson.D{{Key: "$or", Value: toArray(children)}}
		},
	}
}

func toArray(docs []bson.D) bson.A {
	a := make(bson.A, len(docs))
	for i, d := range docs {
		a[i] = d
	}
	return a
}
