package optdoc

import (
	"fmt"

	"github.com/roach88/storekit/internal/errs"
	"github.com/roach88/storekit/internal/expr"
	"github.com/roach88/storekit/internal/operator"
	"github.com/roach88/storekit/internal/pipeline"
	"github.com/roach88/storekit/internal/queryir"
)

func invalid(at, format string, args ...any) error {
	return errs.Validation("%s: %s", at, fmt.Sprintf(format, args...))
}

func stringList(v any) []string {
	list, _ := v.([]any)
	if len(list) == 0 {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, s := range list {
		if str, ok := s.(string); ok {
			out = append(out, str)
		}
	}
	return out
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case uint64:
		return int(n), true
	case float64:
		return int(n), n == float64(int(n))
	}
	return 0, false
}

func decodeFilter(v any, at string) (queryir.Filter, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, invalid(at, "filter must be a mapping")
	}

	if children, ok := m["and"]; ok {
		fs, err := decodeFilters(children, at+".and")
		return queryir.And(fs...), err
	}
	if children, ok := m["or"]; ok {
		fs, err := decodeFilters(children, at+".or")
		return queryir.Or(fs...), err
	}
	if field, ok := m["nested"].(string); ok {
		w, ok := m["where"]
		if !ok {
			return nil, invalid(at, "nested %q requires where", field)
		}
		child, err := decodeFilter(w, at+".where")
		if err != nil {
			return nil, err
		}
		return queryir.Nested(field, child), nil
	}

	field, _ := m["field"].(string)
	if op, ok := m["op"].(string); ok {
		fop, err := operator.ParseFindOperator(op)
		if err != nil {
			return nil, invalid(at, "%v", err)
		}
		return queryir.Where(field, fop, m["value"]), nil
	}
	if value, ok := m["eq"]; ok {
		return queryir.Eq(field, value), nil
	}
	return nil, invalid(at, "condition on %q needs eq or op", field)
}

func decodeFilters(v any, at string) ([]queryir.Filter, error) {
	list, _ := v.([]any)
	out := make([]queryir.Filter, 0, len(list))
	for i, c := range list {
		f, err := decodeFilter(c, fmt.Sprintf("%s[%d]", at, i))
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

func decodeSorts(v any, at string) ([]queryir.Sort, error) {
	list, _ := v.([]any)
	out := make([]queryir.Sort, 0, len(list))
	for i, item := range list {
		m, _ := item.(map[string]any)
		field, _ := m["field"].(string)
		dir := "asc"
		if d, ok := m["direction"].(string); ok {
			dir = d
		}
		d, err := operator.ParseDirection(dir)
		if err != nil {
			return nil, invalid(fmt.Sprintf("%s[%d]", at, i), "%v", err)
		}
		out = append(out, queryir.Sort{Field: field, Direction: d})
	}
	return out, nil
}

func decodeUpdate(v any) (queryir.Update, error) {
	m, _ := v.(map[string]any)
	var u queryir.Update
	if set, ok := m["set"].(map[string]any); ok && len(set) > 0 {
		u.Set = set
	}
	deltas, _ := m["deltas"].([]any)
	for i, item := range deltas {
		d, _ := item.(map[string]any)
		op, err := operator.ParseUpdateOperator(fmt.Sprint(d["op"]))
		if err != nil {
			return u, invalid(fmt.Sprintf("update.deltas[%d]", i), "%v", err)
		}
		field, _ := d["field"].(string)
		u.Deltas = append(u.Deltas, queryir.Delta{Op: op, Field: field, Amount: d["amount"]})
	}
	return u, nil
}

func decodePipeline(v any) ([]pipeline.Stage, error) {
	list, _ := v.([]any)
	out := make([]pipeline.Stage, 0, len(list))
	for i, item := range list {
		s, err := decodeStage(item, fmt.Sprintf("pipeline[%d]", i))
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func decodeStage(v any, at string) (pipeline.Stage, error) {
	m, _ := v.(map[string]any)
	if len(m) != 1 {
		return nil, invalid(at, "stage must have exactly one key")
	}

	for name, body := range m {
		switch name {
		case "where":
			f, err := decodeFilter(body, at+".where")
			if err != nil {
				return nil, err
			}
			return pipeline.Where{Filter: f}, nil
		case "group":
			return decodeGroup(body, at+".group")
		case "project":
			return decodeProject(body, at+".project")
		case "order":
			sorts, err := decodeSorts(body, at+".order")
			if err != nil {
				return nil, err
			}
			return pipeline.Order{Sorts: sorts}, nil
		case "skip":
			n, _ := toInt(body)
			return pipeline.Skip{N: n}, nil
		case "limit":
			n, _ := toInt(body)
			return pipeline.Limit{N: n}, nil
		default:
			return nil, invalid(at, "unknown stage %q", name)
		}
	}
	return nil, nil
}

func decodeGroup(v any, at string) (pipeline.Stage, error) {
	m, _ := v.(map[string]any)
	g := pipeline.Group{By: stringList(m["by"])}
	fns, _ := m["functions"].([]any)
	for i, item := range fns {
		f, _ := item.(map[string]any)
		fn, err := operator.ParseAggregateFunction(fmt.Sprint(f["func"]))
		if err != nil {
			return nil, invalid(fmt.Sprintf("%s.functions[%d]", at, i), "%v", err)
		}
		field, _ := f["field"].(string)
		alias, _ := f["alias"].(string)
		g.Functions = append(g.Functions, pipeline.Aggregate{Func: fn, Field: field, Alias: alias})
	}
	return g, nil
}

func decodeProject(v any, at string) (pipeline.Stage, error) {
	m, _ := v.(map[string]any)
	p := pipeline.Project{Fields: stringList(m["fields"])}
	computed, _ := m["computed"].([]any)
	for i, item := range computed {
		c, _ := item.(map[string]any)
		cat := fmt.Sprintf("%s.computed[%d]", at, i)
		typ, err := operator.ParseExpressionType(fmt.Sprint(c["type"]))
		if err != nil {
			return nil, invalid(cat, "%v", err)
		}
		e, err := decodeExpression(c["expression"], cat+".expression")
		if err != nil {
			return nil, err
		}
		alias, _ := c["alias"].(string)
		p.Computed = append(p.Computed, pipeline.Computed{Alias: alias, Expression: e, Type: typ})
	}
	return p, nil
}

// decodeOperand maps a literal, a {field} reference or a nested
// expression to an expr.Operand.
func decodeOperand(v any, at string) (expr.Operand, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return v, nil
	}
	if field, ok := m["field"].(string); ok && len(m) == 1 {
		return expr.Field(field), nil
	}
	return decodeExpression(m, at)
}

func decodeExpression(v any, at string) (expr.Expression, error) {
	m, ok := v.(map[string]any)
	if !ok || len(m) != 1 {
		return nil, invalid(at, "expression must have exactly one of math, string, date or case")
	}

	if body, ok := m["math"].(map[string]any); ok {
		op, err := operator.ParseMathOperator(fmt.Sprint(body["op"]))
		if err != nil {
			return nil, invalid(at, "%v", err)
		}
		left, err := decodeOperand(body["left"], at+".math.left")
		if err != nil {
			return nil, err
		}
		right, err := decodeOperand(body["right"], at+".math.right")
		if err != nil {
			return nil, err
		}
		return expr.NewMath(left, op, right), nil
	}

	if body, ok := m["string"].(map[string]any); ok {
		fn, err := operator.ParseStringFunction(fmt.Sprint(body["func"]))
		if err != nil {
			return nil, invalid(at, "%v", err)
		}
		raw, _ := body["args"].([]any)
		args := make([]expr.Operand, len(raw))
		for i, a := range raw {
			if args[i], err = decodeOperand(a, fmt.Sprintf("%s.string.args[%d]", at, i)); err != nil {
				return nil, err
			}
		}
		return expr.NewString(fn, args...), nil
	}

	if body, ok := m["date"].(map[string]any); ok {
		return decodeDate(body, at+".date")
	}

	if body, ok := m["case"].(map[string]any); ok {
		return decodeCase(body, at+".case")
	}
	return nil, invalid(at, "expression must have exactly one of math, string, date or case")
}

func decodeDate(body map[string]any, at string) (expr.Expression, error) {
	fn, err := operator.ParseDateFunction(fmt.Sprint(body["func"]))
	if err != nil {
		return nil, invalid(at, "%v", err)
	}
	cfg := expr.DateConfig{Func: fn, Value: body["value"]}
	cfg.Field, _ = body["field"].(string)
	if part, ok := body["part"].(string); ok {
		if cfg.Part, err = operator.ParseDatePart(part); err != nil {
			return nil, invalid(at, "%v", err)
		}
	}
	if unit, ok := body["unit"].(string); ok {
		if cfg.Unit, err = operator.ParseDateUnit(unit); err != nil {
			return nil, invalid(at, "%v", err)
		}
	}
	return expr.NewDate(cfg), nil
}

func decodeCase(body map[string]any, at string) (expr.Expression, error) {
	b := expr.NewCase()
	whens, _ := body["when"].([]any)
	for i, item := range whens {
		w, _ := item.(map[string]any)
		wat := fmt.Sprintf("%s.when[%d]", at, i)
		op, err := operator.ParseCompareOperator(fmt.Sprint(w["op"]))
		if err != nil {
			return nil, invalid(wat, "%v", err)
		}
		left, err := decodeOperand(w["left"], wat+".left")
		if err != nil {
			return nil, err
		}
		right, err := decodeOperand(w["right"], wat+".right")
		if err != nil {
			return nil, err
		}
		b = b.When(left, op, right)
		if then, ok := w["then"]; ok {
			v, err := decodeOperand(then, wat+".then")
			if err != nil {
				return nil, err
			}
			b = b.Then(v)
		}
	}
	els, err := decodeOperand(body["else"], at+".else")
	if err != nil {
		return nil, err
	}
	return b.Else(els), nil
}
