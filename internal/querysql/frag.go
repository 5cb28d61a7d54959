package querysql

import (
	"fmt"
	"strings"
)

// Frag is a piece of SQL with its positional "?" arguments in order.
type Frag struct {
	SQL  string
	Args []any
}

// Raw builds a fragment from literal SQL and its arguments.
func Raw(sql string, args ...any) Frag {
	return Frag{SQL: sql, Args: args}
}

// Param builds a single placeholder bound to v.
func Param(v any) Frag {
	return Frag{SQL: "?", Args: []any{v}}
}

// Wrap substitutes fragments into format's %s verbs, in order, and
// concatenates their arguments in the same order.
func Wrap(format string, fs ...Frag) Frag {
	sqls := make([]any, len(fs))
	var args []any
	for i, f := range fs {
		sqls[i] = f.SQL
		args = append(args, f.Args...)
	}
	return Frag{SQL: fmt.Sprintf(format, sqls...), Args: args}
}

// Join concatenates fragments with sep.
func Join(sep string, fs []Frag) Frag {
	parts := make([]string, len(fs))
	var args []any
	for i, f := range fs {
		parts[i] = f.SQL
		args = append(args, f.Args...)
	}
	return Frag{SQL: strings.Join(parts, sep), Args: args}
}

// Params builds "?, ?, ?" bound to values.
func Params(values []any) Frag {
	fs := make([]Frag, len(values))
	for i, v := range values {
		fs[i] = Param(v)
	}
	return Join(", ", fs)
}

// Statement is a complete, parameterized SQL statement.
type Statement struct {
	SQL  string
	Args []any

	// JSON lists output columns whose values are JSON text to decode.
	JSON []string
}

func (s Statement) clone() Statement {
	return Statement{
		SQL:  s.SQL,
		Args: append([]any(nil), s.Args...),
		JSON: append([]string(nil), s.JSON...),
	}
}

// rebindDollar rewrites "?" placeholders to $1, $2, ...
func rebindDollar(sql string) string {
	var sb strings.Builder
	sb.Grow(len(sql) + 8)
	n := 0
	inString := false
	for i := 0; i < len(sql); i++ {
		ch := sql[i]
		switch {
		case ch == '\'':
			inString = !inString
			sb.WriteByte(ch)
		case ch == '?' && !inString:
			n++
			fmt.Fprintf(&sb, "$%d", n)
		default:
			sb.WriteByte(ch)
		}
	}
	return sb.String()
}
