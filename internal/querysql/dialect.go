package querysql

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/roach88/storekit/internal/operator"
)

// Dialect supplies the engine-specific SQL spellings. Everything a
// dialect emits uses "?" placeholders; Rebind converts them at the end.
type Dialect interface {
	Name() string

	// Quote quotes an identifier.
	Quote(ident string) string

	// Rebind converts "?" placeholders to the engine's syntax.
	Rebind(sql string) string

	// Value normalizes a Go value before binding.
	Value(v any) any

	// JSONPath reads a nested path out of a JSON column.
	JSONPath(col string, path []string) Frag

	// Like emits a pattern test. value is the raw operand; the dialect
	// escapes wildcards itself.
	Like(col Frag, mode LikeMode, value string, fold bool) Frag
	Regexp(col Frag, pattern string) Frag

	ArrayLength(col Frag) Frag
	// ArrayHasAny tests whether a JSON array column shares any element
	// with values. values is never empty.
	ArrayHasAny(col Frag, values []any) Frag

	Concat(args []Frag) Frag
	Length(s Frag) Frag

	Extract(part operator.DatePart, col Frag) Frag
	// DateAdd shifts col by amount units; amount may be negative.
	DateAdd(col Frag, amount float64, unit operator.DateUnit) Frag
	// DateDiff is now - col, truncated to whole units.
	DateDiff(col Frag, now time.Time, unit operator.DateUnit) Frag
	DateFormat(col Frag, pattern string) Frag

	// GroupFirst, GroupLast and GroupArray aggregate col in key order.
	GroupFirst(col, key Frag) Frag
	GroupLast(col, key Frag) Frag
	GroupArray(col, key Frag) Frag

	// LimitOffset renders pagination; limit 0 means unlimited.
	LimitOffset(limit, offset int) string
}

// LikeMode selects where the operand must appear.
type LikeMode int

const (
	Contains LikeMode = iota
	Prefix
	Suffix
)

// Lookup returns the dialect registered under name.
func Lookup(name string) (Dialect, error) {
	switch strings.ToLower(name) {
	case "sqlite", "sqlite3":
		return SQLite{}, nil
	case "postgres", "postgresql":
		return Postgres{}, nil
	case "mysql":
		return MySQL{}, nil
	}
	return nil, fmt.Errorf("unknown SQL dialect %q", name)
}

// escapeLike escapes LIKE wildcards with a backslash.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func likePattern(mode LikeMode, escaped string) string {
	switch mode {
	case Prefix:
		return escaped + "%"
	case Suffix:
		return "%" + escaped
	}
	return "%" + escaped + "%"
}

// quoteWith doubles q inside ident and wraps it.
func quoteWith(q string, ident string) string {
	return q + strings.ReplaceAll(ident, q, q+q) + q
}

// jsonDollarPath renders $.a.b, quoting segments that are not plain words.
func jsonDollarPath(path []string) string {
	var sb strings.Builder
	sb.WriteString("$")
	for _, seg := range path {
		sb.WriteByte('.')
		if isWord(seg) {
			sb.WriteString(seg)
		} else {
			sb.WriteString(`"` + strings.ReplaceAll(seg, `"`, `\"`) + `"`)
		}
	}
	return sb.String()
}

func isWord(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

// jsonValue encodes maps and slices as JSON text; everything else is
// returned unchanged.
func jsonValue(v any) any {
	switch v.(type) {
	case map[string]any, []any, []string, []int, []int64, []float64, []bool, []map[string]any:
		b, err := json.Marshal(v)
		if err != nil {
			return v
		}
		return string(b)
	}
	return v
}

// formatTokens converts a portable date pattern (YYYY MM DD HH mm ss) by
// replacing tokens and passing every other rune through lit.
func formatTokens(pattern string, tokens map[string]string, lit func(string) string) string {
	order := []string{"YYYY", "MM", "DD", "HH", "mm", "ss"}
	var sb strings.Builder
	var run strings.Builder
	flush := func() {
		if run.Len() > 0 {
			sb.WriteString(lit(run.String()))
			run.Reset()
		}
	}
outer:
	for i := 0; i < len(pattern); {
		for _, tok := range order {
			if strings.HasPrefix(pattern[i:], tok) {
				flush()
				sb.WriteString(tokens[tok])
				i += len(tok)
				continue outer
			}
		}
		run.WriteByte(pattern[i])
		i++
	}
	flush()
	return sb.String()
}

var unitSeconds = map[operator.DateUnit]int64{
	operator.UnitSecond: 1,
	operator.UnitMinute: 60,
	operator.UnitHour:   3600,
	operator.UnitDay:    86400,
	operator.UnitWeek:   604800,
}

func formatAmount(f float64) string {
	if f == float64(int64(f)) {
		return fmt.Sprintf("%d", int64(f))
	}
	return fmt.Sprintf("%g", f)
}
