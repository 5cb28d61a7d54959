package querysql

import (
	"fmt"
	"strings"
	"time"

	"github.com/roach88/storekit/internal/operator"
)

// SQLite is the dialect of mattn/go-sqlite3. MATCH needs the regexp
// function that store registers on every connection.
type SQLite struct{}

// sqliteTime is the text form of time values: sortable, parseable by the
// SQLite date functions and by the driver.
const sqliteTime = "2006-01-02 15:04:05.000"

func (SQLite) Name() string              { return "sqlite" }
func (SQLite) Quote(ident string) string { return quoteWith("`", ident) }
func (SQLite) Rebind(sql string) string  { return sql }

func (SQLite) Value(v any) any {
	if t, ok := v.(time.Time); ok {
		return t.UTC().Format(sqliteTime)
	}
	return jsonValue(v)
}

func (d SQLite) JSONPath(col string, path []string) Frag {
	return Raw(fmt.Sprintf("json_extract(%s, ?)", d.Quote(col)), jsonDollarPath(path))
}

func (SQLite) Like(col Frag, mode LikeMode, value string, fold bool) Frag {
	if fold {
		return Wrap(`LOWER(%s) LIKE LOWER(%s) ESCAPE '\'`, col, Param(likePattern(mode, escapeLike(value))))
	}
	// LIKE folds ASCII case in SQLite; GLOB does not.
	g := strings.NewReplacer("[", "[[]", "*", "[*]", "?", "[?]").Replace(value)
	switch mode {
	case Prefix:
		g += "*"
	case Suffix:
		g = "*" + g
	default:
		g = "*" + g + "*"
	}
	return Wrap("%s GLOB %s", col, Param(g))
}

func (SQLite) Regexp(col Frag, pattern string) Frag {
	return Wrap("%s REGEXP %s", col, Param(pattern))
}

func (SQLite) ArrayLength(col Frag) Frag {
	return Wrap("json_array_length(%s)", col)
}

func (SQLite) ArrayHasAny(col Frag, values []any) Frag {
	return Wrap("EXISTS (SELECT 1 FROM json_each(%s) WHERE json_each.value IN (%s))", col, Params(values))
}

func (SQLite) Concat(args []Frag) Frag {
	return Wrap("(%s)", Join(" || ", args))
}

func (SQLite) Length(s Frag) Frag {
	return Wrap("LENGTH(%s)", s)
}

var sqliteParts = map[operator.DatePart]string{
	operator.PartYear:      "%Y",
	operator.PartMonth:     "%m",
	operator.PartDay:       "%d",
	operator.PartHour:      "%H",
	operator.PartMinute:    "%M",
	operator.PartSecond:    "%S",
	operator.PartDayOfWeek: "%w",
}

func (SQLite) Extract(part operator.DatePart, col Frag) Frag {
	fmtPart := strings.ReplaceAll(sqliteParts[part], "%", "%%")
	return Wrap(fmt.Sprintf("CAST(strftime('%s', %%s) AS INTEGER)", fmtPart), col)
}

func (SQLite) DateAdd(col Frag, amount float64, unit operator.DateUnit) Frag {
	name := strings.ToLower(string(unit)) + "s"
	if unit == operator.UnitWeek {
		amount *= 7
		name = "days"
	}
	mod := formatAmount(amount) + " " + name
	if amount >= 0 {
		mod = "+" + mod
	}
	return Wrap("datetime(%s, %s)", col, Param(mod))
}

func (SQLite) DateDiff(col Frag, now time.Time, unit operator.DateUnit) Frag {
	n := Param(now.UTC().Format(sqliteTime))
	switch unit {
	case operator.UnitMonth:
		return Wrap("((CAST(strftime('%%Y', %s) AS INTEGER) - CAST(strftime('%%Y', %s) AS INTEGER)) * 12 + CAST(strftime('%%m', %s) AS INTEGER) - CAST(strftime('%%m', %s) AS INTEGER))", n, col, n, col)
	case operator.UnitYear:
		return Wrap("(CAST(strftime('%%Y', %s) AS INTEGER) - CAST(strftime('%%Y', %s) AS INTEGER))", n, col)
	}
	return Wrap(fmt.Sprintf("CAST((julianday(%%s) - julianday(%%s)) * 86400 / %d AS INTEGER)", unitSeconds[unit]), n, col)
}

var sqliteFormat = map[string]string{"YYYY": "%Y", "MM": "%m", "DD": "%d", "HH": "%H", "mm": "%M", "ss": "%S"}

func (SQLite) DateFormat(col Frag, pattern string) Frag {
	f := formatTokens(pattern, sqliteFormat, func(s string) string { return strings.ReplaceAll(s, "%", "%%") })
	return Wrap("strftime(%s, %s)", Param(f), col)
}

func (SQLite) GroupFirst(col, key Frag) Frag {
	return Wrap("json_extract(json_group_array(%s ORDER BY %s), '$[0]')", col, key)
}

func (SQLite) GroupLast(col, key Frag) Frag {
	return Wrap("json_extract(json_group_array(%s ORDER BY %s), '$[#-1]')", col, key)
}

func (SQLite) GroupArray(col, key Frag) Frag {
	return Wrap("json_group_array(%s ORDER BY %s)", col, key)
}

func (SQLite) LimitOffset(limit, offset int) string {
	switch {
	case limit > 0 && offset > 0:
		return fmt.Sprintf("LIMIT %d OFFSET %d", limit, offset)
	case limit > 0:
		return fmt.Sprintf("LIMIT %d", limit)
	case offset > 0:
		return fmt.Sprintf("LIMIT -1 OFFSET %d", offset)
	}
	return ""
}
