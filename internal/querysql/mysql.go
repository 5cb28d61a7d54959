package querysql

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/roach88/storekit/internal/operator"
)

// MySQL is the dialect of go-sql-driver/mysql (8.0.17 or later for
// JSON_OVERLAPS and REGEXP_LIKE).
type MySQL struct{}

func (MySQL) Name() string              { return "mysql" }
func (MySQL) Quote(ident string) string { return quoteWith("`", ident) }
func (MySQL) Rebind(sql string) string  { return sql }

func (MySQL) Value(v any) any {
	if t, ok := v.(time.Time); ok {
		return t.UTC()
	}
	return jsonValue(v)
}

func (d MySQL) JSONPath(col string, path []string) Frag {
	return Raw(fmt.Sprintf("JSON_UNQUOTE(JSON_EXTRACT(%s, ?))", d.Quote(col)), jsonDollarPath(path))
}

func (MySQL) Like(col Frag, mode LikeMode, value string, fold bool) Frag {
	p := Param(likePattern(mode, escapeLike(value)))
	if fold {
		return Wrap("LOWER(%s) LIKE LOWER(%s)", col, p)
	}
	return Wrap("%s COLLATE utf8mb4_bin LIKE %s", col, p)
}

func (MySQL) Regexp(col Frag, pattern string) Frag {
	return Wrap("REGEXP_LIKE(%s, %s, 'c')", col, Param(pattern))
}

func (MySQL) ArrayLength(col Frag) Frag {
	return Wrap("JSON_LENGTH(%s)", col)
}

func (MySQL) ArrayHasAny(col Frag, values []any) Frag {
	b, _ := json.Marshal(values)
	return Wrap("JSON_OVERLAPS(%s, CAST(%s AS JSON))", col, Param(string(b)))
}

func (MySQL) Concat(args []Frag) Frag {
	return Wrap("CONCAT(%s)", Join(", ", args))
}

func (MySQL) Length(s Frag) Frag {
	return Wrap("CHAR_LENGTH(%s)", s)
}

var mysqlParts = map[operator.DatePart]string{
	operator.PartYear:      "YEAR(%s)",
	operator.PartMonth:     "MONTH(%s)",
	operator.PartDay:       "DAY(%s)",
	operator.PartHour:      "HOUR(%s)",
	operator.PartMinute:    "MINUTE(%s)",
	operator.PartSecond:    "SECOND(%s)",
	operator.PartDayOfWeek: "(DAYOFWEEK(%s) - 1)",
}

func (MySQL) Extract(part operator.DatePart, col Frag) Frag {
	return Wrap(mysqlParts[part], col)
}

func (MySQL) DateAdd(col Frag, amount float64, unit operator.DateUnit) Frag {
	return Wrap(fmt.Sprintf("DATE_ADD(%%s, INTERVAL %%s %s)", unit), col, Param(amount))
}

func (MySQL) DateDiff(col Frag, now time.Time, unit operator.DateUnit) Frag {
	return Wrap(fmt.Sprintf("TIMESTAMPDIFF(%s, %%s, %%s)", unit), col, Param(now.UTC()))
}

var mysqlFormat = map[string]string{"YYYY": "%Y", "MM": "%m", "DD": "%d", "HH": "%H", "mm": "%i", "ss": "%s"}

func (MySQL) DateFormat(col Frag, pattern string) Frag {
	f := formatTokens(pattern, mysqlFormat, func(s string) string { return strings.ReplaceAll(s, "%", "%%") })
	return Wrap("DATE_FORMAT(%s, %s)", col, Param(f))
}

func (MySQL) GroupFirst(col, key Frag) Frag {
	return Wrap("JSON_UNQUOTE(JSON_EXTRACT(JSON_ARRAYAGG(%s), '$[0]'))", col)
}

func (MySQL) GroupLast(col, key Frag) Frag {
	return Wrap("JSON_UNQUOTE(JSON_EXTRACT(JSON_ARRAYAGG(%s), CONCAT('$[', COUNT(*) - 1, ']')))", col)
}

func (MySQL) GroupArray(col, key Frag) Frag {
	return Wrap("JSON_ARRAYAGG(%s)", col)
}

func (MySQL) LimitOffset(limit, offset int) string {
	switch {
	case limit > 0 && offset > 0:
		return fmt.Sprintf("LIMIT %d OFFSET %d", limit, offset)
	case limit > 0:
		return fmt.Sprintf("LIMIT %d", limit)
	case offset > 0:
		return fmt.Sprintf("LIMIT 18446744073709551615 OFFSET %d", offset)
	}
	return ""
}
