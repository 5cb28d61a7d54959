package querysql

import (
	"fmt"
	"strings"
	"time"

	"github.com/roach88/storekit/internal/operator"
)

// Postgres is the dialect of lib/pq. JSON columns are jsonb.
type Postgres struct{}

func (Postgres) Name() string              { return "postgres" }
func (Postgres) Quote(ident string) string { return quoteWith(`"`, ident) }
func (Postgres) Rebind(sql string) string  { return rebindDollar(sql) }

func (Postgres) Value(v any) any {
	if t, ok := v.(time.Time); ok {
		return t.UTC()
	}
	return jsonValue(v)
}

func (d Postgres) JSONPath(col string, path []string) Frag {
	segs := make([]string, len(path))
	for i, p := range path {
		segs[i] = `"` + strings.ReplaceAll(p, `"`, `\"`) + `"`
	}
	return Raw(fmt.Sprintf("(%s #>> CAST(? AS text[]))", d.Quote(col)), "{"+strings.Join(segs, ",")+"}")
}

func (Postgres) Like(col Frag, mode LikeMode, value string, fold bool) Frag {
	op := "LIKE"
	if fold {
		op = "ILIKE"
	}
	return Wrap(fmt.Sprintf(`CAST(%%s AS text) %s %%s ESCAPE '\'`, op), col, Param(likePattern(mode, escapeLike(value))))
}

func (Postgres) Regexp(col Frag, pattern string) Frag {
	return Wrap("CAST(%s AS text) ~ %s", col, Param(pattern))
}

func (Postgres) ArrayLength(col Frag) Frag {
	return Wrap("jsonb_array_length(CAST(%s AS jsonb))", col)
}

func (Postgres) ArrayHasAny(col Frag, values []any) Frag {
	texts := make([]any, len(values))
	for i, v := range values {
		texts[i] = fmt.Sprint(v)
	}
	return Wrap("EXISTS (SELECT 1 FROM jsonb_array_elements_text(CAST(%s AS jsonb)) AS elem(v) WHERE elem.v IN (%s))", col, Params(texts))
}

func (Postgres) Concat(args []Frag) Frag {
	cast := make([]Frag, len(args))
	for i, a := range args {
		cast[i] = Wrap("CAST(%s AS text)", a)
	}
	return Wrap("(%s)", Join(" || ", cast))
}

func (Postgres) Length(s Frag) Frag {
	return Wrap("LENGTH(CAST(%s AS text))", s)
}

var postgresParts = map[operator.DatePart]string{
	operator.PartYear:      "YEAR",
	operator.PartMonth:     "MONTH",
	operator.PartDay:       "DAY",
	operator.PartHour:      "HOUR",
	operator.PartMinute:    "MINUTE",
	operator.PartSecond:    "SECOND",
	operator.PartDayOfWeek: "DOW",
}

func (Postgres) Extract(part operator.DatePart, col Frag) Frag {
	return Wrap(fmt.Sprintf("CAST(EXTRACT(%s FROM CAST(%%s AS timestamp)) AS integer)", postgresParts[part]), col)
}

func (Postgres) DateAdd(col Frag, amount float64, unit operator.DateUnit) Frag {
	return Wrap(fmt.Sprintf("(CAST(%%s AS timestamp) + %%s * INTERVAL '1 %s')", strings.ToLower(string(unit))), col, Param(amount))
}

func (Postgres) DateDiff(col Frag, now time.Time, unit operator.DateUnit) Frag {
	n := Param(now.UTC())
	switch unit {
	case operator.UnitMonth:
		return Wrap("CAST(EXTRACT(YEAR FROM age(CAST(%s AS timestamp), CAST(%s AS timestamp))) * 12 + EXTRACT(MONTH FROM age(CAST(%s AS timestamp), CAST(%s AS timestamp))) AS integer)", n, col, n, col)
	case operator.UnitYear:
		return Wrap("CAST(EXTRACT(YEAR FROM age(CAST(%s AS timestamp), CAST(%s AS timestamp))) AS integer)", n, col)
	}
	return Wrap(fmt.Sprintf("CAST(TRUNC(EXTRACT(EPOCH FROM (CAST(%%s AS timestamp) - CAST(%%s AS timestamp))) / %d) AS integer)", unitSeconds[unit]), n, col)
}

var postgresFormat = map[string]string{"YYYY": "YYYY", "MM": "MM", "DD": "DD", "HH": "HH24", "mm": "MI", "ss": "SS"}

func (Postgres) DateFormat(col Frag, pattern string) Frag {
	f := formatTokens(pattern, postgresFormat, func(s string) string {
		return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
	})
	return Wrap("to_char(CAST(%s AS timestamp), %s)", col, Param(f))
}

func (Postgres) GroupFirst(col, key Frag) Frag {
	return Wrap("(array_agg(%s ORDER BY %s))[1]", col, key)
}

func (Postgres) GroupLast(col, key Frag) Frag {
	return Wrap("(array_agg(%s ORDER BY %s DESC))[1]", col, key)
}

func (Postgres) GroupArray(col, key Frag) Frag {
	return Wrap("jsonb_agg(%s ORDER BY %s)", col, key)
}

func (Postgres) LimitOffset(limit, offset int) string {
	var parts []string
	if limit > 0 {
		parts = append(parts, fmt.Sprintf("LIMIT %d", limit))
	}
	if offset > 0 {
		parts = append(parts, fmt.Sprintf("OFFSET %d", offset))
	}
	return strings.Join(parts, " ")
}
