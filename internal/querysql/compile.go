package querysql

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/roach88/storekit/internal/backend"
	"github.com/roach88/storekit/internal/errs"
	"github.com/roach88/storekit/internal/operator"
	"github.com/roach88/storekit/internal/queryir"
	"github.com/roach88/storekit/internal/translate"
)

// Compiler compiles portable queries to parameterized SQL for one dialect.
//
// CRITICAL: every row-returning statement has an ORDER BY ending in the
// primary key, so results are deterministic.
// CRITICAL: values are always bound as parameters, never interpolated.
type Compiler struct {
	d     Dialect
	exprs *translate.Compiler[Frag]
	flat  *translate.Compiler[Frag]
	where *translate.Translator[Frag]
	cache *Cache
}

// Option configures a Compiler.
type Option func(*config)

type config struct {
	now   func() time.Time
	cache *Cache
}

// WithClock sets the source of "now" for date DIFF expressions.
func WithClock(now func() time.Time) Option {
	return func(c *config) { c.now = now }
}

// WithCache caches compiled pipeline statements.
func WithCache(cache *Cache) Option {
	return func(c *config) { c.cache = cache }
}

// NewCompiler creates a Compiler for d.
func NewCompiler(d Dialect, opts ...Option) *Compiler {
	cfg := config{now: time.Now}
	for _, opt := range opts {
		opt(&cfg)
	}
	clock := translate.WithClock(cfg.now)
	return &Compiler{
		d:     d,
		exprs: translate.NewCompiler(primitives(d, tableColumns(d)), clock),
		flat:  translate.NewCompiler(primitives(d, outputColumns(d)), clock),
		where: translate.NewTranslator(filters(d, tableColumns(d))),
		cache: cfg.cache,
	}
}

// Dialect returns the compiler's dialect.
func (c *Compiler) Dialect() Dialect { return c.d }

// Where compiles a filter to a boolean SQL fragment.
func (c *Compiler) Where(f queryir.Filter) (Frag, error) {
	return c.where.Where(f)
}

func (c *Compiler) whereClause(f queryir.Filter) (Frag, error) {
	if f == nil {
		return Frag{}, nil
	}
	w, err := c.where.Where(f)
	if err != nil {
		return Frag{}, fmt.Errorf("compile filter: %w", err)
	}
	return Wrap(" WHERE %s", w), nil
}

func (c *Compiler) finish(f Frag, json ...string) Statement {
	return Statement{SQL: c.d.Rebind(f.SQL), Args: f.Args, JSON: json}
}

func (c *Compiler) table(m backend.Model) Frag {
	return Raw(c.d.Quote(m.Table))
}

func (c *Compiler) ident(name string) Frag {
	return Raw(c.d.Quote(name))
}

func (c *Compiler) key(m backend.Model) Frag {
	return Raw(c.d.Quote(m.KeyColumn()))
}

func (c *Compiler) column(field string) Frag {
	return tableColumns(c.d)(queryir.Path(field))
}

// orderBy renders sorts followed by the primary key tiebreaker.
func (c *Compiler) orderBy(m backend.Model, sorts []queryir.Sort, resolve func(string) Frag) (Frag, error) {
	parts := make([]Frag, 0, len(sorts)+1)
	keyed := false
	for _, s := range sorts {
		dir := "ASC"
		switch s.Direction {
		case operator.Asc, "":
		case operator.Desc:
			dir = "DESC"
		default:
			return Frag{}, errs.Validation("sort direction for %q must be asc or desc", s.Field)
		}
		parts = append(parts, Wrap("%s "+dir, resolve(s.Field)))
		if s.Field == m.KeyColumn() {
			keyed = true
		}
	}
	if !keyed {
		parts = append(parts, Wrap("%s ASC", c.key(m)))
	}
	return Wrap(" ORDER BY %s", Join(", ", parts)), nil
}

func (c *Compiler) page(limit, offset int) string {
	if lo := c.d.LimitOffset(limit, offset); lo != "" {
		return " " + lo
	}
	return ""
}

// Select compiles a find query.
func (c *Compiler) Select(m backend.Model, q backend.Query) (Statement, error) {
	cols := Raw("*")
	if len(q.Select) > 0 {
		fields := append(append([]string(nil), q.Select...), q.Relations...)
		cols = c.projection(dedupe(fields))
	}
	where, err := c.whereClause(q.Filter)
	if err != nil {
		return Statement{}, err
	}
	order, err := c.orderBy(m, q.Order, c.column)
	if err != nil {
		return Statement{}, err
	}
	f := Wrap("SELECT %s FROM %s%s%s", cols, c.table(m), where, order)
	f.SQL += c.page(q.Take, q.Skip)
	return c.finish(f), nil
}

func (c *Compiler) projection(fields []string) Frag {
	parts := make([]Frag, len(fields))
	for i, field := range fields {
		col := c.column(field)
		if strings.Contains(field, ".") {
			col = Wrap("%s AS %s", col, c.ident(field))
		}
		parts[i] = col
	}
	return Join(", ", parts)
}

func dedupe(fields []string) []string {
	seen := make(map[string]bool, len(fields))
	out := fields[:0]
	for _, f := range fields {
		if !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	return out
}

// SelectKeys selects the primary keys of matching rows in key order.
// A positive limit restricts the count.
func (c *Compiler) SelectKeys(m backend.Model, filter queryir.Filter, limit int) (Statement, error) {
	where, err := c.whereClause(filter)
	if err != nil {
		return Statement{}, err
	}
	f := Wrap("SELECT %s FROM %s%s ORDER BY %s ASC", c.key(m), c.table(m), where, c.key(m))
	f.SQL += c.page(limit, 0)
	return c.finish(f), nil
}

// SelectByKeys selects full rows by primary key in key order.
func (c *Compiler) SelectByKeys(m backend.Model, keys []any) Statement {
	f := Wrap("SELECT * FROM %s WHERE %s IN (%s) ORDER BY %s ASC", c.table(m), c.key(m), Params(keys), c.key(m))
	return c.finish(f)
}

// Insert compiles a single-row insert. Columns are emitted in name order.
func (c *Compiler) Insert(m backend.Model, rec backend.Record) (Statement, error) {
	if len(rec) == 0 {
		return Statement{}, errs.Validation("insert into %s has no columns", m.Table)
	}
	names := make([]string, 0, len(rec))
	for k := range rec {
		names = append(names, k)
	}
	sort.Strings(names)

	cols := make([]Frag, len(names))
	vals := make([]any, len(names))
	for i, n := range names {
		cols[i] = c.ident(n)
		vals[i] = c.d.Value(rec[n])
	}
	f := Wrap("INSERT INTO %s (%s) VALUES (%s)", c.table(m), Join(", ", cols), Params(vals))
	return c.finish(f), nil
}

// UpdateByKeys compiles an update of the rows with the given keys.
// Assignments apply before deltas; deltas on one column chain in order.
func (c *Compiler) UpdateByKeys(m backend.Model, plan translate.UpdatePlan, keys []any) (Statement, error) {
	if plan.IsEmpty() {
		return Statement{}, errs.Validation(errs.MsgUpdateRequired)
	}
	cols := plan.Columns()
	sets := make([]Frag, 0, len(cols))
	for _, cu := range cols {
		if strings.Contains(cu.Field, ".") {
			return Statement{}, errs.Validation("nested update field %q is not supported by %s", cu.Field, c.d.Name())
		}
		v, err := c.exprs.Column(cu)
		if err != nil {
			return Statement{}, err
		}
		sets = append(sets, Wrap("%s = %s", c.ident(cu.Field), v))
	}
	f := Wrap("UPDATE %s SET %s WHERE %s IN (%s)", c.table(m), Join(", ", sets), c.key(m), Params(keys))
	return c.finish(f), nil
}

// DeleteByKeys compiles a delete of the rows with the given keys.
func (c *Compiler) DeleteByKeys(m backend.Model, keys []any) Statement {
	return c.finish(Wrap("DELETE FROM %s WHERE %s IN (%s)", c.table(m), c.key(m), Params(keys)))
}

// Clear compiles a delete of every row.
func (c *Compiler) Clear(m backend.Model) Statement {
	return c.finish(Wrap("DELETE FROM %s", c.table(m)))
}

// Aggregate compiles reducers over all matching rows into a single row.
func (c *Compiler) Aggregate(m backend.Model, filter queryir.Filter, reducers []backend.Reducer) (Statement, error) {
	if len(reducers) == 0 {
		return Statement{}, errs.Validation("aggregate requires at least one function")
	}
	parts := make([]Frag, len(reducers))
	var jsonCols []string
	for i, r := range reducers {
		var col Frag
		if r.Field != "" {
			col = c.column(r.Field)
		}
		agg, err := aggregate(c.d, r.Func, col, c.key(m), r.Field != "")
		if err != nil {
			return Statement{}, err
		}
		parts[i] = Wrap("%s AS %s", agg, c.ident(r.Alias))
		if r.Func == operator.Array {
			jsonCols = append(jsonCols, r.Alias)
		}
	}
	where, err := c.whereClause(filter)
	if err != nil {
		return Statement{}, err
	}
	return c.finish(Wrap("SELECT %s FROM %s%s", Join(", ", parts), c.table(m), where), jsonCols...), nil
}

// Distinct compiles the distinct non-null values of one field.
func (c *Compiler) Distinct(m backend.Model, field string, filter queryir.Filter) (Statement, error) {
	if field == "" {
		return Statement{}, errs.Validation("distinct requires a field")
	}
	col := c.column(field)
	where, err := c.whereClause(queryir.Conjoin(filter, queryir.Where(field, operator.OpNotNull, nil)))
	if err != nil {
		return Statement{}, err
	}
	return c.finish(Wrap("SELECT DISTINCT %s AS %s FROM %s%s ORDER BY 1", col, c.ident(field), c.table(m), where)), nil
}
