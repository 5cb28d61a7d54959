package store

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"

	"github.com/roach88/storekit/internal/backend"
	"github.com/roach88/storekit/internal/errs"
	"github.com/roach88/storekit/internal/pipeline"
	"github.com/roach88/storekit/internal/queryir"
	"github.com/roach88/storekit/internal/querysql"
	"github.com/roach88/storekit/internal/translate"
)

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// executor implements backend.Executor over a querier.
type executor struct {
	q    querier
	c    *querysql.Compiler
	log  *zap.Logger
	keys backend.KeyGenerator
}

func (e *executor) on(q querier) *executor {
	return &executor{q: q, c: e.c, log: e.log, keys: e.keys}
}

func (e *executor) trace(st querysql.Statement, start time.Time) {
	e.log.Debug("statement",
		zap.String("sql", st.SQL),
		zap.Int("args", len(st.Args)),
		zap.Duration("duration", time.Since(start)))
}

func (e *executor) exec(ctx context.Context, st querysql.Statement) (int64, error) {
	defer e.trace(st, time.Now())
	res, err := e.q.ExecContext(ctx, st.SQL, st.Args...)
	if err != nil {
		return 0, mapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, mapError(err)
	}
	return n, nil
}

func (e *executor) query(ctx context.Context, m backend.Model, st querysql.Statement) ([]backend.Record, error) {
	defer e.trace(st, time.Now())
	rows, err := e.q.QueryContext(ctx, st.SQL, st.Args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	out, err := scanRecords(rows, m, st.JSON)
	if err != nil {
		return nil, mapError(err)
	}
	return out, nil
}

func (e *executor) first(ctx context.Context, m backend.Model, st querysql.Statement) (backend.Record, error) {
	recs, err := e.query(ctx, m, st)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, backend.ErrNoRecord
	}
	return recs[0], nil
}

// matchKeys returns the primary keys of matching rows in key order.
func (e *executor) matchKeys(ctx context.Context, m backend.Model, filter queryir.Filter, limit int) ([]any, error) {
	st, err := e.c.SelectKeys(m, filter, limit)
	if err != nil {
		return nil, err
	}
	defer e.trace(st, time.Now())
	rows, err := e.q.QueryContext(ctx, st.SQL, st.Args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var keys []any
	for rows.Next() {
		var k any
		if err := rows.Scan(&k); err != nil {
			return nil, mapError(err)
		}
		if b, ok := k.([]byte); ok {
			k = string(b)
		}
		keys = append(keys, k)
	}
	return keys, mapError(rows.Err())
}

func (e *executor) FindFirst(ctx context.Context, m backend.Model, q backend.Query) (backend.Record, error) {
	q.Take = 1
	st, err := e.c.Select(m, q)
	if err != nil {
		return nil, err
	}
	return e.first(ctx, m, st)
}

func (e *executor) FindMany(ctx context.Context, m backend.Model, q backend.Query) ([]backend.Record, error) {
	st, err := e.c.Select(m, q)
	if err != nil {
		return nil, err
	}
	return e.query(ctx, m, st)
}

func (e *executor) Create(ctx context.Context, m backend.Model, data backend.Record) (backend.Record, error) {
	rec := make(backend.Record, len(data)+1)
	for k, v := range data {
		rec[k] = v
	}
	key := m.KeyColumn()
	if rec[key] == nil {
		rec[key] = e.keys.Generate()
	}

	st, err := e.c.Insert(m, rec)
	if err != nil {
		return nil, err
	}
	if _, err := e.exec(ctx, st); err != nil {
		return nil, err
	}
	return e.first(ctx, m, e.c.SelectByKeys(m, []any{rec[key]}))
}

func (e *executor) CreateMany(ctx context.Context, m backend.Model, data []backend.Record) ([]backend.Record, error) {
	out := make([]backend.Record, 0, len(data))
	for _, d := range data {
		rec, err := e.Create(ctx, m, d)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (e *executor) Update(ctx context.Context, m backend.Model, filter queryir.Filter, u queryir.Update) (backend.Record, error) {
	recs, err := e.update(ctx, m, filter, u, 1)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, backend.ErrNoRecord
	}
	return recs[0], nil
}

func (e *executor) UpdateMany(ctx context.Context, m backend.Model, filter queryir.Filter, u queryir.Update) ([]backend.Record, error) {
	return e.update(ctx, m, filter, u, 0)
}

func (e *executor) update(ctx context.Context, m backend.Model, filter queryir.Filter, u queryir.Update, limit int) ([]backend.Record, error) {
	plan, err := translate.Update(u)
	if err != nil {
		return nil, err
	}
	if plan.IsEmpty() {
		return nil, errs.Validation(errs.MsgUpdateRequired)
	}

	keys, err := e.matchKeys(ctx, m, filter, limit)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return []backend.Record{}, nil
	}

	st, err := e.c.UpdateByKeys(m, plan, keys)
	if err != nil {
		return nil, err
	}
	if _, err := e.exec(ctx, st); err != nil {
		return nil, err
	}
	return e.query(ctx, m, e.c.SelectByKeys(m, keys))
}

func (e *executor) Delete(ctx context.Context, m backend.Model, filter queryir.Filter) (backend.Record, error) {
	recs, err := e.delete(ctx, m, filter, 1)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, backend.ErrNoRecord
	}
	return recs[0], nil
}

func (e *executor) DeleteMany(ctx context.Context, m backend.Model, filter queryir.Filter) ([]backend.Record, error) {
	return e.delete(ctx, m, filter, 0)
}

func (e *executor) delete(ctx context.Context, m backend.Model, filter queryir.Filter, limit int) ([]backend.Record, error) {
	keys, err := e.matchKeys(ctx, m, filter, limit)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return []backend.Record{}, nil
	}

	snapshot, err := e.query(ctx, m, e.c.SelectByKeys(m, keys))
	if err != nil {
		return nil, err
	}
	if _, err := e.exec(ctx, e.c.DeleteByKeys(m, keys)); err != nil {
		return nil, err
	}
	return snapshot, nil
}

func (e *executor) Aggregate(ctx context.Context, m backend.Model, filter queryir.Filter, reducers []backend.Reducer) (backend.Record, error) {
	st, err := e.c.Aggregate(m, filter, reducers)
	if err != nil {
		return nil, err
	}
	rec, err := e.first(ctx, m, st)
	if err == backend.ErrNoRecord {
		return backend.EmptyReduction(reducers), nil
	}
	return rec, err
}

func (e *executor) GroupBy(ctx context.Context, m backend.Model, plan pipeline.Plan) ([]backend.Record, error) {
	st, err := e.c.Pipeline(m, plan)
	if err != nil {
		return nil, err
	}
	return e.query(ctx, m, st)
}

func (e *executor) Distinct(ctx context.Context, m backend.Model, field string, filter queryir.Filter) ([]any, error) {
	st, err := e.c.Distinct(m, field, filter)
	if err != nil {
		return nil, err
	}
	recs, err := e.query(ctx, m, st)
	if err != nil {
		return nil, err
	}
	path := queryir.Path(field)
	out := make([]any, 0, len(recs))
	for _, r := range recs {
		v, _ := backend.Get(r, path)
		out = append(out, v)
	}
	return out, nil
}

func (e *executor) Clear(ctx context.Context, m backend.Model) (int64, error) {
	return e.exec(ctx, e.c.Clear(m))
}
