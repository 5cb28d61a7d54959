package mongostore

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"

	"github.com/roach88/storekit/internal/backend"
	"github.com/roach88/storekit/internal/pipeline"
	"github.com/roach88/storekit/internal/queryir"
	"github.com/roach88/storekit/internal/querymongo"
	"github.com/roach88/storekit/internal/translate"
)

// executor implements backend.Executor over one database. A non-nil sess
// binds every call to that session's transaction.
type executor struct {
	db   *mongo.Database
	c    *querymongo.Compiler
	log  *zap.Logger
	keys backend.KeyGenerator
	sess *mongo.Session
}

func (e *executor) bind(sess *mongo.Session) *executor {
	return &executor{db: e.db, c: e.c, log: e.log, keys: e.keys, sess: sess}
}

func (e *executor) ctx(ctx context.Context) context.Context {
	if e.sess == nil {
		return ctx
	}
	return mongo.NewSessionContext(ctx, e.sess)
}

func (e *executor) coll(m backend.Model) *mongo.Collection {
	return e.db.Collection(m.Table)
}

func (e *executor) trace(op string, m backend.Model, start time.Time) {
	e.log.Debug(op,
		zap.String("collection", m.Table),
		zap.Duration("duration", time.Since(start)))
}

func keyFilter(keys []any) bson.D {
	return bson.D{{Key: querymongo.KeyField, Value: bson.D{{Key: "$in", Value: bson.A(keys)}}}}
}

func (e *executor) decode(ctx context.Context, m backend.Model, cur *mongo.Cursor) ([]backend.Record, error) {
	defer cur.Close(ctx)
	var docs []bson.M
	if err := cur.All(ctx, &docs); err != nil {
		return nil, mapError(err)
	}
	out := make([]backend.Record, len(docs))
	for i, d := range docs {
		out[i] = fromDocument(m, d)
	}
	return out, nil
}

func (e *executor) find(ctx context.Context, m backend.Model, q backend.Query) ([]backend.Record, error) {
	f, err := e.c.Find(m, q)
	if err != nil {
		return nil, err
	}
	opts := options.Find().SetSort(f.Sort)
	if f.Projection != nil {
		opts.SetProjection(f.Projection)
	}
	if f.Skip > 0 {
		opts.SetSkip(f.Skip)
	}
	if f.Limit > 0 {
		opts.SetLimit(f.Limit)
	}

	defer e.trace("find", m, time.Now())
	ctx = e.ctx(ctx)
	cur, err := e.coll(m).Find(ctx, f.Filter, opts)
	if err != nil {
		return nil, mapError(err)
	}
	return e.decode(ctx, m, cur)
}

func (e *executor) byKeys(ctx context.Context, m backend.Model, keys []any) ([]backend.Record, error) {
	ctx = e.ctx(ctx)
	opts := options.Find().SetSort(bson.D{{Key: querymongo.KeyField, Value: 1}})
	cur, err := e.coll(m).Find(ctx, keyFilter(keys), opts)
	if err != nil {
		return nil, mapError(err)
	}
	return e.decode(ctx, m, cur)
}

// matchKeys returns the _id values of matching documents in key order.
func (e *executor) matchKeys(ctx context.Context, m backend.Model, filter queryir.Filter, limit int) ([]any, error) {
	recs, err := e.find(ctx, m, backend.Query{Filter: filter, Select: []string{m.KeyColumn()}, Take: limit})
	if err != nil {
		return nil, err
	}
	keys := make([]any, len(recs))
	for i, r := range recs {
		keys[i] = r[m.KeyColumn()]
	}
	return keys, nil
}

func (e *executor) aggregate(ctx context.Context, m backend.Model, p mongo.Pipeline) ([]backend.Record, error) {
	defer e.trace("aggregate", m, time.Now())
	ctx = e.ctx(ctx)
	cur, err := e.coll(m).Aggregate(ctx, p)
	if err != nil {
		return nil, mapError(err)
	}
	return e.decode(ctx, m, cur)
}

func (e *executor) FindFirst(ctx context.Context, m backend.Model, q backend.Query) (backend.Record, error) {
	q.Take = 1
	recs, err := e.find(ctx, m, q)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, backend.ErrNoRecord
	}
	return recs[0], nil
}

func (e *executor) FindMany(ctx context.Context, m backend.Model, q backend.Query) ([]backend.Record, error) {
	return e.find(ctx, m, q)
}

func withKey(m backend.Model, data backend.Record, keys backend.KeyGenerator) backend.Record {
	rec := make(backend.Record, len(data)+1)
	for k, v := range data {
		rec[k] = v
	}
	if rec[m.KeyColumn()] == nil {
		rec[m.KeyColumn()] = keys.Generate()
	}
	return rec
}

func (e *executor) Create(ctx context.Context, m backend.Model, data backend.Record) (backend.Record, error) {
	rec := withKey(m, data, e.keys)
	defer e.trace("insert", m, time.Now())
	if _, err := e.coll(m).InsertOne(e.ctx(ctx), toDocument(m, rec)); err != nil {
		return nil, mapError(err)
	}
	recs, err := e.byKeys(ctx, m, []any{rec[m.KeyColumn()]})
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, backend.ErrNoRecord
	}
	return recs[0], nil
}

// CreateMany inserts in order and stops at the first failure. Outside a
// session the documents inserted before the failure remain.
func (e *executor) CreateMany(ctx context.Context, m backend.Model, data []backend.Record) ([]backend.Record, error) {
	if len(data) == 0 {
		return []backend.Record{}, nil
	}
	docs := make([]bson.D, len(data))
	keys := make([]any, len(data))
	for i, d := range data {
		rec := withKey(m, d, e.keys)
		keys[i] = rec[m.KeyColumn()]
		docs[i] = toDocument(m, rec)
	}

	defer e.trace("insert", m, time.Now())
	if _, err := e.coll(m).InsertMany(e.ctx(ctx), docs); err != nil {
		return nil, mapError(err)
	}
	recs, err := e.byKeys(ctx, m, keys)
	if err != nil {
		return nil, err
	}

	// return in input order
	index := make(map[any]backend.Record, len(recs))
	for _, r := range recs {
		index[r[m.KeyColumn()]] = r
	}
	out := make([]backend.Record, 0, len(keys))
	for _, k := range keys {
		if r, ok := index[k]; ok {
			out = append(out, r)
		}
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
	doc, err := e.c.Update(m, plan)
	if err != nil {
		return nil, err
	}

	keys, err := e.matchKeys(ctx, m, filter, limit)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return []backend.Record{}, nil
	}

	defer e.trace("update", m, time.Now())
	if _, err := e.coll(m).UpdateMany(e.ctx(ctx), keyFilter(keys), doc); err != nil {
		return nil, mapError(err)
	}
	return e.byKeys(ctx, m, keys)
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
	snapshot, err := e.byKeys(ctx, m, keys)
	if err != nil {
		return nil, err
	}

	defer e.trace("delete", m, time.Now())
	if _, err := e.coll(m).DeleteMany(e.ctx(ctx), keyFilter(keys)); err != nil {
		return nil, mapError(err)
	}
	return snapshot, nil
}

func (e *executor) Aggregate(ctx context.Context, m backend.Model, filter queryir.Filter, reducers []backend.Reducer) (backend.Record, error) {
	p, err := e.c.Aggregate(m, filter, reducers)
	if err != nil {
		return nil, err
	}
	recs, err := e.aggregate(ctx, m, p)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return backend.EmptyReduction(reducers), nil
	}
	return recs[0], nil
}

// GroupBy runs a plan. $group emits nothing for an empty input, so a
// single implicit group over no documents is synthesized here.
func (e *executor) GroupBy(ctx context.Context, m backend.Model, plan pipeline.Plan) ([]backend.Record, error) {
	p, err := e.c.Pipeline(m, plan)
	if err != nil {
		return nil, err
	}
	recs, err := e.aggregate(ctx, m, p)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 && plan.Grouped() && len(plan.Group.By) == 0 && plan.Skip == 0 {
		return []backend.Record{emptyGroup(plan)}, nil
	}
	return recs, nil
}

func emptyGroup(plan pipeline.Plan) backend.Record {
	reducers := make([]backend.Reducer, len(plan.Group.Functions))
	for i, fn := range plan.Group.Functions {
		reducers[i] = backend.Reducer{Func: fn.Func, Field: fn.Field, Alias: fn.Alias}
	}
	rec := backend.EmptyReduction(reducers)
	if plan.Project == nil {
		return rec
	}
	out := make(backend.Record, len(plan.Project.Fields))
	for _, f := range plan.Project.Fields {
		out[f] = rec[f]
	}
	return out
}

func (e *executor) Distinct(ctx context.Context, m backend.Model, field string, filter queryir.Filter) ([]any, error) {
	p, err := e.c.Distinct(m, field, filter)
	if err != nil {
		return nil, err
	}
	recs, err := e.aggregate(ctx, m, p)
	if err != nil {
		return nil, err
	}
	out := make([]any, len(recs))
	for i, r := range recs {
		// the value is in _id, which fromDocument renamed
		out[i] = r[m.KeyColumn()]
	}
	return out, nil
}

func (e *executor) Clear(ctx context.Context, m backend.Model) (int64, error) {
	defer e.trace("clear", m, time.Now())
	res, err := e.coll(m).DeleteMany(e.ctx(ctx), bson.D{})
	if err != nil {
		return 0, mapError(err)
	}
	return res.DeletedCount, nil
}
