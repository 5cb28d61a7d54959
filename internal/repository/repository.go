package repository

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/roach88/storekit/internal/backend"
	"github.com/roach88/storekit/internal/errs"
	"github.com/roach88/storekit/internal/queryir"
)

// Repository is the data-access facade of one entity type.
type Repository[T any] struct {
	conn       *Connection
	model      backend.Model
	softDelete string
	log        *zap.Logger
}

// Model returns the entity's model.
func (r *Repository[T]) Model() backend.Model {
	return r.model
}

// Connection returns the connection the repository runs on.
func (r *Repository[T]) Connection() *Connection {
	return r.conn
}

// WithSoftDeleteColumn returns a copy of r using column as its default
// soft-delete flag.
func (r *Repository[T]) WithSoftDeleteColumn(column string) *Repository[T] {
	c := *r
	c.softDelete = column
	return &c
}

// run executes one backend call through the active transaction, if any,
// logging its duration and failure.
func (r *Repository[T]) run(ctx context.Context, op string, fn func(backend.Executor) error) error {
	start := time.Now()
	err := fn(r.conn.executor())
	if err != nil && !errors.Is(err, backend.ErrNoRecord) {
		r.log.Warn(op, zap.Error(err), zap.Duration("duration", time.Since(start)))
		return wrap(op, err)
	}
	r.log.Debug(op, zap.Duration("duration", time.Since(start)))
	return err
}

// column returns override, or the repository's soft-delete column when
// override is empty.
func (r *Repository[T]) column(override string) string {
	if override != "" {
		return override
	}
	return r.softDelete
}

// softDeletable reports whether the entity carries column.
func (r *Repository[T]) softDeletable(column string) bool {
	return SoftDeletable(r.model, column)
}

func (r *Repository[T]) live(where queryir.Filter, column string, withDeleted bool) queryir.Filter {
	return LiveFilter(r.model, where, column, withDeleted)
}

// SoftDeletable reports whether m carries the soft-delete column. Models
// that declare no fields are assumed to.
func SoftDeletable(m backend.Model, column string) bool {
	if column == "" {
		return false
	}
	if len(m.Fields) == 0 {
		return true
	}
	for _, f := range m.Fields {
		if f == column {
			return true
		}
	}
	return false
}

// LiveFilter restricts where to rows of m not soft deleted. A NULL flag
// counts as not deleted. where is returned unchanged when withDeleted is
// set or m has no such column.
func LiveFilter(m backend.Model, where queryir.Filter, column string, withDeleted bool) queryir.Filter {
	if withDeleted || !SoftDeletable(m, column) {
		return where
	}
	return queryir.Conjoin(where, queryir.Or(queryir.IsNull(column), queryir.Eq(column, false)))
}

// checkFields rejects where and fields when they name a column the model
// does not declare. Models without declared fields accept any name.
func (r *Repository[T]) checkFields(op string, where queryir.Filter, fields ...string) error {
	if len(r.model.Fields) == 0 {
		return nil
	}
	known := make(map[string]bool, len(r.model.Fields)+1)
	known[r.model.KeyColumn()] = true
	for _, f := range r.model.Fields {
		known[f] = true
	}
	for _, f := range append(queryir.Columns(where), fields...) {
		if !known[queryir.Path(f)[0]] {
			return errs.Validation("unknown field %q on %s", f, r.model.Name).WithOp(op)
		}
	}
	return nil
}

// queryFields lists the fields a read selects, loads or sorts by.
func queryFields(sel, relations []string, order []queryir.Sort) []string {
	out := make([]string, 0, len(sel)+len(relations)+len(order))
	out = append(out, sel...)
	out = append(out, relations...)
	for _, s := range order {
		out = append(out, s.Field)
	}
	return out
}

func (r *Repository[T]) one(rec backend.Record) (*T, error) {
	v, err := fromRecord[T](rec)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// FindOne returns the first match, or nil.
func (r *Repository[T]) FindOne(ctx context.Context, opts FindOneOptions) (*T, error) {
	if err := r.checkFields("findOne", opts.Where, queryFields(opts.Select, opts.Relations, opts.Order)...); err != nil {
		return nil, err
	}
	q := backend.Query{
		Filter:    r.live(opts.Where, r.column(opts.SoftDeleteColumn), opts.WithDeleted),
		Select:    opts.Select,
		Relations: opts.Relations,
		Order:     opts.Order,
	}
	var rec backend.Record
	err := r.run(ctx, "findOne", func(x backend.Executor) (err error) {
		rec, err = x.FindFirst(ctx, r.model, q)
		return err
	})
	if errors.Is(err, backend.ErrNoRecord) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return r.one(rec)
}

// FindOneOrFail is FindOne with a NOT_FOUND error instead of nil.
func (r *Repository[T]) FindOneOrFail(ctx context.Context, opts FindOneOptions) (*T, error) {
	v, err := r.FindOne(ctx, opts)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, errs.NotFound(errs.MsgNotFound).WithOp("findOneOrFail")
	}
	return v, nil
}

// FindMany returns every match.
func (r *Repository[T]) FindMany(ctx context.Context, opts FindManyOptions) ([]T, error) {
	if err := check("findMany", opts); err != nil {
		return nil, err
	}
	if err := r.checkFields("findMany", opts.Where, queryFields(opts.Select, opts.Relations, opts.Order)...); err != nil {
		return nil, err
	}
	q := backend.Query{
		Filter:    r.live(opts.Where, r.column(opts.SoftDeleteColumn), opts.WithDeleted),
		Select:    opts.Select,
		Relations: opts.Relations,
		Order:     opts.Order,
		Skip:      opts.Skip,
		Take:      opts.Limit,
	}
	var recs []backend.Record
	err := r.run(ctx, "findMany", func(x backend.Executor) (err error) {
		recs, err = x.FindMany(ctx, r.model, q)
		return err
	})
	if err != nil {
		return nil, err
	}
	return fromRecords[T](recs)
}

// FindByID returns the entity with key id, or nil.
func (r *Repository[T]) FindByID(ctx context.Context, id any) (*T, error) {
	return r.FindOne(ctx, FindOneOptions{Where: queryir.Eq(r.model.KeyColumn(), id)})
}

// FindByIDs returns the entities whose key is in ids, in key order.
func (r *Repository[T]) FindByIDs(ctx context.Context, ids []any) ([]T, error) {
	if len(ids) == 0 {
		return []T{}, nil
	}
	return r.FindMany(ctx, FindManyOptions{Where: queryir.In(r.model.KeyColumn(), ids...)})
}

// InsertOne stores entity and returns it as stored. A missing key is
// generated.
func (r *Repository[T]) InsertOne(ctx context.Context, entity T) (*T, error) {
	data, err := toRecord(entity)
	if err != nil {
		return nil, wrap("insertOne", err)
	}
	var rec backend.Record
	err = r.run(ctx, "insertOne", func(x backend.Executor) (err error) {
		rec, err = x.Create(ctx, r.model, data)
		return err
	})
	if err != nil {
		return nil, err
	}
	return r.one(rec)
}

// InsertMany stores entities in order. An empty input returns an empty
// slice without touching the backend.
func (r *Repository[T]) InsertMany(ctx context.Context, entities []T) ([]T, error) {
	if len(entities) == 0 {
		return []T{}, nil
	}
	data := make([]backend.Record, len(entities))
	for i, e := range entities {
		rec, err := toRecord(e)
		if err != nil {
			return nil, wrap("insertMany", err)
		}
		data[i] = rec
	}
	var recs []backend.Record
	err := r.run(ctx, "insertMany", func(x backend.Executor) (err error) {
		recs, err = x.CreateMany(ctx, r.model, data)
		return err
	})
	if err != nil {
		return nil, err
	}
	return fromRecords[T](recs)
}

// BeginTransaction opens a transaction on the repository's connection.
func (r *Repository[T]) BeginTransaction(ctx context.Context) (*Transaction, error) {
	return r.conn.Begin(ctx)
}

// CommitTransaction commits tx, which must belong to this connection.
func (r *Repository[T]) CommitTransaction(ctx context.Context, tx *Transaction) error {
	return r.conn.Commit(ctx, tx)
}

// RollbackTransaction rolls back tx, which must belong to this
// connection.
func (r *Repository[T]) RollbackTransaction(ctx context.Context, tx *Transaction) error {
	return r.conn.Rollback(ctx, tx)
}
