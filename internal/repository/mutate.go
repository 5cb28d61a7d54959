package repository

import (
	"context"
	"errors"
	"sort"

	"github.com/roach88/storekit/internal/backend"
	"github.com/roach88/storekit/internal/errs"
	"github.com/roach88/storekit/internal/expr"
	"github.com/roach88/storekit/internal/queryir"
)

// updateFields lists the fields u writes: assignments in name order, then
// delta targets.
func updateFields(u queryir.Update) []string {
	out := make([]string, 0, len(u.Set)+len(u.Deltas))
	for f := range u.Set {
		out = append(out, f)
	}
	sort.Strings(out)
	for _, d := range u.Deltas {
		out = append(out, d.Field)
	}
	return out
}

func (r *Repository[T]) checkAmount(op string, opts IncrementOptions) error {
	if err := check(op, opts); err != nil {
		return err
	}
	if !expr.IsNumber(opts.Value) {
		return errs.Validation("%s amount must be a number, got %T", op, opts.Value).WithOp(op)
	}
	return r.checkFields(op, opts.Where, opts.ColumnName)
}

func (r *Repository[T]) updateFirst(ctx context.Context, op string, filter queryir.Filter, u queryir.Update) (*T, error) {
	var rec backend.Record
	err := r.run(ctx, op, func(x backend.Executor) (err error) {
		rec, err = x.Update(ctx, r.model, filter, u)
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

func (r *Repository[T]) updateAll(ctx context.Context, op string, filter queryir.Filter, u queryir.Update) ([]T, error) {
	var recs []backend.Record
	err := r.run(ctx, op, func(x backend.Executor) (err error) {
		recs, err = x.UpdateMany(ctx, r.model, filter, u)
		return err
	})
	if err != nil {
		return nil, err
	}
	return fromRecords[T](recs)
}

func (r *Repository[T]) requireSoftDelete(op, column string) error {
	if r.softDeletable(column) {
		return nil
	}
	return errs.Validation("entity %s has no soft-delete column %q", r.model.Name, column).WithOp(op)
}

// UpdateOne changes the first live match and returns it, or nil.
func (r *Repository[T]) UpdateOne(ctx context.Context, opts UpdateOptions) (*T, error) {
	if opts.Update.IsEmpty() {
		return nil, errs.Validation(errs.MsgUpdateRequired).WithOp("updateOne")
	}
	if err := r.checkFields("updateOne", opts.Where, updateFields(opts.Update)...); err != nil {
		return nil, err
	}
	filter := r.live(opts.Where, r.column(opts.Options.SoftDeleteColumn), opts.Options.WithDeleted)
	return r.updateFirst(ctx, "updateOne", filter, opts.Update)
}

// UpdateMany changes every live match and returns them.
func (r *Repository[T]) UpdateMany(ctx context.Context, opts UpdateOptions) ([]T, error) {
	if opts.Update.IsEmpty() {
		return nil, errs.Validation(errs.MsgUpdateRequired).WithOp("updateMany")
	}
	if err := r.checkFields("updateMany", opts.Where, updateFields(opts.Update)...); err != nil {
		return nil, err
	}
	filter := r.live(opts.Where, r.column(opts.Options.SoftDeleteColumn), opts.Options.WithDeleted)
	return r.updateAll(ctx, "updateMany", filter, opts.Update)
}

// UpsertOne applies Update to the first live match, or creates Create
// when nothing matches. An empty Update returns the match unchanged.
func (r *Repository[T]) UpsertOne(ctx context.Context, opts UpsertOptions[T]) (*T, error) {
	if err := r.checkFields("upsertOne", opts.Where, updateFields(opts.Update)...); err != nil {
		return nil, err
	}
	filter := r.live(opts.Where, r.column(opts.Options.SoftDeleteColumn), opts.Options.WithDeleted)

	var found backend.Record
	err := r.run(ctx, "upsertOne", func(x backend.Executor) (err error) {
		found, err = x.FindFirst(ctx, r.model, backend.Query{Filter: filter})
		return err
	})
	switch {
	case errors.Is(err, backend.ErrNoRecord):
		return r.InsertOne(ctx, opts.Create)
	case err != nil:
		return nil, err
	case opts.Update.IsEmpty():
		return r.one(found)
	}

	key := r.model.KeyColumn()
	return r.updateFirst(ctx, "upsertOne", queryir.Eq(key, found[key]), opts.Update)
}

// DeleteOne removes the first match and returns its snapshot, or nil.
// Soft-deleted rows are matched too.
func (r *Repository[T]) DeleteOne(ctx context.Context, opts DeleteOptions) (*T, error) {
	if err := r.checkFields("deleteOne", opts.Where); err != nil {
		return nil, err
	}
	var rec backend.Record
	err := r.run(ctx, "deleteOne", func(x backend.Executor) (err error) {
		rec, err = x.Delete(ctx, r.model, opts.Where)
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

// DeleteMany removes every match and returns the snapshots.
func (r *Repository[T]) DeleteMany(ctx context.Context, opts DeleteOptions) ([]T, error) {
	if err := r.checkFields("deleteMany", opts.Where); err != nil {
		return nil, err
	}
	var recs []backend.Record
	err := r.run(ctx, "deleteMany", func(x backend.Executor) (err error) {
		recs, err = x.DeleteMany(ctx, r.model, opts.Where)
		return err
	})
	if err != nil {
		return nil, err
	}
	return fromRecords[T](recs)
}

// SoftDeleteOne flags the first live match as deleted and returns it, or
// nil. An already deleted row is not live, so flagging it again yields
// nil.
func (r *Repository[T]) SoftDeleteOne(ctx context.Context, opts DeleteOptions) (*T, error) {
	col := r.column(opts.Options.SoftDeleteColumn)
	if err := r.requireSoftDelete("softDeleteOne", col); err != nil {
		return nil, err
	}
	if err := r.checkFields("softDeleteOne", opts.Where); err != nil {
		return nil, err
	}
	filter := r.live(opts.Where, col, opts.Options.WithDeleted)
	return r.updateFirst(ctx, "softDeleteOne", filter, queryir.Set(map[string]any{col: true}))
}

// SoftDeleteMany flags every live match as deleted.
func (r *Repository[T]) SoftDeleteMany(ctx context.Context, opts DeleteOptions) ([]T, error) {
	col := r.column(opts.Options.SoftDeleteColumn)
	if err := r.requireSoftDelete("softDeleteMany", col); err != nil {
		return nil, err
	}
	if err := r.checkFields("softDeleteMany", opts.Where); err != nil {
		return nil, err
	}
	filter := r.live(opts.Where, col, opts.Options.WithDeleted)
	return r.updateAll(ctx, "softDeleteMany", filter, queryir.Set(map[string]any{col: true}))
}

// RestoreOne clears the flag of the first deleted match. Nothing to
// restore is a NOT_FOUND error, so restoring twice fails the second time.
func (r *Repository[T]) RestoreOne(ctx context.Context, opts DeleteOptions) (*T, error) {
	col := r.column(opts.Options.SoftDeleteColumn)
	if err := r.requireSoftDelete("restoreOne", col); err != nil {
		return nil, err
	}
	if err := r.checkFields("restoreOne", opts.Where); err != nil {
		return nil, err
	}
	filter := queryir.Conjoin(opts.Where, queryir.Eq(col, true))
	v, err := r.updateFirst(ctx, "restoreOne", filter, queryir.Set(map[string]any{col: false}))
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, errs.NotFound(errs.MsgNotFoundOrRestore).WithOp("restoreOne")
	}
	return v, nil
}

// RestoreMany clears the flag of every deleted match. Nothing to restore
// is a NOT_FOUND error.
func (r *Repository[T]) RestoreMany(ctx context.Context, opts DeleteOptions) ([]T, error) {
	col := r.column(opts.Options.SoftDeleteColumn)
	if err := r.requireSoftDelete("restoreMany", col); err != nil {
		return nil, err
	}
	if err := r.checkFields("restoreMany", opts.Where); err != nil {
		return nil, err
	}
	filter := queryir.Conjoin(opts.Where, queryir.Eq(col, true))
	vs, err := r.updateAll(ctx, "restoreMany", filter, queryir.Set(map[string]any{col: false}))
	if err != nil {
		return nil, err
	}
	if len(vs) == 0 {
		return nil, errs.NotFound(errs.MsgNotFoundOrRestore).WithOp("restoreMany")
	}
	return vs, nil
}

// Increment adds Value to ColumnName on every live match.
func (r *Repository[T]) Increment(ctx context.Context, opts IncrementOptions) ([]T, error) {
	if err := r.checkAmount("increment", opts); err != nil {
		return nil, err
	}
	filter := r.live(opts.Where, r.column(opts.Options.SoftDeleteColumn), opts.Options.WithDeleted)
	return r.updateAll(ctx, "increment", filter, queryir.Update{}.Inc(opts.ColumnName, opts.Value))
}

// Decrement subtracts Value from ColumnName on every live match.
func (r *Repository[T]) Decrement(ctx context.Context, opts IncrementOptions) ([]T, error) {
	if err := r.checkAmount("decrement", opts); err != nil {
		return nil, err
	}
	filter := r.live(opts.Where, r.column(opts.Options.SoftDeleteColumn), opts.Options.WithDeleted)
	return r.updateAll(ctx, "decrement", filter, queryir.Update{}.Dec(opts.ColumnName, opts.Value))
}
