package repository

import (
	"context"
	"strconv"

	"github.com/roach88/storekit/internal/backend"
	"github.com/roach88/storekit/internal/errs"
	"github.com/roach88/storekit/internal/expr"
	"github.com/roach88/storekit/internal/operator"
	"github.com/roach88/storekit/internal/pipeline"
	"github.com/roach88/storekit/internal/queryir"
)

func (r *Repository[T]) reduce(ctx context.Context, op string, filter queryir.Filter, red backend.Reducer) (any, error) {
	var rec backend.Record
	err := r.run(ctx, op, func(x backend.Executor) (err error) {
		rec, err = x.Aggregate(ctx, r.model, filter, []backend.Reducer{red})
		return err
	})
	if err != nil {
		return nil, err
	}
	return rec[red.Alias], nil
}

// number converts a reduced value to float64. Some drivers return
// decimals as text.
func number(v any) (float64, bool) {
	if f, ok := expr.ToFloat(v); ok {
		return f, true
	}
	if s, ok := v.(string); ok {
		f, err := strconv.ParseFloat(s, 64)
		return f, err == nil
	}
	return 0, false
}

// Count returns the number of live matches.
func (r *Repository[T]) Count(ctx context.Context, opts CountOptions) (int64, error) {
	if err := r.checkFields("count", opts.Where); err != nil {
		return 0, err
	}
	filter := r.live(opts.Where, r.column(opts.SoftDeleteColumn), opts.WithDeleted)
	v, err := r.reduce(ctx, "count", filter, backend.Reducer{Func: operator.Count, Alias: "count"})
	if err != nil {
		return 0, err
	}
	n, _ := number(v)
	return int64(n), nil
}

// Exists reports whether any live row matches.
func (r *Repository[T]) Exists(ctx context.Context, opts CountOptions) (bool, error) {
	if err := r.checkFields("exists", opts.Where); err != nil {
		return false, err
	}
	v, err := r.FindOne(ctx, FindOneOptions{Where: opts.Where, WithDeleted: opts.WithDeleted, SoftDeleteColumn: opts.SoftDeleteColumn})
	if err != nil {
		return false, err
	}
	return v != nil, nil
}

func (r *Repository[T]) numeric(ctx context.Context, op string, fn operator.AggregateFunction, opts NumericColumnAggregateOptions) (*float64, error) {
	if err := check(op, opts); err != nil {
		return nil, err
	}
	if err := r.checkFields(op, opts.Where, opts.ColumnName); err != nil {
		return nil, err
	}
	filter := r.live(opts.Where, r.column(opts.SoftDeleteColumn), opts.WithDeleted)
	v, err := r.reduce(ctx, op, filter, backend.Reducer{Func: fn, Field: opts.ColumnName, Alias: "value"})
	if err != nil || v == nil {
		return nil, err
	}
	f, ok := number(v)
	if !ok {
		return nil, errs.Validation("%s of %q is not numeric: %v", op, opts.ColumnName, v).WithOp(op)
	}
	return &f, nil
}

// Sum returns the sum of ColumnName over live matches; 0 when none.
func (r *Repository[T]) Sum(ctx context.Context, opts NumericColumnAggregateOptions) (float64, error) {
	v, err := r.numeric(ctx, "sum", operator.Sum, opts)
	if err != nil || v == nil {
		return 0, err
	}
	return *v, nil
}

// Average returns the mean of ColumnName over live matches; nil when none.
func (r *Repository[T]) Average(ctx context.Context, opts NumericColumnAggregateOptions) (*float64, error) {
	return r.numeric(ctx, "average", operator.Avg, opts)
}

// Minimum returns the least ColumnName over live matches; nil when none.
func (r *Repository[T]) Minimum(ctx context.Context, opts NumericColumnAggregateOptions) (*float64, error) {
	return r.numeric(ctx, "minimum", operator.Min, opts)
}

// Maximum returns the greatest ColumnName over live matches; nil when none.
func (r *Repository[T]) Maximum(ctx context.Context, opts NumericColumnAggregateOptions) (*float64, error) {
	return r.numeric(ctx, "maximum", operator.Max, opts)
}

// Distinct returns the sorted distinct non-null values of Field over
// live matches.
func (r *Repository[T]) Distinct(ctx context.Context, opts DistinctOptions) ([]any, error) {
	if err := check("distinct", opts); err != nil {
		return nil, err
	}
	if err := r.checkFields("distinct", opts.Where, opts.Field); err != nil {
		return nil, err
	}
	filter := r.live(opts.Where, r.column(opts.SoftDeleteColumn), opts.WithDeleted)
	var vals []any
	err := r.run(ctx, "distinct", func(x backend.Executor) (err error) {
		vals, err = x.Distinct(ctx, r.model, opts.Field, filter)
		return err
	})
	if err != nil {
		return nil, err
	}
	return vals, nil
}

// CountDistinct returns the number of distinct non-null values of Field.
func (r *Repository[T]) CountDistinct(ctx context.Context, opts DistinctOptions) (int64, error) {
	vals, err := r.Distinct(ctx, opts)
	if err != nil {
		return 0, err
	}
	return int64(len(vals)), nil
}

// Aggregate validates and runs a pipeline over live rows. The pipeline is
// rejected before any backend call when its stages are malformed.
func (r *Repository[T]) Aggregate(ctx context.Context, opts AggregatePipelineOptions) ([]backend.Record, error) {
	if err := check("aggregate", opts); err != nil {
		return nil, err
	}
	stages := opts.Pipeline
	if live := r.live(nil, r.column(opts.SoftDeleteColumn), opts.WithDeleted); live != nil {
		stages = append([]pipeline.Stage{pipeline.Where{Filter: live}}, stages...)
	}
	plan, err := pipeline.Build(stages, r.model.Fields)
	if err != nil {
		return nil, wrap("aggregate", err)
	}

	var recs []backend.Record
	err = r.run(ctx, "aggregate", func(x backend.Executor) (err error) {
		recs, err = x.GroupBy(ctx, r.model, plan)
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(opts.Select) == 0 {
		return recs, nil
	}
	out := make([]backend.Record, len(recs))
	for i, rec := range recs {
		narrowed := make(backend.Record, len(opts.Select))
		for _, f := range opts.Select {
			if v, ok := rec[f]; ok {
				narrowed[f] = v
			}
		}
		out[i] = narrowed
	}
	return out, nil
}

// Clear removes every row, deleted or not, and returns the count.
func (r *Repository[T]) Clear(ctx context.Context) (int64, error) {
	var n int64
	err := r.run(ctx, "clear", func(x backend.Executor) (err error) {
		n, err = x.Clear(ctx, r.model)
		return err
	})
	return n, err
}
