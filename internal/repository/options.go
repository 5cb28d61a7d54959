package repository

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/roach88/storekit/internal/errs"
	"github.com/roach88/storekit/internal/pipeline"
	"github.com/roach88/storekit/internal/queryir"
)

// FindOneOptions selects one entity.
type FindOneOptions struct {
	Where            queryir.Filter
	Select           []string
	Relations        []string
	Order            []queryir.Sort
	WithDeleted      bool
	SoftDeleteColumn string
}

// FindManyOptions selects a page of entities. Limit 0 means no limit.
type FindManyOptions struct {
	Where            queryir.Filter
	Select           []string
	Relations        []string
	Order            []queryir.Sort
	WithDeleted      bool
	SoftDeleteColumn string
	Skip             int `validate:"gte=0"`
	Limit            int `validate:"gte=0"`
}

// MutationOptions tunes soft-delete handling of one call. An empty
// SoftDeleteColumn uses the repository default, as it does in the read
// option structs.
type MutationOptions struct {
	WithDeleted      bool
	SoftDeleteColumn string
}

// UpdateOptions changes matching entities. Update must change something.
type UpdateOptions struct {
	Update  queryir.Update
	Where   queryir.Filter
	Options MutationOptions
}

// DeleteOptions selects entities to delete, soft delete or restore.
type DeleteOptions struct {
	Where   queryir.Filter
	Options MutationOptions
}

// UpsertOptions updates the first match or creates Create when nothing
// matches. Create is never applied to an existing match.
type UpsertOptions[T any] struct {
	Create  T
	Update  queryir.Update
	Where   queryir.Filter
	Options MutationOptions
}

// NumericColumnAggregateOptions names the column of sum, average,
// minimum and maximum.
type NumericColumnAggregateOptions struct {
	ColumnName       string `validate:"required"`
	Where            queryir.Filter
	WithDeleted      bool
	SoftDeleteColumn string
}

// IncrementOptions adds Value to ColumnName on every match. Value must be
// a number; zero is allowed.
type IncrementOptions struct {
	ColumnName string `validate:"required"`
	Value      any
	Where      queryir.Filter
	Options    MutationOptions
}

// CountOptions filters count and exists.
type CountOptions struct {
	Where            queryir.Filter
	WithDeleted      bool
	SoftDeleteColumn string
}

// DistinctOptions names the column of distinct and countDistinct.
type DistinctOptions struct {
	Field            string `validate:"required"`
	Where            queryir.Filter
	WithDeleted      bool
	SoftDeleteColumn string
}

// AggregatePipelineOptions runs a pipeline. Select, when set, narrows
// each output row to the named top-level fields.
type AggregatePipelineOptions struct {
	Pipeline         []pipeline.Stage `validate:"required,min=1"`
	Select           []string
	Relations        []string
	WithDeleted      bool
	SoftDeleteColumn string
}

var validate = validator.New()

// check validates option struct tags and reports a VALIDATION error.
func check(op string, opts any) error {
	err := validate.Struct(opts)
	if err == nil {
		return nil
	}
	var fields validator.ValidationErrors
	if !errors.As(err, &fields) {
		return errs.Validation("%s: %v", op, err).WithOp(op)
	}
	msgs := make([]string, len(fields))
	for i, fe := range fields {
		if fe.Param() != "" {
			msgs[i] = fe.Field() + " must satisfy " + fe.Tag() + "=" + fe.Param()
		} else {
			msgs[i] = fe.Field() + " is " + fe.Tag()
		}
	}
	return errs.Validation("%s: %s", op, strings.Join(msgs, "; ")).WithOp(op)
}
