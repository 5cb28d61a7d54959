// Package backend defines the data-access primitive set every storage
// engine implements. The repository talks only to these interfaces.
package backend

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/roach88/storekit/internal/operator"
	"github.com/roach88/storekit/internal/pipeline"
	"github.com/roach88/storekit/internal/queryir"
)

// ErrNoRecord is returned by single-record primitives that matched
// nothing. Drivers normalize their own "no rows" signals to it.
var ErrNoRecord = errors.New("backend: no record")

// Record is one row or document in portable form. Nested objects are
// map[string]any, arrays []any.
type Record = map[string]any

// Kind describes how a column is stored when the engine cannot tell.
type Kind string

const (
	KindJSON Kind = "json" // maps and slices stored as JSON text
	KindBool Kind = "bool" // stored as 0/1 where the engine has no bool
	KindTime Kind = "time" // stored as RFC 3339 text where needed
)

// Model is the resolved metadata of one entity.
type Model struct {
	Name   string
	Table  string
	Key    string   // primary key column, defaults to "id"
	Fields []string // declared columns, optional
	Kinds  map[string]Kind
}

// KeyColumn returns the primary key column name.
func (m Model) KeyColumn() string {
	if m.Key == "" {
		return "id"
	}
	return m.Key
}

// KindOf returns the declared kind of a column, or "".
func (m Model) KindOf(field string) Kind {
	return m.Kinds[field]
}

// Query is the input of the find primitives.
type Query struct {
	Filter    queryir.Filter
	Select    []string
	Relations []string
	Order     []queryir.Sort
	Skip      int
	Take      int // 0 means no limit
}

// Reducer is one aggregate computed by Aggregate.
type Reducer struct {
	Func  operator.AggregateFunction
	Field string
	Alias string
}

// Executor is the primitive set. Implementations apply no soft-delete
// policy; filters arrive fully formed.
type Executor interface {
	// FindFirst returns ErrNoRecord when nothing matches.
	FindFirst(ctx context.Context, m Model, q Query) (Record, error)
	FindMany(ctx context.Context, m Model, q Query) ([]Record, error)

	// Create inserts one record and returns it as stored. A missing key is
	// generated.
	Create(ctx context.Context, m Model, data Record) (Record, error)
	CreateMany(ctx context.Context, m Model, data []Record) ([]Record, error)

	// Update changes the first matching record (in key order) and returns
	// it after the change, or ErrNoRecord.
	Update(ctx context.Context, m Model, filter queryir.Filter, u queryir.Update) (Record, error)
	UpdateMany(ctx context.Context, m Model, filter queryir.Filter, u queryir.Update) ([]Record, error)

	// Delete removes the first matching record and returns its snapshot,
	// or ErrNoRecord.
	Delete(ctx context.Context, m Model, filter queryir.Filter) (Record, error)
	DeleteMany(ctx context.Context, m Model, filter queryir.Filter) ([]Record, error)

	// Aggregate reduces all matching rows into one record keyed by alias.
	// SUM and COUNT of no rows are 0; the others are nil.
	Aggregate(ctx context.Context, m Model, filter queryir.Filter, reducers []Reducer) (Record, error)

	// GroupBy executes a validated pipeline plan.
	GroupBy(ctx context.Context, m Model, plan pipeline.Plan) ([]Record, error)

	Distinct(ctx context.Context, m Model, field string, filter queryir.Filter) ([]any, error)

	// Clear removes every record and returns the count removed.
	Clear(ctx context.Context, m Model) (int64, error)
}

// Session is an Executor bound to an open transaction.
type Session interface {
	Executor
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Backend is a storage engine handle.
type Backend interface {
	Executor
	Begin(ctx context.Context) (Session, error)
	Close() error
}

// KeyGenerator produces the key of a record created without one.
type KeyGenerator interface {
	Generate() string
}

// UUIDKeys generates random (version 4) UUID keys. It is the default.
type UUIDKeys struct{}

// Generate returns a new UUID string.
func (UUIDKeys) Generate() string {
	return uuid.NewString()
}
