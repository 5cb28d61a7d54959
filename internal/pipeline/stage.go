// Package pipeline validates aggregation pipelines and normalizes them into
// a Plan the backends execute.
//
// A pipeline is an ordered list of stages over a working relation:
//
//	$where → $group → $project → $order → $skip → $limit
//
// Stage ranks must be non-decreasing. Every stage except $where may appear
// at most once; several $where stages are conjoined. Every violation is a
// VALIDATION error raised by Build, before any backend is touched.
package pipeline

import (
	"github.com/roach88/storekit/internal/expr"
	"github.com/roach88/storekit/internal/operator"
	"github.com/roach88/storekit/internal/queryir"
)

// Stage is one pipeline step. Sealed.
type Stage interface {
	Name() string
	rank() int
}

// Where filters rows.
type Where struct {
	Filter queryir.Filter
}

// Group partitions rows by the By fields and reduces each partition.
// A nil By means one implicit group over all rows.
type Group struct {
	By        []string
	Functions []Aggregate
}

// Aggregate is one reducer. Field may be empty for COUNT, which then
// counts rows.
type Aggregate struct {
	Func  operator.AggregateFunction
	Field string
	Alias string
}

// Project narrows the output to Fields and adds Computed columns.
type Project struct {
	Fields   []string
	Computed []Computed
}

// Computed is one derived column. Type must equal the expression's kind.
type Computed struct {
	Alias      string
	Expression expr.Expression
	Type       operator.ExpressionType
}

// Order sorts the working relation.
type Order struct {
	Sorts []queryir.Sort
}

// Skip drops the first N rows.
type Skip struct {
	N int
}

// Limit keeps at most N rows.
type Limit struct {
	N int
}

func (Where) Name() string   { return "$where" }
func (Group) Name() string   { return "$group" }
func (Project) Name() string { return "$project" }
func (Order) Name() string   { return "$order" }
func (Skip) Name() string    { return "$skip" }
func (Limit) Name() string   { return "$limit" }

func (Where) rank() int   { return 0 }
func (Group) rank() int   { return 1 }
func (Project) rank() int { return 2 }
func (Order) rank() int   { return 3 }
func (Skip) rank() int    { return 4 }
func (Limit) rank() int   { return 5 }

// Plan is a validated pipeline in canonical form.
type Plan struct {
	Where   queryir.Filter
	Group   *Group
	Project *Project
	Order   []queryir.Sort
	Skip    int
	Limit   int // 0 means no limit
}

// Grouped reports whether the plan reduces rows.
func (p Plan) Grouped() bool { return p.Group != nil }

// UsesClock reports whether compiling the plan depends on the current
// time, which makes the compiled form unsuitable for caching.
func (p Plan) UsesClock() bool {
	if p.Project == nil {
		return false
	}
	for _, c := range p.Project.Computed {
		if usesClock(c.Expression) {
			return true
		}
	}
	return false
}

func usesClock(e any) bool {
	switch x := e.(type) {
	case expr.Date:
		return x.Func == operator.DateDiff
	case *expr.Date:
		return x.Func == operator.DateDiff
	case expr.Math:
		return usesClock(x.Left) || usesClock(x.Right)
	case *expr.Math:
		return usesClock(*x)
	case expr.String:
		for _, a := range x.Args {
			if usesClock(a) {
				return true
			}
		}
	case *expr.String:
		return usesClock(*x)
	case expr.Conditional:
		for _, c := range x.Cases {
			if usesClock(c.When.Left) || usesClock(c.When.Right) || usesClock(c.Then) {
				return true
			}
		}
		return usesClock(x.Else)
	case *expr.Conditional:
		return usesClock(*x)
	}
	return false
}
