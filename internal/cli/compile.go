package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/roach88/storekit/internal/backend"
	"github.com/roach88/storekit/internal/errs"
	"github.com/roach88/storekit/internal/operator"
	"github.com/roach88/storekit/internal/optdoc"
	"github.com/roach88/storekit/internal/pipeline"
	"github.com/roach88/storekit/internal/querymongo"
	"github.com/roach88/storekit/internal/queryir"
	"github.com/roach88/storekit/internal/querysql"
	"github.com/roach88/storekit/internal/repository"
	"github.com/roach88/storekit/internal/translate"
)

// KeysPlaceholder stands in for the primary keys a mutation selects in its
// first step.
const KeysPlaceholder = "<keys>"

// CompileOptions holds compile command flags.
type CompileOptions struct {
	Dialect          string
	Now              string
	SoftDeleteColumn string
}

// CompiledStatement is one backend call of a compiled document.
type CompiledStatement struct {
	Step    string          `json:"step"`
	SQL     string          `json:"sql,omitempty"`
	Args    []any           `json:"args,omitempty"`
	Command json.RawMessage `json:"command,omitempty"`
}

// CompileResult holds the statements a document runs, in order.
type CompileResult struct {
	Dialect    string              `json:"dialect"`
	Table      string              `json:"table"`
	Operation  optdoc.Operation    `json:"operation"`
	Statements []CompiledStatement `json:"statements"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{}

	cmd := &cobra.Command{
		Use:   "compile <document>",
		Short: "Compile an option document to backend statements",
		Long: `Compile an option document to the statements a backend would run.

SQL dialects print parameterized SQL with its arguments. The mongodb
dialect prints commands as relaxed extended JSON. Mutations select the
matching keys first; later steps show them as ` + KeysPlaceholder + `.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(rootOpts, opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Dialect, "dialect", "sqlite", "target dialect (sqlite|postgres|mysql|mongodb)")
	cmd.Flags().StringVar(&opts.Now, "now", "", "fixed RFC 3339 time for date expressions (default: current time)")
	cmd.Flags().StringVar(&opts.SoftDeleteColumn, "soft-delete-column", repository.DefaultSoftDeleteColumn, "soft-delete flag column, empty to disable")

	return cmd
}

func runCompile(rootOpts *RootOptions, opts *CompileOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(rootOpts, cmd)

	now := time.Now()
	if opts.Now != "" {
		t, err := time.Parse(time.RFC3339, opts.Now)
		if err != nil {
			return commandError(formatter, ErrCodeArgs, fmt.Errorf("invalid --now: %w", err))
		}
		now = t
	}

	doc, err := loadDocument(formatter, path)
	if err != nil {
		return err
	}
	if doc.Entity == "" {
		return commandError(formatter, ErrCodeArgs, fmt.Errorf("document %s has no entity", path))
	}

	var result CompileResult
	if opts.Dialect == "mongodb" {
		result, err = compileMongo(doc, now, opts.SoftDeleteColumn)
	} else {
		var d querysql.Dialect
		if d, err = querysql.Lookup(opts.Dialect); err != nil {
			return commandError(formatter, ErrCodeArgs, err)
		}
		result, err = compileSQL(doc, d, now, opts.SoftDeleteColumn)
	}
	if err != nil {
		return failure(formatter, err)
	}

	formatter.VerboseLog("Compiled %s on %s to %d statement(s)", doc.Operation, result.Table, len(result.Statements))

	if formatter.Format == "json" {
		return formatter.Success(result)
	}
	for _, st := range result.Statements {
		fmt.Fprintf(formatter.Writer, "-- %s\n", st.Step)
		if st.Command != nil {
			fmt.Fprintf(formatter.Writer, "%s\n", st.Command)
			continue
		}
		fmt.Fprintln(formatter.Writer, st.SQL)
		for i, a := range st.Args {
			fmt.Fprintf(formatter.Writer, "$%d = %#v\n", i+1, a)
		}
	}
	return nil
}

// mutation describes the filter and update a mutating document applies.
// Soft delete and restore flip the flag column.
func mutation(doc *optdoc.Document, column string) (queryir.Filter, queryir.Update, error) {
	m := doc.Model()
	live := repository.LiveFilter(m, doc.Where, column, doc.WithDeleted)

	switch doc.Operation {
	case optdoc.OpUpdateMany:
		return live, doc.Update, nil
	case optdoc.OpSoftDeleteMany, optdoc.OpRestoreMany:
		if !repository.SoftDeletable(m, column) {
			return nil, queryir.Update{}, errs.Validation("entity %s has no soft-delete column %q", m.Name, column).WithOp(string(doc.Operation))
		}
		if doc.Operation == optdoc.OpSoftDeleteMany {
			return live, queryir.Set(map[string]any{column: true}), nil
		}
		return queryir.Conjoin(doc.Where, queryir.Eq(column, true)), queryir.Set(map[string]any{column: false}), nil
	}
	return nil, queryir.Update{}, errs.Validation("%s is not a mutation", doc.Operation)
}

// reducer returns the single aggregate computed by count and the numeric
// operations.
func reducer(doc *optdoc.Document) (backend.Reducer, bool) {
	switch doc.Operation {
	case optdoc.OpCount:
		return backend.Reducer{Func: operator.Count, Alias: "count"}, true
	case optdoc.OpSum:
		return backend.Reducer{Func: operator.Sum, Field: doc.Field, Alias: "value"}, true
	case optdoc.OpAverage:
		return backend.Reducer{Func: operator.Avg, Field: doc.Field, Alias: "value"}, true
	case optdoc.OpMinimum:
		return backend.Reducer{Func: operator.Min, Field: doc.Field, Alias: "value"}, true
	case optdoc.OpMaximum:
		return backend.Reducer{Func: operator.Max, Field: doc.Field, Alias: "value"}, true
	}
	return backend.Reducer{}, false
}

// livePlan prepends the live filter to the document's pipeline.
func livePlan(doc *optdoc.Document, column string) (pipeline.Plan, error) {
	m := doc.Model()
	stages := doc.Pipeline
	if live := repository.LiveFilter(m, nil, column, doc.WithDeleted); live != nil {
		stages = append([]pipeline.Stage{pipeline.Where{Filter: live}}, stages...)
	}
	return pipeline.Build(stages, m.Fields)
}

func find(doc *optdoc.Document, column string) backend.Query {
	q := backend.Query{
		Filter: repository.LiveFilter(doc.Model(), doc.Where, column, doc.WithDeleted),
		Select: doc.Select,
		Order:  doc.Order,
		Skip:   doc.Skip,
		Take:   doc.Limit,
	}
	if doc.Operation == optdoc.OpFindOne || doc.Operation == optdoc.OpExists {
		q.Skip, q.Take = 0, 1
	}
	return q
}

func compileSQL(doc *optdoc.Document, d querysql.Dialect, now time.Time, column string) (CompileResult, error) {
	m := doc.Model()
	c := querysql.NewCompiler(d, querysql.WithClock(func() time.Time { return now }))
	result := CompileResult{Dialect: d.Name(), Table: m.Table, Operation: doc.Operation}

	add := func(step string, st querysql.Statement) {
		result.Statements = append(result.Statements, CompiledStatement{Step: step, SQL: st.SQL, Args: st.Args})
	}
	keys := []any{KeysPlaceholder}

	switch doc.Operation {
	case optdoc.OpFindMany, optdoc.OpFindOne, optdoc.OpExists:
		st, err := c.Select(m, find(doc, column))
		if err != nil {
			return result, err
		}
		add("find", st)

	case optdoc.OpCount, optdoc.OpSum, optdoc.OpAverage, optdoc.OpMinimum, optdoc.OpMaximum:
		red, _ := reducer(doc)
		st, err := c.Aggregate(m, repository.LiveFilter(m, doc.Where, column, doc.WithDeleted), []backend.Reducer{red})
		if err != nil {
			return result, err
		}
		add("aggregate", st)

	case optdoc.OpDistinct:
		st, err := c.Distinct(m, doc.Field, repository.LiveFilter(m, doc.Where, column, doc.WithDeleted))
		if err != nil {
			return result, err
		}
		add("distinct", st)

	case optdoc.OpAggregate:
		plan, err := livePlan(doc, column)
		if err != nil {
			return result, err
		}
		st, err := c.Pipeline(m, plan)
		if err != nil {
			return result, err
		}
		add("pipeline", st)

	case optdoc.OpUpdateMany, optdoc.OpSoftDeleteMany, optdoc.OpRestoreMany:
		filter, u, err := mutation(doc, column)
		if err != nil {
			return result, err
		}
		plan, err := translate.Update(u)
		if err != nil {
			return result, err
		}
		sel, err := c.SelectKeys(m, filter, 0)
		if err != nil {
			return result, err
		}
		upd, err := c.UpdateByKeys(m, plan, keys)
		if err != nil {
			return result, err
		}
		add("keys", sel)
		add("update", upd)
		add("fetch", c.SelectByKeys(m, keys))

	case optdoc.OpDeleteMany:
		sel, err := c.SelectKeys(m, doc.Where, 0)
		if err != nil {
			return result, err
		}
		add("keys", sel)
		add("snapshot", c.SelectByKeys(m, keys))
		add("delete", c.DeleteByKeys(m, keys))

	default:
		return result, errs.Validation("cannot compile %s", doc.Operation)
	}
	return result, nil
}

// extJSON renders a command as relaxed extended JSON.
func extJSON(cmd bson.D) (json.RawMessage, error) {
	b, err := bson.MarshalExtJSON(cmd, false, false)
	if err != nil {
		return nil, fmt.Errorf("render command: %w", err)
	}
	return b, nil
}

func compileMongo(doc *optdoc.Document, now time.Time, column string) (CompileResult, error) {
	m := doc.Model()
	c := querymongo.NewCompiler(querymongo.WithClock(func() time.Time { return now }))
	result := CompileResult{Dialect: "mongodb", Table: m.Table, Operation: doc.Operation}

	add := func(step string, cmd bson.D) error {
		raw, err := extJSON(cmd)
		if err != nil {
			return err
		}
		result.Statements = append(result.Statements, CompiledStatement{Step: step, Command: raw})
		return nil
	}
	aggregate := func(step string, p any, err error) error {
		if err != nil {
			return err
		}
		return add(step, bson.D{{Key: "aggregate", Value: m.Table}, {Key: "pipeline", Value: p}})
	}
	keys := bson.D{{Key: querymongo.KeyField, Value: bson.D{{Key: "$in", Value: bson.A{KeysPlaceholder}}}}}

	var err error
	switch doc.Operation {
	case optdoc.OpFindMany, optdoc.OpFindOne, optdoc.OpExists:
		f, ferr := c.Find(m, find(doc, column))
		if ferr != nil {
			return result, ferr
		}
		cmd := bson.D{{Key: "find", Value: m.Table}, {Key: "filter", Value: f.Filter}, {Key: "sort", Value: f.Sort}}
		if len(f.Projection) > 0 {
			cmd = append(cmd, bson.E{Key: "projection", Value: f.Projection})
		}
		if f.Skip > 0 {
			cmd = append(cmd, bson.E{Key: "skip", Value: f.Skip})
		}
		if f.Limit > 0 {
			cmd = append(cmd, bson.E{Key: "limit", Value: f.Limit})
		}
		err = add("find", cmd)

	case optdoc.OpCount, optdoc.OpSum, optdoc.OpAverage, optdoc.OpMinimum, optdoc.OpMaximum:
		red, _ := reducer(doc)
		p, perr := c.Aggregate(m, repository.LiveFilter(m, doc.Where, column, doc.WithDeleted), []backend.Reducer{red})
		err = aggregate("aggregate", p, perr)

	case optdoc.OpDistinct:
		p, perr := c.Distinct(m, doc.Field, repository.LiveFilter(m, doc.Where, column, doc.WithDeleted))
		err = aggregate("distinct", p, perr)

	case optdoc.OpAggregate:
		plan, perr := livePlan(doc, column)
		if perr != nil {
			return result, perr
		}
		p, perr := c.Pipeline(m, plan)
		err = aggregate("pipeline", p, perr)

	case optdoc.OpUpdateMany, optdoc.OpSoftDeleteMany, optdoc.OpRestoreMany:
		filter, u, merr := mutation(doc, column)
		if merr != nil {
			return result, merr
		}
		plan, perr := translate.Update(u)
		if perr != nil {
			return result, perr
		}
		q, ferr := c.Filter(m, filter)
		if ferr != nil {
			return result, ferr
		}
		p, uerr := c.Update(m, plan)
		if uerr != nil {
			return result, uerr
		}
		if err = add("keys", findKeys(m.Table, q)); err != nil {
			return result, err
		}
		if err = add("update", bson.D{
			{Key: "update", Value: m.Table},
			{Key: "updates", Value: bson.A{bson.D{{Key: "q", Value: keys}, {Key: "u", Value: p}, {Key: "multi", Value: true}}}},
		}); err != nil {
			return result, err
		}
		err = add("fetch", bson.D{{Key: "find", Value: m.Table}, {Key: "filter", Value: keys}})

	case optdoc.OpDeleteMany:
		q, ferr := c.Filter(m, doc.Where)
		if ferr != nil {
			return result, ferr
		}
		if err = add("keys", findKeys(m.Table, q)); err != nil {
			return result, err
		}
		if err = add("snapshot", bson.D{{Key: "find", Value: m.Table}, {Key: "filter", Value: keys}}); err != nil {
			return result, err
		}
		err = add("delete", bson.D{
			{Key: "delete", Value: m.Table},
			{Key: "deletes", Value: bson.A{bson.D{{Key: "q", Value: keys}, {Key: "limit", Value: 0}}}},
		})

	default:
		err = errs.Validation("cannot compile %s", doc.Operation)
	}
	return result, err
}

func findKeys(table string, filter bson.D) bson.D {
	return bson.D{
		{Key: "find", Value: table},
		{Key: "filter", Value: filter},
		{Key: "sort", Value: bson.D{{Key: querymongo.KeyField, Value: 1}}},
		{Key: "projection", Value: bson.D{{Key: querymongo.KeyField, Value: 1}}},
	}
}
