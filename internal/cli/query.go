package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/roach88/storekit/internal/backend"
	"github.com/roach88/storekit/internal/config"
	"github.com/roach88/storekit/internal/logging"
	"github.com/roach88/storekit/internal/mongostore"
	"github.com/roach88/storekit/internal/optdoc"
	"github.com/roach88/storekit/internal/repository"
	"github.com/roach88/storekit/internal/store"
)

// QueryOptions holds query command flags.
type QueryOptions struct {
	DryRun bool
}

// QueryValue is the result of a scalar operation.
type QueryValue struct {
	Operation optdoc.Operation `json:"operation"`
	Value     any              `json:"value"`
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{}

	cmd := &cobra.Command{
		Use:   "query <document>",
		Short: "Run an option document against the configured backend",
		Long: `Run an option document against the configured backend.

The backend comes from --config and STOREKIT_* environment variables.
Mutations run in a transaction; --dry-run rolls it back after printing
the affected rows.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(rootOpts, opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "roll back mutations instead of committing")

	return cmd
}

func runQuery(rootOpts *RootOptions, opts *QueryOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(rootOpts, cmd)
	ctx := cmd.Context()

	doc, err := loadDocument(formatter, path)
	if err != nil {
		return err
	}
	if doc.Entity == "" {
		return commandError(formatter, ErrCodeArgs, fmt.Errorf("document %s has no entity", path))
	}

	cfg, err := config.Load(rootOpts.Config)
	if err != nil {
		return commandError(formatter, ErrCodeConfig, err)
	}
	level := cfg.Log.Level
	if rootOpts.Verbose {
		level = "debug"
	}
	log, err := logging.New(cfg.Log.JSON, level)
	if err != nil {
		return commandError(formatter, ErrCodeConfig, err)
	}
	defer log.Sync() //nolint:errcheck

	b, err := openBackend(ctx, cfg, log)
	if err != nil {
		return commandError(formatter, ErrCodeConnect, err)
	}
	conn := repository.NewConnection(b,
		repository.WithLogger(log),
		repository.WithSoftDeleteColumn(cfg.SoftDeleteColumn),
	)
	defer conn.Close()

	formatter.VerboseLog("Running %s on %s (%s)", doc.Operation, doc.Entity, cfg.Driver)

	repo := repository.NewWithModel[backend.Record](conn, doc.Model())
	rows, value, err := execute(ctx, repo, doc, opts.DryRun)
	if err != nil {
		return failure(formatter, err)
	}
	if rows != nil {
		return formatter.Rows(rows)
	}
	if formatter.Format == "json" {
		return formatter.Success(QueryValue{Operation: doc.Operation, Value: value})
	}
	fmt.Fprintln(formatter.Writer, cell(value))
	return nil
}

// openBackend opens the backend cfg selects.
func openBackend(ctx context.Context, cfg *config.Config, log *zap.Logger) (backend.Backend, error) {
	if cfg.Driver == "mongodb" {
		return mongostore.Open(ctx, cfg.DSN, cfg.Database, mongostore.WithLogger(log))
	}
	return store.Open(ctx, cfg.Driver, cfg.DSN,
		store.WithLogger(log),
		store.WithStatementCache(cfg.StatementCache),
	)
}

// execute runs doc. Row-returning operations return rows (never nil on
// success); scalar operations return a value.
func execute(ctx context.Context, repo *repository.Repository[backend.Record], doc *optdoc.Document, dryRun bool) ([]backend.Record, any, error) {
	del := repository.DeleteOptions{Where: doc.Where, Options: repository.MutationOptions{WithDeleted: doc.WithDeleted}}
	num := repository.NumericColumnAggregateOptions{ColumnName: doc.Field, Where: doc.Where, WithDeleted: doc.WithDeleted}
	count := repository.CountOptions{Where: doc.Where, WithDeleted: doc.WithDeleted}

	switch doc.Operation {
	case optdoc.OpFindMany:
		rows, err := repo.FindMany(ctx, repository.FindManyOptions{
			Where:       doc.Where,
			Select:      doc.Select,
			Order:       doc.Order,
			WithDeleted: doc.WithDeleted,
			Skip:        doc.Skip,
			Limit:       doc.Limit,
		})
		return orEmpty(rows), nil, err

	case optdoc.OpFindOne:
		row, err := repo.FindOne(ctx, repository.FindOneOptions{
			Where:       doc.Where,
			Select:      doc.Select,
			Order:       doc.Order,
			WithDeleted: doc.WithDeleted,
		})
		if err != nil || row == nil {
			return []backend.Record{}, nil, err
		}
		return []backend.Record{*row}, nil, nil

	case optdoc.OpCount:
		n, err := repo.Count(ctx, count)
		return nil, n, err
	case optdoc.OpExists:
		ok, err := repo.Exists(ctx, count)
		return nil, ok, err
	case optdoc.OpDistinct:
		vals, err := repo.Distinct(ctx, repository.DistinctOptions{Field: doc.Field, Where: doc.Where, WithDeleted: doc.WithDeleted})
		if vals == nil {
			vals = []any{}
		}
		return nil, vals, err
	case optdoc.OpSum:
		v, err := repo.Sum(ctx, num)
		return nil, v, err
	case optdoc.OpAverage:
		v, err := repo.Average(ctx, num)
		return nil, deref(v), err
	case optdoc.OpMinimum:
		v, err := repo.Minimum(ctx, num)
		return nil, deref(v), err
	case optdoc.OpMaximum:
		v, err := repo.Maximum(ctx, num)
		return nil, deref(v), err

	case optdoc.OpAggregate:
		rows, err := repo.Aggregate(ctx, repository.AggregatePipelineOptions{
			Pipeline:    doc.Pipeline,
			Select:      doc.Select,
			WithDeleted: doc.WithDeleted,
		})
		return orEmpty(rows), nil, err
	}

	rows, err := mutate(ctx, repo, doc, del, dryRun)
	return orEmpty(rows), nil, err
}

// mutate runs a mutating document in a transaction.
func mutate(ctx context.Context, repo *repository.Repository[backend.Record], doc *optdoc.Document, del repository.DeleteOptions, dryRun bool) (rows []backend.Record, err error) {
	tx, err := repo.BeginTransaction(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil || dryRun {
			if rerr := repo.RollbackTransaction(ctx, tx); err == nil {
				err = rerr
			}
			return
		}
		err = repo.CommitTransaction(ctx, tx)
	}()

	switch doc.Operation {
	case optdoc.OpUpdateMany:
		return repo.UpdateMany(ctx, repository.UpdateOptions{Update: doc.Update, Where: doc.Where, Options: del.Options})
	case optdoc.OpDeleteMany:
		return repo.DeleteMany(ctx, del)
	case optdoc.OpSoftDeleteMany:
		return repo.SoftDeleteMany(ctx, del)
	case optdoc.OpRestoreMany:
		return repo.RestoreMany(ctx, del)
	}
	return nil, fmt.Errorf("unsupported operation %q", doc.Operation)
}

func orEmpty(rows []backend.Record) []backend.Record {
	if rows == nil {
		return []backend.Record{}
	}
	return rows
}

func deref(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}
