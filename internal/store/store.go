package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/roach88/storekit/internal/backend"
	"github.com/roach88/storekit/internal/querysql"
)

// Store is a backend.Backend over one database/sql pool.
type Store struct {
	*executor
	db      *sql.DB
	dialect querysql.Dialect
}

var _ backend.Backend = (*Store)(nil)

// Option configures a Store.
type Option func(*options)

type options struct {
	log   *zap.Logger
	now   func() time.Time
	cache int
	keys  backend.KeyGenerator
}

// WithLogger sets the logger used for statement tracing.
func WithLogger(log *zap.Logger) Option {
	return func(o *options) { o.log = log }
}

// WithClock sets the source of "now" for date DIFF expressions.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithKeyGenerator sets the source of keys for records created without
// one. The default is backend.UUIDKeys.
func WithKeyGenerator(g backend.KeyGenerator) Option {
	return func(o *options) { o.keys = g }
}

// WithStatementCache caches up to size compiled pipeline statements.
// Zero disables the cache.
func WithStatementCache(size int) Option {
	return func(o *options) { o.cache = size }
}

// Open connects to a SQL database. driver is one of sqlite, postgres or
// mysql; dsn is passed to the driver unchanged.
//
// SQLite pools are limited to one connection: SQLite has a single writer,
// and a file opened as ":memory:" is private to its connection.
func Open(ctx context.Context, driver, dsn string, opts ...Option) (*Store, error) {
	o := options{log: zap.NewNop(), now: time.Now, keys: backend.UUIDKeys{}}
	for _, opt := range opts {
		opt(&o)
	}

	name, err := driverName(driver)
	if err != nil {
		return nil, err
	}
	dialect, err := querysql.Lookup(driver)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(name, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dialect.Name() == "sqlite" {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	cache, err := querysql.NewCache(o.cache)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create statement cache: %w", err)
	}
	copts := []querysql.Option{querysql.WithClock(o.now)}
	if cache != nil {
		copts = append(copts, querysql.WithCache(cache))
	}

	return &Store{
		executor: &executor{
			q:    db,
			c:    querysql.NewCompiler(dialect, copts...),
			log:  o.log.Named("store").With(zap.String("dialect", dialect.Name())),
			keys: o.keys,
		},
		db:      db,
		dialect: dialect,
	}, nil
}

// Close closes the pool.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying pool.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Dialect returns the SQL dialect of the store.
func (s *Store) Dialect() querysql.Dialect {
	return s.dialect
}

// Begin starts a transaction.
func (s *Store) Begin(ctx context.Context) (backend.Session, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, mapError(err)
	}
	s.log.Debug("begin")
	return &session{executor: s.executor.on(tx), tx: tx}, nil
}

// CreateMany inserts all records in one transaction.
func (s *Store) CreateMany(ctx context.Context, m backend.Model, data []backend.Record) ([]backend.Record, error) {
	if len(data) == 0 {
		return []backend.Record{}, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, mapError(err)
	}
	out, err := s.executor.on(tx).CreateMany(ctx, m, data)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, mapError(err)
	}
	return out, nil
}

type session struct {
	*executor
	tx *sql.Tx
}

func (s *session) Commit(ctx context.Context) error {
	s.log.Debug("commit")
	return mapError(s.tx.Commit())
}

func (s *session) Rollback(ctx context.Context) error {
	s.log.Debug("rollback")
	return mapError(s.tx.Rollback())
}
