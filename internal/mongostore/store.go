// Package mongostore implements backend.Backend on MongoDB.
//
// Each model maps to the collection named by its Table; the model key is
// stored as _id. Transactions use client sessions and so need a replica
// set or sharded cluster.
package mongostore

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"

	"github.com/roach88/storekit/internal/backend"
	"github.com/roach88/storekit/internal/querymongo"
)

// Store is a MongoDB backend.
type Store struct {
	*executor
	client *mongo.Client
}

var _ backend.Backend = (*Store)(nil)

// Option configures a Store.
type Option func(*storeOptions)

type storeOptions struct {
	log  *zap.Logger
	now  func() time.Time
	keys backend.KeyGenerator
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(o *storeOptions) { o.log = l }
}

// WithClock sets the source of "now" for date DIFF expressions.
func WithClock(now func() time.Time) Option {
	return func(o *storeOptions) { o.now = now }
}

// WithKeyGenerator sets the source of keys for documents created without
// one. The default is backend.UUIDKeys.
func WithKeyGenerator(g backend.KeyGenerator) Option {
	return func(o *storeOptions) { o.keys = g }
}

// Open connects to uri and uses the named database.
func Open(ctx context.Context, uri, database string, opts ...Option) (*Store, error) {
	o := storeOptions{log: zap.NewNop(), now: time.Now, keys: backend.UUIDKeys{}}
	for _, opt := range opts {
		opt(&o)
	}
	if database == "" {
		return nil, fmt.Errorf("mongostore: database name is required")
	}

	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongostore: connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongostore: ping: %w", err)
	}

	return &Store{
		executor: &executor{
			db:   client.Database(database),
			c:    querymongo.NewCompiler(querymongo.WithClock(o.now)),
			log:  o.log.Named("mongostore").With(zap.String("database", database)),
			keys: o.keys,
		},
		client: client,
	}, nil
}

// Close disconnects the client.
func (s *Store) Close() error {
	return s.client.Disconnect(context.Background())
}

// Database returns the underlying database handle.
func (s *Store) Database() *mongo.Database {
	return s.db
}

// Begin starts a session with an open transaction.
func (s *Store) Begin(ctx context.Context) (backend.Session, error) {
	sess, err := s.client.StartSession()
	if err != nil {
		return nil, mapError(fmt.Errorf("start session: %w", err))
	}
	if err := sess.StartTransaction(); err != nil {
		sess.EndSession(ctx)
		return nil, mapError(fmt.Errorf("start transaction: %w", err))
	}
	return &session{executor: s.executor.bind(sess)}, nil
}

type session struct {
	*executor
}

func (s *session) Commit(ctx context.Context) error {
	defer s.sess.EndSession(ctx)
	return mapError(s.sess.CommitTransaction(ctx))
}

func (s *session) Rollback(ctx context.Context) error {
	defer s.sess.EndSession(ctx)
	return mapError(s.sess.AbortTransaction(ctx))
}
