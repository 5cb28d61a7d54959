package repository

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/roach88/storekit/internal/backend"
	"github.com/roach88/storekit/internal/errs"
)

// DefaultSoftDeleteColumn is the soft-delete flag column unless configured
// otherwise.
const DefaultSoftDeleteColumn = "is_deleted"

// State is the lifecycle state of a Transaction. It only moves forward.
type State string

const (
	StateActive     State = "active"
	StateCommitted  State = "committed"
	StateRolledBack State = "rolled_back"
)

// Transaction is a handle on an open unit of work. It belongs to the
// Connection that began it and is never reused.
type Transaction struct {
	ID uuid.UUID

	conn  *Connection
	sess  backend.Session
	state State
	began time.Time
}

// State returns the current state.
func (tx *Transaction) State() State {
	tx.conn.mu.Lock()
	defer tx.conn.mu.Unlock()
	return tx.state
}

// Connection is one backend handle shared by any number of repositories.
type Connection struct {
	b          backend.Backend
	log        *zap.Logger
	softDelete string

	mu     sync.Mutex
	active *Transaction
}

// Option configures a Connection.
type Option func(*Connection)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(c *Connection) { c.log = l }
}

// WithSoftDeleteColumn sets the default soft-delete column.
func WithSoftDeleteColumn(name string) Option {
	return func(c *Connection) { c.softDelete = name }
}

// NewConnection wraps a backend.
func NewConnection(b backend.Backend, opts ...Option) *Connection {
	c := &Connection{b: b, log: zap.NewNop(), softDelete: DefaultSoftDeleteColumn}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.Named("repository")
	return c
}

// Backend returns the wrapped backend.
func (c *Connection) Backend() backend.Backend {
	return c.b
}

// Close rolls back any active transaction and closes the backend.
func (c *Connection) Close() error {
	c.mu.Lock()
	tx := c.active
	c.mu.Unlock()
	if tx != nil {
		_ = c.Rollback(context.Background(), tx)
	}
	return c.b.Close()
}

// executor returns the session of the active transaction, or the backend.
func (c *Connection) executor() backend.Executor {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active != nil {
		return c.active.sess
	}
	return c.b
}

// Begin opens a transaction. Only one may be active per connection.
func (c *Connection) Begin(ctx context.Context) (*Transaction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active != nil {
		return nil, errs.Transaction(errs.MsgTxInProgress).WithOp("beginTransaction")
	}

	sess, err := c.b.Begin(ctx)
	if err != nil {
		return nil, wrap("beginTransaction", err)
	}
	tx := &Transaction{ID: uuid.New(), conn: c, sess: sess, state: StateActive, began: time.Now()}
	c.active = tx
	c.log.Info("transaction begun", zap.String("tx", tx.ID.String()))
	return tx, nil
}

// Commit commits tx, which must be this connection's active transaction.
func (c *Connection) Commit(ctx context.Context, tx *Transaction) error {
	return c.finish(ctx, tx, "commitTransaction", StateCommitted, backend.Session.Commit)
}

// Rollback rolls back tx, which must be this connection's active
// transaction.
func (c *Connection) Rollback(ctx context.Context, tx *Transaction) error {
	return c.finish(ctx, tx, "rollbackTransaction", StateRolledBack, backend.Session.Rollback)
}

func (c *Connection) finish(ctx context.Context, tx *Transaction, op string, to State, end func(backend.Session, context.Context) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if tx == nil || tx.conn != c {
		return errs.Transaction(errs.MsgTxMismatch).WithOp(op)
	}
	if tx.state != StateActive {
		return errs.Transaction(errs.MsgTxNotActive).WithOp(op)
	}

	err := end(tx.sess, ctx)
	// a failed commit leaves nothing to roll back
	if err != nil {
		to = StateRolledBack
	}
	tx.state = to
	c.active = nil

	c.log.Info("transaction finished",
		zap.String("tx", tx.ID.String()),
		zap.String("state", string(to)),
		zap.Duration("duration", time.Since(tx.began)))
	if err != nil {
		return wrap(op, err)
	}
	return nil
}
