package querysql

import (
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/mitchellh/hashstructure/v2"

	"github.com/roach88/storekit/internal/backend"
	"github.com/roach88/storekit/internal/pipeline"
)

// Cache keeps compiled pipeline statements keyed by a structural hash of
// (dialect, table, plan).
type Cache struct {
	lru *lru.TwoQueueCache[uint64, Statement]
}

// NewCache creates a Cache holding at most size statements. A size of
// zero or less disables caching and returns nil.
func NewCache(size int) (*Cache, error) {
	if size <= 0 {
		return nil, nil
	}
	c, err := lru.New2Q[uint64, Statement](size)
	if err != nil {
		return nil, err
	}
	return &Cache{lru: c}, nil
}

type cacheKey struct {
	Dialect string
	Table   string
	Key     string
	Plan    pipeline.Plan
}

func hashKey(dialect string, m backend.Model, plan pipeline.Plan) (uint64, bool) {
	h, err := hashstructure.Hash(cacheKey{
		Dialect: dialect,
		Table:   m.Table,
		Key:     m.KeyColumn(),
		Plan:    plan,
	}, hashstructure.FormatV2, nil)
	return h, err == nil
}

// Get returns a copy of the cached statement.
func (c *Cache) Get(dialect string, m backend.Model, plan pipeline.Plan) (Statement, bool) {
	k, ok := hashKey(dialect, m, plan)
	if !ok {
		return Statement{}, false
	}
	st, ok := c.lru.Get(k)
	if !ok {
		return Statement{}, false
	}
	return st.clone(), true
}

// Put stores st. Plans that cannot be hashed are not cached.
func (c *Cache) Put(dialect string, m backend.Model, plan pipeline.Plan, st Statement) {
	if k, ok := hashKey(dialect, m, plan); ok {
		c.lru.Add(k, st.clone())
	}
}

// Len returns the number of cached statements.
func (c *Cache) Len() int {
	return c.lru.Len()
}
