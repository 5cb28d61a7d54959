package testutil

import (
	"fmt"
	"sync"

	"github.com/roach88/storekit/internal/backend"
)

var _ backend.KeyGenerator = (*SequenceKeys)(nil)

// SequenceKeys generates keys "<prefix>-0001", "<prefix>-0002", ...
//
// Keys sort in creation order, so results ordered by the primary key
// tiebreaker come back in insertion order and golden output stays stable.
//
// Thread-safety: Generate is safe for concurrent use via internal mutex.
type SequenceKeys struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequenceKeys creates a generator. An empty prefix means "key".
func NewSequenceKeys(prefix string) *SequenceKeys {
	if prefix == "" {
		prefix = "key"
	}
	return &SequenceKeys{prefix: prefix}
}

// Generate returns the next key.
func (g *SequenceKeys) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%04d", g.prefix, g.n)
}

// FixedKeys hands out a fixed list of keys in order.
type FixedKeys struct {
	mu   sync.Mutex
	keys []string
	idx  int
}

// NewFixedKeys creates a generator returning keys in order.
func NewFixedKeys(keys ...string) *FixedKeys {
	return &FixedKeys{keys: keys}
}

// Generate returns the next key. It panics when the list is exhausted.
func (g *FixedKeys) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.keys) {
		panic("FixedKeys: all keys exhausted")
	}
	k := g.keys[g.idx]
	g.idx++
	return k
}
