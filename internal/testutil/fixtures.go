package testutil

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/require"

	"github.com/roach88/storekit/internal/store"
)

// UsersDDL creates the users table the fixtures use.
const UsersDDL = `
CREATE TABLE users (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	email      TEXT UNIQUE,
	age        INTEGER,
	score      REAL,
	status     TEXT,
	tags       TEXT,
	profile    TEXT,
	created_at DATETIME,
	is_deleted BOOLEAN NOT NULL DEFAULT 0
);
CREATE INDEX idx_users_status ON users(status);
`

// User is the fixture entity.
type User struct {
	ID        string         `db:"id,key,omitempty"`
	Name      string         `db:"name"`
	Email     *string        `db:"email"`
	Age       int            `db:"age"`
	Score     float64        `db:"score"`
	Status    string         `db:"status"`
	Tags      []string       `db:"tags"`
	Profile   map[string]any `db:"profile"`
	CreatedAt time.Time      `db:"created_at,omitempty"`
	IsDeleted bool           `db:"is_deleted"`
}

// OpenStore opens a SQLite store on a temp file with the users table. The
// store is closed when the test ends.
func OpenStore(t *testing.T, opts ...store.Option) *store.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := store.Open(context.Background(), "sqlite", path, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background(), UsersDDL))
	return s
}

var statuses = []string{"active", "pending", "banned"}

// FakeUsers returns n users generated from seed. The same seed always
// yields the same users; IDs are left empty for the store to assign.
func FakeUsers(seed int64, n int) []User {
	f := gofakeit.New(seed)
	out := make([]User, n)
	for i := range out {
		email := f.Email()
		out[i] = User{
			Name:      f.Name(),
			Email:     &email,
			Age:       f.Number(18, 80),
			Score:     float64(f.Number(0, 1000)) / 10,
			Status:    f.RandomString(statuses),
			Tags:      []string{f.Word(), f.Word()},
			Profile:   map[string]any{"city": f.City()},
			CreatedAt: f.DateRange(Epoch.AddDate(-2, 0, 0), Epoch).UTC().Truncate(time.Millisecond),
		}
	}
	return out
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}
