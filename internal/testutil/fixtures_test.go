package testutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/storekit/internal/backend"
)

func TestFakeUsers_Deterministic(t *testing.T) {
	a := FakeUsers(42, 5)
	b := FakeUsers(42, 5)
	assert.Equal(t, a, b)

	for _, u := range a {
		assert.Empty(t, u.ID)
		assert.NotEmpty(t, u.Name)
		assert.GreaterOrEqual(t, u.Age, 18)
		assert.LessOrEqual(t, u.Age, 80)
		assert.Contains(t, statuses, u.Status)
		assert.False(t, u.CreatedAt.After(Epoch))
	}

	assert.NotEqual(t, a, FakeUsers(7, 5))
}

func TestOpenStore_HasUsersTable(t *testing.T) {
	s := OpenStore(t)

	v, err := s.SchemaVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	n, err := s.Clear(context.Background(), backend.Model{Name: "User", Table: "users"})
	require.NoError(t, err)
	assert.Zero(t, n)
}
