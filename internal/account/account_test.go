package account

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AranBhambra/E-Commerce-DS/internal/store"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return NewManager(s)
}

func TestLogin(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	created, err := m.Create(ctx, "alice", "s3cret")
	require.NoError(t, err)

	t.Run("valid credentials", func(t *testing.T) {
		userID, err := m.Login(ctx, "alice", "s3cret")
		require.NoError(t, err)
		assert.Equal(t, created, userID)
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := m.Login(ctx, "alice", "wrong")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("unknown user", func(t *testing.T) {
		_, err := m.Login(ctx, "mallory", "s3cret")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})
}

func TestCreateDuplicateUsername(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	_, err := m.Create(ctx, "alice", "one")
	require.NoError(t, err)
	_, err = m.Create(ctx, "alice", "two")
	assert.Error(t, err, "usernames are unique per shard")
}

func TestHashPasswordStable(t *testing.T) {
	assert.Equal(t, HashPassword("pw"), HashPassword("pw"))
	assert.NotEqual(t, HashPassword("pw"), HashPassword("pw2"))
	assert.Len(t, HashPassword("pw"), 64)
}
