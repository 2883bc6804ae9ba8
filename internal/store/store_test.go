package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenBootstrapsSchema(t *testing.T) {
	s, err := Open(":memory:")
	require.NoError(t, err)
	defer s.Close()

	for _, table := range []string{
		"users", "products", "product_inventory", "carts", "cart_items",
		"orders", "order_items", "applied_mutations", "sync_failures",
	} {
		var name string
		err := s.DB().QueryRow(
			`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table,
		).Scan(&name)
		assert.NoError(t, err, "table %s should exist", table)
	}

	// Opening twice must be idempotent.
	again, err := Open(":memory:")
	require.NoError(t, err)
	again.Close()
}

func TestStockCheckConstraint(t *testing.T) {
	s, err := Open(":memory:")
	require.NoError(t, err)
	defer s.Close()

	_, err = s.DB().Exec(`INSERT INTO products (product_id, name, price) VALUES (1, 'widget', 9.99)`)
	require.NoError(t, err)
	_, err = s.DB().Exec(`INSERT INTO product_inventory (product_id, stock) VALUES (1, 5)`)
	require.NoError(t, err)

	// An unconditional decrement below zero trips the CHECK constraint.
	_, err = s.DB().Exec(`UPDATE product_inventory SET stock = stock - 10 WHERE product_id = 1`)
	assert.Error(t, err)
}

func TestWithTxCommit(t *testing.T) {
	s, err := Open(":memory:")
	require.NoError(t, err)
	defer s.Close()

	err = s.WithTx(context.Background(), func(tx *sql.Tx) error {
		_, err := tx.Exec(`INSERT INTO users (username, password_hash) VALUES ('alice', 'h')`)
		return err
	})
	require.NoError(t, err)

	var n int
	require.NoError(t, s.DB().QueryRow(`SELECT COUNT(*) FROM users`).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestWithTxRollback(t *testing.T) {
	s, err := Open(":memory:")
	require.NoError(t, err)
	defer s.Close()

	boom := errors.New("boom")
	err = s.WithTx(context.Background(), func(tx *sql.Tx) error {
		if _, err := tx.Exec(`INSERT INTO users (username, password_hash) VALUES ('alice', 'h')`); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	var n int
	require.NoError(t, s.DB().QueryRow(`SELECT COUNT(*) FROM users`).Scan(&n))
	assert.Equal(t, 0, n, "rolled back insert must not persist")
}
