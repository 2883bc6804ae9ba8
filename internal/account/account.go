// Package account handles user credential lookups against a shard's store.
package account

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/AranBhambra/E-Commerce-DS/internal/store"
)

// ErrInvalidCredentials is returned when no user matches the supplied
// username and password.
var ErrInvalidCredentials = errors.New("invalid username or password")

// Manager performs account operations against one shard's store.
type Manager struct {
	store *store.Store
}

// NewManager creates an account manager backed by the given store.
func NewManager(s *store.Store) *Manager {
	return &Manager{store: s}
}

// HashPassword returns the hex-encoded SHA-256 digest stored for a password.
func HashPassword(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

// Login returns the user id for a matching username/password pair, or
// ErrInvalidCredentials when either is wrong. A plain read; the retry drain
// a login triggers is the caller's concern.
func (m *Manager) Login(ctx context.Context, username, password string) (int64, error) {
	var userID int64
	err := m.store.DB().QueryRowContext(ctx,
		`SELECT user_id FROM users WHERE username = ? AND password_hash = ?`,
		username, HashPassword(password),
	).Scan(&userID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrInvalidCredentials
	}
	if err != nil {
		return 0, fmt.Errorf("login lookup: %w", err)
	}
	return userID, nil
}

// Create inserts a new user and returns its id. Used for provisioning;
// the wire protocol has no registration action.
func (m *Manager) Create(ctx context.Context, username, password string) (int64, error) {
	res, err := m.store.DB().ExecContext(ctx,
		`INSERT INTO users (username, password_hash) VALUES (?, ?)`,
		username, HashPassword(password),
	)
	if err != nil {
		return 0, fmt.Errorf("create user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("create user: %w", err)
	}
	return id, nil
}
