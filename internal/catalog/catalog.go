// Package catalog serves the product list and owns the stock counters.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/AranBhambra/E-Commerce-DS/internal/cluster"
	"github.com/AranBhambra/E-Commerce-DS/internal/store"
)

// ErrProductNotFound is returned when a product name has no catalog entry.
var ErrProductNotFound = errors.New("product not found")

// Manager performs catalog operations against one shard's store.
type Manager struct {
	store *store.Store
}

// NewManager creates a catalog manager backed by the given store.
func NewManager(s *store.Store) *Manager {
	return &Manager{store: s}
}

// ListProducts returns every catalog entry joined with its stock counter,
// ordered by product id.
func (m *Manager) ListProducts(ctx context.Context) ([]cluster.Product, error) {
	rows, err := m.store.DB().QueryContext(ctx, `
		SELECT p.product_id, p.name, p.description, p.price, pi.stock
		FROM products p
		JOIN product_inventory pi ON pi.product_id = p.product_id
		ORDER BY p.product_id`)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var products []cluster.Product
	for rows.Next() {
		var p cluster.Product
		if err := rows.Scan(&p.ProductID, &p.Name, &p.Description, &p.Price, &p.Stock); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return products, nil
}

// ProductByName looks up a single product by its unique name.
func (m *Manager) ProductByName(ctx context.Context, name string) (*cluster.Product, error) {
	var p cluster.Product
	err := m.store.DB().QueryRowContext(ctx, `
		SELECT p.product_id, p.name, p.description, p.price, pi.stock
		FROM products p
		JOIN product_inventory pi ON pi.product_id = p.product_id
		WHERE p.name = ?`, name,
	).Scan(&p.ProductID, &p.Name, &p.Description, &p.Price, &p.Stock)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("product by name: %w", err)
	}
	return &p, nil
}

// AddProduct inserts a catalog entry together with its stock counter.
// Used for provisioning; the wire protocol has no catalog mutation action.
func (m *Manager) AddProduct(ctx context.Context, p cluster.Product) error {
	return m.store.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO products (product_id, name, description, price) VALUES (?, ?, ?, ?)`,
			p.ProductID, p.Name, p.Description, p.Price,
		); err != nil {
			return fmt.Errorf("insert product: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO product_inventory (product_id, stock) VALUES (?, ?)`,
			p.ProductID, p.Stock,
		); err != nil {
			return fmt.Errorf("insert inventory: %w", err)
		}
		return nil
	})
}

// DecrementStock applies a conditional stock decrement inside the caller's
// transaction. It succeeds only when at least qty units remain, reporting
// whether the guard matched; the stock counter can never go negative.
func DecrementStock(ctx context.Context, tx *sql.Tx, productID, qty int64) (bool, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE product_inventory SET stock = stock - ? WHERE product_id = ? AND stock >= ?`,
		qty, productID, qty,
	)
	if err != nil {
		return false, fmt.Errorf("decrement stock: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("decrement stock: %w", err)
	}
	return n == 1, nil
}

// Stock returns the current stock counter for a product.
func (m *Manager) Stock(ctx context.Context, productID int64) (int64, error) {
	var stock int64
	err := m.store.DB().QueryRowContext(ctx,
		`SELECT stock FROM product_inventory WHERE product_id = ?`, productID,
	).Scan(&stock)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrProductNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("stock lookup: %w", err)
	}
	return stock, nil
}
