// Package cart implements the local transaction executor: the mutations a
// shard applies to its own store before any replication happens.
//
// Every operation is scoped to a single store transaction. It commits as a
// whole or rolls back as a whole; a partial order, a dangling cart row, or a
// decremented stock counter without its order line can never persist.
//
// The Apply* variants are the peer-side entry points for replicated
// mutations. They share the same transactional semantics but are keyed by
// the payload's mutation id, so a replayed delivery applies at most once.
package cart

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/AranBhambra/E-Commerce-DS/internal/catalog"
	"github.com/AranBhambra/E-Commerce-DS/internal/cluster"
	"github.com/AranBhambra/E-Commerce-DS/internal/store"
)

// Failure conditions surfaced to the request handler. Each one means the
// transaction was rolled back and nothing was mutated.
var (
	ErrCartNotFound      = errors.New("cart not found")
	ErrEmptyCart         = errors.New("cart is empty")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidQuantity   = errors.New("quantity must be positive")
)

// Executor applies cart and order mutations against one shard's store.
type Executor struct {
	store *store.Store
}

// NewExecutor creates an executor backed by the given store.
func NewExecutor(s *store.Store) *Executor {
	return &Executor{store: s}
}

// CheckoutResult reports what a committed checkout applied, so the handler
// can build the replication payload without re-querying the store.
type CheckoutResult struct {
	OrderID     int64
	CartID      int64
	TotalAmount float64
	Items       []cluster.CheckoutItem
}

// AddToCart ensures the user has a cart (creating one if absent) and upserts
// the cart item, accumulating quantity when the product is already present.
// Cart creation and the item upsert commit together or not at all.
// Returns the cart id.
func (e *Executor) AddToCart(ctx context.Context, userID, productID, qty int64) (int64, error) {
	if qty <= 0 {
		return 0, ErrInvalidQuantity
	}
	var cartID int64
	err := e.store.WithTx(ctx, func(tx *sql.Tx) error {
		var err error
		cartID, err = ensureCart(ctx, tx, userID)
		if err != nil {
			return err
		}
		return upsertItem(ctx, tx, cartID, productID, qty)
	})
	if err != nil {
		return 0, err
	}
	return cartID, nil
}

// RemoveFromCart deletes the cart item matching the given product name from
// the user's cart. A user without a cart is an explicit failure
// (ErrCartNotFound); a cart without that item is a no-op success.
// Returns the cart id.
func (e *Executor) RemoveFromCart(ctx context.Context, userID int64, productName string) (int64, error) {
	var cartID int64
	err := e.store.WithTx(ctx, func(tx *sql.Tx) error {
		var err error
		cartID, err = cartForUser(ctx, tx, userID)
		if err != nil {
			return err
		}
		return deleteItemByName(ctx, tx, cartID, productName)
	})
	if err != nil {
		return 0, err
	}
	return cartID, nil
}

// ViewCart returns the user's cart id and its items with current prices.
// A user without a cart gets ErrCartNotFound.
func (e *Executor) ViewCart(ctx context.Context, userID int64) (int64, []cluster.CartItem, error) {
	var cartID int64
	err := e.store.DB().QueryRowContext(ctx,
		`SELECT cart_id FROM carts WHERE user_id = ?`, userID,
	).Scan(&cartID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil, ErrCartNotFound
	}
	if err != nil {
		return 0, nil, fmt.Errorf("cart lookup: %w", err)
	}

	rows, err := e.store.DB().QueryContext(ctx, `
		SELECT p.name, ci.quantity, p.price
		FROM cart_items ci
		JOIN products p ON p.product_id = ci.product_id
		WHERE ci.cart_id = ?
		ORDER BY p.product_id`, cartID)
	if err != nil {
		return 0, nil, fmt.Errorf("view cart: %w", err)
	}
	defer rows.Close()

	var items []cluster.CartItem
	for rows.Next() {
		var it cluster.CartItem
		if err := rows.Scan(&it.ProductName, &it.Quantity, &it.Price); err != nil {
			return 0, nil, fmt.Errorf("scan cart item: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return 0, nil, fmt.Errorf("view cart: %w", err)
	}
	return cartID, items, nil
}

// Checkout turns the cart's current contents into an order.
//
// Within one transaction it reads the items with their current prices,
// computes the total, creates the order and its line items, applies a
// conditional stock decrement per line, and deletes the cart. Any line
// whose stock guard fails aborts the whole transaction: no order row, no
// line items, no decrements survive. The cart is left exactly as it was.
func (e *Executor) Checkout(ctx context.Context, userID, cartID int64) (*CheckoutResult, error) {
	var result *CheckoutResult
	err := e.store.WithTx(ctx, func(tx *sql.Tx) error {
		items, total, err := readCartLines(ctx, tx, cartID)
		if err != nil {
			return err
		}
		orderID, err := insertOrder(ctx, tx, userID, total, items)
		if err != nil {
			return err
		}
		if err := clearCart(ctx, tx, cartID); err != nil {
			return err
		}
		result = &CheckoutResult{
			OrderID:     orderID,
			CartID:      cartID,
			TotalAmount: total,
			Items:       items,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ApplyAddToCart applies a replicated add_to_cart on this shard. The cart is
// resolved by user id, not by the source shard's cart id: cart ids are
// assigned independently per shard. Replays of an already-seen mutation id
// succeed without touching the cart.
func (e *Executor) ApplyAddToCart(ctx context.Context, p cluster.AddToCartPayload, source cluster.ShardID) error {
	if p.Quantity <= 0 {
		return ErrInvalidQuantity
	}
	return e.store.WithTx(ctx, func(tx *sql.Tx) error {
		first, err := markApplied(ctx, tx, p.MutationID, cluster.ActionAddToCart, source)
		if err != nil || !first {
			return err
		}
		cartID, err := ensureCart(ctx, tx, p.UserID)
		if err != nil {
			return err
		}
		return upsertItem(ctx, tx, cartID, p.ProductID, p.Quantity)
	})
}

// ApplyRemoveFromCart applies a replicated remove_from_cart on this shard.
func (e *Executor) ApplyRemoveFromCart(ctx context.Context, p cluster.RemoveFromCartPayload, source cluster.ShardID) error {
	return e.store.WithTx(ctx, func(tx *sql.Tx) error {
		first, err := markApplied(ctx, tx, p.MutationID, cluster.ActionRemoveFromCart, source)
		if err != nil || !first {
			return err
		}
		cartID, err := cartForUser(ctx, tx, p.UserID)
		if err != nil {
			return err
		}
		return deleteItemByName(ctx, tx, cartID, p.ProductName)
	})
}

// ApplyCheckout applies a replicated checkout on this shard, rebuilding the
// order from the payload's line items and total rather than re-deriving it
// from the local cart. Stock guards still apply here: a peer that cannot
// cover the quantities rejects the sync and the record stays queued.
func (e *Executor) ApplyCheckout(ctx context.Context, p cluster.CheckoutPayload, source cluster.ShardID) error {
	return e.store.WithTx(ctx, func(tx *sql.Tx) error {
		first, err := markApplied(ctx, tx, p.MutationID, cluster.ActionCheckout, source)
		if err != nil || !first {
			return err
		}
		if len(p.CartItems) == 0 {
			return ErrEmptyCart
		}
		if _, err := insertOrder(ctx, tx, p.UserID, p.TotalAmount, p.CartItems); err != nil {
			return err
		}
		// The user's cart on this shard, if any, mirrors the one just
		// checked out at the source; clear it so the replicas converge.
		cartID, err := cartForUser(ctx, tx, p.UserID)
		if errors.Is(err, ErrCartNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return clearCart(ctx, tx, cartID)
	})
}

// markApplied records a mutation id inside the current transaction and
// reports whether this is its first application. An empty id (a direct
// client mutation rather than a replicated one) is always considered first.
func markApplied(ctx context.Context, tx *sql.Tx, mutationID, action string, source cluster.ShardID) (bool, error) {
	if mutationID == "" {
		return true, nil
	}
	res, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO applied_mutations (mutation_id, action, source_server) VALUES (?, ?, ?)`,
		mutationID, action, string(source),
	)
	if err != nil {
		return false, fmt.Errorf("record mutation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("record mutation: %w", err)
	}
	return n == 1, nil
}

func cartForUser(ctx context.Context, tx *sql.Tx, userID int64) (int64, error) {
	var cartID int64
	err := tx.QueryRowContext(ctx,
		`SELECT cart_id FROM carts WHERE user_id = ?`, userID,
	).Scan(&cartID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrCartNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("cart lookup: %w", err)
	}
	return cartID, nil
}

func ensureCart(ctx context.Context, tx *sql.Tx, userID int64) (int64, error) {
	cartID, err := cartForUser(ctx, tx, userID)
	if err == nil {
		return cartID, nil
	}
	if !errors.Is(err, ErrCartNotFound) {
		return 0, err
	}
	res, err := tx.ExecContext(ctx, `INSERT INTO carts (user_id) VALUES (?)`, userID)
	if err != nil {
		return 0, fmt.Errorf("create cart: %w", err)
	}
	cartID, err = res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("create cart: %w", err)
	}
	return cartID, nil
}

func upsertItem(ctx context.Context, tx *sql.Tx, cartID, productID, qty int64) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO cart_items (cart_id, product_id, quantity)
		VALUES (?, ?, ?)
		ON CONFLICT (cart_id, product_id)
		DO UPDATE SET quantity = quantity + excluded.quantity`,
		cartID, productID, qty)
	if err != nil {
		return fmt.Errorf("upsert cart item: %w", err)
	}
	return nil
}

func deleteItemByName(ctx context.Context, tx *sql.Tx, cartID int64, productName string) error {
	_, err := tx.ExecContext(ctx, `
		DELETE FROM cart_items
		WHERE cart_id = ?
		  AND product_id IN (SELECT product_id FROM products WHERE name = ?)`,
		cartID, productName)
	if err != nil {
		return fmt.Errorf("delete cart item: %w", err)
	}
	return nil
}

func readCartLines(ctx context.Context, tx *sql.Tx, cartID int64) ([]cluster.CheckoutItem, float64, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT ci.product_id, ci.quantity, p.price
		FROM cart_items ci
		JOIN products p ON p.product_id = ci.product_id
		WHERE ci.cart_id = ?
		ORDER BY ci.product_id`, cartID)
	if err != nil {
		return nil, 0, fmt.Errorf("read cart: %w", err)
	}
	defer rows.Close()

	var items []cluster.CheckoutItem
	var total float64
	for rows.Next() {
		var it cluster.CheckoutItem
		if err := rows.Scan(&it.ProductID, &it.Quantity, &it.Price); err != nil {
			return nil, 0, fmt.Errorf("scan cart line: %w", err)
		}
		total += float64(it.Quantity) * it.Price
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("read cart: %w", err)
	}
	if len(items) == 0 {
		return nil, 0, ErrEmptyCart
	}
	return items, total, nil
}

func insertOrder(ctx context.Context, tx *sql.Tx, userID int64, total float64, items []cluster.CheckoutItem) (int64, error) {
	res, err := tx.ExecContext(ctx,
		`INSERT INTO orders (user_id, total_amount, status) VALUES (?, ?, 'Pending')`,
		userID, total)
	if err != nil {
		return 0, fmt.Errorf("insert order: %w", err)
	}
	orderID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert order: %w", err)
	}
	for _, it := range items {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO order_items (order_id, product_id, quantity, price) VALUES (?, ?, ?, ?)`,
			orderID, it.ProductID, it.Quantity, it.Price,
		); err != nil {
			return 0, fmt.Errorf("insert order item: %w", err)
		}
		ok, err := catalog.DecrementStock(ctx, tx, it.ProductID, it.Quantity)
		if err != nil {
			return 0, err
		}
		if !ok {
			return 0, fmt.Errorf("%w for product %d", ErrInsufficientStock, it.ProductID)
		}
	}
	return orderID, nil
}

func clearCart(ctx context.Context, tx *sql.Tx, cartID int64) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM cart_items WHERE cart_id = ?`, cartID); err != nil {
		return fmt.Errorf("clear cart items: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM carts WHERE cart_id = ?`, cartID); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}
