package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"marketplace/stock"
)

// CommitCheckout performs the commit phase of a checkout as one
// transaction: lock every product row referenced by the cart in ascending
// product-ID order, re-verify stock under lock, decrement all stocks and
// delete the cart. Any failure rolls the whole transaction back, so a
// partial decrement is never observable.
//
// Lock waits are bounded by LockTimeout; exceeding it aborts the checkout
// with ErrTxContention. A shortfall found under lock is reported as
// *stock.InsufficientStockError with one entry per offending item.
func (s *PostgresStore) CommitCheckout(ctx context.Context, cartID uuid.UUID) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	// No-op after a successful commit.
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.lockTimeout().Milliseconds())); err != nil {
		return err
	}

	// Ascending product-ID lock order keeps concurrent checkouts sharing
	// products from deadlocking against each other.
	rows, err := tx.QueryContext(ctx, `
		SELECT ci.product_id, ci.quantity, p.name, p.stock
		FROM cart_items ci
		JOIN products p ON p.id = ci.product_id
		WHERE ci.cart_id = $1
		ORDER BY p.id
		FOR UPDATE
	`, cartID)
	if err != nil {
		if isLockNotAvailable(err) {
			return ErrTxContention
		}
		return err
	}

	type line struct {
		productID uuid.UUID
		quantity  int
		name      string
		stock     int
	}
	var lines []line
	for rows.Next() {
		var l line
		if err := rows.Scan(&l.productID, &l.quantity, &l.name, &l.stock); err != nil {
			rows.Close()
			return err
		}
		lines = append(lines, l)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		if isLockNotAvailable(err) {
			return ErrTxContention
		}
		return err
	}

	if len(lines) == 0 {
		var exists bool
		if err := tx.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM carts WHERE id = $1)`, cartID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrNotFound
		}
		return ErrEmptyCart
	}

	// Re-verify under lock: stock may have shrunk between the advisory
	// validation and lock acquisition.
	var shortfalls []stock.Shortfall
	for _, l := range lines {
		if l.quantity > l.stock {
			shortfalls = append(shortfalls, stock.Shortfall{
				ProductName: l.name,
				Available:   l.stock,
				Requested:   l.quantity,
			})
		}
	}
	if len(shortfalls) > 0 {
		return &stock.InsufficientStockError{Shortfalls: shortfalls}
	}

	stmt, err := tx.PrepareContext(ctx, `UPDATE products SET stock = stock - $1 WHERE id = $2`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, l := range lines {
		if _, err := stmt.ExecContext(ctx, l.quantity, l.productID); err != nil {
			return err
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM cart_items WHERE cart_id = $1`, cartID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM carts WHERE id = $1`, cartID); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isLockNotAvailable(err) {
			return ErrTxContention
		}
		return err
	}
	return nil
}
