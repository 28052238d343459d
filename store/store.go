package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"marketplace/model"
)

// ErrNotFound is returned when a product, cart or cart item does not exist.
var ErrNotFound = errors.New("not found")

// ErrEmptyCart is returned by CommitCheckout when the cart has no items
// left by the time the commit transaction runs.
var ErrEmptyCart = errors.New("cart is empty")

// ErrTxContention is returned when product row locks could not be acquired
// within the bounded wait. The checkout is aborted with no side effects and
// may be retried.
var ErrTxContention = errors.New("checkout contention: lock wait timed out")

// ErrDuplicateSession is returned when a cart already exists for the given
// session key.
var ErrDuplicateSession = errors.New("cart already exists for session")

// Store is the persistence contract consumed by the service layer.
//
// CommitCheckout is the atomic primitive behind the checkout engine: in a
// single unit it locks every product referenced by the cart in ascending
// product-ID order, re-verifies stock under lock, applies all decrements
// and deletes the cart. Either every decrement lands or none do.
type Store interface {
	CreateProduct(ctx context.Context, p model.Product) (model.Product, error)
	FindProductByID(ctx context.Context, id uuid.UUID) (model.Product, error)
	ListProducts(ctx context.Context) ([]model.Product, error)
	UpdateStock(ctx context.Context, productID uuid.UUID, newStock int) error

	CreateCart(ctx context.Context, sessionID string) (model.Cart, error)
	FindCartByID(ctx context.Context, id uuid.UUID) (model.Cart, error)
	FindCartBySession(ctx context.Context, sessionID string) (model.Cart, error)
	DeleteCart(ctx context.Context, id uuid.UUID) error

	FindCartItem(ctx context.Context, cartID, productID uuid.UUID) (model.CartItem, error)
	UpsertCartItem(ctx context.Context, cartID, productID uuid.UUID, quantity int) error

	CommitCheckout(ctx context.Context, cartID uuid.UUID) error

	Close() error
}
