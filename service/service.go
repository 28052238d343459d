// Package service holds the business rules in front of the store: input
// validation, the advisory stock check on add-to-cart, and the checkout
// engine.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"marketplace/metrics"
	"marketplace/model"
	"marketplace/store"
)

// ErrInvalidArgument marks rejected input: non-positive quantity, blank
// product name, non-positive price, or an add exceeding available stock.
var ErrInvalidArgument = errors.New("invalid argument")

const defaultMaxConcurrent = 8

type Service struct {
	store store.Store
	log   *slog.Logger
	chk   *metrics.Checkout

	// maxConcurrent bounds parallel product lookups during checkout
	// validation.
	maxConcurrent int
}

func NewService(st store.Store, log *slog.Logger, chk *metrics.Checkout) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		store:         st,
		log:           log,
		chk:           chk,
		maxConcurrent: defaultMaxConcurrent,
	}
}

// --- products ---

func (s *Service) CreateProduct(ctx context.Context, name, description string, price decimal.Decimal, stockCount int) (model.Product, error) {
	if strings.TrimSpace(name) == "" {
		return model.Product{}, fmt.Errorf("%w: product name cannot be blank", ErrInvalidArgument)
	}
	if !price.IsPositive() {
		return model.Product{}, fmt.Errorf("%w: price must be greater than 0", ErrInvalidArgument)
	}
	if stockCount < 0 {
		return model.Product{}, fmt.Errorf("%w: stock cannot be negative", ErrInvalidArgument)
	}
	return s.store.CreateProduct(ctx, model.Product{
		Name:        name,
		Description: description,
		Price:       price,
		Stock:       stockCount,
	})
}

func (s *Service) GetProduct(ctx context.Context, id uuid.UUID) (model.Product, error) {
	p, err := s.store.FindProductByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return model.Product{}, fmt.Errorf("product %s: %w", id, store.ErrNotFound)
	}
	return p, err
}

func (s *Service) ListProducts(ctx context.Context) ([]model.Product, error) {
	return s.store.ListProducts(ctx)
}

// UpdateStock is the external restock path; it sets the absolute stock.
func (s *Service) UpdateStock(ctx context.Context, productID uuid.UUID, newStock int) error {
	if newStock < 0 {
		return fmt.Errorf("%w: stock cannot be negative", ErrInvalidArgument)
	}
	err := s.store.UpdateStock(ctx, productID, newStock)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("product %s: %w", productID, store.ErrNotFound)
	}
	return err
}

// --- carts ---

func (s *Service) CreateCart(ctx context.Context) (model.Cart, error) {
	return s.store.CreateCart(ctx, "")
}

func (s *Service) GetCart(ctx context.Context, id uuid.UUID) (model.Cart, error) {
	cart, err := s.store.FindCartByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return model.Cart{}, fmt.Errorf("cart %s: %w", id, store.ErrNotFound)
	}
	return cart, err
}

// GetOrCreateCartBySession returns the live cart for the session key,
// creating one if none exists. The session key is unique at the store
// level; if a concurrent request creates the cart first, the resulting
// duplicate-session error is resolved by re-reading.
func (s *Service) GetOrCreateCartBySession(ctx context.Context, sessionID string) (model.Cart, error) {
	if sessionID == "" {
		return model.Cart{}, fmt.Errorf("%w: session ID is required", ErrInvalidArgument)
	}

	cart, err := s.store.FindCartBySession(ctx, sessionID)
	if err == nil {
		return cart, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return model.Cart{}, err
	}

	cart, err = s.store.CreateCart(ctx, sessionID)
	if errors.Is(err, store.ErrDuplicateSession) {
		return s.store.FindCartBySession(ctx, sessionID)
	}
	return cart, err
}

// AddItem adds quantity of a product to the cart. The stock check here is
// advisory: it validates against current stock but reserves nothing, and
// the binding check happens again inside checkout.
func (s *Service) AddItem(ctx context.Context, cartID, productID uuid.UUID, quantity int) (model.Cart, error) {
	if quantity < 1 {
		return model.Cart{}, fmt.Errorf("%w: quantity must be greater than 0", ErrInvalidArgument)
	}

	if _, err := s.store.FindCartByID(ctx, cartID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return model.Cart{}, fmt.Errorf("cart %s: %w", cartID, store.ErrNotFound)
		}
		return model.Cart{}, err
	}

	product, err := s.store.FindProductByID(ctx, productID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return model.Cart{}, fmt.Errorf("product %s: %w", productID, store.ErrNotFound)
		}
		return model.Cart{}, err
	}

	inCart := 0
	item, err := s.store.FindCartItem(ctx, cartID, productID)
	if err == nil {
		inCart = item.Quantity
	} else if !errors.Is(err, store.ErrNotFound) {
		return model.Cart{}, err
	}

	if inCart+quantity > product.Stock {
		return model.Cart{}, fmt.Errorf("%w: insufficient stock. Available: %d, Requested: %d",
			ErrInvalidArgument, product.Stock-inCart, quantity)
	}

	if err := s.store.UpsertCartItem(ctx, cartID, productID, quantity); err != nil {
		return model.Cart{}, err
	}
	return s.GetCart(ctx, cartID)
}
