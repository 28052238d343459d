package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"marketplace/model"
	"marketplace/stock"
	"marketplace/store"
)

const (
	msgCheckoutOK        = "Checkout successful!"
	msgEmptyCart         = "Cannot checkout empty cart"
	msgInsufficientStock = "Checkout failed due to insufficient stock"
	msgContention        = "Checkout temporarily unavailable. Please try again."
	msgInternal          = "An unexpected error occurred during checkout."
)

// Checkout converts the cart into committed stock decrements and deletes
// the cart, all-or-nothing.
//
// A missing cart is an error (the caller sees NotFound, which is also what
// a replayed checkout of an already checked-out cart gets). Every other
// terminal outcome is a structured CheckoutResult; stock-related failures
// carry one error string per offending item.
func (s *Service) Checkout(ctx context.Context, cartID uuid.UUID) (model.CheckoutResult, error) {
	start := time.Now()

	cart, err := s.store.FindCartByID(ctx, cartID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return model.CheckoutResult{}, fmt.Errorf("cart %s: %w", cartID, store.ErrNotFound)
		}
		return model.CheckoutResult{}, err
	}

	if len(cart.Items) == 0 {
		s.finishCheckout(cartID, "empty_cart", start)
		return model.CheckoutFailure(msgEmptyCart), nil
	}

	// Advisory validation before taking any locks: reject obviously
	// unsatisfiable carts without touching the products.
	products, err := s.loadProducts(ctx, cart.Items)
	if err != nil {
		return model.CheckoutResult{}, err
	}
	if shortfalls := stock.Check(cart.Items, products); len(shortfalls) > 0 {
		s.finishCheckout(cartID, "insufficient_stock", start)
		return model.CheckoutFailure(msgInsufficientStock, stock.Messages(shortfalls)...), nil
	}

	err = s.store.CommitCheckout(ctx, cartID)

	var insufficient *stock.InsufficientStockError
	switch {
	case err == nil:
		s.finishCheckout(cartID, "success", start)
		return model.CheckoutSuccess(msgCheckoutOK), nil

	case errors.As(err, &insufficient):
		// Stock shrank between validation and lock acquisition.
		s.finishCheckout(cartID, "insufficient_stock", start)
		return model.CheckoutFailure(msgInsufficientStock, stock.Messages(insufficient.Shortfalls)...), nil

	case errors.Is(err, store.ErrEmptyCart):
		s.finishCheckout(cartID, "empty_cart", start)
		return model.CheckoutFailure(msgEmptyCart), nil

	case errors.Is(err, store.ErrNotFound):
		// Another checkout won the race and deleted the cart.
		s.finishCheckout(cartID, "not_found", start)
		return model.CheckoutResult{}, fmt.Errorf("cart %s: %w", cartID, store.ErrNotFound)

	case errors.Is(err, store.ErrTxContention):
		s.finishCheckout(cartID, "contention", start)
		return model.CheckoutFailure(msgContention), nil

	default:
		// The store has already rolled back; nothing was decremented.
		s.log.Error("checkout commit failed", "cart_id", cartID, "error", err)
		s.finishCheckout(cartID, "error", start)
		return model.CheckoutFailure(msgInternal), nil
	}
}

// loadProducts fetches every product referenced by the cart with bounded
// concurrency. Missing products are left out of the map so the reservation
// check reports them instead of aborting the whole validation.
func (s *Service) loadProducts(ctx context.Context, items []model.CartItem) (map[uuid.UUID]model.Product, error) {
	loaded := make([]model.Product, len(items))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.maxConcurrent)

	for idx := range items {
		idx := idx
		g.Go(func() error {
			p, err := s.store.FindProductByID(ctx, items[idx].ProductID)
			if errors.Is(err, store.ErrNotFound) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("load product %s: %w", items[idx].ProductID, err)
			}
			loaded[idx] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	products := make(map[uuid.UUID]model.Product, len(loaded))
	for _, p := range loaded {
		if p.ID != uuid.Nil {
			products[p.ID] = p
		}
	}
	return products, nil
}

func (s *Service) finishCheckout(cartID uuid.UUID, outcome string, start time.Time) {
	elapsed := time.Since(start)
	s.chk.Observe(outcome, float64(elapsed.Milliseconds()))
	s.log.Info("checkout finished", "cart_id", cartID, "outcome", outcome, "duration_ms", elapsed.Milliseconds())
}
