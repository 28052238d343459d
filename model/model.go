package model

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Product is a catalog entry with a non-negative stock counter. Stock is
// mutated only by checkout (decrement) and by restock.
type Product struct {
	ID          uuid.UUID       `json:"id"`
	Name        string          `json:"name"`
	Price       decimal.Decimal `json:"price"`
	Description string          `json:"description,omitempty"`
	Stock       int             `json:"stock"`
}

// Cart holds at most one line item per product. SessionID is empty for
// carts created explicitly; at most one live cart exists per session key.
type Cart struct {
	ID        uuid.UUID  `json:"id"`
	SessionID string     `json:"session_id,omitempty"`
	Items     []CartItem `json:"items"`
}

// CartItem is a line item. CartID is a non-owning back reference to the
// cart that holds it.
type CartItem struct {
	ID        uuid.UUID `json:"id"`
	CartID    uuid.UUID `json:"-"`
	ProductID uuid.UUID `json:"product_id"`
	Quantity  int       `json:"quantity"`
}

// CheckoutResult is the terminal outcome of a checkout. On stock-related
// failures Errors carries one entry per offending item.
type CheckoutResult struct {
	Success bool     `json:"success"`
	Message string   `json:"message"`
	Errors  []string `json:"errors,omitempty"`
}

func CheckoutSuccess(message string) CheckoutResult {
	return CheckoutResult{Success: true, Message: message}
}

func CheckoutFailure(message string, errs ...string) CheckoutResult {
	return CheckoutResult{Success: false, Message: message, Errors: errs}
}
