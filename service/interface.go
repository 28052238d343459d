package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"marketplace/model"
)

type ServiceInterface interface {
	CreateProduct(ctx context.Context, name, description string, price decimal.Decimal, stock int) (model.Product, error)
	GetProduct(ctx context.Context, id uuid.UUID) (model.Product, error)
	ListProducts(ctx context.Context) ([]model.Product, error)
	UpdateStock(ctx context.Context, productID uuid.UUID, newStock int) error

	CreateCart(ctx context.Context) (model.Cart, error)
	GetCart(ctx context.Context, id uuid.UUID) (model.Cart, error)
	GetOrCreateCartBySession(ctx context.Context, sessionID string) (model.Cart, error)
	AddItem(ctx context.Context, cartID, productID uuid.UUID, quantity int) (model.Cart, error)
	Checkout(ctx context.Context, cartID uuid.UUID) (model.CheckoutResult, error)
}
