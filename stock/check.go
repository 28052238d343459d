// Package stock implements the reservation check shared by add-to-cart
// and checkout: a pure computation of how far a cart's demand exceeds
// currently available stock.
package stock

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"marketplace/model"
)

// Shortfall records one product whose requested quantity exceeds its
// available stock.
type Shortfall struct {
	ProductName string
	Available   int
	Requested   int
}

func (s Shortfall) Message() string {
	return fmt.Sprintf("Insufficient stock for %s. Available: %d, Requested: %d",
		s.ProductName, s.Available, s.Requested)
}

// Check compares every cart item against the product it references and
// returns one Shortfall per item whose quantity cannot be satisfied.
// It never mutates anything; a nil return means the whole cart is
// satisfiable at this instant. Items referencing a product missing from
// the map are reported as a shortfall with zero availability rather than
// an error, so callers always get the full list of offending items.
func Check(items []model.CartItem, products map[uuid.UUID]model.Product) []Shortfall {
	var shortfalls []Shortfall
	for _, item := range items {
		p, ok := products[item.ProductID]
		if !ok {
			shortfalls = append(shortfalls, Shortfall{
				ProductName: item.ProductID.String(),
				Available:   0,
				Requested:   item.Quantity,
			})
			continue
		}
		if item.Quantity > p.Stock {
			shortfalls = append(shortfalls, Shortfall{
				ProductName: p.Name,
				Available:   p.Stock,
				Requested:   item.Quantity,
			})
		}
	}
	return shortfalls
}

// Messages renders one message per shortfall, in cart order.
func Messages(shortfalls []Shortfall) []string {
	out := make([]string, 0, len(shortfalls))
	for _, s := range shortfalls {
		out = append(out, s.Message())
	}
	return out
}

// InsufficientStockError carries the full shortfall list across the
// store boundary when the re-check under lock fails during commit.
type InsufficientStockError struct {
	Shortfalls []Shortfall
}

func (e *InsufficientStockError) Error() string {
	return "insufficient stock: " + strings.Join(Messages(e.Shortfalls), "; ")
}
