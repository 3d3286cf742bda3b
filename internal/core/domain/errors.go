package domain

import (
	"errors"
	"fmt"
)

var (
	ErrDuplicateRequest  = errors.New("duplicate request")
	ErrContentionTimeout = errors.New("ledger contention timeout")
	ErrProductExists     = errors.New("product already exists")
	ErrInvalidProduct    = errors.New("invalid product")
)

// InvalidCartError is a caller error, raised before any ledger access.
type InvalidCartError struct {
	Reason string
}

func (e *InvalidCartError) Error() string {
	return "invalid cart: " + e.Reason
}

// InsufficientStockError is a business condition, not a fault: the first
// product (in lexicographic key order) whose available quantity cannot
// cover the request. Recoverable by adjusting the cart.
type InsufficientStockError struct {
	ProductID string
	Location  string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s at %s: requested %d, available %d",
		e.ProductID, e.Location, e.Requested, e.Available)
}

func (e *InsufficientStockError) Shortfall() int {
	return e.Requested - e.Available
}
