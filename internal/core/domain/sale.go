package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Cart maps product ids to requested quantities. A cart exists only for
// the duration of one sale attempt.
type Cart map[string]int

// Validate rejects carts that must never reach the ledger: empty carts,
// blank product ids and non-positive quantities.
func (c Cart) Validate() error {
	if len(c) == 0 {
		return &InvalidCartError{Reason: "cart is empty"}
	}
	for id, qty := range c {
		if id == "" {
			return &InvalidCartError{Reason: "blank product id"}
		}
		if qty <= 0 {
			return &InvalidCartError{Reason: fmt.Sprintf("non-positive quantity %d for product %s", qty, id)}
		}
	}
	return nil
}

type SaleLine struct {
	ProductID string
	Quantity  int
	UnitPrice decimal.Decimal
	LineTotal decimal.Decimal
}

// SaleResult is the settlement of a committed sale. It is not persisted
// by the core; it carries everything a caller needs to record the sale.
type SaleResult struct {
	SaleID      string
	Total       decimal.Decimal
	Lines       []SaleLine
	Location    string
	Clerk       string
	CommittedAt time.Time
}
