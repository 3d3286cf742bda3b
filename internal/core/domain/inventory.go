package domain

import "github.com/shopspring/decimal"

// DefaultLocation is used when a caller does not name a warehouse.
const DefaultLocation = "main_warehouse"

// StockView is one row of the consistent inventory snapshot: the running
// balance for one (product, location) key joined with its catalog price.
// Entries are created at zero on first touch and never deleted; products
// that have stock but no catalog row carry a zero price rather than
// being hidden.
type StockView struct {
	ProductID    string
	Location     string
	Quantity     int
	SellingPrice decimal.Decimal
}
