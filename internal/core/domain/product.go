package domain

import (
	"math/rand/v2"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID           string
	Name         string
	Description  string
	CostPrice    decimal.Decimal
	SellingPrice decimal.Decimal
	Barcode      string
	Category     string
}

// NewBarcode returns a random 12-digit code assigned on catalog add.
func NewBarcode() string {
	var b [12]byte
	for i := range b {
		b[i] = byte('0' + rand.IntN(10))
	}
	return string(b[:])
}
