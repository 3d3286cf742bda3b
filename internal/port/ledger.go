package port

import (
	"context"

	"github.com/ledgerworks/stockroom/internal/core/domain"
)

// InventoryLedger owns all quantity state. Its two mutation primitives are
// linearizable with respect to each other on overlapping keys; no other
// component writes quantities.
type InventoryLedger interface {
	// Adjust applies a signed quantity change, creating the entry at zero
	// first if absent. It is deliberately unguarded: corrections may drive a
	// quantity negative. Fails only on storage I/O.
	Adjust(ctx context.Context, productID, location string, delta int) error

	// CheckAndDeduct atomically verifies and deducts every line, or deducts
	// nothing. A missing entry counts as quantity zero. Returns
	// *domain.InsufficientStockError naming the first failing product in
	// lexicographic order, or domain.ErrContentionTimeout when lock waits
	// exhaust the caller's deadline.
	CheckAndDeduct(ctx context.Context, items map[string]int, location string) error

	// Snapshot returns a consistent point-in-time view of every entry with
	// its catalog price, ordered by (product id, location).
	Snapshot(ctx context.Context) ([]domain.StockView, error)
}
