package service

import (
	"context"

	"github.com/ledgerworks/stockroom/internal/core/domain"
	"github.com/ledgerworks/stockroom/internal/port"
)

// ReportService produces read-only views over the ledger. It never mutates.
type ReportService struct {
	ledger port.InventoryLedger
}

func NewReportService(ledger port.InventoryLedger) *ReportService {
	return &ReportService{ledger: ledger}
}

// InventorySnapshot returns every (product, location) balance with its
// catalog price, as a single consistent point-in-time view ordered by
// product id then location.
func (r *ReportService) InventorySnapshot(ctx context.Context) ([]domain.StockView, error) {
	return r.ledger.Snapshot(ctx)
}
