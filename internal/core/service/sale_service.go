package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ledgerworks/stockroom/internal/core/domain"
	"github.com/ledgerworks/stockroom/internal/port"
)

const compensateTimeout = 5 * time.Second

// SaleService turns carts into settlements. All quantity mutation goes
// through the ledger's two primitives; the catalog is read-only here.
type SaleService struct {
	ledger  port.InventoryLedger
	catalog port.CatalogRepository
	idem    port.IdempotencyStore // optional, nil disables duplicate suppression
	log     *zap.Logger
}

func NewSaleService(ledger port.InventoryLedger, catalog port.CatalogRepository, idem port.IdempotencyStore, log *zap.Logger) *SaleService {
	return &SaleService{ledger: ledger, catalog: catalog, idem: idem, log: log}
}

// Commit validates the cart, atomically deducts stock, prices the
// committed lines and returns the settlement. requestID may be empty;
// when set and an idempotency store is configured, a replay is rejected
// before any deduction.
//
// Once CheckAndDeduct has committed, the deduction is durable. A catalog
// miss after that point is an internal fault: the engine re-adjusts the
// deducted stock back up (best effort, failures logged) and surfaces the
// fault rather than a stock failure.
func (s *SaleService) Commit(ctx context.Context, requestID string, cart domain.Cart, location string) (*domain.SaleResult, error) {
	if location == "" {
		location = domain.DefaultLocation
	}
	if err := cart.Validate(); err != nil {
		return nil, err
	}

	// The idempotency key guards against concurrent replays, so it is taken
	// before the deduction. A commit that then fails must give the key back:
	// insufficient stock and contention timeouts are retryable by contract,
	// and holding the key would turn the retry into a duplicate.
	if s.idem != nil && requestID != "" {
		ok, err := s.idem.SetIdempotency(ctx, requestID)
		if err != nil {
			return nil, fmt.Errorf("idempotency check failed: %w", err)
		}
		if !ok {
			return nil, domain.ErrDuplicateRequest
		}
	}

	if err := s.ledger.CheckAndDeduct(ctx, cart, location); err != nil {
		s.releaseIdempotency(ctx, requestID)
		return nil, err
	}

	ids := make([]string, 0, len(cart))
	for id := range cart {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	lines := make([]domain.SaleLine, 0, len(cart))
	total := decimal.Zero
	for _, id := range ids {
		qty := cart[id]
		p, err := s.catalog.GetProduct(ctx, id)
		if err == nil && p == nil {
			err = fmt.Errorf("product %s deducted but missing from catalog", id)
		}
		if err != nil {
			s.compensate(ctx, cart, location)
			s.releaseIdempotency(ctx, requestID)
			s.log.Error("sale settlement fault",
				zap.String("product_id", id),
				zap.String("location", location),
				zap.Error(err))
			return nil, fmt.Errorf("settle sale: %w", err)
		}
		lineTotal := p.SellingPrice.Mul(decimal.NewFromInt(int64(qty)))
		lines = append(lines, domain.SaleLine{
			ProductID: id,
			Quantity:  qty,
			UnitPrice: p.SellingPrice,
			LineTotal: lineTotal,
		})
		total = total.Add(lineTotal)
	}

	now := time.Now().UTC()
	result := &domain.SaleResult{
		SaleID:      newSaleID(now),
		Total:       total,
		Lines:       lines,
		Location:    location,
		Clerk:       domain.ClerkFromContext(ctx),
		CommittedAt: now,
	}
	s.log.Info("sale committed",
		zap.String("sale_id", result.SaleID),
		zap.String("location", location),
		zap.String("clerk", result.Clerk),
		zap.String("total", total.String()),
		zap.Int("lines", len(lines)))
	return result, nil
}

// Adjust applies a signed stock correction for restock and administrative
// flows. Unlike sale deduction it has no availability guard: a negative
// resulting balance is a legitimate correction.
func (s *SaleService) Adjust(ctx context.Context, productID, location string, delta int) error {
	if productID == "" {
		return fmt.Errorf("product id is required")
	}
	if location == "" {
		location = domain.DefaultLocation
	}
	if err := s.ledger.Adjust(ctx, productID, location, delta); err != nil {
		return err
	}
	s.log.Info("inventory adjusted",
		zap.String("product_id", productID),
		zap.String("location", location),
		zap.Int("delta", delta),
		zap.String("clerk", domain.ClerkFromContext(ctx)))
	return nil
}

// releaseIdempotency gives a consumed request id back after a failed
// commit. Best effort on a fresh deadline: a key stuck until its TTL only
// delays a retry, so a failed release is logged, not surfaced.
func (s *SaleService) releaseIdempotency(ctx context.Context, requestID string) {
	if s.idem == nil || requestID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensateTimeout)
	defer cancel()
	if err := s.idem.ReleaseIdempotency(ctx, requestID); err != nil {
		s.log.Error("idempotency release failed",
			zap.String("request_id", requestID),
			zap.Error(err))
	}
}

// compensate re-adjusts every deducted line upward after a settlement
// fault. The deduction is already durable, so a failed compensation is
// logged for operator reconciliation, not retried. Runs on a fresh
// deadline: the original context may already be expired.
func (s *SaleService) compensate(ctx context.Context, cart domain.Cart, location string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensateTimeout)
	defer cancel()
	for id, qty := range cart {
		if err := s.ledger.Adjust(ctx, id, location, qty); err != nil {
			s.log.Error("stock compensation failed",
				zap.String("product_id", id),
				zap.String("location", location),
				zap.Int("quantity", qty),
				zap.Error(err))
		}
	}
}

func newSaleID(now time.Time) string {
	// timestamp for operators, uuid fragment to disambiguate sales landing
	// in the same clock second
	return fmt.Sprintf("SALE-%s-%s", now.Format("20060102-150405"), uuid.NewString()[:8])
}
