package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ledgerworks/stockroom/internal/core/domain"
)

// mockLedger implements the real check-and-deduct semantics behind a
// mutex so concurrency tests exercise genuine races.
type mockLedger struct {
	mu          sync.Mutex
	stock       map[string]int // productID|location
	deductCalls int
	deductErr   error
}

func newMockLedger() *mockLedger {
	return &mockLedger{stock: make(map[string]int)}
}

func stockKey(productID, location string) string {
	return productID + "|" + location
}

func (m *mockLedger) Adjust(ctx context.Context, productID, location string, delta int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stock[stockKey(productID, location)] += delta
	return nil
}

func (m *mockLedger) CheckAndDeduct(ctx context.Context, items map[string]int, location string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deductCalls++

	if m.deductErr != nil {
		return m.deductErr
	}

	ids := make([]string, 0, len(items))
	for id := range items {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		if available := m.stock[stockKey(id, location)]; available < items[id] {
			return &domain.InsufficientStockError{
				ProductID: id,
				Location:  location,
				Requested: items[id],
				Available: available,
			}
		}
	}
	for id, qty := range items {
		m.stock[stockKey(id, location)] -= qty
	}
	return nil
}

func (m *mockLedger) Snapshot(ctx context.Context) ([]domain.StockView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	views := make([]domain.StockView, 0, len(m.stock))
	for key, qty := range m.stock {
		parts := strings.SplitN(key, "|", 2)
		views = append(views, domain.StockView{ProductID: parts[0], Location: parts[1], Quantity: qty})
	}
	sort.Slice(views, func(i, j int) bool {
		if views[i].ProductID != views[j].ProductID {
			return views[i].ProductID < views[j].ProductID
		}
		return views[i].Location < views[j].Location
	})
	return views, nil
}

func (m *mockLedger) quantity(productID, location string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stock[stockKey(productID, location)]
}

type mockCatalog struct {
	products map[string]domain.Product
}

func newMockCatalog(products ...domain.Product) *mockCatalog {
	c := &mockCatalog{products: make(map[string]domain.Product)}
	for _, p := range products {
		c.products[p.ID] = p
	}
	return c
}

func (m *mockCatalog) AddProduct(ctx context.Context, p domain.Product) error {
	if _, ok := m.products[p.ID]; ok {
		return domain.ErrProductExists
	}
	m.products[p.ID] = p
	return nil
}

func (m *mockCatalog) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	p, ok := m.products[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

type mockIdem struct {
	mu   sync.Mutex
	keys map[string]bool
}

func newMockIdem() *mockIdem {
	return &mockIdem{keys: make(map[string]bool)}
}

func (m *mockIdem) SetIdempotency(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.keys[key] {
		return false, nil
	}
	m.keys[key] = true
	return true, nil
}

func (m *mockIdem) ReleaseIdempotency(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, key)
	return nil
}

func testProduct(id, price string) domain.Product {
	return domain.Product{
		ID:           id,
		Name:         "product " + id,
		CostPrice:    decimal.RequireFromString("1.00"),
		SellingPrice: decimal.RequireFromString(price),
		Barcode:      "000000000000",
		Category:     "General",
	}
}

func TestCommit_Settlement(t *testing.T) {
	ledger := newMockLedger()
	ledger.Adjust(context.Background(), "SKU1", "W1", 10)
	catalog := newMockCatalog(testProduct("SKU1", "2.50"))
	svc := NewSaleService(ledger, catalog, nil, zap.NewNop())

	result, err := svc.Commit(context.Background(), "", domain.Cart{"SKU1": 4}, "W1")

	require.NoError(t, err)
	require.True(t, result.Total.Equal(decimal.RequireFromString("10.00")), "total = %s", result.Total)
	require.True(t, strings.HasPrefix(result.SaleID, "SALE-"), "sale id = %s", result.SaleID)
	require.Len(t, result.Lines, 1)
	require.Equal(t, 4, result.Lines[0].Quantity)
	require.True(t, result.Lines[0].UnitPrice.Equal(decimal.RequireFromString("2.50")))
	require.Equal(t, 6, ledger.quantity("SKU1", "W1"))
}

func TestCommit_InsufficientStockAfterPartialSellthrough(t *testing.T) {
	ledger := newMockLedger()
	ledger.Adjust(context.Background(), "SKU1", "W1", 10)
	catalog := newMockCatalog(testProduct("SKU1", "2.50"))
	svc := NewSaleService(ledger, catalog, nil, zap.NewNop())

	_, err := svc.Commit(context.Background(), "", domain.Cart{"SKU1": 4}, "W1")
	require.NoError(t, err)

	_, err = svc.Commit(context.Background(), "", domain.Cart{"SKU1": 10}, "W1")

	var insufficient *domain.InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	require.Equal(t, "SKU1", insufficient.ProductID)
	require.Equal(t, 4, insufficient.Shortfall())
	require.Equal(t, 6, ledger.quantity("SKU1", "W1"))
}

func TestCommit_InvalidCartNoLedgerAccess(t *testing.T) {
	tests := []struct {
		name string
		cart domain.Cart
	}{
		{name: "empty cart", cart: domain.Cart{}},
		{name: "nil cart", cart: nil},
		{name: "zero quantity", cart: domain.Cart{"SKU1": 0}},
		{name: "negative quantity", cart: domain.Cart{"SKU1": -2}},
		{name: "blank product id", cart: domain.Cart{"": 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ledger := newMockLedger()
			ledger.Adjust(context.Background(), "SKU1", "W1", 10)
			svc := NewSaleService(ledger, newMockCatalog(testProduct("SKU1", "2.50")), nil, zap.NewNop())

			_, err := svc.Commit(context.Background(), "", tt.cart, "W1")

			var invalidCart *domain.InvalidCartError
			require.ErrorAs(t, err, &invalidCart)
			require.Equal(t, 0, ledger.deductCalls, "ledger must not be touched")
			require.Equal(t, 10, ledger.quantity("SKU1", "W1"))
		})
	}
}

func TestCommit_DuplicateRequest(t *testing.T) {
	ledger := newMockLedger()
	ledger.Adjust(context.Background(), "SKU1", "W1", 10)
	svc := NewSaleService(ledger, newMockCatalog(testProduct("SKU1", "2.50")), newMockIdem(), zap.NewNop())

	_, err := svc.Commit(context.Background(), "req-1", domain.Cart{"SKU1": 4}, "W1")
	require.NoError(t, err)

	_, err = svc.Commit(context.Background(), "req-1", domain.Cart{"SKU1": 4}, "W1")
	require.ErrorIs(t, err, domain.ErrDuplicateRequest)

	// stock deducted exactly once
	require.Equal(t, 6, ledger.quantity("SKU1", "W1"))
}

func TestCommit_RetryAfterContentionTimeout(t *testing.T) {
	ledger := newMockLedger()
	ledger.Adjust(context.Background(), "SKU1", "W1", 10)
	svc := NewSaleService(ledger, newMockCatalog(testProduct("SKU1", "2.50")), newMockIdem(), zap.NewNop())

	// ledger congested: the commit times out without deducting
	ledger.deductErr = domain.ErrContentionTimeout
	_, err := svc.Commit(context.Background(), "req-1", domain.Cart{"SKU1": 4}, "W1")
	require.ErrorIs(t, err, domain.ErrContentionTimeout)

	// contention clears; the same request id must be retryable from scratch
	ledger.mu.Lock()
	ledger.deductErr = nil
	ledger.mu.Unlock()

	result, err := svc.Commit(context.Background(), "req-1", domain.Cart{"SKU1": 4}, "W1")
	require.NoError(t, err)
	require.True(t, result.Total.Equal(decimal.RequireFromString("10.00")))
	require.Equal(t, 6, ledger.quantity("SKU1", "W1"))
}

func TestCommit_RetryAfterInsufficientStock(t *testing.T) {
	ledger := newMockLedger()
	ledger.Adjust(context.Background(), "SKU1", "W1", 6)
	svc := NewSaleService(ledger, newMockCatalog(testProduct("SKU1", "2.50")), newMockIdem(), zap.NewNop())

	_, err := svc.Commit(context.Background(), "req-1", domain.Cart{"SKU1": 10}, "W1")
	var insufficient *domain.InsufficientStockError
	require.ErrorAs(t, err, &insufficient)

	// the caller corrects the cart and retries with the same request id
	result, err := svc.Commit(context.Background(), "req-1", domain.Cart{"SKU1": 6}, "W1")
	require.NoError(t, err)
	require.Len(t, result.Lines, 1)
	require.Equal(t, 0, ledger.quantity("SKU1", "W1"))
}

func TestCommit_CatalogGapCompensates(t *testing.T) {
	ledger := newMockLedger()
	ledger.Adjust(context.Background(), "SKU1", "W1", 10)
	ledger.Adjust(context.Background(), "ghost", "W1", 5)
	// ghost has stock but no catalog row
	catalog := newMockCatalog(testProduct("SKU1", "2.50"))
	svc := NewSaleService(ledger, catalog, nil, zap.NewNop())

	_, err := svc.Commit(context.Background(), "", domain.Cart{"SKU1": 2, "ghost": 3}, "W1")

	require.Error(t, err)
	var insufficient *domain.InsufficientStockError
	require.False(t, errors.As(err, &insufficient), "catalog gap is a fault, not a stock failure")

	// deduction compensated: both quantities back where they started
	require.Equal(t, 10, ledger.quantity("SKU1", "W1"))
	require.Equal(t, 5, ledger.quantity("ghost", "W1"))
}

func TestCommit_PropagatesContentionTimeout(t *testing.T) {
	ledger := newMockLedger()
	ledger.deductErr = domain.ErrContentionTimeout
	svc := NewSaleService(ledger, newMockCatalog(), nil, zap.NewNop())

	_, err := svc.Commit(context.Background(), "", domain.Cart{"SKU1": 1}, "W1")

	require.ErrorIs(t, err, domain.ErrContentionTimeout)
}

func TestCommit_DefaultLocation(t *testing.T) {
	ledger := newMockLedger()
	ledger.Adjust(context.Background(), "SKU1", domain.DefaultLocation, 10)
	svc := NewSaleService(ledger, newMockCatalog(testProduct("SKU1", "2.50")), nil, zap.NewNop())

	result, err := svc.Commit(context.Background(), "", domain.Cart{"SKU1": 1}, "")

	require.NoError(t, err)
	require.Equal(t, domain.DefaultLocation, result.Location)
	require.Equal(t, 9, ledger.quantity("SKU1", domain.DefaultLocation))
}

func TestCommit_ConcurrentSingleWinner(t *testing.T) {
	ledger := newMockLedger()
	ledger.Adjust(context.Background(), "SKU1", "W1", 10)
	svc := NewSaleService(ledger, newMockCatalog(testProduct("SKU1", "2.50")), nil, zap.NewNop())

	var successCount atomic.Int32
	var insufficientCount atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Commit(context.Background(), "", domain.Cart{"SKU1": 6}, "W1")
			if err == nil {
				successCount.Add(1)
				return
			}
			var insufficient *domain.InsufficientStockError
			if errors.As(err, &insufficient) {
				insufficientCount.Add(1)
			}
		}()
	}

	wg.Wait()

	require.Equal(t, int32(1), successCount.Load())
	require.Equal(t, int32(1), insufficientCount.Load())
	require.Equal(t, 4, ledger.quantity("SKU1", "W1"))
}

func TestCommit_RecordsClerkFromContext(t *testing.T) {
	ledger := newMockLedger()
	ledger.Adjust(context.Background(), "SKU1", "W1", 10)
	svc := NewSaleService(ledger, newMockCatalog(testProduct("SKU1", "2.50")), nil, zap.NewNop())

	ctx := domain.WithClerk(context.Background(), "alice")
	result, err := svc.Commit(ctx, "", domain.Cart{"SKU1": 1}, "W1")

	require.NoError(t, err)
	require.Equal(t, "alice", result.Clerk)
}

func TestAdjust_RequiresProductID(t *testing.T) {
	svc := NewSaleService(newMockLedger(), newMockCatalog(), nil, zap.NewNop())

	err := svc.Adjust(context.Background(), "", "W1", 5)

	require.Error(t, err)
}

func TestAdjust_PassesThrough(t *testing.T) {
	ledger := newMockLedger()
	svc := NewSaleService(ledger, newMockCatalog(), nil, zap.NewNop())

	require.NoError(t, svc.Adjust(context.Background(), "SKU1", "W1", 5))
	require.NoError(t, svc.Adjust(context.Background(), "SKU1", "W1", -3))

	require.Equal(t, 2, ledger.quantity("SKU1", "W1"))
}
