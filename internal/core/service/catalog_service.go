package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ledgerworks/stockroom/internal/core/domain"
	"github.com/ledgerworks/stockroom/internal/port"
)

// CatalogService fronts the catalog store for product onboarding.
type CatalogService struct {
	catalog port.CatalogRepository
	log     *zap.Logger
}

func NewCatalogService(catalog port.CatalogRepository, log *zap.Logger) *CatalogService {
	return &CatalogService{catalog: catalog, log: log}
}

// AddProduct validates and inserts a new product, filling in the category
// default and a generated barcode when absent.
func (c *CatalogService) AddProduct(ctx context.Context, p domain.Product) (*domain.Product, error) {
	if p.ID == "" || p.Name == "" {
		return nil, fmt.Errorf("%w: id and name are required", domain.ErrInvalidProduct)
	}
	if p.CostPrice.IsNegative() || p.SellingPrice.IsNegative() {
		return nil, fmt.Errorf("%w: prices must be non-negative", domain.ErrInvalidProduct)
	}
	if p.Category == "" {
		p.Category = "General"
	}
	if p.Barcode == "" {
		p.Barcode = domain.NewBarcode()
	}
	if err := c.catalog.AddProduct(ctx, p); err != nil {
		return nil, err
	}
	c.log.Info("product added",
		zap.String("product_id", p.ID),
		zap.String("category", p.Category),
		zap.String("clerk", domain.ClerkFromContext(ctx)))
	return &p, nil
}

func (c *CatalogService) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	return c.catalog.GetProduct(ctx, id)
}
