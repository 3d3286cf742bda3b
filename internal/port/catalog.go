package port

import (
	"context"

	"github.com/ledgerworks/stockroom/internal/core/domain"
)

// CatalogRepository owns product pricing. The sale engine reads it;
// it never writes quantities.
type CatalogRepository interface {
	// AddProduct inserts a new product; domain.ErrProductExists on duplicate id.
	AddProduct(ctx context.Context, p domain.Product) error

	// GetProduct retrieves a product by id, (nil, nil) if absent.
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
}
