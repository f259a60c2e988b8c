package store

import (
	"context"
	"errors"

	"saleregister/backend/internal/domain"
)

var ErrNotFound = errors.New("not found")

// Catalog is the read-only product source.
type Catalog interface {
	ListActiveProducts(ctx context.Context) ([]domain.Product, error)
}

// SaleStore persists sale headers and items. CreateSale returns
// domain.ErrDuplicateInvoice when the invoice id is already taken.
// VoidSale hard-deletes the header and its items; voiding a sale that does
// not exist succeeds.
type SaleStore interface {
	CreateSale(ctx context.Context, sale domain.Sale) (string, error)
	CreateSaleItems(ctx context.Context, saleID string, items []domain.SaleItem) error
	VoidSale(ctx context.Context, saleID string) error
}

// StockCounters is the persisted stock primitive. TryDecrementStock must be
// atomic per product and return a *domain.StockError without mutating when
// the counter cannot cover quantity.
type StockCounters interface {
	TryDecrementStock(ctx context.Context, productID string, quantity int) error
	RestoreStock(ctx context.Context, productID string, quantity int) error
}

// StockLevels reads current counter values. Missing products are absent
// from the result.
type StockLevels interface {
	StockLevels(ctx context.Context, productIDs []string) (map[string]int, error)
}

type SaleReader interface {
	FindSaleByInvoice(ctx context.Context, invoiceID string) (domain.Sale, []domain.SaleItem, error)
}

type Repository interface {
	Catalog
	SaleStore
	StockCounters
	StockLevels
	SaleReader
}
