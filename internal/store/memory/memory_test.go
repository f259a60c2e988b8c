package memory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"saleregister/backend/internal/domain"
	"saleregister/backend/internal/store"
)

var _ store.Repository = (*Store)(nil)

func setupStore(t *testing.T) *Store {
	t.Helper()
	s := New()
	s.PutProduct(domain.Product{ID: "p-1", SKU: "SKU-1", Name: "Kopi", UnitPrice: decimal.RequireFromString("2.60"), TaxRate: decimal.NewFromInt(11), Active: true}, 5)
	s.PutProduct(domain.Product{ID: "p-2", SKU: "SKU-2", Name: "Air", UnitPrice: decimal.RequireFromString("3.90"), Active: true}, 0)
	s.PutProduct(domain.Product{ID: "p-3", SKU: "SKU-3", Name: "Retired", UnitPrice: decimal.RequireFromString("1.00"), Active: false}, 9)
	return s
}

func TestStore_ListActiveProducts(t *testing.T) {
	s := setupStore(t)

	products, err := s.ListActiveProducts(context.Background())
	require.NoError(t, err)
	require.Len(t, products, 2)

	assert.Equal(t, "p-2", products[0].ID)
	assert.Equal(t, 0, products[0].StockQuantity)
	assert.Equal(t, "p-1", products[1].ID)
	assert.Equal(t, 5, products[1].StockQuantity)
}

func TestStore_TryDecrement(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	require.NoError(t, s.TryDecrementStock(ctx, "p-1", 3))
	assert.Equal(t, 2, s.StockOf("p-1"))

	err := s.TryDecrementStock(ctx, "p-1", 3)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInsufficientStock))
	assert.Equal(t, 2, s.StockOf("p-1"), "failed decrement must not mutate")

	err = s.TryDecrementStock(ctx, "unknown", 1)
	assert.True(t, errors.Is(err, domain.ErrInsufficientStock))

	assert.True(t, errors.Is(s.TryDecrementStock(ctx, "p-1", 0), domain.ErrInvalidParameter))
}

func TestStore_RestoreIsAdditive(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	require.NoError(t, s.RestoreStock(ctx, "p-1", 2))
	require.NoError(t, s.RestoreStock(ctx, "p-1", 2))
	assert.Equal(t, 9, s.StockOf("p-1"))
}

func TestStore_ConcurrentDecrementNeverNegative(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	var succeeded atomic.Int32
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.TryDecrementStock(ctx, "p-1", 1); err == nil {
				succeeded.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(5), succeeded.Load())
	assert.Equal(t, 0, s.StockOf("p-1"))
}

func TestStore_SaleLifecycle(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	saleID, err := s.CreateSale(ctx, domain.Sale{InvoiceID: "INV-1", CashierRef: "cashier-1"})
	require.NoError(t, err)
	require.NotEmpty(t, saleID)

	_, err = s.CreateSale(ctx, domain.Sale{InvoiceID: "INV-1", CashierRef: "cashier-2"})
	assert.True(t, errors.Is(err, domain.ErrDuplicateInvoice))

	require.NoError(t, s.CreateSaleItems(ctx, saleID, []domain.SaleItem{
		{ProductID: "p-1", Quantity: 1},
		{ProductID: "p-2", Quantity: 2},
	}))

	sale, items, err := s.FindSaleByInvoice(ctx, "INV-1")
	require.NoError(t, err)
	assert.Equal(t, saleID, sale.ID)
	assert.Equal(t, "cashier-1", sale.CashierRef)
	require.Len(t, items, 2)
	assert.Equal(t, saleID, items[0].SaleID)

	require.NoError(t, s.VoidSale(ctx, saleID))
	require.NoError(t, s.VoidSale(ctx, saleID), "second void must be a no-op")

	_, _, err = s.FindSaleByInvoice(ctx, "INV-1")
	assert.True(t, errors.Is(err, store.ErrNotFound))
	assert.Zero(t, s.SaleCount())
	assert.Zero(t, s.ItemCount())

	_, err = s.CreateSale(ctx, domain.Sale{InvoiceID: "INV-1", CashierRef: "cashier-1"})
	assert.NoError(t, err, "voided invoice ids are released")
}

func TestStore_CreateSaleItemsRequiresSale(t *testing.T) {
	s := setupStore(t)

	err := s.CreateSaleItems(context.Background(), "missing", []domain.SaleItem{{ProductID: "p-1", Quantity: 1}})
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func TestNewSeeded(t *testing.T) {
	s := NewSeeded()

	products, err := s.ListActiveProducts(context.Background())
	require.NoError(t, err)
	assert.Len(t, products, 12)
	for _, p := range products {
		assert.Equal(t, 120, p.StockQuantity)
		assert.True(t, p.Addable())
	}
}
