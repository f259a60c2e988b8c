package memory

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"saleregister/backend/internal/domain"
	"saleregister/backend/internal/store"
)

// Store keeps catalog, sales and stock counters in process. All mutation is
// serialized by a single mutex, which makes TryDecrementStock atomic per
// product.
type Store struct {
	mu             sync.RWMutex
	products       map[string]domain.Product
	stock          map[string]int
	salesByID      map[string]domain.Sale
	salesByInvoice map[string]string
	itemsBySale    map[string][]domain.SaleItem
}

func New() *Store {
	return &Store{
		products:       make(map[string]domain.Product),
		stock:          make(map[string]int),
		salesByID:      make(map[string]domain.Sale),
		salesByInvoice: make(map[string]string),
		itemsBySale:    make(map[string][]domain.SaleItem),
	}
}

func NewSeeded() *Store {
	s := New()
	seed := []struct {
		sku   string
		name  string
		price string
		tax   string
	}{
		{"SKU-MIE-01", "Mie Goreng Instan", "3.50", "11"},
		{"SKU-TELUR-01", "Telur 10 Butir", "26.50", "0"},
		{"SKU-SUSU-01", "Susu UHT 1L", "18.90", "11"},
		{"SKU-ROTI-01", "Roti Tawar", "17.80", "11"},
		{"SKU-KOPI-01", "Kopi Sachet", "2.60", "11"},
		{"SKU-GULA-01", "Gula 1kg", "17.40", "0"},
		{"SKU-TEH-01", "Teh Celup", "9.80", "11"},
		{"SKU-AIR-01", "Air Mineral 600ml", "3.90", "11"},
		{"SKU-KERIPIK-01", "Keripik Singkong", "12.80", "11"},
		{"SKU-COKLAT-01", "Coklat Batang", "8.60", "11"},
		{"SKU-SABUN-01", "Sabun Mandi", "7.40", "11"},
		{"SKU-SHAMPOO-01", "Shampoo Sachet", "3.20", "11"},
	}
	for _, p := range seed {
		s.PutProduct(domain.Product{
			ID:        strings.ToLower(p.sku),
			SKU:       p.sku,
			Name:      p.name,
			UnitPrice: decimal.RequireFromString(p.price),
			TaxRate:   decimal.RequireFromString(p.tax),
			Active:    true,
		}, 120)
	}
	return s
}

// PutProduct inserts or replaces a product and sets its stock counter.
func (s *Store) PutProduct(product domain.Product, stock int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	product.StockQuantity = 0
	s.products[product.ID] = product
	s.stock[product.ID] = stock
}

func (s *Store) SetStock(_ context.Context, productID string, quantity int) error {
	if productID == "" || quantity < 0 {
		return domain.InvalidParameterf("invalid stock %d for product %q", quantity, productID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[productID]; !ok {
		return store.ErrNotFound
	}
	s.stock[productID] = quantity
	return nil
}

func (s *Store) StockOf(productID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stock[productID]
}

func (s *Store) ListActiveProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for id, p := range s.products {
		if !p.Active {
			continue
		}
		p.StockQuantity = s.stock[id]
		products = append(products, p)
	}

	slices.SortFunc(products, func(a, b domain.Product) int {
		return strings.Compare(a.Name, b.Name)
	})
	return products, nil
}

func (s *Store) StockLevels(_ context.Context, productIDs []string) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	levels := make(map[string]int, len(productIDs))
	for _, id := range productIDs {
		if qty, ok := s.stock[id]; ok {
			levels[id] = qty
		}
	}
	return levels, nil
}

func (s *Store) TryDecrementStock(_ context.Context, productID string, quantity int) error {
	if quantity < 1 {
		return domain.InvalidParameterf("quantity must be at least 1, got %d", quantity)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.stock[productID]
	if !ok {
		return &domain.StockError{ProductID: productID, Requested: quantity, Available: 0}
	}
	if current < quantity {
		return &domain.StockError{ProductID: productID, Requested: quantity, Available: current}
	}
	s.stock[productID] = current - quantity
	return nil
}

func (s *Store) RestoreStock(_ context.Context, productID string, quantity int) error {
	if quantity < 1 {
		return domain.InvalidParameterf("quantity must be at least 1, got %d", quantity)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.stock[productID] += quantity
	return nil
}

func (s *Store) CreateSale(_ context.Context, sale domain.Sale) (string, error) {
	if sale.InvoiceID == "" {
		return "", domain.InvalidParameterf("invoice id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.salesByInvoice[sale.InvoiceID]; exists {
		return "", domain.ErrDuplicateInvoice
	}
	if sale.ID == "" {
		sale.ID = uuid.NewString()
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}

	s.salesByID[sale.ID] = cloneSale(sale)
	s.salesByInvoice[sale.InvoiceID] = sale.ID
	return sale.ID, nil
}

func (s *Store) CreateSaleItems(_ context.Context, saleID string, items []domain.SaleItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.salesByID[saleID]; !ok {
		return store.ErrNotFound
	}
	stored := make([]domain.SaleItem, len(items))
	for i, item := range items {
		item.SaleID = saleID
		stored[i] = item
	}
	s.itemsBySale[saleID] = append(s.itemsBySale[saleID], stored...)
	return nil
}

func (s *Store) VoidSale(_ context.Context, saleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale, ok := s.salesByID[saleID]
	if !ok {
		return nil
	}
	delete(s.salesByInvoice, sale.InvoiceID)
	delete(s.itemsBySale, saleID)
	delete(s.salesByID, saleID)
	return nil
}

func (s *Store) FindSaleByInvoice(_ context.Context, invoiceID string) (domain.Sale, []domain.SaleItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	saleID, ok := s.salesByInvoice[invoiceID]
	if !ok {
		return domain.Sale{}, nil, store.ErrNotFound
	}
	items := make([]domain.SaleItem, len(s.itemsBySale[saleID]))
	copy(items, s.itemsBySale[saleID])
	return cloneSale(s.salesByID[saleID]), items, nil
}

// SaleCount reports how many sale headers exist.
func (s *Store) SaleCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.salesByID)
}

// ItemCount reports how many sale item rows exist across all sales.
func (s *Store) ItemCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := 0
	for _, items := range s.itemsBySale {
		total += len(items)
	}
	return total
}

func cloneSale(src domain.Sale) domain.Sale {
	dst := src
	if src.CustomerRef != nil {
		ref := *src.CustomerRef
		dst.CustomerRef = &ref
	}
	return dst
}
