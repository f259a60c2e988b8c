// Package session composes a cart, pricing and the committer into the
// checkout flow a single terminal drives.
package session

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"saleregister/backend/internal/cart"
	"saleregister/backend/internal/commit"
	"saleregister/backend/internal/domain"
	"saleregister/backend/internal/pricing"
)

type Catalog interface {
	ListActiveProducts(ctx context.Context) ([]domain.Product, error)
}

type Committer interface {
	Commit(ctx context.Context, req domain.CommitRequest) (commit.Result, error)
}

// invalidator is implemented by caching catalogs that should be refreshed
// after stock moves.
type invalidator interface {
	Invalidate(ctx context.Context)
}

type View struct {
	TerminalID      string               `json:"terminal_id"`
	CashierRef      string               `json:"cashier_ref"`
	Lines           []domain.CartLine    `json:"lines"`
	DiscountPercent decimal.Decimal      `json:"discount_percent"`
	PaymentMethod   domain.PaymentMethod `json:"payment_method"`
	CustomerRef     *string              `json:"customer_ref,omitempty"`
	Totals          domain.Totals        `json:"totals"`
}

// Session is one terminal's in-progress sale. Methods are safe for
// concurrent use; checkout holds the session lock for the whole commit.
type Session struct {
	mu         sync.Mutex
	terminalID string
	cashierRef string
	catalog    Catalog
	committer  Committer
	logger     *slog.Logger

	cart     *cart.Cart
	products map[string]domain.Product
	discount decimal.Decimal
	method   domain.PaymentMethod
	customer *string
}

func New(terminalID string, cashierRef string, catalog Catalog, committer Committer, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		terminalID: terminalID,
		cashierRef: cashierRef,
		catalog:    catalog,
		committer:  committer,
		logger:     logger.With("terminal_id", terminalID),
		cart:       cart.New(),
		products:   map[string]domain.Product{},
		discount:   decimal.Zero,
		method:     domain.PaymentCash,
	}
}

func (s *Session) TerminalID() string { return s.terminalID }
func (s *Session) CashierRef() string { return s.cashierRef }

// LoadCatalog refreshes the product snapshot used to resolve additions and
// returns the products that can be added right now.
func (s *Session) LoadCatalog(ctx context.Context) ([]domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadCatalogLocked(ctx)
}

func (s *Session) loadCatalogLocked(ctx context.Context) ([]domain.Product, error) {
	products, err := s.catalog.ListActiveProducts(ctx)
	if err != nil {
		return nil, err
	}

	s.products = make(map[string]domain.Product, len(products))
	addable := make([]domain.Product, 0, len(products))
	for _, p := range products {
		s.products[p.ID] = p
		if p.Addable() {
			addable = append(addable, p)
		}
	}
	s.cart.RefreshStock(products)
	return addable, nil
}

func (s *Session) AddProduct(ctx context.Context, productID string, quantity int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	product, ok := s.products[productID]
	if !ok {
		if _, err := s.loadCatalogLocked(ctx); err != nil {
			return err
		}
		if product, ok = s.products[productID]; !ok {
			return domain.InvalidParameterf("product %s is not in the active catalog", productID)
		}
	}
	return s.cart.AddLine(product, quantity)
}

func (s *Session) SetQuantity(productID string, quantity int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cart.SetQuantity(productID, quantity)
}

func (s *Session) RemoveLine(productID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cart.RemoveLine(productID)
}

func (s *Session) SetDiscount(percent decimal.Decimal) error {
	if err := pricing.ValidatePercent("discount percent", percent); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.discount = percent
	return nil
}

func (s *Session) SetPaymentMethod(method domain.PaymentMethod) error {
	parsed, err := domain.ParsePaymentMethod(string(method))
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.method = parsed
	return nil
}

func (s *Session) SetCustomer(ref *string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.customer = normalizeRef(ref)
}

// View returns the cart with live totals, rounded for display.
func (s *Session) View() (View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked(s.discount)
}

// Preview is View priced with discountPercent instead of the session's
// discount. The session is left untouched.
func (s *Session) Preview(discountPercent decimal.Decimal) (View, error) {
	if err := pricing.ValidatePercent("discount percent", discountPercent); err != nil {
		return View{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked(discountPercent)
}

func (s *Session) viewLocked(discountPercent decimal.Decimal) (View, error) {
	lines := s.cart.Snapshot()
	totals, err := pricing.Compute(lines, discountPercent)
	if err != nil {
		return View{}, err
	}
	var customer *string
	if s.customer != nil {
		ref := *s.customer
		customer = &ref
	}
	return View{
		TerminalID:      s.terminalID,
		CashierRef:      s.cashierRef,
		Lines:           lines,
		DiscountPercent: discountPercent,
		PaymentMethod:   s.method,
		CustomerRef:     customer,
		Totals:          totals.Rounded(),
	}, nil
}

// Checkout freezes the cart and commits it. The given discount, payment
// method and customer become the session's selection. On success the cart
// and selection are cleared; on failure they are kept so the operator can
// adjust and retry.
func (s *Session) Checkout(ctx context.Context, discountPercent decimal.Decimal, method domain.PaymentMethod, customerRef *string) (domain.Receipt, error) {
	if err := pricing.ValidatePercent("discount percent", discountPercent); err != nil {
		return domain.Receipt{}, err
	}
	parsed, err := domain.ParsePaymentMethod(string(method))
	if err != nil {
		return domain.Receipt{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.discount = discountPercent
	s.method = parsed
	s.customer = normalizeRef(customerRef)

	lines := s.cart.Snapshot()
	if len(lines) == 0 {
		return domain.Receipt{}, domain.InvalidParameterf("cart is empty")
	}
	totals, err := pricing.Compute(lines, s.discount)
	if err != nil {
		return domain.Receipt{}, err
	}
	req, err := domain.NewCommitRequest(s.cashierRef, s.customer, lines, s.discount, s.method, totals)
	if err != nil {
		return domain.Receipt{}, err
	}

	res, err := s.committer.Commit(ctx, req)
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientStock) {
			s.refreshAfterStockMove(ctx)
		}
		return domain.Receipt{}, err
	}

	s.cart.Clear()
	s.discount = decimal.Zero
	s.method = domain.PaymentCash
	s.customer = nil
	s.refreshAfterStockMove(ctx)

	return domain.Receipt{
		InvoiceID: res.Sale.InvoiceID,
		SaleID:    res.Sale.ID,
		Totals:    totals.Rounded(),
	}, nil
}

// refreshAfterStockMove reloads the snapshot so cart stock guards see the
// new counters. Failures only cost freshness.
func (s *Session) refreshAfterStockMove(ctx context.Context) {
	if inv, ok := s.catalog.(invalidator); ok {
		inv.Invalidate(ctx)
	}
	if _, err := s.loadCatalogLocked(ctx); err != nil {
		s.logger.Warn("catalog reload after checkout failed", "error", err)
	}
}

func normalizeRef(ref *string) *string {
	if ref == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*ref)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
