package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// MoneyPlaces is the number of fraction digits kept when an amount is
// persisted or shown.
const MoneyPlaces = 2

var hundred = decimal.NewFromInt(100)

type Product struct {
	ID            string          `json:"id"`
	SKU           string          `json:"sku"`
	Name          string          `json:"name"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	TaxRate       decimal.Decimal `json:"tax_rate"`
	StockQuantity int             `json:"stock_quantity"`
	Active        bool            `json:"active"`
}

// Addable reports whether the product may be put in a cart at all.
func (p Product) Addable() bool {
	return p.Active && p.StockQuantity > 0
}

// CartLine is one product entry of an in-progress sale. Price and tax rate
// are frozen when the line is created.
type CartLine struct {
	ProductID      string          `json:"product_id"`
	SKU            string          `json:"sku"`
	Name           string          `json:"name"`
	Quantity       int             `json:"quantity"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	TaxRate        decimal.Decimal `json:"tax_rate"`
	LastKnownStock int             `json:"last_known_stock"`
}

// Net is unit_price x quantity, tax exclusive.
func (l CartLine) Net() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Tax is the line tax at the line's captured rate.
func (l CartLine) Tax() decimal.Decimal {
	return l.Net().Mul(l.TaxRate).Div(hundred)
}

// Total is unit_price x quantity x (1 + tax_rate/100).
func (l CartLine) Total() decimal.Decimal {
	return l.Net().Add(l.Tax())
}

type Totals struct {
	Subtotal       decimal.Decimal `json:"subtotal"`
	TaxAmount      decimal.Decimal `json:"tax_amount"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	Total          decimal.Decimal `json:"total"`
}

// Rounded rounds every component half-up on its own. Components are never
// re-derived from each other after rounding.
func (t Totals) Rounded() Totals {
	return Totals{
		Subtotal:       RoundMoney(t.Subtotal),
		TaxAmount:      RoundMoney(t.TaxAmount),
		DiscountAmount: RoundMoney(t.DiscountAmount),
		Total:          RoundMoney(t.Total),
	}
}

// RoundMoney rounds half away from zero, which is half-up for the
// non-negative amounts this package produces.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyPlaces)
}

type PaymentMethod string

const (
	PaymentCash   PaymentMethod = "cash"
	PaymentCard   PaymentMethod = "card"
	PaymentWallet PaymentMethod = "wallet"
	PaymentOther  PaymentMethod = "other"
)

func ParsePaymentMethod(raw string) (PaymentMethod, error) {
	method := PaymentMethod(strings.ToLower(strings.TrimSpace(raw)))
	switch method {
	case PaymentCash, PaymentCard, PaymentWallet, PaymentOther:
		return method, nil
	case "":
		return PaymentCash, nil
	default:
		return "", InvalidParameterf("unsupported payment method %q", raw)
	}
}

type PaymentStatus string

const (
	PaymentPaid     PaymentStatus = "paid"
	PaymentPending  PaymentStatus = "pending"
	PaymentRefunded PaymentStatus = "refunded"
)

// CommitRequest is the frozen checkout handed to the committer. Build it
// with NewCommitRequest; the zero value is not usable.
type CommitRequest struct {
	invoiceID       string
	customerRef     *string
	cashierRef      string
	lines           []CartLine
	discountPercent decimal.Decimal
	paymentMethod   PaymentMethod
	totals          Totals
}

func NewCommitRequest(
	cashierRef string,
	customerRef *string,
	lines []CartLine,
	discountPercent decimal.Decimal,
	method PaymentMethod,
	totals Totals,
) (CommitRequest, error) {
	if strings.TrimSpace(cashierRef) == "" {
		return CommitRequest{}, InvalidParameterf("cashier reference is required")
	}
	if len(lines) == 0 {
		return CommitRequest{}, InvalidParameterf("cart is empty")
	}
	if _, err := ParsePaymentMethod(string(method)); err != nil || method == "" {
		return CommitRequest{}, InvalidParameterf("unsupported payment method %q", method)
	}
	for _, line := range lines {
		if line.Quantity < 1 {
			return CommitRequest{}, InvalidParameterf("line %s has quantity %d", line.ProductID, line.Quantity)
		}
	}

	frozen := make([]CartLine, len(lines))
	copy(frozen, lines)

	var customer *string
	if customerRef != nil && strings.TrimSpace(*customerRef) != "" {
		ref := strings.TrimSpace(*customerRef)
		customer = &ref
	}

	return CommitRequest{
		customerRef:     customer,
		cashierRef:      cashierRef,
		lines:           frozen,
		discountPercent: discountPercent,
		paymentMethod:   method,
		totals:          totals,
	}, nil
}

// WithInvoiceID returns a copy of the request carrying a pre-assigned
// invoice identifier.
func (r CommitRequest) WithInvoiceID(invoiceID string) CommitRequest {
	r.invoiceID = invoiceID
	r.lines = r.Lines()
	return r
}

func (r CommitRequest) InvoiceID() string                { return r.invoiceID }
func (r CommitRequest) CashierRef() string               { return r.cashierRef }
func (r CommitRequest) DiscountPercent() decimal.Decimal { return r.discountPercent }
func (r CommitRequest) PaymentMethod() PaymentMethod     { return r.paymentMethod }
func (r CommitRequest) Totals() Totals                   { return r.totals }

func (r CommitRequest) CustomerRef() *string {
	if r.customerRef == nil {
		return nil
	}
	ref := *r.customerRef
	return &ref
}

// Lines returns a copy of the frozen lines in cart order.
func (r CommitRequest) Lines() []CartLine {
	lines := make([]CartLine, len(r.lines))
	copy(lines, r.lines)
	return lines
}

type Sale struct {
	ID             string          `json:"id"`
	InvoiceID      string          `json:"invoice_id"`
	CustomerRef    *string         `json:"customer_ref,omitempty"`
	CashierRef     string          `json:"cashier_ref"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	TaxAmount      decimal.Decimal `json:"tax_amount"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	PaymentMethod  PaymentMethod   `json:"payment_method"`
	PaymentStatus  PaymentStatus   `json:"payment_status"`
	CreatedAt      time.Time       `json:"created_at"`
}

type SaleItem struct {
	SaleID         string          `json:"sale_id"`
	ProductID      string          `json:"product_id"`
	Quantity       int             `json:"quantity"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	TaxRate        decimal.Decimal `json:"tax_rate"`
	TaxAmount      decimal.Decimal `json:"tax_amount"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	LineTotal      decimal.Decimal `json:"line_total"`
}

// SaleItemFromLine builds the persisted row for a cart line. The sale level
// discount is not apportioned to items.
func SaleItemFromLine(saleID string, line CartLine) SaleItem {
	return SaleItem{
		SaleID:         saleID,
		ProductID:      line.ProductID,
		Quantity:       line.Quantity,
		UnitPrice:      line.UnitPrice,
		TaxRate:        line.TaxRate,
		TaxAmount:      RoundMoney(line.Tax()),
		DiscountAmount: decimal.Zero,
		LineTotal:      RoundMoney(line.Total()),
	}
}

type Receipt struct {
	InvoiceID string `json:"invoice_id"`
	SaleID    string `json:"sale_id"`
	Totals    Totals `json:"totals"`
}
