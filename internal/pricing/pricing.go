// Package pricing computes sale totals from a cart snapshot.
package pricing

import (
	"github.com/shopspring/decimal"

	"saleregister/backend/internal/domain"
)

var (
	zero    = decimal.Zero
	hundred = decimal.NewFromInt(100)
)

// ValidatePercent rejects values outside [0, 100].
func ValidatePercent(name string, value decimal.Decimal) error {
	if value.LessThan(zero) || value.GreaterThan(hundred) {
		return domain.InvalidParameterf("%s must be between 0 and 100, got %s", name, value.String())
	}
	return nil
}

// Compute returns unrounded totals for lines with a sale level discount.
// Tax is computed per line at the line's captured rate and the discount is
// taken off the tax inclusive amount. Call Totals.Rounded for display or
// persistence.
func Compute(lines []domain.CartLine, discountPercent decimal.Decimal) (domain.Totals, error) {
	if err := ValidatePercent("discount percent", discountPercent); err != nil {
		return domain.Totals{}, err
	}

	subtotal := zero
	tax := zero
	for _, line := range lines {
		if line.Quantity < 1 {
			return domain.Totals{}, domain.InvalidParameterf("line %s has quantity %d", line.ProductID, line.Quantity)
		}
		if line.UnitPrice.IsNegative() {
			return domain.Totals{}, domain.InvalidParameterf("line %s has negative unit price", line.ProductID)
		}
		if err := ValidatePercent("tax rate", line.TaxRate); err != nil {
			return domain.Totals{}, err
		}
		subtotal = subtotal.Add(line.Net())
		tax = tax.Add(line.Tax())
	}

	gross := subtotal.Add(tax)
	discount := gross.Mul(discountPercent).Shift(-2)

	return domain.Totals{
		Subtotal:       subtotal,
		TaxAmount:      tax,
		DiscountAmount: discount,
		Total:          gross.Sub(discount),
	}, nil
}
