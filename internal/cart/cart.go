// Package cart holds the lines of an in-progress sale.
package cart

import (
	"saleregister/backend/internal/domain"
)

// Cart is an ordered set of lines keyed by product id. It is not safe for
// concurrent use; the owning session serializes access.
type Cart struct {
	lines []domain.CartLine
	index map[string]int
}

func New() *Cart {
	return &Cart{index: make(map[string]int)}
}

// AddLine adds quantity units of product. An existing line is bumped via
// SetQuantity; a new line freezes the product's price and tax rate.
func (c *Cart) AddLine(product domain.Product, quantity int) error {
	if quantity < 1 {
		return domain.InvalidParameterf("quantity must be at least 1, got %d", quantity)
	}
	if product.ID == "" {
		return domain.InvalidParameterf("product id is required")
	}

	if !product.Active {
		return domain.InvalidParameterf("product %s is not active", product.ID)
	}

	if pos, ok := c.index[product.ID]; ok {
		c.lines[pos].LastKnownStock = product.StockQuantity
		return c.SetQuantity(product.ID, c.lines[pos].Quantity+quantity)
	}
	if quantity > product.StockQuantity {
		return &domain.StockError{ProductID: product.ID, Requested: quantity, Available: product.StockQuantity}
	}

	c.index[product.ID] = len(c.lines)
	c.lines = append(c.lines, domain.CartLine{
		ProductID:      product.ID,
		SKU:            product.SKU,
		Name:           product.Name,
		Quantity:       quantity,
		UnitPrice:      product.UnitPrice,
		TaxRate:        product.TaxRate,
		LastKnownStock: product.StockQuantity,
	})
	return nil
}

// SetQuantity replaces a line's quantity. Zero or less removes the line.
func (c *Cart) SetQuantity(productID string, quantity int) error {
	if quantity <= 0 {
		c.RemoveLine(productID)
		return nil
	}

	pos, ok := c.index[productID]
	if !ok {
		return domain.InvalidParameterf("product %s is not in the cart", productID)
	}
	line := &c.lines[pos]
	if quantity > line.LastKnownStock {
		return &domain.StockError{ProductID: productID, Requested: quantity, Available: line.LastKnownStock}
	}
	line.Quantity = quantity
	return nil
}

// RemoveLine drops the line for productID. Removing an absent line is a no-op.
func (c *Cart) RemoveLine(productID string) {
	pos, ok := c.index[productID]
	if !ok {
		return
	}
	c.lines = append(c.lines[:pos], c.lines[pos+1:]...)
	delete(c.index, productID)
	for i := pos; i < len(c.lines); i++ {
		c.index[c.lines[i].ProductID] = i
	}
}

// RefreshStock updates the last known stock of lines present in products.
func (c *Cart) RefreshStock(products []domain.Product) {
	for _, product := range products {
		if pos, ok := c.index[product.ID]; ok {
			c.lines[pos].LastKnownStock = product.StockQuantity
		}
	}
}

// Snapshot returns a copy of the lines in insertion order.
func (c *Cart) Snapshot() []domain.CartLine {
	out := make([]domain.CartLine, len(c.lines))
	copy(out, c.lines)
	return out
}

func (c *Cart) Len() int {
	return len(c.lines)
}

func (c *Cart) TotalQuantity() int {
	total := 0
	for _, line := range c.lines {
		total += line.Quantity
	}
	return total
}

func (c *Cart) Clear() {
	c.lines = nil
	c.index = make(map[string]int)
}
