package cart

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"saleregister/backend/internal/domain"
)

func product(id string, stock int) domain.Product {
	return domain.Product{
		ID:            id,
		SKU:           "SKU-" + id,
		Name:          "Product " + id,
		UnitPrice:     decimal.RequireFromString("3.50"),
		TaxRate:       decimal.NewFromInt(10),
		StockQuantity: stock,
		Active:        true,
	}
}

func TestAddLineStopsAtLastKnownStock(t *testing.T) {
	c := New()
	p := product("p-1", 3)

	for i := 0; i < 3; i++ {
		require.NoError(t, c.AddLine(p, 1))
	}

	err := c.AddLine(p, 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInsufficientStock))
	id, ok := domain.StockErrorProduct(err)
	require.True(t, ok)
	assert.Equal(t, "p-1", id)

	assert.Equal(t, 1, c.Len())
	assert.Equal(t, 3, c.TotalQuantity())
}

func TestAddLineFreezesPrice(t *testing.T) {
	c := New()
	p := product("p-1", 10)
	require.NoError(t, c.AddLine(p, 2))

	p.UnitPrice = decimal.RequireFromString("99.00")
	require.NoError(t, c.AddLine(p, 1))

	lines := c.Snapshot()
	require.Len(t, lines, 1)
	assert.Equal(t, 3, lines[0].Quantity)
	assert.Equal(t, "3.50", lines[0].UnitPrice.StringFixed(2))
}

func TestAddLineRejectsBadInput(t *testing.T) {
	c := New()

	assert.True(t, errors.Is(c.AddLine(product("p-1", 5), 0), domain.ErrInvalidParameter))
	assert.True(t, errors.Is(c.AddLine(product("p-1", 5), -2), domain.ErrInvalidParameter))

	inactive := product("p-2", 5)
	inactive.Active = false
	assert.True(t, errors.Is(c.AddLine(inactive, 1), domain.ErrInvalidParameter))

	assert.True(t, errors.Is(c.AddLine(product("p-3", 0), 1), domain.ErrInsufficientStock))
	assert.Zero(t, c.Len())
}

func TestAddLineRejectsDeactivatedProductAlreadyInCart(t *testing.T) {
	c := New()
	p := product("p-1", 5)
	require.NoError(t, c.AddLine(p, 1))

	p.Active = false
	err := c.AddLine(p, 1)
	assert.True(t, errors.Is(err, domain.ErrInvalidParameter))

	lines := c.Snapshot()
	require.Len(t, lines, 1)
	assert.Equal(t, 1, lines[0].Quantity)
}

func TestSetQuantity(t *testing.T) {
	c := New()
	require.NoError(t, c.AddLine(product("p-1", 4), 1))

	require.NoError(t, c.SetQuantity("p-1", 4))
	assert.Equal(t, 4, c.TotalQuantity())

	assert.True(t, errors.Is(c.SetQuantity("p-1", 5), domain.ErrInsufficientStock))
	assert.Equal(t, 4, c.TotalQuantity())

	require.NoError(t, c.SetQuantity("p-1", 0))
	assert.Zero(t, c.Len())

	assert.True(t, errors.Is(c.SetQuantity("missing", 2), domain.ErrInvalidParameter))
	assert.NoError(t, c.SetQuantity("missing", -1))
}

func TestRemoveLineIsIdempotent(t *testing.T) {
	c := New()
	require.NoError(t, c.AddLine(product("a", 2), 1))
	require.NoError(t, c.AddLine(product("b", 2), 1))
	require.NoError(t, c.AddLine(product("c", 2), 1))

	c.RemoveLine("b")
	c.RemoveLine("b")
	c.RemoveLine("never-added")

	lines := c.Snapshot()
	require.Len(t, lines, 2)
	assert.Equal(t, "a", lines[0].ProductID)
	assert.Equal(t, "c", lines[1].ProductID)

	require.NoError(t, c.SetQuantity("c", 2))
	assert.Equal(t, 2, c.Snapshot()[1].Quantity)
}

func TestSnapshotIsACopy(t *testing.T) {
	c := New()
	require.NoError(t, c.AddLine(product("a", 5), 1))

	snap := c.Snapshot()
	snap[0].Quantity = 42

	require.NoError(t, c.AddLine(product("b", 5), 1))
	assert.Equal(t, 1, c.Snapshot()[0].Quantity)
	assert.Len(t, snap, 1)
}

func TestRandomMutationsKeepInvariants(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	ids := []string{"a", "b", "c", "d"}
	c := New()

	for i := 0; i < 2000; i++ {
		id := ids[rng.Intn(len(ids))]
		switch rng.Intn(3) {
		case 0:
			_ = c.AddLine(product(id, 6), rng.Intn(4)+1)
		case 1:
			_ = c.SetQuantity(id, rng.Intn(9)-2)
		default:
			c.RemoveLine(id)
		}

		seen := map[string]bool{}
		for _, line := range c.Snapshot() {
			require.Greater(t, line.Quantity, 0)
			require.LessOrEqual(t, line.Quantity, 6)
			require.False(t, seen[line.ProductID], "duplicate line %s", line.ProductID)
			seen[line.ProductID] = true
		}
	}
}
