package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"saleregister/backend/internal/domain"
)

var (
	_ CatalogCache = (*RedisCatalogCache)(nil)
	_ CatalogCache = NoopCatalogCache{}
)

func setupTestRedis(t *testing.T) (*RedisCatalogCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisCatalogCache(client), mr
}

func sampleProducts() []domain.Product {
	return []domain.Product{{
		ID:            "p-1",
		SKU:           "SKU-1",
		Name:          "Kopi Sachet",
		UnitPrice:     decimal.RequireFromString("2.60"),
		TaxRate:       decimal.NewFromInt(11),
		StockQuantity: 40,
		Active:        true,
	}}
}

func TestRedisCatalogCache_RoundTripWithTTL(t *testing.T) {
	c, mr := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "active", sampleProducts(), 30*time.Second))
	assert.True(t, mr.Exists("catalog:active"))
	assert.Equal(t, 30*time.Second, mr.TTL("catalog:active"))

	got, ok, err := c.Get(ctx, "active")
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, got, 1)
	assert.True(t, got[0].UnitPrice.Equal(decimal.RequireFromString("2.60")))
	assert.Equal(t, 40, got[0].StockQuantity)

	mr.FastForward(31 * time.Second)
	_, ok, err = c.Get(ctx, "active")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisCatalogCache_Delete(t *testing.T) {
	c, mr := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "active", sampleProducts(), time.Minute))
	require.NoError(t, c.Delete(ctx, "active"))
	assert.False(t, mr.Exists("catalog:active"))
	require.NoError(t, c.Delete(ctx, "active"))
}

func TestRedisCatalogCache_CorruptPayload(t *testing.T) {
	c, mr := setupTestRedis(t)
	require.NoError(t, mr.Set("catalog:active", "{not json"))

	_, ok, err := c.Get(context.Background(), "active")
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestRedisCatalogCache_ConnectionError(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := NewRedisCatalogCache(db)

	mock.ExpectGet("catalog:active").SetErr(errors.New("i/o timeout"))

	_, ok, err := c.Get(context.Background(), "active")
	assert.Error(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNoopCatalogCache(t *testing.T) {
	var c NoopCatalogCache
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "active", sampleProducts(), time.Minute))
	_, ok, err := c.Get(ctx, "active")
	require.NoError(t, err)
	assert.False(t, ok)
}
