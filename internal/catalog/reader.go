// Package catalog serves the active product list to sale sessions.
package catalog

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"saleregister/backend/internal/cache"
	"saleregister/backend/internal/domain"
	"saleregister/backend/internal/store"
)

const activeKey = "active"

// Reader fronts a store.Catalog with a snapshot cache. Concurrent misses
// share one load. When an overlay is set, stock figures come from it
// instead of the catalog store.
type Reader struct {
	source  store.Catalog
	overlay store.StockLevels
	cache   cache.CatalogCache
	ttl     time.Duration
	group   singleflight.Group
	logger  *slog.Logger
}

func NewReader(source store.Catalog, cacheStore cache.CatalogCache, ttl time.Duration, logger *slog.Logger) *Reader {
	if cacheStore == nil {
		cacheStore = cache.NoopCatalogCache{}
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reader{source: source, cache: cacheStore, ttl: ttl, logger: logger}
}

// WithStockOverlay makes the reader take stock quantities from levels.
func (r *Reader) WithStockOverlay(levels store.StockLevels) *Reader {
	r.overlay = levels
	return r
}

func (r *Reader) ListActiveProducts(ctx context.Context) ([]domain.Product, error) {
	if cached, ok, err := r.cache.Get(ctx, activeKey); err == nil && ok {
		return cached, nil
	} else if err != nil {
		r.logger.Warn("catalog cache read failed", "error", err)
	}

	v, err, _ := r.group.Do(activeKey, func() (any, error) {
		return r.load(ctx)
	})
	if err != nil {
		return nil, err
	}

	shared := v.([]domain.Product)
	products := make([]domain.Product, len(shared))
	copy(products, shared)
	return products, nil
}

func (r *Reader) load(ctx context.Context) ([]domain.Product, error) {
	products, err := r.source.ListActiveProducts(ctx)
	if err != nil {
		return nil, err
	}

	if r.overlay != nil && len(products) > 0 {
		ids := make([]string, len(products))
		for i, p := range products {
			ids[i] = p.ID
		}
		levels, err := r.overlay.StockLevels(ctx, ids)
		if err != nil {
			return nil, err
		}
		for i := range products {
			products[i].StockQuantity = levels[products[i].ID]
		}
	}

	if err := r.cache.Set(ctx, activeKey, products, r.ttl); err != nil {
		r.logger.Warn("catalog cache write failed", "error", err)
	}
	return products, nil
}

// Invalidate drops the cached snapshot so the next read sees fresh stock.
func (r *Reader) Invalidate(ctx context.Context) {
	r.group.Forget(activeKey)
	if err := r.cache.Delete(ctx, activeKey); err != nil {
		r.logger.Warn("catalog cache invalidate failed", "error", err)
	}
}
