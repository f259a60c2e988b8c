package cache

import (
	"context"
	"time"

	"saleregister/backend/internal/domain"
)

// CatalogCache stores catalog snapshots. Get reports a miss with ok=false
// and a nil error.
type CatalogCache interface {
	Get(ctx context.Context, key string) ([]domain.Product, bool, error)
	Set(ctx context.Context, key string, products []domain.Product, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

type NoopCatalogCache struct{}

func (NoopCatalogCache) Get(_ context.Context, _ string) ([]domain.Product, bool, error) {
	return nil, false, nil
}

func (NoopCatalogCache) Set(_ context.Context, _ string, _ []domain.Product, _ time.Duration) error {
	return nil
}

func (NoopCatalogCache) Delete(_ context.Context, _ string) error {
	return nil
}
