package main

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"saleregister/backend/internal/config"
	"saleregister/backend/internal/store/memory"
	"saleregister/backend/internal/store/redisstock"
)

const strongSecret = "0123456789abcdef0123456789abcdef"

func TestValidateConfigRejectsWeakSecret(t *testing.T) {
	err := validateConfig(config.Config{AuthSecret: "short", StockBackend: config.StockBackendStore})
	if err == nil {
		t.Fatalf("expected weak secret to be rejected")
	}
}

func TestValidateConfigAcceptsStrongValues(t *testing.T) {
	err := validateConfig(config.Config{AuthSecret: strongSecret, InvoiceNodeID: 1023, StockBackend: config.StockBackendStore})
	if err != nil {
		t.Fatalf("expected strong config to pass, got %v", err)
	}
}

func TestValidateConfigRanges(t *testing.T) {
	cases := map[string]config.Config{
		"node id too high":      {AuthSecret: strongSecret, InvoiceNodeID: 1024, StockBackend: config.StockBackendStore},
		"node id unparsable":    {AuthSecret: strongSecret, InvoiceNodeID: -1, StockBackend: config.StockBackendStore},
		"unknown stock backend": {AuthSecret: strongSecret, StockBackend: "etcd"},
		"redis without address": {AuthSecret: strongSecret, StockBackend: config.StockBackendRedis},
	}
	for name, cfg := range cases {
		if err := validateConfig(cfg); err == nil {
			t.Fatalf("%s: expected rejection", name)
		}
	}
}

func TestSeedCountersKeepsLiveValues(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	counters := redisstock.New(client)

	repo := memory.NewSeeded()
	products, err := repo.ListActiveProducts(ctx)
	if err != nil || len(products) == 0 {
		t.Fatalf("seeded catalog: %v", err)
	}
	live := products[0].ID
	if err := counters.SetStock(ctx, live, 3); err != nil {
		t.Fatalf("set stock: %v", err)
	}

	if err := seedCounters(ctx, repo, counters); err != nil {
		t.Fatalf("seed: %v", err)
	}

	levels, err := counters.StockLevels(ctx, []string{live, products[1].ID})
	if err != nil {
		t.Fatalf("levels: %v", err)
	}
	if levels[live] != 3 {
		t.Fatalf("expected live counter kept at 3, got %d", levels[live])
	}
	if levels[products[1].ID] != repo.StockOf(products[1].ID) {
		t.Fatalf("expected missing counter seeded from store, got %d", levels[products[1].ID])
	}
}
