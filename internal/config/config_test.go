package config

import (
	"testing"
	"time"
)

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")

	cfg := Load()
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
}

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "STOCK_BACKEND", "CATALOG_TTL_SECONDS", "INVOICE_NODE_ID", "INVOICE_PREFIX", "COMMIT_TIMEOUT_MS", "RUN_MIGRATIONS", "METRICS_ENABLED", "SESSION_IDLE_MINUTES"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	if cfg.Address() != ":8080" {
		t.Fatalf("expected :8080, got %q", cfg.Address())
	}
	if cfg.StockBackend != StockBackendStore {
		t.Fatalf("expected store stock backend, got %q", cfg.StockBackend)
	}
	if cfg.CatalogTTL() != 30*time.Second {
		t.Fatalf("expected 30s catalog ttl, got %s", cfg.CatalogTTL())
	}
	if cfg.InvoiceNodeID != 0 || cfg.InvoicePrefix != "INV" {
		t.Fatalf("unexpected invoice settings %d %q", cfg.InvoiceNodeID, cfg.InvoicePrefix)
	}
	if cfg.CommitTimeout() != 5*time.Second || cfg.CompensationTimeout() != 10*time.Second {
		t.Fatalf("unexpected timeouts %s %s", cfg.CommitTimeout(), cfg.CompensationTimeout())
	}
	if cfg.SessionIdleTimeout() != 30*time.Minute {
		t.Fatalf("expected 30m session idle timeout, got %s", cfg.SessionIdleTimeout())
	}
	if !cfg.RunMigrations || !cfg.MetricsEnabled {
		t.Fatalf("expected migrations and metrics enabled by default")
	}
}

func TestLoadOverridesAndFallbacks(t *testing.T) {
	t.Setenv("STOCK_BACKEND", "Redis")
	t.Setenv("CATALOG_TTL_SECONDS", "-4")
	t.Setenv("BREAKER_OPEN_SECONDS", "7")
	t.Setenv("INVOICE_NODE_ID", "not-a-number")
	t.Setenv("METRICS_ENABLED", "false")
	t.Setenv("RUN_MIGRATIONS", "maybe")

	cfg := Load()
	if cfg.StockBackend != StockBackendRedis {
		t.Fatalf("expected redis stock backend, got %q", cfg.StockBackend)
	}
	if cfg.CatalogTTLSeconds != 30 {
		t.Fatalf("expected fallback ttl for negative value, got %d", cfg.CatalogTTLSeconds)
	}
	if cfg.BreakerOpenTimeout() != 7*time.Second {
		t.Fatalf("expected 7s breaker timeout, got %s", cfg.BreakerOpenTimeout())
	}
	if cfg.InvoiceNodeID != -1 {
		t.Fatalf("expected unparsable node id to be flagged, got %d", cfg.InvoiceNodeID)
	}
	if cfg.MetricsEnabled {
		t.Fatalf("expected metrics disabled")
	}
	if !cfg.RunMigrations {
		t.Fatalf("expected unparsable bool to fall back to true")
	}
}
