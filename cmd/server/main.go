package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"saleregister/backend/internal/cache"
	"saleregister/backend/internal/catalog"
	"saleregister/backend/internal/commit"
	"saleregister/backend/internal/config"
	"saleregister/backend/internal/events"
	"saleregister/backend/internal/httpapi"
	"saleregister/backend/internal/invoice"
	"saleregister/backend/internal/ledger"
	"saleregister/backend/internal/logger"
	"saleregister/backend/internal/metrics"
	"saleregister/backend/internal/session"
	"saleregister/backend/internal/store"
	"saleregister/backend/internal/store/memory"
	pgstore "saleregister/backend/internal/store/postgres"
	"saleregister/backend/internal/store/redisstock"
)

func main() {
	issueFor := flag.String("issue-token", "", "print a bearer token for the given cashier and exit")
	flag.Parse()

	cfg := config.Load()
	log := logger.New(logger.Options{Service: "sale-register", Env: cfg.Env, Level: cfg.LogLevel})
	if err := validateConfig(cfg); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	auth := httpapi.NewAuthManager(cfg.AuthSecret, cfg.TokenTTL())
	if *issueFor != "" {
		token, expiresAt, err := auth.IssueToken(*issueFor)
		if err != nil {
			log.Error("issue token failed", "error", err)
			os.Exit(1)
		}
		fmt.Printf("%s\n# expires %s\n", token, expiresAt.Format(time.RFC3339))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 4)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Error("postgres unavailable and DATABASE_URL is set; refusing to start with in-memory fallback", "error", err)
			os.Exit(1)
		}
		closers = append(closers, pg.Close)
		if cfg.RunMigrations {
			if err := pg.Migrate(); err != nil {
				log.Error("migrations failed", "error", err)
				os.Exit(1)
			}
		}
		repo = pg
		log.Info("repository: postgres")
	} else {
		repo = memory.NewSeeded()
		log.Info("repository: in-memory")
	}

	var counters store.StockCounters = repo
	var overlay store.StockLevels
	catalogCache := cache.CatalogCache(cache.NoopCatalogCache{})

	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		redisCache := cache.NewRedisCatalogCache(client)
		if err := redisCache.Ping(ctx); err != nil {
			_ = client.Close()
			if cfg.StockBackend == config.StockBackendRedis {
				log.Error("redis stock backend selected but redis is unavailable", "error", err)
				os.Exit(1)
			}
			log.Warn("redis unavailable, using noop catalog cache", "error", err)
		} else {
			catalogCache = redisCache
			closers = append(closers, client.Close)
			log.Info("cache: redis")

			if cfg.StockBackend == config.StockBackendRedis {
				redisCounters := redisstock.New(client)
				if err := seedCounters(ctx, repo, redisCounters); err != nil {
					log.Error("seeding redis stock counters failed", "error", err)
					os.Exit(1)
				}
				counters = redisCounters
				overlay = redisCounters
				log.Info("stock: redis")
			}
		}
	} else {
		log.Info("cache: noop")
	}

	var publisher events.Publisher = events.NewLogPublisher(log)
	if cfg.AMQPURL != "" {
		conn, ch, err := events.SetupConn(cfg.AMQPURL, 5, log)
		if err != nil {
			log.Warn("rabbitmq unavailable, logging sale events instead", "error", err)
		} else {
			publisher = events.NewAMQPPublisher(ch)
			closers = append(closers, ch.Close, conn.Close)
			log.Info("events: rabbitmq")
		}
	}

	var registerer prometheus.Registerer
	var metricsHandler http.Handler
	if cfg.MetricsEnabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		registerer = reg
		metricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	}

	invoices, err := invoice.NewSnowflake(cfg.InvoiceNodeID, cfg.InvoicePrefix)
	if err != nil {
		log.Error("invoice generator", "error", err)
		os.Exit(1)
	}

	stock := ledger.New(counters, ledger.BreakerSettings{
		MaxFailures: uint32(cfg.BreakerMaxFailures),
		OpenTimeout: cfg.BreakerOpenTimeout(),
	}, log)

	committer := commit.New(commit.Deps{
		Sales:    repo,
		Ledger:   stock,
		Invoices: invoices,
		Events:   publisher,
		Metrics:  metrics.New(registerer),
		Logger:   log,
	}, commit.Options{
		Timeout:              cfg.CommitTimeout(),
		CompensationTimeout:  cfg.CompensationTimeout(),
		InvoiceAttempts:      cfg.InvoiceAttempts,
		CompensationAttempts: cfg.CompensationAttempts,
		CompensationBackoff:  commit.DefaultOptions().CompensationBackoff,
	})

	reader := catalog.NewReader(repo, catalogCache, cfg.CatalogTTL(), log)
	if overlay != nil {
		reader = reader.WithStockOverlay(overlay)
	}
	registry := session.NewRegistry(reader, committer, log).WithIdleTimeout(cfg.SessionIdleTimeout())
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	go registry.Sweep(sweepCtx, time.Minute)

	api := httpapi.New(registry, reader, repo, auth, cfg.AllowedOrigin, log)
	if metricsHandler != nil {
		api = api.WithMetrics(metricsHandler)
	}

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      cfg.CommitTimeout() + cfg.CompensationTimeout() + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("sale register listening", "addr", cfg.Address())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", "error", err)
	}
	stopSweep()

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Warn("close error", "error", err)
		}
	}

	log.Info("server stopped")
}

func validateConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if cfg.InvoiceNodeID < 0 || cfg.InvoiceNodeID > 1023 {
		return fmt.Errorf("INVOICE_NODE_ID must be between 0 and 1023")
	}
	switch cfg.StockBackend {
	case config.StockBackendStore:
	case config.StockBackendRedis:
		if cfg.RedisAddr == "" {
			return fmt.Errorf("STOCK_BACKEND=redis requires REDIS_ADDR")
		}
	default:
		return fmt.Errorf("STOCK_BACKEND must be %q or %q", config.StockBackendStore, config.StockBackendRedis)
	}
	return nil
}

type stockSeeder interface {
	SeedMissing(ctx context.Context, levels map[string]int) error
}

// seedCounters copies the store's stock into counters that do not exist yet,
// so a restart never overwrites live Redis stock.
func seedCounters(ctx context.Context, repo store.Repository, counters stockSeeder) error {
	products, err := repo.ListActiveProducts(ctx)
	if err != nil {
		return err
	}
	ids := make([]string, 0, len(products))
	for _, p := range products {
		ids = append(ids, p.ID)
	}
	levels, err := repo.StockLevels(ctx, ids)
	if err != nil {
		return err
	}
	return counters.SeedMissing(ctx, levels)
}
