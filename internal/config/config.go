package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	StockBackendStore = "store"
	StockBackendRedis = "redis"
)

type Config struct {
	Port                  string
	AllowedOrigin         string
	Env                   string
	LogLevel              string
	DatabaseURL           string
	RunMigrations         bool
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	StockBackend          string
	CatalogTTLSeconds     int
	AuthSecret            string
	TokenTTLMinutes       int
	InvoiceNodeID         int64
	InvoicePrefix         string
	CommitTimeoutMS       int
	CompensationTimeoutMS int
	InvoiceAttempts       int
	CompensationAttempts  int
	BreakerMaxFailures    int
	BreakerOpenSeconds    int
	SessionIdleMinutes    int
	AMQPURL               string
	MetricsEnabled        bool
}

func Load() Config {
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	nodeID, err := strconv.ParseInt(getEnv("INVOICE_NODE_ID", "0"), 10, 64)
	if err != nil {
		nodeID = -1
	}

	cfg := Config{
		Port:                  getEnv("PORT", "8080"),
		AllowedOrigin:         getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		Env:                   getEnv("APP_ENV", "dev"),
		LogLevel:              getEnv("LOG_LEVEL", "info"),
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		RunMigrations:         getBool("RUN_MIGRATIONS", true),
		RedisAddr:             os.Getenv("REDIS_ADDR"),
		RedisPassword:         os.Getenv("REDIS_PASSWORD"),
		RedisDB:               redisDB,
		StockBackend:          strings.ToLower(getEnv("STOCK_BACKEND", StockBackendStore)),
		CatalogTTLSeconds:     getPositiveInt("CATALOG_TTL_SECONDS", 30),
		AuthSecret:            strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		TokenTTLMinutes:       getPositiveInt("ACCESS_TOKEN_TTL_MINUTES", 480),
		InvoiceNodeID:         nodeID,
		InvoicePrefix:         getEnv("INVOICE_PREFIX", "INV"),
		CommitTimeoutMS:       getPositiveInt("COMMIT_TIMEOUT_MS", 5000),
		CompensationTimeoutMS: getPositiveInt("COMPENSATION_TIMEOUT_MS", 10000),
		InvoiceAttempts:       getPositiveInt("INVOICE_ATTEMPTS", 3),
		CompensationAttempts:  getPositiveInt("COMPENSATION_ATTEMPTS", 3),
		BreakerMaxFailures:    getPositiveInt("BREAKER_MAX_FAILURES", 5),
		BreakerOpenSeconds:    getPositiveInt("BREAKER_OPEN_SECONDS", 15),
		SessionIdleMinutes:    getPositiveInt("SESSION_IDLE_MINUTES", 30),
		AMQPURL:               os.Getenv("AMQP_URL"),
		MetricsEnabled:        getBool("METRICS_ENABLED", true),
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func (c Config) CatalogTTL() time.Duration {
	return time.Duration(c.CatalogTTLSeconds) * time.Second
}

func (c Config) TokenTTL() time.Duration {
	return time.Duration(c.TokenTTLMinutes) * time.Minute
}

func (c Config) CommitTimeout() time.Duration {
	return time.Duration(c.CommitTimeoutMS) * time.Millisecond
}

func (c Config) CompensationTimeout() time.Duration {
	return time.Duration(c.CompensationTimeoutMS) * time.Millisecond
}

func (c Config) SessionIdleTimeout() time.Duration {
	return time.Duration(c.SessionIdleMinutes) * time.Minute
}

func (c Config) BreakerOpenTimeout() time.Duration {
	return time.Duration(c.BreakerOpenSeconds) * time.Second
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func getPositiveInt(key string, fallback int) int {
	n, err := strconv.Atoi(getEnv(key, strconv.Itoa(fallback)))
	if err != nil || n < 1 {
		return fallback
	}
	return n
}

func getBool(key string, fallback bool) bool {
	b, err := strconv.ParseBool(getEnv(key, strconv.FormatBool(fallback)))
	if err != nil {
		return fallback
	}
	return b
}
