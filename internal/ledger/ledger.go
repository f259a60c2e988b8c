// Package ledger is the single entry point for mutating stock counters.
//
// TryDecrement goes through a circuit breaker so a failing counter backend
// stops taking new sales quickly. Restore never does: compensation must
// always make a real attempt against storage.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"

	"saleregister/backend/internal/domain"
	"saleregister/backend/internal/store"
)

type BreakerSettings struct {
	// MaxFailures is the number of consecutive storage failures that opens
	// the breaker. Zero disables the breaker.
	MaxFailures uint32
	// OpenTimeout is how long the breaker stays open before letting a trial request through.
	OpenTimeout time.Duration
}

type Ledger struct {
	counters store.StockCounters
	breaker  *gobreaker.CircuitBreaker[struct{}]
	logger   *slog.Logger
}

func New(counters store.StockCounters, settings BreakerSettings, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Ledger{counters: counters, logger: logger}
	if settings.MaxFailures == 0 {
		return l
	}

	timeout := settings.OpenTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	maxFailures := settings.MaxFailures
	l.breaker = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "stock-ledger",
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, domain.ErrInsufficientStock) ||
				errors.Is(err, domain.ErrInvalidParameter)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return l
}

// TryDecrement removes quantity from the product's counter if, and only if,
// the counter can cover it. A refusal is a *domain.StockError.
func (l *Ledger) TryDecrement(ctx context.Context, productID string, quantity int) error {
	if quantity < 1 {
		return domain.InvalidParameterf("quantity must be at least 1, got %d", quantity)
	}
	if l.breaker == nil {
		return l.counters.TryDecrementStock(ctx, productID, quantity)
	}

	_, err := l.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, l.counters.TryDecrementStock(ctx, productID, quantity)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: stock ledger unavailable: %w: %w", domain.ErrStorageFailure, domain.ErrNotApplied, err)
	}
	return err
}

// Restore adds quantity back. Restores are additive: calling it twice adds
// twice.
func (l *Ledger) Restore(ctx context.Context, productID string, quantity int) error {
	if quantity < 1 {
		return domain.InvalidParameterf("quantity must be at least 1, got %d", quantity)
	}
	return l.counters.RestoreStock(ctx, productID, quantity)
}

// State reports the breaker state, "disabled" when none is configured.
func (l *Ledger) State() string {
	if l.breaker == nil {
		return "disabled"
	}
	return l.breaker.State().String()
}
