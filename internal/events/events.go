// Package events publishes sale lifecycle notifications.
package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
)

type Type string

const (
	SaleCommitted          Type = "sale.committed"
	ReconciliationRequired Type = "sale.reconciliation_required"
)

// PendingRestore is stock that was decremented and could not be put back,
// or, under unconfirmed_decrements, stock whose decrement outcome is unknown.
type PendingRestore struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type Event struct {
	Type        Type             `json:"type"`
	InvoiceID   string           `json:"invoice_id"`
	SaleID      string           `json:"sale_id,omitempty"`
	CashierRef  string           `json:"cashier_ref"`
	Total       decimal.Decimal  `json:"total"`
	State       string           `json:"state"`
	Reason      string           `json:"reason,omitempty"`
	Restores    []PendingRestore `json:"pending_restores,omitempty"`
	Unconfirmed []PendingRestore `json:"unconfirmed_decrements,omitempty"`
	VoidFailed  bool             `json:"void_failed,omitempty"`
	OccurredAt  time.Time        `json:"occurred_at"`
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// LogPublisher writes events to the structured log. It is the fallback when
// no broker is configured.
type LogPublisher struct {
	logger *slog.Logger
}

func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(ctx context.Context, event Event) error {
	level := slog.LevelInfo
	if event.Type == ReconciliationRequired {
		level = slog.LevelError
	}
	p.logger.Log(ctx, level, "sale event",
		"type", string(event.Type),
		"invoice_id", event.InvoiceID,
		"sale_id", event.SaleID,
		"state", event.State,
		"total", event.Total.StringFixed(2),
		"pending_restores", len(event.Restores),
		"void_failed", event.VoidFailed,
	)
	return nil
}
