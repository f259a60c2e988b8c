// Package commit turns a frozen checkout into a persisted sale.
//
// The write runs as a saga over independent storage operations: the sale
// header, then its items, then one conditional stock decrement per line in
// cart order. Any failure after the header is written is compensated by
// restoring the decrements already applied (newest first) and hard-deleting
// the header with its items. When compensation cannot be confirmed the
// attempt ends in CommitFailedInconsistent and a reconciliation event is
// published.
package commit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"saleregister/backend/internal/domain"
	"saleregister/backend/internal/events"
	"saleregister/backend/internal/invoice"
	"saleregister/backend/internal/metrics"
	"saleregister/backend/internal/store"
)

// Ledger is the stock primitive the committer drives.
type Ledger interface {
	TryDecrement(ctx context.Context, productID string, quantity int) error
	Restore(ctx context.Context, productID string, quantity int) error
}

type Options struct {
	// Timeout bounds the forward steps. Zero means the caller's context
	// alone decides.
	Timeout time.Duration
	// CompensationTimeout bounds compensation, which runs detached from the
	// caller's cancellation.
	CompensationTimeout  time.Duration
	InvoiceAttempts      int
	CompensationAttempts int
	// CompensationBackoff is multiplied by the attempt number.
	CompensationBackoff time.Duration
}

func DefaultOptions() Options {
	return Options{
		Timeout:              5 * time.Second,
		CompensationTimeout:  10 * time.Second,
		InvoiceAttempts:      3,
		CompensationAttempts: 3,
		CompensationBackoff:  100 * time.Millisecond,
	}
}

type Deps struct {
	Sales    store.SaleStore
	Ledger   Ledger
	Invoices invoice.Generator
	Events   events.Publisher
	Metrics  *metrics.Commit
	Logger   *slog.Logger
}

type Committer struct {
	sales    store.SaleStore
	ledger   Ledger
	invoices invoice.Generator
	events   events.Publisher
	metrics  *metrics.Commit
	logger   *slog.Logger
	opts     Options
	now      func() time.Time
}

type Result struct {
	Sale  domain.Sale
	Items []domain.SaleItem
	State domain.CommitState
}

func New(deps Deps, opts Options) *Committer {
	if opts.InvoiceAttempts < 1 {
		opts.InvoiceAttempts = 1
	}
	if opts.CompensationAttempts < 1 {
		opts.CompensationAttempts = 1
	}
	if opts.CompensationTimeout <= 0 {
		opts.CompensationTimeout = 10 * time.Second
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	publisher := deps.Events
	if publisher == nil {
		publisher = events.NewLogPublisher(logger)
	}
	return &Committer{
		sales:    deps.Sales,
		ledger:   deps.Ledger,
		invoices: deps.Invoices,
		events:   publisher,
		metrics:  deps.Metrics,
		logger:   logger,
		opts:     opts,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// attempt is the mutable state of a single Commit call.
type attempt struct {
	state   domain.CommitState
	sale    domain.Sale
	items   []domain.SaleItem
	applied []domain.CartLine
	// unconfirmed holds a decrement that failed without a definite answer.
	// It may or may not have been applied, so it is never restored.
	unconfirmed []domain.CartLine
	logger      *slog.Logger
}

func (a *attempt) moveTo(next domain.CommitState) {
	if !a.state.CanTransitionTo(next) {
		panic(fmt.Sprintf("commit: illegal transition %s -> %s", a.state, next))
	}
	a.logger.Debug("commit transition", "invoice_id", a.sale.InvoiceID, "from", a.state.String(), "to", next.String())
	a.state = next
}

// Commit runs the saga for req. On failure the returned error is a *Error
// and the Result carries the terminal state only.
func (c *Committer) Commit(ctx context.Context, req domain.CommitRequest) (Result, error) {
	started := time.Now()
	lines := req.Lines()
	if len(lines) == 0 {
		return Result{State: domain.CommitFailed}, &Error{
			Kind:  domain.KindInvalidParameter,
			State: domain.CommitFailed,
			Err:   domain.InvalidParameterf("commit request has no lines"),
		}
	}

	if c.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()
	}

	totals := req.Totals().Rounded()
	a := &attempt{
		state: domain.CommitBuilt,
		sale: domain.Sale{
			InvoiceID:      req.InvoiceID(),
			CustomerRef:    req.CustomerRef(),
			CashierRef:     req.CashierRef(),
			Subtotal:       totals.Subtotal,
			TaxAmount:      totals.TaxAmount,
			DiscountAmount: totals.DiscountAmount,
			TotalAmount:    totals.Total,
			PaymentMethod:  req.PaymentMethod(),
			PaymentStatus:  domain.PaymentPaid,
			CreatedAt:      c.now(),
		},
		logger: c.logger,
	}

	res, err := c.run(ctx, a, lines)
	outcome := "success"
	if err != nil {
		outcome = string(domain.KindOf(err))
	}
	c.metrics.ObserveCommit(outcome, time.Since(started))
	return res, err
}

func (c *Committer) run(ctx context.Context, a *attempt, lines []domain.CartLine) (Result, error) {
	if err := c.recordSale(ctx, a); err != nil {
		return Result{State: a.state}, err
	}
	a.moveTo(domain.CommitSaleRecorded)

	a.items = make([]domain.SaleItem, len(lines))
	for i, line := range lines {
		a.items[i] = domain.SaleItemFromLine(a.sale.ID, line)
	}
	if err := c.sales.CreateSaleItems(ctx, a.sale.ID, a.items); err != nil {
		return c.fail(ctx, a, kindOrStorage(err), "", fmt.Errorf("record items: %w", err))
	}
	a.moveTo(domain.CommitItemsRecorded)

	for _, line := range lines {
		if err := ctx.Err(); err != nil {
			return c.fail(ctx, a, domain.KindStorageFailure, "", fmt.Errorf("before decrement of %s: %w", line.ProductID, err))
		}
		if err := c.ledger.TryDecrement(ctx, line.ProductID, line.Quantity); err != nil {
			if errors.Is(err, domain.ErrInsufficientStock) {
				return c.fail(ctx, a, domain.KindInsufficientStock, line.ProductID, err)
			}
			if !definiteDecrementFailure(err) {
				a.unconfirmed = append(a.unconfirmed, line)
			}
			return c.fail(ctx, a, kindOrStorage(err), line.ProductID, fmt.Errorf("decrement %s: %w", line.ProductID, err))
		}
		a.applied = append(a.applied, line)
	}
	a.moveTo(domain.CommitStockApplied)

	c.logger.Info("sale committed",
		"invoice_id", a.sale.InvoiceID,
		"sale_id", a.sale.ID,
		"cashier", a.sale.CashierRef,
		"total", a.sale.TotalAmount.StringFixed(domain.MoneyPlaces),
		"lines", len(lines),
	)
	c.publish(ctx, events.Event{
		Type:       events.SaleCommitted,
		InvoiceID:  a.sale.InvoiceID,
		SaleID:     a.sale.ID,
		CashierRef: a.sale.CashierRef,
		Total:      a.sale.TotalAmount,
		State:      a.state.String(),
		OccurredAt: c.now(),
	})

	items := make([]domain.SaleItem, len(a.items))
	copy(items, a.items)
	return Result{Sale: a.sale, Items: items, State: a.state}, nil
}

// recordSale writes the header, drawing a fresh invoice id on every
// duplicate until the attempts are used up. A caller-assigned invoice id is
// the idempotency key and is never replaced; its first collision fails.
func (c *Committer) recordSale(ctx context.Context, a *attempt) error {
	assigned := a.sale.InvoiceID != ""
	attempts := c.opts.InvoiceAttempts
	if assigned {
		attempts = 1
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		if !assigned {
			a.sale.InvoiceID = c.invoices.Next()
		}
		a.sale.ID = uuid.NewString()

		id, err := c.sales.CreateSale(ctx, a.sale)
		if err == nil {
			a.sale.ID = id
			return nil
		}
		lastErr = err

		if errors.Is(err, domain.ErrDuplicateInvoice) {
			c.logger.Warn("invoice collision", "invoice_id", a.sale.InvoiceID, "attempt", i+1, "assigned", assigned)
			continue
		}

		if ctx.Err() != nil {
			// The header may have landed before the deadline hit.
			_, cerr := c.fail(ctx, a, domain.KindStorageFailure, "", fmt.Errorf("record sale: %w", err))
			return cerr
		}

		a.moveTo(domain.CommitFailed)
		c.logger.Warn("sale header not recorded", "invoice_id", a.sale.InvoiceID, "error", err)
		return &Error{
			Kind:      kindOrStorage(err),
			State:     a.state,
			InvoiceID: a.sale.InvoiceID,
			Err:       fmt.Errorf("record sale: %w", err),
		}
	}

	a.moveTo(domain.CommitFailed)
	return &Error{
		Kind:      domain.KindDuplicateInvoice,
		State:     a.state,
		InvoiceID: a.sale.InvoiceID,
		Err:       fmt.Errorf("%d invoice attempts: %w", attempts, lastErr),
	}
}

// fail compensates whatever the attempt has applied and builds the error.
func (c *Committer) fail(ctx context.Context, a *attempt, kind domain.ErrorKind, productID string, cause error) (Result, error) {
	a.moveTo(domain.CommitCompensatingStock)

	pending, voidErr := c.compensate(ctx, a)
	if len(pending) == 0 && voidErr == nil && len(a.unconfirmed) == 0 {
		a.moveTo(domain.CommitFailed)
		c.logger.Warn("sale commit failed and was compensated",
			"invoice_id", a.sale.InvoiceID,
			"kind", string(kind),
			"product_id", productID,
			"error", cause,
		)
		return Result{State: a.state}, &Error{
			Kind:      kind,
			State:     a.state,
			InvoiceID: a.sale.InvoiceID,
			ProductID: productID,
			Err:       cause,
		}
	}

	a.moveTo(domain.CommitFailedInconsistent)
	c.logger.Error("sale commit inconsistent, manual reconciliation required",
		"invoice_id", a.sale.InvoiceID,
		"sale_id", a.sale.ID,
		"pending_restores", pending,
		"unconfirmed_decrements", len(a.unconfirmed),
		"void_error", voidErr,
		"cause", cause,
	)
	c.publish(ctx, events.Event{
		Type:        events.ReconciliationRequired,
		InvoiceID:   a.sale.InvoiceID,
		SaleID:      a.sale.ID,
		CashierRef:  a.sale.CashierRef,
		Total:       a.sale.TotalAmount,
		State:       a.state.String(),
		Reason:      cause.Error(),
		Restores:    pending,
		Unconfirmed: unconfirmedRestores(a.unconfirmed),
		VoidFailed:  voidErr != nil,
		OccurredAt:  c.now(),
	})

	compErr := voidErr
	if len(pending) > 0 {
		compErr = errors.Join(fmt.Errorf("%d stock restores unconfirmed", len(pending)), compErr)
	}
	if len(a.unconfirmed) > 0 {
		compErr = errors.Join(fmt.Errorf("%d stock decrements with unknown outcome", len(a.unconfirmed)), compErr)
	}
	return Result{State: a.state}, &Error{
		Kind:      domain.KindInconsistent,
		State:     a.state,
		InvoiceID: a.sale.InvoiceID,
		ProductID: productID,
		Err:       errors.Join(cause, compErr),
	}
}

// compensate restores applied decrements newest first, then voids the sale.
// It runs on a context detached from the caller so a cancelled or timed out
// request still gets its effects reversed.
func (c *Committer) compensate(ctx context.Context, a *attempt) ([]events.PendingRestore, error) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opts.CompensationTimeout)
	defer cancel()

	var pending []events.PendingRestore
	for i := len(a.applied) - 1; i >= 0; i-- {
		line := a.applied[i]
		err := c.retry(cctx, func(ctx context.Context) error {
			return c.ledger.Restore(ctx, line.ProductID, line.Quantity)
		})
		c.metrics.ObserveCompensation("restore", err == nil)
		if err != nil {
			c.logger.Error("stock restore failed", "invoice_id", a.sale.InvoiceID, "product_id", line.ProductID, "quantity", line.Quantity, "error", err)
			pending = append(pending, events.PendingRestore{ProductID: line.ProductID, Quantity: line.Quantity})
		}
	}

	voidErr := c.retry(cctx, func(ctx context.Context) error {
		return c.sales.VoidSale(ctx, a.sale.ID)
	})
	c.metrics.ObserveCompensation("void", voidErr == nil)
	if voidErr != nil {
		voidErr = fmt.Errorf("void sale %s: %w", a.sale.ID, voidErr)
	}
	return pending, voidErr
}

func (c *Committer) retry(ctx context.Context, fn func(context.Context) error) error {
	var err error
	for i := 1; i <= c.opts.CompensationAttempts; i++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if errors.Is(err, domain.ErrInvalidParameter) || i == c.opts.CompensationAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return errors.Join(err, ctx.Err())
		case <-time.After(c.opts.CompensationBackoff * time.Duration(i)):
		}
	}
	return err
}

func (c *Committer) publish(ctx context.Context, event events.Event) {
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := c.events.Publish(pctx, event); err != nil {
		c.logger.Error("publish sale event", "type", string(event.Type), "invoice_id", event.InvoiceID, "error", err)
	}
}

// definiteDecrementFailure reports whether a failed decrement is known not
// to have touched the counter. Timeouts, cancellations and transport errors
// leave the outcome unknown.
func definiteDecrementFailure(err error) bool {
	return errors.Is(err, domain.ErrInsufficientStock) ||
		errors.Is(err, domain.ErrInvalidParameter) ||
		errors.Is(err, domain.ErrNotApplied)
}

func unconfirmedRestores(lines []domain.CartLine) []events.PendingRestore {
	if len(lines) == 0 {
		return nil
	}
	out := make([]events.PendingRestore, 0, len(lines))
	for _, line := range lines {
		out = append(out, events.PendingRestore{ProductID: line.ProductID, Quantity: line.Quantity})
	}
	return out
}

// kindOrStorage keeps caller-correctable kinds and folds everything else
// into a retryable storage failure.
func kindOrStorage(err error) domain.ErrorKind {
	switch kind := domain.KindOf(err); kind {
	case domain.KindInvalidParameter, domain.KindInsufficientStock:
		return kind
	default:
		return domain.KindStorageFailure
	}
}
