package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidParameter  = errors.New("invalid parameter")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrDuplicateInvoice  = errors.New("duplicate invoice")
	ErrStorageFailure    = errors.New("storage failure")
	ErrInconsistent      = errors.New("failed inconsistent, manual reconciliation required")
	// ErrNotApplied marks a storage failure raised before the write was sent.
	ErrNotApplied = errors.New("not applied")
)

type ErrorKind string

const (
	KindInvalidParameter  ErrorKind = "invalid_parameter"
	KindInsufficientStock ErrorKind = "insufficient_stock"
	KindDuplicateInvoice  ErrorKind = "duplicate_invoice"
	KindStorageFailure    ErrorKind = "storage_failure"
	KindInconsistent      ErrorKind = "failed_inconsistent"
)

// Sentinel returns the error value errors.Is matches for the kind.
func (k ErrorKind) Sentinel() error {
	switch k {
	case KindInvalidParameter:
		return ErrInvalidParameter
	case KindInsufficientStock:
		return ErrInsufficientStock
	case KindDuplicateInvoice:
		return ErrDuplicateInvoice
	case KindInconsistent:
		return ErrInconsistent
	default:
		return ErrStorageFailure
	}
}

// Retryable reports whether the operator may simply try again.
func (k ErrorKind) Retryable() bool {
	return k == KindStorageFailure || k == KindDuplicateInvoice
}

// KindOf classifies err. Inconsistent wins over everything else because it
// must never be mistaken for an ordinary failure.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInconsistent):
		return KindInconsistent
	case errors.Is(err, ErrInvalidParameter):
		return KindInvalidParameter
	case errors.Is(err, ErrInsufficientStock):
		return KindInsufficientStock
	case errors.Is(err, ErrDuplicateInvoice):
		return KindDuplicateInvoice
	default:
		return KindStorageFailure
	}
}

func InvalidParameterf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidParameter, fmt.Sprintf(format, args...))
}

// StockError names the product whose stock could not cover a request.
// Available is -1 when the current figure is unknown.
type StockError struct {
	ProductID string
	Requested int
	Available int
}

func (e *StockError) Error() string {
	if e.Available < 0 {
		return fmt.Sprintf("insufficient stock for product %s: requested %d", e.ProductID, e.Requested)
	}
	return fmt.Sprintf("insufficient stock for product %s: requested %d, available %d", e.ProductID, e.Requested, e.Available)
}

func (e *StockError) Unwrap() error {
	return ErrInsufficientStock
}

// StockErrorProduct extracts the offending product id, if any.
func StockErrorProduct(err error) (string, bool) {
	var stockErr *StockError
	if errors.As(err, &stockErr) {
		return stockErr.ProductID, true
	}
	return "", false
}
