package commit

import (
	"fmt"
	"strings"

	"saleregister/backend/internal/domain"
)

// Error is returned by Committer.Commit for every failed attempt.
// errors.Is matches both Kind's sentinel and the underlying cause.
type Error struct {
	Kind      domain.ErrorKind
	State     domain.CommitState
	InvoiceID string
	SaleID    string
	ProductID string
	Err       error
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "commit %s: %s", e.State, e.Kind)
	if e.InvoiceID != "" {
		fmt.Fprintf(&b, " invoice=%s", e.InvoiceID)
	}
	if e.ProductID != "" {
		fmt.Fprintf(&b, " product=%s", e.ProductID)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind.Sentinel()}
	}
	return []error{e.Kind.Sentinel(), e.Err}
}

// Inconsistent reports whether the failure needs manual reconciliation.
func (e *Error) Inconsistent() bool {
	return e.State == domain.CommitFailedInconsistent
}
