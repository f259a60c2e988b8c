package domain

type CommitState string

const (
	CommitBuilt              CommitState = "built"
	CommitSaleRecorded       CommitState = "sale_recorded"
	CommitItemsRecorded      CommitState = "items_recorded"
	CommitStockApplied       CommitState = "stock_applied"
	CommitCompensatingStock  CommitState = "compensating_stock"
	CommitFailed             CommitState = "failed"
	CommitFailedInconsistent CommitState = "failed_inconsistent"
)

// A header write that fails ambiguously (timeout) leaves Built through
// CompensatingStock so the possibly written header is voided.
var commitTransitions = map[CommitState][]CommitState{
	CommitBuilt:             {CommitSaleRecorded, CommitCompensatingStock, CommitFailed},
	CommitSaleRecorded:      {CommitItemsRecorded, CommitCompensatingStock},
	CommitItemsRecorded:     {CommitStockApplied, CommitCompensatingStock},
	CommitCompensatingStock: {CommitFailed, CommitFailedInconsistent},
}

func (s CommitState) IsTerminal() bool {
	return s == CommitStockApplied || s == CommitFailed || s == CommitFailedInconsistent
}

func (s CommitState) CanTransitionTo(next CommitState) bool {
	for _, allowed := range commitTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s CommitState) String() string {
	return string(s)
}
