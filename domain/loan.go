package domain

import (
	"time"
)

// Loan is a concrete, time-bounded borrowing of an item by a borrower.
//
// A loan with an unset end is active. For a fixed item no two loans'
// intervals may overlap; the storage layer enforces this with an
// exclusion constraint.
type Loan struct {
	ID            int64
	ItemID        int64
	BorrowerID    int64
	LoanRequestID int64
	StartsAt      time.Time
	EndsAt        *time.Time
}

// Active reports whether the loan's interval is still open.
func (l Loan) Active() bool {
	return l.EndsAt == nil
}

// ChatKey returns the key of the chat thread attached to this loan.
func (l Loan) ChatKey() ChatKey {
	return ChatKey{ItemID: l.ItemID, BorrowerID: l.BorrowerID}
}
