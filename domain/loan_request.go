package domain

import (
	"time"
)

// LoanRequestState is the state of a LoanRequest in its lifecycle.
type LoanRequestState string

const (
	LoanRequestStatePending   LoanRequestState = "pending"
	LoanRequestStateCancelled LoanRequestState = "cancelled"
	LoanRequestStateAccepted  LoanRequestState = "accepted"
	LoanRequestStateRejected  LoanRequestState = "rejected"
	LoanRequestStateExecuted  LoanRequestState = "executed"
)

// loanRequestStates maps every valid state name to its state, used for
// parsing values coming from storage or transport.
var loanRequestStates = map[string]LoanRequestState{
	"pending":   LoanRequestStatePending,
	"cancelled": LoanRequestStateCancelled,
	"accepted":  LoanRequestStateAccepted,
	"rejected":  LoanRequestStateRejected,
	"executed":  LoanRequestStateExecuted,
}

// ParseLoanRequestState parses a state name into a LoanRequestState.
func ParseLoanRequestState(name string) (LoanRequestState, error) {
	state, ok := loanRequestStates[name]
	if !ok {
		return "", ValidationError{Field: "state", Reason: "unknown loan request state: " + name}
	}

	return state, nil
}

func (s LoanRequestState) String() string {
	return string(s)
}

// Active reports whether the state is non-terminal, i.e. the request still
// blocks a new request for the same (item, borrower) pair.
func (s LoanRequestState) Active() bool {
	return s == LoanRequestStatePending || s == LoanRequestStateAccepted
}

// ActiveLoanRequestStates is the set of non-terminal states. At most one
// request per (item, borrower) may be in one of these states at a time.
var ActiveLoanRequestStates = []LoanRequestState{
	LoanRequestStatePending,
	LoanRequestStateAccepted,
}

// Expected pre-states for each guarded transition.
var (
	CancellableStates = []LoanRequestState{LoanRequestStatePending, LoanRequestStateAccepted}
	AcceptableStates  = []LoanRequestState{LoanRequestStatePending}
	RejectableStates  = []LoanRequestState{LoanRequestStatePending, LoanRequestStateAccepted}
	ExecutableStates  = []LoanRequestState{LoanRequestStateAccepted}
)

// LoanRequest is a borrower's ask to borrow an item.
//
// LoanID is set if and only if the request has been executed.
type LoanRequest struct {
	ID         int64
	ItemID     int64
	BorrowerID int64
	State      LoanRequestState
	LoanID     *int64
	CreatedAt  time.Time
}

// ChatKey returns the key of the chat thread attached to this request.
func (r LoanRequest) ChatKey() ChatKey {
	return ChatKey{ItemID: r.ItemID, BorrowerID: r.BorrowerID}
}
